package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Gregofi/caby/pkg/ast"
)

func parseOne(t *testing.T, input string) ast.Expr {
	t.Helper()
	p := New(input)
	prog, err := p.Parse()
	require.NoError(t, err)
	require.Len(t, prog.Exprs, 1)
	return prog.Exprs[0]
}

func TestParseIntLiteral(t *testing.T) {
	lit, ok := parseOne(t, "42").(*ast.IntLit)
	require.True(t, ok)
	require.Equal(t, int32(42), lit.Value)
}

func TestParseFloatLiteral(t *testing.T) {
	lit, ok := parseOne(t, "3.14").(*ast.FloatLit)
	require.True(t, ok)
	require.InDelta(t, 3.14, lit.Value, 1e-9)
}

func TestParseBinaryPrecedenceMulBindsTighter(t *testing.T) {
	bin, ok := parseOne(t, "1 + 2 * 3").(*ast.Binary)
	require.True(t, ok)
	require.Equal(t, "+", bin.Op)

	right, ok := bin.Right.(*ast.Binary)
	require.True(t, ok, "2 * 3 should be the right operand of +")
	require.Equal(t, "*", right.Op)
}

func TestParseBinaryLeftAssociative(t *testing.T) {
	bin, ok := parseOne(t, "10 - 4 - 3").(*ast.Binary)
	require.True(t, ok)
	require.Equal(t, "-", bin.Op)

	left, ok := bin.Left.(*ast.Binary)
	require.True(t, ok, "(10 - 4) should be the left operand of the outer -")
	require.Equal(t, "-", left.Op)
}

func TestParseParensOverridePrecedence(t *testing.T) {
	bin, ok := parseOne(t, "(1 + 2) * 3").(*ast.Binary)
	require.True(t, ok)
	require.Equal(t, "*", bin.Op)

	left, ok := bin.Left.(*ast.Binary)
	require.True(t, ok)
	require.Equal(t, "+", left.Op)
}

func TestParseUnaryMinus(t *testing.T) {
	un, ok := parseOne(t, "-x").(*ast.Unary)
	require.True(t, ok)
	require.Equal(t, "-", un.Op)
	_, ok = un.Expr.(*ast.Ident)
	require.True(t, ok)
}

func TestParseValAndVarDecl(t *testing.T) {
	val, ok := parseOne(t, "val x = 1").(*ast.ValDecl)
	require.True(t, ok)
	require.Equal(t, "x", val.Name)

	varDecl, ok := parseOne(t, "var y = 2").(*ast.VarDecl)
	require.True(t, ok)
	require.Equal(t, "y", varDecl.Name)
}

func TestParseAssignment(t *testing.T) {
	assign, ok := parseOne(t, "x = 1 + 2").(*ast.Assign)
	require.True(t, ok)
	require.Equal(t, "x", assign.Name)
	_, ok = assign.Value.(*ast.Binary)
	require.True(t, ok)
}

func TestParseFuncDeclExpressionBody(t *testing.T) {
	fn, ok := parseOne(t, "def add(a, b) = a + b").(*ast.FuncDecl)
	require.True(t, ok)
	require.Equal(t, "add", fn.Name)
	require.Equal(t, []string{"a", "b"}, fn.Params)
	_, ok = fn.Body.(*ast.Binary)
	require.True(t, ok)
}

func TestParseFuncDeclBlockBody(t *testing.T) {
	fn, ok := parseOne(t, "def f() { 1; 2 }").(*ast.FuncDecl)
	require.True(t, ok)
	block, ok := fn.Body.(*ast.Block)
	require.True(t, ok)
	require.Len(t, block.Exprs, 2)
}

func TestParseCallWithArgs(t *testing.T) {
	call, ok := parseOne(t, "f(1, 2, 3)").(*ast.Call)
	require.True(t, ok)
	require.Len(t, call.Args, 3)
	callee, ok := call.Callee.(*ast.Ident)
	require.True(t, ok)
	require.Equal(t, "f", callee.Name)
}

func TestParseBlockValueIsSequence(t *testing.T) {
	block, ok := parseOne(t, "{1; 3}").(*ast.Block)
	require.True(t, ok)
	require.Len(t, block.Exprs, 2)
}

func TestParseIfElse(t *testing.T) {
	ifExpr, ok := parseOne(t, "if (x < 1) 2 else 3").(*ast.If)
	require.True(t, ok)
	require.NotNil(t, ifExpr.Else)
	_, ok = ifExpr.Cond.(*ast.Binary)
	require.True(t, ok)
}

func TestParseWhile(t *testing.T) {
	while, ok := parseOne(t, "while (x < 10) { x = x + 1 }").(*ast.While)
	require.True(t, ok)
	_, ok = while.Body.(*ast.Block)
	require.True(t, ok)
}

func TestParseClassDeclFieldsAndMethods(t *testing.T) {
	src := `
class Point {
  x; y
  def sum() = self.x + self.y
}`
	cls, ok := parseOne(t, src).(*ast.ClassDecl)
	require.True(t, ok)
	require.Equal(t, "Point", cls.Name)
	require.Equal(t, []string{"x", "y"}, cls.Fields)
	require.Len(t, cls.Methods, 1)
	require.Equal(t, "sum", cls.Methods[0].Name)
}

func TestParseNewWithConstructorArgs(t *testing.T) {
	n, ok := parseOne(t, "new Point(1, 2)").(*ast.New)
	require.True(t, ok)
	require.Equal(t, "Point", n.ClassName)
	require.Len(t, n.Args, 2)
}

func TestParseMemberAccessChain(t *testing.T) {
	get, ok := parseOne(t, "a.b.c").(*ast.GetMember)
	require.True(t, ok)
	require.Equal(t, "c", get.Name)

	inner, ok := get.Object.(*ast.GetMember)
	require.True(t, ok)
	require.Equal(t, "b", inner.Name)
}

func TestParseMethodCall(t *testing.T) {
	mc, ok := parseOne(t, "obj.greet(1)").(*ast.MethodCall)
	require.True(t, ok)
	require.Equal(t, "greet", mc.Name)
	require.Len(t, mc.Args, 1)
}

func TestParseSetMember(t *testing.T) {
	sm, ok := parseOne(t, "obj.field = 5").(*ast.SetMember)
	require.True(t, ok)
	require.Equal(t, "field", sm.Name)
}

func TestParseAccumulatesMultipleErrors(t *testing.T) {
	p := New("val = 1\nvar = 2")
	_, err := p.Parse()
	require.Error(t, err)
	// Both declarations are missing a name; neither error should mask
	// the other.
	require.Contains(t, err.Error(), "errors occurred")
}
