// Package compiler translates a Caby AST into a constant pool ready for
// the virtual machine, in a single pass: one switch over node types,
// emitting instructions as it descends, with a name->slot symbol table
// per function.
//
// Every expression, once compiled, leaves exactly one value on the
// operand stack — including declarations and assignments — so that
// compiling a sequence of expressions is always "compile all but the
// last, emitting DROP after each, then compile the last" regardless of
// what kind of expression it is.
package compiler

import (
	"fmt"

	"github.com/Gregofi/caby/pkg/ast"
	"github.com/Gregofi/caby/pkg/bytecode"
	"github.com/Gregofi/caby/pkg/object"
)

// funcState is the compilation context for one function body (the
// top-level program counts as one, named "<main>"). Each function has
// its own chunk and its own local-slot numbering; blocks within it push
// and pop named scopes but never reuse slot numbers, so a shadowed outer
// local simply becomes unreachable rather than being overwritten.
type funcState struct {
	chunk     *bytecode.Chunk
	scopes    []map[string]uint16
	slotCount uint16
}

func newFuncState() *funcState {
	return &funcState{chunk: bytecode.NewChunk(), scopes: []map[string]uint16{{}}}
}

func (fs *funcState) pushScope() { fs.scopes = append(fs.scopes, map[string]uint16{}) }
func (fs *funcState) popScope()  { fs.scopes = fs.scopes[:len(fs.scopes)-1] }

func (fs *funcState) declareLocal(name string) uint16 {
	slot := fs.slotCount
	fs.slotCount++
	fs.scopes[len(fs.scopes)-1][name] = slot
	return slot
}

func (fs *funcState) resolveLocal(name string) (uint16, bool) {
	for i := len(fs.scopes) - 1; i >= 0; i-- {
		if slot, ok := fs.scopes[i][name]; ok {
			return slot, true
		}
	}
	return 0, false
}

// Compiler compiles one Program into an object.Program constant pool.
type Compiler struct {
	constants []*object.Object
	strings   map[string]int
	funcs     []*funcState
	// globalMut records, for every global defined in this unit, whether
	// the binding is mutable; assignment to an immutable one is rejected
	// here rather than at run time.
	globalMut map[string]bool
	errs      []error
}

// New returns a ready-to-use Compiler.
func New() *Compiler {
	return &Compiler{strings: make(map[string]int), globalMut: make(map[string]bool)}
}

func (c *Compiler) cur() *funcState { return c.funcs[len(c.funcs)-1] }

func (c *Compiler) errorf(loc ast.Loc, format string, args ...interface{}) {
	c.errs = append(c.errs, fmt.Errorf("offset %d: "+format, append([]interface{}{loc.Begin}, args...)...))
}

func (c *Compiler) emit(op bytecode.Opcode, operand uint64, loc ast.Loc) {
	c.cur().chunk.Write(op, operand, bytecode.Loc{Begin: loc.Begin, End: loc.End})
}

// emitPlaceholder writes op with a zero operand and returns the byte
// offset of the instruction, for later backpatching with PatchOperand.
func (c *Compiler) emitPlaceholder(op bytecode.Opcode, loc ast.Loc) int {
	ip := len(c.cur().chunk.Code)
	c.emit(op, 0, loc)
	return ip
}

func (c *Compiler) patchJumpHere(ip int) {
	c.cur().chunk.PatchOperand(ip, uint64(len(c.cur().chunk.Code)))
}

func (c *Compiler) addConstant(obj *object.Object) uint64 {
	c.constants = append(c.constants, obj)
	return uint64(len(c.constants) - 1)
}

func (c *Compiler) addStringConstant(s string) uint64 {
	if idx, ok := c.strings[s]; ok {
		return uint64(idx)
	}
	idx := int(c.addConstant(object.NewStringObject(s)))
	c.strings[s] = idx
	return uint64(idx)
}

// Compile compiles prog into a ready-to-run Program. A nil error means
// every node compiled cleanly; compile errors are accumulated and
// returned together (mirroring the parser's multierror behavior) rather
// than stopping at the first one.
func (c *Compiler) Compile(prog *ast.Program) (*object.Program, error) {
	// The name string precedes <main> in the pool so a decoder has already
	// read it when it resolves <main>'s name_idx.
	c.addStringConstant("<main>")
	mainIdx := c.addConstant(nil) // reserved; patched once <main> compiles

	c.funcs = append(c.funcs, newFuncState())
	c.compileSequence(prog.Exprs, true)
	c.emit(bytecode.OpReturn, 0, prog.Span())
	mainFn := c.funcs[len(c.funcs)-1]
	c.funcs = c.funcs[:len(c.funcs)-1]

	c.constants[mainIdx] = object.NewFunctionObject("<main>", 0, mainFn.slotCount, mainFn.chunk)

	if len(c.errs) > 0 {
		return nil, fmt.Errorf("compile errors: %v", c.errs)
	}

	return &object.Program{Constants: c.constants, EntryPoint: uint32(mainIdx)}, nil
}

// compileSequence compiles exprs in order, dropping every value but the
// last (pushing None if exprs is empty, for `{}`'s value).
func (c *Compiler) compileSequence(exprs []ast.Expr, global bool) {
	if len(exprs) == 0 {
		c.emit(bytecode.OpPushNone, 0, ast.Loc{})
		return
	}
	for i, e := range exprs {
		c.compileExpr(e, global)
		if i != len(exprs)-1 {
			c.emit(bytecode.OpDrop, 0, e.Span())
		}
	}
}

func (c *Compiler) compileExpr(expr ast.Expr, global bool) {
	switch e := expr.(type) {
	case *ast.IntLit:
		c.emit(bytecode.OpPushInt, uint64(uint32(e.Value)), e.Loc)
	case *ast.FloatLit:
		idx := c.addConstant(c.doubleConstant(e.Value))
		c.emit(bytecode.OpPushLiteral, idx, e.Loc)
	case *ast.StringLit:
		idx := c.addStringConstant(e.Value)
		c.emit(bytecode.OpPushLiteral, idx, e.Loc)
	case *ast.BoolLit:
		operand := uint64(0)
		if e.Value {
			operand = 1
		}
		c.emit(bytecode.OpPushBool, operand, e.Loc)
	case *ast.NoneLit:
		c.emit(bytecode.OpPushNone, 0, e.Loc)
	case *ast.Ident:
		c.compileLoad(e.Name, e.Loc)
	case *ast.Unary:
		c.compileExpr(e.Expr, global)
		c.compileUnaryOp(e.Op, e.Loc)
	case *ast.Binary:
		c.compileBinary(e, global)
	case *ast.Assign:
		c.compileExpr(e.Value, global)
		c.compileStore(e.Name, e.Loc)
	case *ast.ValDecl:
		c.compileDecl(e.Name, e.Value, false, global)
	case *ast.VarDecl:
		c.compileDecl(e.Name, e.Value, true, global)
	case *ast.Block:
		c.cur().pushScope()
		c.compileSequence(e.Exprs, false)
		c.cur().popScope()
	case *ast.If:
		c.compileIf(e, global)
	case *ast.While:
		c.compileWhile(e, global)
	case *ast.FuncDecl:
		c.compileFuncDeclExpr(e, nil, global)
	case *ast.ClassDecl:
		c.compileClassDecl(e, global)
	case *ast.Call:
		c.compileCall(e, global)
	case *ast.New:
		c.compileNew(e, global)
	case *ast.GetMember:
		c.compileExpr(e.Object, global)
		name := c.addStringConstant(e.Name)
		c.emit(bytecode.OpGetMember, name, e.Loc)
	case *ast.SetMember:
		c.compileExpr(e.Object, global)
		c.compileExpr(e.Value, global)
		name := c.addStringConstant(e.Name)
		c.emit(bytecode.OpSetMember, name, e.Loc)
	case *ast.MethodCall:
		c.compileMethodCall(e, global)
	default:
		c.errorf(expr.Span(), "unsupported expression %T", expr)
	}
}

// doubleConstant boxes a float literal as a constant-pool entry;
// object.FromObject unboxes it back into a primitive Double Value when
// PUSH_LITERAL loads it.
func (c *Compiler) doubleConstant(v float64) *object.Object {
	return object.NewDoubleObject(v)
}

func (c *Compiler) compileLoad(name string, loc ast.Loc) {
	if slot, ok := c.cur().resolveLocal(name); ok {
		c.emit(bytecode.OpGetLocal, uint64(slot), loc)
		return
	}
	idx := c.addStringConstant(name)
	c.emit(bytecode.OpGetGlobal, idx, loc)
}

func (c *Compiler) compileStore(name string, loc ast.Loc) {
	if slot, ok := c.cur().resolveLocal(name); ok {
		c.emit(bytecode.OpSetLocal, uint64(slot), loc)
		return
	}
	if mutable, known := c.globalMut[name]; known && !mutable {
		c.errorf(loc, "cannot assign to immutable variable %q", name)
	}
	idx := c.addStringConstant(name)
	c.emit(bytecode.OpSetGlobal, idx, loc)
}

// compileDecl compiles `val`/`var name = value`. At global scope it
// pushes the value, DUPs it (VAL_GLOBAL/VAR_GLOBAL consumes one copy),
// leaving the original as the declaration's own value; at local scope
// SET_LOCAL already leaves the value on the stack, so no DUP is needed.
func (c *Compiler) compileDecl(name string, value ast.Expr, mutable, global bool) {
	c.compileExpr(value, global)
	if global {
		c.emit(bytecode.OpDup, 0, value.Span())
		idx := c.addStringConstant(name)
		op := bytecode.OpValGlobal
		if mutable {
			op = bytecode.OpVarGlobal
		}
		c.globalMut[name] = mutable
		c.emit(op, idx, value.Span())
		return
	}
	slot := c.cur().declareLocal(name)
	c.emit(bytecode.OpSetLocal, uint64(slot), value.Span())
}

func (c *Compiler) compileUnaryOp(op string, loc ast.Loc) {
	switch op {
	case "-":
		c.emit(bytecode.OpINeg, 0, loc)
	case "!":
		c.emit(bytecode.OpPushBool, 0, loc)
		c.emit(bytecode.OpEq, 0, loc)
	default:
		c.errorf(loc, "unsupported unary operator %q", op)
	}
}

// compileBinary evaluates the right operand first, then the left, so
// that the left ends up on top of the stack. The same left-on-top
// contract holds for comparisons and for call arguments.
func (c *Compiler) compileBinary(e *ast.Binary, global bool) {
	if e.Op == "&&" || e.Op == "||" {
		c.compileShortCircuit(e, global)
		return
	}

	c.compileExpr(e.Right, global)
	c.compileExpr(e.Left, global)

	switch e.Op {
	case "+":
		c.emit(bytecode.OpIAdd, 0, e.Loc)
	case "-":
		c.emit(bytecode.OpISub, 0, e.Loc)
	case "*":
		c.emit(bytecode.OpIMul, 0, e.Loc)
	case "/":
		c.emit(bytecode.OpIDiv, 0, e.Loc)
	case "%":
		c.emit(bytecode.OpIMod, 0, e.Loc)
	case "==":
		c.emit(bytecode.OpEq, 0, e.Loc)
	case "!=":
		c.emit(bytecode.OpNeq, 0, e.Loc)
	case "<":
		c.emit(bytecode.OpILt, 0, e.Loc)
	case "<=":
		c.emit(bytecode.OpILe, 0, e.Loc)
	case ">":
		c.emit(bytecode.OpIGt, 0, e.Loc)
	case ">=":
		c.emit(bytecode.OpIGe, 0, e.Loc)
	default:
		c.errorf(e.Loc, "unsupported binary operator %q", e.Op)
	}
}

// compileShortCircuit implements && and || without eagerly evaluating
// the right side, using the same BRANCH/BRANCH_FALSE primitives as if.
func (c *Compiler) compileShortCircuit(e *ast.Binary, global bool) {
	c.compileExpr(e.Left, global)
	c.emit(bytecode.OpDup, 0, e.Loc)
	var shortCircuitJump int
	if e.Op == "&&" {
		shortCircuitJump = c.emitPlaceholder(bytecode.OpBranchFalse, e.Loc)
	} else {
		shortCircuitJump = c.emitPlaceholder(bytecode.OpBranch, e.Loc)
	}
	c.emit(bytecode.OpDrop, 0, e.Loc)
	c.compileExpr(e.Right, global)
	c.patchJumpHere(shortCircuitJump)
}

func (c *Compiler) compileIf(e *ast.If, global bool) {
	c.compileExpr(e.Cond, global)
	elseJump := c.emitPlaceholder(bytecode.OpBranchFalse, e.Loc)
	c.compileExpr(e.Then, global)
	endJump := c.emitPlaceholder(bytecode.OpJmp, e.Loc)
	c.patchJumpHere(elseJump)
	if e.Else != nil {
		c.compileExpr(e.Else, global)
	} else {
		c.emit(bytecode.OpPushNone, 0, e.Loc)
	}
	c.patchJumpHere(endJump)
}

func (c *Compiler) compileWhile(e *ast.While, global bool) {
	loopStart := len(c.cur().chunk.Code)
	c.compileExpr(e.Cond, global)
	endJump := c.emitPlaceholder(bytecode.OpBranchFalse, e.Loc)
	c.compileExpr(e.Body, global)
	c.emit(bytecode.OpDrop, 0, e.Loc)
	c.emit(bytecode.OpJmp, uint64(loopStart), e.Loc)
	c.patchJumpHere(endJump)
	c.emit(bytecode.OpPushNone, 0, e.Loc)
}

// compileFuncDeclExpr compiles a function literal and binds it to name,
// per compileDecl's one-value-left-on-stack contract. extraParams (e.g.
// ["self"]) are prepended to the source parameter list for methods.
func (c *Compiler) compileFuncDeclExpr(e *ast.FuncDecl, extraParams []string, global bool) {
	fnObj := c.compileFunction(e.Name, append(append([]string{}, extraParams...), e.Params...), e.Body)
	idx := c.addConstant(fnObj)
	c.emit(bytecode.OpPushLiteral, idx, e.Loc)
	if global {
		c.emit(bytecode.OpDup, 0, e.Loc)
		nameIdx := c.addStringConstant(e.Name)
		c.globalMut[e.Name] = false
		c.emit(bytecode.OpValGlobal, nameIdx, e.Loc)
		return
	}
	slot := c.cur().declareLocal(e.Name)
	c.emit(bytecode.OpSetLocal, uint64(slot), e.Loc)
}

// compileFunction compiles params+body into a standalone Function
// object, in its own funcState, without binding it to any name.
func (c *Compiler) compileFunction(name string, params []string, body ast.Expr) *object.Object {
	// The serialized form refers to a function by the pool index of its
	// name string, so the name always gets a String constant even when no
	// instruction ends up referencing it.
	c.addStringConstant(name)
	fs := newFuncState()
	for _, p := range params {
		fs.declareLocal(p)
	}
	c.funcs = append(c.funcs, fs)
	c.compileExpr(body, false)
	c.emit(bytecode.OpReturn, 0, body.Span())
	c.funcs = c.funcs[:len(c.funcs)-1]
	return object.NewFunctionObject(name, byte(len(params)), fs.slotCount, fs.chunk)
}

func (c *Compiler) compileClassDecl(e *ast.ClassDecl, global bool) {
	c.addStringConstant(e.Name)
	cls := object.NewClassObject(e.Name, e.Fields)
	for _, m := range e.Methods {
		fnObj := c.compileFunction(m.Name, append([]string{"self"}, m.Params...), m.Body)
		cls.Cls.Methods.Set(object.FromObject(object.NewStringObject(m.Name)), object.FromObject(fnObj))
	}
	idx := c.addConstant(cls)
	c.emit(bytecode.OpPushLiteral, idx, e.Loc)
	if global {
		c.emit(bytecode.OpDup, 0, e.Loc)
		nameIdx := c.addStringConstant(e.Name)
		c.globalMut[e.Name] = false
		c.emit(bytecode.OpValGlobal, nameIdx, e.Loc)
		return
	}
	slot := c.cur().declareLocal(e.Name)
	c.emit(bytecode.OpSetLocal, uint64(slot), e.Loc)
}

// compileCall pushes arguments right-to-left (so the leftmost ends up on
// top), then the callee, then CALL argc.
func (c *Compiler) compileCall(e *ast.Call, global bool) {
	for i := len(e.Args) - 1; i >= 0; i-- {
		c.compileExpr(e.Args[i], global)
	}
	c.compileExpr(e.Callee, global)
	c.emit(bytecode.OpCall, uint64(len(e.Args)), e.Loc)
}

// compileNew allocates the instance then assigns args to fields in
// declaration order, relying on the class already being a resolvable
// global so its constant-pool index is known when NEW_OBJECT is emitted.
func (c *Compiler) compileNew(e *ast.New, global bool) {
	classConstIdx, ok := c.findClassConstant(e.ClassName)
	if !ok {
		c.errorf(e.Loc, "class %q is not defined before this point", e.ClassName)
		c.emit(bytecode.OpPushNone, 0, e.Loc)
		return
	}
	c.emit(bytecode.OpNewObject, classConstIdx, e.Loc)

	cls := c.constants[classConstIdx]
	for i, arg := range e.Args {
		if i >= len(cls.Cls.Fields) {
			c.errorf(e.Loc, "too many constructor arguments for class %q", e.ClassName)
			break
		}
		c.emit(bytecode.OpDup, 0, e.Loc)
		c.compileExpr(arg, global)
		name := c.addStringConstant(cls.Cls.Fields[i])
		c.emit(bytecode.OpSetMember, name, e.Loc)
		// SET_MEMBER now leaves the assigned value on the stack (matching
		// SET_LOCAL/SET_GLOBAL); drop it to keep only the instance from
		// the OpDup above for the next field or the caller.
		c.emit(bytecode.OpDrop, 0, e.Loc)
	}
}

func (c *Compiler) findClassConstant(name string) (uint64, bool) {
	for i, obj := range c.constants {
		if obj != nil && obj.Kind == object.KindClass && obj.Cls.Name == name {
			return uint64(i), true
		}
	}
	return 0, false
}

func (c *Compiler) compileMethodCall(e *ast.MethodCall, global bool) {
	for i := len(e.Args) - 1; i >= 0; i-- {
		c.compileExpr(e.Args[i], global)
	}
	c.compileExpr(e.Object, global)
	nameIdx := c.addStringConstant(e.Name)
	operand := (nameIdx << 8) | uint64(len(e.Args))
	c.emit(bytecode.OpDispatchMethod, operand, e.Loc)
}
