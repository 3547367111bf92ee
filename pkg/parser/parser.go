// Package parser implements a recursive-descent, precedence-climbing
// parser for Caby with a two-token lookahead window. Syntax errors are
// accumulated per parse rather than aborting on the first one, so a
// single run reports everything wrong with the input.
//
// Grammar (informal):
//
//	Program    := Expr*
//	Expr       := ValDecl | VarDecl | FuncDecl | ClassDecl | Assign
//	Assign     := IDENT "=" Expr | Binary
//	Binary     := precedence-climbing over || && == != < <= > >= + - * / %
//	Unary      := ("-" | "!") Unary | Postfix
//	Postfix    := Primary ( "(" Args ")" | "." IDENT ("(" Args ")")? | "." IDENT "=" Expr )*
//	Primary    := INT | FLOAT | STRING | "true" | "false" | "none" | IDENT
//	            | "(" Expr ")" | Block | If | While | "new" IDENT "(" Args ")"
//	Block      := "{" ( Expr ";"* )* "}"
package parser

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"

	"github.com/Gregofi/caby/pkg/ast"
	"github.com/Gregofi/caby/pkg/lexer"
)

// precedence levels, lowest to highest.
const (
	precLowest = iota
	precOr
	precAnd
	precEquality
	precComparison
	precAdditive
	precMultiplicative
	precUnary
)

var binPrecedence = map[lexer.TokenType]int{
	lexer.TokenPipePipe:  precOr,
	lexer.TokenAmpAmp:    precAnd,
	lexer.TokenEqEq:      precEquality,
	lexer.TokenBangEq:    precEquality,
	lexer.TokenLess:      precComparison,
	lexer.TokenLessEq:    precComparison,
	lexer.TokenGreater:   precComparison,
	lexer.TokenGreaterEq: precComparison,
	lexer.TokenPlus:      precAdditive,
	lexer.TokenMinus:     precAdditive,
	lexer.TokenStar:      precMultiplicative,
	lexer.TokenSlash:     precMultiplicative,
	lexer.TokenPercent:   precMultiplicative,
}

// Parser turns a token stream into a Program AST, accumulating every
// syntax error it encounters rather than stopping at the first one.
type Parser struct {
	l       *lexer.Lexer
	curTok  lexer.Token
	peekTok lexer.Token
	errors  *multierror.Error
}

// New constructs a Parser over source, primed with a two-token window.
func New(source string) *Parser {
	p := &Parser{l: lexer.New(source)}
	p.next()
	p.next()
	return p
}

func (p *Parser) next() {
	p.curTok = p.peekTok
	p.peekTok = p.l.NextToken()
}

func (p *Parser) errorf(format string, args ...interface{}) {
	p.errors = multierror.Append(p.errors, fmt.Errorf(format, args...))
}

func (p *Parser) expect(tt lexer.TokenType) lexer.Token {
	if p.curTok.Type != tt {
		p.errorf("line %d: expected %s, got %s", p.curTok.Line, tt, p.curTok.Describe())
	}
	tok := p.curTok
	p.next()
	return tok
}

// Parse consumes the full token stream and returns the resulting
// Program, along with every accumulated syntax error (nil if none).
func (p *Parser) Parse() (*ast.Program, error) {
	prog := &ast.Program{}
	for p.curTok.Type != lexer.TokenEOF {
		expr := p.parseExpr()
		prog.Exprs = append(prog.Exprs, expr)
	}
	if p.errors == nil {
		return prog, nil
	}
	return prog, p.errors.ErrorOrNil()
}

func (p *Parser) parseExpr() ast.Expr {
	switch p.curTok.Type {
	case lexer.TokenVal:
		return p.parseValOrVarDecl(false)
	case lexer.TokenVar:
		return p.parseValOrVarDecl(true)
	case lexer.TokenDef:
		return p.parseFuncDecl()
	case lexer.TokenClass:
		return p.parseClassDecl()
	}
	return p.parseAssign()
}

func (p *Parser) parseValOrVarDecl(mutable bool) ast.Expr {
	begin := p.curTok.Begin
	p.next() // consume val/var
	name := p.expect(lexer.TokenIdentifier).Literal
	p.expect(lexer.TokenAssign)
	value := p.parseAssign()
	loc := ast.Loc{Begin: begin, End: value.Span().End}
	if mutable {
		return &ast.VarDecl{Name: name, Value: value, Loc: loc}
	}
	return &ast.ValDecl{Name: name, Value: value, Loc: loc}
}

func (p *Parser) parseFuncDecl() ast.Expr {
	begin := p.curTok.Begin
	p.next() // consume def
	name := p.expect(lexer.TokenIdentifier).Literal
	p.expect(lexer.TokenLParen)
	var params []string
	for p.curTok.Type != lexer.TokenRParen && p.curTok.Type != lexer.TokenEOF {
		params = append(params, p.expect(lexer.TokenIdentifier).Literal)
		if p.curTok.Type == lexer.TokenComma {
			p.next()
		}
	}
	p.expect(lexer.TokenRParen)

	var body ast.Expr
	if p.curTok.Type == lexer.TokenAssign {
		p.next()
		body = p.parseAssign()
	} else {
		body = p.parseBlock()
	}
	return &ast.FuncDecl{Name: name, Params: params, Body: body, Loc: ast.Loc{Begin: begin, End: body.Span().End}}
}

func (p *Parser) parseClassDecl() ast.Expr {
	begin := p.curTok.Begin
	p.next() // consume class
	name := p.expect(lexer.TokenIdentifier).Literal
	p.expect(lexer.TokenLBrace)

	var fields []string
	var methods []*ast.FuncDecl
	for p.curTok.Type != lexer.TokenRBrace && p.curTok.Type != lexer.TokenEOF {
		if p.curTok.Type == lexer.TokenDef {
			fn := p.parseFuncDecl().(*ast.FuncDecl)
			methods = append(methods, fn)
			continue
		}
		field := p.expect(lexer.TokenIdentifier).Literal
		fields = append(fields, field)
		if p.curTok.Type == lexer.TokenSemicolon || p.curTok.Type == lexer.TokenComma {
			p.next()
		}
	}
	end := p.curTok.End
	p.expect(lexer.TokenRBrace)
	return &ast.ClassDecl{Name: name, Fields: fields, Methods: methods, Loc: ast.Loc{Begin: begin, End: end}}
}

func (p *Parser) parseAssign() ast.Expr {
	if p.curTok.Type == lexer.TokenIdentifier && p.peekTok.Type == lexer.TokenAssign {
		name := p.curTok.Literal
		begin := p.curTok.Begin
		p.next() // identifier
		p.next() // =
		value := p.parseAssign()
		return &ast.Assign{Name: name, Value: value, Loc: ast.Loc{Begin: begin, End: value.Span().End}}
	}
	return p.parseBinary(precLowest)
}

func (p *Parser) parseBinary(minPrec int) ast.Expr {
	left := p.parseUnary()
	for {
		prec, ok := binPrecedence[p.curTok.Type]
		if !ok || prec <= minPrec {
			return left
		}
		op := p.curTok.Literal
		p.next()
		right := p.parseBinary(prec)
		left = &ast.Binary{Op: op, Left: left, Right: right, Loc: ast.Loc{Begin: left.Span().Begin, End: right.Span().End}}
	}
}

func (p *Parser) parseUnary() ast.Expr {
	if p.curTok.Type == lexer.TokenMinus || p.curTok.Type == lexer.TokenBang {
		op := p.curTok.Literal
		begin := p.curTok.Begin
		p.next()
		operand := p.parseUnary()
		return &ast.Unary{Op: op, Expr: operand, Loc: ast.Loc{Begin: begin, End: operand.Span().End}}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() ast.Expr {
	expr := p.parsePrimary()
	for {
		switch p.curTok.Type {
		case lexer.TokenLParen:
			args, end := p.parseArgs()
			expr = &ast.Call{Callee: expr, Args: args, Loc: ast.Loc{Begin: expr.Span().Begin, End: end}}
		case lexer.TokenDot:
			p.next()
			name := p.expect(lexer.TokenIdentifier).Literal
			if p.curTok.Type == lexer.TokenLParen {
				args, end := p.parseArgs()
				expr = &ast.MethodCall{Object: expr, Name: name, Args: args, Loc: ast.Loc{Begin: expr.Span().Begin, End: end}}
			} else if p.curTok.Type == lexer.TokenAssign {
				p.next()
				value := p.parseAssign()
				expr = &ast.SetMember{Object: expr, Name: name, Value: value, Loc: ast.Loc{Begin: expr.Span().Begin, End: value.Span().End}}
			} else {
				expr = &ast.GetMember{Object: expr, Name: name, Loc: ast.Loc{Begin: expr.Span().Begin, End: p.curTok.Begin}}
			}
		default:
			return expr
		}
	}
}

func (p *Parser) parseArgs() ([]ast.Expr, uint64) {
	p.expect(lexer.TokenLParen)
	var args []ast.Expr
	for p.curTok.Type != lexer.TokenRParen && p.curTok.Type != lexer.TokenEOF {
		args = append(args, p.parseAssign())
		if p.curTok.Type == lexer.TokenComma {
			p.next()
		}
	}
	end := p.curTok.End
	p.expect(lexer.TokenRParen)
	return args, end
}

func (p *Parser) parsePrimary() ast.Expr {
	tok := p.curTok
	switch tok.Type {
	case lexer.TokenInt:
		p.next()
		n, err := strconv.ParseInt(tok.Literal, 10, 32)
		if err != nil {
			p.errorf("line %d: invalid integer literal %q", tok.Line, tok.Literal)
		}
		return &ast.IntLit{Value: int32(n), Loc: ast.Loc{Begin: tok.Begin, End: tok.End}}
	case lexer.TokenFloat:
		p.next()
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errorf("line %d: invalid float literal %q", tok.Line, tok.Literal)
		}
		return &ast.FloatLit{Value: f, Loc: ast.Loc{Begin: tok.Begin, End: tok.End}}
	case lexer.TokenString:
		p.next()
		return &ast.StringLit{Value: tok.Literal, Loc: ast.Loc{Begin: tok.Begin, End: tok.End}}
	case lexer.TokenTrue:
		p.next()
		return &ast.BoolLit{Value: true, Loc: ast.Loc{Begin: tok.Begin, End: tok.End}}
	case lexer.TokenFalse:
		p.next()
		return &ast.BoolLit{Value: false, Loc: ast.Loc{Begin: tok.Begin, End: tok.End}}
	case lexer.TokenNone:
		p.next()
		return &ast.NoneLit{Loc: ast.Loc{Begin: tok.Begin, End: tok.End}}
	case lexer.TokenIdentifier:
		p.next()
		return &ast.Ident{Name: tok.Literal, Loc: ast.Loc{Begin: tok.Begin, End: tok.End}}
	case lexer.TokenLParen:
		p.next()
		expr := p.parseAssign()
		p.expect(lexer.TokenRParen)
		return expr
	case lexer.TokenLBrace:
		return p.parseBlock()
	case lexer.TokenIf:
		return p.parseIf()
	case lexer.TokenWhile:
		return p.parseWhile()
	case lexer.TokenNew:
		return p.parseNew()
	default:
		p.errorf("line %d: unexpected token %s", tok.Line, tok.Describe())
		p.next()
		return &ast.NoneLit{Loc: ast.Loc{Begin: tok.Begin, End: tok.End}}
	}
}

func (p *Parser) parseBlock() ast.Expr {
	begin := p.curTok.Begin
	p.expect(lexer.TokenLBrace)
	var exprs []ast.Expr
	for p.curTok.Type != lexer.TokenRBrace && p.curTok.Type != lexer.TokenEOF {
		exprs = append(exprs, p.parseExpr())
		for p.curTok.Type == lexer.TokenSemicolon {
			p.next()
		}
	}
	end := p.curTok.End
	p.expect(lexer.TokenRBrace)
	return &ast.Block{Exprs: exprs, Loc: ast.Loc{Begin: begin, End: end}}
}

func (p *Parser) parseIf() ast.Expr {
	begin := p.curTok.Begin
	p.next() // if
	p.expect(lexer.TokenLParen)
	cond := p.parseAssign()
	p.expect(lexer.TokenRParen)
	then := p.parseExpr()
	var elseExpr ast.Expr
	end := then.Span().End
	if p.curTok.Type == lexer.TokenElse {
		p.next()
		elseExpr = p.parseExpr()
		end = elseExpr.Span().End
	}
	return &ast.If{Cond: cond, Then: then, Else: elseExpr, Loc: ast.Loc{Begin: begin, End: end}}
}

func (p *Parser) parseWhile() ast.Expr {
	begin := p.curTok.Begin
	p.next() // while
	p.expect(lexer.TokenLParen)
	cond := p.parseAssign()
	p.expect(lexer.TokenRParen)
	body := p.parseExpr()
	return &ast.While{Cond: cond, Body: body, Loc: ast.Loc{Begin: begin, End: body.Span().End}}
}

func (p *Parser) parseNew() ast.Expr {
	begin := p.curTok.Begin
	p.next() // new
	name := p.expect(lexer.TokenIdentifier).Literal
	args, end := p.parseArgs()
	return &ast.New{ClassName: name, Args: args, Loc: ast.Loc{Begin: begin, End: end}}
}
