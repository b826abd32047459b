// Package parser implements the recursive-descent / precedence-climbing
// parser that turns a token stream into an *ast.Program.
package parser

import (
	"fmt"
	"strconv"

	"droplet/ast"
	"droplet/lexer"
)

// ParseError is returned for any syntax error. One ParseError aborts
// parsing of the current top-level item; the parser then resynchronizes at
// the next statement boundary or top-level keyword to keep collecting
// diagnostics for the rest of the file.
type ParseError struct {
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// Parser holds a two-token lookahead window over a Lexer.
type Parser struct {
	lex     *lexer.Lexer
	current lexer.Token
	peek    lexer.Token

	errors []error
}

// NewParser creates a Parser over the given source text.
func NewParser(src string) *Parser {
	p := &Parser{lex: lexer.NewLexer(src)}
	p.advance()
	p.advance()
	return p
}

func (p *Parser) advance() {
	p.current = p.peek
	tok, err := p.lex.NextToken()
	if err != nil {
		// Surface lex errors as a token stream of ILLEGAL so the parser can
		// still report a position-accurate ParseError instead of panicking.
		p.errors = append(p.errors, err)
		tok = lexer.Token{Type: lexer.TOKEN_ILLEGAL, Position: p.current.Position}
	}
	p.peek = tok
}

func (p *Parser) pos() lexer.Position { return p.current.Position }

func (p *Parser) errf(format string, args ...interface{}) *ParseError {
	return &ParseError{Line: p.current.Position.Line, Column: p.current.Position.Column, Message: fmt.Sprintf(format, args...)}
}

func (p *Parser) expect(tt lexer.TokenType) (lexer.Token, error) {
	if p.current.Type != tt {
		return lexer.Token{}, p.errf("expected %s, got %s", tt, p.current.Type)
	}
	tok := p.current
	p.advance()
	return tok, nil
}

// synchronize discards tokens until a statement boundary (`;`) or the start
// of a new top-level construct, so batch diagnostics can continue past a
// parse error (§4.2).
func (p *Parser) synchronize() {
	for p.current.Type != lexer.TOKEN_EOF {
		if p.current.Type == lexer.TOKEN_SEMICOLON {
			p.advance()
			return
		}
		switch p.current.Type {
		case lexer.TOKEN_CLASS, lexer.TOKEN_FN, lexer.TOKEN_SEAL, lexer.TOKEN_AT_FFI,
			lexer.TOKEN_IMPORT, lexer.TOKEN_USE, lexer.TOKEN_MOD:
			return
		}
		p.advance()
	}
}

// ParseProgram parses an entire source file into a *ast.Program. Parse
// errors on individual top-level items are collected; ParseProgram returns
// the first one as the error (matching "a single error aborts the current
// top-level item" -- callers wanting the full diagnostic batch can inspect
// Errors() after a failed call).
func (p *Parser) ParseProgram() (*ast.Program, error) {
	prog := &ast.Program{}

	if p.current.Type == lexer.TOKEN_MOD {
		decl, err := p.parseModuleDecl()
		if err != nil {
			return nil, err
		}
		prog.Module = decl
	}

	for p.current.Type == lexer.TOKEN_IMPORT || p.current.Type == lexer.TOKEN_USE {
		imp, err := p.parseImport()
		if err != nil {
			p.errors = append(p.errors, err)
			p.synchronize()
			continue
		}
		prog.Imports = append(prog.Imports, imp)
	}

	for p.current.Type != lexer.TOKEN_EOF {
		switch p.current.Type {
		case lexer.TOKEN_SEAL, lexer.TOKEN_CLASS:
			class, err := p.parseClass()
			if err != nil {
				p.errors = append(p.errors, err)
				p.synchronize()
				continue
			}
			prog.Classes = append(prog.Classes, class)
		case lexer.TOKEN_AT_FFI:
			fn, err := p.parseFFIFunction()
			if err != nil {
				p.errors = append(p.errors, err)
				p.synchronize()
				continue
			}
			prog.Funcs = append(prog.Funcs, fn)
		case lexer.TOKEN_FN:
			fn, err := p.parseFunction(false, false, ast.VisPublic)
			if err != nil {
				p.errors = append(p.errors, err)
				p.synchronize()
				continue
			}
			prog.Funcs = append(prog.Funcs, fn)
		default:
			p.errors = append(p.errors, p.errf("unexpected token %s at top level", p.current.Type))
			p.synchronize()
		}
	}

	if len(p.errors) > 0 {
		return prog, p.errors[0]
	}
	return prog, nil
}

// Errors returns every error collected during a ParseProgram call,
// including ones after the first (used for batch diagnostics).
func (p *Parser) Errors() []error { return p.errors }

func (p *Parser) parseQualifiedName() (string, error) {
	tok, err := p.expect(lexer.TOKEN_IDENT)
	if err != nil {
		return "", err
	}
	name := tok.Lexeme
	for p.current.Type == lexer.TOKEN_DOT {
		p.advance()
		tok, err = p.expect(lexer.TOKEN_IDENT)
		if err != nil {
			return "", err
		}
		name += "." + tok.Lexeme
	}
	return name, nil
}

func (p *Parser) parseModuleDecl() (*ast.ModuleDecl, error) {
	pos := p.pos()
	p.advance() // 'mod'
	path, err := p.parseQualifiedName()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TOKEN_SEMICOLON); err != nil {
		return nil, err
	}
	return &ast.ModuleDecl{Base: ast.NewBase(pos), Path: path}, nil
}

func (p *Parser) parseImport() (*ast.ImportDecl, error) {
	pos := p.pos()
	p.advance() // 'import' or 'use'
	path, err := p.parseQualifiedName()
	if err != nil {
		return nil, err
	}
	imp := &ast.ImportDecl{Base: ast.NewBase(pos), ModulePath: path}

	if p.current.Type == lexer.TOKEN_LBRACE {
		p.advance()
		if p.current.Type == lexer.TOKEN_STAR {
			imp.Wildcard = true
			p.advance()
		} else {
			for {
				tok, err := p.expect(lexer.TOKEN_IDENT)
				if err != nil {
					return nil, err
				}
				imp.Symbols = append(imp.Symbols, tok.Lexeme)
				if p.current.Type != lexer.TOKEN_COMMA {
					break
				}
				p.advance()
			}
		}
		if _, err := p.expect(lexer.TOKEN_RBRACE); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.TOKEN_SEMICOLON); err != nil {
		return nil, err
	}
	return imp, nil
}

// parseTypeName parses a (possibly fallible) type name: Ident, Ident!,
// list/dict are written as ordinary identifiers at this grammar level; the
// type checker resolves them against the known type constructors.
func (p *Parser) parseTypeName() (string, bool, error) {
	tok, err := p.expect(lexer.TOKEN_IDENT)
	if err != nil {
		return "", false, err
	}
	canFail := false
	if p.current.Type == lexer.TOKEN_BANG_POSTFIX || p.current.Type == lexer.TOKEN_NOT {
		canFail = true
		p.advance()
	}
	return tok.Lexeme, canFail, nil
}

func (p *Parser) parseClass() (*ast.ClassDecl, error) {
	pos := p.pos()
	sealed := false
	if p.current.Type == lexer.TOKEN_SEAL {
		sealed = true
		p.advance()
	}
	if _, err := p.expect(lexer.TOKEN_CLASS); err != nil {
		return nil, err
	}
	name, err := p.expect(lexer.TOKEN_IDENT)
	if err != nil {
		return nil, err
	}
	class := &ast.ClassDecl{Base: ast.NewBase(pos), Name: name.Lexeme, Sealed: sealed}

	if p.current.Type == lexer.TOKEN_LBRACKET {
		p.advance()
		for {
			tp, err := p.expect(lexer.TOKEN_IDENT)
			if err != nil {
				return nil, err
			}
			class.TypeParams = append(class.TypeParams, tp.Lexeme)
			if p.current.Type != lexer.TOKEN_COMMA {
				break
			}
			p.advance()
		}
		if _, err := p.expect(lexer.TOKEN_RBRACKET); err != nil {
			return nil, err
		}
	}

	if p.current.Type == lexer.TOKEN_COLON {
		p.advance()
		parent, err := p.expect(lexer.TOKEN_IDENT)
		if err != nil {
			return nil, err
		}
		class.ParentName = parent.Lexeme
	}

	if _, err := p.expect(lexer.TOKEN_LBRACE); err != nil {
		return nil, err
	}

	for p.current.Type != lexer.TOKEN_RBRACE && p.current.Type != lexer.TOKEN_EOF {
		if err := p.parseClassMember(class); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.TOKEN_RBRACE); err != nil {
		return nil, err
	}
	return class, nil
}

func (p *Parser) parseClassMember(class *ast.ClassDecl) error {
	vis := ast.VisPublic
	switch p.current.Type {
	case lexer.TOKEN_PUB:
		vis = ast.VisPublic
		p.advance()
	case lexer.TOKEN_PRIV:
		vis = ast.VisPrivate
		p.advance()
	case lexer.TOKEN_PROT:
		vis = ast.VisProtected
		p.advance()
	}

	static := false
	if p.current.Type == lexer.TOKEN_STATIC {
		static = true
		p.advance()
	}
	sealed := false
	if p.current.Type == lexer.TOKEN_SEAL {
		sealed = true
		p.advance()
	}

	switch p.current.Type {
	case lexer.TOKEN_NEW:
		ctor, err := p.parseConstructor()
		if err != nil {
			return err
		}
		class.Constructor = ctor
		return nil
	case lexer.TOKEN_OP:
		op, err := p.parseOperatorOverload(vis)
		if err != nil {
			return err
		}
		class.Methods = append(class.Methods, op)
		return nil
	case lexer.TOKEN_FN:
		method, err := p.parseFunction(static, sealed, vis)
		if err != nil {
			return err
		}
		class.Methods = append(class.Methods, method)
		return nil
	default:
		field, err := p.parseField(static, vis)
		if err != nil {
			return err
		}
		class.Fields = append(class.Fields, *field)
		return nil
	}
}

func (p *Parser) parseField(static bool, vis ast.Visibility) (*ast.Field, error) {
	pos := p.pos()
	name, err := p.expect(lexer.TOKEN_IDENT)
	if err != nil {
		return nil, err
	}
	field := &ast.Field{Pos: pos, Name: name.Lexeme, Static: static, Visibility: vis}

	if p.current.Type == lexer.TOKEN_COLON {
		p.advance()
		tname, _, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		field.Type = tname
	}
	if p.current.Type == lexer.TOKEN_ASSIGN {
		p.advance()
		expr, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		field.Initializer = expr
	}
	if _, err := p.expect(lexer.TOKEN_SEMICOLON); err != nil {
		return nil, err
	}
	return field, nil
}

func (p *Parser) parseConstructor() (*ast.FunctionDecl, error) {
	pos := p.pos()
	p.advance() // 'new'
	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FunctionDecl{Base: ast.NewBase(pos), Name: "new", Params: params, Body: body}, nil
}

var operatorOverloadNames = map[lexer.TokenType]string{
	lexer.TOKEN_PLUS:    "op$add",
	lexer.TOKEN_MINUS:   "op$sub",
	lexer.TOKEN_STAR:    "op$mul",
	lexer.TOKEN_SLASH:   "op$div",
	lexer.TOKEN_PERCENT: "op$mod",
	lexer.TOKEN_EQ:      "op$eq",
	lexer.TOKEN_NEQ:     "op$neq",
	lexer.TOKEN_LT:      "op$lt",
	lexer.TOKEN_LTE:     "op$lte",
	lexer.TOKEN_GT:      "op$gt",
	lexer.TOKEN_GTE:     "op$gte",
	lexer.TOKEN_NOT:     "op$not",
}

func (p *Parser) parseOperatorOverload(vis ast.Visibility) (*ast.FunctionDecl, error) {
	pos := p.pos()
	p.advance() // 'op'

	var opText string
	switch p.current.Type {
	case lexer.TOKEN_LBRACKET:
		// index_get: `op [] (i:int)->T`
		p.advance()
		if _, err := p.expect(lexer.TOKEN_RBRACKET); err != nil {
			return nil, err
		}
		opText = "op$index_get"
	default:
		mangled, ok := operatorOverloadNames[p.current.Type]
		if !ok {
			return nil, p.errf("'%s' is not an overloadable operator", p.current.Type)
		}
		opText = mangled
		p.advance()
	}

	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	retType := ""
	if p.current.Type == lexer.TOKEN_ARROW {
		p.advance()
		retType, _, err = p.parseTypeName()
		if err != nil {
			return nil, err
		}
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FunctionDecl{
		Base: ast.NewBase(pos), Name: opText, Params: params, ReturnType: retType,
		Body: body, Visibility: vis, IsOperator: true, OperatorOp: opText,
	}, nil
}

func (p *Parser) parseParams() ([]ast.Param, error) {
	if _, err := p.expect(lexer.TOKEN_LPAREN); err != nil {
		return nil, err
	}
	var params []ast.Param
	for p.current.Type != lexer.TOKEN_RPAREN {
		name, err := p.expect(lexer.TOKEN_IDENT)
		if err != nil {
			return nil, err
		}
		param := ast.Param{Name: name.Lexeme}
		if p.current.Type == lexer.TOKEN_COLON {
			p.advance()
			tname, canFail, err := p.parseTypeName()
			if err != nil {
				return nil, err
			}
			param.Type = tname
			param.CanFail = canFail
		}
		params = append(params, param)
		if p.current.Type != lexer.TOKEN_COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(lexer.TOKEN_RPAREN); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) parseFunction(static, sealed bool, vis ast.Visibility) (*ast.FunctionDecl, error) {
	pos := p.pos()
	if _, err := p.expect(lexer.TOKEN_FN); err != nil {
		return nil, err
	}
	name, err := p.expect(lexer.TOKEN_IDENT)
	if err != nil {
		return nil, err
	}
	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	fn := &ast.FunctionDecl{
		Base: ast.NewBase(pos), Name: name.Lexeme, Params: params,
		Static: static, Sealed: sealed, Visibility: vis,
	}
	if p.current.Type == lexer.TOKEN_ARROW {
		p.advance()
		retType, canFail, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		fn.ReturnType = retType
		fn.CanFail = canFail
	}
	// A bare trailing '!' with no '->' still marks the function fallible
	// over an implicit return type; accept it defensively.
	if fn.ReturnType == "" && p.current.Type == lexer.TOKEN_NOT {
		fn.CanFail = true
		p.advance()
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	fn.Body = body
	return fn, nil
}

func (p *Parser) parseFFIFunction() (*ast.FunctionDecl, error) {
	pos := p.pos()
	p.advance() // '@ffi'
	if _, err := p.expect(lexer.TOKEN_LPAREN); err != nil {
		return nil, err
	}
	libTok, err := p.expect(lexer.TOKEN_STRING)
	if err != nil {
		return nil, err
	}
	info := &ast.FFIInfo{LibName: libTok.Lexeme}
	for p.current.Type == lexer.TOKEN_COMMA {
		p.advance()
		key, err := p.expect(lexer.TOKEN_IDENT)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TOKEN_ASSIGN); err != nil {
			return nil, err
		}
		val, err := p.expect(lexer.TOKEN_STRING)
		if err != nil {
			return nil, err
		}
		if key.Lexeme == "sig" {
			info.Signature = val.Lexeme
		}
	}
	if _, err := p.expect(lexer.TOKEN_RPAREN); err != nil {
		return nil, err
	}

	if _, err := p.expect(lexer.TOKEN_FN); err != nil {
		return nil, err
	}
	name, err := p.expect(lexer.TOKEN_IDENT)
	if err != nil {
		return nil, err
	}
	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	fn := &ast.FunctionDecl{Base: ast.NewBase(pos), Name: name.Lexeme, Params: params, FFI: info}
	if p.current.Type == lexer.TOKEN_ARROW {
		p.advance()
		retType, canFail, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		fn.ReturnType = retType
		fn.CanFail = canFail
	}
	// An @ffi declaration has no body; it is terminated by ';' rather than
	// a block.
	if _, err := p.expect(lexer.TOKEN_SEMICOLON); err != nil {
		return nil, err
	}
	return fn, nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseBlock() (*ast.BlockStmt, error) {
	pos := p.pos()
	if _, err := p.expect(lexer.TOKEN_LBRACE); err != nil {
		return nil, err
	}
	block := &ast.BlockStmt{Base: ast.NewBase(pos)}
	for p.current.Type != lexer.TOKEN_RBRACE && p.current.Type != lexer.TOKEN_EOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		block.Statements = append(block.Statements, stmt)
	}
	if _, err := p.expect(lexer.TOKEN_RBRACE); err != nil {
		return nil, err
	}
	return block, nil
}

func (p *Parser) parseStatement() (ast.Stmt, error) {
	switch p.current.Type {
	case lexer.TOKEN_LET:
		return p.parseVarDecl()
	case lexer.TOKEN_IF:
		return p.parseIf()
	case lexer.TOKEN_WHILE:
		return p.parseWhile()
	case lexer.TOKEN_FOR:
		return p.parseForIn()
	case lexer.TOKEN_LOOP:
		return p.parseLoop()
	case lexer.TOKEN_RETURN:
		return p.parseReturn()
	case lexer.TOKEN_BREAK:
		pos := p.pos()
		p.advance()
		if _, err := p.expect(lexer.TOKEN_SEMICOLON); err != nil {
			return nil, err
		}
		return &ast.BreakStmt{Base: ast.NewBase(pos)}, nil
	case lexer.TOKEN_CONTINUE:
		pos := p.pos()
		p.advance()
		if _, err := p.expect(lexer.TOKEN_SEMICOLON); err != nil {
			return nil, err
		}
		return &ast.ContinueStmt{Base: ast.NewBase(pos)}, nil
	case lexer.TOKEN_LBRACE:
		return p.parseBlock()
	default:
		return p.parseExprStatement()
	}
}

func (p *Parser) parseVarDecl() (ast.Stmt, error) {
	pos := p.pos()
	p.advance() // 'let'
	name, err := p.expect(lexer.TOKEN_IDENT)
	if err != nil {
		return nil, err
	}
	decl := &ast.VarDeclStmt{Base: ast.NewBase(pos), Name: name.Lexeme}
	if p.current.Type == lexer.TOKEN_COLON {
		p.advance()
		tname, _, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		decl.Type = tname
	}
	if p.current.Type == lexer.TOKEN_ASSIGN {
		p.advance()
		expr, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		decl.Initializer = expr
	}
	if _, err := p.expect(lexer.TOKEN_SEMICOLON); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *Parser) parseIf() (ast.Stmt, error) {
	pos := p.pos()
	p.advance() // 'if'
	cond, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	ifStmt := &ast.IfStmt{Base: ast.NewBase(pos), Condition: cond, Then: then}
	if p.current.Type == lexer.TOKEN_ELSE {
		p.advance()
		var elseStmt ast.Stmt
		if p.current.Type == lexer.TOKEN_IF {
			elseStmt, err = p.parseIf()
		} else {
			elseStmt, err = p.parseBlock()
		}
		if err != nil {
			return nil, err
		}
		ifStmt.Else = elseStmt
	}
	return ifStmt, nil
}

func (p *Parser) parseWhile() (ast.Stmt, error) {
	pos := p.pos()
	p.advance() // 'while'
	cond, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.WhileStmt{Base: ast.NewBase(pos), Condition: cond, Body: body}, nil
}

func (p *Parser) parseForIn() (ast.Stmt, error) {
	pos := p.pos()
	p.advance() // 'for'
	name, err := p.expect(lexer.TOKEN_IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TOKEN_IN); err != nil {
		return nil, err
	}
	iter, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.ForInStmt{Base: ast.NewBase(pos), VarName: name.Lexeme, Iterable: iter, Body: body}, nil
}

func (p *Parser) parseLoop() (ast.Stmt, error) {
	pos := p.pos()
	p.advance() // 'loop'
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.LoopStmt{Base: ast.NewBase(pos), Body: body}, nil
}

func (p *Parser) parseReturn() (ast.Stmt, error) {
	pos := p.pos()
	p.advance() // 'return'
	ret := &ast.ReturnStmt{Base: ast.NewBase(pos)}
	if p.current.Type != lexer.TOKEN_SEMICOLON {
		expr, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		ret.Value = expr
	}
	if _, err := p.expect(lexer.TOKEN_SEMICOLON); err != nil {
		return nil, err
	}
	return ret, nil
}

func (p *Parser) parseExprStatement() (ast.Stmt, error) {
	pos := p.pos()
	expr, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TOKEN_SEMICOLON); err != nil {
		return nil, err
	}
	return &ast.ExprStmt{Base: ast.NewBase(pos), Expr: expr}, nil
}

// ---------------------------------------------------------------------------
// Expressions: precedence-climbing
// ---------------------------------------------------------------------------

type precedence int

const (
	precLowest     precedence = iota
	precAssign                // = += -=  (right-assoc)
	precOr                    // ||
	precAnd                   // &&
	precEquality              // == !=
	precComparison            // < <= > >=
	precAdditive              // + -
	precMultiplic             // * / %
	precUnary                 // ! -x
	precPostfix               // () . [] as is
)

func binaryPrecedence(tt lexer.TokenType) precedence {
	switch tt {
	case lexer.TOKEN_OR:
		return precOr
	case lexer.TOKEN_AND:
		return precAnd
	case lexer.TOKEN_EQ, lexer.TOKEN_NEQ:
		return precEquality
	case lexer.TOKEN_LT, lexer.TOKEN_LTE, lexer.TOKEN_GT, lexer.TOKEN_GTE:
		return precComparison
	case lexer.TOKEN_PLUS, lexer.TOKEN_MINUS:
		return precAdditive
	case lexer.TOKEN_STAR, lexer.TOKEN_SLASH, lexer.TOKEN_PERCENT:
		return precMultiplic
	default:
		return precLowest
	}
}

func (p *Parser) parseExpression(minPrec precedence) (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		if p.current.Type == lexer.TOKEN_ASSIGN && minPrec <= precAssign {
			pos := p.pos()
			p.advance()
			value, err := p.parseExpression(precAssign)
			if err != nil {
				return nil, err
			}
			left = &ast.AssignExpr{Base: ast.NewBase(pos), Target: left, Value: value}
			continue
		}
		if (p.current.Type == lexer.TOKEN_PLUS_ASSIGN || p.current.Type == lexer.TOKEN_MINUS_ASSIGN) && minPrec <= precAssign {
			pos := p.pos()
			op := p.current.Type
			p.advance()
			value, err := p.parseExpression(precAssign)
			if err != nil {
				return nil, err
			}
			left = &ast.CompoundAssignExpr{Base: ast.NewBase(pos), Target: left, Operator: op, Value: value}
			continue
		}

		prec := binaryPrecedence(p.current.Type)
		if prec == precLowest || prec < minPrec {
			break
		}
		pos := p.pos()
		op := p.current.Type
		p.advance()
		right, err := p.parseExpression(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Base: ast.NewBase(pos), Left: left, Operator: op, Right: right}
	}

	return left, nil
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	if p.current.Type == lexer.TOKEN_NOT || p.current.Type == lexer.TOKEN_MINUS {
		pos := p.pos()
		op := p.current.Type
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Base: ast.NewBase(pos), Operator: op, Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (ast.Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.current.Type {
		case lexer.TOKEN_LPAREN:
			pos := p.pos()
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			expr = &ast.CallExpr{Base: ast.NewBase(pos), Callee: expr, Args: args}
		case lexer.TOKEN_DOT:
			pos := p.pos()
			p.advance()
			name, err := p.expect(lexer.TOKEN_IDENT)
			if err != nil {
				return nil, err
			}
			expr = &ast.FieldAccessExpr{Base: ast.NewBase(pos), Object: expr, Field: name.Lexeme}
		case lexer.TOKEN_LBRACKET:
			pos := p.pos()
			p.advance()
			idx, err := p.parseExpression(precLowest)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TOKEN_RBRACKET); err != nil {
				return nil, err
			}
			expr = &ast.IndexExpr{Base: ast.NewBase(pos), Object: expr, Index: idx}
		case lexer.TOKEN_AS:
			pos := p.pos()
			p.advance()
			tname, _, err := p.parseTypeName()
			if err != nil {
				return nil, err
			}
			expr = &ast.CastExpr{Base: ast.NewBase(pos), Value: expr, TypeName: tname}
		case lexer.TOKEN_IS:
			pos := p.pos()
			p.advance()
			tname, _, err := p.parseTypeName()
			if err != nil {
				return nil, err
			}
			expr = &ast.TypeTestExpr{Base: ast.NewBase(pos), Value: expr, TypeName: tname}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parseArgs() ([]ast.Expr, error) {
	if _, err := p.expect(lexer.TOKEN_LPAREN); err != nil {
		return nil, err
	}
	var args []ast.Expr
	for p.current.Type != lexer.TOKEN_RPAREN {
		arg, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.current.Type != lexer.TOKEN_COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(lexer.TOKEN_RPAREN); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	pos := p.pos()
	switch p.current.Type {
	case lexer.TOKEN_INT:
		v, err := strconv.ParseInt(p.current.Lexeme, 10, 64)
		if err != nil {
			return nil, p.errf("invalid integer literal %q", p.current.Lexeme)
		}
		p.advance()
		return &ast.LiteralExpr{Base: ast.NewBase(pos), Kind: ast.LitInt, Int: v}, nil
	case lexer.TOKEN_FLOAT:
		v, err := strconv.ParseFloat(p.current.Lexeme, 64)
		if err != nil {
			return nil, p.errf("invalid float literal %q", p.current.Lexeme)
		}
		p.advance()
		return &ast.LiteralExpr{Base: ast.NewBase(pos), Kind: ast.LitFloat, Float: v}, nil
	case lexer.TOKEN_STRING:
		s := p.current.Lexeme
		p.advance()
		return &ast.LiteralExpr{Base: ast.NewBase(pos), Kind: ast.LitString, String: s}, nil
	case lexer.TOKEN_TRUE:
		p.advance()
		return &ast.LiteralExpr{Base: ast.NewBase(pos), Kind: ast.LitBool, Bool: true}, nil
	case lexer.TOKEN_FALSE:
		p.advance()
		return &ast.LiteralExpr{Base: ast.NewBase(pos), Kind: ast.LitBool, Bool: false}, nil
	case lexer.TOKEN_NULL:
		p.advance()
		return &ast.LiteralExpr{Base: ast.NewBase(pos), Kind: ast.LitNull}, nil
	case lexer.TOKEN_SELF:
		p.advance()
		return &ast.SelfExpr{Base: ast.NewBase(pos)}, nil
	case lexer.TOKEN_IDENT:
		name := p.current.Lexeme
		p.advance()
		return &ast.IdentifierExpr{Base: ast.NewBase(pos), Name: name}, nil
	case lexer.TOKEN_NEW:
		return p.parseNewObject()
	case lexer.TOKEN_LBRACKET:
		return p.parseListLiteral()
	case lexer.TOKEN_LPAREN:
		p.advance()
		expr, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TOKEN_RPAREN); err != nil {
			return nil, err
		}
		return expr, nil
	default:
		return nil, p.errf("unexpected token %s in expression", p.current.Type)
	}
}

func (p *Parser) parseNewObject() (ast.Expr, error) {
	pos := p.pos()
	p.advance() // 'new'
	name, err := p.expect(lexer.TOKEN_IDENT)
	if err != nil {
		return nil, err
	}
	newExpr := &ast.NewObjectExpr{Base: ast.NewBase(pos), ClassName: name.Lexeme}
	if p.current.Type == lexer.TOKEN_LBRACKET {
		p.advance()
		for {
			t, err := p.expect(lexer.TOKEN_IDENT)
			if err != nil {
				return nil, err
			}
			newExpr.TypeArgs = append(newExpr.TypeArgs, t.Lexeme)
			if p.current.Type != lexer.TOKEN_COMMA {
				break
			}
			p.advance()
		}
		if _, err := p.expect(lexer.TOKEN_RBRACKET); err != nil {
			return nil, err
		}
	}
	args, err := p.parseArgs()
	if err != nil {
		return nil, err
	}
	newExpr.Args = args
	return newExpr, nil
}

func (p *Parser) parseListLiteral() (ast.Expr, error) {
	pos := p.pos()
	p.advance() // '['
	lit := &ast.ListLiteralExpr{Base: ast.NewBase(pos)}
	for p.current.Type != lexer.TOKEN_RBRACKET {
		el, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		lit.Elements = append(lit.Elements, el)
		if p.current.Type != lexer.TOKEN_COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(lexer.TOKEN_RBRACKET); err != nil {
		return nil, err
	}
	return lit, nil
}
