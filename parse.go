package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// anonFnName wraps top-level expressions so they can be compiled like
// any other function.
const anonFnName = "__anon_expr"

// tree holds the state of the parser: the token stream, a one-token
// buffer, and the table of declared binary operators. The table is
// mutated mid-parse when a 'binary' prototype is seen, so a definition
// can use its own operator later in the same session.
type tree struct {
	tokens <-chan token
	token  token

	binaryOpPrecedence map[rune]int
}

// NewTree creates a parser for the given token stream. The operator
// table starts empty; the driver installs the builtins with AddBinop.
func NewTree(tokens <-chan token) *tree {
	return &tree{
		tokens:             tokens,
		binaryOpPrecedence: map[rune]int{},
	}
}

// AddBinop declares op as a binary operator at the given precedence.
func (t *tree) AddBinop(op rune, precedence int) {
	t.binaryOpPrecedence[op] = precedence
}

// Prime reads the first token into the buffer.
func (t *tree) Prime() {
	t.next()
}

// next advances the scan, skipping whitespace and comments. A closed
// token channel reads as tokEOF forever.
func (t *tree) next() token {
	for {
		tok, ok := <-t.tokens
		if !ok {
			t.token = token{kind: tokEOF}
			return t.token
		}
		if tok.kind != tokSpace && tok.kind != tokComment {
			t.token = tok
			return t.token
		}
	}
}

// char reports whether the current token is the single character r.
func (t *tree) char(r rune) bool {
	return t.token.kind == tokChar && t.token.val == string(r)
}

// opChar returns the current token's character when it could be an
// operator: a tokChar holding a single ASCII rune.
func (t *tree) opChar() (rune, bool) {
	if t.token.kind != tokChar {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(t.token.val)
	if r > unicode.MaxASCII {
		return 0, false
	}
	return r, true
}

// tokenPrecedence returns the precedence of the pending binary operator
// token, or -1 if the current token is not a declared binary operator.
func (t *tree) tokenPrecedence() int {
	r, ok := t.opChar()
	if !ok {
		return -1
	}
	if prec := t.binaryOpPrecedence[r]; prec > 0 {
		return prec
	}
	return -1
}

// Parsing Functions

// numberexpr ::= number
func (t *tree) parseNumberExpr() node {
	val, err := strconv.ParseFloat(t.token.val, 64)
	if err != nil {
		return t.errorf("invalid double specified")
	}
	result := &numberNode{nodeNumber, t.token.pos, val}
	t.next() // eat number
	return result
}

// parenexpr ::= '(' expression ')'
func (t *tree) parseParenExpr() node {
	t.next() // eat '('
	v := t.parseExpression()
	if v == nil {
		return nil
	}
	if !t.char(')') {
		return t.errorf("expected ')'")
	}
	t.next() // eat ')'
	return v
}

// identifierexpr
//
//	::= identifier
//	::= identifier '(' expression* ')'
func (t *tree) parseIdentifierExpr() node {
	name := t.token.val
	pos := t.token.pos

	t.next() // eat identifier
	if !t.char('(') {
		return &variableNode{nodeVariable, pos, name}
	}

	// function call
	t.next() // eat '('
	args := []node{}
	if !t.char(')') {
		for {
			arg := t.parseExpression()
			if arg == nil {
				return nil
			}
			args = append(args, arg)

			if t.char(')') {
				break
			}
			if !t.char(',') {
				return t.errorf("Expected ')' or ',' in argument list")
			}
			t.next()
		}
	}
	t.next() // eat ')'
	return &fnCallNode{nodeFnCall, pos, name, args}
}

// ifexpr ::= 'if' expression 'then' expression 'else' expression
func (t *tree) parseIfExpr() node {
	pos := t.token.pos
	t.next() // eat 'if'

	ifN := t.parseExpression()
	if ifN == nil {
		return nil
	}

	if t.token.kind != tokThen {
		return t.errorf("expected 'then'")
	}
	t.next() // eat 'then'
	thenN := t.parseExpression()
	if thenN == nil {
		return nil
	}

	if t.token.kind != tokElse {
		return t.errorf("expected 'else'")
	}
	t.next() // eat 'else'
	elseN := t.parseExpression()
	if elseN == nil {
		return nil
	}

	return &ifNode{nodeIf, pos, ifN, thenN, elseN}
}

// forexpr ::= 'for' identifier '=' expression ',' expression
//
//	(',' expression)? 'in' expression
func (t *tree) parseForExpr() node {
	pos := t.token.pos
	t.next() // eat 'for'

	if t.token.kind != tokIdentifier {
		return t.errorf("expected identifier after 'for'")
	}
	counter := t.token.val
	t.next() // eat identifier

	if !t.char('=') {
		return t.errorf("expected '=' after 'for'")
	}
	t.next() // eat '='

	start := t.parseExpression()
	if start == nil {
		return nil
	}
	if !t.char(',') {
		return t.errorf("expected ',' after 'for' start value")
	}
	t.next()

	test := t.parseExpression()
	if test == nil {
		return nil
	}

	// The step value is optional.
	var step node
	if t.char(',') {
		t.next()
		step = t.parseExpression()
		if step == nil {
			return nil
		}
	}

	if t.token.kind != tokIn {
		return t.errorf("expected 'in' after 'for'")
	}
	t.next() // eat 'in'

	body := t.parseExpression()
	if body == nil {
		return nil
	}

	return &forNode{nodeFor, pos, counter, start, test, step, body}
}

// varexpr ::= 'var' identifier ('=' expression)?
//
//	(',' identifier ('=' expression)?)* 'in' expression
func (t *tree) parseVarExpr() node {
	pos := t.token.pos
	t.next() // eat 'var'

	if t.token.kind != tokIdentifier {
		return t.errorf("expected identifier after var")
	}

	vars := []varBinding{}
	for {
		name := t.token.val
		t.next() // eat identifier

		// The initializer is optional.
		var init node
		if t.char('=') {
			t.next()
			init = t.parseExpression()
			if init == nil {
				return nil
			}
		}
		vars = append(vars, varBinding{name, init})

		if !t.char(',') {
			break
		}
		t.next()

		if t.token.kind != tokIdentifier {
			return t.errorf("expected identifier list after var")
		}
	}

	if t.token.kind != tokIn {
		return t.errorf("expected 'in' keyword after 'var'")
	}
	t.next() // eat 'in'

	body := t.parseExpression()
	if body == nil {
		return nil
	}
	return &variableExprNode{nodeVariableExpr, pos, vars, body}
}

// primary
//
//	::= identifierexpr
//	::= numberexpr
//	::= parenexpr
//	::= ifexpr
//	::= forexpr
//	::= varexpr
func (t *tree) parsePrimary() node {
	switch t.token.kind {
	case tokIdentifier:
		return t.parseIdentifierExpr()
	case tokNumber:
		return t.parseNumberExpr()
	case tokIf:
		return t.parseIfExpr()
	case tokFor:
		return t.parseForExpr()
	case tokVariable:
		return t.parseVarExpr()
	case tokChar:
		if t.char('(') {
			return t.parseParenExpr()
		}
	}
	return t.errorf("unknown token when expecting an expression")
}

// unary
//
//	::= primary
//	::= op unary
//
// Delimiters never start a unary expression; everything else that is a
// single ASCII character is taken as an operator and resolved by
// codegen against the matching "unary<c>" function.
func (t *tree) parseUnary() node {
	r, ok := t.opChar()
	if !ok || strings.ContainsRune("(),;", r) {
		return t.parsePrimary()
	}

	pos := t.token.pos
	t.next() // eat the operator
	if operand := t.parseUnary(); operand != nil {
		return &unaryNode{nodeUnary, pos, r, operand}
	}
	return nil
}

// binoprhs ::= (binop unary)*
func (t *tree) parseBinOpRHS(exprPrec int, lhs node) node {
	for {
		tokenPrec := t.tokenPrecedence()

		// If this is a binop that binds at least as tightly as the
		// current binop, consume it, otherwise we are done.
		if tokenPrec < exprPrec {
			return lhs
		}

		binOp, _ := t.opChar()
		pos := t.token.pos
		t.next() // eat binop

		rhs := t.parseUnary()
		if rhs == nil {
			return nil
		}

		// If binOp binds less tightly with rhs than the operator after
		// rhs, let the pending operator take rhs as its lhs.
		if tokenPrec < t.tokenPrecedence() {
			rhs = t.parseBinOpRHS(tokenPrec+1, rhs)
			if rhs == nil {
				return nil
			}
		}

		lhs = &binaryNode{nodeBinary, pos, binOp, lhs, rhs}
	}
}

// expression ::= unary binoprhs
func (t *tree) parseExpression() node {
	lhs := t.parseUnary()
	if lhs == nil {
		return nil
	}
	return t.parseBinOpRHS(0, lhs)
}

// prototype
//
//	::= identifier '(' identifier* ')'
//	::= 'unary' op '(' identifier ')'
//	::= 'binary' op number? '(' identifier identifier ')'
func (t *tree) parsePrototype() *fnPrototypeNode {
	pos := t.token.pos
	name := ""
	kind := protoFunction
	precedence := 0

	switch t.token.kind {
	case tokIdentifier:
		name = t.token.val
		t.next()
	case tokUnary:
		t.next()
		r, ok := t.opChar()
		if !ok {
			return t.errorP("Expected unary operator")
		}
		name = "unary" + string(r)
		kind = protoUnary
		t.next()
	case tokBinary:
		t.next()
		r, ok := t.opChar()
		if !ok {
			return t.errorP("Expected binary operator")
		}
		name = "binary" + string(r)
		kind = protoBinary
		precedence = 30
		t.next()

		// Read the precedence if present.
		if t.token.kind == tokNumber {
			val, err := strconv.ParseFloat(t.token.val, 64)
			if err != nil {
				return t.errorP("invalid double specified")
			}
			if val < 1 || val > 100 {
				return t.errorP("Invalid precedence: must be 1..100")
			}
			precedence = int(val)
			t.next()
		}
	default:
		return t.errorP("Expected function name in prototype")
	}

	if !t.char('(') {
		return t.errorP("Expected '(' in prototype")
	}

	// Read the list of argument names.
	args := []string{}
	for t.next().kind == tokIdentifier {
		args = append(args, t.token.val)
	}
	if !t.char(')') {
		return t.errorP("Expected ')' in prototype")
	}
	t.next() // eat ')'

	// Verify right number of names for operator.
	if kind == protoUnary && len(args) != 1 || kind == protoBinary && len(args) != 2 {
		return t.errorP("Invalid number of operands for operator")
	}

	proto := &fnPrototypeNode{nodeFnPrototype, pos, name, args, kind, precedence}
	// Declared binary operators enter the table immediately so the rest
	// of the input can use them, including the operator's own body.
	if kind == protoBinary {
		t.AddBinop(proto.operatorName(), precedence)
	}
	return proto
}

// definition ::= 'def' prototype expression
func (t *tree) parseDefinition() *functionNode {
	pos := t.token.pos
	t.next() // eat 'def'

	proto := t.parsePrototype()
	if proto == nil {
		return nil
	}
	body := t.parseExpression()
	if body == nil {
		return nil
	}
	return &functionNode{nodeFunction, pos, proto, body}
}

// external ::= 'extern' prototype
func (t *tree) parseExtern() *fnPrototypeNode {
	t.next() // eat 'extern'
	return t.parsePrototype()
}

// toplevelexpr ::= expression
func (t *tree) parseTopLevelExpr() *functionNode {
	pos := t.token.pos
	body := t.parseExpression()
	if body == nil {
		return nil
	}

	// Wrap in an anonymous zero-argument prototype.
	proto := &fnPrototypeNode{nodeFnPrototype, pos, anonFnName, []string{}, protoFunction, 0}
	return &functionNode{nodeFunction, pos, proto, body}
}

// Helpers:
// error* print an error message and return zero values.
func (t *tree) errorf(str string) node {
	fmt.Fprintf(os.Stderr, "Error: %v (token: %q)\n", str, t.token.val)
	return nil
}

func (t *tree) errorP(str string) *fnPrototypeNode {
	t.errorf(str)
	return nil
}
