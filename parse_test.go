package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTree builds a primed parser with the builtin operator table
// over the given source.
func newTestTree(src string) *tree {
	l := Lex(false)
	go feedLines(l, strings.Split(src, "\n"))
	tr := NewTree(l.Tokens())
	installBinops(tr)
	tr.Prime()
	return tr
}

func parseExprString(t *testing.T, src string) node {
	t.Helper()
	n := newTestTree(src).parseExpression()
	require.NotNil(t, n)
	return n
}

func TestPrecedenceMulBindsOverAdd(t *testing.T) {
	n := parseExprString(t, "a+b*c")

	add, ok := n.(*binaryNode)
	require.True(t, ok)
	assert.Equal(t, '+', add.op)

	_, ok = add.left.(*variableNode)
	assert.True(t, ok)

	mul, ok := add.right.(*binaryNode)
	require.True(t, ok)
	assert.Equal(t, '*', mul.op)
}

func TestPrecedenceAddBindsOverCompare(t *testing.T) {
	n := parseExprString(t, "a<b+c")

	cmp, ok := n.(*binaryNode)
	require.True(t, ok)
	assert.Equal(t, '<', cmp.op)

	add, ok := cmp.right.(*binaryNode)
	require.True(t, ok)
	assert.Equal(t, '+', add.op)
}

func TestAssignmentFoldsLeft(t *testing.T) {
	n := parseExprString(t, "a = b = c")

	outer, ok := n.(*binaryNode)
	require.True(t, ok)
	assert.Equal(t, '=', outer.op)

	inner, ok := outer.left.(*binaryNode)
	require.True(t, ok)
	assert.Equal(t, '=', inner.op)

	c, ok := outer.right.(*variableNode)
	require.True(t, ok)
	assert.Equal(t, "c", c.name)
}

func TestCallArguments(t *testing.T) {
	n := parseExprString(t, "f(1, x+2, g())")

	call, ok := n.(*fnCallNode)
	require.True(t, ok)
	assert.Equal(t, "f", call.callee)
	require.Len(t, call.args, 3)

	inner, ok := call.args[2].(*fnCallNode)
	require.True(t, ok)
	assert.Equal(t, "g", inner.callee)
	assert.Empty(t, inner.args)
}

func TestIfRequiresThenAndElse(t *testing.T) {
	n := parseExprString(t, "if x then 1 else 0")
	ifn, ok := n.(*ifNode)
	require.True(t, ok)
	assert.NotNil(t, ifn.ifN)
	assert.NotNil(t, ifn.thenN)
	assert.NotNil(t, ifn.elseN)

	assert.Nil(t, newTestTree("if x then 1").parseExpression())
}

func TestForStepIsOptional(t *testing.T) {
	n := parseExprString(t, "for i = 1, i<4 in i")
	loop, ok := n.(*forNode)
	require.True(t, ok)
	assert.Equal(t, "i", loop.counter)
	assert.Nil(t, loop.step)

	n = parseExprString(t, "for i = 1, i<10, 2 in i")
	loop, ok = n.(*forNode)
	require.True(t, ok)
	assert.NotNil(t, loop.step)
}

func TestVarBindings(t *testing.T) {
	n := parseExprString(t, "var a = 1, b in a+b")
	v, ok := n.(*variableExprNode)
	require.True(t, ok)
	require.Len(t, v.vars, 2)
	assert.Equal(t, "a", v.vars[0].name)
	assert.NotNil(t, v.vars[0].init)
	assert.Equal(t, "b", v.vars[1].name)
	assert.Nil(t, v.vars[1].init)
}

func TestMalformedNumberReported(t *testing.T) {
	assert.Nil(t, newTestTree("1.2.3").parseExpression())
}

func TestUserOperatorInstallsMidSession(t *testing.T) {
	tr := newTestTree("def binary| 5 (a b) a+b\n1|0")

	fn := tr.parseDefinition()
	require.NotNil(t, fn)
	assert.Equal(t, "binary|", fn.proto.name)
	assert.Equal(t, protoBinary, fn.proto.kind)
	assert.Equal(t, 5, fn.proto.precedence)
	assert.Equal(t, 5, tr.binaryOpPrecedence['|'])

	// The very next expression can use the operator.
	n := tr.parseTopLevelExpr()
	require.NotNil(t, n)
	or, ok := n.body.(*binaryNode)
	require.True(t, ok)
	assert.Equal(t, '|', or.op)
}

func TestUnaryOperatorPrototype(t *testing.T) {
	fn := newTestTree("def unary!(v) if v then 0 else 1").parseDefinition()
	require.NotNil(t, fn)
	assert.Equal(t, "unary!", fn.proto.name)
	assert.Equal(t, protoUnary, fn.proto.kind)
	assert.Equal(t, []string{"v"}, fn.proto.args)
}

func TestOperatorArityChecked(t *testing.T) {
	assert.Nil(t, newTestTree("def binary$ (a) a").parseDefinition())
	assert.Nil(t, newTestTree("def unary! (a b) a").parseDefinition())
}

func TestOperatorPrecedenceRange(t *testing.T) {
	assert.Nil(t, newTestTree("def binary@ 101 (a b) a").parseDefinition())
	assert.Nil(t, newTestTree("def binary@ 0.5 (a b) a").parseDefinition())
}

func TestExternPrototype(t *testing.T) {
	proto := newTestTree("extern sin(x)").parseExtern()
	require.NotNil(t, proto)
	assert.Equal(t, "sin", proto.name)
	assert.Equal(t, []string{"x"}, proto.args)
	assert.Equal(t, protoFunction, proto.kind)
}

func TestTopLevelExpressionIsWrapped(t *testing.T) {
	fn := newTestTree("4+5").parseTopLevelExpr()
	require.NotNil(t, fn)
	assert.True(t, fn.isAnon())
	assert.Empty(t, fn.proto.args)
}

func TestMalformedPrototypeReturnsNil(t *testing.T) {
	tr := newTestTree("def ( )\n1+2")
	assert.Nil(t, tr.parseDefinition())

	// Single-token resync, the way the driver does it: discard one
	// token after each failure until a form parses cleanly.
	tr.next()                           // eat '('
	assert.Nil(t, tr.parseTopLevelExpr()) // ')' is not an expression
	tr.next()                           // eat ')'
	n := tr.parseTopLevelExpr()
	require.NotNil(t, n)
	add, ok := n.body.(*binaryNode)
	require.True(t, ok)
	assert.Equal(t, '+', add.op)
}
