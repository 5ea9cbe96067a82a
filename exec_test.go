package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runSource drives the whole pipeline in JIT mode and returns the
// evaluation output.
func runSource(t *testing.T, src string) string {
	t.Helper()

	l := Lex(false)
	go feedLines(l, strings.Split(src, "\n"))

	tr := NewTree(l.Tokens())
	installBinops(tr)

	cg, err := NewCodegen(true, true)
	require.NoError(t, err)

	var out bytes.Buffer
	NewInterp(tr, cg, &out, false).Run()
	return out.String()
}

func TestEvalArithmetic(t *testing.T) {
	assert.Equal(t, "Evaluated to 9.000000\n", runSource(t, "4+5;"))
}

func TestEvalDefinitionThenCall(t *testing.T) {
	out := runSource(t, "def f(x) x*x;\nf(7);")
	assert.Equal(t, "Evaluated to 49.000000\n", out)
}

func TestEvalSurvivesModuleRecycling(t *testing.T) {
	// The first call hands its module to the JIT; the second call only
	// works if the prototype registry re-declares f into the fresh
	// module.
	out := runSource(t, "def f(x) x+1;\nf(41);\nf(1);")
	assert.Equal(t, "Evaluated to 42.000000\nEvaluated to 2.000000\n", out)
}

func TestEvalExtern(t *testing.T) {
	out := runSource(t, "extern sin(x);\nsin(0);")
	assert.Equal(t, "Evaluated to 0.000000\n", out)
}

func TestEvalFib(t *testing.T) {
	out := runSource(t, "def fib(n) if n<2 then n else fib(n-1)+fib(n-2);\nfib(10);")
	assert.Equal(t, "Evaluated to 55.000000\n", out)
}

func TestEvalUserBinaryOperator(t *testing.T) {
	out := runSource(t, "def binary| 5 (a b) if a then 1 else if b then 1 else 0;\n1|0;")
	assert.Equal(t, "Evaluated to 1.000000\n", out)
}

func TestEvalUserUnaryOperator(t *testing.T) {
	out := runSource(t, "def unary!(v) if v then 0 else 1;\n!1;\n!0;")
	assert.Equal(t, "Evaluated to 0.000000\nEvaluated to 1.000000\n", out)
}

func TestEvalIfSelectsBranch(t *testing.T) {
	out := runSource(t, "if 1 then 2 else 3;\nif 0 then 2 else 3;")
	assert.Equal(t, "Evaluated to 2.000000\nEvaluated to 3.000000\n", out)
}

func TestEvalForReturnsZero(t *testing.T) {
	out := runSource(t, "def noop(x) 0;\nfor i = 1, i<4 in noop(i);")
	assert.Equal(t, "Evaluated to 0.000000\n", out)
}

func TestEvalVarInitializerSeesOuterScope(t *testing.T) {
	out := runSource(t, "var a = 1 in var a = a+1 in a;")
	assert.Equal(t, "Evaluated to 2.000000\n", out)
}

func TestEvalParallelVarBindings(t *testing.T) {
	out := runSource(t, "var a=1, b=2 in a+b;")
	assert.Equal(t, "Evaluated to 3.000000\n", out)
}

func TestEvalAssignment(t *testing.T) {
	out := runSource(t, "var x = 1 in (x = x+2);")
	assert.Equal(t, "Evaluated to 3.000000\n", out)
}

func TestEvalLoopWithMutation(t *testing.T) {
	// The end condition is checked after the body and before the
	// increment, so with i<n the body sees i = 1..n.
	out := runSource(t, "def sum(n) var s = 0 in (for i = 1, i<n in (s = s+i)) + s;\nsum(4);")
	assert.Equal(t, "Evaluated to 10.000000\n", out)
}

func TestArityMismatchEvaluatesNothing(t *testing.T) {
	out := runSource(t, "def f(x) x;\nf(1,2);")
	assert.NotContains(t, out, "Evaluated")
}

func TestUnknownNamesEvaluateNothing(t *testing.T) {
	assert.NotContains(t, runSource(t, "nosuchvariable;"), "Evaluated")
	assert.NotContains(t, runSource(t, "nosuchfunction(1);"), "Evaluated")
}

func TestAssignmentTargetMustBeVariable(t *testing.T) {
	out := runSource(t, "var x = 1 in ((x+1) = 2);")
	assert.NotContains(t, out, "Evaluated")
}

func TestErrorResyncKeepsReplAlive(t *testing.T) {
	out := runSource(t, "def ( )\n1+2;")
	assert.Equal(t, "Evaluated to 3.000000\n", out)
}
