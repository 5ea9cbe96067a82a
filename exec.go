package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ajsnow/llvm"
	"github.com/davecgh/go-spew/spew"
)

// interp pulls one top-level form at a time through the
// parse → codegen → run pipeline.
type interp struct {
	tree *tree
	cg   *codegen

	out      io.Writer // evaluation results
	printAst bool
}

func NewInterp(t *tree, cg *codegen, out io.Writer, printAst bool) *interp {
	return &interp{
		tree:     t,
		cg:       cg,
		out:      out,
		printAst: printAst,
	}
}

// installBinops declares the builtin binary operators.
// 1 is the lowest precedence.
func installBinops(t *tree) {
	t.AddBinop('=', 2)
	t.AddBinop('<', 10)
	t.AddBinop('+', 20)
	t.AddBinop('-', 30)
	t.AddBinop('*', 40)
}

// Run executes the main interpreter loop until end of input.
//
//	top ::= definition | external | expression | ';'
func (in *interp) Run() {
	in.tree.Prime()
	for {
		switch {
		case in.tree.token.kind == tokEOF:
			return
		case in.tree.char(';'):
			in.tree.next() // ignore top-level semicolons
		case in.tree.token.kind == tokDefine:
			in.handleDefinition()
		case in.tree.token.kind == tokExtern:
			in.handleExtern()
		default:
			in.handleTopLevelExpression()
		}
	}
}

func (in *interp) handleDefinition() {
	fn := in.tree.parseDefinition()
	if fn == nil {
		in.tree.next() // skip one token for error recovery
		return
	}
	in.dump(fn)

	f := in.cg.Function(fn)
	if f.IsNil() {
		return
	}
	fmt.Fprintln(os.Stderr, "Parsed a function definition.")
	f.Dump()
}

func (in *interp) handleExtern() {
	proto := in.tree.parseExtern()
	if proto == nil {
		in.tree.next() // skip one token for error recovery
		return
	}
	in.dump(proto)

	in.cg.AddProto(proto)
	f := in.cg.Prototype(proto)
	if f.IsNil() {
		return
	}
	fmt.Fprintln(os.Stderr, "Parsed an extern")
	f.Dump()
}

func (in *interp) handleTopLevelExpression() {
	fn := in.tree.parseTopLevelExpr()
	if fn == nil {
		in.tree.next() // skip one token for error recovery
		return
	}
	in.dump(fn)

	f := in.cg.Function(fn)
	if f.IsNil() {
		return
	}

	if !in.cg.jit {
		fmt.Fprintln(os.Stderr, "Parsed a top-level expression.")
		f.Dump()
		// The anonymous wrapper is not part of the program proper;
		// erase it so emitted modules carry definitions and externs
		// only.
		f.EraseFromParentAsFunction()
		return
	}

	ret := in.cg.engine.RunFunction(f, []llvm.GenericValue{})
	fmt.Fprintf(in.out, "Evaluated to %f\n", ret.Float(llvm.DoubleType()))

	// The module now belongs to the JIT; open a fresh one.
	in.cg.RecycleModule()
}

func (in *interp) dump(n node) {
	if in.printAst {
		spew.Dump(n)
	}
}
