package main

import (
	"fmt"
	"os"

	"github.com/ajsnow/llvm"
)

// codegen owns one live LLVM module and its builder. In JIT mode the
// module is recycled after every top-level expression: ownership of the
// old module stays with the execution engine and a fresh one is bound
// to the engine's data layout. The prototype registry outlives all of
// this, which is what lets later expressions call functions whose
// modules were already handed to the JIT.
type codegen struct {
	module  llvm.Module
	builder llvm.Builder
	fpm     llvm.PassManager
	engine  llvm.ExecutionEngine

	jit      bool
	optimize bool
	moduleID int

	// namedValues maps in-scope names to their entry-block stack slots.
	namedValues map[string]llvm.Value
	// protos records every prototype ever seen so declarations can be
	// re-materialized into the current module on demand.
	protos map[string]*fnPrototypeNode
}

// NewCodegen initializes the native target and the first module. With
// jit set, the module is attached to a JIT execution engine and adopts
// its data layout.
func NewCodegen(jit, optimize bool) (*codegen, error) {
	if err := llvm.InitializeNativeTarget(); err != nil {
		return nil, err
	}

	c := &codegen{
		jit:         jit,
		optimize:    optimize,
		namedValues: map[string]llvm.Value{},
		protos:      map[string]*fnPrototypeNode{},
	}
	c.module = llvm.NewModule("kaleidoscope")
	c.builder = llvm.NewBuilder()
	if jit {
		engine, err := llvm.NewJITCompiler(c.module, 0)
		if err != nil {
			return nil, err
		}
		c.engine = engine
		c.module.SetDataLayout(c.engine.TargetData().String())
	}
	c.initFPM()
	return c, nil
}

// initFPM rebuilds the per-function pass pipeline for the current
// module.
func (c *codegen) initFPM() {
	c.fpm = llvm.NewFunctionPassManagerForModule(c.module)
	if c.jit {
		c.fpm.Add(c.engine.TargetData())
	}
	if c.optimize {
		c.fpm.AddPromoteMemoryToRegisterPass()
		c.fpm.AddInstructionCombiningPass()
		c.fpm.AddReassociatePass()
		c.fpm.AddGVNPass()
		c.fpm.AddCFGSimplificationPass()
	}
	c.fpm.InitializeFunc()
}

// RecycleModule opens a fresh module after the current one has been
// handed to the JIT. The prototype registry carries over; everything
// module-bound is rebuilt.
func (c *codegen) RecycleModule() {
	c.moduleID++
	c.module = llvm.NewModule(fmt.Sprintf("kaleidoscope.%d", c.moduleID))
	c.builder = llvm.NewBuilder()
	if c.jit {
		c.module.SetDataLayout(c.engine.TargetData().String())
		c.engine.AddModule(c.module)
	}
	c.initFPM()
}

// AddProto records a prototype in the registry. Extern declarations
// enter here; definitions are recorded by Function.
func (c *codegen) AddProto(n *fnPrototypeNode) {
	c.protos[n.name] = n
}

// getFunction resolves a name to a function in the current module,
// re-declaring it from the registry if its defining module is gone.
func (c *codegen) getFunction(name string) llvm.Value {
	if f := c.module.NamedFunction(name); !f.IsNil() {
		return f
	}
	if proto, ok := c.protos[name]; ok {
		return c.Prototype(proto)
	}
	return llvm.Value{nil}
}

// createEntryBlockAlloca creates a stack slot in the entry block of f.
// All slots live in the entry block so the promote-memory-to-register
// pass can lift them into SSA.
func (c *codegen) createEntryBlockAlloca(f llvm.Value, name string) llvm.Value {
	tmpB := llvm.NewBuilder()
	tmpB.SetInsertPoint(f.EntryBasicBlock(), f.EntryBasicBlock().FirstInstruction())
	return tmpB.CreateAlloca(llvm.DoubleType(), name)
}

// createArgAllocas gives every parameter a named slot holding the
// incoming argument value.
func (c *codegen) createArgAllocas(f llvm.Value, proto *fnPrototypeNode) {
	for i, arg := range f.Params() {
		alloca := c.createEntryBlockAlloca(f, proto.args[i])
		c.builder.CreateStore(arg, alloca)
		c.namedValues[proto.args[i]] = alloca
	}
}

// expr lowers an expression node to a value of type double. A nil
// value signals that an error was already reported.
func (c *codegen) expr(n node) llvm.Value {
	switch n := n.(type) {
	case *numberNode:
		return llvm.ConstFloat(llvm.DoubleType(), n.val)
	case *variableNode:
		return c.variable(n)
	case *binaryNode:
		return c.binary(n)
	case *unaryNode:
		return c.unary(n)
	case *fnCallNode:
		return c.call(n)
	case *ifNode:
		return c.ifExpr(n)
	case *forNode:
		return c.forExpr(n)
	case *variableExprNode:
		return c.varExpr(n)
	}
	return ErrorV("unexpected node in expression position")
}

func (c *codegen) variable(n *variableNode) llvm.Value {
	v := c.namedValues[n.name]
	if v.IsNil() {
		return ErrorV("Unknown variable name")
	}
	return c.builder.CreateLoad(v, n.name)
}

func (c *codegen) binary(n *binaryNode) llvm.Value {
	// Special case '=' because we don't emit the LHS as an expression.
	if n.op == '=' {
		lhs, ok := n.left.(*variableNode)
		if !ok {
			return ErrorV("destination of '=' must be a variable")
		}

		val := c.expr(n.right)
		if val.IsNil() {
			return val
		}

		slot := c.namedValues[lhs.name]
		if slot.IsNil() {
			return ErrorV("Unknown variable name")
		}
		c.builder.CreateStore(val, slot)
		return val
	}

	l := c.expr(n.left)
	r := c.expr(n.right)
	if l.IsNil() || r.IsNil() {
		return llvm.Value{nil}
	}

	switch n.op {
	case '+':
		return c.builder.CreateFAdd(l, r, "addtmp")
	case '-':
		return c.builder.CreateFSub(l, r, "subtmp")
	case '*':
		return c.builder.CreateFMul(l, r, "multmp")
	case '<':
		l = c.builder.CreateFCmp(llvm.FloatULT, l, r, "cmptmp")
		// Convert bool 0/1 to double 0.0 or 1.0.
		return c.builder.CreateUIToFP(l, llvm.DoubleType(), "booltmp")
	default:
		// Not a builtin; emit a call to the user operator function.
		f := c.getFunction("binary" + string(n.op))
		if f.IsNil() {
			return ErrorV("invalid binary operator")
		}
		return c.builder.CreateCall(f, []llvm.Value{l, r}, "binop")
	}
}

func (c *codegen) unary(n *unaryNode) llvm.Value {
	operand := c.expr(n.operand)
	if operand.IsNil() {
		return operand
	}

	f := c.getFunction("unary" + string(n.op))
	if f.IsNil() {
		return ErrorV("Unknown unary operator")
	}
	return c.builder.CreateCall(f, []llvm.Value{operand}, "unop")
}

func (c *codegen) call(n *fnCallNode) llvm.Value {
	callee := c.getFunction(n.callee)
	if callee.IsNil() {
		return ErrorV("Unknown function referenced")
	}

	if callee.ParamsCount() != len(n.args) {
		return ErrorV("Incorrect # arguments passed")
	}

	args := []llvm.Value{}
	for _, arg := range n.args {
		v := c.expr(arg)
		if v.IsNil() {
			return v
		}
		args = append(args, v)
	}

	return c.builder.CreateCall(callee, args, "calltmp")
}

func (c *codegen) ifExpr(n *ifNode) llvm.Value {
	ifv := c.expr(n.ifN)
	if ifv.IsNil() {
		return ifv
	}
	// Convert condition to a bool by comparing non-equal to 0.0.
	ifv = c.builder.CreateFCmp(llvm.FloatONE, ifv, llvm.ConstFloat(llvm.DoubleType(), 0), "ifcond")

	parentFunc := c.builder.GetInsertBlock().Parent()
	thenBlk := llvm.AddBasicBlock(parentFunc, "then")
	elseBlk := llvm.AddBasicBlock(parentFunc, "else")
	mergeBlk := llvm.AddBasicBlock(parentFunc, "merge")
	c.builder.CreateCondBr(ifv, thenBlk, elseBlk)

	c.builder.SetInsertPointAtEnd(thenBlk)
	thenv := c.expr(n.thenN)
	if thenv.IsNil() {
		return thenv
	}
	c.builder.CreateBr(mergeBlk)
	// Codegen of 'then' can change the current block; re-read it for
	// the PHI.
	thenBlk = c.builder.GetInsertBlock()

	c.builder.SetInsertPointAtEnd(elseBlk)
	elsev := c.expr(n.elseN)
	if elsev.IsNil() {
		return elsev
	}
	c.builder.CreateBr(mergeBlk)
	elseBlk = c.builder.GetInsertBlock()

	c.builder.SetInsertPointAtEnd(mergeBlk)
	phi := c.builder.CreatePHI(llvm.DoubleType(), "iftmp")
	phi.AddIncoming([]llvm.Value{thenv}, []llvm.BasicBlock{thenBlk})
	phi.AddIncoming([]llvm.Value{elsev}, []llvm.BasicBlock{elseBlk})
	return phi
}

// forExpr lowers a loop as:
//
//	entry:
//	  counter = alloca double; store start
//	  br loop
//	loop:
//	  body; step; test
//	  counter += step
//	  br test != 0, loop, afterloop
//	afterloop:
func (c *codegen) forExpr(n *forNode) llvm.Value {
	startVal := c.expr(n.start)
	if startVal.IsNil() {
		return startVal
	}

	parentFunc := c.builder.GetInsertBlock().Parent()
	alloca := c.createEntryBlockAlloca(parentFunc, n.counter)
	c.builder.CreateStore(startVal, alloca)

	loopBlk := llvm.AddBasicBlock(parentFunc, "loop")
	c.builder.CreateBr(loopBlk)
	c.builder.SetInsertPointAtEnd(loopBlk)

	// The counter shadows any outer variable of the same name for the
	// duration of the loop.
	oldVal, shadowed := c.namedValues[n.counter]
	c.namedValues[n.counter] = alloca

	// The body's value is ignored, but an error still aborts.
	if c.expr(n.body).IsNil() {
		return llvm.Value{nil}
	}

	var stepVal llvm.Value
	if n.step != nil {
		stepVal = c.expr(n.step)
		if stepVal.IsNil() {
			return stepVal
		}
	} else {
		stepVal = llvm.ConstFloat(llvm.DoubleType(), 1)
	}

	// Evaluate the end condition before the increment.
	endVal := c.expr(n.test)
	if endVal.IsNil() {
		return endVal
	}

	curVar := c.builder.CreateLoad(alloca, n.counter)
	nextVar := c.builder.CreateFAdd(curVar, stepVal, "nextvar")
	c.builder.CreateStore(nextVar, alloca)

	endVal = c.builder.CreateFCmp(llvm.FloatONE, endVal, llvm.ConstFloat(llvm.DoubleType(), 0), "loopcond")
	afterBlk := llvm.AddBasicBlock(parentFunc, "afterloop")
	c.builder.CreateCondBr(endVal, loopBlk, afterBlk)
	c.builder.SetInsertPointAtEnd(afterBlk)

	if shadowed {
		c.namedValues[n.counter] = oldVal
	} else {
		delete(c.namedValues, n.counter)
	}

	// The for expression always returns 0.0.
	return llvm.ConstFloat(llvm.DoubleType(), 0)
}

func (c *codegen) varExpr(n *variableExprNode) llvm.Value {
	f := c.builder.GetInsertBlock().Parent()

	// Bindings are introduced in parallel: every initializer runs
	// before any new name enters scope, so 'var a = a in ...' refers
	// to the outer 'a'.
	initVals := make([]llvm.Value, len(n.vars))
	for i := range n.vars {
		if init := n.vars[i].init; init != nil {
			initVals[i] = c.expr(init)
			if initVals[i].IsNil() {
				return initVals[i]
			}
		} else {
			initVals[i] = llvm.ConstFloat(llvm.DoubleType(), 0)
		}
	}

	oldVals := make([]llvm.Value, len(n.vars))
	for i := range n.vars {
		alloca := c.createEntryBlockAlloca(f, n.vars[i].name)
		c.builder.CreateStore(initVals[i], alloca)

		oldVals[i] = c.namedValues[n.vars[i].name]
		c.namedValues[n.vars[i].name] = alloca
	}

	bodyVal := c.expr(n.body)
	if bodyVal.IsNil() {
		return bodyVal
	}

	// Pop our bindings, restoring whatever they shadowed.
	for i := range n.vars {
		if oldVals[i].IsNil() {
			delete(c.namedValues, n.vars[i].name)
		} else {
			c.namedValues[n.vars[i].name] = oldVals[i]
		}
	}

	return bodyVal
}

// Prototype emits a declaration for n into the current module. Every
// function has type double(double, ...).
func (c *codegen) Prototype(n *fnPrototypeNode) llvm.Value {
	doubles := make([]llvm.Type, len(n.args))
	for i := range doubles {
		doubles[i] = llvm.DoubleType()
	}
	ft := llvm.FunctionType(llvm.DoubleType(), doubles, false)

	f := llvm.AddFunction(c.module, n.name, ft)
	if f.Name() != n.name {
		// The module already had a function with this name; drop the
		// renamed duplicate and reuse the existing declaration.
		f.EraseFromParentAsFunction()
		f = c.module.NamedFunction(n.name)
	}

	if f.ParamsCount() != len(n.args) {
		return ErrorV("redefinition of function with different number of args")
	}
	for i, param := range f.Params() {
		param.SetName(n.args[i])
	}
	return f
}

// Function compiles a definition: prototype into the registry, entry
// block with one slot per parameter, body, return, verify, optimize.
// A half-built function is erased so the module stays valid.
func (c *codegen) Function(n *functionNode) llvm.Value {
	proto := n.proto
	c.protos[proto.name] = proto

	f := c.getFunction(proto.name)
	if f.IsNil() {
		return f
	}
	if f.BasicBlocksCount() != 0 {
		return ErrorV("redefinition of function")
	}

	entry := llvm.AddBasicBlock(f, "entry")
	c.builder.SetInsertPointAtEnd(entry)

	c.namedValues = map[string]llvm.Value{}
	c.createArgAllocas(f, proto)

	retVal := c.expr(n.body)
	if retVal.IsNil() {
		f.EraseFromParentAsFunction()
		return llvm.Value{nil}
	}
	c.builder.CreateRet(retVal)

	if llvm.VerifyFunction(f, llvm.PrintMessageAction) != nil {
		f.EraseFromParentAsFunction()
		return ErrorV("function verification failed")
	}

	c.fpm.RunFunc(f)
	return f
}

// ErrorV prints an error message and returns a nil value.
func ErrorV(str string) llvm.Value {
	fmt.Fprintf(os.Stderr, "Error: %v\n", str)
	return llvm.Value{nil}
}
