package main

import (
	"fmt"
	"os"

	"github.com/ajsnow/llvm"
)

// emitObject lowers the module for the host target triple and writes a
// relocatable object file to path. CPU and feature strings mirror what
// a stock cross-compiler would pick for "any machine of this triple".
func emitObject(m llvm.Module, path string) error {
	llvm.InitializeAllTargetInfos()
	llvm.InitializeAllTargets()
	llvm.InitializeAllTargetMCs()
	llvm.InitializeAllAsmParsers()
	llvm.InitializeAllAsmPrinters()

	triple := llvm.DefaultTargetTriple()
	target, err := llvm.GetTargetFromTriple(triple)
	if err != nil {
		return fmt.Errorf("could not resolve target for %v: %v", triple, err)
	}

	machine := target.CreateTargetMachine(triple, "generic", "",
		llvm.CodeGenLevelDefault, llvm.RelocPIC, llvm.CodeModelDefault)
	m.SetTarget(triple)
	m.SetDataLayout(machine.TargetData().String())

	buf, err := machine.EmitToMemoryBuffer(m, llvm.ObjectFile)
	if err != nil {
		return fmt.Errorf("could not emit object code: %v", err)
	}
	defer buf.Dispose()

	if err := os.WriteFile(path, buf.Bytes(), 0666); err != nil {
		return fmt.Errorf("could not open output file: %v", err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
