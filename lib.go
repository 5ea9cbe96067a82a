package main

// The two runtime functions below are callable from kaleidoscope by
// name: the //export directives give them C symbols, which the JIT's
// in-process symbol resolution finds like any other extern.

// Because this file uses //export, the C comment may only include
// declarations, not definitions. Quoting the Go Blog:
// "[I]f your program uses any //export directives, then the C code in
// the comment may only include declarations (extern int f();), not
// definitions (int f() { return 1; })."[^1](http://blog.golang.org/c-go-cgo)

// #include <stdio.h>
import "C"

import "fmt"

//export putchard
func putchard(x C.double) C.double {
	C.fputc(C.int(x), C.stderr)
	C.fflush(C.stderr)
	return 0
}

//export printd
func printd(x C.double) C.double {
	fmt.Printf("%f\n", float64(x))
	return 0
}
