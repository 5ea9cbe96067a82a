package main

import (
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	optimize    bool
	printAst    bool
	printTokens bool
	useJIT      bool
	emitPath    string
)

var fatal = color.New(color.FgRed)

var rootCmd = &cobra.Command{
	Use:   "kaleidoscope [files]",
	Short: "compiler and REPL for the kaleidoscope language",
	Long: `kaleidoscope reads top-level definitions and expressions, lowers them to
LLVM IR and, by default, JIT-compiles and runs each top-level expression
as it is entered. With no file arguments it reads an interactive REPL
from stdin. With --emit the JIT is skipped and the accumulated module is
written as a relocatable object file at end of input.`,
	Args:          cobra.ArbitraryArgs,
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().BoolVar(&optimize, "opt", true, "run the per-function optimization passes")
	rootCmd.Flags().BoolVar(&printAst, "ast", false, "print the abstract syntax tree of each form")
	rootCmd.Flags().BoolVar(&printTokens, "tokens", false, "print tokens as they are lexed")
	rootCmd.Flags().BoolVar(&useJIT, "jit", true, "JIT-compile and run top-level expressions")
	rootCmd.Flags().StringVarP(&emitPath, "emit", "o", "", "emit a relocatable object file to this path at end of input")
}

func run(cmd *cobra.Command, args []string) error {
	jit := useJIT && emitPath == ""

	l := Lex(printTokens)
	if len(args) > 0 {
		lines, err := sourceLines(args)
		if err != nil {
			return err
		}
		go feedLines(l, lines)
	} else {
		go feedStdin(l)
	}

	t := NewTree(l.Tokens())
	installBinops(t)

	cg, err := NewCodegen(jit, optimize)
	if err != nil {
		return err
	}

	NewInterp(t, cg, os.Stdout, printAst).Run()

	if emitPath != "" {
		return emitObject(cg.module, emitPath)
	}
	if !jit {
		cg.module.Dump()
	}
	return nil
}

// sourceLines reads the given files into one stream of lines.
func sourceLines(paths []string) ([]string, error) {
	var lines []string
	for _, path := range paths {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		lines = append(lines, strings.Split(string(b), "\n")...)
	}
	return lines, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fatal.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
