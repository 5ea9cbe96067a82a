package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var banner = color.New(color.FgCyan)

// feedStdin pumps standard input into the lexer: readline with history
// when stdin is a terminal, a plain scanner with a bare prompt when the
// input is piped.
func feedStdin(l *lexer) {
	defer l.Done()

	if isatty.IsTerminal(os.Stdin.Fd()) && feedReadline(l) {
		return
	}
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "ready> ")
		if !scanner.Scan() {
			return
		}
		l.Add(scanner.Text())
	}
}

// feedReadline runs the interactive prompt. It reports false if
// readline could not take over the terminal.
func feedReadline(l *lexer) bool {
	rl, err := readline.NewEx(&readline.Config{
		Prompt: "ready> ",
	})
	if err != nil {
		return false
	}
	defer rl.Close()

	banner.Fprintln(os.Stderr, "kaleidoscope repl: every value is a double; Ctrl-D exits")
	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			return true
		}
		if strings.TrimSpace(line) != "" {
			rl.SaveHistory(line)
		}
		l.Add(line)
	}
}

// feedLines pumps pre-read source lines into the lexer.
func feedLines(l *lexer, lines []string) {
	defer l.Done()
	for _, line := range lines {
		l.Add(line)
	}
}
