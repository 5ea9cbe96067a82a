package main

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/davecgh/go-spew/spew"
)

// token represents the basic lexicographical units of the language.
type token struct {
	kind tokenType // The kind of token with which we're dealing.
	pos  Pos       // The byte offset of the beginning of the token with respect to the beginning of the current line.
	val  string    // The token's value. Error message for tokError; otherwise, the token's constituent text.
}

// String satisfies Stringer so that package fmt can pretty-print
// tokens.
func (t token) String() string {
	switch {
	case t.kind == tokEOF:
		return "EOF"
	case t.kind == tokError:
		return t.val
	case t.kind > tokKeyword && t.kind != tokChar:
		return fmt.Sprintf("<%s>", t.val)
	case len(t.val) > 10:
		return fmt.Sprintf("%.10q...", t.val) // Limit the max width for long tokens
	default:
		return t.val
	}
}

// tokenType identifies the type of a token.
type tokenType int

// The list of tokenTypes.
const (
	// special
	tokEOF   tokenType = iota // zero value so a closed token channel reads as EOF
	tokError                  // error occurred
	tokComment

	// whitespace
	tokSpace

	// literals
	tokNumber

	// identifiers
	tokIdentifier

	// keywords
	tokKeyword // used to delineate keywords
	tokDefine
	tokExtern
	tokIf
	tokThen
	tokElse
	tokFor
	tokIn
	tokBinary
	tokUnary
	tokVariable

	// any other single character: parens, comma, semicolon and all
	// operator characters, builtin or user-defined
	tokChar
)

// key maps keyword strings to their tokenType.
var key = map[string]tokenType{
	"def":    tokDefine,
	"extern": tokExtern,
	"if":     tokIf,
	"then":   tokThen,
	"else":   tokElse,
	"for":    tokFor,
	"in":     tokIn,
	"binary": tokBinary,
	"unary":  tokUnary,
	"var":    tokVariable,
}

// stateFn represents the state of the scanner as a function that returns the next state.
type stateFn func(*lexer) stateFn

// lexer holds the state of the scanner.
type lexer struct {
	lines chan string // source lines to be lexed
	line  string      // current line being scanned
	state stateFn     // next lexing function to be called
	pos   Pos         // current position in the line
	start Pos         // beginning position of the current token
	width Pos         // width of last rune read from input

	tokens chan token // channel of lexed items

	printTokens bool // spew tokens before sending
}

// Lex creates and runs a new lexer. Source text arrives one line at a
// time through Add; the REPL and the file driver share this path.
func Lex(printTokens bool) *lexer {
	l := &lexer{
		lines:       make(chan string, 10),
		tokens:      make(chan token, 10),
		printTokens: printTokens,
	}
	go l.run()
	return l
}

// Add queues a line of source text for scanning.
func (l *lexer) Add(line string) {
	l.lines <- line
}

// Done signals that the driver is finished Add()ing lines and that the
// lexer goroutine should stop once it has drained its queue.
func (l *lexer) Done() {
	close(l.lines)
}

// Tokens returns a read-only channel of tokens that can be printed or
// parsed.
func (l *lexer) Tokens() <-chan token {
	return l.tokens
}

// l.next() returns eof to signal end of input to a stateFn.
const eof = -1

// word returns the value of the token that would be emitted if
// l.emit() were to be called.
func (l *lexer) word() string {
	return l.line[l.start:l.pos]
}

// next returns the next rune from the input and advances the scan.
// When the current line is exhausted it blocks for the next one; a
// newline is appended to every line so no token straddles the refill.
func (l *lexer) next() rune {
	if int(l.pos) >= len(l.line) {
		line, ok := <-l.lines
		if !ok {
			l.width = 0
			return eof
		}
		l.line = line + "\n"
		l.pos = 0
		l.start = 0
		l.width = 0
	}
	r, w := utf8.DecodeRuneInString(l.line[l.pos:])
	l.width = Pos(w)
	l.pos += l.width
	return r
}

// peek returns the next rune without moving the scan forward.
func (l *lexer) peek() rune {
	r := l.next()
	l.backup()
	return r
}

// backup moves the scan back one rune.
func (l *lexer) backup() {
	l.pos -= l.width
}

// ignore skips the pending input before this point.
func (l *lexer) ignore() {
	l.start = l.pos
}

// acceptRun consumes a run of runes from the valid set.
func (l *lexer) acceptRun(valid string) {
	for strings.IndexRune(valid, l.next()) >= 0 {
	}
	l.backup()
}

// emit passes the current token.
func (l *lexer) emit(tt tokenType) {
	t := token{
		kind: tt,
		pos:  l.start,
		val:  l.word(),
	}
	if l.printTokens {
		spew.Dump(t)
	}
	l.tokens <- t
	l.start = l.pos
}

// run runs the state machine for the lexer.
func (l *lexer) run() {
	for l.state = lexTopLevel; l.state != nil; {
		l.state = l.state(l)
	}
	close(l.tokens) // tokEOF is the zero value of a token, so we don't need to send it.
}

// State Functions

// lexTopLevel lexes any top level token. Because our language is simple,
// our lexer rarely needs to know its prior state and therefore this
// amounts to the giant-switch style of lexing. Nevertheless, the stateFn
// technique allows us to easily extend our lexer to more complex
// grammars.
func lexTopLevel(l *lexer) stateFn {
	r := l.next()
	switch {
	case r == eof:
		return nil
	case isSpace(r):
		l.backup()
		return lexSpace
	case isEOL(r):
		l.start = l.pos
		return lexTopLevel
	case r == '#':
		return lexComment
	case '0' <= r && r <= '9', r == '.':
		l.backup()
		return lexNumber
	case isAlphaNumeric(r):
		l.backup()
		return lexIdentifier
	default:
		// Parens, comma, semicolon and operator characters all travel
		// as single-character tokens; the parser decides what they mean.
		l.emit(tokChar)
		return lexTopLevel
	}
}

// lexSpace globs contiguous whitespace.
func lexSpace(l *lexer) stateFn {
	for isSpace(l.next()) {
	}
	l.backup()
	if l.start != l.pos {
		l.emit(tokSpace)
	}
	return lexTopLevel
}

// lexComment runs from '#' to the end of the line.
func lexComment(l *lexer) stateFn {
	l.pos = Pos(len(l.line))
	l.emit(tokComment)
	return lexTopLevel
}

// lexNumber globs potential number-like strings. We let the parser
// verify that the token is actually a valid number.
// e.g. "1.2.3" is emitted whole by this function.
func lexNumber(l *lexer) stateFn {
	l.acceptRun("0123456789.")
	l.emit(tokNumber)
	return lexTopLevel
}

// lexIdentifier globs alpha-numerics and determines whether they
// represent a keyword or an identifier.
func lexIdentifier(l *lexer) stateFn {
	for {
		switch r := l.next(); {
		case isAlphaNumeric(r):
			// absorb
		default:
			l.backup()
			word := l.word()
			if key[word] > tokKeyword {
				l.emit(key[word])
			} else {
				l.emit(tokIdentifier)
			}
			return lexTopLevel
		}
	}
}

// Helper Functions

// isSpace reports whether r is whitespace.
func isSpace(r rune) bool {
	return r == ' ' || r == '\t'
}

// isEOL reports whether r is an end-of-line character or an EOF.
func isEOL(r rune) bool {
	return r == '\n' || r == '\r' || r == eof
}

// isAlphaNumeric reports whether r may be part of an identifier name.
func isAlphaNumeric(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
