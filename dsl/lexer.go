// Copyright 2015 Zalando SE
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dsl

import (
	"errors"
	"strings"
	"unicode"
)

type tokenID int

const (
	symbol tokenID = iota + 1
	number
	stringliteral
	attributeOpen
	closebracket
	openparen
	closeparen
	comma
	equals
	star
	openbrace
	closebrace
)

type token struct {
	id     tokenID
	val    string
	offset int
}

type charPredicate func(byte) bool

type scanner interface {
	scan(string) (token, string, error)
}

type scannerFunc func(string) (token, string, error)

func (sf scannerFunc) scan(code string) (token, string, error) { return sf(code) }

type fixedScanner string

type lexer struct {
	input     string
	code      string
	lastToken *token
}

const (
	escapeChar  = '\\'
	newlineChar = '\n'
	underscore  = '_'
)

var (
	errInvalidCharacter = errors.New("invalid character")
	errIncompleteToken  = errors.New("incomplete token")
	errUnexpectedToken  = errors.New("unexpected token")
	errUnbalancedBlock  = errors.New("unbalanced block")
	errVoid             = errors.New("void")
	errEOF              = errors.New("eof")
)

var fixedTokens = map[fixedScanner]tokenID{
	"#[": attributeOpen,
	"]":  closebracket,
	"(":  openparen,
	")":  closeparen,
	",":  comma,
	"=":  equals,
	"*":  star,
	"{":  openbrace,
	"}":  closebrace,
}

func (t token) String() string { return t.val }

func (fs fixedScanner) scan(code string) (t token, rest string, err error) {
	if len(code) < len(fs) {
		err = errUnexpectedToken
		return
	}

	t.id = fixedTokens[fs]
	t.val = string(fs)
	rest = code[len(fs):]
	return
}

func newLexer(code string) *lexer {
	return &lexer{input: code, code: code}
}

func isWhitespace(c byte) bool { return unicode.IsSpace(rune(c)) }
func isNewline(c byte) bool    { return c == newlineChar }
func isUnderscore(c byte) bool { return c == underscore }
func isAlpha(c byte) bool      { return unicode.IsLetter(rune(c)) }
func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isSymbolChar(c byte) bool { return isUnderscore(c) || isAlpha(c) || isDigit(c) }

func scanWhile(code string, p charPredicate) (string, string) {
	i := 0
	for i < len(code) && p(code[i]) {
		i++
	}

	return code[:i], code[i:]
}

func scanVoid(code string, p charPredicate) string {
	_, rest := scanWhile(code, p)
	return rest
}

func scanEscaped(delimiter byte, code string) ([]byte, string) {
	var b []byte
	escaped := false
	for len(code) > 0 {
		c := code[0]
		isDelimiter := c == delimiter
		isEscapeChar := c == escapeChar

		if escaped {
			if !isDelimiter && !isEscapeChar {
				b = append(b, escapeChar)
			}

			b = append(b, c)
			escaped = false
		} else {
			if isDelimiter {
				return b, code
			}

			if isEscapeChar {
				escaped = true
			} else {
				b = append(b, c)
			}
		}

		code = code[1:]
	}

	return b, code
}

func scanStringLiteral(code string) (t token, rest string, err error) {
	b, rest := scanEscaped('"', code[1:])
	if len(rest) == 0 {
		err = errIncompleteToken
		return
	}

	rest = rest[1:]
	t.id = stringliteral
	t.val = string(b)
	return
}

func scanComment(code string) string {
	return scanVoid(code, func(c byte) bool { return !isNewline(c) })
}

func scanSlash(code string) (t token, rest string, err error) {
	if len(code) < 2 || code[1] != '/' {
		rest = code
		err = errInvalidCharacter
		return
	}

	rest = scanComment(code)
	err = errVoid
	return
}

func scanWhitespace(code string) string { return scanVoid(code, isWhitespace) }

func scanNumber(code string) (t token, rest string, err error) {
	t.val, rest = scanWhile(code, isDigit)
	t.id = number
	return
}

func scanSymbol(code string) (t token, rest string, err error) {
	t.val, rest = scanWhile(code, isSymbolChar)
	t.id = symbol
	return
}

// skipQuoted returns the length of a quoted section at the start of
// code, including both delimiters, or -1 when it is not terminated.
func skipQuoted(code string) int {
	delimiter := code[0]
	for i := 1; i < len(code); i++ {
		switch code[i] {
		case escapeChar:
			i++
		case delimiter:
			return i + 1
		}
	}

	return -1
}

// longBracketLevel returns the level of a long bracket, [[ or [=[, at the
// start of code, or -1.
func longBracketLevel(code string) int {
	if len(code) == 0 || code[0] != '[' {
		return -1
	}

	level := 1
	for level < len(code) && code[level] == '=' {
		level++
	}

	if level == len(code) || code[level] != '[' {
		return -1
	}

	return level - 1
}

// skipLongBracket returns the length of a long bracket section at the
// start of code, including the closing bracket of the same level, or -1
// when it is not terminated.
func skipLongBracket(code string, level int) int {
	closing := "]" + strings.Repeat("=", level) + "]"
	open := level + 2
	n := strings.Index(code[open:], closing)
	if n < 0 {
		return -1
	}

	return open + n + len(closing)
}

func isLineComment(code string) bool {
	return strings.HasPrefix(code, "//") || strings.HasPrefix(code, "--")
}

// scanBlock scans a brace delimited block starting at code[0] == '{'.
// Braces inside quoted sections, long brackets and comments don't count.
func scanBlock(code string) (string, string, error) {
	depth := 0
	for i := 0; i < len(code); i++ {
		if strings.HasPrefix(code[i:], "--") {
			if level := longBracketLevel(code[i+2:]); level >= 0 {
				n := skipLongBracket(code[i+2:], level)
				if n < 0 {
					return "", code, errUnbalancedBlock
				}

				i += 2 + n - 1
				continue
			}
		}

		if level := longBracketLevel(code[i:]); level >= 0 {
			n := skipLongBracket(code[i:], level)
			if n < 0 {
				return "", code, errUnbalancedBlock
			}

			i += n - 1
			continue
		}

		if isLineComment(code[i:]) {
			n := strings.IndexByte(code[i:], newlineChar)
			if n < 0 {
				return "", code, errUnbalancedBlock
			}

			i += n
			continue
		}

		switch code[i] {
		case '"', '\'', '`':
			n := skipQuoted(code[i:])
			if n < 0 {
				return "", code, errUnbalancedBlock
			}

			i += n - 1
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return code[:i+1], code[i+1:], nil
			}
		}
	}

	return "", code, errUnbalancedBlock
}

func selectFixed(code string) scanner {
	for fixed := range fixedTokens {
		if strings.HasPrefix(code, string(fixed)) {
			return fixed
		}
	}

	return nil
}

func selectVaryingScanner(code string) scanner {
	var sf scannerFunc
	switch {
	case code[0] == '/':
		sf = scanSlash
	case code[0] == '"':
		sf = scanStringLiteral
	case isDigit(code[0]):
		sf = scanNumber
	case isAlpha(code[0]) || isUnderscore(code[0]):
		sf = scanSymbol
	}

	if sf != nil {
		return sf
	}

	return nil
}

func selectScanner(code string) scanner {
	if s := selectFixed(code); s != nil {
		return s
	}

	return selectVaryingScanner(code)
}

func (l *lexer) offset() int { return len(l.input) - len(l.code) }

func (l *lexer) next() (t token, err error) {
	l.code = scanWhitespace(l.code)
	if len(l.code) == 0 {
		err = errEOF
		return
	}

	s := selectScanner(l.code)
	if s == nil {
		err = errInvalidCharacter
		return
	}

	offset := l.offset()
	var rest string
	t, rest, err = s.scan(l.code)
	if err == errVoid {
		l.code = rest
		return l.next()
	}

	if err != nil {
		return
	}

	l.code = rest
	t.offset = offset
	l.lastToken = &t
	return
}

// block consumes a balanced body. It expects the lexer to be positioned
// at the opening brace, which must be the next non-whitespace input.
func (l *lexer) block() (t token, err error) {
	l.code = scanWhitespace(l.code)
	if len(l.code) == 0 {
		err = errEOF
		return
	}

	if l.code[0] != '{' {
		err = errUnexpectedToken
		return
	}

	offset := l.offset()
	t.val, l.code, err = scanBlock(l.code)
	if err != nil {
		return
	}

	t.id = openbrace
	t.offset = offset
	l.lastToken = &t
	return
}

// errorAt creates a positioned parse error at the given input offset.
func (l *lexer) errorAt(offset int, reason error) *ParseError {
	line, column := position(l.input, offset)
	e := &ParseError{
		Offset: offset,
		Line:   line,
		Column: column,
		Reason: reason,
	}

	if l.lastToken != nil {
		e.Token = l.lastToken.val
	}

	return e
}

// fail creates a parse error at the current input position.
func (l *lexer) fail(reason error) *ParseError {
	return l.errorAt(l.offset(), reason)
}

// position returns the 1-based line and column of an input offset.
func position(input string, offset int) (line, column int) {
	if offset > len(input) {
		offset = len(input)
	}

	before := input[:offset]
	line = strings.Count(before, "\n") + 1
	column = offset - strings.LastIndexByte(before, '\n')
	return
}
