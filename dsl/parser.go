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
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

const statusCodeLength = 3

var errUnexpectedEOF = errors.New("unexpected end of input")

// block as read by the parser, before it is turned into a definition.
type rawBlock struct {
	typ        DefinitionType
	offset     int
	status     int
	name       string
	path       string
	pathOffset int
	hasPath    bool
	args       []string
	config     map[string]string
	body       token
}

type parser struct {
	lex    *lexer
	peeked *token
}

func (p *parser) read() (token, error) {
	t, err := p.lex.next()
	switch {
	case err == errEOF:
		return t, err
	case err != nil:
		return t, p.lex.fail(err)
	default:
		return t, nil
	}
}

func (p *parser) next() (token, error) {
	if p.peeked != nil {
		t := *p.peeked
		p.peeked = nil
		return t, nil
	}

	return p.read()
}

func (p *parser) peek() (token, error) {
	if p.peeked != nil {
		return *p.peeked, nil
	}

	t, err := p.read()
	if err != nil {
		return t, err
	}

	p.peeked = &t
	return t, nil
}

func (p *parser) unexpected(t token) error {
	return p.lex.errorAt(t.offset, errUnexpectedToken)
}

func (p *parser) expect(id tokenID) (token, error) {
	t, err := p.next()
	if err == errEOF {
		return t, p.lex.fail(errUnexpectedEOF)
	}

	if err != nil {
		return t, err
	}

	if t.id != id {
		return t, p.unexpected(t)
	}

	return t, nil
}

func (p *parser) expectSymbol(val string) (token, error) {
	t, err := p.expect(symbol)
	if err != nil {
		return t, err
	}

	if t.val != val {
		return t, p.unexpected(t)
	}

	return t, nil
}

func (p *parser) body(b *rawBlock) error {
	t, err := p.lex.block()
	switch {
	case err == errEOF:
		return p.lex.fail(errUnexpectedEOF)
	case err != nil:
		return p.lex.fail(err)
	}

	b.body = t
	return nil
}

func (p *parser) parseConfig(b *rawBlock, at token) error {
	if b.config != nil {
		return p.lex.errorAt(at.offset, ErrDuplicateAttribute)
	}

	if _, err := p.expect(openparen); err != nil {
		return err
	}

	b.config = make(map[string]string)
	for {
		t, err := p.next()
		if err != nil {
			return p.eofAsUnexpected(err)
		}

		if t.id == closeparen {
			return nil
		}

		if t.id != symbol {
			return p.unexpected(t)
		}

		if _, err := p.expect(equals); err != nil {
			return err
		}

		v, err := p.expect(stringliteral)
		if err != nil {
			return err
		}

		b.config[t.val] = v.val

		sep, err := p.next()
		if err != nil {
			return p.eofAsUnexpected(err)
		}

		switch sep.id {
		case comma:
		case closeparen:
			return nil
		default:
			return p.unexpected(sep)
		}
	}
}

func (p *parser) parseRoute(b *rawBlock, at token) error {
	if b.hasPath {
		return p.lex.errorAt(at.offset, ErrDuplicateAttribute)
	}

	if _, err := p.expect(openparen); err != nil {
		return err
	}

	s, err := p.expect(stringliteral)
	if err != nil {
		return err
	}

	if _, err := p.expect(closeparen); err != nil {
		return err
	}

	b.path = s.val
	b.pathOffset = s.offset
	b.hasPath = true
	return nil
}

// parses the inside of #[...], the opening token already consumed.
func (p *parser) parseAttributes(b *rawBlock) error {
	for {
		name, err := p.expect(symbol)
		if err != nil {
			return err
		}

		switch name.val {
		case "route":
			err = p.parseRoute(b, name)
		case "cfg":
			err = p.parseConfig(b, name)
		default:
			err = p.lex.errorAt(name.offset, ErrUnknownAttribute)
		}

		if err != nil {
			return err
		}

		sep, err := p.next()
		if err != nil {
			return p.eofAsUnexpected(err)
		}

		switch sep.id {
		case comma:
		case closebracket:
			return nil
		default:
			return p.unexpected(sep)
		}
	}
}

func (p *parser) parseParameters(b *rawBlock) error {
	if _, err := p.expect(openparen); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for {
		t, err := p.next()
		if err != nil {
			return p.eofAsUnexpected(err)
		}

		if t.id == closeparen {
			return nil
		}

		if t.id != symbol {
			return p.unexpected(t)
		}

		if seen[t.val] {
			return p.lex.errorAt(t.offset, ErrDuplicateParameter)
		}

		seen[t.val] = true
		b.args = append(b.args, t.val)

		sep, err := p.next()
		if err != nil {
			return p.eofAsUnexpected(err)
		}

		switch sep.id {
		case comma:
		case closeparen:
			return nil
		default:
			return p.unexpected(sep)
		}
	}
}

func (p *parser) parseFunction(first token) (*rawBlock, error) {
	b := &rawBlock{typ: Function, offset: first.offset}
	for {
		t, err := p.next()
		if err != nil {
			return nil, p.eofAsUnexpected(err)
		}

		if t.id != attributeOpen {
			p.peeked = &t
			break
		}

		if err := p.parseAttributes(b); err != nil {
			return nil, err
		}
	}

	if _, err := p.expectSymbol("fn"); err != nil {
		return nil, err
	}

	name, err := p.expect(symbol)
	if err != nil {
		return nil, err
	}

	b.name = name.val
	if err := p.parseParameters(b); err != nil {
		return nil, err
	}

	if err := p.body(b); err != nil {
		return nil, err
	}

	return b, nil
}

func (p *parser) eofAsUnexpected(err error) error {
	if err == errEOF {
		return p.lex.fail(errUnexpectedEOF)
	}

	return err
}

func (p *parser) parseBlock() (*rawBlock, error) {
	t, err := p.peek()
	if err != nil {
		return nil, err
	}

	switch {
	case t.id == symbol && t.val == IndexName:
		p.next()
		b := &rawBlock{typ: Index, offset: t.offset, name: IndexName, path: IndexPath}
		return b, p.body(b)
	case t.id == number:
		p.next()
		if len(t.val) != statusCodeLength {
			return nil, p.lex.errorAt(t.offset, ErrInvalidStatus)
		}

		code, _ := strconv.Atoi(t.val)
		b := &rawBlock{typ: Status, offset: t.offset, status: code}
		return b, p.body(b)
	case t.id == star:
		p.next()
		b := &rawBlock{typ: Wildcard, offset: t.offset}
		return b, p.body(b)
	case t.id == attributeOpen, t.id == symbol && t.val == "fn":
		return p.parseFunction(t)
	default:
		return nil, p.unexpected(t)
	}
}

// reads all the top-level blocks of a document, sequentially.
func (p *parser) parseDocument() ([]*rawBlock, error) {
	var (
		blocks   []*rawBlock
		index    bool
		wildcard bool
		statuses = make(map[int]bool)
	)

	for {
		b, err := p.parseBlock()
		if err == errEOF {
			return blocks, nil
		}

		if err != nil {
			return nil, err
		}

		switch b.typ {
		case Index:
			if index {
				return nil, p.lex.errorAt(b.offset, ErrDuplicateBlock)
			}

			index = true
		case Wildcard:
			if wildcard {
				return nil, p.lex.errorAt(b.offset, ErrDuplicateBlock)
			}

			wildcard = true
		case Status:
			if statuses[b.status] {
				return nil, p.lex.errorAt(b.offset, ErrDuplicateBlock)
			}

			statuses[b.status] = true
		}

		blocks = append(blocks, b)
	}
}

func (p *parser) pathError(b *rawBlock, reason error) error {
	err := p.lex.errorAt(b.pathOffset, reason)
	err.Token = b.path
	return err
}

func (p *parser) validatePath(b *rawBlock) error {
	declared := make(map[string]bool)
	for _, a := range b.args {
		declared[a] = true
	}

	for _, s := range Segments(b.path) {
		if !isPlaceholderCandidate(s) {
			continue
		}

		_, name, _, ok := SplitPlaceholder(s)
		if !ok {
			return p.pathError(b, ErrInvalidPlaceholder)
		}

		if !declared[name] {
			return p.pathError(b, ErrUndeclaredParameter)
		}
	}

	return nil
}

// turns a raw block into a definition. Safe for concurrent use, it only
// reads the input of the lexer.
func (p *parser) definition(b *rawBlock) (*Definition, error) {
	d := &Definition{
		Type:   b.typ,
		Status: b.status,
		Name:   b.name,
		Path:   b.path,
		Args:   b.args,
		Config: b.config,
		Body:   dedent(b.body.val),
	}

	if b.typ == Function {
		if !b.hasPath {
			d.Path = "/" + b.name
		} else {
			if !strings.HasPrefix(d.Path, "/") {
				d.Path = "/" + d.Path
			}

			b.path = d.Path
			if err := p.validatePath(b); err != nil {
				return nil, err
			}
		}
	}

	d.StartLine, _ = position(p.lex.input, b.body.offset)
	d.EndLine, _ = position(p.lex.input, b.body.offset+len(b.body.val)-1)
	return d, nil
}

func leadingIndent(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}

// dedent strips the enclosing braces of a body and the indentation
// shared by its inner lines.
func dedent(block string) string {
	lines := strings.Split(block, "\n")
	if len(lines) < 3 {
		s := strings.TrimSpace(block)
		s = strings.TrimPrefix(s, "{")
		s = strings.TrimSuffix(s, "}")
		return strings.TrimSpace(s)
	}

	inner := lines[1 : len(lines)-1]
	indent := -1
	for _, l := range inner {
		if strings.TrimSpace(l) == "" {
			continue
		}

		if n := leadingIndent(l); indent < 0 || n < indent {
			indent = n
		}
	}

	var out []string
	if head := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[0]), "{")); head != "" {
		out = append(out, head)
	}

	for _, l := range inner {
		if strings.TrimSpace(l) == "" {
			out = append(out, "")
			continue
		}

		out = append(out, strings.TrimRight(l[indent:], " \t\r"))
	}

	if tail := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(lines[len(lines)-1]), "}")); tail != "" {
		out = append(out, tail)
	}

	return strings.Join(out, "\n")
}

// Parse parses a routing document into its definitions, in document
// order. The blocks are read sequentially, and then converted and
// validated concurrently. Either all definitions are returned, or an
// error pointing to the first failing block.
func Parse(code string) ([]*Definition, error) {
	p := &parser{lex: newLexer(code)}
	blocks, err := p.parseDocument()
	if err != nil {
		return nil, err
	}

	defs := make([]*Definition, len(blocks))
	errs := make([]error, len(blocks))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, b := range blocks {
		g.Go(func() error {
			defs[i], errs[i] = p.definition(b)
			return nil
		})
	}

	_ = g.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return defs, nil
}

// MustParse is like Parse but panics on error. Meant for tests and
// package level variables.
func MustParse(code string) []*Definition {
	defs, err := Parse(code)
	if err != nil {
		panic(err)
	}

	return defs
}
