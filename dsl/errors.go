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
	"fmt"
)

const maxErrorTokenLength = 24

var (
	ErrUnknownAttribute    = errors.New("unknown attribute")
	ErrUndeclaredParameter = errors.New("path placeholder not declared as parameter")
	ErrInvalidPlaceholder  = errors.New("invalid path placeholder")
	ErrDuplicateBlock      = errors.New("duplicate block")
	ErrInvalidStatus       = errors.New("status blocks require a three digit code")
	ErrDuplicateParameter  = errors.New("duplicate parameter")
	ErrDuplicateAttribute  = errors.New("duplicate attribute")
)

// ParseError is returned for any malformed routing document. It carries
// the position where the parser gave up.
type ParseError struct {

	// Byte offset in the parsed document.
	Offset int

	// 1-based line and column of Offset.
	Line   int
	Column int

	// The last token successfully read before the failure, if any.
	Token string

	// The underlying reason.
	Reason error
}

func (e *ParseError) Error() string {
	tok := e.Token
	if len(tok) > maxErrorTokenLength {
		tok = tok[:maxErrorTokenLength] + "..."
	}

	if tok == "" {
		return fmt.Sprintf("parse failed at line %d, column %d: %v", e.Line, e.Column, e.Reason)
	}

	return fmt.Sprintf(
		"parse failed after token %s, line %d, column %d: %v",
		tok, e.Line, e.Column, e.Reason,
	)
}

func (e *ParseError) Unwrap() error { return e.Reason }
