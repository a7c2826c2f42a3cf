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

import "fmt"

// DefinitionType tells which kind of top-level block a definition was
// parsed from.
type DefinitionType int

const (
	// A named function block, optionally with route and cfg attributes.
	Function DefinitionType = iota

	// The index block, served at "/".
	Index

	// A three digit status block, e.g. 404 { ... }.
	Status

	// The catch-all block, * { ... }.
	Wildcard
)

const (
	// IndexName is the function name of the index block.
	IndexName = "index"

	// IndexPath is the path of the index block. Requests to "/" resolve
	// to it.
	IndexPath = "/" + IndexName
)

func (t DefinitionType) String() string {
	switch t {
	case Function:
		return "function"
	case Index:
		return "index"
	case Status:
		return "status"
	case Wildcard:
		return "wildcard"
	default:
		return fmt.Sprintf("DefinitionType(%d)", int(t))
	}
}

// A Definition represents a parsed, in-memory route block. Definitions
// are not hashed, stamped or persisted, see the routecache package for
// that.
type Definition struct {

	// Type of the block.
	Type DefinitionType

	// Status code of a Status block, otherwise 0.
	Status int

	// Path template of Function and Index blocks. Either taken from the
	// route attribute, or derived from the function name.
	// E.g. #[route("/greet/{name}")]
	Path string

	// Function name. Empty for Status and Wildcard blocks.
	Name string

	// Ordered parameter names, bound positionally to the placeholder
	// captures of a matched request path.
	Args []string

	// Options from the cfg attribute.
	// E.g. #[cfg(wildcard="true")]
	Config map[string]string

	// Body source, without the enclosing braces and dedented.
	Body string

	// Lines of the opening and the closing brace of the body, 1-based.
	StartLine int
	EndLine   int
}

// HasPlaceholders tells whether the definition's path contains any
// {name} segments.
func (d *Definition) HasPlaceholders() bool {
	for _, s := range Segments(d.Path) {
		if _, _, _, ok := SplitPlaceholder(s); ok {
			return true
		}
	}

	return false
}
