// Package routestring provides a DataClient implementation for
// setting route configuration in form of a simple DSL string.
//
// Usage from the command line:
//
//	scriptroute serve -inline-routes 'fn health() { "ok" }'
package routestring

import (
	"fmt"

	"github.com/zalando/scriptroute/dsl"
	"github.com/zalando/scriptroute/routing"
)

// DocumentError reports the position of an invalid document in the
// list passed to NewList. The underlying error is usually a
// *dsl.ParseError.
type DocumentError struct {
	Index int
	Err   error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("inline routes #%d: %v", e.Index, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

type routes struct {
	parsed []*dsl.Definition
}

// New creates a data client that parses a string of route definitions
// and serves it for the routing package.
func New(r string) (routing.DataClient, error) {
	return NewList([]string{r})
}

// NewList creates a data client that parses a list of strings of route
// definitions and serves it for the routing package. The definitions
// keep the order of the documents, so that when two documents define
// the same route, the later one wins.
func NewList(rs []string) (routing.DataClient, error) {
	var parsed []*dsl.Definition
	for i, r := range rs {
		pr, err := dsl.Parse(r)
		if err != nil {
			if len(rs) == 1 {
				return nil, err
			}

			return nil, &DocumentError{Index: i, Err: err}
		}

		parsed = append(parsed, pr...)
	}

	return &routes{parsed: parsed}, nil
}

func (r *routes) LoadAll() ([]*dsl.Definition, error) {
	return r.parsed, nil
}

// LoadUpdate never reports changes, the documents are fixed.
func (*routes) LoadUpdate() ([]*dsl.Definition, []string, error) {
	return nil, nil, nil
}
