package routesfile

import (
	"os"

	"github.com/zalando/scriptroute/dsl"
)

// Client contains the definitions from a file, read once when opened.
type Client struct{ defs []*dsl.Definition }

// Open opens a route DSL file, and parses it.
func Open(path string) (*Client, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	defs, err := dsl.Parse(string(content))
	if err != nil {
		return nil, err
	}

	return &Client{defs}, nil
}

// LoadAll returns the parsed definitions.
func (c Client) LoadAll() ([]*dsl.Definition, error) { return c.defs, nil }

// LoadUpdate: noop. The current implementation doesn't support
// watching the file for changes.
func (c Client) LoadUpdate() ([]*dsl.Definition, []string, error) { return nil, nil, nil }
