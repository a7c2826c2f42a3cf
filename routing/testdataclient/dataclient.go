/*
Package testdataclient provides a test implementation for the DataClient
interface of the scriptroute/routing package.

It uses in-memory route definitions that are passed in on construction,
and can be upserted and deleted programmatically.
*/
package testdataclient

import (
	"errors"
	"sync"

	"github.com/zalando/scriptroute/dsl"
	"github.com/zalando/scriptroute/routing"
)

type incomingUpdate struct {
	upsert      []*dsl.Definition
	deletedKeys []string
}

// Client is a DataClient implementation.
type Client struct {
	mu           sync.Mutex
	defs         map[string]*dsl.Definition
	failNext     int
	signalUpdate chan incomingUpdate
}

var errFailNext = errors.New("failed to get routes")

var _ routing.DataClient = &Client{}

// New creates a Client with an initial set of definitions.
func New(initial []*dsl.Definition) *Client {
	defs := make(map[string]*dsl.Definition)
	for _, d := range initial {
		defs[routing.DefinitionKey(d)] = d
	}

	return &Client{
		defs:         defs,
		signalUpdate: make(chan incomingUpdate, 1),
	}
}

// NewDoc creates a Client with an initial set of definitions in the
// route DSL.
func NewDoc(doc string) (*Client, error) {
	defs, err := dsl.Parse(doc)
	if err != nil {
		return nil, err
	}

	return New(defs), nil
}

// LoadAll returns the initial set of definitions.
func (c *Client) LoadAll() ([]*dsl.Definition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failNext > 0 {
		c.failNext--
		return nil, errFailNext
	}

	defs := make([]*dsl.Definition, 0, len(c.defs))
	for _, d := range c.defs {
		defs = append(defs, d)
	}

	return defs, nil
}

// LoadUpdate returns the definitions upserted and the keys deleted since
// the last call, as set by Update.
func (c *Client) LoadUpdate() ([]*dsl.Definition, []string, error) {
	var u incomingUpdate
	select {
	case u = <-c.signalUpdate:
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range u.deletedKeys {
		delete(c.defs, key)
	}

	for _, d := range u.upsert {
		c.defs[routing.DefinitionKey(d)] = d
	}

	// a failed update is picked up by the next LoadAll
	if c.failNext > 0 {
		c.failNext--
		return nil, nil, errFailNext
	}

	return u.upsert, u.deletedKeys, nil
}

// Update sets definitions to be upserted and keys to be deleted on the
// next poll. It blocks while the previous update was not yet polled.
func (c *Client) Update(upsert []*dsl.Definition, deletedKeys []string) {
	c.signalUpdate <- incomingUpdate{upsert, deletedKeys}
}

// UpdateDoc is like Update, with the upserted definitions in the route
// DSL.
func (c *Client) UpdateDoc(upsertDoc string, deletedKeys []string) error {
	upsert, err := dsl.Parse(upsertDoc)
	if err != nil {
		return err
	}

	c.Update(upsert, deletedKeys)
	return nil
}

// FailNext makes the next n LoadAll or LoadUpdate calls fail.
func (c *Client) FailNext(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = n
}
