package routesfile

import (
	"errors"
	"io/fs"
	"os"
	"reflect"

	"github.com/zalando/scriptroute/dsl"
	"github.com/zalando/scriptroute/routing"
)

type watchResponse struct {
	defs        []*dsl.Definition
	deletedKeys []string
	err         error
}

// WatchClient implements a route configuration client with file watching.
// Use the Watch function to initialize instances of it.
type WatchClient struct {
	fileName   string
	defs       map[string]*dsl.Definition
	getAll     chan (chan<- watchResponse)
	getUpdates chan (chan<- watchResponse)
	quit       chan struct{}
}

var _ routing.DataClient = &WatchClient{}

// Watch creates a route configuration client with file watching. Watch
// doesn't follow file system nodes, it always reads from the file
// identified by the initially provided file name.
func Watch(name string) *WatchClient {
	c := &WatchClient{
		fileName:   name,
		getAll:     make(chan (chan<- watchResponse)),
		getUpdates: make(chan (chan<- watchResponse)),
		quit:       make(chan struct{}),
	}

	go c.watch()
	return c
}

func mapDefinitions(d []*dsl.Definition) map[string]*dsl.Definition {
	m := make(map[string]*dsl.Definition)
	for i := range d {
		m[routing.DefinitionKey(d[i])] = d[i]
	}

	return m
}

// a definition moved to another line is reported as upserted, too, so
// that the cached line numbers follow the file
func (c *WatchClient) diffStoreDefinitions(d []*dsl.Definition) (upsert []*dsl.Definition, deletedKeys []string) {
	m := mapDefinitions(d)
	for key, def := range m {
		if !reflect.DeepEqual(def, c.defs[key]) {
			upsert = append(upsert, def)
		}
	}

	for key := range c.defs {
		if _, keep := m[key]; !keep {
			deletedKeys = append(deletedKeys, key)
		}
	}

	c.defs = m
	return
}

func (c *WatchClient) deleteAllListKeys() []string {
	var keys []string
	for key := range c.defs {
		keys = append(keys, key)
	}

	c.defs = nil
	return keys
}

func (c *WatchClient) parse() ([]*dsl.Definition, error) {
	content, err := os.ReadFile(c.fileName)
	if err != nil {
		return nil, err
	}

	return dsl.Parse(string(content))
}

func (c *WatchClient) loadAll() watchResponse {
	d, err := c.parse()
	if err != nil {
		return watchResponse{err: err}
	}

	c.defs = mapDefinitions(d)
	return watchResponse{defs: d}
}

func (c *WatchClient) loadUpdates() watchResponse {
	d, err := c.parse()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return watchResponse{deletedKeys: c.deleteAllListKeys()}
		}

		return watchResponse{err: err}
	}

	upsert, del := c.diffStoreDefinitions(d)
	return watchResponse{defs: upsert, deletedKeys: del}
}

func (c *WatchClient) watch() {
	for {
		select {
		case req := <-c.getAll:
			req <- c.loadAll()
		case req := <-c.getUpdates:
			req <- c.loadUpdates()
		case <-c.quit:
			return
		}
	}
}

func (c *WatchClient) request(ch chan (chan<- watchResponse)) watchResponse {
	req := make(chan watchResponse, 1)
	select {
	case ch <- req:
		return <-req
	case <-c.quit:
		return watchResponse{err: errClosed}
	}
}

// LoadAll returns the parsed route definitions found in the file.
func (c *WatchClient) LoadAll() ([]*dsl.Definition, error) {
	rsp := c.request(c.getAll)
	return rsp.defs, rsp.err
}

// LoadUpdate returns differential updates when a watched file has
// changed.
func (c *WatchClient) LoadUpdate() ([]*dsl.Definition, []string, error) {
	rsp := c.request(c.getUpdates)
	return rsp.defs, rsp.deletedKeys, rsp.err
}

// Close stops watching the configured file and providing updates.
func (c *WatchClient) Close() {
	close(c.quit)
}

var errClosed = errors.New("routes file watch closed")
