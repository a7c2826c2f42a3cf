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

package routing

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zalando/scriptroute/dsl"
	"github.com/zalando/scriptroute/logging"
	"github.com/zalando/scriptroute/metrics"
	"github.com/zalando/scriptroute/routecache"
)

// DefaultPollTimeout is the default interval of polling the data clients
// for updates.
const DefaultPollTimeout = 3 * time.Second

// DataClient instances provide definitions of routes. Definitions are
// identified by their cache key, see routecache.Key.
type DataClient interface {

	// LoadAll returns every definition. An error leaves the routes
	// received earlier in place, and the call is retried.
	LoadAll() ([]*dsl.Definition, error)

	// LoadUpdate returns the changed definitions, and the keys of the
	// deleted ones. After an error, the routing reloads the whole set
	// with LoadAll.
	LoadUpdate() ([]*dsl.Definition, []string, error)
}

// Options to initialize routing.
type Options struct {

	// The cache storing the routes. Its index is the one used for
	// pattern search. Required.
	Cache *routecache.Cache

	// The set of different data clients where the route definitions
	// are read from. Definitions with the same key coming from different
	// clients are taken from the client listed later.
	DataClients []DataClient

	// The timeout between requests to the data clients for route
	// definition updates.
	PollTimeout time.Duration

	// Above this number of candidate routes, pattern search evaluates
	// chunks of the candidates concurrently. Zero means always
	// sequential.
	ParallelSearchThreshold int

	Log     logging.Logger
	Metrics metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.PollTimeout <= 0 {
		o.PollTimeout = DefaultPollTimeout
	}

	if o.Log == nil {
		o.Log = logging.New()
	}

	if o.Metrics == nil {
		o.Metrics = metrics.Default
	}

	return o
}

// Routing keeps the cache and the index of the routes in sync with the
// data clients, and resolves requests to routes.
type Routing struct {
	options    Options
	cache      *routecache.Cache
	dispatcher *Dispatcher
	log        logging.Logger
	metrics    metrics.Metrics

	// serializes reloads
	mu sync.Mutex

	firstLoad     chan struct{}
	firstLoadOnce sync.Once
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// New initializes a routing instance, and starts listening for route
// definition updates.
func New(o Options) (*Routing, error) {
	if o.Cache == nil {
		return nil, errNoCache
	}

	o = o.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	r := &Routing{
		options:    o,
		cache:      o.Cache,
		dispatcher: NewDispatcher(o),
		log:        o.Log,
		metrics:    o.Metrics,
		firstLoad:  make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}

	if len(o.DataClients) == 0 {
		r.signalFirstLoad()
		return r, nil
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.receiveDefinitions()
	}()

	return r, nil
}

func (r *Routing) signalFirstLoad() {
	r.firstLoadOnce.Do(func() { close(r.firstLoad) })
}

// FirstLoad is closed when every data client delivered its initial set
// of definitions, and they were committed to the index.
func (r *Routing) FirstLoad() <-chan struct{} {
	return r.firstLoad
}

type savedRoute struct {
	route *routecache.Route
	kind  routecache.Kind
}

// converts the definitions, and drops the ones overridden by a later
// definition with the same cache path
func (r *Routing) convert(defs []*dsl.Definition) []savedRoute {
	var routes []savedRoute
	byPath := make(map[string]int)
	for _, d := range defs {
		rt, kind := routecache.FromDefinition(d)
		rt = r.cache.Cache(rt, kind)
		if i, ok := byPath[rt.CachePath]; ok {
			r.log.Warnf(
				"duplicate route %s, definition on line %d overrides line %d",
				rt.Pattern,
				rt.StartLine,
				routes[i].route.StartLine,
			)

			routes[i] = savedRoute{rt, kind}
			continue
		}

		byPath[rt.CachePath] = len(routes)
		routes = append(routes, savedRoute{rt, kind})
	}

	return routes
}

// Reload commits a complete set of definitions: every route is stored in
// the cache, the index is reconciled to exactly the stored routes, and
// the cache files of the routes not in the set anymore are deleted.
//
// The routes are stored concurrently. If any of them fails, the index is
// left unchanged.
func (r *Routing) Reload(defs []*dsl.Definition) error {
	if r.ctx.Err() != nil {
		return errClosed
	}

	start := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	routes := r.convert(defs)
	entries := make([]routecache.Entry, len(routes))

	var g errgroup.Group
	for i, sr := range routes {
		g.Go(func() error {
			hash, stored, err := r.cache.Store(sr.route, sr.kind)
			if err != nil {
				return err
			}

			entries[i] = routecache.Entry{Hash: hash, Route: stored, Kind: sr.kind}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.metrics.IncCounter(metrics.KeyReloadErrors)
		return wrapReloadError(errSaveFailed, err)
	}

	r.cache.Index().Update(entries)
	n := r.cache.Index().Snapshot().Len()
	r.metrics.UpdateGauge(metrics.KeyIndexRoutes, float64(n))

	deleted, err := r.cache.Cleanup()
	if err != nil {
		r.metrics.IncCounter(metrics.KeyReloadErrors)
		return wrapReloadError(errCleanupFailed, err)
	}

	r.metrics.MeasureSince(metrics.KeyReload, start)
	r.log.Infof("route index updated, %d routes, %d stale cache files deleted", n, deleted)
	return nil
}

// Lookup resolves a request URL to a route. See Dispatcher.Lookup.
func (r *Routing) Lookup(rawURL string) (*Result, error) {
	return r.dispatcher.Lookup(rawURL)
}

// Search matches a path against the indexed routes. See
// Dispatcher.Search.
func (r *Routing) Search(p string) (*Result, error) {
	return r.dispatcher.Search(p)
}

// Get reads a route from the cache by its key.
func (r *Routing) Get(key string) (*routecache.Route, error) {
	return r.cache.Get(key)
}

// Snapshot returns the current state of the index.
func (r *Routing) Snapshot() *routecache.Snapshot {
	return r.cache.Index().Snapshot()
}

// Close stops polling the data clients.
func (r *Routing) Close() {
	r.cancel()
	r.wg.Wait()
}
