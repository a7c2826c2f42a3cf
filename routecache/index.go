package routecache

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zalando/scriptroute/dsl"
)

// RouteContainer wraps an indexed route. Present is only meaningful
// during an update.
type RouteContainer struct {
	Route   *Route
	Kind    Kind
	Present bool
}

// Entry is a saved route handed to Index.Update.
type Entry struct {
	Hash  string
	Route *Route
	Kind  Kind
}

// Snapshot is an immutable state of the index. The routes returned by
// it are shared, and must not be modified.
type Snapshot struct {
	entries    map[string]*RouteContainer
	routes     []*Route
	candidates []*Route
}

// Index holds the currently valid routes, keyed by their content hash.
// Readers always see a complete snapshot, updates build a new one and
// swap it in.
type Index struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	ix := &Index{}
	ix.current.Store(newSnapshot(nil))
	return ix
}

func literalLength(pattern string) int {
	n := 0
	for _, s := range dsl.Segments(pattern) {
		if prefix, _, suffix, ok := dsl.SplitPlaceholder(s); ok {
			n += len(prefix) + len(suffix)
			continue
		}

		n += len(s)
	}

	return n
}

// fewer placeholders first, then the longer literal text, then by pattern.
func sortCandidates(r []*Route) {
	placeholders := make(map[*Route]int, len(r))
	literals := make(map[*Route]int, len(r))
	for _, ri := range r {
		placeholders[ri] = ri.Placeholders()
		literals[ri] = literalLength(ri.Pattern)
	}

	sort.SliceStable(r, func(i, j int) bool {
		pi, pj := placeholders[r[i]], placeholders[r[j]]
		if pi != pj {
			return pi < pj
		}

		li, lj := literals[r[i]], literals[r[j]]
		if li != lj {
			return li > lj
		}

		if c := strings.Compare(r[i].Pattern, r[j].Pattern); c != 0 {
			return c < 0
		}

		return r[i].Hash < r[j].Hash
	})
}

func newSnapshot(entries map[string]*RouteContainer) *Snapshot {
	if entries == nil {
		entries = make(map[string]*RouteContainer)
	}

	s := &Snapshot{entries: entries}
	for _, c := range entries {
		s.routes = append(s.routes, c.Route)
		if c.Kind == KindNormal {
			s.candidates = append(s.candidates, c.Route)
		}
	}

	sortRoutes(s.routes)
	sortCandidates(s.candidates)
	return s
}

func (ix *Index) copyEntries() map[string]*RouteContainer {
	prev := ix.current.Load().entries
	next := make(map[string]*RouteContainer, len(prev))
	for h, c := range prev {
		cc := *c
		next[h] = &cc
	}

	return next
}

// Update reconciles the index with the routes of a complete parse.
// Entries with a hash from the list are kept or inserted, all other
// entries are dropped.
func (ix *Index) Update(routes []Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	next := ix.copyEntries()
	for _, c := range next {
		c.Present = false
	}

	for _, e := range routes {
		if c, ok := next[e.Hash]; ok {
			c.Route = e.Route
			c.Kind = e.Kind
			c.Present = true
			continue
		}

		next[e.Hash] = &RouteContainer{Route: e.Route, Kind: e.Kind, Present: true}
	}

	for h, c := range next {
		if !c.Present {
			delete(next, h)
		}
	}

	ix.current.Store(newSnapshot(next))
}

// Put inserts or replaces a single route. Entries of an earlier version
// of the same route, stored at the same cache path, are dropped.
func (ix *Index) Put(hash string, r *Route, kind Kind) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	next := ix.copyEntries()
	for h, c := range next {
		if h != hash && c.Route.CachePath == r.CachePath {
			delete(next, h)
		}
	}

	next[hash] = &RouteContainer{Route: r, Kind: kind, Present: true}
	ix.current.Store(newSnapshot(next))
}

// Delete removes a single route.
func (ix *Index) Delete(hash string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	next := ix.copyEntries()
	delete(next, hash)
	ix.current.Store(newSnapshot(next))
}

// Snapshot returns the current state of the index.
func (ix *Index) Snapshot() *Snapshot {
	return ix.current.Load()
}

// Len returns the number of indexed routes.
func (s *Snapshot) Len() int { return len(s.entries) }

// Get returns an indexed route by its hash.
func (s *Snapshot) Get(hash string) (*Route, Kind, bool) {
	c, ok := s.entries[hash]
	if !ok {
		return nil, KindNormal, false
	}

	return c.Route, c.Kind, true
}

// Routes returns every indexed route, sorted by pattern.
func (s *Snapshot) Routes() []*Route { return s.routes }

// Candidates returns the normal routes in the order of evaluation during
// pattern search: fewer placeholders first, then the longer literal
// text, then by pattern.
func (s *Snapshot) Candidates() []*Route { return s.candidates }

// CachePaths returns the cache files of the indexed routes.
func (s *Snapshot) CachePaths() []string {
	p := make([]string, 0, len(s.routes))
	for _, r := range s.routes {
		p = append(p, r.CachePath)
	}

	return p
}
