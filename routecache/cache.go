package routecache

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dimfeld/httppath"
	"github.com/zalando/scriptroute/dsl"
	"github.com/zalando/scriptroute/logging"
	"github.com/zalando/scriptroute/metrics"
)

const (
	cacheNamespace   = "cache"
	handlerNamespace = "handler"
	fileSuffix       = ".route"
	tempPrefix       = ".tmp-"
)

var errNoRoot = errors.New("cache root not set")

// Options to create a Cache.
type Options struct {

	// Root directory of the cache. Required.
	Root string

	// Time after which unchanged routes are rewritten. Defaults to
	// DefaultTTL.
	TTL time.Duration

	// Clock, defaults to time.Now.
	Now func() time.Time

	// The index updated by Save and used by Cleanup. When not set, a new
	// empty index is created.
	Index *Index

	Log     logging.Logger
	Metrics metrics.Metrics
}

// Cache persists routes under a root directory. Normal routes are stored
// by their pattern in the cache namespace, handler routes by their name
// in the handler namespace:
//
//	<root>/cache/greet/{name}.route
//	<root>/handler/not_found.route
type Cache struct {
	root    string
	ttl     time.Duration
	now     func() time.Time
	index   *Index
	log     logging.Logger
	metrics metrics.Metrics

	// serializes writing and cleanup, so that a file saved during
	// cleanup cannot be deleted before it gets indexed.
	mu sync.Mutex
}

// New creates a cache.
func New(o Options) (*Cache, error) {
	if o.Root == "" {
		return nil, errNoRoot
	}

	root, err := filepath.Abs(o.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid cache root %s: %w", o.Root, err)
	}

	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}

	if o.Now == nil {
		o.Now = time.Now
	}

	if o.Index == nil {
		o.Index = NewIndex()
	}

	if o.Log == nil {
		o.Log = logging.New()
	}

	if o.Metrics == nil {
		o.Metrics = metrics.Default
	}

	return &Cache{
		root:    root,
		ttl:     o.TTL,
		now:     o.Now,
		index:   o.Index,
		log:     o.Log,
		metrics: o.Metrics,
	}, nil
}

// Root returns the absolute root directory.
func (c *Cache) Root() string { return c.root }

// TTL returns the configured time to live of the records.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Index returns the index maintained by the cache.
func (c *Cache) Index() *Index { return c.index }

func normalizePattern(p string) string {
	if p == "" || p == "/" {
		return dsl.IndexPath
	}

	p = httppath.Clean(p)
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}

	return p
}

func (c *Cache) cacheFile(pattern string) string {
	rel := filepath.FromSlash(strings.TrimPrefix(pattern, "/"))
	return filepath.Join(c.root, cacheNamespace, rel+fileSuffix)
}

func (c *Cache) handlerFile(name string) string {
	return filepath.Join(c.root, handlerNamespace, name+fileSuffix)
}

func isHandlerName(key string) bool {
	switch key {
	case NotFoundName, WildcardName, InternalErrorName:
		return true
	default:
		return strings.HasPrefix(key, statusNamePrefix)
	}
}

func (c *Cache) resolve(key string) string {
	switch {
	case key == "" || key == "/":
		return c.cacheFile(dsl.IndexPath)
	case isHandlerName(key):
		return c.handlerFile(key)
	default:
		return c.cacheFile(normalizePattern(key))
	}
}

// Cache returns a normalized copy of a route: handler kinds get their
// fixed name and pattern, the function name is made a valid identifier,
// and the hash and the cache path are set. Timestamps are not touched.
func (c *Cache) Cache(r *Route, kind Kind) *Route {
	r = r.Copy()
	switch kind {
	case KindNormal:
		r.Pattern = normalizePattern(r.Pattern)
		r.CachePath = c.cacheFile(r.Pattern)
	default:
		var name string
		switch kind {
		case KindWildcard:
			name = WildcardName
		case KindNotFound:
			name = NotFoundName
		default:
			name = StatusName(r.Status)
		}

		r.Pattern = "/" + name
		r.FnName = name
		r.CachePath = c.handlerFile(name)
	}

	r.FnName = NormalizeName(r.FnName)
	r.Hash = contentHash(r.Pattern, r.FnName, r.FnBody)
	return r
}

func sameMetadata(a, b *Route) bool {
	return slices.Equal(a.Args, b.Args) &&
		maps.Equal(a.Config, b.Config) &&
		a.Status == b.Status &&
		a.StartLine == b.StartLine &&
		a.EndLine == b.EndLine &&
		a.CachePath == b.CachePath
}

func (c *Cache) write(r *Route) error {
	b, err := encode(r)
	if err != nil {
		return &WriteError{Path: r.CachePath, Err: err}
	}

	dir := filepath.Dir(r.CachePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &WriteError{Path: r.CachePath, Err: err}
	}

	f, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return &WriteError{Path: r.CachePath, Err: err}
	}

	tmp := f.Name()
	_, err = f.Write(b)
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	if err == nil {
		err = os.Rename(tmp, r.CachePath)
	}

	if err != nil {
		os.Remove(tmp)
		return &WriteError{Path: r.CachePath, Err: err}
	}

	return nil
}

// Store persists a route unless an unexpired record with the same hash
// exists already, in which case the created and expiry times of the
// existing record are kept, and the file is only rewritten when the
// other fields changed. It returns the hash and the stored copy of the
// route. Store doesn't change the index.
//
// When writing fails, the returned error is a *WriteError.
func (c *Cache) Store(r *Route, kind Kind) (string, *Route, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store(r, kind)
}

func (c *Cache) store(r *Route, kind Kind) (string, *Route, error) {
	r = c.Cache(r, kind)
	now := c.now()
	existing, err := readRecord(r.CachePath)
	switch {
	case err == nil && existing.Hash == r.Hash && !existing.Expired(now):
		r.Created, r.Expires = existing.Created, existing.Expires
		if !sameMetadata(existing, r) {
			if err := c.write(r); err != nil {
				c.metrics.IncCounter(metrics.KeyCacheWriteErrors)
				return "", nil, err
			}
		}

		c.metrics.IncCounter(metrics.KeyCacheKept)
		c.log.Debugf("route %s unchanged, expires at %s", r.Pattern, r.Expires.Format(time.RFC3339))
	default:
		r.Created = now
		r.Expires = now.Add(c.ttl)
		if err := c.write(r); err != nil {
			c.metrics.IncCounter(metrics.KeyCacheWriteErrors)
			return "", nil, err
		}

		c.metrics.IncCounter(metrics.KeyCacheWritten)
		c.log.Debugf("route %s written to %s", r.Pattern, r.CachePath)
	}

	return r.Hash, r, nil
}

// Save stores a route the same way as Store, and puts the saved route in
// the index. When writing fails, the index is not changed.
func (c *Cache) Save(r *Route, kind Kind) (string, *Route, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash, saved, err := c.store(r, kind)
	if err != nil {
		return "", nil, err
	}

	c.index.Put(hash, saved, kind)
	return hash, saved, nil
}

// Get reads a route from the cache. The key "/" is the index route, the
// names not_found, wildcard, internal_err and status_<code> are the
// handler routes, and any other key is taken as a route pattern. A
// missing or corrupt record results in a *ReadError, matching ErrMiss.
func (c *Cache) Get(key string) (*Route, error) {
	p := c.resolve(key)
	r, err := readRecord(p)
	if err != nil {
		c.metrics.IncCounter(metrics.KeyCacheMisses)
		return nil, &ReadError{Key: key, Path: p, Err: err}
	}

	return r, nil
}

func (c *Cache) namespaces() []string {
	return []string{
		filepath.Join(c.root, cacheNamespace),
		filepath.Join(c.root, handlerNamespace),
	}
}

// walks the files of both namespaces, and returns the directories
// below the namespace roots in walk order.
func (c *Cache) walk(f func(path string) error) ([]string, error) {
	var dirs []string
	for _, ns := range c.namespaces() {
		err := filepath.WalkDir(ns, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}

				return err
			}

			if d.IsDir() {
				if p != ns {
					dirs = append(dirs, p)
				}

				return nil
			}

			return f(p)
		})

		if err != nil {
			return nil, err
		}
	}

	return dirs, nil
}

// Cleanup deletes every file in the cache that doesn't belong to a route
// in the index, and removes the directories left empty. It returns the
// number of deleted files.
func (c *Cache) Cleanup() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	valid := make(map[string]bool)
	for _, p := range c.index.Snapshot().CachePaths() {
		valid[p] = true
	}

	var deleted int
	dirs, err := c.walk(func(p string) error {
		if valid[p] {
			return nil
		}

		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		deleted++
		c.log.Debugf("deleted cache file %s", p)
		return nil
	})

	c.metrics.IncCounterBy(metrics.KeyCacheDeleted, int64(deleted))
	if err != nil {
		return deleted, fmt.Errorf("cache cleanup failed: %w", err)
	}

	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err != nil || len(entries) > 0 {
			continue
		}

		if err := os.Remove(dirs[i]); err != nil {
			c.log.Warnf("failed to remove empty cache directory %s: %v", dirs[i], err)
			continue
		}

		c.log.Debugf("removed empty cache directory %s", dirs[i])
	}

	return deleted, nil
}

// List returns every readable record of the cache, sorted by pattern.
// Unreadable files are skipped.
func (c *Cache) List() ([]*Route, error) {
	var routes []*Route
	_, err := c.walk(func(p string) error {
		if !strings.HasSuffix(p, fileSuffix) {
			return nil
		}

		r, err := readRecord(p)
		if err != nil {
			c.log.Warnf("skipping unreadable cache file %s: %v", p, err)
			return nil
		}

		routes = append(routes, r)
		return nil
	})

	if err != nil {
		return nil, err
	}

	sortRoutes(routes)
	return routes, nil
}

// Remove deletes a single record, accepting the same keys as Get, and
// drops it from the index.
func (c *Cache) Remove(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.resolve(key)
	if r, err := readRecord(p); err == nil {
		c.index.Delete(r.Hash)
	}

	if err := os.Remove(p); err != nil {
		return &ReadError{Key: key, Path: p, Err: err}
	}

	return nil
}

// Purge deletes both namespaces and empties the index.
func (c *Cache) Purge() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ns := range c.namespaces() {
		if err := os.RemoveAll(ns); err != nil {
			return fmt.Errorf("failed to purge %s: %w", ns, err)
		}
	}

	c.index.Update(nil)
	return nil
}
