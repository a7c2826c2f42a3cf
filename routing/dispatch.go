package routing

import (
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/dimfeld/httppath"
	"golang.org/x/sync/errgroup"

	"github.com/zalando/scriptroute/dsl"
	"github.com/zalando/scriptroute/logging"
	"github.com/zalando/scriptroute/metrics"
	"github.com/zalando/scriptroute/routecache"
)

// WildcardConfigKey is the cfg option that makes a route serve every
// path below its own, e.g. #[cfg(wildcard="true")] fn docs() { ... }
// serves /docs/a/b, too.
const WildcardConfigKey = "wildcard"

// Result is the outcome of a successful lookup.
type Result struct {

	// The matched route.
	Route *routecache.Route

	// KindNormal for matched routes, KindNotFound or KindWildcard for the
	// fallback handlers.
	Kind routecache.Kind

	// Function name of the route.
	FnName string

	// Function declaration to be compiled by the executor, e.g.
	// fn greet(name){"hi " + name}.
	Source string

	// Captured path segments in the order of the request path, bound
	// positionally to the function parameters.
	Args []string

	// Captures by placeholder name.
	Params map[string]string
}

func newResult(r *routecache.Route, kind routecache.Kind, captures []string) *Result {
	return &Result{
		Route:  r,
		Kind:   kind,
		FnName: r.FnName,
		Source: r.Callable(),
		Args:   captures,
		Params: params(r.Pattern, captures),
	}
}

// Dispatcher resolves request paths to cached routes.
type Dispatcher struct {
	cache             *routecache.Cache
	parallelThreshold int
	log               logging.Logger
	metrics           metrics.Metrics
}

// NewDispatcher creates a dispatcher over the cache and its index set in
// the options.
func NewDispatcher(o Options) *Dispatcher {
	o = o.withDefaults()
	return &Dispatcher{
		cache:             o.Cache,
		parallelThreshold: o.ParallelSearchThreshold,
		log:               o.Log,
		metrics:           o.Metrics,
	}
}

func cleanPath(p string) string {
	if p == "" || p == "/" {
		return dsl.IndexPath
	}

	p = httppath.Clean(p)
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}

	if p == "/" {
		return dsl.IndexPath
	}

	return p
}

func requestPath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid request url %s: %w", rawURL, err)
	}

	return cleanPath(u.Path), nil
}

func firstSegment(p string) string {
	if i := strings.IndexByte(p[1:], '/'); i >= 0 {
		return p[:i+1]
	}

	return p
}

func searchSequential(candidates []*routecache.Route, p string) (int, []string) {
	for i, c := range candidates {
		if captures, ok := Match(c.Pattern, c.Args, p); ok {
			return i, captures
		}
	}

	return -1, nil
}

// the candidates are split into chunks evaluated concurrently, and the
// match with the lowest index wins, the same as with the sequential scan
func searchParallel(candidates []*routecache.Route, p string) (int, []string) {
	chunks := runtime.GOMAXPROCS(0)
	size := (len(candidates) + chunks - 1) / chunks
	if size == 0 {
		return -1, nil
	}

	chunks = (len(candidates) + size - 1) / size
	found := make([]int, chunks)
	captures := make([][]string, chunks)

	var g errgroup.Group
	for i := range chunks {
		g.Go(func() error {
			lo := i * size
			hi := min(lo+size, len(candidates))
			found[i], captures[i] = searchSequential(candidates[lo:hi], p)
			if found[i] >= 0 {
				found[i] += lo
			}

			return nil
		})
	}

	g.Wait()
	for i := range found {
		if found[i] >= 0 {
			return found[i], captures[i]
		}
	}

	return -1, nil
}

func (d *Dispatcher) match(p string) (*Result, bool) {
	candidates := d.cache.Index().Snapshot().Candidates()

	var (
		i        int
		captures []string
	)

	if d.parallelThreshold > 0 && len(candidates) > d.parallelThreshold {
		i, captures = searchParallel(candidates, p)
	} else {
		i, captures = searchSequential(candidates, p)
	}

	if i < 0 {
		return nil, false
	}

	return newResult(candidates[i], routecache.KindNormal, captures), true
}

func (d *Dispatcher) fallback() (*Result, error) {
	for _, h := range []struct {
		key  string
		kind routecache.Kind
	}{
		{routecache.NotFoundName, routecache.KindNotFound},
		{routecache.WildcardName, routecache.KindWildcard},
	} {
		r, err := d.cache.Get(h.key)
		if err == nil {
			return newResult(r, h.kind, nil), nil
		}

		if !errors.Is(err, routecache.ErrMiss) {
			return nil, err
		}
	}

	return nil, ErrNoRoute
}

// Search matches the path against the indexed routes. Routes with fewer
// placeholders are evaluated first, then the ones with longer literal
// text, and the first match wins. When no route matches, it falls back
// to the not_found handler, then to the wildcard handler, and when
// neither is cached, it returns ErrNoRoute.
func (d *Dispatcher) Search(p string) (*Result, error) {
	if r, ok := d.match(cleanPath(p)); ok {
		return r, nil
	}

	return d.fallback()
}

func (d *Dispatcher) exact(p string) (*Result, bool) {
	r, err := d.cache.Get(p)
	if err != nil || r.Pattern != p || r.Placeholders() > 0 {
		return nil, false
	}

	return newResult(r, routecache.KindNormal, nil), true
}

func (d *Dispatcher) lookup(p string) (*Result, error) {
	if r, ok := d.exact(p); ok {
		return r, nil
	}

	if first := firstSegment(p); first != p {
		if r, ok := d.exact(first); ok && r.Route.Truthy(WildcardConfigKey) {
			return r, nil
		}
	}

	return d.Search(p)
}

func outcome(r *Result, err error) string {
	switch {
	case err != nil:
		return metrics.LookupNoRoute
	case r.Kind == routecache.KindNotFound:
		return metrics.LookupNotFound
	case r.Kind == routecache.KindWildcard:
		return metrics.LookupWildcard
	default:
		return metrics.LookupMatched
	}
}

// Lookup resolves a request URL. The query is ignored. A cached route
// whose pattern equals the path is taken without searching. When the
// route of the first path segment has the wildcard option set, it is
// taken for any path below it. Otherwise the path is searched for, see
// Search.
func (d *Dispatcher) Lookup(rawURL string) (*Result, error) {
	start := time.Now()
	defer d.metrics.MeasureRouteLookup(start)

	p, err := requestPath(rawURL)
	if err != nil {
		d.metrics.IncLookup(metrics.LookupNoRoute)
		return nil, err
	}

	r, err := d.lookup(p)
	d.metrics.IncLookup(outcome(r, err))
	if err != nil {
		d.log.Debugf("lookup %s: %v", p, err)
		return nil, err
	}

	d.log.Debugf("lookup %s: %s (%s)", p, r.FnName, r.Kind)
	return r, nil
}
