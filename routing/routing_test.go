package routing_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zalando/scriptroute/dsl"
	"github.com/zalando/scriptroute/logging/loggingtest"
	"github.com/zalando/scriptroute/metrics"
	"github.com/zalando/scriptroute/metrics/metricstest"
	"github.com/zalando/scriptroute/routecache"
	"github.com/zalando/scriptroute/routing"
	"github.com/zalando/scriptroute/routing/testdataclient"
)

const testDoc = `
index { "home" }

404 { "not found" }

#[route("/greet/{name}")]
fn greet(name) { "hi " + name }

#[route("/blog/{slug}.json")]
fn blog_json(slug) { slug }

#[route("/blog/latest")]
fn latest() { "latest" }

#[route("/blog/{slug}")]
fn blog(slug) { slug }

#[cfg(wildcard="true")]
fn docs() { "docs" }

#[route("/a/{x}")]
fn ax(x) { x }
`

type testRouting struct {
	*routing.Routing
	cache   *routecache.Cache
	log     *loggingtest.TestLogger
	metrics *metricstest.MockMetrics
}

func newTestRouting(t *testing.T, o routing.Options) *testRouting {
	t.Helper()

	l := loggingtest.New()
	t.Cleanup(l.Close)

	m := &metricstest.MockMetrics{}
	c, err := routecache.New(routecache.Options{
		Root:    t.TempDir(),
		Log:     l,
		Metrics: m,
	})

	require.NoError(t, err)

	o.Cache = c
	o.Log = l
	o.Metrics = m
	r, err := routing.New(o)
	require.NoError(t, err)
	t.Cleanup(r.Close)

	return &testRouting{Routing: r, cache: c, log: l, metrics: m}
}

func reloaded(t *testing.T, doc string, o routing.Options) *testRouting {
	t.Helper()
	r := newTestRouting(t, o)
	require.NoError(t, r.Reload(dsl.MustParse(doc)))
	return r
}

func TestNewRequiresCache(t *testing.T) {
	_, err := routing.New(routing.Options{})
	assert.Error(t, err)
}

func TestLookupGreet(t *testing.T) {
	r := reloaded(t, testDoc, routing.Options{})

	res, err := r.Lookup("/greet/Sam")
	require.NoError(t, err)
	assert.Equal(t, "greet", res.FnName)
	assert.Equal(t, `fn greet(name){"hi " + name}`, res.Source)
	assert.Equal(t, []string{"Sam"}, res.Args)
	assert.Equal(t, map[string]string{"name": "Sam"}, res.Params)
	assert.Equal(t, routecache.KindNormal, res.Kind)
}

func TestLookup(t *testing.T) {
	for _, threshold := range []int{0, 1} {
		r := reloaded(t, testDoc, routing.Options{ParallelSearchThreshold: threshold})
		for _, test := range []struct {
			url    string
			fnName string
			args   []string
			kind   routecache.Kind
		}{{
			url:    "/",
			fnName: "index",
		}, {
			url:    "/greet/Sam?lang=en",
			fnName: "greet",
			args:   []string{"Sam"},
		}, {
			url:    "/greet/Sam/",
			fnName: "greet",
			args:   []string{"Sam"},
		}, {
			url:    "http://www.example.org/greet/Sam",
			fnName: "greet",
			args:   []string{"Sam"},
		}, {
			url:    "/blog/hello-world.json",
			fnName: "blog_json",
			args:   []string{"hello-world"},
		}, {
			url:    "/blog/latest",
			fnName: "latest",
		}, {
			url:    "/blog/hello-world",
			fnName: "blog",
			args:   []string{"hello-world"},
		}, {
			url:    "/docs",
			fnName: "docs",
		}, {
			url:    "/docs/a/b",
			fnName: "docs",
		}, {
			url:    "/a/b",
			fnName: "ax",
			args:   []string{"b"},
		}, {
			url:    "/a/b/c",
			fnName: routecache.NotFoundName,
			kind:   routecache.KindNotFound,
		}, {
			url:    "/greet/{name}",
			fnName: "greet",
			args:   []string{"{name}"},
		}, {
			url:    "/unknown",
			fnName: routecache.NotFoundName,
			kind:   routecache.KindNotFound,
		}} {
			res, err := r.Lookup(test.url)
			if !assert.NoError(t, err, test.url) {
				continue
			}

			assert.Equal(t, test.fnName, res.FnName, test.url)
			assert.Equal(t, test.args, res.Args, test.url)
			assert.Equal(t, test.kind, res.Kind, test.url)
		}
	}
}

func TestSearchAfterResavingRoute(t *testing.T) {
	r := newTestRouting(t, routing.Options{})

	for _, body := range []string{"x", "x .. x", `"edited " .. x`} {
		route := &routecache.Route{Pattern: "/a/{x}", FnName: "ax", FnBody: body, Args: []string{"x"}}
		_, _, err := r.cache.Save(route, routecache.KindNormal)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, r.Snapshot().Len())

	res, err := r.Search("/a/1")
	require.NoError(t, err)
	assert.Equal(t, `"edited " .. x`, res.Route.FnBody)
}

func TestLookupFallbackChain(t *testing.T) {
	t.Run("not found handler", func(t *testing.T) {
		r := reloaded(t, `
			404 { "nothing here" }
			* { "anything" }
		`, routing.Options{})

		res, err := r.Lookup("/unknown")
		require.NoError(t, err)
		assert.Equal(t, `fn not_found(){"nothing here"}`, res.Source)
		assert.Equal(t, int64(1), r.metrics.Lookups(metrics.LookupNotFound))
	})

	t.Run("wildcard handler", func(t *testing.T) {
		r := reloaded(t, `* { "anything" }`, routing.Options{})

		res, err := r.Lookup("/unknown")
		require.NoError(t, err)
		assert.Equal(t, routecache.WildcardName, res.FnName)
		assert.Equal(t, routecache.KindWildcard, res.Kind)
		assert.Equal(t, int64(1), r.metrics.Lookups(metrics.LookupWildcard))
	})

	t.Run("no route", func(t *testing.T) {
		r := reloaded(t, `fn health() { "ok" }`, routing.Options{})

		_, err := r.Lookup("/unknown")
		assert.ErrorIs(t, err, routing.ErrNoRoute)
		assert.Equal(t, int64(1), r.metrics.Lookups(metrics.LookupNoRoute))
	})
}

func TestWildcardOptionRequiresTruthyValue(t *testing.T) {
	r := reloaded(t, `
		#[cfg(wildcard="false")]
		fn docs() { "docs" }
	`, routing.Options{})

	res, err := r.Lookup("/docs")
	require.NoError(t, err)
	assert.Equal(t, "docs", res.FnName)

	_, err = r.Lookup("/docs/a")
	assert.ErrorIs(t, err, routing.ErrNoRoute)
}

func TestLookupInvalidURL(t *testing.T) {
	r := reloaded(t, testDoc, routing.Options{})
	_, err := r.Lookup("http://[::1")
	assert.Error(t, err)
}

func TestLookupMetrics(t *testing.T) {
	r := reloaded(t, testDoc, routing.Options{})

	_, err := r.Lookup("/greet/Sam")
	require.NoError(t, err)
	_, err = r.Lookup("/blog/latest")
	require.NoError(t, err)

	assert.Equal(t, int64(2), r.metrics.Lookups(metrics.LookupMatched))
	assert.Len(t, r.metrics.RouteLookups(), 2)
}

func cacheFiles(t *testing.T, root string) []string {
	t.Helper()

	var files []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}

			files = append(files, filepath.ToSlash(rel))
		}

		return nil
	})

	require.NoError(t, err)
	return files
}

func TestReloadReconciles(t *testing.T) {
	r := reloaded(t, testDoc, routing.Options{})
	assert.Equal(t, 8, r.Snapshot().Len())

	require.NoError(t, r.Reload(dsl.MustParse(`
		404 { "not found" }

		#[route("/greet/{name}")]
		fn greet(name) { "hi " + name }
	`)))

	var patterns []string
	for _, rt := range r.Snapshot().Routes() {
		patterns = append(patterns, rt.Pattern)
	}

	assert.Equal(t, []string{"/greet/{name}", "/not_found"}, patterns)
	assert.ElementsMatch(
		t,
		[]string{"cache/greet/{name}.route", "handler/not_found.route"},
		cacheFiles(t, r.cache.Root()),
	)

	_, err := r.Get("/blog/latest")
	assert.ErrorIs(t, err, routecache.ErrMiss)

	_, err = r.Lookup("/blog/latest")
	require.NoError(t, err)

	g, ok := r.metrics.Gauge(metrics.KeyIndexRoutes)
	assert.True(t, ok)
	assert.Equal(t, float64(2), g)
}

func TestReloadKeepsUnchangedRoutes(t *testing.T) {
	r := reloaded(t, testDoc, routing.Options{})
	before, err := r.Get("/greet/{name}")
	require.NoError(t, err)

	require.NoError(t, r.Reload(dsl.MustParse(testDoc)))
	after, err := r.Get("/greet/{name}")
	require.NoError(t, err)

	assert.True(t, before.Created.Equal(after.Created))
	assert.True(t, before.Expires.Equal(after.Expires))

	kept, _ := r.metrics.Counter(metrics.KeyCacheKept)
	assert.Equal(t, int64(8), kept)
}

func TestReloadDuplicateLaterWins(t *testing.T) {
	r := reloaded(t, `
		fn health() { "first" }

		#[route("/health")]
		fn check() { "second" }
	`, routing.Options{})

	assert.Equal(t, 1, r.Snapshot().Len())

	res, err := r.Lookup("/health")
	require.NoError(t, err)
	assert.Equal(t, "check", res.FnName)
	assert.NoError(t, r.log.WaitFor("duplicate route /health", 120*time.Millisecond))
}

func TestFailedReloadLeavesIndexUnchanged(t *testing.T) {
	r := reloaded(t, testDoc, routing.Options{})

	blocked := filepath.Join(r.cache.Root(), "cache", "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("not a directory"), 0o644))

	err := r.Reload(dsl.MustParse(`
		fn health() { "ok" }

		#[route("/blocked/{x}")]
		fn blocked(x) { x }
	`))

	require.Error(t, err)
	var werr *routecache.WriteError
	assert.True(t, errors.As(err, &werr))

	assert.Equal(t, 8, r.Snapshot().Len())
	res, err := r.Lookup("/greet/Sam")
	require.NoError(t, err)
	assert.Equal(t, "greet", res.FnName)

	n, _ := r.metrics.Counter(metrics.KeyReloadErrors)
	assert.Equal(t, int64(1), n)
}

func TestReloadAfterClose(t *testing.T) {
	r := newTestRouting(t, routing.Options{})
	r.Close()
	assert.Error(t, r.Reload(dsl.MustParse(testDoc)))
}

func TestConcurrentLookupsDuringReload(t *testing.T) {
	r := reloaded(t, testDoc, routing.Options{})
	defs := dsl.MustParse(testDoc)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []string
	)

	done := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}

				res, err := r.Lookup("/greet/Sam")
				if err != nil || res.FnName != "greet" {
					mu.Lock()
					failures = append(failures, "/greet/Sam")
					mu.Unlock()
				}
			}
		}()
	}

	for range 20 {
		require.NoError(t, r.Reload(defs))
	}

	close(done)
	wg.Wait()
	assert.Empty(t, failures)
}

func waitFirstLoad(t *testing.T, r *testRouting) {
	t.Helper()
	select {
	case <-r.FirstLoad():
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for the first load")
	}
}

func TestFirstLoadWithoutDataClients(t *testing.T) {
	r := newTestRouting(t, routing.Options{})
	waitFirstLoad(t, r)
}

func TestDataClient(t *testing.T) {
	dc, err := testdataclient.NewDoc(testDoc)
	require.NoError(t, err)

	r := newTestRouting(t, routing.Options{
		DataClients: []routing.DataClient{dc},
		PollTimeout: 6 * time.Millisecond,
	})

	waitFirstLoad(t, r)

	res, err := r.Lookup("/greet/Sam")
	require.NoError(t, err)
	assert.Equal(t, "greet", res.FnName)

	require.NoError(t, dc.UpdateDoc(`fn bye() { "bye" }`, []string{"/greet/{name}"}))
	assert.Eventually(t, func() bool {
		res, err := r.Lookup("/bye")
		return err == nil && res.FnName == "bye"
	}, 3*time.Second, 6*time.Millisecond)

	res, err = r.Lookup("/greet/Sam")
	require.NoError(t, err)
	assert.Equal(t, routecache.NotFoundName, res.FnName)
}

func TestDataClientInitialRetry(t *testing.T) {
	dc, err := testdataclient.NewDoc(testDoc)
	require.NoError(t, err)
	dc.FailNext(2)

	r := newTestRouting(t, routing.Options{
		DataClients: []routing.DataClient{dc},
		PollTimeout: 6 * time.Millisecond,
	})

	waitFirstLoad(t, r)
	assert.Equal(t, 8, r.Snapshot().Len())
	assert.NoError(t, r.log.WaitForN("error while receiving initial data", 2, 120*time.Millisecond))
}

func TestDataClientReloadAfterFailedUpdate(t *testing.T) {
	dc, err := testdataclient.NewDoc(testDoc)
	require.NoError(t, err)

	r := newTestRouting(t, routing.Options{
		DataClients: []routing.DataClient{dc},
		PollTimeout: 6 * time.Millisecond,
	})

	waitFirstLoad(t, r)

	dc.FailNext(1)
	require.NoError(t, dc.UpdateDoc(`fn bye() { "bye" }`, nil))
	assert.Eventually(t, func() bool {
		res, err := r.Lookup("/bye")
		return err == nil && res.FnName == "bye"
	}, 3*time.Second, 6*time.Millisecond)

	assert.NoError(t, r.log.WaitFor("error while receiving update", 120*time.Millisecond))
}

func TestDataClientsMergeLaterWins(t *testing.T) {
	first, err := testdataclient.NewDoc(`
		fn health() { "first" }
		fn ping() { "pong" }
	`)

	require.NoError(t, err)

	second, err := testdataclient.NewDoc(`
		#[route("/health")]
		fn check() { "second" }
	`)

	require.NoError(t, err)

	r := newTestRouting(t, routing.Options{
		DataClients: []routing.DataClient{first, second},
		PollTimeout: 6 * time.Millisecond,
	})

	waitFirstLoad(t, r)

	res, err := r.Lookup("/health")
	require.NoError(t, err)
	assert.Equal(t, "check", res.FnName)

	res, err = r.Lookup("/ping")
	require.NoError(t, err)
	assert.Equal(t, "ping", res.FnName)
}
