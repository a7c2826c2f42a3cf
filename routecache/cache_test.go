package routecache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/scriptroute/dsl"
	"github.com/zalando/scriptroute/logging/loggingtest"
	"github.com/zalando/scriptroute/metrics/metricstest"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func newTestCache(t *testing.T, clock *testClock) *Cache {
	t.Helper()

	l := loggingtest.New()
	t.Cleanup(l.Close)

	c, err := New(Options{
		Root:    t.TempDir(),
		Now:     clock.now,
		Log:     l,
		Metrics: &metricstest.MockMetrics{},
	})

	require.NoError(t, err)
	return c
}

func greetRoute() *Route {
	return &Route{
		Pattern: "/greet/{name}",
		FnName:  "greet",
		FnBody:  `"hi " + name`,
		Args:    []string{"name"},
	}
}

func TestNewRequiresRoot(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestSaveGetRoundTrip(t *testing.T) {
	c := newTestCache(t, newTestClock())

	hash, saved, err := c.Save(greetRoute(), KindNormal)
	require.NoError(t, err)
	assert.Equal(t, saved.Hash, hash)
	assert.Equal(t, filepath.Join(c.Root(), "cache", "greet", "{name}.route"), saved.CachePath)

	r, err := c.Get("/greet/{name}")
	require.NoError(t, err)

	assert.Equal(t, "/greet/{name}", r.Pattern)
	assert.Equal(t, "greet", r.FnName)
	assert.Equal(t, `"hi " + name`, r.FnBody)
	assert.Equal(t, []string{"name"}, r.Args)
	assert.Equal(t, hash, r.Hash)
	assert.True(t, saved.Created.Equal(r.Created))
	assert.True(t, saved.Expires.Equal(r.Expires))
	assert.Equal(t, DefaultTTL, r.Expires.Sub(r.Created))

	_, _, ok := c.Index().Snapshot().Get(hash)
	assert.True(t, ok, "saved route not indexed")
}

func TestSaveKeepsUnchangedRoute(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(t, clock)

	_, first, err := c.Save(greetRoute(), KindNormal)
	require.NoError(t, err)

	clock.advance(time.Hour)
	_, second, err := c.Save(greetRoute(), KindNormal)
	require.NoError(t, err)

	assert.True(t, first.Created.Equal(second.Created))
	assert.True(t, first.Expires.Equal(second.Expires))

	r, err := c.Get("/greet/{name}")
	require.NoError(t, err)
	assert.True(t, first.Created.Equal(r.Created))

	clock.advance(DefaultTTL)
	_, third, err := c.Save(greetRoute(), KindNormal)
	require.NoError(t, err)
	assert.True(t, third.Created.Equal(clock.now()), "expired route not rewritten")
	assert.True(t, third.Expires.Equal(clock.now().Add(DefaultTTL)))
}

func TestSaveRewritesChangedBody(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(t, clock)

	firstHash, _, err := c.Save(greetRoute(), KindNormal)
	require.NoError(t, err)

	clock.advance(time.Minute)
	changed := greetRoute()
	changed.FnBody = `"hello " + name`
	secondHash, second, err := c.Save(changed, KindNormal)
	require.NoError(t, err)

	assert.NotEqual(t, firstHash, secondHash)
	assert.True(t, second.Created.Equal(clock.now()))

	r, err := c.Get("/greet/{name}")
	require.NoError(t, err)
	assert.Equal(t, `"hello " + name`, r.FnBody)
}

func TestSaveChangedBodyReplacesIndexEntry(t *testing.T) {
	c := newTestCache(t, newTestClock())

	firstHash, _, err := c.Save(greetRoute(), KindNormal)
	require.NoError(t, err)

	changed := greetRoute()
	changed.FnBody = `"hello " .. name`
	secondHash, saved, err := c.Save(changed, KindNormal)
	require.NoError(t, err)

	s := c.Index().Snapshot()
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []string{saved.CachePath}, s.CachePaths())

	_, _, ok := s.Get(firstHash)
	assert.False(t, ok)

	r, _, ok := s.Get(secondHash)
	require.True(t, ok)
	assert.Equal(t, `"hello " .. name`, r.FnBody)
}

func TestSaveUpdatesArgsWithoutRestamping(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(t, clock)

	_, first, err := c.Save(greetRoute(), KindNormal)
	require.NoError(t, err)

	clock.advance(time.Minute)
	changed := greetRoute()
	changed.Args = []string{"name", "greeting"}
	changed.Config = map[string]string{"wildcard": "true"}
	_, second, err := c.Save(changed, KindNormal)
	require.NoError(t, err)

	assert.Equal(t, first.Hash, second.Hash)
	assert.True(t, first.Created.Equal(second.Created))

	r, err := c.Get("/greet/{name}")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "greeting"}, r.Args)
	assert.Equal(t, "true", r.Config["wildcard"])
}

func TestHashIgnoresArgsAndConfig(t *testing.T) {
	c := newTestCache(t, newTestClock())

	a := c.Cache(greetRoute(), KindNormal)

	b := greetRoute()
	b.Args = []string{"name", "other"}
	b.Config = map[string]string{"wildcard": "true"}
	bc := c.Cache(b, KindNormal)

	assert.Equal(t, a.Hash, bc.Hash)

	d := greetRoute()
	d.FnName = "greet2"
	assert.NotEqual(t, a.Hash, c.Cache(d, KindNormal).Hash)

	e := greetRoute()
	e.Pattern = "/hello/{name}"
	assert.NotEqual(t, a.Hash, c.Cache(e, KindNormal).Hash)
}

func TestCacheDoesNotModifyInput(t *testing.T) {
	c := newTestCache(t, newTestClock())

	r := &Route{Pattern: "/a/b.json", FnName: "a/b.json", FnBody: "x"}
	cached := c.Cache(r, KindWildcard)

	assert.Equal(t, "/a/b.json", r.Pattern)
	assert.Equal(t, "a/b.json", r.FnName)
	assert.Equal(t, "/wildcard", cached.Pattern)
}

func TestCacheKinds(t *testing.T) {
	c := newTestCache(t, newTestClock())

	for _, test := range []struct {
		title    string
		route    *Route
		kind     Kind
		pattern  string
		name     string
		location []string
	}{{
		title:    "normal",
		route:    &Route{Pattern: "/blog/{slug}.json", FnName: "blog"},
		kind:     KindNormal,
		pattern:  "/blog/{slug}.json",
		name:     "blog",
		location: []string{"cache", "blog", "{slug}.json.route"},
	}, {
		title:    "normal with unclean pattern",
		route:    &Route{Pattern: "/a/../b//c/", FnName: "c"},
		kind:     KindNormal,
		pattern:  "/b/c",
		name:     "c",
		location: []string{"cache", "b", "c.route"},
	}, {
		title:    "root pattern",
		route:    &Route{Pattern: "/", FnName: "index"},
		kind:     KindNormal,
		pattern:  "/index",
		name:     "index",
		location: []string{"cache", "index.route"},
	}, {
		title:    "name normalization",
		route:    &Route{Pattern: "/v1.0", FnName: "api/v1.0"},
		kind:     KindNormal,
		pattern:  "/v1.0",
		name:     "api_v1_d0",
		location: []string{"cache", "v1.0.route"},
	}, {
		title:    "wildcard",
		route:    &Route{},
		kind:     KindWildcard,
		pattern:  "/wildcard",
		name:     "wildcard",
		location: []string{"handler", "wildcard.route"},
	}, {
		title:    "not found",
		route:    &Route{Status: 404},
		kind:     KindNotFound,
		pattern:  "/not_found",
		name:     "not_found",
		location: []string{"handler", "not_found.route"},
	}, {
		title:    "internal error",
		route:    &Route{Status: 500},
		kind:     KindStatus,
		pattern:  "/internal_err",
		name:     "internal_err",
		location: []string{"handler", "internal_err.route"},
	}, {
		title:    "other status",
		route:    &Route{Status: 503},
		kind:     KindStatus,
		pattern:  "/status_503",
		name:     "status_503",
		location: []string{"handler", "status_503.route"},
	}} {
		t.Run(test.title, func(t *testing.T) {
			r := c.Cache(test.route, test.kind)
			assert.Equal(t, test.pattern, r.Pattern)
			assert.Equal(t, test.name, r.FnName)
			assert.Equal(t, filepath.Join(append([]string{c.Root()}, test.location...)...), r.CachePath)
			assert.Len(t, r.Hash, 32)
		})
	}
}

func TestGetLogicalKeys(t *testing.T) {
	c := newTestCache(t, newTestClock())

	defs := dsl.MustParse(`
		index { text("home") }
		404 { text("nope") }
		500 { text("failed") }
		* { text("any") }
	`)

	for _, d := range defs {
		r, kind := FromDefinition(d)
		_, _, err := c.Save(r, kind)
		require.NoError(t, err)
	}

	for key, body := range map[string]string{
		"/":               `text("home")`,
		"/index":          `text("home")`,
		NotFoundName:      `text("nope")`,
		InternalErrorName: `text("failed")`,
		WildcardName:      `text("any")`,
	} {
		r, err := c.Get(key)
		if assert.NoError(t, err, key) {
			assert.Equal(t, body, r.FnBody, key)
		}
	}
}

func TestGetMiss(t *testing.T) {
	c := newTestCache(t, newTestClock())

	_, err := c.Get("/missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMiss))

	var rerr *ReadError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "/missing", rerr.Key)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestGetCorruptRecord(t *testing.T) {
	c := newTestCache(t, newTestClock())

	_, saved, err := c.Save(greetRoute(), KindNormal)
	require.NoError(t, err)

	b, err := os.ReadFile(saved.CachePath)
	require.NoError(t, err)

	for _, content := range [][]byte{
		b[:len(b)/2],
		b[:len(b)-4],
		[]byte("{{{ not yaml"),
		nil,
	} {
		require.NoError(t, os.WriteFile(saved.CachePath, content, 0o644))
		_, err := c.Get("/greet/{name}")
		assert.True(t, errors.Is(err, ErrMiss), "expected miss for %q", content)
	}
}

func TestSaveCorruptRecordIsRewritten(t *testing.T) {
	c := newTestCache(t, newTestClock())

	_, saved, err := c.Save(greetRoute(), KindNormal)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(saved.CachePath, []byte("route: /greet"), 0o644))

	_, _, err = c.Save(greetRoute(), KindNormal)
	require.NoError(t, err)

	r, err := c.Get("/greet/{name}")
	require.NoError(t, err)
	assert.Equal(t, saved.Hash, r.Hash)
}

func TestSaveWriteError(t *testing.T) {
	root := filepath.Join(t.TempDir(), "root")
	require.NoError(t, os.WriteFile(root, []byte("not a directory"), 0o644))

	c, err := New(Options{Root: root, Log: loggingtest.New()})
	require.NoError(t, err)

	_, _, err = c.Save(greetRoute(), KindNormal)
	require.Error(t, err)

	var werr *WriteError
	assert.True(t, errors.As(err, &werr))
	assert.Equal(t, 0, c.Index().Snapshot().Len())
}

func TestCleanup(t *testing.T) {
	c := newTestCache(t, newTestClock())

	var (
		all  []Entry
		kept []Entry
	)

	for _, r := range []*Route{
		{Pattern: "/a", FnName: "a"},
		{Pattern: "/nested/deep/b", FnName: "b"},
		{Pattern: "/nested/c", FnName: "c"},
		{Pattern: "/other/{id}", FnName: "d", Args: []string{"id"}},
	} {
		hash, saved, err := c.Save(r, KindNormal)
		require.NoError(t, err)

		e := Entry{Hash: hash, Route: saved, Kind: KindNormal}
		all = append(all, e)
		if saved.FnName == "a" || saved.FnName == "c" {
			kept = append(kept, e)
		}
	}

	stray := filepath.Join(c.Root(), "handler", "not_found.route")
	require.NoError(t, os.MkdirAll(filepath.Dir(stray), 0o755))
	require.NoError(t, os.WriteFile(stray, []byte("stale"), 0o644))

	c.Index().Update(all)
	c.Index().Update(kept)
	deleted, err := c.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	for _, e := range kept {
		assert.FileExists(t, e.Route.CachePath)
	}

	for _, e := range all[1:] {
		if e.Route.FnName != "c" {
			assert.NoFileExists(t, e.Route.CachePath)
		}
	}

	assert.NoFileExists(t, stray)
	assert.NoDirExists(t, filepath.Join(c.Root(), "cache", "nested", "deep"))
	assert.NoDirExists(t, filepath.Join(c.Root(), "cache", "other"))
	assert.DirExists(t, filepath.Join(c.Root(), "cache", "nested"))
}

func TestCleanupEmptyCache(t *testing.T) {
	c := newTestCache(t, newTestClock())

	deleted, err := c.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestListRemovePurge(t *testing.T) {
	c := newTestCache(t, newTestClock())

	for _, r := range []*Route{
		{Pattern: "/b", FnName: "b"},
		{Pattern: "/a/x", FnName: "x"},
	} {
		_, _, err := c.Save(r, KindNormal)
		require.NoError(t, err)
	}

	_, _, err := c.Save(&Route{FnBody: "x"}, KindWildcard)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(c.Root(), "cache", "broken.route"), []byte("x"), 0o644))

	routes, err := c.List()
	require.NoError(t, err)

	var patterns []string
	for _, r := range routes {
		patterns = append(patterns, r.Pattern)
	}

	assert.Equal(t, []string{"/a/x", "/b", "/wildcard"}, patterns)

	require.NoError(t, c.Remove("/b"))
	_, err = c.Get("/b")
	assert.True(t, errors.Is(err, ErrMiss))
	assert.Equal(t, 2, c.Index().Snapshot().Len())

	err = c.Remove("/b")
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, c.Purge())
	routes, err = c.List()
	require.NoError(t, err)
	assert.Empty(t, routes)
	assert.Equal(t, 0, c.Index().Snapshot().Len())
}

func TestCallable(t *testing.T) {
	assert.Equal(t, `fn greet(name){"hi " + name}`, greetRoute().Callable())
	assert.Equal(t, "fn health(){ok}", (&Route{FnName: "health", FnBody: "ok"}).Callable())
	assert.Equal(
		t,
		"fn f(a, b, c){x}",
		(&Route{FnName: "f", Args: []string{"a", "b", "c"}, FnBody: "x"}).Callable(),
	)
}

func TestTruthy(t *testing.T) {
	r := &Route{Config: map[string]string{
		"a": "true",
		"b": "Yes",
		"c": "1",
		"d": " on ",
		"e": "false",
		"f": "",
	}}

	for key, expected := range map[string]bool{
		"a": true, "b": true, "c": true, "d": true,
		"e": false, "f": false, "missing": false,
	} {
		assert.Equal(t, expected, r.Truthy(key), key)
	}
}

func TestStoreDoesNotIndex(t *testing.T) {
	c := newTestCache(t, newTestClock())

	hash, stored, err := c.Store(greetRoute(), KindNormal)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Index().Snapshot().Len())

	r, err := c.Get("/greet/{name}")
	require.NoError(t, err)
	assert.Equal(t, hash, r.Hash)
	assert.Equal(t, stored.Expires, r.Expires)
}

func TestKey(t *testing.T) {
	for _, test := range []struct {
		title    string
		route    *Route
		kind     Kind
		expected string
	}{{
		title:    "normal",
		route:    &Route{Pattern: "/greet/{name}/"},
		kind:     KindNormal,
		expected: "/greet/{name}",
	}, {
		title:    "index",
		route:    &Route{Pattern: "/"},
		kind:     KindNormal,
		expected: dsl.IndexPath,
	}, {
		title:    "wildcard",
		route:    &Route{},
		kind:     KindWildcard,
		expected: WildcardName,
	}, {
		title:    "not found",
		route:    &Route{Status: 404},
		kind:     KindNotFound,
		expected: NotFoundName,
	}, {
		title:    "internal error",
		route:    &Route{Status: 500},
		kind:     KindStatus,
		expected: InternalErrorName,
	}, {
		title:    "other status",
		route:    &Route{Status: 403},
		kind:     KindStatus,
		expected: "status_403",
	}} {
		t.Run(test.title, func(t *testing.T) {
			assert.Equal(t, test.expected, Key(test.route, test.kind))
		})
	}
}
