package metrics

import (
	"net/http"
	"time"
)

const (
	KeyCacheWritten     = "cache.written"
	KeyCacheKept        = "cache.kept"
	KeyCacheWriteErrors = "cache.write.errors"
	KeyCacheMisses      = "cache.misses"
	KeyCacheDeleted     = "cache.deleted"
	KeyIndexRoutes      = "index.routes"
	KeyReload           = "reload"
	KeyReloadErrors     = "reload.errors"
	KeyExecutorErrors   = "executor.errors"
)

// Lookup outcomes.
const (
	LookupMatched  = "matched"
	LookupNotFound = "not_found"
	LookupWildcard = "wildcard"
	LookupNoRoute  = "no_route"
)

// Metrics is the common interface of the metrics backends.
type Metrics interface {
	MeasureSince(key string, start time.Time)
	IncCounter(key string)
	IncCounterBy(key string, value int64)
	UpdateGauge(key string, value float64)
	MeasureRouteLookup(start time.Time)
	IncLookup(outcome string)
	RegisterHandler(path string, mux *http.ServeMux)
}

// Options for initializing metrics collection.
type Options struct {

	// Common prefix for the keys of the different collected metrics.
	// Used as the namespace of the Prometheus metrics.
	Prefix string

	// If set, Go runtime and process metrics are collected in addition
	// to the route metrics.
	EnableRuntimeMetrics bool

	// The buckets of the histograms. Defaults to prometheus.DefBuckets.
	HistogramBuckets []float64
}

type void struct{}

// Void discards all metrics.
var Void Metrics = void{}

// Default is used by the packages that don't get a metrics backend.
var Default = Void

func (void) MeasureSince(string, time.Time)         {}
func (void) IncCounter(string)                      {}
func (void) IncCounterBy(string, int64)             {}
func (void) UpdateGauge(string, float64)            {}
func (void) MeasureRouteLookup(time.Time)           {}
func (void) IncLookup(string)                       {}
func (void) RegisterHandler(string, *http.ServeMux) {}
