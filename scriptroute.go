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

package scriptroute

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/zalando/scriptroute/dataclients/routestring"
	"github.com/zalando/scriptroute/logging"
	"github.com/zalando/scriptroute/metrics"
	"github.com/zalando/scriptroute/otel"
	"github.com/zalando/scriptroute/routecache"
	"github.com/zalando/scriptroute/routesfile"
	"github.com/zalando/scriptroute/routing"
	"github.com/zalando/scriptroute/script"
	"github.com/zalando/scriptroute/server"
)

const (
	DefaultAddress         = ":9090"
	DefaultSupportListener = ":9911"
	DefaultCacheDir        = ".scriptroute"

	defaultShutdownTimeout = 30 * time.Second
	metricsPath            = "/metrics"
	healthPath             = "/healthz"
)

// Options to start scriptroute.
type Options struct {

	// Network address that scriptroute should listen on.
	Address string

	// Network address for the /metrics and /healthz endpoints. When
	// empty, these endpoints are not served.
	SupportListener string

	// List of routes files to watch for route definitions.
	RoutesFiles []string

	// List of routing documents passed in as strings.
	InlineRoutes []string

	// Custom data clients, read after the routes files and the inline
	// routes.
	CustomDataClients []routing.DataClient

	// Root directory of the route cache.
	CacheDir string

	// Time after which unchanged routes are rewritten in the cache.
	CacheTTL time.Duration

	// Polling timeout of the data clients.
	SourcePollTimeout time.Duration

	// Number of candidate routes above which the pattern search runs
	// concurrently.
	ParallelSearchThreshold int

	// When set, the server starts listening only after the routes were
	// loaded for the first time.
	WaitFirstRouteLoad bool

	// Status of the responses to requests without a route.
	DefaultHTTPStatus int

	// Enabled Lua modules, e.g. "base", "string.format", "json". Empty
	// means all.
	LuaModules []string

	// Number of idle Lua states kept for reuse.
	LuaPoolSize int

	// Executes the route functions instead of the Lua executor.
	CustomExecutor script.Executor

	// Used to create the request spans. Defaults to the tracer of the
	// global otel provider.
	Tracer trace.Tracer

	// When set, the global OpenTelemetry pipeline is initialized from
	// the OTEL_* environment variables.
	OpenTelemetry *otel.Options

	// Timeouts of the main server.
	ReadTimeoutServer       time.Duration
	ReadHeaderTimeoutServer time.Duration
	WriteTimeoutServer      time.Duration
	IdleTimeoutServer       time.Duration

	// Prefix of the metric names.
	MetricsPrefix string

	// Collect the Go runtime and process metrics.
	EnableRuntimeMetrics bool

	// Buckets of the histogram metrics.
	HistogramMetricBuckets []float64

	// Output file of the application log. Empty means stderr.
	ApplicationLogOutput string

	// Prefix of the application log entries.
	ApplicationLogPrefix string

	// Level of the application log. The zero value, panic, falls back
	// to info.
	ApplicationLogLevel       logrus.Level
	ApplicationLogJSONEnabled bool

	// Output file of the access log. Empty means stderr.
	AccessLogOutput string

	AccessLogDisabled    bool
	AccessLogJSONEnabled bool
}

func (o Options) withDefaults() Options {
	if o.Address == "" {
		o.Address = DefaultAddress
	}

	if o.CacheDir == "" {
		o.CacheDir = DefaultCacheDir
	}

	if o.ApplicationLogLevel == logrus.PanicLevel {
		o.ApplicationLogLevel = logrus.InfoLevel
	}

	return o
}

func openLogFile(path string) (io.Writer, error) {
	if path == "" {
		return os.Stderr, nil
	}

	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

func initLog(o Options) error {
	appOut, err := openLogFile(o.ApplicationLogOutput)
	if err != nil {
		return fmt.Errorf("failed to open application log: %w", err)
	}

	accessOut, err := openLogFile(o.AccessLogOutput)
	if err != nil {
		return fmt.Errorf("failed to open access log: %w", err)
	}

	logging.Init(logging.Options{
		ApplicationLogPrefix:      o.ApplicationLogPrefix,
		ApplicationLogOutput:      appOut,
		ApplicationLogLevel:       o.ApplicationLogLevel,
		ApplicationLogJSONEnabled: o.ApplicationLogJSONEnabled,
		AccessLogOutput:           accessOut,
		AccessLogDisabled:         o.AccessLogDisabled,
		AccessLogJSONEnabled:      o.AccessLogJSONEnabled,
	})

	return nil
}

// returns the data clients and a function to stop the file watchers
func createDataClients(o Options) ([]routing.DataClient, func(), error) {
	var (
		clients  []routing.DataClient
		watchers []*routesfile.WatchClient
	)

	stop := func() {
		for _, w := range watchers {
			w.Close()
		}
	}

	for _, f := range o.RoutesFiles {
		w := routesfile.Watch(f)
		watchers = append(watchers, w)
		clients = append(clients, w)
	}

	if len(o.InlineRoutes) > 0 {
		rs, err := routestring.NewList(o.InlineRoutes)
		if err != nil {
			stop()
			return nil, nil, fmt.Errorf("failed to parse inline routes: %w", err)
		}

		clients = append(clients, rs)
	}

	clients = append(clients, o.CustomDataClients...)
	return clients, stop, nil
}

// healthCheck reports unavailable until the first load of the routes
func healthCheck(firstLoad <-chan struct{}) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status, body := http.StatusOK, "ok"
		select {
		case <-firstLoad:
		default:
			status, body = http.StatusServiceUnavailable, "loading routes"
		}

		w.WriteHeader(status)
		if _, err := w.Write([]byte(body)); err != nil {
			logrus.Errorf("failed to write health check: %v", err)
		}
	}
}

func listenAndServeSupport(address string, m metrics.Metrics, firstLoad <-chan struct{}) *http.Server {
	mux := http.NewServeMux()
	m.RegisterHandler(metricsPath, mux)
	mux.HandleFunc(healthPath, healthCheck(firstLoad))

	s := &http.Server{Addr: address, Handler: mux}
	go func() {
		logrus.Infof("support listener on %s", address)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("support listener failed: %v", err)
		}
	}()

	return s
}

// RunWithShutdown runs scriptroute until a signal is received on sig.
// After the server stopped accepting new requests and the open
// requests were served, idleConnsCH is closed, if set.
func RunWithShutdown(o Options, sig chan os.Signal, idleConnsCH chan struct{}) error {
	o = o.withDefaults()
	if err := initLog(o); err != nil {
		return err
	}

	log := logging.New()
	if o.OpenTelemetry != nil {
		shutdown, err := otel.Init(context.Background(), o.OpenTelemetry)
		if err != nil {
			return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
		}

		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				log.Errorf("failed to shut down OpenTelemetry: %v", err)
			}
		}()
	}

	m := metrics.NewPrometheus(metrics.Options{
		Prefix:               o.MetricsPrefix,
		EnableRuntimeMetrics: o.EnableRuntimeMetrics,
		HistogramBuckets:     o.HistogramMetricBuckets,
	})

	metrics.Default = m

	cache, err := routecache.New(routecache.Options{
		Root:    o.CacheDir,
		TTL:     o.CacheTTL,
		Log:     log,
		Metrics: m,
	})

	if err != nil {
		return err
	}

	dataClients, stopWatchers, err := createDataClients(o)
	if err != nil {
		return err
	}

	defer stopWatchers()

	if len(dataClients) == 0 {
		log.Warn("no route source specified")
	}

	rt, err := routing.New(routing.Options{
		Cache:                   cache,
		DataClients:             dataClients,
		PollTimeout:             o.SourcePollTimeout,
		ParallelSearchThreshold: o.ParallelSearchThreshold,
		Log:                     log,
		Metrics:                 m,
	})

	if err != nil {
		return err
	}

	defer rt.Close()

	executor := o.CustomExecutor
	if executor == nil {
		lua := script.NewLua(script.LuaOptions{
			Modules:  o.LuaModules,
			PoolSize: o.LuaPoolSize,
			Log:      log,
		})

		defer lua.Close()
		executor = lua
	}

	handler, err := server.New(server.Options{
		Router:            rt,
		Executor:          executor,
		DefaultHTTPStatus: o.DefaultHTTPStatus,
		Tracer:            o.Tracer,
		DisableAccessLog:  o.AccessLogDisabled,
		Log:               log,
		Metrics:           m,
	})

	if err != nil {
		return err
	}

	if o.SupportListener != "" {
		support := listenAndServeSupport(o.SupportListener, m, rt.FirstLoad())
		defer support.Close()
	}

	if o.WaitFirstRouteLoad {
		<-rt.FirstLoad()
		log.Info("routes loaded")
	}

	srv := &http.Server{
		Addr:              o.Address,
		Handler:           handler,
		ReadTimeout:       o.ReadTimeoutServer,
		ReadHeaderTimeout: o.ReadHeaderTimeoutServer,
		WriteTimeout:      o.WriteTimeoutServer,
		IdleTimeout:       o.IdleTimeoutServer,
	}

	l, err := net.Listen("tcp", o.Address)
	if err != nil {
		return err
	}

	go func() {
		<-sig
		log.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("failed to shut down: %v", err)
		}

		if idleConnsCH != nil {
			close(idleConnsCH)
		}
	}()

	log.Infof("listening on %v", o.Address)
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Run scriptroute until SIGTERM or SIGINT.
func Run(o Options) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT)
	return RunWithShutdown(o, sig, nil)
}
