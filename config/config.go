package config

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/zalando/scriptroute"
	"github.com/zalando/scriptroute/otel"
	"github.com/zalando/scriptroute/routecache"
	"github.com/zalando/scriptroute/routing"
)

type Config struct {
	ConfigFile string
	Flags      *flag.FlagSet

	// generic:
	Address                 string `yaml:"address"`
	SupportListener         string `yaml:"support-listener"`
	DefaultHTTPStatus       int    `yaml:"default-http-status"`
	ParallelSearchThreshold int    `yaml:"parallel-search-threshold"`
	PrintVersion            bool   `yaml:"version"`

	// logging, metrics:
	MetricsPrefix                string    `yaml:"metrics-prefix"`
	RuntimeMetrics               bool      `yaml:"runtime-metrics"`
	HistogramMetricBucketsString string    `yaml:"histogram-metric-buckets"`
	HistogramMetricBuckets       []float64 `yaml:"-"`
	ApplicationLog               string    `yaml:"application-log"`
	ApplicationLogLevel          log.Level `yaml:"-"`
	ApplicationLogLevelString    string    `yaml:"application-log-level"`
	ApplicationLogPrefix         string    `yaml:"application-log-prefix"`
	ApplicationLogJSONEnabled    bool      `yaml:"application-log-json-enabled"`
	AccessLog                    string    `yaml:"access-log"`
	AccessLogDisabled            bool      `yaml:"access-log-disabled"`
	AccessLogJSONEnabled         bool      `yaml:"access-log-json-enabled"`

	// tracing:
	OpenTelemetry *otel.Options `yaml:"open-telemetry"`

	// route sources:
	RoutesFiles        *listFlag     `yaml:"routes-file"`
	InlineRoutes       documentsFlag `yaml:"inline-routes"`
	SourcePollTimeout  int64         `yaml:"source-poll-timeout"`
	WaitFirstRouteLoad bool          `yaml:"wait-first-route-load"`

	// route cache:
	CacheDir string        `yaml:"cache-dir"`
	CacheTTL time.Duration `yaml:"cache-ttl"`

	// scripts:
	LuaModules  *listFlag `yaml:"lua-modules"`
	LuaPoolSize int       `yaml:"lua-pool-size"`

	// http server:
	ReadTimeoutServer       time.Duration `yaml:"read-timeout-server"`
	ReadHeaderTimeoutServer time.Duration `yaml:"read-header-timeout-server"`
	WriteTimeoutServer      time.Duration `yaml:"write-timeout-server"`
	IdleTimeoutServer       time.Duration `yaml:"idle-timeout-server"`
}

func NewConfig() *Config {
	cfg := new(Config)
	cfg.RoutesFiles = commaListFlag()
	cfg.LuaModules = commaListFlag()

	flag := flag.NewFlagSet("", flag.ExitOnError)
	flag.StringVar(&cfg.ConfigFile, "config-file", "", "if provided the flags will be loaded/overwritten by the values on the file (yaml)")

	// generic:
	flag.StringVar(&cfg.Address, "address", scriptroute.DefaultAddress, "network address that scriptroute should listen on")
	flag.StringVar(&cfg.SupportListener, "support-listener", scriptroute.DefaultSupportListener, "network address used for exposing the /metrics and /healthz endpoints. An empty value disables support endpoint.")
	flag.IntVar(&cfg.DefaultHTTPStatus, "default-http-status", http.StatusNotFound, "default HTTP status used when no route is found for a request")
	flag.IntVar(&cfg.ParallelSearchThreshold, "parallel-search-threshold", 0, "number of candidate routes above which the pattern search runs concurrently, 0 disables the parallel search")
	flag.BoolVar(&cfg.PrintVersion, "version", false, "print scriptroute version")

	// logging, metrics:
	flag.StringVar(&cfg.MetricsPrefix, "metrics-prefix", "scriptroute.", "allows setting a custom prefix for the exported metrics")
	flag.BoolVar(&cfg.RuntimeMetrics, "runtime-metrics", true, "enables reporting of the Go runtime and process statistics")
	flag.StringVar(&cfg.HistogramMetricBucketsString, "histogram-metric-buckets", "", "use custom buckets for prometheus histograms, must be a comma-separated list of numbers")
	flag.StringVar(&cfg.ApplicationLog, "application-log", "", "output file for the application log. When not set, /dev/stderr is used")
	flag.StringVar(&cfg.ApplicationLogLevelString, "application-log-level", "INFO", "log level for application logs, possible values: PANIC, FATAL, ERROR, WARN, INFO, DEBUG")
	flag.StringVar(&cfg.ApplicationLogPrefix, "application-log-prefix", "[APP]", "prefix for each log entry")
	flag.BoolVar(&cfg.ApplicationLogJSONEnabled, "application-log-json-enabled", false, "when this flag is set, log in JSON format is used")
	flag.StringVar(&cfg.AccessLog, "access-log", "", "output file for the access log, When not set, /dev/stderr is used")
	flag.BoolVar(&cfg.AccessLogDisabled, "access-log-disabled", false, "when this flag is set, no access log is printed")
	flag.BoolVar(&cfg.AccessLogJSONEnabled, "access-log-json-enabled", false, "when this flag is set, log in JSON format is used")

	// tracing:
	flag.Var(newYamlFlag(&cfg.OpenTelemetry), "open-telemetry", "OpenTelemetry configuration in YAML format, use flow-style for convenience, e.g. {service-name: routes}")

	// route sources:
	flag.Var(cfg.RoutesFiles, "routes-file", "comma separated list of files containing route definitions, watched for changes")
	flag.Var(&cfg.InlineRoutes, "inline-routes", "inline routing document, can be repeated")
	flag.Int64Var(&cfg.SourcePollTimeout, "source-poll-timeout", routing.DefaultPollTimeout.Milliseconds(), "polling timeout of the routing data sources, in milliseconds")
	flag.BoolVar(&cfg.WaitFirstRouteLoad, "wait-first-route-load", false, "prevent starting the listener before the first batch of routes were loaded")

	// route cache:
	flag.StringVar(&cfg.CacheDir, "cache-dir", scriptroute.DefaultCacheDir, "root directory of the route cache")
	flag.DurationVar(&cfg.CacheTTL, "cache-ttl", routecache.DefaultTTL, "time after which unchanged routes are rewritten in the cache")

	// scripts:
	flag.Var(cfg.LuaModules, "lua-modules", "comma separated list of lua modules. Use <module>.<symbol> to selectively enable module symbols, for example: base._G,base.print,string,json")
	flag.IntVar(&cfg.LuaPoolSize, "lua-pool-size", 0, "number of idle lua states kept for reuse, 0 means the default")

	// http server:
	flag.DurationVar(&cfg.ReadTimeoutServer, "read-timeout-server", 5*time.Minute, "set ReadTimeout for http server connections")
	flag.DurationVar(&cfg.ReadHeaderTimeoutServer, "read-header-timeout-server", 60*time.Second, "set ReadHeaderTimeout for http server connections")
	flag.DurationVar(&cfg.WriteTimeoutServer, "write-timeout-server", 60*time.Second, "set WriteTimeout for http server connections")
	flag.DurationVar(&cfg.IdleTimeoutServer, "idle-timeout-server", 60*time.Second, "set IdleTimeout for http server connections")

	cfg.Flags = flag
	return cfg
}

func validate(c *Config) error {
	_, err := log.ParseLevel(c.ApplicationLogLevelString)
	if err != nil {
		return err
	}

	if c.DefaultHTTPStatus < 100 || c.DefaultHTTPStatus > 999 {
		return fmt.Errorf("invalid default-http-status: %d", c.DefaultHTTPStatus)
	}

	if c.ParallelSearchThreshold < 0 {
		return fmt.Errorf("invalid parallel-search-threshold: %d", c.ParallelSearchThreshold)
	}

	if c.CacheDir == "" {
		return fmt.Errorf("missing cache-dir")
	}

	_, err = c.parseHistogramBuckets(c.HistogramMetricBucketsString, prometheus.DefBuckets)
	return err
}

func (c *Config) Parse() error {
	return c.ParseArgs(os.Args[0], os.Args[1:])
}

func (c *Config) ParseArgs(progname string, args []string) error {
	c.Flags.Init(progname, flag.ContinueOnError)
	err := c.Flags.Parse(args)
	if err != nil {
		return err
	}

	// check if arguments were correctly parsed.
	if len(c.Flags.Args()) != 0 {
		return fmt.Errorf("invalid arguments: %s", c.Flags.Args())
	}

	if c.ConfigFile != "" {
		yamlFile, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return fmt.Errorf("invalid config file: %w", err)
		}

		err = yaml.Unmarshal(yamlFile, c)
		if err != nil {
			return fmt.Errorf("unmarshalling config file error: %w", err)
		}

		// flags take precedence over the config file
		err = c.Flags.Parse(args)
		if err != nil {
			return err
		}
	}

	if err := validate(c); err != nil {
		return err
	}

	c.ApplicationLogLevel, _ = log.ParseLevel(c.ApplicationLogLevelString)
	c.HistogramMetricBuckets, _ = c.parseHistogramBuckets(c.HistogramMetricBucketsString, prometheus.DefBuckets)
	return nil
}

func (c *Config) ToOptions() scriptroute.Options {
	return scriptroute.Options{
		// generic:
		Address:                 c.Address,
		SupportListener:         c.SupportListener,
		DefaultHTTPStatus:       c.DefaultHTTPStatus,
		ParallelSearchThreshold: c.ParallelSearchThreshold,

		// logging, metrics:
		MetricsPrefix:             c.MetricsPrefix,
		EnableRuntimeMetrics:      c.RuntimeMetrics,
		HistogramMetricBuckets:    c.HistogramMetricBuckets,
		ApplicationLogOutput:      c.ApplicationLog,
		ApplicationLogLevel:       c.ApplicationLogLevel,
		ApplicationLogPrefix:      c.ApplicationLogPrefix,
		ApplicationLogJSONEnabled: c.ApplicationLogJSONEnabled,
		AccessLogOutput:           c.AccessLog,
		AccessLogDisabled:         c.AccessLogDisabled,
		AccessLogJSONEnabled:      c.AccessLogJSONEnabled,

		// tracing:
		OpenTelemetry: c.OpenTelemetry,

		// route sources:
		RoutesFiles:        c.RoutesFiles.values,
		InlineRoutes:       c.InlineRoutes,
		SourcePollTimeout:  time.Duration(c.SourcePollTimeout) * time.Millisecond,
		WaitFirstRouteLoad: c.WaitFirstRouteLoad,

		// route cache:
		CacheDir: c.CacheDir,
		CacheTTL: c.CacheTTL,

		// scripts:
		LuaModules:  c.LuaModules.values,
		LuaPoolSize: c.LuaPoolSize,

		// http server:
		ReadTimeoutServer:       c.ReadTimeoutServer,
		ReadHeaderTimeoutServer: c.ReadHeaderTimeoutServer,
		WriteTimeoutServer:      c.WriteTimeoutServer,
		IdleTimeoutServer:       c.IdleTimeoutServer,
	}
}

func (c *Config) parseHistogramBuckets(bucketString string, defaultBuckets []float64) ([]float64, error) {
	if bucketString == "" {
		return defaultBuckets, nil
	}

	var result []float64
	thresholds := strings.Split(bucketString, ",")
	for _, v := range thresholds {
		bucket, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("unable to parse histogram-metric-buckets: %w", err)
		}
		result = append(result, bucket)
	}
	sort.Float64s(result)
	return result, nil
}
