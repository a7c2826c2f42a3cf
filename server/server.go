/*
Package server implements the HTTP handler that looks up the route of the
incoming requests, executes the function of the route, and writes the
response.

Requests without a route get the configured default status. When the
function of a route fails, the internal_err handler is executed if the
routes define one, otherwise the response is a plain 500.
*/
package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/zalando/scriptroute/logging"
	"github.com/zalando/scriptroute/metrics"
	"github.com/zalando/scriptroute/routecache"
	"github.com/zalando/scriptroute/routing"
	"github.com/zalando/scriptroute/script"
)

const (
	// TracerName is the name of the tracer used when no tracer is set in
	// the options.
	TracerName = "scriptroute"

	// ErrorParam is the request parameter holding the error message when
	// the internal_err handler is executed.
	ErrorParam = "error"

	// RequestIDHeader carries the id of the request, generated when the
	// incoming request doesn't have one. It is set on the response, too.
	RequestIDHeader = "X-Request-Id"

	lookupSpanName  = "lookup"
	executeSpanName = "execute"
)

// Router looks up the routes of the requests. Implemented by
// routing.Routing.
type Router interface {
	Lookup(rawURL string) (*routing.Result, error)
	Get(key string) (*routecache.Route, error)
}

// Options to create the handler.
type Options struct {

	// Required.
	Router Router

	// Required.
	Executor script.Executor

	// Status of the responses to requests without a route. Defaults to
	// 404.
	DefaultHTTPStatus int

	// Used to create the spans of the requests. Defaults to the tracer
	// of the global provider.
	Tracer trace.Tracer

	// When set, the access log is not written.
	DisableAccessLog bool

	Log     logging.Logger
	Metrics metrics.Metrics
}

type handler struct {
	router        Router
	executor      script.Executor
	defaultStatus int
	tracer        trace.Tracer
	log           logging.Logger
	metrics       metrics.Metrics
}

var errNoRouter = errors.New("missing router")

// New creates the handler.
func New(o Options) (http.Handler, error) {
	if o.Router == nil {
		return nil, errNoRouter
	}

	if o.Executor == nil {
		return nil, errors.New("missing executor")
	}

	if o.DefaultHTTPStatus <= 0 {
		o.DefaultHTTPStatus = http.StatusNotFound
	}

	if o.Tracer == nil {
		o.Tracer = otel.Tracer(TracerName)
	}

	if o.Log == nil {
		o.Log = logging.New()
	}

	if o.Metrics == nil {
		o.Metrics = metrics.Default
	}

	var h http.Handler = &handler{
		router:        o.Router,
		executor:      o.Executor,
		defaultStatus: o.DefaultHTTPStatus,
		tracer:        o.Tracer,
		log:           o.Log,
		metrics:       o.Metrics,
	}

	if !o.DisableAccessLog {
		h = logging.NewHandler(h)
	}

	return h, nil
}

func writeStatus(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}

func etag(body []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
}

// successful GET and HEAD responses get an ETag, unless the function set
// one, and matching conditional requests get 304
func writeResponse(w http.ResponseWriter, r *http.Request, rsp *script.Response) {
	h := w.Header()
	for k, v := range rsp.Header {
		h[k] = v
	}

	if rsp.ContentType != "" {
		h.Set("Content-Type", rsp.ContentType)
	}

	if rsp.Status == http.StatusOK && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		if h.Get("ETag") == "" {
			h.Set("ETag", etag(rsp.Body))
		}

		if r.Header.Get("If-None-Match") == h.Get("ETag") {
			h.Del("Content-Type")
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	h.Set("Content-Length", strconv.Itoa(len(rsp.Body)))
	w.WriteHeader(rsp.Status)
	w.Write(rsp.Body)
}

func requestID(r *http.Request) string {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
		r.Header.Set(RequestIDHeader, id)
	}

	return id
}

func (h *handler) lookup(r *http.Request) (*routing.Result, error) {
	_, span := h.tracer.Start(r.Context(), lookupSpanName)
	defer span.End()

	res, err := h.router.Lookup(r.URL.RequestURI())
	if err != nil {
		if !errors.Is(err, routing.ErrNoRoute) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return nil, err
	}

	span.SetAttributes(
		attribute.String("scriptroute.route", res.Route.Pattern),
		attribute.String("scriptroute.kind", res.Kind.String()),
	)

	return res, nil
}

func (h *handler) execute(r *http.Request, res *routing.Result) (*script.Response, error) {
	ctx, span := h.tracer.Start(
		r.Context(),
		executeSpanName,
		trace.WithAttributes(attribute.String("scriptroute.function", res.FnName)),
	)
	defer span.End()

	rsp, err := h.executor.Execute(ctx, res, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", rsp.Status))
	return rsp, nil
}

// the internal_err handler gets the error message as a request parameter
func (h *handler) internalError(r *http.Request, cause error) (*script.Response, bool) {
	route, err := h.router.Get(routecache.InternalErrorName)
	if err != nil {
		return nil, false
	}

	res := &routing.Result{
		Route:  route,
		Kind:   routecache.KindStatus,
		FnName: route.FnName,
		Source: route.Callable(),
		Params: map[string]string{ErrorParam: cause.Error()},
	}

	rsp, err := h.execute(r, res)
	if err != nil {
		h.log.Errorf("error executing internal error handler: %v", err)
		h.metrics.IncCounter(metrics.KeyExecutorErrors)
		return nil, false
	}

	if rsp.Status == http.StatusOK {
		rsp.Status = http.StatusInternalServerError
	}

	return rsp, true
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := requestID(r)
	w.Header().Set(RequestIDHeader, id)

	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(
		ctx,
		r.Method+" "+r.URL.Path,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
			attribute.String("scriptroute.request_id", id),
		),
	)
	defer span.End()

	r = r.WithContext(ctx)

	res, err := h.lookup(r)
	switch {
	case errors.Is(err, routing.ErrNoRoute):
		span.SetAttributes(attribute.Int("http.response.status_code", h.defaultStatus))
		writeStatus(w, h.defaultStatus)
		return
	case err != nil:
		h.log.Debugf("invalid request url %s: %v", r.URL, err)
		span.SetStatus(codes.Error, err.Error())
		writeStatus(w, http.StatusBadRequest)
		return
	}

	logging.SetFunction(ctx, res.FnName)
	span.SetAttributes(attribute.String("scriptroute.function", res.FnName))

	rsp, err := h.execute(r, res)
	if err != nil {
		h.log.Errorf("%v", err)
		h.metrics.IncCounter(metrics.KeyExecutorErrors)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		var ok bool
		if rsp, ok = h.internalError(r, err); !ok {
			writeStatus(w, http.StatusInternalServerError)
			return
		}
	} else if res.Kind == routecache.KindNotFound && rsp.Status == http.StatusOK {
		rsp.Status = http.StatusNotFound
	}

	span.SetAttributes(attribute.Int("http.response.status_code", rsp.Status))
	if err == nil {
		span.SetStatus(codes.Ok, "")
	}

	writeResponse(w, r, rsp)
}
