package logging

import (
	"context"
	"net/http"
	"time"
)

type loggingHandler struct {
	next http.Handler
}

// NewHandler wraps a handler, and writes an access log entry for every
// request.
func NewHandler(next http.Handler) http.Handler {
	return &loggingHandler{next: next}
}

func (lh *loggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var function string
	r = r.WithContext(context.WithValue(r.Context(), functionKey{}, &function))

	lw := &loggingWriter{writer: w}
	lh.next.ServeHTTP(lw, r)

	LogAccess(&AccessEntry{
		Request:      r,
		StatusCode:   lw.status(),
		ResponseSize: lw.bytes,
		Duration:     time.Since(start),
		RequestTime:  start,
		Function:     function,
	})
}
