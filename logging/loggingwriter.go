package logging

import (
	"net/http"
)

// loggingWriter records the status code and the size of the response
// for the access log. The first written status counts, the ones written
// after it are ignored the same way as by the net/http server.
type loggingWriter struct {
	writer http.ResponseWriter
	code   int
	bytes  int64
}

func (lw *loggingWriter) Header() http.Header {
	return lw.writer.Header()
}

func (lw *loggingWriter) WriteHeader(code int) {
	if lw.code == 0 {
		lw.code = code
	}

	lw.writer.WriteHeader(code)
}

func (lw *loggingWriter) Write(data []byte) (int, error) {
	if lw.code == 0 {
		lw.code = http.StatusOK
	}

	n, err := lw.writer.Write(data)
	lw.bytes += int64(n)
	return n, err
}

// status returns the recorded status code, 200 when nothing was written
func (lw *loggingWriter) status() int {
	if lw.code == 0 {
		return http.StatusOK
	}

	return lw.code
}

// Unwrap exposes the wrapped writer to http.ResponseController, e.g.
// for flushing.
func (lw *loggingWriter) Unwrap() http.ResponseWriter {
	return lw.writer
}
