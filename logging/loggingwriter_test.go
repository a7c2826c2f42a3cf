package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingWriter(t *testing.T) {
	for _, tc := range []struct {
		title    string
		write    func(w http.ResponseWriter)
		status   int
		size     int64
		recorded int
	}{{
		title:    "nothing written",
		write:    func(http.ResponseWriter) {},
		status:   http.StatusOK,
		recorded: http.StatusOK,
	}, {
		title: "body only",
		write: func(w http.ResponseWriter) {
			w.Write([]byte("Hello, world!"))
		},
		status:   http.StatusOK,
		size:     13,
		recorded: http.StatusOK,
	}, {
		title: "status and body",
		write: func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusTeapot)
			w.Write([]byte("tea"))
		},
		status:   http.StatusTeapot,
		size:     3,
		recorded: http.StatusTeapot,
	}, {
		title: "superfluous status",
		write: func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusNotFound)
			w.WriteHeader(http.StatusInternalServerError)
		},
		status:   http.StatusNotFound,
		recorded: http.StatusNotFound,
	}, {
		title: "status after body",
		write: func(w http.ResponseWriter) {
			w.Write([]byte("hi"))
			w.WriteHeader(http.StatusInternalServerError)
		},
		status:   http.StatusOK,
		size:     2,
		recorded: http.StatusOK,
	}} {
		t.Run(tc.title, func(t *testing.T) {
			rr := httptest.NewRecorder()
			w := &loggingWriter{writer: rr}
			tc.write(w)

			assert.Equal(t, tc.status, w.status())
			assert.Equal(t, tc.size, w.bytes)
			assert.Equal(t, tc.recorded, rr.Code)
			assert.Equal(t, tc.size, int64(rr.Body.Len()))
		})
	}
}

func TestLoggingWriterHeader(t *testing.T) {
	rr := httptest.NewRecorder()
	w := &loggingWriter{writer: rr}
	w.Header().Set("Content-Type", "text/plain")
	assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
}

func TestLoggingWriterFlush(t *testing.T) {
	rr := httptest.NewRecorder()
	w := &loggingWriter{writer: rr}
	w.Write([]byte("hi"))

	require.NoError(t, http.NewResponseController(w).Flush())
	assert.True(t, rr.Flushed)
}
