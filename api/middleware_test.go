package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/ticketvote/log"
)

func TestLoggingMiddleware(t *testing.T) {
	c := qt.New(t)
	prev := log.Level()
	log.Init(log.LogLevelDebug, "stderr", nil)
	defer log.Init(prev, "stderr", nil)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	})
	wrapped := loggingMiddleware(DefaultLoggingConfig())(handler)

	for _, path := range []string{"/vote", PingEndpoint, PublicKeyEndpoint} {
		body := `{"pcd":"secret"}`
		req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		c.Assert(rec.Code, qt.Equals, http.StatusCreated)
		c.Assert(rec.Body.String(), qt.Equals, body)
	}
}

func TestLoggingConfigExclusions(t *testing.T) {
	c := qt.New(t)
	prev := log.Level()
	log.Init(log.LogLevelDebug, "stderr", nil)
	defer log.Init(prev, "stderr", nil)

	config := LoggingConfig{ExcludedPrefixes: []string{"/health", "/metrics"}}
	tests := []struct {
		path string
		skip bool
	}{
		{"/health", true},
		{"/healthcheck", true},
		{"/metrics/prometheus", true},
		{"/vote", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", tt.path, nil)
		c.Assert(config.shouldSkipLogging(req), qt.Equals, tt.skip, qt.Commentf("path %s", tt.path))
	}

	DisabledLogging = true
	defer func() { DisabledLogging = false }()
	c.Assert(config.shouldSkipLogging(httptest.NewRequest("GET", "/vote", nil)), qt.IsTrue)
}

func TestResponseWriterCapture(t *testing.T) {
	c := qt.New(t)
	tests := []struct {
		name    string
		handler func(w http.ResponseWriter)
		status  int
	}{
		{"WriteHeader before Write", func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("test"))
		}, http.StatusCreated},
		{"Write without WriteHeader", func(w http.ResponseWriter) {
			_, _ = w.Write([]byte("test"))
		}, http.StatusOK},
		{"Double WriteHeader", func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusAccepted)
			w.WriteHeader(http.StatusTeapot)
		}, http.StatusAccepted},
	}
	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
			tt.handler(rw)
			c.Assert(rw.statusCode, qt.Equals, tt.status)
		})
	}
}

func TestAdminAuth(t *testing.T) {
	c := qt.New(t)
	handler := adminAuth("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpWriteOK(w)
	}))
	for header, status := range map[string]int{
		"":              http.StatusForbidden,
		"s3cret":        http.StatusForbidden,
		"Bearer nope":   http.StatusForbidden,
		"Bearer s3cret": http.StatusOK,
	} {
		req := httptest.NewRequest("POST", CloseEpochEndpoint, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		c.Assert(rec.Code, qt.Equals, status, qt.Commentf("header %q", header))
	}
}
