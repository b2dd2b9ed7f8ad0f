package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("generates an id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/pazienti", nil))

		if seen == "" {
			t.Fatal("no request id in context")
		}
		if got := rec.Header().Get("X-Request-ID"); got != seen {
			t.Errorf("response header id = %q, context id = %q", got, seen)
		}
	})

	t.Run("honors the caller's id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/pazienti", nil)
		req.Header.Set("X-Request-ID", "caller-id")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if seen != "caller-id" {
			t.Errorf("context id = %q, want caller-id", seen)
		}
	})
}

func TestResponseWriterCapture(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)
	rw.Write([]byte(`{"message":"paziente non trovato"}`))

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("statusCode = %d, want 404", rw.statusCode)
	}
	if want := len(`{"message":"paziente non trovato"}`); rw.bytes != want {
		t.Errorf("bytes = %d, want %d", rw.bytes, want)
	}
}

func TestQuietPath(t *testing.T) {
	for path, want := range map[string]bool{
		"/health/live":  true,
		"/health/ready": true,
		"/api/test":     true,
		"/api/pazienti": false,
		"/api/login":    false,
	} {
		if got := quietPath(path); got != want {
			t.Errorf("quietPath(%q) = %t, want %t", path, got, want)
		}
	}
}
