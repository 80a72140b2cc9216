package forwarder

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ensemblehq/inference-proxy/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestForward_BufferedResponse(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("backend saw path %q, want /v1/chat/completions", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer backend.Close()

	f := New(backend.Client(), discardLogger(), 5*time.Second)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader([]byte(`{"hi":1}`)))
	req.Header.Set("Connection", "keep-alive")
	rec := httptest.NewRecorder()

	f.Forward(rec, req, domain.Target{URL: backend.URL, Kind: domain.KindLlamaCPP}, "/v1/chat/completions", "test-req-1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestForward_ExcludedHeadersDroppedBothDirections(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Connection") != "" {
			t.Error("excluded request header Connection reached the backend")
		}
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Custom", "yes")
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	f := New(backend.Client(), discardLogger(), 5*time.Second)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Connection", "keep-alive")
	rec := httptest.NewRecorder()

	f.Forward(rec, req, domain.Target{URL: backend.URL}, "/ping", "test-req-2")

	if rec.Header().Get("Connection") != "" {
		t.Error("excluded response header Connection reached the client")
	}
	if rec.Header().Get("X-Custom") != "yes" {
		t.Error("non-excluded response header was dropped")
	}
}

func TestForward_ConnectFailureReturns503(t *testing.T) {
	f := New(http.DefaultClient, discardLogger(), 5*time.Second)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()

	f.Forward(rec, req, domain.Target{URL: "http://127.0.0.1:1"}, "/ping", "test-req-3")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if rec.Body.String() != "Backend service is unavailable.\n" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestForward_StreamingResponseRelayed(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("data: chunk1\n\n"))
		flusher.Flush()
		_, _ = w.Write([]byte("data: chunk2\n\n"))
		flusher.Flush()
	}))
	defer backend.Close()

	f := New(backend.Client(), discardLogger(), 5*time.Second)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	rec := httptest.NewRecorder()

	f.Forward(rec, req, domain.Target{URL: backend.URL}, "/v1/chat/completions", "test-req-4")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if body != "data: chunk1\n\ndata: chunk2\n\n" {
		t.Errorf("body = %q", body)
	}
}

func TestForward_ClientDisconnectStopsStream(t *testing.T) {
	unblock := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("data: chunk1\n\n"))
		flusher.Flush()
		<-unblock
	}))
	defer backend.Close()
	defer close(unblock)

	f := New(backend.Client(), discardLogger(), 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	cancel() // simulate a client that has already gone away

	done := make(chan struct{})
	go func() {
		f.Forward(rec, req, domain.Target{URL: backend.URL}, "/v1/chat/completions", "test-req-4")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Forward did not return promptly after client disconnect")
	}
}
