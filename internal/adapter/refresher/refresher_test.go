package refresher

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ensemblehq/inference-proxy/internal/adapter/cache"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func llamaCPPServer(t *testing.T, processing, deferred int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			_, _ = w.Write([]byte(`{"data":[{"id":"test-model","owned_by":"llamacpp"}]}`))
		case "/health":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case "/metrics":
			_, _ = w.Write([]byte(
				"llamacpp:requests_processing " + strconv.Itoa(processing) + "\n" +
					"llamacpp:requests_deferred " + strconv.Itoa(deferred) + "\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestRunStaticPhase_DiscoversKindAndModel(t *testing.T) {
	srv := llamaCPPServer(t, 0, 0)
	defer srv.Close()

	c := cache.New([]string{srv.URL})
	r := New(c, srv.Client(), discardLogger(), time.Second, 4, 2)

	r.runStaticPhase(t.Context())

	static := c.Static(srv.URL)
	if static == nil || static.Model != "test-model" {
		t.Fatalf("Static() = %+v, want model discovered", static)
	}
}

func TestRunStaticPhase_SkipsAlreadyDiscovered(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"data":[{"id":"test-model","owned_by":"llamacpp"}]}`))
	}))
	defer srv.Close()

	c := cache.New([]string{srv.URL})
	r := New(c, srv.Client(), discardLogger(), time.Second, 4, 2)

	r.runStaticPhase(t.Context())
	firstCalls := calls
	r.runStaticPhase(t.Context())

	if calls != firstCalls {
		t.Errorf("second runStaticPhase() made %d more calls, want 0 (already discovered)", calls-firstCalls)
	}
}

func TestRunDynamicPhase_PopulatesDynamicRecord(t *testing.T) {
	srv := llamaCPPServer(t, 2, 0)
	defer srv.Close()

	c := cache.New([]string{srv.URL})
	r := New(c, srv.Client(), discardLogger(), time.Second, 4, 2)

	r.runStaticPhase(t.Context())
	r.runDynamicPhase(t.Context())

	dyn := c.Dynamic(srv.URL)
	if dyn == nil || dyn.RequestsProcessing != 2 || !dyn.Ready {
		t.Errorf("Dynamic() = %+v, want processing=2 ready=true", dyn)
	}
}

func TestRunDynamicPhase_SkipsUnknownKindBackends(t *testing.T) {
	c := cache.New([]string{"http://backend-with-no-static"})
	r := New(c, http.DefaultClient, discardLogger(), time.Second, 4, 2)

	r.runDynamicPhase(t.Context())

	if c.Dynamic("http://backend-with-no-static") != nil {
		t.Error("expected no dynamic record for a backend with no static info yet")
	}
}

func TestRunDynamicPhase_OneFailureDoesNotStallOthers(t *testing.T) {
	good := llamaCPPServer(t, 1, 0)
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	c := cache.New([]string{good.URL, bad.URL})
	r := New(c, good.Client(), discardLogger(), time.Second, 4, 2)

	r.runStaticPhase(t.Context())
	// bad server never returns valid models, so it has no static record
	// and is skipped by the dynamic phase — good's probe must still run.
	r.runDynamicPhase(t.Context())

	dyn := c.Dynamic(good.URL)
	if dyn == nil || !dyn.Ready {
		t.Errorf("good backend's dynamic record = %+v, want populated despite bad backend failing discovery", dyn)
	}
}
