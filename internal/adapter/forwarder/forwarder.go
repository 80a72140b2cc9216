// Package forwarder implements the streaming forward proxy (spec
// §4.6): header filtering, full-body upload, and conditional
// streaming-vs-buffered response relay with backend-stream lifecycle
// management under client disconnect.
package forwarder

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ensemblehq/inference-proxy/internal/core/domain"
	"github.com/ensemblehq/inference-proxy/internal/util"
	"github.com/ensemblehq/inference-proxy/pkg/pool"
)

func withTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}

// excludedHeaders is the fixed, case-insensitive header set dropped
// in both directions (spec §6).
var excludedHeaders = map[string]struct{}{
	"content-encoding":    {},
	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailers":            {},
	"upgrade":             {},
	"proxy-connection":    {},
	"content-length":      {},
}

const bufferSize = 32 * 1024

// Forwarder streams a single inbound request to a chosen backend.
type Forwarder struct {
	client  *http.Client
	logger  *slog.Logger
	timeout time.Duration
	buffers *pool.Pool[*buffer]
}

type buffer struct {
	b []byte
}

func (buf *buffer) Reset() {}

func New(client *http.Client, logger *slog.Logger, timeout time.Duration) *Forwarder {
	return &Forwarder{
		client:  client,
		logger:  logger,
		timeout: timeout,
		buffers: pool.NewLitePool(func() *buffer {
			return &buffer{b: make([]byte, bufferSize)}
		}),
	}
}

// Forward relays r to target.URL+path, writing the response to w.
// path must already have any routing prefix stripped; the client's
// query string is preserved by r.URL.RawQuery. requestID correlates
// this forward's logs with the caller's access log entry.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, target domain.Target, path, requestID string) {
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		f.logger.Warn("failed to read inbound request body", "request_id", requestID, "error", err)
		http.Error(w, "Backend service is unavailable.", http.StatusServiceUnavailable)
		return
	}

	outboundURL := util.JoinURLPath(target.URL, path)
	if r.URL.RawQuery != "" {
		outboundURL += "?" + r.URL.RawQuery
	}

	ctx, cancel := withTimeout(r.Context(), f.timeout)
	defer cancel()

	outReq, err := http.NewRequestWithContext(ctx, r.Method, outboundURL, bytes.NewReader(body))
	if err != nil {
		f.logger.Error("failed to build outbound request", "request_id", requestID, "backend", target.URL, "error", err)
		http.Error(w, "Backend service is unavailable.", http.StatusServiceUnavailable)
		return
	}
	copyFilteredHeaders(outReq.Header, r.Header)
	outReq.Header.Del("Host")

	resp, err := f.client.Do(outReq)
	if err != nil {
		fwdErr := domain.NewForwardError(target.URL, err)
		f.logger.Error("backend connect failure", "request_id", requestID, "error", fwdErr)
		http.Error(w, "Backend service is unavailable.", http.StatusServiceUnavailable)
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(strings.ToLower(contentType), "text/event-stream") {
		f.serveStream(ctx, w, resp, requestID, target.URL, start)
		return
	}
	f.serveBuffered(w, resp, requestID, target.URL, start)
}

// serveBuffered reads the whole response into memory, then closes the
// outbound handle unconditionally.
func (f *Forwarder) serveBuffered(w http.ResponseWriter, resp *http.Response, requestID, backend string, start time.Time) {
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		f.logger.Warn("failed reading buffered backend response", "request_id", requestID, "backend", backend, "error", err)
		http.Error(w, "Backend service is unavailable.", http.StatusServiceUnavailable)
		return
	}

	copyFilteredHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)

	f.logger.Info("request forwarded", "request_id", requestID, "backend", backend,
		"status", resp.StatusCode, "bytes", len(respBody), "duration", time.Since(start), "mode", "buffered")
}

// serveStream relays the backend's SSE body chunk-by-chunk. The
// outbound handle has exactly one closer: the deferred Close below,
// reached on every exit path (normal EOF, client disconnect, read
// error) — spec §5's single-designated-closer guarantee (P6). ctx is
// the outbound request's context: it carries the client's disconnect
// signal and the backend timeout deadline, so its Err() distinguishes
// the two on exit.
func (f *Forwarder) serveStream(ctx context.Context, w http.ResponseWriter, resp *http.Response, requestID, backend string, start time.Time) {
	defer resp.Body.Close()

	copyFilteredHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	flusher, canFlush := w.(http.Flusher)

	buf := f.buffers.Get()
	defer f.buffers.Put(buf)

	var totalBytes int

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				f.logger.Warn("stream interrupted: backend timeout exceeded", "request_id", requestID, "backend", backend, "total_bytes", totalBytes)
			} else {
				f.logger.Warn("stream interrupted: client disconnected", "request_id", requestID, "backend", backend, "total_bytes", totalBytes)
			}
			return
		default:
		}

		n, err := resp.Body.Read(buf.b)
		if n > 0 {
			if _, writeErr := w.Write(buf.b[:n]); writeErr != nil {
				f.logger.Warn("stream interrupted writing to client", "request_id", requestID, "backend", backend, "error", writeErr)
				return
			}
			totalBytes += n
			if canFlush {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF {
				f.logger.Warn("stream interrupted reading from backend", "request_id", requestID, "backend", backend, "error", err)
			}
			f.logger.Info("backend response stream closed", "request_id", requestID, "backend", backend,
				"total_bytes", totalBytes, "duration", time.Since(start))
			return
		}
	}
}

func copyFilteredHeaders(dst, src http.Header) {
	for k, values := range src {
		if _, excluded := excludedHeaders[strings.ToLower(k)]; excluded {
			continue
		}
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}
