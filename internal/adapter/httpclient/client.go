// Package httpclient builds the single, process-wide outbound HTTP
// client shared by probes and the forwarder.
package httpclient

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	// ControlTimeout bounds short control-plane calls (health/metrics
	// probes); the forwarder sets its own, longer, per-request timeout.
	ControlTimeout = 5 * time.Second

	maxIdleConns        = 100
	maxIdleConnsPerHost = 20
	idleConnTimeout     = 90 * time.Second
	tlsHandshakeTimeout = 10 * time.Second
	dialTimeout         = 5 * time.Second
	dialKeepAlive       = 30 * time.Second
)

func newTransport(log *slog.Logger) *http.Transport {
	return &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
		ForceAttemptHTTP2:   true,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{
				Timeout:   dialTimeout,
				KeepAlive: dialKeepAlive,
			}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}

			// disable Nagle's algorithm so token-by-token SSE writes aren't
			// held back waiting to coalesce into a bigger segment
			if tcpConn, ok := conn.(*net.TCPConn); ok {
				if terr := tcpConn.SetNoDelay(true); terr != nil && log != nil {
					log.Warn("failed to set TCP_NODELAY", "error", terr)
				}
			}
			return conn, nil
		},
	}
}

// New builds the shared client used for control-plane calls (probes).
// It is created once at startup; its idle connections are not closed
// explicitly during shutdown.
func New(log *slog.Logger) *http.Client {
	return &http.Client{
		Transport: newTransport(log),
		Timeout:   ControlTimeout,
	}
}

// NewStreaming builds a client with no client-level timeout, used by
// the forwarder: a long SSE stream must not be cut off by a fixed
// deadline. The outbound request instead carries its own context
// deadline (BACKEND_TIMEOUT_SECONDS).
func NewStreaming(log *slog.Logger) *http.Client {
	return &http.Client{
		Transport: newTransport(log),
	}
}
