// Package gateway implements the forwarding layer around the routing
// engine. It translates inbound HTTP requests into routing decisions and
// proxies matched requests to the resolved backend service.
package gateway

import (
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"api-gateway/internal/circuitbreaker"
	"api-gateway/internal/common/errors"
	"api-gateway/internal/common/logging"
	"api-gateway/internal/registry"
	"api-gateway/internal/routing"
)

// hopByHopHeaders must not be forwarded to the backend or back to the
// client (RFC 7230, section 6.1).
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder proxies inbound requests to backend services according to the
// router's decisions. It implements http.Handler and is mounted as the
// catch-all behind the admin API routes.
type Forwarder struct {
	router   *routing.Router
	registry *registry.Registry
	client   *http.Client
	breakers *circuitbreaker.Manager
	stats    *Stats
	logger   logging.Logger
}

// New creates a forwarder around the given router and service registry.
func New(router *routing.Router, reg *registry.Registry) *Forwarder {
	return &Forwarder{
		router:   router,
		registry: reg,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			// The gateway proxies redirects back to the client untouched
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		breakers: circuitbreaker.NewManager(circuitbreaker.DefaultConfig(), logging.GetGlobalLogger()),
		stats:    NewStats(),
		logger:   logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "gateway"}),
	}
}

// Stats returns the forwarder's counters.
func (f *Forwarder) Stats() *Stats {
	return f.stats
}

// BreakerStats returns the state of every upstream circuit breaker.
func (f *Forwarder) BreakerStats() []circuitbreaker.Stats {
	return f.breakers.Stats()
}

// ServeHTTP routes the request and forwards it to the matched backend.
// No matching rule yields 404; a matched rule naming an unregistered
// service yields 502.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	decision, ok := f.router.Route(routing.Request{
		Path:   r.URL.Path,
		Method: r.Method,
	})
	if !ok {
		f.stats.RecordUnmatched()
		f.logger.Debug("no routing rule matched",
			logging.Field{Key: "method", Value: r.Method},
			logging.Field{Key: "path", Value: r.URL.Path})
		writeJSONError(w, http.StatusNotFound, "no route matched the request")
		return
	}

	baseURL, ok := f.registry.Lookup(decision.TargetService)
	if !ok {
		f.stats.RecordUnmatched()
		f.logger.Warn("matched rule targets unknown service",
			logging.Field{Key: "target_service", Value: decision.TargetService})
		writeJSONError(w, http.StatusBadGateway, "target service is not configured")
		return
	}

	f.stats.RecordRouted(decision.TargetService)
	f.forward(w, r, baseURL, decision)
}

func (f *Forwarder) forward(w http.ResponseWriter, r *http.Request, baseURL string, decision routing.Decision) {
	targetURL := baseURL + decision.TargetPath
	if r.URL.RawQuery != "" {
		targetURL += "?" + r.URL.RawQuery
	}

	outbound, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL, r.Body)
	if err != nil {
		f.logger.Error("failed to build outbound request", err,
			logging.Field{Key: "target_url", Value: targetURL})
		writeJSONError(w, http.StatusBadGateway, "failed to forward request")
		return
	}
	outbound.Header = cloneClean(r.Header)
	outbound.ContentLength = r.ContentLength
	appendForwardedFor(outbound.Header, r.RemoteAddr)

	var resp *http.Response
	err = f.breakers.Get(decision.TargetService).Do(func() error {
		var doErr error
		resp, doErr = f.client.Do(outbound)
		return doErr
	})
	if err != nil {
		if errors.IsType(err, errors.ErrTypeConnection) {
			f.logger.Warn("circuit breaker rejected request",
				logging.Field{Key: "target_service", Value: decision.TargetService})
			writeJSONError(w, http.StatusServiceUnavailable, "target service is temporarily unavailable")
			return
		}
		f.logger.Error("backend request failed", err,
			logging.Field{Key: "target_service", Value: decision.TargetService},
			logging.Field{Key: "target_url", Value: targetURL})
		writeJSONError(w, http.StatusBadGateway, "target service is unreachable")
		return
	}
	defer resp.Body.Close()

	for key, values := range cloneClean(resp.Header) {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		f.logger.Warn("failed to stream backend response",
			logging.Field{Key: "error", Value: err.Error()})
	}
}

// cloneClean copies a header map without the hop-by-hop headers and any
// headers the Connection header names.
func cloneClean(header http.Header) http.Header {
	clean := header.Clone()
	for _, name := range strings.Split(header.Get("Connection"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			clean.Del(name)
		}
	}
	for _, name := range hopByHopHeaders {
		clean.Del(name)
	}
	return clean
}

// appendForwardedFor records the client address in X-Forwarded-For,
// appending to any chain an upstream proxy has already started.
func appendForwardedFor(header http.Header, remoteAddr string) {
	clientIP := remoteAddr
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		clientIP = host
	}
	if prior := header.Get("X-Forwarded-For"); prior != "" {
		clientIP = prior + ", " + clientIP
	}
	header.Set("X-Forwarded-For", clientIP)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
