// Package crs resolves coordinate reference system codes against public
// registry endpoints.
package crs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jobrunner/verto/internal/domain"
	"github.com/jobrunner/verto/internal/ports/output"
)

// epsgPattern matches a numeric EPSG code, case-insensitive.
var epsgPattern = regexp.MustCompile(`^(?i)epsg:(\d+)$`)

// DefaultEndpoints are tried in order; the code is substituted for %s.
var DefaultEndpoints = []string{
	"https://epsg.io/%s.proj4",
	"https://spatialreference.org/ref/epsg/%s/proj4/",
}

// NotifyFunc is invoked after a genuine network resolution, never for cache
// hits or passthrough inputs. The UI uses it to show the resolved definition.
type NotifyFunc func(scope output.CrsScope, code, resolved string)

// Config holds resolver configuration.
type Config struct {
	Endpoints []string
	Timeout   time.Duration
	Notify    NotifyFunc
}

// Resolver looks up proj4 definitions for EPSG codes with endpoint fallback
// and a session-lifetime cache. Inputs that are not codes pass through
// unchanged.
type Resolver struct {
	client    *http.Client
	endpoints []string
	notify    NotifyFunc
	metrics   output.MetricsCollector
	logger    *slog.Logger

	mu       sync.Mutex
	cache    map[string]string
	inflight map[output.CrsScope]bool
}

// NewResolver creates a CRS resolver.
func NewResolver(cfg Config, metrics output.MetricsCollector, logger *slog.Logger) *Resolver {
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = DefaultEndpoints
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}

	return &Resolver{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		endpoints: cfg.Endpoints,
		notify:    cfg.Notify,
		metrics:   metrics,
		logger:    logger,
		cache:     make(map[string]string),
		inflight:  make(map[output.CrsScope]bool),
	}
}

// Resolve maps an EPSG code to its proj4 definition. Non-code inputs are
// returned unchanged and treated as already-canonical definitions. A second
// resolution for the same scope while one is running returns the input
// unchanged rather than queueing.
func (r *Resolver) Resolve(ctx context.Context, raw string, scope output.CrsScope) (string, bool, error) {
	trimmed := strings.TrimSpace(raw)
	m := epsgPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return raw, false, nil
	}
	code := m[1]

	r.mu.Lock()
	if def, ok := r.cache[code]; ok {
		r.mu.Unlock()
		return def, true, nil
	}
	if r.inflight[scope] {
		r.mu.Unlock()
		r.logger.Debug("CRS resolution already in flight for scope, passing through",
			"scope", scope, "code", code)
		return raw, false, nil
	}
	r.inflight[scope] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inflight[scope] = false
		r.mu.Unlock()
	}()

	var attempts []error
	for _, endpoint := range r.endpoints {
		url := fmt.Sprintf(endpoint, code)
		def, err := r.fetch(ctx, url)
		if err != nil {
			r.metrics.IncCrsResolution(endpoint, false)
			r.logger.Warn("CRS endpoint failed", "url", url, "error", err)
			attempts = append(attempts, fmt.Errorf("%s: %w", url, err))
			continue
		}
		r.metrics.IncCrsResolution(endpoint, true)

		r.mu.Lock()
		r.cache[code] = def
		r.mu.Unlock()

		if r.notify != nil {
			r.notify(scope, "epsg:"+code, def)
		}
		return def, false, nil
	}

	return raw, false, &domain.ResolveError{Code: code, Attempts: attempts}
}

// fetch retrieves one endpoint and validates the body as a proj4 definition.
func (r *Resolver) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", err
	}

	def := strings.TrimSpace(string(body))
	// Registries answer HTML error pages with status 200; only a proj4
	// definition starts with a parameter flag.
	if !strings.HasPrefix(def, "+") {
		return "", fmt.Errorf("body is not a proj4 definition")
	}
	return def, nil
}

// CacheSize reports the number of resolved codes held for the session.
func (r *Resolver) CacheSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
