package crs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/jobrunner/verto/internal/domain"
	"github.com/jobrunner/verto/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestResolver(t *testing.T, endpoints []string, notify NotifyFunc) *Resolver {
	t.Helper()
	return NewResolver(Config{Endpoints: endpoints, Notify: notify}, nil, testLogger())
}

func TestResolveFromPrimaryEndpoint(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("+proj=utm +zone=32 +datum=WGS84 +units=m +no_defs"))
	}))
	defer srv.Close()

	r := newTestResolver(t, []string{srv.URL + "/%s.proj4"}, nil)

	def, fromCache, err := r.Resolve(context.Background(), "epsg:32632", output.ScopeSource)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fromCache {
		t.Error("first resolution must not come from cache")
	}
	if def != "+proj=utm +zone=32 +datum=WGS84 +units=m +no_defs" {
		t.Errorf("unexpected definition: %q", def)
	}
	if hits != 1 {
		t.Errorf("expected 1 request, got %d", hits)
	}
}

func TestResolveFallsBackToSecondEndpoint(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("+proj=longlat +datum=WGS84 +no_defs"))
	}))
	defer good.Close()

	r := newTestResolver(t, []string{bad.URL + "/%s", good.URL + "/%s"}, nil)

	def, _, err := r.Resolve(context.Background(), "EPSG:4326", output.ScopeSource)
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if def != "+proj=longlat +datum=WGS84 +no_defs" {
		t.Errorf("unexpected definition: %q", def)
	}
}

func TestResolveRejectsHTMLBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>Not Found</body></html>"))
	}))
	defer srv.Close()

	r := newTestResolver(t, []string{srv.URL + "/%s"}, nil)

	raw, _, err := r.Resolve(context.Background(), "epsg:99999", output.ScopeSource)
	var rerr *domain.ResolveError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ResolveError, got %v", err)
	}
	if raw != "epsg:99999" {
		t.Errorf("expected input returned on failure, got %q", raw)
	}
	if len(rerr.Attempts) != 1 {
		t.Errorf("expected 1 recorded attempt, got %v", rerr.Attempts)
	}
}

func TestResolveAllEndpointsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := newTestResolver(t, []string{srv.URL + "/a/%s", srv.URL + "/b/%s"}, nil)

	_, _, err := r.Resolve(context.Background(), "epsg:12345", output.ScopeTarget)
	if !errors.Is(err, domain.ErrCrsResolution) {
		t.Fatalf("expected ErrCrsResolution, got %v", err)
	}
	var rerr *domain.ResolveError
	if !errors.As(err, &rerr) || len(rerr.Attempts) != 2 {
		t.Errorf("expected both attempts recorded, got %v", err)
	}
}

func TestResolveCachesPerSession(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("+proj=merc +a=6378137 +b=6378137"))
	}))
	defer srv.Close()

	r := newTestResolver(t, []string{srv.URL + "/%s"}, nil)

	first, fromCache, err := r.Resolve(context.Background(), "epsg:3857", output.ScopeSource)
	if err != nil || fromCache {
		t.Fatalf("first resolve: def=%q fromCache=%v err=%v", first, fromCache, err)
	}

	second, fromCache, err := r.Resolve(context.Background(), "epsg:3857", output.ScopeSource)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if !fromCache {
		t.Error("second resolution must come from cache")
	}
	if second != first {
		t.Errorf("cache must be idempotent: %q vs %q", second, first)
	}
	if hits != 1 {
		t.Errorf("expected exactly 1 network request, got %d", hits)
	}

	// The cache is shared across scopes; the target side reuses it too.
	_, fromCache, _ = r.Resolve(context.Background(), "epsg:3857", output.ScopeTarget)
	if !fromCache || hits != 1 {
		t.Errorf("expected cross-scope cache hit, hits=%d", hits)
	}
}

func TestResolvePassthroughForNonCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("network must not be touched for non-code input")
	}))
	defer srv.Close()

	r := newTestResolver(t, []string{srv.URL + "/%s"}, nil)

	for _, input := range []string{
		"+proj=longlat +datum=WGS84 +no_defs",
		"PROJCS[\"WGS 84 / UTM zone 32N\"]",
		"",
		"epsg:abc",
		"4326",
	} {
		got, fromCache, err := r.Resolve(context.Background(), input, output.ScopeSource)
		if err != nil || fromCache || got != input {
			t.Errorf("Resolve(%q) = (%q, %v, %v), want passthrough", input, got, fromCache, err)
		}
	}
}

func TestResolveNotifiesOnNetworkResolutionOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("+proj=longlat +datum=WGS84 +no_defs"))
	}))
	defer srv.Close()

	var notified []string
	notify := func(scope output.CrsScope, code, resolved string) {
		notified = append(notified, code)
	}
	r := newTestResolver(t, []string{srv.URL + "/%s"}, notify)

	_, _, _ = r.Resolve(context.Background(), "epsg:4326", output.ScopeSource)
	_, _, _ = r.Resolve(context.Background(), "epsg:4326", output.ScopeSource)
	_, _, _ = r.Resolve(context.Background(), "+proj=longlat", output.ScopeSource)

	if len(notified) != 1 || notified[0] != "epsg:4326" {
		t.Errorf("expected exactly one notification for the network resolution, got %v", notified)
	}
}

func TestResolveInflightGuardPerScope(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		<-release
		_, _ = w.Write([]byte("+proj=longlat +datum=WGS84 +no_defs"))
	}))
	defer srv.Close()

	r := newTestResolver(t, []string{srv.URL + "/%s"}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = r.Resolve(context.Background(), "epsg:4326", output.ScopeSource)
	}()
	<-started

	// Same scope: the concurrent call passes through instead of queueing.
	got, fromCache, err := r.Resolve(context.Background(), "epsg:4258", output.ScopeSource)
	if err != nil || fromCache || got != "epsg:4258" {
		t.Errorf("expected in-flight passthrough, got (%q, %v, %v)", got, fromCache, err)
	}

	close(release)
	<-done
}
