package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jobrunner/verto/internal/config"
)

func corsServer(origins []string) *Server {
	return &Server{
		config: config.ServerConfig{
			CORS: config.CORSConfig{AllowedOrigins: origins},
		},
	}
}

func TestExtractHost(t *testing.T) {
	tests := []struct {
		origin   string
		expected string
	}{
		{"https://example.com", "example.com"},
		{"https://example.com:8080", "example.com"},
		{"https://example.com/path/to/resource", "example.com"},
		{"https://deep.sub.example.com", "deep.sub.example.com"},
		{"http://localhost:3000", "localhost"},
		{"http://192.168.1.1:8080", "192.168.1.1"},
		{"example.com", "example.com"},
	}

	for _, tt := range tests {
		if got := extractHost(tt.origin); got != tt.expected {
			t.Errorf("extractHost(%q) = %q; want %q", tt.origin, got, tt.expected)
		}
	}
}

func TestMatchOrigin(t *testing.T) {
	tests := []struct {
		name     string
		origin   string
		pattern  string
		expected bool
	}{
		{"exact match", "https://example.com", "https://example.com", true},
		{"different protocol", "http://example.com", "https://example.com", false},
		{"different port", "https://example.com:8080", "https://example.com:9090", false},
		{"wildcard matches subdomain", "https://sub.example.com", "*.example.com", true},
		{"wildcard matches deep subdomain", "https://deep.sub.example.com", "*.example.com", true},
		{"wildcard does not match root domain", "https://example.com", "*.example.com", false},
		{"wildcard does not match partial", "https://notexample.com", "*.example.com", false},
		{"empty pattern", "https://example.com", "", false},
		{"empty origin", "", "https://example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchOrigin(tt.origin, tt.pattern); got != tt.expected {
				t.Errorf("matchOrigin(%q, %q) = %v; want %v", tt.origin, tt.pattern, got, tt.expected)
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name          string
		origins       []string
		requestOrigin string
		method        string
		expectHeaders bool
		expectStatus  int
	}{
		{
			name:          "allowed origin on POST",
			origins:       []string{"https://example.com"},
			requestOrigin: "https://example.com",
			method:        http.MethodPost,
			expectHeaders: true,
			expectStatus:  http.StatusOK,
		},
		{
			name:          "preflight short-circuits",
			origins:       []string{"https://example.com"},
			requestOrigin: "https://example.com",
			method:        http.MethodOptions,
			expectHeaders: true,
			expectStatus:  http.StatusNoContent,
		},
		{
			name:          "wildcard subdomain",
			origins:       []string{"*.example.com"},
			requestOrigin: "https://app.example.com",
			method:        http.MethodGet,
			expectHeaders: true,
			expectStatus:  http.StatusOK,
		},
		{
			name:          "disallowed origin gets no headers",
			origins:       []string{"https://example.com"},
			requestOrigin: "https://evil.com",
			method:        http.MethodGet,
			expectHeaders: false,
			expectStatus:  http.StatusOK,
		},
		{
			name:          "no origin header",
			origins:       []string{"https://example.com"},
			requestOrigin: "",
			method:        http.MethodGet,
			expectHeaders: false,
			expectStatus:  http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nextCalled := false
			handler := corsServer(tt.origins).corsMiddleware(
				http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					nextCalled = true
					w.WriteHeader(http.StatusOK)
				}))

			req := httptest.NewRequest(tt.method, "/api/v1/convert", nil)
			if tt.requestOrigin != "" {
				req.Header.Set("Origin", tt.requestOrigin)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectStatus {
				t.Errorf("status = %d; want %d", rr.Code, tt.expectStatus)
			}

			allowOrigin := rr.Header().Get("Access-Control-Allow-Origin")
			if tt.expectHeaders {
				if allowOrigin != tt.requestOrigin {
					t.Errorf("Access-Control-Allow-Origin = %q; want %q", allowOrigin, tt.requestOrigin)
				}
				if methods := rr.Header().Get("Access-Control-Allow-Methods"); methods != "GET, POST, OPTIONS" {
					t.Errorf("Access-Control-Allow-Methods = %q", methods)
				}
			} else if allowOrigin != "" {
				t.Errorf("expected no CORS headers, got Access-Control-Allow-Origin = %q", allowOrigin)
			}

			if tt.method == http.MethodOptions && nextCalled {
				t.Error("preflight must not reach the next handler")
			}
		})
	}
}
