package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smartpcr/pass-cancel/internal/errors"
)

func TestProviderLifecycle(t *testing.T) {
	cfg := Config{
		ServiceName:    "test-service",
		ServiceVersion: "v1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "localhost:4317",
		SamplingRatio:  1.0,
	}

	provider, err := NewProvider(cfg)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	ctx := context.Background()
	if err := provider.Start(ctx); err != nil {
		t.Fatalf("First Start() error = %v", err)
	}

	if err := provider.Start(ctx); err == nil {
		t.Error("Second Start() should fail")
	}

	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}

	// Test double shutdown
	if err := provider.Shutdown(ctx); err != nil {
		t.Error("Second Shutdown() should not return error")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantError bool
	}{
		{
			name: "valid config",
			config: Config{
				ServiceName:    "test-service",
				ServiceVersion: "v1.0.0",
				Environment:    "test",
				OTLPEndpoint:   "localhost:4317",
			},
			wantError: false,
		},
		{
			name: "empty service name",
			config: Config{
				ServiceVersion: "v1.0.0",
				Environment:    "test",
				OTLPEndpoint:   "localhost:4317",
			},
			wantError: true,
		},
		{
			name: "empty endpoint",
			config: Config{
				ServiceName:    "test-service",
				ServiceVersion: "v1.0.0",
				Environment:    "test",
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(tt.config)
			if (err != nil) != tt.wantError {
				t.Errorf("NewProvider() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestTracingMiddlewarePassThroughWhenNotStarted(t *testing.T) {
	cfg := Config{
		ServiceName:   "test-service",
		OTLPEndpoint:  "localhost:4317",
		SamplingRatio: 1.0,
	}

	provider, err := NewProvider(cfg)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	// Not started: middleware must be a transparent pass-through.
	called := false
	handler := provider.TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(errors.StatusClientClosedRequest)
	}))

	req := httptest.NewRequest(http.MethodGet, "/delay/5", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Error("handler not invoked through tracing middleware")
	}
	if w.Code != errors.StatusClientClosedRequest {
		t.Errorf("status = %d, want %d", w.Code, errors.StatusClientClosedRequest)
	}
}

func TestTracingMiddlewareRecordsStatus(t *testing.T) {
	cfg := Config{
		ServiceName:    "test-service",
		ServiceVersion: "v1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "localhost:4317",
		SamplingRatio:  1.0,
	}

	provider, err := NewProvider(cfg)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	ctx := context.Background()
	if err := provider.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer provider.Shutdown(ctx)

	tests := []struct {
		name   string
		status int
	}{
		{"success", http.StatusOK},
		{"cancelled", errors.StatusClientClosedRequest},
		{"failure", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := provider.TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			req := httptest.NewRequest(http.MethodGet, "/delay/5", nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}
