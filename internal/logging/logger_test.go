package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{"json info", "info", "json"},
		{"text debug", "debug", "text"},
		{"dev warn", "warn", "dev"},
		{"unknown defaults", "verbose", "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if logger := NewLogger(tt.level, tt.format); logger == nil {
				t.Error("NewLogger() returned nil")
			}
		})
	}
}

func TestLogResponseWriterCapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewLogResponseWriter(rec)

	if w.Written() {
		t.Error("fresh writer reports written")
	}
	if w.StatusCode() != http.StatusOK {
		t.Errorf("default status = %d, want 200", w.StatusCode())
	}

	w.WriteHeader(499)

	if !w.Written() {
		t.Error("writer does not report written after WriteHeader")
	}
	if w.StatusCode() != 499 {
		t.Errorf("StatusCode() = %d, want 499", w.StatusCode())
	}
	if rec.Code != 499 {
		t.Errorf("underlying recorder code = %d, want 499", rec.Code)
	}
}

func TestLogResponseWriterCapturesSize(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewLogResponseWriter(rec)

	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := w.Write([]byte(" world")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if w.Size() != 11 {
		t.Errorf("Size() = %d, want 11", w.Size())
	}
	if !w.Written() {
		t.Error("writer does not report written after Write")
	}
}
