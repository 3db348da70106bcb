package delay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/smartpcr/pass-cancel/internal/errors"
	"github.com/smartpcr/pass-cancel/internal/events"
	"github.com/smartpcr/pass-cancel/internal/metrics"
	"github.com/smartpcr/pass-cancel/internal/middleware/request"
)

func setupTestMetrics(t *testing.T) {
	t.Helper()
	if err := metrics.InitMetrics(prometheus.NewRegistry()); err != nil {
		t.Fatalf("InitMetrics() error = %v", err)
	}
}

func getCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Error getting counter value: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func newTestHandler(cfg Config) *Handler {
	if cfg.Server == "" {
		cfg.Server = "delayserver"
	}
	return NewHandler(cfg)
}

func TestParseVariant(t *testing.T) {
	for _, s := range []string{"with-token", "without-token", "owin-context", "no-cancellation"} {
		if _, err := ParseVariant(s); err != nil {
			t.Errorf("ParseVariant(%q) error = %v", s, err)
		}
	}

	if _, err := ParseVariant("bogus"); !errors.IsValidationError(err) {
		t.Errorf("ParseVariant(bogus) error = %v, want validation error", err)
	}
}

func TestServeDelayCompletes(t *testing.T) {
	setupTestMetrics(t)
	h := newTestHandler(Config{IncludeMethod: true})

	req := httptest.NewRequest(http.MethodGet, "/delay/0", nil)
	w := httptest.NewRecorder()
	h.ServeDelay(w, req, VariantWithToken, "0")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp SuccessResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if resp.Message != "Completed after 0 seconds" {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.Server != "delayserver" {
		t.Errorf("server = %q, want delayserver", resp.Server)
	}
	if resp.Method != http.MethodGet {
		t.Errorf("method = %q, want GET", resp.Method)
	}
}

func TestServeDelayValidation(t *testing.T) {
	setupTestMetrics(t)
	h := newTestHandler(Config{MaxDelaySeconds: 30})

	tests := []struct {
		name    string
		seconds string
	}{
		{"not a number", "abc"},
		{"negative", "-1"},
		{"exceeds max", "31"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/delay/"+tt.seconds, nil)
			w := httptest.NewRecorder()
			h.ServeDelay(w, req, VariantWithToken, tt.seconds)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			var resp errors.ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if resp.ErrorType != "validation" {
				t.Errorf("error_type = %q, want validation", resp.ErrorType)
			}
		})
	}
}

func TestServeDelayCancelled(t *testing.T) {
	setupTestMetrics(t)

	// The context-aware variants must all report the cancellation the same
	// way, well before the requested delay elapses.
	variants := []Variant{VariantWithToken, VariantWithoutToken, VariantOwinContext}

	for _, variant := range variants {
		t.Run(string(variant), func(t *testing.T) {
			h := newTestHandler(Config{})

			ctx, cancel := context.WithCancel(context.Background())
			req := httptest.NewRequest(http.MethodGet, "/delay/10", nil).WithContext(ctx)
			w := httptest.NewRecorder()

			go func() {
				time.Sleep(50 * time.Millisecond)
				cancel()
			}()

			start := time.Now()
			h.ServeDelay(w, req, variant, "10")
			elapsed := time.Since(start)

			if w.Code != errors.StatusClientClosedRequest {
				t.Fatalf("status = %d, want %d", w.Code, errors.StatusClientClosedRequest)
			}
			if elapsed > time.Second {
				t.Errorf("cancellation took %v, want well under the 10s delay", elapsed)
			}

			var resp errors.ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if resp.ErrorType != "cancelled" {
				t.Errorf("error_type = %q, want cancelled", resp.ErrorType)
			}
		})
	}
}

func TestServeDelayOwinContextUsesRegistry(t *testing.T) {
	setupTestMetrics(t)

	reg := request.NewRegistry()
	h := newTestHandler(Config{Registry: reg})

	// Full pipeline: the wrapper registers the context the variant looks up.
	pipeline := request.WithRequestID(request.WithCancellation(reg)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.ServeDelay(w, r, VariantOwinContext, "10")
		}),
	))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/example/owin-context/10", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	pipeline.ServeHTTP(w, req)

	if w.Code != errors.StatusClientClosedRequest {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, errors.StatusClientClosedRequest, w.Body.String())
	}
}

func TestServeDelayPollingVariant(t *testing.T) {
	setupTestMetrics(t)
	h := newTestHandler(Config{})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/delay/5", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	h.ServeDelay(w, req, VariantNoCancellation, "5")
	elapsed := time.Since(start)

	if w.Code != errors.StatusClientClosedRequest {
		t.Fatalf("status = %d, want %d", w.Code, errors.StatusClientClosedRequest)
	}
	// The degraded variant only notices between whole-second steps: the
	// abort lands after the first step, not promptly and not after 5s.
	if elapsed < 900*time.Millisecond {
		t.Errorf("polling variant aborted after %v, expected about one full step", elapsed)
	}
	if elapsed > 3*time.Second {
		t.Errorf("polling variant took %v, expected to stop after the first step", elapsed)
	}
}

func TestServeDelayPollingVariantForcedAbort(t *testing.T) {
	setupTestMetrics(t)
	h := newTestHandler(Config{})

	// The full pipeline around the variant that never consults its context:
	// on disconnect the wrapper must claim the response immediately rather
	// than waiting out the polling steps.
	pipeline := request.WithCancellation(nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.ServeDelay(w, r, VariantNoCancellation, "5")
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/delay/5", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	pipeline.ServeHTTP(w, req)
	elapsed := time.Since(start)

	if w.Code != errors.StatusClientClosedRequest {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, errors.StatusClientClosedRequest, w.Body.String())
	}
	var resp errors.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if resp.ErrorType != "cancelled" {
		t.Errorf("error_type = %q, want cancelled", resp.ErrorType)
	}
	// The response does not wait for the handler's next polling step.
	if elapsed > 800*time.Millisecond {
		t.Errorf("forced abort took %v, want well under one polling step", elapsed)
	}

	// The abandoned handler unwinds between polling steps and records the
	// cancellation exactly once; nothing else records it again.
	counter := metrics.CancellationsTotal.WithLabelValues("disconnect")
	deadline := time.Now().Add(3 * time.Second)
	for getCounterValue(t, counter) == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if got := getCounterValue(t, counter); got != 1 {
		t.Errorf("disconnect cancellations = %v, want exactly 1", got)
	}
}

func TestServeDelayRecordsCancellationOnce(t *testing.T) {
	setupTestMetrics(t)
	h := newTestHandler(Config{})

	// Context-aware variant through the same pipeline: the handler observes
	// the disconnect itself, and the count must still be one.
	pipeline := request.WithCancellation(nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.ServeDelay(w, r, VariantWithToken, "10")
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/delay/10", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	pipeline.ServeHTTP(w, req)

	if w.Code != errors.StatusClientClosedRequest {
		t.Fatalf("status = %d, want %d", w.Code, errors.StatusClientClosedRequest)
	}

	counter := metrics.CancellationsTotal.WithLabelValues("disconnect")
	deadline := time.Now().Add(2 * time.Second)
	for getCounterValue(t, counter) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := getCounterValue(t, counter); got != 1 {
		t.Errorf("disconnect cancellations = %v, want exactly 1", got)
	}
}

func TestServeDelayEmitsOutcomeEvent(t *testing.T) {
	setupTestMetrics(t)

	pub := events.NewMockPublisher()
	h := newTestHandler(Config{Server: "apiserver", Publisher: pub})

	req := httptest.NewRequest(http.MethodGet, "/api/delay/0", nil)
	w := httptest.NewRecorder()
	h.ServeDelay(w, req, VariantWithToken, "0")

	// Events publish asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for pub.LastPublished() == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	last := pub.LastPublished()
	if last == nil {
		t.Fatal("no outcome event published")
	}
	ev, ok := last.Data.(events.OutcomeEvent)
	if !ok {
		t.Fatalf("event type = %T, want OutcomeEvent", last.Data)
	}
	if ev.Outcome != "completed" || ev.Server != "apiserver" || ev.Variant != "with-token" {
		t.Errorf("unexpected event: %+v", ev)
	}
}
