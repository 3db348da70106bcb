// Package delay implements the cancellable delay endpoint.
//
// The endpoint waits a client-chosen number of seconds before responding,
// which makes it a minimal but complete demonstration of cancellation
// propagation: the interesting behavior is what happens when the client
// gives up first. Four variants expose the same contract while obtaining
// their cancellation context differently.
package delay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/smartpcr/pass-cancel/internal/cancellation"
	"github.com/smartpcr/pass-cancel/internal/delay"
	"github.com/smartpcr/pass-cancel/internal/errors"
	"github.com/smartpcr/pass-cancel/internal/events"
	"github.com/smartpcr/pass-cancel/internal/metrics"
	"github.com/smartpcr/pass-cancel/internal/middleware/request"
)

// Variant selects how the handler obtains its cancellation context. All
// variants except VariantNoCancellation behave identically from the
// outside; the differences are in plumbing only.
type Variant string

const (
	// VariantWithToken threads the request context through explicitly.
	VariantWithToken Variant = "with-token"
	// VariantWithoutToken recovers the context ambiently from the request.
	VariantWithoutToken Variant = "without-token"
	// VariantOwinContext recovers the context from the process-wide
	// in-flight request registry, the way frameworks with a per-connection
	// environment expose it.
	VariantOwinContext Variant = "owin-context"
	// VariantNoCancellation never consults the context during its waits;
	// only the wrapper's forced abort ends it early, with whole-second
	// granularity.
	VariantNoCancellation Variant = "no-cancellation"
)

// ParseVariant validates a variant path segment.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case VariantWithToken, VariantWithoutToken, VariantOwinContext, VariantNoCancellation:
		return v, nil
	default:
		return "", errors.NewValidationError(fmt.Sprintf("unknown variant %q", s))
	}
}

// SuccessResponse is the payload of a delay that ran to completion.
type SuccessResponse struct {
	Message string `json:"message"`
	Server  string `json:"server"`
	Method  string `json:"method,omitempty"`
}

// Config holds the configuration for the delay handler
type Config struct {
	// Server names the hosting process in payloads, metrics and events.
	Server string
	// MaxDelaySeconds bounds the accepted delay; larger requests are
	// rejected with a validation error.
	MaxDelaySeconds int
	// IncludeMethod adds the HTTP method to success payloads.
	IncludeMethod bool
	// Registry is the in-flight request registry consulted by
	// VariantOwinContext. Optional; the variant falls back to the request
	// context without it.
	Registry *request.Registry
	// Publisher receives outcome events. Optional.
	Publisher events.Publisher
	Logger    *slog.Logger
}

// Handler serves the cancellable delay endpoint.
type Handler struct {
	server        string
	maxDelay      int
	includeMethod bool
	registry      *request.Registry
	publisher     events.Publisher
	logger        *slog.Logger
}

// NewHandler creates a new delay handler
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxDelay := cfg.MaxDelaySeconds
	if maxDelay <= 0 {
		maxDelay = 300
	}

	return &Handler{
		server:        cfg.Server,
		maxDelay:      maxDelay,
		includeMethod: cfg.IncludeMethod,
		registry:      cfg.Registry,
		publisher:     cfg.Publisher,
		logger:        logger,
	}
}

// ServeDelay runs one delay request. The seconds argument is the raw path
// segment; extraction is left to the host's router so the same handler
// serves both hosting stacks.
func (h *Handler) ServeDelay(w http.ResponseWriter, r *http.Request, variant Variant, seconds string) {
	start := time.Now()

	n, err := parseSeconds(seconds, h.maxDelay)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("validation").Inc()
		metrics.RecordRequest("failed", string(variant), h.server)
		h.writeError(w, err)
		return
	}

	ctx, span := otel.Tracer("delay").Start(r.Context(), "delay.wait",
		trace.WithAttributes(
			attribute.String("delay.variant", string(variant)),
			attribute.Int("delay.seconds", n),
			attribute.String("delay.server", h.server),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)

	err = h.wait(r, variant, n)
	elapsed := time.Since(start)

	metrics.RecordDuration(string(variant), elapsed.Seconds())

	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
		metrics.RecordRequest("completed", string(variant), h.server)
		h.writeSuccess(w, r, n)
		h.emit(r, variant, "completed", http.StatusOK, n, elapsed, "")

	case errors.IsCancelled(err):
		span.SetStatus(codes.Error, "client closed request")
		cause := causeOf(r.Context())
		metrics.RecordCancellation(string(cause))
		metrics.RecordRequest("cancelled", string(variant), h.server)
		h.writeError(w, err)
		h.emit(r, variant, "cancelled", errors.StatusClientClosedRequest, n, elapsed, string(cause))

	case errors.IsTimeout(err):
		span.SetStatus(codes.Error, "deadline exceeded")
		metrics.RecordCancellation(string(cancellation.CauseTimeout))
		metrics.RecordRequest("timed_out", string(variant), h.server)
		h.writeError(w, err)
		h.emit(r, variant, "timed_out", http.StatusGatewayTimeout, n, elapsed, string(cancellation.CauseTimeout))

	default:
		span.SetStatus(codes.Error, "wait failed")
		metrics.ErrorsTotal.WithLabelValues("internal").Inc()
		metrics.RecordRequest("failed", string(variant), h.server)
		h.writeError(w, err)
		h.emit(r, variant, "failed", errors.StatusCode(err), n, elapsed, "")
	}
}

// wait suspends for n seconds, obtaining cancellation per the variant.
func (h *Handler) wait(r *http.Request, variant Variant, n int) error {
	d := time.Duration(n) * time.Second

	metrics.InflightWaits.Inc()
	defer metrics.InflightWaits.Dec()

	switch variant {
	case VariantWithToken:
		// The context travels as an explicit argument end to end.
		return delay.Wait(r.Context(), d)

	case VariantWithoutToken:
		// No context argument: recover it ambiently from the request.
		return h.waitAmbient(r, d)

	case VariantOwinContext:
		// Recover the context from the in-flight registry by request ID.
		ctx := r.Context()
		if h.registry != nil {
			if reg, ok := h.registry.Lookup(request.ID(r)); ok {
				ctx = reg
			}
		}
		return delay.Wait(ctx, d)

	case VariantNoCancellation:
		// The per-second sleeps are not cancellation-aware; the connection
		// state is consulted only between steps.
		return delay.WaitPolling(d, func() bool {
			return r.Context().Err() != nil
		})

	default:
		return errors.NewValidationError(fmt.Sprintf("unknown variant %q", variant))
	}
}

// waitAmbient is the variant that takes no context argument at all.
func (h *Handler) waitAmbient(r *http.Request, d time.Duration) error {
	return delay.Wait(r.Context(), d)
}

func (h *Handler) writeSuccess(w http.ResponseWriter, r *http.Request, n int) {
	resp := SuccessResponse{
		Message: fmt.Sprintf("Completed after %d seconds", n),
		Server:  h.server,
	}
	if h.includeMethod {
		resp.Method = r.Method
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errors.StatusCode(err))
	json.NewEncoder(w).Encode(errors.ToErrorResponse(err))
}

// emit publishes the request outcome asynchronously; the response never
// waits on the event pipeline.
func (h *Handler) emit(r *http.Request, variant Variant, outcome string, status, seconds int, elapsed time.Duration, cause string) {
	if h.publisher == nil {
		return
	}

	event := events.OutcomeEvent{
		RequestID:  request.ID(r),
		Server:     h.server,
		Variant:    string(variant),
		Path:       r.URL.Path,
		Outcome:    outcome,
		Status:     status,
		Seconds:    seconds,
		DurationMS: elapsed.Milliseconds(),
		Cause:      cause,
		OccurredAt: time.Now().UTC(),
	}

	go events.Emit(h.publisher, h.logger, event)
}

func parseSeconds(s string, max int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.NewValidationError(fmt.Sprintf("invalid seconds value %q", s))
	}
	if n < 0 {
		return 0, errors.NewValidationError("seconds must not be negative")
	}
	if n > max {
		return 0, errors.NewValidationError(fmt.Sprintf("seconds must not exceed %d", max))
	}
	return n, nil
}

// causeOf maps a request context's end state to a cancellation cause.
func causeOf(ctx context.Context) cancellation.Cause {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return cancellation.CauseTimeout
	case context.Canceled:
		return cancellation.CauseDisconnect
	default:
		return cancellation.CauseManual
	}
}
