// Package delayclient provides a cancellation-aware client for the delay
// endpoints.
//
// Every call resolves to exactly one terminal outcome. Cancellation is a
// first-class code path with its own outcome, never a generic error: a call
// abandoned on purpose reports Cancelled, a call that hit the HTTP client's
// own timeout reports TimedOut, and only genuine transport or protocol
// problems report Failed.
package delayclient

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/smartpcr/pass-cancel/internal/cancellation"
	"github.com/smartpcr/pass-cancel/internal/errors"
)

// Outcome classifies how a delay call ended.
type Outcome string

const (
	// OutcomeCompleted means the server finished the full delay.
	OutcomeCompleted Outcome = "completed"
	// OutcomeCancelled means the trigger fired before a response was read.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeTimedOut means the HTTP client's own deadline elapsed. This is
	// a protocol-level timeout, distinct from intentional cancellation.
	OutcomeTimedOut Outcome = "timed_out"
	// OutcomeFailed means a transport or protocol error.
	OutcomeFailed Outcome = "failed"
)

// Result is the terminal state of one delay call. Exactly one outcome is
// set; Err is populated for every outcome except OutcomeCompleted.
type Result struct {
	Outcome  Outcome
	Endpoint string
	Status   int
	Message  string
	Server   string
	Elapsed  time.Duration
	Err      error
}

// Client calls a single delay endpoint. Clients are explicitly constructed
// and caller-owned; the zero value is not usable.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the http.Client used for requests. This is how
// callers inject protocol-level timeouts.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the delay endpoint rooted at baseURL, e.g.
// "http://localhost:8080/delay" or "http://localhost:8081/api/delay".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the endpoint root this client calls.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// delayResponse mirrors the endpoint's success payload.
type delayResponse struct {
	Message string `json:"message"`
	Server  string `json:"server"`
}

// Delay requests a delay of the given number of seconds and classifies the
// terminal outcome. Cancelling ctx while the call is in flight yields
// OutcomeCancelled.
func (c *Client) Delay(ctx context.Context, seconds int) Result {
	start := time.Now()
	endpoint := fmt.Sprintf("%s/%d", c.baseURL, seconds)

	result := Result{
		Outcome:  OutcomeFailed,
		Endpoint: endpoint,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		result.Err = errors.NewTransportError("building request", err)
		result.Elapsed = time.Since(start)
		return result
	}

	resp, err := c.httpClient.Do(req)
	result.Elapsed = time.Since(start)
	if err != nil {
		result.Outcome, result.Err = classifyTransportError(ctx, err)
		c.logger.Debug("delay call did not complete",
			"endpoint", endpoint,
			"outcome", string(result.Outcome),
			"error", err,
		)
		return result
	}
	defer resp.Body.Close()

	result.Status = resp.StatusCode
	body, err := io.ReadAll(resp.Body)
	result.Elapsed = time.Since(start)
	if err != nil {
		// The trigger can also fire mid-body.
		result.Outcome, result.Err = classifyTransportError(ctx, err)
		return result
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var payload delayResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			result.Err = errors.NewTransportError("decoding response", err)
			return result
		}
		result.Outcome = OutcomeCompleted
		result.Message = payload.Message
		result.Server = payload.Server
		result.Err = nil
		return result

	case resp.StatusCode == errors.StatusClientClosedRequest:
		result.Outcome = OutcomeCancelled
		result.Err = errors.NewCancelledError("server reported client closed request", nil)
		return result

	default:
		result.Err = errors.NewTransportError(
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
		return result
	}
}

// classifyTransportError separates deliberate cancellation and client-side
// timeouts from real transport failures.
func classifyTransportError(ctx context.Context, err error) (Outcome, error) {
	switch {
	case ctx.Err() == context.Canceled:
		return OutcomeCancelled, errors.NewCancelledError("call cancelled", err)
	case ctx.Err() == context.DeadlineExceeded:
		return OutcomeTimedOut, errors.NewTimeoutError("call deadline exceeded", err)
	}

	var uerr *url.Error
	if stderrors.As(err, &uerr) && uerr.Timeout() {
		return OutcomeTimedOut, errors.NewTimeoutError("http client timeout", err)
	}

	return OutcomeFailed, errors.NewTransportError("request failed", err)
}

// RaceResult aggregates a parallel invocation against several endpoints.
type RaceResult struct {
	// Outcome is the aggregate: cancelled if any sub-call cancelled, else
	// failed if any failed, else timed out if any timed out, else
	// completed.
	Outcome Outcome
	// Results holds every sub-call's individual outcome, in client order.
	Results []Result
}

// Race invokes all clients in parallel with one shared trigger and waits
// for every sub-call to reach a terminal outcome. Firing sig cancels every
// in-flight call.
func Race(ctx context.Context, clients []*Client, seconds int, sig *cancellation.Signal) RaceResult {
	callCtx := ctx
	if sig != nil {
		var cancel context.CancelFunc
		callCtx, cancel = sig.Context(ctx)
		defer cancel()
	}

	results := make([]Result, len(clients))

	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		go func(i int, c *Client) {
			defer wg.Done()
			results[i] = c.Delay(callCtx, seconds)
		}(i, c)
	}
	wg.Wait()

	return RaceResult{
		Outcome: aggregate(results),
		Results: results,
	}
}

func aggregate(results []Result) Outcome {
	var failed, timedOut bool
	for _, r := range results {
		switch r.Outcome {
		case OutcomeCancelled:
			return OutcomeCancelled
		case OutcomeFailed:
			failed = true
		case OutcomeTimedOut:
			timedOut = true
		}
	}
	switch {
	case failed:
		return OutcomeFailed
	case timedOut:
		return OutcomeTimedOut
	default:
		return OutcomeCompleted
	}
}

// readyPollInterval is the cadence of WaitReady probes.
const readyPollInterval = 100 * time.Millisecond

// WaitReady polls readyURL until it answers 200 or ctx ends. This is the
// readiness contract external drivers rely on before sending traffic.
func WaitReady(ctx context.Context, hc *http.Client, readyURL string) error {
	if hc == nil {
		hc = &http.Client{Timeout: 2 * time.Second}
	}

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, readyURL, nil)
		if err != nil {
			return errors.NewTransportError("building readiness request", err)
		}

		resp, err := hc.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return errors.FromContext(ctx.Err())
		case <-ticker.C:
		}
	}
}
