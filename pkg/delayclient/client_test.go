package delayclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartpcr/pass-cancel/internal/cancellation"
	"github.com/smartpcr/pass-cancel/internal/errors"
)

// newDelayServer serves a minimal context-aware delay endpoint.
func newDelayServer(t *testing.T, server string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		seconds, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil || seconds < 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		select {
		case <-time.After(time.Duration(seconds) * time.Second):
		case <-r.Context().Done():
			w.WriteHeader(errors.StatusClientClosedRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"message": fmt.Sprintf("Completed after %d seconds", seconds),
			"server":  server,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDelayCompleted(t *testing.T) {
	srv := newDelayServer(t, "delayserver")
	c := New(srv.URL + "/delay")

	result := c.Delay(context.Background(), 0)

	if result.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %v, want %v (err: %v)", result.Outcome, OutcomeCompleted, result.Err)
	}
	if result.Message != "Completed after 0 seconds" {
		t.Errorf("message = %q", result.Message)
	}
	if result.Server != "delayserver" {
		t.Errorf("server = %q", result.Server)
	}
	if result.Err != nil {
		t.Errorf("unexpected error: %v", result.Err)
	}
}

func TestDelayCancelled(t *testing.T) {
	srv := newDelayServer(t, "delayserver")
	c := New(srv.URL + "/delay")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result := c.Delay(ctx, 10)
	elapsed := time.Since(start)

	if result.Outcome != OutcomeCancelled {
		t.Fatalf("outcome = %v, want %v (err: %v)", result.Outcome, OutcomeCancelled, result.Err)
	}
	if !errors.IsCancelled(result.Err) {
		t.Errorf("error not classified as cancelled: %v", result.Err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("cancellation took %v, want prompt unwind", elapsed)
	}
}

func TestDelayTimedOut(t *testing.T) {
	srv := newDelayServer(t, "delayserver")
	c := New(srv.URL+"/delay", WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}))

	result := c.Delay(context.Background(), 10)

	if result.Outcome != OutcomeTimedOut {
		t.Fatalf("outcome = %v, want %v (err: %v)", result.Outcome, OutcomeTimedOut, result.Err)
	}
	if !errors.IsTimeout(result.Err) {
		t.Errorf("error not classified as timeout: %v", result.Err)
	}
}

func TestDelayFailed(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		srv := newDelayServer(t, "delayserver")
		url := srv.URL
		srv.Close()

		c := New(url + "/delay")
		result := c.Delay(context.Background(), 0)

		if result.Outcome != OutcomeFailed {
			t.Fatalf("outcome = %v, want %v", result.Outcome, OutcomeFailed)
		}
		if !errors.IsTransport(result.Err) {
			t.Errorf("error not classified as transport: %v", result.Err)
		}
	})

	t.Run("server error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		t.Cleanup(srv.Close)

		c := New(srv.URL + "/delay")
		result := c.Delay(context.Background(), 0)

		if result.Outcome != OutcomeFailed {
			t.Fatalf("outcome = %v, want %v", result.Outcome, OutcomeFailed)
		}
		if result.Status != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", result.Status)
		}
	})
}

func TestDelayServerReported499(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(errors.StatusClientClosedRequest)
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL + "/delay")
	result := c.Delay(context.Background(), 5)

	if result.Outcome != OutcomeCancelled {
		t.Errorf("outcome = %v, want %v", result.Outcome, OutcomeCancelled)
	}
}

func TestRaceSharedTrigger(t *testing.T) {
	srv1 := newDelayServer(t, "delayserver")
	srv2 := newDelayServer(t, "apiserver")

	clients := []*Client{
		New(srv1.URL + "/delay"),
		New(srv2.URL + "/api/delay"),
	}

	sig := cancellation.NewSignal()
	sig.FireAfter(100 * time.Millisecond)

	start := time.Now()
	race := Race(context.Background(), clients, 10, sig)
	elapsed := time.Since(start)

	if race.Outcome != OutcomeCancelled {
		t.Fatalf("aggregate outcome = %v, want %v", race.Outcome, OutcomeCancelled)
	}
	if len(race.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(race.Results))
	}
	for i, r := range race.Results {
		if r.Outcome != OutcomeCancelled {
			t.Errorf("result[%d] outcome = %v, want %v (err: %v)", i, r.Outcome, OutcomeCancelled, r.Err)
		}
	}
	if elapsed > 2*time.Second {
		t.Errorf("race took %v after a 100ms trigger", elapsed)
	}
}

func TestRaceAllComplete(t *testing.T) {
	srv1 := newDelayServer(t, "delayserver")
	srv2 := newDelayServer(t, "apiserver")

	clients := []*Client{
		New(srv1.URL + "/delay"),
		New(srv2.URL + "/api/delay"),
	}

	race := Race(context.Background(), clients, 0, cancellation.NewSignal())

	if race.Outcome != OutcomeCompleted {
		t.Fatalf("aggregate outcome = %v, want %v", race.Outcome, OutcomeCompleted)
	}
	servers := map[string]bool{}
	for _, r := range race.Results {
		servers[r.Server] = true
	}
	if !servers["delayserver"] || !servers["apiserver"] {
		t.Errorf("missing per-endpoint results: %+v", race.Results)
	}
}

func TestRaceRetainsIndividualOutcomes(t *testing.T) {
	healthy := newDelayServer(t, "delayserver")
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(broken.Close)

	clients := []*Client{
		New(healthy.URL + "/delay"),
		New(broken.URL + "/delay"),
	}

	race := Race(context.Background(), clients, 0, nil)

	if race.Outcome != OutcomeFailed {
		t.Fatalf("aggregate outcome = %v, want %v", race.Outcome, OutcomeFailed)
	}
	if race.Results[0].Outcome != OutcomeCompleted {
		t.Errorf("healthy endpoint outcome = %v, want %v", race.Results[0].Outcome, OutcomeCompleted)
	}
	if race.Results[1].Outcome != OutcomeFailed {
		t.Errorf("broken endpoint outcome = %v, want %v", race.Results[1].Outcome, OutcomeFailed)
	}
}

func TestWaitReady(t *testing.T) {
	var ready atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ready" || !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	go func() {
		time.Sleep(250 * time.Millisecond)
		ready.Store(true)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := WaitReady(ctx, nil, srv.URL+"/ready"); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
}

func TestWaitReadyGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := WaitReady(ctx, nil, srv.URL+"/ready")
	if err == nil {
		t.Fatal("expected error when readiness never arrives")
	}
	if !errors.IsTimeout(err) {
		t.Errorf("error not classified as timeout: %v", err)
	}
}
