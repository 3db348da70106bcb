// delayctl exercises the delay endpoints with a shared one-shot
// cancellation trigger. The first Ctrl-C fires the trigger instead of
// killing the process: in-flight calls unwind, report Cancelled, and the
// process exits cleanly. A cancelled run exits 0; only transport or
// protocol failures exit 1.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"syscall"
	"time"

	"github.com/smartpcr/pass-cancel/internal/cancellation"
	"github.com/smartpcr/pass-cancel/internal/logging"
	"github.com/smartpcr/pass-cancel/pkg/delayclient"
)

func main() {
	os.Exit(run())
}

func run() int {
	delayURL := flag.String("delay-url", "http://localhost:8080/delay", "Base URL of the delayserver endpoint")
	apiURL := flag.String("api-url", "http://localhost:8081/api/delay", "Base URL of the apiserver endpoint")
	seconds := flag.Int("seconds", 5, "Delay to request, in seconds")
	cancelAfter := flag.Duration("cancel-after", 0, "Fire the cancellation trigger after this duration (0 disables)")
	httpTimeout := flag.Duration("timeout", 0, "HTTP client timeout (0 disables)")
	race := flag.Bool("race", false, "Call both endpoints in parallel with one shared trigger")
	waitReady := flag.Bool("wait-ready", false, "Wait for the target endpoints' readiness before calling")
	logLevel := flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "text", "Log format (json, text, dev)")
	flag.Parse()

	logger := logging.NewLogger(*logLevel, *logFormat)
	slog.SetDefault(logger)

	// One trigger feeds every cancellation source: timer, Ctrl-C, or both.
	sig := cancellation.NewSignal()
	sig.BindInterrupt(os.Interrupt, syscall.SIGTERM)
	if *cancelAfter > 0 {
		sig.FireAfter(*cancelAfter)
	}

	ctx, cancel := sig.Context(context.Background())
	defer cancel()

	targets := []string{*delayURL}
	if *race {
		targets = append(targets, *apiURL)
	}

	if *waitReady {
		for _, target := range targets {
			readyURL, err := readinessURL(target)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid endpoint URL %q: %v\n", target, err)
				return 1
			}

			waitCtx, waitCancel := context.WithTimeout(ctx, 30*time.Second)
			err = delayclient.WaitReady(waitCtx, nil, readyURL)
			waitCancel()
			if err != nil {
				fmt.Fprintf(os.Stderr, "endpoint %s never became ready: %v\n", target, err)
				return 1
			}
			logger.Info("endpoint ready", "url", readyURL)
		}
	}

	hc := &http.Client{Timeout: *httpTimeout}

	if *race {
		clients := make([]*delayclient.Client, len(targets))
		for i, target := range targets {
			clients[i] = delayclient.New(target,
				delayclient.WithHTTPClient(hc),
				delayclient.WithLogger(logger),
			)
		}

		result := delayclient.Race(context.Background(), clients, *seconds, sig)
		for _, r := range result.Results {
			printResult(r)
		}
		fmt.Printf("aggregate: %s\n", result.Outcome)
		return exitCode(result.Outcome)
	}

	client := delayclient.New(*delayURL,
		delayclient.WithHTTPClient(hc),
		delayclient.WithLogger(logger),
	)

	result := client.Delay(ctx, *seconds)
	printResult(result)
	return exitCode(result.Outcome)
}

func printResult(r delayclient.Result) {
	switch r.Outcome {
	case delayclient.OutcomeCompleted:
		fmt.Printf("%s: completed in %v: %s\n", r.Endpoint, r.Elapsed.Round(time.Millisecond), r.Message)
	default:
		fmt.Printf("%s: %s after %v: %v\n", r.Endpoint, r.Outcome, r.Elapsed.Round(time.Millisecond), r.Err)
	}
}

// exitCode maps outcomes to process exit codes. Cancellation is an expected
// terminal state, not a failure.
func exitCode(outcome delayclient.Outcome) int {
	switch outcome {
	case delayclient.OutcomeCompleted, delayclient.OutcomeCancelled:
		return 0
	default:
		return 1
	}
}

// readinessURL derives the host's /ready endpoint from a delay endpoint URL.
func readinessURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("missing scheme or host")
	}
	u.Path = "/ready"
	u.RawQuery = ""
	return u.String(), nil
}
