package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smartpcr/pass-cancel/internal/config"
	"github.com/smartpcr/pass-cancel/internal/errors"
	"github.com/smartpcr/pass-cancel/internal/events"
	"github.com/smartpcr/pass-cancel/internal/logging"
	"github.com/smartpcr/pass-cancel/internal/metrics"
	loggingMiddleware "github.com/smartpcr/pass-cancel/internal/middleware/logging"
	"github.com/smartpcr/pass-cancel/internal/middleware/request"
	"github.com/smartpcr/pass-cancel/internal/middleware/security"
	"github.com/smartpcr/pass-cancel/internal/telemetry"
	"github.com/smartpcr/pass-cancel/pkg/delay"
)

// apiserver hosts the same delay contract as delayserver on a second
// routing stack. Path variables come from mux.Vars instead of the standard
// library's pattern matching; everything else is shared.
func main() {
	configFile := flag.String("config", "", "Path to configuration file (JSON or YAML)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (json, text, dev)")
	flag.Parse()

	cfg, err := config.Load(*configFile, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Server.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.Server.LogFormat = *logFormat
	}

	logger := logging.NewLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)
	slog.SetDefault(logger)

	logger.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()

	healthCheck := delay.NewHealthCheck()

	reg := prometheus.NewRegistry()
	if err := metrics.InitMetrics(reg); err != nil {
		logger.Error("failed to initialize metrics", "error", err)
		os.Exit(1)
	}

	var provider *telemetry.Provider
	if cfg.Telemetry.Enabled {
		provider, err = telemetry.NewProvider(telemetry.Config{
			ServiceName:    "apiserver",
			ServiceVersion: "1.0.0",
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
			SamplingRatio:  cfg.Telemetry.SamplingRatio,
			MaxExportBatch: telemetry.DefaultConfig().MaxExportBatch,
			MaxQueueSize:   telemetry.DefaultConfig().MaxQueueSize,
		})
		if err != nil {
			logger.Error("failed to create telemetry provider", "error", err)
			os.Exit(1)
		}
		if err := provider.Start(ctx); err != nil {
			logger.Error("failed to start telemetry provider", "error", err)
			os.Exit(1)
		}
		defer provider.Shutdown(ctx)
	}

	var publisher events.Publisher
	if cfg.Events.Enabled {
		pub, err := events.NewPubSubPublisher(ctx, cfg.Events.ProjectID, cfg.Events.TopicID)
		if err != nil {
			err = errors.WithDetails(errors.Wrap(err, "failed to create outcome publisher"), map[string]interface{}{
				"project_id": cfg.Events.ProjectID,
				"topic_id":   cfg.Events.TopicID,
			})
			logger.Error("publisher initialization error", "error", err)
			os.Exit(1)
		}
		publisher = events.NewCircuitBreaker(pub, events.DefaultCircuitBreakerConfig())
		defer publisher.Close()
	}

	inflight := request.NewRegistry()

	delayHandler := delay.NewHandler(delay.Config{
		Server:          "apiserver",
		MaxDelaySeconds: cfg.Server.MaxDelay,
		IncludeMethod:   true,
		Registry:        inflight,
		Publisher:       publisher,
		Logger:          logger,
	})

	securityConfig := security.SecurityConfig{
		AllowedOrigins: cfg.Security.AllowedOrigins,
		AllowedMethods: cfg.Security.AllowedMethods,
		AllowedHeaders: cfg.Security.AllowedHeaders,
		MaxAge:         3600,
	}

	middlewares := []mux.MiddlewareFunc{
		request.WithRequestID,
		loggingMiddleware.WithRequestLogging(logger),
	}
	if provider != nil {
		middlewares = append(middlewares, provider.TracingMiddleware)
	}
	if len(cfg.Security.AllowedIPs) > 0 {
		allowList, err := security.NewIPAllowList(cfg.Security.AllowedIPs)
		if err != nil {
			logger.Error("invalid IP allow list", "error", err)
			os.Exit(1)
		}
		middlewares = append(middlewares, allowList.Middleware)
	}
	middlewares = append(middlewares,
		security.WithSecurityHeaders(securityConfig),
		security.WithRateLimit(cfg.Security.RateLimit),
		security.WithIPRateLimit(cfg.Security.IPRateLimit),
		request.WithTimeout(cfg.Server.RequestTimeout),
		request.WithCancellation(inflight),
	)

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	router.HandleFunc("/health", healthCheck.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/ready", healthCheck.ReadyHandler).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	for _, mw := range middlewares {
		api.Use(mw)
	}

	api.HandleFunc("/delay/{seconds}", func(w http.ResponseWriter, r *http.Request) {
		delayHandler.ServeDelay(w, r, delay.VariantWithToken, mux.Vars(r)["seconds"])
	}).Methods(http.MethodGet)

	api.HandleFunc("/example/{variant}/{seconds}", func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		variant, err := delay.ParseVariant(vars["variant"])
		if err != nil {
			writeError(w, err)
			return
		}
		delayHandler.ServeDelay(w, r, variant, vars["seconds"])
	}).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", "port", cfg.API.Port)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	healthCheck.SetReady(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutting down server", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.RequestTimeout)
	defer cancel()

	healthCheck.SetReady(false)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("server shutdown complete")
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errors.StatusCode(err))
	json.NewEncoder(w).Encode(errors.ToErrorResponse(err))
}
