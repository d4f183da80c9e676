package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"readflow/internal/usecase/notify"
)

const defaultMetricsPort = 9090

// startMetricsServer exposes Prometheus metrics on METRICS_PORT together
// with a notification channel status endpoint for alerting on stuck
// circuit breakers. The server shuts down when ctx is cancelled.
func startMetricsServer(ctx context.Context, logger *slog.Logger, notifyService notify.Service) {
	port := metricsPort(logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/channels", channelStatusHandler(notifyService))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", slog.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}()
}

// channelStatusHandler reports per-channel notification health. It returns
// 503 when any enabled channel has an open circuit breaker so that probes
// can page on sustained webhook failures.
func channelStatusHandler(notifyService notify.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses := notifyService.GetChannelHealth()

		code := http.StatusOK
		for _, s := range statuses {
			if s.Enabled && s.CircuitBreakerOpen {
				code = http.StatusServiceUnavailable
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(statuses); err != nil {
			slog.Error("failed to encode channel status", slog.Any("error", err))
		}
	}
}

func metricsPort(logger *slog.Logger) int {
	raw := os.Getenv("METRICS_PORT")
	if raw == "" {
		return defaultMetricsPort
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port < 1024 || port > 65535 {
		logger.Warn("invalid METRICS_PORT, using default",
			slog.String("value", raw),
			slog.Int("default", defaultMetricsPort))
		return defaultMetricsPort
	}
	return port
}
