package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/deusflow/hotpush/internal/history"
	"github.com/deusflow/hotpush/internal/metrics"
)

func startMonitoringServer(port string, m *metrics.Metrics, h *history.History, logger *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newMonitorMux(m, h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting monitoring server", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("monitoring server error", "error", err)
		}
	}()
	return srv
}

func shutdownMonitoringServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func newMonitorMux(m *metrics.Metrics, h *history.History) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(m))
	mux.HandleFunc("/metrics", metricsHandler(m, h))
	mux.HandleFunc("/dedup", dedupHandler(m))
	return mux
}

func healthHandler(m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := m.GetStats()

		status := "ok"
		code := http.StatusOK
		if !m.Healthy() {
			status = "error"
			code = http.StatusServiceUnavailable
		}

		respond(w, code, map[string]interface{}{
			"status":     status,
			"last_run":   stats["last_run_time"],
			"last_error": stats["last_error"],
		})
	}
}

func metricsHandler(m *metrics.Metrics, h *history.History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := m.GetStats()
		if h != nil {
			stats["history"] = h.Statistics(r.Context())
		}
		respond(w, http.StatusOK, stats)
	}
}

func dedupHandler(m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, ok := m.LastDedup()
		if !ok {
			respond(w, http.StatusNotFound, map[string]string{"error": "no cycle has run yet"})
			return
		}
		respond(w, http.StatusOK, stats)
	}
}

func respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write monitoring response", "error", err)
	}
}
