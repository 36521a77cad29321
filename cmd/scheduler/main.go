package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carelane/medassign/internal/app"
	"github.com/carelane/medassign/pkg/config"
	"github.com/carelane/medassign/pkg/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.LogLevel,
		Format:      observability.LogFormat(cfg.LogFormat),
		Output:      os.Stdout,
		ServiceName: "medassign-scheduler",
	})

	logger.Info("starting scheduler",
		"check_interval", cfg.CheckInterval,
		"scheduler_enabled", cfg.SchedulerEnabled,
		"reminder_enabled", cfg.ReminderEnabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	engine, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to assemble engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()
	logger.Info("engine assembled", "driver", cfg.DatabaseDriver)

	engine.Scheduler.Start(ctx)

	if cfg.WorkerHealthAddr != "" {
		startHealthServer(ctx, cfg.WorkerHealthAddr, engine, logger)
	}

	statsTicker := time.NewTicker(cfg.StatsInterval)
	defer statsTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-statsTicker.C:
				exp := engine.Expiration.Stats()
				rem := engine.Reminder.Stats()
				logger.Info("sweep stats",
					"expiration_runs", exp.Runs,
					"expired", exp.Expired,
					"escalated", exp.Escalated,
					"reassignments_requested", exp.ReassignmentsRequested,
					"expiration_failures", exp.Failures,
					"reminder_runs", rem.Runs,
					"reminders_sent", rem.RemindersSent,
					"reminder_failures", rem.Failures,
				)
			}
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down scheduler")
	engine.Scheduler.Stop()
	logger.Info("scheduler stopped")
}

func startHealthServer(ctx context.Context, addr string, engine *app.App, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		exp := engine.Expiration.Stats()
		rem := engine.Reminder.Stats()
		response := map[string]any{
			"status": "ok",
			"expiration": map[string]any{
				"runs":                    exp.Runs,
				"processed":               exp.Processed,
				"expired":                 exp.Expired,
				"escalated":               exp.Escalated,
				"reassignments_requested": exp.ReassignmentsRequested,
				"failures":                exp.Failures,
				"last_run_at":             exp.LastRunAt,
				"last_error":              exp.LastError,
				"last_error_at":           exp.LastErrorAt,
			},
			"reminders": map[string]any{
				"runs":           rem.Runs,
				"processed":      rem.Processed,
				"reminders_sent": rem.RemindersSent,
				"failures":       rem.Failures,
				"last_run_at":    rem.LastRunAt,
				"last_error":     rem.LastError,
				"last_error_at":  rem.LastErrorAt,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := engine.Ping(checkCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ready"})
	})

	healthSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("health server starting", "addr", addr)
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := healthSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()
}
