package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/veilproof/riskscope/internal/bootstrap"
	"github.com/veilproof/riskscope/internal/config"
	"github.com/veilproof/riskscope/internal/core/domain"
	analyticspg "github.com/veilproof/riskscope/internal/infrastructure/analytics/postgres"
	"github.com/veilproof/riskscope/internal/infrastructure/scoring/heuristic"
	"github.com/veilproof/riskscope/internal/observability/logging"
	"github.com/veilproof/riskscope/internal/observability/metrics"
)

// taskTimeout bounds one pipeline run so a stuck RPC call cannot block a
// consumer-group member indefinitely.
const taskTimeout = 5 * time.Minute

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewWorker(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	go serveMetrics(cfg.WorkerMetricsPort, workerMetrics, app.Readiness, app.Analytics)

	app.Consumer.Register(cfg.RiskRequestTopic, func(handlerCtx context.Context, payload []byte) error {
		var msg domain.RiskTaskMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			// Unparseable payloads would redeliver forever; drop with a log.
			slog.Error("risk_message_malformed", "error", err)
			return nil
		}
		if msg.TaskID == "" {
			slog.Error("risk_message_missing_task_id")
			return nil
		}

		taskCtx, cancel := context.WithTimeout(handlerCtx, taskTimeout)
		defer cancel()

		workerMetrics.StartTask()
		workerMetrics.ObserveQueueLag("worker", time.Since(msg.Timestamp))
		start := time.Now()
		err := app.RiskUC.ProcessRiskTask(taskCtx, msg)
		workerMetrics.FinishTask("worker", "risk", time.Since(start), err)
		return err
	})

	app.Consumer.Register(cfg.StrategyRequestTopic, func(handlerCtx context.Context, payload []byte) error {
		var msg domain.StrategyTaskMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			slog.Error("strategy_message_malformed", "error", err)
			return nil
		}
		if msg.TaskID == "" {
			slog.Error("strategy_message_missing_task_id")
			return nil
		}

		taskCtx, cancel := context.WithTimeout(handlerCtx, taskTimeout)
		defer cancel()

		workerMetrics.StartTask()
		workerMetrics.ObserveQueueLag("worker", time.Since(msg.Timestamp))
		start := time.Now()
		err := app.StrategyUC.ProcessStrategyTask(taskCtx, msg)
		workerMetrics.FinishTask("worker", "strategy", time.Since(start), err)
		return err
	})

	slog.Info("worker_consuming",
		"group", cfg.KafkaConsumerGroup,
		"topics", fmt.Sprintf("%s,%s", cfg.RiskRequestTopic, cfg.StrategyRequestTopic),
	)
	if err := app.Consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("worker consume error: %v", err)
	}
}

func serveMetrics(
	port string,
	m *metrics.WorkerMetrics,
	readiness map[string]func(ctx context.Context) error,
	analytics *analyticspg.InferenceRepository,
) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if analytics != nil {
		mux.HandleFunc("/v1/admin/model-stats", modelStatsHandler(analytics))
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		deps := make(map[string]string, len(readiness))
		healthy := true
		for name, check := range readiness {
			if err := check(r.Context()); err != nil {
				deps[name] = "down"
				healthy = false
				continue
			}
			deps[name] = "up"
		}
		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "dependencies": deps})
	})
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		slog.Error("worker_metrics_server_error", "error", err)
	}
}

// modelStatsHandler exposes the anonymous inference aggregates for the
// monitoring dashboard. The window defaults to the trailing 24 hours.
func modelStatsHandler(analytics *analyticspg.InferenceRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		window := 24 * time.Hour
		if raw := r.URL.Query().Get("window"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil || d <= 0 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "window must be a positive duration"})
				return
			}
			window = d
		}

		stats, err := analytics.Stats(r.Context(), heuristic.ModelVersion, time.Now().Add(-window))
		if err != nil {
			slog.Error("model_stats_query_failed", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model_version":  heuristic.ModelVersion,
			"window":         window.String(),
			"count":          stats.Count,
			"success_rate":   stats.SuccessRate,
			"avg_latency_ms": stats.AvgLatencyMS,
			"avg_confidence": stats.AvgConfidence,
		})
	}
}
