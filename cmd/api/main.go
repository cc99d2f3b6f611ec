package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/veilproof/riskscope/internal/adapters/http"
	"github.com/veilproof/riskscope/internal/bootstrap"
	"github.com/veilproof/riskscope/internal/config"
	"github.com/veilproof/riskscope/internal/observability/logging"
	"github.com/veilproof/riskscope/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewAPI(cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	readiness := make(map[string]httpadapter.ReadinessCheck, len(app.Readiness))
	for name, check := range app.Readiness {
		readiness[name] = check
	}

	router := httpadapter.NewRouter(
		app.AnalysisUC,
		app.StrategyUC,
		app.StatusUC,
		readiness,
		metrics.NewHTTPServerMetrics("api"),
		cfg.RateLimitRPS,
		cfg.RateLimitBurst,
	).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_error", "error", err)
	}
}
