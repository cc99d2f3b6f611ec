package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/veilproof/riskscope/internal/adapters/ws"
	"github.com/veilproof/riskscope/internal/bootstrap"
	"github.com/veilproof/riskscope/internal/config"
	"github.com/veilproof/riskscope/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("broadcaster", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewBroadcaster(cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.Handler(app.Hub))
	mux.Handle("/metrics", app.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		deps := make(map[string]string, len(app.Readiness))
		healthy := true
		for name, check := range app.Readiness {
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

	server := &http.Server{
		Addr:        ":" + cfg.BroadcasterPort,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// The bus subscription must outlive individual connections; it attaches
	// once and the NATS client carries it across reconnects.
	go func() {
		if err := app.Bus.SubscribeStatus(ctx, app.Hub); err != nil {
			slog.Error("status_subscription_ended", "error", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				app.Metrics.SetConnections(app.Hub.ClientCount())
			}
		}
	}()

	go func() {
		slog.Info("broadcaster_listening", "port", cfg.BroadcasterPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("broadcaster server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("broadcaster_shutdown_error", "error", err)
	}
}
