// Package bootstrap wires each service's dependency graph once at process
// start. Handles are explicit: no package-level singletons, everything is
// constructed here and passed down.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/veilproof/riskscope/internal/adapters/ws"
	"github.com/veilproof/riskscope/internal/config"
	"github.com/veilproof/riskscope/internal/core/ports"
	"github.com/veilproof/riskscope/internal/core/usecase"
	analyticspg "github.com/veilproof/riskscope/internal/infrastructure/analytics/postgres"
	natsbus "github.com/veilproof/riskscope/internal/infrastructure/bus/nats"
	"github.com/veilproof/riskscope/internal/infrastructure/cache/redis"
	"github.com/veilproof/riskscope/internal/infrastructure/indexer/ethrpc"
	"github.com/veilproof/riskscope/internal/infrastructure/ownership"
	"github.com/veilproof/riskscope/internal/infrastructure/passport"
	"github.com/veilproof/riskscope/internal/infrastructure/queue/kafka"
	"github.com/veilproof/riskscope/internal/infrastructure/resilience"
	"github.com/veilproof/riskscope/internal/infrastructure/scoring/heuristic"
	"github.com/veilproof/riskscope/internal/observability/metrics"
)

func topicsFromConfig(cfg config.Config) kafka.Topics {
	return kafka.Topics{
		RiskRequests:     cfg.RiskRequestTopic,
		RiskResults:      cfg.RiskResultTopic,
		StrategyRequests: cfg.StrategyRequestTopic,
		StrategyResults:  cfg.StrategyResultTopic,
	}
}

// API is the submission/polling tier.
type API struct {
	Config config.Config

	Cache    *redis.Cache
	Producer *kafka.Producer
	Bus      *natsbus.Bus

	AnalysisUC ports.AnalysisSubmitter
	StrategyUC ports.StrategySubmitter
	StatusUC   ports.TaskStatusReader

	Readiness map[string]func(ctx context.Context) error

	closeFn func()
}

func NewAPI(cfg config.Config) (*API, error) {
	cache, err := redis.New(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, topicsFromConfig(cfg))
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("init kafka producer: %w", err)
	}

	bus, err := natsbus.New(cfg.NATSURL, cfg.StatusSubject)
	if err != nil {
		producer.Close()
		cache.Close()
		return nil, fmt.Errorf("init status bus: %w", err)
	}

	verifier := ownership.NewVerifier()
	tracker := usecase.NewStatusTracker(cache, bus, cfg.TaskTTL)

	app := &API{
		Config:   cfg,
		Cache:    cache,
		Producer: producer,
		Bus:      bus,

		AnalysisUC: usecase.NewSubmitRiskAnalysisUseCase(verifier, cache, producer, tracker),
		StrategyUC: usecase.NewSubmitStrategyValidationUseCase(verifier, cache, producer, tracker),
		StatusUC:   usecase.NewTaskStatusUseCase(cache),

		closeFn: func() {
			bus.Close()
			_ = producer.Close()
			_ = cache.Close()
		},
	}
	app.Readiness = map[string]func(ctx context.Context) error{
		"cache": cache.Ping,
		"queue": producer.Ping,
		"bus": func(context.Context) error {
			if !bus.Connected() {
				return fmt.Errorf("status bus disconnected")
			}
			return nil
		},
	}
	return app, nil
}

func (a *API) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// Worker is the pipeline tier: consumes request topics, runs the staged
// pipelines, publishes results.
type Worker struct {
	Config config.Config

	Cache    *redis.Cache
	Consumer *kafka.Consumer
	Producer *kafka.Producer
	Bus      *natsbus.Bus

	RiskUC     ports.RiskTaskProcessor
	StrategyUC ports.StrategyTaskProcessor

	// Analytics is nil when the inference store is disabled or unreachable.
	Analytics *analyticspg.InferenceRepository

	Readiness map[string]func(ctx context.Context) error

	closeFn func()
}

func NewWorker(ctx context.Context, cfg config.Config) (*Worker, error) {
	cache, err := redis.New(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, topicsFromConfig(cfg))
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("init kafka producer: %w", err)
	}

	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup)
	if err != nil {
		producer.Close()
		cache.Close()
		return nil, fmt.Errorf("init kafka consumer: %w", err)
	}

	bus, err := natsbus.New(cfg.NATSURL, cfg.StatusSubject)
	if err != nil {
		consumer.Close()
		producer.Close()
		cache.Close()
		return nil, fmt.Errorf("init status bus: %w", err)
	}

	exec := resilience.NewExecutor(resilience.DefaultConfig())
	indexer := ethrpc.New(cfg.ChainRPCURL, exec)
	scorer := heuristic.NewScorer()
	analyzer := heuristic.NewAnalyzer()
	issuer := passport.NewIssuer(indexer, cfg.VaultAddress)
	tracker := usecase.NewStatusTracker(cache, bus, cfg.TaskTTL)
	resultTTLs := usecase.ResultTTLs{Result: cfg.ResultTTL, Analysis: cfg.AnalysisTTL}

	var recorder ports.ModelMetricsRecorder
	var analytics *analyticspg.InferenceRepository
	var db *sql.DB
	if cfg.AnalyticsEnabled {
		db, err = openAnalyticsDB(ctx, cfg.PostgresDSN)
		if err != nil {
			// Analytics is monitoring-only: run without it rather than
			// refusing to start.
			slog.Warn("analytics_disabled", "error", err)
		} else {
			analytics = analyticspg.NewInferenceRepository(db)
			recorder = analytics
		}
	}

	return &Worker{
		Config:   cfg,
		Cache:    cache,
		Consumer: consumer,
		Producer: producer,
		Bus:      bus,

		RiskUC:     usecase.NewRiskAnalysisUseCase(cache, tracker, producer, indexer, scorer, issuer, recorder, resultTTLs),
		StrategyUC: usecase.NewStrategyValidationUseCase(cache, tracker, producer, indexer, analyzer, resultTTLs),

		Analytics: analytics,

		Readiness: map[string]func(ctx context.Context) error{
			"cache": cache.Ping,
			"queue": producer.Ping,
			"bus": func(context.Context) error {
				if !bus.Connected() {
					return fmt.Errorf("status bus disconnected")
				}
				return nil
			},
		},

		closeFn: func() {
			bus.Close()
			_ = consumer.Close()
			_ = producer.Close()
			_ = cache.Close()
			if db != nil {
				_ = db.Close()
			}
		},
	}, nil
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

// Broadcaster is the real-time tier: bus subscriber plus WebSocket hub.
type Broadcaster struct {
	Config config.Config

	Bus     *natsbus.Bus
	Hub     *ws.Hub
	Metrics *metrics.BroadcasterMetrics

	Readiness map[string]func(ctx context.Context) error

	closeFn func()
}

func NewBroadcaster(cfg config.Config) (*Broadcaster, error) {
	bus, err := natsbus.New(cfg.NATSURL, cfg.StatusSubject)
	if err != nil {
		return nil, fmt.Errorf("init status bus: %w", err)
	}

	m := metrics.NewBroadcasterMetrics("broadcaster")
	hub := ws.NewHub(m)
	app := &Broadcaster{
		Config:  cfg,
		Bus:     bus,
		Hub:     hub,
		Metrics: m,

		closeFn: func() {
			bus.Close()
		},
	}
	app.Readiness = map[string]func(ctx context.Context) error{
		"bus": func(context.Context) error {
			if !bus.Connected() {
				return fmt.Errorf("status bus disconnected")
			}
			return nil
		},
	}
	return app, nil
}

func (b *Broadcaster) Close() {
	if b.closeFn != nil {
		b.closeFn()
	}
}
