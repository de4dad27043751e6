package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-concierge/internal/api/router"
	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/clinicorp"
	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/internal/inbox"
	"github.com/wolfman30/clinic-concierge/internal/leads"
	"github.com/wolfman30/clinic-concierge/internal/messaging"
	"github.com/wolfman30/clinic-concierge/internal/observability/metrics"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// Overrides replaces collaborators that would otherwise be built from
// config. Tests use it to avoid network clients.
type Overrides struct {
	LLM       conversation.LLMClient
	Messenger conversation.ReplyMessenger
	Queue     conversation.Queue
}

// App is the fully wired concierge: HTTP surface, queue and pipeline.
type App struct {
	Config    *appconfig.Config
	Logger    *logging.Logger
	Router    http.Handler
	Queue     conversation.Queue
	QueueKind string
	Pipeline  *conversation.Pipeline
	Metrics   *metrics.PipelineMetrics
	Stores    *Stores

	pool  *pgxpool.Pool
	redis *redis.Client
}

// Build wires every component from cfg. Close releases the connections it
// opened.
func Build(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger, overrides Overrides) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	app := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	pool, err := ConnectPostgres(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.pool = pool
	app.redis = BuildRedisClient(ctx, cfg, logger, true)

	stores, err := BuildStores(cfg, pool, app.redis, logger)
	if err != nil {
		return nil, err
	}
	app.Stores = stores

	resolver, err := BuildInstanceResolver(ctx, cfg, pool, app.redis, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = metrics.NewPipelineMetrics(registry)

	app.Queue, app.QueueKind = overrides.Queue, "override"
	if app.Queue == nil {
		if app.Queue, app.QueueKind, err = BuildQueue(cfg, awsCfg); err != nil {
			return nil, err
		}
	}

	llm, provider := overrides.LLM, "override"
	if llm == nil {
		if llm, provider, err = BuildLLMClient(ctx, cfg, awsCfg, logger); err != nil {
			return nil, err
		}
	}

	messenger := overrides.Messenger
	if messenger == nil {
		var name, reason string
		messenger, name, reason = BuildOutboundMessenger(cfg, logger)
		if reason != "" {
			logger.Warn("whatsapp replies will only be logged", "reason", reason)
		} else {
			logger.Info("whatsapp messenger initialized", "provider", name)
		}
	}

	schedulers := clinicorp.NewRegistry(stores.Clinics, clinicorp.RegistryOptions{
		BaseURL:   cfg.ClinicorpBaseURL,
		AuthURL:   cfg.ClinicorpAuthURL,
		Timeout:   cfg.ClinicorpTimeout,
		ForceMock: cfg.ClinicorpForceMock,
	}, logger)

	orchestrator := conversation.NewOrchestrator(
		llm,
		conversation.ClinicorpSchedulers(schedulers),
		stores.Directory,
		conversation.OrchestratorConfig{
			Provider:      provider,
			HistoryTurns:  cfg.HistoryTurns,
			LLMTimeout:    cfg.LLMTimeout,
			WidenStrategy: conversation.ParseWidenStrategy(cfg.WidenStrategy),
			WidenMaxDays:  cfg.WidenMaxDays,
			Metrics:       app.Metrics,
		},
		logger,
	)

	engine := inbox.NewEngine(stores.Inbox, stores.Contacts, logger)
	app.Pipeline = conversation.NewPipeline(conversation.PipelineDeps{
		Resolver:     resolver,
		Processed:    stores.Processed,
		Engine:       engine,
		Replier:      orchestrator,
		Clinics:      stores.Clinics,
		Messenger:    messenger,
		Notifier:     BuildEscalationNotifier(cfg, awsCfg, logger),
		Metrics:      app.Metrics,
		HistoryTurns: cfg.HistoryTurns,
	}, logger)

	publisher := conversation.NewPublisher(app.Queue, logger)
	app.Router = router.New(&router.Config{
		Logger:             logger,
		MessagingHandler:   messaging.NewHandler(publisher, app.Metrics, logger),
		InboxHandler:       inbox.NewHandler(stores.Inbox, logger),
		LeadsHandler:       leads.NewHandler(stores.Contacts, logger),
		ClinicHandler:      clinic.NewHandler(stores.Clinics, logger),
		ClinicorpHandler:   clinicorp.NewHandler(schedulers, logger),
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WebhookRateLimit:   cfg.WebhookRateLimit,
		WebhookRateBurst:   cfg.WebhookRateBurst,
	})

	logger.Info("concierge wired",
		"queue", app.QueueKind,
		"store", stores.Backend,
		"llm_provider", provider,
		"widen_strategy", cfg.WidenStrategy,
	)
	ok = true
	return app, nil
}

// NewWorker builds the background consumer for the app's queue.
func (a *App) NewWorker() *conversation.Worker {
	return conversation.NewWorker(a.Pipeline, a.Queue, a.Logger,
		conversation.WithWorkerCount(a.Config.WorkerCount),
		conversation.WithJobTimeout(a.Config.JobTimeout),
		conversation.WithWorkerMetrics(a.Metrics),
	)
}

// Close releases database and cache connections.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
