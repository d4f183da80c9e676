package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"readflow/internal/domain/entity"
	pgRepo "readflow/internal/infra/adapter/persistence/postgres"
	"readflow/internal/infra/db"
	"readflow/internal/infra/fetcher"
	"readflow/internal/infra/llm"
	"readflow/internal/infra/notifier"
	workerPkg "readflow/internal/infra/worker"
	"readflow/internal/observability/logging"
	"readflow/internal/observability/tracing"
	"readflow/internal/usecase/notify"
	"readflow/internal/usecase/pipeline"
	"readflow/internal/usecase/queue"
	"readflow/internal/usecase/scheduler"
)

// cleanupInterval is how often expired jobs are deleted.
const cleanupInterval = 24 * time.Hour

// ensureSchema applies the schema and verifies it is queryable. The database
// may still be starting up, so both steps retry.
func ensureSchema(logger *slog.Logger, database *sql.DB) {
	const probe = "SELECT 1 FROM sources LIMIT 1"
	for i := 0; i < 10; i++ {
		if err := db.MigrateUp(database); err != nil {
			logger.Info("schema migration failed, retrying in 3s",
				slog.Int("attempt", i+1), slog.Any("error", err))
			time.Sleep(3 * time.Second)
			continue
		}
		if _, err := database.Exec(probe); err == nil {
			return
		}
		logger.Info("schema not ready, retrying in 3s", slog.Int("attempt", i+1))
		time.Sleep(3 * time.Second)
	}
	logger.Error("schema was not ready in time")
	os.Exit(1)
}

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	database := db.Open()
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()
	ensureSchema(logger, database)

	// Shutdown on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.InitTracer("readflow-worker")
	if err != nil {
		logger.Error("failed to initialize tracing", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("tracer shutdown failed", slog.Any("error", err))
		}
	}()

	// Load worker configuration (fail-open strategy)
	workerMetrics := workerPkg.NewWorkerMetrics()
	workerConfig, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker configuration loaded",
		slog.String("cron_schedule", workerConfig.CronSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Duration("poll_interval", workerConfig.PollInterval),
		slog.Int("batch_size", workerConfig.BatchSize),
		slog.Duration("crawl_timeout", workerConfig.CrawlTimeout),
		slog.Int("health_port", workerConfig.HealthPort))

	notifyService := setupNotifyService(logger)

	startMetricsServer(ctx, logger, notifyService)

	healthServer := workerPkg.NewHealthServer(fmt.Sprintf(":%d", workerConfig.HealthPort), logger)
	healthServer.SetChannelStatusFunc(func() []workerPkg.ChannelStatus {
		statuses := notifyService.GetChannelHealth()
		channels := make([]workerPkg.ChannelStatus, 0, len(statuses))
		for _, s := range statuses {
			channels = append(channels, workerPkg.ChannelStatus{
				Name:               s.Name,
				Enabled:            s.Enabled,
				CircuitBreakerOpen: s.CircuitBreakerOpen,
			})
		}
		return channels
	})
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	// Repositories
	articleRepo := pgRepo.NewArticleRepo(database)
	sourceRepo := pgRepo.NewSourceRepo(database)
	jobRepo := pgRepo.NewJobRepo(database)
	settingsRepo := pgRepo.NewSettingsRepo(database)

	// Pipeline stages
	pageFetcher := setupPageFetcher(logger)
	completer := setupCompleter(logger)

	pipelineService := pipeline.NewService(
		articleRepo,
		sourceRepo,
		pageFetcher,
		pipeline.NewClassifier(completer),
		pipeline.NewExtractor(),
		pipeline.NewNormalizer(completer),
		notifyService,
	)

	// Job queue, feeding sources through the pipeline with a crawl deadline
	queueService, err := queue.NewService(
		jobRepo,
		sourceRepo,
		settingsRepo,
		&deadlinePipeline{inner: pipelineService, timeout: workerConfig.CrawlTimeout},
		workerConfig.QueueConfig(),
	)
	if err != nil {
		logger.Error("failed to create queue service", slog.Any("error", err))
		os.Exit(1)
	}
	queueService.Start(ctx)

	// Scheduler tick
	schedulerService, err := scheduler.NewService(settingsRepo, sourceRepo, queueService, workerConfig.SchedulerConfig())
	if err != nil {
		logger.Error("failed to create scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	schedulerService.SetRecorder(workerMetrics)
	if err := schedulerService.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", slog.Any("error", err))
		os.Exit(1)
	}

	go runCleanupLoop(ctx, logger, queueService)

	healthServer.SetReady(true)
	logger.Info("worker started")

	<-ctx.Done()
	logger.Info("shutdown signal received")

	healthServer.SetReady(false)
	schedulerService.Stop()
	queueService.Stop()
	logger.Info("worker stopped")
}

// deadlinePipeline bounds every feed run with the configured crawl timeout.
type deadlinePipeline struct {
	inner   *pipeline.Service
	timeout time.Duration
}

func (p *deadlinePipeline) ProcessSingleFeed(ctx context.Context, source *entity.Source, settings entity.JobSettings) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.inner.ProcessSingleFeed(ctx, source, settings)
}

// runCleanupLoop deletes finished jobs past their retention once a day.
func runCleanupLoop(ctx context.Context, logger *slog.Logger, queueService *queue.Service) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := queueService.CleanupOldJobs(ctx)
			if err != nil {
				logger.Error("job cleanup failed", slog.Any("error", err))
				continue
			}
			logger.Info("job cleanup completed", slog.Int64("deleted", deleted))
		}
	}
}

// setupNotifyService builds the notification service from the configured
// webhook channels. With no channel enabled it still returns a working
// service that reports every notification as undelivered.
func setupNotifyService(logger *slog.Logger) notify.Service {
	var channels []notify.Channel

	discordConfig := loadDiscordConfig(logger)
	if discordConfig.Enabled {
		channels = append(channels, notify.NewDiscordChannel(discordConfig))
		logger.Info("Discord channel initialized")
	} else {
		logger.Info("Discord channel disabled")
	}

	slackConfig := loadSlackConfig(logger)
	if slackConfig.Enabled {
		channels = append(channels, notify.NewSlackChannel(slackConfig))
		logger.Info("Slack channel initialized")
	} else {
		logger.Info("Slack channel disabled")
	}

	service := notify.NewService(channels)
	logger.Info("notification service initialized", slog.Int("channels", len(channels)))
	return service
}

// setupPageFetcher builds the HTTP page fetcher from environment config,
// falling back to defaults when the config is invalid.
func setupPageFetcher(logger *slog.Logger) *fetcher.PageFetcher {
	cfg, err := fetcher.LoadConfigFromEnv()
	if err != nil {
		logger.Warn("invalid content fetch configuration, using defaults", slog.Any("error", err))
		cfg = fetcher.DefaultConfig()
	}
	logger.Info("page fetcher initialized",
		slog.Duration("timeout", cfg.Timeout),
		slog.Int64("max_body_bytes", cfg.MaxBodySize))
	return fetcher.NewPageFetcher(cfg)
}

// setupCompleter creates the LLM completion client based on LLM_PROVIDER
// ("claude" or "openai", default "claude").
func setupCompleter(logger *slog.Logger) llm.Completer {
	provider := os.Getenv("LLM_PROVIDER")
	if provider == "" {
		provider = "claude"
	}

	cfg, err := llm.LoadConfigFromEnv()
	if err != nil {
		logger.Error("invalid LLM configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid LLM configuration", slog.Any("error", err))
		os.Exit(1)
	}

	switch provider {
	case "claude":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			logger.Error("ANTHROPIC_API_KEY is required when LLM_PROVIDER=claude")
			os.Exit(1)
		}
		logger.Info("using Claude for classification and normalization")
		return llm.NewClaude(apiKey, cfg)
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			logger.Error("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
			os.Exit(1)
		}
		logger.Info("using OpenAI for classification and normalization")
		return llm.NewOpenAI(apiKey, cfg)
	default:
		logger.Error("invalid LLM_PROVIDER",
			slog.String("provider", provider),
			slog.String("expected", "claude or openai"))
		os.Exit(1)
		return nil
	}
}

// loadDiscordConfig loads Discord webhook configuration from DISCORD_ENABLED
// and DISCORD_WEBHOOK_URL. A malformed webhook URL disables the channel
// instead of failing startup.
func loadDiscordConfig(logger *slog.Logger) notifier.DiscordConfig {
	enabled := os.Getenv("DISCORD_ENABLED") == "true"
	webhookURL := os.Getenv("DISCORD_WEBHOOK_URL")

	if !enabled {
		return notifier.DiscordConfig{Enabled: false}
	}

	if webhookURL == "" {
		logger.Warn("Discord webhook URL is empty, disabling notifications")
		return notifier.DiscordConfig{Enabled: false}
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		logger.Warn("invalid Discord webhook URL format, disabling notifications", slog.Any("error", err))
		return notifier.DiscordConfig{Enabled: false}
	}
	if u.Scheme != "https" {
		logger.Warn("Discord webhook URL must use HTTPS, disabling notifications")
		return notifier.DiscordConfig{Enabled: false}
	}
	if u.Host != "discord.com" {
		logger.Warn("invalid Discord webhook host, disabling notifications", slog.String("host", u.Host))
		return notifier.DiscordConfig{Enabled: false}
	}
	if !strings.HasPrefix(u.Path, "/api/webhooks/") {
		logger.Warn("invalid Discord webhook path, disabling notifications", slog.String("path", u.Path))
		return notifier.DiscordConfig{Enabled: false}
	}

	return notifier.DiscordConfig{
		Enabled:    true,
		WebhookURL: webhookURL,
		Timeout:    30 * time.Second,
	}
}

// loadSlackConfig loads Slack webhook configuration from SLACK_ENABLED and
// SLACK_WEBHOOK_URL with the same fail-safe validation as Discord.
func loadSlackConfig(logger *slog.Logger) notifier.SlackConfig {
	enabled := os.Getenv("SLACK_ENABLED") == "true"
	webhookURL := os.Getenv("SLACK_WEBHOOK_URL")

	if !enabled {
		return notifier.SlackConfig{Enabled: false}
	}

	if webhookURL == "" {
		logger.Warn("Slack webhook URL is empty, disabling notifications")
		return notifier.SlackConfig{Enabled: false}
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		logger.Warn("invalid Slack webhook URL format, disabling notifications", slog.Any("error", err))
		return notifier.SlackConfig{Enabled: false}
	}
	if u.Scheme != "https" {
		logger.Warn("Slack webhook URL must use HTTPS, disabling notifications")
		return notifier.SlackConfig{Enabled: false}
	}
	if u.Host != "hooks.slack.com" {
		logger.Warn("invalid Slack webhook host, disabling notifications", slog.String("host", u.Host))
		return notifier.SlackConfig{Enabled: false}
	}
	if !strings.HasPrefix(u.Path, "/services/") {
		logger.Warn("invalid Slack webhook path, disabling notifications", slog.String("path", u.Path))
		return notifier.SlackConfig{Enabled: false}
	}

	return notifier.SlackConfig{
		Enabled:    true,
		WebhookURL: webhookURL,
		Timeout:    30 * time.Second,
	}
}
