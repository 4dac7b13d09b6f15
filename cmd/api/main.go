package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/davidleathers/coaching-backoffice/internal/api/rest"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/auth"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/cache"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/config"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/database"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/events"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/provider"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/repository"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/telemetry"
	"github.com/davidleathers/coaching-backoffice/internal/metrics"
	"github.com/davidleathers/coaching-backoffice/internal/service/commission"
	"github.com/davidleathers/coaching-backoffice/internal/service/conversion"
	"github.com/davidleathers/coaching-backoffice/internal/service/disputes"
	"github.com/davidleathers/coaching-backoffice/internal/service/jobs"
	"github.com/davidleathers/coaching-backoffice/internal/service/notification"
	"github.com/davidleathers/coaching-backoffice/internal/service/onboarding"
	"github.com/davidleathers/coaching-backoffice/internal/service/payroll"
	"github.com/davidleathers/coaching-backoffice/internal/service/reconciliation"
	"github.com/davidleathers/coaching-backoffice/internal/service/schedules"
	"github.com/davidleathers/coaching-backoffice/internal/service/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.NewZapLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	slog.SetDefault(telemetry.SetupLogger(cfg.LogLevel))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.InitializeOpenTelemetry(ctx, cfg.Telemetry, cfg.Version, cfg.Environment)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	if cfg.Database.MigrateOnStart {
		if err := database.MigrateUp(cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	db, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	repos := repository.NewRepositories(db)

	redis, err := cache.NewManager(&cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer func() { _ = redis.Close() }()

	collector := metrics.New()
	go db.ReportPoolStats(ctx, collector, 15*time.Second)

	var publisher notification.Publisher
	if cfg.Notifications.Enabled {
		sp, err := events.NewStreamPublisher(redis.Client(), cfg.Notifications.Stream, cfg.Notifications.MaxLen, logger)
		if err != nil {
			return err
		}
		publisher = sp
	}
	notifier := notification.NewDispatcher(publisher, collector, cfg.Notifications.PublishTimeout, logger)

	stripe := provider.NewStripe(cfg.Stripe.SecretKey, logger)
	fees := reconciliation.NewFeeResolver(stripe, collector, logger, cfg.Stripe.FetchTimeout)
	matcher := reconciliation.NewMatcher(repos.CRM, collector, logger)
	ledger := reconciliation.NewLedger(repos.Payments, logger)

	scheduleSvc := schedules.NewService(repos.Schedules, logger)
	seeder := onboarding.NewSeeder(repos.Onboarding, logger)
	converter := conversion.NewEngine(repos.CRM, repos.CRM, repos.CRM, repos.Schedules, seeder, logger)
	commissions := commission.NewService(
		repos.Payments, repos.CRM, repos.Schedules, repos.Commission,
		ledger, fees, collector, cfg.Commission.Rates(), logger,
	)
	disputeHandler := disputes.NewHandler(repos.Payments, repos.Commission, logger)
	tracker := jobs.NewTracker(redis.Cache, cache.JobTTL, logger)
	payrollSvc := payroll.NewService(repos.Payroll, tracker, collector, logger)

	processor := webhook.NewProcessor(webhook.Dependencies{
		Fees:        fees,
		Matcher:     matcher,
		Ledger:      ledger,
		Schedules:   scheduleSvc,
		Converter:   converter,
		Commissions: commissions,
		Disputes:    disputeHandler,
		Checkout:    stripe,
		Notifier:    notifier,
	}, logger)
	webhooks := webhook.NewRouter(cfg.Stripe.WebhookSecret, processor, logger,
		webhook.WithEventMarker(redis.Cache, cfg.Stripe.EventMarkerTTL),
		webhook.WithMetrics(collector),
	)

	handler := rest.NewRouter(rest.Dependencies{
		Webhooks:    webhooks,
		Schedules:   scheduleSvc,
		Payments:    ledger,
		Commissions: commissions,
		Payroll:     payrollSvc,
		Jobs:        tracker,
		Tokens:      auth.NewJWTService(cfg.Security.JWTSecret, cfg.Security.TokenExpiry),
		Health: map[string]rest.HealthCheck{
			"database": db.Health,
			"redis":    redis.HealthCheck,
		},
		Metrics: collector,
	}, rest.Options{
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		RequestsPerSecond: float64(cfg.Security.RateLimit.RequestsPerSecond),
		Burst:             cfg.Security.RateLimit.BurstSize,
		Logger:            slog.Default(),
	})

	logger.Info("starting coaching back-office",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port))

	return rest.NewServer(cfg.Server, handler, slog.Default()).Run(ctx)
}
