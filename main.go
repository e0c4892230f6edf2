package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"challenge-ladder/config"
	"challenge-ladder/handlers"
	"challenge-ladder/models"
	"challenge-ladder/services"
	"challenge-ladder/utils"
	"challenge-ladder/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("❌ invalid configuration: ", err)
	}

	zl, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("❌ invalid LOG_LEVEL: ", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		zl.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := models.Migrate(db); err != nil {
		zl.Fatal("failed to migrate database", zap.Error(err))
	}

	clock := clockwork.NewRealClock()

	tasks, err := services.NewExpirationScheduler(db, clock, zl.Named("tasks"))
	if err != nil {
		zl.Fatal("failed to create scheduler", zap.Error(err))
	}

	var notifier services.Notifier = &services.LogNotifier{Log: zl.Named("notify")}
	if len(cfg.KafkaBrokers) > 0 {
		kn := services.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaNotifyTopic, clock)
		defer func() { _ = kn.Close() }()
		notifier = kn
		zl.Info("✅ notifications go to Kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaNotifyTopic))
	}

	var cache services.RankCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			zl.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			zl.Fatal("failed to reach redis", zap.Error(err))
		}
		cache = services.NewRedisRankCache(rdb, cfg.RankCacheTTL)
		zl.Info("✅ rank cache enabled", zap.Duration("ttl", cfg.RankCacheTTL))
	}

	var sink services.ReportSink = &services.LogSink{Log: zl.Named("export")}
	if cfg.R2.Enabled() {
		store, err := utils.NewR2Store(ctx, utils.R2Options{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			SecretAccessKey: cfg.R2.SecretAccessKey,
			Bucket:          cfg.R2.Bucket,
			PublicBaseURL:   cfg.R2.PublicBaseURL,
		})
		if err != nil {
			zl.Fatal("failed to initialize R2 client", zap.Error(err))
		}
		sink = &services.ObjectSink{Store: store, Prefix: "ladder-exports"}
		zl.Info("✅ exports go to R2", zap.String("bucket", cfg.R2.Bucket))
	}

	ladder := services.NewLadder(db, clock, zl, tasks, notifier, cache, services.KeywordClassifier{}, services.Rules{
		ChallengeTTL:     cfg.ChallengeTTL,
		ScheduleTTL:      cfg.ScheduleTTL,
		MaxRankGap:       cfg.MaxRankGap,
		MonthlySendCap:   cfg.MonthlySendCap,
		MonthlyAcceptCap: cfg.MonthlyAcceptCap,
		Location:         cfg.Location(),
	})
	exporter := services.NewExportService(db, clock, ladder.Ranking, sink, zl.Named("export"))

	tasks.Start()
	defer func() { _ = tasks.Shutdown() }()
	workers.NewTaskReconcileWorker(tasks, clock, cfg.ReconcileInterval, zl.Named("reconciler")).Start(ctx)
	go workers.PollExports(ctx, exporter, clock, cfg.ExportInterval, zl.Named("export"))

	app := fiber.New(fiber.Config{
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	handlers.SetupHealthRoutes(app, db)
	handlers.SetupEventRoutes(app, ladder.Router, cfg.WebhookToken, zl.Named("events"))
	handlers.SetupRankingRoutes(app, ladder.Ranking, zl.Named("ranking"))
	handlers.SetupAdminRoutes(app, handlers.AdminServices{
		Players: ladder.Players,
		Matches: ladder.Matches,
		Results: ladder.Results,
		Audit:   ladder.Audit,
		Export:  exporter,
	}, cfg.AdminToken, zl.Named("admin"))

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			zl.Error("server error", zap.Error(err))
			stop()
		}
	}()

	zl.Info("✅ server running", zap.String("port", cfg.Port))
	zl.Info("✅ expiration scheduler and reconciler running", zap.Duration("reconcile_every", cfg.ReconcileInterval))
	zl.Info("✅ webhook and admin routes are token-gated")

	<-ctx.Done()
	zl.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zl.Error("server shutdown", zap.Error(err))
	}
}
