package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"elearn-settlement/internal/config"
	"elearn-settlement/internal/domain/model"
	"elearn-settlement/internal/domain/ports/adapter"
	"elearn-settlement/internal/infra/catalog"
	pg "elearn-settlement/internal/infra/db/postgres"
	"elearn-settlement/internal/infra/logging"
	"elearn-settlement/internal/infra/metrics"
	"elearn-settlement/internal/infra/notify"
	"elearn-settlement/internal/infra/payment"
	red "elearn-settlement/internal/infra/redis"
	"elearn-settlement/internal/infra/sched"
	"elearn-settlement/internal/infra/web"
	"elearn-settlement/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed secrets)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	// ---- Metrics ----
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	// ---- Redis (optional; checkout throttling only) ----
	var rateLimiter *red.RateLimiter
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer redisClient.Close()
		rateLimiter = red.NewRateLimiter(redisClient)
	} else {
		logger.Warn().Msg("redis.url not set; checkout throttling disabled")
	}

	// ---- Repositories ----
	intentRepo := pg.NewPaymentIntentRepo(pool)
	entitlementRepo := pg.NewEntitlementRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Catalog ----
	registry := catalog.NewRegistry()
	registry.Register(model.SubjectCourse, catalog.NewCourseResolver(pool))
	registry.Register(model.SubjectEvent, catalog.NewEventResolver(pool))

	// ---- Payment gateway ----
	var gateway adapter.PaymentGateway
	if cfg.Gateway.Simulated {
		gateway = payment.NewNoopGateway(cfg.Gateway.AllowedPhonePrefixes)
		logger.Warn().Msg("gateway.simulated set; charges are not real")
	} else {
		gateway = payment.NewAggregatorGateway(cfg.Gateway)
	}

	// ---- Receipt notifier ----
	var notifier adapter.ReceiptNotifier
	if cfg.SMTP.Disabled || cfg.SMTP.Host == "" {
		notifier = notify.NewLogNotifier(logger)
	} else {
		notifier = notify.NewSMTPNotifier(cfg.SMTP)
	}

	// ---- Use cases ----
	entitlementUC := usecase.NewEntitlementUseCase(entitlementRepo, logger)
	settlementUC := usecase.NewSettlementUseCase(
		intentRepo,
		entitlementRepo,
		entitlementUC,
		registry,
		gateway,
		notifier,
		txManager,
		usecase.SettlementConfig{
			DefaultCurrency:      cfg.Settlement.DefaultCurrency,
			AllowedPhonePrefixes: cfg.Gateway.AllowedPhonePrefixes,
		},
		logger,
	)
	earningsUC := usecase.NewEarningsUseCase(intentRepo)

	// ---- Reconciler ----
	reconciler := sched.NewSettlementReconciler(
		settlementUC,
		intentRepo,
		cfg.Reconciler.Interval,
		cfg.Reconciler.StaleAfter,
		cfg.Reconciler.BatchSize,
		logger,
	)
	go reconciler.Start(ctx)

	// ---- HTTP server ----
	auth := web.NewAuthManager(cfg.Server.JWTSecret)
	srv := web.NewServer(settlementUC, entitlementUC, earningsUC, auth, rateLimiter, cfg.Settlement, logger)
	go func() {
		if err := srv.Start(cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
