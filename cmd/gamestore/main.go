// Package main запускает HTTP-сервер магазина игровых аккаунтов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/gamestore/internal/assistant"
	"github.com/mmeshcher/gamestore/internal/cache"
	"github.com/mmeshcher/gamestore/internal/config"
	"github.com/mmeshcher/gamestore/internal/handler"
	"github.com/mmeshcher/gamestore/internal/marketplace"
	"github.com/mmeshcher/gamestore/internal/metrics"
	"github.com/mmeshcher/gamestore/internal/middleware"
	"github.com/mmeshcher/gamestore/internal/model"
	"github.com/mmeshcher/gamestore/internal/notify"
	"github.com/mmeshcher/gamestore/internal/pix"
	"github.com/mmeshcher/gamestore/internal/repository"
	"github.com/mmeshcher/gamestore/internal/service"
)

const (
	faqThreshold = 1
	qrSize       = 256
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	// .env необязателен
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		sugar.Warnw("load .env", "error", err.Error())
	}

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var store service.Cache = cache.NewMemory()
	if cfg.RedisAddress != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisAddress)
		if err != nil {
			sugar.Warnw("redis unavailable, using in-process cache", "addr", cfg.RedisAddress, "error", err.Error())
		} else {
			defer redisCache.Close()
			store = redisCache
		}
	}

	var notifier service.Notifier = notify.NewLogNotifier(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	audit := service.NewAuditLog(repo, service.AuditConfig{
		Retention: map[model.AuditSeverity]time.Duration{
			model.AuditSeverityInfo:     cfg.AuditRetentionInfo,
			model.AuditSeverityWarning:  cfg.AuditRetentionWarning,
			model.AuditSeverityError:    cfg.AuditRetentionError,
			model.AuditSeverityCritical: cfg.AuditRetentionCritical,
		},
	}, logger, m)
	users := service.NewUserDirectory(repo, audit, logger)
	catalog := service.NewCatalog(repo, store, audit, users, service.CatalogConfig{CacheTTL: cfg.ProductCacheTTL}, logger)
	promotions := service.NewPromotionEngine(repo, store, audit, service.PromotionConfig{
		MinDiscount: cfg.DiscountMin,
		MaxDiscount: cfg.DiscountMax,
		CacheTTL:    cfg.PromotionCacheTTL,
	}, logger)
	loyalty := service.NewLoyaltyLedger(repo, audit, m, service.LoyaltyConfig{
		ExpirationDays: cfg.LoyaltyExpirationDays,
		ConversionRate: decimal.NewFromFloat(cfg.LoyaltyConversionRate),
	}, logger)
	payments := service.NewPaymentLifecycle(service.PaymentDeps{
		Payments:   repo,
		Catalog:    catalog,
		Promotions: promotions,
		Loyalty:    loyalty,
		Users:      users,
		Audit:      audit,
		Notifier:   notifier,
		Renderer:   pix.NewQRRenderer(qrSize),
		Metrics:    m,
		Logger:     logger,
	}, service.PaymentConfig{
		TTL: cfg.PaymentTTL,
		Merchant: pix.Merchant{
			Key:  cfg.PixKey,
			Name: cfg.PixMerchantName,
			City: cfg.PixMerchantCity,
		},
	})
	advisor := service.NewAdvisor(catalog, users, assistant.NewFAQ(assistant.DefaultEntries(), faqThreshold, assistant.DefaultFallback))

	sweeper := service.NewSweeper(payments, loyalty, audit, cfg.SweepInterval, logger)

	var source service.ListingSource
	if cfg.MarketplaceAddress != "" {
		source = marketplace.NewClient(cfg.MarketplaceAddress)
	}
	marketSync := service.NewMarketplaceSync(source, catalog, m, cfg.SyncInterval, logger)

	if cfg.AuthSecret == "" {
		sugar.Warn("AUTH_SECRET is empty, tokens issued by the bot will be rejected")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret, cfg.AdminIDs)

	h := handler.NewHandler(handler.Services{
		Payments:   payments,
		Catalog:    catalog,
		Promotions: promotions,
		Loyalty:    loyalty,
		Users:      users,
		Advisor:    advisor,
		Audit:      audit,
	}, logger, authMiddleware, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновые задачи: истечение платежей и баллов, очистка аудита, импорт с маркетплейса
	g.Go(func() error {
		sweeper.Start(ctx)
		marketSync.Start(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting gamestore server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
