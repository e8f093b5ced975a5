package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gamecredit-platform/internal/audit"
	"gamecredit-platform/internal/auth"
	"gamecredit-platform/internal/config"
	"gamecredit-platform/internal/httpapi"
	"gamecredit-platform/internal/ledger"
	"gamecredit-platform/internal/orders"
	"gamecredit-platform/internal/referral"
	"gamecredit-platform/internal/settings"
	"gamecredit-platform/internal/store/postgres"
	"gamecredit-platform/internal/webhook"
	"gamecredit-platform/pkg/logger"
	"gamecredit-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	store := postgres.New(db)

	seed := settings.Defaults()
	if cfg.Settings.SeedFile != "" {
		if seed, err = settings.LoadFile(cfg.Settings.SeedFile); err != nil {
			log.Error("settings seed load failed", "path", cfg.Settings.SeedFile, "err", err)
			os.Exit(1)
		}
	}
	shared := settings.RedisSource{
		Client: rdb,
		Inner:  settings.StoreSource{Store: store, Fallback: seed},
		TTL:    cfg.Settings.CacheTTL,
	}
	settingsCache := settings.NewCache(shared, cfg.Settings.CacheTTL)

	dispatcher := webhook.NewDispatcher(store, webhook.DispatcherConfig{
		Workers:   cfg.Webhook.Workers,
		QueueSize: cfg.Webhook.QueueSize,
		Defaults: webhook.Policy{
			MaxRetries:       cfg.Webhook.MaxRetries,
			BaseDelay:        cfg.Webhook.BaseDelay,
			Timeout:          cfg.Webhook.Timeout,
			FailureThreshold: cfg.Webhook.FailureThreshold,
		},
		Settings: settingsCache,
		Limiter: webhook.RedisLimiter{
			Client: rdb,
			Limit:  cfg.Webhook.InflightPerWebhook,
			TTL:    2 * cfg.Webhook.Timeout,
		},
		Client: &http.Client{},
		Logger: log,
	})
	if err := dispatcher.Start(rootCtx); err != nil {
		log.Error("webhook dispatcher start failed", "err", err)
		os.Exit(1)
	}

	auditSvc := audit.NewService(store)
	webhooks := webhook.NewService(store, dispatcher)
	referrals := referral.NewService(store, settingsCache)

	h := httpapi.Handlers{
		Ledger:    ledger.NewService(store),
		Referrals: referrals,
		Orders:    orders.NewService(store, referrals, webhooks, orders.AuditAdapter{Audit: auditSvc}),
		Webhooks:  webhooks,
		Settings:  settings.NewService(store, settingsCache, shared),
		Audit:     auditSvc,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(auth.CaptureClientIP())
	r.Use(httpapi.Metrics())

	registerRoutes(r, h, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	// Pending deliveries stay in Postgres and are requeued on the next start.
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Error("webhook dispatcher stop failed", "err", err)
	}
}
