package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	api "clinic-triage/internal/api"
	"clinic-triage/internal/config"
	"clinic-triage/internal/logging"
	"clinic-triage/internal/notify"
	"clinic-triage/internal/queue"
	"clinic-triage/internal/ratelimit"
	"clinic-triage/internal/store"
	"clinic-triage/internal/triage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.Env, cfg.LogLevel, "triage-api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("open store")
	}
	defer st.Close()

	var rdb *redis.Client
	if cfg.ClaimLockEnabled || cfg.RateLimitCapacity > 0 {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
	}

	var sender notify.Sender = notify.LogSender{Log: log}
	if cfg.WhatsAppAPIURL != "" {
		sender = notify.NewWhatsApp(cfg.WhatsAppAPIURL, cfg.WhatsAppAPIKey, cfg.WhatsAppSource, cfg.NotifyTimeout)
	}
	dispatcher := notify.NewDispatcher(sender, cfg.NotifyWorkers, cfg.NotifyBuffer, cfg.NotifyTimeout, log)
	dispatcher.Start()
	defer dispatcher.Close()

	templates, err := notify.NewTemplates(notify.DefaultTemplates)
	if err != nil {
		log.Fatal().Err(err).Msg("parse templates")
	}

	lifecycle := triage.NewController(st, dispatcher, templates, log)
	lifecycle.SetMaxAttempts(cfg.ClaimMaxAttempts)

	opts := triage.EngineOptions{MaxAttempts: cfg.ClaimMaxAttempts}
	if cfg.ClaimLockEnabled {
		opts.Locker = queue.NewRedisLock(rdb, "triage:claim-lock", cfg.ClaimLockTTL, cfg.ClaimLockWait)
	}
	engine := triage.NewEngine(triage.NewCatalog(cfg.Budgets), st, lifecycle, log, opts)

	var limiter func(http.Handler) http.Handler
	if cfg.RateLimitCapacity > 0 {
		limiter = ratelimit.NewTokenBucket(rdb, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour).Middleware
	}

	server := api.New(st, engine, lifecycle, limiter, log)
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Str("store", cfg.StoreBackend).Msg("api listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("api stopped")
	}
}
