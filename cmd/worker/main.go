package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"clinic-triage/internal/config"
	"clinic-triage/internal/logging"
	"clinic-triage/internal/store"
	"clinic-triage/internal/telemetry"
	"clinic-triage/internal/triage"
	"clinic-triage/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.Env, cfg.LogLevel, "triage-monitor")
	if err := cfg.RequireSharedStore(); err != nil {
		log.Fatal().Err(err).Msg("monitor needs a shared store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("open store")
	}
	defer st.Close()

	// The monitor only reads; its controller never transitions or notifies.
	lifecycle := triage.NewController(st, nil, nil, log)
	engine := triage.NewEngine(triage.NewCatalog(cfg.Budgets), st, lifecycle, log, triage.EngineOptions{})
	monitor := worker.NewMonitor(engine, cfg.MonitorInterval, log)

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           telemetry.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		log.Info().Dur("interval", cfg.MonitorInterval).Msg("monitor started")
		err := monitor.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("monitor stopped")
	}
}
