package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vallenar/internal/config"
	"vallenar/internal/infra"
	"vallenar/internal/router"
	"vallenar/internal/service"
	"vallenar/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Structured logger: dev: pretty, prod: JSON
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	svcs := router.NewServices(cfg, db, rdb)

	// ── Background workers ───────────────────────────────────────────────────
	cbCfg := infra.DefaultCBConfig("outbox-relay")
	cbCfg.OnStateChange = func(name string, from, to infra.CBState) {
		infra.BreakerState.WithLabelValues(name).Set(float64(to))
		log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker transition")
	}
	relayCB := infra.NewCircuitBreaker(cbCfg)

	worker.NewOutboxRelay(worker.RelayConfig{
		Tx:        svcs.Tx,
		Outbox:    svcs.Outbox,
		Publisher: worker.NewRedisPublisher(rdb, worker.QueueEvents),
		CB:        relayCB,
		DLQ:       worker.NewRedisDLQ(rdb, worker.QueueEvents),
		Interval:  cfg.OutboxPollInterval(),
		BatchSize: cfg.OutboxBatchSize,
	}).Start(ctx)

	worker.StartExpirySweep(ctx, svcs.Quotes, cfg.QuoteExpirySweepInterval())

	worker.StartConsumerPool(ctx, rdb, cfg.WorkerPoolSize, map[string]worker.Handler{
		service.EventTerminalOpened:      worker.LogHandler,
		service.EventTerminalClosed:      worker.LogHandler,
		service.EventTerminalForceClosed: worker.LogHandler,
		service.EventRemittanceCreated:   worker.LogHandler,
		service.EventQuoteConverted:      worker.LogHandler,
	})

	// ── HTTP ─────────────────────────────────────────────────────────────────
	r := router.New(cfg, db, rdb, svcs, relayCB)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("vallenar backend listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	_ = rdb.Close()
	log.Info().Msg("server exited")
}
