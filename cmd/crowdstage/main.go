package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"crowdstage/internal/config"
	"crowdstage/internal/logging"
	"crowdstage/internal/notify"
	"crowdstage/internal/session"
	"crowdstage/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}))

	ctx := context.Background()

	db, err := openDatabase(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Connected to ledger database")

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = session.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if rdb == nil {
			log.Warn().Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, keeping sessions in memory")
		} else {
			defer rdb.Close()
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Sessions stored in Redis")
		}
	}

	var publisher notify.Publisher = notify.Nop{}
	if cfg.AMQP.URL != "" {
		amqp, err := notify.NewAMQPPublisher(cfg.AMQP.URL)
		if err != nil {
			log.Warn().Err(err).Msg("Broker unreachable, notifications disabled")
		} else {
			defer amqp.Close()
			publisher = amqp
			log.Info().Msg("Publishing notifications to AMQP broker")
		}
	}

	svc, err := newServices(cfg, store.New(db), rdb, publisher)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build services")
	}

	changes, unsubscribe := svc.sessions.Subscribe()
	defer unsubscribe()
	go logSessionChanges(changes)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           svc.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("crowdstage API starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down crowdstage API...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := svc.donations.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Donation trackers did not stop in time")
	}

	log.Info().Msg("crowdstage API exited")
}
