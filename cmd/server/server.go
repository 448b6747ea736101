package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"skoll/internal/config"
	"skoll/internal/engine"
	"skoll/internal/metrics"
	skollnet "skoll/internal/net"
	"skoll/internal/sink"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	log.Info().Str("service", cfg.ServiceName).Msg("starting")

	// Setup the matching engine and the TCP intake server.
	eng := engine.New()
	srv := skollnet.New(cfg.ListenAddr, cfg.Port, cfg.Workers, eng)

	reporters := []sink.Reporter{srv}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("unable to connect to redis")
		}
		defer client.Close()
		log.Info().Str("addr", cfg.RedisAddr).Str("stream", cfg.EventStream).Msg("redis event sink enabled")
		reporters = append(reporters, sink.NewStreamReporter(ctx, client, cfg.EventStream))
	}
	eng.SetReporter(sink.NewMultiReporter(reporters...))
	defer eng.Close()

	// Metrics and health endpoints beside the trading port.
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"assets": eng.Assets(),
		})
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	go srv.Run(ctx)
	// Block on running the server.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown error")
	}
	log.Info().Msg("shutdown complete")
}
