package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/roomview/internal/adapters/http"
	"github.com/dkeye/roomview/internal/auth"
	"github.com/dkeye/roomview/internal/config"
	"github.com/dkeye/roomview/internal/hub"
)

// kicks a member after this many dropped frames
const slowMemberStrikes = 16

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	issuer := auth.NewIssuer(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.TokenTTL)
	if !issuer.Configured() {
		log.Warn().Msg("LiveKit API key or secret not configured, token requests will fail")
	}

	var bus hub.Bus
	if cfg.Redis.Addr != "" {
		client, err := hub.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis")
		}
		rb := hub.NewRedisBus(client)
		defer rb.Close()
		bus = rb
	}

	h := hub.New(hub.NewStrikePolicy(slowMemberStrikes), bus)
	go func() {
		if err := h.RunBus(ctx); err != nil {
			log.Error().Err(err).Msg("bus stopped")
		}
	}()

	r := router.SetupRouter(ctx, cfg, issuer, h)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("roomview server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	// Shutdown does not touch hijacked websocket connections
	for _, info := range h.Rooms.List() {
		h.EvictRoom(info.Name)
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
