package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/improv-battle/backend/internal/config"
	"github.com/zhouzirui/improv-battle/backend/internal/handler"
	"github.com/zhouzirui/improv-battle/backend/internal/logging"
	"github.com/zhouzirui/improv-battle/backend/internal/service/credential"
	"github.com/zhouzirui/improv-battle/backend/internal/service/relay"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure logging")
	}
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file loaded, continuing with system environment variables only")
	}

	issuer := credential.NewIssuer(cfg.LiveKit.IssuerConfig())
	if cfg.LiveKit.Enabled() {
		logger.Info().Str("livekit_url", cfg.LiveKit.URL).Dur("token_ttl", cfg.LiveKit.TokenTTL).Msg("credential issuer ready")
	} else {
		logger.Warn().Msg("LiveKit 凭证未配置，connection-details 将返回 500")
	}

	var bus *relay.WatermillBus
	if cfg.Relay.UsesRedis() {
		bus, err = relay.NewRedisBus(ctx, cfg.Relay.RedisConfig(), logging.NewWatermill(logger))
		if err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.Relay.RedisAddr).Msg("failed to connect relay to redis")
		}
		logger.Info().Str("addr", cfg.Relay.RedisAddr).Msg("room relay using redis streams")
	} else {
		bus = relay.NewMemoryBus(logging.NewWatermill(logger))
		logger.Info().Msg("room relay using in-process bus")
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Warn().Err(err).Msg("relay bus close failed")
		}
	}()

	router := handler.NewRouter(issuer, bus, handler.Options{
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Improv Battle backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Error().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
