// Command wsbridged runs the WebSocket bridge server with an echo protocol.
// It is configured entirely through WSBRIDGE_* environment variables; see the
// config package for the full list.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/wsbridge/auth"
	"github.com/cyberinferno/wsbridge/bridge"
	"github.com/cyberinferno/wsbridge/config"
	"github.com/cyberinferno/wsbridge/logger"
	"github.com/cyberinferno/wsbridge/registry"
	"github.com/cyberinferno/wsbridge/server"
	"github.com/cyberinferno/wsbridge/stat"
)

const serviceName = "wsbridged"

// shutdownTimeout bounds the graceful stop after a termination signal.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Close()
	}()

	reg, cleanup, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	srv, err := server.New(server.Options{
		Logger:           log,
		Name:             serviceName,
		Addr:             cfg.Addr,
		Path:             cfg.Path,
		Factory:          echoFactory,
		Params:           protocolParams(cfg),
		Authenticator:    newAuthenticator(cfg, log),
		AuthTimeout:      cfg.AuthTimeout,
		Registry:         reg,
		Statistics:       stat.New(0),
		StatsLogInterval: cfg.StatsLogInterval,
		UseCompression:   cfg.UseCompression,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info("shutting down")
		return srv.Stop(shutdownCtx)
	})

	return g.Wait()
}

func newLogger(cfg config.Config) (logger.Logger, error) {
	level := logger.ParseLevel(cfg.LogLevel)
	if cfg.LogDir != "" {
		return logger.NewZerologFileLogger(serviceName, cfg.LogDir, level)
	}

	l := zerolog.New(os.Stdout).With().Timestamp().Logger()
	return logger.NewZerologLogger(l, serviceName, level), nil
}

// newRegistry picks the Redis registry when an address is configured and the
// in-memory one otherwise. The returned cleanup closes the Redis client.
func newRegistry(cfg config.Config) (registry.ClientRegistry, func(), error) {
	if cfg.RedisAddr == "" {
		return registry.NewMemoryRegistry(), nil, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping error: %w", err)
	}

	cleanup := func() {
		_ = client.Close()
	}
	return registry.NewRedisRegistry(client, serviceName), cleanup, nil
}

// newAuthenticator picks the HTTP service authenticator when a URL is
// configured, the JWT one when only a secret is, and nil otherwise.
func newAuthenticator(cfg config.Config, log logger.Logger) auth.Authenticator {
	switch {
	case cfg.AuthServiceURL != "":
		log.Info("authentication enabled", logger.Field{Key: "mode", Value: "service"})
		return auth.NewServiceAuthenticator(cfg.AuthServiceURL, nil)
	case cfg.AuthTokenSecret != "":
		log.Info("authentication enabled", logger.Field{Key: "mode", Value: "token"})
		return auth.NewTokenAuthenticator([]byte(cfg.AuthTokenSecret))
	default:
		return nil
	}
}

func protocolParams(cfg config.Config) bridge.ProtocolParams {
	return bridge.ProtocolParams{
		FragmentTimeout:      cfg.FragmentTimeout,
		DelayBetweenMessages: cfg.DelayBetweenMessages,
		MaxMessageSize:       cfg.MaxMessageSize,
		UnregisterTimeout:    cfg.UnregisterTimeout,
		BinaryOnly:           cfg.BinaryOnly,
	}
}
