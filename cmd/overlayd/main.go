package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"slateboard/overlay/internal/config"
	"slateboard/overlay/internal/gateway"
	"slateboard/overlay/internal/relay"
	"slateboard/overlay/internal/util"
)

func main() {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()
	cfg := config.Load()

	factory, err := channelFactory(cfg)
	if err != nil {
		log.Fatalf("relay setup failed: %v", err)
	}
	if factory == nil {
		log.Printf("no relay transport configured, sessions will run local-only")
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           gateway.New(cfg, factory).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Slateboard overlay gateway listening on %s (scope %q, transport %s)", cfg.Addr, cfg.Scope, cfg.Transport)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func channelFactory(cfg config.Config) (gateway.ChannelFactory, error) {
	switch cfg.Transport {
	case config.TransportRedis:
		return func() (relay.Channel, error) {
			return relay.NewRedisChannel(cfg.RedisURL, cfg.Scope)
		}, nil
	case config.TransportMQTT:
		return func() (relay.Channel, error) {
			return relay.NewMQTTChannel(cfg.MQTTBroker, util.NewID("slateboard"), cfg.Scope)
		}, nil
	case config.TransportNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
