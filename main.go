package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"receipt-tracker/config"
	"receipt-tracker/logging"
	"receipt-tracker/notification"
	"receipt-tracker/stats"
	"receipt-tracker/storage"
	"receipt-tracker/tracker"

	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "config.yaml", "YAML configuration file")
	flag.Parse()

	// Load configuration
	cfg := config.MustLoadConfig(*configPath)

	if err := logging.InitLogger(cfg.Logger, cfg.IsProduction()); err != nil {
		log.Fatal().Err(err).Msg("failed to init logger")
	}

	deps, err := buildDeps(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize dependencies")
	}

	server, err := NewServer(cfg, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server exited properly")
}

func buildDeps(cfg *config.Config) (Deps, error) {
	var deps Deps

	store, err := storage.Open(cfg.Storage, cfg.Logger.Level)
	if err != nil {
		return deps, err
	}
	deps.Store = store

	// Realtime counters are optional; the tracker works without them
	if cfg.Redis.Addr != "" {
		counter, err := stats.NewCounter(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("realtime stats disabled")
		} else {
			deps.Counter = counter
		}
	}

	if cfg.Notify.Enabled {
		sender, err := notification.NewSender(cfg)
		if err != nil {
			store.Close()
			return deps, err
		}
		deps.Notifier = sender
	}

	if cfg.Pixel.Path != "" {
		pixel, err := tracker.LoadPixel(cfg.Pixel.Path)
		if err != nil {
			store.Close()
			return deps, err
		}
		deps.Pixel = pixel
	}

	return deps, nil
}
