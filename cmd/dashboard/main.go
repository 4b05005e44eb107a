package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cloudscale/internal/config"
	"cloudscale/internal/logger"
	"cloudscale/internal/monitor"
)

func main() {
	configPath := flag.String("config", os.Getenv("CLOUDSCALE_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Log.Level)
	log := logger.WithComponent("main")

	m, err := monitor.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build monitor")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := m.Run(ctx); err != nil {
		log.Error().Err(err).Msg("monitor exited")
		stop()
		os.Exit(1)
	}
	log.Info().Msg("exited")
}
