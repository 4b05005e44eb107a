// Command metricsctl reads from and writes to the remote monitoring API.
//
//	metricsctl [flags] latest
//	metricsctl [flags] history
//	metricsctl [flags] push        sample this host once and post it
//	metricsctl [flags] push -every 5s
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloudscale/internal/client"
	"cloudscale/internal/collector"
	"cloudscale/internal/config"
	"cloudscale/internal/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("CLOUDSCALE_CONFIG"), "path to YAML config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] latest|history|push [-every d]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	// stdout carries command output
	logger.InitWithWriter(cfg.Log.Level, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.NewMetricsClient(cfg.Source.API.BaseURL, cfg.Source.API.Token, cfg.Source.API.Timeout)

	if err := run(ctx, cfg, c, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "metricsctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, c *client.MetricsClient, args []string) error {
	if len(args) == 0 {
		flag.Usage()
		return errors.New("missing command")
	}

	switch args[0] {
	case "latest":
		m, err := c.GetLatest(ctx)
		if err != nil {
			return err
		}
		return printJSON(m)

	case "history":
		list, err := c.GetMetrics(ctx, cfg.Monitor.ResourceID)
		if err != nil {
			return err
		}
		return printJSON(list)

	case "push":
		fs := flag.NewFlagSet("push", flag.ExitOnError)
		every := fs.Duration("every", 0, "keep pushing at this interval")
		fs.Parse(args[1:])
		return push(ctx, cfg, c, *every)

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// push samples the local host and posts it, once or every interval until ctx ends
func push(ctx context.Context, cfg *config.Config, c *client.MetricsClient, every time.Duration) error {
	log := logger.WithComponent("metricsctl")
	host := collector.NewHost(cfg.Monitor.ResourceID, cfg.Source.Host.DiskPath, cfg.Source.Host.CPUSampleFor)
	defer host.Close()

	for {
		m, err := host.Latest(ctx)
		if err != nil {
			return fmt.Errorf("sample host: %w", err)
		}

		stored, err := c.CreateMetrics(ctx, m)
		if err != nil {
			if every == 0 {
				return err
			}
			log.Warn().Err(err).Msg("error pushing metrics")
		} else {
			log.Info().
				Int64("id", stored.ID).
				Float64("cpu_usage", stored.CPUUsage).
				Float64("memory_usage", stored.MemoryUsage).
				Float64("disk_usage", stored.DiskUsage).
				Msg("metrics pushed")
		}

		if every == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(every):
		}
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
