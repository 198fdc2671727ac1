// Worker scores every network announced on NATS, one at a time, and serves
// Prometheus metrics alongside
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/neatrank/internal/config"
	"github.com/ajitpratap0/neatrank/internal/deps"
	"github.com/ajitpratap0/neatrank/internal/metrics"
	"github.com/ajitpratap0/neatrank/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	log.Info().
		Str("version", config.GetVersion()).
		Str("environment", cfg.App.Environment).
		Msg("Starting neatrank worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("Worker stopped with error")
		stop()
		os.Exit(1)
	}

	log.Info().Msg("Worker shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	d, err := deps.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Monitoring.EnableMetrics {
		server := metrics.NewServer(cfg.Monitoring.PrometheusPort, config.NewLogger("worker"))
		g.Go(func() error {
			return server.Run(ctx)
		})
	}

	if d.DB != nil {
		pool := d.DB.Pool()
		updater := metrics.NewUpdater(pool, pool.Stat, 30*time.Second)
		g.Go(func() error {
			return updater.Run(ctx)
		})
	}

	ids := make(chan string, 16)
	sub, err := d.Evolution.SubscribeNetworks(cfg.NATS.NetworksSubject, cfg.NATS.QueueGroup, func(networkID string) {
		select {
		case ids <- networkID:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Msg("Failed to unsubscribe")
		}
	}()

	g.Go(func() error {
		return consume(ctx, ids, d.Runner)
	})

	log.Info().
		Str("subject", cfg.NATS.NetworksSubject).
		Str("queue", cfg.NATS.QueueGroup).
		Msg("Worker ready")

	return g.Wait()
}

// NetworkScorer runs the pipeline for one network
type NetworkScorer interface {
	OnAddNetwork(ctx context.Context, networkID string) (*pipeline.RunSummary, error)
}

// consume scores announced networks sequentially until ctx is done. A
// failed run is logged and the worker moves on to the next announcement.
func consume(ctx context.Context, ids <-chan string, scorer NetworkScorer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case id := <-ids:
			summary, err := scorer.OnAddNetwork(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Error().Err(err).Str("network_id", id).Msg("Network run failed")
				continue
			}
			log.Debug().
				Str("network_id", id).
				Int("improved", len(summary.Improvements)).
				Msg("Network run finished")
		}
	}
}
