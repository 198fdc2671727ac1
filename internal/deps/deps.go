// Package deps builds the collaborators of a pipeline run from configuration
package deps

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/neatrank/internal/config"
	"github.com/ajitpratap0/neatrank/internal/db"
	"github.com/ajitpratap0/neatrank/internal/evolution"
	"github.com/ajitpratap0/neatrank/internal/market"
	"github.com/ajitpratap0/neatrank/internal/neat"
	"github.com/ajitpratap0/neatrank/internal/pipeline"
	"github.com/ajitpratap0/neatrank/internal/store"
)

// Deps holds the wired collaborators. Close releases them.
type Deps struct {
	Config    *config.Config
	DB        *db.DB // nil unless a component uses Postgres
	Redis     *redis.Client
	Store     store.Store
	Repo      *neat.Repository
	Provider  market.Provider
	Evolution *evolution.NATSClient
	Runner    *pipeline.Runner
}

// New connects every collaborator the configuration asks for. On error
// anything already opened is closed.
func New(ctx context.Context, cfg *config.Config) (_ *Deps, err error) {
	d := &Deps{Config: cfg}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	if cfg.NeedsDatabase() {
		d.DB, err = db.New(ctx, cfg.Database.GetDSN(), cfg.Database.PoolSize)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
	}

	if cfg.Redis.Enabled {
		d.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			// The candle cache is optional; run without it
			log.Warn().Err(err).Str("addr", cfg.Redis.GetRedisAddr()).Msg("Redis unavailable, candle cache disabled")
			_ = d.Redis.Close()
			d.Redis = nil
		}
	}

	d.Store, err = NewStore(cfg, d.DB)
	if err != nil {
		return nil, err
	}
	d.Repo = neat.NewRepository(d.Store, cfg.Pipeline.ResultPageSize)

	d.Provider, err = NewProvider(cfg, d.DB, d.Redis)
	if err != nil {
		return nil, err
	}

	d.Evolution, err = evolution.NewNATSClient(NATSConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to evolution service: %w", err)
	}

	d.Runner = pipeline.NewRunner(d.Repo, d.Provider, d.Evolution, PipelineConfig(cfg))

	log.Info().
		Str("store", cfg.Store.Backend).
		Str("market", cfg.Market.Source).
		Bool("record", cfg.Market.Record).
		Bool("redis", d.Redis != nil).
		Str("nats", cfg.NATS.URL).
		Msg("Dependencies initialized")

	return d, nil
}

// NewStore creates the configured object store. database may be nil for
// the parse and memory backends.
func NewStore(cfg *config.Config, database *db.DB) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendParse:
		s, err := store.NewParseStore(store.ParseConfig{
			URL:               cfg.Store.Parse.URL,
			AppID:             cfg.Store.Parse.AppID,
			RestKey:           cfg.Store.Parse.RestKey,
			RequestsPerSecond: cfg.Store.Parse.RequestsPerSecond,
			Timeout:           cfg.Store.Parse.GetTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create parse store: %w", err)
		}
		return s, nil
	case config.StoreBackendPostgres:
		if database == nil {
			return nil, fmt.Errorf("postgres store requires a database connection")
		}
		return store.NewPostgresStore(database.Pool()), nil
	case config.StoreBackendMemory:
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// NewProvider creates the market data provider chain: source, optional
// recording into Postgres, optional Redis cache in front
func NewProvider(cfg *config.Config, database *db.DB, client *redis.Client) (market.Provider, error) {
	var provider market.Provider

	switch cfg.Market.Source {
	case config.MarketSourceBinance:
		provider = market.NewBinanceProvider(market.BinanceConfig{
			APIKey:            cfg.Market.Binance.APIKey,
			SecretKey:         cfg.Market.Binance.SecretKey,
			RequestsPerSecond: cfg.Market.Binance.RequestsPerSecond,
		})
	case config.MarketSourcePostgres:
		if database == nil {
			return nil, fmt.Errorf("postgres market source requires a database connection")
		}
		provider = market.NewPostgresProvider(database.Pool(), cfg.Market.Exchange)
	default:
		return nil, fmt.Errorf("unknown market source %q", cfg.Market.Source)
	}

	if cfg.Market.Record {
		if database == nil {
			return nil, fmt.Errorf("recording candles requires a database connection")
		}
		provider = market.NewRecordingProvider(provider, market.NewPostgresProvider(database.Pool(), cfg.Market.Exchange))
	}

	return market.NewRedisCachedProvider(provider, client, cfg.Redis.GetCandleTTL()), nil
}

// NATSConfig maps the nats section onto the evolution client settings
func NATSConfig(cfg *config.Config) evolution.NATSConfig {
	return evolution.NATSConfig{
		URL:             cfg.NATS.URL,
		Name:            cfg.App.Name,
		EvaluateSubject: cfg.NATS.EvaluateSubject,
		EvolveSubject:   cfg.NATS.EvolveSubject,
		RequestTimeout:  cfg.NATS.GetRequestTimeout(),
		EvolveTimeout:   cfg.NATS.GetEvolveTimeout(),
	}
}

// PipelineConfig maps the pipeline and market sections onto runner settings
func PipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		ResultPageSize:  cfg.Pipeline.ResultPageSize,
		LeaderboardSize: cfg.Pipeline.LeaderboardSize,
		BucketBars:      cfg.Market.BucketBars,
		Dedupe:          cfg.Market.Dedupe,
	}
}

// Close releases every opened collaborator
func (d *Deps) Close() {
	if d.Evolution != nil {
		if err := d.Evolution.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close evolution client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
