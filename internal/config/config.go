package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends
const (
	StoreBackendParse    = "parse"
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

// Market data sources
const (
	MarketSourceBinance  = "binance"
	MarketSourcePostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Store      StoreConfig      `mapstructure:"store"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Market     MarketConfig     `mapstructure:"market"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // json or console
}

// StoreConfig selects and configures the object store holding applicants,
// networks and results
type StoreConfig struct {
	Backend string      `mapstructure:"backend"` // parse, postgres or memory
	Parse   ParseConfig `mapstructure:"parse"`
}

// ParseConfig contains Parse Server REST settings
type ParseConfig struct {
	URL               string `mapstructure:"url"`
	AppID             string `mapstructure:"app_id"`
	RestKey           string `mapstructure:"rest_key"`
	RequestsPerSecond int    `mapstructure:"requests_per_second"`
	Timeout           int    `mapstructure:"timeout"` // seconds
}

// DatabaseConfig contains PostgreSQL/TimescaleDB settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings for the candle cache
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	CandleTTL int    `mapstructure:"candle_ttl"` // seconds, 0 = no expiry
}

// NATSConfig contains NATS messaging settings
type NATSConfig struct {
	URL             string `mapstructure:"url"`
	EvaluateSubject string `mapstructure:"evaluate_subject"`
	EvolveSubject   string `mapstructure:"evolve_subject"`
	NetworksSubject string `mapstructure:"networks_subject"`
	QueueGroup      string `mapstructure:"queue_group"`
	RequestTimeout  int    `mapstructure:"request_timeout"` // seconds
	EvolveTimeout   int    `mapstructure:"evolve_timeout"`  // seconds
}

// MarketConfig contains market data settings
type MarketConfig struct {
	Source     string              `mapstructure:"source"` // binance or postgres
	BucketBars int                 `mapstructure:"bucket_bars"`
	Dedupe     bool                `mapstructure:"dedupe"` // drop repeated bars where buckets overlap
	Record     bool                `mapstructure:"record"` // write downloaded candles to the candlesticks table
	Exchange   string              `mapstructure:"exchange"`
	Binance    BinanceMarketConfig `mapstructure:"binance"`
}

// BinanceMarketConfig contains Binance kline download settings
type BinanceMarketConfig struct {
	APIKey            string `mapstructure:"api_key"`
	SecretKey         string `mapstructure:"secret_key"`
	RequestsPerSecond int    `mapstructure:"requests_per_second"`
}

// PipelineConfig contains scoring pipeline settings
type PipelineConfig struct {
	ResultPageSize  int `mapstructure:"result_page_size"`
	LeaderboardSize int `mapstructure:"leaderboard_size"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("NEATRANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Parse credentials keep their historical variable names
	_ = v.BindEnv("store.parse.url", "PARSE_REMOTE_URL")
	_ = v.BindEnv("store.parse.app_id", "PARSE_APP_ID")
	_ = v.BindEnv("store.parse.rest_key", "PARSE_REST_KEY")
	_ = v.BindEnv("market.binance.api_key", "BINANCE_API_KEY")
	_ = v.BindEnv("market.binance.secret_key", "BINANCE_SECRET_KEY")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "neatrank")
	v.SetDefault("app.version", Version)
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	v.SetDefault("store.backend", StoreBackendParse)
	v.SetDefault("store.parse.requests_per_second", 20)
	v.SetDefault("store.parse.timeout", 30)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "neatrank")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.candle_ttl", 0)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.evaluate_subject", "neat.evaluate")
	v.SetDefault("nats.evolve_subject", "neat.evolve")
	v.SetDefault("nats.networks_subject", "neat.networks.added")
	v.SetDefault("nats.queue_group", "neatrank")
	v.SetDefault("nats.request_timeout", 60)
	v.SetDefault("nats.evolve_timeout", 3600)

	v.SetDefault("market.source", MarketSourceBinance)
	v.SetDefault("market.bucket_bars", 0)
	v.SetDefault("market.dedupe", false)
	v.SetDefault("market.record", false)
	v.SetDefault("market.exchange", "binance")
	v.SetDefault("market.binance.requests_per_second", 10)

	v.SetDefault("pipeline.result_page_size", 1000)
	v.SetDefault("pipeline.leaderboard_size", 10)

	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetCandleTTL returns the candle cache TTL as time.Duration
func (c *RedisConfig) GetCandleTTL() time.Duration {
	return time.Duration(c.CandleTTL) * time.Second
}

// GetTimeout returns the Parse request timeout as time.Duration
func (c *ParseConfig) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// GetRequestTimeout returns the evaluate request timeout as time.Duration
func (c *NATSConfig) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetEvolveTimeout returns the evolve request timeout as time.Duration
func (c *NATSConfig) GetEvolveTimeout() time.Duration {
	return time.Duration(c.EvolveTimeout) * time.Second
}
