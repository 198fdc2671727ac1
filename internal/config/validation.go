package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateNATS()...)
	errors = append(errors, c.validateMarket()...)
	errors = append(errors, c.validatePipeline()...)

	// Postgres settings only matter when something reads from it
	if c.NeedsDatabase() {
		errors = append(errors, c.validateDatabase()...)
	}

	if len(errors) > 0 {
		return errors
	}

	return nil
}

// NeedsDatabase reports whether any component reads or writes Postgres
func (c *Config) NeedsDatabase() bool {
	return c.Store.Backend == StoreBackendPostgres ||
		c.Market.Source == MarketSourcePostgres ||
		c.Market.Record
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	validEnvs := []string{"development", "staging", "production"}
	if !slices.Contains(validEnvs, c.App.Environment) {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvs),
		})
	}

	if c.App.LogLevel == "" {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: "Log level is required (debug, info, warn, error)",
		})
	}

	if c.App.LogFormat != "json" && c.App.LogFormat != "console" {
		errors = append(errors, ValidationError{
			Field:   "app.log_format",
			Message: fmt.Sprintf("Invalid log format '%s'. Must be json or console", c.App.LogFormat),
		})
	}

	return errors
}

func (c *Config) validateStore() ValidationErrors {
	var errors ValidationErrors

	switch c.Store.Backend {
	case StoreBackendParse:
		if c.Store.Parse.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "store.parse.url",
				Message: "Parse server URL is required (PARSE_REMOTE_URL)",
			})
		} else if !strings.HasPrefix(c.Store.Parse.URL, "http://") && !strings.HasPrefix(c.Store.Parse.URL, "https://") {
			errors = append(errors, ValidationError{
				Field:   "store.parse.url",
				Message: "Parse server URL must start with 'http://' or 'https://'",
			})
		}
		if c.Store.Parse.AppID == "" {
			errors = append(errors, ValidationError{
				Field:   "store.parse.app_id",
				Message: "Parse application id is required (PARSE_APP_ID)",
			})
		}
		if c.Store.Parse.RestKey == "" {
			errors = append(errors, ValidationError{
				Field:   "store.parse.rest_key",
				Message: "Parse REST key is required (PARSE_REST_KEY)",
			})
		}
		if c.Store.Parse.RequestsPerSecond < 1 {
			errors = append(errors, ValidationError{
				Field:   "store.parse.requests_per_second",
				Message: "Parse rate limit must be at least 1 request per second",
			})
		}
	case StoreBackendPostgres, StoreBackendMemory:
	default:
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("Invalid store backend '%s'. Must be parse, postgres or memory", c.Store.Backend),
		})
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "database.host",
			Message: "Database host is required",
		})
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Database.Port),
		})
	}

	if c.Database.User == "" {
		errors = append(errors, ValidationError{
			Field:   "database.user",
			Message: "Database user is required",
		})
	}

	if c.Database.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "database.database",
			Message: "Database name is required",
		})
	}

	if c.Database.Password == "" && c.App.Environment != "development" {
		errors = append(errors, ValidationError{
			Field:   "database.password",
			Message: "Database password is required in non-development environments",
		})
	}

	if c.Database.PoolSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.pool_size",
			Message: "Database pool size must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateRedis() ValidationErrors {
	var errors ValidationErrors

	if !c.Redis.Enabled {
		return errors
	}

	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.host",
			Message: "Redis host is required",
		})
	}

	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Redis.Port),
		})
	}

	if c.Redis.CandleTTL < 0 {
		errors = append(errors, ValidationError{
			Field:   "redis.candle_ttl",
			Message: "Candle TTL cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateNATS() ValidationErrors {
	var errors ValidationErrors

	if c.NATS.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL is required",
		})
	} else if !strings.HasPrefix(c.NATS.URL, "nats://") {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL must start with 'nats://'",
		})
	}

	if c.NATS.EvaluateSubject == "" || c.NATS.EvolveSubject == "" || c.NATS.NetworksSubject == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.subjects",
			Message: "Evaluate, evolve and networks subjects are required",
		})
	}

	if c.NATS.RequestTimeout < 1 {
		errors = append(errors, ValidationError{
			Field:   "nats.request_timeout",
			Message: "NATS request timeout must be at least 1 second",
		})
	}

	return errors
}

func (c *Config) validateMarket() ValidationErrors {
	var errors ValidationErrors

	if c.Market.Source != MarketSourceBinance && c.Market.Source != MarketSourcePostgres {
		errors = append(errors, ValidationError{
			Field:   "market.source",
			Message: fmt.Sprintf("Invalid market source '%s'. Must be binance or postgres", c.Market.Source),
		})
	}

	if c.Market.BucketBars < 0 {
		errors = append(errors, ValidationError{
			Field:   "market.bucket_bars",
			Message: "Bucket bars must not be negative (0 means one day of bars)",
		})
	}

	if c.Market.Exchange == "" {
		errors = append(errors, ValidationError{
			Field:   "market.exchange",
			Message: "Market exchange is required",
		})
	}

	if c.Market.Record && c.Market.Source == MarketSourcePostgres {
		errors = append(errors, ValidationError{
			Field:   "market.record",
			Message: "Recording candles requires a non-postgres market source",
		})
	}

	if c.Market.Source == MarketSourceBinance && c.Market.Binance.RequestsPerSecond < 1 {
		errors = append(errors, ValidationError{
			Field:   "market.binance.requests_per_second",
			Message: "Binance rate limit must be at least 1 request per second",
		})
	}

	return errors
}

func (c *Config) validatePipeline() ValidationErrors {
	var errors ValidationErrors

	if c.Pipeline.ResultPageSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.result_page_size",
			Message: "Result page size must be at least 1",
		})
	}

	if c.Pipeline.LeaderboardSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.leaderboard_size",
			Message: "Leaderboard size must be at least 1",
		})
	}

	return errors
}
