package market

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/neatrank/internal/metrics"
)

// AssemblerOptions tunes how windows are split and merged
type AssemblerOptions struct {
	// BucketBars is the number of bars per period bucket. Zero means one
	// UTC day of bars.
	BucketBars int
	// Dedupe drops bars whose timestamp repeats after the merge. Adjacent
	// buckets overlap by their lookback history, so without it a window
	// carries those bars more than once.
	Dedupe bool
}

// Assembler builds candle windows for one pipeline run
type Assembler struct {
	provider Provider
	cache    *CandleCache
	opts     AssemblerOptions
	log      zerolog.Logger
}

// NewAssembler creates an assembler over a run-scoped cache. A nil cache
// gets a fresh one.
func NewAssembler(provider Provider, cache *CandleCache, opts AssemblerOptions) *Assembler {
	if cache == nil {
		cache = NewCandleCache()
	}
	if opts.BucketBars < 0 {
		opts.BucketBars = 0
	}
	return &Assembler{
		provider: provider,
		cache:    cache,
		opts:     opts,
		log:      log.With().Str("component", "assembler").Logger(),
	}
}

// Cache returns the run cache
func (a *Assembler) Cache() *CandleCache {
	return a.cache
}

// BucketWidth returns the bucket width in seconds for a bar interval in
// minutes. Day buckets round up to a whole number of bars.
func (a *Assembler) BucketWidth(interval int) int64 {
	bar := int64(interval) * 60
	if a.opts.BucketBars > 0 {
		return bar * int64(a.opts.BucketBars)
	}
	return (secondsPerDay + bar - 1) / bar * bar
}

const secondsPerDay = 24 * 60 * 60

// Window returns the candles covering [from, to) for the instrument,
// ordered by timestamp. Buckets already fetched during this run are reused.
func (a *Assembler) Window(ctx context.Context, ticker string, interval, lookback int, from, to int64) ([]Candle, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid interval %d", interval)
	}

	width := a.BucketWidth(interval)
	keys := PeriodKeys(from, to, width)

	var window []Candle
	fetched := 0
	for _, key := range keys {
		cacheKey := CacheKey{PeriodKey: key, Ticker: ticker, Interval: interval, Lookback: lookback}

		bucket, ok := a.cache.Get(cacheKey)
		metrics.RecordCacheLookup(metrics.CacheLayerRun, ok)
		if !ok {
			req := BucketRequest{
				Ticker:    ticker,
				Interval:  interval,
				PeriodKey: key,
				Lookback:  lookback,
				Width:     width,
			}
			var err error
			bucket, err = a.provider.FetchCandles(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch candles for %s: %w", req, err)
			}
			a.cache.Put(cacheKey, bucket)
			metrics.RecordCandlesFetched(len(bucket))
			fetched++
		}

		window = append(window, bucket...)
	}

	sort.SliceStable(window, func(i, j int) bool {
		return window[i].Timestamp.Before(window[j].Timestamp)
	})

	if a.opts.Dedupe {
		window = dedupe(window)
	}

	a.log.Debug().
		Str("ticker", ticker).
		Int("interval", interval).
		Int("lookback", lookback).
		Int("buckets", len(keys)).
		Int("fetched", fetched).
		Int("candles", len(window)).
		Msg("Assembled candle window")

	return window, nil
}

// dedupe keeps the first bar of every run of equal timestamps in a sorted
// window
func dedupe(window []Candle) []Candle {
	if len(window) < 2 {
		return window
	}
	out := window[:1]
	for _, c := range window[1:] {
		if !c.Timestamp.Equal(out[len(out)-1].Timestamp) {
			out = append(out, c)
		}
	}
	return out
}
