// Package market assembles historical candle windows for strategy
// evaluation. Windows are split into aligned period buckets that are fetched
// from a Provider once per pipeline run and reused through a CandleCache.
package market

import (
	"context"
	"fmt"
	"time"
)

// Candle represents OHLCV data for one bar
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// BucketRequest identifies one period bucket of a candle window. Interval
// is the bar size in minutes, PeriodKey and Width are unix seconds.
type BucketRequest struct {
	Ticker    string
	Interval  int
	PeriodKey int64
	Lookback  int
	Width     int64
}

// Range returns the bars a bucket covers: the lookback history before the
// key followed by the bucket itself, as [start, end)
func (r BucketRequest) Range() (time.Time, time.Time) {
	bar := int64(r.Interval) * 60
	start := r.PeriodKey - int64(r.Lookback)*bar
	end := r.PeriodKey + r.Width
	return time.Unix(start, 0).UTC(), time.Unix(end, 0).UTC()
}

func (r BucketRequest) String() string {
	return fmt.Sprintf("%s/%dm@%d+%d(lookback %d)", r.Ticker, r.Interval, r.PeriodKey, r.Width, r.Lookback)
}

// Provider fetches the candles of one bucket. Implementations must not
// cache; caching belongs to the caller.
type Provider interface {
	FetchCandles(ctx context.Context, req BucketRequest) ([]Candle, error)
}

// ProviderFunc adapts a function to Provider
type ProviderFunc func(ctx context.Context, req BucketRequest) ([]Candle, error)

// FetchCandles calls f
func (f ProviderFunc) FetchCandles(ctx context.Context, req BucketRequest) ([]Candle, error) {
	return f(ctx, req)
}

// PeriodKeys splits [from, to) into buckets of width seconds and returns
// their start keys in ascending order. Keys are aligned down to a multiple
// of width, so the first key may precede from.
func PeriodKeys(from, to, width int64) []int64 {
	if width <= 0 || to <= from {
		return nil
	}

	start := from - mod(from, width)
	keys := make([]int64, 0, (to-start+width-1)/width)
	for key := start; key < to; key += width {
		keys = append(keys, key)
	}
	return keys
}

// mod is the non-negative remainder of a / b
func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
