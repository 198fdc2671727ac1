package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider serves one bar per interval over the requested bucket range
// and counts fetches per bucket
type fakeProvider struct {
	fetches  map[CacheKey]int
	lookback bool // include lookback history
	reverse  bool // return bars newest first
	err      error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{fetches: make(map[CacheKey]int)}
}

func (f *fakeProvider) FetchCandles(ctx context.Context, req BucketRequest) ([]Candle, error) {
	f.fetches[CacheKey{PeriodKey: req.PeriodKey, Ticker: req.Ticker, Interval: req.Interval, Lookback: req.Lookback}]++
	if f.err != nil {
		return nil, f.err
	}

	start, end := req.Range()
	if !f.lookback {
		start = time.Unix(req.PeriodKey, 0).UTC()
	}
	bar := time.Duration(req.Interval) * time.Minute

	var candles []Candle
	for ts := start; ts.Before(end); ts = ts.Add(bar) {
		candles = append(candles, Candle{Timestamp: ts, Close: float64(ts.Unix())})
	}
	if f.reverse {
		for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
			candles[i], candles[j] = candles[j], candles[i]
		}
	}
	return candles, nil
}

func (f *fakeProvider) total() int {
	n := 0
	for _, c := range f.fetches {
		n += c
	}
	return n
}

func TestPeriodKeys(t *testing.T) {
	tests := []struct {
		name     string
		from, to int64
		width    int64
		expected []int64
	}{
		{"aligned span", 0, 900, 300, []int64{0, 300, 600}},
		{"unaligned start aligns down", 150, 900, 300, []int64{0, 300, 600}},
		{"partial last bucket", 0, 901, 300, []int64{0, 300, 600, 900}},
		{"span shorter than width", 0, 10, 300, []int64{0}},
		{"empty span", 600, 600, 300, nil},
		{"inverted span", 900, 600, 300, nil},
		{"zero width", 0, 900, 0, nil},
		{"negative start", -450, 0, 300, []int64{-600, -300}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PeriodKeys(tt.from, tt.to, tt.width))
		})
	}
}

func TestBucketRequestRange(t *testing.T) {
	req := BucketRequest{Ticker: "BTCUSDT", Interval: 5, PeriodKey: 3600, Lookback: 12, Width: 300}
	start, end := req.Range()

	assert.Equal(t, int64(0), start.Unix())
	assert.Equal(t, int64(3900), end.Unix())
}

func TestAssembler_ThreeBuckets(t *testing.T) {
	provider := newFakeProvider()
	provider.reverse = true
	a := NewAssembler(provider, nil, AssemblerOptions{BucketBars: 3})

	// 5 minute bars, 3 bars per bucket, 9 bars in total
	from, to := int64(0), int64(9*300)
	window, err := a.Window(context.Background(), "BTCUSDT", 5, 0, from, to)
	require.NoError(t, err)

	require.Len(t, window, 9)
	for i, c := range window {
		assert.Equal(t, int64(i*300), c.Timestamp.Unix())
	}
	assert.Equal(t, 3, provider.total())
	assert.Equal(t, 3, a.Cache().Misses())
	assert.Equal(t, 0, a.Cache().Hits())
}

func TestAssembler_SharedBucketsFetchedOnce(t *testing.T) {
	provider := newFakeProvider()
	a := NewAssembler(provider, NewCandleCache(), AssemblerOptions{BucketBars: 1})
	ctx := context.Background()

	first, err := a.Window(ctx, "BTCUSDT", 5, 12, 0, 900)
	require.NoError(t, err)
	second, err := a.Window(ctx, "BTCUSDT", 5, 12, 0, 900)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 3, provider.total())
	for key, n := range provider.fetches {
		assert.Equal(t, 1, n, "bucket %v fetched more than once", key)
	}
	assert.Equal(t, 3, a.Cache().Hits())
	assert.Equal(t, 3, a.Cache().Len())

	// overlapping period reuses the two shared buckets
	_, err = a.Window(ctx, "BTCUSDT", 5, 12, 300, 1200)
	require.NoError(t, err)
	assert.Equal(t, 4, provider.total())

	// different lookback is a different bucket
	_, err = a.Window(ctx, "BTCUSDT", 5, 6, 0, 300)
	require.NoError(t, err)
	assert.Equal(t, 5, provider.total())
}

func TestAssembler_OverlappingLookbackKeepsDuplicates(t *testing.T) {
	provider := newFakeProvider()
	provider.lookback = true
	a := NewAssembler(provider, nil, AssemblerOptions{BucketBars: 1})

	window, err := a.Window(context.Background(), "BTCUSDT", 5, 2, 600, 1200)
	require.NoError(t, err)

	// buckets 600 and 900 each carry two lookback bars
	require.Len(t, window, 6)
	stamps := make([]int64, len(window))
	for i, c := range window {
		stamps[i] = c.Timestamp.Unix()
	}
	assert.Equal(t, []int64{0, 300, 300, 600, 600, 900}, stamps)
}

func TestAssembler_Dedupe(t *testing.T) {
	provider := newFakeProvider()
	provider.lookback = true
	a := NewAssembler(provider, nil, AssemblerOptions{BucketBars: 1, Dedupe: true})

	window, err := a.Window(context.Background(), "BTCUSDT", 5, 2, 600, 1200)
	require.NoError(t, err)

	stamps := make([]int64, len(window))
	for i, c := range window {
		stamps[i] = c.Timestamp.Unix()
	}
	assert.Equal(t, []int64{0, 300, 600, 900}, stamps)
}

func TestAssembler_CachedSliceNotMutated(t *testing.T) {
	provider := newFakeProvider()
	provider.reverse = true
	cache := NewCandleCache()
	a := NewAssembler(provider, cache, AssemblerOptions{BucketBars: 3})

	_, err := a.Window(context.Background(), "BTCUSDT", 5, 0, 0, 900)
	require.NoError(t, err)

	bucket, ok := cache.Get(CacheKey{PeriodKey: 0, Ticker: "BTCUSDT", Interval: 5})
	require.True(t, ok)
	require.Len(t, bucket, 3)
	assert.Equal(t, int64(600), bucket[0].Timestamp.Unix(), "cached bucket keeps provider order")
}

func TestAssembler_FetchErrorAborts(t *testing.T) {
	provider := newFakeProvider()
	provider.err = errors.New("exchange unavailable")
	a := NewAssembler(provider, nil, AssemblerOptions{BucketBars: 1})

	_, err := a.Window(context.Background(), "BTCUSDT", 5, 12, 0, 900)
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.err)
	assert.Equal(t, 1, provider.total())
	assert.Zero(t, a.Cache().Len())
}

func TestAssembler_InvalidInterval(t *testing.T) {
	a := NewAssembler(newFakeProvider(), nil, AssemblerOptions{})
	_, err := a.Window(context.Background(), "BTCUSDT", 0, 12, 0, 900)
	assert.Error(t, err)
}

func TestAssembler_BucketWidth(t *testing.T) {
	tests := []struct {
		name     string
		bars     int
		interval int
		expected int64
	}{
		{"one bar", 1, 5, 300},
		{"fixed bars", 12, 5, 3600},
		{"day of five minute bars", 0, 5, 86400},
		{"day of hourly bars", 0, 60, 86400},
		{"day rounds up to whole bars", 0, 7, 86520},
		{"negative means day", -3, 15, 86400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler(newFakeProvider(), nil, AssemblerOptions{BucketBars: tt.bars})
			assert.Equal(t, tt.expected, a.BucketWidth(tt.interval))
		})
	}
}

func TestAssembler_DayBucketsBoundOverlap(t *testing.T) {
	provider := newFakeProvider()
	provider.lookback = true
	a := NewAssembler(provider, nil, AssemblerOptions{})

	// six days of 5 minute bars with 12 bars of lookback
	day := int64(secondsPerDay)
	window, err := a.Window(context.Background(), "BTCUSDT", 5, 12, 10*day, 16*day)
	require.NoError(t, err)

	assert.Equal(t, 6, provider.total())
	assert.Len(t, window, 6*(288+12))
	assert.Equal(t, 10*day-12*300, window[0].Timestamp.Unix())
	assert.Equal(t, 16*day-300, window[len(window)-1].Timestamp.Unix())
}

func TestCandleCache_PutKeepsFirst(t *testing.T) {
	cache := NewCandleCache()
	key := CacheKey{PeriodKey: 0, Ticker: "BTCUSDT", Interval: 5, Lookback: 12}

	cache.Put(key, []Candle{{Close: 1}})
	cache.Put(key, []Candle{{Close: 2}})

	got, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, 1.0, got[0].Close)

	_, ok = cache.Get(CacheKey{PeriodKey: 300, Ticker: "BTCUSDT", Interval: 5, Lookback: 12})
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Hits())
	assert.Equal(t, 1, cache.Misses())
}
