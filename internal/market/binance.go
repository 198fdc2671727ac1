package market

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// binanceKlineLimit is the maximum number of klines per request
const binanceKlineLimit = 1000

// binanceIntervals maps bar sizes in minutes to Binance kline intervals
var binanceIntervals = map[int]string{
	1:     "1m",
	3:     "3m",
	5:     "5m",
	15:    "15m",
	30:    "30m",
	60:    "1h",
	120:   "2h",
	240:   "4h",
	360:   "6h",
	480:   "8h",
	720:   "12h",
	1440:  "1d",
	4320:  "3d",
	10080: "1w",
}

// BinanceConfig contains Binance market data settings
type BinanceConfig struct {
	APIKey            string
	SecretKey         string
	RequestsPerSecond int
	BaseURL           string // optional override, mostly for tests
}

// BinanceProvider downloads klines from the Binance spot API
type BinanceProvider struct {
	client  *binance.Client
	limiter *rate.Limiter
}

// NewBinanceProvider creates a kline provider. Klines are public so the
// keys may be empty.
func NewBinanceProvider(config BinanceConfig) *BinanceProvider {
	client := binance.NewClient(config.APIKey, config.SecretKey)
	if config.BaseURL != "" {
		client.BaseURL = config.BaseURL
	}

	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 10
	}

	log.Info().
		Int("requests_per_second", config.RequestsPerSecond).
		Msg("Binance market data provider initialized")

	return &BinanceProvider{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.RequestsPerSecond),
	}
}

// BinanceInterval returns the Binance kline interval for a bar size in
// minutes
func BinanceInterval(minutes int) (string, error) {
	interval, ok := binanceIntervals[minutes]
	if !ok {
		return "", fmt.Errorf("unsupported bar interval %d minutes", minutes)
	}
	return interval, nil
}

// FetchCandles pages through klines until the bucket range is covered
func (b *BinanceProvider) FetchCandles(ctx context.Context, req BucketRequest) ([]Candle, error) {
	interval, err := BinanceInterval(req.Interval)
	if err != nil {
		return nil, err
	}

	start, end := req.Range()
	startMs := start.UnixMilli()
	endMs := end.UnixMilli()
	barMs := int64(req.Interval) * 60 * 1000

	var candles []Candle
	for startMs < endMs {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		klines, err := b.client.NewKlinesService().
			Symbol(req.Ticker).
			Interval(interval).
			StartTime(startMs).
			EndTime(endMs - 1).
			Limit(binanceKlineLimit).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get klines for %s: %w", req.Ticker, err)
		}

		for _, k := range klines {
			if k.OpenTime >= endMs {
				continue
			}
			candle, err := klineToCandle(k)
			if err != nil {
				return nil, err
			}
			candles = append(candles, candle)
		}

		if len(klines) < binanceKlineLimit {
			break
		}
		startMs = klines[len(klines)-1].OpenTime + barMs
	}

	log.Debug().
		Str("symbol", req.Ticker).
		Str("interval", interval).
		Int64("period_key", req.PeriodKey).
		Int("candles", len(candles)).
		Msg("Fetched klines")

	return candles, nil
}

func klineToCandle(k *binance.Kline) (Candle, error) {
	values := [5]float64{}
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Candle{}, fmt.Errorf("invalid kline value %q at %d: %w", s, k.OpenTime, err)
		}
		values[i] = v
	}

	return Candle{
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}
