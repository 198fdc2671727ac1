package market

// CacheKey identifies one bucket in a CandleCache
type CacheKey struct {
	PeriodKey int64
	Ticker    string
	Interval  int
	Lookback  int
}

// CandleCache holds fetched buckets for the lifetime of one pipeline run.
// It is owned by a single run and is not safe for concurrent use.
type CandleCache struct {
	entries map[CacheKey][]Candle
	hits    int
	misses  int
}

// NewCandleCache creates an empty cache
func NewCandleCache() *CandleCache {
	return &CandleCache{entries: make(map[CacheKey][]Candle)}
}

// Get returns the cached bucket and records a hit or a miss
func (c *CandleCache) Get(key CacheKey) ([]Candle, bool) {
	candles, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return candles, ok
}

// Put stores a bucket unless one is already cached under key
func (c *CandleCache) Put(key CacheKey, candles []Candle) {
	if _, ok := c.entries[key]; ok {
		return
	}
	c.entries[key] = candles
}

// Len returns the number of cached buckets
func (c *CandleCache) Len() int {
	return len(c.entries)
}

// Hits returns how many lookups were served from the cache
func (c *CandleCache) Hits() int {
	return c.hits
}

// Misses returns how many lookups required a fetch
func (c *CandleCache) Misses() int {
	return c.misses
}
