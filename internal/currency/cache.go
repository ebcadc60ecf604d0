package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateKeyPrefix = "fx:rate"

// RateCache keeps the latest-rate lookups out of Postgres. It is nil-safe:
// without a Redis client every call falls through to the repository.
type RateCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRateCache(client *redis.Client, ttl time.Duration) *RateCache {
	return &RateCache{client: client, ttl: ttl}
}

func rateKey(companyID int64, currency string, asOf time.Time) string {
	return fmt.Sprintf("%s:%d:%s:%s", rateKeyPrefix, companyID, currency, asOf.Format(time.DateOnly))
}

// Get returns the cached rate and whether it was present. Cache errors read
// as misses so a Redis outage never blocks conversions.
func (c *RateCache) Get(ctx context.Context, companyID int64, currency string, asOf time.Time) (ExchangeRate, bool) {
	if c == nil || c.client == nil {
		return ExchangeRate{}, false
	}
	payload, err := c.client.Get(ctx, rateKey(companyID, currency, asOf)).Bytes()
	if err != nil {
		return ExchangeRate{}, false
	}
	var rate ExchangeRate
	if err := json.Unmarshal(payload, &rate); err != nil {
		return ExchangeRate{}, false
	}
	return rate, true
}

func (c *RateCache) Set(ctx context.Context, asOf time.Time, rate ExchangeRate) {
	if c == nil || c.client == nil {
		return
	}
	payload, err := json.Marshal(rate)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, rateKey(rate.CompanyID, rate.Currency, asOf), payload, c.ttl).Err()
}

// Invalidate drops all cached rates of one currency after a new rate row is
// recorded, since any asOf date could now resolve differently.
func (c *RateCache) Invalidate(ctx context.Context, companyID int64, currency string) {
	if c == nil || c.client == nil {
		return
	}
	pattern := fmt.Sprintf("%s:%d:%s:*", rateKeyPrefix, companyID, currency)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		_ = c.client.Del(ctx, iter.Val()).Err()
	}
}
