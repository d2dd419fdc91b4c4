package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"

	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/logging"
)

// RedisCache is a read-through cache in front of a RateSource. Redis failures
// never fail a lookup: the breaker opens and reads go straight to the source.
type RedisCache struct {
	next    RateSource
	client  *redis.Client
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *logging.Logger
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewRedisClient(opts RedisOptions) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     10,
		MaxRetries:   1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

func NewRedisCache(next RateSource, client *redis.Client, ttl time.Duration, logger *logging.Logger) *RedisCache {
	logger = logger.WithComponent("rate-cache")
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-rate-cache",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &RedisCache{next: next, client: client, ttl: ttl, breaker: breaker, logger: logger}
}

func cacheKey(from, to domain.Currency) string {
	return fmt.Sprintf("rate:%s:%s", from, to)
}

func (c *RedisCache) GetActiveRate(ctx context.Context, from, to domain.Currency, at time.Time) (*domain.ExchangeRate, error) {
	key := cacheKey(from, to)
	if cached, ok := c.get(ctx, key); ok && cached.EffectiveAt(at) {
		return cached, nil
	}

	rate, err := c.next.GetActiveRate(ctx, from, to, at)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, rate)
	return rate, nil
}

// Invalidate drops both directions of a pair.
func (c *RedisCache) Invalidate(ctx context.Context, from, to domain.Currency) {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Del(ctx, cacheKey(from, to), cacheKey(to, from)).Err()
	})
	if err != nil {
		c.logger.WithError(err).Warn("rate cache invalidation failed", "from", from, "to", to)
	}
}

func (c *RedisCache) get(ctx context.Context, key string) (*domain.ExchangeRate, bool) {
	raw, err := c.breaker.Execute(func() (interface{}, error) {
		payload, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return payload, err
	})
	if err != nil {
		c.logger.WithError(err).Debug("rate cache read skipped", "key", key)
		return nil, false
	}
	payload, _ := raw.([]byte)
	if len(payload) == 0 {
		return nil, false
	}
	var rate domain.ExchangeRate
	if err := json.Unmarshal(payload, &rate); err != nil {
		c.logger.WithError(err).Warn("rate cache entry corrupt", "key", key)
		return nil, false
	}
	return &rate, true
}

func (c *RedisCache) put(ctx context.Context, key string, rate *domain.ExchangeRate) {
	payload, err := json.Marshal(rate)
	if err != nil {
		return
	}
	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, key, payload, c.ttl).Err()
	})
	if err != nil {
		c.logger.WithError(err).Debug("rate cache write skipped", "key", key)
	}
}
