// Package app wires configuration into a ready settlement service.
package app

import (
	"context"
	"fmt"

	"github.com/Wass76/Uqar-sub002/internal/config"
	"github.com/Wass76/Uqar-sub002/internal/currency"
	"github.com/Wass76/Uqar-sub002/internal/db"
	"github.com/Wass76/Uqar-sub002/internal/logging"
	"github.com/Wass76/Uqar-sub002/internal/metrics"
	"github.com/Wass76/Uqar-sub002/internal/repository"
	"github.com/Wass76/Uqar-sub002/internal/repository/memory"
	"github.com/Wass76/Uqar-sub002/internal/service"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

// Open builds the service described by cfg. The returned close func releases
// the database pool and the Redis client, and is safe to call on error paths.
func Open(ctx context.Context, cfg config.Config, logger *logging.Logger, m *metrics.Metrics) (*service.Service, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var st store.Store
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("using in-memory storage; data is lost on restart")
		st = memory.New()
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{})
		if err != nil {
			return nil, closeAll, fmt.Errorf("database: %w", err)
		}
		closers = append(closers, pool.Close)

		applied, err := db.RunMigrations(ctx, pool, logger)
		if err != nil {
			return nil, closeAll, fmt.Errorf("migrations: %w", err)
		}
		logger.Info("migrations applied", "count", applied)
		st = repository.New(pool)
	}

	var rates currency.RateSource = currency.StoreRates{Store: st}
	var cache *currency.RedisCache
	if cfg.RedisAddr != "" {
		client := currency.NewRedisClient(currency.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.RateCacheTTL,
		})
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				logger.WithError(err).Warn("close redis client")
			}
		})
		cache = currency.NewRedisCache(rates, client, cfg.RateCacheTTL, logger)
		rates = cache
		logger.Info("exchange rate cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.RateCacheTTL.String())
	}

	svc := service.New(st, currency.NewConverter(rates), service.Options{
		BaseCurrency:      cfg.BaseCurrency,
		DefaultDebtTerm:   cfg.DefaultDebtTerm,
		PartialSaleMarkup: cfg.PartialSaleMarkup,
	}, logger, m)
	if cache != nil {
		svc.WithRateInvalidator(cache)
	}
	return svc, closeAll, nil
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg config.Config, serviceName, version string) *logging.Logger {
	return logging.New(logging.Config{
		Level:       cfg.LogLevel,
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Version:     version,
	})
}
