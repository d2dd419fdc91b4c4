package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/Wass76/Uqar-sub002/internal/domain"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Port        int
	DatabaseURL string
	Storage     string
	Environment string
	LogLevel    string

	BaseCurrency      domain.Currency
	DefaultDebtTerm   time.Duration
	PartialSaleMarkup decimal.Decimal

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RateCacheTTL  time.Duration

	CORSAllowedOrigins []string
}

func Load() (Config, error) {
	return LoadFile(filepath.Join(".", ".env"))
}

// LoadFile reads configuration from the environment, falling back to the
// given .env file. A missing file is not an error.
func LoadFile(envPath string) (Config, error) {
	values := map[string]string{}
	if _, err := os.Stat(envPath); err == nil {
		fileValues, err := godotenv.Read(envPath)
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", envPath, err)
		}
		values = fileValues
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("stat %s: %w", envPath, err)
	}
	get := func(key string) string {
		return firstNonEmpty(os.Getenv(key), values[key])
	}

	cfg := Config{
		Port:              8080,
		Storage:           StoragePostgres,
		Environment:       "development",
		LogLevel:          "info",
		BaseCurrency:      domain.CurrencySYP,
		DefaultDebtTerm:   30 * 24 * time.Hour,
		PartialSaleMarkup: decimal.RequireFromString("1.20"),
		RateCacheTTL:      5 * time.Minute,
	}

	if portRaw := get("PORT"); portRaw != "" {
		port, err := strconv.Atoi(portRaw)
		if err != nil || port <= 0 {
			return Config{}, fmt.Errorf("invalid PORT: %q", portRaw)
		}
		cfg.Port = port
	}

	if storage := get("STORAGE"); storage != "" {
		storage = strings.ToLower(storage)
		if storage != StoragePostgres && storage != StorageMemory {
			return Config{}, fmt.Errorf("invalid STORAGE: %q", storage)
		}
		cfg.Storage = storage
	}

	cfg.DatabaseURL = get("DATABASE_URL")
	if cfg.Storage == StoragePostgres && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required (environment variable or .env)")
	}

	if env := get("ENVIRONMENT"); env != "" {
		cfg.Environment = env
	}
	if level := get("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if raw := get("BASE_CURRENCY"); raw != "" {
		currency, err := domain.ParseCurrency(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid BASE_CURRENCY: %w", err)
		}
		cfg.BaseCurrency = currency
	}

	if raw := get("DEFAULT_DEBT_TERM_DAYS"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			return Config{}, fmt.Errorf("invalid DEFAULT_DEBT_TERM_DAYS: %q", raw)
		}
		cfg.DefaultDebtTerm = time.Duration(days) * 24 * time.Hour
	}

	if raw := get("PARTIAL_SALE_MARKUP"); raw != "" {
		markup, err := decimal.NewFromString(raw)
		if err != nil || !markup.IsPositive() {
			return Config{}, fmt.Errorf("invalid PARTIAL_SALE_MARKUP: %q", raw)
		}
		cfg.PartialSaleMarkup = markup
	}

	cfg.RedisAddr = get("REDIS_ADDR")
	cfg.RedisPassword = get("REDIS_PASSWORD")
	if raw := get("REDIS_DB"); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil || db < 0 {
			return Config{}, fmt.Errorf("invalid REDIS_DB: %q", raw)
		}
		cfg.RedisDB = db
	}
	if raw := get("RATE_CACHE_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			return Config{}, fmt.Errorf("invalid RATE_CACHE_TTL: %q", raw)
		}
		cfg.RateCacheTTL = ttl
	}

	if raw := get("CORS_ALLOWED_ORIGINS"); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
			}
		}
	}

	return cfg, nil
}

func firstNonEmpty(candidates ...string) string {
	for _, candidate := range candidates {
		if value := strings.TrimSpace(candidate); value != "" {
			return value
		}
	}
	return ""
}
