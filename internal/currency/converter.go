// Package currency converts amounts between the supported currencies using
// the active exchange rates.
package currency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Wass76/Uqar-sub002/internal/apperr"
	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

// inversePrecision is the number of digits kept when inverting a rate.
const inversePrecision = 12

type Source string

const (
	SourceIdentity Source = "IDENTITY"
	SourceDirect   Source = "DIRECT"
	SourceInverse  Source = "INVERSE"
)

// RateSource yields the active rate for a pair, or store.ErrNotFound.
type RateSource interface {
	GetActiveRate(ctx context.Context, from, to domain.Currency, at time.Time) (*domain.ExchangeRate, error)
}

// Quote is a rate resolved at a point in time. Quotes are frozen onto
// invoices so later conversions reuse the same rate. RateID, Provider and
// RateCreatedAt identify the stored rate row the quote came from; they are
// empty for identity quotes.
type Quote struct {
	From          domain.Currency `json:"from"`
	To            domain.Currency `json:"to"`
	Rate          decimal.Decimal `json:"rate"`
	Source        Source          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	RateID        int64           `json:"rate_id,omitempty"`
	Provider      string          `json:"provider,omitempty"`
	RateCreatedAt *time.Time      `json:"rate_created_at,omitempty"`
}

func quoteFrom(from, to domain.Currency, rate decimal.Decimal, source Source, now time.Time, row *domain.ExchangeRate) Quote {
	created := row.CreatedAt
	return Quote{
		From:          from,
		To:            to,
		Rate:          rate,
		Source:        source,
		Timestamp:     now,
		RateID:        row.ID,
		Provider:      row.Source,
		RateCreatedAt: &created,
	}
}

// Apply converts amount with the quoted rate and rounds to money scale.
// Identity quotes return amount unchanged.
func (q Quote) Apply(amount decimal.Decimal) decimal.Decimal {
	if q.Source == SourceIdentity {
		return amount
	}
	return domain.RoundMoney(amount.Mul(q.Rate))
}

type Conversion struct {
	Amount         decimal.Decimal `json:"amount"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	Quote
}

type Converter struct {
	rates RateSource
	now   func() time.Time
}

func NewConverter(rates RateSource) *Converter {
	return &Converter{rates: rates, now: time.Now}
}

func (c *Converter) WithClock(now func() time.Time) *Converter {
	c.now = now
	return c
}

// Quote resolves the rate from -> to: identity for equal currencies, the
// direct active rate when present, otherwise the reciprocal of the reverse rate.
func (c *Converter) Quote(ctx context.Context, from, to domain.Currency) (Quote, error) {
	if !from.Valid() || !to.Valid() {
		return Quote{}, apperr.Validationf("unsupported currency pair %s/%s", from, to)
	}
	now := c.now().UTC()
	if from == to {
		return Quote{From: from, To: to, Rate: decimal.NewFromInt(1), Source: SourceIdentity, Timestamp: now}, nil
	}

	direct, err := c.lookup(ctx, from, to, now)
	if err != nil {
		return Quote{}, err
	}
	if direct != nil {
		return quoteFrom(from, to, direct.Rate, SourceDirect, now, direct), nil
	}

	reverse, err := c.lookup(ctx, to, from, now)
	if err != nil {
		return Quote{}, err
	}
	if reverse != nil {
		inverse := decimal.NewFromInt(1).DivRound(reverse.Rate, inversePrecision)
		return quoteFrom(from, to, inverse, SourceInverse, now, reverse), nil
	}

	return Quote{}, apperr.RateUnavailable(string(from), string(to))
}

func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to domain.Currency) (Conversion, error) {
	quote, err := c.Quote(ctx, from, to)
	if err != nil {
		return Conversion{}, err
	}
	return Conversion{Amount: quote.Apply(amount), OriginalAmount: amount, Quote: quote}, nil
}

func (c *Converter) lookup(ctx context.Context, from, to domain.Currency, at time.Time) (*domain.ExchangeRate, error) {
	rate, err := c.rates.GetActiveRate(ctx, from, to, at)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Dependency(apperr.CodeRateUnavailable, fmt.Sprintf("load rate %s/%s", from, to)).Wrap(err)
	}
	if !rate.Rate.IsPositive() {
		return nil, nil
	}
	return rate, nil
}

// StoreRates reads active rates through a store.Store.
type StoreRates struct {
	Store store.Store
}

func (s StoreRates) GetActiveRate(ctx context.Context, from, to domain.Currency, at time.Time) (*domain.ExchangeRate, error) {
	var rate *domain.ExchangeRate
	err := s.Store.View(ctx, func(ctx context.Context, repo store.Repository) error {
		r, err := repo.GetActiveRate(ctx, from, to, at)
		rate = r
		return err
	})
	return rate, err
}
