package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Wass76/Uqar-sub002/internal/apperr"
	"github.com/Wass76/Uqar-sub002/internal/currency"
	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

type ExchangeRateInput struct {
	FromCurrency  domain.Currency `json:"from_currency" validate:"required"`
	ToCurrency    domain.Currency `json:"to_currency" validate:"required"`
	Rate          decimal.Decimal `json:"rate"`
	Source        string          `json:"source"`
	EffectiveFrom *time.Time      `json:"effective_from,omitempty"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
}

func validateRate(in ExchangeRateInput) error {
	if !in.FromCurrency.Valid() || !in.ToCurrency.Valid() {
		return apperr.Validationf("unsupported currency pair %s/%s", in.FromCurrency, in.ToCurrency)
	}
	if in.FromCurrency == in.ToCurrency {
		return apperr.Validation("exchange rate currencies must differ")
	}
	if !in.Rate.IsPositive() {
		return apperr.Validation("exchange rate must be positive")
	}
	if in.EffectiveFrom != nil && in.EffectiveTo != nil && !in.EffectiveTo.After(*in.EffectiveFrom) {
		return apperr.Validation("effective_to must be after effective_from")
	}
	return nil
}

// SetExchangeRate activates a new rate for a pair, deactivating the previous one.
func (s *Service) SetExchangeRate(ctx context.Context, actor domain.Actor, in ExchangeRateInput) (*domain.ExchangeRate, error) {
	rates, err := s.ImportExchangeRates(ctx, actor, []ExchangeRateInput{in})
	if err != nil {
		return nil, err
	}
	return &rates[0], nil
}

// ImportExchangeRates activates every rate in one unit of work.
func (s *Service) ImportExchangeRates(ctx context.Context, actor domain.Actor, in []ExchangeRateInput) ([]domain.ExchangeRate, error) {
	if len(in) == 0 {
		return nil, apperr.Validation("no exchange rates to import")
	}
	for _, r := range in {
		if err := validateRate(r); err != nil {
			return nil, err
		}
	}
	out := make([]domain.ExchangeRate, 0, len(in))
	err := s.tx(ctx, "set exchange rates", func(ctx context.Context, repo store.Repository) error {
		for _, r := range in {
			rate := &domain.ExchangeRate{
				FromCurrency:  r.FromCurrency,
				ToCurrency:    r.ToCurrency,
				Rate:          r.Rate,
				Source:        r.Source,
				EffectiveFrom: r.EffectiveFrom,
				EffectiveTo:   r.EffectiveTo,
			}
			if err := repo.SetActiveRate(ctx, rate); err != nil {
				return err
			}
			out = append(out, *rate)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, r := range out {
		if s.cache != nil {
			s.cache.Invalidate(ctx, r.FromCurrency, r.ToCurrency)
		}
		s.logger.Audit(ctx, "exchange_rate.set", "exchange_rate", r.ID,
			"pair", string(r.FromCurrency)+"/"+string(r.ToCurrency),
			"rate", r.Rate.String(),
			"userId", actor.UserID,
		)
	}
	return out, nil
}

func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, from, to domain.Currency) (currency.Conversion, error) {
	return s.rates.Convert(ctx, amount, from, to)
}
