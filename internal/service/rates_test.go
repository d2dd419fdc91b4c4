package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wass76/Uqar-sub002/internal/apperr"
	"github.com/Wass76/Uqar-sub002/internal/currency"
	"github.com/Wass76/Uqar-sub002/internal/domain"
)

type invalidations struct{ pairs [][2]domain.Currency }

func (i *invalidations) Invalidate(ctx context.Context, from, to domain.Currency) {
	i.pairs = append(i.pairs, [2]domain.Currency{from, to})
}

func TestImportExchangeRatesActivatesAndInvalidates(t *testing.T) {
	f := newFixture(t)
	cache := &invalidations{}
	f.svc.WithRateInvalidator(cache)

	rates, err := f.svc.ImportExchangeRates(f.ctx, f.actor, []ExchangeRateInput{
		{FromCurrency: domain.CurrencyUSD, ToCurrency: domain.CurrencySYP, Rate: money("15000"), Source: "import"},
		{FromCurrency: domain.CurrencyEUR, ToCurrency: domain.CurrencySYP, Rate: money("16000"), Source: "import"},
	})
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.True(t, rates[0].IsActive)
	assert.Len(t, cache.pairs, 2)

	conv, err := f.svc.Convert(f.ctx, money("32000"), domain.CurrencySYP, domain.CurrencyEUR)
	require.NoError(t, err)
	assert.Equal(t, currency.SourceInverse, conv.Source)
	assertMoney(t, "2", conv.Amount)

	conv, err = f.svc.Convert(f.ctx, money("3"), domain.CurrencyUSD, domain.CurrencySYP)
	require.NoError(t, err)
	assertMoney(t, "45000", conv.Amount)
}

func TestExchangeRateValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]ExchangeRateInput{
		"same currency": {FromCurrency: domain.CurrencyUSD, ToCurrency: domain.CurrencyUSD, Rate: money("1")},
		"unknown":       {FromCurrency: "GBP", ToCurrency: domain.CurrencySYP, Rate: money("1")},
		"zero rate":     {FromCurrency: domain.CurrencyUSD, ToCurrency: domain.CurrencySYP, Rate: money("0")},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.SetExchangeRate(f.ctx, f.actor, in)
			assertCode(t, err, apperr.CodeValidation)
		})
	}

	_, err := f.svc.ImportExchangeRates(f.ctx, f.actor, nil)
	assertCode(t, err, apperr.CodeValidation)

	// One bad row rejects the whole batch.
	_, err = f.svc.ImportExchangeRates(f.ctx, f.actor, []ExchangeRateInput{
		{FromCurrency: domain.CurrencyUSD, ToCurrency: domain.CurrencySYP, Rate: money("15000")},
		{FromCurrency: domain.CurrencyEUR, ToCurrency: domain.CurrencySYP, Rate: money("-1")},
	})
	assertCode(t, err, apperr.CodeValidation)
	_, err = f.svc.Convert(f.ctx, money("1"), domain.CurrencyUSD, domain.CurrencySYP)
	assertCode(t, err, apperr.CodeRateUnavailable)
}
