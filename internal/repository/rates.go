package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Wass76/Uqar-sub002/internal/domain"
)

func (r *Repository) GetActiveRate(ctx context.Context, from, to domain.Currency, at time.Time) (*domain.ExchangeRate, error) {
	var rate domain.ExchangeRate
	err := r.db.QueryRow(ctx, `
		SELECT
			id,
			from_currency,
			to_currency,
			rate,
			source,
			is_active,
			effective_from,
			effective_to,
			created_at
		FROM exchange_rates
		WHERE from_currency = $1
			AND to_currency = $2
			AND is_active
			AND (effective_from IS NULL OR effective_from <= $3)
			AND (effective_to IS NULL OR effective_to > $3)
		ORDER BY id DESC
		LIMIT 1
	`, from, to, at).Scan(
		&rate.ID,
		&rate.FromCurrency,
		&rate.ToCurrency,
		&rate.Rate,
		&rate.Source,
		&rate.IsActive,
		&rate.EffectiveFrom,
		&rate.EffectiveTo,
		&rate.CreatedAt,
	)
	if err != nil {
		return nil, notFoundOr(err, "get active rate %s/%s", from, to)
	}
	return &rate, nil
}

// SetActiveRate deactivates the pair's current rate and inserts rate as the
// active one.
func (r *Repository) SetActiveRate(ctx context.Context, rate *domain.ExchangeRate) error {
	if _, err := r.db.Exec(ctx, `
		UPDATE exchange_rates
		SET is_active = FALSE
		WHERE from_currency = $1 AND to_currency = $2 AND is_active
	`, rate.FromCurrency, rate.ToCurrency); err != nil {
		return fmt.Errorf("deactivate rate %s/%s: %w", rate.FromCurrency, rate.ToCurrency, err)
	}

	rate.IsActive = true
	if err := r.db.QueryRow(ctx, `
		INSERT INTO exchange_rates (
			from_currency,
			to_currency,
			rate,
			source,
			is_active,
			effective_from,
			effective_to
		)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6)
		RETURNING id, created_at
	`,
		rate.FromCurrency, rate.ToCurrency, rate.Rate, rate.Source,
		rate.EffectiveFrom, rate.EffectiveTo,
	).Scan(&rate.ID, &rate.CreatedAt); err != nil {
		return fmt.Errorf("insert rate %s/%s: %w", rate.FromCurrency, rate.ToCurrency, err)
	}
	return nil
}
