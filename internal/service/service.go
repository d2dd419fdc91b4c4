package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Wass76/Uqar-sub002/internal/apperr"
	"github.com/Wass76/Uqar-sub002/internal/currency"
	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/logging"
	"github.com/Wass76/Uqar-sub002/internal/metrics"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

type Options struct {
	BaseCurrency      domain.Currency
	DefaultDebtTerm   time.Duration
	PartialSaleMarkup decimal.Decimal
}

func DefaultOptions() Options {
	return Options{
		BaseCurrency:      domain.CurrencySYP,
		DefaultDebtTerm:   30 * 24 * time.Hour,
		PartialSaleMarkup: decimal.RequireFromString("1.20"),
	}
}

// RateInvalidator drops cached rates after a rate change.
type RateInvalidator interface {
	Invalidate(ctx context.Context, from, to domain.Currency)
}

type Service struct {
	store   store.Store
	rates   *currency.Converter
	cache   RateInvalidator
	opts    Options
	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(st store.Store, rates *currency.Converter, opts Options, logger *logging.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	if !opts.BaseCurrency.Valid() {
		opts.BaseCurrency = domain.CurrencySYP
	}
	if opts.DefaultDebtTerm <= 0 {
		opts.DefaultDebtTerm = DefaultOptions().DefaultDebtTerm
	}
	if !opts.PartialSaleMarkup.IsPositive() {
		opts.PartialSaleMarkup = DefaultOptions().PartialSaleMarkup
	}
	return &Service{
		store:   st,
		rates:   rates,
		opts:    opts,
		logger:  logger.WithComponent("settlement"),
		metrics: m,
		now:     time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithRateInvalidator(cache RateInvalidator) *Service {
	s.cache = cache
	return s
}

func (s *Service) BaseCurrency() domain.Currency { return s.opts.BaseCurrency }

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// tx runs fn in a unit of work and maps storage failures to dependency errors.
func (s *Service) tx(ctx context.Context, op string, fn func(ctx context.Context, repo store.Repository) error) error {
	err := s.store.WithinTx(ctx, fn)
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Persistence(op, err)
}

func (s *Service) view(ctx context.Context, op string, fn func(ctx context.Context, repo store.Repository) error) error {
	err := s.store.View(ctx, fn)
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Persistence(op, err)
}

// observe records operation metrics; call it deferred with a pointer to the
// operation's named error.
func (s *Service) observe(operation string, started time.Time, errp *error) {
	code := ""
	if errp != nil && *errp != nil {
		code = apperr.From(*errp).Code
	}
	s.metrics.ObserveOperation(operation, started, code)
}

func notFound(err error, resource string, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(resource, id)
	}
	return err
}

func requireActor(actor domain.Actor) error {
	if actor.PharmacyID <= 0 {
		return apperr.Validation("pharmacy id is required")
	}
	return nil
}

// toBase converts an invoice-currency amount with the invoice's frozen rate.
func (s *Service) toBase(inv *domain.SaleInvoice, amount decimal.Decimal) decimal.Decimal {
	if inv.Currency == s.opts.BaseCurrency || inv.ExchangeRate.IsZero() {
		return domain.RoundMoney(amount)
	}
	return domain.RoundMoney(amount.Mul(inv.ExchangeRate))
}

func (s *Service) fromBase(inv *domain.SaleInvoice, amount decimal.Decimal) decimal.Decimal {
	if inv.Currency == s.opts.BaseCurrency || inv.ExchangeRate.IsZero() {
		return domain.RoundMoney(amount)
	}
	return domain.RoundMoney(amount.Div(inv.ExchangeRate))
}

func documentNumber(prefix string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%s", prefix, at.Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}
