//go:build integration

package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/Wass76/Uqar-sub002/internal/apperr"
	"github.com/Wass76/Uqar-sub002/internal/currency"
	"github.com/Wass76/Uqar-sub002/internal/db"
	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/logging"
	"github.com/Wass76/Uqar-sub002/internal/metrics"
	"github.com/Wass76/Uqar-sub002/internal/service"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

type PostgresStoreSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	pool      *pgxpool.Pool
	store     *Store
	svc       *service.Service
	actor     domain.Actor
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx, "postgres:16-alpine",
		postgres.WithDatabase("settlement"),
		postgres.WithUsername("settlement"),
		postgres.WithPassword("settlement"),
		postgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	pool, err := db.NewPool(s.ctx, dsn, db.PoolOptions{MaxConns: 8})
	s.Require().NoError(err)
	s.pool = pool

	applied, err := db.RunMigrations(s.ctx, pool, logging.Nop())
	s.Require().NoError(err)
	s.Require().Positive(applied)

	again, err := db.RunMigrations(s.ctx, pool, logging.Nop())
	s.Require().NoError(err)
	s.Require().Zero(again)

	s.store = New(pool)
	conv := currency.NewConverter(currency.StoreRates{Store: s.store})
	s.svc = service.New(s.store, conv, service.DefaultOptions(), logging.Nop(), metrics.New())
	s.actor = domain.Actor{PharmacyID: 1, UserID: 3, Username: "pharmacist", SessionID: "it"}
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(s.ctx))
	}
}

func (s *PostgresStoreSuite) stock(productID int64, price string, partsPerBox, qty int) *domain.StockItem {
	return s.stockFor(s.actor, productID, price, partsPerBox, qty)
}

func (s *PostgresStoreSuite) stockFor(actor domain.Actor, productID int64, price string, partsPerBox, qty int) *domain.StockItem {
	_, err := s.svc.RegisterProduct(s.ctx, service.ProductInput{
		ID:           productID,
		Type:         domain.ProductPharmacy,
		Name:         "paracetamol",
		SellingPrice: decimal.RequireFromString(price),
		PartsPerBox:  partsPerBox,
	})
	s.Require().NoError(err)
	item, err := s.svc.ReceiveStock(s.ctx, actor, service.StockItemInput{
		ProductID:     productID,
		ProductType:   domain.ProductPharmacy,
		Quantity:      qty,
		PurchasePrice: decimal.RequireFromString("400"),
	})
	s.Require().NoError(err)
	return item
}

func (s *PostgresStoreSuite) TestCashSaleAndRefundRoundTrip() {
	item := s.stock(101, "1000", 10, 5)

	inv, err := s.svc.CreateSale(s.ctx, s.actor, service.CreateSaleInput{
		PaymentType:   domain.PaymentTypeCash,
		PaymentMethod: domain.PaymentMethodCash,
		Items: []service.SaleItemInput{
			{StockItemID: item.ID, Quantity: 2},
			{StockItemID: item.ID, Parts: 4},
		},
	})
	s.Require().NoError(err)
	s.Require().Len(inv.Items, 2)

	loaded, err := s.svc.GetSale(s.ctx, s.actor, inv.ID)
	s.Require().NoError(err)
	s.Equal(inv.InvoiceNumber, loaded.InvoiceNumber)
	s.True(inv.TotalAmount.Equal(loaded.TotalAmount))
	s.Require().Len(loaded.Items, 2)
	s.NotNil(loaded.Items[1].PartsSold)

	after, err := s.svc.GetStockItem(s.ctx, s.actor, item.ID)
	s.Require().NoError(err)
	s.Equal(2, after.Quantity)
	s.Equal(6, after.LooseParts)

	refund, err := s.svc.CreateRefund(s.ctx, s.actor, inv.ID, service.RefundInput{
		Reason: "damaged",
		Items:  []service.RefundItemInput{{ItemID: loaded.Items[0].ID, Quantity: 1}},
	})
	s.Require().NoError(err)
	s.Require().Len(refund.Items, 1)
	s.True(refund.Items[0].StockRestored)

	restored, err := s.svc.RestoreRefundLineStock(s.ctx, s.actor, refund.Items[0].ID)
	s.Require().NoError(err)
	s.False(restored)

	refunds, err := s.svc.ListRefunds(s.ctx, s.actor, store.RefundFilter{SaleInvoiceID: &inv.ID})
	s.Require().NoError(err)
	s.Require().Len(refunds, 1)
	s.Equal(refund.RefundNumber, refunds[0].RefundNumber)

	rec, err := s.svc.Reconcile(s.ctx, s.actor)
	s.Require().NoError(err)
	s.True(rec.Balanced)
}

func (s *PostgresStoreSuite) TestCreditSaleDebtLifecycle() {
	item := s.stock(202, "2000", 1, 3)
	customer := int64(55)
	due := time.Now().Add(72 * time.Hour)

	inv, err := s.svc.CreateSale(s.ctx, s.actor, service.CreateSaleInput{
		CustomerID:    &customer,
		PaymentType:   domain.PaymentTypeCredit,
		PaymentMethod: domain.PaymentMethodCash,
		DebtDueDate:   &due,
		Items:         []service.SaleItemInput{{StockItemID: item.ID, Quantity: 1}},
	})
	s.Require().NoError(err)

	debts, err := s.svc.ListDebts(s.ctx, s.actor, store.DebtFilter{CustomerID: &customer})
	s.Require().NoError(err)
	s.Require().Len(debts, 1)
	s.Equal(inv.ID, *debts[0].SaleInvoiceID)
	s.Equal(domain.DebtActive, debts[0].Status)

	paid, err := s.svc.ApplyDebtPayment(s.ctx, s.actor, debts[0].ID, service.DebtPaymentInput{
		Amount:        decimal.RequireFromString("2000"),
		PaymentMethod: domain.PaymentMethodCash,
	})
	s.Require().NoError(err)
	s.Equal(domain.DebtPaid, paid.Status)
	s.NotNil(paid.PaidAt)

	summary, err := s.svc.CustomerDebtSummary(s.ctx, s.actor, customer)
	s.Require().NoError(err)
	s.True(summary.RemainingAmount.IsZero())
}

func (s *PostgresStoreSuite) TestActiveRateReplacement() {
	_, err := s.svc.SetExchangeRate(s.ctx, s.actor, service.ExchangeRateInput{
		FromCurrency: domain.CurrencyUSD,
		ToCurrency:   domain.CurrencySYP,
		Rate:         decimal.RequireFromString("14000"),
	})
	s.Require().NoError(err)
	second, err := s.svc.SetExchangeRate(s.ctx, s.actor, service.ExchangeRateInput{
		FromCurrency: domain.CurrencyUSD,
		ToCurrency:   domain.CurrencySYP,
		Rate:         decimal.RequireFromString("15000"),
	})
	s.Require().NoError(err)

	var active *domain.ExchangeRate
	err = s.store.View(s.ctx, func(ctx context.Context, repo store.Repository) error {
		active, err = repo.GetActiveRate(ctx, domain.CurrencyUSD, domain.CurrencySYP, time.Now())
		return err
	})
	s.Require().NoError(err)
	s.Equal(second.ID, active.ID)

	conv, err := s.svc.Convert(s.ctx, decimal.RequireFromString("30000"), domain.CurrencySYP, domain.CurrencyUSD)
	s.Require().NoError(err)
	s.True(conv.Amount.Equal(decimal.RequireFromString("2")), conv.Amount.String())
}

func (s *PostgresStoreSuite) TestParallelSalesNeverOversellStock() {
	actor := domain.Actor{PharmacyID: 21, UserID: 3, Username: "pharmacist"}
	item := s.stockFor(actor, 303, "1000", 1, 3)

	const buyers = 8
	errs := make([]error, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.svc.CreateSale(s.ctx, actor, service.CreateSaleInput{
				PaymentType:   domain.PaymentTypeCash,
				PaymentMethod: domain.PaymentMethodCash,
				Items:         []service.SaleItemInput{{StockItemID: item.ID, Quantity: 1}},
			})
		}(i)
	}
	wg.Wait()

	sold := 0
	for _, err := range errs {
		if err == nil {
			sold++
			continue
		}
		s.Equal(apperr.CodeInsufficientStock, apperr.From(err).Code, err.Error())
	}
	s.Equal(3, sold)

	after, err := s.svc.GetStockItem(s.ctx, actor, item.ID)
	s.Require().NoError(err)
	s.Equal(0, after.Quantity)

	box, err := s.svc.MoneyBox(s.ctx, actor)
	s.Require().NoError(err)
	s.True(box.CurrentBalance.Equal(decimal.RequireFromString("3000")), box.CurrentBalance.String())

	rec, err := s.svc.Reconcile(s.ctx, actor)
	s.Require().NoError(err)
	s.True(rec.Balanced)
	s.Equal(3, rec.TransactionCount)
}

func (s *PostgresStoreSuite) TestParallelSalesAndRefundsKeepLedgerBalanced() {
	actor := domain.Actor{PharmacyID: 22, UserID: 3, Username: "pharmacist"}
	item := s.stockFor(actor, 404, "1000", 10, 40)
	sale := service.CreateSaleInput{
		PaymentType:   domain.PaymentTypeCash,
		PaymentMethod: domain.PaymentMethodCash,
		Items: []service.SaleItemInput{
			{StockItemID: item.ID, Quantity: 1},
			{StockItemID: item.ID, Parts: 3},
		},
	}

	const workers = 6
	earlier := make([]*domain.SaleInvoice, workers)
	for i := range earlier {
		inv, err := s.svc.CreateSale(s.ctx, actor, sale)
		s.Require().NoError(err)
		earlier[i] = inv
	}

	errs := make([]error, 2*workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.svc.CreateSale(s.ctx, actor, sale)
		}(i)
		go func(i int) {
			defer wg.Done()
			inv := earlier[i]
			_, errs[workers+i] = s.svc.CreateRefund(s.ctx, actor, inv.ID, service.RefundInput{
				Reason: "returned",
				Items: []service.RefundItemInput{
					{ItemID: inv.Items[0].ID, Quantity: 1},
					{ItemID: inv.Items[1].ID, Quantity: 2},
				},
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		s.Require().NoError(err)
	}

	rec, err := s.svc.Reconcile(s.ctx, actor)
	s.Require().NoError(err)
	s.True(rec.Balanced, "stored=%s replayed=%s", rec.StoredBalance, rec.ReplayedBalance)
	// One entry per sale plus one per refund.
	s.Equal(2*workers+workers, rec.TransactionCount)

	refunds, err := s.svc.ListRefunds(s.ctx, actor, store.RefundFilter{})
	s.Require().NoError(err)
	s.Len(refunds, workers)
}

func (s *PostgresStoreSuite) TestOverdraftRollsBack() {
	actor := domain.Actor{PharmacyID: 9, UserID: 1}
	_, err := s.svc.Deposit(s.ctx, actor, service.CashMovementInput{Amount: decimal.RequireFromString("100")})
	s.Require().NoError(err)

	_, err = s.svc.Withdraw(s.ctx, actor, service.CashMovementInput{Amount: decimal.RequireFromString("150")})
	s.Require().Error(err)
	s.Equal(apperr.CodeInsufficientCash, apperr.From(err).Code)

	box, err := s.svc.MoneyBox(s.ctx, actor)
	s.Require().NoError(err)
	s.True(box.CurrentBalance.Equal(decimal.RequireFromString("100")))

	n := 0
	err = s.store.View(s.ctx, func(ctx context.Context, repo store.Repository) error {
		n, err = repo.CountMoneyBoxTransactions(ctx, box.ID)
		return err
	})
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *PostgresStoreSuite) TestMissingRowsMapToNotFound() {
	err := s.store.View(s.ctx, func(ctx context.Context, repo store.Repository) error {
		_, err := repo.GetSale(ctx, s.actor.PharmacyID, 999999)
		return err
	})
	s.ErrorIs(err, store.ErrNotFound)

	marked, err := s.svc.MarkOverdueDebts(s.ctx, 0)
	s.Require().NoError(err)
	s.GreaterOrEqual(marked, 0)
}
