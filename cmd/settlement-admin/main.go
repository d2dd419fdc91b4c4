// Command settlement-admin runs maintenance jobs against the settlement
// store: the overdue debt sweep, money box reconciliation and bulk imports of
// exchange rate and stock sheets.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Wass76/Uqar-sub002/internal/app"
	"github.com/Wass76/Uqar-sub002/internal/config"
	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/excel"
	"github.com/Wass76/Uqar-sub002/internal/service"
)

var version = "dev"

type options struct {
	pharmacyID   int64
	userID       int64
	username     string
	sweepOverdue bool
	reconcile    bool
	ratesPath    string
	stockPath    string
	timeout      time.Duration
}

func main() {
	opts := parseFlags()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := app.NewLogger(cfg, "settlement-admin", version)

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	svc, closeApp, err := app.Open(ctx, cfg, logger, nil)
	if err != nil {
		closeApp()
		log.Fatalf("startup error: %v", err)
	}
	defer closeApp()

	if err := run(ctx, svc, opts); err != nil {
		closeApp()
		log.Fatalf("%v", err)
	}
}

func parseFlags() options {
	var opts options
	flag.Int64Var(&opts.pharmacyID, "pharmacy", 0, "pharmacy id to act for (0 sweeps every pharmacy)")
	flag.Int64Var(&opts.userID, "user", 0, "user id recorded on imported rows")
	flag.StringVar(&opts.username, "username", "settlement-admin", "username recorded on imported rows")
	flag.BoolVar(&opts.sweepOverdue, "sweep-overdue", false, "mark active debts past their due date as overdue")
	flag.BoolVar(&opts.reconcile, "reconcile", false, "replay the money box ledger of -pharmacy and report drift")
	flag.StringVar(&opts.ratesPath, "rates", "", "exchange rate sheet (.xlsx or .csv) to import")
	flag.StringVar(&opts.stockPath, "stock", "", "goods-received sheet (.xlsx or .csv) to import for -pharmacy")
	flag.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "overall deadline for the run")
	flag.Parse()

	if !opts.sweepOverdue && !opts.reconcile && opts.ratesPath == "" && opts.stockPath == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -sweep-overdue, -reconcile, -rates or -stock")
		flag.Usage()
		os.Exit(2)
	}
	needsActor := opts.reconcile || opts.ratesPath != "" || opts.stockPath != ""
	if needsActor && (opts.pharmacyID <= 0 || opts.userID <= 0) {
		log.Fatalf("-pharmacy and -user are required for -reconcile, -rates and -stock")
	}
	return opts
}

func run(ctx context.Context, svc *service.Service, opts options) error {
	actor := domain.Actor{PharmacyID: opts.pharmacyID, UserID: opts.userID, Username: opts.username}

	if opts.ratesPath != "" {
		n, err := importRates(ctx, svc, actor, opts.ratesPath)
		if err != nil {
			return fmt.Errorf("import rates: %w", err)
		}
		log.Printf("exchange rates imported: file=%s rows=%d", opts.ratesPath, n)
	}

	if opts.stockPath != "" {
		n, err := importStock(ctx, svc, actor, opts.stockPath)
		if err != nil {
			return fmt.Errorf("import stock: %w", err)
		}
		log.Printf("stock imported: file=%s pharmacy=%d lines=%d", opts.stockPath, opts.pharmacyID, n)
	}

	if opts.sweepOverdue {
		marked, err := svc.MarkOverdueDebts(ctx, opts.pharmacyID)
		if err != nil {
			return fmt.Errorf("overdue sweep: %w", err)
		}
		log.Printf("overdue sweep complete: pharmacy=%d marked=%d", opts.pharmacyID, marked)
	}

	if opts.reconcile {
		rec, err := svc.Reconcile(ctx, actor)
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		log.Printf(
			"reconcile: pharmacy=%d stored=%s replayed=%s transactions=%d balanced=%t",
			opts.pharmacyID,
			rec.StoredBalance,
			rec.ReplayedBalance,
			rec.TransactionCount,
			rec.Balanced,
		)
		if !rec.Balanced {
			return fmt.Errorf("money box of pharmacy %d is out of balance", opts.pharmacyID)
		}
	}
	return nil
}

func importRates(ctx context.Context, svc *service.Service, actor domain.Actor, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	rows, err := excel.ParseExchangeRates(path, f)
	if err != nil {
		return 0, err
	}
	inputs := make([]service.ExchangeRateInput, 0, len(rows))
	for _, row := range rows {
		inputs = append(inputs, service.ExchangeRateInput{
			FromCurrency:  row.FromCurrency,
			ToCurrency:    row.ToCurrency,
			Rate:          row.Rate,
			Source:        row.Source,
			EffectiveFrom: row.EffectiveFrom,
			EffectiveTo:   row.EffectiveTo,
		})
	}
	rates, err := svc.ImportExchangeRates(ctx, actor, inputs)
	if err != nil {
		return 0, err
	}
	return len(rates), nil
}

func importStock(ctx context.Context, svc *service.Service, actor domain.Actor, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	rows, err := excel.ParseStockRows(path, f)
	if err != nil {
		return 0, err
	}
	inputs := make([]service.StockItemInput, 0, len(rows))
	for _, row := range rows {
		inputs = append(inputs, service.StockItemInput{
			ProductID:     row.ProductID,
			ProductType:   row.ProductType,
			Quantity:      row.Quantity,
			LooseParts:    row.LooseParts,
			PurchasePrice: row.PurchasePrice,
			BatchNumber:   row.BatchNumber,
			ExpiryDate:    row.ExpiryDate,
		})
	}
	items, err := svc.ImportStock(ctx, actor, inputs)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
