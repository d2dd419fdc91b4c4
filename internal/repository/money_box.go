package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

const moneyBoxColumns = `
	id,
	pharmacy_id,
	currency,
	initial_balance,
	current_balance,
	created_at,
	updated_at
`

const moneyBoxTxnColumns = `
	id,
	money_box_id,
	pharmacy_id,
	transaction_type,
	amount,
	balance_before,
	balance_after,
	original_currency,
	original_amount,
	converted_currency,
	converted_amount,
	exchange_rate,
	reference_id,
	reference_type,
	description,
	created_by,
	created_by_name,
	ip_address,
	session_id,
	created_at
`

func scanMoneyBox(row pgx.Row) (*domain.MoneyBox, error) {
	var box domain.MoneyBox
	if err := row.Scan(
		&box.ID,
		&box.PharmacyID,
		&box.Currency,
		&box.InitialBalance,
		&box.CurrentBalance,
		&box.CreatedAt,
		&box.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &box, nil
}

func scanMoneyBoxTxn(row pgx.Row) (domain.MoneyBoxTransaction, error) {
	var t domain.MoneyBoxTransaction
	err := row.Scan(
		&t.ID,
		&t.MoneyBoxID,
		&t.PharmacyID,
		&t.Type,
		&t.Amount,
		&t.BalanceBefore,
		&t.BalanceAfter,
		&t.OriginalCurrency,
		&t.OriginalAmount,
		&t.ConvertedCurrency,
		&t.ConvertedAmount,
		&t.ExchangeRate,
		&t.ReferenceID,
		&t.ReferenceType,
		&t.Description,
		&t.Audit.CreatedBy,
		&t.Audit.CreatedByName,
		&t.Audit.IPAddress,
		&t.Audit.SessionID,
		&t.CreatedAt,
	)
	return t, err
}

func (r *Repository) GetMoneyBox(ctx context.Context, pharmacyID int64) (*domain.MoneyBox, error) {
	box, err := scanMoneyBox(r.db.QueryRow(ctx,
		`SELECT`+moneyBoxColumns+`FROM money_boxes WHERE pharmacy_id = $1`,
		pharmacyID,
	))
	if err != nil {
		return nil, notFoundOr(err, "get money box of pharmacy %d", pharmacyID)
	}
	return box, nil
}

// EnsureMoneyBoxForUpdate creates the pharmacy's box on first use and returns
// it locked. Concurrent first writers race on the unique pharmacy_id and both
// end up locking the same row.
func (r *Repository) EnsureMoneyBoxForUpdate(ctx context.Context, pharmacyID int64, currency domain.Currency) (*domain.MoneyBox, error) {
	if _, err := r.db.Exec(ctx, `
		INSERT INTO money_boxes (pharmacy_id, currency)
		VALUES ($1, $2)
		ON CONFLICT (pharmacy_id) DO NOTHING
	`, pharmacyID, currency); err != nil {
		return nil, fmt.Errorf("create money box of pharmacy %d: %w", pharmacyID, err)
	}

	box, err := scanMoneyBox(r.db.QueryRow(ctx,
		`SELECT`+moneyBoxColumns+`FROM money_boxes WHERE pharmacy_id = $1 FOR UPDATE`,
		pharmacyID,
	))
	if err != nil {
		return nil, notFoundOr(err, "lock money box of pharmacy %d", pharmacyID)
	}
	return box, nil
}

func (r *Repository) UpdateMoneyBox(ctx context.Context, box *domain.MoneyBox) error {
	err := r.db.QueryRow(ctx, `
		UPDATE money_boxes
		SET initial_balance = $2, current_balance = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, box.ID, box.InitialBalance, box.CurrentBalance).Scan(&box.UpdatedAt)
	if err != nil {
		return notFoundOr(err, "update money box %d", box.ID)
	}
	return nil
}

func (r *Repository) InsertMoneyBoxTransaction(ctx context.Context, t *domain.MoneyBoxTransaction) error {
	if err := r.db.QueryRow(ctx, `
		INSERT INTO money_box_transactions (
			money_box_id,
			pharmacy_id,
			transaction_type,
			amount,
			balance_before,
			balance_after,
			original_currency,
			original_amount,
			converted_currency,
			converted_amount,
			exchange_rate,
			reference_id,
			reference_type,
			description,
			created_by,
			created_by_name,
			ip_address,
			session_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, created_at
	`,
		t.MoneyBoxID, t.PharmacyID, t.Type, t.Amount, t.BalanceBefore, t.BalanceAfter,
		t.OriginalCurrency, t.OriginalAmount, t.ConvertedCurrency, t.ConvertedAmount,
		t.ExchangeRate, t.ReferenceID, t.ReferenceType, t.Description,
		t.Audit.CreatedBy, t.Audit.CreatedByName, t.Audit.IPAddress, t.Audit.SessionID,
	).Scan(&t.ID, &t.CreatedAt); err != nil {
		return fmt.Errorf("insert money box transaction: %w", err)
	}
	return nil
}

func (r *Repository) LastMoneyBoxTransaction(ctx context.Context, moneyBoxID int64) (*domain.MoneyBoxTransaction, error) {
	t, err := scanMoneyBoxTxn(r.db.QueryRow(ctx,
		`SELECT`+moneyBoxTxnColumns+`FROM money_box_transactions WHERE money_box_id = $1 ORDER BY id DESC LIMIT 1`,
		moneyBoxID,
	))
	if err != nil {
		return nil, notFoundOr(err, "get last transaction of money box %d", moneyBoxID)
	}
	return &t, nil
}

func (r *Repository) CountMoneyBoxTransactions(ctx context.Context, moneyBoxID int64) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM money_box_transactions WHERE money_box_id = $1",
		moneyBoxID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions of money box %d: %w", moneyBoxID, err)
	}
	return n, nil
}

func (r *Repository) ListMoneyBoxTransactions(ctx context.Context, filter store.TransactionFilter) ([]domain.MoneyBoxTransaction, error) {
	query := `SELECT` + moneyBoxTxnColumns + `FROM money_box_transactions WHERE pharmacy_id = $1`
	args := []any{filter.PharmacyID}
	idx := 2

	if filter.Type != nil {
		query += fmt.Sprintf(" AND transaction_type = $%d", idx)
		args = append(args, *filter.Type)
		idx++
	}
	if filter.From != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, *filter.From)
		idx++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND created_at < $%d", idx)
		args = append(args, *filter.To)
		idx++
	}
	query += " ORDER BY id ASC"
	if !filter.All {
		query, args = pageClause(query, args, idx, filter.Page)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list money box transactions: %w", err)
	}
	defer rows.Close()

	txns := make([]domain.MoneyBoxTransaction, 0)
	for rows.Next() {
		t, err := scanMoneyBoxTxn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan money box transaction: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate money box transactions: %w", err)
	}
	return txns, nil
}
