package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

const debtColumns = `
	id,
	pharmacy_id,
	customer_id,
	sale_invoice_id,
	amount,
	paid_amount,
	remaining_amount,
	due_date,
	status,
	payment_method,
	notes,
	created_by,
	created_by_name,
	ip_address,
	session_id,
	created_at,
	updated_at,
	paid_at
`

func scanDebt(row pgx.Row) (domain.CustomerDebt, error) {
	var d domain.CustomerDebt
	err := row.Scan(
		&d.ID,
		&d.PharmacyID,
		&d.CustomerID,
		&d.SaleInvoiceID,
		&d.Amount,
		&d.PaidAmount,
		&d.RemainingAmount,
		&d.DueDate,
		&d.Status,
		&d.PaymentMethod,
		&d.Notes,
		&d.Audit.CreatedBy,
		&d.Audit.CreatedByName,
		&d.Audit.IPAddress,
		&d.Audit.SessionID,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.PaidAt,
	)
	return d, err
}

func (r *Repository) InsertDebt(ctx context.Context, d *domain.CustomerDebt) error {
	if err := r.db.QueryRow(ctx, `
		INSERT INTO customer_debts (
			pharmacy_id,
			customer_id,
			sale_invoice_id,
			amount,
			paid_amount,
			remaining_amount,
			due_date,
			status,
			payment_method,
			notes,
			created_by,
			created_by_name,
			ip_address,
			session_id,
			paid_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at
	`,
		d.PharmacyID, d.CustomerID, d.SaleInvoiceID, d.Amount, d.PaidAmount, d.RemainingAmount,
		d.DueDate, d.Status, d.PaymentMethod, d.Notes, d.Audit.CreatedBy, d.Audit.CreatedByName,
		d.Audit.IPAddress, d.Audit.SessionID, d.PaidAt,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return fmt.Errorf("insert customer debt: %w", err)
	}
	return nil
}

func (r *Repository) GetDebt(ctx context.Context, pharmacyID, debtID int64) (*domain.CustomerDebt, error) {
	d, err := scanDebt(r.db.QueryRow(ctx,
		`SELECT`+debtColumns+`FROM customer_debts WHERE id = $1 AND pharmacy_id = $2`,
		debtID, pharmacyID,
	))
	if err != nil {
		return nil, notFoundOr(err, "get customer debt %d", debtID)
	}
	return &d, nil
}

func (r *Repository) GetDebtForUpdate(ctx context.Context, pharmacyID, debtID int64) (*domain.CustomerDebt, error) {
	d, err := scanDebt(r.db.QueryRow(ctx,
		`SELECT`+debtColumns+`FROM customer_debts WHERE id = $1 AND pharmacy_id = $2 FOR UPDATE`,
		debtID, pharmacyID,
	))
	if err != nil {
		return nil, notFoundOr(err, "lock customer debt %d", debtID)
	}
	return &d, nil
}

func (r *Repository) GetOpenDebtForSaleForUpdate(ctx context.Context, pharmacyID, saleID int64) (*domain.CustomerDebt, error) {
	d, err := scanDebt(r.db.QueryRow(ctx, `
		SELECT`+debtColumns+`
		FROM customer_debts
		WHERE pharmacy_id = $1 AND sale_invoice_id = $2 AND status IN ('ACTIVE', 'OVERDUE')
		ORDER BY id ASC
		LIMIT 1
		FOR UPDATE
	`, pharmacyID, saleID))
	if err != nil {
		return nil, notFoundOr(err, "lock open debt of sale %d", saleID)
	}
	return &d, nil
}

func (r *Repository) UpdateDebt(ctx context.Context, d *domain.CustomerDebt) error {
	err := r.db.QueryRow(ctx, `
		UPDATE customer_debts
		SET
			amount = $2,
			paid_amount = $3,
			remaining_amount = $4,
			due_date = $5,
			status = $6,
			payment_method = $7,
			notes = $8,
			paid_at = $9,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`,
		d.ID, d.Amount, d.PaidAmount, d.RemainingAmount, d.DueDate, d.Status,
		d.PaymentMethod, d.Notes, d.PaidAt,
	).Scan(&d.UpdatedAt)
	if err != nil {
		return notFoundOr(err, "update customer debt %d", d.ID)
	}
	return nil
}

func (r *Repository) ListDebts(ctx context.Context, filter store.DebtFilter) ([]domain.CustomerDebt, error) {
	query := `SELECT` + debtColumns + `FROM customer_debts WHERE pharmacy_id = $1`
	args := []any{filter.PharmacyID}
	idx := 2

	if filter.CustomerID != nil {
		query += fmt.Sprintf(" AND customer_id = $%d", idx)
		args = append(args, *filter.CustomerID)
		idx++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, *filter.Status)
		idx++
	}
	query, args = pageClause(query+" ORDER BY due_date ASC, id ASC", args, idx, filter.Page)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list customer debts: %w", err)
	}
	defer rows.Close()

	debts := make([]domain.CustomerDebt, 0)
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer debt: %w", err)
		}
		debts = append(debts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customer debts: %w", err)
	}
	return debts, nil
}

// MarkOverdueDebts flips ACTIVE debts past their due date to OVERDUE.
// pharmacyID 0 sweeps every pharmacy.
func (r *Repository) MarkOverdueDebts(ctx context.Context, pharmacyID int64, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE customer_debts
		SET status = 'OVERDUE', updated_at = NOW()
		WHERE status = 'ACTIVE'
			AND due_date < $1
			AND ($2::BIGINT = 0 OR pharmacy_id = $2)
	`, now, pharmacyID)
	if err != nil {
		return 0, fmt.Errorf("mark overdue debts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
