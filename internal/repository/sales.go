package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

const saleColumns = `
	id,
	pharmacy_id,
	customer_id,
	invoice_number,
	invoice_date,
	currency,
	exchange_rate,
	rate_source,
	rate_timestamp,
	exchange_rate_id,
	rate_provider,
	payment_type,
	payment_method,
	discount_type,
	discount_value,
	gross_amount,
	discount_amount,
	total_amount,
	paid_amount,
	remaining_amount,
	refunded_amount,
	status,
	payment_status,
	refund_status,
	debt_due_date,
	created_by,
	created_by_name,
	ip_address,
	session_id,
	created_at,
	updated_at
`

func scanSale(row pgx.Row) (domain.SaleInvoice, error) {
	var inv domain.SaleInvoice
	err := row.Scan(
		&inv.ID,
		&inv.PharmacyID,
		&inv.CustomerID,
		&inv.InvoiceNumber,
		&inv.InvoiceDate,
		&inv.Currency,
		&inv.ExchangeRate,
		&inv.RateSource,
		&inv.RateTimestamp,
		&inv.ExchangeRateID,
		&inv.RateProvider,
		&inv.PaymentType,
		&inv.PaymentMethod,
		&inv.DiscountType,
		&inv.DiscountValue,
		&inv.GrossAmount,
		&inv.DiscountAmount,
		&inv.TotalAmount,
		&inv.PaidAmount,
		&inv.RemainingAmount,
		&inv.RefundedAmount,
		&inv.Status,
		&inv.PaymentStatus,
		&inv.RefundStatus,
		&inv.DebtDueDate,
		&inv.Audit.CreatedBy,
		&inv.Audit.CreatedByName,
		&inv.Audit.IPAddress,
		&inv.Audit.SessionID,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	return inv, err
}

func (r *Repository) InsertSale(ctx context.Context, inv *domain.SaleInvoice) error {
	if err := r.db.QueryRow(ctx, `
		INSERT INTO sale_invoices (
			pharmacy_id,
			customer_id,
			invoice_number,
			invoice_date,
			currency,
			exchange_rate,
			rate_source,
			rate_timestamp,
			exchange_rate_id,
			rate_provider,
			payment_type,
			payment_method,
			discount_type,
			discount_value,
			gross_amount,
			discount_amount,
			total_amount,
			paid_amount,
			remaining_amount,
			refunded_amount,
			status,
			payment_status,
			refund_status,
			debt_due_date,
			created_by,
			created_by_name,
			ip_address,
			session_id
		)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28
		)
		RETURNING id, created_at, updated_at
	`,
		inv.PharmacyID, inv.CustomerID, inv.InvoiceNumber, inv.InvoiceDate, inv.Currency,
		inv.ExchangeRate, inv.RateSource, inv.RateTimestamp, inv.ExchangeRateID, inv.RateProvider,
		inv.PaymentType, inv.PaymentMethod,
		inv.DiscountType, inv.DiscountValue, inv.GrossAmount, inv.DiscountAmount, inv.TotalAmount,
		inv.PaidAmount, inv.RemainingAmount, inv.RefundedAmount, inv.Status, inv.PaymentStatus,
		inv.RefundStatus, inv.DebtDueDate, inv.Audit.CreatedBy, inv.Audit.CreatedByName,
		inv.Audit.IPAddress, inv.Audit.SessionID,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return fmt.Errorf("insert sale invoice: %w", err)
	}

	for i := range inv.Items {
		item := &inv.Items[i]
		item.SaleInvoiceID = inv.ID
		if err := r.db.QueryRow(ctx, `
			INSERT INTO sale_invoice_items (
				sale_invoice_id,
				stock_item_id,
				product_id,
				product_type,
				product_name,
				quantity,
				parts_sold,
				boxes_opened,
				unit_price,
				price_source,
				subtotal,
				refunded_quantity
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id
		`,
			item.SaleInvoiceID, item.StockItemID, item.ProductID, item.ProductType, item.ProductName,
			item.Quantity, item.PartsSold, item.BoxesOpened, item.UnitPrice, item.PriceSource,
			item.Subtotal, item.RefundedQuantity,
		).Scan(&item.ID); err != nil {
			return fmt.Errorf("insert sale invoice item: %w", err)
		}
	}
	return nil
}

func (r *Repository) GetSale(ctx context.Context, pharmacyID, saleID int64) (*domain.SaleInvoice, error) {
	return r.getSale(ctx, pharmacyID, saleID, "")
}

// GetSaleForUpdate locks the invoice row. Its items are only written while
// the invoice is locked, so they are read without a lock of their own.
func (r *Repository) GetSaleForUpdate(ctx context.Context, pharmacyID, saleID int64) (*domain.SaleInvoice, error) {
	return r.getSale(ctx, pharmacyID, saleID, " FOR UPDATE")
}

func (r *Repository) getSale(ctx context.Context, pharmacyID, saleID int64, lock string) (*domain.SaleInvoice, error) {
	inv, err := scanSale(r.db.QueryRow(ctx,
		`SELECT`+saleColumns+`FROM sale_invoices WHERE id = $1 AND pharmacy_id = $2`+lock,
		saleID, pharmacyID,
	))
	if err != nil {
		return nil, notFoundOr(err, "get sale invoice %d", saleID)
	}
	items, err := r.saleItems(ctx, []int64{inv.ID})
	if err != nil {
		return nil, err
	}
	inv.Items = items[inv.ID]
	return &inv, nil
}

func (r *Repository) saleItems(ctx context.Context, invoiceIDs []int64) (map[int64][]domain.SaleInvoiceItem, error) {
	out := make(map[int64][]domain.SaleInvoiceItem, len(invoiceIDs))
	if len(invoiceIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT
			id,
			sale_invoice_id,
			stock_item_id,
			product_id,
			product_type,
			product_name,
			quantity,
			parts_sold,
			boxes_opened,
			unit_price,
			price_source,
			subtotal,
			refunded_quantity
		FROM sale_invoice_items
		WHERE sale_invoice_id = ANY($1)
		ORDER BY id ASC
	`, invoiceIDs)
	if err != nil {
		return nil, fmt.Errorf("get sale invoice items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.SaleInvoiceItem
		if err := rows.Scan(
			&item.ID,
			&item.SaleInvoiceID,
			&item.StockItemID,
			&item.ProductID,
			&item.ProductType,
			&item.ProductName,
			&item.Quantity,
			&item.PartsSold,
			&item.BoxesOpened,
			&item.UnitPrice,
			&item.PriceSource,
			&item.Subtotal,
			&item.RefundedQuantity,
		); err != nil {
			return nil, fmt.Errorf("scan sale invoice item: %w", err)
		}
		out[item.SaleInvoiceID] = append(out[item.SaleInvoiceID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale invoice items: %w", err)
	}
	return out, nil
}

func (r *Repository) UpdateSaleSettlement(ctx context.Context, inv *domain.SaleInvoice) error {
	err := r.db.QueryRow(ctx, `
		UPDATE sale_invoices
		SET
			total_amount = $2,
			paid_amount = $3,
			remaining_amount = $4,
			refunded_amount = $5,
			status = $6,
			payment_status = $7,
			refund_status = $8,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`,
		inv.ID, inv.TotalAmount, inv.PaidAmount, inv.RemainingAmount, inv.RefundedAmount,
		inv.Status, inv.PaymentStatus, inv.RefundStatus,
	).Scan(&inv.UpdatedAt)
	if err != nil {
		return notFoundOr(err, "update sale invoice %d", inv.ID)
	}
	return nil
}

func (r *Repository) UpdateSaleItemRefunded(ctx context.Context, item *domain.SaleInvoiceItem) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sale_invoice_items SET refunded_quantity = $2 WHERE id = $1
	`, item.ID, item.RefundedQuantity)
	if err != nil {
		return fmt.Errorf("update refunded quantity of item %d: %w", item.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *Repository) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.SaleInvoice, error) {
	query := `SELECT` + saleColumns + `FROM sale_invoices WHERE pharmacy_id = $1`
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
	if filter.PaymentStatus != nil {
		query += fmt.Sprintf(" AND payment_status = $%d", idx)
		args = append(args, *filter.PaymentStatus)
		idx++
	}
	if filter.From != nil {
		query += fmt.Sprintf(" AND invoice_date >= $%d", idx)
		args = append(args, *filter.From)
		idx++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND invoice_date < $%d", idx)
		args = append(args, *filter.To)
		idx++
	}
	query, args = pageClause(query+" ORDER BY id DESC", args, idx, filter.Page)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sale invoices: %w", err)
	}
	defer rows.Close()

	sales := make([]domain.SaleInvoice, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		inv, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale invoice: %w", err)
		}
		sales = append(sales, inv)
		ids = append(ids, inv.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale invoices: %w", err)
	}
	rows.Close()

	items, err := r.saleItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, nil
}
