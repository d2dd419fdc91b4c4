package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Wass76/Uqar-sub002/internal/domain"
	"github.com/Wass76/Uqar-sub002/internal/store"
)

const refundColumns = `
	id,
	pharmacy_id,
	sale_invoice_id,
	refund_number,
	reason,
	currency,
	total_refund_amount,
	cash_amount,
	debt_amount,
	refund_status,
	created_by,
	created_by_name,
	ip_address,
	session_id,
	created_at
`

const refundItemColumns = `
	ri.id,
	ri.sale_refund_id,
	ri.sale_invoice_item_id,
	ri.stock_item_id,
	ri.quantity,
	ri.partial,
	ri.unit_price,
	ri.subtotal,
	ri.reason,
	ri.stock_restored,
	ri.restored_at
`

func scanRefund(row pgx.Row) (domain.SaleRefund, error) {
	var ref domain.SaleRefund
	err := row.Scan(
		&ref.ID,
		&ref.PharmacyID,
		&ref.SaleInvoiceID,
		&ref.RefundNumber,
		&ref.Reason,
		&ref.Currency,
		&ref.TotalRefundAmount,
		&ref.CashAmount,
		&ref.DebtAmount,
		&ref.RefundStatus,
		&ref.Audit.CreatedBy,
		&ref.Audit.CreatedByName,
		&ref.Audit.IPAddress,
		&ref.Audit.SessionID,
		&ref.CreatedAt,
	)
	return ref, err
}

func scanRefundItem(row pgx.Row) (domain.SaleRefundItem, error) {
	var item domain.SaleRefundItem
	err := row.Scan(
		&item.ID,
		&item.SaleRefundID,
		&item.SaleInvoiceItemID,
		&item.StockItemID,
		&item.Quantity,
		&item.Partial,
		&item.UnitPrice,
		&item.Subtotal,
		&item.Reason,
		&item.StockRestored,
		&item.RestoredAt,
	)
	return item, err
}

func (r *Repository) InsertRefund(ctx context.Context, ref *domain.SaleRefund) error {
	if err := r.db.QueryRow(ctx, `
		INSERT INTO sale_refunds (
			pharmacy_id,
			sale_invoice_id,
			refund_number,
			reason,
			currency,
			total_refund_amount,
			cash_amount,
			debt_amount,
			refund_status,
			created_by,
			created_by_name,
			ip_address,
			session_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at
	`,
		ref.PharmacyID, ref.SaleInvoiceID, ref.RefundNumber, ref.Reason, ref.Currency,
		ref.TotalRefundAmount, ref.CashAmount, ref.DebtAmount, ref.RefundStatus,
		ref.Audit.CreatedBy, ref.Audit.CreatedByName, ref.Audit.IPAddress, ref.Audit.SessionID,
	).Scan(&ref.ID, &ref.CreatedAt); err != nil {
		return fmt.Errorf("insert sale refund: %w", err)
	}

	for i := range ref.Items {
		item := &ref.Items[i]
		item.SaleRefundID = ref.ID
		if err := r.db.QueryRow(ctx, `
			INSERT INTO sale_refund_items (
				sale_refund_id,
				sale_invoice_item_id,
				stock_item_id,
				quantity,
				partial,
				unit_price,
				subtotal,
				reason,
				stock_restored,
				restored_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id
		`,
			item.SaleRefundID, item.SaleInvoiceItemID, item.StockItemID, item.Quantity, item.Partial,
			item.UnitPrice, item.Subtotal, item.Reason, item.StockRestored, item.RestoredAt,
		).Scan(&item.ID); err != nil {
			return fmt.Errorf("insert sale refund item: %w", err)
		}
	}
	return nil
}

func (r *Repository) GetRefund(ctx context.Context, pharmacyID, refundID int64) (*domain.SaleRefund, error) {
	ref, err := scanRefund(r.db.QueryRow(ctx,
		`SELECT`+refundColumns+`FROM sale_refunds WHERE id = $1 AND pharmacy_id = $2`,
		refundID, pharmacyID,
	))
	if err != nil {
		return nil, notFoundOr(err, "get sale refund %d", refundID)
	}
	items, err := r.refundItems(ctx, []int64{ref.ID})
	if err != nil {
		return nil, err
	}
	ref.Items = items[ref.ID]
	return &ref, nil
}

func (r *Repository) refundItems(ctx context.Context, refundIDs []int64) (map[int64][]domain.SaleRefundItem, error) {
	out := make(map[int64][]domain.SaleRefundItem, len(refundIDs))
	if len(refundIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT`+refundItemColumns+`FROM sale_refund_items ri WHERE ri.sale_refund_id = ANY($1) ORDER BY ri.id ASC`,
		refundIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("get sale refund items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanRefundItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale refund item: %w", err)
		}
		out[item.SaleRefundID] = append(out[item.SaleRefundID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale refund items: %w", err)
	}
	return out, nil
}

func (r *Repository) GetRefundItemForUpdate(ctx context.Context, pharmacyID, refundItemID int64) (*domain.SaleRefundItem, error) {
	item, err := scanRefundItem(r.db.QueryRow(ctx, `
		SELECT`+refundItemColumns+`
		FROM sale_refund_items ri
		JOIN sale_refunds sr ON sr.id = ri.sale_refund_id
		WHERE ri.id = $1 AND sr.pharmacy_id = $2
		FOR UPDATE OF ri
	`, refundItemID, pharmacyID))
	if err != nil {
		return nil, notFoundOr(err, "lock sale refund item %d", refundItemID)
	}
	return &item, nil
}

func (r *Repository) MarkRefundItemRestored(ctx context.Context, item *domain.SaleRefundItem) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sale_refund_items
		SET stock_restored = $2, restored_at = $3
		WHERE id = $1
	`, item.ID, item.StockRestored, item.RestoredAt)
	if err != nil {
		return fmt.Errorf("mark refund item %d restored: %w", item.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *Repository) ListRefunds(ctx context.Context, filter store.RefundFilter) ([]domain.SaleRefund, error) {
	query := `SELECT` + refundColumns + `FROM sale_refunds WHERE pharmacy_id = $1`
	args := []any{filter.PharmacyID}
	idx := 2

	if filter.SaleInvoiceID != nil {
		query += fmt.Sprintf(" AND sale_invoice_id = $%d", idx)
		args = append(args, *filter.SaleInvoiceID)
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
	query, args = pageClause(query+" ORDER BY id DESC", args, idx, filter.Page)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sale refunds: %w", err)
	}
	defer rows.Close()

	refunds := make([]domain.SaleRefund, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		ref, err := scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale refund: %w", err)
		}
		refunds = append(refunds, ref)
		ids = append(ids, ref.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale refunds: %w", err)
	}
	rows.Close()

	items, err := r.refundItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range refunds {
		refunds[i].Items = items[refunds[i].ID]
	}
	return refunds, nil
}
