package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"posledger/backend/internal/domain"
)

const (
	invoiceColumns = `id, number, customer_name, total, paid_amount, status, due_date, estimate_id, created_at, updated_at`
	billingColumns = `id, number, customer_name, file_ref, total, paid_amount, status, due_date, created_at, updated_at`
)

func scanInvoice(row pgx.Row) (domain.Invoice, error) {
	var (
		inv        domain.Invoice
		status     string
		estimateID *string
	)
	if err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerName, &inv.Total, &inv.PaidAmount,
		&status, &inv.DueDate, &estimateID, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return domain.Invoice{}, err
	}
	inv.Status = domain.PaymentStatus(status)
	if estimateID != nil {
		inv.EstimateID = *estimateID
	}
	return inv, nil
}

func scanBilling(row pgx.Row) (domain.BillingRecord, error) {
	var (
		rec    domain.BillingRecord
		status string
	)
	if err := row.Scan(&rec.ID, &rec.Number, &rec.CustomerName, &rec.FileRef, &rec.Total, &rec.PaidAmount,
		&status, &rec.DueDate, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return domain.BillingRecord{}, err
	}
	rec.Status = domain.PaymentStatus(status)
	return rec, nil
}

func insertInvoice(ctx context.Context, q querier, invoice domain.Invoice) (domain.Invoice, error) {
	created, err := scanInvoice(q.QueryRow(ctx, `
		INSERT INTO invoices (id, number, customer_name, total, paid_amount, status, due_date, estimate_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING `+invoiceColumns,
		invoice.ID, invoice.Number, invoice.CustomerName, invoice.Total, invoice.PaidAmount,
		string(invoice.Status), invoice.DueDate, nullIfEmpty(invoice.EstimateID), invoice.CreatedAt, invoice.UpdatedAt))
	if err != nil {
		return domain.Invoice{}, translate(err, "invoice number "+invoice.Number)
	}
	return created, nil
}

func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	created, err := insertInvoice(ctx, s.pool, invoice)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	invoice, err := scanInvoice(s.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "invoice")
	}
	return &invoice, nil
}

func (s *Store) ListInvoices(ctx context.Context, query domain.PayableQuery) ([]domain.Invoice, int, error) {
	page, limit := domain.NormalizePage(query.Page, query.Limit)
	status := string(query.Status)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM invoices WHERE ($1::text = '' OR status = $1)`, status).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, status, limit, offset(page, limit))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, limit)
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, total, rows.Err()
}

func (s *Store) ApplyInvoicePayment(ctx context.Context, id string, apply func(domain.Invoice) (domain.Invoice, error)) (*domain.Invoice, error) {
	var result domain.Invoice
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := scanInvoice(tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return translate(err, "invoice")
		}
		updated, err := apply(current)
		if err != nil {
			return err
		}
		result, err = scanInvoice(tx.QueryRow(ctx, `
			UPDATE invoices SET paid_amount = $2, status = $3, updated_at = $4
			WHERE id = $1
			RETURNING `+invoiceColumns, id, updated.PaidAmount, string(updated.Status), updated.UpdatedAt))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Store) CreateBillingRecord(ctx context.Context, record domain.BillingRecord) (*domain.BillingRecord, error) {
	created, err := scanBilling(s.pool.QueryRow(ctx, `
		INSERT INTO billing_records (id, number, customer_name, file_ref, total, paid_amount, status, due_date, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING `+billingColumns,
		record.ID, record.Number, record.CustomerName, record.FileRef, record.Total, record.PaidAmount,
		string(record.Status), record.DueDate, record.CreatedAt, record.UpdatedAt))
	if err != nil {
		return nil, translate(err, "billing number "+record.Number)
	}
	return &created, nil
}

func (s *Store) GetBillingRecord(ctx context.Context, id string) (*domain.BillingRecord, error) {
	record, err := scanBilling(s.pool.QueryRow(ctx, `SELECT `+billingColumns+` FROM billing_records WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "billing record")
	}
	return &record, nil
}

func (s *Store) ListBillingRecords(ctx context.Context, query domain.PayableQuery) ([]domain.BillingRecord, int, error) {
	page, limit := domain.NormalizePage(query.Page, query.Limit)
	status := string(query.Status)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM billing_records WHERE ($1::text = '' OR status = $1)`, status).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+billingColumns+`
		FROM billing_records
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, status, limit, offset(page, limit))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := make([]domain.BillingRecord, 0, limit)
	for rows.Next() {
		record, err := scanBilling(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, record)
	}
	return records, total, rows.Err()
}

func (s *Store) ApplyBillingPayment(ctx context.Context, id string, apply func(domain.BillingRecord) (domain.BillingRecord, error)) (*domain.BillingRecord, error) {
	var result domain.BillingRecord
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := scanBilling(tx.QueryRow(ctx, `SELECT `+billingColumns+` FROM billing_records WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return translate(err, "billing record")
		}
		updated, err := apply(current)
		if err != nil {
			return err
		}
		result, err = scanBilling(tx.QueryRow(ctx, `
			UPDATE billing_records SET paid_amount = $2, status = $3, updated_at = $4
			WHERE id = $1
			RETURNING `+billingColumns, id, updated.PaidAmount, string(updated.Status), updated.UpdatedAt))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
