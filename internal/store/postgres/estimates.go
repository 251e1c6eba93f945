package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

const estimateColumns = `id, number, customer_name, items, total, status, invoice_id, valid_until, created_at, updated_at`

func scanEstimate(row pgx.Row) (domain.Estimate, error) {
	var (
		est       domain.Estimate
		items     []byte
		invoiceID *string
	)
	if err := row.Scan(&est.ID, &est.Number, &est.CustomerName, &items, &est.Total, &est.Status,
		&invoiceID, &est.ValidUntil, &est.CreatedAt, &est.UpdatedAt); err != nil {
		return domain.Estimate{}, err
	}
	est.Items = []domain.EstimateLine{}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &est.Items); err != nil {
			return domain.Estimate{}, fmt.Errorf("decode estimate %s items: %w", est.ID, err)
		}
	}
	if invoiceID != nil {
		est.InvoiceID = *invoiceID
	}
	return est, nil
}

func encodeEstimateItems(items []domain.EstimateLine) ([]byte, error) {
	if items == nil {
		items = []domain.EstimateLine{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode estimate items: %w", err)
	}
	return raw, nil
}

func (s *Store) CreateEstimate(ctx context.Context, estimate domain.Estimate) (*domain.Estimate, error) {
	items, err := encodeEstimateItems(estimate.Items)
	if err != nil {
		return nil, err
	}
	created, err := scanEstimate(s.pool.QueryRow(ctx, `
		INSERT INTO estimates (id, number, customer_name, items, total, status, invoice_id, valid_until, created_at, updated_at)
		VALUES ($1, 'EST-' || lpad(nextval('estimate_number_seq')::text, 6, '0'), $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+estimateColumns,
		estimate.ID, estimate.CustomerName, items, estimate.Total, estimate.Status,
		nullIfEmpty(estimate.InvoiceID), estimate.ValidUntil, estimate.CreatedAt, estimate.UpdatedAt))
	if err != nil {
		return nil, translate(err, "estimate "+estimate.ID)
	}
	return &created, nil
}

func (s *Store) GetEstimate(ctx context.Context, id string) (*domain.Estimate, error) {
	estimate, err := scanEstimate(s.pool.QueryRow(ctx, `SELECT `+estimateColumns+` FROM estimates WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "estimate")
	}
	return &estimate, nil
}

func (s *Store) ListEstimates(ctx context.Context, query domain.EstimateQuery) ([]domain.Estimate, int, error) {
	page, limit := domain.NormalizePage(query.Page, query.Limit)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM estimates WHERE ($1::text = '' OR status = $1)`, query.Status).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+estimateColumns+`
		FROM estimates
		WHERE ($1::text = '' OR status = $1)
		ORDER BY number DESC
		LIMIT $2 OFFSET $3
	`, query.Status, limit, offset(page, limit))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	estimates := make([]domain.Estimate, 0, limit)
	for rows.Next() {
		estimate, err := scanEstimate(rows)
		if err != nil {
			return nil, 0, err
		}
		estimates = append(estimates, estimate)
	}
	return estimates, total, rows.Err()
}

func lockEstimate(ctx context.Context, tx pgx.Tx, id string) (domain.Estimate, error) {
	estimate, err := scanEstimate(tx.QueryRow(ctx, `SELECT `+estimateColumns+` FROM estimates WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return domain.Estimate{}, translate(err, "estimate")
	}
	return estimate, nil
}

func saveEstimate(ctx context.Context, tx pgx.Tx, estimate domain.Estimate) (domain.Estimate, error) {
	items, err := encodeEstimateItems(estimate.Items)
	if err != nil {
		return domain.Estimate{}, err
	}
	return scanEstimate(tx.QueryRow(ctx, `
		UPDATE estimates
		SET customer_name = $2, items = $3, total = $4, status = $5, invoice_id = $6, valid_until = $7, updated_at = $8
		WHERE id = $1
		RETURNING `+estimateColumns,
		estimate.ID, estimate.CustomerName, items, estimate.Total, estimate.Status,
		nullIfEmpty(estimate.InvoiceID), estimate.ValidUntil, estimate.UpdatedAt))
}

func (s *Store) UpdateEstimate(ctx context.Context, id string, apply func(domain.Estimate) (domain.Estimate, error)) (*domain.Estimate, error) {
	var result domain.Estimate
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := lockEstimate(ctx, tx, id)
		if err != nil {
			return err
		}
		updated, err := apply(current)
		if err != nil {
			return err
		}
		updated.ID = current.ID
		result, err = saveEstimate(ctx, tx, updated)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Store) InvoiceEstimate(ctx context.Context, id string, invoice domain.Invoice) (*domain.Estimate, *domain.Invoice, error) {
	var (
		estimate domain.Estimate
		created  domain.Invoice
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := lockEstimate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !current.CanInvoice() {
			return fmt.Errorf("%w: estimate %s is %s", store.ErrConflict, current.Number, current.Status)
		}

		invoice.Total = current.Total
		invoice.EstimateID = current.ID
		if invoice.CustomerName == "" {
			invoice.CustomerName = current.CustomerName
		}
		created, err = insertInvoice(ctx, tx, invoice)
		if err != nil {
			return err
		}

		current.Status = domain.EstimateStatusInvoiced
		current.InvoiceID = created.ID
		current.UpdatedAt = created.CreatedAt
		estimate, err = saveEstimate(ctx, tx, current)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &estimate, &created, nil
}
