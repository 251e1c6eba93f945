package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

const saleColumns = `id, total, payment_method, payment_amount, payment_reference, payment_change, cashier, created_at`

func scanSale(row pgx.Row) (domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(&sale.ID, &sale.Total, &sale.Payment.Method, &sale.Payment.Amount,
		&sale.Payment.Reference, &sale.Payment.Change, &sale.Cashier, &sale.CreatedAt)
	return sale, err
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, []domain.StockMovement, error) {
	movements := make([]domain.StockMovement, 0, len(sale.Items))
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		for _, line := range sale.Items {
			after, err := adjustStock(ctx, tx, line.SKU, -line.Qty, sale.CreatedAt)
			if err != nil {
				return err
			}
			movements = append(movements, domain.StockMovement{
				SKU:       line.SKU,
				ProductID: after.ID,
				Before:    after.Stock + line.Qty,
				After:     after.Stock,
			})
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO sales (id, total, payment_method, payment_amount, payment_reference, payment_change, cashier, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, sale.ID, sale.Total, sale.Payment.Method, sale.Payment.Amount, sale.Payment.Reference,
			sale.Payment.Change, sale.Cashier, sale.CreatedAt)
		if err != nil {
			return translate(err, "sale "+sale.ID)
		}

		batch := &pgx.Batch{}
		for i, line := range sale.Items {
			batch.Queue(`
				INSERT INTO sale_items (sale_id, line_no, product_id, sku, name, qty, unit_price, line_total)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			`, sale.ID, i+1, line.ProductID, line.SKU, line.Name, line.Qty, line.UnitPrice, line.LineTotal)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return nil, nil, err
	}
	return &sale, movements, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "sale")
	}
	sales := []domain.Sale{sale}
	if err := s.loadSaleItems(ctx, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func (s *Store) ListSales(ctx context.Context, page int, limit int) ([]domain.Sale, int, error) {
	page, limit = domain.NormalizePage(page, limit)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM sales`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset(page, limit))
	if err != nil {
		return nil, 0, err
	}
	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		sales = append(sales, sale)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := s.loadSaleItems(ctx, sales); err != nil {
		return nil, 0, err
	}
	return sales, total, nil
}

func (s *Store) loadSaleItems(ctx context.Context, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	index := make(map[string]int, len(sales))
	ids := make([]string, 0, len(sales))
	for i := range sales {
		index[sales[i].ID] = i
		ids = append(ids, sales[i].ID)
		sales[i].Items = []domain.SaleLine{}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT sale_id, product_id, sku, name, qty, unit_price, line_total
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			saleID string
			line   domain.SaleLine
		)
		if err := rows.Scan(&saleID, &line.ProductID, &line.SKU, &line.Name, &line.Qty, &line.UnitPrice, &line.LineTotal); err != nil {
			return err
		}
		i, ok := index[saleID]
		if !ok {
			return fmt.Errorf("%w: sale %s", store.ErrNotFound, saleID)
		}
		sales[i].Items = append(sales[i].Items, line)
	}
	return rows.Err()
}
