package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

const orderColumns = `id, product_id, sku, product_name, vendors, count, status, note, created_at, updated_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	if err := row.Scan(&o.ID, &o.ProductID, &o.SKU, &o.ProductName, &o.Vendors, &o.Count,
		&o.Status, &o.Note, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	if o.Vendors == nil {
		o.Vendors = []string{}
	}
	return o, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO orders (id, product_id, sku, product_name, vendors, count, status, note, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING `+orderColumns,
		order.ID, order.ProductID, order.SKU, order.ProductName, order.Vendors, order.Count,
		order.Status, order.Note, order.CreatedAt, order.UpdatedAt)
	created, err := scanOrder(row)
	if err != nil {
		return nil, translate(err, "order "+order.ID)
	}
	return &created, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "order")
	}
	return &order, nil
}

func (s *Store) ListOrders(ctx context.Context, query domain.OrderQuery) ([]domain.Order, int, error) {
	page, limit := domain.NormalizePage(query.Page, query.Limit)

	var total int
	if err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM orders WHERE ($1::text = '' OR status = $1)
	`, query.Status).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, query.Status, limit, offset(page, limit))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	return orders, total, rows.Err()
}

func (s *Store) HasPendingOrder(ctx context.Context, productID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM orders WHERE product_id = $1 AND status = $2)
	`, productID, domain.OrderStatusPending).Scan(&exists)
	return exists, err
}

func (s *Store) CancelOrder(ctx context.Context, id string, at time.Time) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE orders SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4
		RETURNING `+orderColumns, id, domain.OrderStatusCancelled, at, domain.OrderStatusPending)
	order, err := scanOrder(row)
	if err == nil {
		return &order, nil
	}
	if translate(err, "") != store.ErrNotFound {
		return nil, err
	}

	current, getErr := s.GetOrder(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: order is %s", store.ErrConflict, current.Status)
}

func (s *Store) ReceiveOrder(ctx context.Context, id string, at time.Time) (*domain.Order, domain.StockMovement, error) {
	var (
		received domain.Order
		movement domain.StockMovement
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		order, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return translate(err, "order")
		}
		if order.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: order is %s", store.ErrConflict, order.Status)
		}

		var sku string
		err = tx.QueryRow(ctx, `SELECT sku FROM products WHERE id = $1 AND deleted_at IS NULL`, order.ProductID).Scan(&sku)
		if err != nil {
			if translate(err, "") == store.ErrNotFound {
				return fmt.Errorf("%w: product %s", store.ErrNotFound, order.SKU)
			}
			return err
		}

		after, err := adjustStock(ctx, tx, sku, order.Count, at)
		if err != nil {
			return err
		}

		received, err = scanOrder(tx.QueryRow(ctx, `
			UPDATE orders SET status = $2, updated_at = $3
			WHERE id = $1
			RETURNING `+orderColumns, id, domain.OrderStatusReceived, at))
		if err != nil {
			return err
		}
		movement = domain.StockMovement{
			SKU:       after.SKU,
			ProductID: after.ID,
			Before:    after.Stock - order.Count,
			After:     after.Stock,
		}
		return nil
	})
	if err != nil {
		return nil, domain.StockMovement{}, err
	}
	return &received, movement, nil
}
