package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

const productColumns = `id, sku, name, category, price, stock, need_to_order, vendors, images, created_at, updated_at, deleted_at`

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Price, &p.Stock, &p.NeedToOrder,
		&p.Vendors, &p.Images, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if err != nil {
		return domain.Product{}, err
	}
	if p.Vendors == nil {
		p.Vendors = []string{}
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	return p, nil
}

func collectProducts(rows pgx.Rows) ([]domain.Product, error) {
	defer rows.Close()
	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO products (id, sku, name, category, price, stock, need_to_order, vendors, images, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING `+productColumns,
		product.ID, product.SKU, product.Name, product.Category, product.Price, product.Stock,
		product.NeedToOrder, product.Vendors, product.Images, product.CreatedAt, product.UpdatedAt)
	created, err := scanProduct(row)
	if err != nil {
		return nil, translate(err, "sku "+product.SKU)
	}
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	product, err := scanProduct(s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "product")
	}
	return &product, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	return getActiveProductBySKU(ctx, s.pool, sku)
}

func getActiveProductBySKU(ctx context.Context, q querier, sku string) (*domain.Product, error) {
	product, err := scanProduct(q.QueryRow(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE sku = $1 AND deleted_at IS NULL
	`, sku))
	if err != nil {
		return nil, translate(err, "product")
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE products
		SET sku = $2, name = $3, category = $4, price = $5, stock = $6, need_to_order = $7,
		    vendors = $8, images = $9, updated_at = $10
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+productColumns,
		product.ID, product.SKU, product.Name, product.Category, product.Price, product.Stock,
		product.NeedToOrder, product.Vendors, product.Images, product.UpdatedAt)
	updated, err := scanProduct(row)
	if err != nil {
		return nil, translate(err, "sku "+product.SKU)
	}
	return &updated, nil
}

func (s *Store) SoftDeleteProduct(ctx context.Context, id string, at time.Time) (*domain.Product, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE products
		SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+productColumns, id, at)
	deleted, err := scanProduct(row)
	if err != nil {
		return nil, translate(err, "product")
	}
	return &deleted, nil
}

// productFilter builds the WHERE clause shared by listing and counting.
func productFilter(search string) (string, []any) {
	clause := `deleted_at IS NULL`
	args := []any{}
	if search = strings.TrimSpace(search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		clause += ` AND (name ILIKE $1 OR sku ILIKE $1 OR category ILIKE $1
			OR EXISTS (SELECT 1 FROM unnest(vendors) AS vendor WHERE vendor ILIKE $1))`
	}
	return clause, args
}

func (s *Store) ListProducts(ctx context.Context, query domain.ProductQuery) ([]domain.Product, error) {
	page, limit := domain.NormalizePage(query.Page, query.Limit)
	clause, args := productFilter(query.Search)
	args = append(args, limit, offset(page, limit))
	sql := fmt.Sprintf(`
		SELECT %s FROM products
		WHERE %s
		ORDER BY name, id
		LIMIT $%d OFFSET $%d`, productColumns, clause, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func (s *Store) CountProducts(ctx context.Context, search string) (int, error) {
	clause, args := productFilter(search)
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM products WHERE `+clause, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListLowStockProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE deleted_at IS NULL AND need_to_order > 0 AND stock <= need_to_order
		ORDER BY stock, sku
		LIMIT $1
	`, limitArg)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func (s *Store) AdjustStock(ctx context.Context, sku string, delta int) (*domain.Product, *domain.Product, error) {
	after, err := adjustStock(ctx, s.pool, sku, delta, s.now())
	if err != nil {
		return nil, nil, err
	}
	before := after
	before.Stock = after.Stock - delta
	return &before, &after, nil
}

// adjustStock applies delta with a conditional update so concurrent callers
// can never drive stock negative.
func adjustStock(ctx context.Context, q querier, sku string, delta int, at time.Time) (domain.Product, error) {
	row := q.QueryRow(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = $3
		WHERE sku = $1 AND deleted_at IS NULL AND stock + $2 >= 0
		RETURNING `+productColumns, sku, delta, at)
	after, err := scanProduct(row)
	if err == nil {
		return after, nil
	}
	if translated := translate(err, "stock for "+sku); translated != store.ErrNotFound {
		return domain.Product{}, translated
	}

	current, lookupErr := getActiveProductBySKU(ctx, q, sku)
	if lookupErr != nil {
		if store.IsNotFound(lookupErr) {
			return domain.Product{}, fmt.Errorf("%w: product %s", store.ErrNotFound, sku)
		}
		return domain.Product{}, lookupErr
	}
	return domain.Product{}, &store.StockShortageError{
		Identifier: sku,
		Available:  current.Stock,
		Requested:  -delta,
	}
}

func (s *Store) CreateChangeLog(ctx context.Context, entry domain.ProductChangeLog) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("encode changes: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO product_change_logs (id, product_id, action, changes, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.ProductID, string(entry.Action), changes, entry.Actor, entry.CreatedAt)
	return err
}

func changeLogFilter(query domain.ChangeLogQuery) (string, []any) {
	conditions := []string{"TRUE"}
	args := []any{}
	if query.ProductID != "" {
		args = append(args, query.ProductID)
		conditions = append(conditions, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if query.Action != "" {
		args = append(args, string(query.Action))
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)))
	}
	return strings.Join(conditions, " AND "), args
}

func (s *Store) ListChangeLogs(ctx context.Context, query domain.ChangeLogQuery) ([]domain.ProductChangeLog, error) {
	page, limit := domain.NormalizePage(query.Page, query.Limit)
	clause, args := changeLogFilter(query)
	args = append(args, limit, offset(page, limit))
	sql := fmt.Sprintf(`
		SELECT id, product_id, action, changes, actor, created_at
		FROM product_change_logs
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.ProductChangeLog, 0, limit)
	for rows.Next() {
		var (
			entry  domain.ProductChangeLog
			action string
			raw    []byte
		)
		if err := rows.Scan(&entry.ID, &entry.ProductID, &action, &raw, &entry.Actor, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Action = domain.ChangeAction(action)
		entry.Changes = map[string]domain.FieldChange{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &entry.Changes); err != nil {
				return nil, fmt.Errorf("decode changes %s: %w", entry.ID, err)
			}
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CountChangeLogs(ctx context.Context, query domain.ChangeLogQuery) (int, error) {
	clause, args := changeLogFilter(query)
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM product_change_logs WHERE `+clause, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
