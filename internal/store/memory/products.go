package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productIDBySKU[product.SKU]; exists {
		return nil, fmt.Errorf("%w: sku %s already exists", store.ErrConflict, product.SKU)
	}
	product = cloneProduct(product)
	s.productsByID[product.ID] = product
	s.productIDBySKU[product.SKU] = product.ID
	out := cloneProduct(product)
	return &out, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.productsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneProduct(product)
	return &out, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.productIDBySKU[sku]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneProduct(s.productsByID[id])
	return &out, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.productsByID[product.ID]
	if !ok || current.Deleted() {
		return nil, store.ErrNotFound
	}
	if product.SKU != current.SKU {
		if _, taken := s.productIDBySKU[product.SKU]; taken {
			return nil, fmt.Errorf("%w: sku %s already exists", store.ErrConflict, product.SKU)
		}
		delete(s.productIDBySKU, current.SKU)
		s.productIDBySKU[product.SKU] = product.ID
	}
	product.CreatedAt = current.CreatedAt
	product.DeletedAt = nil
	product = cloneProduct(product)
	s.productsByID[product.ID] = product
	out := cloneProduct(product)
	return &out, nil
}

func (s *Store) SoftDeleteProduct(_ context.Context, id string, at time.Time) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.productsByID[id]
	if !ok || product.Deleted() {
		return nil, store.ErrNotFound
	}
	deletedAt := at
	product.DeletedAt = &deletedAt
	product.UpdatedAt = at
	s.productsByID[id] = product
	delete(s.productIDBySKU, product.SKU)
	out := cloneProduct(product)
	return &out, nil
}

func (s *Store) ListProducts(_ context.Context, query domain.ProductQuery) ([]domain.Product, error) {
	s.mu.RLock()
	matched := s.matchProducts(query.Search)
	s.mu.RUnlock()

	return page(matched, query.Page, query.Limit), nil
}

func (s *Store) CountProducts(_ context.Context, search string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchProducts(search)), nil
}

// matchProducts expects the read lock to be held.
func (s *Store) matchProducts(search string) []domain.Product {
	result := make([]domain.Product, 0, len(s.productsByID))
	for _, product := range s.productsByID {
		if product.Deleted() || !productMatches(product, search) {
			continue
		}
		result = append(result, cloneProduct(product))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].ID < result[j].ID
		}
		return result[i].Name < result[j].Name
	})
	return result
}

func productMatches(product domain.Product, search string) bool {
	if search == "" {
		return true
	}
	if containsFold(product.Name, search) || containsFold(product.SKU, search) || containsFold(product.Category, search) {
		return true
	}
	for _, vendor := range product.Vendors {
		if containsFold(vendor, search) {
			return true
		}
	}
	return false
}

func (s *Store) ListLowStockProducts(_ context.Context, limit int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0)
	for _, product := range s.productsByID {
		if product.Deleted() || product.NeedToOrder <= 0 || product.Stock > product.NeedToOrder {
			continue
		}
		result = append(result, cloneProduct(product))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Stock == result[j].Stock {
			return result[i].SKU < result[j].SKU
		}
		return result[i].Stock < result[j].Stock
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) AdjustStock(_ context.Context, sku string, delta int) (*domain.Product, *domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, after, err := s.adjustStockLocked(sku, delta, time.Now().UTC())
	if err != nil {
		return nil, nil, err
	}
	return &before, &after, nil
}

// adjustStockLocked expects the write lock to be held.
func (s *Store) adjustStockLocked(sku string, delta int, at time.Time) (domain.Product, domain.Product, error) {
	id, ok := s.productIDBySKU[sku]
	if !ok {
		return domain.Product{}, domain.Product{}, fmt.Errorf("%w: product %s", store.ErrNotFound, sku)
	}
	current := s.productsByID[id]
	if delta > domain.MaxQuantity-current.Stock {
		return domain.Product{}, domain.Product{}, fmt.Errorf("%w: stock for %s would exceed %d", store.ErrValidation, sku, domain.MaxQuantity)
	}
	if delta < -current.Stock {
		return domain.Product{}, domain.Product{}, &store.StockShortageError{
			Identifier: sku,
			Available:  current.Stock,
			Requested:  -delta,
		}
	}
	before := cloneProduct(current)
	current.Stock += delta
	current.UpdatedAt = at
	s.productsByID[id] = current
	return before, cloneProduct(current), nil
}

func (s *Store) CreateChangeLog(_ context.Context, entry domain.ProductChangeLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.changeLogs = append(s.changeLogs, entry)
	return nil
}

func (s *Store) ListChangeLogs(_ context.Context, query domain.ChangeLogQuery) ([]domain.ProductChangeLog, error) {
	s.mu.RLock()
	matched := s.matchChangeLogs(query)
	s.mu.RUnlock()

	return page(matched, query.Page, query.Limit), nil
}

func (s *Store) CountChangeLogs(_ context.Context, query domain.ChangeLogQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchChangeLogs(query)), nil
}

// matchChangeLogs returns matching entries newest first.
func (s *Store) matchChangeLogs(query domain.ChangeLogQuery) []domain.ProductChangeLog {
	result := make([]domain.ProductChangeLog, 0)
	for i := len(s.changeLogs) - 1; i >= 0; i-- {
		entry := s.changeLogs[i]
		if query.ProductID != "" && entry.ProductID != query.ProductID {
			continue
		}
		if query.Action != "" && entry.Action != query.Action {
			continue
		}
		result = append(result, entry)
	}
	return result
}
