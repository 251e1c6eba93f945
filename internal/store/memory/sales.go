package memory

import (
	"context"
	"fmt"
	"sort"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, []domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, nil, fmt.Errorf("%w: sale %s already exists", store.ErrConflict, sale.ID)
	}

	// Check every line against the running balance before mutating anything.
	remaining := make(map[string]int, len(sale.Items))
	for _, line := range sale.Items {
		id, ok := s.productIDBySKU[line.SKU]
		if !ok {
			return nil, nil, fmt.Errorf("%w: product %s", store.ErrNotFound, line.SKU)
		}
		available, seen := remaining[line.SKU]
		if !seen {
			available = s.productsByID[id].Stock
		}
		if available < line.Qty {
			return nil, nil, &store.StockShortageError{
				Identifier: line.SKU,
				Available:  available,
				Requested:  line.Qty,
			}
		}
		remaining[line.SKU] = available - line.Qty
	}

	movements := make([]domain.StockMovement, 0, len(sale.Items))
	for _, line := range sale.Items {
		before, after, err := s.adjustStockLocked(line.SKU, -line.Qty, sale.CreatedAt)
		if err != nil {
			return nil, nil, err
		}
		movements = append(movements, domain.StockMovement{
			SKU:       line.SKU,
			ProductID: after.ID,
			Before:    before.Stock,
			After:     after.Stock,
		})
	}

	s.salesByID[sale.ID] = cloneSale(sale)
	out := cloneSale(sale)
	return &out, movements, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneSale(sale)
	return &out, nil
}

func (s *Store) ListSales(_ context.Context, pageNo int, limit int) ([]domain.Sale, int, error) {
	s.mu.RLock()
	result := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		result = append(result, cloneSale(sale))
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[i].CreatedAt, result[j].CreatedAt, result[i].ID, result[j].ID)
	})
	return page(result, pageNo, limit), len(result), nil
}
