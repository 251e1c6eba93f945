package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ordersByID[order.ID]; exists {
		return nil, fmt.Errorf("%w: order %s already exists", store.ErrConflict, order.ID)
	}
	s.ordersByID[order.ID] = cloneOrder(order)
	out := cloneOrder(order)
	return &out, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneOrder(order)
	return &out, nil
}

func (s *Store) ListOrders(_ context.Context, query domain.OrderQuery) ([]domain.Order, int, error) {
	s.mu.RLock()
	result := make([]domain.Order, 0, len(s.ordersByID))
	for _, order := range s.ordersByID {
		if query.Status != "" && order.Status != query.Status {
			continue
		}
		result = append(result, cloneOrder(order))
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[i].CreatedAt, result[j].CreatedAt, result[i].ID, result[j].ID)
	})
	return page(result, query.Page, query.Limit), len(result), nil
}

func (s *Store) HasPendingOrder(_ context.Context, productID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, order := range s.ordersByID {
		if order.ProductID == productID && order.Status == domain.OrderStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CancelOrder(_ context.Context, id string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if order.Status != domain.OrderStatusPending {
		return nil, fmt.Errorf("%w: order is %s", store.ErrConflict, order.Status)
	}
	order.Status = domain.OrderStatusCancelled
	order.UpdatedAt = at
	s.ordersByID[id] = order
	out := cloneOrder(order)
	return &out, nil
}

func (s *Store) ReceiveOrder(_ context.Context, id string, at time.Time) (*domain.Order, domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, domain.StockMovement{}, store.ErrNotFound
	}
	if order.Status != domain.OrderStatusPending {
		return nil, domain.StockMovement{}, fmt.Errorf("%w: order is %s", store.ErrConflict, order.Status)
	}
	product, ok := s.productsByID[order.ProductID]
	if !ok || product.Deleted() {
		return nil, domain.StockMovement{}, fmt.Errorf("%w: product %s", store.ErrNotFound, order.SKU)
	}
	before, after, err := s.adjustStockLocked(product.SKU, order.Count, at)
	if err != nil {
		return nil, domain.StockMovement{}, err
	}
	order.Status = domain.OrderStatusReceived
	order.UpdatedAt = at
	s.ordersByID[id] = order

	out := cloneOrder(order)
	return &out, domain.StockMovement{
		SKU:       after.SKU,
		ProductID: after.ID,
		Before:    before.Stock,
		After:     after.Stock,
	}, nil
}

func newerFirst(a, b time.Time, aID, bID string) bool {
	if a.Equal(b) {
		return aID > bID
	}
	return a.After(b)
}
