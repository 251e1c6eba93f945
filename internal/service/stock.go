package service

import (
	"context"
	"fmt"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

// StockBatchError is returned when a stock batch stops part way. Items in
// Applied were already committed and stay applied.
type StockBatchError struct {
	Err     error
	Applied []domain.StockMovement
}

func (e *StockBatchError) Error() string {
	return e.Err.Error()
}

func (e *StockBatchError) Unwrap() error {
	return e.Err
}

func productNotFound(sku string) error {
	return fmt.Errorf("%w: product %s", store.ErrNotFound, sku)
}

func (s *Service) DecrementStock(ctx context.Context, req domain.StockAdjustRequest) (domain.StockAdjustResponse, error) {
	items, err := normalizeStockItems(req.Items)
	if err != nil {
		return domain.StockAdjustResponse{}, err
	}
	movements, err := s.adjustStock(ctx, items, -1)
	if err != nil {
		return domain.StockAdjustResponse{}, err
	}
	return domain.StockAdjustResponse{Message: "stock decremented", Items: movements}, nil
}

func (s *Service) IncrementStock(ctx context.Context, req domain.StockAdjustRequest) (domain.StockAdjustResponse, error) {
	items, err := normalizeStockItems(req.Items)
	if err != nil {
		return domain.StockAdjustResponse{}, err
	}
	movements, err := s.adjustStock(ctx, items, 1)
	if err != nil {
		return domain.StockAdjustResponse{}, err
	}
	return domain.StockAdjustResponse{Message: "stock incremented", Items: movements}, nil
}

// adjustStock applies items one at a time and stops at the first failure.
func (s *Service) adjustStock(ctx context.Context, items []domain.StockItem, sign int) ([]domain.StockMovement, error) {
	actor := actorName(ctx)
	applied := make([]domain.StockMovement, 0, len(items))
	for _, item := range items {
		before, after, err := s.repo.AdjustStock(ctx, item.SKU, sign*item.Qty)
		if err != nil {
			if store.IsNotFound(err) {
				err = productNotFound(item.SKU)
			}
			return nil, &StockBatchError{Err: err, Applied: applied}
		}
		s.changes.Record(ctx, actor, after.ID, domain.ChangeActionUpdate, before, after)
		applied = append(applied, domain.StockMovement{
			SKU:       after.SKU,
			ProductID: after.ID,
			Before:    before.Stock,
			After:     after.Stock,
		})
	}
	return applied, nil
}

func normalizeStockItems(items []domain.StockItem) ([]domain.StockItem, error) {
	if len(items) == 0 {
		return nil, invalid("items must contain at least one entry")
	}
	out := make([]domain.StockItem, 0, len(items))
	for i, item := range items {
		sku := domain.NormalizeSKU(item.SKU)
		if sku == "" {
			return nil, invalid("items[%d].sku is required", i)
		}
		qty := item.Amount()
		if qty < 1 {
			return nil, invalid("items[%d].qty must be at least 1", i)
		}
		if qty > domain.MaxQuantity {
			return nil, invalid("items[%d].qty must be at most %d", i, domain.MaxQuantity)
		}
		out = append(out, domain.StockItem{SKU: sku, Qty: qty})
	}
	return out, nil
}
