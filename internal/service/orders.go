package service

import (
	"context"
	"strings"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/xid"
)

func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	if err := s.validateStruct(req); err != nil {
		return domain.Order{}, err
	}
	product, err := s.resolveProduct(ctx, req.ProductID, req.SKU)
	if err != nil {
		return domain.Order{}, err
	}

	vendors := normalizeStrings(req.Vendors)
	if len(vendors) == 0 {
		vendors = normalizeStrings(product.Vendors)
	}
	now := s.now()
	created, err := s.repo.CreateOrder(ctx, domain.Order{
		ID:          xid.New("ord"),
		ProductID:   product.ID,
		SKU:         product.SKU,
		ProductName: product.Name,
		Vendors:     vendors,
		Count:       req.Count,
		Status:      domain.OrderStatusPending,
		Note:        strings.TrimSpace(req.Note),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Order{}, err
	}
	return *created, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

func (s *Service) ListOrders(ctx context.Context, query domain.OrderQuery) (domain.OrderListResponse, error) {
	query.Status = strings.ToLower(strings.TrimSpace(query.Status))
	switch query.Status {
	case "", domain.OrderStatusPending, domain.OrderStatusReceived, domain.OrderStatusCancelled:
	default:
		return domain.OrderListResponse{}, invalid("unknown order status %q", query.Status)
	}
	query.Page, query.Limit = domain.NormalizePage(query.Page, query.Limit)

	orders, total, err := s.repo.ListOrders(ctx, query)
	if err != nil {
		return domain.OrderListResponse{}, err
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return domain.OrderListResponse{
		Orders:     orders,
		Pagination: domain.NewPagination(query.Page, query.Limit, total),
	}, nil
}

func (s *Service) CancelOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.repo.CancelOrder(ctx, strings.TrimSpace(id), s.now())
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

// ReceiveOrder books the ordered count into stock.
func (s *Service) ReceiveOrder(ctx context.Context, id string) (domain.Order, error) {
	order, movement, err := s.repo.ReceiveOrder(ctx, strings.TrimSpace(id), s.now())
	if err != nil {
		return domain.Order{}, err
	}
	s.changes.Record(ctx, actorName(ctx), movement.ProductID, domain.ChangeActionUpdate,
		stockSnapshot{Stock: movement.Before}, stockSnapshot{Stock: movement.After})
	return *order, nil
}

// CreateReorderOrders opens a pending order for every low-stock product that
// has none, sized to bring stock up to twice the reorder point.
func (s *Service) CreateReorderOrders(ctx context.Context) (domain.ReorderResponse, error) {
	products, err := s.repo.ListLowStockProducts(ctx, 0)
	if err != nil {
		return domain.ReorderResponse{}, err
	}

	result := domain.ReorderResponse{Created: []domain.Order{}}
	for _, product := range products {
		pending, err := s.repo.HasPendingOrder(ctx, product.ID)
		if err != nil {
			return result, err
		}
		count := 2*product.NeedToOrder - product.Stock
		count = min(count, domain.MaxQuantity)
		if pending || count < 1 {
			result.Skipped++
			continue
		}
		now := s.now()
		order, err := s.repo.CreateOrder(ctx, domain.Order{
			ID:          xid.New("ord"),
			ProductID:   product.ID,
			SKU:         product.SKU,
			ProductName: product.Name,
			Vendors:     normalizeStrings(product.Vendors),
			Count:       count,
			Status:      domain.OrderStatusPending,
			Note:        "automatic reorder",
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return result, err
		}
		result.Created = append(result.Created, *order)
	}
	if len(result.Created) > 0 {
		s.logger.InfoContext(ctx, "reorder scan created orders", "created", len(result.Created), "skipped", result.Skipped)
	}
	return result, nil
}

type stockSnapshot struct {
	Stock int `json:"stock"`
}
