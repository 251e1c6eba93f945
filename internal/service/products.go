package service

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
	"posledger/backend/internal/xid"
)

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.SKU = domain.NormalizeSKU(req.SKU)
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if err := s.validateStruct(req); err != nil {
		return domain.Product{}, err
	}
	if req.Price.IsNegative() {
		return domain.Product{}, invalid("price must not be negative")
	}
	if err := checkMoney("price", req.Price); err != nil {
		return domain.Product{}, err
	}

	now := s.now()
	product := domain.Product{
		ID:          xid.New("prd"),
		SKU:         req.SKU,
		Name:        req.Name,
		Category:    req.Category,
		Price:       req.Price,
		Stock:       req.Stock,
		NeedToOrder: req.NeedToOrder,
		Vendors:     normalizeStrings(req.Vendors),
		Images:      normalizeStrings(req.Images),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.changes.Record(ctx, actorName(ctx), created.ID, domain.ChangeActionCreate, nil, created)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if err := s.validateStruct(req); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	if existing.Deleted() {
		return domain.Product{}, store.ErrNotFound
	}

	updated := *existing
	if req.SKU != nil {
		sku := domain.NormalizeSKU(*req.SKU)
		if sku == "" {
			return domain.Product{}, invalid("sku must not be empty")
		}
		updated.SKU = sku
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, invalid("name must not be empty")
		}
		updated.Name = name
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return domain.Product{}, invalid("price must not be negative")
		}
		if err := checkMoney("price", *req.Price); err != nil {
			return domain.Product{}, err
		}
		updated.Price = *req.Price
	}
	if req.Stock != nil {
		updated.Stock = *req.Stock
	}
	if req.NeedToOrder != nil {
		updated.NeedToOrder = *req.NeedToOrder
	}
	if req.Vendors != nil {
		updated.Vendors = normalizeStrings(*req.Vendors)
	}
	if req.Images != nil {
		updated.Images = normalizeStrings(*req.Images)
	}
	updated.UpdatedAt = s.now()

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	s.changes.Record(ctx, actorName(ctx), saved.ID, domain.ChangeActionUpdate, existing, saved)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	if existing.Deleted() {
		return domain.Product{}, store.ErrNotFound
	}

	deleted, err := s.repo.SoftDeleteProduct(ctx, existing.ID, s.now())
	if err != nil {
		return domain.Product{}, err
	}
	s.changes.Record(ctx, actorName(ctx), deleted.ID, domain.ChangeActionDelete, existing, deleted)
	return *deleted, nil
}

// GetProduct hides soft-deleted products unless includeDeleted is set.
func (s *Service) GetProduct(ctx context.Context, id string, includeDeleted bool) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	if product.Deleted() && !includeDeleted {
		return domain.Product{}, store.ErrNotFound
	}
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context, query domain.ProductQuery) (domain.ProductListResponse, error) {
	query.Search = strings.TrimSpace(query.Search)
	query.Page, query.Limit = domain.NormalizePage(query.Page, query.Limit)

	var (
		products []domain.Product
		total    int
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		products, err = s.repo.ListProducts(groupCtx, query)
		return err
	})
	group.Go(func() error {
		var err error
		total, err = s.repo.CountProducts(groupCtx, query.Search)
		return err
	})
	if err := group.Wait(); err != nil {
		return domain.ProductListResponse{}, err
	}
	if products == nil {
		products = []domain.Product{}
	}

	return domain.ProductListResponse{
		Products:   products,
		Pagination: domain.NewPagination(query.Page, query.Limit, total),
	}, nil
}

func (s *Service) LowStockProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	if limit <= 0 || limit > domain.MaxPageLimit {
		limit = domain.MaxPageLimit
	}
	products, err := s.repo.ListLowStockProducts(ctx, limit)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, nil
}

// resolveProduct finds an active product by id or, failing that, by SKU.
func (s *Service) resolveProduct(ctx context.Context, id string, sku string) (*domain.Product, error) {
	id = strings.TrimSpace(id)
	if id != "" {
		product, err := s.repo.GetProductByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if product.Deleted() {
			return nil, store.ErrNotFound
		}
		return product, nil
	}
	sku = domain.NormalizeSKU(sku)
	if sku == "" {
		return nil, invalid("product_id or sku is required")
	}
	product, err := s.repo.GetProductBySKU(ctx, sku)
	if errors.Is(err, store.ErrNotFound) {
		return nil, productNotFound(sku)
	}
	return product, err
}
