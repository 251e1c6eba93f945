package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/realtime"
	"posledger/backend/internal/xid"
)

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	req.Payment.Method = strings.ToLower(strings.TrimSpace(req.Payment.Method))
	if err := s.validateStruct(req); err != nil {
		return domain.Sale{}, err
	}

	lines := make([]domain.SaleLine, 0, len(req.Items))
	total := decimal.Zero
	for i, item := range req.Items {
		sku := domain.NormalizeSKU(item.SKU)
		product, err := s.resolveProduct(ctx, "", sku)
		if err != nil {
			return domain.Sale{}, err
		}
		unitPrice := product.Price
		if item.UnitPrice != nil {
			if item.UnitPrice.IsNegative() {
				return domain.Sale{}, invalid("items[%d].unit_price must not be negative", i)
			}
			if err := checkMoney(fmt.Sprintf("items[%d].unit_price", i), *item.UnitPrice); err != nil {
				return domain.Sale{}, err
			}
			unitPrice = *item.UnitPrice
		}
		lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(item.Qty)))
		total = total.Add(lineTotal)
		lines = append(lines, domain.SaleLine{
			ProductID: product.ID,
			SKU:       product.SKU,
			Name:      product.Name,
			Qty:       item.Qty,
			UnitPrice: unitPrice,
			LineTotal: lineTotal,
		})
	}

	if err := checkMoney("total", total); err != nil {
		return domain.Sale{}, err
	}
	payment, err := settle(req.Payment, total)
	if err != nil {
		return domain.Sale{}, err
	}

	sale := domain.Sale{
		ID:        xid.New("sale"),
		Items:     lines,
		Total:     total,
		Payment:   payment,
		Cashier:   actorName(ctx),
		CreatedAt: s.now(),
	}
	created, movements, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}

	for _, movement := range movements {
		s.changes.Record(ctx, sale.Cashier, movement.ProductID, domain.ChangeActionUpdate,
			stockSnapshot{Stock: movement.Before}, stockSnapshot{Stock: movement.After})
	}
	s.publish(ctx, realtime.EventSaleCreated, created)
	return *created, nil
}

// settle checks the tendered amount. Only cash produces change; other
// methods are recorded at exactly the sale total.
func settle(req domain.SalePaymentRequest, total decimal.Decimal) (domain.SalePayment, error) {
	if err := checkMoney("payment.amount", req.Amount); err != nil {
		return domain.SalePayment{}, err
	}
	if req.Amount.LessThan(total) {
		return domain.SalePayment{}, invalid("payment amount %s does not cover total %s", req.Amount.StringFixed(2), total.StringFixed(2))
	}
	payment := domain.SalePayment{
		Method:    req.Method,
		Amount:    req.Amount,
		Reference: strings.TrimSpace(req.Reference),
		Change:    decimal.Zero,
	}
	if req.Method == domain.PaymentMethodCash {
		payment.Change = req.Amount.Sub(total)
	} else {
		payment.Amount = total
	}
	return payment, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, page int, limit int) (domain.SaleListResponse, error) {
	page, limit = domain.NormalizePage(page, limit)
	sales, total, err := s.repo.ListSales(ctx, page, limit)
	if err != nil {
		return domain.SaleListResponse{}, err
	}
	if sales == nil {
		sales = []domain.Sale{}
	}
	return domain.SaleListResponse{
		Sales:      sales,
		Pagination: domain.NewPagination(page, limit, total),
	}, nil
}
