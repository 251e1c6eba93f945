package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
	"posledger/backend/internal/xid"
)

func (s *Service) CreateEstimate(ctx context.Context, req domain.EstimateCreateRequest) (domain.Estimate, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if err := s.validateStruct(req); err != nil {
		return domain.Estimate{}, err
	}

	lines := make([]domain.EstimateLine, 0, len(req.Items))
	total := decimal.Zero
	for i, item := range req.Items {
		if item.UnitPrice.IsNegative() {
			return domain.Estimate{}, invalid("items[%d].unit_price must not be negative", i)
		}
		if err := checkMoney(fmt.Sprintf("items[%d].unit_price", i), item.UnitPrice); err != nil {
			return domain.Estimate{}, err
		}
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Qty)))
		total = total.Add(lineTotal)
		lines = append(lines, domain.EstimateLine{
			Description: strings.TrimSpace(item.Description),
			SKU:         domain.NormalizeSKU(item.SKU),
			Qty:         item.Qty,
			UnitPrice:   item.UnitPrice,
			LineTotal:   lineTotal,
		})
	}
	if !total.IsPositive() {
		return domain.Estimate{}, invalid("estimate total must be greater than zero")
	}
	if err := checkMoney("total", total); err != nil {
		return domain.Estimate{}, err
	}

	now := s.now()
	created, err := s.repo.CreateEstimate(ctx, domain.Estimate{
		ID:           xid.New("est"),
		CustomerName: req.CustomerName,
		Items:        lines,
		Total:        total,
		Status:       domain.EstimateStatusDraft,
		ValidUntil:   req.ValidUntil,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return domain.Estimate{}, err
	}
	return *created, nil
}

func (s *Service) GetEstimate(ctx context.Context, id string) (domain.Estimate, error) {
	estimate, err := s.repo.GetEstimate(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Estimate{}, err
	}
	return *estimate, nil
}

func (s *Service) ListEstimates(ctx context.Context, query domain.EstimateQuery) (domain.EstimateListResponse, error) {
	query.Status = strings.ToLower(strings.TrimSpace(query.Status))
	switch query.Status {
	case "", domain.EstimateStatusDraft, domain.EstimateStatusApproved, domain.EstimateStatusInvoiced:
	default:
		return domain.EstimateListResponse{}, invalid("unknown estimate status %q", query.Status)
	}
	query.Page, query.Limit = domain.NormalizePage(query.Page, query.Limit)

	estimates, total, err := s.repo.ListEstimates(ctx, query)
	if err != nil {
		return domain.EstimateListResponse{}, err
	}
	if estimates == nil {
		estimates = []domain.Estimate{}
	}
	return domain.EstimateListResponse{
		Estimates:  estimates,
		Pagination: domain.NewPagination(query.Page, query.Limit, total),
	}, nil
}

func (s *Service) ApproveEstimate(ctx context.Context, id string) (domain.Estimate, error) {
	updated, err := s.repo.UpdateEstimate(ctx, strings.TrimSpace(id), func(estimate domain.Estimate) (domain.Estimate, error) {
		if !estimate.CanApprove() {
			return estimate, fmt.Errorf("%w: estimate %s is %s", store.ErrConflict, estimate.Number, estimate.Status)
		}
		estimate.Status = domain.EstimateStatusApproved
		estimate.UpdatedAt = s.now()
		return estimate, nil
	})
	if err != nil {
		return domain.Estimate{}, err
	}
	return *updated, nil
}

// InvoiceEstimate converts a draft or approved estimate into an invoice for
// its total.
func (s *Service) InvoiceEstimate(ctx context.Context, id string, req domain.EstimateInvoiceRequest) (domain.EstimateInvoiceResponse, error) {
	now := s.now()
	id = strings.TrimSpace(id)
	resp, err := withDocumentNumber("INV", now, "", func(number string) (domain.EstimateInvoiceResponse, error) {
		estimate, invoice, err := s.repo.InvoiceEstimate(ctx, id, domain.Invoice{
			ID:         xid.New("inv"),
			Number:     number,
			PaidAmount: decimal.Zero,
			Status:     domain.PaymentStatusPending,
			DueDate:    req.DueDate,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			return domain.EstimateInvoiceResponse{}, err
		}
		return domain.EstimateInvoiceResponse{Estimate: *estimate, Invoice: *invoice}, nil
	})
	if err != nil {
		return domain.EstimateInvoiceResponse{}, err
	}
	return resp, nil
}
