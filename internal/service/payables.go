package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/ledger"
	"posledger/backend/internal/store"
	"posledger/backend/internal/xid"
)

func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (domain.Invoice, error) {
	req.Number = strings.TrimSpace(req.Number)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if err := s.validateStruct(req); err != nil {
		return domain.Invoice{}, err
	}
	if !req.Total.IsPositive() {
		return domain.Invoice{}, invalid("total must be greater than zero")
	}
	if err := checkMoney("total", req.Total); err != nil {
		return domain.Invoice{}, err
	}

	now := s.now()
	created, err := withDocumentNumber("INV", now, req.Number, func(number string) (*domain.Invoice, error) {
		return s.repo.CreateInvoice(ctx, domain.Invoice{
			ID:           xid.New("inv"),
			Number:       number,
			CustomerName: req.CustomerName,
			Total:        req.Total,
			PaidAmount:   decimal.Zero,
			Status:       domain.PaymentStatusPending,
			DueDate:      req.DueDate,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	return *created, nil
}

func (s *Service) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	invoice, err := s.repo.GetInvoice(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Invoice{}, err
	}
	return *invoice, nil
}

func (s *Service) ListInvoices(ctx context.Context, query domain.PayableQuery) (domain.InvoiceListResponse, error) {
	if err := normalizePayableQuery(&query); err != nil {
		return domain.InvoiceListResponse{}, err
	}
	invoices, total, err := s.repo.ListInvoices(ctx, query)
	if err != nil {
		return domain.InvoiceListResponse{}, err
	}
	if invoices == nil {
		invoices = []domain.Invoice{}
	}
	return domain.InvoiceListResponse{
		Invoices:   invoices,
		Pagination: domain.NewPagination(query.Page, query.Limit, total),
	}, nil
}

// PayInvoice applies amount under a row lock; paying a settled invoice is a
// no-op that still succeeds.
func (s *Service) PayInvoice(ctx context.Context, id string, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	var result ledger.Result
	_, err := s.repo.ApplyInvoicePayment(ctx, strings.TrimSpace(id), func(invoice domain.Invoice) (domain.Invoice, error) {
		applied, err := ledger.ApplyPayment(invoice.Total, invoice.PaidAmount, req.Amount)
		if err != nil {
			return invoice, err
		}
		result = applied
		invoice.PaidAmount = applied.PaidAmount
		invoice.Status = applied.Status
		invoice.UpdatedAt = s.now()
		return invoice, nil
	})
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	return paymentResponse(result), nil
}

func (s *Service) CreateBillingRecord(ctx context.Context, req domain.BillingCreateRequest) (domain.BillingRecord, error) {
	req.Number = strings.TrimSpace(req.Number)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.FileRef = strings.TrimSpace(req.FileRef)
	if err := s.validateStruct(req); err != nil {
		return domain.BillingRecord{}, err
	}
	if !req.Total.IsPositive() {
		return domain.BillingRecord{}, invalid("total must be greater than zero")
	}
	if err := checkMoney("total", req.Total); err != nil {
		return domain.BillingRecord{}, err
	}

	now := s.now()
	created, err := withDocumentNumber("BIL", now, req.Number, func(number string) (*domain.BillingRecord, error) {
		return s.repo.CreateBillingRecord(ctx, domain.BillingRecord{
			ID:           xid.New("bil"),
			Number:       number,
			CustomerName: req.CustomerName,
			FileRef:      req.FileRef,
			Total:        req.Total,
			PaidAmount:   decimal.Zero,
			Status:       domain.PaymentStatusPending,
			DueDate:      req.DueDate,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	})
	if err != nil {
		return domain.BillingRecord{}, err
	}
	return *created, nil
}

func (s *Service) GetBillingRecord(ctx context.Context, id string) (domain.BillingRecord, error) {
	record, err := s.repo.GetBillingRecord(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.BillingRecord{}, err
	}
	return *record, nil
}

func (s *Service) ListBillingRecords(ctx context.Context, query domain.PayableQuery) (domain.BillingListResponse, error) {
	if err := normalizePayableQuery(&query); err != nil {
		return domain.BillingListResponse{}, err
	}
	records, total, err := s.repo.ListBillingRecords(ctx, query)
	if err != nil {
		return domain.BillingListResponse{}, err
	}
	if records == nil {
		records = []domain.BillingRecord{}
	}
	return domain.BillingListResponse{
		Records:    records,
		Pagination: domain.NewPagination(query.Page, query.Limit, total),
	}, nil
}

func (s *Service) PayBillingRecord(ctx context.Context, id string, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	var result ledger.Result
	_, err := s.repo.ApplyBillingPayment(ctx, strings.TrimSpace(id), func(record domain.BillingRecord) (domain.BillingRecord, error) {
		applied, err := ledger.ApplyPayment(record.Total, record.PaidAmount, req.Amount)
		if err != nil {
			return record, err
		}
		result = applied
		record.PaidAmount = applied.PaidAmount
		record.Status = applied.Status
		record.UpdatedAt = s.now()
		return record, nil
	})
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	return paymentResponse(result), nil
}

const documentNumberAttempts = 3

// withDocumentNumber runs create with number, or with generated numbers when
// number is empty. A generated number that collides is replaced and retried.
func withDocumentNumber[T any](prefix string, at time.Time, number string, create func(string) (T, error)) (T, error) {
	if number != "" {
		return create(number)
	}
	var (
		created T
		err     error
	)
	for range documentNumberAttempts {
		created, err = create(xid.DocumentNumber(prefix, at))
		if !errors.Is(err, store.ErrConflict) {
			return created, err
		}
	}
	return created, err
}

func paymentResponse(result ledger.Result) domain.PaymentResponse {
	return domain.PaymentResponse{
		Success:    true,
		Remaining:  result.Remaining,
		PaidAmount: result.PaidAmount,
		Status:     result.Status,
	}
}

func normalizePayableQuery(query *domain.PayableQuery) error {
	query.Status = domain.PaymentStatus(strings.ToUpper(strings.TrimSpace(string(query.Status))))
	switch query.Status {
	case "", domain.PaymentStatusPending, domain.PaymentStatusPartiallyPaid, domain.PaymentStatusPaid:
	default:
		return invalid("unknown payment status %q", query.Status)
	}
	query.Page, query.Limit = domain.NormalizePage(query.Page, query.Limit)
	return nil
}
