package memory

import (
	"context"
	"fmt"
	"sort"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

func (s *Store) CreateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertInvoiceLocked(invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// insertInvoiceLocked expects the write lock to be held.
func (s *Store) insertInvoiceLocked(invoice domain.Invoice) error {
	for _, existing := range s.invoicesByID {
		if existing.Number == invoice.Number {
			return fmt.Errorf("%w: invoice number %s already exists", store.ErrConflict, invoice.Number)
		}
	}
	s.invoicesByID[invoice.ID] = invoice
	return nil
}

func (s *Store) GetInvoice(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, ok := s.invoicesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &invoice, nil
}

func (s *Store) ListInvoices(_ context.Context, query domain.PayableQuery) ([]domain.Invoice, int, error) {
	s.mu.RLock()
	result := make([]domain.Invoice, 0, len(s.invoicesByID))
	for _, invoice := range s.invoicesByID {
		if query.Status != "" && invoice.Status != query.Status {
			continue
		}
		result = append(result, invoice)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[i].CreatedAt, result[j].CreatedAt, result[i].ID, result[j].ID)
	})
	return page(result, query.Page, query.Limit), len(result), nil
}

func (s *Store) ApplyInvoicePayment(_ context.Context, id string, apply func(domain.Invoice) (domain.Invoice, error)) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, ok := s.invoicesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	updated, err := apply(invoice)
	if err != nil {
		return nil, err
	}
	s.invoicesByID[id] = updated
	return &updated, nil
}

func (s *Store) CreateBillingRecord(_ context.Context, record domain.BillingRecord) (*domain.BillingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.billingByID {
		if existing.Number == record.Number {
			return nil, fmt.Errorf("%w: billing number %s already exists", store.ErrConflict, record.Number)
		}
	}
	s.billingByID[record.ID] = record
	return &record, nil
}

func (s *Store) GetBillingRecord(_ context.Context, id string) (*domain.BillingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.billingByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &record, nil
}

func (s *Store) ListBillingRecords(_ context.Context, query domain.PayableQuery) ([]domain.BillingRecord, int, error) {
	s.mu.RLock()
	result := make([]domain.BillingRecord, 0, len(s.billingByID))
	for _, record := range s.billingByID {
		if query.Status != "" && record.Status != query.Status {
			continue
		}
		result = append(result, record)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return newerFirst(result[i].CreatedAt, result[j].CreatedAt, result[i].ID, result[j].ID)
	})
	return page(result, query.Page, query.Limit), len(result), nil
}

func (s *Store) ApplyBillingPayment(_ context.Context, id string, apply func(domain.BillingRecord) (domain.BillingRecord, error)) (*domain.BillingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.billingByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	updated, err := apply(record)
	if err != nil {
		return nil, err
	}
	s.billingByID[id] = updated
	return &updated, nil
}
