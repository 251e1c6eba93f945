package memory

import (
	"context"
	"fmt"
	"sort"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
)

func (s *Store) CreateEstimate(_ context.Context, estimate domain.Estimate) (*domain.Estimate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.estimateSeq++
	estimate.Number = fmt.Sprintf("EST-%06d", s.estimateSeq)
	s.estimatesByID[estimate.ID] = cloneEstimate(estimate)
	out := cloneEstimate(estimate)
	return &out, nil
}

func (s *Store) GetEstimate(_ context.Context, id string) (*domain.Estimate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	estimate, ok := s.estimatesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneEstimate(estimate)
	return &out, nil
}

func (s *Store) ListEstimates(_ context.Context, query domain.EstimateQuery) ([]domain.Estimate, int, error) {
	s.mu.RLock()
	result := make([]domain.Estimate, 0, len(s.estimatesByID))
	for _, estimate := range s.estimatesByID {
		if query.Status != "" && estimate.Status != query.Status {
			continue
		}
		result = append(result, cloneEstimate(estimate))
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].Number > result[j].Number
	})
	return page(result, query.Page, query.Limit), len(result), nil
}

func (s *Store) UpdateEstimate(_ context.Context, id string, apply func(domain.Estimate) (domain.Estimate, error)) (*domain.Estimate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	estimate, ok := s.estimatesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	updated, err := apply(cloneEstimate(estimate))
	if err != nil {
		return nil, err
	}
	updated.ID = estimate.ID
	updated.Number = estimate.Number
	s.estimatesByID[id] = cloneEstimate(updated)
	return &updated, nil
}

func (s *Store) InvoiceEstimate(_ context.Context, id string, invoice domain.Invoice) (*domain.Estimate, *domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	estimate, ok := s.estimatesByID[id]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	if !estimate.CanInvoice() {
		return nil, nil, fmt.Errorf("%w: estimate %s is %s", store.ErrConflict, estimate.Number, estimate.Status)
	}
	invoice.Total = estimate.Total
	invoice.EstimateID = estimate.ID
	if invoice.CustomerName == "" {
		invoice.CustomerName = estimate.CustomerName
	}
	if err := s.insertInvoiceLocked(invoice); err != nil {
		return nil, nil, err
	}

	estimate.Status = domain.EstimateStatusInvoiced
	estimate.InvoiceID = invoice.ID
	estimate.UpdatedAt = invoice.CreatedAt
	s.estimatesByID[id] = estimate

	out := cloneEstimate(estimate)
	return &out, &invoice, nil
}
