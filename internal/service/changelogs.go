package service

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"posledger/backend/internal/domain"
)

func (s *Service) ListChangeLogs(ctx context.Context, query domain.ChangeLogQuery) (domain.ChangeLogListResponse, error) {
	query.ProductID = strings.TrimSpace(query.ProductID)
	query.Action = domain.ChangeAction(strings.ToLower(strings.TrimSpace(string(query.Action))))
	switch query.Action {
	case "", domain.ChangeActionCreate, domain.ChangeActionUpdate, domain.ChangeActionDelete:
	default:
		return domain.ChangeLogListResponse{}, invalid("unknown change action %q", query.Action)
	}
	query.Page, query.Limit = domain.NormalizePage(query.Page, query.Limit)

	var (
		logs  []domain.ProductChangeLog
		total int
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		logs, err = s.repo.ListChangeLogs(groupCtx, query)
		return err
	})
	group.Go(func() error {
		var err error
		total, err = s.repo.CountChangeLogs(groupCtx, query)
		return err
	})
	if err := group.Wait(); err != nil {
		return domain.ChangeLogListResponse{}, err
	}
	if logs == nil {
		logs = []domain.ProductChangeLog{}
	}
	return domain.ChangeLogListResponse{
		Logs:       logs,
		Pagination: domain.NewPagination(query.Page, query.Limit, total),
	}, nil
}
