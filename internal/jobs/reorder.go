package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"posledger/backend/internal/domain"
)

const (
	QueueDefault = "default"
	// TaskReorderScan opens pending orders for products at or below their reorder point.
	TaskReorderScan = "inventory:reorder_scan"
)

type ReorderScanPayload struct {
	Trigger string `json:"trigger"`
}

func NewReorderScanTask(trigger string) (*asynq.Task, error) {
	body, err := json.Marshal(ReorderScanPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReorderScan, body, asynq.Queue(QueueDefault)), nil
}

// Reorderer is satisfied by *service.Service.
type Reorderer interface {
	CreateReorderOrders(ctx context.Context) (domain.ReorderResponse, error)
}

type ReorderScanJob struct {
	reorderer Reorderer
	logger    *slog.Logger
	clock     func() time.Time
}

func NewReorderScanJob(reorderer Reorderer, logger *slog.Logger) *ReorderScanJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReorderScanJob{
		reorderer: reorderer,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

func (j *ReorderScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.reorderer == nil {
		return errors.New("reorder scan: handler not configured")
	}
	var payload ReorderScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	start := j.clock()
	logger := j.logger.With(slog.String("task", TaskReorderScan), slog.String("trigger", payload.Trigger))
	result, err := j.reorderer.CreateReorderOrders(ctx)
	if err != nil {
		logger.Error("reorder scan failed", slog.Any("error", err))
		return err
	}
	logger.Info("reorder scan complete",
		slog.Int("created", len(result.Created)),
		slog.Int("skipped", result.Skipped),
		slog.Duration("elapsed", j.clock().Sub(start)),
	)
	return nil
}
