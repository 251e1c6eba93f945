package changelog

import (
	"context"
	"encoding/json"
	"log/slog"
	"reflect"
	"time"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/store"
	"posledger/backend/internal/xid"
)

var ignoredFields = map[string]struct{}{
	"updated_at": {},
}

// Diff compares the JSON forms of before and after field by field. A nil
// before reports every field of after with a null old value.
func Diff(before, after any) map[string]domain.FieldChange {
	oldFields := fields(before)
	newFields := fields(after)
	changes := make(map[string]domain.FieldChange)

	for key, newValue := range newFields {
		if _, skip := ignoredFields[key]; skip {
			continue
		}
		oldValue, ok := oldFields[key]
		if ok && reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		changes[key] = domain.FieldChange{Old: oldValue, New: newValue}
	}
	for key, oldValue := range oldFields {
		if _, skip := ignoredFields[key]; skip {
			continue
		}
		if _, ok := newFields[key]; ok {
			continue
		}
		changes[key] = domain.FieldChange{Old: oldValue, New: nil}
	}
	return changes
}

func fields(value any) map[string]any {
	if value == nil {
		return map[string]any{}
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return map[string]any{}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// Recorder writes one change-log entry per product mutation.
type Recorder struct {
	store  store.ChangeLogStore
	logger *slog.Logger
	now    func() time.Time
}

func NewRecorder(logs store.ChangeLogStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:  logs,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record never fails the caller; persistence errors are only logged.
func (r *Recorder) Record(ctx context.Context, actor string, productID string, action domain.ChangeAction, before, after any) {
	if r == nil || r.store == nil {
		return
	}
	if actor == "" {
		actor = "system"
	}
	entry := domain.ProductChangeLog{
		ID:        xid.New("pcl"),
		ProductID: productID,
		Action:    action,
		Changes:   Diff(before, after),
		Actor:     actor,
		CreatedAt: r.now(),
	}
	if err := r.store.CreateChangeLog(ctx, entry); err != nil {
		r.logger.WarnContext(ctx, "change log write failed",
			slog.String("product_id", productID),
			slog.String("action", string(action)),
			slog.Any("error", err),
		)
	}
}
