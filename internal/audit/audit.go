// Package audit writes the per-user action trail. The engine only ever
// appends; the trail is read by operators and the CLI surface.
package audit

import (
	"context"

	"xgrowth/internal/logging"
	"xgrowth/internal/model"
	"xgrowth/internal/store"
)

// Entry is one audit record.
type Entry struct {
	UserID  string
	Action  string
	Status  string
	Message string
	Context model.LogContext
}

// Log appends an entry. A write failure is reported to the process log but
// not returned: audit is best-effort and must never fail a run.
func Log(ctx context.Context, s *store.Store, e Entry) {
	_, err := s.AppendActionLog(ctx, model.ActionLog{
		UserID:  e.UserID,
		Action:  e.Action,
		Status:  e.Status,
		Message: e.Message,
		Context: e.Context,
	})
	if err != nil {
		logging.Error("action_log_write_failed", map[string]any{
			"user_id": e.UserID,
			"action":  e.Action,
			"error":   err.Error(),
		})
	}
}
