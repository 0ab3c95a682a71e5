package store

import (
	"context"
	"encoding/json"
	"time"

	"xgrowth/internal/model"
)

// AppendUsageEvent records one counted action. Failures propagate: an
// under-counted ledger would let callers sail past their caps.
func (s *Store) AppendUsageEvent(ctx context.Context, e model.UsageEvent) (model.UsageEvent, error) {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.sql.ExecContext(ctx,
		`INSERT INTO usage_events(id, user_id, action, meta, created_at) VALUES(?,?,?,?,?)`,
		e.ID, e.UserID, string(e.Action), encodeJSON(e.Meta), e.CreatedAt.Unix())
	return e, err
}

// CountUsageSince counts events of one action kind at or after since.
func (s *Store) CountUsageSince(ctx context.Context, userID string, action model.UsageAction, since time.Time) (int, error) {
	row := s.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usage_events WHERE user_id=? AND action=? AND created_at>=?`,
		userID, string(action), since.Unix())
	var n int
	err := row.Scan(&n)
	return n, err
}

// CountUsageAnySince counts events across the given action kinds at or after since.
func (s *Store) CountUsageAnySince(ctx context.Context, userID string, actions []model.UsageAction, since time.Time) (int, error) {
	if len(actions) == 0 {
		return 0, nil
	}
	query := `SELECT COUNT(*) FROM usage_events WHERE user_id=? AND created_at>=? AND action IN (?` +
		repeatPlaceholder(len(actions)-1) + `)`
	args := []any{userID, since.Unix()}
	for _, a := range actions {
		args = append(args, string(a))
	}
	row := s.sql.QueryRowContext(ctx, query, args...)
	var n int
	err := row.Scan(&n)
	return n, err
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ",?"
	}
	return out
}

// AppendActionLog writes one audit entry.
func (s *Store) AppendActionLog(ctx context.Context, l model.ActionLog) (model.ActionLog, error) {
	if l.ID == "" {
		l.ID = newID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := s.sql.ExecContext(ctx,
		`INSERT INTO action_logs(id, user_id, action, status, message, context, created_at) VALUES(?,?,?,?,?,?,?)`,
		l.ID, l.UserID, l.Action, l.Status, l.Message, encodeJSON(l.Context), l.CreatedAt.Unix())
	return l, err
}

// RecentActionLogs returns up to limit entries, newest first. Used by the
// CLI surface, never by the engine itself.
func (s *Store) RecentActionLogs(ctx context.Context, userID string, limit int) ([]model.ActionLog, error) {
	rows, err := s.sql.QueryContext(ctx, `
	SELECT id, user_id, action, status, message, context, created_at
	FROM action_logs WHERE user_id=? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ActionLog
	for rows.Next() {
		var l model.ActionLog
		var ctxJSON string
		var created int64
		if err := rows.Scan(&l.ID, &l.UserID, &l.Action, &l.Status, &l.Message, &ctxJSON, &created); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(ctxJSON), &l.Context)
		l.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}
