package limits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"xgrowth/internal/metrics"
	"xgrowth/internal/model"
	"xgrowth/internal/plan"
	"xgrowth/internal/store"
)

// Platform-wide daily ceilings applied regardless of plan. X throttles these
// actions server-side well before most plans would.
const (
	xDailyLikeCeiling   = 1000
	xDailyFollowCeiling = 400
)

var hourlyCappedActions = []model.UsageAction{
	model.ActionReply, model.ActionLike, model.ActionTweet, model.ActionFollow,
}

// ErrNotConnected is returned when a user has no X connection.
var ErrNotConnected = errors.New("user is not connected to X")

// CapError reports which ceiling a cap check hit. Cap exhaustion is terminal
// for the current run; the usage window advancing resolves it.
type CapError struct {
	Kind  string
	Limit int
}

func (e *CapError) Error() string {
	return fmt.Sprintf("cap exceeded: %s (limit %d)", e.Kind, e.Limit)
}

// IsCapExceeded reports whether err is a cap violation.
func IsCapExceeded(err error) bool {
	var ce *CapError
	return errors.As(err, &ce)
}

// Usage is the windowed counter set backing cap decisions.
type Usage struct {
	RepliesToday  int
	LikesToday    int
	FollowsToday  int
	TweetsToday   int
	HourlyActions int
	TopicsTracked int
}

// Snapshot pairs effective limits with current usage.
type Snapshot struct {
	Limits plan.LimitSet
	Usage  Usage
}

// Ledger answers cap questions from the append-only usage event log.
type Ledger struct {
	store *store.Store
	now   func() time.Time
}

func NewLedger(s *store.Store) *Ledger { return &Ledger{store: s, now: time.Now} }

func startOfUTCDay(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Snapshot loads the user's connection, computes effective limits, and counts
// usage since UTC midnight plus a rolling one-hour aggregate.
func (l *Ledger) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	var snap Snapshot
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return snap, ErrNotConnected
		}
		return snap, err
	}
	conn, err := l.store.GetConnection(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return snap, ErrNotConnected
		}
		return snap, err
	}
	snap.Limits = plan.Effective(user.Plan, conn.PaidTier)

	now := l.now().UTC()
	dayStart := startOfUTCDay(now)
	hourAgo := now.Add(-time.Hour)

	if snap.Usage.RepliesToday, err = l.store.CountUsageSince(ctx, userID, model.ActionReply, dayStart); err != nil {
		return snap, err
	}
	if snap.Usage.LikesToday, err = l.store.CountUsageSince(ctx, userID, model.ActionLike, dayStart); err != nil {
		return snap, err
	}
	if snap.Usage.FollowsToday, err = l.store.CountUsageSince(ctx, userID, model.ActionFollow, dayStart); err != nil {
		return snap, err
	}
	if snap.Usage.TweetsToday, err = l.store.CountUsageSince(ctx, userID, model.ActionTweet, dayStart); err != nil {
		return snap, err
	}
	if snap.Usage.HourlyActions, err = l.store.CountUsageAnySince(ctx, userID, hourlyCappedActions, hourAgo); err != nil {
		return snap, err
	}
	if snap.Usage.TopicsTracked, err = l.store.CountActiveTopics(ctx, userID); err != nil {
		return snap, err
	}
	return snap, nil
}

// AssertWithinHardCap fails once the relevant counter has reached its limit.
// The hourly aggregate is checked before any daily counter.
func (l *Ledger) AssertWithinHardCap(ctx context.Context, userID string, action model.UsageAction) error {
	snap, err := l.Snapshot(ctx, userID)
	if err != nil {
		return err
	}
	if snap.Usage.HourlyActions >= snap.Limits.HourlyActionCap {
		return capHit(&CapError{Kind: "hourly", Limit: snap.Limits.HourlyActionCap})
	}
	switch action {
	case model.ActionReply:
		if snap.Usage.RepliesToday >= snap.Limits.RepliesPerDay {
			return capHit(&CapError{Kind: "replies", Limit: snap.Limits.RepliesPerDay})
		}
	case model.ActionLike:
		limit := min(snap.Limits.LikesPerDay, xDailyLikeCeiling)
		if snap.Usage.LikesToday >= limit {
			return capHit(&CapError{Kind: "likes", Limit: limit})
		}
	case model.ActionTweet:
		if snap.Usage.TweetsToday >= snap.Limits.TweetsPerDay {
			return capHit(&CapError{Kind: "tweets", Limit: snap.Limits.TweetsPerDay})
		}
	case model.ActionFollow:
		if !snap.Limits.AllowFollow {
			return capHit(&CapError{Kind: "follow_not_allowed"})
		}
		if snap.Usage.FollowsToday >= xDailyFollowCeiling {
			return capHit(&CapError{Kind: "follows", Limit: xDailyFollowCeiling})
		}
	}
	return nil
}

func capHit(e *CapError) error {
	metrics.CapHits.WithLabelValues(e.Kind).Inc()
	return e
}

// AssertTopicSlots fails when tracking n more topics would exceed the cap.
func (l *Ledger) AssertTopicSlots(ctx context.Context, userID string, n int) error {
	snap, err := l.Snapshot(ctx, userID)
	if err != nil {
		return err
	}
	if snap.Usage.TopicsTracked+n > snap.Limits.TopicsTracked {
		return capHit(&CapError{Kind: "topics", Limit: snap.Limits.TopicsTracked})
	}
	return nil
}

// Record appends one usage event. Errors propagate so caps stay accurate.
func (l *Ledger) Record(ctx context.Context, userID string, action model.UsageAction, meta model.EventMeta) error {
	_, err := l.store.AppendUsageEvent(ctx, model.UsageEvent{UserID: userID, Action: action, Meta: meta})
	return err
}
