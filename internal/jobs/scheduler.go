package jobs

import (
	"context"
	"time"

	"xgrowth/internal/logging"
)

// Scheduler periodically enqueues the three job kinds for every connected
// user. Per-user gating (windows, frequency, caps) lives in the processors;
// the scheduler only provides the heartbeat.
type Scheduler struct {
	queue *Queue
}

func NewScheduler(q *Queue) *Scheduler { return &Scheduler{queue: q} }

// Run ticks until ctx is canceled. Intervals come from the scheduler config;
// a zero or negative interval disables that kind.
func (s *Scheduler) Run(ctx context.Context) {
	cfg := s.queue.deps.Cfg.Scheduler
	kinds := []struct {
		kind    Kind
		minutes int
	}{
		{KindDiscovery, cfg.DiscoveryMinutes},
		{KindEngagement, cfg.EngagementMinutes},
		{KindAutoPost, cfg.AutoPostMinutes},
	}
	for _, k := range kinds {
		if k.minutes <= 0 {
			continue
		}
		go s.tickLoop(ctx, k.kind, time.Duration(k.minutes)*time.Minute)
	}
	<-ctx.Done()
}

func (s *Scheduler) tickLoop(ctx context.Context, kind Kind, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.enqueueAll(ctx, kind)
		}
	}
}

func (s *Scheduler) enqueueAll(ctx context.Context, kind Kind) {
	userIDs, err := s.queue.deps.Store.ListConnectedUserIDs(ctx)
	if err != nil {
		logging.Error("scheduler_list_users_failed", map[string]any{
			"kind":  string(kind),
			"error": err.Error(),
		})
		return
	}
	for _, id := range userIDs {
		if _, err := s.queue.Enqueue(ctx, kind, id, false); err != nil {
			logging.Warn("scheduler_enqueue_failed", map[string]any{
				"kind":    string(kind),
				"user_id": id,
				"error":   err.Error(),
			})
		}
	}
}
