package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"xgrowth/internal/ai"
	"xgrowth/internal/audit"
	"xgrowth/internal/limits"
	"xgrowth/internal/logging"
	"xgrowth/internal/metrics"
	"xgrowth/internal/model"
	"xgrowth/internal/schedule"
	"xgrowth/internal/store"
	"xgrowth/internal/util"
	"xgrowth/internal/xapi"
)

const (
	autoPostLockTTL  = 180 * time.Second
	recentPostWindow = 120
	maxThreadParts   = 3
	postTextLimit    = 280
	postDelayMin     = 1 * time.Second
	postDelayMax     = 4 * time.Second
)

// AutoPostResult summarizes one auto-post run. Reason is set whenever nothing
// was posted, so callers can tell a skip from a failure.
type AutoPostResult struct {
	Posted  int
	Skipped int
	Blocked int
	Reason  string
}

func skipRun(reason string) AutoPostResult {
	return AutoPostResult{Skipped: 1, Reason: reason}
}

// RunAutoPost generates and publishes the user's next scheduled post (or
// thread). Exactly one run per user can publish at a time: a short lock
// guards the window between generation and the lastRunAt update. force
// bypasses the enabled/window/due gates but never the lock or the caps.
func RunAutoPost(ctx context.Context, d Deps, userID string, force bool) (AutoPostResult, error) {
	defer metrics.ObserveJobDuration("autopost", time.Now())

	lease, acquired, err := d.Locker.TryAcquire(ctx, "autopost:"+userID, autoPostLockTTL)
	if err != nil {
		// Lock backend down: run anyway rather than silently stop posting.
		logging.Warn("autopost_lock_unavailable", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
	} else if !acquired {
		return skipRun("already_running"), nil
	}
	defer lease.Release(ctx)

	if _, err := d.Store.GetConnection(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return skipRun("not_ready"), nil
		}
		return AutoPostResult{}, fmt.Errorf("load connection: %w", err)
	}
	cfg, err := d.Store.GetAutoTweetConfig(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return skipRun("not_ready"), nil
		}
		return AutoPostResult{}, fmt.Errorf("load autopost config: %w", err)
	}

	now := time.Now()
	if !force {
		if !cfg.Enabled {
			return skipRun("not_enabled"), nil
		}
		if !schedule.WithinWindow(now, cfg.WindowStart, cfg.WindowEnd) {
			return skipRun("outside_window"), nil
		}
		if !schedule.Due(now, cfg.LastRunAt, cfg.FrequencyMinutes) {
			return skipRun("not_due"), nil
		}
	}

	creds, err := d.Tokens.ValidAccessToken(ctx, userID)
	if err != nil {
		if xapi.IsNonRetryable(err) {
			metrics.JobBlocked.WithLabelValues("autopost").Inc()
			// Advance lastRunAt so a dead token does not hot-loop the
			// scheduler.
			if serr := d.Store.SetAutoTweetLastRun(ctx, userID, now); serr != nil {
				return AutoPostResult{}, serr
			}
			audit.Log(ctx, d.Store, audit.Entry{
				UserID:  userID,
				Action:  "autopost",
				Status:  model.LogBlocked,
				Message: err.Error(),
				Context: model.LogContext{Reason: "x_access_token_unavailable"},
			})
			return AutoPostResult{Blocked: 1, Reason: "x_access_token_unavailable"}, nil
		}
		return AutoPostResult{}, err
	}
	client := d.NewClient(creds.AccessToken)

	recent, err := d.Store.RecentGeneratedTexts(ctx, userID, recentPostWindow)
	if err != nil {
		return AutoPostResult{}, fmt.Errorf("recent posts: %w", err)
	}
	recentFPs := make(map[string]bool, len(recent))
	for _, text := range recent {
		recentFPs[util.Fingerprint(text)] = true
	}

	parts, err := d.AI.GenerateTweet(ctx, ai.TweetInput{
		Topics:       cfg.Topics,
		ThreadMode:   cfg.ThreadMode,
		Language:     cfg.Language,
		RecentTweets: recent,
	})
	if err != nil {
		return AutoPostResult{}, fmt.Errorf("generate post: %w", err)
	}
	parts = prepareParts(parts, cfg.ThreadMode)
	if len(parts) == 0 {
		if err := d.Store.SetAutoTweetLastRun(ctx, userID, now); err != nil {
			return AutoPostResult{}, err
		}
		return skipRun("empty_generation"), nil
	}

	var res AutoPostResult
	var postedIDs []string
	parent := ""
	sourceTopic := ""
	if len(cfg.Topics) > 0 {
		sourceTopic = cfg.Topics[0]
	}

	for _, part := range parts {
		fp := util.Fingerprint(part)
		if recentFPs[fp] {
			res.Blocked++
			continue
		}

		mod, err := d.AI.Moderate(ctx, part)
		if err != nil {
			return res, fmt.Errorf("moderate post: %w", err)
		}
		if !mod.Allowed {
			res.Blocked++
			audit.Log(ctx, d.Store, audit.Entry{
				UserID:  userID,
				Action:  "autopost",
				Status:  model.LogBlocked,
				Message: mod.Reason,
				Context: model.LogContext{Reason: "moderation"},
			})
			continue
		}

		if err := d.Ledger.AssertWithinHardCap(ctx, userID, model.ActionTweet); err != nil {
			if limits.IsCapExceeded(err) {
				res.Blocked++
				audit.Log(ctx, d.Store, audit.Entry{
					UserID:  userID,
					Action:  "autopost",
					Status:  model.LogBlocked,
					Message: err.Error(),
					Context: model.LogContext{Reason: "post_cap"},
				})
				break
			}
			return res, err
		}

		if err := d.sleep(ctx, postDelayMin, postDelayMax); err != nil {
			return res, err
		}
		tweetID, err := client.PostTweet(ctx, part, parent)
		if err != nil {
			if xapi.IsNonRetryable(err) {
				res.Blocked++
				metrics.JobBlocked.WithLabelValues("autopost").Inc()
				audit.Log(ctx, d.Store, audit.Entry{
					UserID:  userID,
					Action:  "autopost",
					Status:  model.LogBlocked,
					Message: err.Error(),
					Context: model.LogContext{Reason: "publish_rejected"},
				})
				break
			}
			return res, fmt.Errorf("publish: %w", err)
		}

		if _, err := d.Store.CreateGeneratedPost(ctx, model.GeneratedPost{
			UserID:      userID,
			Text:        part,
			ThreadParts: parts,
			XTweetID:    tweetID,
			SourceTopic: sourceTopic,
			Status:      "posted",
			PostedAt:    time.Now(),
		}); err != nil {
			return res, err
		}
		if err := d.Ledger.Record(ctx, userID, model.ActionTweet, model.EventMeta{
			XTweetID:    tweetID,
			Fingerprint: fp,
		}); err != nil {
			return res, err
		}
		recentFPs[fp] = true
		postedIDs = append(postedIDs, tweetID)
		parent = tweetID
		res.Posted++
	}

	if err := d.Store.SetAutoTweetLastRun(ctx, userID, now); err != nil {
		return res, err
	}

	status := model.LogSuccess
	if res.Posted == 0 {
		res.Reason = "all_segments_blocked"
		status = model.LogBlocked
	}
	audit.Log(ctx, d.Store, audit.Entry{
		UserID: userID,
		Action: "autopost",
		Status: status,
		Context: model.LogContext{
			Posted:    res.Posted,
			Blocked:   res.Blocked,
			PostedIDs: postedIDs,
			Reason:    res.Reason,
		},
	})
	return res, nil
}

// prepareParts normalizes generated segments and drops duplicates within the
// batch. A non-thread run keeps a single segment, a thread keeps up to three.
func prepareParts(raw []string, threadMode bool) []string {
	max := 1
	if threadMode {
		max = maxThreadParts
	}
	seen := make(map[string]bool)
	var out []string
	for _, part := range raw {
		part = util.Truncate(util.CollapseLine(part), postTextLimit)
		if part == "" {
			continue
		}
		fp := util.Fingerprint(part)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, part)
		if len(out) == max {
			break
		}
	}
	return out
}
