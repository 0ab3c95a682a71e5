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
	"xgrowth/internal/store"
	"xgrowth/internal/util"
	"xgrowth/internal/xapi"
)

const (
	engageBatchSize   = 10
	recentReplyWindow = 20

	replyDelayMin = 1500 * time.Millisecond
	replyDelayMax = 7 * time.Second
	extraDelayMin = 1 * time.Second
	extraDelayMax = 3 * time.Second
)

// EngagementResult summarizes one engagement run.
type EngagementResult struct {
	Replied  int
	Liked    int
	Followed int
	Blocked  int
}

// errSkipCandidate marks a candidate that was blocked rather than failed; the
// run moves on without logging an error.
var errSkipCandidate = errors.New("candidate blocked")

// RunEngagement replies to the highest-value pending candidates of one user.
// Cap exhaustion ends the run; per-candidate failures only cost that
// candidate.
func RunEngagement(ctx context.Context, d Deps, userID string) (EngagementResult, error) {
	var res EngagementResult
	defer metrics.ObserveJobDuration("engagement", time.Now())

	conn, err := d.Store.GetConnection(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return res, nil
		}
		return res, fmt.Errorf("load connection: %w", err)
	}

	cfg, err := d.Store.GetReplyConfig(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return res, fmt.Errorf("load reply config: %w", err)
		}
		cfg = model.DefaultReplyConfig(userID)
	}

	creds, err := d.Tokens.ValidAccessToken(ctx, userID)
	if err != nil {
		if xapi.IsNonRetryable(err) {
			res.Blocked++
			metrics.JobBlocked.WithLabelValues("engagement").Inc()
			audit.Log(ctx, d.Store, audit.Entry{
				UserID:  userID,
				Action:  "engagement",
				Status:  model.LogBlocked,
				Message: err.Error(),
				Context: model.LogContext{Reason: "x_access_token_unavailable"},
			})
			return res, nil
		}
		return res, err
	}
	client := d.NewClient(creds.AccessToken)

	candidates, err := d.Store.ListPendingCandidates(ctx, userID, engageBatchSize)
	if err != nil {
		return res, fmt.Errorf("list candidates: %w", err)
	}
	recent, err := d.Store.RecentReplyTexts(ctx, userID, recentReplyWindow)
	if err != nil {
		return res, fmt.Errorf("recent replies: %w", err)
	}

	for _, cand := range candidates {
		err := replyToCandidate(ctx, d, client, conn, cfg, cand, recent, &res)
		switch {
		case err == nil:
		case errors.Is(err, errSkipCandidate):
			res.Blocked++
		case limits.IsCapExceeded(err):
			// Daily or hourly reply budget spent; nothing left to do today.
			res.Blocked++
			audit.Log(ctx, d.Store, audit.Entry{
				UserID:  userID,
				Action:  "engagement",
				Status:  model.LogBlocked,
				Message: err.Error(),
				Context: model.LogContext{TweetID: cand.TweetID, Reason: "reply_cap"},
			})
		default:
			audit.Log(ctx, d.Store, audit.Entry{
				UserID:  userID,
				Action:  "engagement",
				Status:  model.LogError,
				Message: err.Error(),
				Context: model.LogContext{TweetID: cand.TweetID},
			})
		}
		if limits.IsCapExceeded(err) {
			break
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
	}

	audit.Log(ctx, d.Store, audit.Entry{
		UserID: userID,
		Action: "engagement",
		Status: model.LogSuccess,
		Context: model.LogContext{
			Replied:  res.Replied,
			Liked:    res.Liked,
			Followed: res.Followed,
			Blocked:  res.Blocked,
		},
	})
	return res, nil
}

func replyToCandidate(ctx context.Context, d Deps, client xapi.Client, conn model.Connection, cfg model.ReplyConfig, cand model.Candidate, recent []string, res *EngagementResult) error {
	if err := d.Ledger.AssertWithinHardCap(ctx, cand.UserID, model.ActionReply); err != nil {
		return err
	}

	reply, err := d.AI.GenerateReply(ctx, ai.ReplyInput{
		TweetText:     cand.Text,
		Tone:          cfg.Tone,
		CTAStyle:      cfg.CTAStyle,
		BioContext:    cfg.BioContext,
		RecentReplies: recent,
	})
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}

	dup, err := d.Store.HasReplyText(ctx, cand.UserID, reply)
	if err != nil {
		return fmt.Errorf("reply dedup: %w", err)
	}
	if dup {
		if err := d.Store.MarkCandidateBlocked(ctx, cand.ID); err != nil {
			return err
		}
		return errSkipCandidate
	}

	mod, err := d.AI.Moderate(ctx, reply)
	if err != nil {
		return fmt.Errorf("moderate reply: %w", err)
	}
	if !mod.Allowed {
		if err := d.Store.MarkCandidateBlocked(ctx, cand.ID); err != nil {
			return err
		}
		audit.Log(ctx, d.Store, audit.Entry{
			UserID:  cand.UserID,
			Action:  "engagement",
			Status:  model.LogBlocked,
			Message: mod.Reason,
			Context: model.LogContext{TweetID: cand.TweetID, Reason: "moderation"},
		})
		return errSkipCandidate
	}

	if err := d.sleep(ctx, replyDelayMin, replyDelayMax); err != nil {
		return err
	}
	if _, err := client.PostTweet(ctx, reply, cand.TweetID); err != nil {
		return fmt.Errorf("post reply: %w", err)
	}

	now := time.Now()
	if err := d.Store.MarkCandidateReplied(ctx, cand.ID, reply, util.Fingerprint(reply), now); err != nil {
		return err
	}
	if err := d.Ledger.Record(ctx, cand.UserID, model.ActionReply, model.EventMeta{
		TweetID:  cand.TweetID,
		AuthorID: cand.AuthorID,
	}); err != nil {
		return err
	}
	res.Replied++

	// Like and follow ride along best-effort: their failures never undo a
	// reply that already went out.
	if cfg.LikeOnReply && cand.LikedAt == nil {
		if ok := tryExtra(ctx, d, client, conn, cand, model.ActionLike); ok {
			res.Liked++
		}
	}
	if cfg.FollowOnReply && cand.FollowedAt == nil {
		if ok := tryExtra(ctx, d, client, conn, cand, model.ActionFollow); ok {
			res.Followed++
		}
	}
	return nil
}

// tryExtra performs the optional like or follow after a reply. Any failure is
// logged and absorbed.
func tryExtra(ctx context.Context, d Deps, client xapi.Client, conn model.Connection, cand model.Candidate, action model.UsageAction) bool {
	err := func() error {
		if err := d.Ledger.AssertWithinHardCap(ctx, cand.UserID, action); err != nil {
			return err
		}
		if err := d.sleep(ctx, extraDelayMin, extraDelayMax); err != nil {
			return err
		}
		now := time.Now()
		switch action {
		case model.ActionLike:
			if err := client.LikeTweet(ctx, conn.XUserID, cand.TweetID); err != nil {
				return err
			}
			if err := d.Store.MarkCandidateLiked(ctx, cand.ID, now); err != nil {
				return err
			}
		case model.ActionFollow:
			if err := client.FollowUser(ctx, conn.XUserID, cand.AuthorID); err != nil {
				return err
			}
			if err := d.Store.MarkCandidateFollowed(ctx, cand.ID, now); err != nil {
				return err
			}
		}
		return d.Ledger.Record(ctx, cand.UserID, action, model.EventMeta{
			TweetID:  cand.TweetID,
			AuthorID: cand.AuthorID,
		})
	}()
	if err != nil {
		logging.Warn("engagement_extra_skipped", map[string]any{
			"user_id": cand.UserID,
			"action":  string(action),
			"error":   err.Error(),
		})
		return false
	}
	return true
}
