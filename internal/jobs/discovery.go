// Package jobs holds the engagement engine's background processors and the
// in-process queue that drives them. Each processor is a plain function over
// a Deps bundle so it can run from the queue, the CLI, or a test unchanged.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"xgrowth/internal/audit"
	"xgrowth/internal/logging"
	"xgrowth/internal/metrics"
	"xgrowth/internal/model"
	"xgrowth/internal/store"
	"xgrowth/internal/util"
	"xgrowth/internal/xapi"
)

const (
	seenSetDiscovery = "discovery"
	seenTTL          = 30 * 24 * time.Hour
	searchBatchSize  = 20
)

// DiscoveryResult summarizes one discovery run.
type DiscoveryResult struct {
	Discovered int
	Skipped    int
	Blocked    int
}

// RunDiscovery searches recent tweets for every active topic of one user and
// stores new candidates. A user without a connection is a silent no-op so the
// scheduler can enqueue everyone without pre-filtering.
func RunDiscovery(ctx context.Context, d Deps, userID string) (DiscoveryResult, error) {
	var res DiscoveryResult
	defer metrics.ObserveJobDuration("discovery", time.Now())

	if _, err := d.Store.GetConnection(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return res, nil
		}
		return res, fmt.Errorf("load connection: %w", err)
	}

	creds, err := d.Tokens.ValidAccessToken(ctx, userID)
	if err != nil {
		if xapi.IsNonRetryable(err) {
			res.Blocked++
			metrics.JobBlocked.WithLabelValues("discovery").Inc()
			audit.Log(ctx, d.Store, audit.Entry{
				UserID:  userID,
				Action:  "discovery",
				Status:  model.LogBlocked,
				Message: err.Error(),
				Context: model.LogContext{Reason: "x_access_token_unavailable"},
			})
			return res, nil
		}
		return res, err
	}
	client := d.NewClient(creds.AccessToken)

	topics, err := d.Store.ListActiveTopics(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("list topics: %w", err)
	}

	for _, topic := range topics {
		tweets, err := client.SearchRecent(ctx, xapi.SearchInput{
			Query:      topic.Keyword,
			Language:   topic.Language,
			MinLikes:   topic.MinLikes,
			MaxResults: searchBatchSize,
		})
		if err != nil {
			if xapi.IsNonRetryable(err) {
				res.Blocked++
				metrics.JobBlocked.WithLabelValues("discovery").Inc()
				audit.Log(ctx, d.Store, audit.Entry{
					UserID:  userID,
					Action:  "discovery",
					Status:  model.LogBlocked,
					Message: err.Error(),
					Context: model.LogContext{Reason: "search_rejected"},
				})
				break
			}
			return res, fmt.Errorf("search %q: %w", topic.Keyword, err)
		}

		for _, t := range tweets {
			kept, err := keepCandidate(ctx, d, userID, topic, t)
			if err != nil {
				return res, err
			}
			if kept {
				res.Discovered++
			} else {
				res.Skipped++
			}
		}

		if err := d.Ledger.Record(ctx, userID, model.ActionDiscovery, model.EventMeta{
			TopicID: topic.ID,
			Keyword: topic.Keyword,
		}); err != nil {
			return res, fmt.Errorf("record discovery usage: %w", err)
		}
	}

	audit.Log(ctx, d.Store, audit.Entry{
		UserID: userID,
		Action: "discovery",
		Status: model.LogSuccess,
		Context: model.LogContext{
			Discovered: res.Discovered,
			Skipped:    res.Skipped,
			Blocked:    res.Blocked,
		},
	})
	return res, nil
}

// keepCandidate applies the dedup and topic filters to one found tweet and
// stores it when it survives. Returns whether the tweet became a candidate.
func keepCandidate(ctx context.Context, d Deps, userID string, topic model.Topic, t xapi.FoundTweet) (bool, error) {
	seen, err := d.Seen.Seen(ctx, seenSetDiscovery+":"+userID, t.ID)
	if err != nil {
		// Seen-set backend down: fall through to the database check.
		logging.Warn("seen_set_unavailable", map[string]any{"error": err.Error()})
	} else if seen {
		return false, nil
	}

	exists, err := d.Store.HasCandidate(ctx, userID, t.ID)
	if err != nil {
		return false, fmt.Errorf("check candidate: %w", err)
	}
	if exists {
		return false, markSeen(ctx, d, userID, t.ID)
	}

	if util.ContainsExcludedWord(t.Text, topic.ExcludeWords) {
		return false, markSeen(ctx, d, userID, t.ID)
	}

	_, err = d.Store.CreateCandidate(ctx, model.Candidate{
		UserID:       userID,
		TweetID:      t.ID,
		AuthorID:     t.AuthorID,
		AuthorHandle: t.AuthorHandle,
		Text:         t.Text,
		Language:     t.Language,
		LikeCount:    t.LikeCount,
		Fingerprint:  util.Fingerprint(t.Text),
	})
	if err != nil {
		// A concurrent run can win the UNIQUE(user_id, tweet_id) race.
		logging.Warn("candidate_insert_failed", map[string]any{
			"user_id":  userID,
			"tweet_id": t.ID,
			"error":    err.Error(),
		})
		return false, markSeen(ctx, d, userID, t.ID)
	}
	return true, markSeen(ctx, d, userID, t.ID)
}

func markSeen(ctx context.Context, d Deps, userID, tweetID string) error {
	if err := d.Seen.Mark(ctx, seenSetDiscovery+":"+userID, tweetID, seenTTL); err != nil {
		logging.Warn("seen_set_mark_failed", map[string]any{"error": err.Error()})
	}
	return nil
}
