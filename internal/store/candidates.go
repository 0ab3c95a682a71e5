package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"xgrowth/internal/model"
)

// CreateCandidate inserts a discovered tweet. The (user_id, tweet_id) unique
// constraint makes re-discovery of the same tweet an error the caller can
// treat as already-present.
func (s *Store) CreateCandidate(ctx context.Context, c model.Candidate) (model.Candidate, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.DiscoveredAt.IsZero() {
		c.DiscoveredAt = time.Now().UTC()
	}
	if c.ModerationStatus == "" {
		c.ModerationStatus = model.ModerationUnreviewed
	}
	_, err := s.sql.ExecContext(ctx, `
	INSERT INTO candidates(id, user_id, tweet_id, author_id, author_handle, text, language, like_count, discovered_at, moderation_status, fingerprint)
	VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.UserID, c.TweetID, c.AuthorID, c.AuthorHandle, c.Text, c.Language,
		c.LikeCount, c.DiscoveredAt.Unix(), string(c.ModerationStatus), c.Fingerprint)
	return c, err
}

// HasCandidate reports whether the tweet is already persisted for the user.
func (s *Store) HasCandidate(ctx context.Context, userID, tweetID string) (bool, error) {
	row := s.sql.QueryRowContext(ctx, `SELECT 1 FROM candidates WHERE user_id=? AND tweet_id=?`, userID, tweetID)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListPendingCandidates returns unreplied candidates, most liked first, older
// discoveries breaking ties.
func (s *Store) ListPendingCandidates(ctx context.Context, userID string, limit int) ([]model.Candidate, error) {
	rows, err := s.sql.QueryContext(ctx, `
	SELECT id, user_id, tweet_id, author_id, author_handle, text, language, like_count, discovered_at,
	       reply_text, replied_at, liked_at, followed_at, moderation_status, fingerprint
	FROM candidates WHERE user_id=? AND replied_at IS NULL
	ORDER BY like_count DESC, discovered_at ASC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidates(rows)
}

func scanCandidates(rows *sql.Rows) ([]model.Candidate, error) {
	var out []model.Candidate
	for rows.Next() {
		var c model.Candidate
		var discovered int64
		var replied, liked, followed sql.NullInt64
		var status string
		if err := rows.Scan(&c.ID, &c.UserID, &c.TweetID, &c.AuthorID, &c.AuthorHandle, &c.Text, &c.Language,
			&c.LikeCount, &discovered, &c.ReplyText, &replied, &liked, &followed, &status, &c.Fingerprint); err != nil {
			return nil, err
		}
		c.DiscoveredAt = time.Unix(discovered, 0).UTC()
		c.RepliedAt = fromNullUnix(replied)
		c.LikedAt = fromNullUnix(liked)
		c.FollowedAt = fromNullUnix(followed)
		c.ModerationStatus = model.ModerationStatus(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecentReplyTexts returns up to limit prior reply texts, newest first, used
// as an avoid-repeat hint for generation.
func (s *Store) RecentReplyTexts(ctx context.Context, userID string, limit int) ([]string, error) {
	rows, err := s.sql.QueryContext(ctx, `
	SELECT reply_text FROM candidates WHERE user_id=? AND reply_text != ''
	ORDER BY replied_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// HasReplyText reports whether the user already replied with exactly this text.
func (s *Store) HasReplyText(ctx context.Context, userID, text string) (bool, error) {
	row := s.sql.QueryRowContext(ctx, `SELECT 1 FROM candidates WHERE user_id=? AND reply_text=? LIMIT 1`, userID, text)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkCandidateReplied stores the posted reply and its fingerprint.
func (s *Store) MarkCandidateReplied(ctx context.Context, id, replyText, fingerprint string, at time.Time) error {
	_, err := s.sql.ExecContext(ctx, `
	UPDATE candidates SET reply_text=?, replied_at=?, moderation_status=?, fingerprint=? WHERE id=?`,
		replyText, at.Unix(), string(model.ModerationPassed), fingerprint, id)
	return err
}

func (s *Store) MarkCandidateLiked(ctx context.Context, id string, at time.Time) error {
	_, err := s.sql.ExecContext(ctx, `UPDATE candidates SET liked_at=? WHERE id=?`, at.Unix(), id)
	return err
}

func (s *Store) MarkCandidateFollowed(ctx context.Context, id string, at time.Time) error {
	_, err := s.sql.ExecContext(ctx, `UPDATE candidates SET followed_at=? WHERE id=?`, at.Unix(), id)
	return err
}

func (s *Store) MarkCandidateBlocked(ctx context.Context, id string) error {
	_, err := s.sql.ExecContext(ctx, `UPDATE candidates SET moderation_status=? WHERE id=?`, string(model.ModerationBlocked), id)
	return err
}
