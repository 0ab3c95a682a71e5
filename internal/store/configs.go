package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"xgrowth/internal/model"
)

func (s *Store) GetReplyConfig(ctx context.Context, userID string) (model.ReplyConfig, error) {
	row := s.sql.QueryRowContext(ctx,
		`SELECT user_id, tone, cta_style, bio_context, like_on_reply, follow_on_reply FROM reply_configs WHERE user_id=?`, userID)
	var c model.ReplyConfig
	var tone, cta string
	var like, follow int
	if err := row.Scan(&c.UserID, &tone, &cta, &c.BioContext, &like, &follow); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, ErrNotFound
		}
		return c, err
	}
	c.Tone = model.Tone(tone)
	c.CTAStyle = model.CTAStyle(cta)
	c.LikeOnReply = like != 0
	c.FollowOnReply = follow != 0
	return c, nil
}

func (s *Store) UpsertReplyConfig(ctx context.Context, c model.ReplyConfig) error {
	_, err := s.sql.ExecContext(ctx, `
	INSERT INTO reply_configs(user_id, tone, cta_style, bio_context, like_on_reply, follow_on_reply) VALUES(?,?,?,?,?,?)
	ON CONFLICT(user_id) DO UPDATE SET
	  tone=excluded.tone, cta_style=excluded.cta_style, bio_context=excluded.bio_context,
	  like_on_reply=excluded.like_on_reply, follow_on_reply=excluded.follow_on_reply`,
		c.UserID, string(c.Tone), string(c.CTAStyle), c.BioContext, boolInt(c.LikeOnReply), boolInt(c.FollowOnReply))
	return err
}

func (s *Store) GetAutoTweetConfig(ctx context.Context, userID string) (model.AutoTweetConfig, error) {
	row := s.sql.QueryRowContext(ctx, `
	SELECT user_id, topics, frequency_minutes, window_start, window_end, thread_mode, language, enabled, last_run_at
	FROM auto_tweet_configs WHERE user_id=?`, userID)
	var c model.AutoTweetConfig
	var topics string
	var thread, enabled int
	var lastRun sql.NullInt64
	if err := row.Scan(&c.UserID, &topics, &c.FrequencyMinutes, &c.WindowStart, &c.WindowEnd, &thread, &c.Language, &enabled, &lastRun); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, ErrNotFound
		}
		return c, err
	}
	_ = json.Unmarshal([]byte(topics), &c.Topics)
	c.ThreadMode = thread != 0
	c.Enabled = enabled != 0
	c.LastRunAt = fromNullUnix(lastRun)
	return c, nil
}

func (s *Store) UpsertAutoTweetConfig(ctx context.Context, c model.AutoTweetConfig) error {
	_, err := s.sql.ExecContext(ctx, `
	INSERT INTO auto_tweet_configs(user_id, topics, frequency_minutes, window_start, window_end, thread_mode, language, enabled, last_run_at)
	VALUES(?,?,?,?,?,?,?,?,?)
	ON CONFLICT(user_id) DO UPDATE SET
	  topics=excluded.topics, frequency_minutes=excluded.frequency_minutes,
	  window_start=excluded.window_start, window_end=excluded.window_end,
	  thread_mode=excluded.thread_mode, language=excluded.language,
	  enabled=excluded.enabled, last_run_at=excluded.last_run_at`,
		c.UserID, encodeJSON(c.Topics), c.FrequencyMinutes, c.WindowStart, c.WindowEnd,
		boolInt(c.ThreadMode), c.Language, boolInt(c.Enabled), nullUnix(c.LastRunAt))
	return err
}

// SetAutoTweetLastRun records an auto-post attempt, successful or not.
func (s *Store) SetAutoTweetLastRun(ctx context.Context, userID string, at time.Time) error {
	_, err := s.sql.ExecContext(ctx, `UPDATE auto_tweet_configs SET last_run_at=? WHERE user_id=?`, at.Unix(), userID)
	return err
}

func (s *Store) CreateGeneratedPost(ctx context.Context, p model.GeneratedPost) (model.GeneratedPost, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.PostedAt.IsZero() {
		p.PostedAt = now
	}
	_, err := s.sql.ExecContext(ctx, `
	INSERT INTO generated_posts(id, user_id, text, thread_parts, x_tweet_id, source_topic, status, posted_at, created_at)
	VALUES(?,?,?,?,?,?,?,?,?)`,
		p.ID, p.UserID, p.Text, encodeJSON(p.ThreadParts), p.XTweetID, p.SourceTopic, p.Status, p.PostedAt.Unix(), p.CreatedAt.Unix())
	return p, err
}

// RecentGeneratedTexts returns up to limit published texts, newest first.
// Auto-post dedup deliberately looks only at this bounded window.
func (s *Store) RecentGeneratedTexts(ctx context.Context, userID string, limit int) ([]string, error) {
	rows, err := s.sql.QueryContext(ctx,
		`SELECT text FROM generated_posts WHERE user_id=? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
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
