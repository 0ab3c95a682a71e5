package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"xgrowth/internal/model"
)

// ErrNotFound is returned by single-row lookups with no match.
var ErrNotFound = errors.New("store: not found")

// Store wraps the SQLite database holding all engine state.
type Store struct{ sql *sql.DB }

func Open(path string) (*Store, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA foreign_keys=ON;`); err != nil {
		return nil, err
	}
	s := &Store{sql: d}
	if err := s.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.sql.Close() }

func (s *Store) migrate() error {
	_, err := s.sql.Exec(`
	CREATE TABLE IF NOT EXISTS users (
	  id TEXT PRIMARY KEY,
	  email TEXT NOT NULL UNIQUE,
	  name TEXT NOT NULL DEFAULT '',
	  plan TEXT NOT NULL DEFAULT 'FREE',
	  created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS connections (
	  user_id TEXT PRIMARY KEY,
	  x_user_id TEXT NOT NULL,
	  handle TEXT NOT NULL DEFAULT '',
	  access_token_enc TEXT NOT NULL,
	  refresh_token_enc TEXT NOT NULL DEFAULT '',
	  token_expires_at INTEGER,
	  scope TEXT NOT NULL DEFAULT '',
	  paid_tier TEXT NOT NULL DEFAULT 'FREE',
	  updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS app_credentials (
	  user_id TEXT PRIMARY KEY,
	  client_id_enc TEXT NOT NULL,
	  client_secret_enc TEXT NOT NULL DEFAULT '',
	  callback_url TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS topics (
	  id TEXT PRIMARY KEY,
	  user_id TEXT NOT NULL,
	  keyword TEXT NOT NULL,
	  language TEXT NOT NULL DEFAULT '',
	  min_likes INTEGER NOT NULL DEFAULT 0,
	  exclude_words TEXT NOT NULL DEFAULT '[]',
	  active INTEGER NOT NULL DEFAULT 1,
	  updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_topics_user_active ON topics(user_id, active);
	CREATE TABLE IF NOT EXISTS candidates (
	  id TEXT PRIMARY KEY,
	  user_id TEXT NOT NULL,
	  tweet_id TEXT NOT NULL,
	  author_id TEXT NOT NULL DEFAULT '',
	  author_handle TEXT NOT NULL DEFAULT '',
	  text TEXT NOT NULL DEFAULT '',
	  language TEXT NOT NULL DEFAULT '',
	  like_count INTEGER NOT NULL DEFAULT 0,
	  discovered_at INTEGER NOT NULL,
	  reply_text TEXT NOT NULL DEFAULT '',
	  replied_at INTEGER,
	  liked_at INTEGER,
	  followed_at INTEGER,
	  moderation_status TEXT NOT NULL DEFAULT 'UNREVIEWED',
	  fingerprint TEXT NOT NULL DEFAULT '',
	  UNIQUE(user_id, tweet_id)
	);
	CREATE INDEX IF NOT EXISTS idx_candidates_pending ON candidates(user_id, replied_at, like_count);
	CREATE TABLE IF NOT EXISTS reply_configs (
	  user_id TEXT PRIMARY KEY,
	  tone TEXT NOT NULL DEFAULT 'PROFESSIONAL',
	  cta_style TEXT NOT NULL DEFAULT 'SOFT',
	  bio_context TEXT NOT NULL DEFAULT '',
	  like_on_reply INTEGER NOT NULL DEFAULT 1,
	  follow_on_reply INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS auto_tweet_configs (
	  user_id TEXT PRIMARY KEY,
	  topics TEXT NOT NULL DEFAULT '[]',
	  frequency_minutes INTEGER NOT NULL DEFAULT 240,
	  window_start TEXT NOT NULL DEFAULT '09:00',
	  window_end TEXT NOT NULL DEFAULT '18:00',
	  thread_mode INTEGER NOT NULL DEFAULT 0,
	  language TEXT NOT NULL DEFAULT 'en',
	  enabled INTEGER NOT NULL DEFAULT 0,
	  last_run_at INTEGER
	);
	CREATE TABLE IF NOT EXISTS generated_posts (
	  id TEXT PRIMARY KEY,
	  user_id TEXT NOT NULL,
	  text TEXT NOT NULL,
	  thread_parts TEXT NOT NULL DEFAULT '[]',
	  x_tweet_id TEXT NOT NULL DEFAULT '',
	  source_topic TEXT NOT NULL DEFAULT '',
	  status TEXT NOT NULL DEFAULT 'posted',
	  posted_at INTEGER NOT NULL,
	  created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_generated_user_created ON generated_posts(user_id, created_at);
	CREATE TABLE IF NOT EXISTS usage_events (
	  id TEXT PRIMARY KEY,
	  user_id TEXT NOT NULL,
	  action TEXT NOT NULL,
	  meta TEXT NOT NULL DEFAULT '{}',
	  created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_user_action_ts ON usage_events(user_id, action, created_at);
	CREATE TABLE IF NOT EXISTS action_logs (
	  id TEXT PRIMARY KEY,
	  user_id TEXT NOT NULL,
	  action TEXT NOT NULL,
	  status TEXT NOT NULL,
	  message TEXT NOT NULL DEFAULT '',
	  context TEXT NOT NULL DEFAULT '{}',
	  created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_logs_user_ts ON action_logs(user_id, created_at);
	`)
	return err
}

func newID() string { return uuid.NewString() }

func nullUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func fromNullUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func encodeJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// CreateUser inserts a user, assigning an id when absent.
func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == "" {
		u.ID = newID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.sql.ExecContext(ctx,
		`INSERT INTO users(id, email, name, plan, created_at) VALUES(?,?,?,?,?)`,
		u.ID, u.Email, u.Name, string(u.Plan), u.CreatedAt.Unix())
	return u, err
}

func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	row := s.sql.QueryRowContext(ctx, `SELECT id, email, name, plan, created_at FROM users WHERE id=?`, id)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.sql.QueryRowContext(ctx, `SELECT id, email, name, plan, created_at FROM users WHERE email=?`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	var plan string
	var created int64
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &plan, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, ErrNotFound
		}
		return u, err
	}
	u.Plan = model.PlanTier(plan)
	u.CreatedAt = time.Unix(created, 0).UTC()
	return u, nil
}

func (s *Store) SetUserPlan(ctx context.Context, id string, plan model.PlanTier) error {
	_, err := s.sql.ExecContext(ctx, `UPDATE users SET plan=? WHERE id=?`, string(plan), id)
	return err
}

// ListConnectedUserIDs returns ids of every user with an X connection, for
// the scheduler fan-out.
func (s *Store) ListConnectedUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.sql.QueryContext(ctx, `SELECT user_id FROM connections ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) GetConnection(ctx context.Context, userID string) (model.Connection, error) {
	row := s.sql.QueryRowContext(ctx,
		`SELECT user_id, x_user_id, handle, access_token_enc, refresh_token_enc, token_expires_at, scope, paid_tier, updated_at
		 FROM connections WHERE user_id=?`, userID)
	var c model.Connection
	var expires sql.NullInt64
	var tier string
	var updated int64
	if err := row.Scan(&c.UserID, &c.XUserID, &c.Handle, &c.AccessTokenEnc, &c.RefreshTokenEnc, &expires, &c.Scope, &tier, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, ErrNotFound
		}
		return c, err
	}
	c.TokenExpiresAt = fromNullUnix(expires)
	c.PaidTier = model.PaidTier(tier)
	c.UpdatedAt = time.Unix(updated, 0).UTC()
	return c, nil
}

// UpsertConnection writes the whole connection row, one per user.
func (s *Store) UpsertConnection(ctx context.Context, c model.Connection) error {
	_, err := s.sql.ExecContext(ctx, `
	INSERT INTO connections(user_id, x_user_id, handle, access_token_enc, refresh_token_enc, token_expires_at, scope, paid_tier, updated_at)
	VALUES(?,?,?,?,?,?,?,?,?)
	ON CONFLICT(user_id) DO UPDATE SET
	  x_user_id=excluded.x_user_id, handle=excluded.handle,
	  access_token_enc=excluded.access_token_enc, refresh_token_enc=excluded.refresh_token_enc,
	  token_expires_at=excluded.token_expires_at, scope=excluded.scope,
	  paid_tier=excluded.paid_tier, updated_at=excluded.updated_at`,
		c.UserID, c.XUserID, c.Handle, c.AccessTokenEnc, c.RefreshTokenEnc,
		nullUnix(c.TokenExpiresAt), c.Scope, string(c.PaidTier), time.Now().UTC().Unix())
	return err
}

// UpdateConnectionTokens persists refreshed credentials on an existing connection.
func (s *Store) UpdateConnectionTokens(ctx context.Context, userID, accessTokenEnc, refreshTokenEnc string, expiresAt *time.Time, scope string) error {
	res, err := s.sql.ExecContext(ctx, `
	UPDATE connections SET access_token_enc=?, refresh_token_enc=?, token_expires_at=?, scope=?, updated_at=?
	WHERE user_id=?`,
		accessTokenEnc, refreshTokenEnc, nullUnix(expiresAt), scope, time.Now().UTC().Unix(), userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetAppCredential(ctx context.Context, userID string) (model.AppCredential, error) {
	row := s.sql.QueryRowContext(ctx,
		`SELECT user_id, client_id_enc, client_secret_enc, callback_url FROM app_credentials WHERE user_id=?`, userID)
	var a model.AppCredential
	if err := row.Scan(&a.UserID, &a.ClientIDEnc, &a.ClientSecretEnc, &a.CallbackURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, ErrNotFound
		}
		return a, err
	}
	return a, nil
}

func (s *Store) UpsertAppCredential(ctx context.Context, a model.AppCredential) error {
	_, err := s.sql.ExecContext(ctx, `
	INSERT INTO app_credentials(user_id, client_id_enc, client_secret_enc, callback_url) VALUES(?,?,?,?)
	ON CONFLICT(user_id) DO UPDATE SET
	  client_id_enc=excluded.client_id_enc, client_secret_enc=excluded.client_secret_enc, callback_url=excluded.callback_url`,
		a.UserID, a.ClientIDEnc, a.ClientSecretEnc, a.CallbackURL)
	return err
}

func (s *Store) CreateTopic(ctx context.Context, t model.Topic) (model.Topic, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	_, err := s.sql.ExecContext(ctx,
		`INSERT INTO topics(id, user_id, keyword, language, min_likes, exclude_words, active, updated_at) VALUES(?,?,?,?,?,?,?,?)`,
		t.ID, t.UserID, t.Keyword, t.Language, t.MinLikes, encodeJSON(t.ExcludeWords), boolInt(t.Active), t.UpdatedAt.Unix())
	return t, err
}

// ListActiveTopics returns active topics most recently updated first, the
// order discovery walks them in.
func (s *Store) ListActiveTopics(ctx context.Context, userID string) ([]model.Topic, error) {
	rows, err := s.sql.QueryContext(ctx,
		`SELECT id, user_id, keyword, language, min_likes, exclude_words, active, updated_at
		 FROM topics WHERE user_id=? AND active=1 ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Topic
	for rows.Next() {
		var t model.Topic
		var words string
		var active int
		var updated int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Keyword, &t.Language, &t.MinLikes, &words, &active, &updated); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(words), &t.ExcludeWords)
		t.Active = active != 0
		t.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CountActiveTopics(ctx context.Context, userID string) (int, error) {
	row := s.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM topics WHERE user_id=? AND active=1`, userID)
	var n int
	err := row.Scan(&n)
	return n, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
