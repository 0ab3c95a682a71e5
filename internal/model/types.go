package model

import "time"

// PlanTier is the internal subscription tier.
type PlanTier string

const (
	PlanFree PlanTier = "FREE"
	PlanPro  PlanTier = "PRO"
	PlanTeam PlanTier = "TEAM"
)

// PaidTier is the paid tier detected on the connected X account.
type PaidTier string

const (
	TierFree       PaidTier = "FREE"
	TierBasic      PaidTier = "BASIC"
	TierPro        PaidTier = "PRO"
	TierEnterprise PaidTier = "ENTERPRISE"
)

// UsageAction is the kind of a recorded usage event.
type UsageAction string

const (
	ActionReply     UsageAction = "REPLY"
	ActionLike      UsageAction = "LIKE"
	ActionTweet     UsageAction = "TWEET"
	ActionFollow    UsageAction = "FOLLOW"
	ActionDiscovery UsageAction = "DISCOVERY"
)

// ModerationStatus tracks the moderation outcome on a candidate.
type ModerationStatus string

const (
	ModerationUnreviewed ModerationStatus = "UNREVIEWED"
	ModerationPassed     ModerationStatus = "PASSED"
	ModerationBlocked    ModerationStatus = "BLOCKED"
)

// Tone selects the reply voice.
type Tone string

const (
	ToneProfessional Tone = "PROFESSIONAL"
	ToneWitty        Tone = "WITTY"
	ToneInsightful   Tone = "INSIGHTFUL"
)

// CTAStyle selects how pushy a reply's call-to-action is.
type CTAStyle string

const (
	CTASoft   CTAStyle = "SOFT"
	CTADirect CTAStyle = "DIRECT"
	CTANone   CTAStyle = "NONE"
)

// Log statuses for action log entries.
const (
	LogSuccess = "success"
	LogBlocked = "blocked"
	LogError   = "error"
	LogInfo    = "info"
)

// User is an account of the automation service.
type User struct {
	ID        string
	Email     string
	Name      string
	Plan      PlanTier
	CreatedAt time.Time
}

// Connection links a user to their X account. Tokens are stored encrypted.
type Connection struct {
	UserID          string
	XUserID         string
	Handle          string
	AccessTokenEnc  string
	RefreshTokenEnc string
	TokenExpiresAt  *time.Time
	Scope           string
	PaidTier        PaidTier
	UpdatedAt       time.Time
}

// AppCredential is a user's own OAuth app, overriding the process default.
type AppCredential struct {
	UserID          string
	ClientIDEnc     string
	ClientSecretEnc string
	CallbackURL     string
}

// Topic is a tracked search keyword.
type Topic struct {
	ID           string
	UserID       string
	Keyword      string
	Language     string
	MinLikes     int
	ExcludeWords []string
	Active       bool
	UpdatedAt    time.Time
}

// Candidate is a discovered tweet matching a tracked topic.
type Candidate struct {
	ID               string
	UserID           string
	TweetID          string
	AuthorID         string
	AuthorHandle     string
	Text             string
	Language         string
	LikeCount        int
	DiscoveredAt     time.Time
	ReplyText        string
	RepliedAt        *time.Time
	LikedAt          *time.Time
	FollowedAt       *time.Time
	ModerationStatus ModerationStatus
	Fingerprint      string
}

// ReplyConfig controls reply generation for a user.
type ReplyConfig struct {
	UserID        string
	Tone          Tone
	CTAStyle      CTAStyle
	BioContext    string
	LikeOnReply   bool
	FollowOnReply bool
}

// DefaultReplyConfig is used when a user has never saved one.
func DefaultReplyConfig(userID string) ReplyConfig {
	return ReplyConfig{
		UserID:      userID,
		Tone:        ToneProfessional,
		CTAStyle:    CTASoft,
		LikeOnReply: true,
	}
}

// AutoTweetConfig controls periodic original posting.
type AutoTweetConfig struct {
	UserID           string
	Topics           []string
	FrequencyMinutes int
	WindowStart      string // "HH:MM"
	WindowEnd        string // "HH:MM"
	ThreadMode       bool
	Language         string
	Enabled          bool
	LastRunAt        *time.Time
}

// GeneratedPost is a published auto-post. Created only after a successful publish.
type GeneratedPost struct {
	ID          string
	UserID      string
	Text        string
	ThreadParts []string
	XTweetID    string
	SourceTopic string
	Status      string
	PostedAt    time.Time
	CreatedAt   time.Time
}

// EventMeta is the closed metadata record attached to a usage event.
type EventMeta struct {
	TweetID     string `json:"tweet_id,omitempty"`
	AuthorID    string `json:"author_id,omitempty"`
	TopicID     string `json:"topic_id,omitempty"`
	Keyword     string `json:"keyword,omitempty"`
	XTweetID    string `json:"x_tweet_id,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// UsageEvent is one counted action. Append-only; the basis of all cap checks.
type UsageEvent struct {
	ID        string
	UserID    string
	Action    UsageAction
	Meta      EventMeta
	CreatedAt time.Time
}

// LogContext is the closed structured context on an action log entry.
type LogContext struct {
	TweetID    string   `json:"tweet_id,omitempty"`
	AuthorID   string   `json:"author_id,omitempty"`
	Discovered int      `json:"discovered,omitempty"`
	Skipped    int      `json:"skipped,omitempty"`
	Blocked    int      `json:"blocked,omitempty"`
	Replied    int      `json:"replied,omitempty"`
	Liked      int      `json:"liked,omitempty"`
	Followed   int      `json:"followed,omitempty"`
	Posted     int      `json:"posted,omitempty"`
	PostedIDs  []string `json:"posted_ids,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// ActionLog is one audit trail entry. Write-only from the engine's point of view.
type ActionLog struct {
	ID        string
	UserID    string
	Action    string
	Status    string
	Message   string
	Context   LogContext
	CreatedAt time.Time
}
