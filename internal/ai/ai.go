// Package ai is the text generation and moderation capability. It tolerates
// being unconfigured: the Offline implementation produces deterministic,
// plausible content with no network calls.
package ai

import (
	"context"
	"fmt"
	"strings"

	"xgrowth/internal/model"
	"xgrowth/internal/util"
)

// ReplyInput shapes one reply generation.
type ReplyInput struct {
	TweetText     string
	Tone          model.Tone
	CTAStyle      model.CTAStyle
	BioContext    string
	RecentReplies []string
}

// TweetInput shapes one original-post generation.
type TweetInput struct {
	Topics       []string
	ThreadMode   bool
	Language     string
	RecentTweets []string
}

// Moderation is the outcome of a moderation check.
type Moderation struct {
	Allowed bool
	Reason  string
}

// Generator produces and vets post text.
type Generator interface {
	GenerateReply(ctx context.Context, in ReplyInput) (string, error)
	GenerateTweet(ctx context.Context, in TweetInput) ([]string, error)
	Moderate(ctx context.Context, text string) (Moderation, error)
}

// Offline is the no-provider fallback generator.
type Offline struct{}

func (Offline) GenerateReply(_ context.Context, in ReplyInput) (string, error) {
	var prefix string
	switch in.Tone {
	case model.ToneWitty:
		prefix = "Sharp point."
	case model.ToneInsightful:
		prefix = "Interesting signal."
	default:
		prefix = "Great point."
	}
	var ending string
	switch in.CTAStyle {
	case model.CTADirect:
		ending = "If this resonates, follow for more practical growth playbooks."
	case model.CTASoft:
		ending = "Curious how others here are approaching this."
	}
	reply := prefix + " " + util.Truncate(in.TweetText, 110)
	if ending != "" {
		reply += " " + ending
	}
	return strings.TrimSpace(reply), nil
}

func (Offline) GenerateTweet(_ context.Context, in TweetInput) ([]string, error) {
	topic := "saas growth"
	if len(in.Topics) > 0 && in.Topics[0] != "" {
		topic = in.Topics[0]
	}
	return []string{fmt.Sprintf("Sustainable %s is mostly consistent execution, tight feedback loops, and clear positioning.", topic)}, nil
}

func (Offline) Moderate(_ context.Context, text string) (Moderation, error) {
	if util.LikelySpam(text) {
		return Moderation{Allowed: false, Reason: "Rule-based spam pattern detected"}, nil
	}
	return Moderation{Allowed: true}, nil
}
