package ai

import (
	"context"
	"strings"
	"testing"

	"xgrowth/internal/config"
	"xgrowth/internal/model"
)

func TestOfflineReplyTonePrefixes(t *testing.T) {
	ctx := context.Background()
	var g Offline

	cases := []struct {
		tone   model.Tone
		prefix string
	}{
		{model.ToneWitty, "Sharp point."},
		{model.ToneInsightful, "Interesting signal."},
		{model.ToneProfessional, "Great point."},
	}
	for _, c := range cases {
		reply, err := g.GenerateReply(ctx, ReplyInput{TweetText: "shipping beats planning", Tone: c.tone})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(reply, c.prefix) {
			t.Errorf("tone %s: reply %q lacks prefix %q", c.tone, reply, c.prefix)
		}
	}
}

func TestOfflineReplyCTAEndings(t *testing.T) {
	ctx := context.Background()
	var g Offline

	reply, _ := g.GenerateReply(ctx, ReplyInput{TweetText: "x", CTAStyle: model.CTADirect})
	if !strings.Contains(reply, "follow for more") {
		t.Errorf("direct CTA missing: %q", reply)
	}
	reply, _ = g.GenerateReply(ctx, ReplyInput{TweetText: "x", CTAStyle: model.CTANone})
	if strings.Contains(reply, "follow for more") || strings.Contains(reply, "Curious how") {
		t.Errorf("no-CTA reply has a CTA: %q", reply)
	}
}

func TestOfflineTweetUsesFirstTopic(t *testing.T) {
	var g Offline
	parts, err := g.GenerateTweet(context.Background(), TweetInput{Topics: []string{"devtools", "ai"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 1 || !strings.Contains(parts[0], "devtools") {
		t.Fatalf("parts = %v", parts)
	}
}

func TestOfflineModeration(t *testing.T) {
	var g Offline
	mod, err := g.Moderate(context.Background(), "FREE MONEY click here now")
	if err != nil {
		t.Fatal(err)
	}
	if mod.Allowed {
		t.Fatal("spam should be blocked")
	}
	mod, _ = g.Moderate(context.Background(), "Shipping small changes daily compounds fast.")
	if !mod.Allowed {
		t.Fatalf("clean text blocked: %+v", mod)
	}
}

func TestNewGeneratorFallsBackWithoutProvider(t *testing.T) {
	g := NewGenerator(config.LLMConfig{})
	if _, ok := g.(Offline); !ok {
		t.Fatalf("unconfigured LLM should yield Offline, got %T", g)
	}
	g = NewGenerator(config.LLMConfig{Provider: "openai", APIKey: "sk-test"})
	if _, ok := g.(*OpenAI); !ok {
		t.Fatalf("configured openai should yield *OpenAI, got %T", g)
	}
}
