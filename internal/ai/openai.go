package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"xgrowth/internal/config"
	"xgrowth/internal/util"
)

// OpenAI generates text via the chat-completions API and vets it via the
// moderations API. Spam heuristics run before any model call either way.
type OpenAI struct {
	apiKey   string
	apiModel string
	baseURL  string

	httpDo func(*http.Request) (*http.Response, error)
}

// NewGenerator picks the provider-backed generator when configured, else
// the offline fallback.
func NewGenerator(cfg config.LLMConfig) Generator {
	if strings.ToLower(cfg.Provider) != "openai" || cfg.APIKey == "" {
		return Offline{}
	}
	return &OpenAI{
		apiKey:   cfg.APIKey,
		apiModel: cfg.Model,
		baseURL:  "https://api.openai.com/v1",
		httpDo:   (&http.Client{Timeout: 30 * time.Second}).Do,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *OpenAI) chat(ctx context.Context, temperature float64, system, user string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       o.apiModel,
		Temperature: temperature,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.httpDo(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("llm status %d", resp.StatusCode)
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func numberLines(lines []string, max int) string {
	if len(lines) > max {
		lines = lines[:max]
	}
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%d. %s\n", i+1, util.CollapseLine(line))
	}
	if b.Len() == 0 {
		return "None"
	}
	return b.String()
}

func (o *OpenAI) GenerateReply(ctx context.Context, in ReplyInput) (string, error) {
	bio := in.BioContext
	if bio == "" {
		bio = "N/A"
	}
	user := strings.Join([]string{
		"Tone: " + string(in.Tone),
		"Bio context: " + bio,
		"CTA style: " + string(in.CTAStyle),
		"Target tweet: " + util.CollapseLine(in.TweetText),
		"Avoid repeating these previous replies:\n" + numberLines(in.RecentReplies, 8),
		"Constraints: max 240 chars, no emojis unless absolutely natural, no hard selling.",
	}, "\n\n")
	text, err := o.chat(ctx, 0.75,
		"You write concise, human-sounding X replies. Avoid generic praise, clickbait, hashtags spam, and robotic templates. Keep it natural and specific.",
		user)
	if err != nil || text == "" {
		return Offline{}.GenerateReply(ctx, in)
	}
	return text, nil
}

func (o *OpenAI) GenerateTweet(ctx context.Context, in TweetInput) ([]string, error) {
	shape := "Output exactly 1 standalone tweet <= 260 chars."
	if in.ThreadMode {
		shape = "Output exactly 3 lines, each <= 260 chars. Each line should be a thread part."
	}
	user := strings.Join([]string{
		"Language: " + in.Language,
		"Topics: " + strings.Join(in.Topics, ", "),
		"Thread mode: " + boolWord(in.ThreadMode),
		"Avoid repeating these posts:\n" + numberLines(in.RecentTweets, 8),
		shape,
	}, "\n\n")
	raw, err := o.chat(ctx, 0.8,
		"You craft high-quality X posts for startup/creator audiences. Prioritize concrete insight and clarity. No spam language.",
		user)
	if err != nil || raw == "" {
		return Offline{}.GenerateTweet(ctx, in)
	}
	max := 1
	if in.ThreadMode {
		max = 3
	}
	var parts []string
	for _, line := range strings.Split(raw, "\n") {
		line = util.CollapseLine(line)
		if line == "" {
			continue
		}
		parts = append(parts, line)
		if len(parts) == max {
			break
		}
	}
	if len(parts) == 0 {
		return Offline{}.GenerateTweet(ctx, in)
	}
	return parts, nil
}

type moderationResponse struct {
	Results []struct {
		Flagged bool `json:"flagged"`
	} `json:"results"`
}

func (o *OpenAI) Moderate(ctx context.Context, text string) (Moderation, error) {
	if util.LikelySpam(text) {
		return Moderation{Allowed: false, Reason: "Rule-based spam pattern detected"}, nil
	}
	payload, err := json.Marshal(map[string]string{
		"model": "omni-moderation-latest",
		"input": text,
	})
	if err != nil {
		return Moderation{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/moderations", bytes.NewReader(payload))
	if err != nil {
		return Moderation{}, err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.httpDo(req)
	if err != nil {
		return Moderation{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Moderation{}, fmt.Errorf("moderation status %d", resp.StatusCode)
	}
	var out moderationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Moderation{}, err
	}
	for _, r := range out.Results {
		if r.Flagged {
			return Moderation{Allowed: false, Reason: "Provider moderation flagged the content"}, nil
		}
	}
	return Moderation{Allowed: true}, nil
}

func boolWord(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
