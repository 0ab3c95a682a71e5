package xapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Account is the authenticated X user behind an access token.
type Account struct {
	ID       string
	Username string
	Name     string
}

// FoundTweet is one search result.
type FoundTweet struct {
	ID           string
	Text         string
	AuthorID     string
	AuthorHandle string
	Language     string
	LikeCount    int
}

// SearchInput shapes one recent-search call.
type SearchInput struct {
	Query      string
	Language   string
	MinLikes   int
	MaxResults int
}

// Client defines the X API operations the processors use.
type Client interface {
	Me(ctx context.Context) (Account, error)
	DetectPaidTier(ctx context.Context) (string, error)
	SearchRecent(ctx context.Context, in SearchInput) ([]FoundTweet, error)
	PostTweet(ctx context.Context, text, inReplyTo string) (string, error)
	LikeTweet(ctx context.Context, xUserID, tweetID string) error
	FollowUser(ctx context.Context, xUserID, targetUserID string) error
}

// HTTPClient is a bearer-token client for X API v2, one per user token.
type HTTPClient struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
}

// Factory builds a Client bound to a per-user access token.
type Factory func(accessToken string) Client

func NewHTTPClient(baseURL, accessToken string) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://api.x.com/2"
	}
	return &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		limiter:     newDefaultLimiter(),
		maxAttempts: getEnvInt("X_API_MAX_ATTEMPTS", 5),
		baseBackoff: time.Duration(getEnvInt("X_API_BASE_BACKOFF_MS", 500)) * time.Millisecond,
	}
}

func (c *HTTPClient) auth(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
}

func (c *HTTPClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.doWithRetry(ctx, req)
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.doWithRetry(ctx, req)
}

// checkStatus drains error responses into a typed error, sniffing for
// network-policy block pages on the way.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	body := string(raw)
	if looksLikeBlockPage(body) {
		return fmt.Errorf("%w: status %d", ErrNetworkBlocked, resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Body: body}
}

func (c *HTTPClient) Me(ctx context.Context) (Account, error) {
	var out Account
	resp, err := c.get(ctx, "/users/me?user.fields=username,name")
	if err != nil {
		return out, err
	}
	if err := checkStatus(resp); err != nil {
		return out, err
	}
	defer resp.Body.Close()
	var raw struct {
		Data struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Name     string `json:"name"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return out, err
	}
	out = Account{ID: raw.Data.ID, Username: raw.Data.Username, Name: raw.Data.Name}
	return out, nil
}

// DetectPaidTier infers the account's paid tier from the rate-limit ceiling
// the API advertises on a cheap lookup.
func (c *HTTPClient) DetectPaidTier(ctx context.Context) (string, error) {
	resp, err := c.get(ctx, "/users/me")
	if err != nil {
		return "", err
	}
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	limit, _ := strconv.Atoi(resp.Header.Get("x-rate-limit-limit"))
	switch {
	case limit >= 1000:
		return "ENTERPRISE", nil
	case limit >= 300:
		return "PRO", nil
	case limit >= 60:
		return "BASIC", nil
	default:
		return "FREE", nil
	}
}

// BuildSearchQuery assembles the recent-search query string: the keyword,
// retweet/reply exclusions, and optional language and min-likes operators.
func BuildSearchQuery(in SearchInput) string {
	parts := []string{strings.TrimSpace(in.Query), "-is:retweet", "-is:reply"}
	if in.Language != "" {
		parts = append(parts, "lang:"+in.Language)
	}
	if in.MinLikes > 0 {
		parts = append(parts, fmt.Sprintf("min_faves:%d", in.MinLikes))
	}
	return strings.Join(parts, " ")
}

func (c *HTTPClient) SearchRecent(ctx context.Context, in SearchInput) ([]FoundTweet, error) {
	q := url.Values{}
	q.Set("query", BuildSearchQuery(in))
	q.Set("max_results", strconv.Itoa(clamp(in.MaxResults, 10, 100)))
	q.Set("tweet.fields", "author_id,lang,public_metrics")
	q.Set("expansions", "author_id")
	q.Set("user.fields", "username")
	resp, err := c.get(ctx, "/tweets/search/recent?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var raw struct {
		Data []struct {
			ID            string `json:"id"`
			Text          string `json:"text"`
			AuthorID      string `json:"author_id"`
			Lang          string `json:"lang"`
			PublicMetrics struct {
				LikeCount int `json:"like_count"`
			} `json:"public_metrics"`
		} `json:"data"`
		Includes struct {
			Users []struct {
				ID       string `json:"id"`
				Username string `json:"username"`
			} `json:"users"`
		} `json:"includes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	handles := make(map[string]string, len(raw.Includes.Users))
	for _, u := range raw.Includes.Users {
		handles[u.ID] = u.Username
	}
	out := make([]FoundTweet, 0, len(raw.Data))
	for _, d := range raw.Data {
		out = append(out, FoundTweet{
			ID:           d.ID,
			Text:         d.Text,
			AuthorID:     d.AuthorID,
			AuthorHandle: handles[d.AuthorID],
			Language:     d.Lang,
			LikeCount:    d.PublicMetrics.LikeCount,
		})
	}
	return out, nil
}

// PostTweet publishes text, optionally as a reply, returning the new tweet id.
func (c *HTTPClient) PostTweet(ctx context.Context, text, inReplyTo string) (string, error) {
	payload := map[string]any{"text": text}
	if inReplyTo != "" {
		payload["reply"] = map[string]string{"in_reply_to_tweet_id": inReplyTo}
	}
	resp, err := c.postJSON(ctx, "/tweets", payload)
	if err != nil {
		return "", err
	}
	if err := checkStatus(resp); err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var raw struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", err
	}
	return raw.Data.ID, nil
}

func (c *HTTPClient) LikeTweet(ctx context.Context, xUserID, tweetID string) error {
	resp, err := c.postJSON(ctx, "/users/"+url.PathEscape(xUserID)+"/likes", map[string]string{"tweet_id": tweetID})
	if err != nil {
		return err
	}
	if err := checkStatus(resp); err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *HTTPClient) FollowUser(ctx context.Context, xUserID, targetUserID string) error {
	resp, err := c.postJSON(ctx, "/users/"+url.PathEscape(xUserID)+"/following", map[string]string{"target_user_id": targetUserID})
	if err != nil {
		return err
	}
	if err := checkStatus(resp); err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (c *HTTPClient) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var bodyCopy []byte
	if req.Body != nil {
		bodyCopy, _ = io.ReadAll(req.Body)
		_ = req.Body.Close()
	}
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		attemptReq := req.Clone(ctx)
		if bodyCopy != nil {
			attemptReq.Body = io.NopCloser(bytes.NewReader(bodyCopy))
		}
		resp, err := c.httpClient.Do(attemptReq)
		if err == nil {
			if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
				ra := resp.Header.Get("Retry-After")
				_ = resp.Body.Close()
				wait := backoff
				if ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						wait = time.Duration(secs) * time.Second
					} else if t, err := http.ParseTime(ra); err == nil {
						if d := time.Until(t); d > 0 {
							wait = d
						}
					}
				}
				// jitter +/-20%
				jitter := time.Duration(float64(wait) * 0.2)
				if jitter > 0 {
					wait = wait - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter))
				}
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return resp, nil
		}
		lastErr = err
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %v", c.maxAttempts, lastErr)
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil && i > 0 {
		return i
	}
	return def
}
