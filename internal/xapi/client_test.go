package xapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestBuildSearchQuery(t *testing.T) {
	cases := []struct {
		in   SearchInput
		want string
	}{
		{SearchInput{Query: "indie hackers"}, "indie hackers -is:retweet -is:reply"},
		{SearchInput{Query: "saas", Language: "en"}, "saas -is:retweet -is:reply lang:en"},
		{SearchInput{Query: "golang", Language: "en", MinLikes: 5}, "golang -is:retweet -is:reply lang:en min_faves:5"},
		{SearchInput{Query: "  padded  "}, "padded -is:retweet -is:reply"},
	}
	for _, c := range cases {
		if got := BuildSearchQuery(c.in); got != c.want {
			t.Errorf("BuildSearchQuery(%+v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIsNonRetryableByStatus(t *testing.T) {
	for _, status := range []int{400, 401, 402, 403} {
		err := fmt.Errorf("wrapped: %w", &APIError{Status: status})
		if !IsNonRetryable(err) {
			t.Errorf("status %d should be non-retryable", status)
		}
	}
	for _, status := range []int{404, 409, 429, 500, 503} {
		if IsNonRetryable(&APIError{Status: status}) {
			t.Errorf("status %d should stay retryable", status)
		}
	}
	if IsNonRetryable(nil) {
		t.Error("nil is not an error")
	}
	if IsNonRetryable(errors.New("plain")) {
		t.Error("untyped errors default to retryable")
	}
	if !IsNonRetryable(fmt.Errorf("op: %w", ErrNetworkBlocked)) {
		t.Error("network-blocked must be non-retryable")
	}
}

func TestLooksLikeBlockPage(t *testing.T) {
	blocked := []string{
		"<html><body>Forbidden</body></html>",
		"<!DOCTYPE html><title>Access Denied</title>",
		"Request blocked by corporate proxy",
	}
	for _, b := range blocked {
		if !looksLikeBlockPage(b) {
			t.Errorf("should detect block page: %q", b)
		}
	}
	// JSON error bodies are the API speaking, even when they mention HTML.
	if looksLikeBlockPage(`{"detail": "500 <html> upstream"}`) {
		t.Error("JSON payloads are never block pages")
	}
	if looksLikeBlockPage("plain text error") {
		t.Error("plain text without markers is not a block page")
	}
}

func TestDecodeAPIKey(t *testing.T) {
	id := base64.RawURLEncoding.EncodeToString([]byte("myapikey:extra-material"))
	key, ok := DecodeAPIKey(id)
	if !ok || key != "myapikey" {
		t.Fatalf("DecodeAPIKey = %q, %v", key, ok)
	}

	for _, bad := range []string{"not base64!!", base64.RawURLEncoding.EncodeToString([]byte("nocolon")), base64.RawURLEncoding.EncodeToString([]byte(":leading"))} {
		if _, ok := DecodeAPIKey(bad); ok {
			t.Errorf("DecodeAPIKey(%q) should fail", bad)
		}
	}
}

func TestDetectPaidTierFromRateLimitHeader(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"1200", "ENTERPRISE"},
		{"300", "PRO"},
		{"75", "BASIC"},
		{"25", "FREE"},
		{"", "FREE"},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c.header != "" {
				w.Header().Set("x-rate-limit-limit", c.header)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"id": "1"}})
		}))
		client := NewHTTPClient(srv.URL, "tok")
		got, err := client.DetectPaidTier(context.Background())
		srv.Close()
		if err != nil {
			t.Fatalf("header %q: %v", c.header, err)
		}
		if got != c.want {
			t.Errorf("header %q: tier = %q, want %q", c.header, got, c.want)
		}
	}
}

func TestSearchRecentJoinsAuthorHandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "golang -is:retweet -is:reply" {
			t.Errorf("query = %q", got)
		}
		fmt.Fprint(w, `{
			"data": [{"id": "t1", "text": "hi", "author_id": "a1", "lang": "en", "public_metrics": {"like_count": 7}}],
			"includes": {"users": [{"id": "a1", "username": "gopher"}]}
		}`)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "tok")
	tweets, err := client.SearchRecent(context.Background(), SearchInput{Query: "golang"})
	if err != nil {
		t.Fatal(err)
	}
	if len(tweets) != 1 {
		t.Fatalf("got %d tweets", len(tweets))
	}
	tw := tweets[0]
	if tw.AuthorHandle != "gopher" || tw.LikeCount != 7 || tw.Language != "en" {
		t.Fatalf("tweet = %+v", tw)
	}
}

func TestPostTweetRetriesWithBody(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		var payload struct {
			Text  string `json:"text"`
			Reply *struct {
				InReplyTo string `json:"in_reply_to_tweet_id"`
			} `json:"reply"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Text != "hello" {
			t.Errorf("attempt %d: bad body (%v, %+v)", n, err, payload)
		}
		if n == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"data": {"id": "t99"}}`)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "tok")
	client.baseBackoff = time.Millisecond
	id, err := client.PostTweet(context.Background(), "hello", "")
	if err != nil {
		t.Fatal(err)
	}
	if id != "t99" {
		t.Fatalf("id = %q", id)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestErrorStatusBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"detail": "forbidden"}`)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "tok")
	_, err := client.Me(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 403 {
		t.Fatalf("err = %v", err)
	}
	if !IsNonRetryable(err) {
		t.Fatal("403 should be non-retryable")
	}
}
