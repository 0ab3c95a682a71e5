package oauth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"xgrowth/internal/config"
	"xgrowth/internal/limits"
	"xgrowth/internal/model"
	"xgrowth/internal/secrets"
	"xgrowth/internal/store"
	"xgrowth/internal/xapi"
)

// decodableClientID base64url-decodes to "legacykey:material", so the api-key
// refresh strategies apply.
var decodableClientID = base64.RawURLEncoding.EncodeToString([]byte("legacykey:material"))

type managerFixture struct {
	store   *store.Store
	codec   *secrets.Codec
	manager *Manager
	userID  string
}

func newManagerFixture(t *testing.T, tokenURL string, app config.XAppConfig) *managerFixture {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	codec, err := secrets.New("test-key")
	if err != nil {
		t.Fatal(err)
	}
	user, err := s.CreateUser(context.Background(), model.User{Email: "u@example.com", Plan: model.PlanPro})
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(s, codec, xapi.NewOAuthClient(tokenURL), app, "state-key")
	return &managerFixture{store: s, codec: codec, manager: m, userID: user.ID}
}

func (f *managerFixture) connect(t *testing.T, accessToken, refreshToken string, expiresAt *time.Time) {
	t.Helper()
	enc := func(v string) string {
		if v == "" {
			return ""
		}
		out, err := f.codec.Encrypt(v)
		if err != nil {
			t.Fatal(err)
		}
		return out
	}
	err := f.store.UpsertConnection(context.Background(), model.Connection{
		UserID:          f.userID,
		XUserID:         "x-1",
		Handle:          "tester",
		AccessTokenEnc:  enc(accessToken),
		RefreshTokenEnc: enc(refreshToken),
		TokenExpiresAt:  expiresAt,
		PaidTier:        model.TierPro,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestValidTokenReturnedWithoutRefresh(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	f := newManagerFixture(t, srv.URL, config.XAppConfig{ClientID: "client-id-1234567890"})
	future := time.Now().Add(2 * time.Hour)
	f.connect(t, "live-token", "refresh-token", &future)

	creds, err := f.manager.ValidAccessToken(context.Background(), f.userID)
	if err != nil {
		t.Fatal(err)
	}
	if creds.AccessToken != "live-token" || creds.XUserID != "x-1" {
		t.Fatalf("creds = %+v", creds)
	}
	if hits != 0 {
		t.Fatalf("token endpoint hit %d times for a live token", hits)
	}
}

func TestNoExpiryMeansNoRefresh(t *testing.T) {
	f := newManagerFixture(t, "http://127.0.0.1:0", config.XAppConfig{ClientID: "client-id-1234567890"})
	f.connect(t, "live-token", "", nil)

	creds, err := f.manager.ValidAccessToken(context.Background(), f.userID)
	if err != nil {
		t.Fatal(err)
	}
	if creds.AccessToken != "live-token" {
		t.Fatalf("creds = %+v", creds)
	}
}

func TestExpiryMarginTriggersRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token": "fresh", "refresh_token": "fresh-r", "expires_in": 7200}`)
	}))
	defer srv.Close()

	f := newManagerFixture(t, srv.URL, config.XAppConfig{ClientID: "client-id-1234567890"})
	// Still nominally valid, but inside the 60s margin.
	soon := time.Now().Add(30 * time.Second)
	f.connect(t, "stale", "refresh-token", &soon)

	creds, err := f.manager.ValidAccessToken(context.Background(), f.userID)
	if err != nil {
		t.Fatal(err)
	}
	if creds.AccessToken != "fresh" {
		t.Fatalf("access token = %q, want refreshed", creds.AccessToken)
	}

	// The new tokens are persisted encrypted.
	conn, err := f.store.GetConnection(context.Background(), f.userID)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := f.codec.Decrypt(conn.AccessTokenEnc); got != "fresh" {
		t.Fatalf("persisted access token = %q", got)
	}
	if got, _ := f.codec.Decrypt(conn.RefreshTokenEnc); got != "fresh-r" {
		t.Fatalf("persisted refresh token = %q", got)
	}
	if conn.TokenExpiresAt == nil || time.Until(*conn.TokenExpiresAt) < time.Hour {
		t.Fatalf("expiry not advanced: %v", conn.TokenExpiresAt)
	}
}

func TestRefreshWalksStrategiesUntilOneSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error": "invalid_client"}`)
			return
		}
		// Third strategy: Basic auth with the decoded api key, no client_id
		// in the body.
		if r.Header.Get("Authorization") == "" {
			t.Error("third attempt should carry Basic auth")
		}
		_ = r.ParseForm()
		if r.PostForm.Get("client_id") != "" {
			t.Error("third attempt should not include client_id in the body")
		}
		if r.PostForm.Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		fmt.Fprint(w, `{"access_token": "fresh", "expires_in": 7200}`)
	}))
	defer srv.Close()

	f := newManagerFixture(t, srv.URL, config.XAppConfig{
		ClientID:     decodableClientID,
		ClientSecret: "app-secret",
	})
	past := time.Now().Add(-time.Minute)
	f.connect(t, "stale", "refresh-token", &past)

	creds, err := f.manager.ValidAccessToken(context.Background(), f.userID)
	if err != nil {
		t.Fatal(err)
	}
	if creds.AccessToken != "fresh" {
		t.Fatalf("access token = %q", creds.AccessToken)
	}
	if calls != 3 {
		t.Fatalf("token endpoint called %d times, want 3", calls)
	}
}

func TestRefreshAggregatesAllFailedStrategies(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": "invalid_client"}`)
	}))
	defer srv.Close()

	f := newManagerFixture(t, srv.URL, config.XAppConfig{
		ClientID:     decodableClientID,
		ClientSecret: "app-secret",
	})
	past := time.Now().Add(-time.Minute)
	f.connect(t, "stale", "refresh-token", &past)

	_, err := f.manager.ValidAccessToken(context.Background(), f.userID)
	var re *RefreshError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want RefreshError", err)
	}
	// Decodable client id + secret yields all four strategies.
	if len(re.Attempts) != 4 || calls != 4 {
		t.Fatalf("attempts = %d, calls = %d, want 4 and 4", len(re.Attempts), calls)
	}
	if !xapi.IsNonRetryable(err) {
		t.Fatal("refresh failure must be non-retryable")
	}
}

func TestUndecodableClientIDLimitsStrategies(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := newManagerFixture(t, srv.URL, config.XAppConfig{
		ClientID:     "plain-client-id-123456",
		ClientSecret: "app-secret",
	})
	past := time.Now().Add(-time.Minute)
	f.connect(t, "stale", "refresh-token", &past)

	_, err := f.manager.ValidAccessToken(context.Background(), f.userID)
	var re *RefreshError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v", err)
	}
	if len(re.Attempts) != 2 || calls != 2 {
		t.Fatalf("attempts = %d, calls = %d, want 2 and 2", len(re.Attempts), calls)
	}
}

func TestExpiredWithoutRefreshTokenRequiresReauth(t *testing.T) {
	f := newManagerFixture(t, "http://127.0.0.1:0", config.XAppConfig{ClientID: "client-id-1234567890"})
	past := time.Now().Add(-time.Minute)
	f.connect(t, "stale", "", &past)

	_, err := f.manager.ValidAccessToken(context.Background(), f.userID)
	if !errors.Is(err, ErrReauthRequired) {
		t.Fatalf("err = %v, want ErrReauthRequired", err)
	}
	if !xapi.IsNonRetryable(err) {
		t.Fatal("reauth-required must be non-retryable")
	}
}

func TestMissingConnection(t *testing.T) {
	f := newManagerFixture(t, "http://127.0.0.1:0", config.XAppConfig{ClientID: "client-id-1234567890"})
	_, err := f.manager.ValidAccessToken(context.Background(), f.userID)
	if !errors.Is(err, limits.ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestMissingAppCredentials(t *testing.T) {
	f := newManagerFixture(t, "http://127.0.0.1:0", config.XAppConfig{ClientID: "short"})
	past := time.Now().Add(-time.Minute)
	f.connect(t, "stale", "refresh-token", &past)

	_, err := f.manager.ValidAccessToken(context.Background(), f.userID)
	if !errors.Is(err, ErrMissingAppCredentials) {
		t.Fatalf("err = %v, want ErrMissingAppCredentials", err)
	}
	if !xapi.IsNonRetryable(err) {
		t.Fatal("missing credentials must be non-retryable")
	}
}

func TestUserAppCredentialsPreferred(t *testing.T) {
	var sawClientID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if id := r.PostForm.Get("client_id"); id != "" {
			sawClientID = id
		}
		fmt.Fprint(w, `{"access_token": "fresh", "expires_in": 7200}`)
	}))
	defer srv.Close()

	f := newManagerFixture(t, srv.URL, config.XAppConfig{ClientID: "default-app-123456789"})
	past := time.Now().Add(-time.Minute)
	f.connect(t, "stale", "refresh-token", &past)

	ownID, _ := f.codec.Encrypt("user-own-client-id-42")
	err := f.store.UpsertAppCredential(context.Background(), model.AppCredential{
		UserID:      f.userID,
		ClientIDEnc: ownID,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.manager.ValidAccessToken(context.Background(), f.userID); err != nil {
		t.Fatal(err)
	}
	if sawClientID != "user-own-client-id-42" {
		t.Fatalf("client_id = %q, want the user's own app", sawClientID)
	}
}

func TestLikelyClientID(t *testing.T) {
	good := []string{"abcdefghij", decodableClientID, "Q2xpZW50SWQxMjM"}
	for _, id := range good {
		if !likelyClientID(id) {
			t.Errorf("likelyClientID(%q) = false", id)
		}
	}
	bad := []string{"", "short", "@handle-not-an-id", "has spaces in it", "tab\there-xyz"}
	for _, id := range bad {
		if likelyClientID(id) {
			t.Errorf("likelyClientID(%q) = true", id)
		}
	}
}
