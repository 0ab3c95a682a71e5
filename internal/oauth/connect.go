package oauth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"xgrowth/internal/locker"
	"xgrowth/internal/model"
)

const (
	stateMaxAge   = 10 * time.Minute
	pendingTTL    = 10 * time.Minute
	pendingPrefix = "x:oauth:pending:"
)

// PKCEPair is a verifier and its S256 challenge.
type PKCEPair struct {
	Verifier  string
	Challenge string
}

func b64url(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// NewPKCEPair generates a fresh verifier/challenge pair.
func NewPKCEPair() (PKCEPair, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return PKCEPair{}, err
	}
	verifier := b64url(raw)
	sum := sha256.Sum256([]byte(verifier))
	return PKCEPair{Verifier: verifier, Challenge: b64url(sum[:])}, nil
}

func (m *Manager) sign(input string) string {
	mac := hmac.New(sha256.New, m.stateKey)
	mac.Write([]byte(input))
	return hex.EncodeToString(mac.Sum(nil))
}

// NewState mints a signed, timestamped state value bound to a user.
func (m *Manager) NewState(userID string) (string, error) {
	nonce := make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	raw := fmt.Sprintf("%s.%s.%d", userID, b64url(nonce), time.Now().UnixMilli())
	return raw + "." + m.sign(raw), nil
}

// VerifyState checks a state's signature and age, returning the bound user id.
func (m *Manager) VerifyState(state string) (string, bool) {
	parts := strings.Split(state, ".")
	if len(parts) != 4 {
		return "", false
	}
	raw := strings.Join(parts[:3], ".")
	if !hmac.Equal([]byte(m.sign(raw)), []byte(parts[3])) {
		return "", false
	}
	ms, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", false
	}
	if time.Since(time.UnixMilli(ms)) > stateMaxAge {
		return "", false
	}
	return parts[0], true
}

// AuthorizeURL builds the user-facing authorization redirect.
func (m *Manager) AuthorizeURL(state, codeChallenge string) (string, error) {
	if m.app.ClientID == "" || m.app.CallbackURL == "" {
		return "", ErrMissingAppCredentials
	}
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", m.app.ClientID)
	q.Set("redirect_uri", m.app.CallbackURL)
	q.Set("scope", m.app.Scopes)
	q.Set("state", state)
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", "S256")
	return m.app.AuthorizeURL + "?" + q.Encode(), nil
}

type pendingState struct {
	CodeVerifier string `json:"code_verifier"`
}

// SavePendingState stashes the PKCE verifier until the callback returns.
func (m *Manager) SavePendingState(ctx context.Context, stash locker.Stash, state, codeVerifier string) error {
	raw, err := json.Marshal(pendingState{CodeVerifier: codeVerifier})
	if err != nil {
		return err
	}
	return stash.Put(ctx, pendingPrefix+state, string(raw), pendingTTL)
}

// ConsumePendingState retrieves and deletes the PKCE verifier for a state.
func (m *Manager) ConsumePendingState(ctx context.Context, stash locker.Stash, state string) (string, bool, error) {
	raw, ok, err := stash.Take(ctx, pendingPrefix+state)
	if err != nil || !ok {
		return "", false, err
	}
	var p pendingState
	if err := json.Unmarshal([]byte(raw), &p); err != nil || len(p.CodeVerifier) < 32 {
		return "", false, nil
	}
	return p.CodeVerifier, true, nil
}

// Connector completes the callback leg against the live API.
type Connector interface {
	Me(ctx context.Context) (string, string, error)         // id, username
	DetectPaidTier(ctx context.Context) (string, error)
}

// CompleteConnect exchanges an authorization code and persists the resulting
// connection, including the detected paid tier.
func (m *Manager) CompleteConnect(ctx context.Context, userID, code, codeVerifier string, connect func(accessToken string) Connector) error {
	creds, err := m.effectiveCredentials(ctx, userID)
	if err != nil {
		return err
	}
	resp, err := m.oauth.ExchangeCode(ctx, code, codeVerifier, creds)
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}
	api := connect(resp.AccessToken)
	xUserID, handle, err := api.Me(ctx)
	if err != nil {
		return fmt.Errorf("lookup connected user: %w", err)
	}
	tier, err := api.DetectPaidTier(ctx)
	if err != nil {
		tier = string(model.TierFree)
	}
	accessEnc, err := m.codec.Encrypt(resp.AccessToken)
	if err != nil {
		return err
	}
	refreshEnc := ""
	if resp.RefreshToken != "" {
		if refreshEnc, err = m.codec.Encrypt(resp.RefreshToken); err != nil {
			return err
		}
	}
	var expiresAt *time.Time
	if resp.ExpiresIn > 0 {
		t := time.Now().UTC().Add(time.Duration(resp.ExpiresIn) * time.Second)
		expiresAt = &t
	}
	return m.store.UpsertConnection(ctx, model.Connection{
		UserID:          userID,
		XUserID:         xUserID,
		Handle:          handle,
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
		TokenExpiresAt:  expiresAt,
		Scope:           resp.Scope,
		PaidTier:        model.PaidTier(tier),
	})
}
