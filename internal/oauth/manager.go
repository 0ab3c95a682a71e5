// Package oauth manages per-user X access tokens: expiry checks, multi-mode
// refresh against the authorization server, and the connect-flow helpers.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"xgrowth/internal/config"
	"xgrowth/internal/limits"
	"xgrowth/internal/metrics"
	"xgrowth/internal/secrets"
	"xgrowth/internal/store"
	"xgrowth/internal/xapi"
)

// Token expiry is checked with a safety margin so a token never expires
// mid-request.
const expiryMargin = 60 * time.Second

// ErrReauthRequired means the token expired and no refresh token exists; the
// user has to reconnect.
var ErrReauthRequired = errors.New("x access token expired and no refresh token is available")

// ErrMissingAppCredentials means neither the user's own app nor the process
// default yields a usable client id.
var ErrMissingAppCredentials = errors.New("missing x app credentials for token refresh")

// RefreshError aggregates every failed client-authentication attempt.
type RefreshError struct {
	Attempts []error
}

func (e *RefreshError) Error() string {
	msgs := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		msgs[i] = a.Error()
	}
	return "x token refresh failed: " + strings.Join(msgs, "; ")
}

// NonRetryable marks token refresh failures as needing human intervention.
func (e *RefreshError) NonRetryable() bool { return true }

type reauthError struct{ error }

func (reauthError) NonRetryable() bool { return true }

type credentialError struct{ error }

func (credentialError) NonRetryable() bool { return true }

// Manager is the token lifecycle manager.
type Manager struct {
	store    *store.Store
	codec    *secrets.Codec
	oauth    *xapi.OAuthClient
	app      config.XAppConfig
	stateKey []byte
}

// NewManager wires the lifecycle manager. stateKeyMaterial signs OAuth state
// values; the token encryption key doubles for this.
func NewManager(s *store.Store, codec *secrets.Codec, oc *xapi.OAuthClient, app config.XAppConfig, stateKeyMaterial string) *Manager {
	return &Manager{store: s, codec: codec, oauth: oc, app: app, stateKey: []byte(stateKeyMaterial)}
}

// Credentials carry an access token and its account identity.
type Credentials struct {
	AccessToken string
	XUserID     string
}

// likelyClientID sanity-checks a client id's shape before it is trusted for
// a refresh attempt.
func likelyClientID(id string) bool {
	if len(id) < 10 {
		return false
	}
	if strings.HasPrefix(id, "@") {
		return false
	}
	return !strings.ContainsAny(id, " \t\n\r")
}

// effectiveCredentials resolves the OAuth app for a refresh: the user's own
// app when its client id looks valid, else the process default.
func (m *Manager) effectiveCredentials(ctx context.Context, userID string) (xapi.AppCredentials, error) {
	var creds xapi.AppCredentials
	app, err := m.store.GetAppCredential(ctx, userID)
	switch {
	case err == nil:
		clientID, derr := m.codec.Decrypt(app.ClientIDEnc)
		if derr != nil {
			return creds, fmt.Errorf("decrypt app client id: %w", derr)
		}
		clientID = strings.TrimSpace(clientID)
		if likelyClientID(clientID) {
			creds.ClientID = clientID
			if app.ClientSecretEnc != "" {
				secret, serr := m.codec.Decrypt(app.ClientSecretEnc)
				if serr != nil {
					return creds, fmt.Errorf("decrypt app client secret: %w", serr)
				}
				creds.ClientSecret = secret
			} else {
				creds.ClientSecret = m.app.ClientSecret
			}
			creds.CallbackURL = app.CallbackURL
			if m.app.CallbackURL != "" {
				creds.CallbackURL = m.app.CallbackURL
			}
			return creds, nil
		}
	case !errors.Is(err, store.ErrNotFound):
		return creds, err
	}
	if !likelyClientID(strings.TrimSpace(m.app.ClientID)) {
		return creds, credentialError{ErrMissingAppCredentials}
	}
	return xapi.AppCredentials{
		ClientID:     strings.TrimSpace(m.app.ClientID),
		ClientSecret: m.app.ClientSecret,
		CallbackURL:  m.app.CallbackURL,
	}, nil
}

// refreshStrategies enumerates the client-authentication modes tried against
// the token endpoint, in order. Different X app registrations accept
// different modes, so refresh walks them until one succeeds.
func refreshStrategies(creds xapi.AppCredentials) []xapi.TokenAuth {
	strategies := []xapi.TokenAuth{
		{}, // public client: client_id parameter only
	}
	if creds.ClientSecret != "" {
		strategies = append(strategies, xapi.TokenAuth{BasicUser: creds.ClientID, BasicPass: creds.ClientSecret})
		if apiKey, ok := xapi.DecodeAPIKey(creds.ClientID); ok {
			strategies = append(strategies,
				xapi.TokenAuth{BasicUser: apiKey, BasicPass: creds.ClientSecret},
				xapi.TokenAuth{BasicUser: apiKey, BasicPass: creds.ClientSecret, IncludeClientID: true},
			)
		}
	}
	return strategies
}

// ValidAccessToken returns a decrypted access token for the user, refreshing
// it first when it is within the expiry margin.
func (m *Manager) ValidAccessToken(ctx context.Context, userID string) (Credentials, error) {
	var out Credentials
	conn, err := m.store.GetConnection(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return out, limits.ErrNotConnected
		}
		return out, err
	}

	expiresSoon := conn.TokenExpiresAt != nil && time.Until(*conn.TokenExpiresAt) <= expiryMargin
	if !expiresSoon {
		token, err := m.codec.Decrypt(conn.AccessTokenEnc)
		if err != nil {
			return out, fmt.Errorf("decrypt access token: %w", err)
		}
		return Credentials{AccessToken: token, XUserID: conn.XUserID}, nil
	}

	if conn.RefreshTokenEnc == "" {
		return out, reauthError{ErrReauthRequired}
	}
	refreshToken, err := m.codec.Decrypt(conn.RefreshTokenEnc)
	if err != nil {
		return out, fmt.Errorf("decrypt refresh token: %w", err)
	}
	creds, err := m.effectiveCredentials(ctx, userID)
	if err != nil {
		return out, err
	}

	var resp xapi.TokenResponse
	var attempts []error
	refreshed := false
	for _, auth := range refreshStrategies(creds) {
		resp, err = m.oauth.Refresh(ctx, refreshToken, creds.ClientID, auth)
		if err == nil && resp.AccessToken != "" {
			refreshed = true
			break
		}
		if err == nil {
			err = errors.New("token endpoint returned empty access token")
		}
		attempts = append(attempts, err)
	}
	if !refreshed {
		metrics.TokenRefreshes.WithLabelValues("failed").Inc()
		return out, &RefreshError{Attempts: attempts}
	}
	metrics.TokenRefreshes.WithLabelValues("refreshed").Inc()

	accessEnc, err := m.codec.Encrypt(resp.AccessToken)
	if err != nil {
		return out, fmt.Errorf("encrypt access token: %w", err)
	}
	refreshEnc := conn.RefreshTokenEnc
	if resp.RefreshToken != "" {
		if refreshEnc, err = m.codec.Encrypt(resp.RefreshToken); err != nil {
			return out, fmt.Errorf("encrypt refresh token: %w", err)
		}
	}
	var expiresAt *time.Time
	if resp.ExpiresIn > 0 {
		t := time.Now().UTC().Add(time.Duration(resp.ExpiresIn) * time.Second)
		expiresAt = &t
	}
	scope := conn.Scope
	if resp.Scope != "" {
		scope = resp.Scope
	}
	if err := m.store.UpdateConnectionTokens(ctx, userID, accessEnc, refreshEnc, expiresAt, scope); err != nil {
		return out, fmt.Errorf("persist refreshed tokens: %w", err)
	}
	return Credentials{AccessToken: resp.AccessToken, XUserID: conn.XUserID}, nil
}
