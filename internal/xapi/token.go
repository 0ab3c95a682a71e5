package xapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AppCredentials identify an OAuth2 app at the token endpoint.
type AppCredentials struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// TokenResponse is the token endpoint's success payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// TokenAuth selects how a refresh/exchange call authenticates the client.
type TokenAuth struct {
	// BasicUser/BasicPass form the Basic header; both empty means a public
	// client authenticating by client_id parameter alone.
	BasicUser string
	BasicPass string
	// IncludeClientID adds the client_id body parameter alongside Basic auth.
	IncludeClientID bool
}

// OAuthClient talks to the authorization server's token endpoint. The token
// endpoint never sees a bearer token.
type OAuthClient struct {
	TokenURL   string
	httpClient *http.Client
}

func NewOAuthClient(tokenURL string) *OAuthClient {
	if tokenURL == "" {
		tokenURL = "https://api.x.com/2/oauth2/token"
	}
	return &OAuthClient{
		TokenURL:   tokenURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

func (o *OAuthClient) post(ctx context.Context, form url.Values, auth TokenAuth) (TokenResponse, error) {
	var out TokenResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if auth.BasicUser != "" {
		raw := auth.BasicUser + ":" + auth.BasicPass
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(raw)))
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if resp.StatusCode >= 400 {
		body := string(raw)
		if looksLikeBlockPage(body) {
			return out, ErrNetworkBlocked
		}
		return out, &APIError{Status: resp.StatusCode, Body: body}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// ExchangeCode redeems an authorization code with its PKCE verifier.
func (o *OAuthClient) ExchangeCode(ctx context.Context, code, codeVerifier string, creds AppCredentials) (TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", creds.CallbackURL)
	form.Set("code_verifier", codeVerifier)
	form.Set("client_id", creds.ClientID)
	auth := TokenAuth{}
	if creds.ClientSecret != "" {
		auth.BasicUser = creds.ClientID
		auth.BasicPass = creds.ClientSecret
	}
	return o.post(ctx, form, auth)
}

// Refresh redeems a refresh token under the given client authentication.
func (o *OAuthClient) Refresh(ctx context.Context, refreshToken, clientID string, auth TokenAuth) (TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	if auth.BasicUser == "" || auth.IncludeClientID {
		form.Set("client_id", clientID)
	}
	return o.post(ctx, form, auth)
}

// DecodeAPIKey extracts the secondary API-key identity some X apps embed in
// their OAuth2 client id: base64url text decoding to "key:suffix".
func DecodeAPIKey(clientID string) (string, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(clientID, "="))
	if err != nil {
		return "", false
	}
	decoded := string(raw)
	idx := strings.IndexByte(decoded, ':')
	if idx <= 0 {
		return "", false
	}
	key := decoded[:idx]
	for _, r := range key {
		if r < 0x20 || r > 0x7e {
			return "", false
		}
	}
	return key, true
}
