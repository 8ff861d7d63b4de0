// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package spotify is the HTTP client for Spotify's authorization and Web
// API endpoints.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/trackdeck/trackdeck/pkg/logger"
	"github.com/trackdeck/trackdeck/pkg/networking"
)

// maxResponseSize is the maximum allowed response size for HTTP requests to prevent DoS.
const maxResponseSize = 1024 * 1024 // 1MB

// ProviderError reports a non-2xx response from Spotify. Code and
// Description are the standardized OAuth error fields when the provider
// sent them.
type ProviderError struct {
	Status      int
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider returned %d: %s - %s", e.Status, e.Code, e.Description)
	}
	return fmt.Sprintf("provider returned status %d", e.Status)
}

// Tokens is the result of a code exchange or refresh. RefreshToken is empty
// when the provider chose not to rotate it; callers keep the previous one.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       []string
}

// Profile is the subset of the /v1/me response the dashboard uses.
type Profile struct {
	ID          string
	DisplayName string
	Premium     bool
}

// Config holds the provider endpoints and application credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	AuthorizeEndpoint string
	TokenEndpoint     string
	APIBaseURL        string

	Scopes []string
}

// Client talks to Spotify. It is stateless; all per-user data lives in the
// store.
type Client struct {
	cfg    Config
	client networking.HTTPClient
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client, used by tests to reach
// httptest servers.
func WithHTTPClient(c networking.HTTPClient) ClientOption {
	return func(sc *Client) {
		sc.client = c
	}
}

// NewClient creates a Spotify client.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	c := &Client{
		cfg:    cfg,
		client: networking.NewHTTPClient(false),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthorizeURL builds the provider authorization URL for one login attempt.
// The code challenge substitutes for the client secret on the exchange leg,
// so no secret appears here.
func (c *Client) AuthorizeURL(state, codeChallenge string) string {
	params := url.Values{
		"response_type":         {"code"},
		"client_id":             {c.cfg.ClientID},
		"redirect_uri":          {c.cfg.RedirectURI},
		"scope":                 {strings.Join(c.cfg.Scopes, " ")},
		"state":                 {state},
		"code_challenge":        {codeChallenge},
		"code_challenge_method": {PKCEChallengeMethodS256},
	}
	return c.cfg.AuthorizeEndpoint + "?" + params.Encode()
}

// ExchangeCode exchanges an authorization code for tokens. The PKCE
// verifier authenticates the exchange; the client secret is not sent.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*Tokens, error) {
	if code == "" {
		return nil, errors.New("authorization code is required")
	}
	if codeVerifier == "" {
		return nil, errors.New("code verifier is required")
	}

	params := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {c.cfg.RedirectURI},
		"client_id":     {c.cfg.ClientID},
		"code_verifier": {codeVerifier},
	}

	return c.tokenRequest(ctx, params, false)
}

// Refresh obtains a fresh access token. Spotify requires HTTP Basic client
// authentication on this leg, unlike the PKCE exchange.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	if refreshToken == "" {
		return nil, errors.New("refresh token is required")
	}

	params := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	return c.tokenRequest(ctx, params, true)
}

// Profile fetches the user's profile from /v1/me.
func (c *Client) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	if accessToken == "" {
		return nil, errors.New("access token is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBaseURL+"/v1/me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		logger.Debugw("profile request failed",
			"status", resp.StatusCode,
			"body", string(body))
		return nil, &ProviderError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read profile response: %w", err)
	}

	var raw struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		Product     string `json:"product"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse profile response: %w", err)
	}

	return &Profile{
		ID:          raw.ID,
		DisplayName: raw.DisplayName,
		Premium:     raw.Product == "premium",
	}, nil
}

// Proxy forwards an API request to Spotify with the given access token and
// returns the raw response. The caller owns the body.
func (c *Client) Proxy(ctx context.Context, method, path string, accessToken string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIBaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api request failed: %w", err)
	}
	return resp, nil
}

// tokenRequest performs a form-encoded request against the token endpoint
// and parses the response. A failed request is never retried here; the user
// restarts the flow instead.
func (c *Client) tokenRequest(ctx context.Context, params url.Values, basicAuth bool) (*Tokens, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.cfg.TokenEndpoint,
		strings.NewReader(params.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if basicAuth {
		req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var tokenError tokenErrorResponse
		if err := json.Unmarshal(body, &tokenError); err == nil && tokenError.Error != "" {
			// OAuth error responses are standardized and safe to surface.
			return nil, &ProviderError{
				Status:      resp.StatusCode,
				Code:        tokenError.Error,
				Description: tokenError.ErrorDescription,
			}
		}
		logger.Debugw("token request failed",
			"status", resp.StatusCode,
			"body", string(body))
		return nil, &ProviderError{Status: resp.StatusCode}
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, errors.New("token response missing access_token")
	}

	// token_type comparison is case-insensitive per RFC 6749 Section 5.1.
	if !strings.EqualFold(tokenResp.TokenType, "bearer") {
		return nil, fmt.Errorf("unexpected token_type: expected \"Bearer\", got %q", tokenResp.TokenType)
	}

	expiresAt := time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	if tokenResp.ExpiresIn == 0 {
		// Spotify access tokens last an hour; assume that when unspecified.
		expiresAt = time.Now().Add(time.Hour)
	}

	var scopes []string
	if tokenResp.Scope != "" {
		scopes = strings.Fields(tokenResp.Scope)
	}

	return &Tokens{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresAt:    expiresAt,
		Scopes:       scopes,
	}, nil
}

// tokenResponse represents the response from the token endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// tokenErrorResponse represents an error response from the token endpoint.
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
