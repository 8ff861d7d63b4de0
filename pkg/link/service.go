// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package link implements the Spotify account connection lifecycle: the
// authorization code flow with PKCE, token storage and refresh, and
// disconnect.
package link

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/trackdeck/trackdeck/pkg/config"
	"github.com/trackdeck/trackdeck/pkg/logger"
	"github.com/trackdeck/trackdeck/pkg/spotify"
	"github.com/trackdeck/trackdeck/pkg/store"
	"github.com/trackdeck/trackdeck/pkg/telemetry"
)

// Service owns the account-linking flow. It is safe for concurrent use.
type Service struct {
	store    store.Store
	provider *spotify.Client
	metrics  *telemetry.Metrics

	clientID       string
	clientSecret   string
	frontendOrigin string
	allowedOrigins []string

	// refreshGroup collapses concurrent refreshes for the same user into
	// one provider call, so a burst of API requests near expiry does not
	// race the single-use refresh token.
	refreshGroup singleflight.Group
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMetrics attaches flow counters to the service.
func WithMetrics(m *telemetry.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates the linking service.
func NewService(cfg *config.Config, st store.Store, provider *spotify.Client, opts ...ServiceOption) *Service {
	s := &Service{
		store:          st,
		provider:       provider,
		clientID:       cfg.Spotify.ClientID,
		clientSecret:   cfg.Spotify.ClientSecret,
		frontendOrigin: cfg.FrontendOrigin,
		allowedOrigins: cfg.AllowedRedirectOrigins,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartLogin begins a login attempt for an authenticated user and returns
// the provider authorization URL to redirect the browser to. Each call
// creates fresh state and PKCE secrets; starting a new login while another
// is pending simply leaves the older flow to expire unconsumed.
func (s *Service) StartLogin(ctx context.Context, userID, redirectBackURL string) (string, error) {
	if err := s.checkCredentials(); err != nil {
		return "", err
	}

	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	verifier := spotify.GeneratePKCEVerifier()

	fs := &store.FlowState{
		UserID:          userID,
		Verifier:        verifier,
		RedirectBackURL: SafeRedirect(redirectBackURL, s.frontendOrigin, s.allowedOrigins),
		CreatedAt:       now(),
	}
	if err := s.store.PutFlowState(ctx, state, fs); err != nil {
		return "", fmt.Errorf("failed to store flow state: %w", err)
	}

	s.metrics.RecordLoginStarted()
	logger.Infow("login flow started", "user_id", userID)

	return s.provider.AuthorizeURL(state, spotify.ComputePKCEChallenge(verifier)), nil
}

// Status returns the user's link status. An unlinked user gets a zero
// status, not an error.
func (s *Service) Status(ctx context.Context, userID string) (*store.LinkStatus, error) {
	status, err := s.store.GetLinkStatus(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &store.LinkStatus{Linked: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return status, nil
}

// Disconnect removes the user's token record and link status. Idempotent;
// disconnecting an unlinked user succeeds. Provider-side consent is not
// revoked, the user manages that on their Spotify account page.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	if err := s.store.DeleteTokenRecord(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete token record: %w", err)
	}
	if err := s.store.DeleteLinkStatus(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete link status: %w", err)
	}
	logger.Infow("spotify account disconnected", "user_id", userID)
	return nil
}

// ProxyRequest forwards a Web API call to the provider on the user's
// behalf. The caller supplies a token from AccessToken.
func (s *Service) ProxyRequest(ctx context.Context, method, path, accessToken string, body io.Reader) (*http.Response, error) {
	return s.provider.Proxy(ctx, method, path, accessToken, body)
}

// checkCredentials fails fast on missing operator configuration so a
// misconfigured deployment surfaces as a 500 instead of a provider error
// page.
func (s *Service) checkCredentials() error {
	if s.clientID == "" {
		return config.ErrMissingClientID
	}
	if s.clientSecret == "" {
		return config.ErrMissingClientSecret
	}
	return nil
}

// generateState generates a cryptographically secure random state token.
// 32 bytes of entropy, base64url without padding.
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
