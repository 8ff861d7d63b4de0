// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

package link

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/trackdeck/trackdeck/pkg/logger"
	"github.com/trackdeck/trackdeck/pkg/spotify"
	"github.com/trackdeck/trackdeck/pkg/store"
	"github.com/trackdeck/trackdeck/pkg/telemetry"
)

// Callback error codes surfaced to the frontend as a query parameter.
const (
	CallbackErrorAccessDenied   = "access_denied"
	CallbackErrorInvalidState   = "invalid_state"
	CallbackErrorMissingParams  = "missing_params"
	CallbackErrorExchangeFailed = "exchange_failed"
	CallbackErrorProfileFailed  = "profile_failed"
)

// now is swapped in tests.
var now = time.Now

// HandleCallback processes the provider redirect that completes a login
// attempt. It always returns a URL to send the browser to: failures become
// an error query parameter on the frontend, never an HTTP error page,
// because the browser is mid-redirect and cannot render an API response.
//
// The state token is consumed (deleted) before the code exchange, so a
// replayed callback finds no flow state and at most one exchange happens
// per login attempt.
func (s *Service) HandleCallback(ctx context.Context, state, code, providerErr string) string {
	// A provider error (user clicked "cancel", bad scope config) arrives
	// with state but no code. Consume the flow so its secrets die now
	// rather than at TTL expiry.
	if providerErr != "" {
		fallback := s.frontendOrigin
		if fs, err := s.store.ConsumeFlowState(ctx, state); err == nil {
			fallback = SafeRedirect(fs.RedirectBackURL, s.frontendOrigin, s.allowedOrigins)
		}
		logger.Infow("provider denied authorization", "error", providerErr)
		s.metrics.RecordCallback(telemetry.OutcomeProviderError)
		return errorRedirect(fallback, CallbackErrorAccessDenied)
	}

	if state == "" || code == "" {
		s.metrics.RecordCallback(telemetry.OutcomeMissingParams)
		return errorRedirect(s.frontendOrigin, CallbackErrorMissingParams)
	}

	fs, err := s.store.ConsumeFlowState(ctx, state)
	if err != nil {
		// Forged, replayed or expired state. Deliberately silent toward
		// the caller: no hint about whether the token ever existed.
		logger.Warnw("callback with unknown state", "error", err)
		s.metrics.RecordCallback(telemetry.OutcomeInvalidState)
		return errorRedirect(s.frontendOrigin, CallbackErrorInvalidState)
	}

	// The flow state was written by StartLogin after origin validation,
	// but validate again in case the allow-list changed since.
	redirectBack := SafeRedirect(fs.RedirectBackURL, s.frontendOrigin, s.allowedOrigins)

	tokens, err := s.provider.ExchangeCode(ctx, code, fs.Verifier)
	if err != nil {
		var pErr *spotify.ProviderError
		if errors.As(err, &pErr) {
			logger.Errorw("code exchange rejected by provider",
				"user_id", fs.UserID,
				"status", pErr.Status,
				"code", pErr.Code)
		} else {
			logger.Errorw("code exchange failed", "user_id", fs.UserID, "error", err)
		}
		s.metrics.RecordCallback(telemetry.OutcomeExchangeError)
		return errorRedirect(redirectBack, CallbackErrorExchangeFailed)
	}

	// Profile comes before any write: a failed profile fetch must leave
	// no partial link behind.
	profile, err := s.provider.Profile(ctx, tokens.AccessToken)
	if err != nil {
		logger.Errorw("profile fetch failed", "user_id", fs.UserID, "error", err)
		s.metrics.RecordCallback(telemetry.OutcomeProfileError)
		return errorRedirect(redirectBack, CallbackErrorProfileFailed)
	}

	rec := &store.TokenRecord{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
		Scopes:       tokens.Scopes,
	}
	if err := s.store.ReplaceTokenRecord(ctx, fs.UserID, rec); err != nil {
		logger.Errorw("failed to persist token record", "user_id", fs.UserID, "error", err)
		s.metrics.RecordCallback(telemetry.OutcomeExchangeError)
		return errorRedirect(redirectBack, CallbackErrorExchangeFailed)
	}

	status := &store.LinkStatus{
		Linked:      true,
		DisplayName: profile.DisplayName,
		Premium:     profile.Premium,
		LinkedAt:    now(),
	}
	if err := s.store.PutLinkStatus(ctx, fs.UserID, status); err != nil {
		logger.Errorw("failed to persist link status", "user_id", fs.UserID, "error", err)
		s.metrics.RecordCallback(telemetry.OutcomeExchangeError)
		return errorRedirect(redirectBack, CallbackErrorExchangeFailed)
	}

	logger.Infow("spotify account linked", "user_id", fs.UserID)
	s.metrics.RecordCallback(telemetry.OutcomeLinked)
	return appendQuery(redirectBack, "spotify", "connected")
}

// appendQuery adds query parameters to a URL, tolerating URLs that
// already carry a query string.
func appendQuery(rawURL string, pairs ...string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for i := 0; i+1 < len(pairs); i += 2 {
		q.Set(pairs[i], pairs[i+1])
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// errorRedirect marks a redirect target with the generic failure shape the
// frontend understands. The message is one of the CallbackError codes,
// never provider detail.
func errorRedirect(rawURL, code string) string {
	return appendQuery(rawURL, "spotify", "error", "message", code)
}
