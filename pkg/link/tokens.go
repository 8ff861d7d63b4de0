// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trackdeck/trackdeck/pkg/logger"
	"github.com/trackdeck/trackdeck/pkg/store"
	"github.com/trackdeck/trackdeck/pkg/telemetry"
)

// RefreshBuffer is how long before expiry a stored access token stops
// being served. Refreshing early keeps a token valid for the whole of any
// downstream API call that starts just before expiry.
const RefreshBuffer = 5 * time.Minute

// TokenInfo pairs an access token with its expiry.
type TokenInfo struct {
	AccessToken string
	ExpiresAt   time.Time
}

// AccessToken returns a valid access token for the user, refreshing it
// against the provider when needed.
func (s *Service) AccessToken(ctx context.Context, userID string) (string, error) {
	info, err := s.AccessTokenInfo(ctx, userID)
	if err != nil {
		return "", err
	}
	return info.AccessToken, nil
}

// AccessTokenInfo returns a valid access token and its expiry, refreshing
// against the provider when the stored token is within RefreshBuffer of
// expiry. Concurrent calls for one user share a single refresh.
func (s *Service) AccessTokenInfo(ctx context.Context, userID string) (*TokenInfo, error) {
	rec, err := s.store.GetTokenRecord(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotLinked
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token record: %w", err)
	}

	// Strictly more than the buffer remaining: a token with exactly five
	// minutes left is refreshed.
	if time.Until(rec.ExpiresAt) > RefreshBuffer {
		s.metrics.RecordCacheHit()
		return &TokenInfo{AccessToken: rec.AccessToken, ExpiresAt: rec.ExpiresAt}, nil
	}

	v, err, _ := s.refreshGroup.Do(userID, func() (any, error) {
		return s.refresh(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*TokenInfo), nil
}

// refresh exchanges the stored refresh token for a new access token and
// persists the result. Runs inside the singleflight group, so it re-reads
// the record first: a caller that queued behind a finished refresh finds
// the fresh token and returns it without a second provider call.
func (s *Service) refresh(ctx context.Context, userID string) (*TokenInfo, error) {
	rec, err := s.store.GetTokenRecord(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotLinked
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token record: %w", err)
	}
	if time.Until(rec.ExpiresAt) > RefreshBuffer {
		return &TokenInfo{AccessToken: rec.AccessToken, ExpiresAt: rec.ExpiresAt}, nil
	}

	if err := s.checkCredentials(); err != nil {
		return nil, err
	}

	tokens, err := s.provider.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		s.metrics.RecordRefresh(telemetry.ResultFailed)
		logger.Errorw("token refresh failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	newRec := &store.TokenRecord{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
		Scopes:       rec.Scopes,
	}
	// Spotify usually omits the refresh token on refresh; the original
	// stays valid and must be kept.
	if newRec.RefreshToken == "" {
		newRec.RefreshToken = rec.RefreshToken
	}
	if len(tokens.Scopes) > 0 {
		newRec.Scopes = tokens.Scopes
	}

	if err := s.store.ReplaceTokenRecord(ctx, userID, newRec); err != nil {
		// The new token is valid even if persisting failed; serve it and
		// let the next call retry the write.
		logger.Errorw("failed to persist refreshed token", "user_id", userID, "error", err)
	}

	s.metrics.RecordRefresh(telemetry.ResultOK)
	logger.Debugw("access token refreshed", "user_id", userID)
	return &TokenInfo{AccessToken: newRec.AccessToken, ExpiresAt: newRec.ExpiresAt}, nil
}
