// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists the short-lived login flow state and the per-user
// Spotify token records.
package store

import (
	"context"
	"errors"
	"time"
)

// Storage errors.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrExpired indicates the record existed but its TTL had elapsed.
	// Callers treat it the same as ErrNotFound; the split exists for logs.
	ErrExpired = errors.New("record expired")

	// ErrCorruptRecord indicates a stored document failed to decode.
	ErrCorruptRecord = errors.New("corrupt record")
)

// FlowStateTTL bounds how long a login attempt may sit between the redirect
// to the provider and the callback. Expired flows are unrecoverable; the
// user simply starts a new login.
const FlowStateTTL = 10 * time.Minute

// FlowState is the server-side memory of one in-flight login attempt,
// keyed by the opaque state token. It never leaves the server; the PKCE
// verifier in particular must not reach the browser.
type FlowState struct {
	// UserID is the authenticated dashboard user who started the login.
	UserID string `json:"user_id"`

	// Verifier is the PKCE code verifier for this attempt.
	Verifier string `json:"verifier"`

	// RedirectBackURL is where the browser should land after the flow,
	// validated against the origin allow-list before use.
	RedirectBackURL string `json:"redirect_back_url"`

	// CreatedAt records when the flow started.
	CreatedAt time.Time `json:"created_at"`
}

// TokenRecord holds a user's Spotify credentials. AccessToken and
// RefreshToken are secrets; they are stored server-side only and never
// logged.
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes"`
}

// LinkStatus is the non-secret projection of a user's Spotify connection,
// safe to return to the browser.
type LinkStatus struct {
	Linked      bool      `json:"linked"`
	DisplayName string    `json:"display_name,omitempty"`
	Premium     bool      `json:"premium,omitempty"`
	LinkedAt    time.Time `json:"linked_at,omitempty"`
}

// FlowStore persists in-flight login attempts.
type FlowStore interface {
	// PutFlowState stores the flow state under the state token with
	// FlowStateTTL. An existing entry under the same token is replaced.
	PutFlowState(ctx context.Context, state string, fs *FlowState) error

	// ConsumeFlowState atomically reads and deletes the flow state for a
	// state token. A second consume of the same token returns ErrNotFound,
	// which is what makes state tokens single-use.
	ConsumeFlowState(ctx context.Context, state string) (*FlowState, error)
}

// TokenStore persists per-user token records and link status.
type TokenStore interface {
	GetTokenRecord(ctx context.Context, userID string) (*TokenRecord, error)

	// ReplaceTokenRecord overwrites the user's record as a whole. Partial
	// updates are not offered; callers construct the full new record so a
	// refresh that omits the rotated refresh token keeps the old one.
	ReplaceTokenRecord(ctx context.Context, userID string, rec *TokenRecord) error

	DeleteTokenRecord(ctx context.Context, userID string) error

	GetLinkStatus(ctx context.Context, userID string) (*LinkStatus, error)
	PutLinkStatus(ctx context.Context, userID string, status *LinkStatus) error
	DeleteLinkStatus(ctx context.Context, userID string) error
}

// Store combines both concerns; the two backends implement it whole.
type Store interface {
	FlowStore
	TokenStore
}
