// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

package link

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackdeck/trackdeck/pkg/store"
)

// fakeProvider serves the token and profile endpoints of a well-behaved
// provider and counts exchanges.
type fakeProvider struct {
	exchanges    atomic.Int64
	failExchange bool
	failProfile  bool
}

func (f *fakeProvider) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		f.exchanges.Add(1)
		if f.failExchange {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-" + r.PostForm.Get("code"),
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "refresh-1",
			"scope":         "streaming",
		})
	})
	mux.HandleFunc("/v1/me", func(w http.ResponseWriter, _ *http.Request) {
		if f.failProfile {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":           "spotify-user",
			"display_name": "DJ Example",
			"product":      "premium",
		})
	})
	return mux
}

// startFlow runs StartLogin and returns the state token.
func startFlow(t *testing.T, svc *Service, userID, redirectBack string) string {
	t.Helper()
	authURL, err := svc.StartLogin(context.Background(), userID, redirectBack)
	require.NoError(t, err)
	return queryParam(t, authURL, "state")
}

func TestHandleCallbackSuccess(t *testing.T) {
	t.Parallel()
	provider := &fakeProvider{}
	svc, st := newTestService(t, provider.handler())
	ctx := context.Background()

	state := startFlow(t, svc, "user-1", "http://localhost:5173/library")

	target := svc.HandleCallback(ctx, state, "the-code", "")

	u, err := url.Parse(target)
	require.NoError(t, err)
	assert.Equal(t, "localhost:5173", u.Host)
	assert.Equal(t, "/library", u.Path)
	assert.Equal(t, "connected", u.Query().Get("spotify"))

	rec, err := st.GetTokenRecord(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "access-the-code", rec.AccessToken)
	assert.Equal(t, "refresh-1", rec.RefreshToken)
	assert.Equal(t, []string{"streaming"}, rec.Scopes)
	assert.WithinDuration(t, time.Now().Add(time.Hour), rec.ExpiresAt, 5*time.Second)

	status, err := st.GetLinkStatus(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, status.Linked)
	assert.Equal(t, "DJ Example", status.DisplayName)
	assert.True(t, status.Premium)
}

func TestHandleCallbackReplayedState(t *testing.T) {
	t.Parallel()
	provider := &fakeProvider{}
	svc, _ := newTestService(t, provider.handler())
	ctx := context.Background()

	state := startFlow(t, svc, "user-1", "")

	first := svc.HandleCallback(ctx, state, "the-code", "")
	assert.Contains(t, first, "spotify=connected")

	// The state was consumed before the exchange; replaying it is treated
	// like a forged token and causes no second exchange.
	second := svc.HandleCallback(ctx, state, "the-code", "")
	assert.Contains(t, second, "spotify=error")
	assert.Contains(t, second, "message="+CallbackErrorInvalidState)
	assert.Equal(t, int64(1), provider.exchanges.Load())
}

func TestHandleCallbackUnknownState(t *testing.T) {
	t.Parallel()
	provider := &fakeProvider{}
	svc, _ := newTestService(t, provider.handler())

	target := svc.HandleCallback(context.Background(), "forged-state", "code", "")

	// Silent redirect to the frontend; no exchange attempted.
	assert.True(t, strings.HasPrefix(target, "http://localhost:5173"))
	assert.Contains(t, target, "spotify=error")
	assert.Contains(t, target, "message="+CallbackErrorInvalidState)
	assert.Equal(t, int64(0), provider.exchanges.Load())
}

func TestHandleCallbackMissingParameters(t *testing.T) {
	t.Parallel()
	provider := &fakeProvider{}
	svc, _ := newTestService(t, provider.handler())
	ctx := context.Background()

	target := svc.HandleCallback(ctx, "", "", "")
	assert.Contains(t, target, "spotify=error")
	assert.Contains(t, target, "message="+CallbackErrorMissingParams)

	state := startFlow(t, svc, "user-1", "")
	target = svc.HandleCallback(ctx, state, "", "")
	assert.Contains(t, target, "spotify=error")
	assert.Contains(t, target, "message="+CallbackErrorMissingParams)
	assert.Equal(t, int64(0), provider.exchanges.Load())
}

func TestHandleCallbackProviderDenied(t *testing.T) {
	t.Parallel()
	provider := &fakeProvider{}
	svc, st := newTestService(t, provider.handler())
	ctx := context.Background()

	state := startFlow(t, svc, "user-1", "http://localhost:5173/settings")

	target := svc.HandleCallback(ctx, state, "", "access_denied")
	assert.Contains(t, target, "spotify=error")
	assert.Contains(t, target, "message="+CallbackErrorAccessDenied)
	assert.True(t, strings.HasPrefix(target, "http://localhost:5173/settings"))
	assert.Equal(t, int64(0), provider.exchanges.Load())

	// The denial consumed the flow state.
	_, err := st.ConsumeFlowState(ctx, state)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandleCallbackExchangeFailure(t *testing.T) {
	t.Parallel()
	provider := &fakeProvider{failExchange: true}
	svc, st := newTestService(t, provider.handler())
	ctx := context.Background()

	state := startFlow(t, svc, "user-1", "http://localhost:5173/library")

	target := svc.HandleCallback(ctx, state, "bad-code", "")
	assert.Contains(t, target, "spotify=error")
	assert.Contains(t, target, "message="+CallbackErrorExchangeFailed)

	// No partial link.
	_, err := st.GetTokenRecord(ctx, "user-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.GetLinkStatus(ctx, "user-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The flow state is spent; retrying the callback needs a new login.
	target = svc.HandleCallback(ctx, state, "bad-code", "")
	assert.Contains(t, target, "spotify=error")
	assert.Contains(t, target, "message="+CallbackErrorInvalidState)
}

func TestHandleCallbackProfileFetchFailure(t *testing.T) {
	t.Parallel()
	provider := &fakeProvider{failProfile: true}
	svc, st := newTestService(t, provider.handler())
	ctx := context.Background()

	state := startFlow(t, svc, "user-1", "http://localhost:5173/library")

	target := svc.HandleCallback(ctx, state, "the-code", "")
	assert.Contains(t, target, "spotify=error")
	assert.Contains(t, target, "message="+CallbackErrorProfileFailed)

	// The exchange happened, but nothing was persisted: no partial link.
	assert.Equal(t, int64(1), provider.exchanges.Load())
	_, err := st.GetTokenRecord(ctx, "user-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.GetLinkStatus(ctx, "user-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandleCallbackProviderDeniedSanitizesStoredRedirect(t *testing.T) {
	t.Parallel()
	provider := &fakeProvider{}
	svc, st := newTestService(t, provider.handler())
	ctx := context.Background()

	// A stored redirect whose origin has since left the allow-list must
	// not be used as the denial fallback.
	require.NoError(t, st.PutFlowState(ctx, "rogue-state", &store.FlowState{
		UserID:          "user-1",
		Verifier:        "verifier",
		RedirectBackURL: "http://evil.example/phish",
		CreatedAt:       time.Now(),
	}))

	target := svc.HandleCallback(ctx, "rogue-state", "", "access_denied")
	assert.True(t, strings.HasPrefix(target, "http://localhost:5173"))
	assert.Contains(t, target, "message="+CallbackErrorAccessDenied)
}

func TestHandleCallbackRelinkOverwritesTokens(t *testing.T) {
	t.Parallel()
	provider := &fakeProvider{}
	svc, st := newTestService(t, provider.handler())
	ctx := context.Background()

	require.NoError(t, st.ReplaceTokenRecord(ctx, "user-1", &store.TokenRecord{
		AccessToken:  "stale-access",
		RefreshToken: "stale-refresh",
		ExpiresAt:    time.Now().Add(-time.Hour),
	}))

	state := startFlow(t, svc, "user-1", "")
	target := svc.HandleCallback(ctx, state, "fresh-code", "")
	assert.Contains(t, target, "spotify=connected")

	rec, err := st.GetTokenRecord(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "access-fresh-code", rec.AccessToken)
	assert.Equal(t, "refresh-1", rec.RefreshToken)
}
