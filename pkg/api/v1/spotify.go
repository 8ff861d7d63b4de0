// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package v1 contains the v1 REST API handlers.
package v1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trackdeck/trackdeck/pkg/auth"
	"github.com/trackdeck/trackdeck/pkg/config"
	"github.com/trackdeck/trackdeck/pkg/link"
	"github.com/trackdeck/trackdeck/pkg/logger"
	"github.com/trackdeck/trackdeck/pkg/spotify"
)

// SpotifyRoutes defines the routes for the Spotify connection API.
type SpotifyRoutes struct {
	service *link.Service
}

// SpotifyRouter creates a router for the authenticated Spotify endpoints.
// The callback endpoint is NOT here; the browser arrives at it from the
// provider without a bearer token, so it is mounted unauthenticated via
// CallbackHandler.
func SpotifyRouter(service *link.Service) http.Handler {
	routes := SpotifyRoutes{service: service}

	r := chi.NewRouter()
	r.Get("/login", routes.login)
	r.Get("/status", routes.status)
	r.Post("/refresh", routes.refresh)
	r.Post("/disconnect", routes.disconnect)
	r.HandleFunc("/proxy/*", routes.proxy)
	return r
}

// CallbackHandler returns the unauthenticated provider callback handler.
// It only ever answers with a 302; every failure mode is encoded into the
// redirect target.
func CallbackHandler(service *link.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		target := service.HandleCallback(
			r.Context(),
			q.Get("state"),
			q.Get("code"),
			q.Get("error"),
		)
		http.Redirect(w, r, target, http.StatusFound)
	}
}

type loginResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

// login starts a login flow and returns the provider authorization URL for
// the frontend to navigate to.
func (s *SpotifyRoutes) login(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	authURL, err := s.service.StartLogin(r.Context(), identity.Subject, r.URL.Query().Get("redirectBackUrl"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{RedirectURL: authURL})
}

// status reports whether the user's Spotify account is linked.
func (s *SpotifyRoutes) status(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	status, err := s.service.Status(r.Context(), identity.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// refresh returns a currently valid access token, refreshing it first if
// it is near expiry. The Web Playback SDK in the browser needs the raw
// token; this is the one place it crosses to the frontend.
func (s *SpotifyRoutes) refresh(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	info, err := s.service.AccessTokenInfo(r.Context(), identity.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken: info.AccessToken,
		ExpiresIn:   int(time.Until(info.ExpiresAt).Seconds()),
	})
}

// disconnect removes the user's Spotify connection.
func (s *SpotifyRoutes) disconnect(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	if err := s.service.Disconnect(r.Context(), identity.Subject); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// proxy forwards a Web API request to Spotify with the user's access
// token, refreshing it first when needed. The frontend never sees the
// token itself.
func (s *SpotifyRoutes) proxy(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	token, err := s.service.AccessToken(r.Context(), identity.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	path := "/" + strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	resp, err := s.service.ProxyRequest(r.Context(), r.Method, path, token, r.Body)
	if err != nil {
		logger.Errorw("proxy request failed", "path", path, "error", err)
		writeError(w, http.StatusBadGateway, "provider_error", "upstream request failed")
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Debugw("proxy response copy failed", "error", err)
	}
}

// writeServiceError maps flow errors onto HTTP statuses. 403 for an
// unlinked account is deliberate: the caller is authenticated, just not
// connected to Spotify.
func writeServiceError(w http.ResponseWriter, err error) {
	var pErr *spotify.ProviderError
	switch {
	case errors.Is(err, link.ErrNotLinked):
		writeError(w, http.StatusForbidden, "not_linked", "spotify account not linked")
	case errors.Is(err, config.ErrMissingClientID), errors.Is(err, config.ErrMissingClientSecret):
		logger.Errorw("provider credentials not configured", "error", err)
		writeError(w, http.StatusInternalServerError, "configuration_error", "service not configured")
	case errors.As(err, &pErr):
		logger.Errorw("provider request rejected", "status", pErr.Status, "code", pErr.Code)
		writeError(w, http.StatusInternalServerError, "provider_error", "provider request failed")
	default:
		logger.Errorw("spotify operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Debugw("failed to encode response", "error", err)
	}
}

// writeError emits the {error, message} body with a machine-readable
// error kind, never prose derived from the status code.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]string{"error": kind, "message": message})
}
