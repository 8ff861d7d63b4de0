// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package api contains the REST API for trackdeck.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/trackdeck/trackdeck/pkg/api/v1"
	"github.com/trackdeck/trackdeck/pkg/auth"
	"github.com/trackdeck/trackdeck/pkg/link"
	"github.com/trackdeck/trackdeck/pkg/logger"
	"github.com/trackdeck/trackdeck/pkg/telemetry"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Config assembles everything the HTTP server needs.
type Config struct {
	Address string

	// FrontendOrigin is mirrored into CORS headers for browser calls.
	FrontendOrigin string

	Service  *link.Service
	Verifier *auth.Verifier

	// Pinger participates in /health; nil for the memory backend.
	Pinger v1.Pinger
}

func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Router builds the full route tree. Split from Serve so tests can drive
// it through httptest.
func Router(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Timeout(middlewareTimeout),
		headersMiddleware,
		corsMiddleware(cfg.FrontendOrigin),
	)

	r.Mount("/health", v1.HealthcheckRouter(cfg.Pinger))
	r.Handle("/metrics", telemetry.Handler())

	// The callback is the one provider-facing route; the browser arrives
	// from Spotify without our bearer token.
	r.Get("/api/v1/spotify/callback", v1.CallbackHandler(cfg.Service))

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Verifier))
		r.Mount("/api/v1/spotify", v1.SpotifyRouter(cfg.Service))
	})

	return r
}

// Serve starts the server on the given address and serves the API until
// the context is cancelled. It is assumed that the caller sets up
// appropriate signal handling.
func Serve(ctx context.Context, cfg Config) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              cfg.Address,
		Handler:           Router(cfg),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.Infof("starting HTTP server on %s", cfg.Address)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("HTTP server stopped")
	return nil
}
