// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/trackdeck/trackdeck/pkg/api"
	v1 "github.com/trackdeck/trackdeck/pkg/api/v1"
	"github.com/trackdeck/trackdeck/pkg/auth"
	"github.com/trackdeck/trackdeck/pkg/config"
	"github.com/trackdeck/trackdeck/pkg/link"
	"github.com/trackdeck/trackdeck/pkg/logger"
	"github.com/trackdeck/trackdeck/pkg/spotify"
	"github.com/trackdeck/trackdeck/pkg/store"
	"github.com/trackdeck/trackdeck/pkg/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trackdeck HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Spotify.ClientID == "" {
		logger.Warn("spotify client id not configured; login will fail until it is set")
	}

	st, pinger, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}

	provider := spotify.NewClient(spotify.Config{
		ClientID:          cfg.Spotify.ClientID,
		ClientSecret:      cfg.Spotify.ClientSecret,
		RedirectURI:       cfg.Spotify.RedirectURI,
		AuthorizeEndpoint: cfg.Spotify.AuthorizeEndpoint,
		TokenEndpoint:     cfg.Spotify.TokenEndpoint,
		APIBaseURL:        cfg.Spotify.APIBaseURL,
		Scopes:            cfg.Spotify.Scopes,
	})

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	service := link.NewService(cfg, st, provider, link.WithMetrics(metrics))

	verifier, err := auth.NewVerifier(ctx, auth.VerifierConfig{
		Issuer:   cfg.Identity.Issuer,
		Audience: cfg.Identity.Audience,
		JWKSURL:  cfg.Identity.JWKSURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create identity verifier: %w", err)
	}

	return api.Serve(ctx, api.Config{
		Address:        cfg.ListenAddress,
		FrontendOrigin: cfg.FrontendOrigin,
		Service:        service,
		Verifier:       verifier,
		Pinger:         pinger,
	})
}

// buildStore constructs the configured store backend. The Redis connect is
// retried with exponential backoff so the server survives Redis starting a
// moment after it does.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, v1.Pinger, error) {
	if cfg.Store.Backend == config.StoreBackendMemory {
		logger.Info("using in-memory store; flows will not survive restarts")
		return store.NewMemoryStore(), nil, nil
	}

	redisStore, err := backoff.Retry(ctx, func() (*store.RedisStore, error) {
		return store.NewRedisStore(ctx, store.RedisConfig{
			Addr:      cfg.Store.RedisAddr,
			Password:  cfg.Store.RedisPassword,
			DB:        cfg.Store.RedisDB,
			KeyPrefix: cfg.Store.RedisPrefix,
		})
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(5),
		backoff.WithNotify(func(err error, duration time.Duration) {
			logger.Warnw("redis connection failed, retrying",
				"error", err,
				"next_attempt_in", duration)
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Infow("connected to redis", "addr", cfg.Store.RedisAddr)
	return redisStore, redisStore, nil
}
