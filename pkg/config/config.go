// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the trackdeck service configuration from the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Configuration errors. These indicate an operator mistake, not a user
// error, and are logged loudly and mapped to HTTP 500 by the API layer.
var (
	ErrMissingClientID     = errors.New("spotify client id is not configured")
	ErrMissingClientSecret = errors.New("spotify client secret is not configured")
)

// Store backend types.
const (
	StoreBackendMemory = "memory"
	StoreBackendRedis  = "redis"
)

// Default Spotify endpoints. Overridable for tests.
const (
	DefaultAuthorizeEndpoint = "https://accounts.spotify.com/authorize"
	DefaultTokenEndpoint     = "https://accounts.spotify.com/api/token"
	DefaultAPIBaseURL        = "https://api.spotify.com"
)

// DefaultScopes are the fixed scopes requested on every login. The dashboard
// needs playback control plus the profile fields used for LinkStatus.
var DefaultScopes = []string{
	"streaming",
	"user-read-email",
	"user-read-private",
	"user-read-playback-state",
	"user-modify-playback-state",
}

// SpotifyConfig holds the provider-facing configuration.
type SpotifyConfig struct {
	// ClientID is the Spotify application client id.
	ClientID string

	// ClientSecret is the Spotify application client secret, used only on
	// the refresh leg (PKCE substitutes for it on the code-exchange leg).
	ClientSecret string

	// RedirectURI is the public URL of our callback endpoint, registered
	// with Spotify.
	RedirectURI string

	// AuthorizeEndpoint, TokenEndpoint and APIBaseURL default to the real
	// Spotify endpoints and exist so tests can point at local servers.
	AuthorizeEndpoint string
	TokenEndpoint     string
	APIBaseURL        string

	// Scopes are the fixed scopes requested on login.
	Scopes []string
}

// IdentityConfig holds the settings for verifying our own users' bearer
// tokens.
type IdentityConfig struct {
	// Issuer is the expected "iss" claim.
	Issuer string

	// Audience is the expected "aud" claim.
	Audience string

	// JWKSURL is where signing keys are fetched from.
	JWKSURL string
}

// StoreConfig selects and configures the shared document store.
type StoreConfig struct {
	// Backend is "memory" or "redis".
	Backend string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Config is the full service configuration.
type Config struct {
	// ListenAddress is the host:port the HTTP server binds to.
	ListenAddress string

	// FrontendOrigin is the default origin for post-flow browser redirects.
	FrontendOrigin string

	// AllowedRedirectOrigins is the fixed allow-list guarding every
	// outbound redirect. FrontendOrigin is always a member.
	AllowedRedirectOrigins []string

	Spotify  SpotifyConfig
	Identity IdentityConfig
	Store    StoreConfig

	Debug bool
}

// Load reads the configuration from TRACKDECK_-prefixed environment
// variables and applies defaults. Missing provider credentials are not an
// error here; the operations that need them fail with the ErrMissing*
// sentinels so the rest of the service stays usable.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("trackdeck")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_address", "127.0.0.1:8080")
	v.SetDefault("frontend_origin", "http://localhost:5173")
	v.SetDefault("spotify.authorize_endpoint", DefaultAuthorizeEndpoint)
	v.SetDefault("spotify.token_endpoint", DefaultTokenEndpoint)
	v.SetDefault("spotify.api_base_url", DefaultAPIBaseURL)
	v.SetDefault("store.backend", StoreBackendMemory)
	v.SetDefault("store.redis_addr", "127.0.0.1:6379")
	v.SetDefault("store.redis_prefix", "trackdeck:")

	cfg := &Config{
		ListenAddress:  v.GetString("listen_address"),
		FrontendOrigin: v.GetString("frontend_origin"),
		Spotify: SpotifyConfig{
			ClientID:          v.GetString("spotify.client_id"),
			ClientSecret:      v.GetString("spotify.client_secret"),
			RedirectURI:       v.GetString("spotify.redirect_uri"),
			AuthorizeEndpoint: v.GetString("spotify.authorize_endpoint"),
			TokenEndpoint:     v.GetString("spotify.token_endpoint"),
			APIBaseURL:        v.GetString("spotify.api_base_url"),
			Scopes:            DefaultScopes,
		},
		Identity: IdentityConfig{
			Issuer:   v.GetString("identity.issuer"),
			Audience: v.GetString("identity.audience"),
			JWKSURL:  v.GetString("identity.jwks_url"),
		},
		Store: StoreConfig{
			Backend:       v.GetString("store.backend"),
			RedisAddr:     v.GetString("store.redis_addr"),
			RedisPassword: v.GetString("store.redis_password"),
			RedisDB:       v.GetInt("store.redis_db"),
			RedisPrefix:   v.GetString("store.redis_prefix"),
		},
		Debug: viper.GetBool("debug"),
	}

	if cfg.Spotify.RedirectURI == "" {
		// Derive from the listen address so a bare dev setup works.
		cfg.Spotify.RedirectURI = fmt.Sprintf("http://%s/api/v1/spotify/callback", cfg.ListenAddress)
	}

	allowed := v.GetString("allowed_redirect_origins")
	for _, origin := range strings.Split(allowed, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			cfg.AllowedRedirectOrigins = append(cfg.AllowedRedirectOrigins, origin)
		}
	}
	// The default frontend origin is always a valid redirect target.
	if !contains(cfg.AllowedRedirectOrigins, cfg.FrontendOrigin) {
		cfg.AllowedRedirectOrigins = append(cfg.AllowedRedirectOrigins, cfg.FrontendOrigin)
	}

	if cfg.Store.Backend != StoreBackendMemory && cfg.Store.Backend != StoreBackendRedis {
		return nil, fmt.Errorf("unknown store backend %q (must be %q or %q)",
			cfg.Store.Backend, StoreBackendMemory, StoreBackendRedis)
	}

	return cfg, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
