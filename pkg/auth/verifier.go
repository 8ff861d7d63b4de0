// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/trackdeck/trackdeck/pkg/networking"
)

// Common errors.
var (
	// ErrUnauthenticated covers every verification failure: missing header,
	// malformed credential, bad signature, wrong issuer/audience, expiry.
	// The API layer maps it to HTTP 401.
	ErrUnauthenticated = errors.New("unauthenticated")

	ErrMissingJWKSURL = errors.New("missing JWKS URL")
)

// Verifier validates bearer JWTs against the identity provider's published
// signing keys and yields a stable user identifier.
type Verifier struct {
	issuer   string
	audience string
	jwksURL  string

	jwksClient *jwk.Cache

	// Lazy JWKS registration: deferring the first fetch to the first
	// verification keeps construction network-free.
	jwksRegistered      bool
	jwksRegistrationMu  sync.Mutex
	jwksRegistrationErr error
}

// VerifierConfig contains configuration for the bearer token verifier.
type VerifierConfig struct {
	// Issuer is the expected OIDC issuer URL.
	Issuer string

	// Audience is the expected audience for the token.
	Audience string

	// JWKSURL is the URL to fetch signing keys from.
	JWKSURL string

	// HTTPClient overrides the client used for JWKS fetches. Tests use
	// this to reach httptest servers.
	HTTPClient *http.Client
}

// NewVerifier creates a new bearer token verifier backed by an
// auto-refreshing JWKS cache.
func NewVerifier(ctx context.Context, cfg VerifierConfig) (*Verifier, error) {
	if cfg.JWKSURL == "" {
		return nil, ErrMissingJWKSURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = networking.NewHTTPClient(false)
	}

	// JWKS client with auto-refresh.
	httprcClient := httprc.NewClient(httprc.WithHTTPClient(httpClient))
	cache, err := jwk.NewCache(ctx, httprcClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS cache: %w", err)
	}

	return &Verifier{
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		jwksURL:    cfg.JWKSURL,
		jwksClient: cache,
	}, nil
}

// Verify validates a bearer credential (the raw Authorization header value)
// and returns the verified identity. Every failure is ErrUnauthenticated
// with the cause wrapped.
func (v *Verifier) Verify(ctx context.Context, authHeader string) (*Identity, error) {
	if authHeader == "" {
		return nil, fmt.Errorf("%w: authorization header required", ErrUnauthenticated)
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, fmt.Errorf("%w: invalid authorization header format", ErrUnauthenticated)
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return v.getKeyFromJWKS(ctx, token)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: failed to get claims from token", ErrUnauthenticated)
	}
	if err := v.validateClaims(claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	identity, err := claimsToIdentity(claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return identity, nil
}

// ensureJWKSRegistered registers the JWKS URL with the cache exactly once.
func (v *Verifier) ensureJWKSRegistered(ctx context.Context) error {
	v.jwksRegistrationMu.Lock()
	defer v.jwksRegistrationMu.Unlock()

	if v.jwksRegistered {
		return v.jwksRegistrationErr
	}

	registrationCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := v.jwksClient.Register(registrationCtx, v.jwksURL); err != nil {
		v.jwksRegistrationErr = fmt.Errorf("failed to register JWKS URL: %w", err)
	} else {
		v.jwksRegistrationErr = nil
	}
	v.jwksRegistered = true
	return v.jwksRegistrationErr
}

// getKeyFromJWKS resolves the signing key for a token from the JWKS cache.
func (v *Verifier) getKeyFromJWKS(ctx context.Context, token *jwt.Token) (any, error) {
	if err := v.ensureJWKSRegistered(ctx); err != nil {
		return nil, fmt.Errorf("JWKS registration failed: %w", err)
	}

	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("token header missing kid")
	}

	keySet, err := v.jwksClient.Lookup(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup JWKS: %w", err)
	}

	key, found := keySet.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("key ID %s not found in JWKS", kid)
	}

	var rawKey any
	if err := jwk.Export(key, &rawKey); err != nil {
		return nil, fmt.Errorf("failed to export raw key: %w", err)
	}
	return rawKey, nil
}

// validateClaims checks issuer, audience and expiry.
func (v *Verifier) validateClaims(claims jwt.MapClaims) error {
	if v.issuer != "" {
		issuerClaim, err := claims.GetIssuer()
		if err != nil {
			return fmt.Errorf("failed to get issuer from claims: %w", err)
		}
		if strings.TrimSpace(issuerClaim) != strings.TrimSpace(v.issuer) {
			return errors.New("invalid issuer")
		}
	}

	if v.audience != "" {
		audiences, err := claims.GetAudience()
		if err != nil {
			return errors.New("invalid audience")
		}
		found := false
		for _, aud := range audiences {
			if aud == v.audience {
				found = true
				break
			}
		}
		if !found {
			return errors.New("invalid audience")
		}
	}

	expirationTime, err := claims.GetExpirationTime()
	if err != nil || expirationTime == nil || expirationTime.Before(time.Now()) {
		return errors.New("token expired")
	}
	return nil
}
