// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth verifies the bearer credentials of trackdeck's own users.
package auth

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Identity represents a verified trackdeck user.
type Identity struct {
	// Subject is the stable user identifier (the JWT "sub" claim).
	Subject string

	// Name is the user's display name, if present in the token.
	Name string

	// Email is the user's email address, if present in the token.
	Email string

	// Claims holds all claims from the verified token.
	Claims jwt.MapClaims
}

// IdentityContextKey is the key used to store Identity in the request
// context. An empty struct type cannot collide with keys from other
// packages.
type IdentityContextKey struct{}

// WithIdentity stores an Identity in the context.
// If identity is nil, the original context is returned unchanged.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, IdentityContextKey{}, identity)
}

// IdentityFromContext retrieves an Identity from the context.
// Returns the identity and true if present, nil and false otherwise.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey{}).(*Identity)
	return identity, ok
}

// claimsToIdentity converts JWT claims to an Identity. The 'sub' claim is
// required per OIDC Core 1.0 § 5.1.
func claimsToIdentity(claims jwt.MapClaims) (*Identity, error) {
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, errors.New("missing or invalid 'sub' claim")
	}

	identity := &Identity{
		Subject: sub,
		Claims:  claims,
	}
	if name, ok := claims["name"].(string); ok {
		identity.Name = name
	}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	return identity, nil
}
