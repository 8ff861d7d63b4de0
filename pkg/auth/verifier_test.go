// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyID = "test-key-1"

// testIssuer hosts a JWKS endpoint and signs tokens for it.
type testIssuer struct {
	key *rsa.PrivateKey
	srv *httptest.Server
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pub, err := jwk.Import(key.Public())
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, testKeyID))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))
	jwksBody, err := json.Marshal(set)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwksBody)
	}))
	t.Cleanup(srv.Close)

	return &testIssuer{key: key, srv: srv}
}

func (ti *testIssuer) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(ti.key)
	require.NoError(t, err)
	return signed
}

func (ti *testIssuer) verifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(context.Background(), VerifierConfig{
		Issuer:   "https://id.trackdeck.example",
		Audience: "trackdeck-api",
		JWKSURL:  ti.srv.URL,
	})
	require.NoError(t, err)
	return v
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   "user-1",
		"name":  "Sam Example",
		"email": "sam@example.com",
		"iss":   "https://id.trackdeck.example",
		"aud":   "trackdeck-api",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	}
}

func TestVerifierValidToken(t *testing.T) {
	t.Parallel()
	ti := newTestIssuer(t)
	v := ti.verifier(t)

	identity, err := v.Verify(context.Background(), "Bearer "+ti.sign(t, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.Subject)
	assert.Equal(t, "Sam Example", identity.Name)
	assert.Equal(t, "sam@example.com", identity.Email)
}

func TestVerifierRejectsMissingHeader(t *testing.T) {
	t.Parallel()
	ti := newTestIssuer(t)
	v := ti.verifier(t)

	_, err := v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerifierRejectsNonBearerHeader(t *testing.T) {
	t.Parallel()
	ti := newTestIssuer(t)
	v := ti.verifier(t)

	_, err := v.Verify(context.Background(), "Basic dXNlcjpwYXNz")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerifierRejectsExpiredToken(t *testing.T) {
	t.Parallel()
	ti := newTestIssuer(t)
	v := ti.verifier(t)

	claims := validClaims()
	claims["exp"] = time.Now().Add(-time.Hour).Unix()

	_, err := v.Verify(context.Background(), "Bearer "+ti.sign(t, claims))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerifierRejectsWrongIssuer(t *testing.T) {
	t.Parallel()
	ti := newTestIssuer(t)
	v := ti.verifier(t)

	claims := validClaims()
	claims["iss"] = "https://rogue.example"

	_, err := v.Verify(context.Background(), "Bearer "+ti.sign(t, claims))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerifierRejectsWrongAudience(t *testing.T) {
	t.Parallel()
	ti := newTestIssuer(t)
	v := ti.verifier(t)

	claims := validClaims()
	claims["aud"] = "someone-else"

	_, err := v.Verify(context.Background(), "Bearer "+ti.sign(t, claims))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerifierRejectsMissingSubject(t *testing.T) {
	t.Parallel()
	ti := newTestIssuer(t)
	v := ti.verifier(t)

	claims := validClaims()
	delete(claims, "sub")

	_, err := v.Verify(context.Background(), "Bearer "+ti.sign(t, claims))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerifierRejectsForeignSignature(t *testing.T) {
	t.Parallel()
	ti := newTestIssuer(t)
	v := ti.verifier(t)

	// Token signed by a key the JWKS does not contain.
	rogue := newTestIssuer(t)
	_, err := v.Verify(context.Background(), "Bearer "+rogue.sign(t, validClaims()))
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// Same kid, different key: signature check must fail.
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims())
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(otherKey)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "Bearer "+signed)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerifierRejectsUnexpectedSigningMethod(t *testing.T) {
	t.Parallel()
	ti := newTestIssuer(t)
	v := ti.verifier(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString([]byte("hmac-secret"))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "Bearer "+signed)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestNewVerifierRequiresJWKSURL(t *testing.T) {
	t.Parallel()
	_, err := NewVerifier(context.Background(), VerifierConfig{})
	assert.ErrorIs(t, err, ErrMissingJWKSURL)
}
