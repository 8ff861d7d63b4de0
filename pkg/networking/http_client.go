// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package networking provides HTTP client construction for outbound
// provider calls.
package networking

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient abstracts *http.Client for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPTimeout is the timeout for outgoing HTTP requests. It bounds every
// provider call; a timed-out token exchange is a failure, never retried
// automatically.
const HTTPTimeout = 30 * time.Second

// ValidatingTransport rejects non-HTTPS request URLs before forwarding.
// Provider endpoints carry credentials in transit, so plain HTTP is never
// acceptable outside tests.
type ValidatingTransport struct {
	Transport http.RoundTripper
}

// RoundTrip validates the request URL prior to forwarding.
func (t *ValidatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	parsed, err := url.Parse(req.URL.String())
	if err != nil {
		return nil, fmt.Errorf("the supplied URL %s is malformed", req.URL.String())
	}
	if parsed.Scheme != "https" {
		return nil, fmt.Errorf("the supplied URL %s is not HTTPS scheme", req.URL.String())
	}
	return t.Transport.RoundTrip(req)
}

// NewHTTPClient returns an HTTP client with sane timeouts for provider
// calls. When requireHTTPS is set, non-HTTPS URLs are rejected at the
// transport layer.
func NewHTTPClient(requireHTTPS bool) *http.Client {
	transport := &http.Transport{
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}

	client := &http.Client{
		Timeout:   HTTPTimeout,
		Transport: transport,
	}
	if requireHTTPS {
		client.Transport = &ValidatingTransport{Transport: transport}
	}
	return client
}
