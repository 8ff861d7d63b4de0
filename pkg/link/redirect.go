// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

package link

import (
	"net/url"
	"strings"
)

// SafeRedirect returns candidate if its origin (scheme, host, port) is on
// the allow-list, and fallback otherwise. Only absolute http(s) URLs
// qualify; anything else (relative paths, javascript:, data:, parse
// failures) falls back. This is the open-redirect guard for every
// browser-facing redirect we emit.
func SafeRedirect(candidate, fallback string, allowedOrigins []string) string {
	if candidate == "" {
		return fallback
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return fallback
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fallback
	}
	if u.Host == "" {
		return fallback
	}

	origin := u.Scheme + "://" + u.Host
	for _, allowed := range allowedOrigins {
		if strings.EqualFold(origin, strings.TrimRight(allowed, "/")) {
			return candidate
		}
	}
	return fallback
}
