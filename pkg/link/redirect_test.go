// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeRedirect(t *testing.T) {
	t.Parallel()

	allowed := []string{"http://localhost:5173", "https://app.trackdeck.example"}
	const fallback = "http://localhost:5173"

	tests := []struct {
		name      string
		candidate string
		want      string
	}{
		{
			name:      "allowed origin with path",
			candidate: "http://localhost:5173/library?tab=playlists",
			want:      "http://localhost:5173/library?tab=playlists",
		},
		{
			name:      "allowed https origin",
			candidate: "https://app.trackdeck.example/settings",
			want:      "https://app.trackdeck.example/settings",
		},
		{
			name:      "empty candidate",
			candidate: "",
			want:      fallback,
		},
		{
			name:      "unlisted origin",
			candidate: "https://evil.example/phish",
			want:      fallback,
		},
		{
			name:      "same host different port",
			candidate: "http://localhost:9999/",
			want:      fallback,
		},
		{
			name:      "scheme mismatch",
			candidate: "https://localhost:5173/library",
			want:      fallback,
		},
		{
			name:      "relative path",
			candidate: "/library",
			want:      fallback,
		},
		{
			name:      "javascript scheme",
			candidate: "javascript:alert(1)",
			want:      fallback,
		},
		{
			name:      "data scheme",
			candidate: "data:text/html,hi",
			want:      fallback,
		},
		{
			name:      "schemeless network path",
			candidate: "//evil.example/phish",
			want:      fallback,
		},
		{
			name:      "case-insensitive host match",
			candidate: "http://LOCALHOST:5173/library",
			want:      "http://LOCALHOST:5173/library",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SafeRedirect(tt.candidate, fallback, allowed))
		})
	}
}
