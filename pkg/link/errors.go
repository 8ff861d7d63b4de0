// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

package link

import "errors"

// Flow errors. The API layer maps these onto HTTP statuses; the callback
// handler maps them onto redirect query parameters instead, since the
// browser is mid-redirect and cannot render an API error.
var (
	// ErrNotLinked means the user has no Spotify connection. Maps to 403,
	// distinct from 401 so the frontend can offer the connect button.
	ErrNotLinked = errors.New("spotify account not linked")

	// ErrInvalidState means the callback carried a state token we have no
	// record of: forged, replayed, expired, or from another instance
	// without a shared store.
	ErrInvalidState = errors.New("invalid or expired state")

	// ErrMissingParameters means the callback lacked a code or state.
	ErrMissingParameters = errors.New("missing callback parameters")
)
