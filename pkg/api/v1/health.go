// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Pinger is implemented by stores that can report backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthcheckRouter creates a router for the healthcheck endpoint. The
// store may be nil (memory backend); only backends with external
// connectivity participate in the check.
func HealthcheckRouter(pinger Pinger) http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		if pinger != nil {
			if err := pinger.Ping(req.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "store_unavailable", "store unavailable")
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}
