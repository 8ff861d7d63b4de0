// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry exposes Prometheus counters for the login flow and
// token lifecycle.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Callback outcomes for the callback_total counter.
const (
	OutcomeLinked        = "linked"
	OutcomeInvalidState  = "invalid_state"
	OutcomeMissingParams = "missing_params"
	OutcomeProviderError = "provider_error"
	OutcomeExchangeError = "exchange_error"
	OutcomeProfileError  = "profile_error"
)

// Refresh results for the token_refresh_total counter.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Metrics holds the flow counters. A nil *Metrics is valid and records
// nothing, so library code never needs to check for it.
type Metrics struct {
	LoginStarted   prometheus.Counter
	Callback       *prometheus.CounterVec
	TokenRefresh   *prometheus.CounterVec
	TokenCacheHits prometheus.Counter
}

// NewMetrics creates and registers the flow counters on a registerer.
// Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackdeck_login_started_total",
			Help: "Number of provider login flows started",
		}),
		Callback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackdeck_callback_total",
			Help: "Number of provider callbacks handled, by outcome",
		}, []string{"outcome"}),
		TokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackdeck_token_refresh_total",
			Help: "Number of access token refreshes, by result",
		}, []string{"result"}),
		TokenCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackdeck_token_cache_hits_total",
			Help: "Number of access token requests served from the stored record",
		}),
	}

	reg.MustRegister(m.LoginStarted, m.Callback, m.TokenRefresh, m.TokenCacheHits)
	return m
}

// RecordLoginStarted increments the login counter.
func (m *Metrics) RecordLoginStarted() {
	if m == nil {
		return
	}
	m.LoginStarted.Inc()
}

// RecordCallback increments the callback counter for an outcome.
func (m *Metrics) RecordCallback(outcome string) {
	if m == nil {
		return
	}
	m.Callback.WithLabelValues(outcome).Inc()
}

// RecordRefresh increments the refresh counter for a result.
func (m *Metrics) RecordRefresh(result string) {
	if m == nil {
		return
	}
	m.TokenRefresh.WithLabelValues(result).Inc()
}

// RecordCacheHit increments the token cache hit counter.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.TokenCacheHits.Inc()
}

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
