// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package handlers implements the console's HTTP and WebSocket endpoints.

The WebSocket action loop is the product's core surface: a browser sends
{action, demo_id, params} requests and receives status/output/complete
frames in return. The REST surface serves the demo catalog, configuration,
cluster information, the diagnostic pipeline, and the Sentry admin
operations.
*/
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/SentryDeck/pkg/extensions"
	"github.com/AleutianAI/SentryDeck/services/console/config"
	"github.com/AleutianAI/SentryDeck/services/console/observability"
	"github.com/AleutianAI/SentryDeck/services/console/sessions"
	"github.com/AleutianAI/SentryDeck/services/demos"
	"github.com/AleutianAI/SentryDeck/services/diagnostics"
	"github.com/AleutianAI/SentryDeck/services/kubectl"
	"github.com/AleutianAI/SentryDeck/services/lifecycle"
	"github.com/AleutianAI/SentryDeck/services/sentry"
)

// Handler carries the wired services for all endpoints.
type Handler struct {
	Sessions    *sessions.Manager
	Registry    *demos.Registry
	Lifecycle   *lifecycle.Manager
	Diagnostics *diagnostics.Runner
	Kube        kubectl.Executor
	Sentry      sentry.API
	Store       *config.Store
	Metrics     *observability.ConsoleMetrics

	// Auth gates the Sentry admin surface. Nil falls back to the open
	// source NopAuthProvider, which accepts every request.
	Auth extensions.AuthProvider

	// Namespace is the demo namespace, handed to demo executions.
	Namespace string

	// ActionRate / ActionBurst bound inbound WebSocket actions per
	// session. Zero values get defaults (1 action/s, burst 5).
	ActionRate  rate.Limit
	ActionBurst int
}

func (h *Handler) limiter() *rate.Limiter {
	r := h.ActionRate
	if r == 0 {
		r = rate.Limit(1)
	}
	b := h.ActionBurst
	if b == 0 {
		b = 5
	}
	return rate.NewLimiter(r, b)
}

// AuthInfoKey is the gin context key under which RequireAuth stores the
// resolved identity.
const AuthInfoKey = "auth_info"

// RequireAuth validates the bearer token from the Authorization header
// against the configured AuthProvider before the request proceeds. The
// resolved identity is stored on the gin context under AuthInfoKey.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := h.Auth
		if provider == nil {
			provider = &extensions.NopAuthProvider{}
		}
		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer"))
		info, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(AuthInfoKey, info)
		c.Next()
	}
}

func (h *Handler) deps() demos.Deps {
	return demos.Deps{Kube: h.Kube, Sentry: h.Sentry, Namespace: h.Namespace}
}

func (h *Handler) recordFrameMetrics(frameType string) {
	if h.Metrics != nil {
		h.Metrics.RecordFrame(frameType)
	}
}
