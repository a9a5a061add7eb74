// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/SentryDeck/services/sentry"
)

// sentryError maps a controller failure onto an HTTP response. A
// controller rejection keeps its original status; anything else is a bad
// gateway since the console itself is healthy.
func sentryError(c *gin.Context, err error) {
	var apiErr *sentry.APIError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

// HandleSentryTestConnection authenticates and logs out immediately.
func (h *Handler) HandleSentryTestConnection() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.Sentry.WithSession(c.Request.Context(), func(token string) error { return nil })
		if err != nil {
			sentryError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"connected": true})
	}
}

// HandleSentryGroups lists all controller groups.
func (h *Handler) HandleSentryGroups() gin.HandlerFunc {
	return func(c *gin.Context) {
		var groups []sentry.Group
		err := h.Sentry.WithSession(c.Request.Context(), func(token string) error {
			var err error
			groups, err = h.Sentry.GetGroups(c.Request.Context(), token)
			return err
		})
		if err != nil {
			sentryError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"groups": groups})
	}
}

// HandleSentryProcessProfile serves one group's process profile.
func (h *Handler) HandleSentryProcessProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		group := c.Param("group")
		var profile *sentry.ProcessProfile
		err := h.Sentry.WithSession(c.Request.Context(), func(token string) error {
			var err error
			profile, err = h.Sentry.GetProcessProfile(c.Request.Context(), token, group)
			return err
		})
		if err != nil {
			sentryError(c, err)
			return
		}
		c.JSON(http.StatusOK, profile)
	}
}

// HandleSentryDeleteProcessRules removes learned process rules from a
// group's profile.
func (h *Handler) HandleSentryDeleteProcessRules() gin.HandlerFunc {
	return func(c *gin.Context) {
		group := c.Param("group")
		var body struct {
			Rules []sentry.ProcessRule `json:"rules"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		err := h.Sentry.WithSession(c.Request.Context(), func(token string) error {
			return h.Sentry.DeleteProcessRules(c.Request.Context(), token, group, body.Rules)
		})
		if err != nil {
			sentryError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": len(body.Rules)})
	}
}

// HandleSentryPolicyMode sets the policy mode on one or more services.
func (h *Handler) HandleSentryPolicyMode() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Mode     sentry.PolicyMode `json:"mode"`
			Services []string          `json:"services"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !sentry.ValidPolicyMode(body.Mode) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid policy mode: " + string(body.Mode)})
			return
		}
		if len(body.Services) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no services given"})
			return
		}
		err := h.Sentry.WithSession(c.Request.Context(), func(token string) error {
			return h.Sentry.SetPolicyMode(c.Request.Context(), token, body.Mode, body.Services)
		})
		if err != nil {
			sentryError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"mode": body.Mode, "services": body.Services})
	}
}

// HandleSentryDLPSensors lists the controller's DLP sensors.
func (h *Handler) HandleSentryDLPSensors() gin.HandlerFunc {
	return func(c *gin.Context) {
		var sensors []sentry.DLPSensor
		err := h.Sentry.WithSession(c.Request.Context(), func(token string) error {
			var err error
			sensors, err = h.Sentry.GetDLPSensors(c.Request.Context(), token)
			return err
		})
		if err != nil {
			sentryError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sensors": sensors})
	}
}

// HandleSentryGroupDLP serves one group's DLP binding.
func (h *Handler) HandleSentryGroupDLP() gin.HandlerFunc {
	return func(c *gin.Context) {
		group := c.Param("group")
		var cfg *sentry.DLPGroupConfig
		err := h.Sentry.WithSession(c.Request.Context(), func(token string) error {
			var err error
			cfg, err = h.Sentry.GetGroupDLP(c.Request.Context(), token, group)
			return err
		})
		if err != nil {
			sentryError(c, err)
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

// HandleSentrySetGroupDLP updates one group's DLP binding.
func (h *Handler) HandleSentrySetGroupDLP() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body sentry.DLPGroupConfig
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		body.Name = c.Param("group")
		err := h.Sentry.WithSession(c.Request.Context(), func(token string) error {
			return h.Sentry.SetGroupDLP(c.Request.Context(), token, body)
		})
		if err != nil {
			sentryError(c, err)
			return
		}
		c.JSON(http.StatusOK, body)
	}
}

// HandleSentryAdmissionState serves the admission control switch.
func (h *Handler) HandleSentryAdmissionState() gin.HandlerFunc {
	return func(c *gin.Context) {
		var state *sentry.AdmissionState
		err := h.Sentry.WithSession(c.Request.Context(), func(token string) error {
			var err error
			state, err = h.Sentry.GetAdmissionState(c.Request.Context(), token)
			return err
		})
		if err != nil {
			sentryError(c, err)
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

// HandleSentrySetAdmissionState flips the admission control switch.
func (h *Handler) HandleSentrySetAdmissionState() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body sentry.AdmissionState
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		err := h.Sentry.WithSession(c.Request.Context(), func(token string) error {
			return h.Sentry.SetAdmissionState(c.Request.Context(), token, body)
		})
		if err != nil {
			sentryError(c, err)
			return
		}
		c.JSON(http.StatusOK, body)
	}
}

// HandleSentryAdmissionRules lists admission rules.
func (h *Handler) HandleSentryAdmissionRules() gin.HandlerFunc {
	return func(c *gin.Context) {
		var rules []sentry.AdmissionRule
		err := h.Sentry.WithSession(c.Request.Context(), func(token string) error {
			var err error
			rules, err = h.Sentry.GetAdmissionRules(c.Request.Context(), token)
			return err
		})
		if err != nil {
			sentryError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rules": rules})
	}
}

// HandleSentryAddAdmissionRule creates an admission rule.
func (h *Handler) HandleSentryAddAdmissionRule() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body sentry.AdmissionRule
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var created *sentry.AdmissionRule
		err := h.Sentry.WithSession(c.Request.Context(), func(token string) error {
			var err error
			created, err = h.Sentry.AddAdmissionRule(c.Request.Context(), token, body)
			return err
		})
		if err != nil {
			sentryError(c, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	}
}

// HandleSentryDeleteAdmissionRule removes an admission rule by ID.
func (h *Handler) HandleSentryDeleteAdmissionRule() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rule id must be an integer"})
			return
		}
		err = h.Sentry.WithSession(c.Request.Context(), func(token string) error {
			return h.Sentry.DeleteAdmissionRule(c.Request.Context(), token, id)
		})
		if err != nil {
			sentryError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	}
}

// HandleSentryEvents serves recent incidents or violations.
// Query params: type=incidents|violations (default incidents), limit.
func (h *Handler) HandleSentryEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}

		eventType := c.DefaultQuery("type", "incidents")
		var events []sentry.SecurityEvent
		err := h.Sentry.WithSession(c.Request.Context(), func(token string) error {
			var err error
			switch eventType {
			case "incidents":
				events, err = h.Sentry.GetIncidents(c.Request.Context(), token, limit)
			case "violations":
				events, err = h.Sentry.GetViolations(c.Request.Context(), token, limit)
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": "type must be incidents or violations"})
				return nil
			}
			return err
		})
		if err != nil {
			sentryError(c, err)
			return
		}
		if c.Writer.Written() {
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events, "type": eventType})
	}
}
