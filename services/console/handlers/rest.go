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
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
)

// HandleHealth is the liveness probe.
func (h *Handler) HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": h.Sessions.Count(),
		})
	}
}

// HandleListDemos serves the demo catalog.
func (h *Handler) HandleListDemos() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"demos": h.Registry.List()})
	}
}

// HandleGetDemo serves one demo descriptor.
func (h *Handler) HandleGetDemo() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		module, ok := h.Registry.Get(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown demo: " + id})
			return
		}
		c.JSON(http.StatusOK, module.Descriptor())
	}
}

// HandleGetConfig serves the active configuration. Only non-sensitive
// fields leave the process: namespaces, demo namespace, controller URL.
// Credentials never appear here.
func (h *Handler) HandleGetConfig() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := h.Store.Get()
		namespaces := make([]string, 0, len(cfg.Namespaces))
		namespaces = append(namespaces, cfg.Namespaces...)
		sort.Strings(namespaces)

		c.JSON(http.StatusOK, gin.H{
			"namespace":          h.Namespace,
			"allowed_namespaces": namespaces,
			"sentry_url":         cfg.Sentry.URL,
		})
	}
}

// HandleClusterInfo probes and serves cluster context/connectivity.
func (h *Handler) HandleClusterInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := h.Kube.ClusterInfo(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

// HandleDiagnostics runs the full diagnostic pipeline and serves the
// report. A report with failing checks is still HTTP 200; the Success
// flag carries the verdict.
func (h *Handler) HandleDiagnostics() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := h.Diagnostics.Run(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if h.Metrics != nil {
			for _, check := range report.Checks {
				h.Metrics.RecordDiagnosticCheck(check.Category, string(check.Status))
			}
		}
		c.JSON(http.StatusOK, report)
	}
}
