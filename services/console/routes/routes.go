// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/SentryDeck/services/console/handlers"
)

func SetupRoutes(router *gin.Engine, h *handlers.Handler) {

	router.GET("/health", h.HandleHealth())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", h.HandleWebSocket())

	api := router.Group("/api")
	{
		api.GET("/demos", h.HandleListDemos())
		api.GET("/demos/:id", h.HandleGetDemo())
		api.GET("/config", h.HandleGetConfig())
		api.GET("/cluster-info", h.HandleClusterInfo())
		api.POST("/diagnostics", h.HandleDiagnostics())

		// Sentry controller administration routes. POST throughout:
		// every call opens and closes a controller session. The group
		// sits behind the injected AuthProvider.
		sentryAdmin := api.Group("/sentry", h.RequireAuth())
		{
			sentryAdmin.POST("/test-connection", h.HandleSentryTestConnection())
			sentryAdmin.POST("/groups", h.HandleSentryGroups())
			sentryAdmin.POST("/groups/:group/profile", h.HandleSentryProcessProfile())
			sentryAdmin.POST("/groups/:group/profile/delete", h.HandleSentryDeleteProcessRules())
			sentryAdmin.POST("/groups/:group/dlp/get", h.HandleSentryGroupDLP())
			sentryAdmin.POST("/groups/:group/dlp", h.HandleSentrySetGroupDLP())
			sentryAdmin.POST("/policy-mode", h.HandleSentryPolicyMode())
			sentryAdmin.POST("/dlp/sensors", h.HandleSentryDLPSensors())
			sentryAdmin.POST("/admission/state", h.HandleSentryAdmissionState())
			sentryAdmin.POST("/admission/state/update", h.HandleSentrySetAdmissionState())
			sentryAdmin.POST("/admission/rules/list", h.HandleSentryAdmissionRules())
			sentryAdmin.POST("/admission/rules", h.HandleSentryAddAdmissionRule())
			sentryAdmin.DELETE("/admission/rules/:id", h.HandleSentryDeleteAdmissionRule())
			sentryAdmin.POST("/events", h.HandleSentryEvents())
		}
	}
}
