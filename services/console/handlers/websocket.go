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
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/SentryDeck/services/console/datatypes"
	"github.com/AleutianAI/SentryDeck/services/demos"
	"github.com/AleutianAI/SentryDeck/services/diagnostics"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// HandleWebSocket upgrades the connection and runs the action loop.
//
// # Description
//
// Every inbound action is acknowledged with exactly one status frame
// before any validation or execution, then zero or more output frames in
// production order, and exactly one terminal complete frame. Refused
// actions (rate limit, unknown action or demo, bad parameters) follow the
// same shape: status, error, complete. A panic inside an action is
// recovered into an error + complete(false) pair; the connection stays
// open.
func (h *Handler) HandleWebSocket() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "error", err)
			return
		}

		sessionID := h.Sessions.Connect(ws)
		if h.Metrics != nil {
			h.Metrics.SessionOpened()
		}
		defer func() {
			h.Sessions.Disconnect(sessionID)
			if h.Metrics != nil {
				h.Metrics.SessionClosed()
			}
		}()

		h.Sessions.SendStatus(sessionID, "connected", sessionID)
		limiter := h.limiter()

		for {
			var req datatypes.ActionRequest
			if err := ws.ReadJSON(&req); err != nil {
				slog.Info("websocket client disconnected", "session_id", sessionID, "error", err)
				return
			}

			h.Sessions.SendStatus(sessionID, "running", actionStatusMessage(req))

			if !limiter.Allow() {
				h.Sessions.SendError(sessionID, "rate limit exceeded, slow down")
				h.Sessions.SendComplete(sessionID, false, "rate limited", nil)
				continue
			}

			h.runAction(c.Request.Context(), sessionID, req)
		}
	}
}

// runAction dispatches one inbound action. It owns the terminal-frame
// guarantee: every path, including panic, ends in exactly one complete
// frame.
func (h *Handler) runAction(ctx context.Context, sessionID string, req datatypes.ActionRequest) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("action panicked", "session_id", sessionID, "action", req.Action, "panic", rec)
			h.Sessions.SendError(sessionID, fmt.Sprintf("internal error: %v", rec))
			h.Sessions.SendComplete(sessionID, false, "internal error", nil)
		}
	}()

	emit := func(line string) {
		h.Sessions.SendOutput(sessionID, line, "stdout")
		h.recordFrameMetrics(string(datatypes.FrameOutput))
	}

	switch req.Action {
	case "demo":
		h.runDemo(ctx, sessionID, req, emit)
	case "prepare":
		h.finishOperational(sessionID, "platform prepared", h.Lifecycle.Prepare(ctx, emit))
	case "reset":
		h.finishOperational(sessionID, "platform reset", h.Lifecycle.Reset(ctx, emit))
	case "status":
		h.finishOperational(sessionID, "status check complete", h.Lifecycle.Status(ctx, emit))
	case "diagnostics":
		h.runDiagnostics(ctx, sessionID, emit)
	default:
		h.Sessions.SendError(sessionID, fmt.Sprintf("unknown action %q", req.Action))
		h.Sessions.SendComplete(sessionID, false, "unknown action", nil)
	}
}

func (h *Handler) runDemo(ctx context.Context, sessionID string, req datatypes.ActionRequest, emit func(string)) {
	module, ok := h.Registry.Get(req.DemoID)
	if !ok {
		h.Sessions.SendError(sessionID, fmt.Sprintf("unknown demo %q", req.DemoID))
		h.Sessions.SendComplete(sessionID, false, "unknown demo", nil)
		return
	}

	desc := module.Descriptor()
	params, err := desc.ResolveParams(req.Params)
	if err != nil {
		h.Sessions.SendError(sessionID, err.Error())
		h.Sessions.SendComplete(sessionID, false, "invalid parameters", nil)
		return
	}

	outcome, err := module.Execute(ctx, h.deps(), params, emit)
	if h.Metrics != nil {
		h.Metrics.RecordDemoRun(desc.ID, demoOutcomeLabel(outcome, err))
	}
	if err != nil {
		h.Sessions.SendError(sessionID, err.Error())
		h.Sessions.SendComplete(sessionID, false, outcome.Message, nil)
		return
	}
	h.Sessions.SendComplete(sessionID, outcome.Success, outcome.Message,
		map[string]any{"blocked": outcome.Blocked})
}

func (h *Handler) runDiagnostics(ctx context.Context, sessionID string, emit func(string)) {
	report, err := h.Diagnostics.Run(ctx)
	if err != nil {
		h.Sessions.SendError(sessionID, err.Error())
		h.Sessions.SendComplete(sessionID, false, "diagnostics failed", nil)
		return
	}
	for _, check := range report.Checks {
		emit(renderCheck(check))
		if h.Metrics != nil {
			h.Metrics.RecordDiagnosticCheck(check.Category, string(check.Status))
		}
	}
	msg := fmt.Sprintf("%d/%d checks passed", report.Summary.OK, report.Summary.Total)
	h.Sessions.SendComplete(sessionID, report.Success, msg, report)
}

func (h *Handler) finishOperational(sessionID, successMessage string, err error) {
	if err != nil {
		h.Sessions.SendError(sessionID, err.Error())
		h.Sessions.SendComplete(sessionID, false, "operation failed", nil)
		return
	}
	h.Sessions.SendComplete(sessionID, true, successMessage, nil)
}

// actionStatusMessage is the acknowledgment text for the status frame that
// opens every action, known or not.
func actionStatusMessage(req datatypes.ActionRequest) string {
	switch req.Action {
	case "demo":
		return fmt.Sprintf("Executing demo: %s", req.DemoID)
	case "prepare":
		return "Preparing demo platform"
	case "reset":
		return "Resetting demo platform"
	case "status":
		return "Checking platform status"
	case "diagnostics":
		return "Running diagnostics"
	}
	return fmt.Sprintf("Processing action: %s", req.Action)
}

func demoOutcomeLabel(outcome demos.Outcome, err error) string {
	switch {
	case err != nil || !outcome.Success:
		return "failure"
	case outcome.Blocked:
		return "blocked"
	default:
		return "success"
	}
}

func renderCheck(c diagnostics.Check) string {
	tag := map[diagnostics.Status]string{
		diagnostics.StatusOK:      "[OK]",
		diagnostics.StatusWarning: "[WARN]",
		diagnostics.StatusError:   "[ERROR]",
	}[c.Status]
	if tag == "" {
		tag = "[?]"
	}
	line := fmt.Sprintf("%s %s: %s", tag, c.Name, c.Message)
	if c.Detail != "" {
		line += fmt.Sprintf(" (%s)", c.Detail)
	}
	return line
}
