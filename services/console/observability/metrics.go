// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the console service.
//
// # Description
//
// This package implements Prometheus metrics for monitoring command
// execution and demo activity. Metrics include:
//   - Command counters and durations (by subcommand, outcome)
//   - Demo run counters (by demo, outcome)
//   - Frame counters (by type) and an active session gauge
//   - Diagnostic check counters (by category, status)
//
// # Integration
//
// Metrics are exposed via /metrics endpoint. Use with Prometheus + Grafana
// for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "sentrydeck"

// Subsystem for console metrics
const consoleSubsystem = "console"

// ConsoleMetrics holds all Prometheus metrics for the console service.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring command
// execution, demo runs, and WebSocket session activity. Initialize once at
// startup via InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type ConsoleMetrics struct {
	// CommandsTotal counts executed commands by subcommand and outcome.
	// Labels: subcommand (get, apply, exec, ...), outcome (success, exit_error, timeout, validation, spawn_error)
	CommandsTotal *prometheus.CounterVec

	// CommandDurationSeconds measures wall-clock command duration.
	// Labels: subcommand
	CommandDurationSeconds *prometheus.HistogramVec

	// DemoRunsTotal counts demo executions by demo ID and outcome.
	// Labels: demo (connectivity, attack_simulation, ...), outcome (success, blocked, failure)
	DemoRunsTotal *prometheus.CounterVec

	// FramesTotal counts WebSocket frames delivered by type.
	// Labels: frame_type (status, output, error, complete)
	FramesTotal *prometheus.CounterVec

	// ActiveSessions tracks currently connected WebSocket sessions.
	ActiveSessions prometheus.Gauge

	// DiagnosticChecksTotal counts diagnostic check results.
	// Labels: category (infrastructure, environment, vendor-config), status (ok, warning, error)
	DiagnosticChecksTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of ConsoleMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *ConsoleMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once
// at application startup, after Prometheus registry is available.
//
// # Outputs
//
//   - *ConsoleMetrics: The initialized metrics instance.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
//
// # Assumptions
//
//   - Prometheus default registry is available.
func InitMetrics() *ConsoleMetrics {
	DefaultMetrics = &ConsoleMetrics{
		CommandsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: consoleSubsystem,
				Name:      "commands_total",
				Help:      "Total kubectl commands by subcommand and outcome",
			},
			[]string{"subcommand", "outcome"},
		),

		CommandDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: consoleSubsystem,
				Name:      "command_duration_seconds",
				Help:      "Wall-clock duration of kubectl commands in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"subcommand"},
		),

		DemoRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: consoleSubsystem,
				Name:      "demo_runs_total",
				Help:      "Total demo executions by demo ID and outcome",
			},
			[]string{"demo", "outcome"},
		),

		FramesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: consoleSubsystem,
				Name:      "frames_total",
				Help:      "Total WebSocket frames delivered by type",
			},
			[]string{"frame_type"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: consoleSubsystem,
				Name:      "active_sessions",
				Help:      "Number of currently connected WebSocket sessions",
			},
		),

		DiagnosticChecksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: consoleSubsystem,
				Name:      "diagnostic_checks_total",
				Help:      "Total diagnostic check results by category and status",
			},
			[]string{"category", "status"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordDemoRun records a completed demo execution.
//
// # Inputs
//
//   - demoID: The demo that ran.
//   - outcome: One of "success", "blocked", "failure".
func (m *ConsoleMetrics) RecordDemoRun(demoID, outcome string) {
	m.DemoRunsTotal.WithLabelValues(demoID, outcome).Inc()
}

// RecordFrame records a delivered WebSocket frame.
func (m *ConsoleMetrics) RecordFrame(frameType string) {
	m.FramesTotal.WithLabelValues(frameType).Inc()
}

// SessionOpened increments the active session gauge.
func (m *ConsoleMetrics) SessionOpened() {
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *ConsoleMetrics) SessionClosed() {
	m.ActiveSessions.Dec()
}

// RecordDiagnosticCheck records one diagnostic check result.
func (m *ConsoleMetrics) RecordDiagnosticCheck(category, status string) {
	m.DiagnosticChecksTotal.WithLabelValues(category, status).Inc()
}

// =============================================================================
// Command Recorder
// =============================================================================

// CommandRecorder adapts ConsoleMetrics to the executor's Recorder
// interface, so the command layer stays free of Prometheus imports.
type CommandRecorder struct {
	Metrics *ConsoleMetrics
}

// CommandStarted is a no-op; duration is observed at completion.
func (r *CommandRecorder) CommandStarted(subcommand string) {}

// CommandFinished records the outcome counter and duration histogram for
// one completed command.
func (r *CommandRecorder) CommandFinished(subcommand, outcome string, seconds float64) {
	if r.Metrics == nil {
		return
	}
	r.Metrics.CommandsTotal.WithLabelValues(subcommand, outcome).Inc()
	r.Metrics.CommandDurationSeconds.WithLabelValues(subcommand).Observe(seconds)
}
