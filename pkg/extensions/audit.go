// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"
)

// AuditEvent represents a security-relevant event for compliance logging.
//
// This struct captures the essential information needed for security audits
// and incident investigation. SentryDeck emits one event per external
// command (accepted or rejected) and one per vendor admin action.
//
// # Event Categories
//
// Events are categorized by type for filtering and alerting:
//   - Commands: "command.run", "command.rejected", "command.timeout"
//   - Vendor admin: "sentry.auth", "sentry.policy_change", "sentry.rule_delete"
//   - Sessions: "session.connect", "session.disconnect"
//
// Example:
//
//	event := AuditEvent{
//	    EventType:    "command.rejected",
//	    Timestamp:    time.Now().UTC(),
//	    UserID:       "local-user",
//	    Action:       "exec",
//	    ResourceType: "namespace",
//	    ResourceID:   "production",
//	    Outcome:      "blocked",
//	}
type AuditEvent struct {
	// EventType categorizes the event for filtering and alerting.
	// Format: "category.action" (e.g., "command.run", "sentry.auth")
	EventType string `json:"event_type"`

	// Timestamp is when the event occurred (always use UTC).
	// If zero, implementations should set it to time.Now().UTC().
	Timestamp time.Time `json:"timestamp"`

	// UserID identifies who performed the action.
	// Use "system" for automated actions, "anonymous" if unknown.
	UserID string `json:"user_id"`

	// Action describes what operation was attempted.
	// For commands this is the kubectl subcommand ("get", "exec", ...).
	Action string `json:"action"`

	// ResourceType is the category of resource involved.
	// Examples: "namespace", "pod", "group", "process_rule"
	ResourceType string `json:"resource_type,omitempty"`

	// ResourceID is the specific resource instance (optional).
	ResourceID string `json:"resource_id,omitempty"`

	// Outcome indicates the result of the action.
	// Values: "success", "failure", "blocked", "timeout", "error"
	Outcome string `json:"outcome"`

	// Metadata holds additional event-specific data, for example the full
	// argument vector or the exit code of the command.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AuditLogger records security-relevant events.
//
// Implementations must be safe for concurrent use. Log should never block
// request handling for long; buffer or drop rather than stall a command.
//
// The default NopAuditLogger discards all events. This is appropriate for
// local demo use where no compliance trail is required.
type AuditLogger interface {
	// Log records a single audit event. A zero Timestamp is replaced with
	// the current UTC time by the implementation.
	Log(ctx context.Context, event AuditEvent) error

	// Flush forces buffered events to durable storage.
	Flush(ctx context.Context) error
}

// NopAuditLogger is the default audit logger for open source.
// All events are discarded.
type NopAuditLogger struct{}

// Log discards the event.
func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error { return nil }

// Flush is a no-op.
func (l *NopAuditLogger) Flush(ctx context.Context) error { return nil }

// FileAuditLogger appends audit events to a JSON Lines file.
//
// One JSON object per line, suitable for shipping to a log pipeline.
// Writes are serialized with a mutex; the file is opened in append mode
// and kept open for the lifetime of the logger.
type FileAuditLogger struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileAuditLogger opens (or creates) the audit log file at path.
func NewFileAuditLogger(path string) (*FileAuditLogger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileAuditLogger{file: f, enc: json.NewEncoder(f)}, nil
}

// Log appends the event as one JSON line.
func (l *FileAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(event)
}

// Flush syncs the underlying file.
func (l *FileAuditLogger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Sync()
}

// Close flushes and closes the underlying file.
func (l *FileAuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Compile-time interface compliance checks.
var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*FileAuditLogger)(nil)
)
