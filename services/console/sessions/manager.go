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
Package sessions tracks live WebSocket connections and delivers frames to
them.

Every send targets exactly one session; there is no implicit fan-out. A
send to a session that has disconnected is a silent no-op: output for a
vanished browser tab has nowhere useful to go, and failing the producing
command over it would turn a UI refresh into a backend error. Broadcast
exists for the rare console-wide notice and is always explicit.

Each session carries its own write mutex because the underlying WebSocket
connection permits only one concurrent writer.
*/
package sessions

import (
	"log/slog"
	"sync"

	"github.com/AleutianAI/SentryDeck/services/console/datatypes"
	"github.com/google/uuid"
)

// Conn is the subset of a WebSocket connection the manager needs. The
// gorilla *websocket.Conn satisfies it; tests use fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Manager owns the session-id to connection map.
//
// # Thread Safety
//
// Safe for concurrent use. The registry is guarded by an RWMutex; each
// session serializes its own writes.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	conn    Conn
	writeMu sync.Mutex
}

// NewManager creates an empty session registry.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*session)}
}

// Connect registers a connection and returns its new session ID.
func (m *Manager) Connect(conn Conn) string {
	id := uuid.New().String()
	m.mu.Lock()
	m.sessions[id] = &session{conn: conn}
	m.mu.Unlock()
	slog.Info("session connected", "session_id", id)
	return id
}

// Disconnect removes a session and closes its connection. Idempotent:
// disconnecting an unknown or already-removed ID is a no-op.
func (m *Manager) Disconnect(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	_ = s.conn.Close()
	slog.Info("session disconnected", "session_id", id)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Send delivers a frame to one session. Unknown session or a failed write
// is a silent no-op (logged at debug/warn); a failed write also removes
// the session since its connection is dead.
func (m *Manager) Send(id string, frame datatypes.Frame) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		slog.Debug("dropping frame for unknown session", "session_id", id, "frame_type", frame.Type)
		return
	}

	s.writeMu.Lock()
	err := s.conn.WriteJSON(frame)
	s.writeMu.Unlock()
	if err != nil {
		slog.Warn("session write failed, disconnecting", "session_id", id, "error", err)
		m.Disconnect(id)
	}
}

// SendStatus delivers a status frame.
func (m *Manager) SendStatus(id, status, message string) {
	m.Send(id, datatypes.StatusFrame(status, message))
}

// SendOutput delivers one line of command output.
func (m *Manager) SendOutput(id, data, outputType string) {
	m.Send(id, datatypes.OutputFrame(data, outputType))
}

// SendError delivers an error frame. This is NOT terminal; a complete
// frame still follows.
func (m *Manager) SendError(id, data string) {
	m.Send(id, datatypes.ErrorFrame(data))
}

// SendComplete delivers the terminal frame for a command.
func (m *Manager) SendComplete(id string, success bool, message string, data any) {
	m.Send(id, datatypes.CompleteFrame(success, message, data))
}

// Broadcast delivers a frame to every live session. Fan-out is always
// explicit; nothing else in the manager crosses session boundaries.
func (m *Manager) Broadcast(frame datatypes.Frame) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.Send(id, frame)
	}
}
