// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the wire types shared by the console handlers,
// session manager, and clients.
package datatypes

// FrameType discriminates outbound WebSocket frames.
type FrameType string

// The four outbound frame types. Every command a client triggers produces
// exactly one status frame, zero or more output frames in production order,
// and exactly one terminal frame (complete).
const (
	FrameStatus   FrameType = "status"
	FrameOutput   FrameType = "output"
	FrameError    FrameType = "error"
	FrameComplete FrameType = "complete"
)

// Frame is one outbound WebSocket message.
type Frame struct {
	Type FrameType `json:"type"`

	// Status fields (type == "status").
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`

	// Output fields (type == "output"). OutputType distinguishes normal
	// command output from rendered progress text.
	Data       any    `json:"data,omitempty"`
	OutputType string `json:"output_type,omitempty"`

	// Success is only present on terminal frames. A pointer so that
	// "false" still serializes.
	Success *bool `json:"success,omitempty"`
}

// StatusFrame builds a status frame.
func StatusFrame(status, message string) Frame {
	return Frame{Type: FrameStatus, Status: status, Message: message}
}

// OutputFrame builds an output frame.
func OutputFrame(data, outputType string) Frame {
	return Frame{Type: FrameOutput, Data: data, OutputType: outputType}
}

// ErrorFrame builds an error frame.
func ErrorFrame(data string) Frame {
	return Frame{Type: FrameError, Data: data}
}

// CompleteFrame builds a terminal frame. Data is optional structured
// payload (e.g. a diagnostics report).
func CompleteFrame(success bool, message string, data any) Frame {
	return Frame{Type: FrameComplete, Success: &success, Message: message, Data: data}
}

// ActionRequest is one inbound WebSocket message.
type ActionRequest struct {
	// Action selects the operation: "demo", "prepare", "reset", "status",
	// or "diagnostics".
	Action string `json:"action"`

	// DemoID selects the demo module when Action == "demo".
	DemoID string `json:"demo_id,omitempty"`

	// Params are the demo parameters, validated against the module's
	// declared schema before execution.
	Params map[string]string `json:"params,omitempty"`
}
