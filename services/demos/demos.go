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
Package demos implements the security demonstration modules.

# Description

Each module declares a parameter schema (rendered as a form by the UI) and
an Execute method that streams human-readable progress lines through an
emit callback. Execute returns an Outcome, not just an error, because in
an enforcement demo a killed process is the success case: Blocked=true
with Success=true means the security layer did its job.

Modules run commands inside demo pods through the kubectl executor and
talk to the Sentry controller for policy operations. They never shell out
themselves.

# Outcome contract

  - Blocked && Success: enforcement intervened, the demonstration worked
  - Success only: the probe ran unimpeded (expected in Discover/Monitor)
  - !Success: the module itself failed (bad target, unreachable pod, ...)
*/
package demos

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/SentryDeck/services/console/datatypes"
	"github.com/AleutianAI/SentryDeck/services/kubectl"
	"github.com/AleutianAI/SentryDeck/services/sentry"
)

// Deps are the capabilities handed to every module execution.
type Deps struct {
	Kube   kubectl.Executor
	Sentry sentry.API

	// Namespace is the demo namespace all workloads live in.
	Namespace string
}

// Outcome is the terminal result of one demo run.
type Outcome struct {
	// Success reports whether the demonstration achieved its purpose.
	Success bool `json:"success"`

	// Blocked reports that the security layer intervened. A blocked run
	// is still a successful demonstration.
	Blocked bool `json:"blocked"`

	// Message is the one-line summary for the terminal frame.
	Message string `json:"message"`
}

// Module is one runnable demonstration.
type Module interface {
	// Descriptor returns the catalog entry and parameter schema.
	Descriptor() datatypes.DemoDescriptor

	// Execute runs the demo, emitting progress lines as they are
	// produced. Params have already been resolved against the schema.
	Execute(ctx context.Context, deps Deps, params map[string]string, emit func(string)) (Outcome, error)
}

// Registry holds the available demo modules.
type Registry struct {
	modules map[string]Module
}

// NewRegistry returns a registry with all built-in demos installed.
func NewRegistry() *Registry {
	r := &Registry{modules: make(map[string]Module)}
	r.Register(&ConnectivityDemo{})
	r.Register(&AttackDemo{})
	r.Register(&DLPDemo{})
	r.Register(&SecurityModeDemo{})
	r.Register(&AdmissionDemo{})
	return r
}

// Register adds a module. Panics on a duplicate or empty ID: registration
// happens at startup and a collision is a programming error.
func (r *Registry) Register(m Module) {
	id := m.Descriptor().ID
	if id == "" {
		panic("demo module with empty ID")
	}
	if _, exists := r.modules[id]; exists {
		panic(fmt.Sprintf("duplicate demo module %q", id))
	}
	r.modules[id] = m
}

// Get returns the module with the given ID.
func (r *Registry) Get(id string) (Module, bool) {
	m, ok := r.modules[id]
	return m, ok
}

// List returns all descriptors sorted by ID.
func (r *Registry) List() []datatypes.DemoDescriptor {
	out := make([]datatypes.DemoDescriptor, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// Shared helpers
// =============================================================================

// lineIsKill reports whether an output line indicates the process was
// killed by the enforcement layer.
func lineIsKill(line string) bool {
	l := strings.ToLower(line)
	return strings.Contains(l, "exit code 137") || strings.Contains(l, "command terminated")
}

// lineIsDenied reports whether an output line indicates the command was
// rejected before it could run.
func lineIsDenied(line string) bool {
	l := strings.ToLower(line)
	return strings.Contains(l, "permission denied") ||
		strings.Contains(l, "operation not permitted") ||
		strings.Contains(l, "not found") ||
		strings.Contains(l, "no such file")
}

// resolveTarget turns a target selector into an address: a pod name
// resolves to its IP via jsonpath, falling back to the service DNS name;
// "external" resolves to example.com.
func resolveTarget(ctx context.Context, deps Deps, target string) string {
	if target == "external" {
		return "example.com"
	}
	res, err := deps.Kube.Run(ctx,
		[]string{"get", "pod", target, "-o", "jsonpath={.status.podIP}"},
		kubectl.RunOptions{Namespace: deps.Namespace})
	if err == nil {
		if ip := strings.TrimSpace(res.Stdout); ip != "" {
			return ip
		}
	}
	return fmt.Sprintf("%s.%s.svc.cluster.local", target, deps.Namespace)
}

// drainExec runs argv in a pod, emits every line, and reports whether a
// kill or denial was observed. The stream's terminal error is returned for
// the caller to classify.
func drainExec(ctx context.Context, deps Deps, pod string, argv []string, timeoutSeconds int, emit func(string)) (killed, denied bool, err error) {
	stream, err := deps.Kube.ExecInPod(ctx, deps.Namespace, pod, "", argv, secondsToDuration(timeoutSeconds))
	if err != nil {
		return false, false, err
	}
	for line := range stream.Lines() {
		emit(line)
		if lineIsKill(line) {
			killed = true
		}
		if lineIsDenied(line) {
			denied = true
		}
	}
	streamErr := stream.Err()
	if streamErr != nil {
		if exitErr, ok := asExitError(streamErr); ok {
			if exitErr.Code == 137 {
				killed = true
			}
			if exitErr.Code == 126 || exitErr.Code == 127 {
				denied = true
			}
			if lineIsKill(exitErr.Stderr) {
				killed = true
			}
			// A classified non-zero exit is part of the demonstration,
			// not a module failure.
			return killed, denied, nil
		}
	}
	return killed, denied, streamErr
}

func asExitError(err error) (*kubectl.ExitError, bool) {
	var exitErr *kubectl.ExitError
	ok := errors.As(err, &exitErr)
	return exitErr, ok
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
