// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package kubectl

import (
	"context"
	"sync"
	"time"
)

// MockExecutor is a test double for Executor.
//
// Configure the mock by setting function fields before use. Methods with a
// nil function field return zero values rather than panicking, so callers
// that only exercise one operation need to configure only that one.
//
// # Examples
//
//	mock := &kubectl.MockExecutor{
//	    RunFunc: func(ctx context.Context, args []string, opts kubectl.RunOptions) (*kubectl.Result, error) {
//	        return &kubectl.Result{Stdout: "ok"}, nil
//	    },
//	}
type MockExecutor struct {
	RunFunc             func(ctx context.Context, args []string, opts RunOptions) (*Result, error)
	RunStreamingFunc    func(ctx context.Context, args []string, opts RunOptions) (*Stream, error)
	ExecInPodFunc       func(ctx context.Context, namespace, pod, container string, command []string, timeout time.Duration) (*Stream, error)
	ApplyFileFunc       func(ctx context.Context, path, namespace string) (*Result, error)
	DeleteNamespaceFunc func(ctx context.Context, namespace string, wait bool) (*Stream, error)
	WaitForPodsFunc     func(ctx context.Context, namespace, condition string, timeout time.Duration) (*Result, error)
	GetPodsFunc         func(ctx context.Context, namespace, output string) (*Result, error)
	ClusterInfoFunc     func(ctx context.Context) (*ClusterInfo, error)

	// Calls records all method invocations for verification.
	Calls []ExecutorCall

	mu sync.Mutex
}

// ExecutorCall records a single method invocation.
type ExecutorCall struct {
	Method    string
	Args      []string
	Namespace string
}

// NewStream builds a closed stream carrying the given lines and terminal
// error, for returning from mock function fields.
func NewStream(lines []string, err error) *Stream {
	s := &Stream{lines: make(chan string, len(lines)+1), err: err}
	for _, l := range lines {
		s.lines <- l
	}
	close(s.lines)
	return s
}

func (m *MockExecutor) record(method string, args []string, namespace string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, ExecutorCall{Method: method, Args: args, Namespace: namespace})
}

// GetCalls returns a copy of all recorded calls.
func (m *MockExecutor) GetCalls() []ExecutorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ExecutorCall, len(m.Calls))
	copy(out, m.Calls)
	return out
}

// Run delegates to RunFunc and records the call.
func (m *MockExecutor) Run(ctx context.Context, args []string, opts RunOptions) (*Result, error) {
	m.record("Run", args, opts.Namespace)
	if m.RunFunc == nil {
		return &Result{}, nil
	}
	return m.RunFunc(ctx, args, opts)
}

// RunStreaming delegates to RunStreamingFunc and records the call.
func (m *MockExecutor) RunStreaming(ctx context.Context, args []string, opts RunOptions) (*Stream, error) {
	m.record("RunStreaming", args, opts.Namespace)
	if m.RunStreamingFunc == nil {
		return NewStream(nil, nil), nil
	}
	return m.RunStreamingFunc(ctx, args, opts)
}

// ExecInPod delegates to ExecInPodFunc and records the call.
func (m *MockExecutor) ExecInPod(ctx context.Context, namespace, pod, container string, command []string, timeout time.Duration) (*Stream, error) {
	m.record("ExecInPod", append([]string{pod, container}, command...), namespace)
	if m.ExecInPodFunc == nil {
		return NewStream(nil, nil), nil
	}
	return m.ExecInPodFunc(ctx, namespace, pod, container, command, timeout)
}

// ApplyFile delegates to ApplyFileFunc and records the call.
func (m *MockExecutor) ApplyFile(ctx context.Context, path, namespace string) (*Result, error) {
	m.record("ApplyFile", []string{path}, namespace)
	if m.ApplyFileFunc == nil {
		return &Result{}, nil
	}
	return m.ApplyFileFunc(ctx, path, namespace)
}

// DeleteNamespace delegates to DeleteNamespaceFunc and records the call.
func (m *MockExecutor) DeleteNamespace(ctx context.Context, namespace string, wait bool) (*Stream, error) {
	m.record("DeleteNamespace", nil, namespace)
	if m.DeleteNamespaceFunc == nil {
		return NewStream(nil, nil), nil
	}
	return m.DeleteNamespaceFunc(ctx, namespace, wait)
}

// WaitForPods delegates to WaitForPodsFunc and records the call.
func (m *MockExecutor) WaitForPods(ctx context.Context, namespace, condition string, timeout time.Duration) (*Result, error) {
	m.record("WaitForPods", []string{condition}, namespace)
	if m.WaitForPodsFunc == nil {
		return &Result{}, nil
	}
	return m.WaitForPodsFunc(ctx, namespace, condition, timeout)
}

// GetPods delegates to GetPodsFunc and records the call.
func (m *MockExecutor) GetPods(ctx context.Context, namespace, output string) (*Result, error) {
	m.record("GetPods", []string{output}, namespace)
	if m.GetPodsFunc == nil {
		return &Result{}, nil
	}
	return m.GetPodsFunc(ctx, namespace, output)
}

// ClusterInfo delegates to ClusterInfoFunc and records the call.
func (m *MockExecutor) ClusterInfo(ctx context.Context) (*ClusterInfo, error) {
	m.record("ClusterInfo", nil, "")
	if m.ClusterInfoFunc == nil {
		return &ClusterInfo{Reachable: true, Context: "mock", NodeCount: 1}, nil
	}
	return m.ClusterInfoFunc(ctx)
}

// Compile-time interface compliance check.
var _ Executor = (*MockExecutor)(nil)
