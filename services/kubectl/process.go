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
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"sync"
	"time"
)

// pipeWaitDelay bounds how long Wait blocks on I/O pipes after the process
// is killed. Descendant processes that inherited the pipes can otherwise
// hold Wait open until they exit on their own.
const pipeWaitDelay = 2 * time.Second

// -----------------------------------------------------------------------------
// Process Abstraction
// -----------------------------------------------------------------------------

// ProcessRunner abstracts external process execution.
//
// # Description
//
// All os/exec calls in this package go through this interface so process
// execution can be mocked in unit tests. Argument vectors are passed
// literally; no implementation may ever interpret them through a shell.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
type ProcessRunner interface {
	// Run executes a command synchronously.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout. Cancellation kills the process.
	//   - name: The executable name or path.
	//   - args: Literal argument vector (variadic).
	//
	// # Outputs
	//
	//   - stdout: Captured standard output.
	//   - stderr: Captured standard error.
	//   - exitCode: Process exit code. Valid only when err is nil.
	//   - err: Non-nil if the process could not be spawned or the context
	//     expired. A non-zero exit code alone is NOT an error here; the
	//     caller decides what non-zero means.
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, exitCode int, err error)

	// Stream starts a command and returns a handle exposing its merged
	// stdout+stderr as a single reader.
	//
	// # Outputs
	//
	//   - ProcessHandle: Live handle to the running process.
	//   - err: Non-nil if the process could not be started.
	Stream(ctx context.Context, name string, args ...string) (ProcessHandle, error)
}

// ProcessHandle is a live handle to a streaming process.
//
// Output is the merged stdout+stderr of the process and reaches EOF when
// the process exits. Wait is idempotent and safe to call from multiple
// goroutines; it blocks until the process has exited and returns the
// underlying wait error (nil on exit code 0).
type ProcessHandle interface {
	Output() io.Reader
	Kill() error
	Wait() error
}

// -----------------------------------------------------------------------------
// OS Implementation
// -----------------------------------------------------------------------------

// OsProcessRunner implements ProcessRunner using os/exec.
//
// This is the production implementation that executes real processes.
// Use MockProcessRunner in tests instead.
type OsProcessRunner struct{}

// NewOsProcessRunner creates a ProcessRunner backed by os/exec.
func NewOsProcessRunner() *OsProcessRunner {
	return &OsProcessRunner{}
}

// Run executes a command synchronously and captures its output.
func (p *OsProcessRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = pipeWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) && ctx.Err() == nil {
			// The process ran and exited non-zero; that is a result,
			// not an infrastructure failure.
			return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), nil
		}
		return stdout.Bytes(), stderr.Bytes(), -1, runErr
	}

	return stdout.Bytes(), stderr.Bytes(), 0, nil
}

// Stream starts a command with stdout and stderr merged into one pipe.
func (p *OsProcessRunner) Stream(ctx context.Context, name string, args ...string) (ProcessHandle, error) {
	cmd := exec.Command(name, args...)
	cmd.WaitDelay = pipeWaitDelay

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, err
	}

	h := &osProcessHandle{cmd: cmd, out: pr, done: make(chan struct{})}
	go func() {
		h.waitErr = cmd.Wait()
		// Closing the write side delivers EOF to the line reader.
		pw.Close()
		close(h.done)
	}()
	return h, nil
}

// osProcessHandle is the live handle for OsProcessRunner.Stream.
type osProcessHandle struct {
	cmd     *exec.Cmd
	out     *io.PipeReader
	done    chan struct{}
	waitErr error
}

func (h *osProcessHandle) Output() io.Reader { return h.out }

func (h *osProcessHandle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

func (h *osProcessHandle) Wait() error {
	<-h.done
	return h.waitErr
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockProcessRunner is a test double for ProcessRunner.
//
// Configure the mock by setting function fields before use. If a function
// field is nil and the corresponding method is called, it panics.
type MockProcessRunner struct {
	// RunFunc is called when Run is invoked.
	RunFunc func(ctx context.Context, name string, args ...string) ([]byte, []byte, int, error)

	// StreamFunc is called when Stream is invoked.
	StreamFunc func(ctx context.Context, name string, args ...string) (ProcessHandle, error)

	// Calls records all method invocations for verification.
	Calls []ProcessCall

	mu sync.Mutex
}

// ProcessCall records a single method invocation.
type ProcessCall struct {
	Method string
	Name   string
	Args   []string
}

// Run delegates to RunFunc and records the call.
func (m *MockProcessRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	m.record("Run", name, args)
	if m.RunFunc == nil {
		panic("MockProcessRunner.RunFunc not set")
	}
	return m.RunFunc(ctx, name, args...)
}

// Stream delegates to StreamFunc and records the call.
func (m *MockProcessRunner) Stream(ctx context.Context, name string, args ...string) (ProcessHandle, error) {
	m.record("Stream", name, args)
	if m.StreamFunc == nil {
		panic("MockProcessRunner.StreamFunc not set")
	}
	return m.StreamFunc(ctx, name, args...)
}

func (m *MockProcessRunner) record(method, name string, args []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, ProcessCall{Method: method, Name: name, Args: args})
}

// GetCalls returns a copy of all recorded calls.
func (m *MockProcessRunner) GetCalls() []ProcessCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ProcessCall, len(m.Calls))
	copy(out, m.Calls)
	return out
}

// Reset clears all recorded calls.
func (m *MockProcessRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// StaticHandle is a canned ProcessHandle for tests. It serves the given
// lines as merged output and reports waitErr from Wait.
type StaticHandle struct {
	reader  io.Reader
	waitErr error
	killed  bool
	mu      sync.Mutex
}

// NewStaticHandle builds a handle that emits each line followed by a newline.
func NewStaticHandle(lines []string, waitErr error) *StaticHandle {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return &StaticHandle{reader: &buf, waitErr: waitErr}
}

func (h *StaticHandle) Output() io.Reader { return h.reader }

func (h *StaticHandle) Kill() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.killed = true
	return nil
}

// Killed reports whether Kill was called.
func (h *StaticHandle) Killed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.killed
}

func (h *StaticHandle) Wait() error { return h.waitErr }

// Compile-time interface compliance checks.
var (
	_ ProcessRunner = (*OsProcessRunner)(nil)
	_ ProcessRunner = (*MockProcessRunner)(nil)
	_ ProcessHandle = (*osProcessHandle)(nil)
	_ ProcessHandle = (*StaticHandle)(nil)
)
