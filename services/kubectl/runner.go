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
Package kubectl provides secure execution of kubectl commands.

Every argument vector is validated before a process is spawned: the
subcommand must be on a fixed allowlist and every namespace must pass both a
syntactic check and membership in the operator-configured allowlist.
Commands are always executed as literal argument vectors; nothing in this
package ever passes user input through a shell.

# Error Taxonomy

The package distinguishes four failure modes, matched with errors.As:

  - *ValidationError: input rejected, no process spawned
  - *SpawnError: the binary could not be started
  - *TimeoutError: the wall-clock budget expired and the process was killed
  - *ExitError: the command ran and exited non-zero (check mode only)

# Streaming

RunStreaming merges stdout and stderr and delivers output line by line over
a bounded channel as the process produces it. A timeout mid-stream kills the
process and appends one synthetic "[ERROR] Command timed out after Ns" line;
lines already delivered are preserved.
*/
package kubectl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/SentryDeck/pkg/extensions"
	"github.com/AleutianAI/SentryDeck/pkg/validation"
)

// DefaultTimeout is the wall-clock budget for buffered commands.
const DefaultTimeout = 120 * time.Second

// DeleteTimeout is the budget for namespace deletion, which routinely takes
// minutes while finalizers drain.
const DeleteTimeout = 300 * time.Second

// streamBuffer bounds the line channel; a slow consumer applies
// backpressure to the reading goroutine instead of growing memory.
const streamBuffer = 64

// maxLineBytes caps a single output line fed through the scanner.
const maxLineBytes = 1024 * 1024

// =============================================================================
// Types
// =============================================================================

// RunOptions controls a single command execution.
type RunOptions struct {
	// Namespace, when non-empty, is validated and injected as "-n <ns>".
	Namespace string

	// Check promotes a non-zero exit code to an *ExitError.
	Check bool

	// Timeout overrides the runner default for this call.
	Timeout time.Duration
}

// Result is the outcome of a buffered command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Stream delivers command output line by line.
//
// Lines returns the bounded output channel; it is closed when the process
// exits or has been killed. Err reports the terminal disposition and must
// only be read after the Lines channel has closed.
type Stream struct {
	lines    chan string
	err      error
	timedOut atomic.Bool
}

// Lines returns the channel of merged stdout+stderr lines, in production
// order.
func (s *Stream) Lines() <-chan string { return s.lines }

// Err returns the terminal error of the stream: nil, *TimeoutError, or
// *ExitError. Only valid after Lines has been closed.
func (s *Stream) Err() error { return s.err }

// NamespaceSource supplies the current namespace allowlist. Implementations
// may change the set at runtime (config hot reload).
type NamespaceSource interface {
	Allowed() map[string]struct{}
}

// StaticNamespaces is a fixed NamespaceSource.
type StaticNamespaces []string

// Allowed returns the namespaces as a set.
func (n StaticNamespaces) Allowed() map[string]struct{} {
	out := make(map[string]struct{}, len(n))
	for _, ns := range n {
		out[ns] = struct{}{}
	}
	return out
}

// Recorder receives command lifecycle callbacks for metrics. A nil Recorder
// on the runner disables recording.
type Recorder interface {
	CommandStarted(subcommand string)
	CommandFinished(subcommand, outcome string, seconds float64)
}

// =============================================================================
// Executor Interface
// =============================================================================

// Executor is the contract for running kubectl commands.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; each call is
// independent.
type Executor interface {
	// Run executes a command and buffers its output.
	Run(ctx context.Context, args []string, opts RunOptions) (*Result, error)

	// RunStreaming executes a command and streams merged output lines.
	RunStreaming(ctx context.Context, args []string, opts RunOptions) (*Stream, error)

	// ExecInPod runs a command inside a pod container, streaming output.
	ExecInPod(ctx context.Context, namespace, pod, container string, command []string, timeout time.Duration) (*Stream, error)

	// ApplyFile applies a manifest file to a namespace.
	ApplyFile(ctx context.Context, path, namespace string) (*Result, error)

	// DeleteNamespace deletes a namespace, optionally waiting for teardown.
	DeleteNamespace(ctx context.Context, namespace string, wait bool) (*Stream, error)

	// WaitForPods blocks until all pods in a namespace reach a condition.
	WaitForPods(ctx context.Context, namespace, condition string, timeout time.Duration) (*Result, error)

	// GetPods lists pods in a namespace with the given output format.
	GetPods(ctx context.Context, namespace, output string) (*Result, error)

	// ClusterInfo probes cluster context, reachability, and node count.
	ClusterInfo(ctx context.Context) (*ClusterInfo, error)
}

// =============================================================================
// Runner
// =============================================================================

// Config configures a Runner.
type Config struct {
	// Binary is the executable to run. Default: "kubectl".
	Binary string

	// Kubeconfig, when set, is injected as "--kubeconfig <path>".
	Kubeconfig string

	// Timeout is the default wall-clock budget. Default: DefaultTimeout.
	Timeout time.Duration

	// Namespaces supplies the namespace allowlist. Required for any
	// namespaced operation.
	Namespaces NamespaceSource

	// Subcommands overrides the built-in subcommand allowlist. Leave nil
	// for production use; only tests and embedders should set this.
	Subcommands []string

	// Audit receives one event per accepted or rejected command.
	// Default: extensions.NopAuditLogger.
	Audit extensions.AuditLogger

	// Recorder receives metrics callbacks. May be nil.
	Recorder Recorder
}

// Runner is the production Executor backed by a ProcessRunner.
type Runner struct {
	binary      string
	kubeconfig  string
	timeout     time.Duration
	namespaces  NamespaceSource
	subcommands map[string]struct{}
	audit       extensions.AuditLogger
	recorder    Recorder
	proc        ProcessRunner

	// inClusterTokenPath is overridable in tests.
	inClusterTokenPath string
}

// NewRunner creates a Runner with the given configuration.
//
// # Description
//
// Applies defaults for missing values and wires the process abstraction.
// Pass a MockProcessRunner as proc in tests; pass nil to use the real
// os/exec implementation.
func NewRunner(cfg Config, proc ProcessRunner) *Runner {
	r := &Runner{
		binary:             cfg.Binary,
		kubeconfig:         cfg.Kubeconfig,
		timeout:            cfg.Timeout,
		namespaces:         cfg.Namespaces,
		audit:              cfg.Audit,
		recorder:           cfg.Recorder,
		proc:               proc,
		inClusterTokenPath: inClusterTokenPath,
	}
	if r.binary == "" {
		r.binary = "kubectl"
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.namespaces == nil {
		r.namespaces = StaticNamespaces(nil)
	}
	if r.audit == nil {
		r.audit = &extensions.NopAuditLogger{}
	}
	if r.proc == nil {
		r.proc = NewOsProcessRunner()
	}
	if len(cfg.Subcommands) > 0 {
		r.subcommands = make(map[string]struct{}, len(cfg.Subcommands))
		for _, s := range cfg.Subcommands {
			r.subcommands[s] = struct{}{}
		}
	}
	return r
}

// Run executes a command and buffers its output.
//
// # Description
//
// Validates the subcommand and namespace, spawns the process with a
// wall-clock timeout, and returns the buffered result. With opts.Check set,
// a non-zero exit code becomes an *ExitError carrying stderr.
//
// # Outputs
//
//   - *Result: Stdout, stderr, and exit code. Nil when err is non-nil.
//   - error: *ValidationError, *SpawnError, *TimeoutError, *ExitError, or
//     a wrapped context.Canceled when the caller's context is canceled.
func (r *Runner) Run(ctx context.Context, args []string, opts RunOptions) (*Result, error) {
	full, timeout, err := r.prepare(ctx, args, opts)
	if err != nil {
		return nil, err
	}

	sub := args[0]
	start := time.Now()
	if r.recorder != nil {
		r.recorder.CommandStarted(sub)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, code, runErr := r.proc.Run(runCtx, r.binary, full...)
	if runErr != nil {
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			r.finish(ctx, sub, args, "timeout", start)
			return nil, &TimeoutError{Args: args, Timeout: timeout}
		case errors.Is(runCtx.Err(), context.Canceled):
			// The caller went away (client disconnect). Not a spawn
			// failure; surface the cancellation so errors.Is works.
			r.finish(context.Background(), sub, args, "canceled", start)
			return nil, fmt.Errorf("command %q canceled: %w", sub, context.Canceled)
		default:
			r.finish(ctx, sub, args, "error", start)
			return nil, &SpawnError{Args: args, Err: runErr}
		}
	}

	res := &Result{Stdout: string(stdout), Stderr: string(stderr), ExitCode: code}
	if opts.Check && code != 0 {
		r.finish(ctx, sub, args, "failure", start)
		return nil, &ExitError{Args: args, Code: code, Stderr: res.Stderr}
	}

	r.finish(ctx, sub, args, "success", start)
	return res, nil
}

// RunStreaming executes a command and streams its merged output.
//
// # Description
//
// Spawns the process and returns immediately with a Stream. Lines appear on
// the channel as the process produces them. If the wall-clock budget
// expires mid-stream the process is killed exactly once and a single
// synthetic timeout line is delivered before the channel closes; the
// stream's Err then reports *TimeoutError. An output line past the
// maxLineBytes cap aborts the stream the same way: the process is killed,
// one synthetic error line is delivered, and Err reports the read failure.
// A non-zero exit sets Err to *ExitError without a synthetic line (stderr
// was already streamed).
//
// # Outputs
//
//   - *Stream: Live output stream. Nil when err is non-nil.
//   - error: *ValidationError or *SpawnError. Timeouts never surface here.
func (r *Runner) RunStreaming(ctx context.Context, args []string, opts RunOptions) (*Stream, error) {
	full, timeout, err := r.prepare(ctx, args, opts)
	if err != nil {
		return nil, err
	}

	sub := args[0]
	start := time.Now()
	if r.recorder != nil {
		r.recorder.CommandStarted(sub)
	}

	h, spawnErr := r.proc.Stream(ctx, r.binary, full...)
	if spawnErr != nil {
		r.finish(ctx, sub, args, "error", start)
		return nil, &SpawnError{Args: args, Err: spawnErr}
	}

	s := &Stream{lines: make(chan string, streamBuffer)}

	// Watchdog: kill on timeout or context cancellation. The kill is
	// issued at most once; the reader goroutine observes the flag.
	waitDone := make(chan struct{})
	go func() {
		h.Wait()
		close(waitDone)
	}()
	go func() {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-waitDone:
		case <-timer.C:
			select {
			case <-waitDone:
			default:
				s.timedOut.Store(true)
				_ = h.Kill()
			}
		case <-ctx.Done():
			select {
			case <-waitDone:
			default:
				s.timedOut.Store(true)
				_ = h.Kill()
			}
		}
	}()

	// Reader: pump lines until EOF, then settle the terminal state.
	go func() {
		scanner := bufio.NewScanner(h.Output())
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			s.lines <- scanner.Text()
		}
		scanErr := scanner.Err()
		if scanErr != nil {
			// The scanner gave up mid-output (typically a line past the
			// buffer cap). The producer may be blocked writing into the
			// pipe; kill it and drain the remainder so Wait can return.
			_ = h.Kill()
			go func() { _, _ = io.Copy(io.Discard, h.Output()) }()
		}
		waitErr := h.Wait()

		outcome := "success"
		if s.timedOut.Load() {
			s.lines <- fmt.Sprintf("[ERROR] Command timed out after %.0fs", timeout.Seconds())
			s.err = &TimeoutError{Args: args, Timeout: timeout}
			outcome = "timeout"
		} else if scanErr != nil {
			s.lines <- fmt.Sprintf("[ERROR] Output line exceeded %d bytes; stream aborted", maxLineBytes)
			s.err = fmt.Errorf("read command output: %w", scanErr)
			outcome = "failure"
		} else if waitErr != nil {
			code := -1
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				code = exitErr.ExitCode()
			}
			s.err = &ExitError{Args: args, Code: code}
			outcome = "failure"
		}
		r.finish(context.Background(), sub, args, outcome, start)
		close(s.lines)
	}()

	return s, nil
}

// =============================================================================
// Private Helpers
// =============================================================================

// prepare validates the argument vector and builds the full argv.
//
// Validation happens on every call, including wrapper calls that already
// validated their inputs. Re-validation is cheap and keeps each layer
// independently safe.
func (r *Runner) prepare(ctx context.Context, args []string, opts RunOptions) ([]string, time.Duration, error) {
	if len(args) == 0 {
		err := &ValidationError{Field: "subcommand", Err: fmt.Errorf("empty argument vector")}
		r.auditRejected(ctx, "", args, err)
		return nil, 0, err
	}

	if r.subcommands != nil {
		if _, ok := r.subcommands[args[0]]; !ok {
			err := &ValidationError{Field: "subcommand", Value: args[0],
				Err: fmt.Errorf("subcommand %q is not permitted", args[0])}
			r.auditRejected(ctx, args[0], args, err)
			return nil, 0, err
		}
	} else if verr := validation.ValidateSubcommand(args[0]); verr != nil {
		err := &ValidationError{Field: "subcommand", Value: args[0], Err: verr}
		r.auditRejected(ctx, args[0], args, err)
		return nil, 0, err
	}

	var full []string
	if r.kubeconfig != "" {
		full = append(full, "--kubeconfig", r.kubeconfig)
	}

	if opts.Namespace != "" {
		if verr := validation.ValidateNamespace(opts.Namespace, r.namespaces.Allowed()); verr != nil {
			err := &ValidationError{Field: "namespace", Value: opts.Namespace, Err: verr}
			r.auditRejected(ctx, args[0], args, err)
			return nil, 0, err
		}
		// "-n" goes right after the subcommand, never at the tail: for
		// exec, anything after "--" belongs to the container command.
		full = append(full, args[0], "-n", opts.Namespace)
		full = append(full, args[1:]...)
	} else {
		full = append(full, args...)
	}

	timeout := r.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	return full, timeout, nil
}

func (r *Runner) auditRejected(ctx context.Context, sub string, args []string, verr error) {
	_ = r.audit.Log(ctx, extensions.AuditEvent{
		EventType: "command.rejected",
		UserID:    "system",
		Action:    sub,
		Outcome:   "blocked",
		Metadata:  map[string]any{"args": args, "reason": verr.Error()},
	})
	if r.recorder != nil {
		r.recorder.CommandFinished(sub, "rejected", 0)
	}
}

func (r *Runner) finish(ctx context.Context, sub string, args []string, outcome string, start time.Time) {
	elapsed := time.Since(start)
	eventType := "command.run"
	if outcome == "timeout" {
		eventType = "command.timeout"
	}
	_ = r.audit.Log(ctx, extensions.AuditEvent{
		EventType: eventType,
		UserID:    "system",
		Action:    sub,
		Outcome:   outcome,
		Metadata:  map[string]any{"args": args, "duration_ms": elapsed.Milliseconds()},
	})
	if r.recorder != nil {
		r.recorder.CommandFinished(sub, outcome, elapsed.Seconds())
	}
}

// Compile-time interface compliance check.
var _ Executor = (*Runner)(nil)
