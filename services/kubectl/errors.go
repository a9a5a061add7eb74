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
	"fmt"
	"strings"
	"time"
)

// ValidationError is returned when an argument vector is rejected before a
// process is spawned. It always means zero side effects occurred.
type ValidationError struct {
	// Field names the rejected input ("subcommand", "namespace", "pod", ...).
	Field string

	// Value is the rejected value.
	Value string

	// Err is the underlying validation failure.
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// SpawnError is returned when the kubectl binary could not be started at
// all (missing binary, permission denied). Distinct from ExitError: the
// process never ran.
type SpawnError struct {
	Args []string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn kubectl %s: %v", strings.Join(e.Args, " "), e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TimeoutError is returned when a command exceeded its wall-clock budget and
// was killed. It is deliberately distinct from ExitError: in an enforcement
// demo a killed process is a meaningful signal, not a generic failure.
type TimeoutError struct {
	Args    []string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("kubectl %s timed out after %s", strings.Join(e.Args, " "), e.Timeout)
}

// ExitError is returned (in check mode) when the command ran to completion
// with a non-zero exit code. Stderr is carried so callers can surface the
// actual failure to the operator.
type ExitError struct {
	Args   []string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("kubectl %s exited with code %d", strings.Join(e.Args, " "), e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}
