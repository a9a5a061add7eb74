// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// subprocess calls against a Kubernetes cluster. Using these validators
// prevents injection attacks (command injection, flag smuggling) before any
// value reaches an argument vector.
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// MaxPodNameLength is the Kubernetes limit for pod names (DNS subdomain).
const MaxPodNameLength = 253

// MaxNamespaceLength is the Kubernetes limit for namespace names (DNS label).
const MaxNamespaceLength = 63

// identifierPattern matches valid Kubernetes resource identifiers.
// Allows: lowercase letters, digits, hyphens. Must start and end with an
// alphanumeric character (RFC 1123 label shape).
var identifierPattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// allowedSubcommands is the fixed set of kubectl subcommands this service
// is ever permitted to run. Anything outside this set is rejected before
// a process is spawned.
var allowedSubcommands = map[string]struct{}{
	"get":      {},
	"apply":    {},
	"delete":   {},
	"create":   {},
	"exec":     {},
	"wait":     {},
	"describe": {},
	"logs":     {},
	"config":   {},
}

// ValidateSubcommand checks a kubectl subcommand against the allowlist.
//
// # Description
//
// The subcommand is the first element of every argument vector handed to
// kubectl. Rejecting unknown subcommands here means an attacker who controls
// request parameters can never reach verbs like "proxy" or "cp".
//
// Returns an error if the subcommand is not on the allowlist.
//
// Example:
//
//	if err := validation.ValidateSubcommand(args[0]); err != nil {
//	    return nil, fmt.Errorf("refusing to run: %w", err)
//	}
func ValidateSubcommand(subcommand string) error {
	if subcommand == "" {
		return fmt.Errorf("subcommand cannot be empty")
	}
	if _, ok := allowedSubcommands[subcommand]; !ok {
		return fmt.Errorf("subcommand %q is not permitted (allowed: %s)",
			subcommand, strings.Join(AllowedSubcommands(), ", "))
	}
	return nil
}

// AllowedSubcommands returns the subcommand allowlist in sorted order.
func AllowedSubcommands() []string {
	out := make([]string, 0, len(allowedSubcommands))
	for s := range allowedSubcommands {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ValidateIdentifier validates a Kubernetes resource identifier (pod name,
// container name, resource name).
//
// # Description
//
// Identifiers must be non-empty, at most maxLen characters, and match the
// RFC 1123 label shape: lowercase alphanumerics and hyphens, starting and
// ending with an alphanumeric. Validation is pure and idempotent; callers
// may re-validate the same value at every layer without side effects.
//
// Returns an error if the identifier is invalid.
func ValidateIdentifier(value string, maxLen int) error {
	if value == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(value) > maxLen {
		return fmt.Errorf("identifier %q exceeds %d characters", value, maxLen)
	}
	if !identifierPattern.MatchString(value) {
		return fmt.Errorf("invalid identifier %q (must be lowercase alphanumerics and hyphens)", value)
	}
	return nil
}

// ValidatePodName validates a pod name (max 253 characters).
func ValidatePodName(name string) error {
	if err := ValidateIdentifier(name, MaxPodNameLength); err != nil {
		return fmt.Errorf("pod name: %w", err)
	}
	return nil
}

// ValidateNamespace validates a namespace name syntactically and against a
// configured allowlist.
//
// # Description
//
// Namespaces get two independent checks: the RFC 1123 label shape (max 63
// characters) and membership in the allowed set. The membership check is
// defense in depth: a syntactically perfect namespace that the operator has
// not explicitly allowed is still rejected.
//
// Returns an error naming the failed check.
func ValidateNamespace(namespace string, allowed map[string]struct{}) error {
	if err := ValidateIdentifier(namespace, MaxNamespaceLength); err != nil {
		return fmt.Errorf("namespace: %w", err)
	}
	if _, ok := allowed[namespace]; !ok {
		return fmt.Errorf("namespace %q is not in the configured allowlist", namespace)
	}
	return nil
}
