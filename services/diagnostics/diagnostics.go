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
Package diagnostics probes the demo environment end to end and produces a
structured report.

# Description

Checks are organized into three phases that run in sequence; checks inside
a phase run concurrently:

 1. infrastructure: cluster reachability, Sentry controller authentication
 2. environment: demo namespace present, demo workloads running
    (gated on the cluster check)
 3. vendor-config: demo groups, learned process rules, DLP binding,
    admission control state (gated on the auth check)

A phase whose prerequisite failed does not probe at all: its checks are
recorded as errors with status "skipped" detail naming the prerequisite,
and they still count toward the summary. Each check recovers its own
panic into an error result, so one faulty probe cannot take the report
down with it.

# Outputs

Run returns a Report whose Success flag is true only when no check ended
in error. An error return from Run itself means the report could not be
assembled at all, not that a check failed.
*/
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/SentryDeck/services/kubectl"
	"github.com/AleutianAI/SentryDeck/services/sentry"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Types
// =============================================================================

// Status is the outcome of a single check.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusPending Status = "pending"
)

// Check categories, one per phase.
const (
	CategoryInfrastructure = "infrastructure"
	CategoryEnvironment    = "environment"
	CategoryVendorConfig   = "vendor-config"
)

// Check IDs, stable across runs so dashboards can key on them.
const (
	CheckClusterConnectivity = "cluster-connectivity"
	CheckSentryAuth          = "sentry-auth"
	CheckNamespacePresent    = "namespace-present"
	CheckWorkloadsRunning    = "workloads-running"
	CheckDemoGroups          = "demo-groups"
	CheckProcessRules        = "process-rules"
	CheckDLPConfig           = "dlp-config"
	CheckAdmissionState      = "admission-state"
)

// Check is the result of one diagnostic probe.
type Check struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Detail   string `json:"detail,omitempty"`
}

// Summary aggregates check outcomes. Skipped checks count as errors.
type Summary struct {
	Total   int `json:"total"`
	OK      int `json:"ok"`
	Warning int `json:"warning"`
	Error   int `json:"error"`
}

// Report is the full diagnostic output.
type Report struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Success     bool      `json:"success"`
	Checks      []Check   `json:"checks"`
	Summary     Summary   `json:"summary"`
}

// Config scopes the probes to one demo environment.
type Config struct {
	// Namespace holding the demo workloads. Default: "demo".
	Namespace string

	// Group is the Sentry group to inspect for process rules and DLP.
	// Empty resolves the first group whose domain is the demo namespace.
	Group string
}

// Runner executes the diagnostic pipeline.
type Runner struct {
	kube   kubectl.Executor
	sentry sentry.API
	cfg    Config
}

// NewRunner creates a diagnostic runner over the given executors.
func NewRunner(kube kubectl.Executor, api sentry.API, cfg Config) *Runner {
	if cfg.Namespace == "" {
		cfg.Namespace = "demo"
	}
	return &Runner{kube: kube, sentry: api, cfg: cfg}
}

// =============================================================================
// Pipeline
// =============================================================================

type probeFunc func(ctx context.Context) (Status, string, string)

type checkSpec struct {
	id       string
	name     string
	category string
	probe    probeFunc
}

// Run executes all phases and assembles the report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("diagnostics aborted before start: %w", err)
	}

	report := &Report{
		RunID:       uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
	}

	// Phase 1: infrastructure.
	infra := r.runPhase(ctx, []checkSpec{
		{CheckClusterConnectivity, "Kubernetes cluster reachable", CategoryInfrastructure, r.probeCluster},
		{CheckSentryAuth, "Sentry controller authentication", CategoryInfrastructure, r.probeAuth},
	})
	report.Checks = append(report.Checks, infra...)

	clusterOK := infra[0].Status != StatusError
	authOK := infra[1].Status != StatusError

	// Phase 2: environment, gated on cluster reachability.
	envSpecs := []checkSpec{
		{CheckNamespacePresent, "Demo namespace present", CategoryEnvironment, r.probeNamespace},
		{CheckWorkloadsRunning, "Demo workloads running", CategoryEnvironment, r.probeWorkloads},
	}
	if clusterOK {
		report.Checks = append(report.Checks, r.runPhase(ctx, envSpecs)...)
	} else {
		report.Checks = append(report.Checks, skipPhase(envSpecs, CheckClusterConnectivity)...)
	}

	// Phase 3: vendor configuration, gated on authentication.
	if authOK {
		report.Checks = append(report.Checks, r.runVendorPhase(ctx)...)
	} else {
		report.Checks = append(report.Checks, skipPhase(vendorSpecsForSkip(), CheckSentryAuth)...)
	}

	for _, c := range report.Checks {
		report.Summary.Total++
		switch c.Status {
		case StatusOK:
			report.Summary.OK++
		case StatusWarning:
			report.Summary.Warning++
		default:
			report.Summary.Error++
		}
	}
	report.Success = report.Summary.Error == 0
	return report, nil
}

// runPhase executes the specs concurrently, preserving spec order in the
// results.
func (r *Runner) runPhase(ctx context.Context, specs []checkSpec) []Check {
	results := make([]Check, len(specs))
	g := new(errgroup.Group)
	for i, spec := range specs {
		g.Go(func() error {
			results[i] = r.safeRun(ctx, spec)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// safeRun executes one probe, converting a panic into an error result.
func (r *Runner) safeRun(ctx context.Context, spec checkSpec) (out Check) {
	out = Check{ID: spec.id, Name: spec.name, Category: spec.category, Status: StatusPending}
	defer func() {
		if rec := recover(); rec != nil {
			out.Status = StatusError
			out.Message = "check panicked"
			out.Detail = fmt.Sprint(rec)
		}
	}()
	status, msg, detail := spec.probe(ctx)
	out.Status = status
	out.Message = msg
	out.Detail = detail
	return out
}

func skipPhase(specs []checkSpec, prerequisite string) []Check {
	out := make([]Check, len(specs))
	for i, spec := range specs {
		out[i] = Check{
			ID:       spec.id,
			Name:     spec.name,
			Category: spec.category,
			Status:   StatusError,
			Message:  "skipped",
			Detail:   fmt.Sprintf("prerequisite check failed: %s", prerequisite),
		}
	}
	return out
}

func vendorSpecsForSkip() []checkSpec {
	return []checkSpec{
		{CheckDemoGroups, "Demo groups registered", CategoryVendorConfig, nil},
		{CheckProcessRules, "Process rules learned", CategoryVendorConfig, nil},
		{CheckDLPConfig, "DLP sensor bound to demo group", CategoryVendorConfig, nil},
		{CheckAdmissionState, "Admission control state readable", CategoryVendorConfig, nil},
	}
}

// =============================================================================
// Phase 1 probes
// =============================================================================

func (r *Runner) probeCluster(ctx context.Context) (Status, string, string) {
	info, err := r.kube.ClusterInfo(ctx)
	if err != nil {
		return StatusError, "cluster probe failed", err.Error()
	}
	if !info.Reachable {
		return StatusError, "cluster unreachable", info.Message
	}
	msg := fmt.Sprintf("cluster reachable (context: %s, nodes: %d)", info.Context, info.NodeCount)
	if info.InCluster {
		msg = fmt.Sprintf("cluster reachable in-cluster (nodes: %d)", info.NodeCount)
	}
	return StatusOK, msg, ""
}

func (r *Runner) probeAuth(ctx context.Context) (Status, string, string) {
	err := r.sentry.WithSession(ctx, func(token string) error { return nil })
	if err != nil {
		var apiErr *sentry.APIError
		if errors.As(err, &apiErr) {
			return StatusError, "controller rejected credentials", apiErr.Error()
		}
		return StatusError, "controller not reachable", err.Error()
	}
	return StatusOK, "authenticated with Sentry controller", ""
}

// =============================================================================
// Phase 2 probes
// =============================================================================

func (r *Runner) probeNamespace(ctx context.Context) (Status, string, string) {
	_, err := r.kube.Run(ctx, []string{"get", "namespace", r.cfg.Namespace},
		kubectl.RunOptions{Check: true})
	if err != nil {
		var exitErr *kubectl.ExitError
		if errors.As(err, &exitErr) {
			return StatusError, fmt.Sprintf("namespace %q not found", r.cfg.Namespace), exitErr.Stderr
		}
		return StatusError, "namespace probe failed", err.Error()
	}
	return StatusOK, fmt.Sprintf("namespace %q present", r.cfg.Namespace), ""
}

func (r *Runner) probeWorkloads(ctx context.Context) (Status, string, string) {
	res, err := r.kube.GetPods(ctx, r.cfg.Namespace, "jsonpath={.items[*].status.phase}")
	if err != nil {
		return StatusError, "pod listing failed", err.Error()
	}
	phases := strings.Fields(res.Stdout)
	if len(phases) == 0 {
		return StatusError, fmt.Sprintf("no pods in namespace %q", r.cfg.Namespace), ""
	}
	running := 0
	for _, p := range phases {
		if p == "Running" {
			running++
		}
	}
	if running < len(phases) {
		return StatusWarning,
			fmt.Sprintf("%d/%d pods running", running, len(phases)),
			"some workloads are not in Running phase"
	}
	return StatusOK, fmt.Sprintf("%d pods running", running), ""
}

// =============================================================================
// Phase 3 probes
// =============================================================================

// runVendorPhase resolves the demo group once inside a single controller
// session, then probes the remaining vendor checks concurrently. Checks
// that need a group are skipped when none resolved.
func (r *Runner) runVendorPhase(ctx context.Context) []Check {
	results := make([]Check, 4)
	err := r.sentry.WithSession(ctx, func(token string) error {
		groups, err := r.sentry.GetGroups(ctx, token)
		if err != nil {
			results[0] = Check{
				ID: CheckDemoGroups, Name: "Demo groups registered",
				Category: CategoryVendorConfig, Status: StatusError,
				Message: "group listing failed", Detail: err.Error(),
			}
		} else {
			results[0] = r.assessGroups(groups)
		}

		group := r.resolveGroup(groups)
		groupResolved := results[0].Status != StatusError && group != ""

		g := new(errgroup.Group)
		g.Go(func() error {
			if !groupResolved {
				results[1] = skipPhase([]checkSpec{{CheckProcessRules, "Process rules learned", CategoryVendorConfig, nil}}, CheckDemoGroups)[0]
				return nil
			}
			results[1] = r.safeRun(ctx, checkSpec{CheckProcessRules, "Process rules learned", CategoryVendorConfig,
				func(ctx context.Context) (Status, string, string) {
					return r.probeProcessRules(ctx, token, group)
				}})
			return nil
		})
		g.Go(func() error {
			if !groupResolved {
				results[2] = skipPhase([]checkSpec{{CheckDLPConfig, "DLP sensor bound to demo group", CategoryVendorConfig, nil}}, CheckDemoGroups)[0]
				return nil
			}
			results[2] = r.safeRun(ctx, checkSpec{CheckDLPConfig, "DLP sensor bound to demo group", CategoryVendorConfig,
				func(ctx context.Context) (Status, string, string) {
					return r.probeDLP(ctx, token, group)
				}})
			return nil
		})
		g.Go(func() error {
			results[3] = r.safeRun(ctx, checkSpec{CheckAdmissionState, "Admission control state readable", CategoryVendorConfig,
				func(ctx context.Context) (Status, string, string) {
					return r.probeAdmission(ctx, token)
				}})
			return nil
		})
		return g.Wait()
	})
	if err != nil {
		// Session setup failed after the auth check passed; report what we
		// have and mark unfilled slots.
		for i := range results {
			if results[i].ID == "" {
				spec := vendorSpecsForSkip()[i]
				results[i] = Check{
					ID: spec.id, Name: spec.name, Category: spec.category,
					Status: StatusError, Message: "controller session failed",
					Detail: err.Error(),
				}
			}
		}
	}
	return results
}

func (r *Runner) assessGroups(groups []sentry.Group) Check {
	check := Check{
		ID: CheckDemoGroups, Name: "Demo groups registered",
		Category: CategoryVendorConfig,
	}
	count := 0
	for _, g := range groups {
		if r.isDemoGroup(g) {
			count++
		}
	}
	if count == 0 {
		check.Status = StatusError
		check.Message = fmt.Sprintf("no groups for namespace %q", r.cfg.Namespace)
		check.Detail = "demo workloads have not registered with the controller"
		return check
	}
	check.Status = StatusOK
	check.Message = fmt.Sprintf("%d demo groups registered", count)
	return check
}

func (r *Runner) isDemoGroup(g sentry.Group) bool {
	if r.cfg.Group != "" {
		return g.Name == r.cfg.Group
	}
	return g.Domain == r.cfg.Namespace
}

func (r *Runner) resolveGroup(groups []sentry.Group) string {
	for _, g := range groups {
		if r.isDemoGroup(g) {
			return g.Name
		}
	}
	return ""
}

func (r *Runner) probeProcessRules(ctx context.Context, token, group string) (Status, string, string) {
	profile, err := r.sentry.GetProcessProfile(ctx, token, group)
	if err != nil {
		return StatusError, "process profile unreadable", err.Error()
	}
	if len(profile.ProcessList) == 0 {
		return StatusWarning, fmt.Sprintf("no process rules learned for %s", group),
			"run workloads in Discover mode to build a baseline"
	}
	return StatusOK, fmt.Sprintf("%d process rules for %s", len(profile.ProcessList), group), ""
}

func (r *Runner) probeDLP(ctx context.Context, token, group string) (Status, string, string) {
	cfg, err := r.sentry.GetGroupDLP(ctx, token, group)
	if err != nil {
		return StatusError, "DLP configuration unreadable", err.Error()
	}
	if !cfg.Status || len(cfg.Sensors) == 0 {
		return StatusWarning, fmt.Sprintf("no active DLP sensors on %s", group),
			"the DLP demo needs at least one sensor bound to the group"
	}
	return StatusOK, fmt.Sprintf("%d DLP sensors active on %s", len(cfg.Sensors), group), ""
}

func (r *Runner) probeAdmission(ctx context.Context, token string) (Status, string, string) {
	state, err := r.sentry.GetAdmissionState(ctx, token)
	if err != nil {
		return StatusError, "admission state unreadable", err.Error()
	}
	if !state.Enable {
		return StatusWarning, "admission control disabled",
			"the admission demo needs admission control enabled"
	}
	return StatusOK, fmt.Sprintf("admission control enabled (%s mode)", state.Mode), ""
}
