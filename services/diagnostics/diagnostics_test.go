// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diagnostics

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/SentryDeck/services/kubectl"
	"github.com/AleutianAI/SentryDeck/services/sentry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// healthyMocks returns mocks configured so every check passes.
func healthyMocks() (*kubectl.MockExecutor, *sentry.MockAPI) {
	kube := &kubectl.MockExecutor{
		ClusterInfoFunc: func(ctx context.Context) (*kubectl.ClusterInfo, error) {
			return &kubectl.ClusterInfo{Context: "kind-demo", Reachable: true, NodeCount: 3}, nil
		},
		RunFunc: func(ctx context.Context, args []string, opts kubectl.RunOptions) (*kubectl.Result, error) {
			return &kubectl.Result{Stdout: "namespace/demo"}, nil
		},
		GetPodsFunc: func(ctx context.Context, namespace, output string) (*kubectl.Result, error) {
			return &kubectl.Result{Stdout: "Running Running Running"}, nil
		},
	}
	api := &sentry.MockAPI{
		GetGroupsFunc: func(ctx context.Context, token string) ([]sentry.Group, error) {
			return []sentry.Group{{Name: "nv.backend.demo", Domain: "demo"}}, nil
		},
		GetProcessProfileFunc: func(ctx context.Context, token, group string) (*sentry.ProcessProfile, error) {
			return &sentry.ProcessProfile{Group: group, ProcessList: []sentry.ProcessRule{{Name: "nginx"}}}, nil
		},
		GetGroupDLPFunc: func(ctx context.Context, token, group string) (*sentry.DLPGroupConfig, error) {
			return &sentry.DLPGroupConfig{Name: group, Status: true, Sensors: []sentry.DLPGroupSensor{{Name: "sensor.creditcard", Action: "deny"}}}, nil
		},
		GetAdmissionStateFunc: func(ctx context.Context, token string) (*sentry.AdmissionState, error) {
			return &sentry.AdmissionState{Enable: true, Mode: "protect"}, nil
		},
	}
	return kube, api
}

func checkByID(t *testing.T, report *Report, id string) Check {
	t.Helper()
	for _, c := range report.Checks {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("check %s missing from report", id)
	return Check{}
}

func TestRun_AllHealthy(t *testing.T) {
	kube, api := healthyMocks()
	runner := NewRunner(kube, api, Config{Namespace: "demo"})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Success, "all checks pass")
	assert.Len(t, report.Checks, 8, "two infra + two env + four vendor checks")
	assert.Equal(t, 8, report.Summary.Total)
	assert.Equal(t, 8, report.Summary.OK)
	assert.Zero(t, report.Summary.Error)
	assert.NotEmpty(t, report.RunID)

	cluster := checkByID(t, report, CheckClusterConnectivity)
	assert.Equal(t, StatusOK, cluster.Status)
	assert.Contains(t, cluster.Message, "kind-demo")
}

func TestRun_ClusterDown_SkipsEnvironmentWithoutProbing(t *testing.T) {
	kube, api := healthyMocks()
	kube.ClusterInfoFunc = func(ctx context.Context) (*kubectl.ClusterInfo, error) {
		return &kubectl.ClusterInfo{Reachable: false, Message: "connection refused"}, nil
	}
	runner := NewRunner(kube, api, Config{Namespace: "demo"})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Success)

	ns := checkByID(t, report, CheckNamespacePresent)
	assert.Equal(t, StatusError, ns.Status)
	assert.Equal(t, "skipped", ns.Message)
	assert.Contains(t, ns.Detail, CheckClusterConnectivity, "skip names the failed prerequisite")

	pods := checkByID(t, report, CheckWorkloadsRunning)
	assert.Equal(t, "skipped", pods.Message)

	// The environment probes must never have run.
	for _, call := range kube.GetCalls() {
		assert.NotEqual(t, "Run", call.Method, "namespace probe must not run")
		assert.NotEqual(t, "GetPods", call.Method, "pod probe must not run")
	}

	// Skipped checks still count toward the summary.
	assert.Equal(t, 8, report.Summary.Total)
	assert.GreaterOrEqual(t, report.Summary.Error, 3, "cluster error plus two skips")
}

func TestRun_AuthFailure_SkipsVendorPhase(t *testing.T) {
	kube, api := healthyMocks()
	api.AuthenticateFunc = func(ctx context.Context) (string, error) {
		return "", &sentry.APIError{Status: 401, Message: "invalid credentials"}
	}
	runner := NewRunner(kube, api, Config{Namespace: "demo"})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Success)

	auth := checkByID(t, report, CheckSentryAuth)
	assert.Equal(t, StatusError, auth.Status)
	assert.Contains(t, auth.Detail, "401")

	for _, id := range []string{CheckDemoGroups, CheckProcessRules, CheckDLPConfig, CheckAdmissionState} {
		c := checkByID(t, report, id)
		assert.Equal(t, StatusError, c.Status, "%s skipped as error", id)
		assert.Equal(t, "skipped", c.Message)
		assert.Contains(t, c.Detail, CheckSentryAuth)
	}

	// No vendor probe may have reached the controller.
	for _, call := range api.GetCalls() {
		assert.NotContains(t, []string{"GetGroups", "GetProcessProfile", "GetGroupDLP", "GetAdmissionState"},
			call, "vendor probes must not run after auth failure")
	}
}

func TestRun_PanickingProbeBecomesErrorResult(t *testing.T) {
	kube, api := healthyMocks()
	kube.GetPodsFunc = func(ctx context.Context, namespace, output string) (*kubectl.Result, error) {
		panic("jsonpath exploded")
	}
	runner := NewRunner(kube, api, Config{Namespace: "demo"})

	report, err := runner.Run(context.Background())
	require.NoError(t, err, "a panicking check never fails the run")

	assert.Len(t, report.Checks, 8, "panic costs one result, not the report")

	pods := checkByID(t, report, CheckWorkloadsRunning)
	assert.Equal(t, StatusError, pods.Status)
	assert.Equal(t, "check panicked", pods.Message)
	assert.Contains(t, pods.Detail, "jsonpath exploded")

	ns := checkByID(t, report, CheckNamespacePresent)
	assert.Equal(t, StatusOK, ns.Status, "sibling checks in the phase are unaffected")
}

func TestRun_NoDemoGroups_SkipsGroupScopedChecks(t *testing.T) {
	kube, api := healthyMocks()
	api.GetGroupsFunc = func(ctx context.Context, token string) ([]sentry.Group, error) {
		return []sentry.Group{{Name: "nv.other.prod", Domain: "prod"}}, nil
	}
	runner := NewRunner(kube, api, Config{Namespace: "demo"})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	groups := checkByID(t, report, CheckDemoGroups)
	assert.Equal(t, StatusError, groups.Status)

	rules := checkByID(t, report, CheckProcessRules)
	assert.Equal(t, "skipped", rules.Message)
	assert.Contains(t, rules.Detail, CheckDemoGroups)

	admission := checkByID(t, report, CheckAdmissionState)
	assert.Equal(t, StatusOK, admission.Status, "group-independent check still runs")

	assert.NotContains(t, api.GetCalls(), "GetProcessProfile", "group-scoped probe must not run")
}

func TestRun_WarningsDoNotFailTheReport(t *testing.T) {
	kube, api := healthyMocks()
	kube.GetPodsFunc = func(ctx context.Context, namespace, output string) (*kubectl.Result, error) {
		return &kubectl.Result{Stdout: "Running Pending"}, nil
	}
	api.GetAdmissionStateFunc = func(ctx context.Context, token string) (*sentry.AdmissionState, error) {
		return &sentry.AdmissionState{Enable: false}, nil
	}
	runner := NewRunner(kube, api, Config{Namespace: "demo"})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Success, "warnings are not failures")
	assert.Equal(t, 2, report.Summary.Warning)
	assert.Zero(t, report.Summary.Error)

	pods := checkByID(t, report, CheckWorkloadsRunning)
	assert.Equal(t, StatusWarning, pods.Status)
	assert.Contains(t, pods.Message, "1/2 pods running")
}

func TestRun_NamespaceMissing(t *testing.T) {
	kube, api := healthyMocks()
	kube.RunFunc = func(ctx context.Context, args []string, opts kubectl.RunOptions) (*kubectl.Result, error) {
		return nil, &kubectl.ExitError{Code: 1, Stderr: `namespaces "demo" not found`}
	}
	runner := NewRunner(kube, api, Config{Namespace: "demo"})

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	ns := checkByID(t, report, CheckNamespacePresent)
	assert.Equal(t, StatusError, ns.Status)
	assert.Contains(t, ns.Message, `"demo" not found`)
}

func TestRun_CanceledContextFailsFast(t *testing.T) {
	kube, api := healthyMocks()
	runner := NewRunner(kube, api, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}
