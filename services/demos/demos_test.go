// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package demos

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/SentryDeck/services/kubectl"
	"github.com/AleutianAI/SentryDeck/services/sentry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeps(kube *kubectl.MockExecutor, api *sentry.MockAPI) Deps {
	if kube == nil {
		kube = &kubectl.MockExecutor{}
	}
	if api == nil {
		api = &sentry.MockAPI{}
	}
	return Deps{Kube: kube, Sentry: api, Namespace: "demo"}
}

func collectEmit() (func(string), *[]string) {
	var lines []string
	return func(s string) { lines = append(lines, s) }, &lines
}

func resolvedParams(t *testing.T, m Module, raw map[string]string) map[string]string {
	t.Helper()
	params, err := m.Descriptor().ResolveParams(raw)
	require.NoError(t, err)
	return params
}

func TestRegistry_ListsAllModulesSorted(t *testing.T) {
	r := NewRegistry()
	list := r.List()

	ids := make([]string, len(list))
	for i, d := range list {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"admission", "attack", "connectivity", "dlp", "security-mode"}, ids)

	m, ok := r.Get("attack")
	require.True(t, ok)
	assert.Equal(t, "attack", m.Descriptor().ID)

	_, ok = r.Get("no-such-demo")
	assert.False(t, ok)
}

func TestRegistry_DuplicateRegistrationPanics(t *testing.T) {
	r := NewRegistry()
	assert.Panics(t, func() { r.Register(&ConnectivityDemo{}) })
}

func TestConnectivity_KilledProcessIsBlockedSuccess(t *testing.T) {
	kube := &kubectl.MockExecutor{
		ExecInPodFunc: func(ctx context.Context, namespace, pod, container string, command []string, timeout time.Duration) (*kubectl.Stream, error) {
			return kubectl.NewStream([]string{
				"* Trying 142.250.74.196...",
				"command terminated with exit code 137",
			}, nil), nil
		},
	}
	m := &ConnectivityDemo{}
	emit, lines := collectEmit()

	out, err := m.Execute(context.Background(), testDeps(kube, nil),
		resolvedParams(t, m, map[string]string{"pod_name": "opensuse-test", "target_url": "https://www.google.com"}), emit)
	require.NoError(t, err)

	assert.True(t, out.Success, "a blocked run is a successful demonstration")
	assert.True(t, out.Blocked)
	assert.Contains(t, strings.Join(*lines, "\n"), "[BLOCKED]")
}

func TestConnectivity_HTTPSuccess(t *testing.T) {
	kube := &kubectl.MockExecutor{
		ExecInPodFunc: func(ctx context.Context, namespace, pod, container string, command []string, timeout time.Duration) (*kubectl.Stream, error) {
			assert.Equal(t, "demo", namespace)
			assert.Equal(t, []string{"curl", "-v", "-m", "10", "https://www.google.com"}, command)
			return kubectl.NewStream([]string{"< HTTP/1.1 200 OK", "<html>"}, nil), nil
		},
	}
	m := &ConnectivityDemo{}
	emit, lines := collectEmit()

	out, err := m.Execute(context.Background(), testDeps(kube, nil),
		resolvedParams(t, m, map[string]string{"pod_name": "opensuse-test", "target_url": "https://www.google.com"}), emit)
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.False(t, out.Blocked)
	assert.Contains(t, strings.Join(*lines, "\n"), "[OK] Connectivity test successful")
}

func TestAttack_ResolvesPodIPTarget(t *testing.T) {
	var execCommand []string
	kube := &kubectl.MockExecutor{
		RunFunc: func(ctx context.Context, args []string, opts kubectl.RunOptions) (*kubectl.Result, error) {
			assert.Equal(t, []string{"get", "pod", "web1", "-o", "jsonpath={.status.podIP}"}, args)
			return &kubectl.Result{Stdout: "10.42.0.17"}, nil
		},
		ExecInPodFunc: func(ctx context.Context, namespace, pod, container string, command []string, timeout time.Duration) (*kubectl.Stream, error) {
			execCommand = command
			return kubectl.NewStream([]string{"PING 10.42.0.17"}, nil), nil
		},
	}
	m := &AttackDemo{}
	emit, _ := collectEmit()

	out, err := m.Execute(context.Background(), testDeps(kube, nil),
		resolvedParams(t, m, map[string]string{"attack_type": "dos_ping", "pod_name": "production1", "target": "web1"}), emit)
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, []string{"ping", "-s", "40000", "-c", "5", "10.42.0.17"}, execCommand)
}

func TestAttack_FallsBackToServiceDNS(t *testing.T) {
	kube := &kubectl.MockExecutor{
		RunFunc: func(ctx context.Context, args []string, opts kubectl.RunOptions) (*kubectl.Result, error) {
			return &kubectl.Result{Stdout: ""}, nil
		},
	}
	addr := resolveTarget(context.Background(), testDeps(kube, nil), "web1")
	assert.Equal(t, "web1.demo.svc.cluster.local", addr)
}

func TestAttack_DeniedCommandIsBlockedSuccess(t *testing.T) {
	kube := &kubectl.MockExecutor{
		ExecInPodFunc: func(ctx context.Context, namespace, pod, container string, command []string, timeout time.Duration) (*kubectl.Stream, error) {
			return kubectl.NewStream([]string{"bash: zypper: Permission denied"}, nil), nil
		},
	}
	m := &AttackDemo{}
	emit, lines := collectEmit()

	out, err := m.Execute(context.Background(), testDeps(kube, nil),
		resolvedParams(t, m, map[string]string{"attack_type": "pkg_install", "pod_name": "production1", "target": "external"}), emit)
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.True(t, out.Blocked)
	assert.Contains(t, strings.Join(*lines, "\n"), "permission denied or command not found")
}

func TestAttack_Exit137StreamErrorIsBlocked(t *testing.T) {
	kube := &kubectl.MockExecutor{
		ExecInPodFunc: func(ctx context.Context, namespace, pod, container string, command []string, timeout time.Duration) (*kubectl.Stream, error) {
			return kubectl.NewStream([]string{"connecting..."},
				&kubectl.ExitError{Code: 137, Stderr: "command terminated with exit code 137"}), nil
		},
	}
	m := &AttackDemo{}
	emit, _ := collectEmit()

	out, err := m.Execute(context.Background(), testDeps(kube, nil),
		resolvedParams(t, m, map[string]string{"attack_type": "reverse_shell", "pod_name": "production1", "target": "external"}), emit)
	require.NoError(t, err, "a classified kill is not a module failure")

	assert.True(t, out.Blocked)
	assert.True(t, out.Success)
}

func TestDLP_SendsRealisticPatternInBody(t *testing.T) {
	var execCommand []string
	kube := &kubectl.MockExecutor{
		ExecInPodFunc: func(ctx context.Context, namespace, pod, container string, command []string, timeout time.Duration) (*kubectl.Stream, error) {
			execCommand = command
			return kubectl.NewStream([]string{"< HTTP/1.1 200 OK"}, nil), nil
		},
	}
	m := &DLPDemo{}
	emit, _ := collectEmit()

	out, err := m.Execute(context.Background(), testDeps(kube, nil),
		resolvedParams(t, m, map[string]string{"pod_name": "production1", "target": "web1", "data_type": "credit_card"}), emit)
	require.NoError(t, err)
	assert.True(t, out.Success)

	joined := strings.Join(execCommand, " ")
	assert.Contains(t, joined, "4532-0151-1283-0366", "test pattern must survive the repetition filter")
	assert.NotContains(t, joined, "4242-4242-4242-4242")
	assert.Contains(t, joined, "http://web1.demo.svc.cluster.local")
}

func TestSecurityMode_AppliesModeToAllDemoGroups(t *testing.T) {
	var gotMode sentry.PolicyMode
	var gotServices []string
	api := &sentry.MockAPI{
		GetGroupsFunc: func(ctx context.Context, token string) ([]sentry.Group, error) {
			return []sentry.Group{
				{Name: "nv.web1.demo", Domain: "demo", PolicyMode: sentry.ModeDiscover},
				{Name: "nv.production1.demo", Domain: "demo", PolicyMode: sentry.ModeDiscover},
				{Name: "nv.other.prod", Domain: "prod", PolicyMode: sentry.ModeProtect},
			}, nil
		},
		SetPolicyModeFunc: func(ctx context.Context, token string, mode sentry.PolicyMode, services []string) error {
			gotMode = mode
			gotServices = services
			return nil
		},
	}
	m := &SecurityModeDemo{}
	emit, _ := collectEmit()

	out, err := m.Execute(context.Background(), testDeps(nil, api),
		resolvedParams(t, m, map[string]string{"policy_mode": "Protect", "target_group": "all"}), emit)
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, sentry.ModeProtect, gotMode)
	assert.Equal(t, []string{"web1.demo", "production1.demo"}, gotServices,
		"only groups in the demo namespace are touched")
	assert.Contains(t, api.GetCalls(), "Logout", "the controller session is always released")
}

func TestSecurityMode_NoGroupsIsFailureWithoutError(t *testing.T) {
	api := &sentry.MockAPI{
		GetGroupsFunc: func(ctx context.Context, token string) ([]sentry.Group, error) {
			return nil, nil
		},
	}
	m := &SecurityModeDemo{}
	emit, lines := collectEmit()

	out, err := m.Execute(context.Background(), testDeps(nil, api),
		resolvedParams(t, m, map[string]string{"policy_mode": "Monitor", "target_group": "all"}), emit)
	require.NoError(t, err)

	assert.False(t, out.Success)
	assert.Contains(t, strings.Join(*lines, "\n"), "No workload groups found")
}

func TestAdmission_DenialIsBlockedSuccess(t *testing.T) {
	kube := &kubectl.MockExecutor{
		ApplyFileFunc: func(ctx context.Context, path, namespace string) (*kubectl.Result, error) {
			assert.Equal(t, "forbidden-namespace1", namespace)
			return nil, &kubectl.ExitError{Code: 1,
				Stderr: `Error from server: admission webhook "neuvector-validating-admission-webhook" denied the request`}
		},
	}
	m := &AdmissionDemo{}
	emit, lines := collectEmit()

	out, err := m.Execute(context.Background(), testDeps(kube, nil),
		resolvedParams(t, m, map[string]string{"action": "create", "namespace": ForbiddenNamespace, "pod_name": "test-admission-pod"}), emit)
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.True(t, out.Blocked)
	assert.Contains(t, strings.Join(*lines, "\n"), "DENIED")
}

func TestAdmission_CreateAllowed(t *testing.T) {
	kube := &kubectl.MockExecutor{
		ApplyFileFunc: func(ctx context.Context, path, namespace string) (*kubectl.Result, error) {
			return &kubectl.Result{Stdout: "pod/test-admission-pod created\n"}, nil
		},
	}
	m := &AdmissionDemo{}
	emit, lines := collectEmit()

	out, err := m.Execute(context.Background(), testDeps(kube, nil),
		resolvedParams(t, m, map[string]string{"action": "create", "namespace": "demo", "pod_name": "test-admission-pod"}), emit)
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.False(t, out.Blocked)
	assert.Contains(t, strings.Join(*lines, "\n"), "ALLOWED")
}

func TestAdmission_StatusNotFoundIsNotAFailure(t *testing.T) {
	kube := &kubectl.MockExecutor{
		RunFunc: func(ctx context.Context, args []string, opts kubectl.RunOptions) (*kubectl.Result, error) {
			return &kubectl.Result{ExitCode: 1, Stderr: `pods "test-admission-pod" not found`}, nil
		},
	}
	m := &AdmissionDemo{}
	emit, _ := collectEmit()

	out, err := m.Execute(context.Background(), testDeps(kube, nil),
		resolvedParams(t, m, map[string]string{"action": "status", "namespace": "demo", "pod_name": "test-admission-pod"}), emit)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "pod not present", out.Message)
}

func TestAdmission_RejectsHostilePodNames(t *testing.T) {
	kube := &kubectl.MockExecutor{}
	m := &AdmissionDemo{}

	cases := map[string]string{
		"flag smuggling":     "--all",
		"manifest injection": "x\n---\napiVersion: v1\nkind: Namespace\nmetadata:\n  name: injected",
		"shell metachars":    "pod;rm -rf /",
	}
	for name, pod := range cases {
		t.Run(name, func(t *testing.T) {
			for _, action := range []string{"create", "delete", "status"} {
				emit, lines := collectEmit()
				out, err := m.Execute(context.Background(), testDeps(kube, nil),
					resolvedParams(t, m, map[string]string{"action": action, "namespace": "demo", "pod_name": pod}), emit)
				require.Error(t, err)
				assert.False(t, out.Success)
				assert.Equal(t, "invalid pod name", out.Message)
				assert.Contains(t, strings.Join(*lines, "\n"), "[ERROR]")
			}
			assert.Empty(t, kube.GetCalls(), "a rejected name must never reach kubectl")
		})
	}
}

func TestResolveParams_RejectsUnknownAndInvalid(t *testing.T) {
	m := &AttackDemo{}

	_, err := m.Descriptor().ResolveParams(map[string]string{"bogus": "x"})
	assert.Error(t, err, "unknown keys never reach a module")

	_, err = m.Descriptor().ResolveParams(map[string]string{"attack_type": "fork_bomb"})
	assert.Error(t, err, "select values outside the declared options are rejected")
}
