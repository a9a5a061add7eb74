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
Package lifecycle sets up, tears down, and reports on the demo platform.

Unlike the demo modules, these are operational commands: a timeout or a
non-zero exit here is a plain failure, never a "blocked" success. Each
operation streams step-numbered progress lines through an emit callback
and returns an error when the platform was left in an unusable state.
*/
package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/SentryDeck/services/kubectl"
)

// Pods and services removed by Reset. The console's own workload is never
// touched.
var (
	demoPods     = []string{"production1", "web1"}
	demoServices = []string{"web1"}
)

// Manager runs lifecycle operations against one demo namespace.
type Manager struct {
	kube         kubectl.Executor
	namespace    string
	manifestsDir string
}

// NewManager creates a lifecycle manager. manifestsDir holds the demo pod
// manifests applied by Prepare.
func NewManager(kube kubectl.Executor, namespace, manifestsDir string) *Manager {
	if namespace == "" {
		namespace = "demo"
	}
	return &Manager{kube: kube, namespace: namespace, manifestsDir: manifestsDir}
}

// Prepare creates the demo namespace, deploys the test pods, waits for
// readiness, and reports the final state.
func (m *Manager) Prepare(ctx context.Context, emit func(string)) error {
	emit("[PREPARE] Starting platform preparation...")
	emit("")

	emit(fmt.Sprintf("[STEP 1/4] Creating namespace '%s'...", m.namespace))
	res, err := m.kube.Run(ctx, []string{"create", "namespace", m.namespace}, kubectl.RunOptions{})
	if err != nil {
		emit(fmt.Sprintf("[ERROR] Failed to create namespace: %v", err))
		return fmt.Errorf("create namespace: %w", err)
	}
	switch {
	case res.ExitCode == 0:
		emit(fmt.Sprintf("[OK] Namespace '%s' created", m.namespace))
	case strings.Contains(res.Stderr, "already exists"):
		emit(fmt.Sprintf("[OK] Namespace '%s' already exists", m.namespace))
	default:
		emit(fmt.Sprintf("[WARNING] %s", strings.TrimSpace(res.Stderr)))
	}
	emit("")

	emit("[STEP 2/4] Deploying test pods...")
	manifest := filepath.Join(m.manifestsDir, "demo-pods.yaml")
	applyRes, err := m.kube.ApplyFile(ctx, manifest, m.namespace)
	if err != nil {
		emit(fmt.Sprintf("[ERROR] Failed to deploy pods: %v", err))
		return fmt.Errorf("apply manifests: %w", err)
	}
	for _, line := range outputLines(applyRes.Stdout) {
		emit(fmt.Sprintf("[OK] %s", line))
	}
	emit("")

	emit("[STEP 3/4] Waiting for pods to be ready (timeout: 120s)...")
	waitRes, err := m.kube.WaitForPods(ctx, m.namespace, "Ready", 120*time.Second)
	if err != nil {
		emit(fmt.Sprintf("[WARNING] Wait failed: %v", err))
	} else if waitRes.ExitCode != 0 {
		emit(fmt.Sprintf("[WARNING] Some pods may not be ready: %s", strings.TrimSpace(waitRes.Stderr)))
	} else {
		for _, line := range outputLines(waitRes.Stdout) {
			emit(fmt.Sprintf("[OK] %s", line))
		}
	}
	emit("")

	emit("[STEP 4/4] Final status check...")
	podsRes, err := m.kube.GetPods(ctx, m.namespace, "wide")
	if err != nil {
		emit(fmt.Sprintf("[WARNING] Could not get pod status: %v", err))
	} else {
		emit("")
		emit("Current pods:")
		for _, line := range outputLines(podsRes.Stdout) {
			emit("  " + line)
		}
	}

	emit("")
	emit("[PREPARE] Platform preparation complete!")
	emit("[INFO] You can now run demos using the test pods")
	return nil
}

// Reset removes the demo test pods and services, leaving the namespace
// and the console itself in place.
func (m *Manager) Reset(ctx context.Context, emit func(string)) error {
	emit("[RESET] Starting platform reset...")
	emit("")

	emit(fmt.Sprintf("[STEP 1/3] Checking namespace '%s'...", m.namespace))
	nsRes, err := m.kube.Run(ctx, []string{"get", "namespace", m.namespace}, kubectl.RunOptions{})
	if err != nil {
		emit(fmt.Sprintf("[ERROR] Failed to check namespace: %v", err))
		return fmt.Errorf("check namespace: %w", err)
	}
	if nsRes.ExitCode != 0 {
		emit(fmt.Sprintf("[OK] Namespace '%s' does not exist, nothing to clean", m.namespace))
		emit("")
		emit("[RESET] Reset complete (nothing to do)")
		return nil
	}
	emit(fmt.Sprintf("[OK] Namespace '%s' found", m.namespace))
	emit("")

	emit("[STEP 2/3] Checking demo resources...")
	var podsFound, servicesFound []string
	for _, pod := range demoPods {
		res, err := m.kube.Run(ctx, []string{"get", "pod", pod}, kubectl.RunOptions{Namespace: m.namespace})
		if err == nil && res.ExitCode == 0 {
			podsFound = append(podsFound, pod)
			emit(fmt.Sprintf("  [FOUND] Pod: %s", pod))
		}
	}
	for _, svc := range demoServices {
		res, err := m.kube.Run(ctx, []string{"get", "service", svc}, kubectl.RunOptions{Namespace: m.namespace})
		if err == nil && res.ExitCode == 0 {
			servicesFound = append(servicesFound, svc)
			emit(fmt.Sprintf("  [FOUND] Service: %s", svc))
		}
	}
	if len(podsFound) == 0 && len(servicesFound) == 0 {
		emit("  [INFO] No demo resources found")
		emit("")
		emit("[RESET] Reset complete (nothing to do)")
		return nil
	}
	emit("")

	emit("[STEP 3/3] Deleting demo resources...")
	var failures int
	for _, pod := range podsFound {
		res, err := m.kube.Run(ctx, []string{"delete", "pod", pod, "--wait=true"},
			kubectl.RunOptions{Namespace: m.namespace, Timeout: 60 * time.Second})
		if err != nil || res.ExitCode != 0 {
			failures++
			emit(fmt.Sprintf("  [ERROR] Failed to delete pod %s: %s", pod, deleteFailureDetail(res, err)))
			continue
		}
		emit(fmt.Sprintf("  [OK] Deleted pod: %s", pod))
	}
	for _, svc := range servicesFound {
		res, err := m.kube.Run(ctx, []string{"delete", "service", svc},
			kubectl.RunOptions{Namespace: m.namespace, Timeout: 30 * time.Second})
		if err != nil || res.ExitCode != 0 {
			failures++
			emit(fmt.Sprintf("  [ERROR] Failed to delete service %s: %s", svc, deleteFailureDetail(res, err)))
			continue
		}
		emit(fmt.Sprintf("  [OK] Deleted service: %s", svc))
	}

	emit("")
	if failures > 0 {
		emit(fmt.Sprintf("[RESET] Reset finished with %d failure(s)", failures))
		return fmt.Errorf("reset left %d resource(s) behind", failures)
	}
	emit("[RESET] Platform reset complete!")
	emit("[INFO] Run 'Prepare' to set up the demo pods again")
	return nil
}

// Status reports the namespace, pod, and cluster state.
func (m *Manager) Status(ctx context.Context, emit func(string)) error {
	emit("[STATUS] Checking platform status...")
	emit("")

	emit(fmt.Sprintf("[CHECK] Demo namespace '%s':", m.namespace))
	nsRes, err := m.kube.Run(ctx, []string{"get", "namespace", m.namespace}, kubectl.RunOptions{})
	if err != nil {
		emit(fmt.Sprintf("[ERROR] %v", err))
		return fmt.Errorf("check namespace: %w", err)
	}
	if nsRes.ExitCode != 0 {
		emit("  [MISSING] Namespace does not exist")
		emit("  [INFO] Run 'Prepare' to create the demo environment")
		return nil
	}
	emit("  [OK] Namespace exists")

	podsRes, err := m.kube.GetPods(ctx, m.namespace, "wide")
	if err == nil && strings.TrimSpace(podsRes.Stdout) != "" {
		emit("")
		emit(fmt.Sprintf("  Pods in %s:", m.namespace))
		for _, line := range outputLines(podsRes.Stdout) {
			emit("    " + line)
		}
	}
	emit("")

	emit("[CHECK] Cluster:")
	info, err := m.kube.ClusterInfo(ctx)
	if err != nil {
		emit(fmt.Sprintf("  [ERROR] %v", err))
		return fmt.Errorf("cluster info: %w", err)
	}
	if info.Reachable {
		emit(fmt.Sprintf("  [OK] Reachable (context: %s, nodes: %d)", info.Context, info.NodeCount))
	} else {
		emit(fmt.Sprintf("  [ERROR] Unreachable: %s", info.Message))
	}

	emit("")
	emit("[STATUS] Status check complete")
	return nil
}

func outputLines(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func deleteFailureDetail(res *kubectl.Result, err error) string {
	if err != nil {
		return err.Error()
	}
	return strings.TrimSpace(res.Stderr)
}
