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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/SentryDeck/pkg/validation"
	"github.com/AleutianAI/SentryDeck/services/console/datatypes"
	"github.com/AleutianAI/SentryDeck/services/kubectl"
)

// ForbiddenNamespace is the namespace an admission rule is expected to
// protect. It must be listed in the namespace allowlist so the demo can
// attempt the creation; admission control, not the console, does the
// blocking.
const ForbiddenNamespace = "forbidden-namespace1"

// AdmissionDemo creates a test pod in an allowed or forbidden namespace.
// A denial in the forbidden namespace is the successful demonstration.
type AdmissionDemo struct{}

var _ Module = (*AdmissionDemo)(nil)

func (d *AdmissionDemo) Descriptor() datatypes.DemoDescriptor {
	return datatypes.DemoDescriptor{
		ID:          "admission",
		Name:        "Admission Control",
		Description: "Test admission control rules by creating pods in allowed and forbidden namespaces.",
		Category:    "Admission",
		Icon:        "ban",
		Parameters: []datatypes.DemoParameter{
			{
				Name: "action", Label: "Action", Type: "select",
				Default: "create", Required: true,
				Options: []string{"create", "delete", "status"},
			},
			{
				Name: "namespace", Label: "Target Namespace", Type: "select",
				Default: "demo", Required: true,
				Options: []string{"demo", ForbiddenNamespace},
			},
			{
				Name: "pod_name", Label: "Pod Name", Type: "string",
				Default: "test-admission-pod", Required: true,
			},
		},
	}
}

func (d *AdmissionDemo) Execute(ctx context.Context, deps Deps, params map[string]string, emit func(string)) (Outcome, error) {
	action := params["action"]
	namespace := params["namespace"]
	pod := params["pod_name"]

	// The pod name ends up in a kubectl argument vector and in a staged
	// manifest; it must be a plain DNS label before either happens.
	if err := validation.ValidatePodName(pod); err != nil {
		emit(fmt.Sprintf("[ERROR] %v", err))
		return Outcome{Success: false, Message: "invalid pod name"}, err
	}

	emit("[INFO] Admission Control Test")
	emit(fmt.Sprintf("[INFO] Action: %s", action))
	emit(fmt.Sprintf("[INFO] Namespace: %s", namespace))
	emit(fmt.Sprintf("[INFO] Pod: %s", pod))
	emit("")

	switch action {
	case "create":
		return d.createPod(ctx, deps, namespace, pod, emit)
	case "delete":
		return d.deletePod(ctx, deps, namespace, pod, emit)
	case "status":
		return d.podStatus(ctx, deps, namespace, pod, emit)
	}
	emit(fmt.Sprintf("[ERROR] Unknown action: %s", action))
	return Outcome{Success: false, Message: "unknown action"}, fmt.Errorf("unknown admission action %q", action)
}

func (d *AdmissionDemo) createPod(ctx context.Context, deps Deps, namespace, pod string, emit func(string)) (Outcome, error) {
	emit(fmt.Sprintf("[CMD] Creating pod '%s' in namespace '%s'...", pod, namespace))
	emit("")

	manifest := fmt.Sprintf(`apiVersion: v1
kind: Pod
metadata:
  name: %s
  namespace: %s
  labels:
    app: admission-test
spec:
  containers:
  - name: nginx
    image: nginx:alpine
    resources:
      limits:
        memory: "64Mi"
        cpu: "100m"
`, pod, namespace)

	path := filepath.Join(os.TempDir(), fmt.Sprintf("admission-%s.yaml", pod))
	if err := os.WriteFile(path, []byte(manifest), 0o600); err != nil {
		emit(fmt.Sprintf("[ERROR] %v", err))
		return Outcome{Success: false, Message: "could not stage manifest"}, err
	}
	defer os.Remove(path)

	res, err := deps.Kube.ApplyFile(ctx, path, namespace)
	if err != nil {
		if exitErr, ok := asExitError(err); ok {
			emit(fmt.Sprintf("[ERROR] %s", strings.TrimSpace(exitErr.Stderr)))
			l := strings.ToLower(exitErr.Stderr)
			if strings.Contains(l, "admission") || strings.Contains(l, "denied") || strings.Contains(l, "blocked") {
				emit("")
				emit("[BLOCKED] Admission control DENIED this resource creation!")
				emit("[INFO] Check Security Events for the admission violation")
				return Outcome{Success: true, Blocked: true, Message: "pod creation denied by admission control"}, nil
			}
			emit("")
			emit("[ERROR] Pod creation failed (not admission-related)")
			return Outcome{Success: false, Message: "pod creation failed"}, nil
		}
		emit(fmt.Sprintf("[ERROR] %v", err))
		return Outcome{Success: false, Message: "pod creation failed"}, err
	}

	for _, line := range splitLines(res.Stdout) {
		emit(line)
	}
	emit("")
	emit(fmt.Sprintf("[OK] Pod '%s' created successfully in '%s'", pod, namespace))
	emit("[INFO] Admission control ALLOWED this resource creation")
	return Outcome{Success: true, Message: "pod created - admission allowed"}, nil
}

func (d *AdmissionDemo) deletePod(ctx context.Context, deps Deps, namespace, pod string, emit func(string)) (Outcome, error) {
	emit(fmt.Sprintf("[CMD] Deleting pod '%s' from namespace '%s'...", pod, namespace))
	emit("")

	res, err := deps.Kube.Run(ctx,
		[]string{"delete", "pod", pod, "--wait=true"},
		kubectl.RunOptions{Namespace: namespace})
	if err != nil {
		emit(fmt.Sprintf("[ERROR] %v", err))
		return Outcome{Success: false, Message: "pod deletion failed"}, err
	}
	if res.ExitCode != 0 {
		emit(fmt.Sprintf("[ERROR] %s", strings.TrimSpace(res.Stderr)))
		return Outcome{Success: false, Message: "pod deletion failed"}, nil
	}
	for _, line := range splitLines(res.Stdout) {
		emit(line)
	}
	emit("")
	emit(fmt.Sprintf("[OK] Pod '%s' deleted from '%s'", pod, namespace))
	return Outcome{Success: true, Message: "pod deleted"}, nil
}

func (d *AdmissionDemo) podStatus(ctx context.Context, deps Deps, namespace, pod string, emit func(string)) (Outcome, error) {
	emit(fmt.Sprintf("[CMD] Checking pod '%s' in namespace '%s'...", pod, namespace))
	emit("")

	res, err := deps.Kube.Run(ctx,
		[]string{"get", "pod", pod, "-o", "wide"},
		kubectl.RunOptions{Namespace: namespace})
	if err != nil {
		emit(fmt.Sprintf("[ERROR] %v", err))
		return Outcome{Success: false, Message: "status check failed"}, err
	}
	if res.ExitCode != 0 {
		if strings.Contains(strings.ToLower(res.Stderr), "not found") {
			emit(fmt.Sprintf("[INFO] Pod '%s' not found in '%s'", pod, namespace))
			return Outcome{Success: true, Message: "pod not present"}, nil
		}
		emit(fmt.Sprintf("[ERROR] %s", strings.TrimSpace(res.Stderr)))
		return Outcome{Success: false, Message: "status check failed"}, nil
	}
	for _, line := range splitLines(res.Stdout) {
		emit(line)
	}
	return Outcome{Success: true, Message: "status check complete"}, nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
