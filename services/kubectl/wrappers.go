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
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/SentryDeck/pkg/validation"
)

// inClusterTokenPath marks an in-cluster service account when present.
const inClusterTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

// ClusterInfo describes the cluster the runner is pointed at.
type ClusterInfo struct {
	// Context is the kubeconfig context name, or "in-cluster".
	Context string `json:"context"`

	// InCluster is true when a service account token is mounted.
	InCluster bool `json:"in_cluster"`

	// Reachable is true when the API server answered a probe.
	Reachable bool `json:"reachable"`

	// NodeCount is the number of nodes, 0 when unreachable.
	NodeCount int `json:"node_count"`

	// Message carries the probe failure detail when unreachable.
	Message string `json:"message,omitempty"`
}

// ExecInPod runs a command inside a pod container, streaming output.
//
// # Description
//
// Builds "exec <pod> [-c <container>] -- <command...>". Pod and container
// names are re-validated here even though callers usually validated them
// already; each layer stays independently safe. An empty container targets
// the pod's default container. The command vector after "--" is passed
// literally and is interpreted by the container runtime, never by a local
// shell.
func (r *Runner) ExecInPod(ctx context.Context, namespace, pod, container string, command []string, timeout time.Duration) (*Stream, error) {
	if err := validation.ValidatePodName(pod); err != nil {
		return nil, &ValidationError{Field: "pod", Value: pod, Err: err}
	}
	if container != "" {
		if err := validation.ValidateIdentifier(container, validation.MaxNamespaceLength); err != nil {
			return nil, &ValidationError{Field: "container", Value: container, Err: err}
		}
	}
	if len(command) == 0 {
		return nil, &ValidationError{Field: "command", Err: fmt.Errorf("empty command")}
	}

	args := []string{"exec", pod}
	if container != "" {
		args = append(args, "-c", container)
	}
	args = append(args, "--")
	args = append(args, command...)
	return r.RunStreaming(ctx, args, RunOptions{Namespace: namespace, Timeout: timeout})
}

// ApplyFile applies a manifest file to a namespace.
//
// # Description
//
// The path must reference an existing regular file; manifests are shipped
// with the deployment, so a missing file is an operator error surfaced as a
// *ValidationError rather than a kubectl failure.
func (r *Runner) ApplyFile(ctx context.Context, path, namespace string) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, &ValidationError{Field: "manifest", Value: path,
			Err: fmt.Errorf("manifest file not found")}
	}
	return r.Run(ctx, []string{"apply", "-f", path}, RunOptions{Namespace: namespace, Check: true})
}

// DeleteNamespace deletes a namespace, streaming progress.
//
// # Description
//
// Namespace deletion drains finalizers and routinely takes minutes, so the
// budget is DeleteTimeout rather than the runner default. The namespace
// appears as a positional argument here, which skips the "-n" injection
// path; it is therefore validated explicitly before spawning.
func (r *Runner) DeleteNamespace(ctx context.Context, namespace string, wait bool) (*Stream, error) {
	if err := validation.ValidateNamespace(namespace, r.namespaces.Allowed()); err != nil {
		return nil, &ValidationError{Field: "namespace", Value: namespace, Err: err}
	}
	args := []string{"delete", "namespace", namespace, fmt.Sprintf("--wait=%t", wait)}
	return r.RunStreaming(ctx, args, RunOptions{Timeout: DeleteTimeout})
}

// WaitForPods blocks until all pods in a namespace reach a condition.
//
// # Description
//
// Uses kubectl's own "--timeout" for the wait, with an outer wall-clock
// budget of timeout+10s so a wedged kubectl cannot hang the caller.
func (r *Runner) WaitForPods(ctx context.Context, namespace, condition string, timeout time.Duration) (*Result, error) {
	if condition == "" {
		condition = "Ready"
	}
	args := []string{
		"wait", "--for=condition=" + condition, "pods", "--all",
		fmt.Sprintf("--timeout=%.0fs", timeout.Seconds()),
	}
	return r.Run(ctx, args, RunOptions{
		Namespace: namespace,
		Check:     true,
		Timeout:   timeout + 10*time.Second,
	})
}

// GetPods lists pods in a namespace with the given output format.
func (r *Runner) GetPods(ctx context.Context, namespace, output string) (*Result, error) {
	args := []string{"get", "pods"}
	if output != "" {
		args = append(args, "-o", output)
	}
	return r.Run(ctx, args, RunOptions{Namespace: namespace, Check: true})
}

// ClusterInfo probes cluster context, reachability, and node count.
//
// # Description
//
// Three independent probes: the kubeconfig current-context (falling back to
// "in-cluster" when a service account token is mounted), a cheap API-server
// reachability check against the kube-system namespace, and a node count.
// Probe failures are reported in the result, not as errors; an unreachable
// cluster is a valid answer.
func (r *Runner) ClusterInfo(ctx context.Context) (*ClusterInfo, error) {
	info := &ClusterInfo{}

	if _, err := os.Stat(r.inClusterTokenPath); err == nil {
		info.InCluster = true
		info.Context = "in-cluster"
	}

	if res, err := r.Run(ctx, []string{"config", "current-context"}, RunOptions{}); err == nil && res.ExitCode == 0 {
		if cx := strings.TrimSpace(res.Stdout); cx != "" {
			info.Context = cx
		}
	}

	res, err := r.Run(ctx, []string{"get", "namespace", "kube-system"}, RunOptions{})
	switch {
	case err != nil:
		info.Message = err.Error()
		return info, nil
	case res.ExitCode != 0:
		info.Message = strings.TrimSpace(res.Stderr)
		return info, nil
	}
	info.Reachable = true

	if res, err := r.Run(ctx, []string{"get", "nodes", "-o", "name"}, RunOptions{}); err == nil && res.ExitCode == 0 {
		for _, line := range strings.Split(res.Stdout, "\n") {
			if strings.TrimSpace(line) != "" {
				info.NodeCount++
			}
		}
	}

	return info, nil
}
