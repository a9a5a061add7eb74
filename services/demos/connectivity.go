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

// ConnectivityDemo runs curl inside a demo pod to test process
// interception. In Protect mode the enforcement layer kills curl; the kill
// is the demonstration.
type ConnectivityDemo struct{}

var _ Module = (*ConnectivityDemo)(nil)

func (d *ConnectivityDemo) Descriptor() datatypes.DemoDescriptor {
	return datatypes.DemoDescriptor{
		ID:          "connectivity",
		Name:        "Process Interception",
		Description: "Run curl inside a demo pod to test process profile interception. A killed process means the profile is enforcing.",
		Category:    "Security",
		Icon:        "shield",
		Parameters: []datatypes.DemoParameter{
			{
				Name: "pod_name", Label: "Source Pod", Type: "select",
				Default: "opensuse-test", Required: true,
				Options: []string{"opensuse-test", "nginx-test"},
			},
			{
				Name: "target_url", Label: "Target URL", Type: "string",
				Default: "https://www.google.com", Required: true,
			},
		},
	}
}

func (d *ConnectivityDemo) Execute(ctx context.Context, deps Deps, params map[string]string, emit func(string)) (Outcome, error) {
	pod := params["pod_name"]
	targetURL := params["target_url"]

	emit(fmt.Sprintf("[INFO] Starting connectivity test from pod '%s'", pod))
	emit(fmt.Sprintf("[INFO] Target URL: %s", targetURL))
	emit("")

	argv := []string{"curl", "-v", "-m", "10", targetURL}
	emit(fmt.Sprintf("[CMD] kubectl exec %s -n %s -- %s", pod, deps.Namespace, strings.Join(argv, " ")))
	emit("")

	httpSuccess := false
	killed := false
	wrapped := func(line string) {
		emit(line)
		if lineIsKill(line) {
			killed = true
		}
		if strings.Contains(line, "HTTP/") &&
			(strings.Contains(line, " 200") || strings.Contains(line, " 301") || strings.Contains(line, " 302")) {
			httpSuccess = true
		}
	}

	streamKilled, _, err := drainExec(ctx, deps, pod, argv, 30, wrapped)
	if err != nil {
		emit(fmt.Sprintf("[ERROR] %v", err))
		return Outcome{Success: false, Message: "connectivity test failed"}, err
	}
	killed = killed || streamKilled
	emit("")

	if killed {
		emit("[BLOCKED] Process was killed by the enforcement layer (exit code 137)")
		emit("[INFO] The process profile is blocking curl execution")
		return Outcome{Success: true, Blocked: true, Message: "curl blocked by process profile"}, nil
	}
	if httpSuccess {
		emit("[OK] Connectivity test successful")
		return Outcome{Success: true, Message: "connectivity test successful"}, nil
	}
	emit("[INFO] Connectivity test complete")
	emit("[INFO] Check the security console for network activity and violations")
	return Outcome{Success: true, Message: "connectivity test complete"}, nil
}
