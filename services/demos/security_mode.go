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
	"github.com/AleutianAI/SentryDeck/services/sentry"
)

// SecurityModeDemo switches the policy mode of demo workload groups.
// Controller credentials are held by the injected API client; they are
// never taken from demo parameters.
type SecurityModeDemo struct{}

var _ Module = (*SecurityModeDemo)(nil)

func (d *SecurityModeDemo) Descriptor() datatypes.DemoDescriptor {
	return datatypes.DemoDescriptor{
		ID:          "security-mode",
		Name:        "Security Policy Mode",
		Description: "Configure policy modes (Discover/Monitor/Protect) for demo workload groups to demonstrate enforcement levels.",
		Category:    "Security",
		Icon:        "shield",
		Parameters: []datatypes.DemoParameter{
			{
				Name: "policy_mode", Label: "Policy Mode", Type: "select",
				Default: "Monitor", Required: true,
				Options: []string{"Discover", "Monitor", "Protect"},
			},
			{
				Name: "target_group", Label: "Target Group", Type: "string",
				Default: "all", Required: true,
			},
		},
	}
}

func (d *SecurityModeDemo) Execute(ctx context.Context, deps Deps, params map[string]string, emit func(string)) (Outcome, error) {
	mode := sentry.PolicyMode(params["policy_mode"])
	targetGroup := params["target_group"]

	if !sentry.ValidPolicyMode(mode) {
		emit(fmt.Sprintf("[ERROR] Invalid policy mode: %s", mode))
		return Outcome{Success: false, Message: "invalid policy mode"}, fmt.Errorf("invalid policy mode %q", mode)
	}

	emit("[INFO] Connecting to Sentry controller...")
	emit("")

	var outcome Outcome
	err := deps.Sentry.WithSession(ctx, func(token string) error {
		emit("[OK] Authentication successful")
		emit("")

		emit("[STEP 1] Fetching current policy modes...")
		groups, err := deps.Sentry.GetGroups(ctx, token)
		if err != nil {
			return fmt.Errorf("fetch groups: %w", err)
		}

		var demoGroups []sentry.Group
		for _, g := range groups {
			if g.Domain == deps.Namespace {
				demoGroups = append(demoGroups, g)
			}
		}
		if len(demoGroups) == 0 {
			emit(fmt.Sprintf("[WARNING] No workload groups found in namespace '%s'", deps.Namespace))
			emit("[INFO] Run 'Prepare' first to create the demo pods")
			outcome = Outcome{Success: false, Message: "no demo groups found"}
			return nil
		}

		emit("[INFO] Current policy modes:")
		for _, g := range demoGroups {
			emit(fmt.Sprintf("  - %s: %s", shortGroupName(g.Name), g.PolicyMode))
		}
		emit("")

		emit(fmt.Sprintf("[STEP 2] Applying '%s' mode...", mode))
		emit("")

		var services []string
		if targetGroup == "all" || targetGroup == "" {
			for _, g := range demoGroups {
				services = append(services, sentry.ServiceFromGroup(g.Name))
			}
		} else {
			services = []string{sentry.ServiceFromGroup(targetGroup)}
		}

		if err := deps.Sentry.SetPolicyMode(ctx, token, mode, services); err != nil {
			return fmt.Errorf("set policy mode: %w", err)
		}
		for _, svc := range services {
			emit(fmt.Sprintf("[OK] %s -> %s", svc, mode))
		}
		emit("")
		emit(fmt.Sprintf("[OK] Successfully updated %d group(s)", len(services)))
		emit("")
		emitModeEffects(mode, emit)
		outcome = Outcome{Success: true, Message: fmt.Sprintf("%d group(s) set to %s", len(services), mode)}
		return nil
	})
	if err != nil {
		emit(fmt.Sprintf("[ERROR] %v", err))
		return Outcome{Success: false, Message: "policy mode update failed"}, err
	}
	return outcome, nil
}

// shortGroupName extracts the service part of "nv.<service>.<namespace>".
func shortGroupName(group string) string {
	parts := strings.Split(group, ".")
	if len(parts) >= 2 {
		return parts[1]
	}
	return group
}

func emitModeEffects(mode sentry.PolicyMode, emit func(string)) {
	emit("[INFO] Policy Mode Effects:")
	switch mode {
	case sentry.ModeDiscover:
		emit("  - The controller is learning normal behavior")
		emit("  - All connections and processes are allowed")
		emit("  - Baseline rules are being created automatically")
	case sentry.ModeMonitor:
		emit("  - Violations are logged but not blocked")
		emit("  - Check the security console for events")
		emit("  - Good for testing before enforcing")
	case sentry.ModeProtect:
		emit("  - Unauthorized connections will be BLOCKED")
		emit("  - Only learned/allowed behaviors permitted")
	}
	emit("")
	emit("[INFO] Run the connectivity or DLP demos to test the policy")
}
