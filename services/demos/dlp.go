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

	"github.com/AleutianAI/SentryDeck/services/console/datatypes"
)

// DLPDemo sends simulated sensitive data through the network to exercise
// DLP detection. The packet inspector excludes repetitive test patterns
// like 4242-4242-4242-4242, so the built-in samples look realistic.
type DLPDemo struct{}

var _ Module = (*DLPDemo)(nil)

// Test patterns chosen to pass the inspector's repetition filter.
var dlpTestData = map[string][2]string{
	"credit_card": {"4532-0151-1283-0366", "Test Visa card number"},
	"ssn":         {"078-05-1120", "Test SSN pattern"},
}

func (d *DLPDemo) Descriptor() datatypes.DemoDescriptor {
	return datatypes.DemoDescriptor{
		ID:          "dlp",
		Name:        "DLP Detection Test",
		Description: "Send simulated sensitive data (credit card numbers, SSN patterns) to test data-loss-prevention rules.",
		Category:    "DLP",
		Icon:        "lock",
		Parameters: []datatypes.DemoParameter{
			{
				Name: "pod_name", Label: "Source Pod", Type: "select",
				Default: "production1", Required: true,
				Options: []string{"production1"},
			},
			{
				Name: "target", Label: "Target", Type: "select",
				Default: "web1", Required: true,
				Options: []string{"web1", "external"},
			},
			{
				Name: "data_type", Label: "Sensitive Data Type", Type: "select",
				Default: "credit_card", Required: true,
				Options: []string{"credit_card", "ssn", "custom"},
			},
			{
				Name: "custom_data", Label: "Custom Data", Type: "string",
			},
		},
	}
}

func (d *DLPDemo) testData(dataType, custom string) (string, string) {
	if dataType == "custom" && custom != "" {
		return custom, "Custom test data"
	}
	if p, ok := dlpTestData[dataType]; ok {
		return p[0], p[1]
	}
	return "test-data-12345", "Generic test data"
}

func (d *DLPDemo) Execute(ctx context.Context, deps Deps, params map[string]string, emit func(string)) (Outcome, error) {
	pod := params["pod_name"]
	target := params["target"]
	data, desc := d.testData(params["data_type"], params["custom_data"])

	emit(fmt.Sprintf("[INFO] Starting DLP detection test from pod '%s'", pod))
	emit(fmt.Sprintf("[INFO] Data type: %s", desc))
	emit(fmt.Sprintf("[INFO] Target: %s", target))
	emit("")

	var targetURL string
	if target == "external" {
		targetURL = "http://example.com"
	} else {
		targetURL = fmt.Sprintf("http://%s.%s.svc.cluster.local", target, deps.Namespace)
	}

	// Plain-text body: the inspector scans the raw packet payload.
	// The 3s curl budget means a DLP block surfaces as a timeout.
	body := fmt.Sprintf("Transaction payment info: card=%s amount=100.00", data)
	argv := []string{
		"curl", "-v", "-X", "POST",
		"-H", "Content-Type: text/plain",
		"-d", body,
		"-m", "3",
		targetURL,
	}

	emit(fmt.Sprintf("[CMD] Sending POST request with sensitive data: %s", data))
	emit(fmt.Sprintf("[CMD] Target: %s", targetURL))
	emit("")

	killed, _, err := drainExec(ctx, deps, pod, argv, 10, emit)
	if err != nil {
		emit(fmt.Sprintf("[ERROR] %v", err))
		return Outcome{Success: false, Message: "DLP test failed to run"}, err
	}
	emit("")

	if killed {
		emit("[BLOCKED] Request was blocked by DLP enforcement")
		return Outcome{Success: true, Blocked: true, Message: "sensitive data blocked by DLP"}, nil
	}
	emit("[INFO] DLP test complete")
	emit("[INFO] Check Security Events > DLP for detected sensitive data")
	return Outcome{Success: true, Message: "DLP test complete"}, nil
}
