// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sentry

import "fmt"

// PolicyMode is a group's enforcement posture.
type PolicyMode string

// Enforcement postures, from observation to active blocking.
const (
	ModeDiscover PolicyMode = "Discover"
	ModeMonitor  PolicyMode = "Monitor"
	ModeProtect  PolicyMode = "Protect"
)

// ValidPolicyMode reports whether mode is one of the three postures.
func ValidPolicyMode(mode PolicyMode) bool {
	switch mode {
	case ModeDiscover, ModeMonitor, ModeProtect:
		return true
	}
	return false
}

// APIError is a non-2xx answer from the Sentry controller.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sentry API error %d: %s", e.Status, e.Message)
}

// Group is a Sentry-managed workload group.
type Group struct {
	Name       string     `json:"name"`
	PolicyMode PolicyMode `json:"policy_mode"`
	Learned    bool       `json:"learned"`
	Domain     string     `json:"domain"`
	Members    []Workload `json:"members"`
}

// Workload is a container covered by a group.
type Workload struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	PodName     string `json:"pod_name"`
	State       string `json:"state"`
}

// ProcessRule is one learned or configured process profile entry.
type ProcessRule struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Action string `json:"action"`
	Group  string `json:"group,omitempty"`
}

// ProcessProfile is a group's process profile.
type ProcessProfile struct {
	Group       string        `json:"group"`
	Mode        PolicyMode    `json:"mode"`
	ProcessList []ProcessRule `json:"process_list"`
}

// AdmissionState is the cluster-wide admission control switch.
type AdmissionState struct {
	Enable bool   `json:"enable"`
	Mode   string `json:"mode"` // "monitor" or "protect"
}

// AdmissionRule is one admission control rule.
type AdmissionRule struct {
	ID       int                  `json:"id"`
	Category string               `json:"category"`
	Comment  string               `json:"comment"`
	Disable  bool                 `json:"disable"`
	Criteria []AdmissionCriterion `json:"criteria"`
}

// AdmissionCriterion is one predicate of an admission rule.
type AdmissionCriterion struct {
	Name  string `json:"name"`
	Op    string `json:"op"`
	Value string `json:"value"`
}

// DLPSensor is a data-loss-prevention sensor definition.
type DLPSensor struct {
	Name     string   `json:"name"`
	Comment  string   `json:"comment"`
	GroupSet []string `json:"groups"`
}

// DLPGroupSensor binds a sensor to a group with an action.
type DLPGroupSensor struct {
	Name   string `json:"name"`
	Action string `json:"action"` // "allow" or "deny"
}

// DLPGroupConfig is a group's DLP configuration.
type DLPGroupConfig struct {
	Name    string           `json:"name"`
	Status  bool             `json:"status"`
	Sensors []DLPGroupSensor `json:"sensors"`
}

// SecurityEvent is one incident or violation log entry.
type SecurityEvent struct {
	Name         string `json:"name"`
	Level        string `json:"level"`
	ReportedAt   string `json:"reported_at"`
	WorkloadName string `json:"workload_name"`
	Group        string `json:"group"`
	Message      string `json:"message"`
}
