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

import (
	"context"
	"sync"
)

// MockAPI is a test double for API.
//
// Configure only the function fields a test exercises; unset fields return
// zero values. All invocations are recorded in Calls.
type MockAPI struct {
	AuthenticateFunc        func(ctx context.Context) (string, error)
	LogoutFunc              func(ctx context.Context, token string) error
	GetGroupsFunc           func(ctx context.Context, token string) ([]Group, error)
	GetGroupFunc            func(ctx context.Context, token, name string) (*Group, error)
	GetProcessProfileFunc   func(ctx context.Context, token, group string) (*ProcessProfile, error)
	DeleteProcessRulesFunc  func(ctx context.Context, token, group string, rules []ProcessRule) error
	SetPolicyModeFunc       func(ctx context.Context, token string, mode PolicyMode, services []string) error
	GetDLPSensorsFunc       func(ctx context.Context, token string) ([]DLPSensor, error)
	GetGroupDLPFunc         func(ctx context.Context, token, group string) (*DLPGroupConfig, error)
	SetGroupDLPFunc         func(ctx context.Context, token string, cfg DLPGroupConfig) error
	GetAdmissionStateFunc   func(ctx context.Context, token string) (*AdmissionState, error)
	SetAdmissionStateFunc   func(ctx context.Context, token string, state AdmissionState) error
	GetAdmissionRulesFunc   func(ctx context.Context, token string) ([]AdmissionRule, error)
	AddAdmissionRuleFunc    func(ctx context.Context, token string, rule AdmissionRule) (*AdmissionRule, error)
	DeleteAdmissionRuleFunc func(ctx context.Context, token string, id int) error
	GetIncidentsFunc        func(ctx context.Context, token string, limit int) ([]SecurityEvent, error)
	GetViolationsFunc       func(ctx context.Context, token string, limit int) ([]SecurityEvent, error)

	// Calls records method names in invocation order.
	Calls []string

	mu sync.Mutex
}

func (m *MockAPI) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, method)
}

// GetCalls returns a copy of the recorded method names.
func (m *MockAPI) GetCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Calls))
	copy(out, m.Calls)
	return out
}

// Authenticate delegates to AuthenticateFunc, defaulting to a fixed token.
func (m *MockAPI) Authenticate(ctx context.Context) (string, error) {
	m.record("Authenticate")
	if m.AuthenticateFunc == nil {
		return "mock-token", nil
	}
	return m.AuthenticateFunc(ctx)
}

// Logout delegates to LogoutFunc.
func (m *MockAPI) Logout(ctx context.Context, token string) error {
	m.record("Logout")
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, token)
}

// WithSession mirrors Client.WithSession on top of the mocked auth calls.
func (m *MockAPI) WithSession(ctx context.Context, fn func(token string) error) error {
	token, err := m.Authenticate(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = m.Logout(ctx, token) }()
	return fn(token)
}

func (m *MockAPI) GetGroups(ctx context.Context, token string) ([]Group, error) {
	m.record("GetGroups")
	if m.GetGroupsFunc == nil {
		return nil, nil
	}
	return m.GetGroupsFunc(ctx, token)
}

func (m *MockAPI) GetGroup(ctx context.Context, token, name string) (*Group, error) {
	m.record("GetGroup")
	if m.GetGroupFunc == nil {
		return &Group{Name: name}, nil
	}
	return m.GetGroupFunc(ctx, token, name)
}

func (m *MockAPI) GetProcessProfile(ctx context.Context, token, group string) (*ProcessProfile, error) {
	m.record("GetProcessProfile")
	if m.GetProcessProfileFunc == nil {
		return &ProcessProfile{Group: group}, nil
	}
	return m.GetProcessProfileFunc(ctx, token, group)
}

func (m *MockAPI) DeleteProcessRules(ctx context.Context, token, group string, rules []ProcessRule) error {
	m.record("DeleteProcessRules")
	if m.DeleteProcessRulesFunc == nil {
		return nil
	}
	return m.DeleteProcessRulesFunc(ctx, token, group, rules)
}

func (m *MockAPI) SetPolicyMode(ctx context.Context, token string, mode PolicyMode, services []string) error {
	m.record("SetPolicyMode")
	if m.SetPolicyModeFunc == nil {
		return nil
	}
	return m.SetPolicyModeFunc(ctx, token, mode, services)
}

func (m *MockAPI) GetDLPSensors(ctx context.Context, token string) ([]DLPSensor, error) {
	m.record("GetDLPSensors")
	if m.GetDLPSensorsFunc == nil {
		return nil, nil
	}
	return m.GetDLPSensorsFunc(ctx, token)
}

func (m *MockAPI) GetGroupDLP(ctx context.Context, token, group string) (*DLPGroupConfig, error) {
	m.record("GetGroupDLP")
	if m.GetGroupDLPFunc == nil {
		return &DLPGroupConfig{Name: group}, nil
	}
	return m.GetGroupDLPFunc(ctx, token, group)
}

func (m *MockAPI) SetGroupDLP(ctx context.Context, token string, cfg DLPGroupConfig) error {
	m.record("SetGroupDLP")
	if m.SetGroupDLPFunc == nil {
		return nil
	}
	return m.SetGroupDLPFunc(ctx, token, cfg)
}

func (m *MockAPI) GetAdmissionState(ctx context.Context, token string) (*AdmissionState, error) {
	m.record("GetAdmissionState")
	if m.GetAdmissionStateFunc == nil {
		return &AdmissionState{Enable: true, Mode: "monitor"}, nil
	}
	return m.GetAdmissionStateFunc(ctx, token)
}

func (m *MockAPI) SetAdmissionState(ctx context.Context, token string, state AdmissionState) error {
	m.record("SetAdmissionState")
	if m.SetAdmissionStateFunc == nil {
		return nil
	}
	return m.SetAdmissionStateFunc(ctx, token, state)
}

func (m *MockAPI) GetAdmissionRules(ctx context.Context, token string) ([]AdmissionRule, error) {
	m.record("GetAdmissionRules")
	if m.GetAdmissionRulesFunc == nil {
		return nil, nil
	}
	return m.GetAdmissionRulesFunc(ctx, token)
}

func (m *MockAPI) AddAdmissionRule(ctx context.Context, token string, rule AdmissionRule) (*AdmissionRule, error) {
	m.record("AddAdmissionRule")
	if m.AddAdmissionRuleFunc == nil {
		rule.ID = 1
		return &rule, nil
	}
	return m.AddAdmissionRuleFunc(ctx, token, rule)
}

func (m *MockAPI) DeleteAdmissionRule(ctx context.Context, token string, id int) error {
	m.record("DeleteAdmissionRule")
	if m.DeleteAdmissionRuleFunc == nil {
		return nil
	}
	return m.DeleteAdmissionRuleFunc(ctx, token, id)
}

func (m *MockAPI) GetIncidents(ctx context.Context, token string, limit int) ([]SecurityEvent, error) {
	m.record("GetIncidents")
	if m.GetIncidentsFunc == nil {
		return nil, nil
	}
	return m.GetIncidentsFunc(ctx, token, limit)
}

func (m *MockAPI) GetViolations(ctx context.Context, token string, limit int) ([]SecurityEvent, error) {
	m.record("GetViolations")
	if m.GetViolationsFunc == nil {
		return nil, nil
	}
	return m.GetViolationsFunc(ctx, token, limit)
}

// Compile-time interface compliance check.
var _ API = (*MockAPI)(nil)
