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
Package sentry is a REST client for the Sentry container-security
controller.

The controller issues short-lived tokens: every administrative exchange is
authenticate, act, log out. The client never persists a token; callers use
WithSession to scope one. Passwords are held in a memguard enclave and only
decrypted while the login request is built.

Non-2xx responses surface as *APIError with the controller's message.
*/
package sentry

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const authTokenHeader = "X-Auth-Token"

// HTTPDoer abstracts HTTP execution so the client can be tested without a
// live controller.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// API is the surface the rest of SentryDeck programs against. *Client is
// the production implementation; tests use MockAPI.
type API interface {
	Authenticate(ctx context.Context) (string, error)
	Logout(ctx context.Context, token string) error
	WithSession(ctx context.Context, fn func(token string) error) error

	GetGroups(ctx context.Context, token string) ([]Group, error)
	GetGroup(ctx context.Context, token, name string) (*Group, error)
	GetProcessProfile(ctx context.Context, token, group string) (*ProcessProfile, error)
	DeleteProcessRules(ctx context.Context, token, group string, rules []ProcessRule) error
	SetPolicyMode(ctx context.Context, token string, mode PolicyMode, services []string) error

	GetDLPSensors(ctx context.Context, token string) ([]DLPSensor, error)
	GetGroupDLP(ctx context.Context, token, group string) (*DLPGroupConfig, error)
	SetGroupDLP(ctx context.Context, token string, cfg DLPGroupConfig) error

	GetAdmissionState(ctx context.Context, token string) (*AdmissionState, error)
	SetAdmissionState(ctx context.Context, token string, state AdmissionState) error
	GetAdmissionRules(ctx context.Context, token string) ([]AdmissionRule, error)
	AddAdmissionRule(ctx context.Context, token string, rule AdmissionRule) (*AdmissionRule, error)
	DeleteAdmissionRule(ctx context.Context, token string, id int) error

	GetIncidents(ctx context.Context, token string, limit int) ([]SecurityEvent, error)
	GetViolations(ctx context.Context, token string, limit int) ([]SecurityEvent, error)
}

// Client talks to one Sentry controller.
type Client struct {
	baseURL string
	creds   Credentials
	http    HTTPDoer
}

// NewClient builds a client for the controller at baseURL.
//
// # Description
//
// Pass nil as doer to use a default HTTP client. The default skips TLS
// verification because the controller ships with a self-signed certificate
// inside the cluster; inject a properly configured doer to pin one.
func NewClient(baseURL string, creds Credentials, doer HTTPDoer) *Client {
	if doer == nil {
		doer = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    doer,
	}
}

// =============================================================================
// Session Lifecycle
// =============================================================================

// Authenticate logs in and returns a session token.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	password, destroy, err := c.creds.openPassword()
	if err != nil {
		return "", err
	}
	body := map[string]any{
		"password": map[string]string{
			"username": c.creds.Username,
			"password": password,
		},
	}
	payload, err := json.Marshal(body)
	destroy()
	if err != nil {
		return "", fmt.Errorf("failed to encode auth request: %w", err)
	}

	var out struct {
		Token struct {
			Token string `json:"token"`
		} `json:"token"`
	}
	if err := c.doRaw(ctx, http.MethodPost, "/v1/auth", "", payload, &out); err != nil {
		return "", err
	}
	if out.Token.Token == "" {
		return "", &APIError{Status: http.StatusUnauthorized, Message: "controller returned no token"}
	}
	return out.Token.Token, nil
}

// Logout invalidates a session token. Best effort; an expired token is not
// an error worth failing an operation over.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodDelete, "/v1/auth", token, nil, nil)
}

// WithSession authenticates, runs fn with the token, and always logs out.
func (c *Client) WithSession(ctx context.Context, fn func(token string) error) error {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("sentry authentication failed: %w", err)
	}
	defer func() { _ = c.Logout(ctx, token) }()
	return fn(token)
}

// =============================================================================
// Groups and Process Profiles
// =============================================================================

// GetGroups lists all workload groups.
func (c *Client) GetGroups(ctx context.Context, token string) ([]Group, error) {
	var out struct {
		Groups []Group `json:"groups"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/group", token, nil, &out); err != nil {
		return nil, err
	}
	return out.Groups, nil
}

// GetGroup fetches one group by name.
func (c *Client) GetGroup(ctx context.Context, token, name string) (*Group, error) {
	var out struct {
		Group Group `json:"group"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/group/"+name, token, nil, &out); err != nil {
		return nil, err
	}
	return &out.Group, nil
}

// GetProcessProfile fetches a group's process profile.
func (c *Client) GetProcessProfile(ctx context.Context, token, group string) (*ProcessProfile, error) {
	var out struct {
		ProcessProfile ProcessProfile `json:"process_profile"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/process_profile/"+group, token, nil, &out); err != nil {
		return nil, err
	}
	return &out.ProcessProfile, nil
}

// DeleteProcessRules removes learned process rules from a group's profile.
func (c *Client) DeleteProcessRules(ctx context.Context, token, group string, rules []ProcessRule) error {
	if len(rules) == 0 {
		return nil
	}
	body := map[string]any{
		"process_profile_config": map[string]any{
			"group":               group,
			"process_delete_list": rules,
		},
	}
	return c.do(ctx, http.MethodPatch, "/v1/process_profile/"+group, token, body, nil)
}

// SetPolicyMode switches enforcement posture for the named services.
//
// # Description
//
// The controller addresses services by bare name, while groups are named
// "nv.<service>.<namespace>"; callers pass service names here (use
// ServiceFromGroup to convert).
func (c *Client) SetPolicyMode(ctx context.Context, token string, mode PolicyMode, services []string) error {
	if !ValidPolicyMode(mode) {
		return fmt.Errorf("invalid policy mode %q", mode)
	}
	body := map[string]any{
		"config": map[string]any{
			"services":    services,
			"policy_mode": mode,
		},
	}
	return c.do(ctx, http.MethodPatch, "/v1/service/config", token, body, nil)
}

// ServiceFromGroup converts a group name ("nv.frontend.demo") to the
// service name the config endpoint expects ("frontend.demo").
func ServiceFromGroup(group string) string {
	return strings.TrimPrefix(group, "nv.")
}

// =============================================================================
// DLP
// =============================================================================

// GetDLPSensors lists all DLP sensor definitions.
func (c *Client) GetDLPSensors(ctx context.Context, token string) ([]DLPSensor, error) {
	var out struct {
		Sensors []DLPSensor `json:"sensors"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/dlp/sensor", token, nil, &out); err != nil {
		return nil, err
	}
	return out.Sensors, nil
}

// GetGroupDLP fetches a group's DLP binding.
func (c *Client) GetGroupDLP(ctx context.Context, token, group string) (*DLPGroupConfig, error) {
	var out struct {
		DLPGroup DLPGroupConfig `json:"dlp_group"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/dlp/group/"+group, token, nil, &out); err != nil {
		return nil, err
	}
	return &out.DLPGroup, nil
}

// SetGroupDLP updates a group's DLP binding.
func (c *Client) SetGroupDLP(ctx context.Context, token string, cfg DLPGroupConfig) error {
	body := map[string]any{"config": cfg}
	return c.do(ctx, http.MethodPatch, "/v1/dlp/group/"+cfg.Name, token, body, nil)
}

// =============================================================================
// Admission Control
// =============================================================================

// GetAdmissionState reads the cluster-wide admission control switch.
func (c *Client) GetAdmissionState(ctx context.Context, token string) (*AdmissionState, error) {
	var out struct {
		State AdmissionState `json:"state"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/admission/state", token, nil, &out); err != nil {
		return nil, err
	}
	return &out.State, nil
}

// SetAdmissionState updates the cluster-wide admission control switch.
func (c *Client) SetAdmissionState(ctx context.Context, token string, state AdmissionState) error {
	body := map[string]any{"state": state}
	return c.do(ctx, http.MethodPatch, "/v1/admission/state", token, body, nil)
}

// GetAdmissionRules lists admission control rules.
func (c *Client) GetAdmissionRules(ctx context.Context, token string) ([]AdmissionRule, error) {
	var out struct {
		Rules []AdmissionRule `json:"rules"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/admission/rules", token, nil, &out); err != nil {
		return nil, err
	}
	return out.Rules, nil
}

// AddAdmissionRule creates an admission rule and returns it with its
// controller-assigned ID.
func (c *Client) AddAdmissionRule(ctx context.Context, token string, rule AdmissionRule) (*AdmissionRule, error) {
	body := map[string]any{"config": rule}
	var out struct {
		Rule AdmissionRule `json:"rule"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/admission/rule", token, body, &out); err != nil {
		return nil, err
	}
	return &out.Rule, nil
}

// DeleteAdmissionRule removes an admission rule by ID.
func (c *Client) DeleteAdmissionRule(ctx context.Context, token string, id int) error {
	return c.do(ctx, http.MethodDelete, "/v1/admission/rule/"+strconv.Itoa(id), token, nil, nil)
}

// =============================================================================
// Security Events
// =============================================================================

// GetIncidents returns recent incident log entries, newest first.
func (c *Client) GetIncidents(ctx context.Context, token string, limit int) ([]SecurityEvent, error) {
	return c.getEvents(ctx, token, "/v1/log/incident", "incidents", limit)
}

// GetViolations returns recent violation log entries, newest first.
func (c *Client) GetViolations(ctx context.Context, token string, limit int) ([]SecurityEvent, error) {
	return c.getEvents(ctx, token, "/v1/log/violation", "violations", limit)
}

func (c *Client) getEvents(ctx context.Context, token, path, key string, limit int) ([]SecurityEvent, error) {
	var raw map[string]json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, token, nil, &raw); err != nil {
		return nil, err
	}
	var events []SecurityEvent
	if msg, ok := raw[key]; ok {
		if err := json.Unmarshal(msg, &events); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", key, err)
		}
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// =============================================================================
// Transport
// =============================================================================

// do encodes body as JSON and performs the exchange.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}
	return c.doRaw(ctx, method, path, token, payload, out)
}

// doRaw performs one HTTP exchange and decodes a JSON response into out.
func (c *Client) doRaw(ctx context.Context, method, path, token string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(authTokenHeader, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sentry request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return fmt.Errorf("failed to read sentry response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: controllerMessage(data)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode sentry response: %w", err)
		}
	}
	return nil
}

// controllerMessage extracts the controller's error message, falling back
// to the raw body.
func controllerMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// Compile-time interface compliance check.
var _ API = (*Client)(nil)
