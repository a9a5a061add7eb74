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
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestController spins up a fake controller and returns a client
// pointed at it.
func newTestController(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, NewCredentials("admin", "s3cret"), srv.Client())
}

func TestAuthenticate_SendsNestedPasswordBody(t *testing.T) {
	var gotBody map[string]map[string]string
	client := newTestController(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/auth", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": map[string]string{"token": "tok-123"},
		})
	})

	token, err := client.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
	assert.Equal(t, "admin", gotBody["password"]["username"])
	assert.Equal(t, "s3cret", gotBody["password"]["password"])
}

func TestAuthenticate_BadCredentials(t *testing.T) {
	client := newTestController(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"authentication failed"}`))
	})

	_, err := client.Authenticate(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Contains(t, apiErr.Message, "authentication failed")
}

func TestWithSession_AlwaysLogsOut(t *testing.T) {
	var loggedOut bool
	client := newTestController(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/auth":
			_ = json.NewEncoder(w).Encode(map[string]any{"token": map[string]string{"token": "tok"}})
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/auth":
			loggedOut = true
			assert.Equal(t, "tok", r.Header.Get(authTokenHeader))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"boom"}`))
		}
	})

	err := client.WithSession(context.Background(), func(token string) error {
		return client.SetPolicyMode(context.Background(), token, ModeProtect, []string{"frontend.demo"})
	})
	require.Error(t, err, "the inner failure must propagate")
	assert.True(t, loggedOut, "logout must run even when the session body fails")
}

func TestGetGroups_DecodesList(t *testing.T) {
	client := newTestController(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.Header.Get(authTokenHeader))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"groups": []map[string]any{
				{"name": "nv.frontend.demo", "policy_mode": "Protect", "learned": true},
				{"name": "nv.backend.demo", "policy_mode": "Discover", "learned": true},
			},
		})
	})

	groups, err := client.GetGroups(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "nv.frontend.demo", groups[0].Name)
	assert.Equal(t, ModeProtect, groups[0].PolicyMode)
}

func TestSetPolicyMode_RejectsInvalidMode(t *testing.T) {
	client := NewClient("http://unused", NewCredentials("a", "b"), nil)
	err := client.SetPolicyMode(context.Background(), "tok", PolicyMode("Aggressive"), []string{"svc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid policy mode")
}

func TestDeleteProcessRules_EmptyListIsNoOp(t *testing.T) {
	called := false
	client := newTestController(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	require.NoError(t, client.DeleteProcessRules(context.Background(), "tok", "nv.frontend.demo", nil))
	assert.False(t, called, "no request for an empty delete list")
}

func TestGetIncidents_AppliesLimit(t *testing.T) {
	client := newTestController(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"incidents": []map[string]string{
				{"name": "one"}, {"name": "two"}, {"name": "three"},
			},
		})
	})

	events, err := client.GetIncidents(context.Background(), "tok", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "one", events[0].Name)
}

func TestServiceFromGroup(t *testing.T) {
	assert.Equal(t, "frontend.demo", ServiceFromGroup("nv.frontend.demo"))
	assert.Equal(t, "frontend.demo", ServiceFromGroup("frontend.demo"))
}

func TestCredentials_OpenAndDestroy(t *testing.T) {
	creds := NewCredentials("admin", "hunter2")
	pw, destroy, err := creds.openPassword()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pw)
	destroy()

	// The enclave can be opened again after a destroy of the buffer.
	pw2, destroy2, err := creds.openPassword()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pw2)
	destroy2()
}
