// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/SentryDeck/pkg/extensions"
	"github.com/AleutianAI/SentryDeck/services/console/config"
	"github.com/AleutianAI/SentryDeck/services/console/sessions"
	"github.com/AleutianAI/SentryDeck/services/demos"
	"github.com/AleutianAI/SentryDeck/services/diagnostics"
	"github.com/AleutianAI/SentryDeck/services/kubectl"
	"github.com/AleutianAI/SentryDeck/services/lifecycle"
	"github.com/AleutianAI/SentryDeck/services/sentry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Namespaces = []string{"demo", "forbidden-namespace1"}
	cfg.Sentry.URL = "https://sentry.example.com:10443"
	cfg.Sentry.Username = "admin"
	return cfg
}

func newTestHandler(kube *kubectl.MockExecutor, api *sentry.MockAPI) *Handler {
	if kube == nil {
		kube = &kubectl.MockExecutor{}
	}
	if api == nil {
		api = &sentry.MockAPI{}
	}
	return &Handler{
		Sessions:    sessions.NewManager(),
		Registry:    demos.NewRegistry(),
		Lifecycle:   lifecycle.NewManager(kube, "demo", "manifests"),
		Diagnostics: diagnostics.NewRunner(kube, api, diagnostics.Config{Namespace: "demo"}),
		Kube:        kube,
		Sentry:      api,
		Store:       config.NewStaticStore(testConfig()),
		Namespace:   "demo",
	}
}

func doRequest(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "response must be JSON")
	return out
}

func TestHandleHealth(t *testing.T) {
	h := newTestHandler(nil, nil)
	router := gin.New()
	router.GET("/health", h.HandleHealth())

	rec := doRequest(t, router, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["sessions"], "no sessions connected yet")
}

func TestHandleListDemos(t *testing.T) {
	h := newTestHandler(nil, nil)
	router := gin.New()
	router.GET("/api/demos", h.HandleListDemos())

	rec := doRequest(t, router, http.MethodGet, "/api/demos", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Demos []struct {
			ID string `json:"id"`
		} `json:"demos"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Demos, 5, "the catalog carries all five demos")
	assert.Equal(t, "admission", body.Demos[0].ID, "catalog is sorted by ID")
}

func TestHandleGetDemo_Unknown(t *testing.T) {
	h := newTestHandler(nil, nil)
	router := gin.New()
	router.GET("/api/demos/:id", h.HandleGetDemo())

	rec := doRequest(t, router, http.MethodGet, "/api/demos/nope", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body["error"], "nope")
}

func TestHandleGetDemo_Known(t *testing.T) {
	h := newTestHandler(nil, nil)
	router := gin.New()
	router.GET("/api/demos/:id", h.HandleGetDemo())

	rec := doRequest(t, router, http.MethodGet, "/api/demos/connectivity", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "connectivity", body["id"])
	assert.NotEmpty(t, body["parameters"], "descriptor publishes its parameter schema")
}

func TestHandleGetConfig_NeverLeaksCredentials(t *testing.T) {
	h := newTestHandler(nil, nil)
	router := gin.New()
	router.GET("/api/config", h.HandleGetConfig())

	rec := doRequest(t, router, http.MethodGet, "/api/config", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "demo", body["namespace"])
	assert.Equal(t, "https://sentry.example.com:10443", body["sentry_url"])
	assert.NotContains(t, rec.Body.String(), "admin", "username must not be served")
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestHandleClusterInfo(t *testing.T) {
	kube := &kubectl.MockExecutor{
		ClusterInfoFunc: func(ctx context.Context) (*kubectl.ClusterInfo, error) {
			return &kubectl.ClusterInfo{Context: "k3d-demo", Reachable: true, NodeCount: 3}, nil
		},
	}
	h := newTestHandler(kube, nil)
	router := gin.New()
	router.GET("/api/cluster-info", h.HandleClusterInfo())

	rec := doRequest(t, router, http.MethodGet, "/api/cluster-info", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "k3d-demo", body["context"])
	assert.Equal(t, true, body["reachable"])
}

func TestHandleDiagnostics_FailingReportStillHTTP200(t *testing.T) {
	kube := &kubectl.MockExecutor{
		ClusterInfoFunc: func(ctx context.Context) (*kubectl.ClusterInfo, error) {
			return &kubectl.ClusterInfo{Reachable: false}, nil
		},
	}
	api := &sentry.MockAPI{
		AuthenticateFunc: func(ctx context.Context) (string, error) {
			return "", &sentry.APIError{Status: 401, Message: "bad credentials"}
		},
	}
	h := newTestHandler(kube, api)
	router := gin.New()
	router.POST("/api/diagnostics", h.HandleDiagnostics())

	rec := doRequest(t, router, http.MethodPost, "/api/diagnostics", "")

	require.Equal(t, http.StatusOK, rec.Code, "a failing report is still a successful request")
	var report diagnostics.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.False(t, report.Success)
	assert.NotZero(t, report.Summary.Error)
	assert.NotEmpty(t, report.RunID)
}

func TestHandleSentryTestConnection(t *testing.T) {
	api := &sentry.MockAPI{}
	h := newTestHandler(nil, api)
	router := gin.New()
	router.POST("/api/sentry/test-connection", h.HandleSentryTestConnection())

	rec := doRequest(t, router, http.MethodPost, "/api/sentry/test-connection", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, []string{"Authenticate", "Logout"}, api.GetCalls(),
		"test-connection is a full login/logout round trip")
}

func TestHandleSentryTestConnection_AuthFailureKeepsStatus(t *testing.T) {
	api := &sentry.MockAPI{
		AuthenticateFunc: func(ctx context.Context) (string, error) {
			return "", &sentry.APIError{Status: 401, Message: "bad credentials"}
		},
	}
	h := newTestHandler(nil, api)
	router := gin.New()
	router.POST("/api/sentry/test-connection", h.HandleSentryTestConnection())

	rec := doRequest(t, router, http.MethodPost, "/api/sentry/test-connection", "")

	require.Equal(t, http.StatusUnauthorized, rec.Code, "controller status passes through")
	body := decodeBody(t, rec)
	assert.Contains(t, body["error"], "bad credentials")
}

func TestHandleSentryGroups_SessionBracketsTheCall(t *testing.T) {
	api := &sentry.MockAPI{
		GetGroupsFunc: func(ctx context.Context, token string) ([]sentry.Group, error) {
			return []sentry.Group{
				{Name: "nv.web1.demo", Domain: "demo", PolicyMode: sentry.ModeProtect},
			}, nil
		},
	}
	h := newTestHandler(nil, api)
	router := gin.New()
	router.POST("/api/sentry/groups", h.HandleSentryGroups())

	rec := doRequest(t, router, http.MethodPost, "/api/sentry/groups", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Authenticate", "GetGroups", "Logout"}, api.GetCalls())
	assert.Contains(t, rec.Body.String(), "nv.web1.demo")
}

func TestHandleSentryPolicyMode_RejectsInvalidMode(t *testing.T) {
	api := &sentry.MockAPI{}
	h := newTestHandler(nil, api)
	router := gin.New()
	router.POST("/api/sentry/policy-mode", h.HandleSentryPolicyMode())

	rec := doRequest(t, router, http.MethodPost, "/api/sentry/policy-mode",
		`{"mode":"Nuke","services":["web1.demo"]}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, api.GetCalls(), "invalid input never reaches the controller")
}

func TestHandleSentryPolicyMode_AppliesMode(t *testing.T) {
	var gotMode sentry.PolicyMode
	var gotServices []string
	api := &sentry.MockAPI{
		SetPolicyModeFunc: func(ctx context.Context, token string, mode sentry.PolicyMode, services []string) error {
			gotMode = mode
			gotServices = services
			return nil
		},
	}
	h := newTestHandler(nil, api)
	router := gin.New()
	router.POST("/api/sentry/policy-mode", h.HandleSentryPolicyMode())

	rec := doRequest(t, router, http.MethodPost, "/api/sentry/policy-mode",
		`{"mode":"Protect","services":["web1.demo","production1.demo"]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sentry.ModeProtect, gotMode)
	assert.Equal(t, []string{"web1.demo", "production1.demo"}, gotServices)
	assert.Equal(t, []string{"Authenticate", "SetPolicyMode", "Logout"}, api.GetCalls())
}

func TestHandleSentryDeleteProcessRules(t *testing.T) {
	var gotGroup string
	var gotRules []sentry.ProcessRule
	api := &sentry.MockAPI{
		DeleteProcessRulesFunc: func(ctx context.Context, token, group string, rules []sentry.ProcessRule) error {
			gotGroup = group
			gotRules = rules
			return nil
		},
	}
	h := newTestHandler(nil, api)
	router := gin.New()
	router.POST("/api/sentry/groups/:group/profile/delete", h.HandleSentryDeleteProcessRules())

	rec := doRequest(t, router, http.MethodPost, "/api/sentry/groups/nv.web1.demo/profile/delete",
		`{"rules":[{"name":"ping","path":"/usr/bin/ping","action":"allow"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nv.web1.demo", gotGroup)
	require.Len(t, gotRules, 1)
	assert.Equal(t, "/usr/bin/ping", gotRules[0].Path)
}

func TestHandleSentryAdmission_StateAndRules(t *testing.T) {
	api := &sentry.MockAPI{
		GetAdmissionStateFunc: func(ctx context.Context, token string) (*sentry.AdmissionState, error) {
			return &sentry.AdmissionState{Enable: true, Mode: "protect"}, nil
		},
		AddAdmissionRuleFunc: func(ctx context.Context, token string, rule sentry.AdmissionRule) (*sentry.AdmissionRule, error) {
			rule.ID = 42
			return &rule, nil
		},
	}
	h := newTestHandler(nil, api)
	router := gin.New()
	router.POST("/api/sentry/admission/state", h.HandleSentryAdmissionState())
	router.POST("/api/sentry/admission/rules", h.HandleSentryAddAdmissionRule())
	router.DELETE("/api/sentry/admission/rules/:id", h.HandleSentryDeleteAdmissionRule())

	rec := doRequest(t, router, http.MethodPost, "/api/sentry/admission/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"enable":true`)

	rec = doRequest(t, router, http.MethodPost, "/api/sentry/admission/rules",
		`{"category":"Kubernetes","comment":"block forbidden ns","criteria":[{"name":"namespace","op":"containsAny","value":"forbidden-namespace1"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(42), body["id"], "controller-assigned ID comes back")

	rec = doRequest(t, router, http.MethodDelete, "/api/sentry/admission/rules/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code, "rule id must parse as an integer")
}

func TestHandleSentryEvents(t *testing.T) {
	var gotLimit int
	api := &sentry.MockAPI{
		GetViolationsFunc: func(ctx context.Context, token string, limit int) ([]sentry.SecurityEvent, error) {
			gotLimit = limit
			return []sentry.SecurityEvent{{Name: "Network.Violation", Level: "WARNING"}}, nil
		},
	}
	h := newTestHandler(nil, api)
	router := gin.New()
	router.POST("/api/sentry/events", h.HandleSentryEvents())

	rec := doRequest(t, router, http.MethodPost, "/api/sentry/events?type=violations&limit=10", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, gotLimit)
	assert.Contains(t, rec.Body.String(), "Network.Violation")

	rec = doRequest(t, router, http.MethodPost, "/api/sentry/events?type=gossip", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSentryGroupDLP_UpdateBindsPathGroup(t *testing.T) {
	var got sentry.DLPGroupConfig
	api := &sentry.MockAPI{
		SetGroupDLPFunc: func(ctx context.Context, token string, cfg sentry.DLPGroupConfig) error {
			got = cfg
			return nil
		},
	}
	h := newTestHandler(nil, api)
	router := gin.New()
	router.POST("/api/sentry/groups/:group/dlp", h.HandleSentrySetGroupDLP())

	rec := doRequest(t, router, http.MethodPost, "/api/sentry/groups/nv.web1.demo/dlp",
		`{"name":"ignored","status":true,"sensors":[{"name":"sensor.creditcard","action":"deny"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nv.web1.demo", got.Name, "path group wins over the body name")
	assert.True(t, got.Status)
	require.Len(t, got.Sensors, 1)
}

// stubAuthProvider records the token it saw and returns a fixed verdict.
type stubAuthProvider struct {
	err   error
	token string
}

func (p *stubAuthProvider) Validate(ctx context.Context, token string) (*extensions.AuthInfo, error) {
	p.token = token
	if p.err != nil {
		return nil, p.err
	}
	return &extensions.AuthInfo{UserID: "tester", Roles: []string{"admin"}}, nil
}

func TestRequireAuth_RejectedTokenNeverReachesController(t *testing.T) {
	api := &sentry.MockAPI{}
	h := newTestHandler(nil, api)
	h.Auth = &stubAuthProvider{err: extensions.ErrUnauthorized}
	router := gin.New()
	router.POST("/api/sentry/groups", h.RequireAuth(), h.HandleSentryGroups())

	rec := doRequest(t, router, http.MethodPost, "/api/sentry/groups", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, api.GetCalls(), "a rejected request must not open a controller session")
}

func TestRequireAuth_BearerTokenReachesProvider(t *testing.T) {
	provider := &stubAuthProvider{}
	h := newTestHandler(nil, nil)
	h.Auth = provider
	router := gin.New()
	router.POST("/api/sentry/test-connection", h.RequireAuth(), h.HandleSentryTestConnection())

	req := httptest.NewRequest(http.MethodPost, "/api/sentry/test-connection", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc123", provider.token, "the bearer token is handed to the provider verbatim")
}

func TestRequireAuth_NilProviderAllows(t *testing.T) {
	h := newTestHandler(nil, nil)
	router := gin.New()
	router.POST("/api/sentry/test-connection", h.RequireAuth(), h.HandleSentryTestConnection())

	rec := doRequest(t, router, http.MethodPost, "/api/sentry/test-connection", "")
	assert.Equal(t, http.StatusOK, rec.Code, "open source default accepts every request")
}
