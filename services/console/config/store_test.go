// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: 9090
kubectl:
  binary: kubectl
  timeout_seconds: 60
namespaces:
  - demo
  - sentrydeck
sentry:
  url: https://10.0.0.5:10443
  username: admin
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// withNamespace returns sampleYAML with one more entry in the namespaces
// list.
func withNamespace(ns string) string {
	return strings.Replace(sampleYAML, "  - sentrydeck\n", "  - sentrydeck\n  - "+ns+"\n", 1)
}

func TestLoad_ParsesFieldsAndDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Timeout())
	assert.Equal(t, []string{"demo", "sentrydeck"}, cfg.Namespaces)
	assert.Equal(t, "admin", cfg.Sentry.Username)
}

func TestParse_EmptyFileGetsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultKubectlBinary, cfg.Kubectl.Binary)
	assert.Equal(t, DefaultTimeoutSeconds, cfg.Kubectl.TimeoutSeconds)
	assert.Empty(t, cfg.Namespaces, "no namespaces are allowed by default")
}

func TestParse_MalformedYAMLFails(t *testing.T) {
	_, err := Parse([]byte("namespaces: [unclosed"))
	assert.Error(t, err)
}

func TestStore_AllowedReflectsSnapshot(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sampleYAML)
	store, err := NewStore(path)
	require.NoError(t, err)
	defer store.Stop()

	allowed := store.Allowed()
	assert.Contains(t, allowed, "demo")
	assert.Contains(t, allowed, "sentrydeck")
	assert.NotContains(t, allowed, "kube-system")
}

func TestStore_ReloadPicksUpNewNamespaces(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleYAML)
	store, err := NewStore(path)
	require.NoError(t, err)
	defer store.Stop()

	writeConfig(t, dir, withNamespace("staging"))
	require.NoError(t, store.Reload())

	assert.Contains(t, store.Allowed(), "staging")
}

func TestStore_FailedReloadKeepsPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleYAML)
	store, err := NewStore(path)
	require.NoError(t, err)
	defer store.Stop()

	writeConfig(t, dir, "namespaces: [broken")
	assert.Error(t, store.Reload())

	allowed := store.Allowed()
	assert.Contains(t, allowed, "demo", "old allowlist survives a broken edit")
}

func TestStore_WatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleYAML)
	store, err := NewStore(path)
	require.NoError(t, err)
	defer store.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, store.Watch(ctx))

	writeConfig(t, dir, withNamespace("hotloaded"))

	require.Eventually(t, func() bool {
		_, ok := store.Allowed()["hotloaded"]
		return ok
	}, 3*time.Second, 50*time.Millisecond, "watcher applies the edited allowlist")
}

func TestStaticStore_NoPathWatchIsNoOp(t *testing.T) {
	cfg := &Config{}
	cfg.Namespaces = []string{"demo"}
	store := NewStaticStore(cfg)
	defer store.Stop()

	require.NoError(t, store.Watch(context.Background()))
	assert.Contains(t, store.Allowed(), "demo")
	assert.Equal(t, DefaultPort, store.Get().Server.Port, "defaults applied to static config")
}
