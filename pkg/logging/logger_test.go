// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StreamOnly(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(Config{Stream: &buf, Service: "console"})
	require.NoError(t, err, "stream-only construction must succeed")
	defer closeFn()

	logger.Info("starting console", "port", 8080)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "stream output is JSON")
	assert.Equal(t, "starting console", entry["msg"])
	assert.Equal(t, float64(8080), entry["port"])
	assert.Equal(t, "console", entry["service"], "service attribute rides on every record")
}

func TestNew_LevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(Config{Stream: &buf, Level: slog.LevelInfo})
	require.NoError(t, err)
	defer closeFn()

	logger.Debug("noisy detail")
	assert.Empty(t, buf.String(), "debug is below the configured level")

	logger.Warn("something odd")
	assert.Contains(t, buf.String(), "something odd")
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger, closeFn, err := New(Config{Stream: &buf, LogDir: dir, Service: "console"})
	require.NoError(t, err)

	logger.Info("audited event", "action", "prepare")
	require.NoError(t, closeFn())

	name := "console_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err, "log file must exist with the dated name")
	assert.Contains(t, string(data), "audited event")
	assert.Contains(t, buf.String(), "audited event", "stream still receives the record")
}

func TestNew_CreatesLogDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	_, closeFn, err := New(Config{Stream: &bytes.Buffer{}, LogDir: dir})
	require.NoError(t, err, "missing directories are created")
	defer closeFn()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	expanded := expandPath("~/logs")
	assert.Equal(t, filepath.Join(home, "logs"), expanded)

	assert.Equal(t, "/var/log", expandPath("/var/log"), "absolute paths pass through")
	assert.False(t, strings.HasPrefix(expanded, "~"))
}
