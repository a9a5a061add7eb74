// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for SentryDeck components.
//
// Built on the standard library slog with one extension: a handler that
// fans each record out to stdout and, when a log directory is configured,
// to a JSON log file named {service}_{date}.log. The returned slog.Logger
// plugs straight into slog.SetDefault, so every package logging through
// slog inherits the configuration.
//
// # Usage
//
//	logger, closeFn, err := logging.New(logging.Config{
//	    Level:   slog.LevelInfo,
//	    LogDir:  "/var/log/sentrydeck",
//	    Service: "console",
//	})
//	if err != nil { ... }
//	defer closeFn()
//	slog.SetDefault(logger)
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config controls logger construction.
type Config struct {
	// Level is the minimum level to emit. Default: slog.LevelInfo.
	Level slog.Level

	// LogDir, when set, enables file logging alongside the stream. The
	// directory is created if missing. Supports ~ expansion.
	LogDir string

	// Service names the log file: {service}_{date}.log.
	// Default: "sentrydeck".
	Service string

	// Stream receives the console-side records. Defaults to os.Stdout;
	// tests inject a buffer.
	Stream io.Writer
}

// New builds a structured logger per cfg. The returned close function
// flushes and closes the log file; it is a no-op without LogDir.
func New(cfg Config) (*slog.Logger, func() error, error) {
	if cfg.Service == "" {
		cfg.Service = "sentrydeck"
	}
	stream := cfg.Stream
	if stream == nil {
		stream = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}

	handlers := []slog.Handler{slog.NewJSONHandler(stream, opts)}
	closeFn := func() error { return nil }

	if cfg.LogDir != "" {
		dir := expandPath(cfg.LogDir)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
		name := fmt.Sprintf("%s_%s.log", cfg.Service, time.Now().Format("2006-01-02"))
		file, err := os.OpenFile(filepath.Join(dir, name),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(file, opts))
		closeFn = file.Close
	}

	var handler slog.Handler
	if len(handlers) == 1 {
		handler = handlers[0]
	} else {
		handler = &multiHandler{handlers: handlers}
	}
	handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})

	return slog.New(handler), closeFn, nil
}

// multiHandler fans one record out to every wrapped handler. A failure in
// one destination does not stop the others; the first error is returned.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, inner := range h.handlers {
		if inner.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, inner := range h.handlers {
		if !inner.Enabled(ctx, r.Level) {
			continue
		}
		if err := inner.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, inner := range h.handlers {
		next[i] = inner.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, inner := range h.handlers {
		next[i] = inner.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

// expandPath resolves a leading ~ to the user's home directory.
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
