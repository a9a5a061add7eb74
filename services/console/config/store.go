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
Package config loads and watches the console configuration file.

# Description

The configuration file is YAML. A Store holds the current snapshot behind
a read lock and can watch the file for changes, so edits to the namespace
allowlist take effect without a restart. A reload that fails to parse
keeps the previous snapshot; a broken edit must never widen (or empty)
the allowlist mid-flight.

# Thread Safety

Store is safe for concurrent use.
*/
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Default values applied when the file omits a field.
const (
	DefaultPort           = 8080
	DefaultKubectlBinary  = "kubectl"
	DefaultTimeoutSeconds = 120
)

// Config is one immutable snapshot of the console configuration.
type Config struct {
	Server struct {
		// Port the HTTP server listens on. Default: 8080.
		Port int `yaml:"port"`

		// Host interface to bind. Default: all interfaces.
		Host string `yaml:"host"`
	} `yaml:"server"`

	Kubectl struct {
		// Binary is the kubectl executable. Default: "kubectl".
		Binary string `yaml:"binary"`

		// Kubeconfig path passed via --kubeconfig. Empty uses the
		// ambient environment (in-cluster or ~/.kube/config).
		Kubeconfig string `yaml:"kubeconfig"`

		// TimeoutSeconds is the default command budget. Default: 120.
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"kubectl"`

	// Namespaces is the allowlist of namespaces commands may target.
	Namespaces []string `yaml:"namespaces"`

	Sentry struct {
		// URL of the Sentry controller REST API.
		URL string `yaml:"url"`

		// Username for controller authentication. The password is never
		// read from this file; it comes from the environment.
		Username string `yaml:"username"`
	} `yaml:"sentry"`
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Kubectl.Binary == "" {
		c.Kubectl.Binary = DefaultKubectlBinary
	}
	if c.Kubectl.TimeoutSeconds <= 0 {
		c.Kubectl.TimeoutSeconds = DefaultTimeoutSeconds
	}
}

// Timeout returns the kubectl command budget as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Kubectl.TimeoutSeconds) * time.Second
}

// Load reads and parses one configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a Config with defaults applied.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Store holds the live configuration snapshot.
//
// Store implements the executor's NamespaceSource, so a hot reload of the
// namespaces list is picked up by the very next command validation.
type Store struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	done     chan struct{}
}

// NewStore loads the file at path and returns a store serving it. Call
// Watch to enable hot reload.
func NewStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, cfg: cfg, done: make(chan struct{})}, nil
}

// NewStaticStore wraps an in-memory Config. Used when no file is given
// and by tests.
func NewStaticStore(cfg *Config) *Store {
	cfg.applyDefaults()
	return &Store{cfg: cfg, done: make(chan struct{})}
}

// Get returns the current snapshot. Callers must not mutate it.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Allowed returns the current namespace allowlist as a set.
func (s *Store) Allowed() map[string]struct{} {
	cfg := s.Get()
	out := make(map[string]struct{}, len(cfg.Namespaces))
	for _, ns := range cfg.Namespaces {
		out[ns] = struct{}{}
	}
	return out
}

// Reload re-reads the file now. On parse or read failure the previous
// snapshot stays active and the error is returned.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	slog.Info("configuration reloaded", "path", s.path, "namespaces", len(cfg.Namespaces))
	return nil
}

// Watch starts watching the config file for changes and reloads on write.
//
// # Description
//
// Watches the file's parent directory rather than the file itself, since
// editors commonly replace config files via rename. Events are debounced
// to a short window so a multi-write save triggers one reload. Failed
// reloads are logged and the old snapshot stays in effect.
//
// Returns immediately; watching runs in a goroutine until ctx is canceled
// or Stop is called. A static store (no path) is a no-op.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	s.watcher = watcher

	go s.watchLoop(ctx)
	return nil
}

// Stop stops the watcher. Idempotent.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.watcher != nil {
			s.watcher.Close()
		}
	})
}

func (s *Store) watchLoop(ctx context.Context) {
	const debounce = 100 * time.Millisecond

	var timer *time.Timer
	var pending <-chan time.Time

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			if err := s.Reload(); err != nil {
				slog.Warn("config reload failed, keeping previous snapshot", "path", s.path, "error", err)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}
