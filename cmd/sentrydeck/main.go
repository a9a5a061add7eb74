// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command sentrydeck starts the SentryDeck demo console.
//
// # Environment Variables
//
//   - SENTRYDECK_CONFIG: YAML configuration file path (default: config.yaml)
//   - SENTRYDECK_PORT: HTTP server port (overrides the config file)
//   - SENTRYDECK_NAMESPACE: demo namespace (default: demo)
//   - SENTRYDECK_MANIFESTS: demo manifest directory (default: manifests)
//   - SENTRYDECK_AUDIT_LOG: kubectl audit log path (optional)
//   - SENTRYDECK_LOG_DIR: directory for dated JSON log files (optional)
//   - SENTRYDECK_SENTRY_URL: Sentry controller URL (overrides the config file)
//   - SENTRYDECK_SENTRY_USERNAME: controller username (overrides the config file)
//   - SENTRYDECK_SENTRY_PASSWORD: controller password (never read from file)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: sentrydeck-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o sentrydeck ./cmd/sentrydeck
//
//	# Run the console
//	./sentrydeck serve
//
//	# Run diagnostics once and print the report
//	./sentrydeck diagnose
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SentryDeck/pkg/logging"
	"github.com/AleutianAI/SentryDeck/services/console"
	"github.com/AleutianAI/SentryDeck/services/console/config"
	"github.com/AleutianAI/SentryDeck/services/diagnostics"
	"github.com/AleutianAI/SentryDeck/services/kubectl"
	"github.com/AleutianAI/SentryDeck/services/sentry"
)

// version is stamped at build time via -ldflags.
var version = "dev"

var (
	rootCmd = &cobra.Command{
		Use:   "sentrydeck",
		Short: "A console for demonstrating runtime security enforcement on Kubernetes",
		Long: `SentryDeck runs security demonstrations against a Kubernetes cluster
protected by a Sentry controller: process interception, attack
simulation, data loss prevention, policy modes, and admission control.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the console HTTP server",
		Long:  `Starts the WebSocket and REST server. Blocks until the server stops.`,
		RunE:  runServe,
	}

	diagnoseCmd = &cobra.Command{
		Use:   "diagnose",
		Short: "Run environment diagnostics once and print the report",
		Long: `Probes the cluster, the demo namespace, and the Sentry controller,
prints the JSON report to stdout, and exits non-zero when any check fails.`,
		RunE: runDiagnose,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the console version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
)

func main() {
	logger, closeFn, err := logging.New(logging.Config{
		Service: "console",
		LogDir:  os.Getenv("SENTRYDECK_LOG_DIR"),
	})
	if err != nil {
		log.Fatalf("Error setting up logging: %v", err)
	}
	defer closeFn()
	slog.SetDefault(logger)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, diagnoseCmd, versionCmd)
}

func consoleConfigFromEnv() console.Config {
	return console.Config{
		ConfigPath:     getEnvString("SENTRYDECK_CONFIG", "config.yaml"),
		Port:           getEnvInt("SENTRYDECK_PORT", 0),
		Namespace:      getEnvString("SENTRYDECK_NAMESPACE", "demo"),
		ManifestsDir:   getEnvString("SENTRYDECK_MANIFESTS", "manifests"),
		AuditLogPath:   os.Getenv("SENTRYDECK_AUDIT_LOG"),
		SentryURL:      os.Getenv("SENTRYDECK_SENTRY_URL"),
		SentryUsername: os.Getenv("SENTRYDECK_SENTRY_USERNAME"),
		SentryPassword: os.Getenv("SENTRYDECK_SENTRY_PASSWORD"),
		OTelEndpoint:   getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "sentrydeck-otel-collector:4317"),
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := consoleConfigFromEnv()

	slog.Info("Starting SentryDeck console",
		"version", version,
		"config", cfg.ConfigPath,
		"namespace", cfg.Namespace,
	)

	svc, err := console.New(cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to create console: %w", err)
	}
	return svc.Run()
}

// runDiagnose wires the executors directly, without the HTTP layer, and
// prints the report as JSON.
func runDiagnose(cmd *cobra.Command, args []string) error {
	cfg := consoleConfigFromEnv()

	var store *config.Store
	if _, err := os.Stat(cfg.ConfigPath); err == nil {
		store, err = config.NewStore(cfg.ConfigPath)
		if err != nil {
			return err
		}
	} else {
		fileCfg, _ := config.Parse(nil)
		fileCfg.Namespaces = []string{cfg.Namespace}
		store = config.NewStaticStore(fileCfg)
	}
	fileCfg := store.Get()

	kube := kubectl.NewRunner(kubectl.Config{
		Binary:     fileCfg.Kubectl.Binary,
		Kubeconfig: fileCfg.Kubectl.Kubeconfig,
		Timeout:    fileCfg.Timeout(),
		Namespaces: store,
	}, nil)

	sentryURL := cfg.SentryURL
	if sentryURL == "" {
		sentryURL = fileCfg.Sentry.URL
	}
	username := cfg.SentryUsername
	if username == "" {
		username = fileCfg.Sentry.Username
	}
	api := sentry.NewClient(sentryURL, sentry.NewCredentials(username, cfg.SentryPassword), nil)

	runner := diagnostics.NewRunner(kube, api, diagnostics.Config{Namespace: cfg.Namespace})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if !report.Success {
		return fmt.Errorf("%d of %d checks failed", report.Summary.Error, report.Summary.Total)
	}
	return nil
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
