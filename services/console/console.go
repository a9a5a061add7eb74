// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package console assembles the SentryDeck demo console service.
//
// The console brokers between a browser and a Kubernetes demo
// environment protected by a Sentry controller. It exposes:
//   - a WebSocket action loop for demos, platform lifecycle, and
//     diagnostics
//   - a REST surface for the demo catalog, configuration, cluster
//     state, and Sentry administration
//   - Prometheus metrics and OTLP traces
//
// # Enterprise Integration
//
// The console supports dependency injection via extensions.ServiceOptions,
// enabling downstream builds to provide custom implementations of:
//   - AuthProvider: Custom authentication (JWT, API keys)
//   - AuditLogger: Compliance audit logging for every kubectl command
//
// # Usage
//
// Open source (uses no-op defaults):
//
//	cfg := console.Config{ConfigPath: "config.yaml"}
//	svc, err := console.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package console

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/SentryDeck/pkg/extensions"
	"github.com/AleutianAI/SentryDeck/services/console/config"
	"github.com/AleutianAI/SentryDeck/services/console/handlers"
	"github.com/AleutianAI/SentryDeck/services/console/observability"
	"github.com/AleutianAI/SentryDeck/services/console/routes"
	"github.com/AleutianAI/SentryDeck/services/console/sessions"
	"github.com/AleutianAI/SentryDeck/services/demos"
	"github.com/AleutianAI/SentryDeck/services/diagnostics"
	"github.com/AleutianAI/SentryDeck/services/kubectl"
	"github.com/AleutianAI/SentryDeck/services/lifecycle"
	"github.com/AleutianAI/SentryDeck/services/sentry"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the console service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds console configuration options.
//
// The YAML file named by ConfigPath carries the operational settings
// (port, kubectl binary, namespace allowlist, controller URL); fields
// here override it or carry what must never live in a file.
type Config struct {
	// ConfigPath is the YAML configuration file. Empty runs on built-in
	// defaults without hot reload.
	ConfigPath string

	// Port overrides the file's server port when non-zero.
	Port int

	// Namespace is the demo namespace. Default: "demo".
	Namespace string

	// ManifestsDir holds the demo workload manifests. Default: "manifests".
	ManifestsDir string

	// AuditLogPath, when set, appends one JSON line per kubectl command.
	AuditLogPath string

	// SentryURL overrides the file's controller URL when non-empty.
	SentryURL string

	// SentryUsername overrides the file's username when non-empty.
	SentryUsername string

	// SentryPassword is the controller password. Never read from the
	// config file; pass it from the environment.
	SentryPassword string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "sentrydeck-otel-collector:4317".
	OTelEndpoint string

	// EnableMetrics enables the Prometheus /metrics endpoint.
	// Default: true.
	EnableMetrics bool

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	// Default: uses GIN_MODE env var or "debug".
	GinMode string
}

// =============================================================================
// Implementation
// =============================================================================

// service wires the kubectl runner, Sentry client, demo registry,
// lifecycle manager, diagnostics pipeline, and session manager behind
// one Gin router. All fields are read-only after New() returns.
type service struct {
	config        Config
	opts          extensions.ServiceOptions
	router        *gin.Engine
	store         *config.Store
	kube          kubectl.Executor
	sentryAPI     sentry.API
	handler       *handlers.Handler
	tracerCleanup func(context.Context)
	watchCancel   context.CancelFunc
	audit         *extensions.FileAuditLogger
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a console Service with the given configuration.
//
// # Description
//
// New initializes all console components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Loads the YAML configuration and starts the hot-reload watcher
//  5. Builds the kubectl runner over the namespace allowlist
//  6. Builds the Sentry controller client
//  7. Sets up HTTP routes with extension options
//
// If opts is nil, DefaultOptions() is used (no-op implementations).
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	if opts != nil {
		s.opts = *opts
	} else {
		s.opts = extensions.DefaultOptions()
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	var metrics *observability.ConsoleMetrics
	if s.config.EnableMetrics {
		metrics = observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	if err := s.initStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := s.initAudit(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	s.initKubectl(metrics)
	s.initSentry()

	s.handler = &handlers.Handler{
		Sessions:    sessions.NewManager(),
		Registry:    demos.NewRegistry(),
		Lifecycle:   lifecycle.NewManager(s.kube, s.config.Namespace, s.config.ManifestsDir),
		Diagnostics: diagnostics.NewRunner(s.kube, s.sentryAPI, diagnostics.Config{Namespace: s.config.Namespace}),
		Kube:        s.kube,
		Sentry:      s.sentryAPI,
		Store:       s.store,
		Metrics:     metrics,
		Namespace:   s.config.Namespace,
		Auth:        s.opts.AuthProvider,
	}

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
// Cleanup is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	fileCfg := s.store.Get()
	port := s.config.Port
	if port == 0 {
		port = fileCfg.Server.Port
	}

	addr := fmt.Sprintf("%s:%d", fileCfg.Server.Host, port)
	slog.Info("Starting console server", "addr", addr, "namespace", s.config.Namespace)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing. Callers must not
// modify the routes.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Namespace == "" {
		cfg.Namespace = "demo"
	}
	if cfg.ManifestsDir == "" {
		cfg.ManifestsDir = "manifests"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "sentrydeck-otel-collector:4317"
	}
	cfg.EnableMetrics = true
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// Uses an insecure gRPC connection, appropriate for the in-cluster
// collector. Returns a cleanup function to call on shutdown.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("sentrydeck-console")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initStore loads the YAML configuration and starts the hot-reload
// watcher. Without a ConfigPath the service runs on static defaults.
func (s *service) initStore() error {
	if s.config.ConfigPath == "" {
		cfg, err := config.Parse(nil)
		if err != nil {
			return err
		}
		cfg.Namespaces = []string{s.config.Namespace}
		s.store = config.NewStaticStore(cfg)
		slog.Info("No config file given, running on defaults",
			"namespace", s.config.Namespace)
		return nil
	}

	store, err := config.NewStore(s.config.ConfigPath)
	if err != nil {
		return err
	}
	s.store = store

	ctx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	if err := store.Watch(ctx); err != nil {
		slog.Warn("Config hot reload unavailable", "error", err)
	}
	return nil
}

// initAudit opens the file audit logger when a path is configured and no
// custom logger was injected.
func (s *service) initAudit() error {
	if s.config.AuditLogPath == "" {
		return nil
	}
	if _, isNop := s.opts.AuditLogger.(*extensions.NopAuditLogger); !isNop && s.opts.AuditLogger != nil {
		// An injected logger wins over the file path.
		return nil
	}
	audit, err := extensions.NewFileAuditLogger(s.config.AuditLogPath)
	if err != nil {
		return err
	}
	s.audit = audit
	s.opts.AuditLogger = audit
	slog.Info("Audit log enabled", "path", s.config.AuditLogPath)
	return nil
}

// initKubectl builds the command runner over the live namespace
// allowlist. The store is the NamespaceSource, so a config hot reload
// changes what commands may target without a restart.
func (s *service) initKubectl(metrics *observability.ConsoleMetrics) {
	fileCfg := s.store.Get()

	var recorder kubectl.Recorder
	if metrics != nil {
		recorder = &observability.CommandRecorder{Metrics: metrics}
	}

	s.kube = kubectl.NewRunner(kubectl.Config{
		Binary:     fileCfg.Kubectl.Binary,
		Kubeconfig: fileCfg.Kubectl.Kubeconfig,
		Timeout:    fileCfg.Timeout(),
		Namespaces: s.store,
		Audit:      s.opts.AuditLogger,
		Recorder:   recorder,
	}, nil)
}

// initSentry builds the controller client. The password is held in
// secure memory by the credentials type; it never appears in the config
// snapshot served over HTTP.
func (s *service) initSentry() {
	fileCfg := s.store.Get()

	url := s.config.SentryURL
	if url == "" {
		url = fileCfg.Sentry.URL
	}
	username := s.config.SentryUsername
	if username == "" {
		username = fileCfg.Sentry.Username
	}

	creds := sentry.NewCredentials(username, s.config.SentryPassword)
	s.sentryAPI = sentry.NewClient(url, creds, nil)
	slog.Info("Sentry controller client initialized", "url", url, "username", username)
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("sentrydeck-console"))

	routes.SetupRoutes(s.router, s.handler)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.watchCancel != nil {
		s.watchCancel()
	}
	if s.store != nil {
		s.store.Stop()
	}
	if s.audit != nil {
		if err := s.audit.Close(); err != nil {
			slog.Warn("audit log close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
