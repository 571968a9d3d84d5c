// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intake assembles the clinic intake webhook service.
//
// # Architecture
//
//	Dialogflow ES
//	     │ POST /webhook
//	     ▼
//	gin (otelgin, RequestID, Auth, RateLimit)
//	     │
//	     ▼
//	webhook.Handler ── Deduper (responseId replay cache)
//	     │
//	     ▼
//	router.Router ── safety ── dialog.Resolver ── intent registry ── fallback
//	     │                                                    │
//	     ▼                                                    ▼
//	flow.Engine (slot filling)                           faq.Chain
//	     │
//	     ▼
//	session.Store (memory | badger | redis) ◄── ttl.Sweeper
//
// Clinic data is read through config.Watcher so edits to the config file
// take effect without a restart.
//
// # Usage
//
//	cfg, err := config.Load("intake.yaml")
//	if err != nil {
//	    return err
//	}
//	svc, err := intake.New(cfg, nil, intake.WithConfigPath("intake.yaml"))
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//	return svc.Run(ctx)
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianIntake/pkg/extensions"
	"github.com/AleutianAI/AleutianIntake/services/intake/clinic"
	"github.com/AleutianAI/AleutianIntake/services/intake/config"
	"github.com/AleutianAI/AleutianIntake/services/intake/faq"
	"github.com/AleutianAI/AleutianIntake/services/intake/flow"
	"github.com/AleutianAI/AleutianIntake/services/intake/middleware"
	"github.com/AleutianAI/AleutianIntake/services/intake/observability"
	"github.com/AleutianAI/AleutianIntake/services/intake/router"
	"github.com/AleutianAI/AleutianIntake/services/intake/routes"
	"github.com/AleutianAI/AleutianIntake/services/intake/session"
	"github.com/AleutianAI/AleutianIntake/services/intake/ttl"
	"github.com/AleutianAI/AleutianIntake/services/intake/webhook"
)

// Version is reported by the / banner. Set at build time with -ldflags.
var Version = "dev"

// =============================================================================
// Interface
// =============================================================================

// Service is a runnable intake webhook.
type Service interface {
	// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
	Run(ctx context.Context) error

	// Router returns the gin engine, for httptest.
	Router() *gin.Engine

	// Turns returns the dialogue router, for in-process drivers such as
	// `intake simulate`.
	Turns() *router.Router

	// Close releases the store, background workers and exporters.
	Close() error
}

// Option configures New.
type Option func(*service)

// WithConfigPath enables hot reload of the clinic section from path.
func WithConfigPath(path string) Option {
	return func(s *service) { s.configPath = path }
}

// WithLogger sets the service logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRegistry sets the Prometheus registry. Default: a fresh registry,
// so several services can coexist in one test binary.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *service) { s.registry = reg }
}

// =============================================================================
// Implementation
// =============================================================================

type service struct {
	config     *config.Config
	opts       extensions.ServiceOptions
	configPath string
	logger     *slog.Logger
	registry   *prometheus.Registry

	metrics       *observability.Metrics
	store         session.Store
	redisClient   *redis.Client
	sweeper       *ttl.Sweeper
	watcher       *config.Watcher
	clinic        clinic.Source
	dedupe        *webhook.Deduper
	turns         *router.Router
	engine        *gin.Engine
	tracerCleanup func(context.Context)
}

var _ Service = (*service)(nil)

// New builds every component from cfg.
//
// # Description
//
// Components are created in dependency order: tracer, metrics, clinic
// source, session store, sweeper, FAQ backends, flow engine, router, replay
// cache, HTTP engine. Any failure releases what was already built.
//
// # Inputs
//
//   - cfg: Validated configuration, usually from config.Load.
//   - opts: Extension points. Nil uses DefaultOptions; when the default
//     no-op auth is in place and cfg.Auth.Token is set, a
//     TokenAuthProvider is installed.
//   - options: Logger, registry, config path.
func New(cfg *config.Config, opts *extensions.ServiceOptions, options ...Option) (Service, error) {
	if cfg == nil {
		return nil, errors.New("intake: nil config")
	}
	s := &service{
		config: cfg,
		logger: slog.Default(),
	}
	if opts != nil {
		s.opts = *opts
	} else {
		s.opts = extensions.DefaultOptions()
	}
	for _, o := range options {
		o(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}

	if err := s.init(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *service) init(ctx context.Context) error {
	cleanup, err := s.initTracer(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	s.metrics = observability.NewMetrics(s.registry)

	if err := s.initClinic(); err != nil {
		return err
	}
	if err := s.initStore(); err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	s.sweeper = ttl.NewSweeper(s.store,
		ttl.WithInterval(s.config.Session.SweepInterval),
		ttl.WithLogger(s.logger),
	)

	lookup, err := s.initFAQ(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize FAQ: %w", err)
	}

	engine := flow.New(s.clinic, flow.WithLogger(s.logger))
	s.turns = router.New(engine, s.store,
		router.WithFAQ(lookup),
		router.WithMetrics(s.metrics),
		router.WithLogger(s.logger),
	)

	s.dedupe, err = webhook.NewDeduper(s.config.Server.ReplayTTL, s.config.Server.ReplayCapacity)
	if err != nil {
		return err
	}

	if err := s.initAuth(); err != nil {
		return err
	}
	s.initRouter()
	return nil
}

// Replaced in tests.
var (
	newTraceResource = resource.New
	dialCollector    = grpc.NewClient
)

// initTracer installs an OTLP gRPC exporter when an endpoint is configured.
// Without one the global no-op provider stays in place.
func (s *service) initTracer(ctx context.Context) (func(context.Context), error) {
	tc := s.config.Telemetry
	if tc.Endpoint == "" {
		return nil, nil
	}

	res, err := newTraceResource(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(tc.ServiceName),
			semconv.ServiceVersionKey.String(Version),
		))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	creds := credentials.NewClientTLSFromCert(nil, "")
	if tc.Insecure {
		creds = insecure.NewCredentials()
	}
	conn, err := dialCollector(tc.Endpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	s.logger.Info("OTLP tracing enabled", "endpoint", tc.Endpoint)
	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown tracer provider", "error", err)
		}
		_ = conn.Close()
	}, nil
}

func (s *service) initClinic() error {
	if s.configPath == "" {
		s.clinic = s.config.Clinic
		return nil
	}
	w, err := config.NewWatcher(s.configPath, s.config.Clinic, config.WithWatcherLogger(s.logger))
	if err != nil {
		return err
	}
	s.watcher = w
	s.clinic = w
	return nil
}

func (s *service) initStore() error {
	sc := s.config.Session
	opts := []session.StoreOption{
		session.WithTTL(sc.TTL),
		session.WithLogger(s.logger),
		session.WithEvictionHook(s.metrics.RecordEvictions),
	}

	driver := session.StoreType(sc.Driver)
	switch driver {
	case session.StoreTypeBadger:
		opts = append(opts, session.WithBadger(session.DefaultBadgerConfig(sc.BadgerPath)))
	case session.StoreTypeRedis:
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
		})
		opts = append(opts,
			session.WithRedisClient(s.redisClient),
			session.WithRedisKeyPrefix(sc.RedisKeyPrefix),
		)
	}

	store, err := session.NewStore(driver, opts...)
	if err != nil {
		if s.redisClient != nil {
			_ = s.redisClient.Close()
			s.redisClient = nil
		}
		return err
	}
	s.store = store
	s.logger.Info("session store ready", "driver", sc.Driver)
	return nil
}

// initFAQ builds the lookup chain: local catalog, Cloud Storage catalog,
// Google Sheets. A Cloud Storage catalog that cannot be fetched is skipped
// with a warning; a bad local catalog or Sheets config fails startup.
func (s *service) initFAQ(ctx context.Context) (faq.Lookup, error) {
	fc := s.config.FAQ
	var chain faq.Chain

	if fc.CatalogFile != "" {
		catalog, err := faq.LoadFile(fc.CatalogFile)
		if err != nil {
			return nil, err
		}
		chain = append(chain, faq.NewStatic(catalog, s.clinic))
	}
	if fc.GCS != nil {
		catalog, err := faq.LoadGCS(ctx, *fc.GCS)
		if err != nil {
			s.logger.Warn("FAQ catalog unavailable, continuing without it",
				"bucket", fc.GCS.Bucket, "object", fc.GCS.Object, "error", err)
		} else {
			chain = append(chain, faq.NewStatic(catalog, s.clinic))
		}
	}
	if fc.Sheets != nil {
		sh, err := faq.NewSheets(ctx, *fc.Sheets, s.clinic, nil, faq.WithSheetsLogger(s.logger))
		if err != nil {
			return nil, err
		}
		chain = append(chain, sh)
	}

	if len(chain) == 0 {
		return faq.None{}, nil
	}
	return chain, nil
}

// initAuth installs a token provider when a token is configured and the
// caller did not supply their own provider.
func (s *service) initAuth() error {
	if s.config.Auth.Token == "" {
		if _, nop := s.opts.AuthProvider.(*extensions.NopAuthProvider); nop {
			s.logger.Warn("webhook authentication disabled: no auth token configured")
		}
		return nil
	}
	if _, nop := s.opts.AuthProvider.(*extensions.NopAuthProvider); !nop && s.opts.AuthProvider != nil {
		return nil
	}
	provider, err := extensions.NewTokenAuthProvider([]byte(s.config.Auth.Token), "dialogflow")
	if err != nil {
		return err
	}
	s.opts = s.opts.WithAuth(provider)
	return nil
}

func (s *service) initRouter() {
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), middleware.RequestID(), otelgin.Middleware(s.config.Telemetry.ServiceName))

	routes.SetupRoutes(s.engine, routes.Deps{
		Webhook:     webhook.NewHandler(s.turns, s.dedupe, s.metrics, s.logger),
		Auth:        s.opts.AuthProvider,
		Gatherer:    s.registry,
		Health:      s.health,
		RateLimit:   s.config.Server.RateLimit,
		RateBurst:   s.config.Server.RateBurst,
		ServiceName: s.config.Telemetry.ServiceName,
		Version:     Version,
		Logger:      s.logger,
	})
}

func (s *service) health(ctx context.Context) error {
	if s.redisClient != nil {
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// =============================================================================
// Service methods
// =============================================================================

func (s *service) Run(ctx context.Context) error {
	if err := s.sweeper.Start(ctx); err != nil {
		return err
	}
	if s.watcher != nil {
		if err := s.watcher.Start(ctx); err != nil {
			s.logger.Warn("clinic config hot reload disabled", "error", err)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting intake server", "port", s.config.Server.Port, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down intake server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func (s *service) Router() *gin.Engine {
	return s.engine
}

func (s *service) Turns() *router.Router {
	return s.turns
}

// Close stops workers and releases resources in reverse construction
// order. Safe to call on a partially built service.
func (s *service) Close() error {
	var errs []error
	if s.sweeper != nil {
		if err := s.sweeper.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.dedupe != nil {
		s.dedupe.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session store: %w", err))
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
	return errors.Join(errs...)
}
