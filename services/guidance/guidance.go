// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package guidance wires the spiritual guidance service together: the
// HTTP API, the session engine with its astrology/LLM/media providers,
// the credit store, the Kafka producer, and the cleanup scheduler.
package guidance

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
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

	"github.com/JyotiFlowAI/jyotiflow/cfg"
	"github.com/JyotiFlowAI/jyotiflow/pkg/artifacts"
	"github.com/JyotiFlowAI/jyotiflow/pkg/cache"
	"github.com/JyotiFlowAI/jyotiflow/pkg/db"
	"github.com/JyotiFlowAI/jyotiflow/pkg/events"
	"github.com/JyotiFlowAI/jyotiflow/pkg/secrets"
	"github.com/JyotiFlowAI/jyotiflow/services/astrology"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/auth"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/cleanup"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/engine"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/observability"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/routes"
	"github.com/JyotiFlowAI/jyotiflow/services/guidance/store"
	"github.com/JyotiFlowAI/jyotiflow/services/llm"
	"github.com/JyotiFlowAI/jyotiflow/services/media"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the guidance service lifecycle.
//
// # Description
//
// Run blocks serving HTTP until Shutdown is called or the server fails.
// Shutdown drains in-flight requests, stops the cleanup scheduler, and
// closes the database, cache, and Kafka producer.
//
// # Thread Safety
//
// Run must be called at most once. Shutdown and ApplyConfig may be
// called from other goroutines while Run blocks.
type Service interface {
	Run() error
	Shutdown(ctx context.Context) error

	// ApplyConfig propagates a hot-reloaded configuration to the parts
	// of the running service that can honor it without a restart
	// (currently session pricing). Connection-level settings (Postgres,
	// Kafka, listen address) still require a restart.
	ApplyConfig(config *cfg.Config)
}

// =============================================================================
// Implementation
// =============================================================================

type service struct {
	config  *cfg.Config
	logger  *slog.Logger
	metrics *observability.GuidanceMetrics

	postgres  *db.Postgres
	cache     *cache.Cache
	publisher events.Publisher
	scheduler *cleanup.Scheduler
	engine    *engine.Engine

	router        *gin.Engine
	server        *http.Server
	tracerCleanup func(context.Context)
}

// New builds a ready-to-run guidance service from config.
//
// External providers degrade instead of failing startup where the
// product allows it: missing media credentials disable audio/video
// (sessions still produce text), missing Kafka brokers disable events.
// Postgres, Prokerala, and the LLM are required.
func New(config *cfg.Config, logger *slog.Logger) (Service, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &service{
		config:  config,
		logger:  logger,
		metrics: observability.InitMetrics(),
	}

	cleanupTracer, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	s.tracerCleanup = cleanupTracer

	users, sessions, err := s.initStores()
	if err != nil {
		s.close()
		return nil, err
	}

	charts, err := s.initAstrology()
	if err != nil {
		s.close()
		return nil, err
	}

	llmClient, personas, err := s.initLLM()
	if err != nil {
		s.close()
		return nil, err
	}

	mediaPipeline, agora, artifactStore, err := s.initMedia()
	if err != nil {
		s.close()
		return nil, err
	}

	s.publisher = s.initPublisher()

	var mediaRunner engine.MediaRunner
	if mediaPipeline != nil {
		mediaRunner = mediaPipeline
	}
	eng, err := engine.New(engine.Options{
		Config:    config,
		Users:     users,
		Sessions:  sessions,
		Charts:    charts,
		LLM:       llmClient,
		Personas:  personas,
		Media:     mediaRunner,
		Publisher: s.publisher,
		Metrics:   s.metrics,
		Logger:    logger,
	})
	if err != nil {
		s.close()
		return nil, fmt.Errorf("init engine: %w", err)
	}
	s.engine = eng

	provider, err := s.initAuth()
	if err != nil {
		s.close()
		return nil, err
	}

	if err := s.initScheduler(sessions, users, artifactStore); err != nil {
		s.close()
		return nil, err
	}

	s.initRouter(routes.Deps{
		Config:    config,
		Users:     users,
		Sessions:  sessions,
		Provider:  provider,
		Engine:    eng,
		Agora:     agora,
		Artifacts: artifactStore,
		Metrics:   s.metrics,
	})

	return s, nil
}

// Run starts the HTTP server and blocks until shutdown or failure.
func (s *service) Run() error {
	addr := s.config.HTTP.Host + ":" + s.config.HTTP.Port
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("guidance service listening", "addr", addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains the server and releases all resources.
func (s *service) Shutdown(ctx context.Context) error {
	var firstErr error
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			firstErr = fmt.Errorf("http shutdown: %w", err)
		}
	}
	s.close()
	if s.tracerCleanup != nil {
		s.tracerCleanup(ctx)
	}
	return firstErr
}

func (s *service) ApplyConfig(config *cfg.Config) {
	if config == nil {
		return
	}
	s.engine.UpdateConfig(config)
	s.logger.Info("configuration change applied", "prices", config.Credits.Prices)
}

// close releases everything New has opened so far. Safe on a partially
// initialized service.
func (s *service) close() {
	if s.scheduler != nil {
		if err := s.scheduler.Stop(); err != nil {
			s.logger.Warn("cleanup scheduler stop failed", "error", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Warn("kafka producer close failed", "error", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("cache close failed", "error", err)
		}
	}
	if s.postgres != nil {
		if err := s.postgres.Close(); err != nil {
			s.logger.Warn("postgres close failed", "error", err)
		}
	}
}

// =============================================================================
// Component Initialization
// =============================================================================

func (s *service) initStores() (store.UserStore, store.SessionStore, error) {
	postgres, err := db.NewPostgres(s.config)
	if err != nil {
		return nil, nil, fmt.Errorf("init postgres: %w", err)
	}
	s.postgres = postgres

	if err := postgres.Migrate(&store.User{}, &store.GuidanceSession{}); err != nil {
		return nil, nil, fmt.Errorf("migrate schema: %w", err)
	}

	gdb, err := postgres.Db()
	if err != nil {
		return nil, nil, fmt.Errorf("open gorm handle: %w", err)
	}
	return store.NewUserStore(gdb), store.NewSessionStore(gdb), nil
}

func (s *service) initAstrology() (astrology.ChartProvider, error) {
	clientSecret, err := secrets.New(s.config.Prokerala.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("prokerala client secret: %w", err)
	}

	cacheConf := cache.DefaultConfig()
	cacheConf.Path = s.config.Cache.Path
	cacheConf.InMemory = s.config.Cache.InMemory
	cacheConf.Logger = s.logger
	chartCache, err := cache.Open(cacheConf)
	if err != nil {
		s.logger.Warn("chart cache unavailable, charts will not be cached", "error", err)
		chartCache = nil
	}
	s.cache = chartCache

	cacheTTL := time.Duration(s.config.Cache.TTLMinutes) * time.Minute
	charts, err := astrology.NewClient(s.config.Prokerala, clientSecret, chartCache, cacheTTL)
	if err != nil {
		return nil, fmt.Errorf("init prokerala client: %w", err)
	}
	return charts, nil
}

func (s *service) initLLM() (llm.Client, *llm.Personas, error) {
	apiKey, err := secrets.New(s.config.OpenAI.APIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("openai api key: %w", err)
	}
	client, err := llm.NewOpenAIClient(apiKey, s.config.OpenAI.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("init openai client: %w", err)
	}

	personas, err := llm.LoadPersonas(s.config.Prompts.PersonaFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load personas: %w", err)
	}
	return client, personas, nil
}

// initMedia builds the audio/video pipeline, the Agora token builder, and
// the artifact store. Any of them may come back nil when the credentials
// are absent.
func (s *service) initMedia() (*media.Pipeline, *media.AgoraTokenBuilder, artifacts.Store, error) {
	var synth media.Synthesizer
	if s.config.ElevenLabs.APIKey != "" {
		apiKey, err := secrets.New(s.config.ElevenLabs.APIKey)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("elevenlabs api key: %w", err)
		}
		client, err := media.NewElevenLabsClient(s.config.ElevenLabs, apiKey)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init elevenlabs client: %w", err)
		}
		synth = client
	} else {
		s.logger.Info("elevenlabs key not set, audio generation disabled")
	}

	var avatar media.AvatarMaker
	if s.config.DID.APIKey != "" {
		client, err := media.NewDIDClient(
			s.config.DID.BaseURL,
			s.config.DID.APIKey,
			s.config.DID.PresenterURL,
			time.Duration(s.config.DID.PollSeconds)*time.Second,
			time.Duration(s.config.DID.DeadlineMinutes)*time.Minute,
		)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init d-id client: %w", err)
		}
		avatar = client
	} else {
		s.logger.Info("d-id key not set, video generation disabled")
	}

	var agora *media.AgoraTokenBuilder
	if s.config.Agora.AppID != "" && s.config.Agora.AppCertificate != "" {
		builder, err := media.NewAgoraTokenBuilder(s.config.Agora.AppID, s.config.Agora.AppCertificate)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init agora token builder: %w", err)
		}
		agora = builder
	} else {
		s.logger.Info("agora credentials not set, live tokens disabled")
	}

	artifactStore, err := s.initArtifacts()
	if err != nil {
		// Earlier deployments may have left artifacts behind, but without
		// media generation the store is not load-bearing.
		if synth != nil || avatar != nil {
			return nil, nil, nil, err
		}
		s.logger.Warn("artifact store unavailable", "error", err)
		artifactStore = nil
	}

	if synth == nil && avatar == nil {
		return nil, agora, artifactStore, nil
	}

	observe := func(provider string, seconds float64, success bool) {
		s.metrics.RecordProviderCall(observability.Provider(provider), seconds, success)
	}
	pipeline, err := media.NewPipeline(synth, avatar, artifactStore, s.logger,
		media.WithProviderObserver(observe))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init media pipeline: %w", err)
	}
	return pipeline, agora, artifactStore, nil
}

func (s *service) initArtifacts() (artifacts.Store, error) {
	switch s.config.Artifacts.Backend {
	case "gcs":
		gcs, err := artifacts.NewGCSStore(context.Background(), s.config.Artifacts.GCSBucket, "")
		if err != nil {
			return nil, fmt.Errorf("init gcs artifact store: %w", err)
		}
		return gcs, nil
	default:
		local, err := artifacts.NewLocalStore(s.config.Artifacts.LocalRoot)
		if err != nil {
			return nil, fmt.Errorf("init local artifact store: %w", err)
		}
		return local, nil
	}
}

func (s *service) initPublisher() events.Publisher {
	if len(s.config.Kafka.Brokers) == 0 {
		s.logger.Info("kafka brokers not set, session events disabled")
		return events.NopPublisher{}
	}
	producer, err := events.NewProducer(s.config)
	if err != nil {
		s.logger.Warn("kafka producer init failed, session events disabled", "error", err)
		return events.NopPublisher{}
	}
	return producer
}

func (s *service) initAuth() (*auth.JWTProvider, error) {
	secret, err := secrets.New(s.config.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("jwt secret: %w", err)
	}
	provider, err := auth.NewJWTProvider(secret,
		s.config.Auth.Issuer,
		s.config.Auth.Audience,
		time.Duration(s.config.Auth.AccessTTLMinutes)*time.Minute,
		time.Duration(s.config.Auth.RefreshTTLHours)*time.Hour,
	)
	if err != nil {
		return nil, fmt.Errorf("init jwt provider: %w", err)
	}
	return provider, nil
}

func (s *service) initScheduler(sessions store.SessionStore, users store.UserStore,
	artifactStore artifacts.Store) error {

	cleaner, err := cleanup.NewCleaner(sessions, users, s.publisher, s.metrics, s.logger,
		cleanup.WithMaxPendingAge(time.Duration(s.config.Cleanup.PendingTTLMinutes)*time.Minute),
		cleanup.WithBatchSize(s.config.Cleanup.SessionBatchSize),
		cleanup.WithArtifactStore(artifactStore),
	)
	if err != nil {
		return fmt.Errorf("init cleaner: %w", err)
	}

	schedConf := cleanup.DefaultSchedulerConfig()
	if s.config.Cleanup.IntervalMinutes > 0 {
		schedConf.Interval = time.Duration(s.config.Cleanup.IntervalMinutes) * time.Minute
	}
	s.scheduler = cleanup.NewScheduler(cleaner, schedConf, s.logger)
	if err := s.scheduler.Start(context.Background()); err != nil {
		return fmt.Errorf("start cleanup scheduler: %w", err)
	}
	return nil
}

func (s *service) initRouter(deps routes.Deps) {
	if s.config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware("guidance-service"))

	routes.SetupRoutes(s.router, deps)
}

// initTracer sets up the OTLP trace exporter. Returns a no-op cleanup
// when no collector endpoint is configured.
func (s *service) initTracer() (func(context.Context), error) {
	endpoint := s.config.Telemetry.OTLPEndpoint
	if endpoint == "" {
		return func(context.Context) {}, nil
	}

	ctx := context.Background()
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("guidance-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			s.logger.Error("otlp exporter shutdown failed", "error", err)
		}
	}, nil
}

var _ Service = (*service)(nil)
