package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appintegration "github.com/oms/backend/internal/application/integration"
	"github.com/oms/backend/internal/domain/integration"
	"github.com/oms/backend/internal/infrastructure/cache"
	"github.com/oms/backend/internal/infrastructure/channels"
	"github.com/oms/backend/internal/infrastructure/config"
	"github.com/oms/backend/internal/infrastructure/couriers"
	"github.com/oms/backend/internal/infrastructure/gateway"
	"github.com/oms/backend/internal/infrastructure/logger"
	"github.com/oms/backend/internal/infrastructure/persistence"
	"github.com/oms/backend/internal/infrastructure/resilience"
	"github.com/oms/backend/internal/infrastructure/storage"
	"github.com/oms/backend/internal/infrastructure/telemetry"
	"github.com/oms/backend/internal/infrastructure/transport"
	"github.com/oms/backend/internal/infrastructure/vault"
	"github.com/oms/backend/internal/interfaces/http/handler"
	"github.com/oms/backend/internal/interfaces/http/middleware"
	"github.com/oms/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting OMS integration service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Credential vault. The master key only ever comes from the environment.
	vaultKey, err := cfg.VaultKey()
	if err != nil {
		log.Fatal("Failed to load vault key", zap.Error(err))
	}
	credVault, err := vault.NewCredentialVault(vaultKey)
	if err != nil {
		log.Fatal("Failed to initialize credential vault", zap.Error(err))
	}

	// Database connection with a zap-backed gorm logger
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Repositories
	credRepo := persistence.NewGormCredentialRepository(db.DB, credVault)
	runRepo := persistence.NewGormSyncRunRepository(db.DB)
	shipmentRepo := persistence.NewGormShipmentRepository(db.DB)

	// Telemetry
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	metrics, err := telemetry.NewIntegrationMetrics(meterProvider.Meter("integration"))
	if err != nil {
		log.Fatal("Failed to initialize integration metrics", zap.Error(err))
	}

	// Outbound gateway: retrying transport behind per-provider limiters and
	// breakers. Every provider call goes through this one path.
	client := transport.New(transport.Config{
		MaxAttempts: cfg.Transport.MaxAttempts,
		BaseDelay:   cfg.Transport.BaseDelay,
		MaxDelay:    cfg.Transport.MaxDelay,
		Timeout:     cfg.Transport.Timeout,
	}, log)
	limiters := resilience.NewLimiterRegistry(log)
	breakers := resilience.NewBreakerRegistry(resilience.DefaultBreakerConfig(), log)
	gw := gateway.New(client, limiters, breakers, log)

	// Token cache: Redis-backed when available so instances share provider
	// tokens, in-memory otherwise.
	var tokens cache.TokenProvider
	if cfg.Redis.Enabled {
		redisTokens, err := cache.NewRedisTokenCache(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		tokens = redisTokens
	} else {
		tokens = cache.NewTokenCache(log)
		log.Info("Redis disabled, using in-memory token cache")
	}

	// Label store: S3-compatible when a bucket is configured.
	var labels appintegration.LabelStore
	if cfg.Storage.Bucket != "" {
		s3Labels, err := storage.NewS3LabelStore(&cfg.Storage)
		if err != nil {
			log.Fatal("Failed to initialize label store", zap.Error(err))
		}
		labels = s3Labels
	} else {
		labels = storage.NewMemoryLabelStore()
		log.Warn("No storage bucket configured, labels are kept in memory only")
	}

	// Adapter builders close over the shared gateway and token cache.
	channelDeps := channels.Deps{Gateway: gw, Tokens: tokens, Log: log}
	courierDeps := couriers.Deps{Gateway: gw, Tokens: tokens, Log: log}
	buildChannel := func(code integration.ChannelCode, creds integration.Credentials) (integration.Channel, error) {
		return channels.New(code, creds, channelDeps)
	}
	buildTransporter := func(code integration.TransporterCode, creds integration.Credentials) (integration.Transporter, error) {
		return couriers.New(code, creds, courierDeps)
	}

	// The OMS order pipeline attaches here. Until it does, pulled orders are
	// logged so a sync run stays traceable end to end.
	sink := loggingOrderSink(log)

	// Application services
	syncService := appintegration.NewOrderSyncService(
		buildChannel, credRepo, runRepo, sink, metrics, log,
		appintegration.SyncConfig{
			PageSize:      cfg.Sync.PageSize,
			LookbackSlop:  cfg.Sync.LookbackSlop,
			InitialWindow: cfg.Sync.InitialWindow,
		},
	)
	shipmentService := appintegration.NewShipmentService(
		buildTransporter, credRepo, shipmentRepo, labels, metrics, log,
	)

	webhookSink := loggingWebhookSink(log)

	// HTTP server
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Failed to set trusted proxies", zap.Error(err))
	}

	engine.Use(
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.RequestID(),
		middleware.CORS(),
		middleware.Secure(),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		middleware.RateLimit(middleware.NewRateLimiter(100, time.Minute)),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		}),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
			MeterProvider: meterProvider,
			ServiceName:   cfg.Telemetry.ServiceName,
			Enabled:       cfg.Telemetry.Enabled,
		}),
	)

	router.NewRouter(engine).
		Register(handler.NewSyncHandler(syncService)).
		Register(handler.NewShipmentHandler(shipmentService)).
		Register(handler.NewWebhookHandler(syncService, webhookSink)).
		Register(handler.NewCredentialHandler(credRepo)).
		Register(handler.NewHealthHandler(gw, db, metrics)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Scheduled order sync
	if cfg.Sync.Enabled {
		go runSyncLoop(ctx, syncService, cfg.Sync.Interval, log)
	} else {
		log.Info("Scheduled sync disabled")
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Meter provider shutdown failed", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracer provider shutdown failed", zap.Error(err))
	}
	log.Info("Shutdown complete")
}

// loggingOrderSink records each pulled order until the real OMS pipeline is
// attached as the sink.
func loggingOrderSink(log *zap.Logger) appintegration.OrderSinkFunc {
	return func(_ context.Context, order *integration.ChannelOrder) error {
		log.Info("order ingested",
			zap.String("channel", string(order.ChannelCode)),
			zap.String("external_order_id", order.ExternalOrderID),
		)
		return nil
	}
}

// loggingWebhookSink records accepted webhook payloads without echoing them.
func loggingWebhookSink(log *zap.Logger) func(context.Context, integration.ChannelCode, []byte) error {
	return func(_ context.Context, channel integration.ChannelCode, payload []byte) error {
		log.Info("webhook accepted",
			zap.String("channel", string(channel)),
			zap.Int("payload_bytes", len(payload)),
		)
		return nil
	}
}

// runSyncLoop runs one sync pass per tick until the context is cancelled.
// Per-channel failures are recorded on their runs; only a pass that cannot
// even list credentials logs an error here.
func runSyncLoop(ctx context.Context, svc *appintegration.OrderSyncService, interval time.Duration, log *zap.Logger) {
	log.Info("Scheduled sync started", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Scheduled sync stopped")
			return
		case <-ticker.C:
			runs, err := svc.SyncAll(ctx)
			if err != nil {
				log.Error("Sync pass failed", zap.Error(err))
				continue
			}
			log.Info("Sync pass finished", zap.Int("channels", len(runs)))
		}
	}
}
