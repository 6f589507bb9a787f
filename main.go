package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	alertapp "sensorfleet-cloud/internal/alerts/application"
	alertrepo "sensorfleet-cloud/internal/alerts/infrastructure/postgres"
	alertredis "sensorfleet-cloud/internal/alerts/infrastructure/redis"
	alerthttp "sensorfleet-cloud/internal/alerts/interfaces/http"
	"sensorfleet-cloud/internal/audit"
	"sensorfleet-cloud/internal/auth"
	authrepo "sensorfleet-cloud/internal/auth/postgres"
	"sensorfleet-cloud/internal/config"
	"sensorfleet-cloud/internal/observability/metrics"
	telemetryapp "sensorfleet-cloud/internal/telemetry/application"
	telemetryrepo "sensorfleet-cloud/internal/telemetry/infrastructure/postgres"
	telemetryamqp "sensorfleet-cloud/internal/telemetry/interfaces/amqp"
	telemetryhttp "sensorfleet-cloud/internal/telemetry/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db open error", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal("db ping error", zap.Error(err))
	}

	metrics.Init()

	directory := authrepo.NewDirectory(db)
	guard, err := auth.NewGuard([]byte(cfg.JWTSecret), directory, directory)
	if err != nil {
		logger.Fatal("auth guard error", zap.Error(err))
	}
	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware, err := auth.NewMiddleware(guard, policy, logger)
	if err != nil {
		logger.Fatal("auth middleware error", zap.Error(err))
	}

	auditRecorder := audit.NewRecorder(audit.NewRepository(db), logger)

	sensorRepo := telemetryrepo.NewSensorRepository(db)
	readingRepo := telemetryrepo.NewReadingRepository(db)
	deadLetterStore := telemetryrepo.NewDeadLetterStore(db)

	ingestService, err := telemetryapp.NewIngestService(
		sensorRepo, readingRepo, deadLetterStore,
		telemetryapp.Policy(cfg.Ingest.Policy), logger,
		telemetryapp.WithAuditor(auditRecorder),
	)
	if err != nil {
		logger.Fatal("ingest service error", zap.Error(err))
	}
	ingestHandler, err := telemetryhttp.NewIngestHandler(ingestService, logger)
	if err != nil {
		logger.Fatal("ingest handler error", zap.Error(err))
	}

	ruleRepo := alertrepo.NewRuleRepository(db)
	alertRepo := alertrepo.NewAlertRepository(db)
	eventRepo := alertrepo.NewAlertEventRepository(db)

	scanOpts := []alertapp.ScanOption{alertapp.WithScanAuditor(auditRecorder)}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		scanLock, err := alertredis.NewScanLock(client, logger)
		if err != nil {
			logger.Fatal("scan lock error", zap.Error(err))
		}
		scanOpts = append(scanOpts, alertapp.WithScanLocker(scanLock))
	}
	scanService, err := alertapp.NewScanService(sensorRepo, readingRepo, ruleRepo, alertRepo, eventRepo, logger, scanOpts...)
	if err != nil {
		logger.Fatal("scan service error", zap.Error(err))
	}
	lifecycleService, err := alertapp.NewLifecycleService(alertRepo, eventRepo, logger,
		alertapp.WithLifecycleAuditor(auditRecorder))
	if err != nil {
		logger.Fatal("lifecycle service error", zap.Error(err))
	}
	alertHandler, err := alerthttp.NewAlertHandler(lifecycleService, scanService, logger)
	if err != nil {
		logger.Fatal("alert handler error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Scan.Enabled {
		scheduler, err := alertapp.NewScheduler(scanService, cfg.Scan.Tenants, cfg.Scan.Interval, cfg.Scan.Timeout, logger)
		if err != nil {
			logger.Fatal("scheduler error", zap.Error(err))
		}
		go scheduler.Start(ctx)
	}

	if cfg.AMQP.URL != "" {
		// The queue consumer applies the bound tenant's ingest policy, which
		// may differ from the HTTP-wide default.
		queueIngest, err := telemetryapp.NewIngestService(
			sensorRepo, readingRepo, deadLetterStore,
			telemetryapp.Policy(cfg.Ingest.PolicyForTenant(cfg.AMQP.TenantID)), logger,
			telemetryapp.WithAuditor(auditRecorder),
		)
		if err != nil {
			logger.Fatal("queue ingest service error", zap.Error(err))
		}

		conn, err := amqp.Dial(cfg.AMQP.URL)
		if err != nil {
			logger.Fatal("amqp dial error", zap.Error(err))
		}
		defer conn.Close()
		channel, err := conn.Channel()
		if err != nil {
			logger.Fatal("amqp channel error", zap.Error(err))
		}
		consumer, err := telemetryamqp.NewConsumer(telemetryamqp.ConsumerConfig{
			Channel:       channel,
			Queue:         cfg.AMQP.Queue,
			Exchange:      cfg.AMQP.Exchange,
			RoutingKey:    cfg.AMQP.RoutingKey,
			PrefetchCount: cfg.AMQP.Prefetch,
			TenantID:      cfg.AMQP.TenantID,
			Service:       queueIngest,
			Logger:        logger,
		})
		if err != nil {
			logger.Fatal("amqp consumer error", zap.Error(err))
		}
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("amqp consumer stopped", zap.Error(err))
			}
		}()
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/ingest", ingestHandler)
	mux.Handle("/api/v1/alerts", alertHandler)
	mux.Handle("/api/v1/alerts/", alertHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: authMiddleware.Wrap(mux)}
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", zap.Error(err))
	}
}
