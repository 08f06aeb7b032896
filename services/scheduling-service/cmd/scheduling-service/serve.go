package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicops/libs/auth"
	"github.com/md-rashed-zaman/clinicops/libs/config"
	"github.com/md-rashed-zaman/clinicops/libs/db"
	"github.com/md-rashed-zaman/clinicops/libs/grpcx"
	"github.com/md-rashed-zaman/clinicops/libs/httpx"
	"github.com/md-rashed-zaman/clinicops/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicops/libs/otel"
	"github.com/md-rashed-zaman/clinicops/libs/runtime"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/notify"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/service"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/storage"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/migrations"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "scheduling-service"

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, gRPC health server and outbox relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := runtime.SignalContext()
			defer stop()
			return runServer(ctx)
		},
	}
}

func runServer(ctx context.Context) error {
	name := config.String("SERVICE_NAME", serviceName)
	logger := runtime.NewLogger(name)

	port, err := config.Port("PORT", "8081")
	if err != nil {
		return err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9081")
	if err != nil {
		return err
	}

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(name))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := openPool(ctx)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		return err
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", false) {
		applied, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
		if err != nil {
			return fmt.Errorf("migrate on start: %w", err)
		}
		logger.Info("migrations applied", "count", applied)
	}

	zone, err := clock.Load(config.String("CLINIC_TIMEZONE", clock.DefaultZone))
	if err != nil {
		return err
	}
	hours, err := businessHours(zone)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(reg)

	brokers := config.String("KAFKA_BROKERS", "")
	pollEvery, err := config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return err
	}
	batchSize, err := config.Int("OUTBOX_BATCH_SIZE", 50)
	if err != nil {
		return err
	}
	outboxRepo := outbox.NewRepository(pool)
	metrics.RegisterOutboxBacklog(reg, outboxRepo.Backlog)
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: pollEvery,
		BatchSize: batchSize,
		Observe:   recorder.OutboxBatch,
	})
	go publisher.Run(ctx)

	buffer, err := config.Int("NOTIFY_BUFFER", 256)
	if err != nil {
		return err
	}
	notifier := notify.NewAsync(notify.NewOutboxDispatcher(outboxRepo, zone.Location(), logger, recorder), buffer, logger)
	defer notifier.Close()

	svc := service.New(service.Deps{
		Store:     storage.NewAppointmentRepository(pool),
		Directory: storage.NewDirectoryRepository(pool),
		Hours:     hours,
		Zone:      zone,
		Notifier:  notifier,
		Metrics:   recorder,
		Logger:    logger,
	})

	secret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		return err
	}
	verifier := auth.NewVerifier(secret, config.String("JWT_ISSUER", ""))

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	limiter, limiterCheck, closeLimiter, err := rateLimiter(logger)
	if err != nil {
		return err
	}
	defer closeLimiter()
	if limiterCheck != nil {
		checks = append(checks, *limiterCheck)
	}

	api := http.NewServeMux()
	handlers.NewAppointmentHandler(svc, zone.Location(), logger).Register(api)

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/api/", httpx.Chain(api,
		auth.RequireBearer(verifier),
		httpx.WithRateLimit(limiter, logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)),
	))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	timeout, err := config.Duration("HTTP_REQUEST_TIMEOUT", 15*time.Second)
	if err != nil {
		return err
	}
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(timeout),
	)
	handler = otelhttp.NewHandler(handler, "scheduling")

	grpcSrv := grpcx.NewServer(logger)
	grpcSrv.SetServing("", true)
	grpcSrv.SetServing(name, true)
	go func() {
		if err := grpcSrv.Serve(ctx, ":"+grpcPort); err != nil {
			logger.Error("grpc health server failed", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return runtime.ServeHTTP(ctx, logger, srv, 10*time.Second)
}

func openPool(ctx context.Context) (*db.Pool, error) {
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	maxConns, err := config.Int("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, err
	}
	return db.Open(ctx, dbURL, db.PoolOptions{MaxConns: int32(maxConns)})
}

func businessHours(zone *clock.Zone) (*availability.BusinessHours, error) {
	open, err := availability.ParseClock(config.String("CLINIC_OPEN", "06:00"))
	if err != nil {
		return nil, fmt.Errorf("CLINIC_OPEN: %w", err)
	}
	closeAt, err := availability.ParseClock(config.String("CLINIC_CLOSE", "22:00"))
	if err != nil {
		return nil, fmt.Errorf("CLINIC_CLOSE: %w", err)
	}
	return availability.NewBusinessHours(zone, open, closeAt)
}

// rateLimiter uses Redis when REDIS_ADDR is set so limits hold across replicas.
func rateLimiter(logger *slog.Logger) (httpx.Limiter, *runtime.ReadyCheck, func(), error) {
	limit, err := config.Int("RATE_LIMIT_REQUESTS", 120)
	if err != nil {
		return nil, nil, nil, err
	}
	window, err := config.Duration("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, nil, nil, err
	}

	addr := config.String("REDIS_ADDR", "")
	if addr == "" {
		logger.Info("rate limiter using in-memory store")
		return httpx.NewRateLimiter(limit, window), nil, func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
	})
	check := runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)}
	return httpx.NewRedisRateLimiter(rdb, limit, window, "ratelimit:"+serviceName+":"), &check, func() { _ = rdb.Close() }, nil
}
