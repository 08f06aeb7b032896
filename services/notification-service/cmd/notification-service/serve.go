package main

import (
	"context"
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
	"github.com/md-rashed-zaman/clinicops/services/notification-service/internal/consumer"
	"github.com/md-rashed-zaman/clinicops/services/notification-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicops/services/notification-service/internal/inbox"
	"github.com/md-rashed-zaman/clinicops/services/notification-service/internal/storage"
	"github.com/md-rashed-zaman/clinicops/services/notification-service/migrations"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "notification-service"

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume notification requests and serve the inbox API",
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

	port, err := config.Port("PORT", "8085")
	if err != nil {
		return err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9085")
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
			return err
		}
		logger.Info("migrations applied", "count", applied)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clinic",
		Subsystem: "notifications",
		Name:      "consumed_total",
		Help:      "Notification requests consumed, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(consumed)

	notifications := storage.NewRepository(pool)
	brokers := config.String("KAFKA_BROKERS", "")
	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if brokers != "" {
		eventConsumer := consumer.New(logger, pool, inbox.NewRepository(), consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", serviceName),
			Topic:   config.String("KAFKA_CONSUME_TOPIC", consumer.Topic),
			Observe: func(outcome string) { consumed.WithLabelValues(outcome).Inc() },
		}, consumer.StoreNotices(notifications, logger))
		go eventConsumer.Run(ctx)
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	} else {
		logger.Warn("notification consumer disabled (no kafka brokers configured)")
	}

	secret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		return err
	}
	api := http.NewServeMux()
	handlers.NewNotificationHandler(notifications, logger).Register(api)

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/api/", auth.RequireBearer(auth.NewVerifier(secret, config.String("JWT_ISSUER", "")))(api))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	handler = otelhttp.NewHandler(handler, "notification")

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
	return db.Open(ctx, dbURL, db.PoolOptions{})
}
