package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicops/libs/auth"
	"github.com/md-rashed-zaman/clinicops/libs/config"
	"github.com/md-rashed-zaman/clinicops/libs/httpx"
	otelx "github.com/md-rashed-zaman/clinicops/libs/otel"
	"github.com/md-rashed-zaman/clinicops/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("gateway stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		return err
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	secret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		return err
	}
	upstreams, err := upstreamsFromEnv()
	if err != nil {
		return err
	}
	mux := runtime.NewBaseMuxWithReady()
	registerRoutes(mux, upstreams, auth.NewVerifier(secret, config.String("JWT_ISSUER", "")))

	limit, err := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if err != nil {
		return err
	}
	var limiter httpx.Limiter
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
		defer func() { _ = rdb.Close() }()
		limiter = httpx.NewRedisRateLimiter(rdb, limit, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:gateway:"))
		logger.Info("rate limiting enabled (redis)", "per_minute", limit, "redis_addr", addr)
	} else {
		limiter = httpx.NewRateLimiter(limit, time.Minute)
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limit)
	}

	timeout, err := config.Duration("REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		return err
	}
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(timeout),
		httpx.WithRateLimit(limiter, logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)),
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return runtime.ServeHTTP(ctx, logger, srv, 10*time.Second)
}

type upstreams struct {
	scheduling   *url.URL
	notification *url.URL
}

func upstreamsFromEnv() (upstreams, error) {
	scheduling, err := parseUpstream("SCHEDULING_URL", "http://scheduling-service:8081")
	if err != nil {
		return upstreams{}, err
	}
	notification, err := parseUpstream("NOTIFICATION_URL", "http://notification-service:8085")
	if err != nil {
		return upstreams{}, err
	}
	return upstreams{scheduling: scheduling, notification: notification}, nil
}

func parseUpstream(key, fallback string) (*url.URL, error) {
	raw := config.String(key, fallback)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s: invalid upstream url %q", key, raw)
	}
	return u, nil
}

var clinicRoles = []string{"employee", "patient", "adm"}

// registerRoutes rejects unauthenticated calls at the edge; the services
// verify the forwarded token again.
func registerRoutes(mux *http.ServeMux, up upstreams, verifier *auth.Verifier) {
	transport := otelhttp.NewTransport(http.DefaultTransport)
	schedulingProxy := httputil.NewSingleHostReverseProxy(up.scheduling)
	schedulingProxy.Transport = transport
	notificationProxy := httputil.NewSingleHostReverseProxy(up.notification)
	notificationProxy.Transport = transport

	bearer := auth.RequireBearer(verifier)
	guard := func(next http.Handler) http.Handler {
		return bearer(auth.RequireRole(next, clinicRoles...))
	}
	registerProxy(mux, "/api/v1/availability", guard(schedulingProxy))
	registerProxy(mux, "/api/v1/appointments", guard(schedulingProxy))
	registerProxy(mux, "/api/v1/notifications", guard(notificationProxy))
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}
