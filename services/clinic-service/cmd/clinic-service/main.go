package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/clinicdesk/libs/config"
	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/libs/kafkax"
	"github.com/md-rashed-zaman/clinicdesk/libs/metrics"
	otelx "github.com/md-rashed-zaman/clinicdesk/libs/otel"
	"github.com/md-rashed-zaman/clinicdesk/libs/runtime"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "clinic-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

	ctx, stop := runtime.SignalContext(context.Background())
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

	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	schedMetrics := metrics.NewSchedulingMetrics(reg)

	var (
		repo   booking.Repository
		checks []runtime.ReadyCheck
	)
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; using in-memory store with demo doctors")
		repo = storage.NewMemory(demoDoctors()...)
	} else {
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{MaxConns: cfg.DBMaxConns})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		outboxRepo := outbox.NewRepository()
		repo = storage.NewPostgres(pool, outboxRepo)

		if len(cfg.KafkaBrokers) > 0 {
			writer := kafkax.NewWriter(cfg.KafkaBrokers)
			defer func() { _ = writer.Close() }()
			checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
			publisher := outbox.NewPublisher(pool, outboxRepo, writer, logger, outbox.PublisherConfig{
				PollEvery: cfg.OutboxPollEvery,
				BatchSize: 50,
			})
			go publisher.Run(ctx)
		} else {
			logger.Warn("KAFKA_BROKERS not set; appointment events stay in the outbox")
		}
	}

	limiter, redisCheck, closeLimiter := newLimiter(cfg, logger)
	defer closeLimiter()
	if redisCheck != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisCheck})
	}

	svc := booking.NewService(repo, booking.Config{
		Window:           cfg.Window,
		Location:         cfg.Location,
		AllowOverbooking: cfg.AllowOverbooking,
	}, logger, schedMetrics)
	apptHandler := handlers.NewAppointmentHandler(svc, logger)

	r := chi.NewRouter()
	r.Get("/healthz", runtime.Healthz)
	r.Get("/readyz", runtime.Readyz(checks...))
	r.Handle("/metrics", metrics.Handler(reg))
	r.Group(func(r chi.Router) {
		r.Use(
			httpx.WithCORS(httpx.APIPolicy(cfg.CORSOrigins)),
			httpx.RateLimit(limiter, logger, true),
			httpx.WithBodyLimit(64<<10),
			httpx.WithTimeout(15*time.Second),
		)
		apptHandler.Mount(r, cfg.StaffSecret)
	})

	httpHandler := httpx.Chain(r,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(httpHandler, "clinic"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "overbooking", cfg.AllowOverbooking)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func newLimiter(cfg serviceConfig, logger *slog.Logger) (httpx.Limiter, func(context.Context) error, func()) {
	if cfg.RedisAddr == "" {
		return httpx.NewMemoryLimiter(cfg.RateLimitPerMinute, time.Minute), nil, func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	logger.Info("rate limiter backed by redis", "addr", cfg.RedisAddr)
	ping := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	return httpx.NewRedisLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "clinic:rl"), ping, func() { _ = rdb.Close() }
}
