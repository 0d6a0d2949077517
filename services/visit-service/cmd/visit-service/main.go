package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/arefin-khan/visitgate/libs/config"
	"github.com/arefin-khan/visitgate/libs/db"
	"github.com/arefin-khan/visitgate/libs/httpx"
	"github.com/arefin-khan/visitgate/libs/kafkax"
	otelx "github.com/arefin-khan/visitgate/libs/otel"
	"github.com/arefin-khan/visitgate/libs/runtime"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/audit"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/calendarsync"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/handlers"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/outbox"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/scheduling"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "visit-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository(pool)
	auditRepo := audit.NewRepository(pool)
	appointments := storage.NewAppointmentRepository(pool, outboxRepo, auditRepo)
	users := storage.NewUserRepository(pool)

	var opts []scheduling.Option
	busyProvider, err := calendarsync.NewProvider(config.String("CALENDAR_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("calendar bridge init failed; busy lookups disabled", "err", err)
	} else if busyProvider != nil {
		opts = append(opts, scheduling.WithBusyProvider(busyProvider))
	}
	engine := scheduling.New(appointments, logger, opts...)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	visitHandler := handlers.NewVisitHandler(engine, users, logger)
	staffHandler := handlers.NewStaffHandler(users, auditRepo, config.String("STAFF_DEFAULT_PASSWORD", ""), logger)
	authHandler := handlers.NewAuthHandler(users, jwtSecret, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)

	api := http.NewServeMux()
	api.HandleFunc("/api/v1/appointments", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			visitHandler.Create(w, r)
		default:
			visitHandler.List(w, r)
		}
	})
	api.HandleFunc("/api/v1/appointments/transition", visitHandler.Transition)
	api.HandleFunc("/api/v1/appointments/duration", visitHandler.UpdateSchedule)
	api.HandleFunc("/api/v1/schedule/block", visitHandler.Block)
	api.HandleFunc("/api/v1/hosts/schedule", visitHandler.HostSchedule)
	api.HandleFunc("/api/v1/hosts/sync-calendar", staffHandler.SyncCalendar)
	api.HandleFunc("/api/v1/availability", visitHandler.Availability)
	api.HandleFunc("/api/v1/security/daily", visitHandler.SecurityDaily)
	api.HandleFunc("/api/v1/security/recent", visitHandler.SecurityRecent)
	api.HandleFunc("/api/v1/staff", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			staffHandler.Create(w, r)
		default:
			staffHandler.ListStaff(w, r)
		}
	})
	api.HandleFunc("/api/v1/staff/update", staffHandler.Update)
	api.HandleFunc("/api/v1/visitors", staffHandler.ListVisitors)
	api.HandleFunc("/api/v1/audit", staffHandler.RecentAudit)
	api.HandleFunc("/api/v1/profile", authHandler.Profile)

	apiMiddleware := []httpx.Middleware{
		httpx.WithBodyLimit(1 << 20),
		httpx.WithTimeout(15 * time.Second),
		handlers.WithActor(jwtSecret),
	}
	// Shared Redis window when fronting multiple instances, per-process
	// fallback otherwise.
	rateLimit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var limit httpx.Middleware
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		limit = httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, service).Middleware(logger, true)
	} else {
		limit = httpx.NewRateLimiter(rateLimit, time.Minute).Middleware()
	}
	apiMiddleware = append([]httpx.Middleware{limit}, apiMiddleware...)
	mux.Handle("/api/v1/", httpx.Chain(api, apiMiddleware...))
	// Login issues the token, so it sits outside the bearer-auth chain.
	// The longer pattern wins over the /api/v1/ subtree above.
	mux.Handle("/api/v1/auth/staff-login", httpx.Chain(
		http.HandlerFunc(authHandler.StaffLogin),
		limit,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	))

	var corsOrigins []string
	if raw := config.String("CORS_ALLOWED_ORIGINS", ""); raw != "" {
		corsOrigins = strings.Split(raw, ",")
	}
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "visit")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
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
