package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fureverhome/pawbook/libs/auth"
	"github.com/fureverhome/pawbook/libs/config"
	"github.com/fureverhome/pawbook/libs/db"
	"github.com/fureverhome/pawbook/libs/grpcx"
	"github.com/fureverhome/pawbook/libs/httpx"
	"github.com/fureverhome/pawbook/libs/kafkax"
	otelx "github.com/fureverhome/pawbook/libs/otel"
	"github.com/fureverhome/pawbook/libs/runtime"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/availability"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/booking"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/handlers"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/lifecycle"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/metrics"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/notify"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/outbox"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/storage"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/unavailability"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8086")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9086")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext(logger)
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

	if err := run(ctx, logger, service, port, grpcPort); err != nil {
		logger.Error("scheduling service exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, service, port, grpcPort string) error {
	loc, err := time.LoadLocation(config.String("SCHEDULING_TIMEZONE", "UTC"))
	if err != nil {
		return err
	}
	secret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		return err
	}
	var verifierOpts []auth.VerifierOption
	if iss := config.String("JWT_ISSUER", ""); iss != "" {
		verifierOpts = append(verifierOpts, auth.WithIssuer(iss))
	}
	if aud := config.String("JWT_AUDIENCE", ""); aud != "" {
		verifierOpts = append(verifierOpts, auth.WithAudience(aud))
	}
	verifier, err := auth.NewVerifier(secret, verifierOpts...)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var readyChecks []runtime.ReadyCheck

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		redisDB, err := config.Int("REDIS_DB", 0)
		if err != nil {
			return err
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed; continuing", "addr", addr, "err", err)
		}
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	brokers := config.String("KAFKA_BROKERS", "")
	var store storage.Store
	var publisher *outbox.Publisher
	switch driver := config.String("STORAGE_DRIVER", "postgres"); driver {
	case "memory":
		logger.Warn("using in-memory storage; data is lost on restart")
		store = storage.NewMemoryStore()
	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return err
		}
		pool, err := db.Open(ctx, dbURL, db.Options{})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			return err
		}
		defer pool.Close()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		outboxRepo := outbox.NewRepository()
		store = storage.NewPostgresStore(pool, outboxRepo, config.String("KAFKA_TOPIC_PREFIX", "scheduling"))
		publisher = outbox.NewPublisher(pool, outboxRepo, logger, m, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		if brokers != "" {
			readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (want memory or postgres)", driver)
	}

	var cache availability.MonthCache = availability.NopCache{}
	if rdb != nil {
		ttl, err := config.Duration("MONTH_CACHE_TTL", time.Minute)
		if err != nil {
			return err
		}
		cache = availability.NewRedisMonthCache(rdb, ttl)
	}
	avail := availability.NewService(store, cache, m, logger)

	hub := notify.NewHub(m)
	sinks := []notify.Sink{hub}
	if rdb != nil {
		relay := notify.NewRedisRelay(rdb, config.String("EVENTS_CHANNEL", ""), runtime.InstanceID(), hub, logger)
		sinks = append(sinks, relay)
		go func() {
			if err := relay.Run(ctx); err != nil {
				logger.Error("event relay stopped", "err", err)
			}
		}()
	}
	queueSize, err := config.Int("EVENT_QUEUE_SIZE", 1024)
	if err != nil {
		return err
	}
	broadcaster := notify.NewBroadcaster(queueSize, m, logger, sinks...)
	go broadcaster.Run(ctx)

	if publisher != nil {
		go publisher.Run(ctx)
	}

	corsOrigins := config.List("CORS_ALLOWED_ORIGINS")
	limit, err := config.Int("RATE_LIMIT_PER_MINUTE", 30)
	if err != nil {
		return err
	}
	var limiter httpx.Middleware
	switch {
	case limit <= 0:
	case rdb != nil:
		limiter = httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "pawbook:ratelimit:booking", auth.SubjectKey).Middleware(logger, true)
	default:
		limiter = httpx.NewRateLimiter(limit, time.Minute, auth.SubjectKey).Middleware()
	}

	router := handlers.NewRouter(handlers.Deps{
		Logger:         logger,
		Metrics:        m,
		Gatherer:       reg,
		Verifier:       verifier,
		Store:          store,
		Availability:   avail,
		Booking:        booking.NewCoordinator(store, avail, broadcaster, m, logger, booking.WithLocation(loc)),
		Lifecycle:      lifecycle.NewService(store, avail, broadcaster, m, logger),
		Unavailability: unavailability.NewManager(store, avail, broadcaster, m, logger),
		WS:             notify.NewWSServer(hub, logger, notify.WSConfig{AllowedOrigins: corsOrigins}),
		ReadyChecks:    readyChecks,
		CORSOrigins:    corsOrigins,
		BookingLimiter: limiter,
	})

	gs := grpcx.NewServer(logger)
	gs.SetServing(service, true)
	lis, err := runtime.Listen(grpcPort)
	if err != nil {
		return err
	}
	go func() {
		if err := gs.Serve(ctx, lis, 5*time.Second); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(router, "scheduling"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("scheduling service configured",
		"timezone", loc.String(),
		"redis", rdb != nil,
		"kafka", brokers != "",
	)
	return runtime.ServeHTTP(ctx, logger, srv, 10*time.Second)
}
