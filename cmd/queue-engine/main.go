package main

import (
	"context"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ArmanShaikh01/dynamicQueue-sub000/internal/config"
	"github.com/ArmanShaikh01/dynamicQueue-sub000/internal/httpapi"
	"github.com/ArmanShaikh01/dynamicQueue-sub000/internal/notify"
	"github.com/ArmanShaikh01/dynamicQueue-sub000/internal/numbering"
	"github.com/ArmanShaikh01/dynamicQueue-sub000/internal/queue"
	"github.com/ArmanShaikh01/dynamicQueue-sub000/internal/store/postgres"
	"github.com/ArmanShaikh01/dynamicQueue-sub000/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("queue-engine")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			log.Printf("telemetry shutdown error: %v", err)
		}
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool)

	var sink notify.Sink = notify.LogSink{}
	var tickets queue.TicketCounter
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		sink = notify.NewRedisSink(client, cfg.NotifyChannelPrefix)
		tickets = numbering.NewCounter(client)
	}

	engine := queue.New(st, st, st, sink, tickets, queue.Options{
		MaxAttempts: cfg.RetryAttempts,
		NoShowLimit: cfg.NoShowLimit,
	})

	handler := httpapi.NewHandler(engine)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:           cfg.RateLimitPerMinute,
		IPBurst:               cfg.RateLimitBurst,
		OrganizationPerMinute: cfg.OrgRateLimitPerMinute,
		OrganizationBurst:     cfg.OrgRateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/", httpapi.AuthMiddleware(st, handler.Routes()))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "queue-engine"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("queue-engine listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	go func() {
		if cfg.ReconcileInterval <= 0 {
			return
		}
		ticker := time.NewTicker(cfg.ReconcileInterval)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			count, err := st.ReconcilePositions(ctx)
			cancel()
			if err != nil {
				log.Printf("position reconcile error: %v", err)
				continue
			}
			if count > 0 {
				log.Printf("position reconcile repaired %d appointments", count)
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
