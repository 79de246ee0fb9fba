package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nowait/queue-service/internal/announce"
	"nowait/queue-service/internal/audit"
	auditpg "nowait/queue-service/internal/audit/postgres"
	"nowait/queue-service/internal/cache"
	"nowait/queue-service/internal/config"
	"nowait/queue-service/internal/engine"
	"nowait/queue-service/internal/httpapi"
	"nowait/queue-service/internal/hub"
	"nowait/queue-service/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("queue-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	announcer := announce.New(announce.NewSynthesizer(cfg.AnnounceProvider), announce.Config{
		QueueSize: cfg.AnnounceQueueSize,
	})
	go announcer.Run(ctx)

	recorder := buildRecorder(cfg)

	h := hub.New()
	notify := func(event engine.Event) {
		payload, err := json.Marshal(event)
		if err != nil {
			log.Printf("event marshal error: %v", err)
			return
		}
		h.Broadcast(payload, event.LocationID)
	}

	registry := engine.NewRegistry(engine.Options{
		TravelWindow:    cfg.TravelWindow,
		AvgConsult:      time.Duration(cfg.AvgConsultMinutes) * time.Minute,
		DoctorLateGrace: cfg.DoctorLateGrace,
		RequirePayment:  cfg.RequirePayment,
		EnforceCapacity: cfg.EnforceCapacity,
		Announcer:       announcer,
		Recorder:        recorder,
		Notify:          notify,
	})
	for _, loc := range cfg.Locations {
		if err := registry.AddLocation(loc); err != nil {
			log.Printf("location %s: %v", loc.LocationID, err)
		}
	}

	snapshotCache := buildCache(cfg)

	handler := httpapi.NewHandler(registry, httpapi.Options{
		Cache:       snapshotCache,
		SnapshotTTL: cfg.SnapshotTTL,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:       cfg.RateLimitPerMinute,
		IPBurst:           cfg.RateLimitBurst,
		LocationPerMinute: cfg.LocationRatePerMinute,
		LocationBurst:     cfg.LocationRateBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/realtime/", sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, "")
			} else {
				h.UpdateSubscription(client, parsed.LocationID)
			}
		}
	}))
	mux.Handle("/", handler.Routes())

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "queue-service")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("queue-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	go func() {
		if cfg.DoctorLateGrace <= 0 || cfg.DoctorLateInterval <= 0 {
			return
		}
		ticker := time.NewTicker(cfg.DoctorLateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				registry.CheckDoctorLate(time.Now())
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func buildRecorder(cfg config.Config) audit.Recorder {
	if cfg.AuditSink == "postgres" {
		pool, err := pgxpool.New(context.Background(), cfg.AuditDatabaseURL)
		if err != nil {
			log.Printf("audit db connect: %v", err)
			return audit.NewRecorder("log")
		}
		return auditpg.NewRecorder(pool)
	}
	if cfg.AuditWebhookToken != "" && cfg.AuditSink != "" {
		return audit.NewWebhookRecorder(cfg.AuditSink, cfg.AuditWebhookToken)
	}
	return audit.NewRecorder(cfg.AuditSink)
}

func buildCache(cfg config.Config) cache.Cache {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryCache()
	}
	redisCache, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Printf("redis cache unavailable, using memory: %v", err)
		return cache.NewMemoryCache()
	}
	return redisCache
}
