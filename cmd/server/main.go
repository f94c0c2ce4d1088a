package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/carebridge/referral-hub/internal/api"
	"github.com/carebridge/referral-hub/internal/audit"
	"github.com/carebridge/referral-hub/internal/auth"
	"github.com/carebridge/referral-hub/internal/config"
	"github.com/carebridge/referral-hub/internal/data"
	"github.com/carebridge/referral-hub/internal/metrics"
	"github.com/carebridge/referral-hub/internal/middleware"
	"github.com/carebridge/referral-hub/internal/notifications"
	"github.com/carebridge/referral-hub/internal/ratelimit"
	"github.com/carebridge/referral-hub/internal/referrals"
	"github.com/carebridge/referral-hub/internal/resources"
	"github.com/carebridge/referral-hub/internal/session"
	"github.com/carebridge/referral-hub/internal/tokens"
)

const serviceName = "referral-hub"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Config
	env := config.FromEnv()
	if env.JWTKey == "" {
		env.JWTKey = "dev-secret-do-not-use-in-prod"
	}
	if env.RedisAddr == "" {
		env.RedisAddr = "localhost:6379"
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/default.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	cfgStore := config.NewStore(cfgPath, cfg)
	cfgStore.StartWatcher(ctx)

	// 2. DB
	db, err := sql.Open("postgres", env.PostgresDSN())
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}
	defer db.Close()

	// 3. Shared clients
	rdb := redis.NewClient(&redis.Options{Addr: env.RedisAddr})
	defer rdb.Close()

	sessionMgr := session.NewManager(rdb)
	tokenMgr := tokens.NewManager(env.JWTKey)
	blacklist := auth.NewRedisBlacklist(rdb)

	collector := metrics.NewCollector()
	data.TxRetryHook = collector.AllocationRetry

	// Optional NATS fanout for multi-instance inbox feeds.
	var pub *notifications.Publisher
	var nc *nats.Conn
	if env.NatsURL != "" {
		nc, err = nats.Connect(env.NatsURL, nats.Name(serviceName))
		if err != nil {
			log.Printf("NATS connect failed, running without fanout: %v", err)
		} else {
			defer nc.Close()
			pub = notifications.NewPublisher(nc, 3)
		}
	}

	// 4. Services
	auditService := audit.NewService(db)
	hub := notifications.NewHubWithBuffer(cfg.Feed.BufferSize)
	notifService := notifications.NewService(data.NotificationModel{DB: db}, hub, pub, collector)
	if nc != nil {
		if _, err := notifications.SubscribeChanges(nc, notifService); err != nil {
			log.Printf("NATS subscribe failed: %v", err)
		}
	}
	resourceService := resources.NewService(db)
	referralService := referrals.NewService(db, notifService, auditService, collector)

	limiter := ratelimit.NewLimiter(rdb, env.IPSalt)
	rlMiddleware := middleware.NewRateLimitMiddleware(limiter, func() middleware.RateLimitConfig {
		return cfgStore.Current().RateLimit
	})
	jwtMiddleware := middleware.NewJWTAuth(tokenMgr, blacklist)

	// 5. Handlers
	notifHandler := api.NewNotificationHandler(notifService, tokenMgr)
	notifHandler.PingPeriod = func() time.Duration {
		return cfgStore.Current().Feed.PingPeriod.Std()
	}

	handler := api.NewRouter(api.Handlers{
		Auth: &api.AuthHandler{
			DB: db, Tokens: tokenMgr, Session: sessionMgr,
			Blacklist: blacklist, RateLimit: rlMiddleware,
		},
		Hospitals: &api.HospitalHandler{
			DB: db, Tokens: tokenMgr, Session: sessionMgr, Audits: auditService,
		},
		Resources:     api.NewResourceHandler(resourceService),
		Referrals:     api.NewReferralHandler(referralService),
		Notifications: notifHandler,
		Audit:         api.NewAuditHandler(auditService),
		JWT:           jwtMiddleware,
		RateLimit:     rlMiddleware,
		Metrics:       middleware.Metrics(collector),
	})

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	go func() {
		log.Printf("Starting server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown error: %v", err)
	}
	log.Println("Server stopped gracefully")
}
