package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/brotmon/api/rest"
	"github.com/kasuganosora/brotmon/api/sse"
	apows "github.com/kasuganosora/brotmon/api/ws"
	"github.com/kasuganosora/brotmon/audit"
	"github.com/kasuganosora/brotmon/cache"
	"github.com/kasuganosora/brotmon/config"
	dbadapter "github.com/kasuganosora/brotmon/db"
	"github.com/kasuganosora/brotmon/game/match"
	mw "github.com/kasuganosora/brotmon/middleware"
	"github.com/kasuganosora/brotmon/model"
	"github.com/kasuganosora/brotmon/resource"
	"github.com/kasuganosora/brotmon/scheduler"
	"github.com/kasuganosora/brotmon/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if len(cfg.Server.AdminIPs) == 0 {
		logger.Warn("server.admin_ips is empty; admin endpoints deny every client")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Catalog ----
	catalog := resource.NewLoader(cfg.Battle.CatalogDir)
	if err := catalog.Load(); err != nil {
		log.Fatalf("catalog: %v", err)
	}
	logger.Info("Catalog loaded",
		zap.Int("brotmons", len(catalog.Brotmons())),
		zap.Int("moves", len(catalog.Moves())))

	// ---- Battle service ----
	// Battle locks only need to be shared when several processes share Redis.
	var locker match.Locker
	if cfg.Cache.RedisAddr != "" {
		locker = match.NewCacheLocker(c, cfg.Battle.LockTTL, cfg.Battle.LockWait)
	}
	svc := match.NewService(store.New(db), catalog, locker, pubsub,
		match.Config{MaxRoster: cfg.Battle.MaxRoster}, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()
	sched.AddTicker("commit_retry", cfg.Battle.CommitRetryInterval, func(ctx context.Context) error {
		_, err := svc.RetryPendingCommits(ctx)
		return err
	})

	// ---- WS Router ----
	sm := apows.NewSessionManager(logger)
	wsRouter := apows.NewRouter(logger)
	apows.NewBattleHandlers(svc, pubsub, auditSvc, logger).RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	rl := mw.NewRateLimiter(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst)
	defer rl.Stop()

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(rl.Middleware())

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "ws_sessions": sm.Count()})
	})

	// ---- REST API routes ----
	api := r.Group("/api")
	apirest.Register(api, apirest.Deps{
		DB:        db,
		Cache:     c,
		Security:  cfg.Security,
		AdminIPs:  cfg.Server.AdminIPs,
		Catalog:   catalog,
		Service:   svc,
		Scheduler: sched,
		Audit:     auditSvc,
		Logger:    logger,
	})

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, svc, logger)
	api.GET("/battles/:id/events", mw.Auth(cfg.Security, c), sseH.ServeEvents)

	// ---- WebSocket ----
	wsH := apows.NewHandler(cfg.Security, sm, wsRouter, logger)
	r.GET("/ws", mw.Auth(cfg.Security, c), wsH.ServeWS)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sm.CloseAll(5 * time.Second)
	if n := len(svc.PendingCommits()); n > 0 {
		if _, err := svc.RetryPendingCommits(shutdownCtx); err != nil {
			logger.Error("pending battle commits lost on shutdown", zap.Int("count", n), zap.Error(err))
		}
	}
}
