package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oggyb/muzz-connect/internal/app"
	"github.com/oggyb/muzz-connect/internal/auth"
	"github.com/oggyb/muzz-connect/internal/cache"
	"github.com/oggyb/muzz-connect/internal/config"
	"github.com/oggyb/muzz-connect/internal/db"
	"github.com/oggyb/muzz-connect/internal/logger"
	"github.com/oggyb/muzz-connect/internal/realtime"
	"github.com/oggyb/muzz-connect/internal/repository"
	"github.com/oggyb/muzz-connect/internal/server"
	"github.com/oggyb/muzz-connect/internal/service/chat"
	"github.com/oggyb/muzz-connect/internal/service/discovery"
	"github.com/oggyb/muzz-connect/internal/service/match"
	"github.com/oggyb/muzz-connect/internal/supervisor"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	// Init Redis; the like counter falls back to the DB while it is down
	redisCache := cache.NewRedisCache(cfg)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := redisCache.Ping(pingCtx); err != nil {
		log.Warn("redis unreachable, serving without cache", "addr", cfg.Redis.Addr, "err", err)
	}
	cancel()
	defer redisCache.Close()

	appCtx := app.New(cfg, database, redisCache, log)

	if cfg.IsDevelopment() {
		if _, err := db.SeedTestData(database, log); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	if cfg.Auth.JWTSecret == "" {
		log.Warn("auth.jwt_secret not set, using the development secret")
	}
	resolver := auth.NewResolver(auth.NewTokenManager(cfg.TokenSecret(), cfg.Auth.TokenTTL), database)

	matchSvc := match.NewService(appCtx)
	chatSvc := chat.NewService(appCtx, matchSvc)
	discoverySvc := discovery.NewService(appCtx)

	hub := realtime.NewHub(log)
	ws := realtime.NewHandler(cfg, hub, realtime.NewMemoryPresence(), chatSvc, resolver, log)

	health := server.NewHealthRegistrar()
	prober := server.NewProber(health, 15*time.Second, log)
	prober.Add("db", true, server.DBCheck(database))
	prober.Add("redis", false, server.RedisCheck(redisCache))

	router := server.NewRouter(server.Deps{
		Config:    cfg,
		Logger:    log,
		Match:     matchSvc,
		Discovery: discoverySvc,
		Chat:      chatSvc,
		Users:     repository.NewUserRepository(database),
		Resolver:  resolver,
		Realtime:  ws,
		Prober:    prober,
	})
	// websocket pumps reset both deadlines after the upgrade
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	tree := supervisor.New(cfg.App.Name, supervisor.DefaultConfig(), log)
	tree.AddData(hub)
	tree.AddData(prober)
	tree.AddAPI(server.NewHTTPService(httpServer, 10*time.Second, log))
	tree.AddAPI(server.NewGRPCService(cfg, log, health))

	log.Info("muzz-connect starting", "env", cfg.App.Env, "http", cfg.HTTPAddr(), "grpc", cfg.GRPCAddr())
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("supervisor exited", "err", err)
		os.Exit(1)
	}
	log.Info("muzz-connect stopped")
}
