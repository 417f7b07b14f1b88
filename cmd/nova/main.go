package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/novachat/nova/internal/app"
	"github.com/novachat/nova/internal/channel"
	"github.com/novachat/nova/internal/channelstate"
	"github.com/novachat/nova/internal/identity"
	"github.com/novachat/nova/internal/member"
	"github.com/novachat/nova/internal/message"
	"github.com/novachat/nova/internal/observability"
	"github.com/novachat/nova/internal/planet"
	"github.com/novachat/nova/internal/platform/cache"
	"github.com/novachat/nova/internal/platform/db"
	"github.com/novachat/nova/internal/realtime"
	"github.com/novachat/nova/internal/realtime/ws"
	"github.com/novachat/nova/internal/relay"
	"github.com/novachat/nova/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	identityRepo := identity.NewRepository(pool)
	identityService := identity.NewService(identityRepo, identity.ServiceConfig{
		CacheSize: cfg.IdentityCacheSize,
		CacheTTL:  cfg.IdentityCacheTTL,
		TokenTTL:  cfg.TokenTTL,
	}, nil, logger)
	authHandler := identity.NewHandler(logger, identityService)

	presence := realtime.NewRedisPresence(redisClient)
	registry := realtime.NewRegistry(cfg.NodeName, presence, logger)
	registry.SetObserver(metrics)
	broadcaster := realtime.NewBroadcaster(registry, metrics, logger)
	hub := realtime.NewHub(broadcaster, nil, logger)

	planetRepo := planet.NewRepository(pool)
	channelRepo := channel.NewRepository(pool)
	memberRepo := member.NewRepository(pool)
	memberService := member.NewService(memberRepo, planetRepo, channelRepo, hub, logger)
	memberHandler := member.NewHandler(logger, memberService)

	stateService := channelstate.NewStateService(redisClient)
	cursorRepo := channelstate.NewRepository(pool)
	cursorTracker := channelstate.NewTracker(stateService, cursorRepo, logger)

	relayService := relay.NewService(relay.Config{
		Node:    cfg.NodeName,
		Key:     cfg.NodeKey,
		Peers:   cfg.NodePeers,
		Timeout: cfg.RelayTimeout,
	}, presence, hub, logger)
	relayService.SetObserver(metrics)
	hub.SetRelayer(relayService)
	relayHandler := relay.NewHandler(cfg.NodeKey, hub, logger)

	messageRepo := message.NewRepository(pool)
	messageService := message.NewService(messageRepo, channelRepo, memberService, stateService, hub, logger)
	messageHandler := message.NewHandler(logger, messageService)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	wsHandler := ws.NewHandler(realtime.SessionDeps{
		Registry:  registry,
		Broadcast: broadcaster,
		Identity:  identityService,
		Members:   memberService,
		Channels:  channelRepo,
		Cursors:   cursorTracker,
		Flusher:   jobsClient,
		Logger:    logger,
	}, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Identity:       identityService,
		AuthHandler:    authHandler,
		MemberHandler:  memberHandler,
		MessageHandler: messageHandler,
		RelayHandler:   relayHandler,
		WSHandler:      wsHandler,
		JobsHandler:    jobsHandler,
		Metrics:        metrics,
	})

	// Peer nodes treat this node as alive while the heartbeat key holds.
	go func() {
		ticker := time.NewTicker(cfg.PresenceTTL / 3)
		defer ticker.Stop()
		for {
			if err := presence.Heartbeat(ctx, cfg.NodeName, cfg.PresenceTTL); err != nil {
				logger.Warn("presence heartbeat", slog.Any("error", err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr), slog.String("node", cfg.NodeName))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
