package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-dm/chat-service/internal/config"
	chatgrpc "github.com/weiawesome/wes-io-dm/chat-service/internal/grpc"
	"github.com/weiawesome/wes-io-dm/chat-service/internal/handler"
	"github.com/weiawesome/wes-io-dm/chat-service/internal/hub"
	"github.com/weiawesome/wes-io-dm/chat-service/internal/kafka"
	"github.com/weiawesome/wes-io-dm/chat-service/internal/relay"
	"github.com/weiawesome/wes-io-dm/chat-service/internal/router"
	"github.com/weiawesome/wes-io-dm/internal/conversation"
	"github.com/weiawesome/wes-io-dm/internal/idgen"
	"github.com/weiawesome/wes-io-dm/internal/membership"
	"github.com/weiawesome/wes-io-dm/internal/presence"
	"github.com/weiawesome/wes-io-dm/internal/userdir"
	"github.com/weiawesome/wes-io-dm/pkg/database"
	"github.com/weiawesome/wes-io-dm/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-dm/pkg/log"
	"github.com/weiawesome/wes-io-dm/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize structured logger
	pkglog.Init(cfg.Log)
	logger := pkglog.L()
	logger.Info().
		Str("instance_id", cfg.Instance.ID).
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("starting chat-service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ids, err := idgen.New(cfg.IDs)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid id generator configuration")
	}

	// Conversation store
	store, closeStore, err := conversation.NewStore(ctx, cfg.Store, ids)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open conversation store")
	}

	// Social graph and user tables
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("address", cfg.Redis.Address).Msg("redis unreachable, caches will miss until it recovers")
	}

	// Presence
	var presenceStore presence.Store = presence.NewMemoryStore()
	if cfg.Presence.Driver == "redis" {
		presenceStore = presence.NewRedisStore(redisClient, cfg.Presence.TTL)
	}
	tracker := presence.NewTracker(presenceStore)

	// Membership guard with cache and CDC invalidation
	guardCache := membership.NewRedisCache(redisClient, cfg.Membership.CacheTTL)
	guard := membership.NewCachedGuard(membership.NewGormRepository(db), guardCache)

	var cdcConsumer *membership.CDCConsumer
	if cfg.Membership.CDC.Brokers != "" {
		cc, err := membership.NewCDCConsumer(
			cfg.Membership.CDC.Brokers,
			cfg.Membership.CDC.Topic,
			cfg.Membership.CDC.GroupID,
			membership.NewCacheInvalidationHandler(guard),
		)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create cdc consumer, membership cache relies on ttl")
		} else if err := cc.Start(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to start cdc consumer")
		} else {
			cdcConsumer = cc
			logger.Info().Str("topic", cfg.Membership.CDC.Topic).Msg("cdc consumer started")
		}
	}

	// User directory
	directory := userdir.NewCachedDirectory(
		userdir.NewGormRepository(db),
		userdir.NewRedisProfileCache(redisClient, "userdir", cfg.UserDir.CacheTTL),
		tracker,
	)

	// Cross-instance relay
	bus, err := pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.PubSub.Driver).Msg("failed to create pubsub")
	}

	// dm-events stream
	var events kafka.EventProducer = kafka.NoopProducer{}
	if cfg.Events.Brokers != "" {
		producer, err := kafka.NewConfluentProducer(cfg.Events.Brokers, cfg.Events.Topic, cfg.Events.Partitions)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create event producer, dm-events disabled")
		} else {
			events = producer
			logger.Info().Str("topic", cfg.Events.Topic).Msg("event producer ready")
		}
	}

	// Hub and router
	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run(ctx)

	chatRouter, err := router.New(router.Config{
		InstanceID:          cfg.Instance.ID,
		TypingExcludeSender: cfg.Typing.ExcludeSender,
		MaxTextLength:       cfg.Store.MaxTextLength,
	}, router.Deps{
		Store:     store,
		Guard:     guard,
		Presence:  tracker,
		Fanout:    wsHub,
		Relay:     bus,
		Events:    events,
		Directory: directory,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create router")
	}
	routerDone := make(chan struct{})
	go func() {
		defer close(routerDone)
		chatRouter.Run(ctx)
	}()

	subscriber := relay.NewSubscriber(bus, wsHub, cfg.Instance.ID)
	go subscriber.Run(ctx)

	// Auth
	var validator jwt.Validator
	if cfg.Auth.JWTSecret != "" {
		manager, err := jwt.NewManager(cfg.Auth.JWTSecret, 0, cfg.Auth.Issuer)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create jwt manager")
		}
		validator = manager
	} else if !cfg.Auth.AllowInsecureUserID {
		logger.Fatal().Msg("auth.jwt_secret is required unless auth.allow_insecure_user_id is set")
	} else {
		logger.Warn().Msg("no jwt secret configured, trusting userId query parameter")
	}

	// gRPC health
	grpcAddr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
	grpcServer, err := chatgrpc.StartGRPCServer(grpcAddr, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start grpc server")
	}

	// Routes
	wsHandler := handler.NewWSHandler(wsHub, chatRouter, validator, cfg.WebSocket, cfg.Auth)
	r := mux.NewRouter()
	wsHandler.RegisterRoutes(r)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      pkglog.HTTPMiddleware(logger)(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("chat-service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat-service")

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		grpcServer.SetServing(false) // 1. drain from load balancers

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil { // 2. stop accepting websockets
			logger.Error().Err(err).Msg("server shutdown error")
		}

		cancel() // 3. stop router, hub, relay and cdc loops

		if cdcConsumer != nil {
			_ = cdcConsumer.Close() // 4. wait for in-flight invalidation
		}
		<-subscriber.Done() // 5. wait for relay goroutine to exit
		<-routerDone

		if err := events.Close(); err != nil { // 6. flush dm-events
			logger.Error().Err(err).Msg("event producer close error")
		}
		_ = bus.Close()

		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := closeStore(closeCtx); err != nil { // 7. release the store
			logger.Error().Err(err).Msg("conversation store close error")
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}

		grpcServer.GracefulStop()
	}()

	select {
	case <-shutdownDone:
		logger.Info().Msg("chat-service stopped")
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("shutdown timed out after 30s")
	}
}
