package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-dm/conversation-service/internal/config"
	"github.com/weiawesome/wes-io-dm/conversation-service/internal/handler"
	"github.com/weiawesome/wes-io-dm/conversation-service/internal/service"
	"github.com/weiawesome/wes-io-dm/internal/conversation"
	"github.com/weiawesome/wes-io-dm/internal/idgen"
	"github.com/weiawesome/wes-io-dm/internal/presence"
	"github.com/weiawesome/wes-io-dm/internal/userdir"
	"github.com/weiawesome/wes-io-dm/pkg/database"
	"github.com/weiawesome/wes-io-dm/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-dm/pkg/log"
	"github.com/weiawesome/wes-io-dm/pkg/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	ctx := context.Background()

	ids, err := idgen.New(cfg.IDs)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid id generator configuration")
	}

	store, closeStore, err := conversation.NewStore(ctx, cfg.Store, ids)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open conversation store")
	}

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

	var presenceStore presence.Store = presence.NewMemoryStore()
	if cfg.Presence.Driver == "redis" {
		presenceStore = presence.NewRedisStore(redisClient, cfg.Presence.TTL)
	}
	directory := userdir.NewCachedDirectory(
		userdir.NewGormRepository(db),
		userdir.NewRedisProfileCache(redisClient, "userdir", cfg.UserDir.CacheTTL),
		presence.NewTracker(presenceStore),
	)

	jwtManager, err := jwt.NewManager(cfg.Auth.JWTSecret, 0, cfg.Auth.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create jwt manager")
	}

	queries := service.NewQueryService(store, directory)
	httpHandler := handler.NewHandler(queries, middleware.NewAuthMiddleware(jwtManager))

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(pkglog.GinMiddleware(logger))
	httpHandler.RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("starting conversation-service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down conversation-service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := closeStore(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("conversation store close error")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Info().Msg("conversation-service exited")
}
