package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	httpapi "github.com/fieldmatch/fieldmatch/internal/api/http"
	appProfile "github.com/fieldmatch/fieldmatch/internal/application/profile"
	appSession "github.com/fieldmatch/fieldmatch/internal/application/session"
	"github.com/fieldmatch/fieldmatch/internal/config"
	"github.com/fieldmatch/fieldmatch/internal/infrastructure/memstore"
	"github.com/fieldmatch/fieldmatch/internal/infrastructure/postgres"
	"github.com/fieldmatch/fieldmatch/internal/infrastructure/redisstore"
	"github.com/fieldmatch/fieldmatch/internal/infrastructure/sse"
	"github.com/fieldmatch/fieldmatch/internal/realtime"
)

func main() {
	_ = godotenv.Load()
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool, "internal/migrations"); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	// repositories
	profileRepo := postgres.NewProfileRepository(pool)
	bookingRepo := postgres.NewBookingRepository(pool)
	ratingRepo := postgres.NewRatingRepository(pool)

	// realtime store
	var store realtime.Store
	switch cfg.StoreBackend {
	case "redis":
		client, err := redisstore.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis error: %v", err)
		}
		defer client.Close()
		store = redisstore.New(client, logger)
	case "memory":
		store = memstore.New()
	}

	// infrastructure
	sseHub := sse.NewHub()

	// services
	profileSvc := appProfile.NewService(profileRepo, ratingRepo, logger)
	sessionMgr := appSession.NewManager(store, bookingRepo, profileSvc, sseHub, cfg.ScreenExpression, cfg.RequestAbandonTTL, logger)

	// API server
	apiServer := httpapi.NewServer(sessionMgr, profileSvc, bookingRepo, sseHub)

	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: the events endpoint streams indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Str("store", cfg.StoreBackend).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sessionMgr.StopAll(ctxShutdown)
	sseHub.Stop()
	_ = httpServer.Shutdown(ctxShutdown)
}
