package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vargamihaly/bottlebuddy/internal/bootstrap"
	"github.com/vargamihaly/bottlebuddy/internal/config"
	"github.com/vargamihaly/bottlebuddy/internal/events"
	"github.com/vargamihaly/bottlebuddy/internal/scheduler"
	"github.com/vargamihaly/bottlebuddy/internal/server"
	"github.com/vargamihaly/bottlebuddy/pkg/database"
	"github.com/vargamihaly/bottlebuddy/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.LogLevel, cfg.IsProduction())

	db, err := database.Connect(database.Options{
		URL:      cfg.DatabaseURL,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Name:     cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
		LogLevel: cfg.LogLevel,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	if err := bootstrap.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	if cfg.AppEnv == "development" {
		if err := bootstrap.SeedDemoData(db); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed demo data")
		}
	}

	redisClient := connectRedis(cfg.RedisURL)

	imageStorage, err := storage.New(context.Background(), storage.Options{
		Driver:        cfg.StorageDriver,
		CloudinaryURL: cfg.CloudinaryURL,
		S3Region:      cfg.S3Region,
		S3Bucket:      cfg.S3Bucket,
		S3Endpoint:    cfg.S3Endpoint,
		S3AccessKey:   cfg.S3AccessKey,
		S3SecretKey:   cfg.S3SecretKey,
		S3PublicURL:   cfg.S3PublicURL,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Image storage is not available, uploads are disabled")
		imageStorage = nil
	}

	dispatcher := events.NewDispatcher(cfg.EventBufferSize, cfg.EventWorkers, 10*time.Second)
	srv := server.NewServer(cfg, db, redisClient, imageStorage, dispatcher)
	dispatcher.Start()

	jobs := scheduler.New(5 * time.Minute)
	if err := jobs.Register(scheduler.NewListingExpiryJob(srv.Listings(), cfg.ListingExpirySchedule)); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule listing expiry")
	}
	jobs.Start()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.AppEnv).Msg("Starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := jobs.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("Scheduler did not stop in time")
	}
	// handlers may still publish to redis, close it last
	if err := dispatcher.Shutdown(ctx); err != nil {
		log.Error().Err(err).Int64("dropped", dispatcher.Dropped()).Msg("Event dispatcher did not drain")
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info().Msg("Server exited")
}

// connectRedis returns nil when redis is not configured or unreachable. The
// server then runs without realtime updates or rate limiting.
func connectRedis(url string) *redis.Client {
	if url == "" {
		log.Warn().Msg("REDIS_URL is not set, realtime updates and rate limiting are disabled")
		return nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Error().Err(err).Msg("Invalid REDIS_URL, running without redis")
		return nil
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("Redis is unreachable, running without redis")
		_ = client.Close()
		return nil
	}

	log.Info().Str("addr", opts.Addr).Msg("Redis connection established")
	return client
}

func setupLogger(level string, production bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	if !production {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
