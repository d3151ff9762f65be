package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/noteforge/noteforge/internal/config"
	"github.com/noteforge/noteforge/internal/database"
	"github.com/noteforge/noteforge/internal/guest"
	"github.com/noteforge/noteforge/internal/llm"
	"github.com/noteforge/noteforge/internal/repository"
	"github.com/noteforge/noteforge/internal/server"
	"github.com/noteforge/noteforge/internal/service"
	"github.com/noteforge/noteforge/internal/storage"
	"github.com/noteforge/noteforge/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis connect: %v", err)
	}
	defer rdb.Close()

	llmClient := llm.NewClient(cfg, logr)

	accountRepo := repository.NewAccountRepository(db)
	noteRepo := repository.NewNoteRepository(db)

	accountService := service.NewAccountService(cfg, accountRepo)
	generationService := service.NewGenerationService(logr, accountRepo, noteRepo, llmClient)

	guests := guest.NewAllowance(rdb, cfg.GuestDailyLimit)

	var uploader *storage.Uploader
	if cfg.ShareUploadsEnabled() {
		uploader, err = storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
	} else {
		logr.Info("share uploads disabled; S3 is not configured")
	}

	auth := server.NewAuthenticator(cfg.JWTSecret, logr, accountService)
	srv := server.NewServer(cfg.ListenAddr, cfg.RequestDeadline, cfg.AdminUsername, cfg.AdminPassword, logr, auth, generationService, accountService, noteRepo, guests, uploader)

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("server stopped", "err", err)
	}
}
