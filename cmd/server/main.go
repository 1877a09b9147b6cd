package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"videoverse/video-api/internal/api"
	"videoverse/video-api/internal/chunkstore"
	"videoverse/video-api/internal/config"
	"videoverse/video-api/internal/media"
	"videoverse/video-api/internal/repository/mongo"
	"videoverse/video-api/internal/service"
	"videoverse/video-api/internal/storage"
	"videoverse/video-api/internal/token"

	"github.com/gin-gonic/gin"
)

// @title Videoverse API
// @version 1.0
// @description API for uploading, transforming and sharing video assets.
// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	log.Println("Starting Videoverse API Server...")

	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}
	log.Println("Configuration loaded.")

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		log.Fatalf("FATAL: Could not connect to MongoDB: %v", err)
	}
	defer func() {
		log.Println("Disconnecting MongoDB...")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			log.Printf("ERROR: Failed to disconnect MongoDB: %v", err)
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)
	log.Println("Database connection established.")

	// --- Ensure Indexes ---
	go func() { // Run index creation concurrently/in background
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		mongo.EnsureAssetIndexes(ctx, appDB.Collection("assets"))
		log.Println("Index creation process completed.")
	}()

	// --- Initialize Storage ---
	log.Println("Initializing file storage service...")
	var fileStorage storage.FileStorage
	switch cfg.Storage.Driver {
	case "s3":
		fileStorage, err = storage.NewS3Storage(cfg.S3)
	default:
		fileStorage, err = storage.NewLocalStorage(cfg.Storage.LocalPath)
	}
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize %s storage: %v", cfg.Storage.Driver, err)
	}

	// --- Initialize Repositories ---
	assetRepo := mongo.NewMongoAssetRepository(appDB)

	// --- Initialize Services ---
	log.Println("Initializing services...")
	transformer := media.NewFFmpegTransformer(
		cfg.Media.FFmpegPath, cfg.Media.FFprobePath,
		cfg.Transform.TargetHeight, cfg.Transform.TargetFPS,
	)
	tokenService := token.NewService(cfg.Token.Secret)
	videoService := service.NewVideoService(assetRepo, fileStorage, transformer, tokenService, cfg)
	transformService := service.NewTransformService(assetRepo, fileStorage, transformer, cfg.Transform)

	chunks, err := chunkstore.NewChunkStore(cfg.Upload.StagingDir, cfg.Upload.SessionTTL, assetRepo, fileStorage, transformer)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize chunk store: %v", err)
	}

	// --- Background Work ---
	// Workers, liveness monitor and session reaper all stop with this context.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	transformService.Start(bgCtx)
	go chunks.RunSweeper(bgCtx, cfg.Upload.SweepInterval)

	// --- Initialize Gin Engine ---
	router := gin.Default() // Includes Logger and Recovery middleware

	// --- Setup Routes ---
	log.Println("Setting up API routes...")
	api.SetupRoutes(router, cfg.Auth.JWTSecret, videoService, transformService, chunks)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Minute, // Large chunk uploads need headroom
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Server starting on %s", cfg.Server.Address)

	// --- Graceful Shutdown ---
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: ListenAndServe Error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	bgCancel() // Stop workers and sweepers before the HTTP listener

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("FATAL: Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}
