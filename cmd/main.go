package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"questweaver/server/internal/config"
	"questweaver/server/internal/engine"
	"questweaver/server/internal/generators"
	"questweaver/server/internal/interfaces"
	"questweaver/server/internal/lessons"
	"questweaver/server/internal/storage"
	"questweaver/server/internal/web"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LLM.APIKey == "" {
		log.Println("Warning: No LLM API key provided. Generation will fail until one is set.")
	}

	// Storage: MySQL is the source of truth, Redis the cache. Either being
	// down degrades rather than aborts; with no MySQL at all the server
	// falls back to in-memory storage so local development still works.
	var store interfaces.AdventureStore
	mysqlStore, err := storage.NewMySQLStore(cfg.Database.MySQL)
	if err != nil {
		log.Printf("Warning: Failed to connect to MySQL: %v", err)
		log.Println("Warning: Falling back to in-memory storage. Nothing will survive a restart.")
		store = storage.NewMemoryStore()
	} else {
		defer mysqlStore.Close()
		log.Println("MySQL connected successfully")

		redisStore, err := storage.NewRedisStore(cfg.Database.Redis)
		if err != nil {
			log.Printf("Warning: Failed to connect to Redis: %v", err)
			redisStore = nil
		} else {
			defer redisStore.Close()
			log.Println("Redis connected successfully")
		}
		store = storage.NewAdventureStore(mysqlStore, redisStore)
	}

	generator := engine.NewLLMClient(cfg.LLM)

	// Illustrations are optional; without a backend the adventure simply has
	// no images.
	var images interfaces.ImageGenerator
	if cfg.Images.BaseURL != "" {
		imageClient := generators.NewImageClient(cfg.Images)
		cacheDir := cfg.Images.CacheDir
		if cacheDir == "" {
			cacheDir = filepath.Join("./data", "image_cache")
		}
		_ = os.MkdirAll(cacheDir, 0755)
		imageCache := generators.NewImageCache(cacheDir, 1000, 24*time.Hour)
		if err := imageCache.Initialize(context.Background()); err != nil {
			log.Printf("Warning: Failed to initialize image cache: %v", err)
		}
		images = generators.NewCachingImageGenerator(imageClient, imageCache)
		log.Println("Image generation enabled")
	} else {
		log.Println("No image backend configured, illustrations disabled")
	}

	bank := lessons.NewBank(time.Now().UnixNano())
	if cfg.Lessons.BankPath != "" {
		if err := bank.LoadFile(cfg.Lessons.BankPath); err != nil {
			log.Printf("Warning: Failed to load question bank: %v", err)
		} else {
			log.Printf("Question bank loaded: %d topics", bank.Topics())
		}
	}

	// bgCtx outlives individual sessions so enrichment tasks finish across
	// disconnects; it is cancelled only on shutdown.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	srv := web.NewServer(bgCtx, cfg, web.ServerDeps{
		Store:     store,
		Generator: generator,
		Images:    images,
		Bank:      bank,
	})

	server := srv.HTTPServer(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))

	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	bgCancel()

	log.Println("Server stopped")
}
