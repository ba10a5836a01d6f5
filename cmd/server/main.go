package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meetscribe/internal/align"
	"meetscribe/internal/api"
	"meetscribe/internal/config"
	"meetscribe/internal/core"
	"meetscribe/internal/engine"
	"meetscribe/internal/pipeline"
	"meetscribe/internal/queue"
	"meetscribe/internal/store"
	"meetscribe/pkg/cache"
	"meetscribe/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	if err := logger.Init(os.Getenv("DEBUG") == "true"); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting meetscribe server")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
		return
	}

	backend, err := newBackend(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize artifact store", zap.Error(err))
		return
	}

	jobs := store.NewJobStore(backend)

	var results cache.Cache
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(
			cfg.Redis.Addr,
			cfg.Redis.Password,
			cfg.Redis.DB,
			24*time.Hour,
		)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
			return
		}
		defer redisCache.Close()
		results = redisCache

		logger.Info("Redis result cache enabled")
	}

	engines := engine.NewCache(
		func(modelID string) (engine.Recognizer, error) {
			if modelID == "" {
				modelID = cfg.Whisper.DefaultModel
			}
			return engine.NewWhisperClient(cfg.Whisper.Endpoint, modelID), nil
		},
		func(modelID string) (engine.Diarizer, error) {
			return engine.NewDiarizerClient(cfg.Diarizer.Endpoint, modelID), nil
		},
	)

	var summarizer engine.Summarizer
	if cfg.OpenAI.APIKey != "" {
		summarizer = engine.NewOpenAISummarizer(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL)
	}

	phrases := cfg.Filter.Phrases
	if len(phrases) == 0 {
		phrases = align.DefaultHallucinationPhrases()
	}
	filter := align.NewHallucinationFilter(cfg.Filter.NoSpeechThreshold, phrases)
	aligner := align.NewAligner(cfg.Align.SourcePriority)

	var q *queue.Queue
	pipe := pipeline.New(jobs, engines, summarizer, filter, aligner, cfg.Diarizer.Model,
		func(jobID string) bool { return q != nil && q.Cancelled(jobID) })

	q = queue.New(jobs, pipe, queue.Config{
		Capacity: cfg.Worker.Capacity,
		Workers:  cfg.Worker.Count,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.Start(ctx)

	service := core.New(jobs, q, results)
	server := api.NewServer(cfg.Server.Addr, service)

	go func() {
		if err := server.ListenAndServe(); err != nil {
			logger.Error("HTTP server stopped", zap.Error(err))
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}

	cancel()
	q.Wait()

	logger.Info("Server shutdown complete")
}

func newBackend(cfg *config.Config) (store.Backend, error) {
	switch cfg.Jobs.Backend {
	case "s3":
		return store.NewS3Backend(
			cfg.S3.Endpoint,
			cfg.S3.Region,
			cfg.S3.AccessKey,
			cfg.S3.SecretKey,
			cfg.S3.Bucket,
		)
	case "postgres":
		return store.NewPostgresBackend(cfg.Postgres.DSN)
	default:
		return store.NewFSBackend(cfg.Jobs.Dir)
	}
}
