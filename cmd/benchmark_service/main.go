package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meywd/benchforge/internal/api"
	"github.com/meywd/benchforge/internal/config"
	"github.com/meywd/benchforge/internal/database/kafka"
	"github.com/meywd/benchforge/internal/database/minio"
	"github.com/meywd/benchforge/internal/database/mongo"
	"github.com/meywd/benchforge/internal/database/mysql"
	"github.com/meywd/benchforge/internal/database/redis"
	"github.com/meywd/benchforge/internal/executor"
	"github.com/meywd/benchforge/internal/models"
	"github.com/meywd/benchforge/internal/notifier"
	"github.com/meywd/benchforge/internal/orchestrator"
	"github.com/meywd/benchforge/internal/provider"
	"github.com/meywd/benchforge/internal/resultstore"
	"github.com/meywd/benchforge/internal/scoring"
	"github.com/meywd/benchforge/internal/taskbank"
	"github.com/meywd/benchforge/pkg/logger"
	"github.com/meywd/benchforge/pkg/ratelimiter"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logLevel, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Invalid logger level: %v", err)
	}
	logger.Init(logLevel)
	serviceLogger := logger.New("BenchmarkService", "", "")

	// Connect to MySQL using the singleton GetDB
	db, err := mysql.GetDB(&cfg.Databases.MySQL)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to MySQL")
	}

	// Connect to Redis
	redisClient, err := redis.GetClient(&cfg.Databases.Redis)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to Redis")
	}

	// Connect to MongoDB
	mongoClient, err := mongo.GetClient(&cfg.Databases.MongoDB)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to MongoDB")
	}
	mongoDB := mongoClient.Database(cfg.Databases.MongoDB.Database)

	// Connect to MinIO
	minioClient, err := minio.GetClient(&cfg.Databases.MinIO)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to MinIO")
	}

	// Connect to Kafka
	kafkaClient, err := kafka.GetClient(&cfg.Databases.Kafka)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to Kafka")
	}

	// Result store: MySQL rows, Mongo time series, MinIO payloads, Redis cache
	gormStore := resultstore.NewGormStore(db)
	if err := gormStore.AutoMigrate(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to migrate result tables")
	}
	store := resultstore.New(
		gormStore, gormStore, gormStore,
		resultstore.NewMongoTimeSeriesStore(mongoDB, cfg.Databases.MongoDB.Collection),
		resultstore.NewMinioBlobStore(minioClient, cfg.Databases.MinIO.Bucket),
		resultstore.NewRedisCache(redisClient, cfg.Engine.Cache.TTL.Std()),
		serviceLogger,
	)

	// Task bank with read-through cache
	taskStore := taskbank.NewGormTaskBank(db)
	if err := taskStore.AutoMigrate(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to migrate task table")
	}
	tasks := taskbank.NewCachedTaskBank(taskStore, redisClient, cfg.Engine.Cache.TTL.Std())

	// Provider registry from configuration
	registry := provider.NewRegistry()
	for _, pc := range cfg.Engine.Providers {
		registry.Register(pc.Name, provider.NewOpenAIClient(pc))
		serviceLogger.WithPayload(map[string]interface{}{"provider": pc.Name}).Info("Registered provider")
	}

	// Executor behind the per-provider concurrency gate and request-rate limits
	gate := ratelimiter.NewProviderGate(cfg.Engine.Executor.DefaultConcurrency, cfg.Engine.Executor.ProviderConcurrency)
	rates := ratelimiter.NewProviderRates(cfg.Engine.Executor.RequestRate, cfg.Engine.Executor.RequestBurst, cfg.Engine.Executor.ProviderRequestRate)
	exec := executor.New(registry, gate, rates, tasks, cfg.Engine.Executor.DefaultTimeout.Std(), serviceLogger)

	// Scoring engine with an optional provider-backed judge
	var judge scoring.LLMEvaluator
	if cfg.Engine.Judge.Provider != "" {
		judgeInvoker, err := registry.Get(cfg.Engine.Judge.Provider)
		if err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Judge provider is not registered")
		}
		judge = scoring.NewProviderJudge(judgeInvoker, cfg.Engine.Judge.ModelID)
	}
	engine := scoring.New(scoring.LexicalSimilarity, nil, judge, cfg.Engine.Scoring.BatchSize, serviceLogger)

	// Notifications drain to Kafka through a bounded queue
	publisher := notifier.NewKafkaPublisher(kafkaClient.Writer, serviceLogger)
	notify := notifier.NewQueueNotifier(cfg.Engine.Orchestrator.NotificationQueueLen, publisher, serviceLogger)

	// Orchestrator with per-organization resource budgets
	resources := orchestrator.NewResourceManager(cfg.Engine.Resources)
	orch := orchestrator.New(store, exec, engine, tasks, resources, notify, cfg.Engine, serviceLogger)

	ctx, cancel := context.WithCancel(context.Background())
	orch.Start(ctx)
	serviceLogger.Info("Benchmark scheduler started")

	// Setup HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	apiHandler := api.NewAPI(orch, store, map[string]api.HealthCheckFunc{
		"mysql":   mysql.HealthCheck,
		"redis":   redis.HealthCheck,
		"mongodb": mongo.HealthCheck,
		"minio":   minio.HealthCheck,
		"kafka":   kafkaClient.HealthCheck,
	}, serviceLogger)
	api.RegisterRoutes(router, apiHandler)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	// Start server
	go func() {
		serviceLogger.Info("Starting HTTP server on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("HTTP server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Server forced to shutdown")
	}

	cancel()
	exec.CancelAll()
	if err := notify.Close(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing notifier")
	}
	if kafkaClient.Conn != nil {
		if err := kafkaClient.Conn.Close(); err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing Kafka admin connection")
		}
	}
	if err := mongo.Close(context.Background()); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error disconnecting from MongoDB")
	}
	if err := redis.Close(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing Redis client")
	}
	if err := mysql.Close(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing MySQL connection")
	}
	minio.Close()

	serviceLogger.Info("Server gracefully stopped")
}
