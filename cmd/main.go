package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fyerfyer/doc-quiz-system/api"
	"github.com/fyerfyer/doc-quiz-system/api/handler"
	"github.com/fyerfyer/doc-quiz-system/api/middleware"
	quizconfig "github.com/fyerfyer/doc-quiz-system/config"
	"github.com/fyerfyer/doc-quiz-system/internal/cache"
	"github.com/fyerfyer/doc-quiz-system/internal/database"
	"github.com/fyerfyer/doc-quiz-system/internal/document"
	"github.com/fyerfyer/doc-quiz-system/internal/embedding"
	"github.com/fyerfyer/doc-quiz-system/internal/llm"
	"github.com/fyerfyer/doc-quiz-system/internal/metrics"
	"github.com/fyerfyer/doc-quiz-system/internal/question"
	"github.com/fyerfyer/doc-quiz-system/internal/repository"
	"github.com/fyerfyer/doc-quiz-system/internal/retrieval"
	"github.com/fyerfyer/doc-quiz-system/internal/services"
	"github.com/fyerfyer/doc-quiz-system/internal/vectordb"
	"github.com/fyerfyer/doc-quiz-system/pkg/storage"
	"github.com/fyerfyer/doc-quiz-system/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// 运行模式
const (
	modeAll    = "all"    // HTTP 服务 + 异步入库 worker
	modeServer = "server" // 只提供 HTTP 服务
	modeWorker = "worker" // 只消费入库任务
)

func main() {
	configFile := flag.String("config", "config/config.yaml", "Path to config file")
	mode := flag.String("mode", modeAll, "Run mode (all/server/worker)")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("Failed to load .env file")
	}

	cfg, err := quizconfig.Load(*configFile)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	gin.SetMode(cfg.Server.Mode)
	middleware.ConfigureLogger(middleware.LogConfig{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	logger := middleware.GetLogger()
	logger.WithField("mode", *mode).Info("Starting quiz service...")

	if err := database.Setup(&database.Config{
		Type:         cfg.Database.Type,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		MaxLifetime:  time.Hour,
	}, logger); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	var (
		registry *prometheus.Registry
		m        *metrics.Metrics
	)
	if cfg.Metrics.Enable {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.NewMetrics(registry)
	}

	store, err := setupVectorDB(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize knowledge store: %v", err)
	}
	defer store.Close()

	// 入库与检索共用同一个向量化客户端
	embedder, err := setupEmbedding(cfg, logger, m)
	if err != nil {
		logger.Fatalf("Failed to initialize embedding client: %v", err)
	}
	queryEmbedder := embedding.Bound(embedder)
	if cfg.Cache.Enable {
		c, err := setupCache(cfg)
		if err != nil {
			logger.Fatalf("Failed to initialize cache: %v", err)
		}
		if closer, ok := c.(io.Closer); ok {
			defer closer.Close()
		}
		queryEmbedder = embedding.NewCachedClient(embedder, c, time.Duration(cfg.Cache.TTL)*time.Second, logger)
	}

	llmClient, err := setupLLM(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize LLM client: %v", err)
	}

	status := services.NewStatusManager(repository.NewDocumentRepository(), logger)
	chunker := document.NewChunker(document.ChunkerConfig{
		ChunkSize:    cfg.Document.ChunkSize,
		ChunkOverlap: cfg.Document.ChunkOverlap,
		MaxChunks:    cfg.Document.MaxChunks,
	})

	ingestOpts := []services.IngestOption{
		services.WithStatusManager(status),
		services.WithWorkers(cfg.Ingest.Workers),
		services.WithBatchSize(cfg.Ingest.BatchSize),
		services.WithTimeout(cfg.Ingest.Timeout),
		services.WithMaxBytes(cfg.Ingest.MaxUploadBytes()),
		services.WithLogger(logger),
		services.WithMetrics(m),
	}

	var queue *taskqueue.RedisQueue
	if cfg.Queue.Enable {
		files, err := setupStorage(cfg)
		if err != nil {
			logger.Fatalf("Failed to initialize upload storage: %v", err)
		}
		queue, err = setupTaskQueue(cfg, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer queue.Close()
		ingestOpts = append(ingestOpts, services.WithAsync(files, queue))
		logger.Info("Async ingestion enabled")
	} else if *mode == modeWorker {
		logger.Fatal("Worker mode requires queue.enable")
	}

	ingest := services.NewIngestService(chunker, embedder, store, ingestOpts...)

	var worker *taskqueue.RedisWorker
	if queue != nil && (*mode == modeAll || *mode == modeWorker) {
		worker = taskqueue.NewRedisWorker(queue)
		worker.RegisterHandler(taskqueue.TaskIngestDocument, services.IngestTaskHandler(ingest))
		if err := worker.Start(); err != nil {
			logger.Fatalf("Failed to start ingest worker: %v", err)
		}
		logger.WithField("concurrency", cfg.Queue.Concurrency).Info("Ingest worker started")
	}

	var srv *http.Server
	if *mode == modeAll || *mode == modeServer {
		retriever := retrieval.New(queryEmbedder, store,
			retrieval.WithDefaultK(cfg.Search.Limit),
			retrieval.WithMaxDistance(cfg.Search.MaxDistance),
			retrieval.WithLogger(logger),
			retrieval.WithMetrics(m),
		)
		generator := question.NewGenerator(llmClient,
			question.WithTimeout(cfg.LLM.Timeout),
			question.WithMaxTokens(cfg.LLM.MaxTokens),
			question.WithLogger(logger),
			question.WithMetrics(m),
		)
		questions := services.NewQuestionService(retriever, question.NewComposer(), generator,
			services.WithQuestionLogger(logger),
			services.WithQuestionMetrics(m),
		)

		opts := api.RouterOptions{Metrics: m, EnableCORS: cfg.Server.CORS}
		if registry != nil {
			opts.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		}
		router := api.SetupRouter(
			handler.NewDocumentHandler(ingest, cfg.Ingest.MaxUploadBytes()),
			handler.NewCategoryHandler(ingest),
			handler.NewQuestionHandler(questions),
			opts,
		)

		srv = &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		go func() {
			logger.Infof("Server is running on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatalf("Failed to start server: %v", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("Server forced to shutdown")
		}
	}
	if worker != nil {
		worker.Stop()
	}

	logger.Info("Exited")
}

// setupVectorDB 创建知识库
func setupVectorDB(cfg *quizconfig.Config) (vectordb.Repository, error) {
	return vectordb.NewRepository(vectordb.Config{
		Type:              cfg.VectorDB.Type,
		Path:              cfg.VectorDB.Path,
		DSN:               cfg.VectorDB.DSN,
		Dimension:         cfg.VectorDB.Dimension,
		DistanceType:      vectordb.DistanceType(cfg.VectorDB.Distance),
		CreateIfNotExists: true,
	})
}

// setupEmbedding 创建带超时和限流的共享向量化客户端
func setupEmbedding(cfg *quizconfig.Config, logger *logrus.Logger, m *metrics.Metrics) (*embedding.Shared, error) {
	if cfg.Embed.APIKey == "" || isPlaceholder(cfg.Embed.APIKey) {
		return nil, fmt.Errorf("embedding API key is required")
	}

	opts := []embedding.Option{
		embedding.WithAPIKey(cfg.Embed.APIKey),
		embedding.WithModel(cfg.Embed.Model),
		embedding.WithDimensions(cfg.VectorDB.Dimension),
		embedding.WithBatchSize(cfg.Embed.BatchSize),
		embedding.WithTimeout(cfg.Embed.Timeout),
	}
	if cfg.Embed.Endpoint != "" {
		opts = append(opts, embedding.WithBaseURL(cfg.Embed.Endpoint))
	}
	inner, err := embedding.NewClient(cfg.Embed.Provider, opts...)
	if err != nil {
		return nil, err
	}

	sharedOpts := []embedding.SharedOption{
		embedding.WithCallTimeout(cfg.Embed.Timeout),
		embedding.WithLogger(logger),
		embedding.WithMetrics(m),
	}
	if cfg.Embed.RateLimit > 0 {
		sharedOpts = append(sharedOpts, embedding.WithRateLimit(cfg.Embed.RateLimit, cfg.Embed.Burst))
	}
	return embedding.NewShared(inner, cfg.VectorDB.Dimension, sharedOpts...), nil
}

// setupLLM 创建出题模型客户端
func setupLLM(cfg *quizconfig.Config) (llm.Client, error) {
	if cfg.LLM.APIKey == "" || isPlaceholder(cfg.LLM.APIKey) {
		return nil, fmt.Errorf("LLM API key is required")
	}

	opts := []llm.Option{
		llm.WithAPIKey(cfg.LLM.APIKey),
		llm.WithModel(cfg.LLM.Model),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTimeout(cfg.LLM.Timeout),
	}
	if cfg.LLM.Endpoint != "" {
		opts = append(opts, llm.WithBaseURL(cfg.LLM.Endpoint))
	}
	return llm.NewClient(cfg.LLM.Provider, opts...)
}

// setupCache 创建查询向量缓存
func setupCache(cfg *quizconfig.Config) (cache.Cache, error) {
	c := cache.DefaultConfig()
	c.Type = cfg.Cache.Type
	c.DefaultTTL = time.Duration(cfg.Cache.TTL) * time.Second
	if cfg.Cache.Type == "redis" {
		c.RedisAddr = cfg.Cache.Address
		c.RedisPassword = cfg.Cache.Password
		c.RedisDB = cfg.Cache.DB
	}
	return cache.NewCache(c)
}

// setupStorage 创建上传暂存
func setupStorage(cfg *quizconfig.Config) (storage.Storage, error) {
	return storage.New(storage.Config{
		Type:  cfg.Storage.Type,
		Local: storage.LocalConfig{Path: cfg.Storage.Path},
		Minio: storage.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Prefix:    cfg.Storage.Prefix,
		},
	})
}

// setupTaskQueue 创建异步入库队列
func setupTaskQueue(cfg *quizconfig.Config, logger *logrus.Logger) (*taskqueue.RedisQueue, error) {
	qcfg := &taskqueue.Config{
		RedisAddr:     cfg.Queue.RedisAddr,
		RedisPassword: cfg.Queue.RedisPassword,
		RedisDB:       cfg.Queue.RedisDB,
		Concurrency:   cfg.Queue.Concurrency,
		RetryLimit:    cfg.Queue.RetryLimit,
		RetryDelay:    cfg.Queue.RetryDelay,
		TaskTimeout:   cfg.Queue.TaskTimeout,
		Queue:         cfg.Queue.Name,
		Logger:        logger,
	}

	logger.WithFields(logrus.Fields{
		"redis_addr":  qcfg.RedisAddr,
		"concurrency": qcfg.Concurrency,
		"retry_limit": qcfg.RetryLimit,
	}).Info("Setting up task queue")

	q, err := taskqueue.NewQueue("redis", qcfg)
	if err != nil {
		return nil, err
	}
	rq, ok := q.(*taskqueue.RedisQueue)
	if !ok {
		q.Close()
		return nil, fmt.Errorf("unexpected queue implementation %T", q)
	}
	return rq, nil
}

// isPlaceholder 未被环境变量替换的 ${VAR}
func isPlaceholder(s string) bool {
	return len(s) > 3 && s[:2] == "${" && s[len(s)-1] == '}'
}
