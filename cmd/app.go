package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/regdoc-rag/api/middleware"
	"github.com/fyerfyer/regdoc-rag/config"
	"github.com/fyerfyer/regdoc-rag/internal/cache"
	"github.com/fyerfyer/regdoc-rag/internal/database"
	"github.com/fyerfyer/regdoc-rag/internal/document"
	"github.com/fyerfyer/regdoc-rag/internal/embedding"
	"github.com/fyerfyer/regdoc-rag/internal/llm"
	"github.com/fyerfyer/regdoc-rag/internal/repository"
	"github.com/fyerfyer/regdoc-rag/internal/services"
	"github.com/fyerfyer/regdoc-rag/internal/structure"
	"github.com/fyerfyer/regdoc-rag/internal/vectordb"
	"github.com/fyerfyer/regdoc-rag/pkg/storage"
	"github.com/fyerfyer/regdoc-rag/pkg/taskqueue"
)

// appOptions 决定构建哪些组件
type appOptions struct {
	llm   bool // 问答需要大模型客户端
	queue bool // 按配置启用任务队列
}

// app 进程内共享的组件，启动时构建一次
type app struct {
	logger   *logrus.Logger
	store    vectordb.Store
	queue    taskqueue.Queue
	pipeline *services.QueryPipeline
	ingest   *services.IngestionService
	closers  []func() error
	checks   []func(context.Context) error // 健康检查探测的附加依赖
}

// Close 按构建的逆序释放资源
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.WithError(err).Warn("Failed to release resource")
		}
	}
}

// newApp 根据配置构建全部服务组件
func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{logger: middleware.GetLogger()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var (
		docRepo   repository.DocumentRepository
		queryRepo repository.QueryRepository
	)
	if cfg.Database.Enabled {
		if err := setupDatabase(cfg.Database, a.logger); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.closers = append(a.closers, database.Close)
		a.checks = append(a.checks, database.Ping)
		docRepo = repository.NewDocumentRepository()
		queryRepo = repository.NewQueryRepository()
	}

	fileStorage, err := setupStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a.store, err = setupVectorDB(cfg.VectorDB, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector database: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	embedder, err := setupEmbedding(cfg.Embed)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}

	if opts.llm {
		llmClient, err := setupLLM(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
		}
		answerCache, err := setupCache(cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}

		a.pipeline = services.NewQueryPipeline(a.store, embedder, llmClient,
			services.WithAnswerCache(answerCache, cfg.Query.CacheTTL),
			services.WithQueryHistory(queryRepo),
			services.WithCompletionParams(cfg.LLM.MaxTokens, cfg.LLM.Temperature),
			services.WithQueryLogger(a.logger),
		)
	}

	if opts.queue && cfg.Queue.Enabled {
		a.queue, err = setupTaskQueue(cfg.Queue, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize task queue: %w", err)
		}
		a.closers = append(a.closers, a.queue.Close)
		a.logger.Info("Task queue initialized successfully")
	}

	indexer := services.NewIndexer(a.store, embedder,
		services.WithEmbedBatchSize(cfg.Extract.EmbedBatchSize),
		services.WithEmbedWorkers(cfg.Embed.Workers),
		services.WithWriteBatchSize(cfg.Extract.WriteBatchSize),
		services.WithIndexerLogger(a.logger),
	)

	ingestOpts := []services.IngestOption{
		services.WithDocumentOptions(documentOptions(cfg.Extract, a.logger)...),
		services.WithAssembler(newAssembler(cfg.Extract, a.logger)),
		services.WithTempDir(cfg.Extract.TempDir),
		services.WithIngestLogger(a.logger),
	}
	if docRepo != nil {
		ingestOpts = append(ingestOpts,
			services.WithDocumentRepository(docRepo),
			services.WithQueryRepository(queryRepo),
		)
	}
	if a.queue != nil {
		ingestOpts = append(ingestOpts, services.WithTaskQueue(a.queue))
	}
	if a.pipeline != nil {
		ingestOpts = append(ingestOpts, services.WithQueryPipeline(a.pipeline))
	}
	a.ingest = services.NewIngestionService(services.NewArtifactStore(fileStorage), indexer, a.store, ingestOpts...)

	ok = true
	return a, nil
}

// newExtractor 构建只做结构化的入库服务，不连接存储和模型
func newExtractor(cfg *config.Config) *services.IngestionService {
	logger := middleware.GetLogger()
	return services.NewIngestionService(nil, nil, nil,
		services.WithDocumentOptions(documentOptions(cfg.Extract, logger)...),
		services.WithAssembler(newAssembler(cfg.Extract, logger)),
		services.WithIngestLogger(logger),
	)
}

func newAssembler(c config.ExtractConfig, logger *logrus.Logger) *structure.Assembler {
	return structure.NewAssembler(
		structure.WithWorkers(c.Workers),
		structure.WithLogger(logger),
	)
}

// documentOptions 页面文本源配置，OCR引擎可以是本地 tesseract 或 HTTP 服务
func documentOptions(c config.ExtractConfig, logger *logrus.Logger) []document.Option {
	opts := []document.Option{
		document.WithReader(c.Reader),
		document.WithMinTextChars(c.OCR.MinTextChars),
		document.WithDPI(c.OCR.DPI),
		document.WithTableDetection(c.DetectTables),
		document.WithLogger(logger),
	}
	if !c.OCR.Enabled {
		return opts
	}

	var engine document.OCREngine
	if c.OCR.Engine == "http" && c.OCR.URL != "" {
		engine = document.NewHTTPOCREngine(c.OCR.URL, c.OCR.Timeout, c.OCR.MaxRetries)
	} else {
		engine = document.NewTesseractEngine(c.OCR.Command, c.OCR.Language)
	}
	return append(opts, document.WithOCR(document.NewCommandRasterizer(c.OCR.Rasterizer), engine))
}

// setupDatabase 设置数据库
func setupDatabase(c config.DatabaseConfig, logger *logrus.Logger) error {
	dbConfig := database.DefaultConfig()
	if c.Type != "" {
		dbConfig.Type = c.Type
	}
	if c.DSN != "" {
		dbConfig.DSN = c.DSN
	}
	return database.Setup(dbConfig, logger)
}

// setupStorage 设置文件存储服务
func setupStorage(c config.StorageConfig) (storage.Storage, error) {
	if c.Type == "" || c.Type == "local" {
		if err := os.MkdirAll(c.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return storage.New(storage.Config{
		Type:  c.Type,
		Local: storage.LocalConfig{Path: c.Path},
		Minio: storage.MinioConfig{
			Endpoint:  c.Minio.Endpoint,
			AccessKey: c.Minio.AccessKey,
			SecretKey: c.Minio.SecretKey,
			UseSSL:    c.Minio.UseSSL,
			Bucket:    c.Minio.Bucket,
		},
	})
}

// setupVectorDB 设置向量数据库
func setupVectorDB(c config.VectorDBConfig, logger *logrus.Logger) (vectordb.Store, error) {
	if c.Type == "faiss" && c.Path != "" {
		if err := os.MkdirAll(filepath.Clean(c.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create vector database directory: %w", err)
		}
	}
	return vectordb.NewStore(vectordb.Config{
		Type:         c.Type,
		Path:         c.Path,
		Dimension:    c.Dimension,
		DistanceType: vectordb.DistanceType(c.Distance),
		Milvus: vectordb.MilvusConfig{
			Address:  c.Milvus.Address,
			Username: c.Milvus.Username,
			Password: c.Milvus.Password,
			DBName:   c.Milvus.DBName,
		},
		Logger: logger,
	})
}

// setupEmbedding 设置嵌入模型客户端
func setupEmbedding(c config.EmbedConfig) (embedding.Client, error) {
	return embedding.NewClient(c.Provider,
		embedding.WithAPIKey(c.APIKey),
		embedding.WithBaseURL(c.BaseURL),
		embedding.WithModel(c.Model),
		embedding.WithDimensions(c.Dimension),
		embedding.WithTimeout(c.Timeout),
		embedding.WithMaxRetries(c.MaxRetries),
		embedding.WithBatchSize(c.BatchSize),
		embedding.WithRateLimit(c.RateLimit, c.Burst),
	)
}

// setupLLM 设置大语言模型客户端
func setupLLM(c config.LLMConfig) (llm.Client, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("LLM API key is required (set GROQ_API_KEY or llm.api_key)")
	}
	return llm.NewClient(c.Provider,
		llm.WithAPIKey(c.APIKey),
		llm.WithBaseURL(c.BaseURL),
		llm.WithModel(c.Model),
		llm.WithMaxTokens(c.MaxTokens),
		llm.WithTemperature(c.Temperature),
		llm.WithTimeout(c.Timeout),
		llm.WithMaxRetries(c.MaxRetries),
		llm.WithRateLimit(c.RateLimit, c.Burst),
	)
}

// setupCache 设置回答缓存
func setupCache(c config.CacheConfig) (cache.Cache, error) {
	cacheConfig := cache.DefaultConfig()
	cacheConfig.Type = c.Type
	if c.Namespace != "" {
		cacheConfig.Namespace = c.Namespace
	}
	if c.Type == "redis" {
		cacheConfig.RedisAddr = c.Address
		cacheConfig.RedisPassword = c.Password
		cacheConfig.RedisDB = c.DB
	}
	return cache.NewCache(cacheConfig)
}

// setupTaskQueue 设置任务队列
func setupTaskQueue(c config.QueueConfig, logger *logrus.Logger) (taskqueue.Queue, error) {
	queueConfig := taskqueue.DefaultConfig()
	queueConfig.RedisAddr = c.RedisAddr
	queueConfig.RedisPassword = c.RedisPassword
	queueConfig.RedisDB = c.RedisDB
	queueConfig.Logger = logger
	if c.Concurrency > 0 {
		queueConfig.Concurrency = c.Concurrency
	}
	if c.RetryLimit >= 0 {
		queueConfig.RetryLimit = c.RetryLimit
	}
	if c.RetryDelay > 0 {
		queueConfig.RetryDelay = c.RetryDelay
	}
	if c.TaskTimeout > 0 {
		queueConfig.TaskTimeout = c.TaskTimeout
	}

	logger.WithFields(logrus.Fields{
		"type":        c.Type,
		"redis_addr":  c.RedisAddr,
		"concurrency": queueConfig.Concurrency,
		"retry_limit": queueConfig.RetryLimit,
	}).Info("Setting up task queue")

	return taskqueue.NewQueue(c.Type, queueConfig)
}

// startWorker 在本进程内启动任务处理者
func startWorker(a *app) (func(), error) {
	rq, ok := a.queue.(*taskqueue.RedisQueue)
	if !ok {
		return nil, fmt.Errorf("task worker requires the redis queue, got %T", a.queue)
	}
	worker := taskqueue.NewRedisWorker(rq, nil)
	taskqueue.RegisterHandlers(worker, a.ingest.TaskHandler())
	if err := worker.Start(); err != nil {
		return nil, fmt.Errorf("failed to start task worker: %w", err)
	}
	return worker.Stop, nil
}

// shutdownTimeout 优雅关闭的最长等待时间
const shutdownTimeout = 10 * time.Second
