package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/regdoc-rag/internal/embedding"
	"github.com/fyerfyer/regdoc-rag/internal/structure"
	"github.com/fyerfyer/regdoc-rag/internal/vectordb"
)

// 元数据键
const (
	MetaPage   = "page"
	MetaClause = "clause"
	MetaTitle  = "title"
	MetaFileID = "file_id"
)

// Indexer 将文档记录向量化并写入集合
// 向量化按批并行，写入按批顺序执行；失败时不回滚已写入的条目
type Indexer struct {
	store      vectordb.Store
	batch      *embedding.BatchProcessor
	writeBatch int
	logger     *logrus.Logger
	newID      func() string
}

// IndexerOption 索引器配置选项
type IndexerOption func(*indexerConfig)

type indexerConfig struct {
	embedBatch int
	workers    int
	writeBatch int
	logger     *logrus.Logger
}

// WithEmbedBatchSize 设置单次向量化请求的文本数量
func WithEmbedBatchSize(n int) IndexerOption {
	return func(c *indexerConfig) {
		c.embedBatch = n
	}
}

// WithEmbedWorkers 设置并行向量化的协程数
func WithEmbedWorkers(n int) IndexerOption {
	return func(c *indexerConfig) {
		c.workers = n
	}
}

// WithWriteBatchSize 设置每次写入向量库的条目数
func WithWriteBatchSize(n int) IndexerOption {
	return func(c *indexerConfig) {
		if n > 0 {
			c.writeBatch = n
		}
	}
}

// WithIndexerLogger 设置日志记录器
func WithIndexerLogger(logger *logrus.Logger) IndexerOption {
	return func(c *indexerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewIndexer 创建索引器
func NewIndexer(store vectordb.Store, embedder embedding.Client, opts ...IndexerOption) *Indexer {
	cfg := &indexerConfig{
		embedBatch: 16,
		workers:    4,
		writeBatch: 64,
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Indexer{
		store:      store,
		batch:      embedding.NewBatchProcessor(embedder, cfg.embedBatch, cfg.workers),
		writeBatch: cfg.writeBatch,
		logger:     cfg.logger,
		newID:      func() string { return uuid.New().String() },
	}
}

// IndexOptions 单次索引的参数
type IndexOptions struct {
	// FileID 来源文件标识，非空时写入元数据
	FileID string
	// OnBatch 每批条目写入成功后调用，用于登记已写入的条目
	OnBatch func(entries []vectordb.Entry) error
}

// BuildBlob 将文档记录展开为一段用于向量化的文本
// 依次为条款标题、非空段落、表格（标题、表头、各行、备注）和图片标题，以单个空格连接
func BuildBlob(r structure.DocumentRecord) string {
	var parts []string
	if r.ClauseNumber != "" {
		parts = append(parts, fmt.Sprintf("Clause %s: %s", r.ClauseNumber, r.ClauseTitle))
	}
	for _, p := range r.Paragraphs {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	for _, t := range r.Tables {
		if t.Title != "" {
			parts = append(parts, "Table: "+t.Title)
		}
		parts = append(parts, strings.Join(t.Columns, " | "))
		for _, row := range t.Rows {
			parts = append(parts, strings.Join(row, " | "))
		}
		for _, note := range t.Notes {
			parts = append(parts, "Note: "+note)
		}
	}
	for _, f := range r.Figures {
		parts = append(parts, fmt.Sprintf("Figure %s: %s", f.FigureNumber, f.Title))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Index 将记录写入集合（不存在时创建），返回写入的条目数
// 空文本的记录被跳过；出错时返回已写入的数量和错误
func (ix *Indexer) Index(ctx context.Context, collection string, records []structure.DocumentRecord, opts IndexOptions) (int, error) {
	if err := vectordb.ValidateCollectionName(collection); err != nil {
		return 0, err
	}

	var pending []vectordb.Entry
	for _, r := range records {
		blob := BuildBlob(r)
		if blob == "" {
			continue
		}
		meta := map[string]interface{}{
			MetaPage:   r.Page,
			MetaClause: r.ClauseNumber,
			MetaTitle:  r.ClauseTitle,
		}
		if opts.FileID != "" {
			meta[MetaFileID] = opts.FileID
		}
		pending = append(pending, vectordb.Entry{
			ID:       ix.newID(),
			Text:     blob,
			Metadata: meta,
		})
	}

	logger := ix.logger.WithFields(logrus.Fields{
		"collection": collection,
		"file_id":    opts.FileID,
		"records":    len(records),
	})
	if len(pending) == 0 {
		logger.Info("No indexable records")
		return 0, nil
	}

	coll, err := ix.store.CreateOrGet(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("failed to open collection %s: %w", collection, err)
	}

	written := 0
	for start := 0; start < len(pending); start += ix.writeBatch {
		end := start + ix.writeBatch
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, e := range batch {
			texts[i] = e.Text
		}
		vectors, err := ix.batch.Process(ctx, texts)
		if err != nil {
			logger.WithError(err).WithField("entries", written).Error("Embedding failed, index is partial")
			return written, fmt.Errorf("failed to embed records: %w", err)
		}
		for i := range batch {
			batch[i].Vector = vectors[i]
		}

		if err := coll.Add(ctx, batch); err != nil {
			logger.WithError(err).WithField("entries", written).Error("Vector store write failed, index is partial")
			return written, fmt.Errorf("failed to write entries: %w", err)
		}
		written += len(batch)

		if opts.OnBatch != nil {
			if err := opts.OnBatch(batch); err != nil {
				return written, fmt.Errorf("failed to record entries: %w", err)
			}
		}
	}

	logger.WithField("entries", written).Info("Records indexed")
	return written, nil
}
