package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/fyerfyer/regdoc-rag/internal/document"
	"github.com/fyerfyer/regdoc-rag/internal/models"
	"github.com/fyerfyer/regdoc-rag/internal/repository"
	"github.com/fyerfyer/regdoc-rag/internal/structure"
	"github.com/fyerfyer/regdoc-rag/internal/vectordb"
	"github.com/fyerfyer/regdoc-rag/pkg/taskqueue"
)

// UploadRequest 上传入库请求
type UploadRequest struct {
	FileName   string            // 原始文件名，文件标识由此得到
	Collection string            // 目标集合
	Mode       models.IngestMode // 重复入库策略
	Body       io.Reader         // PDF内容
	Size       int64             // 内容长度，未知时为 -1
}

// IngestResult 入库结果
type IngestResult struct {
	SourceID    string              `json:"source_id"`
	FileID      string              `json:"file_id"`
	FileName    string              `json:"file_name"`
	Collection  string              `json:"collection"`
	Mode        models.IngestMode   `json:"mode"`
	Status      models.IngestStatus `json:"status"`
	Pages       int                 `json:"pages"`
	Records     int                 `json:"records"`
	Entries     int                 `json:"entries"`
	OCRPages    int                 `json:"ocr_pages"`
	FailedPages []int               `json:"failed_pages,omitempty"`
	Artifact    string              `json:"artifact"`
	TaskID      string              `json:"task_id,omitempty"`
}

// DeleteResult 删除文件的结果
type DeleteResult struct {
	FileID          string `json:"file_id"`
	ArtifactDeleted bool   `json:"artifact_deleted"`
	Purged          int    `json:"purged"`
}

// CollectionInfo 集合概要
type CollectionInfo struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// IngestionService 文档入库服务
// 负责协调上传保存、结构化、结果持久化、向量写入和入库记录
type IngestionService struct {
	artifacts *ArtifactStore
	indexer   *Indexer
	store     vectordb.Store
	assembler *structure.Assembler
	docOpts   []document.Option
	repo      repository.DocumentRepository
	queries   repository.QueryRepository
	queue     taskqueue.Queue
	pipeline  *QueryPipeline
	tempDir   string
	logger    *logrus.Logger
}

// IngestOption 入库服务配置选项
type IngestOption func(*IngestionService)

// WithDocumentOptions 设置PDF读取选项（读取器、OCR、表格检测）
func WithDocumentOptions(opts ...document.Option) IngestOption {
	return func(s *IngestionService) {
		s.docOpts = append(s.docOpts, opts...)
	}
}

// WithAssembler 设置文档组装器
func WithAssembler(a *structure.Assembler) IngestOption {
	return func(s *IngestionService) {
		if a != nil {
			s.assembler = a
		}
	}
}

// WithDocumentRepository 设置入库记录仓储
func WithDocumentRepository(repo repository.DocumentRepository) IngestOption {
	return func(s *IngestionService) {
		s.repo = repo
	}
}

// WithQueryRepository 设置问答记录仓储，删除集合时一并清理
func WithQueryRepository(repo repository.QueryRepository) IngestOption {
	return func(s *IngestionService) {
		s.queries = repo
	}
}

// WithTaskQueue 设置任务队列，启用异步入库
func WithTaskQueue(q taskqueue.Queue) IngestOption {
	return func(s *IngestionService) {
		s.queue = q
	}
}

// WithQueryPipeline 集合变更时清除该流水线的缓存回答
func WithQueryPipeline(p *QueryPipeline) IngestOption {
	return func(s *IngestionService) {
		s.pipeline = p
	}
}

// WithTempDir 设置处理PDF时使用的临时目录
func WithTempDir(dir string) IngestOption {
	return func(s *IngestionService) {
		s.tempDir = dir
	}
}

// WithIngestLogger 设置日志记录器
func WithIngestLogger(logger *logrus.Logger) IngestOption {
	return func(s *IngestionService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewIngestionService 创建入库服务
func NewIngestionService(artifacts *ArtifactStore, indexer *Indexer, store vectordb.Store, opts ...IngestOption) *IngestionService {
	s := &IngestionService{
		artifacts: artifacts,
		indexer:   indexer,
		store:     store,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.assembler == nil {
		s.assembler = structure.NewAssembler(structure.WithLogger(s.logger))
	}
	return s
}

// AsyncEnabled 是否配置了任务队列
func (s *IngestionService) AsyncEnabled() bool {
	return s.queue != nil
}

// Extract 结构化本地PDF文件
func (s *IngestionService) Extract(ctx context.Context, path string) (*structure.Extraction, error) {
	pdf, err := document.Open(path, s.docOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer pdf.Close()

	ext, err := s.assembler.Assemble(ctx, pdf, pdf)
	if err != nil {
		return nil, err
	}
	if failed := ext.FailedPages(); len(failed) > 0 {
		s.logger.WithFields(logrus.Fields{
			"path":         path,
			"failed_pages": failed,
		}).Warn("Some pages degraded during extraction")
	}
	return ext, nil
}

// Upload 同步处理上传的PDF：保存、结构化、写入结果文件并建立索引
func (s *IngestionService) Upload(ctx context.Context, req UploadRequest) (*IngestResult, error) {
	doc, key, err := s.accept(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.process(ctx, doc, key)
}

// UploadAsync 保存上传的PDF并提交入库任务，立即返回任务ID
func (s *IngestionService) UploadAsync(ctx context.Context, req UploadRequest) (*IngestResult, error) {
	if s.queue == nil {
		return nil, ErrQueueDisabled
	}
	doc, key, err := s.accept(ctx, req)
	if err != nil {
		return nil, err
	}

	taskID, err := s.queue.Enqueue(ctx, taskqueue.TaskIngestDocument, doc.FileID, taskqueue.IngestPayload{
		SourceID:   doc.ID,
		FileID:     doc.FileID,
		FileName:   doc.FileName,
		StorageKey: key,
		Collection: doc.Collection,
		Mode:       string(doc.Mode),
	})
	if err != nil {
		s.fail(ctx, doc, err)
		return nil, fmt.Errorf("failed to enqueue ingestion: %w", err)
	}
	doc.TaskID = taskID
	s.save(ctx, doc)

	s.logger.WithFields(logrus.Fields{
		"file_id":    doc.FileID,
		"collection": doc.Collection,
		"task_id":    taskID,
	}).Info("Ingestion task enqueued")

	res := resultFromDoc(doc)
	res.TaskID = taskID
	return res, nil
}

// IngestFile 入库本地PDF文件
func (s *IngestionService) IngestFile(ctx context.Context, path, collection string, mode models.IngestMode) (*IngestResult, error) {
	return s.withFile(path, collection, mode, func(req UploadRequest) (*IngestResult, error) {
		return s.Upload(ctx, req)
	})
}

// IngestFileAsync 保存本地PDF文件并提交入库任务
func (s *IngestionService) IngestFileAsync(ctx context.Context, path, collection string, mode models.IngestMode) (*IngestResult, error) {
	return s.withFile(path, collection, mode, func(req UploadRequest) (*IngestResult, error) {
		return s.UploadAsync(ctx, req)
	})
}

func (s *IngestionService) withFile(path, collection string, mode models.IngestMode, fn func(UploadRequest) (*IngestResult, error)) (*IngestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	size := int64(-1)
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	return fn(UploadRequest{
		FileName:   filepath.Base(path),
		Collection: collection,
		Mode:       mode,
		Body:       f,
		Size:       size,
	})
}

// IndexArtifact 将已保存的结构化结果重新写入集合
func (s *IngestionService) IndexArtifact(ctx context.Context, fileID, collection string, mode models.IngestMode) (*IngestResult, error) {
	records, err := s.artifacts.Load(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return s.IndexRecords(ctx, fileID, collection, records, mode)
}

// IndexRecords 将结构化记录写入集合并登记
func (s *IngestionService) IndexRecords(ctx context.Context, fileID, collection string, records []structure.DocumentRecord, mode models.IngestMode) (*IngestResult, error) {
	if err := ValidateFileID(fileID); err != nil {
		return nil, err
	}
	if err := vectordb.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	parsed, ok := models.ParseIngestMode(string(mode))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}
	mode = parsed

	doc := &models.SourceDocument{
		FileID:     fileID,
		FileName:   fileID + ".json",
		Collection: collection,
		Mode:       mode,
		Status:     models.IngestProcessing,
		Records:    len(records),
	}
	if err := s.create(ctx, doc); err != nil {
		return nil, err
	}

	entries, err := s.index(ctx, doc, records)
	doc.Entries = entries
	if err != nil {
		s.fail(ctx, doc, err)
		return resultFromDoc(doc), err
	}
	s.complete(ctx, doc)
	res := resultFromDoc(doc)
	res.Artifact = ArtifactKey(fileID)
	return res, nil
}

// GetArtifact 读取结构化结果的原始JSON
func (s *IngestionService) GetArtifact(ctx context.Context, fileID string) ([]byte, error) {
	return s.artifacts.Raw(ctx, fileID)
}

// LoadArtifact 读取结构化结果
func (s *IngestionService) LoadArtifact(ctx context.Context, fileID string) ([]structure.DocumentRecord, error) {
	return s.artifacts.Load(ctx, fileID)
}

// DeleteFile 删除文件的结构化结果和上传的PDF
// purge 为 true 时同时删除该文件在各集合中已写入的条目
func (s *IngestionService) DeleteFile(ctx context.Context, fileID string, purge bool) (*DeleteResult, error) {
	if err := ValidateFileID(fileID); err != nil {
		return nil, err
	}
	res := &DeleteResult{FileID: fileID}

	err := s.artifacts.Delete(ctx, fileID)
	switch {
	case err == nil:
		res.ArtifactDeleted = true
	case errors.Is(err, ErrArtifactNotFound):
	default:
		return nil, err
	}
	if err := s.artifacts.DeleteUpload(ctx, fileID); err != nil {
		s.logger.WithError(err).WithField("file_id", fileID).Warn("Failed to delete uploaded PDF")
	}

	if purge {
		if s.repo == nil {
			return res, ErrBookkeepingRequired
		}
		names, err := s.store.List(ctx)
		if err != nil {
			return res, fmt.Errorf("failed to list collections: %w", err)
		}
		for _, name := range names {
			n, err := s.removeFileEntries(ctx, fileID, name)
			res.Purged += n
			if err != nil {
				return res, err
			}
		}
	}

	s.logger.WithFields(logrus.Fields{
		"file_id": fileID,
		"purge":   purge,
		"purged":  res.Purged,
	}).Info("File deleted")
	return res, nil
}

// ListCollections 列出集合及其条目数
func (s *IngestionService) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	names, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]CollectionInfo, 0, len(names))
	for _, name := range names {
		info := CollectionInfo{Name: name}
		if coll, err := s.store.Get(ctx, name); err == nil {
			if n, err := coll.Count(ctx); err == nil {
				info.Count = n
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// DeleteCollection 删除集合及其条目记录、问答记录和缓存
func (s *IngestionService) DeleteCollection(ctx context.Context, name string) error {
	if err := s.store.Delete(ctx, name); err != nil {
		return err
	}
	if s.repo != nil {
		if err := s.repo.WithContext(ctx).DeleteCollection(name); err != nil {
			s.logger.WithError(err).WithField("collection", name).Warn("Failed to delete entry records")
		}
	}
	if s.queries != nil {
		if err := s.queries.DeleteCollection(name); err != nil {
			s.logger.WithError(err).WithField("collection", name).Warn("Failed to delete query history")
		}
	}
	s.invalidate(name)
	s.logger.WithField("collection", name).Info("Collection deleted")
	return nil
}

// ReindexCollection 删除并重建集合，数据来自曾写入该集合的全部结构化结果
func (s *IngestionService) ReindexCollection(ctx context.Context, name string) (*taskqueue.ReindexResult, error) {
	if s.repo == nil {
		return nil, ErrBookkeepingRequired
	}
	if err := vectordb.ValidateCollectionName(name); err != nil {
		return nil, err
	}
	fileIDs, err := s.repo.WithContext(ctx).FileIDsByCollection(name)
	if err != nil {
		return nil, err
	}
	if len(fileIDs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	if err := s.dropCollection(ctx, name); err != nil {
		return nil, err
	}

	res := &taskqueue.ReindexResult{Collection: name, Files: []string{}}
	for _, fileID := range fileIDs {
		records, err := s.artifacts.Load(ctx, fileID)
		if errors.Is(err, ErrArtifactNotFound) {
			s.logger.WithFields(logrus.Fields{
				"collection": name,
				"file_id":    fileID,
			}).Warn("Artifact missing, skipping file during reindex")
			continue
		}
		if err != nil {
			return res, err
		}
		r, err := s.IndexRecords(ctx, fileID, name, records, models.ModeAppend)
		if r != nil {
			res.Entries += r.Entries
		}
		if err != nil {
			return res, err
		}
		res.Files = append(res.Files, fileID)
	}

	s.logger.WithFields(logrus.Fields{
		"collection": name,
		"files":      len(res.Files),
		"entries":    res.Entries,
	}).Info("Collection reindexed")
	return res, nil
}

// ReindexAsync 提交重建集合任务
func (s *IngestionService) ReindexAsync(ctx context.Context, name string) (string, error) {
	if s.queue == nil {
		return "", ErrQueueDisabled
	}
	if err := vectordb.ValidateCollectionName(name); err != nil {
		return "", err
	}
	return s.queue.Enqueue(ctx, taskqueue.TaskReindexCollection, "", taskqueue.ReindexPayload{Collection: name})
}

// Task 查询异步任务
func (s *IngestionService) Task(ctx context.Context, id string) (*taskqueue.Task, error) {
	if s.queue == nil {
		return nil, ErrQueueDisabled
	}
	return s.queue.GetTask(ctx, id)
}

// Sources 列出入库记录
func (s *IngestionService) Sources(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.SourceDocument, int64, error) {
	if s.repo == nil {
		return nil, 0, ErrBookkeepingRequired
	}
	return s.repo.WithContext(ctx).List(offset, limit, filters)
}

// TaskHandler 返回处理入库和重建任务的处理器
func (s *IngestionService) TaskHandler() taskqueue.Handler {
	return taskqueue.HandlerFunc{
		Types: []taskqueue.TaskType{taskqueue.TaskIngestDocument, taskqueue.TaskReindexCollection},
		Fn:    s.handleTask,
	}
}

func (s *IngestionService) handleTask(ctx context.Context, task *taskqueue.Task) (interface{}, error) {
	switch task.Type {
	case taskqueue.TaskIngestDocument:
		var p taskqueue.IngestPayload
		if err := taskqueue.DecodePayload(task, &p); err != nil {
			return nil, err
		}
		doc, err := s.sourceForTask(ctx, task, p)
		if err != nil {
			return nil, err
		}
		res, err := s.process(ctx, doc, p.StorageKey)
		if err != nil {
			return nil, err
		}
		return taskqueue.IngestResult{
			SourceID:   res.SourceID,
			FileID:     res.FileID,
			Collection: res.Collection,
			Pages:      res.Pages,
			Records:    res.Records,
			Entries:    res.Entries,
			OCRPages:   res.OCRPages,
			Artifact:   res.Artifact,
		}, nil

	case taskqueue.TaskReindexCollection:
		var p taskqueue.ReindexPayload
		if err := taskqueue.DecodePayload(task, &p); err != nil {
			return nil, err
		}
		return s.ReindexCollection(ctx, p.Collection)
	}
	return nil, fmt.Errorf("unsupported task type: %s", task.Type)
}

// sourceForTask 取回任务对应的入库记录，没有仓储时由载荷重建
func (s *IngestionService) sourceForTask(ctx context.Context, task *taskqueue.Task, p taskqueue.IngestPayload) (*models.SourceDocument, error) {
	if s.repo != nil && p.SourceID != "" {
		doc, err := s.repo.WithContext(ctx).GetByID(p.SourceID)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, models.ErrDocumentNotFound) {
			return nil, err
		}
	}
	mode, ok := models.ParseIngestMode(p.Mode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, p.Mode)
	}
	doc := &models.SourceDocument{
		ID:         p.SourceID,
		FileID:     p.FileID,
		FileName:   p.FileName,
		Collection: p.Collection,
		Mode:       mode,
		Status:     models.IngestPending,
		TaskID:     task.ID,
	}
	if err := s.create(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// accept 校验请求、保存上传文件并创建入库记录
func (s *IngestionService) accept(ctx context.Context, req UploadRequest) (*models.SourceDocument, string, error) {
	fileID, err := FileIDFromName(req.FileName)
	if err != nil {
		return nil, "", err
	}
	if err := vectordb.ValidateCollectionName(req.Collection); err != nil {
		return nil, "", err
	}
	mode, ok := models.ParseIngestMode(string(req.Mode))
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrInvalidMode, req.Mode)
	}
	if mode == models.ModeReplace && s.repo == nil {
		return nil, "", ErrBookkeepingRequired
	}

	key, err := s.artifacts.SaveUpload(ctx, fileID, req.Body, req.Size)
	if err != nil {
		return nil, "", err
	}

	doc := &models.SourceDocument{
		FileID:     fileID,
		FileName:   req.FileName,
		Collection: req.Collection,
		Mode:       mode,
		Status:     models.IngestPending,
	}
	if err := s.create(ctx, doc); err != nil {
		return nil, "", err
	}
	return doc, key, nil
}

// process 结构化上传的PDF，保存结果文件并写入集合
func (s *IngestionService) process(ctx context.Context, doc *models.SourceDocument, uploadKey string) (*IngestResult, error) {
	logger := s.logger.WithFields(logrus.Fields{
		"source_id":  doc.ID,
		"file_id":    doc.FileID,
		"collection": doc.Collection,
	})
	doc.Status = models.IngestProcessing
	doc.Error = ""
	s.save(ctx, doc)

	path, cleanup, err := s.localCopy(ctx, uploadKey)
	if err != nil {
		s.fail(ctx, doc, err)
		return nil, err
	}
	defer cleanup()

	start := time.Now()
	ext, err := s.Extract(ctx, path)
	if err != nil {
		s.fail(ctx, doc, err)
		return nil, err
	}
	doc.Pages = len(ext.Pages)
	doc.Records = len(ext.Records)
	doc.OCRPages = ext.OCRPages()

	artifact, err := s.artifacts.Save(ctx, doc.FileID, ext.Records)
	if err != nil {
		s.fail(ctx, doc, err)
		return nil, err
	}
	doc.Metadata = ingestMetadata(artifact, ext.FailedPages())

	entries, err := s.index(ctx, doc, ext.Records)
	doc.Entries = entries
	if err != nil {
		s.fail(ctx, doc, err)
		return nil, err
	}
	s.complete(ctx, doc)

	logger.WithFields(logrus.Fields{
		"pages":   doc.Pages,
		"records": doc.Records,
		"entries": entries,
		"latency": time.Since(start).String(),
	}).Info("Document ingested")

	res := resultFromDoc(doc)
	res.Artifact = artifact
	res.FailedPages = ext.FailedPages()
	return res, nil
}

// index 按入库策略清理旧数据后写入记录
func (s *IngestionService) index(ctx context.Context, doc *models.SourceDocument, records []structure.DocumentRecord) (int, error) {
	switch doc.Mode {
	case models.ModeReplace:
		if s.repo == nil {
			return 0, ErrBookkeepingRequired
		}
		if _, err := s.removeFileEntries(ctx, doc.FileID, doc.Collection); err != nil {
			return 0, err
		}
	case models.ModeRecreate:
		if err := s.dropCollection(ctx, doc.Collection); err != nil {
			return 0, err
		}
	}

	n, err := s.indexer.Index(ctx, doc.Collection, records, IndexOptions{
		FileID:  doc.FileID,
		OnBatch: s.entryRecorder(ctx, doc),
	})
	s.invalidate(doc.Collection)
	return n, err
}

// entryRecorder 登记每批写入的条目
func (s *IngestionService) entryRecorder(ctx context.Context, doc *models.SourceDocument) func([]vectordb.Entry) error {
	if s.repo == nil {
		return nil
	}
	return func(entries []vectordb.Entry) error {
		rows := make([]*models.IndexedEntry, len(entries))
		for i, e := range entries {
			page, _ := e.Metadata[MetaPage].(int)
			clause, _ := e.Metadata[MetaClause].(string)
			rows[i] = &models.IndexedEntry{
				EntryID:    e.ID,
				SourceID:   doc.ID,
				FileID:     doc.FileID,
				Collection: doc.Collection,
				Page:       page,
				Clause:     clause,
			}
		}
		return s.repo.WithContext(ctx).SaveEntries(rows)
	}
}

// removeFileEntries 删除文件在集合中登记过的条目，返回删除数量
func (s *IngestionService) removeFileEntries(ctx context.Context, fileID, collection string) (int, error) {
	repo := s.repo.WithContext(ctx)
	ids, err := repo.EntryIDs(fileID, collection)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	coll, err := s.store.Get(ctx, collection)
	switch {
	case errors.Is(err, vectordb.ErrCollectionNotFound):
	case err != nil:
		return 0, err
	default:
		if err := coll.DeleteEntries(ctx, ids); err != nil {
			return 0, fmt.Errorf("failed to delete entries: %w", err)
		}
	}
	if err := repo.DeleteEntries(fileID, collection); err != nil {
		return 0, err
	}
	s.invalidate(collection)

	s.logger.WithFields(logrus.Fields{
		"file_id":    fileID,
		"collection": collection,
		"entries":    len(ids),
	}).Info("Previous entries removed")
	return len(ids), nil
}

// dropCollection 删除集合（不存在时忽略）及其条目记录
func (s *IngestionService) dropCollection(ctx context.Context, name string) error {
	if err := s.store.Delete(ctx, name); err != nil && !errors.Is(err, vectordb.ErrCollectionNotFound) {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	if s.repo != nil {
		if err := s.repo.WithContext(ctx).DeleteCollection(name); err != nil {
			return err
		}
	}
	s.invalidate(name)
	return nil
}

func (s *IngestionService) invalidate(collection string) {
	if s.pipeline == nil {
		return
	}
	if err := s.pipeline.InvalidateCollection(collection); err != nil {
		s.logger.WithError(err).WithField("collection", collection).Warn("Failed to invalidate cached answers")
	}
}

// localCopy 将上传的PDF复制到临时文件，PDF读取器需要本地路径
func (s *IngestionService) localCopy(ctx context.Context, key string) (string, func(), error) {
	rc, err := s.artifacts.OpenUpload(ctx, key)
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer rc.Close()

	f, err := os.CreateTemp(s.tempDir, "regdoc-*.pdf")
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("failed to copy upload: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return f.Name(), cleanup, nil
}

func (s *IngestionService) create(ctx context.Context, doc *models.SourceDocument) error {
	if s.repo == nil {
		if doc.ID == "" {
			doc.ID = models.NewID()
		}
		return nil
	}
	if err := s.repo.WithContext(ctx).Create(doc); err != nil {
		return fmt.Errorf("failed to create source record: %w", err)
	}
	return nil
}

// save 更新入库记录，失败只记录日志
func (s *IngestionService) save(ctx context.Context, doc *models.SourceDocument) {
	if s.repo == nil {
		return
	}
	if err := s.repo.WithContext(ctx).Update(doc); err != nil {
		s.logger.WithError(err).WithField("source_id", doc.ID).Warn("Failed to update source record")
	}
}

func (s *IngestionService) fail(ctx context.Context, doc *models.SourceDocument, err error) {
	doc.Status = models.IngestFailed
	doc.Error = err.Error()
	s.save(ctx, doc)
	s.logger.WithError(err).WithFields(logrus.Fields{
		"file_id":    doc.FileID,
		"collection": doc.Collection,
		"entries":    doc.Entries,
	}).Error("Ingestion failed")
}

func (s *IngestionService) complete(ctx context.Context, doc *models.SourceDocument) {
	now := time.Now()
	doc.Status = models.IngestCompleted
	doc.Error = ""
	doc.CompletedAt = &now
	s.save(ctx, doc)
}

func ingestMetadata(artifact string, failedPages []int) datatypes.JSON {
	if failedPages == nil {
		failedPages = []int{}
	}
	data, _ := json.Marshal(map[string]interface{}{
		"artifact":     artifact,
		"failed_pages": failedPages,
	})
	return datatypes.JSON(data)
}

func resultFromDoc(doc *models.SourceDocument) *IngestResult {
	return &IngestResult{
		SourceID:   doc.ID,
		FileID:     doc.FileID,
		FileName:   doc.FileName,
		Collection: doc.Collection,
		Mode:       doc.Mode,
		Status:     doc.Status,
		Pages:      doc.Pages,
		Records:    doc.Records,
		Entries:    doc.Entries,
		OCRPages:   doc.OCRPages,
	}
}
