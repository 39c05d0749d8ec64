package services

import (
	"errors"
	"fmt"

	"github.com/fyerfyer/regdoc-rag/internal/vectordb"
)

var (
	// ErrCollectionNotFound 查询的集合不存在
	ErrCollectionNotFound = vectordb.ErrCollectionNotFound

	// ErrArtifactNotFound 结构化结果不存在
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrInvalidFileID 无法从文件名得到合法的文件标识
	ErrInvalidFileID = errors.New("invalid file id")

	// ErrEmptyQuery 问题为空
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrInvalidMode 未知的入库策略
	ErrInvalidMode = errors.New("invalid ingest mode")

	// ErrBookkeepingRequired 操作需要入库记录支持
	ErrBookkeepingRequired = errors.New("operation requires ingestion bookkeeping")

	// ErrQueueDisabled 未配置任务队列
	ErrQueueDisabled = errors.New("task queue is not enabled")
)

// RetrievalError 检索阶段失败（向量化或向量库查询）
type RetrievalError struct {
	Collection string
	Err        error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("vector store query failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// CompletionError 大模型调用失败
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("LLM failed: %v", e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}
