package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskIngestDocument 单个PDF的结构化和入库任务
	TaskIngestDocument TaskType = "ingest_document"
	// TaskReindexCollection 从结构化结果重建集合的任务
	TaskReindexCollection TaskType = "reindex_collection"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	FileID      string          `json:"file_id"`      // 关联的文件ID，重建集合任务为空
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷数据，不同任务类型对应不同结构
	Result      json.RawMessage `json:"result"`       // 任务结果数据
	Error       string          `json:"error"`        // 错误信息（如果处理失败）
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// IngestPayload 入库任务载荷
type IngestPayload struct {
	SourceID   string `json:"source_id"`   // 入库记录ID
	FileID     string `json:"file_id"`     // 文件标识
	FileName   string `json:"file_name"`   // 原始文件名
	StorageKey string `json:"storage_key"` // 上传文件在存储中的键
	Collection string `json:"collection"`  // 目标集合
	Mode       string `json:"mode"`        // append、replace 或 recreate
}

// IngestResult 入库任务结果
type IngestResult struct {
	SourceID   string `json:"source_id"`
	FileID     string `json:"file_id"`
	Collection string `json:"collection"`
	Pages      int    `json:"pages"`
	Records    int    `json:"records"`
	Entries    int    `json:"entries"`
	OCRPages   int    `json:"ocr_pages"`
	Artifact   string `json:"artifact"` // 结构化JSON的存储键
}

// ReindexPayload 重建集合任务载荷
type ReindexPayload struct {
	Collection string `json:"collection"`
}

// ReindexResult 重建集合任务结果
type ReindexResult struct {
	Collection string   `json:"collection"`
	Files      []string `json:"files"`
	Entries    int      `json:"entries"`
}
