package model

import (
	"encoding/json"
	"time"

	"github.com/fyerfyer/regdoc-rag/internal/models"
	"github.com/fyerfyer/regdoc-rag/internal/services"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// UploadPDFResponse 上传PDF响应
type UploadPDFResponse struct {
	Message     string `json:"message"`
	Collection  string `json:"collection"`
	Count       int    `json:"count"`       // 写入集合的条目数
	OutputJSON  string `json:"output_json"` // 结构化结果的存储键
	FileID      string `json:"file_id"`
	Status      string `json:"status"`
	Pages       int    `json:"pages,omitempty"`
	Records     int    `json:"records,omitempty"`
	OCRPages    int    `json:"ocr_pages,omitempty"`
	FailedPages []int  `json:"failed_pages,omitempty"`
	TaskID      string `json:"task_id,omitempty"` // 异步模式下的任务ID
}

// NewUploadPDFResponse 由入库结果构建上传响应
func NewUploadPDFResponse(res *services.IngestResult) UploadPDFResponse {
	msg := "PDF processed and embedded successfully"
	if res.TaskID != "" {
		msg = "PDF accepted for processing"
	}
	return UploadPDFResponse{
		Message:     msg,
		Collection:  res.Collection,
		Count:       res.Entries,
		OutputJSON:  res.Artifact,
		FileID:      res.FileID,
		Status:      string(res.Status),
		Pages:       res.Pages,
		Records:     res.Records,
		OCRPages:    res.OCRPages,
		FailedPages: res.FailedPages,
		TaskID:      res.TaskID,
	}
}

// UpdatePDFResponse 重新建索引响应
type UpdatePDFResponse struct {
	Message      string `json:"message"`
	FileID       string `json:"file_id"`
	Collection   string `json:"collection"`
	UpdatedCount int    `json:"updated_count"`
}

// DeletePDFResponse 删除文件响应
type DeletePDFResponse struct {
	Message         string `json:"message"`
	FileID          string `json:"file_id"`
	ArtifactDeleted bool   `json:"artifact_deleted"`
	Purged          int    `json:"purged"`
}

// ChatResponse 问答响应
type ChatResponse struct {
	Answer  string               `json:"answer"`
	Sources []services.SourceRef `json:"sources"`
	Cached  bool                 `json:"cached"`
}

// CollectionListResponse 集合列表响应
type CollectionListResponse struct {
	Collections []services.CollectionInfo `json:"collections"`
}

// CollectionDeleteResponse 删除集合响应
type CollectionDeleteResponse struct {
	Message    string `json:"message"`
	Collection string `json:"collection"`
}

// ReindexResponse 重建集合响应
type ReindexResponse struct {
	Collection string   `json:"collection"`
	Files      []string `json:"files,omitempty"`
	Entries    int      `json:"entries"`
	TaskID     string   `json:"task_id,omitempty"`
}

// TaskResponse 任务状态响应
type TaskResponse struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	FileID      string      `json:"file_id,omitempty"`
	Status      string      `json:"status"`
	Result      interface{} `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// HistoryItem 一条问答记录
type HistoryItem struct {
	ID         uint            `json:"id"`
	Collection string          `json:"collection"`
	Question   string          `json:"question"`
	Answer     string          `json:"answer"`
	TopK       int             `json:"top_k"`
	Sources    json.RawMessage `json:"sources,omitempty"`
	LatencyMS  int64           `json:"latency_ms"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewHistoryItem 转换问答记录
func NewHistoryItem(r *models.QueryRecord) HistoryItem {
	return HistoryItem{
		ID:         r.ID,
		Collection: r.Collection,
		Question:   r.Question,
		Answer:     r.Answer,
		TopK:       r.TopK,
		Sources:    json.RawMessage(r.Sources),
		LatencyMS:  r.LatencyMs,
		CreatedAt:  r.CreatedAt,
	}
}

// HistoryResponse 问答记录响应
type HistoryResponse struct {
	Records []HistoryItem `json:"records"`
}

// SourceInfo 入库记录
type SourceInfo struct {
	ID         string    `json:"id"`
	FileID     string    `json:"file_id"`
	FileName   string    `json:"filename"`
	Collection string    `json:"collection"`
	Mode       string    `json:"mode"`
	Status     string    `json:"status"`
	Pages      int       `json:"pages"`
	Records    int       `json:"records"`
	Entries    int       `json:"entries"`
	OCRPages   int       `json:"ocr_pages"`
	Error      string    `json:"error,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewSourceInfo 转换入库记录
func NewSourceInfo(doc *models.SourceDocument) SourceInfo {
	return SourceInfo{
		ID:         doc.ID,
		FileID:     doc.FileID,
		FileName:   doc.FileName,
		Collection: doc.Collection,
		Mode:       string(doc.Mode),
		Status:     string(doc.Status),
		Pages:      doc.Pages,
		Records:    doc.Records,
		Entries:    doc.Entries,
		OCRPages:   doc.OCRPages,
		Error:      doc.Error,
		TaskID:     doc.TaskID,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

// SourceListResponse 入库记录列表响应
type SourceListResponse struct {
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	Sources  []SourceInfo `json:"sources"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status      string `json:"status"`
	Collections int    `json:"collections"`
	Async       bool   `json:"async"`
}
