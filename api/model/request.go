package model

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// Offset 当前页的偏移量
func (p *PaginationRequest) Offset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// UploadPDFRequest 上传PDF请求
// 文件通过 multipart 字段 file 上传
type UploadPDFRequest struct {
	Collection string `form:"collection" binding:"required"`                          // 目标集合
	Mode       string `form:"mode" binding:"omitempty,oneof=append replace recreate"` // 重复入库策略
	Async      bool   `form:"async"`                                                  // 是否异步处理
}

// UpdatePDFRequest 用已保存的结构化结果重新建索引
type UpdatePDFRequest struct {
	Collection string `form:"collection" binding:"required"`
	Mode       string `form:"mode" binding:"omitempty,oneof=append replace recreate"`
}

// DeletePDFRequest 删除文件请求
type DeletePDFRequest struct {
	Purge bool `form:"purge"` // 同时删除已写入集合的条目
}

// ChatRequest 问答请求
type ChatRequest struct {
	CollectionID string `json:"collection_id" binding:"required"`
	Query        string `json:"query" binding:"required"`
	TopK         int    `json:"top_k" binding:"omitempty,min=1,max=100"` // 检索条数，默认20
}

// HistoryRequest 问答记录查询
type HistoryRequest struct {
	Collection string `form:"collection"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=200"`
}

// ReindexRequest 重建集合请求
type ReindexRequest struct {
	Async bool `form:"async"`
}

// SourceListRequest 入库记录列表请求
type SourceListRequest struct {
	PaginationRequest
	Collection string `form:"collection"`
	FileID     string `form:"file_id"`
	Status     string `form:"status" binding:"omitempty,oneof=pending processing completed failed"`
}
