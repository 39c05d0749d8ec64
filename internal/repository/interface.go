package repository

import (
	"context"

	"github.com/fyerfyer/regdoc-rag/internal/models"
)

// DocumentRepository 入库记录仓储接口
// 负责入库记录和已写入条目的存储和检索
type DocumentRepository interface {
	// Create 创建入库记录
	Create(doc *models.SourceDocument) error

	// Update 更新入库记录
	Update(doc *models.SourceDocument) error

	// GetByID 根据ID获取入库记录
	GetByID(id string) (*models.SourceDocument, error)

	// LatestByFileID 获取文件最近一次入库记录
	LatestByFileID(fileID string) (*models.SourceDocument, error)

	// List 列出入库记录，支持分页和筛选（file_id、collection、status）
	List(offset, limit int, filters map[string]interface{}) ([]*models.SourceDocument, int64, error)

	// FileIDsByCollection 列出曾成功写入集合的文件
	FileIDsByCollection(collection string) ([]string, error)

	// UpdateStatus 更新入库状态
	UpdateStatus(id string, status models.IngestStatus, errorMsg string) error

	// Delete 删除入库记录及其条目记录
	Delete(id string) error

	// SaveEntries 批量保存已写入的条目
	SaveEntries(entries []*models.IndexedEntry) error

	// EntryIDs 获取文件在集合中的全部条目ID，collection 为空时不限集合
	EntryIDs(fileID, collection string) ([]string, error)

	// CountEntries 统计集合中的条目记录数
	CountEntries(collection string) (int64, error)

	// DeleteEntries 删除文件在集合中的条目记录，collection 为空时不限集合
	DeleteEntries(fileID, collection string) error

	// DeleteCollection 删除集合相关的全部条目记录
	DeleteCollection(collection string) error

	// WithContext 创建带有上下文的仓储
	WithContext(ctx context.Context) DocumentRepository
}

// QueryRepository 问答记录仓储接口
type QueryRepository interface {
	// Save 保存问答记录
	Save(record *models.QueryRecord) error

	// Recent 获取集合最近的问答记录，collection 为空时不限集合
	Recent(collection string, limit int) ([]*models.QueryRecord, error)

	// DeleteCollection 删除集合的问答记录
	DeleteCollection(collection string) error
}
