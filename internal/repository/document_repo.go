package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/regdoc-rag/internal/database"
	"github.com/fyerfyer/regdoc-rag/internal/models"
	"gorm.io/gorm"
)

// docRepository 入库记录仓储实现
type docRepository struct {
	db *gorm.DB // 数据库连接
}

// NewDocumentRepository 使用全局数据库连接创建仓储实例
func NewDocumentRepository() DocumentRepository {
	return &docRepository{
		db: database.MustDB(),
	}
}

// NewDocumentRepositoryWithDB 使用指定的数据库连接创建仓储实例
func NewDocumentRepositoryWithDB(db *gorm.DB) DocumentRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &docRepository{
		db: db,
	}
}

// WithContext 创建带有上下文的仓储
func (r *docRepository) WithContext(ctx context.Context) DocumentRepository {
	return &docRepository{
		db: r.db.WithContext(ctx),
	}
}

// Create 创建入库记录
func (r *docRepository) Create(doc *models.SourceDocument) error {
	if doc.FileID == "" {
		return errors.New("file ID cannot be empty")
	}
	return r.db.Create(doc).Error
}

// Update 更新入库记录
func (r *docRepository) Update(doc *models.SourceDocument) error {
	if doc.ID == "" {
		return errors.New("document ID cannot be empty")
	}
	return r.db.Save(doc).Error
}

// GetByID 根据ID获取入库记录
func (r *docRepository) GetByID(id string) (*models.SourceDocument, error) {
	var doc models.SourceDocument
	err := r.db.Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
		}
		return nil, err
	}
	return &doc, nil
}

// LatestByFileID 获取文件最近一次入库记录
func (r *docRepository) LatestByFileID(fileID string) (*models.SourceDocument, error) {
	var doc models.SourceDocument
	err := r.db.Where("file_id = ?", fileID).Order("created_at DESC, id DESC").Take(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, fileID)
		}
		return nil, err
	}
	return &doc, nil
}

// List 列出入库记录，按创建时间倒序
func (r *docRepository) List(offset, limit int, filters map[string]interface{}) ([]*models.SourceDocument, int64, error) {
	var docs []*models.SourceDocument
	var total int64

	query := r.db.Model(&models.SourceDocument{})
	if fileID, ok := filters["file_id"].(string); ok && fileID != "" {
		query = query.Where("file_id = ?", fileID)
	}
	if collection, ok := filters["collection"].(string); ok && collection != "" {
		query = query.Where("collection = ?", collection)
	}
	if status, ok := filters["status"]; ok {
		switch s := status.(type) {
		case models.IngestStatus:
			query = query.Where("status = ?", string(s))
		case string:
			if s != "" {
				query = query.Where("status = ?", s)
			}
		}
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 20
	}
	err := query.Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&docs).Error
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// FileIDsByCollection 列出曾成功写入集合的文件，按文件名排序
func (r *docRepository) FileIDsByCollection(collection string) ([]string, error) {
	var ids []string
	err := r.db.Model(&models.SourceDocument{}).
		Where("collection = ? AND status = ?", collection, models.IngestCompleted).
		Distinct().
		Order("file_id ASC").
		Pluck("file_id", &ids).Error
	return ids, err
}

// UpdateStatus 更新入库状态
func (r *docRepository) UpdateStatus(id string, status models.IngestStatus, errorMsg string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if errorMsg != "" {
		updates["error"] = errorMsg
	}
	// 已完成或失败时设置完成时间
	if status == models.IngestCompleted || status == models.IngestFailed {
		now := time.Now()
		updates["completed_at"] = &now
	}

	result := r.db.Model(&models.SourceDocument{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	return nil
}

// Delete 删除入库记录及其条目记录
func (r *docRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source_id = ?", id).Delete(&models.IndexedEntry{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.SourceDocument{}).Error
	})
}

// SaveEntries 批量保存条目
func (r *docRepository) SaveEntries(entries []*models.IndexedEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(entries, 100).Error
	})
}

// EntryIDs 获取文件的条目ID
func (r *docRepository) EntryIDs(fileID, collection string) ([]string, error) {
	var ids []string
	query := r.db.Model(&models.IndexedEntry{}).Where("file_id = ?", fileID)
	if collection != "" {
		query = query.Where("collection = ?", collection)
	}
	err := query.Order("id ASC").Pluck("entry_id", &ids).Error
	return ids, err
}

// CountEntries 统计集合中的条目记录数
func (r *docRepository) CountEntries(collection string) (int64, error) {
	var count int64
	err := r.db.Model(&models.IndexedEntry{}).
		Where("collection = ?", collection).
		Count(&count).Error
	return count, err
}

// DeleteEntries 删除文件的条目记录
func (r *docRepository) DeleteEntries(fileID, collection string) error {
	query := r.db.Where("file_id = ?", fileID)
	if collection != "" {
		query = query.Where("collection = ?", collection)
	}
	return query.Delete(&models.IndexedEntry{}).Error
}

// DeleteCollection 删除集合相关的条目记录
func (r *docRepository) DeleteCollection(collection string) error {
	return r.db.Where("collection = ?", collection).Delete(&models.IndexedEntry{}).Error
}
