package repository

import (
	"github.com/fyerfyer/regdoc-rag/internal/database"
	"github.com/fyerfyer/regdoc-rag/internal/models"
	"gorm.io/gorm"
)

// queryRepo 问答记录仓储实现
type queryRepo struct {
	db *gorm.DB
}

// NewQueryRepository 使用全局数据库连接创建仓储实例
func NewQueryRepository() QueryRepository {
	return &queryRepo{db: database.MustDB()}
}

// NewQueryRepositoryWithDB 使用指定的数据库连接创建仓储实例
func NewQueryRepositoryWithDB(db *gorm.DB) QueryRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &queryRepo{db: db}
}

func (r *queryRepo) Save(record *models.QueryRecord) error {
	return r.db.Create(record).Error
}

// Recent 按时间倒序返回最近的记录
func (r *queryRepo) Recent(collection string, limit int) ([]*models.QueryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []*models.QueryRecord
	query := r.db.Model(&models.QueryRecord{})
	if collection != "" {
		query = query.Where("collection = ?", collection)
	}
	err := query.Order("id DESC").Limit(limit).Find(&records).Error
	return records, err
}

func (r *queryRepo) DeleteCollection(collection string) error {
	return r.db.Where("collection = ?", collection).Delete(&models.QueryRecord{}).Error
}
