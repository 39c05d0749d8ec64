package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QueryRecord 问答记录
type QueryRecord struct {
	ID         uint           `gorm:"primaryKey;autoIncrement"` // 主键ID
	Collection string         `gorm:"not null;index"`           // 集合名称
	Question   string         `gorm:"type:text;not null"`       // 问题
	Answer     string         `gorm:"type:text"`                // 回答
	TopK       int            `gorm:"not null"`                 // 检索数量
	Sources    datatypes.JSON `gorm:"type:json"`                // 引用来源
	LatencyMs  int64          `gorm:"not null;default:0"`       // 耗时（毫秒）
	CreatedAt  time.Time      `gorm:"not null;index"`           // 创建时间
}

// Source 回答引用的条目
type Source struct {
	Rank   int     `json:"rank"`
	Page   string  `json:"page"`
	Clause string  `json:"clause"`
	Title  string  `json:"title,omitempty"`
	Score  float32 `json:"score"`
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (q *QueryRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (QueryRecord) TableName() string {
	return "query_records"
}
