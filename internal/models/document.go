package models

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// IngestStatus 文档入库状态
type IngestStatus string

const (
	// IngestPending 已上传，等待处理
	IngestPending IngestStatus = "pending"
	// IngestProcessing 处理中
	IngestProcessing IngestStatus = "processing"
	// IngestCompleted 处理完成
	IngestCompleted IngestStatus = "completed"
	// IngestFailed 处理失败
	IngestFailed IngestStatus = "failed"
)

// IngestMode 重复入库策略
type IngestMode string

const (
	// ModeAppend 追加写入，重复入库会产生重复条目
	ModeAppend IngestMode = "append"
	// ModeReplace 先删除同一文件在集合中已有的条目再写入
	ModeReplace IngestMode = "replace"
	// ModeRecreate 删除并重建整个集合
	ModeRecreate IngestMode = "recreate"
)

// ParseIngestMode 解析入库策略，空值为追加
func ParseIngestMode(s string) (IngestMode, bool) {
	switch IngestMode(s) {
	case "", ModeAppend:
		return ModeAppend, true
	case ModeReplace:
		return ModeReplace, true
	case ModeRecreate:
		return ModeRecreate, true
	}
	return "", false
}

// SourceDocument 一次文档入库的记录
// 同一文件每次入库产生一条记录
type SourceDocument struct {
	ID          string         `gorm:"primaryKey;size:26"`     // ULID
	FileID      string         `gorm:"not null;index"`         // 文件标识，即清洗后的文件名
	FileName    string         `gorm:"not null"`               // 原始文件名
	Collection  string         `gorm:"not null;index"`         // 目标集合
	Mode        IngestMode     `gorm:"size:20"`                // 入库策略
	Status      IngestStatus   `gorm:"not null;index;size:20"` // 处理状态
	Pages       int            `gorm:"not null;default:0"`     // 页数
	Records     int            `gorm:"not null;default:0"`     // 结构化记录数
	Entries     int            `gorm:"not null;default:0"`     // 写入的索引条目数
	OCRPages    int            `gorm:"not null;default:0"`     // 使用OCR的页数
	Error       string         `gorm:"type:text"`              // 错误信息
	TaskID      string         `gorm:"size:64;index"`          // 异步任务ID
	Metadata    datatypes.JSON `gorm:"type:json"`              // 元数据，如页面处理结果
	CreatedAt   time.Time      `gorm:"not null;index"`         // 创建时间
	UpdatedAt   time.Time      `gorm:"not null"`               // 更新时间
	CompletedAt *time.Time     `gorm:"index"`                  // 完成时间
}

// NewID 生成按时间排序的唯一ID
func NewID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// BeforeCreate GORM的钩子函数，创建记录前自动生成ID和时间
func (d *SourceDocument) BeforeCreate(tx *gorm.DB) (err error) {
	if d.ID == "" {
		d.ID = NewID()
	}
	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (d *SourceDocument) BeforeUpdate(tx *gorm.DB) (err error) {
	d.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (SourceDocument) TableName() string {
	return "source_documents"
}

// IndexedEntry 写入向量库的单个条目
// 用于 replace 模式和按文件清理
type IndexedEntry struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"` // 主键ID
	EntryID    string    `gorm:"not null;uniqueIndex"`     // 向量库中的条目ID
	SourceID   string    `gorm:"not null;index;size:26"`   // 所属入库记录
	FileID     string    `gorm:"not null;index"`           // 文件标识
	Collection string    `gorm:"not null;index"`           // 集合名称
	Page       int       `gorm:"not null"`                 // 页码
	Clause     string    `gorm:"size:32"`                  // 条款编号
	CreatedAt  time.Time `gorm:"not null"`                 // 创建时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (e *IndexedEntry) BeforeCreate(tx *gorm.DB) (err error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (IndexedEntry) TableName() string {
	return "indexed_entries"
}
