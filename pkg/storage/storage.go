package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound 对象不存在
var ErrNotFound = errors.New("object not found")

// FileInfo 文件元数据结构
type FileInfo struct {
	Key      string    // 存储键，如 uploads/nbc.pdf
	Name     string    // 文件名
	Size     int64     // 文件大小(字节)
	MimeType string    // 文件MIME类型
	ModTime  time.Time // 最后修改时间
}

// Storage 文件存储接口
// 按键保存上传的PDF和结构化JSON，可以有不同实现(本地文件系统、MinIO等)
type Storage interface {
	// Put 写入对象，已存在时覆盖；size 未知时传 -1
	Put(ctx context.Context, key string, reader io.Reader, size int64) (FileInfo, error)

	// Get 获取对象内容，不存在时返回 ErrNotFound
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete 删除对象，不存在时返回 ErrNotFound
	Delete(ctx context.Context, key string) error

	// List 列出指定前缀下的对象，按键排序
	List(ctx context.Context, prefix string) ([]FileInfo, error)

	// Exists 检查对象是否存在
	Exists(ctx context.Context, key string) (bool, error)
}

// Config 存储配置
type Config struct {
	Type  string      // local 或 minio
	Local LocalConfig // 本地存储配置
	Minio MinioConfig // MinIO配置
}

// New 根据配置创建存储实现
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStorage(cfg.Local)
	case "minio":
		return NewMinioStorage(cfg.Minio)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// CleanKey 规范化存储键，拒绝越出根目录的键
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" {
		return "", fmt.Errorf("storage key cannot be empty")
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("invalid storage key: %q", key)
	}
	return cleaned, nil
}

// getMimeType 简单根据文件扩展名判断MIME类型
func getMimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
