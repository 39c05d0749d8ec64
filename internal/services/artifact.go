package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fyerfyer/regdoc-rag/internal/structure"
	"github.com/fyerfyer/regdoc-rag/pkg/storage"
)

// 存储键前缀
const (
	UploadPrefix   = "uploads/"
	ArtifactPrefix = "artifacts/"
)

var (
	fileIDPattern  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)
	unsafeFileChar = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// FileIDFromName 由上传文件名得到文件标识：去掉扩展名，非法字符替换为下划线
func FileIDFromName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	id := strings.Trim(unsafeFileChar.ReplaceAllString(stem, "_"), "._-")
	if len(id) > 128 {
		id = id[:128]
	}
	if err := ValidateFileID(id); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileID, name)
	}
	return id, nil
}

// ValidateFileID 校验文件标识，防止路径穿越
func ValidateFileID(id string) error {
	if !fileIDPattern.MatchString(id) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidFileID, id)
	}
	return nil
}

// ArtifactKey 结构化结果的存储键
func ArtifactKey(fileID string) string {
	return ArtifactPrefix + fileID + ".json"
}

// UploadKey 上传PDF的存储键
func UploadKey(fileID string) string {
	return UploadPrefix + fileID + ".pdf"
}

// ArtifactInfo 结构化结果概要
type ArtifactInfo struct {
	FileID  string    `json:"file_id"`
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ArtifactStore 保存上传的PDF和结构化JSON结果
type ArtifactStore struct {
	storage storage.Storage
}

// NewArtifactStore 创建结果存储
func NewArtifactStore(s storage.Storage) *ArtifactStore {
	return &ArtifactStore{storage: s}
}

// Save 写入结构化结果，返回存储键
func (a *ArtifactStore) Save(ctx context.Context, fileID string, records []structure.DocumentRecord) (string, error) {
	if err := ValidateFileID(fileID); err != nil {
		return "", err
	}
	data, err := structure.MarshalRecords(records)
	if err != nil {
		return "", err
	}
	info, err := a.storage.Put(ctx, ArtifactKey(fileID), bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to save artifact: %w", err)
	}
	return info.Key, nil
}

// Load 读取结构化结果
func (a *ArtifactStore) Load(ctx context.Context, fileID string) ([]structure.DocumentRecord, error) {
	data, err := a.Raw(ctx, fileID)
	if err != nil {
		return nil, err
	}
	records, err := structure.UnmarshalRecords(data)
	if err != nil {
		return nil, fmt.Errorf("artifact %s is malformed: %w", fileID, err)
	}
	return records, nil
}

// Raw 读取结构化结果的原始JSON
func (a *ArtifactStore) Raw(ctx context.Context, fileID string) ([]byte, error) {
	if err := ValidateFileID(fileID); err != nil {
		return nil, err
	}
	rc, err := a.storage.Get(ctx, ArtifactKey(fileID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, fileID)
		}
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Delete 删除结构化结果
func (a *ArtifactStore) Delete(ctx context.Context, fileID string) error {
	if err := ValidateFileID(fileID); err != nil {
		return err
	}
	if err := a.storage.Delete(ctx, ArtifactKey(fileID)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrArtifactNotFound, fileID)
		}
		return err
	}
	return nil
}

// List 列出全部结构化结果
func (a *ArtifactStore) List(ctx context.Context) ([]ArtifactInfo, error) {
	files, err := a.storage.List(ctx, ArtifactPrefix)
	if err != nil {
		return nil, err
	}
	infos := make([]ArtifactInfo, 0, len(files))
	for _, f := range files {
		name := path.Base(f.Key)
		if path.Ext(name) != ".json" {
			continue
		}
		infos = append(infos, ArtifactInfo{
			FileID:  strings.TrimSuffix(name, ".json"),
			Key:     f.Key,
			Size:    f.Size,
			ModTime: f.ModTime,
		})
	}
	return infos, nil
}

// SaveUpload 保存上传的PDF
func (a *ArtifactStore) SaveUpload(ctx context.Context, fileID string, r io.Reader, size int64) (string, error) {
	if err := ValidateFileID(fileID); err != nil {
		return "", err
	}
	info, err := a.storage.Put(ctx, UploadKey(fileID), r, size)
	if err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return info.Key, nil
}

// OpenUpload 读取上传的PDF
func (a *ArtifactStore) OpenUpload(ctx context.Context, key string) (io.ReadCloser, error) {
	return a.storage.Get(ctx, key)
}

// DeleteUpload 删除上传的PDF，不存在时忽略
func (a *ArtifactStore) DeleteUpload(ctx context.Context, fileID string) error {
	err := a.storage.Delete(ctx, UploadKey(fileID))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}
