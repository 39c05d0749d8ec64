package models

import "errors"

var (
	// ErrDocumentNotFound 入库记录不存在错误
	ErrDocumentNotFound = errors.New("source document not found")

	// ErrInvalidIngestStatus 无效的入库状态错误
	ErrInvalidIngestStatus = errors.New("invalid ingest status")
)
