package structure

import (
	"errors"
	"fmt"
)

// ErrExtractionEmpty 文档没有任何可用内容
var ErrExtractionEmpty = errors.New("document extraction produced no usable content")

// TableDetectionError 表格检测失败，仅影响所在页
type TableDetectionError struct {
	Page int
	Err  error
}

func (e *TableDetectionError) Error() string {
	return fmt.Sprintf("table detection failed on page %d: %v", e.Page, e.Err)
}

func (e *TableDetectionError) Unwrap() error {
	return e.Err
}

// PageReadError 页面文本读取失败，仅影响所在页
type PageReadError struct {
	Page int
	Err  error
}

func (e *PageReadError) Error() string {
	return fmt.Sprintf("failed to read page %d: %v", e.Page, e.Err)
}

func (e *PageReadError) Unwrap() error {
	return e.Err
}
