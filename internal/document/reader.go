package document

import (
	"context"
	"errors"
	"fmt"
)

// ErrLayoutUnsupported 文本层读取器不提供版面信息
var ErrLayoutUnsupported = errors.New("text layer reader does not provide layout rows")

// Word 带位置的文本片段
type Word struct {
	X    float64 // 横坐标
	Text string  // 文本
}

// TextRow 同一基线上的文本行，片段按横坐标排序
type TextRow struct {
	Y     float64
	Words []Word
}

// PDFDocument 打开的PDF文本层
type PDFDocument interface {
	// NumPages 返回页数
	NumPages() int
	// PageText 返回单页文本层内容，index 从0开始
	PageText(ctx context.Context, index int) (string, error)
	// PageRows 返回单页按行分组的定位文本，不支持时返回 ErrLayoutUnsupported
	PageRows(ctx context.Context, index int) ([]TextRow, error)
	// Close 释放资源
	Close() error
}

// TextLayerReader 文本层读取器
type TextLayerReader interface {
	// Open 打开PDF文件
	Open(path string) (PDFDocument, error)
	// Name 返回读取器名称
	Name() string
}

// ReaderFactory 读取器工厂函数
type ReaderFactory func() TextLayerReader

var readerFactories = make(map[string]ReaderFactory)

// RegisterReader 注册文本层读取器
func RegisterReader(name string, factory ReaderFactory) {
	readerFactories[name] = factory
}

// NewReader 根据名称创建文本层读取器
func NewReader(name string) (TextLayerReader, error) {
	factory, ok := readerFactories[name]
	if !ok {
		return nil, fmt.Errorf("unknown text layer reader: %s", name)
	}
	return factory(), nil
}

// checkPage 校验页码范围
func checkPage(index, total int) error {
	if index < 0 || index >= total {
		return fmt.Errorf("page index %d out of range [0,%d)", index, total)
	}
	return nil
}
