package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/regdoc-rag/internal/structure"
)

// 默认的OCR兜底参数
const (
	DefaultMinTextChars = 20
	DefaultDPI          = 300
)

// Config PDF页面文本源配置
type Config struct {
	Reader        string               // 文本层读取器名称
	MinTextChars  int                  // 文本层少于该字符数时启用OCR
	DPI           int                  // OCR渲染分辨率
	Rasterizer    Rasterizer           // 页面渲染器，为空时不启用OCR
	OCR           OCREngine            // OCR引擎，为空时不启用OCR
	DetectTables  bool                 // 是否检测表格
	Logger        *logrus.Logger       // 日志记录器
	tableDetector *LayoutTableDetector // 版面表格检测器
}

// Option 配置选项
type Option func(*Config)

// WithReader 设置文本层读取器
func WithReader(name string) Option {
	return func(c *Config) {
		c.Reader = name
	}
}

// WithOCR 设置OCR兜底
func WithOCR(r Rasterizer, e OCREngine) Option {
	return func(c *Config) {
		c.Rasterizer = r
		c.OCR = e
	}
}

// WithMinTextChars 设置触发OCR的最少字符数
func WithMinTextChars(n int) Option {
	return func(c *Config) {
		c.MinTextChars = n
	}
}

// WithDPI 设置OCR渲染分辨率
func WithDPI(dpi int) Option {
	return func(c *Config) {
		c.DPI = dpi
	}
}

// WithTableDetection 启用或禁用表格检测
func WithTableDetection(enabled bool) Option {
	return func(c *Config) {
		c.DetectTables = enabled
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Reader:        "ledongthuc",
		MinTextChars:  DefaultMinTextChars,
		DPI:           DefaultDPI,
		DetectTables:  true,
		Logger:        logrus.StandardLogger(),
		tableDetector: NewLayoutTableDetector(),
	}
}

// PDF 可逐页读取的PDF文档，文本层不足时回退到OCR
// 实现 structure.Source 与 structure.TableDetector
type PDF struct {
	path string
	doc  PDFDocument
	cfg  *Config

	mu   sync.Mutex // 文本层读取器不保证并发安全
	rows map[int][]TextRow
}

// Open 打开PDF文件
func Open(path string, opts ...Option) (*PDF, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	reader, err := NewReader(cfg.Reader)
	if err != nil {
		return nil, err
	}
	doc, err := reader.Open(path)
	if err != nil {
		return nil, err
	}

	return &PDF{
		path: path,
		doc:  doc,
		cfg:  cfg,
		rows: make(map[int][]TextRow),
	}, nil
}

// NumPages 返回页数
func (p *PDF) NumPages() int {
	return p.doc.NumPages()
}

// ReadPage 读取单页文本
// 文本层读取失败按"文本不足"处理；OCR 失败时返回已有文本和 OCRError
func (p *PDF) ReadPage(ctx context.Context, index int) (structure.PageContent, error) {
	logger := p.cfg.Logger.WithField("page", index+1)

	text, lines, err := p.textLayer(ctx, index)
	if err != nil {
		if ctx.Err() != nil {
			return structure.PageContent{}, ctx.Err()
		}
		logger.WithError(err).Warn("Text layer extraction failed, treating page as empty")
		text, lines = "", nil
	}
	content := structure.PageContent{Text: text, Lines: lines}

	if len(strings.TrimSpace(text)) >= p.cfg.MinTextChars {
		return content, nil
	}
	if p.cfg.Rasterizer == nil || p.cfg.OCR == nil {
		if err != nil {
			return content, err
		}
		return content, nil
	}

	fields := logrus.Fields{"chars": len(strings.TrimSpace(text))}
	if img, ok := p.doc.(interface{ HasImages(int) bool }); ok {
		fields["has_images"] = img.HasImages(index)
	}
	logger.WithFields(fields).Debug("Text layer too sparse, falling back to OCR")

	image, rerr := p.cfg.Rasterizer.Render(ctx, p.path, index, p.cfg.DPI)
	if rerr != nil {
		return content, &OCRError{Page: index + 1, Stage: "render", Err: rerr}
	}
	ocrText, oerr := p.cfg.OCR.Recognize(ctx, image)
	if oerr != nil {
		return content, &OCRError{Page: index + 1, Stage: "recognize", Err: oerr}
	}

	return structure.PageContent{
		Text:    ocrText,
		UsedOCR: true,
	}, nil
}

// DetectTables 检测单页表格网格
// 读取器不提供版面信息时返回空结果
func (p *PDF) DetectTables(ctx context.Context, index int) ([]structure.RawGrid, error) {
	if !p.cfg.DetectTables {
		return nil, nil
	}
	rows, err := p.pageRows(ctx, index)
	if errors.Is(err, ErrLayoutUnsupported) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read layout rows: %w", err)
	}
	detector := p.cfg.tableDetector
	if detector == nil {
		detector = NewLayoutTableDetector()
	}
	return detector.Detect(rows), nil
}

// Close 关闭文档
func (p *PDF) Close() error {
	return p.doc.Close()
}

// textLayer 读取文本层，有版面信息时同时返回行序列
func (p *PDF) textLayer(ctx context.Context, index int) (string, []string, error) {
	rows, err := p.pageRows(ctx, index)
	if err == nil {
		lines := make([]string, len(rows))
		for i, r := range rows {
			lines[i] = JoinWords(r.Words)
		}
		return strings.Join(lines, "\n"), lines, nil
	}
	if !errors.Is(err, ErrLayoutUnsupported) {
		return "", nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	text, err := p.doc.PageText(ctx, index)
	return text, nil, err
}

// pageRows 读取并缓存单页版面行
func (p *PDF) pageRows(ctx context.Context, index int) ([]TextRow, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rows, ok := p.rows[index]; ok {
		return rows, nil
	}
	rows, err := p.doc.PageRows(ctx, index)
	if err != nil {
		return nil, err
	}
	p.rows[index] = rows
	return rows, nil
}

var (
	_ structure.Source        = (*PDF)(nil)
	_ structure.TableDetector = (*PDF)(nil)
)
