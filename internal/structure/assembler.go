package structure

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

// Source 可逐页读取文本的源文档
type Source interface {
	// NumPages 返回页数
	NumPages() int
	// ReadPage 读取单页内容，返回错误时内容仍可能部分可用
	ReadPage(ctx context.Context, index int) (PageContent, error)
}

// PageContent 单页内容
type PageContent struct {
	Text    string   // 页面文本（可能来自OCR）
	Lines   []string // 页面版面行序列，用于表格标题查找；为空时按 Text 拆分
	UsedOCR bool     // 是否使用了OCR
}

// TableDetector 表格网格检测器
type TableDetector interface {
	DetectTables(ctx context.Context, index int) ([]RawGrid, error)
}

// Assembler 文档组装器
// 逐页（并行）执行条款分段、表格关联和图片提取，再按页序合并为文档记录
type Assembler struct {
	segmenter  *ClauseSegmenter
	associator *TableAssociator
	figures    *FigureExtractor
	workers    int
	logger     *logrus.Logger
}

// AssemblerOption 组装器配置选项
type AssemblerOption func(*Assembler)

// WithWorkers 设置并行处理页面的协程数
func WithWorkers(n int) AssemblerOption {
	return func(a *Assembler) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) AssemblerOption {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAssembler 创建文档组装器
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		segmenter:  NewClauseSegmenter(),
		associator: NewTableAssociator(),
		figures:    NewFigureExtractor(),
		workers:    runtime.NumCPU(),
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// pageResult 单页处理结果
type pageResult struct {
	records []DocumentRecord
	outcome PageOutcome
}

// Assemble 处理整个文档，返回按页码和条款顺序排列的记录
// 页级别失败只记录在 PageOutcome 中；文档没有任何可用内容时返回 ErrExtractionEmpty
func (a *Assembler) Assemble(ctx context.Context, src Source, detector TableDetector) (*Extraction, error) {
	n := src.NumPages()
	if n <= 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrExtractionEmpty)
	}

	pool, err := ants.NewPool(a.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create page worker pool: %w", err)
	}
	defer pool.Release()

	results := make([]pageResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		idx := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[idx] = a.failedPage(idx, fmt.Errorf("page worker panic: %v", r))
				}
			}()
			results[idx] = a.processPage(ctx, src, detector, idx)
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			results[idx] = a.failedPage(idx, err)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := &Extraction{
		Pages: make([]PageOutcome, 0, n),
	}
	usable := false
	for _, r := range results {
		ext.Pages = append(ext.Pages, r.outcome)
		for _, rec := range r.records {
			if !rec.IsEmpty() {
				usable = true
			}
			ext.Records = append(ext.Records, rec)
		}
	}

	a.logger.WithFields(logrus.Fields{
		"pages":        n,
		"records":      len(ext.Records),
		"ocr_pages":    ext.OCRPages(),
		"failed_pages": len(ext.FailedPages()),
	}).Info("Document structuring completed")

	if !usable {
		return nil, fmt.Errorf("%w: %d pages scanned", ErrExtractionEmpty, n)
	}
	return ext, nil
}

// processPage 处理单页
func (a *Assembler) processPage(ctx context.Context, src Source, detector TableDetector, idx int) pageResult {
	outcome := PageOutcome{Page: idx + 1}
	if err := ctx.Err(); err != nil {
		outcome.ReadErr = err
		return pageResult{outcome: outcome}
	}

	content, err := src.ReadPage(ctx, idx)
	if err != nil {
		outcome.ReadErr = &PageReadError{Page: idx + 1, Err: err}
		a.logger.WithError(err).WithField("page", idx+1).Warn("Page text unavailable, continuing with partial text")
	}
	outcome.UsedOCR = content.UsedOCR

	var grids []RawGrid
	if detector != nil {
		grids, err = detector.DetectTables(ctx, idx)
		if err != nil {
			outcome.TableErr = &TableDetectionError{Page: idx + 1, Err: err}
			grids = nil
			a.logger.WithError(err).WithField("page", idx+1).Warn("Table detection failed, page keeps no tables")
		}
	}

	lines := content.Lines
	if len(lines) == 0 {
		lines = strings.Split(content.Text, "\n")
	}

	records := a.AssemblePage(idx+1, content.Text, lines, grids)
	if len(records) > 0 {
		outcome.Blocks = len(records)
		outcome.Tables = len(records[0].Tables)
		outcome.Figures = len(records[0].Figures)
	}
	return pageResult{records: records, outcome: outcome}
}

// AssemblePage 将单页文本和表格网格组装为文档记录
// page 从1开始；返回的每条记录共享同一份表格和图片列表
func (a *Assembler) AssemblePage(page int, text string, lines []string, grids []RawGrid) []DocumentRecord {
	cleaned := CleanText(text)
	blocks := a.segmenter.Segment(cleaned)
	tables := a.associator.Associate(grids, lines)
	figures := a.figures.Extract(cleaned)

	records := make([]DocumentRecord, 0, len(blocks))
	for _, b := range blocks {
		records = append(records, DocumentRecord{
			ClauseNumber: b.ClauseNumber,
			ClauseTitle:  b.ClauseTitle,
			Page:         page,
			Paragraphs:   b.Paragraphs,
			Tables:       tables,
			Figures:      figures,
		})
	}
	return records
}

// failedPage 页面处理异常时生成的空白记录
func (a *Assembler) failedPage(idx int, err error) pageResult {
	a.logger.WithError(err).WithField("page", idx+1).Error("Page processing failed")
	return pageResult{
		records: []DocumentRecord{{
			Page:       idx + 1,
			Paragraphs: []string{},
			Tables:     []TableRecord{},
			Figures:    []FigureRecord{},
		}},
		outcome: PageOutcome{Page: idx + 1, Blocks: 1, ReadErr: &PageReadError{Page: idx + 1, Err: err}},
	}
}
