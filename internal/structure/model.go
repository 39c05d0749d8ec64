package structure

// PageText 单页原始文本
type PageText struct {
	PageIndex int    // 页码（从0开始）
	RawText   string // 原始文本
}

// ClauseBlock 条款块
// ClauseNumber 为空表示该页没有识别出条款标记，整页作为一个无标题块
type ClauseBlock struct {
	ClauseNumber string   `json:"clause_number"`
	ClauseTitle  string   `json:"clause_title"`
	Paragraphs   []string `json:"paragraphs"`
}

// TableRecord 表格记录
// 至少包含一行表头和一行数据
type TableRecord struct {
	Title   string     `json:"title"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Notes   []string   `json:"notes"`
}

// FigureRecord 图片标题记录
type FigureRecord struct {
	FigureNumber string `json:"figure_number"`
	Title        string `json:"title"`
}

// DocumentRecord 文档记录，持久化与建索引的基本单位
// 同一页的所有记录共享相同的表格与图片列表
type DocumentRecord struct {
	ClauseNumber string         `json:"clause_number"`
	ClauseTitle  string         `json:"clause_title"`
	Page         int            `json:"page"`
	Paragraphs   []string       `json:"paragraphs"`
	Tables       []TableRecord  `json:"tables"`
	Figures      []FigureRecord `json:"figures"`
}

// IsEmpty 判断记录是否不含任何可用内容
func (r DocumentRecord) IsEmpty() bool {
	if r.ClauseNumber != "" || len(r.Tables) > 0 || len(r.Figures) > 0 {
		return false
	}
	for _, p := range r.Paragraphs {
		if p != "" {
			return false
		}
	}
	return true
}

// PageOutcome 单页处理结果
// 页级别的失败被隔离在这里，不会中断整个文档的处理
type PageOutcome struct {
	Page     int   // 页码（从1开始）
	Blocks   int   // 条款块数量
	Tables   int   // 表格数量
	Figures  int   // 图片数量
	UsedOCR  bool  // 是否使用了OCR
	ReadErr  error // 文本读取失败（含OCR失败）
	TableErr error // 表格检测失败
}

// Extraction 整个文档的结构化结果
type Extraction struct {
	Records []DocumentRecord
	Pages   []PageOutcome
}

// OCRPages 返回使用OCR的页数
func (e *Extraction) OCRPages() int {
	n := 0
	for _, p := range e.Pages {
		if p.UsedOCR {
			n++
		}
	}
	return n
}

// FailedPages 返回文本读取或表格检测失败的页码
func (e *Extraction) FailedPages() []int {
	var pages []int
	for _, p := range e.Pages {
		if p.ReadErr != nil || p.TableErr != nil {
			pages = append(pages, p.Page)
		}
	}
	return pages
}
