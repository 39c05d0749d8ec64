package structure

import (
	"regexp"
	"strings"
)

// DefaultTableTitle 未找到表格标题时使用的默认标题
const DefaultTableTitle = "Auto-detected Table"

// tableTitleLookback 向上查找表格标题的最大行数
const tableTitleLookback = 4

var tableTitlePattern = regexp.MustCompile(`(?i)^Table\s*\d+`)

// RawGrid 表格检测器返回的原始单元格网格
// nil 单元格表示缺失；LineIndex 为网格首行在页面行序列中的位置，未知时为 -1
type RawGrid struct {
	Rows      [][]*string
	LineIndex int
}

// TableAssociator 表格关联器
// 将原始网格规范化为表格记录，并关联最近的前置标题行
type TableAssociator struct{}

// NewTableAssociator 创建表格关联器
func NewTableAssociator() *TableAssociator {
	return &TableAssociator{}
}

// Associate 规范化网格并查找标题，少于2行的网格被丢弃
func (a *TableAssociator) Associate(grids []RawGrid, lines []string) []TableRecord {
	tables := make([]TableRecord, 0, len(grids))
	for _, g := range grids {
		if len(g.Rows) < 2 {
			continue
		}
		rows := make([][]string, 0, len(g.Rows)-1)
		for _, r := range g.Rows[1:] {
			rows = append(rows, normalizeCells(r))
		}
		tables = append(tables, TableRecord{
			Title:   FindTableTitle(lines, g.LineIndex),
			Columns: normalizeCells(g.Rows[0]),
			Rows:    rows,
			Notes:   []string{},
		})
	}
	return tables
}

// FindTableTitle 从 index 向上最多查找4行 "Table <编号>" 标题行
func FindTableTitle(lines []string, index int) string {
	if index > len(lines) {
		index = len(lines)
	}
	for i := index - 1; i >= 0 && i >= index-tableTitleLookback; i-- {
		line := strings.TrimSpace(lines[i])
		if tableTitlePattern.MatchString(line) {
			return line
		}
	}
	return DefaultTableTitle
}

func normalizeCells(cells []*string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		if c != nil {
			out[i] = strings.TrimSpace(*c)
		}
	}
	return out
}

// Cells 将字符串转换为网格行，便于构造 RawGrid
func Cells(values ...string) []*string {
	out := make([]*string, len(values))
	for i := range values {
		v := values[i]
		out[i] = &v
	}
	return out
}
