package structure

import (
	"regexp"
	"strings"
	"unicode"
)

// figurePattern 图片标题片段：Fig / Fig. / Figure 加编号，直到换行或冒号
var figurePattern = regexp.MustCompile(`(?i)Fig(?:ure)?\.?\s*\d+[^:\n]*`)

// FigureExtractor 图片标题提取器
type FigureExtractor struct{}

// NewFigureExtractor 创建图片标题提取器
func NewFigureExtractor() *FigureExtractor {
	return &FigureExtractor{}
}

// Extract 扫描文本中的图片标题
func (e *FigureExtractor) Extract(text string) []FigureRecord {
	matches := figurePattern.FindAllString(text, -1)
	figures := make([]FigureRecord, 0, len(matches))
	for _, m := range matches {
		parts := splitFieldsN(m, 3)
		if len(parts) < 2 {
			continue
		}
		fig := FigureRecord{
			FigureNumber: strings.Trim(parts[1], "."),
		}
		if len(parts) == 3 {
			fig.Title = strings.TrimSpace(parts[2])
		}
		figures = append(figures, fig)
	}
	return figures
}

// splitFieldsN 按空白拆分为最多 n 段，最后一段保留剩余文本
func splitFieldsN(s string, n int) []string {
	var parts []string
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	for s != "" {
		if len(parts) == n-1 {
			parts = append(parts, s)
			break
		}
		i := strings.IndexFunc(s, unicode.IsSpace)
		if i < 0 {
			parts = append(parts, s)
			break
		}
		parts = append(parts, s[:i])
		s = strings.TrimLeftFunc(s[i:], unicode.IsSpace)
	}
	return parts
}
