package structure

import (
	"regexp"
	"strings"
)

// clausePattern 条款标记：1-2位数字，后跟一个或多个".数字"，空白，再接大写字母开头且至少6个字符的标题
// "前面不能是数字"的约束由 findClauseMarkers 处理，RE2 不支持后行断言
var clausePattern = regexp.MustCompile(`(\d{1,2}(?:\.\d+)+)\s+([A-Z][^\n]{5,})`)

// clauseMarker 一次条款标记匹配
type clauseMarker struct {
	start  int
	end    int
	number string
	title  string
}

// ClauseSegmenter 条款分段器
type ClauseSegmenter struct{}

// NewClauseSegmenter 创建条款分段器
func NewClauseSegmenter() *ClauseSegmenter {
	return &ClauseSegmenter{}
}

// Segment 将清洗后的页面文本切分为有序的条款块
// 没有条款标记时整页作为一个无编号的块
func (s *ClauseSegmenter) Segment(text string) []ClauseBlock {
	markers := findClauseMarkers(text)
	if len(markers) == 0 {
		return []ClauseBlock{{
			Paragraphs: CleanLines(text),
		}}
	}

	blocks := make([]ClauseBlock, 0, len(markers))
	for i, m := range markers {
		end := len(text)
		if i+1 < len(markers) {
			end = markers[i+1].start
		}
		blocks = append(blocks, ClauseBlock{
			ClauseNumber: m.number,
			ClauseTitle:  strings.TrimSpace(m.title),
			Paragraphs:   CleanLines(text[m.end:end]),
		})
	}
	return blocks
}

// findClauseMarkers 按出现位置查找所有不重叠的条款标记
func findClauseMarkers(text string) []clauseMarker {
	var markers []clauseMarker
	pos := 0
	for pos < len(text) {
		loc := clausePattern.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		start := pos + loc[0]
		if start > 0 && isASCIIDigit(text[start-1]) {
			// 编号前紧跟数字（如 "123.4"），从下一个字节继续扫描
			pos = start + 1
			continue
		}
		m := clauseMarker{
			start:  start,
			end:    pos + loc[1],
			number: text[pos+loc[2] : pos+loc[3]],
			title:  text[pos+loc[4] : pos+loc[5]],
		}
		markers = append(markers, m)
		pos = m.end
	}
	return markers
}

func isASCIIDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
