package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyerfyer/regdoc-rag/internal/services"
	"github.com/fyerfyer/regdoc-rag/internal/structure"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("33"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	answerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("33")).
			Padding(0, 1).
			Width(100)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("81")).
			Bold(true)
)

// sourcePreviewLen 来源列表中每条文本的预览长度
const sourcePreviewLen = 120

// renderAnswer 渲染回答和引用来源
func renderAnswer(res *services.QueryResult, showSources bool) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Answer"))
	b.WriteString("\n")
	b.WriteString(answerBoxStyle.Render(res.Answer))
	b.WriteString("\n")

	if !showSources || len(res.Sources) == 0 {
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(titleStyle.Render(fmt.Sprintf("Sources (%d)", len(res.Sources))))
	b.WriteString("\n")
	for _, s := range res.Sources {
		label := fmt.Sprintf("%2d. Clause %s, page %s", s.Rank, s.Clause, s.Page)
		if s.Title != "" {
			label += " - " + s.Title
		}
		b.WriteString(labelStyle.Render(label))
		b.WriteString(" ")
		b.WriteString(dimStyle.Render(fmt.Sprintf("(%.3f)", s.Score)))
		b.WriteString("\n    ")
		b.WriteString(dimStyle.Render(preview(s.Text, sourcePreviewLen)))
		b.WriteString("\n")
	}
	return b.String()
}

// renderExtraction 渲染结构化结果概要
func renderExtraction(out string, ext *structure.Extraction) string {
	var tables, figures, clauses int
	for _, r := range ext.Records {
		if r.ClauseNumber != "" {
			clauses++
		}
		tables += len(r.Tables)
		figures += len(r.Figures)
	}

	lines := []string{
		successStyle.Render("Extracted ") + out,
		dimStyle.Render(fmt.Sprintf("pages=%d records=%d clauses=%d tables=%d figures=%d ocr_pages=%d",
			len(ext.Pages), len(ext.Records), clauses, tables, figures, ext.OCRPages())),
	}
	if failed := ext.FailedPages(); len(failed) > 0 {
		lines = append(lines, warnStyle.Render(fmt.Sprintf("degraded pages: %v", failed)))
	}
	return strings.Join(lines, "\n")
}

// renderIndexed 渲染索引结果
func renderIndexed(res *services.IngestResult) string {
	return successStyle.Render("Indexed ") + res.FileID + " into " + res.Collection + "\n" +
		dimStyle.Render(fmt.Sprintf("records=%d entries=%d mode=%s", res.Records, res.Entries, res.Mode))
}

// preview 按字符截断并压缩空白
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
