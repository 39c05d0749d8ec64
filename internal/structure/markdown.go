package structure

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// RenderMarkdown 将文档记录渲染为Markdown，用于人工核对结构化结果
func RenderMarkdown(title string, records []DocumentRecord) string {
	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "# %s\n\n", escapeMarkdown(title))
	}

	for _, r := range records {
		switch {
		case r.ClauseNumber != "":
			fmt.Fprintf(&b, "## Clause %s: %s\n\n", r.ClauseNumber, escapeMarkdown(r.ClauseTitle))
		default:
			b.WriteString("## Page text\n\n")
		}
		fmt.Fprintf(&b, "*Page %d*\n\n", r.Page)

		for _, p := range r.Paragraphs {
			if p = strings.TrimSpace(p); p != "" {
				b.WriteString(escapeMarkdown(p))
				b.WriteString("\n\n")
			}
		}
		for _, t := range r.Tables {
			writeMarkdownTable(&b, t)
		}
		if len(r.Figures) > 0 {
			for _, f := range r.Figures {
				fmt.Fprintf(&b, "- Figure %s: %s\n", f.FigureNumber, escapeMarkdown(f.Title))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func writeMarkdownTable(b *strings.Builder, t TableRecord) {
	if len(t.Columns) == 0 {
		return
	}
	if t.Title != "" {
		fmt.Fprintf(b, "**%s**\n\n", escapeMarkdown(t.Title))
	}

	width := len(t.Columns)
	b.WriteString("|")
	for _, c := range t.Columns {
		b.WriteString(" " + tableCell(c) + " |")
	}
	b.WriteString("\n|")
	for i := 0; i < width; i++ {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")

	for _, row := range t.Rows {
		b.WriteString("|")
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			b.WriteString(" " + tableCell(cell) + " |")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for _, n := range t.Notes {
		fmt.Fprintf(b, "> Note: %s\n", escapeMarkdown(n))
	}
	if len(t.Notes) > 0 {
		b.WriteString("\n")
	}
}

// tableCell 单元格内的换行和竖线会破坏表格结构
func tableCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", `\|`)
	return escapeMarkdown(strings.TrimSpace(s))
}

var markdownEscaper = strings.NewReplacer(
	`*`, `\*`,
	`_`, `\_`,
	"`", "\\`",
	`<`, `&lt;`,
	`>`, `&gt;`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// RenderHTML 将文档记录渲染为HTML页面片段
func RenderHTML(title string, records []DocumentRecord) []byte {
	md := []byte(RenderMarkdown(title, records))

	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	mdParser := parser.NewWithExtensions(extensions)
	doc := mdParser.Parse(md)

	htmlFlags := html.CommonFlags | html.HrefTargetBlank
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})
	return markdown.Render(doc, renderer)
}
