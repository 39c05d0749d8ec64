package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyerfyer/regdoc-rag/config"
	"github.com/fyerfyer/regdoc-rag/internal/services"
	"github.com/fyerfyer/regdoc-rag/internal/structure"
)

// 测试命令行回答渲染
func TestRenderAnswer(t *testing.T) {
	res := &services.QueryResult{
		Answer: "Minimum stair width is 1.0 m.",
		Sources: []services.SourceRef{
			{Rank: 1, Page: "12", Clause: "4.2.1", Title: "Stairs", Score: 0.91, Text: "Stair   width\nshall be 1.0 m"},
		},
	}

	t.Run("WithSources", func(t *testing.T) {
		out := renderAnswer(res, true)
		assert.Contains(t, out, "Minimum stair width is 1.0 m.")
		assert.Contains(t, out, "Clause 4.2.1, page 12 - Stairs")
		assert.Contains(t, out, "Stair width shall be 1.0 m", "来源预览应压缩空白")
	})

	t.Run("WithoutSources", func(t *testing.T) {
		out := renderAnswer(res, false)
		assert.NotContains(t, out, "Sources")
	})
}

// 测试结构化概要渲染
func TestRenderExtraction(t *testing.T) {
	ext := &structure.Extraction{
		Records: []structure.DocumentRecord{
			{ClauseNumber: "4.1", Tables: []structure.TableRecord{{}}},
			{Paragraphs: []string{"page text"}},
		},
		Pages: []structure.PageOutcome{
			{Page: 1},
			{Page: 2, UsedOCR: true, ReadErr: errors.New("ocr failed")},
		},
	}

	out := renderExtraction("nbc.json", ext)
	assert.Contains(t, out, "nbc.json")
	assert.Contains(t, out, "pages=2 records=2 clauses=1 tables=1 figures=0 ocr_pages=1")
	assert.Contains(t, out, "degraded pages: [2]")
}

// 测试输出文件名和预览截断
func TestHelpers(t *testing.T) {
	assert.Equal(t, "NBC_Part_4.json", defaultOutput("/data/NBC_Part_4.pdf", false))
	assert.Equal(t, "NBC_Part_4.md", defaultOutput("NBC_Part_4.pdf", true))

	assert.Equal(t, "abc", preview("abc", 5))
	assert.Equal(t, "abcde...", preview("abcdefgh", 5))
	assert.Equal(t, "条款内容...", preview("条款内容很长", 4), "应按字符截断")
}

// 测试OCR配置转换为文本源选项
func TestDocumentOptions(t *testing.T) {
	c := config.Default().Extract

	base := documentOptions(c, nil)
	assert.Len(t, base, 5)

	c.OCR.Enabled = true
	withOCR := documentOptions(c, nil)
	assert.Len(t, withOCR, 6, "启用OCR时应追加OCR选项")
}
