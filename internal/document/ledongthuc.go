package document

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// LedongthucReader 基于 ledongthuc/pdf 的文本层读取器
// 由字形坐标重建文本行，同时保留片段坐标供表格检测使用
type LedongthucReader struct{}

// NewLedongthucReader 创建读取器
func NewLedongthucReader() TextLayerReader {
	return &LedongthucReader{}
}

// Name 返回读取器名称
func (r *LedongthucReader) Name() string {
	return "ledongthuc"
}

// Open 打开PDF文件
func (r *LedongthucReader) Open(path string) (PDFDocument, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return &ledongthucDocument{file: f, reader: reader}, nil
}

type ledongthucDocument struct {
	file   *os.File
	reader *pdf.Reader
}

func (d *ledongthucDocument) NumPages() int {
	return d.reader.NumPage()
}

func (d *ledongthucDocument) PageText(ctx context.Context, index int) (string, error) {
	rows, err := d.PageRows(ctx, index)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, JoinWords(row.Words))
	}
	return strings.Join(lines, "\n"), nil
}

func (d *ledongthucDocument) PageRows(ctx context.Context, index int) (rows []TextRow, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkPage(index, d.reader.NumPage()); err != nil {
		return nil, err
	}

	page := d.reader.Page(index + 1)
	if page.V.IsNull() {
		return nil, nil
	}

	// 内容流损坏时库会 panic
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("failed to read page content: %v", r)
		}
	}()
	content := page.Content()

	glyphs := make([]glyph, 0, len(content.Text))
	for _, t := range content.Text {
		if t.S == "" {
			continue
		}
		glyphs = append(glyphs, glyph{X: t.X, Y: t.Y, W: t.W, Size: t.FontSize, S: t.S})
	}
	return buildRows(glyphs), nil
}

func (d *ledongthucDocument) Close() error {
	return d.file.Close()
}

// glyph 内容流中的单个字形，坐标为页面坐标
type glyph struct {
	X, Y, W float64
	Size    float64
	S       string
}

// advance 字形的推进宽度
// 标准14字体通常不带 Widths，此时按半个字号估算
func (g glyph) advance() float64 {
	if g.W > 0 {
		return g.W
	}
	return g.Size / 2
}

// buildRows 将字形按基线聚合为行
// 行内字形保持内容流顺序，TJ 数组中的字距调整不会产生额外空格；
// 只有跨过明显空白的字形才开始新片段，片段再按横坐标排序
func buildRows(glyphs []glyph) []TextRow {
	type rowBuilder struct {
		y     float64
		size  float64
		words []Word
		last  *glyph
	}
	var builders []*rowBuilder

	find := func(g glyph) *rowBuilder {
		tol := math.Max(g.Size/2, 1)
		for i := len(builders) - 1; i >= 0; i-- {
			if math.Abs(builders[i].y-g.Y) <= tol {
				return builders[i]
			}
		}
		b := &rowBuilder{y: g.Y, size: g.Size}
		builders = append(builders, b)
		return b
	}

	for i := range glyphs {
		g := glyphs[i]
		b := find(g)
		if b.last == nil {
			b.words = append(b.words, Word{X: g.X, Text: g.S})
			b.last = &glyphs[i]
			continue
		}

		prev := b.last
		size := math.Max(math.Max(prev.Size, g.Size), 1)
		gap := g.X - (prev.X + prev.advance())
		cur := &b.words[len(b.words)-1]
		switch {
		case gap > size || g.X < prev.X-size:
			b.words = append(b.words, Word{X: g.X, Text: g.S})
		case gap > size*0.15 && !endsWithSpace(cur.Text) && !startsWithSpace(g.S):
			cur.Text += " " + g.S
		default:
			cur.Text += g.S
		}
		b.last = &glyphs[i]
	}

	rows := make([]TextRow, 0, len(builders))
	for _, b := range builders {
		words := b.words[:0]
		for _, w := range b.words {
			if text := strings.TrimSpace(w.Text); text != "" {
				words = append(words, Word{X: w.X, Text: text})
			}
		}
		if len(words) == 0 {
			continue
		}
		sort.SliceStable(words, func(i, j int) bool { return words[i].X < words[j].X })
		rows = append(rows, TextRow{Y: b.y, Words: words})
	}
	// 页面坐标原点在左下角，自上而下排列
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Y > rows[j].Y })
	return rows
}

// JoinWords 将一行中的片段拼接为文本，相邻片段之间补一个空格
func JoinWords(words []Word) string {
	var b strings.Builder
	for i, w := range words {
		if i > 0 && !endsWithSpace(b.String()) && !startsWithSpace(w.Text) {
			b.WriteByte(' ')
		}
		b.WriteString(w.Text)
	}
	return b.String()
}

func endsWithSpace(s string) bool {
	if s == "" {
		return true
	}
	r := []rune(s)
	return unicode.IsSpace(r[len(r)-1])
}

func startsWithSpace(s string) bool {
	for _, r := range s {
		return unicode.IsSpace(r)
	}
	return false
}

func init() {
	RegisterReader("ledongthuc", NewLedongthucReader)
}
