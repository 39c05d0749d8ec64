package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFCPUReader 基于 pdfcpu 内容流解析的文本层读取器
// 只解析文本显示操作符，不提供版面坐标
type PDFCPUReader struct{}

// NewPDFCPUReader 创建读取器
func NewPDFCPUReader() TextLayerReader {
	return &PDFCPUReader{}
}

// Name 返回读取器名称
func (r *PDFCPUReader) Name() string {
	return "pdfcpu"
}

// Open 读取并校验PDF
func (r *PDFCPUReader) Open(path string) (PDFDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	return &pdfcpuDocument{ctx: ctx}, nil
}

type pdfcpuDocument struct {
	ctx *model.Context
}

func (d *pdfcpuDocument) NumPages() int {
	return d.ctx.PageCount
}

func (d *pdfcpuDocument) PageText(ctx context.Context, index int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := checkPage(index, d.ctx.PageCount); err != nil {
		return "", err
	}
	r, err := pdfcpu.ExtractPageContent(d.ctx, index+1)
	if err != nil {
		return "", fmt.Errorf("failed to extract page content: %w", err)
	}
	if r == nil {
		return "", nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return textFromContentStream(data), nil
}

func (d *pdfcpuDocument) PageRows(ctx context.Context, index int) ([]TextRow, error) {
	return nil, ErrLayoutUnsupported
}

func (d *pdfcpuDocument) Close() error {
	return nil
}

// HasImages 判断页面是否包含图片对象，扫描件通常只有图片
func (d *pdfcpuDocument) HasImages(index int) bool {
	if d.ctx.Optimize == nil {
		return false
	}
	return len(pdfcpu.ImageObjNrs(d.ctx, index+1)) > 0
}

// pdfStringPattern 内容流中的字符串字面量 (text)
var pdfStringPattern = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)

// textFromContentStream 从内容流的文本操作符中提取文本
// Tj/TJ 输出文本；' 、T* 和 ET 换行；Td/TD 有纵向位移时换行
func textFromContentStream(data []byte) string {
	var sb strings.Builder
	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}
	writeStrings := func(line []byte) {
		for _, m := range pdfStringPattern.FindAllSubmatch(line, -1) {
			sb.WriteString(decodePDFString(m[1]))
		}
	}

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		switch {
		case bytes.Contains(line, []byte("Tj")), bytes.Contains(line, []byte("TJ")):
			writeStrings(line)
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			newline()
			writeStrings(line)
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if movesVertically(line) {
				newline()
			} else if sb.Len() > 0 && !strings.HasSuffix(sb.String(), " ") {
				sb.WriteByte(' ')
			}
		}
		if bytes.HasSuffix(line, []byte("ET")) || bytes.Equal(line, []byte("T*")) {
			newline()
		}
	}
	return strings.TrimSpace(sb.String())
}

// movesVertically 判断 "tx ty Td" 是否包含纵向位移
func movesVertically(line []byte) bool {
	fields := bytes.Fields(line)
	if len(fields) < 3 {
		return true
	}
	ty := string(fields[len(fields)-2])
	return ty != "0" && ty != "0.0" && ty != "-0"
}

// decodePDFString 处理PDF字符串转义
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch c := raw[i]; c {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(c)
		default:
			if c < '0' || c > '7' {
				sb.WriteByte(c)
				continue
			}
			val := int(c - '0')
			for k := 0; k < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; k++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}

func init() {
	RegisterReader("pdfcpu", NewPDFCPUReader)
}
