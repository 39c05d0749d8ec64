package document

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Rasterizer 将PDF页面渲染为图片
type Rasterizer interface {
	// Render 以指定DPI渲染页面，index 从0开始，返回PNG数据
	Render(ctx context.Context, pdfPath string, index int, dpi int) ([]byte, error)
}

// OCREngine 光学字符识别引擎
type OCREngine interface {
	// Recognize 识别图片中的文本
	Recognize(ctx context.Context, image []byte) (string, error)
}

// OCRError OCR兜底失败
type OCRError struct {
	Page  int
	Stage string // render 或 recognize
	Err   error
}

func (e *OCRError) Error() string {
	return fmt.Sprintf("ocr %s failed on page %d: %v", e.Stage, e.Page, e.Err)
}

func (e *OCRError) Unwrap() error {
	return e.Err
}

// CommandRasterizer 调用 pdftoppm 渲染页面
type CommandRasterizer struct {
	Command string // 可执行文件，默认 pdftoppm
}

// NewCommandRasterizer 创建基于命令行的渲染器
func NewCommandRasterizer(command string) *CommandRasterizer {
	if command == "" {
		command = "pdftoppm"
	}
	return &CommandRasterizer{Command: command}
}

// Render 渲染单页为PNG，输出写到标准输出
func (r *CommandRasterizer) Render(ctx context.Context, pdfPath string, index int, dpi int) ([]byte, error) {
	page := strconv.Itoa(index + 1)
	args := []string{"-r", strconv.Itoa(dpi), "-f", page, "-l", page, "-png", "-singlefile", pdfPath}
	return runCommand(ctx, r.Command, args, nil)
}

// TesseractEngine 调用 tesseract 命令识别文本
type TesseractEngine struct {
	Command  string // 可执行文件，默认 tesseract
	Language string // 识别语言，默认 eng
}

// NewTesseractEngine 创建 tesseract 引擎
func NewTesseractEngine(command, language string) *TesseractEngine {
	if command == "" {
		command = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &TesseractEngine{Command: command, Language: language}
}

// Recognize 从标准输入读取图片，识别结果写到标准输出
func (e *TesseractEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	out, err := runCommand(ctx, e.Command, []string{"stdin", "stdout", "-l", e.Language}, image)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// runCommand 执行外部命令并返回标准输出
func runCommand(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// HTTPOCREngine 通过HTTP调用远程OCR服务
// 请求体为原始图片，响应为 {"text": "..."}
type HTTPOCREngine struct {
	endpoint   string
	httpClient *http.Client
	maxRetries int
}

// NewHTTPOCREngine 创建HTTP OCR引擎
func NewHTTPOCREngine(endpoint string, timeout time.Duration, maxRetries int) *HTTPOCREngine {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPOCREngine{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}
}

// Recognize 上传图片并返回识别文本，5xx 和网络错误按指数退避重试
func (e *HTTPOCREngine) Recognize(ctx context.Context, image []byte) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}

		text, retry, err := e.do(ctx, image)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return "", lastErr
}

func (e *HTTPOCREngine) do(ctx context.Context, image []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(image))
	if err != nil {
		return "", false, fmt.Errorf("failed to create OCR request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("OCR request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("failed to read OCR response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("OCR service error (status %d): %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("OCR request rejected (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", false, fmt.Errorf("failed to parse OCR response: %w", err)
	}
	return result.Text, false, nil
}
