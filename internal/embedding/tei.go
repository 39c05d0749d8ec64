package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

const defaultTEIEndpoint = "http://localhost:8080"

// TEIClient text-embeddings-inference 服务客户端
// 用于自托管的 bge 系列等 sentence-transformers 模型
type TEIClient struct {
	endpoint   string        // 服务地址
	apiKey     string        // 可选的访问令牌
	model      string        // 模型名称，仅用于标识
	dimensions int           // 期望的向量维度
	httpClient *http.Client  // HTTP客户端
	maxRetries int           // 最大重试次数
	limiter    *rate.Limiter // 请求限速
}

// NewTEIClient 创建新的 TEI 嵌入客户端
func NewTEIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = defaultTEIEndpoint
	}

	return &TEIClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		limiter:    newLimiter(cfg.RateLimit, cfg.Burst),
	}, nil
}

// Name 返回模型名称
func (c *TEIClient) Name() string {
	return c.model
}

// Embed 生成单条文本的向量表示
func (c *TEIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成文本的向量表示
func (c *TEIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
		}
	}

	payload, err := json.Marshal(TEIEmbedRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("failed to marshal request: %v", err))
	}

	var vectors [][]float32
	err = withRetry(ctx, c.maxRetries, func(ctx context.Context) error {
		if err := waitLimiter(ctx, c.limiter); err != nil {
			return err
		}
		return c.send(ctx, payload, &vectors)
	})
	if err != nil {
		return nil, err
	}

	if len(vectors) != len(texts) {
		return nil, NewEmbeddingError(ErrCodeServerError,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(vectors)))
	}
	if err := checkDimensions(vectors, c.dimensions); err != nil {
		return nil, err
	}
	return vectors, nil
}

// send 发送一次请求，每次调用都重新构造请求体
func (c *TEIClient) send(ctx context.Context, payload []byte, out *[][]float32) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/embed", bytes.NewReader(payload))
	if err != nil {
		return NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NewEmbeddingError(ErrCodeNetworkError, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewEmbeddingError(ErrCodeNetworkError, fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		var errResp TEIErrorResponse
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Error != "" {
			return NewEmbeddingError(codeForStatus(resp.StatusCode), errResp.Error)
		}
		return NewEmbeddingError(codeForStatus(resp.StatusCode),
			fmt.Sprintf("API error (status %d): %s", resp.StatusCode, string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return NewEmbeddingError(ErrCodeServerError, fmt.Sprintf("failed to parse response: %v", err))
	}
	return nil
}

// 注册 TEI 客户端
func init() {
	RegisterClient("tei", NewTEIClient)
}
