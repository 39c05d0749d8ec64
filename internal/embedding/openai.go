package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIClient OpenAI兼容接口的嵌入客户端
// 通过 BaseURL 可以对接任何提供 /embeddings 接口的服务
type OpenAIClient struct {
	client  *openai.Client // OpenAI API客户端
	cfg     *Config        // 客户端配置
	limiter *rate.Limiter  // 请求限速
}

// NewOpenAIClient 创建一个新的OpenAI兼容嵌入客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIClient{
		client:  openai.NewClientWithConfig(clientConfig),
		cfg:     cfg,
		limiter: newLimiter(cfg.RateLimit, cfg.Burst),
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.cfg.Model
}

// Embed 对单个文本生成嵌入向量
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 对多个文本生成嵌入向量
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
		}
	}

	var result [][]float32
	err := withRetry(ctx, c.cfg.MaxRetries, func(ctx context.Context) error {
		if err := waitLimiter(ctx, c.limiter); err != nil {
			return err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		resp, err := c.client.CreateEmbeddings(attemptCtx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(c.cfg.Model),
		})
		if err != nil {
			return convertOpenAIError(err)
		}

		vectors, err := orderEmbeddings(resp.Data, len(texts))
		if err != nil {
			return err
		}
		result = vectors
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// orderEmbeddings 按返回的 index 还原输入顺序
func orderEmbeddings(data []openai.Embedding, n int) ([][]float32, error) {
	if len(data) != n {
		return nil, NewEmbeddingError(ErrCodeServerError,
			fmt.Sprintf("expected %d embeddings, got %d", n, len(data)))
	}
	result := make([][]float32, n)
	for _, item := range data {
		if item.Index < 0 || item.Index >= n || result[item.Index] != nil {
			return nil, NewEmbeddingError(ErrCodeServerError,
				fmt.Sprintf("unexpected embedding index %d", item.Index))
		}
		result[item.Index] = item.Embedding
	}
	return result, nil
}

// convertOpenAIError 将 go-openai 的错误转换为 EmbeddingError
func convertOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewEmbeddingError(codeForStatus(apiErr.HTTPStatusCode), apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewEmbeddingError(codeForStatus(reqErr.HTTPStatusCode), reqErr.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewEmbeddingError(ErrCodeTimeout, err.Error())
	}
	return NewEmbeddingError(ErrCodeNetworkError, err.Error())
}

// 在包初始化时注册OpenAI兼容客户端
func init() {
	RegisterClient("openai", NewOpenAIClient)
}
