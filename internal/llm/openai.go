package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIClient OpenAI兼容的对话补全客户端
// Groq 等兼容服务通过 BaseURL 接入
type OpenAIClient struct {
	client  *openai.Client // go-openai 客户端
	cfg     *Config        // 客户端配置
	limiter *rate.Limiter  // 请求限速
}

// NewOpenAIClient 创建OpenAI兼容客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	return newOpenAICompatible(cfg)
}

// NewGroqClient 创建Groq客户端，未指定地址时使用 Groq 的兼容接口
func NewGroqClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.BaseURL == "" {
		cfg.BaseURL = GroqBaseURL
	}
	return newOpenAICompatible(cfg)
}

func newOpenAICompatible(cfg *Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}
	if cfg.Model == "" {
		return nil, NewLLMError(ErrCodeInvalidRequest, "model name is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &OpenAIClient{
		client:  openai.NewClientWithConfig(clientConfig),
		cfg:     cfg,
		limiter: limiter,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.cfg.Model
}

// Generate 以单条用户消息生成回答
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, options ...CallOption) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}
	return c.complete(ctx, []Message{{Role: RoleUser, Content: prompt}}, options)
}

// Chat 进行多轮对话，返回的 Messages 末尾追加助手回复
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, options ...CallOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "messages cannot be empty")
	}

	resp, err := c.complete(ctx, messages, options)
	if err != nil {
		return nil, err
	}
	resp.Messages = append(append([]Message{}, messages...), Message{Role: RoleAssistant, Content: resp.Text})
	return resp, nil
}

// complete 发送补全请求，可重试错误按指数退避重试
func (c *OpenAIClient) complete(ctx context.Context, messages []Message, options []CallOption) (*Response, error) {
	maxTokens, temperature, topP, stop := c.cfg.resolve(options)
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
		Stop:        stop,
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, NewLLMError(ErrCodeTimeout, ctx.Err().Error())
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}

		resp, err := c.do(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (c *OpenAIClient) do(ctx context.Context, req openai.ChatCompletionRequest) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, NewLLMError(ErrCodeRateLimited, err.Error())
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(attemptCtx, req)
	if err != nil {
		return nil, convertOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewLLMError(ErrCodeServerError, "no choices in completion response")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return nil, NewLLMError(ErrCodeContentFilter, ErrMsgContentFilter)
	}

	return &Response{
		Text:         choice.Message.Content,
		TokenCount:   resp.Usage.TotalTokens,
		ModelName:    resp.Model,
		FinishReason: string(choice.FinishReason),
		FinishTime:   time.Now(),
	}, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
			Name:    m.Name,
		}
	}
	return out
}

// convertOpenAIError 将 go-openai 的错误转换为 LLMError
func convertOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewLLMError(codeForStatus(apiErr.HTTPStatusCode), apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewLLMError(codeForStatus(reqErr.HTTPStatusCode), reqErr.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewLLMError(ErrCodeTimeout, err.Error())
	}
	return NewLLMError(ErrCodeNetworkError, err.Error())
}

func init() {
	RegisterClient("openai", NewOpenAIClient)
	RegisterClient("groq", NewGroqClient)
}
