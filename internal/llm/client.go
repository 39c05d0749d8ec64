package llm

import (
	"context"
	"time"
)

// Client 补全模型客户端
// 问答流水线只使用 Generate；Chat 供需要多轮上下文的调用方使用
type Client interface {
	Generate(ctx context.Context, prompt string, options ...CallOption) (*Response, error)
	Chat(ctx context.Context, messages []Message, options ...CallOption) (*Response, error)
	// Name 返回模型名称
	Name() string
}

// Config 客户端级别的默认参数，单次请求可以用 CallOption 覆盖
type Config struct {
	APIKey      string
	BaseURL     string        // OpenAI 兼容接口地址，Groq 为 GroqBaseURL
	Model       string
	Timeout     time.Duration // 单次HTTP请求超时
	MaxRetries  int           // 限流、超时和5xx错误的重试次数
	MaxTokens   int
	Temperature float32
	TopP        float32 // 0 表示使用服务端默认值
	RateLimit   float64 // 每秒请求数上限，0表示不限制
	Burst       int
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Model:       ModelLlama4Scout,
		Timeout:     60 * time.Second,
		MaxRetries:  3,
		MaxTokens:   700,
		Temperature: 0.3, // 低温度保证回答可复现
	}
}

// Option 客户端配置选项
type Option func(*Config)

func WithAPIKey(apiKey string) Option { return func(c *Config) { c.APIKey = apiKey } }

func WithBaseURL(url string) Option { return func(c *Config) { c.BaseURL = url } }

func WithModel(model string) Option { return func(c *Config) { c.Model = model } }

func WithTimeout(timeout time.Duration) Option { return func(c *Config) { c.Timeout = timeout } }

func WithMaxRetries(retries int) Option { return func(c *Config) { c.MaxRetries = retries } }

func WithMaxTokens(tokens int) Option { return func(c *Config) { c.MaxTokens = tokens } }

func WithTemperature(temp float32) Option { return func(c *Config) { c.Temperature = temp } }

func WithTopP(topP float32) Option { return func(c *Config) { c.TopP = topP } }

// WithRateLimit 按令牌桶限制请求速率，rps<=0 时不限制
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Config) {
		c.RateLimit = rps
		c.Burst = burst
	}
}

// NewConfig 在默认配置上应用选项
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// CallOptions 单次请求的参数覆盖，nil 字段沿用客户端配置
type CallOptions struct {
	MaxTokens   *int
	Temperature *float32
	TopP        *float32
	Stop        []string
}

// CallOption 单次请求选项
type CallOption func(*CallOptions)

// CallMaxTokens 覆盖本次请求的最大生成Token数
func CallMaxTokens(tokens int) CallOption {
	return func(o *CallOptions) { o.MaxTokens = &tokens }
}

// CallTemperature 覆盖本次请求的采样温度
func CallTemperature(temp float32) CallOption {
	return func(o *CallOptions) { o.Temperature = &temp }
}

// CallTopP 覆盖本次请求的核采样阈值
func CallTopP(topP float32) CallOption {
	return func(o *CallOptions) { o.TopP = &topP }
}

// CallStop 设置停止序列
func CallStop(sequences ...string) CallOption {
	return func(o *CallOptions) { o.Stop = append(o.Stop, sequences...) }
}

// resolve 合并客户端默认值和请求选项
func (c *Config) resolve(options []CallOption) (maxTokens int, temperature, topP float32, stop []string) {
	var o CallOptions
	for _, opt := range options {
		opt(&o)
	}
	maxTokens, temperature, topP = c.MaxTokens, c.Temperature, c.TopP
	if o.MaxTokens != nil {
		maxTokens = *o.MaxTokens
	}
	if o.Temperature != nil {
		temperature = *o.Temperature
	}
	if o.TopP != nil {
		topP = *o.TopP
	}
	return maxTokens, temperature, topP, o.Stop
}

// Factory 客户端工厂函数
type Factory func(opts ...Option) (Client, error)

var clientFactories = make(map[string]Factory)

// RegisterClient 注册客户端实现，在各实现的 init 中调用
func RegisterClient(name string, factory Factory) {
	clientFactories[name] = factory
}

// NewClient 按名称创建客户端，如 "groq"、"openai"
func NewClient(name string, opts ...Option) (Client, error) {
	factory, ok := clientFactories[name]
	if !ok {
		return nil, NewLLMError(ErrCodeInvalidRequest, "llm client type not registered: "+name)
	}
	return factory(opts...)
}
