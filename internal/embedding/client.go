package embedding

import (
	"context"
	"fmt"
	"time"
)

// Client 文本向量化客户端
// 同一输入总是得到同一向量；EmbedBatch 的结果与输入按下标对应
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// DefaultModel 默认嵌入模型及其输出维度
const (
	DefaultModel     = "BAAI/bge-large-en-v1.5"
	DefaultDimension = 1024
)

// Config 嵌入客户端配置
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration // 单次请求超时
	MaxRetries int
	Dimensions int     // 期望的向量维度，返回向量维度不符时报错；0表示不检查
	BatchSize  int     // 单次请求最多携带的文本数
	RateLimit  float64 // 每秒请求数上限，0表示不限制
	Burst      int
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Model:      DefaultModel,
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		Dimensions: DefaultDimension,
		BatchSize:  16,
	}
}

// Option 客户端配置选项
type Option func(*Config)

func WithAPIKey(apiKey string) Option { return func(c *Config) { c.APIKey = apiKey } }

func WithBaseURL(url string) Option { return func(c *Config) { c.BaseURL = url } }

func WithModel(model string) Option { return func(c *Config) { c.Model = model } }

func WithTimeout(timeout time.Duration) Option { return func(c *Config) { c.Timeout = timeout } }

func WithMaxRetries(retries int) Option { return func(c *Config) { c.MaxRetries = retries } }

func WithDimensions(dimensions int) Option { return func(c *Config) { c.Dimensions = dimensions } }

func WithBatchSize(size int) Option { return func(c *Config) { c.BatchSize = size } }

// WithRateLimit 按令牌桶限制请求速率，rps<=0 时不限制
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Config) {
		c.RateLimit = rps
		c.Burst = burst
	}
}

// NewConfig 在默认配置上应用选项，非正的批大小和超时恢复为默认值
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return cfg
}

// checkDimensions 校验返回向量的维度，want<=0 时不检查
func checkDimensions(vectors [][]float32, want int) error {
	if want <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != want {
			return NewEmbeddingError(ErrCodeServerError,
				fmt.Sprintf("embedding dimension mismatch: vector %d has %d, expected %d", i, len(v), want))
		}
	}
	return nil
}

// Factory 客户端工厂函数
type Factory func(opts ...Option) (Client, error)

var clientFactories = make(map[string]Factory)

// RegisterClient 注册客户端实现，在各实现的 init 中调用
func RegisterClient(name string, factory Factory) {
	clientFactories[name] = factory
}

// NewClient 按名称创建客户端，如 "tei"、"openai"
func NewClient(name string, opts ...Option) (Client, error) {
	factory, ok := clientFactories[name]
	if !ok {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, "embedding client type not registered: "+name)
	}
	return factory(opts...)
}
