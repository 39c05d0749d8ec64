package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Cache 问答结果缓存
// 值统一按字符串保存，由调用方负责序列化
type Cache interface {
	Get(key string) (value string, found bool, err error)
	// Set ttl 为0时使用实现的默认过期时间
	Set(key string, value string, ttl time.Duration) error
	Delete(key string) error
	// DeletePrefix 删除指定前缀的全部键，用于集合变更后失效旧答案
	DeletePrefix(prefix string) error
	// Clear 清空当前命名空间
	Clear() error
}

// Config 缓存配置
type Config struct {
	Type            string // memory 或 redis
	Namespace       string // 键前缀，多个实例共享同一Redis时互不干扰
	DefaultTTL      time.Duration
	CleanupInterval time.Duration // 内存缓存的过期清理间隔

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Type:            "memory",
		Namespace:       "regdoc",
		DefaultTTL:      time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// Factory 缓存工厂函数
type Factory func(config Config) (Cache, error)

var registry = make(map[string]Factory)

// RegisterCache 注册缓存实现
func RegisterCache(name string, factory Factory) {
	registry[name] = factory
}

// NewCache 按类型创建缓存，未知类型回退到内存缓存
func NewCache(config Config) (Cache, error) {
	factory, ok := registry[config.Type]
	if !ok {
		return NewMemoryCache(config)
	}
	return factory(config)
}

// GenerateCacheKey 用冒号拼接键的各个部分
func GenerateCacheKey(prefix string, parts ...string) string {
	if len(parts) == 0 {
		return prefix
	}
	return prefix + ":" + strings.Join(parts, ":")
}

// AnswerKeyPrefix 某个集合全部问答缓存的公共前缀
func AnswerKeyPrefix(collection string) string {
	return GenerateCacheKey("answer", collection) + ":"
}

// AnswerKey 问答结果的缓存键
// 问题文本取摘要，避免长问题产生过长的键
func AnswerKey(collection string, topK int, question string) string {
	sum := sha256.Sum256([]byte(question))
	return AnswerKeyPrefix(collection) + strconv.Itoa(topK) + ":" + hex.EncodeToString(sum[:16])
}
