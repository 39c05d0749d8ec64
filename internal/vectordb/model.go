package vectordb

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"
)

// 常用错误定义
var (
	ErrCollectionNotFound    = errors.New("collection not found")
	ErrInvalidCollectionName = errors.New("invalid collection name")
	ErrEmptyVector           = errors.New("empty vector")
	ErrInvalidID             = errors.New("invalid entry ID")
	ErrInvalidDimension      = errors.New("vector dimension mismatch")
)

// Entry 索引条目
// 写入后不可修改，ID 由调用方生成
type Entry struct {
	ID       string                 `json:"id"`       // 唯一标识符
	Text     string                 `json:"text"`     // 原始文本
	Metadata map[string]interface{} `json:"metadata"` // 附加元数据，如 page、clause、title
	Vector   []float32              `json:"vector"`   // 向量表示
}

// Match 检索命中的条目
type Match struct {
	ID       string                 // 条目ID
	Text     string                 // 原始文本
	Metadata map[string]interface{} // 元数据
	Score    float32                // 相似度得分，越大越相似
	Distance float32                // 计算的距离
}

// DistanceType 向量距离计算方法
type DistanceType string

const (
	// Cosine 余弦相似度
	Cosine DistanceType = "cosine"
	// DotProduct 点积
	DotProduct DistanceType = "dot"
	// Euclidean 欧几里得距离
	Euclidean DistanceType = "l2"
)

// Collection 命名的向量集合
type Collection interface {
	// Name 返回集合名称
	Name() string

	// Add 追加条目
	Add(ctx context.Context, entries []Entry) error

	// Query 返回与向量最相近的 n 个条目，按相似度从高到低排列
	Query(ctx context.Context, vector []float32, n int) ([]Match, error)

	// Count 获取条目总数
	Count(ctx context.Context) (int, error)

	// DeleteEntries 删除指定条目，不存在的ID被忽略
	DeleteEntries(ctx context.Context, ids []string) error
}

// Store 向量数据库接口，管理多个命名集合
type Store interface {
	// CreateOrGet 获取集合，不存在时创建
	CreateOrGet(ctx context.Context, name string) (Collection, error)

	// Get 获取已有集合，不存在时返回 ErrCollectionNotFound
	Get(ctx context.Context, name string) (Collection, error)

	// Delete 删除集合及其全部条目
	Delete(ctx context.Context, name string) error

	// List 列出全部集合名称
	List(ctx context.Context) ([]string, error)

	// Close 关闭数据库连接
	Close() error
}

// MilvusConfig Milvus 连接配置
type MilvusConfig struct {
	Address  string // 服务地址
	Username string // 用户名
	Password string // 密码
	DBName   string // 数据库名
}

// Config 向量数据库配置
type Config struct {
	Type         string       // 数据库类型，如 "memory", "faiss", "milvus"
	Path         string       // 本地持久化目录
	Dimension    int          // 向量维度
	DistanceType DistanceType // 距离计算类型
	Milvus       MilvusConfig // Milvus 配置
	Logger       *logrus.Logger
}

// Factory 向量数据库工厂函数类型
type Factory func(config Config) (Store, error)

// StoreRegistry 注册可用的向量数据库实现
var StoreRegistry = map[string]Factory{}

// RegisterStore 注册向量数据库工厂函数
func RegisterStore(name string, factory Factory) {
	StoreRegistry[name] = factory
}

// NewStore 根据配置创建向量数据库实例
func NewStore(config Config) (Store, error) {
	if config.Type == "" {
		config.Type = "memory"
	}
	factory, ok := StoreRegistry[config.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported vector store type: %s", config.Type)
	}
	return factory(config)
}

var collectionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{1,61}[a-zA-Z0-9]$`)

// ValidateCollectionName 校验集合名称：3-63个字符，只含字母数字、下划线和连字符，首尾为字母或数字
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollectionName, name)
	}
	return nil
}
