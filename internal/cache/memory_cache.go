package cache

import (
	"strings"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache 基于go-cache的进程内缓存
// 与Redis实现一样按命名空间隔离，Clear 只清理本命名空间的键
type MemoryCache struct {
	cache     *gocache.Cache
	namespace string
	hits      atomic.Int64
	misses    atomic.Int64
}

// NewMemoryCache 创建内存缓存
func NewMemoryCache(config Config) (Cache, error) {
	def := DefaultConfig()
	ttl := config.DefaultTTL
	if ttl <= 0 {
		ttl = def.DefaultTTL
	}
	cleanup := config.CleanupInterval
	if cleanup <= 0 {
		cleanup = def.CleanupInterval
	}
	ns := config.Namespace
	if ns == "" {
		ns = def.Namespace
	}

	return &MemoryCache{
		cache:     gocache.New(ttl, cleanup),
		namespace: ns + ":",
	}, nil
}

func (m *MemoryCache) key(k string) string {
	return m.namespace + k
}

// Get 获取缓存内容
func (m *MemoryCache) Get(key string) (string, bool, error) {
	if value, found := m.cache.Get(m.key(key)); found {
		if s, ok := value.(string); ok {
			m.hits.Add(1)
			return s, true, nil
		}
	}
	m.misses.Add(1)
	return "", false, nil
}

// Set 写入缓存，ttl 为0时使用默认过期时间
func (m *MemoryCache) Set(key string, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.cache.Set(m.key(key), value, ttl)
	return nil
}

// Delete 删除缓存项
func (m *MemoryCache) Delete(key string) error {
	m.cache.Delete(m.key(key))
	return nil
}

// DeletePrefix 删除指定前缀的缓存项
func (m *MemoryCache) DeletePrefix(prefix string) error {
	m.deleteMatching(m.key(prefix))
	return nil
}

// Clear 清空本命名空间
func (m *MemoryCache) Clear() error {
	m.deleteMatching(m.namespace)
	return nil
}

func (m *MemoryCache) deleteMatching(prefix string) {
	for k := range m.cache.Items() {
		if strings.HasPrefix(k, prefix) {
			m.cache.Delete(k)
		}
	}
}

// Stats 返回命中和未命中次数
func (m *MemoryCache) Stats() (hits, misses int64) {
	return m.hits.Load(), m.misses.Load()
}

func init() {
	RegisterCache("memory", NewMemoryCache)
}
