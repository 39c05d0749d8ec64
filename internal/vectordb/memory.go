package vectordb

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore 内存向量数据库，暴力检索
// 适合测试和小规模文档集
type MemoryStore struct {
	mu          sync.RWMutex
	dimension   int
	distType    DistanceType
	collections map[string]*memoryCollection
}

// memoryCollection 内存集合，条目按写入顺序保存
type memoryCollection struct {
	mu        sync.RWMutex
	name      string
	dimension int
	distType  DistanceType
	entries   []Entry
}

// NewMemoryStore 创建内存向量数据库
func NewMemoryStore(config Config) (Store, error) {
	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}
	return &MemoryStore{
		dimension:   config.Dimension,
		distType:    distType,
		collections: make(map[string]*memoryCollection),
	}, nil
}

// CreateOrGet 获取集合，不存在时创建
func (s *MemoryStore) CreateOrGet(ctx context.Context, name string) (Collection, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c := &memoryCollection{name: name, dimension: s.dimension, distType: s.distType}
	s.collections[name] = c
	return c, nil
}

// Get 获取已有集合
func (s *MemoryStore) Get(ctx context.Context, name string) (Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, ErrCollectionNotFound
	}
	return c, nil
}

// Delete 删除集合
func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		return ErrCollectionNotFound
	}
	delete(s.collections, name)
	return nil
}

// List 列出全部集合名称，按名称排序
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close 关闭数据库
func (s *MemoryStore) Close() error {
	return nil
}

func (c *memoryCollection) Name() string {
	return c.name
}

func (c *memoryCollection) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// 未配置维度时由第一批条目确定，维度只能在锁内读取
	dimension := c.dimension
	if dimension == 0 {
		dimension = len(entries[0].Vector)
	}
	if err := validateEntries(entries, dimension); err != nil {
		return err
	}
	c.dimension = dimension
	for _, e := range entries {
		vector := make([]float32, len(e.Vector))
		copy(vector, e.Vector)
		c.entries = append(c.entries, Entry{
			ID:       e.ID,
			Text:     e.Text,
			Metadata: copyMetadata(e.Metadata),
			Vector:   vector,
		})
	}
	return nil
}

func (c *memoryCollection) Query(ctx context.Context, vector []float32, n int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.entries) == 0 || n <= 0 {
		return []Match{}, nil
	}
	if err := ValidateVector(vector, c.dimension); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(c.entries))
	for _, e := range c.entries {
		dist, err := ComputeDistance(vector, e.Vector, c.distType)
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match{
			ID:       e.ID,
			Text:     e.Text,
			Metadata: copyMetadata(e.Metadata),
			Score:    DistanceToScore(dist, c.distType),
			Distance: dist,
		})
	}

	SortMatches(matches)
	if len(matches) > n {
		matches = matches[:n]
	}
	return matches, nil
}

func (c *memoryCollection) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}

func (c *memoryCollection) DeleteEntries(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.entries[:0]
	for _, e := range c.entries {
		if _, ok := drop[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	c.entries = kept
	return nil
}

func init() {
	RegisterStore("memory", NewMemoryStore)
}
