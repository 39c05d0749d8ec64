package vectordb

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// faissEntriesFile 集合的条目文件，每行一个JSON条目
// 写入只追加，删除条目时整体重写；索引在加载时由条目向量重建
const faissEntriesFile = "entries.jsonl"

// FaissStore 基于Faiss的本地向量数据库
// 每个集合对应 Path 下的一个目录
type FaissStore struct {
	mu          sync.Mutex
	root        string
	dimension   int
	distType    DistanceType
	collections map[string]*faissCollection
}

// faissCollection Faiss 平坦索引上的集合
// 索引中的位置与 entries 下标一一对应；集合被删除或存储关闭后 closed 为真，
// 之前取得的句柄一律返回 ErrCollectionNotFound
type faissCollection struct {
	mu        sync.RWMutex
	name      string
	dir       string
	dimension int
	distType  DistanceType
	index     faiss.Index
	entries   []Entry
	closed    bool
}

// NewFaissStore 创建Faiss向量数据库
func NewFaissStore(config Config) (Store, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}
	if config.Path == "" {
		return nil, fmt.Errorf("faiss store requires a data directory")
	}
	if err := os.MkdirAll(config.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %v", err)
	}

	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}

	return &FaissStore{
		root:        config.Path,
		dimension:   config.Dimension,
		distType:    distType,
		collections: make(map[string]*faissCollection),
	}, nil
}

// createFaissIndex 创建Faiss索引
func createFaissIndex(dimension int, distType DistanceType) (faiss.Index, error) {
	var metric int
	switch distType {
	case Cosine, DotProduct:
		metric = faiss.MetricInnerProduct
	default:
		metric = faiss.MetricL2
	}
	return faiss.NewIndexFlat(dimension, metric)
}

// CreateOrGet 获取集合，不存在时创建
func (s *FaissStore) CreateOrGet(ctx context.Context, name string) (Collection, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}

	c, err := s.open(name)
	if err == nil {
		s.collections[name] = c
		return c, nil
	}
	if err != ErrCollectionNotFound {
		return nil, err
	}

	dir := filepath.Join(s.root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create collection directory: %v", err)
	}
	index, err := createFaissIndex(s.dimension, s.distType)
	if err != nil {
		return nil, fmt.Errorf("failed to create Faiss index: %v", err)
	}
	c = &faissCollection{
		name:      name,
		dir:       dir,
		dimension: s.dimension,
		distType:  s.distType,
		index:     index,
		entries:   []Entry{},
	}
	if err := c.rewrite(); err != nil {
		index.Delete()
		return nil, err
	}
	s.collections[name] = c
	return c, nil
}

// Get 获取已有集合，必要时从磁盘加载
func (s *FaissStore) Get(ctx context.Context, name string) (Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c, err := s.open(name)
	if err != nil {
		return nil, err
	}
	s.collections[name] = c
	return c, nil
}

// open 从磁盘加载集合，并用条目向量重建索引
func (s *FaissStore) open(name string) (*faissCollection, error) {
	if ValidateCollectionName(name) != nil {
		return nil, ErrCollectionNotFound
	}
	dir := filepath.Join(s.root, name)
	entries, err := readEntries(filepath.Join(dir, faissEntriesFile))
	if os.IsNotExist(err) {
		return nil, ErrCollectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", name, err)
	}

	index, err := createFaissIndex(s.dimension, s.distType)
	if err != nil {
		return nil, fmt.Errorf("failed to create Faiss index: %v", err)
	}
	if len(entries) > 0 {
		flat := make([]float32, 0, len(entries)*s.dimension)
		for _, e := range entries {
			if len(e.Vector) != s.dimension {
				index.Delete()
				return nil, fmt.Errorf("collection %s is corrupted: entry %s: %w", name, e.ID, ErrInvalidDimension)
			}
			flat = append(flat, e.Vector...)
		}
		if err := index.Add(flat); err != nil {
			index.Delete()
			return nil, fmt.Errorf("failed to rebuild index: %v", err)
		}
	}

	return &faissCollection{
		name:      name,
		dir:       dir,
		dimension: s.dimension,
		distType:  s.distType,
		index:     index,
		entries:   entries,
	}, nil
}

// Delete 删除集合目录
func (s *FaissStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[name]; ok {
		c.release()
		delete(s.collections, name)
	} else if ValidateCollectionName(name) != nil || !fileExists(filepath.Join(s.root, name, faissEntriesFile)) {
		return ErrCollectionNotFound
	}

	if err := os.RemoveAll(filepath.Join(s.root, name)); err != nil {
		return fmt.Errorf("failed to remove collection directory: %v", err)
	}
	return nil
}

// List 列出数据目录下的全部集合
func (s *FaissStore) List(ctx context.Context) ([]string, error) {
	items, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list data directory: %v", err)
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		if item.IsDir() && fileExists(filepath.Join(s.root, item.Name(), faissEntriesFile)) {
			names = append(names, item.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close 释放全部索引，条目在写入时已经落盘
func (s *FaissStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.collections {
		c.release()
	}
	s.collections = make(map[string]*faissCollection)
	return nil
}

func (c *faissCollection) Name() string {
	return c.name
}

// release 释放索引并使句柄失效
func (c *faissCollection) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.index.Delete()
	c.index = nil
	c.entries = nil
}

// Add 追加条目，先追加到条目文件再写入索引
func (c *faissCollection) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := validateEntries(entries, c.dimension); err != nil {
		return err
	}

	flat := make([]float32, 0, len(entries)*c.dimension)
	stored := make([]Entry, len(entries))
	for i, e := range entries {
		vector := e.Vector
		if c.distType == Cosine {
			vector = normalizeVector(vector)
		}
		flat = append(flat, vector...)
		stored[i] = Entry{ID: e.ID, Text: e.Text, Metadata: copyMetadata(e.Metadata), Vector: append([]float32(nil), vector...)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCollectionNotFound
	}
	if err := appendEntries(filepath.Join(c.dir, faissEntriesFile), stored); err != nil {
		// 追加可能只写入了一部分，恢复为内存中的状态
		if rerr := c.rewrite(); rerr != nil {
			return fmt.Errorf("failed to append entries: %v (restore failed: %v)", err, rerr)
		}
		return fmt.Errorf("failed to append entries: %w", err)
	}
	if err := c.index.Add(flat); err != nil {
		if rerr := c.rewrite(); rerr != nil {
			return fmt.Errorf("failed to add vectors to index: %v (restore failed: %v)", err, rerr)
		}
		return fmt.Errorf("failed to add vectors to index: %v", err)
	}
	c.entries = append(c.entries, stored...)
	return nil
}

// Query 相似度检索
func (c *faissCollection) Query(ctx context.Context, vector []float32, n int) ([]Match, error) {
	if err := ValidateVector(vector, c.dimension); err != nil {
		return nil, err
	}
	if c.distType == Cosine {
		vector = normalizeVector(vector)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrCollectionNotFound
	}
	total := int(c.index.Ntotal())
	if total == 0 || n <= 0 {
		return []Match{}, nil
	}
	if n > total {
		n = total
	}

	distances, labels, err := c.index.Search(vector, int64(n))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %v", err)
	}

	matches := make([]Match, 0, len(labels))
	for i, label := range labels {
		if label < 0 || int(label) >= len(c.entries) {
			continue
		}
		e := c.entries[label]
		dist := distances[i]
		score := dist
		switch c.distType {
		case Euclidean:
			score = DistanceToScore(dist, Euclidean)
		case DotProduct:
			score = DistanceToScore(dist, DotProduct)
		}
		matches = append(matches, Match{
			ID:       e.ID,
			Text:     e.Text,
			Metadata: copyMetadata(e.Metadata),
			Score:    score,
			Distance: dist,
		})
	}
	SortMatches(matches)
	return matches, nil
}

func (c *faissCollection) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, ErrCollectionNotFound
	}
	return len(c.entries), nil
}

// DeleteEntries 删除条目并重建平坦索引
func (c *faissCollection) DeleteEntries(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCollectionNotFound
	}

	kept := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if _, ok := drop[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(c.entries) {
		return nil
	}

	index, err := createFaissIndex(c.dimension, c.distType)
	if err != nil {
		return fmt.Errorf("failed to create Faiss index: %v", err)
	}
	if len(kept) > 0 {
		flat := make([]float32, 0, len(kept)*c.dimension)
		for _, e := range kept {
			flat = append(flat, e.Vector...)
		}
		if err := index.Add(flat); err != nil {
			index.Delete()
			return fmt.Errorf("failed to rebuild index: %v", err)
		}
	}

	old, oldEntries := c.index, c.entries
	c.index, c.entries = index, kept
	if err := c.rewrite(); err != nil {
		c.index, c.entries = old, oldEntries
		index.Delete()
		return err
	}
	old.Delete()
	return nil
}

// rewrite 用内存中的条目整体替换条目文件，调用方需持有锁
func (c *faissCollection) rewrite() error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %v", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".entries-*")
	if err != nil {
		return fmt.Errorf("failed to create entries file: %v", err)
	}
	w := bufio.NewWriter(tmp)
	err = encodeEntries(w, c.entries)
	if err == nil {
		err = w.Flush()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), filepath.Join(c.dir, faissEntriesFile))
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write entries file: %v", err)
	}
	return nil
}

// appendEntries 把条目追加到文件末尾
func appendEntries(path string, entries []Entry) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	err = encodeEntries(w, entries)
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func encodeEntries(w io.Writer, entries []Entry) error {
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("failed to marshal entry %s: %w", e.ID, err)
		}
	}
	return nil
}

// readEntries 读取条目文件，文件不存在时返回 os.ErrNotExist
func readEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries := []Entry{}
	dec := json.NewDecoder(bufio.NewReader(f))
	for {
		var e Entry
		err := dec.Decode(&e)
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode entry %d: %w", len(entries), err)
		}
		entries = append(entries, e)
	}
}

// fileExists 检查文件是否存在
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func init() {
	RegisterStore("faiss", NewFaissStore)
}
