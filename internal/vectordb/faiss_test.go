package vectordb

import (
	"context"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFaissStore(t *testing.T, dir string) Store {
	t.Helper()
	store, err := NewStore(Config{Type: "faiss", Path: dir, Dimension: 3, DistanceType: Cosine})
	if err != nil {
		t.Skipf("faiss store unavailable: %v", err)
	}
	return store
}

// TestFaissStorePersistence 测试集合写入磁盘后可被新实例加载
func TestFaissStorePersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store := newTestFaissStore(t, dir)
	c, err := store.CreateOrGet(ctx, "building-code")
	if err != nil {
		t.Skipf("faiss index unavailable: %v", err)
	}
	require.NoError(t, c.Add(ctx, []Entry{
		{ID: "e1", Text: "Every building shall have at least two exits.", Metadata: map[string]interface{}{"clause": "4.1"}, Vector: []float32{1, 0, 0}},
		{ID: "e2", Text: "A clear path to the exit shall be maintained.", Metadata: map[string]interface{}{"clause": "4.2"}, Vector: []float32{0, 1, 0}},
	}))
	require.NoError(t, store.Close())

	reopened := newTestFaissStore(t, dir)
	defer reopened.Close()

	names, err := reopened.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"building-code"}, names, "重新打开后应能列出已有集合")

	c, err = reopened.Get(ctx, "building-code")
	require.NoError(t, err, "重新打开后应能获取集合")
	count, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	matches, err := c.Query(ctx, []float32{0.9, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "e1", matches[0].ID, "最相近的条目应排在首位")
	assert.Equal(t, "4.1", matches[0].Metadata["clause"], "元数据应被持久化")
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

// TestFaissCollectionDeleteEntries 测试删除条目后索引被重建
func TestFaissCollectionDeleteEntries(t *testing.T) {
	ctx := context.Background()
	store := newTestFaissStore(t, t.TempDir())
	defer store.Close()

	c, err := store.CreateOrGet(ctx, "deletes")
	if err != nil {
		t.Skipf("faiss index unavailable: %v", err)
	}
	require.NoError(t, c.Add(ctx, []Entry{
		{ID: "a", Vector: []float32{1, 0, 0}},
		{ID: "b", Vector: []float32{0, 1, 0}},
		{ID: "c", Vector: []float32{0, 0, 1}},
	}))

	require.NoError(t, c.DeleteEntries(ctx, []string{"a"}))
	count, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	matches, err := c.Query(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 2, "检索结果不应超过剩余条目数")
	for _, m := range matches {
		assert.NotEqual(t, "a", m.ID, "已删除的条目不应被检索到")
	}
}

// TestFaissStoreDelete 测试删除集合
func TestFaissStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestFaissStore(t, t.TempDir())
	defer store.Close()

	_, err := store.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrCollectionNotFound), "未知集合应返回 ErrCollectionNotFound")

	if _, err := store.CreateOrGet(ctx, "temporary"); err != nil {
		t.Skipf("faiss index unavailable: %v", err)
	}
	require.NoError(t, store.Delete(ctx, "temporary"))

	_, err = store.Get(ctx, "temporary")
	assert.True(t, errors.Is(err, ErrCollectionNotFound), "删除后集合不应存在")
	assert.True(t, errors.Is(store.Delete(ctx, "temporary"), ErrCollectionNotFound))

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

// TestFaissHandleAfterDelete 测试集合删除或存储关闭后旧句柄不可再用
func TestFaissHandleAfterDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestFaissStore(t, t.TempDir())
	defer store.Close()

	c, err := store.CreateOrGet(ctx, "stale")
	if err != nil {
		t.Skipf("faiss index unavailable: %v", err)
	}
	require.NoError(t, c.Add(ctx, []Entry{{ID: "a", Vector: []float32{1, 0, 0}}}))

	t.Run("deleted collection", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "stale"))

		_, err := c.Query(ctx, []float32{1, 0, 0}, 1)
		assert.True(t, errors.Is(err, ErrCollectionNotFound), "删除后检索应返回 ErrCollectionNotFound")
		err = c.Add(ctx, []Entry{{ID: "b", Vector: []float32{0, 1, 0}}})
		assert.True(t, errors.Is(err, ErrCollectionNotFound), "删除后写入应返回 ErrCollectionNotFound")
		_, err = c.Count(ctx)
		assert.True(t, errors.Is(err, ErrCollectionNotFound), "删除后计数应返回 ErrCollectionNotFound")
		err = c.DeleteEntries(ctx, []string{"a"})
		assert.True(t, errors.Is(err, ErrCollectionNotFound), "删除后删除条目应返回 ErrCollectionNotFound")
	})

	t.Run("closed store", func(t *testing.T) {
		other, err := store.CreateOrGet(ctx, "closing")
		require.NoError(t, err)
		require.NoError(t, store.Close())

		_, err = other.Query(ctx, []float32{1, 0, 0}, 1)
		assert.True(t, errors.Is(err, ErrCollectionNotFound), "关闭后检索应返回 ErrCollectionNotFound")
	})
}

// TestFaissAddAppendsEntries 测试写入只追加新条目而不重写已有内容
func TestFaissAddAppendsEntries(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := newTestFaissStore(t, dir)

	c, err := store.CreateOrGet(ctx, "append")
	if err != nil {
		t.Skipf("faiss index unavailable: %v", err)
	}
	path := filepath.Join(dir, "append", faissEntriesFile)

	require.NoError(t, c.Add(ctx, []Entry{{ID: "a", Text: "first", Vector: []float32{1, 0, 0}}}))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, c.Add(ctx, []Entry{
		{ID: "b", Text: "second", Vector: []float32{0, 1, 0}},
		{ID: "c", Text: "third", Vector: []float32{0, 0, 1}},
	}))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(second, first), "已有条目应保持原样，新条目追加在末尾")
	assert.Equal(t, 3, bytes.Count(second, []byte("\n")), "每个条目应占一行")

	require.NoError(t, c.DeleteEntries(ctx, []string{"b"}))
	require.NoError(t, store.Close())

	reopened := newTestFaissStore(t, dir)
	defer reopened.Close()
	c, err = reopened.Get(ctx, "append")
	require.NoError(t, err)
	count, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "重新打开后应只包含未删除的条目")

	matches, err := c.Query(ctx, []float32{0, 0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c", matches[0].ID, "重建的索引应与条目一一对应")
}

// TestNewFaissStoreConfig 测试配置校验
func TestNewFaissStoreConfig(t *testing.T) {
	_, err := NewFaissStore(Config{Path: t.TempDir()})
	assert.Error(t, err, "维度为0时应返回错误")

	_, err = NewFaissStore(Config{Dimension: 3})
	assert.Error(t, err, "缺少数据目录时应返回错误")
}
