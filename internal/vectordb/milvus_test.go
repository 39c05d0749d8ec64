package vectordb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMilvusStore 需要可用的 Milvus 服务，通过 MILVUS_ADDRESS 指定
func TestMilvusStore(t *testing.T) {
	addr := os.Getenv("MILVUS_ADDRESS")
	if addr == "" {
		t.Skip("MILVUS_ADDRESS not set, skipping milvus integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := NewStore(Config{
		Type:      "milvus",
		Dimension: 4,
		Milvus:    MilvusConfig{Address: addr},
	})
	require.NoError(t, err, "连接 Milvus 不应出错")
	defer store.Close()

	name := fmt.Sprintf("regdoc_test_%d", time.Now().UnixNano())
	c, err := store.CreateOrGet(ctx, name)
	require.NoError(t, err)
	defer store.Delete(ctx, name)

	require.NoError(t, c.Add(ctx, []Entry{
		{ID: "e1", Text: "fire exits", Metadata: map[string]interface{}{"page": 12, "clause": "4.1"}, Vector: []float32{1, 0, 0, 0}},
		{ID: "e2", Text: "stairways", Metadata: map[string]interface{}{"page": 13, "clause": "4.2"}, Vector: []float32{0, 1, 0, 0}},
	}))

	matches, err := c.Query(ctx, []float32{1, 0.1, 0, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "e1", matches[0].ID, "最相近的条目应排在首位")
	assert.Equal(t, "4.1", matches[0].Metadata["clause"])
	assert.Equal(t, "fire exits", matches[0].Text)

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, name)

	_, err = store.Get(ctx, "regdoc_missing_collection")
	assert.True(t, errors.Is(err, ErrCollectionNotFound))
}

// TestMilvusMetadataCodec 测试元数据的JSON编码
func TestMilvusMetadataCodec(t *testing.T) {
	encoded, err := encodeMilvusMetadata(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", encoded, "空元数据应编码为空对象")

	encoded, err = encodeMilvusMetadata(map[string]interface{}{"page": 12, "clause": "4.1"})
	require.NoError(t, err)
	decoded, err := decodeMilvusMetadata(encoded)
	require.NoError(t, err)
	assert.Equal(t, "4.1", decoded["clause"])
	assert.Equal(t, float64(12), decoded["page"], "JSON数字解码为 float64")

	decoded, err = decodeMilvusMetadata("")
	require.NoError(t, err)
	assert.Empty(t, decoded)

	_, err = decodeMilvusMetadata("{broken")
	assert.Error(t, err)
}

// TestTruncateRunes 测试按字节截断不拆分多字节字符
func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 10))
	assert.Equal(t, "ab", truncateRunes("abcd", 2))
	assert.Equal(t, "a", truncateRunes("a条款", 3), "不应截断在多字节字符中间")
}

// TestMilvusClipTextWarns 测试超长文本被截断时记录条目ID
func TestMilvusClipTextWarns(t *testing.T) {
	logger, hook := test.NewNullLogger()
	store := &MilvusStore{logger: logger}

	t.Run("within limit", func(t *testing.T) {
		assert.Equal(t, "short", store.clipText("nbc", "e1", "short"))
		assert.Empty(t, hook.AllEntries(), "未超限时不应记录警告")
	})

	t.Run("over limit", func(t *testing.T) {
		long := strings.Repeat("条", milvusMaxTextLength/3+10)
		clipped := store.clipText("nbc", "e2", long)
		assert.LessOrEqual(t, len(clipped), milvusMaxTextLength)
		assert.True(t, strings.HasPrefix(long, clipped))

		entry := hook.LastEntry()
		require.NotNil(t, entry, "截断时应记录警告")
		assert.Equal(t, logrus.WarnLevel, entry.Level)
		assert.Equal(t, "e2", entry.Data["entry_id"])
		assert.Equal(t, len(long), entry.Data["bytes"])
	})
}
