package embedding

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lengthClient 以文本长度作为向量的测试客户端
type lengthClient struct {
	mu      sync.Mutex
	batches [][]string
	failOn  string
}

func (c *lengthClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}

func (c *lengthClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.batches = append(c.batches, texts)
	c.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if c.failOn != "" && strings.Contains(text, c.failOn) {
			return nil, NewEmbeddingError(ErrCodeServerError, ErrMsgServerError)
		}
		out[i] = []float32{float32(len(text))}
	}
	return out, nil
}

func (c *lengthClient) Name() string { return "length" }

// 测试批处理器
func TestBatchProcessor(t *testing.T) {
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}

	t.Run("Preserves input order", func(t *testing.T) {
		client := &lengthClient{}
		processor := NewBatchProcessor(client, 2, 3)

		vectors, err := processor.Process(context.Background(), texts)
		require.NoError(t, err)
		require.Len(t, vectors, len(texts))
		for i, v := range vectors {
			assert.Equal(t, float32(i+1), v[0], "结果应与输入顺序一致")
		}
		assert.Len(t, client.batches, 3, "5条文本按2条一批应分成3批")
	})

	t.Run("Batch failure", func(t *testing.T) {
		processor := NewBatchProcessor(&lengthClient{failOn: "ccc"}, 2, 2)

		_, err := processor.Process(context.Background(), texts)
		require.Error(t, err)
		var embErr EmbeddingError
		assert.True(t, errors.As(err, &embErr), "应保留原始错误类型")
	})

	t.Run("Cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewBatchProcessor(&lengthClient{}, 2, 2).Process(ctx, texts)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Empty input", func(t *testing.T) {
		vectors, err := NewBatchProcessor(&lengthClient{}, 0, 0).Process(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, vectors)
	})

	t.Run("Uneven batches", func(t *testing.T) {
		client := &lengthClient{}
		_, err := NewBatchProcessor(client, 4, 1).Process(context.Background(), texts)
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"a", "bb", "ccc", "dddd"}, {"eeeee"}}, client.batches)
	})
}
