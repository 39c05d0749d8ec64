package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
)

// BatchProcessor 把大量文本拆成批次并行向量化
// 输出与输入按下标对应，任一批次失败时取消其余批次
type BatchProcessor struct {
	client     Client
	batchSize  int
	maxWorkers int
}

// NewBatchProcessor 创建批处理器，非正参数使用默认值
func NewBatchProcessor(client Client, batchSize int, maxWorkers int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = DefaultConfig().BatchSize
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &BatchProcessor{client: client, batchSize: batchSize, maxWorkers: maxWorkers}
}

// Process 向量化全部文本
func (p *BatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	wp := workerpool.New(p.maxWorkers)
	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		wp.Submit(func() {
			if err := ctx.Err(); err != nil {
				fail(err)
				return
			}
			vectors, err := p.client.EmbedBatch(ctx, texts[start:end])
			if err == nil && len(vectors) != end-start {
				err = NewEmbeddingError(ErrCodeServerError,
					fmt.Sprintf("expected %d embeddings, got %d", end-start, len(vectors)))
			}
			if err != nil {
				fail(fmt.Errorf("embedding texts [%d:%d]: %w", start, end, err))
				return
			}
			// 各批次写入互不重叠的区间
			copy(out[start:end], vectors)
		})
	}
	wp.StopWait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
