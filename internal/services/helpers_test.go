package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fyerfyer/regdoc-rag/internal/database"
	"github.com/fyerfyer/regdoc-rag/internal/llm"
	"github.com/fyerfyer/regdoc-rag/internal/repository"
	"github.com/fyerfyer/regdoc-rag/internal/vectordb"
	"github.com/fyerfyer/regdoc-rag/pkg/storage"
)

const testDimension = 8

// MockEmbedder 嵌入客户端的模拟实现
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if v := args.Get(0); v != nil {
		return v.([]float32), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if v := args.Get(0); v != nil {
		return v.([][]float32), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEmbedder) Name() string {
	return "mock-embedder"
}

// MockLLM 大模型客户端的模拟实现
type MockLLM struct {
	mock.Mock
}

func (m *MockLLM) Generate(ctx context.Context, prompt string, options ...llm.CallOption) (*llm.Response, error) {
	args := m.Called(ctx, prompt)
	if v := args.Get(0); v != nil {
		return v.(*llm.Response), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLLM) Chat(ctx context.Context, messages []llm.Message, options ...llm.CallOption) (*llm.Response, error) {
	args := m.Called(ctx, messages)
	if v := args.Get(0); v != nil {
		return v.(*llm.Response), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLLM) Name() string {
	return "mock-llm"
}

// hashEmbedder 确定性的嵌入实现，相同文本得到相同向量
type hashEmbedder struct {
	mu        sync.Mutex
	failAfter int // 成功处理的批次数上限，0表示不失败
	batches   int
}

func (h *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return hashVector(text), nil
}

func (h *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	h.mu.Lock()
	h.batches++
	fail := h.failAfter > 0 && h.batches > h.failAfter
	h.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("embedding service unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t)
	}
	return out, nil
}

func (h *hashEmbedder) Name() string {
	return "hash"
}

func hashVector(text string) []float32 {
	v := make([]float32, testDimension)
	for i := range v {
		f := fnv.New32a()
		fmt.Fprintf(f, "%d:%s", i, text)
		v[i] = float32(f.Sum32()%1000)/1000 + 0.001
	}
	return v
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestStore(t *testing.T) vectordb.Store {
	t.Helper()
	store, err := vectordb.NewStore(vectordb.Config{Type: "memory", Dimension: testDimension})
	require.NoError(t, err)
	return store
}

func newTestArtifacts(t *testing.T) *ArtifactStore {
	t.Helper()
	s, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)
	return NewArtifactStore(s)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "打开内存数据库失败")
	require.NoError(t, database.AutoMigrate(db), "迁移数据表失败")
	return db
}

func newTestRepos(t *testing.T) (repository.DocumentRepository, repository.QueryRepository) {
	db := newTestDB(t)
	return repository.NewDocumentRepositoryWithDB(db), repository.NewQueryRepositoryWithDB(db)
}
