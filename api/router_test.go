package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jung-kurt/gofpdf"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fyerfyer/regdoc-rag/api/handler"
	"github.com/fyerfyer/regdoc-rag/api/middleware"
	"github.com/fyerfyer/regdoc-rag/internal/cache"
	"github.com/fyerfyer/regdoc-rag/internal/database"
	"github.com/fyerfyer/regdoc-rag/internal/document"
	"github.com/fyerfyer/regdoc-rag/internal/llm"
	"github.com/fyerfyer/regdoc-rag/internal/repository"
	"github.com/fyerfyer/regdoc-rag/internal/services"
	"github.com/fyerfyer/regdoc-rag/internal/vectordb"
	"github.com/fyerfyer/regdoc-rag/pkg/storage"
)

const testDimension = 8

// hashEmbedder 确定性的嵌入实现
type hashEmbedder struct{}

func (hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return hashVector(text), nil
}

func (hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t)
	}
	return out, nil
}

func (hashEmbedder) Name() string {
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

// 测试环境
type testEnv struct {
	router *gin.Engine
	store  vectordb.Store
	llm    *MockLLM
	ingest *services.IngestionService
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupTestEnv(t *testing.T, opts RouterOptions) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	middleware.ConfigureLogger("error", io.Discard)

	store, err := vectordb.NewStore(vectordb.Config{Type: "memory", Dimension: testDimension})
	require.NoError(t, err)

	fileStorage, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	dsn := fmt.Sprintf("file:api_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "打开内存数据库失败")
	require.NoError(t, database.AutoMigrate(db), "迁移数据表失败")
	docs := repository.NewDocumentRepositoryWithDB(db)
	queries := repository.NewQueryRepositoryWithDB(db)

	answerCache, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	model := new(MockLLM)
	pipeline := services.NewQueryPipeline(store, hashEmbedder{}, model,
		services.WithAnswerCache(answerCache, time.Minute),
		services.WithQueryHistory(queries),
		services.WithQueryLogger(quietLogger()))
	indexer := services.NewIndexer(store, hashEmbedder{}, services.WithIndexerLogger(quietLogger()))
	ingest := services.NewIngestionService(services.NewArtifactStore(fileStorage), indexer, store,
		services.WithDocumentRepository(docs),
		services.WithQueryRepository(queries),
		services.WithQueryPipeline(pipeline),
		services.WithDocumentOptions(document.WithTableDetection(false), document.WithLogger(quietLogger())),
		services.WithTempDir(t.TempDir()),
		services.WithIngestLogger(quietLogger()))

	router := SetupRouter(Handlers{
		Document:   handler.NewDocumentHandler(ingest, 0),
		Query:      handler.NewQueryHandler(pipeline),
		Collection: handler.NewCollectionHandler(ingest),
		Task:       handler.NewTaskHandler(ingest),
		Health:     handler.Health(ingest),
	}, opts)

	return &testEnv{router: router, store: store, llm: model, ingest: ingest}
}

// regulationPDF 生成包含两个条款的单页PDF
func regulationPDF(t *testing.T) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		"4.1 Fire Exits",
		"Every building shall have at least two exits.",
		"4.2 Means of Escape",
		"A clear path to the exit shall be maintained.",
	}
	for i, line := range lines {
		pdf.Text(20, float64(20+i*10), line)
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, target, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func jsonRequest(method, target string, v interface{}) *http.Request {
	data, _ := json.Marshal(v)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// apiResponse 解析统一响应
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	TraceID string          `json:"trace_id"`
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var resp apiResponse
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "响应应为合法JSON: %s", w.Body.String())
	}
	return w, resp
}

func decodeData(t *testing.T, resp apiResponse, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

// 测试上传、查看、问答、更新和删除的完整流程
func TestAPI_DocumentLifecycle(t *testing.T) {
	env := setupTestEnv(t, RouterOptions{})

	w, resp := env.do(t, uploadRequest(t, "/api/upload_pdf", "NBC Part 4.pdf", regulationPDF(t),
		map[string]string{"collection": "nbc"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var upload struct {
		Message    string `json:"message"`
		Collection string `json:"collection"`
		Count      int    `json:"count"`
		OutputJSON string `json:"output_json"`
		FileID     string `json:"file_id"`
	}
	decodeData(t, resp, &upload)
	assert.Equal(t, "PDF processed and embedded successfully", upload.Message)
	assert.Equal(t, "nbc", upload.Collection)
	assert.Equal(t, 2, upload.Count, "两个条款应写入两条索引")
	assert.Equal(t, "artifacts/NBC_Part_4.json", upload.OutputJSON)
	assert.Equal(t, "NBC_Part_4", upload.FileID)

	t.Run("PDFData", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/pdf_data/NBC_Part_4", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var records []map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
		require.Len(t, records, 2)
		assert.Equal(t, "4.1", records[0]["clause_number"])
		assert.Equal(t, "Fire Exits", records[0]["clause_title"])
	})

	t.Run("Preview", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/pdf_data/NBC_Part_4/preview", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, w.Body.String(), "Clause 4.1: Fire Exits")
	})

	t.Run("Chat", func(t *testing.T) {
		env.llm.On("Generate", mock.Anything, mock.AnythingOfType("string")).
			Return(&llm.Response{Text: "Clause: 4.1\nPage: 1\nAnswer: Two exits."}, nil).Once()

		w, resp := env.do(t, jsonRequest(http.MethodPost, "/api/chat", map[string]interface{}{
			"collection_id": "nbc",
			"query":         "How many exits are required?",
			"top_k":         5,
		}))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var chat struct {
			Answer  string                   `json:"answer"`
			Sources []map[string]interface{} `json:"sources"`
		}
		decodeData(t, resp, &chat)
		assert.Equal(t, "Clause: 4.1\nPage: 1\nAnswer: Two exits.", chat.Answer)
		assert.Len(t, chat.Sources, 2)
		env.llm.AssertExpectations(t)
	})

	t.Run("History", func(t *testing.T) {
		w, resp := env.do(t, httptest.NewRequest(http.MethodGet, "/api/history?collection=nbc", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var history struct {
			Records []struct {
				Question string `json:"question"`
				TopK     int    `json:"top_k"`
			} `json:"records"`
		}
		decodeData(t, resp, &history)
		require.Len(t, history.Records, 1)
		assert.Equal(t, "How many exits are required?", history.Records[0].Question)
		assert.Equal(t, 5, history.Records[0].TopK)
	})

	t.Run("Collections", func(t *testing.T) {
		w, resp := env.do(t, httptest.NewRequest(http.MethodGet, "/api/collections", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var list struct {
			Collections []services.CollectionInfo `json:"collections"`
		}
		decodeData(t, resp, &list)
		assert.Equal(t, []services.CollectionInfo{{Name: "nbc", Count: 2}}, list.Collections)
	})

	t.Run("Sources", func(t *testing.T) {
		w, resp := env.do(t, httptest.NewRequest(http.MethodGet, "/api/sources?collection=nbc", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var list struct {
			Total   int64 `json:"total"`
			Sources []struct {
				FileID string `json:"file_id"`
				Status string `json:"status"`
			} `json:"sources"`
		}
		decodeData(t, resp, &list)
		assert.Equal(t, int64(1), list.Total)
		assert.Equal(t, "NBC_Part_4", list.Sources[0].FileID)
		assert.Equal(t, "completed", list.Sources[0].Status)
	})

	t.Run("Update", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/update_pdf/NBC_Part_4?collection=nbc&mode=replace", nil)
		w, resp := env.do(t, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var update struct {
			UpdatedCount int `json:"updated_count"`
		}
		decodeData(t, resp, &update)
		assert.Equal(t, 2, update.UpdatedCount)

		coll, err := env.store.Get(context.Background(), "nbc")
		require.NoError(t, err)
		n, err := coll.Count(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n, "替换模式不应产生重复条目")
	})

	t.Run("Delete", func(t *testing.T) {
		w, resp := env.do(t, httptest.NewRequest(http.MethodDelete, "/api/delete_pdf/NBC_Part_4?purge=true", nil))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var del struct {
			ArtifactDeleted bool `json:"artifact_deleted"`
			Purged          int  `json:"purged"`
		}
		decodeData(t, resp, &del)
		assert.True(t, del.ArtifactDeleted)
		assert.Equal(t, 2, del.Purged)

		w, resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/pdf_data/NBC_Part_4", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "File not found", resp.Message)
	})
}

// 测试上传参数校验
func TestAPI_UploadValidation(t *testing.T) {
	env := setupTestEnv(t, RouterOptions{})
	pdf := regulationPDF(t)

	cases := []struct {
		name     string
		filename string
		fields   map[string]string
		target   string
	}{
		{"MissingFile", "", map[string]string{"collection": "nbc"}, "/api/upload_pdf"},
		{"NotPDF", "notes.txt", map[string]string{"collection": "nbc"}, "/api/upload_pdf"},
		{"MissingCollection", "a.pdf", nil, "/api/upload_pdf"},
		{"InvalidMode", "a.pdf", map[string]string{"collection": "nbc", "mode": "merge"}, "/api/upload_pdf"},
		{"InvalidCollectionName", "a.pdf", map[string]string{"collection": "x"}, "/api/upload_pdf"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w, resp := env.do(t, uploadRequest(t, c.target, c.filename, pdf, c.fields))
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}

	t.Run("CollectionFromQuery", func(t *testing.T) {
		w, _ := env.do(t, uploadRequest(t, "/api/upload_pdf?collection=nbc-query", "part.pdf", pdf, nil))
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("AsyncWithoutQueue", func(t *testing.T) {
		w, _ := env.do(t, uploadRequest(t, "/api/upload_pdf?async=true", "part.pdf", pdf,
			map[string]string{"collection": "nbc"}))
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})
}

// 测试问答接口的错误响应
func TestAPI_ChatErrors(t *testing.T) {
	env := setupTestEnv(t, RouterOptions{})
	ctx := context.Background()

	coll, err := env.store.CreateOrGet(ctx, "nbc")
	require.NoError(t, err)
	require.NoError(t, coll.Add(ctx, []vectordb.Entry{{
		ID:       "e1",
		Text:     "Clause 4.1: Fire Exits",
		Metadata: map[string]interface{}{"page": 1, "clause": "4.1"},
		Vector:   hashVector("Clause 4.1: Fire Exits"),
	}}))
	_, err = env.store.CreateOrGet(ctx, "empty")
	require.NoError(t, err)

	t.Run("CollectionNotFound", func(t *testing.T) {
		w, resp := env.do(t, jsonRequest(http.MethodPost, "/api/query", map[string]interface{}{
			"collection_id": "missing",
			"query":         "q",
		}))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Collection 'missing' not found.", resp.Message)
	})

	t.Run("NoContext", func(t *testing.T) {
		w, resp := env.do(t, jsonRequest(http.MethodPost, "/api/chat", map[string]interface{}{
			"collection_id": "empty",
			"query":         "q",
		}))
		require.Equal(t, http.StatusOK, w.Code)
		var chat struct {
			Answer  string        `json:"answer"`
			Sources []interface{} `json:"sources"`
		}
		decodeData(t, resp, &chat)
		assert.Equal(t, services.NoContextAnswer, chat.Answer)
		assert.NotNil(t, chat.Sources, "没有来源时返回空数组")
		env.llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})

	t.Run("CompletionFailure", func(t *testing.T) {
		env.llm.On("Generate", mock.Anything, mock.Anything).
			Return(nil, errors.New("rate limited")).Once()
		w, resp := env.do(t, jsonRequest(http.MethodPost, "/api/chat", map[string]interface{}{
			"collection_id": "nbc",
			"query":         "exits?",
		}))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "LLM failed: rate limited", resp.Message)
	})

	t.Run("InvalidBody", func(t *testing.T) {
		w, _ := env.do(t, jsonRequest(http.MethodPost, "/api/chat", map[string]interface{}{"query": "q"}))
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w, _ = env.do(t, jsonRequest(http.MethodPost, "/api/chat", map[string]interface{}{
			"collection_id": "nbc",
			"query":         "q",
			"top_k":         1000,
		}))
		assert.Equal(t, http.StatusBadRequest, w.Code, "top_k 超出范围")
	})
}

// 测试集合管理接口
func TestAPI_Collections(t *testing.T) {
	env := setupTestEnv(t, RouterOptions{})
	pdf := regulationPDF(t)

	for _, name := range []string{"part-3.pdf", "part-4.pdf"} {
		w, _ := env.do(t, uploadRequest(t, "/api/upload_pdf", name, pdf, map[string]string{"collection": "nbc"}))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w, _ := env.do(t, uploadRequest(t, "/api/upload_pdf", "part-4.pdf", pdf, map[string]string{"collection": "nbc"}))
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("Reindex", func(t *testing.T) {
		w, resp := env.do(t, httptest.NewRequest(http.MethodPost, "/api/collections/nbc/reindex", nil))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var res struct {
			Files   []string `json:"files"`
			Entries int      `json:"entries"`
		}
		decodeData(t, resp, &res)
		assert.Equal(t, []string{"part-3", "part-4"}, res.Files)
		assert.Equal(t, 4, res.Entries, "重建后去除重复条目")
	})

	t.Run("ReindexAsyncWithoutQueue", func(t *testing.T) {
		w, _ := env.do(t, httptest.NewRequest(http.MethodPost, "/api/collections/nbc/reindex?async=true", nil))
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})

	t.Run("Delete", func(t *testing.T) {
		w, _ := env.do(t, httptest.NewRequest(http.MethodDelete, "/api/collections/nbc", nil))
		require.Equal(t, http.StatusOK, w.Code)

		w, resp := env.do(t, httptest.NewRequest(http.MethodDelete, "/api/collections/nbc", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Collection 'nbc' not found.", resp.Message)
	})

	t.Run("TaskWithoutQueue", func(t *testing.T) {
		w, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/api/tasks/abc", nil))
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})
}

// 测试修改类接口的基本认证
func TestAPI_BasicAuth(t *testing.T) {
	env := setupTestEnv(t, RouterOptions{AuthUsers: map[string]string{"admin": "secret"}})

	w, resp := env.do(t, httptest.NewRequest(http.MethodDelete, "/api/collections/nbc", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", resp.Message)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodDelete, "/api/collections/nbc", nil)
	req.SetBasicAuth("admin", "wrong")
	w, _ = env.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/collections/nbc", nil)
	req.SetBasicAuth("admin", "secret")
	w, _ = env.do(t, req)
	assert.Equal(t, http.StatusNotFound, w.Code, "认证通过后才会检查集合")

	w, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/api/collections", nil))
	assert.Equal(t, http.StatusOK, w.Code, "只读接口不需要认证")
}

// 测试追踪ID、跨域和健康检查
func TestAPI_Middleware(t *testing.T) {
	env := setupTestEnv(t, RouterOptions{})

	t.Run("TraceID", func(t *testing.T) {
		req := jsonRequest(http.MethodPost, "/api/chat", map[string]interface{}{"collection_id": "missing", "query": "q"})
		req.Header.Set("X-Trace-ID", "trace-123")
		w, resp := env.do(t, req)
		assert.Equal(t, "trace-123", w.Header().Get("X-Trace-ID"))
		assert.Equal(t, "trace-123", resp.TraceID, "错误响应应携带追踪ID")

		w, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		assert.NotEmpty(t, w.Header().Get("X-Trace-ID"), "未提供时应自动生成")
	})

	t.Run("CORS", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/chat", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("Health", func(t *testing.T) {
		w, resp := env.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var health struct {
			Status string `json:"status"`
			Async  bool   `json:"async"`
		}
		decodeData(t, resp, &health)
		assert.Equal(t, "ok", health.Status)
		assert.False(t, health.Async)
	})
}
