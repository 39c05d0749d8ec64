package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/regdoc-rag/api/model"
	"github.com/fyerfyer/regdoc-rag/internal/services"
	"github.com/fyerfyer/regdoc-rag/internal/structure"
	"github.com/fyerfyer/regdoc-rag/internal/vectordb"
	"github.com/fyerfyer/regdoc-rag/pkg/taskqueue"
)

// 测试服务层错误到HTTP状态码的映射
func TestToAppError(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"CollectionNotFound", fmt.Errorf("%w: nbc", services.ErrCollectionNotFound), http.StatusNotFound, ""},
		{"ArtifactNotFound", fmt.Errorf("load: %w", services.ErrArtifactNotFound), http.StatusNotFound, "File not found"},
		{"TaskNotFound", taskqueue.ErrTaskNotFound, http.StatusNotFound, "Task not found"},
		{"Retrieval", &services.RetrievalError{Collection: "nbc", Err: errors.New("timeout")}, http.StatusInternalServerError, "vector store query failed: timeout"},
		{"Completion", &services.CompletionError{Err: errors.New("503")}, http.StatusInternalServerError, "LLM failed: 503"},
		{"ExtractionEmpty", fmt.Errorf("%w: 3 pages scanned", structure.ErrExtractionEmpty), http.StatusUnprocessableEntity, ""},
		{"QueueDisabled", services.ErrQueueDisabled, http.StatusNotImplemented, ""},
		{"InvalidName", fmt.Errorf("%w: x", vectordb.ErrInvalidCollectionName), http.StatusBadRequest, ""},
		{"InvalidFileID", services.ErrInvalidFileID, http.StatusBadRequest, ""},
		{"AppError", NewNotFoundError("gone"), http.StatusNotFound, "gone"},
		{"Unknown", errors.New("disk full"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			appErr := ToAppError(c.err)
			assert.Equal(t, c.code, appErr.Code)
			if c.message != "" {
				assert.Equal(t, c.message, appErr.Message)
			}
		})
	}
}

// 测试错误处理中间件输出统一响应
func TestErrorHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ConfigureLogger("error", io.Discard)

	router := gin.New()
	router.Use(SetTraceID(), ErrorHandler())
	router.GET("/collections/:name", func(c *gin.Context) {
		SetCollection(c, c.Param("name"))
		HandleError(c, fmt.Errorf("%w: %s", services.ErrCollectionNotFound, c.Param("name")))
	})
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	t.Run("CollectionNotFound", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/collections/nbc", nil)
		req.Header.Set(TraceIDHeader, "t-1")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		var resp model.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Collection 'nbc' not found.", resp.Message)
		assert.Equal(t, "t-1", resp.TraceID)
	})

	t.Run("Panic", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code, "panic应被恢复")
	})
}
