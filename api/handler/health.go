package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fyerfyer/regdoc-rag/api/model"
	"github.com/fyerfyer/regdoc-rag/internal/services"
)

// Health 健康检查，同时确认向量库可用
// checks 为附加依赖的探测函数，如数据库连接
// GET /api/health
func Health(ingest *services.IngestionService, checks ...func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, check := range checks {
			if err := check(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, model.NewErrorResponse(
					http.StatusServiceUnavailable,
					"dependency unavailable: "+err.Error(),
				))
				return
			}
		}
		infos, err := ingest.ListCollections(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, model.NewErrorResponse(
				http.StatusServiceUnavailable,
				"vector store unavailable: "+err.Error(),
			))
			return
		}
		c.JSON(http.StatusOK, model.NewSuccessResponse(model.HealthResponse{
			Status:      "ok",
			Collections: len(infos),
			Async:       ingest.AsyncEnabled(),
		}))
	}
}
