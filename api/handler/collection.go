package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/regdoc-rag/api/middleware"
	"github.com/fyerfyer/regdoc-rag/api/model"
	"github.com/fyerfyer/regdoc-rag/internal/services"
)

// CollectionHandler 处理集合管理相关的API请求
type CollectionHandler struct {
	ingest *services.IngestionService
	logger *logrus.Logger
}

// NewCollectionHandler 创建新的集合处理器
func NewCollectionHandler(ingest *services.IngestionService) *CollectionHandler {
	return &CollectionHandler{
		ingest: ingest,
		logger: middleware.GetLogger(),
	}
}

// List 列出全部集合
// GET /api/collections
func (h *CollectionHandler) List(c *gin.Context) {
	infos, err := h.ingest.ListCollections(c.Request.Context())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.CollectionListResponse{Collections: infos}))
}

// Delete 删除集合
// DELETE /api/collections/:name
func (h *CollectionHandler) Delete(c *gin.Context) {
	name := c.Param("name")
	middleware.SetCollection(c, name)
	if err := h.ingest.DeleteCollection(c.Request.Context(), name); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.CollectionDeleteResponse{
		Message:    "Collection deleted successfully",
		Collection: name,
	}))
}

// Reindex 从已保存的结构化结果重建集合
// POST /api/collections/:name/reindex
func (h *CollectionHandler) Reindex(c *gin.Context) {
	name := c.Param("name")
	var req model.ReindexRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"Invalid request parameters",
		))
		return
	}
	middleware.SetCollection(c, name)

	if req.Async {
		taskID, err := h.ingest.ReindexAsync(c.Request.Context(), name)
		if err != nil {
			middleware.HandleError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, model.NewSuccessResponse(model.ReindexResponse{
			Collection: name,
			TaskID:     taskID,
		}))
		return
	}

	res, err := h.ingest.ReindexCollection(c.Request.Context(), name)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ReindexResponse{
		Collection: res.Collection,
		Files:      res.Files,
		Entries:    res.Entries,
	}))
}
