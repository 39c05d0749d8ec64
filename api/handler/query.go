package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/regdoc-rag/api/middleware"
	"github.com/fyerfyer/regdoc-rag/api/model"
	"github.com/fyerfyer/regdoc-rag/internal/services"
)

// DefaultHistoryLimit 默认返回的问答记录条数
const DefaultHistoryLimit = 20

// QueryHandler 处理问答相关的API请求
type QueryHandler struct {
	pipeline *services.QueryPipeline // 问答流水线
	logger   *logrus.Logger          // 日志记录器
}

// NewQueryHandler 创建新的问答处理器
func NewQueryHandler(pipeline *services.QueryPipeline) *QueryHandler {
	return &QueryHandler{
		pipeline: pipeline,
		logger:   middleware.GetLogger(),
	}
}

// Chat 根据集合内容回答问题
// POST /api/chat
// POST /api/query
func (h *QueryHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid chat request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"Invalid request parameters",
		))
		return
	}

	middleware.SetCollection(c, req.CollectionID)
	res, err := h.pipeline.Answer(c.Request.Context(), services.QueryRequest{
		Collection: req.CollectionID,
		Query:      req.Query,
		TopK:       req.TopK,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		middleware.FieldCollection: req.CollectionID,
		middleware.FieldTraceID:    middleware.GetTraceID(c),
		"sources":                  len(res.Sources),
		"cached":                   res.Cached,
	}).Info("Question answered")

	sources := res.Sources
	if sources == nil {
		sources = []services.SourceRef{}
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ChatResponse{
		Answer:  res.Answer,
		Sources: sources,
		Cached:  res.Cached,
	}))
}

// History 返回最近的问答记录
// GET /api/history
func (h *QueryHandler) History(c *gin.Context) {
	var req model.HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"Invalid request parameters",
		))
		return
	}
	limit := req.Limit
	if limit == 0 {
		limit = DefaultHistoryLimit
	}

	records, err := h.pipeline.History(req.Collection, limit)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp := model.HistoryResponse{Records: make([]model.HistoryItem, 0, len(records))}
	for _, r := range records {
		resp.Records = append(resp.Records, model.NewHistoryItem(r))
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}
