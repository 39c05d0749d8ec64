package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/regdoc-rag/api/middleware"
	"github.com/fyerfyer/regdoc-rag/api/model"
	"github.com/fyerfyer/regdoc-rag/internal/services"
)

// TaskHandler 处理异步任务相关的API请求
type TaskHandler struct {
	ingest *services.IngestionService
	logger *logrus.Logger
}

// NewTaskHandler 创建新的任务处理器
func NewTaskHandler(ingest *services.IngestionService) *TaskHandler {
	return &TaskHandler{
		ingest: ingest,
		logger: middleware.GetLogger(),
	}
}

// GetTask 查询任务状态
// GET /api/tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	task, err := h.ingest.Task(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp := model.TaskResponse{
		ID:          task.ID,
		Type:        string(task.Type),
		FileID:      task.FileID,
		Status:      string(task.Status),
		Error:       task.Error,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
		CompletedAt: task.CompletedAt,
	}
	if len(task.Result) > 0 {
		var result interface{}
		if err := json.Unmarshal(task.Result, &result); err != nil {
			h.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to decode task result")
		} else {
			resp.Result = result
		}
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}
