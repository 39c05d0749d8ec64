package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/regdoc-rag/api/middleware"
	"github.com/fyerfyer/regdoc-rag/api/model"
	"github.com/fyerfyer/regdoc-rag/internal/models"
	"github.com/fyerfyer/regdoc-rag/internal/services"
	"github.com/fyerfyer/regdoc-rag/internal/structure"
)

// DefaultMaxUploadSize 默认上传大小上限
const DefaultMaxUploadSize = 100 << 20

// DocumentHandler 处理PDF上传和结构化结果相关的API请求
type DocumentHandler struct {
	ingest        *services.IngestionService // 入库服务
	maxUploadSize int64                      // 上传大小上限
	logger        *logrus.Logger             // 日志记录器
}

// NewDocumentHandler 创建新的文档处理器
func NewDocumentHandler(ingest *services.IngestionService, maxUploadSize int64) *DocumentHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	return &DocumentHandler{
		ingest:        ingest,
		maxUploadSize: maxUploadSize,
		logger:        middleware.GetLogger(),
	}
}

// UploadPDF 上传PDF，结构化后写入集合
// POST /api/upload_pdf
func (h *DocumentHandler) UploadPDF(c *gin.Context) {
	var req model.UploadPDFRequest
	// 参数既可以放在查询串也可以放在表单中，表单优先
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "Invalid request parameters", err)
		return
	}
	if err := c.ShouldBind(&req); err != nil {
		h.badRequest(c, "Invalid request parameters", err)
		return
	}
	if req.Collection == "" {
		h.badRequest(c, "collection is required", nil)
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		h.badRequest(c, "No file provided", err)
		return
	}
	if !isPDF(fh.Filename) {
		h.badRequest(c, "Only PDF files are supported", nil)
		return
	}
	if fh.Size > h.maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, model.NewErrorResponse(
			http.StatusRequestEntityTooLarge,
			"File too large",
		))
		return
	}
	mode, ok := models.ParseIngestMode(req.Mode)
	if !ok {
		h.badRequest(c, "Invalid mode", nil)
		return
	}

	file, err := fh.Open()
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"filename": fh.Filename,
		}).Error("Failed to open uploaded file")
		middleware.HandleError(c, middleware.NewInternalError("Failed to read uploaded file", err.Error()))
		return
	}
	defer file.Close()

	middleware.SetCollection(c, req.Collection)
	upload := services.UploadRequest{
		FileName:   fh.Filename,
		Collection: req.Collection,
		Mode:       mode,
		Body:       file,
		Size:       fh.Size,
	}

	var res *services.IngestResult
	status := http.StatusOK
	if req.Async {
		res, err = h.ingest.UploadAsync(c.Request.Context(), upload)
		status = http.StatusAccepted
	} else {
		res, err = h.ingest.Upload(c.Request.Context(), upload)
	}
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		middleware.FieldFileID:     res.FileID,
		middleware.FieldCollection: res.Collection,
		"entries":                  res.Entries,
		"async":                    req.Async,
	}).Info("PDF uploaded")

	c.JSON(status, model.NewSuccessResponse(model.NewUploadPDFResponse(res)))
}

// GetPDFData 返回文件的结构化结果
// GET /api/pdf_data/:file_id
func (h *DocumentHandler) GetPDFData(c *gin.Context) {
	raw, err := h.ingest.GetArtifact(c.Request.Context(), c.Param("file_id"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// PreviewPDFData 以HTML页面展示文件的结构化结果
// GET /api/pdf_data/:file_id/preview
func (h *DocumentHandler) PreviewPDFData(c *gin.Context) {
	fileID := c.Param("file_id")
	records, err := h.ingest.LoadArtifact(c.Request.Context(), fileID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	page := "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>" + fileID + "</title></head><body>\n" +
		string(structure.RenderHTML(fileID, records)) +
		"</body></html>\n"
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

// UpdatePDF 用已保存的结构化结果重新写入集合
// PUT /api/update_pdf/:file_id
func (h *DocumentHandler) UpdatePDF(c *gin.Context) {
	fileID := c.Param("file_id")
	var req model.UpdatePDFRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "Invalid request parameters", err)
		return
	}
	mode, ok := models.ParseIngestMode(req.Mode)
	if !ok {
		h.badRequest(c, "Invalid mode", nil)
		return
	}

	middleware.SetCollection(c, req.Collection)
	res, err := h.ingest.IndexArtifact(c.Request.Context(), fileID, req.Collection, mode)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.UpdatePDFResponse{
		Message:      "Embeddings updated successfully",
		FileID:       fileID,
		Collection:   res.Collection,
		UpdatedCount: res.Entries,
	}))
}

// DeletePDF 删除文件的结构化结果
// DELETE /api/delete_pdf/:file_id
func (h *DocumentHandler) DeletePDF(c *gin.Context) {
	var req model.DeletePDFRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "Invalid request parameters", err)
		return
	}

	res, err := h.ingest.DeleteFile(c.Request.Context(), c.Param("file_id"), req.Purge)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DeletePDFResponse{
		Message:         "File deleted successfully",
		FileID:          res.FileID,
		ArtifactDeleted: res.ArtifactDeleted,
		Purged:          res.Purged,
	}))
}

// ListSources 分页列出入库记录
// GET /api/sources
func (h *DocumentHandler) ListSources(c *gin.Context) {
	var req model.SourceListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "Invalid request parameters", err)
		return
	}

	filters := make(map[string]interface{})
	if req.Collection != "" {
		filters["collection"] = req.Collection
	}
	if req.FileID != "" {
		filters["file_id"] = req.FileID
	}
	if req.Status != "" {
		filters["status"] = req.Status
	}

	docs, total, err := h.ingest.Sources(c.Request.Context(), req.Offset(), req.GetPageSize(), filters)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp := model.SourceListResponse{
		Total:    total,
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
		Sources:  make([]model.SourceInfo, 0, len(docs)),
	}
	for _, d := range docs {
		resp.Sources = append(resp.Sources, model.NewSourceInfo(d))
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

func (h *DocumentHandler) badRequest(c *gin.Context, message string, err error) {
	entry := h.logger.WithField(middleware.FieldPath, c.Request.URL.Path)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn(message)
	c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, message))
}

// isPDF 只接受PDF文件
func isPDF(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}
