package api

import (
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/fyerfyer/regdoc-rag/api/handler"
	"github.com/fyerfyer/regdoc-rag/api/middleware"
)

// Handlers 路由使用的处理器
type Handlers struct {
	Document   *handler.DocumentHandler
	Query      *handler.QueryHandler
	Collection *handler.CollectionHandler
	Task       *handler.TaskHandler
	Health     gin.HandlerFunc
}

// RouterOptions 路由配置
type RouterOptions struct {
	AuthUsers   map[string]string // 非空时修改类接口需要基本认证
	CORSOrigins []string          // 允许的跨域来源，为空表示全部
	StaticDir   string            // 静态页面目录，包含 index.html
}

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(h Handlers, opts RouterOptions) *gin.Engine {
	router := gin.New()

	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Cors(opts.CORSOrigins...))

	// 在调试模式下记录请求体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
	}

	auth := middleware.BasicAuth(opts.AuthUsers)

	api := router.Group("/api")
	{
		// 文档
		api.POST("/upload_pdf", auth, h.Document.UploadPDF)
		api.GET("/pdf_data/:file_id", h.Document.GetPDFData)
		api.GET("/pdf_data/:file_id/preview", h.Document.PreviewPDFData)
		api.PUT("/update_pdf/:file_id", auth, h.Document.UpdatePDF)
		api.DELETE("/delete_pdf/:file_id", auth, h.Document.DeletePDF)
		api.GET("/sources", h.Document.ListSources)

		// 问答
		api.POST("/chat", h.Query.Chat)
		api.POST("/query", h.Query.Chat)
		api.GET("/history", h.Query.History)

		// 集合
		api.GET("/collections", h.Collection.List)
		api.DELETE("/collections/:name", auth, h.Collection.Delete)
		api.POST("/collections/:name/reindex", auth, h.Collection.Reindex)

		// 异步任务
		api.GET("/tasks/:id", h.Task.GetTask)

		if h.Health != nil {
			api.GET("/health", h.Health)
		}
	}

	RegisterWebUI(router, opts.StaticDir)
	return router
}

// RegisterWebUI 注册静态页面
// 目录中没有 index.html 时不注册
func RegisterWebUI(router *gin.Engine, dir string) {
	if dir == "" {
		return
	}
	index := filepath.Join(dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		middleware.GetLogger().WithField("dir", dir).Warn("Static index page not found, web UI disabled")
		return
	}
	router.StaticFile("/", index)
	router.Static("/static", dir)
}
