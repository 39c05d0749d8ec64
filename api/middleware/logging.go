package middleware

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// 初始化日志配置
func init() {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	if os.Getenv("DEBUG") == "true" {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

// ConfigureLogger 设置全局日志级别和输出
// DEBUG=true 时始终使用debug级别
func ConfigureLogger(level string, out io.Writer) {
	if out != nil {
		log.SetOutput(out)
	}
	if os.Getenv("DEBUG") == "true" {
		log.SetLevel(logrus.DebugLevel)
		return
	}
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	} else if level != "" {
		log.WithField("level", level).Warn("Unknown log level, keeping current level")
	}
}

// Logger 日志中间件
// 记录请求信息和响应时间
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := logrus.Fields{
			FieldStatus:   c.Writer.Status(),
			FieldLatency:  time.Since(start).String(),
			FieldClientIP: c.ClientIP(),
			FieldMethod:   c.Request.Method,
			FieldPath:     path,
			FieldTraceID:  GetTraceID(c),
			"user_agent":  c.Request.UserAgent(),
		}
		if user := c.GetString(gin.AuthUserKey); user != "" {
			fields[FieldUserID] = user
		}
		log.WithFields(fields).Info("HTTP request")
	}
}

// RequestBodyLog 请求体日志中间件
// 在DEBUG模式下记录请求体内容，上传的文件不记录
func RequestBodyLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		if log.IsLevelEnabled(logrus.DebugLevel) && c.ContentType() == gin.MIMEJSON {
			var buf bytes.Buffer
			tee := io.TeeReader(c.Request.Body, &buf)
			body, _ := io.ReadAll(tee)
			c.Request.Body = io.NopCloser(&buf)

			if len(body) > 0 {
				log.WithFields(logrus.Fields{
					FieldMethod: c.Request.Method,
					FieldPath:   c.Request.URL.Path,
					"body":      string(body),
				}).Debug("Request body")
			}
		}

		c.Next()
	}
}

// SetTraceID 将追踪ID设置到上下文和响应头中
func SetTraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		c.Next()
	}
}

// GetTraceID 读取当前请求的追踪ID
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}

// SetCollection 记录当前请求操作的集合，用于错误响应
func SetCollection(c *gin.Context, name string) {
	c.Set(CollectionKey, name)
}

// 上下文键
const (
	TraceIDKey    = "TraceID"
	TraceIDHeader = "X-Trace-ID"
	CollectionKey = "Collection"
)

// 常用日志字段
const (
	FieldTraceID    = "trace_id"    // 追踪ID
	FieldUserID     = "user_id"     // 用户ID
	FieldPath       = "path"        // 请求路径
	FieldMethod     = "method"      // 请求方法
	FieldStatus     = "status_code" // 状态码
	FieldLatency    = "latency"     // 延迟时间
	FieldClientIP   = "client_ip"   // 客户端IP
	FieldError      = "error"       // 错误信息
	FieldFileID     = "file_id"     // 文件标识
	FieldCollection = "collection"  // 集合名
)

// GetLogger 返回全局日志记录器
func GetLogger() *logrus.Logger {
	return log
}
