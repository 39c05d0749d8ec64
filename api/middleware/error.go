package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/regdoc-rag/api/model"
	"github.com/fyerfyer/regdoc-rag/internal/services"
	"github.com/fyerfyer/regdoc-rag/internal/structure"
	"github.com/fyerfyer/regdoc-rag/internal/vectordb"
	"github.com/fyerfyer/regdoc-rag/pkg/taskqueue"
)

// 定义应用中的错误类型常量
const (
	ErrorTypeValidation     = "VALIDATION_ERROR"      // 输入验证错误
	ErrorTypeUnauthorized   = "UNAUTHORIZED_ERROR"    // 未授权错误
	ErrorTypeNotFound       = "NOT_FOUND_ERROR"       // 资源不存在错误
	ErrorTypeUnprocessable  = "UNPROCESSABLE_ERROR"   // 文档无法结构化
	ErrorTypeNotImplemented = "NOT_IMPLEMENTED_ERROR" // 当前部署未启用的功能
	ErrorTypeInternal       = "INTERNAL_ERROR"        // 内部服务器错误
)

// AppError 应用错误结构体
type AppError struct {
	Type    string // 错误类型
	Message string // 错误消息，直接返回给客户端
	Details string // 详细错误信息，仅记录日志
	Code    int    // HTTP状态码
}

// Error 实现error接口的方法
func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewValidationError 创建输入验证错误
func NewValidationError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewUnauthorizedError 创建未授权错误
func NewUnauthorizedError(message string) AppError {
	return AppError{
		Type:    ErrorTypeUnauthorized,
		Message: message,
		Code:    http.StatusUnauthorized,
	}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) AppError {
	return AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewCollectionNotFoundError 创建集合不存在错误
func NewCollectionNotFoundError(name string) AppError {
	return NewNotFoundError(fmt.Sprintf("Collection '%s' not found.", name))
}

// NewInternalError 创建内部服务器错误
func NewInternalError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusInternalServerError,
	}
}

// ToAppError 将服务层错误映射为应用错误
// 检索和生成失败携带底层原因，便于排查
func ToAppError(err error) AppError {
	var appErr AppError
	var appErrPtr *AppError
	var retrievalErr *services.RetrievalError
	var completionErr *services.CompletionError
	var validationErrs validator.ValidationErrors

	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &appErrPtr):
		return *appErrPtr
	case errors.Is(err, services.ErrCollectionNotFound):
		return NewNotFoundError(err.Error())
	case errors.Is(err, services.ErrArtifactNotFound):
		return NewNotFoundError("File not found")
	case errors.Is(err, taskqueue.ErrTaskNotFound):
		return NewNotFoundError("Task not found")
	case errors.As(err, &retrievalErr), errors.As(err, &completionErr):
		return NewInternalError(err.Error())
	case errors.Is(err, structure.ErrExtractionEmpty):
		return AppError{
			Type:    ErrorTypeUnprocessable,
			Message: "No usable content could be extracted from the document",
			Details: err.Error(),
			Code:    http.StatusUnprocessableEntity,
		}
	case errors.Is(err, services.ErrQueueDisabled), errors.Is(err, services.ErrBookkeepingRequired):
		return AppError{
			Type:    ErrorTypeNotImplemented,
			Message: err.Error(),
			Code:    http.StatusNotImplemented,
		}
	case errors.Is(err, services.ErrInvalidFileID),
		errors.Is(err, services.ErrInvalidMode),
		errors.Is(err, services.ErrEmptyQuery),
		errors.Is(err, vectordb.ErrInvalidCollectionName),
		errors.As(err, &validationErrs):
		return NewValidationError(err.Error())
	}
	return NewInternalError("Internal server error", err.Error())
}

// ErrorHandler 统一错误处理中间件
// 恢复 panic，并把处理器通过 HandleError 记录的错误转换为统一响应
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithFields(logrus.Fields{
					FieldError: rec,
					"stack":    string(debug.Stack()),
					FieldPath:  c.Request.URL.Path,
				}).Error("Panic recovered in API request")

				resp := model.NewErrorResponse(http.StatusInternalServerError, "An unexpected error occurred")
				if gin.Mode() == gin.DebugMode {
					resp.Message = fmt.Sprintf("Panic: %v", rec)
				}
				resp.TraceID = GetTraceID(c)
				c.AbortWithStatusJSON(http.StatusInternalServerError, resp)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		appErr := ToAppError(err)
		if name := c.GetString(CollectionKey); name != "" && errors.Is(err, services.ErrCollectionNotFound) {
			appErr = NewCollectionNotFoundError(name)
		}
		traceID := GetTraceID(c)

		entry := log.WithFields(logrus.Fields{
			"error_type":  appErr.Type,
			FieldTraceID:  traceID,
			FieldPath:     c.Request.URL.Path,
			FieldStatus:   appErr.Code,
			"error_cause": err.Error(),
		})
		if appErr.Code >= http.StatusInternalServerError {
			entry.Error(appErr.Message)
		} else {
			entry.Warn(appErr.Message)
		}

		resp := model.NewErrorResponse(appErr.Code, appErr.Message)
		resp.TraceID = traceID
		if !c.Writer.Written() {
			c.JSON(appErr.Code, resp)
		}
		c.Abort()
	}
}

// HandleError 在处理器中使用的错误处理辅助函数
func HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
}
