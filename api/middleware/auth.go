package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/regdoc-rag/api/model"
)

// AuthRealm 基本认证的域
const AuthRealm = "regdoc-rag"

// BasicAuth 对修改类接口启用HTTP基本认证
// users 为空时不做校验
func BasicAuth(users map[string]string) gin.HandlerFunc {
	if len(users) == 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	auth := gin.BasicAuthForRealm(gin.Accounts(users), AuthRealm)
	return func(c *gin.Context) {
		auth(c)
		if !c.IsAborted() {
			return
		}

		log.WithFields(logrus.Fields{
			FieldPath:     c.Request.URL.Path,
			FieldMethod:   c.Request.Method,
			FieldClientIP: c.ClientIP(),
			FieldTraceID:  GetTraceID(c),
		}).Warn("Authentication failed")

		resp := model.NewErrorResponse(http.StatusUnauthorized, NewUnauthorizedError("Invalid credentials").Message)
		resp.TraceID = GetTraceID(c)
		c.JSON(http.StatusUnauthorized, resp)
	}
}

// Cors 跨域资源共享中间件
// origins 为空时允许所有来源
func Cors(origins ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case len(allowed) == 0 || allowed["*"]:
			c.Header("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
