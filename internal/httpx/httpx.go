// Package httpx provides helper functions for writing JSON responses.
package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
)

const (
	keyDetail = "httpx.detail"
	keyLogger = "httpx.logger"
)

// Body is the error payload. Error carries the underlying detail outside
// production only.
type Body struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Setup stores the error detail policy and the request logger on the context.
func Setup(detail bool, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(keyDetail, detail)
		c.Set(keyLogger, log)
		c.Next()
	}
}

// Logger returns the logger installed by Setup, or a no-op logger.
func Logger(c *gin.Context) *zap.Logger {
	if v, ok := c.Get(keyLogger); ok {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return zap.NewNop()
}

// JSON writes v with the given status code.
func JSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

// Error writes an error body with the given status code and message.
func Error(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Body{Message: msg})
}

// Fail maps err to its status code and writes the error body.
func Fail(c *gin.Context, err error) {
	status := apperr.Status(err)
	body := Body{Message: apperr.Message(err)}
	if c.GetBool(keyDetail) {
		body.Error = err.Error()
	}
	if status >= http.StatusInternalServerError {
		Logger(c).Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}
