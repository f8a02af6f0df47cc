package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/classpad/classpad/pkg/errors"
	"github.com/classpad/classpad/pkg/logger"
	"github.com/classpad/classpad/pkg/response"
)

// Recovery turns handler panics into a generic 500. The panic value and
// stack go to the log, never to the client.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.WithModule("http").Error("panic",
				zap.Any("error", r),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Stack("stack"),
			)
			response.Error(c, errors.ErrInternalServer)
			c.Abort()
		}()
		c.Next()
	}
}

// NotFoundHandler answers unknown routes with the standard JSON envelope.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, errors.ErrNotFound.WithMessagef("route %s not found", c.Request.URL.Path))
}
