package logger

import (
	"net/http"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserIDHeader names the acting user; the gateway in front of the API sets it
const UserIDHeader = "X-User-ID"

// GinMiddleware attaches the execution context of the request (account from
// the route, user from UserIDHeader, request id from the RequestID
// middleware) and a request logger, then logs the outcome.
func GinMiddleware(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		exec := shared.ExecutionContext{RequestID: c.GetString("request_id")}
		if id, err := uuid.Parse(c.Param("account_id")); err == nil {
			exec.AccountID = id
		}
		if id, err := uuid.Parse(c.GetHeader(UserIDHeader)); err == nil {
			exec.UserID = id
		}
		ctx := shared.WithExecution(c.Request.Context(), exec)

		reqLogger := base.With(
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
		)
		c.Request = c.Request.WithContext(WithContext(ctx, reqLogger))

		c.Next()

		status := c.Writer.Status()
		fields := append(Fields(c.Request.Context()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
		)
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}
		switch {
		case status >= http.StatusInternalServerError:
			reqLogger.Error("HTTP request", fields...)
		case status >= http.StatusBadRequest:
			reqLogger.Warn("HTTP request", fields...)
		default:
			reqLogger.Info("HTTP request", fields...)
		}
	}
}

// Recovery turns a handler panic into a 500 and logs it with the stack
func Recovery(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				base.Error("Panic recovered",
					zap.String("request_id", c.GetString("request_id")),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("panic", r),
					zap.Stack("stacktrace"),
				)
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}
