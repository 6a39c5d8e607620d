package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Dhoini/billing-sync/pkg/logger"
)

const (
	// RequestIDHeader заголовок с идентификатором запроса
	RequestIDHeader = "X-Request-ID"
	// ContextRequestIDKey ключ идентификатора запроса в gin.Context
	ContextRequestIDKey = "requestID"
)

// RequestLogger - Gin middleware для логирования запросов.
// Входящий X-Request-ID сохраняется, иначе генерируется новый.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ContextRequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		path := c.Request.URL.Path
		if rawQuery := c.Request.URL.RawQuery; rawQuery != "" {
			path = path + "?" + rawQuery
		}

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		fields := []interface{}{
			"status_code", status,
			"method", c.Request.Method,
			"path", path,
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
			"request_id", requestID,
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		if status >= 500 {
			log.Errorw("Request handled", fields...)
			return
		}
		log.Infow("Request handled", fields...)
	}
}
