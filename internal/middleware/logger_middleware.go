package middleware

import (
	"time"

	"github.com/Dhoini/entitlement-service/pkg/logger"
	"github.com/gin-gonic/gin"
)

// RequestLogger logs one line per handled request
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		path := c.Request.URL.Path
		if rawQuery := c.Request.URL.RawQuery; rawQuery != "" {
			path = path + "?" + rawQuery
		}

		c.Next()

		fields := []interface{}{
			"status_code", c.Writer.Status(),
			"method", c.Request.Method,
			"path", path,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if caller := CallerFrom(c); caller != nil {
			fields = append(fields, "user_id", caller.UserID)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		if c.Writer.Status() >= 500 {
			log.Errorw("Request handled", fields...)
			return
		}
		log.Infow("Request handled", fields...)
	}
}
