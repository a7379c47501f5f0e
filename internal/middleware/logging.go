package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// LoggingMiddleware 请求访问日志
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		log.Printf("[%s] %s %s | Status: %d | Latency: %v",
			method,
			path,
			query,
			c.Writer.Status(),
			time.Since(start),
		)
	}
}
