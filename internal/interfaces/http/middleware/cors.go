package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS applies a permissive cross-origin policy suitable for the internal
// screening dashboards that consume this API.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)
		c.Writer.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
