package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityHeaders adds security-related HTTP headers to responses. Responses
// under apiPrefix are never cached.
func SecurityHeaders(apiPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevent clickjacking by disallowing the page to be embedded in iframes
		c.Header("X-Frame-Options", "DENY")

		// Prevent MIME type sniffing
		c.Header("X-Content-Type-Options", "nosniff")

		// Control referrer information sent with requests
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// The API is consumed by the local UI only
		c.Header("Content-Security-Policy", "default-src 'none'; connect-src 'self' ws: wss:; frame-ancestors 'none'")

		if strings.HasPrefix(c.Request.URL.Path, apiPrefix) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
		}

		c.Next()
	}
}
