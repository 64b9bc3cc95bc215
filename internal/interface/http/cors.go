package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// corsMiddleware lets the browser UI served from another origin call the API.
func corsMiddleware(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		headers := c.Writer.Header()
		headers.Set("Access-Control-Allow-Origin", resolveOrigin(c.GetHeader("Origin"), allowed))
		headers.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		headers.Set("Access-Control-Allow-Headers", "Content-Type")
		headers.Add("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func resolveOrigin(requestOrigin string, allowed []string) string {
	if len(allowed) == 0 {
		return "*"
	}
	for _, candidate := range allowed {
		if candidate == "*" {
			return "*"
		}
		if requestOrigin != "" && strings.EqualFold(candidate, requestOrigin) {
			return requestOrigin
		}
	}
	return allowed[0]
}

func originAllowed(requestOrigin string, allowed []string) bool {
	if requestOrigin == "" || len(allowed) == 0 {
		return true
	}
	for _, candidate := range allowed {
		if candidate == "*" || strings.EqualFold(candidate, requestOrigin) {
			return true
		}
	}
	return false
}

// guardWrites rejects state-changing requests that a cross-site page could
// send without a preflight: foreign origins and non-JSON bodies.
func guardWrites(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}
		if !originAllowed(c.GetHeader("Origin"), allowed) {
			abortWithError(c, NewHTTPError(http.StatusForbidden, "forbidden_origin", "origin not allowed", nil))
			return
		}
		if c.ContentType() != gin.MIMEJSON {
			abortWithError(c, NewHTTPError(http.StatusUnsupportedMediaType, "unsupported_media_type", "requests must be sent as application/json", nil))
			return
		}
		c.Next()
	}
}
