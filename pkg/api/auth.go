package api

import (
	"github.com/gin-gonic/gin"
)

// authorHeaders, in priority order. oauth2-proxy sets the first two,
// kube-rbac-proxy sets the third.
var authorHeaders = []string{
	"X-Forwarded-User",
	"X-Forwarded-Email",
	"X-Remote-User",
}

// extractAuthor resolves the acting identity from proxy headers, falling
// back to "api-client" for direct (unproxied) API calls.
func extractAuthor(c *gin.Context) string {
	for _, h := range authorHeaders {
		if v := c.Request.Header.Get(h); v != "" {
			return v
		}
	}
	return "api-client"
}
