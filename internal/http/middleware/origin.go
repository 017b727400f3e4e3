// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the origin-allowlist authorization gate. Access to the
// generation endpoint is granted by request provenance rather than
// credentials: a request is authorized when its Origin header (or the Referer
// origin as a fallback) matches the configured allowlist. Unauthorized
// requests receive 403 with a generic body; no caller state is created or
// consumed before the gate passes.
package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// OriginAuth returns a Gin middleware that rejects requests whose origin is
// not on the allowlist.
//
// Matching rules:
//   - An empty allowlist denies everything (closed by default).
//   - A "*" entry allows any request, including ones without an Origin.
//   - Entries are compared case-insensitively against the Origin header;
//     when Origin is absent, the scheme://host of the Referer is used.
//   - Requests carrying neither header are denied.
func OriginAuth(allowed []string) gin.HandlerFunc {
	allowAll := false
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(a, "/")))
		if a == "*" {
			allowAll = true
			continue
		}
		if a != "" {
			set[a] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		if allowAll {
			c.Next()
			return
		}

		origin := requestOrigin(c.Request)
		if origin != "" {
			if _, ok := set[origin]; ok {
				c.Next()
				return
			}
		}

		LoggerFrom(c).Warn().
			Str("origin", origin).
			Str("remote_ip", c.ClientIP()).
			Msg("request origin not allowed")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Forbidden",
		})
	}
}

// requestOrigin extracts the normalized scheme://host origin of a request,
// preferring the Origin header and falling back to Referer. Returns empty
// when neither yields a usable origin.
func requestOrigin(r *http.Request) string {
	if o := strings.TrimSpace(r.Header.Get("Origin")); o != "" && o != "null" {
		return strings.ToLower(strings.TrimSuffix(o, "/"))
	}
	ref := strings.TrimSpace(r.Header.Get("Referer"))
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
