// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file sets hardening headers for a JSON API. No CSP is sent: the only
// HTML served is the Swagger UI, which is mounted outside this middleware's
// concerns.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions toggles the optional headers.
type SecurityOptions struct {
	// EnableHSTS emits Strict-Transport-Security on HTTPS requests only.
	// Leave it off unless TLS reaches the process (or the proxy sets
	// X-Forwarded-Proto).
	EnableHSTS bool
	HSTSMaxAge time.Duration // <= 0 means 180 days

	NoStore bool // Cache-Control: no-store plus legacy Pragma/Expires

	EnablePolicy bool // Permissions-Policy and X-Permitted-Cross-Domain-Policies
}

// SecurityHeaders always sets nosniff, DENY framing and no-referrer, adds
// the optional headers from opt, and exposes X-Request-ID and ETag to
// browser clients.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		if h.Get(requestIDHeader) != "" {
			exposeHeader(h, requestIDHeader)
		}
		exposeHeader(h, "ETag")

		c.Next()
	}
}

// exposeHeader appends name to Access-Control-Expose-Headers once.
func exposeHeader(h http.Header, name string) {
	const hdr = "Access-Control-Expose-Headers"
	cur := h.Get(hdr)
	switch {
	case cur == "":
		h.Set(hdr, name)
	case !strings.Contains(strings.ToLower(cur), strings.ToLower(name)):
		h.Set(hdr, cur+", "+name)
	}
}

func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
