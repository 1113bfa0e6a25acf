package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/conneroisu/isomorph/internal/config"
)

// SecurityConfig holds the response headers applied to every route.
type SecurityConfig struct {
	CSP                 *CSPConfig
	XFrameOptions       string
	XContentTypeNoSniff bool
	ReferrerPolicy      string
}

// CSPConfig holds Content Security Policy configuration
type CSPConfig struct {
	DefaultSrc     []string
	ScriptSrc      []string
	StyleSrc       []string
	ImgSrc         []string
	ConnectSrc     []string
	ObjectSrc      []string
	FrameAncestors []string
	BaseURI        []string
}

// ProductionSecurityConfig returns the headers for production serving.
func ProductionSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		CSP: &CSPConfig{
			DefaultSrc:     []string{"'self'"},
			ScriptSrc:      []string{"'self'"},
			StyleSrc:       []string{"'self'", "'unsafe-inline'"},
			ImgSrc:         []string{"'self'", "data:"},
			ConnectSrc:     []string{"'self'"},
			ObjectSrc:      []string{"'none'"},
			FrameAncestors: []string{"'none'"},
			BaseURI:        []string{"'self'"},
		},
		XFrameOptions:       "DENY",
		XContentTypeNoSniff: true,
		ReferrerPolicy:      "strict-origin-when-cross-origin",
	}
}

// DevelopmentSecurityConfig relaxes the policy for the inline live-reload
// script and its websocket.
func DevelopmentSecurityConfig() *SecurityConfig {
	sec := ProductionSecurityConfig()
	sec.CSP.ScriptSrc = []string{"'self'", "'unsafe-inline'"}
	sec.CSP.ConnectSrc = []string{"'self'", "ws:", "wss:"}
	return sec
}

// SecurityConfigFor picks the headers for cfg's environment.
func SecurityConfigFor(cfg *config.Config) *SecurityConfig {
	if cfg.IsDevelopment() {
		return DevelopmentSecurityConfig()
	}
	return ProductionSecurityConfig()
}

// SecurityMiddleware applies sec to every response.
func SecurityMiddleware(sec *SecurityConfig) func(http.Handler) http.Handler {
	if sec == nil {
		sec = ProductionSecurityConfig()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			applySecurityHeaders(w.Header(), sec)
			next.ServeHTTP(w, r)
		})
	}
}

func applySecurityHeaders(h http.Header, sec *SecurityConfig) {
	if sec.CSP != nil {
		h.Set("Content-Security-Policy", buildCSPHeader(sec.CSP))
	}
	if sec.XFrameOptions != "" {
		h.Set("X-Frame-Options", sec.XFrameOptions)
	}
	if sec.XContentTypeNoSniff {
		h.Set("X-Content-Type-Options", "nosniff")
	}
	if sec.ReferrerPolicy != "" {
		h.Set("Referrer-Policy", sec.ReferrerPolicy)
	}
}

// buildCSPHeader constructs the Content-Security-Policy header value
func buildCSPHeader(csp *CSPConfig) string {
	var directives []string
	add := func(name string, values []string) {
		if len(values) > 0 {
			directives = append(directives, fmt.Sprintf("%s %s", name, strings.Join(values, " ")))
		}
	}

	add("default-src", csp.DefaultSrc)
	add("script-src", csp.ScriptSrc)
	add("style-src", csp.StyleSrc)
	add("img-src", csp.ImgSrc)
	add("connect-src", csp.ConnectSrc)
	add("object-src", csp.ObjectSrc)
	add("frame-ancestors", csp.FrameAncestors)
	add("base-uri", csp.BaseURI)

	return strings.Join(directives, "; ")
}
