// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides structured request logging, a panic-safe recovery
// handler, and the trace-id injector. Every request carries a stable trace id
// (propagated via X-Trace-ID and stored in the Gin context) that also tags
// the background workflow run the request may spawn, so synchronous and
// asynchronous logs correlate.
//
// Ordering: TraceID() → Logger() → Recovery(), so panics and errors are
// logged with the trace id attached.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// traceIDKey is the Gin context key under which the trace id is stored.
	traceIDKey = "traceID"
	// TraceIDHeader is the HTTP header used to propagate the trace id.
	TraceIDHeader = "X-Trace-ID"
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048
)

// TraceID attaches (or propagates) a trace identifier per request.
//
// If the incoming request has X-Trace-ID, that value is reused; otherwise a
// new UUIDv4 is generated. The id is written back to the response header and
// stored in the Gin context.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		tid := c.GetHeader(TraceIDHeader)
		if tid == "" {
			tid = uuid.NewString()
		}
		c.Set(traceIDKey, tid)
		c.Writer.Header().Set(TraceIDHeader, tid)
		c.Next()
	}
}

// TraceIDFrom returns the request's trace id, or empty when absent.
func TraceIDFrom(c *gin.Context) string {
	if v, ok := c.Get(traceIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Logger writes a structured access log for each request and response, and
// stores a request-scoped zerolog.Logger in the Gin context (key "logger")
// so downstream code can emit enriched logs tied to the request. Log level
// follows the outcome: error for 5xx, warn for 4xx, info otherwise.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			// Fallback when route not matched / 404.
			path = c.Request.URL.Path
		}

		l := log.With().
			Str("trace_id", TraceIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			Int64("bytes_in", c.Request.ContentLength).
			Logger()

		c.Set("logger", &l)

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		ev := l.With().
			Int("status", status).
			Dur("latency", latency).
			Int("bytes_out", c.Writer.Size()).
			Logger()

		switch {
		case len(c.Errors) > 0:
			ev.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			ev.Error().Msg("request")
		case status >= 400:
			ev.Warn().Msg("request")
		default:
			ev.Info().Msg("request")
		}
	}
}

// Recovery intercepts panics, logs a stack trace, and returns a JSON 500
// carrying only the trace id, never internal details.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				tid := TraceIDFrom(c)
				log.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("trace_id", tid).
					Msg("panic recovered")

				if !c.Writer.Written() {
					c.Header("Content-Type", "application/json")
					c.Header(TraceIDHeader, tid)
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"error":   "Internal server error",
						"traceId": tid,
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped zerolog.Logger. If none was attached
// by Logger(), a fallback logger is returned so callers never nil-check.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get("logger"); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// truncate returns s unchanged when within max length, otherwise it truncates
// s to max bytes and appends an ellipsis. A max <= 0 disables truncation.
//
// Note: This operates on bytes (not runes) which is acceptable for logging.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
