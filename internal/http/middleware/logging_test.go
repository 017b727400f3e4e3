package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestTraceID_GeneratesWhenAbsent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceID())

	var inCtx string
	r.GET("/ok", func(c *gin.Context) {
		inCtx = TraceIDFrom(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

	header := w.Header().Get(TraceIDHeader)
	if header == "" {
		t.Fatal("expected generated trace id header")
	}
	if _, err := uuid.Parse(header); err != nil {
		t.Fatalf("trace id %q is not a UUID", header)
	}
	if inCtx != header {
		t.Fatalf("context trace id %q != header %q", inCtx, header)
	}
}

func TestTraceID_PropagatesIncoming(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceID())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(TraceIDHeader, "upstream-trace-7")
	r.ServeHTTP(w, req)

	if got := w.Header().Get(TraceIDHeader); got != "upstream-trace-7" {
		t.Fatalf("trace id = %q, want the incoming one", got)
	}
}

func TestTraceIDFrom_EmptyWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if got := TraceIDFrom(c); got != "" {
		t.Fatalf("trace id = %q, want empty", got)
	}
}

func TestRecovery_ReturnsJSON500WithTraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceID())
	r.Use(Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(TraceIDHeader, "trace-boom")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Internal server error") || !strings.Contains(body, "trace-boom") {
		t.Fatalf("body = %s", body)
	}
	if strings.Contains(body, "kaboom") {
		t.Fatal("panic detail must not leak to clients")
	}
}

func TestLoggerFrom_FallsBack(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if LoggerFrom(c) == nil {
		t.Fatal("expected fallback logger, got nil")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc…" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("abc", 10); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("abc", 0); got != "abc" {
		t.Fatalf("max<=0 must disable truncation, got %q", got)
	}
}
