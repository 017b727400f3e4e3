package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/topicforge/go-generation-backend/internal/http/middleware"
	"github.com/topicforge/go-generation-backend/internal/ratelimit"
	"github.com/topicforge/go-generation-backend/internal/validation"
)

type fakeValidator struct {
	result validation.Result
	err    error
	got    string
}

func (f *fakeValidator) Validate(raw string) (validation.Result, error) {
	f.got = raw
	return f.result, f.err
}

type fakeLimiter struct {
	decision ratelimit.Decision
	calls    int
}

func (f *fakeLimiter) CheckAndConsume(ctx context.Context, callerID string) ratelimit.Decision {
	f.calls++
	return f.decision
}

type startCall struct {
	ownerID, correlationID, traceID, topic string
	followUps                              []string
}

type fakeWorkflow struct {
	calls []startCall
}

func (f *fakeWorkflow) Start(ctx context.Context, ownerID, correlationID, traceID, topic string, followUpAnswers []string) {
	f.calls = append(f.calls, startCall{ownerID, correlationID, traceID, topic, followUpAnswers})
}

func newTestRouter(v TopicValidator, l QuotaLimiter, w WorkflowStarter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.TraceID())
	h := &GenerationHandler{Validator: v, Limiter: l, Workflow: w}
	r.POST("/generations", h.Generate)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generations", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestGenerate_Success(t *testing.T) {
	v := &fakeValidator{result: validation.Result{Valid: true, Normalized: "what is entropy?"}}
	l := &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
	wf := &fakeWorkflow{}
	r := newTestRouter(v, l, wf)

	w := postJSON(t, r, `{"topic":"  What is Entropy?  ","followUpAnswers":["with waves"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp GenerateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Fatal("success must be true")
	}
	if _, err := uuid.Parse(resp.OwnerID); err != nil {
		t.Fatalf("ownerId %q is not a UUID", resp.OwnerID)
	}
	if !strings.HasPrefix(resp.CorrelationID, "gen_") {
		t.Fatalf("generated correlationId = %q", resp.CorrelationID)
	}
	if resp.TraceID == "" || resp.TraceID != w.Header().Get(middleware.TraceIDHeader) {
		t.Fatalf("traceId %q does not match response header %q", resp.TraceID, w.Header().Get(middleware.TraceIDHeader))
	}

	if v.got != "  What is Entropy?  " {
		t.Fatalf("validator saw %q", v.got)
	}
	if len(wf.calls) != 1 {
		t.Fatalf("workflow starts = %d, want 1", len(wf.calls))
	}
	call := wf.calls[0]
	if call.ownerID != resp.OwnerID || call.correlationID != resp.CorrelationID || call.traceID != resp.TraceID {
		t.Fatalf("workflow ids diverge from response: %+v vs %+v", call, resp)
	}
	if call.topic != "what is entropy?" {
		t.Fatalf("workflow must receive the normalized topic, got %q", call.topic)
	}
	if len(call.followUps) != 1 || call.followUps[0] != "with waves" {
		t.Fatalf("followUps = %v", call.followUps)
	}
}

func TestGenerate_HonorsClientCorrelationID(t *testing.T) {
	v := &fakeValidator{result: validation.Result{Valid: true, Normalized: "topic"}}
	l := &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
	wf := &fakeWorkflow{}
	r := newTestRouter(v, l, wf)

	w := postJSON(t, r, `{"topic":"topic","correlationId":"client-id-7"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp GenerateResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.CorrelationID != "client-id-7" {
		t.Fatalf("correlationId = %q, want client-supplied", resp.CorrelationID)
	}
}

func TestGenerate_MalformedBody(t *testing.T) {
	v := &fakeValidator{}
	l := &fakeLimiter{}
	wf := &fakeWorkflow{}
	r := newTestRouter(v, l, wf)

	w := postJSON(t, r, `{"topic": `)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error != ErrMsgInvalidBody {
		t.Fatalf("error = %q", resp.Error)
	}
	if len(wf.calls) != 0 || l.calls != 0 {
		t.Fatal("nothing may run after a malformed body")
	}
}

func TestGenerate_ValidationFailure(t *testing.T) {
	v := &fakeValidator{result: validation.Result{
		Valid:   false,
		Reasons: []string{validation.ReasonInjection, validation.ReasonProfanity},
	}}
	l := &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
	wf := &fakeWorkflow{}
	r := newTestRouter(v, l, wf)

	w := postJSON(t, r, `{"topic":"select shit from users"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error != ErrMsgValidationFailed {
		t.Fatalf("error = %q", resp.Error)
	}
	if len(resp.Details) != 2 {
		t.Fatalf("details = %v, want both reasons", resp.Details)
	}
	if l.calls != 0 {
		t.Fatal("quota check must not run on invalid input")
	}
	if len(wf.calls) != 0 {
		t.Fatal("workflow must not start on invalid input")
	}
}

func TestGenerate_ValidatorInternalErrorRejects(t *testing.T) {
	v := &fakeValidator{err: errors.New("boom")}
	l := &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
	wf := &fakeWorkflow{}
	r := newTestRouter(v, l, wf)

	w := postJSON(t, r, `{"topic":"anything"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (fail closed)", w.Code)
	}
	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Details) != 1 || resp.Details[0] != validation.ReasonInternalFail {
		t.Fatalf("details = %v", resp.Details)
	}
	if len(wf.calls) != 0 {
		t.Fatal("workflow must not start after an internal validation failure")
	}
}

func TestGenerate_QuotaDenied(t *testing.T) {
	v := &fakeValidator{result: validation.Result{Valid: true, Normalized: "topic"}}
	l := &fakeLimiter{decision: ratelimit.Decision{Allowed: false, Reason: ratelimit.ReasonDailyLimit}}
	wf := &fakeWorkflow{}
	r := newTestRouter(v, l, wf)

	w := postJSON(t, r, `{"topic":"topic"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error != ErrMsgRateLimited {
		t.Fatalf("error = %q", resp.Error)
	}
	if resp.Reason != ratelimit.ReasonDailyLimit {
		t.Fatalf("reason = %q", resp.Reason)
	}
	if len(wf.calls) != 0 {
		t.Fatal("workflow must not start on quota denial")
	}
}
