package handlers

import (
	"github.com/gin-gonic/gin"
)

// GenerateRequest is the body accepted by the generation endpoint.
//
// CorrelationID is optional; when absent the server mints one. Omitted or
// extra fields never fail parsing, only a malformed body does.
type GenerateRequest struct {
	Topic           string   `json:"topic"`
	CorrelationID   string   `json:"correlationId,omitempty"`
	FollowUpAnswers []string `json:"followUpAnswers,omitempty"`
}

// GenerateResponse is the success envelope. It acknowledges admission only;
// the workflow outcome is observed through the persisted generation record.
type GenerateResponse struct {
	Success       bool   `json:"success"`
	OwnerID       string `json:"ownerId"`
	CorrelationID string `json:"correlationId"`
	TraceID       string `json:"traceId"`
}

// ErrorResponse is the generic failure envelope. Details carries validation
// reasons, Reason carries the rate-limit denial code; both are omitted when
// empty.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	TraceID string   `json:"traceId,omitempty"`
}

// respondError writes a JSON error envelope and aborts the chain. The 500
// envelope (ErrMsgInternal plus trace id) is produced by the recovery
// middleware; handlers only emit the 4xx shapes.
func respondError(c *gin.Context, status int, resp ErrorResponse) {
	c.AbortWithStatusJSON(status, resp)
}
