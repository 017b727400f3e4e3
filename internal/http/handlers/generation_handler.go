package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/topicforge/go-generation-backend/internal/http/middleware"
	"github.com/topicforge/go-generation-backend/internal/observability"
	"github.com/topicforge/go-generation-backend/internal/ratelimit"
	"github.com/topicforge/go-generation-backend/internal/validation"
)

// TopicValidator is the validation contract consumed by the handler.
type TopicValidator interface {
	Validate(raw string) (validation.Result, error)
}

// QuotaLimiter admits or denies a request against the generation quotas.
type QuotaLimiter interface {
	CheckAndConsume(ctx context.Context, callerID string) ratelimit.Decision
}

// WorkflowStarter schedules a generation run as a detached background task.
type WorkflowStarter interface {
	Start(ctx context.Context, ownerID, correlationID, traceID, topic string, followUpAnswers []string)
}

// GenerationHandler exposes the generation admission endpoint. The request is
// gated in order: origin auth (middleware), body shape, input validation,
// quotas. Only after the 200 acknowledgment is written does the background
// workflow start; its outcome never affects the synchronous response.
type GenerationHandler struct {
	Validator TopicValidator
	Limiter   QuotaLimiter
	Workflow  WorkflowStarter
}

// Generate handles POST /generations.
//
// Responses:
//   - 200 {success, ownerId, correlationId, traceId} on admission
//   - 400 {error} for malformed bodies
//   - 400 {error, details} when validation rejects the topic
//   - 429 {error, reason} when a quota denies admission
//
// A fresh owner id is minted per request; callers do not authenticate. The
// correlation id is honored from the body when present, otherwise generated.
//
// @Summary     Request a generation
// @Description Validates the topic, applies quotas, and schedules a background generation workflow.
// @Tags        Generations
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.GenerateRequest  true  "Generation payload"
// @Success     200  {object}  handlers.GenerateResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed body or validation failure"
// @Failure     403  {object}  handlers.ErrorResponse  "Origin not allowed"
// @Failure     429  {object}  handlers.ErrorResponse  "Quota exceeded"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /generations [post]
func (h *GenerationHandler) Generate(c *gin.Context) {
	traceID := middleware.TraceIDFrom(c)
	logger := middleware.LoggerFrom(c)

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrorResponse{Error: ErrMsgInvalidBody})
		return
	}

	result, err := h.Validator.Validate(req.Topic)
	if err != nil {
		// Internal validator failure is treated as a rejection, never a 500:
		// unvalidated input must not reach the workflow.
		logger.Error().Err(err).Msg("validation internal failure")
		observability.RecordValidationFailure("topic", validation.CategoryOther)
		respondError(c, http.StatusBadRequest, ErrorResponse{
			Error:   ErrMsgValidationFailed,
			Details: []string{validation.ReasonInternalFail},
		})
		return
	}
	if !result.Valid {
		for _, reason := range result.Reasons {
			observability.RecordValidationFailure("topic", validation.Category(reason))
		}
		logger.Warn().Strs("reasons", result.Reasons).Msg("input validation rejected topic")
		respondError(c, http.StatusBadRequest, ErrorResponse{
			Error:   ErrMsgValidationFailed,
			Details: result.Reasons,
		})
		return
	}

	ownerID := uuid.NewString()

	decision := h.Limiter.CheckAndConsume(c.Request.Context(), ownerID)
	if !decision.Allowed {
		logger.Warn().Str("reason", decision.Reason).Msg("quota denied admission")
		respondError(c, http.StatusTooManyRequests, ErrorResponse{
			Error:  ErrMsgRateLimited,
			Reason: decision.Reason,
		})
		return
	}

	correlationID := strings.TrimSpace(req.CorrelationID)
	if correlationID == "" {
		correlationID = newCorrelationID()
	}

	c.JSON(http.StatusOK, GenerateResponse{
		Success:       true,
		OwnerID:       ownerID,
		CorrelationID: correlationID,
		TraceID:       traceID,
	})

	// Detached: the orchestrator derives its own context so the run outlives
	// this request.
	h.Workflow.Start(c.Request.Context(), ownerID, correlationID, traceID, result.Normalized, req.FollowUpAnswers)
}

// newCorrelationID mints a correlation id with a sortable timestamp prefix
// and a short random suffix.
func newCorrelationID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "gen_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + suffix
}
