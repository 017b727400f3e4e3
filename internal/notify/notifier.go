// Package notify delivers "generation ready" events to the downstream
// renderer service.
//
// Delivery policy: bounded retry. Each notification is a single HTTP POST
// carrying the owner, correlation, and trace ids; the notifier makes up to
// MaxAttempts attempts with a fixed delay between them and a per-attempt
// timeout enforced via context cancellation. Any 2xx response is success.
// Exhausting all attempts returns ErrDeliveryFailed; the caller logs it but
// must never use it to revert an already-completed generation.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/topicforge/go-generation-backend/internal/observability"
)

// TraceHeader carries the trace id to the downstream service.
const TraceHeader = "X-Trace-ID"

// ErrDeliveryFailed is the terminal error after all attempts are exhausted.
var ErrDeliveryFailed = errors.New("downstream delivery failed")

// Payload is the event body posted downstream.
type Payload struct {
	OwnerID       string `json:"ownerId"`
	CorrelationID string `json:"correlationId"`
	TraceID       string `json:"traceId"`
}

// Notifier posts readiness events with bounded retries. All fields must be
// set before use; NewNotifier applies the defaults.
type Notifier struct {
	Endpoint       string
	MaxAttempts    int
	RetryDelay     time.Duration
	AttemptTimeout time.Duration

	// HTTPClient is a seam for tests; defaults to a plain client. Per-attempt
	// timeouts come from the request context, not the client.
	HTTPClient *http.Client

	Logger zerolog.Logger

	// sleep is a seam so tests do not wait out real retry delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewNotifier constructs a Notifier with the given delivery settings.
func NewNotifier(endpoint string, maxAttempts int, retryDelay, attemptTimeout time.Duration, logger zerolog.Logger) *Notifier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Notifier{
		Endpoint:       endpoint,
		MaxAttempts:    maxAttempts,
		RetryDelay:     retryDelay,
		AttemptTimeout: attemptTimeout,
		HTTPClient:     &http.Client{},
		Logger:         logger,
		sleep:          sleepCtx,
	}
}

// Notify posts the readiness event, retrying per the bounded-retry policy.
func (n *Notifier) Notify(ctx context.Context, ownerID, correlationID, traceID string) error {
	body, err := json.Marshal(Payload{OwnerID: ownerID, CorrelationID: correlationID, TraceID: traceID})
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= n.MaxAttempts; attempt++ {
		start := time.Now()
		err := n.post(ctx, body, traceID)
		if err == nil {
			observability.RecordNotificationAttempt(observability.OutcomeSuccess)
			n.Logger.Info().
				Str("owner_id", ownerID).
				Str("correlation_id", correlationID).
				Int("attempt", attempt).
				Dur("duration", time.Since(start)).
				Msg("downstream notification delivered")
			return nil
		}

		lastErr = err
		observability.RecordNotificationAttempt(observability.OutcomeError)
		n.Logger.Warn().
			Err(err).
			Str("owner_id", ownerID).
			Str("correlation_id", correlationID).
			Int("attempt", attempt).
			Dur("duration", time.Since(start)).
			Msg("downstream notification attempt failed")

		if attempt == n.MaxAttempts {
			break
		}
		if err := n.sleepFn()(ctx, n.RetryDelay); err != nil {
			lastErr = err
			break
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrDeliveryFailed, n.MaxAttempts, lastErr)
}

// post performs one attempt under its own timeout.
func (n *Notifier) post(ctx context.Context, body []byte, traceID string) error {
	attemptCtx := ctx
	if n.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, n.AttemptTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, n.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TraceHeader, traceID)

	client := n.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("downstream returned status %d", resp.StatusCode)
	}
	return nil
}

func (n *Notifier) sleepFn() func(ctx context.Context, d time.Duration) error {
	if n.sleep != nil {
		return n.sleep
	}
	return sleepCtx
}

// sleepCtx waits for d or until ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
