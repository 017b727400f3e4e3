// Package workflow: the generation pipeline orchestrator.
//
// This file implements the background generation pipeline. A run is keyed by
// correlation id and moves through a monotonic state machine persisted as a
// Generation record: processing → completed | failed. Stage one turns the
// caller's topic (plus any follow-up answers) into a storyboard over two
// sequential language-model calls; on success a second, independently-keyed
// stage is auto-chained, consuming stage one's persisted artifact as its own
// input. When the chained stage completes, the downstream notifier fires.
//
// Failure policy: any external-call or persistence error terminates the run
// with status=failed and the error message persisted. The orchestrator never
// retries language-model calls; retries live only in the notifier. A notifier
// failure does not revert a completed run; generation success and delivery
// success are independent outcomes.
//
// Every external call and persistence write is wrapped with duration
// measurement emitted to the observability Recorder; this instrumentation is
// side-channel only and never gates control flow.
package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/topicforge/go-generation-backend/internal/domain"
	"github.com/topicforge/go-generation-backend/internal/llm"
	"github.com/topicforge/go-generation-backend/internal/observability"
	"github.com/topicforge/go-generation-backend/internal/repo"
)

// ChainedSuffix is appended to a correlation id to key the auto-chained
// second stage.
const ChainedSuffix = "_stage2"

// Stage labels used in metrics and logs.
const (
	stageOne = "1"
	stageTwo = "2"
)

// Notifier is the downstream delivery contract consumed on completion.
type Notifier interface {
	Notify(ctx context.Context, ownerID, correlationID, traceID string) error
}

// Orchestrator runs generation workflows as detached background tasks. It is
// safe for concurrent use; runs for different correlation ids share nothing
// but the database handle. It performs no deduplication of concurrent
// triggers for the same id; that is the caller's responsibility.
type Orchestrator struct {
	DB       *gorm.DB
	LLM      llm.Client
	Notifier Notifier
	Recorder observability.Recorder
	Logger   zerolog.Logger

	wg sync.WaitGroup
}

// Start schedules a run as a detached background task with its own error
// boundary. It returns immediately; the caller's response must not depend on
// the run's outcome. The run is tracked so Drain can wait for it.
func (o *Orchestrator) Start(ctx context.Context, ownerID, correlationID, traceID, topic string, followUpAnswers []string) {
	// The request context ends when the response is written; keep its values
	// (trace propagation) but detach from its cancellation.
	runCtx := context.WithoutCancel(ctx)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				o.Logger.Error().
					Interface("panic", rec).
					Str("correlation_id", correlationID).
					Str("trace_id", traceID).
					Msg("background run panicked")
			}
		}()
		o.Process(runCtx, ownerID, correlationID, traceID, topic, followUpAnswers)
	}()
}

// Drain blocks until all in-flight runs finish or the timeout elapses, and
// reports whether the drain completed.
func (o *Orchestrator) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Process executes one full pipeline synchronously: stage one, the chained
// stage two, completion bookkeeping, and downstream notification. All errors
// end in a persisted failed state; nothing propagates to the caller.
func (o *Orchestrator) Process(ctx context.Context, ownerID, correlationID, traceID, topic string, followUpAnswers []string) {
	logger := o.Logger.With().
		Str("owner_id", ownerID).
		Str("correlation_id", correlationID).
		Str("trace_id", traceID).
		Logger()

	// CREATED: the record exists with status=processing before any external call.
	err := o.measure("persist_generation_metadata", func() error {
		return repo.MergeGeneration(ctx, o.DB, correlationID, map[string]any{
			"owner_id": ownerID,
			"topic":    topic,
			"status":   domain.StatusProcessing,
			"trace_id": traceID,
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to persist initial state")
		return
	}
	logger.Info().Msg("background processing started")

	// Stage one: topic plus caller-supplied follow-up answers.
	stageOneInput := topic
	if len(followUpAnswers) > 0 {
		stageOneInput = strings.Join(append([]string{topic}, followUpAnswers...), "\n\n")
	}
	if _, err := o.runStage(ctx, logger, correlationID, ownerID, traceID, stageOne, StageOnePrompt, stageOneInput); err != nil {
		observability.RecordWorkflowExecution(stageOne, observability.OutcomeError)
		o.fail(ctx, logger, correlationID, err)
		return
	}
	observability.RecordWorkflowExecution(stageOne, observability.OutcomeSuccess)

	// Auto-chain stage two on stage one's persisted artifact.
	chainedID := correlationID + ChainedSuffix
	logger.Info().Str("chained_id", chainedID).Msg("auto-chaining second stage")
	artifact, err := o.RunChained(ctx, ownerID, chainedID, correlationID, traceID)
	if err != nil {
		o.fail(ctx, logger, correlationID, err)
		return
	}

	// COMPLETED: persist the final artifact before notifying.
	err = o.measure("persist_generation_metadata", func() error {
		return repo.MergeGeneration(ctx, o.DB, correlationID, map[string]any{
			"status":             domain.StatusCompleted,
			"generated_artifact": artifact,
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to persist completed state")
		return
	}

	// Delivery is independent of generation: failure here is logged and
	// counted but never reverts the completed run.
	if err := o.Notifier.Notify(ctx, ownerID, correlationID, traceID); err != nil {
		logger.Error().Err(err).Msg("downstream notification failed, generation remains completed")
	}

	logger.Info().Msg("background processing completed")
}

// RunChained executes a chained stage whose input is the persisted artifact
// of predecessorID. A missing artifact fails immediately with
// ErrMissingDependency and makes no language-model call.
func (o *Orchestrator) RunChained(ctx context.Context, ownerID, runID, predecessorID, traceID string) (string, error) {
	logger := o.Logger.With().
		Str("owner_id", ownerID).
		Str("correlation_id", runID).
		Str("trace_id", traceID).
		Logger()

	var predecessor string
	err := o.measure("load_artifact", func() error {
		var err error
		predecessor, err = repo.GetArtifact(ctx, o.DB, predecessorID)
		return err
	})
	if errors.Is(err, repo.ErrNotFound) {
		observability.RecordWorkflowExecution(stageTwo, observability.OutcomeError)
		return "", ErrMissingDependency
	}
	if err != nil {
		observability.RecordWorkflowExecution(stageTwo, observability.OutcomeError)
		return "", err
	}

	answer, err := o.runStage(ctx, logger, runID, ownerID, traceID, stageTwo, StageTwoPrompt, predecessor)
	if err != nil {
		observability.RecordWorkflowExecution(stageTwo, observability.OutcomeError)
		return "", err
	}
	observability.RecordWorkflowExecution(stageTwo, observability.OutcomeSuccess)
	return answer, nil
}

// runStage executes one stage: two sequential language-model calls over an
// accumulated message log (every call receives the full log, never a
// subset), then persists the run and its artifact. On error the run is
// marked failed (best effort) and the error is returned for the caller's
// state transition.
func (o *Orchestrator) runStage(ctx context.Context, logger zerolog.Logger, runID, ownerID, traceID, stage, prompt, userInput string) (string, error) {
	messages := []llm.Message{{Role: domain.RoleUser, Content: prompt}}

	// Initial state: processing with the log as seeded so far.
	if err := o.saveRun(ctx, runID, ownerID, traceID, prompt, domain.StatusProcessing, messages, ""); err != nil {
		return "", err
	}

	logger.Info().Str("stage", stage).Msg("requesting follow-up question")
	var followUp string
	err := o.measure("llm_followup_question", func() error {
		var err error
		followUp, err = o.LLM.Complete(ctx, messages)
		return err
	})
	if err != nil {
		o.failRun(ctx, logger, runID, ownerID, traceID, prompt, messages)
		return "", err
	}
	messages = append(messages, llm.Message{Role: domain.RoleAssistant, Content: followUp})

	logger.Info().Str("stage", stage).Msg("requesting final answer")
	messages = append(messages, llm.Message{Role: domain.RoleUser, Content: userInput})
	var finalAnswer string
	err = o.measure("llm_final_answer", func() error {
		var err error
		finalAnswer, err = o.LLM.Complete(ctx, messages)
		return err
	})
	if err != nil {
		o.failRun(ctx, logger, runID, ownerID, traceID, prompt, messages)
		return "", err
	}
	messages = append(messages, llm.Message{Role: domain.RoleAssistant, Content: finalAnswer})

	err = o.measure("persist_workflow_run", func() error {
		if err := o.saveRun(ctx, runID, ownerID, traceID, prompt, domain.StatusCompleted, messages, finalAnswer); err != nil {
			return err
		}
		return repo.SaveArtifact(ctx, o.DB, runID, ownerID, finalAnswer)
	})
	if err != nil {
		return "", err
	}
	return finalAnswer, nil
}

// saveRun persists the run record with the given status and message log.
func (o *Orchestrator) saveRun(ctx context.Context, runID, ownerID, traceID, prompt, status string, messages []llm.Message, finalAnswer string) error {
	run := &domain.WorkflowRun{
		ID:          runID,
		OwnerID:     ownerID,
		PromptUsed:  prompt,
		Status:      status,
		FinalAnswer: finalAnswer,
		TraceID:     traceID,
		Messages:    toDomainMessages(messages),
	}
	return repo.SaveWorkflowRun(ctx, o.DB, run)
}

// failRun marks a run failed, best effort; the orchestrator-level failure
// path owns the Generation transition.
func (o *Orchestrator) failRun(ctx context.Context, logger zerolog.Logger, runID, ownerID, traceID, prompt string, messages []llm.Message) {
	if err := o.saveRun(ctx, runID, ownerID, traceID, prompt, domain.StatusFailed, messages, ""); err != nil {
		logger.Error().Err(err).Str("run_id", runID).Msg("failed to persist failed run state")
	}
}

// fail transitions the generation to failed with the error persisted. A run
// already in a terminal state is left untouched so terminal states stay
// monotonic.
func (o *Orchestrator) fail(ctx context.Context, logger zerolog.Logger, correlationID string, cause error) {
	logger.Error().Err(cause).Msg("workflow run failed")

	if g, err := repo.GetGeneration(ctx, o.DB, correlationID); err == nil && g.Status != domain.StatusProcessing {
		logger.Warn().Str("status", g.Status).Msg("skipping failed transition, run already terminal")
		return
	}

	err := o.measure("persist_generation_metadata", func() error {
		return repo.MergeGeneration(ctx, o.DB, correlationID, map[string]any{
			"status": domain.StatusFailed,
			"error":  cause.Error(),
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to persist failed state")
	}
}

// measure wraps one external call or persistence write with duration
// measurement and a structured event. The recorder is a side channel; fn's
// error passes through untouched.
func (o *Orchestrator) measure(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	outcome := observability.OutcomeSuccess
	if err != nil {
		outcome = observability.OutcomeError
	}
	if o.Recorder != nil {
		o.Recorder.Record(observability.Event{
			Operation: operation,
			Duration:  time.Since(start),
			Outcome:   outcome,
		})
	}
	return err
}

// toDomainMessages converts an LLM message log to persistence rows in order.
func toDomainMessages(messages []llm.Message) []domain.WorkflowMessage {
	out := make([]domain.WorkflowMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, domain.WorkflowMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
