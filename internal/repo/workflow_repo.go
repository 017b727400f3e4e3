// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for workflow runs,
// their message logs, and the artifact store that links chained stages.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/topicforge/go-generation-backend/internal/domain"
)

// SaveWorkflowRun upserts the run record and replaces its message log in one
// transaction. The message log is written in slice order; positions are
// assigned here so callers only maintain an ordered slice.
func SaveWorkflowRun(ctx context.Context, db *gorm.DB, run *domain.WorkflowRun) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]any{
			"owner_id":     run.OwnerID,
			"prompt_used":  run.PromptUsed,
			"status":       run.Status,
			"final_answer": run.FinalAnswer,
			"trace_id":     run.TraceID,
			"updated_at":   now,
		}
		res := tx.Model(&domain.WorkflowRun{}).Where("id = ?", run.ID).Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			fields["id"] = run.ID
			fields["created_at"] = now
			if err := tx.Model(&domain.WorkflowRun{}).Create(fields).Error; err != nil {
				return err
			}
		}

		// Replace the message log wholesale; the log is append-only within a
		// run, so each save carries a strict superset of the previous one.
		if err := tx.Where("run_id = ?", run.ID).Delete(&domain.WorkflowMessage{}).Error; err != nil {
			return err
		}
		for i := range run.Messages {
			m := &run.Messages[i]
			if m.ID == "" {
				m.ID = uuid.NewString()
			}
			m.RunID = run.ID
			m.Position = i
			if m.CreatedAt.IsZero() {
				m.CreatedAt = now
			}
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetWorkflowRun fetches a run with its message log in position order.
func GetWorkflowRun(ctx context.Context, db *gorm.DB, id string) (*domain.WorkflowRun, error) {
	var run domain.WorkflowRun
	err := db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	err = db.WithContext(ctx).
		Where("run_id = ?", id).
		Order("position ASC").
		Find(&run.Messages).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// SaveArtifact stores (or overwrites) the final answer for a run.
func SaveArtifact(ctx context.Context, db *gorm.DB, runID, ownerID, answer string) error {
	now := time.Now().UTC()
	fields := map[string]any{"owner_id": ownerID, "answer": answer}
	res := db.WithContext(ctx).Model(&domain.Artifact{}).Where("id = ?", runID).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	fields["id"] = runID
	fields["created_at"] = now
	return db.WithContext(ctx).Model(&domain.Artifact{}).Create(fields).Error
}

// GetArtifact returns the stored answer for a run, or ErrNotFound.
func GetArtifact(ctx context.Context, db *gorm.DB, runID string) (string, error) {
	var a domain.Artifact
	err := db.WithContext(ctx).Where("id = ?", runID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return a.Answer, nil
}
