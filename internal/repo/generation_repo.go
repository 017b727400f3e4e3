// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Generation
// records, including the merge-upsert used by the orchestrator's state
// transitions.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/topicforge/go-generation-backend/internal/domain"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("not found")

// GetGeneration fetches a generation record by correlation id.
func GetGeneration(ctx context.Context, db *gorm.DB, id string) (*domain.Generation, error) {
	var g domain.Generation
	err := db.WithContext(ctx).Where("id = ?", id).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// MergeGeneration upserts a generation record by correlation id with merge
// semantics: only the provided fields are written, previously-set fields
// remain intact when a later write omits them. Re-running with the same id
// overwrites rather than duplicates.
func MergeGeneration(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	now := time.Now().UTC()
	fields["updated_at"] = now

	res := db.WithContext(ctx).Model(&domain.Generation{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// First write for this id: create the row from the given fields.
	fields["id"] = id
	fields["created_at"] = now
	return db.WithContext(ctx).Model(&domain.Generation{}).Create(fields).Error
}

// ListGenerations returns generations for an owner ordered newest first.
func ListGenerations(ctx context.Context, db *gorm.DB, ownerID string, limit int) ([]domain.Generation, error) {
	var out []domain.Generation
	q := db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
