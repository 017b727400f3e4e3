// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the SQLite-backed rate-limit counter
// store consumed by the quota limiter.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/topicforge/go-generation-backend/internal/domain"
)

// CounterStore persists quota counters through GORM. It intentionally keeps
// plain read-then-write semantics: Count and Put are separate
// operations with no cross-request mutual exclusion, so concurrent requests
// in the same scope can overshoot the quota.
type CounterStore struct {
	DB *gorm.DB
}

// Count returns the stored count for (key, window). A row whose stored
// window differs from the requested one reads as zero: a stale daily counter
// lingers in the table but no longer counts.
func (s *CounterStore) Count(ctx context.Context, key, window string) (int64, error) {
	var c domain.RateLimitCounter
	err := s.DB.WithContext(ctx).Where("key = ?", key).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if c.Window != window {
		return 0, nil
	}
	return c.TotalRequests, nil
}

// Put overwrites the counter for key with the given window and count,
// creating the row lazily on first use.
func (s *CounterStore) Put(ctx context.Context, key, window string, count int64) error {
	fields := map[string]any{
		"window":         window,
		"total_requests": count,
		"updated_at":     time.Now().UTC(),
	}
	res := s.DB.WithContext(ctx).Model(&domain.RateLimitCounter{}).Where("key = ?", key).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	fields["key"] = key
	return s.DB.WithContext(ctx).Model(&domain.RateLimitCounter{}).Create(fields).Error
}
