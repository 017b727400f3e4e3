package repo

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/topicforge/go-generation-backend/internal/domain"
)

// newTestDB opens a throwaway SQLite database in a temp dir and migrates the
// full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestMergeGeneration_CreateThenPartialUpdate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := MergeGeneration(ctx, db, "gen-1", map[string]any{
		"owner_id": "owner-1",
		"topic":    "what is entropy?",
		"status":   domain.StatusProcessing,
		"trace_id": "trace-1",
	})
	if err != nil {
		t.Fatalf("initial merge: %v", err)
	}

	// Later write omits topic/owner; they must survive the merge.
	err = MergeGeneration(ctx, db, "gen-1", map[string]any{
		"status":             domain.StatusCompleted,
		"generated_artifact": "storyboard text",
	})
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}

	g, err := GetGeneration(ctx, db, "gen-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if g.Status != domain.StatusCompleted {
		t.Fatalf("status = %q, want completed", g.Status)
	}
	if g.GeneratedArtifact != "storyboard text" {
		t.Fatalf("artifact = %q", g.GeneratedArtifact)
	}
	if g.Topic != "what is entropy?" || g.OwnerID != "owner-1" || g.TraceID != "trace-1" {
		t.Fatalf("merge clobbered omitted fields: %+v", g)
	}
	if g.CreatedAt.IsZero() || g.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not set: %+v", g)
	}

	// Same id again must overwrite, not duplicate.
	var n int64
	if err := db.Model(&domain.Generation{}).Where("id = ?", "gen-1").Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}

func TestGetGeneration_NotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := GetGeneration(context.Background(), db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListGenerations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := MergeGeneration(ctx, db, id, map[string]any{
			"owner_id": "owner-1",
			"topic":    "t",
			"status":   domain.StatusProcessing,
		}); err != nil {
			t.Fatalf("merge %s: %v", id, err)
		}
	}
	if err := MergeGeneration(ctx, db, "other", map[string]any{
		"owner_id": "owner-2",
		"topic":    "t",
		"status":   domain.StatusProcessing,
	}); err != nil {
		t.Fatalf("merge other: %v", err)
	}

	out, err := ListGenerations(ctx, db, "owner-1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	for _, g := range out {
		if g.OwnerID != "owner-1" {
			t.Fatalf("leaked other owner's generation: %+v", g)
		}
	}
}

func TestSaveWorkflowRun_Roundtrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run := &domain.WorkflowRun{
		ID:         "run-1",
		OwnerID:    "owner-1",
		PromptUsed: "prompt",
		Status:     domain.StatusProcessing,
		TraceID:    "trace-1",
		Messages: []domain.WorkflowMessage{
			{Role: domain.RoleUser, Content: "prompt"},
			{Role: domain.RoleAssistant, Content: "follow-up?"},
		},
	}
	if err := SaveWorkflowRun(ctx, db, run); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Second save carries the grown log and the final state.
	run.Status = domain.StatusCompleted
	run.FinalAnswer = "answer"
	run.Messages = append(run.Messages,
		domain.WorkflowMessage{Role: domain.RoleUser, Content: "topic"},
		domain.WorkflowMessage{Role: domain.RoleAssistant, Content: "answer"},
	)
	if err := SaveWorkflowRun(ctx, db, run); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := GetWorkflowRun(ctx, db, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusCompleted || got.FinalAnswer != "answer" {
		t.Fatalf("unexpected run state: %+v", got)
	}
	if len(got.Messages) != 4 {
		t.Fatalf("len(messages) = %d, want 4", len(got.Messages))
	}
	wantRoles := []string{domain.RoleUser, domain.RoleAssistant, domain.RoleUser, domain.RoleAssistant}
	for i, m := range got.Messages {
		if m.Position != i {
			t.Fatalf("message %d position = %d", i, m.Position)
		}
		if m.Role != wantRoles[i] {
			t.Fatalf("message %d role = %q, want %q", i, m.Role, wantRoles[i])
		}
	}
}

func TestGetWorkflowRun_NotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := GetWorkflowRun(context.Background(), db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestArtifact_SaveOverwriteGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := GetArtifact(ctx, db, "run-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	if err := SaveArtifact(ctx, db, "run-1", "owner-1", "v1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := SaveArtifact(ctx, db, "run-1", "owner-1", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err := GetArtifact(ctx, db, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "v2" {
		t.Fatalf("answer = %q, want v2", got)
	}
}

func TestCounterStore_WindowSemantics(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := &CounterStore{DB: db}

	// Missing row reads zero.
	if n, err := store.Count(ctx, "caller-1", ""); err != nil || n != 0 {
		t.Fatalf("count = %d, %v; want 0, nil", n, err)
	}

	if err := store.Put(ctx, "caller-1", "", 2); err != nil {
		t.Fatalf("put: %v", err)
	}
	if n, _ := store.Count(ctx, "caller-1", ""); n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}

	// A row stored under a different window reads zero.
	if err := store.Put(ctx, "global_daily", "2026-03-13", 10); err != nil {
		t.Fatalf("put daily: %v", err)
	}
	if n, _ := store.Count(ctx, "global_daily", "2026-03-14"); n != 0 {
		t.Fatalf("stale window count = %d, want 0", n)
	}

	// Overwriting moves the row to the new window.
	if err := store.Put(ctx, "global_daily", "2026-03-14", 1); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if n, _ := store.Count(ctx, "global_daily", "2026-03-14"); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
	if n, _ := store.Count(ctx, "global_daily", "2026-03-13"); n != 0 {
		t.Fatalf("old window count = %d, want 0", n)
	}
}
