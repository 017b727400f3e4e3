// Package domain defines the persistence models for generation requests,
// workflow runs, artifacts, and rate-limit counters. These types are mapped
// with GORM and form the core data layer of the generation backend.
package domain

import (
	"time"
)

// Generation status values. Transitions are monotonic: a run moves from
// processing to exactly one of completed or failed and never back.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Message roles used in workflow message logs.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Generation is the per-correlation-id record tracking one generation request
// from admission to completion. It is created by the gateway before the
// background run starts and mutated only by the orchestrator.
//
// Fields:
//   - ID: correlation id grouping all records of one request.
//   - OwnerID: identifier of the requesting caller.
//   - Topic: the normalized topic the run was started with.
//   - Status: processing | completed | failed.
//   - GeneratedArtifact: final output, set only on completion.
//   - Error: failure message, set only on failure.
//   - TraceID: observability correlation id spanning the whole run.
type Generation struct {
	ID                string    `json:"id"                 gorm:"type:varchar(128);primaryKey"`
	OwnerID           string    `json:"owner_id"           gorm:"type:varchar(64);not null;index:idx_owner_generations"`
	Topic             string    `json:"topic"              gorm:"type:varchar(255);not null"`
	Status            string    `json:"status"             gorm:"type:varchar(16);not null;check:status IN ('processing','completed','failed')"`
	GeneratedArtifact string    `json:"generated_artifact,omitempty" gorm:"type:text"`
	Error             string    `json:"error,omitempty"    gorm:"type:text"`
	TraceID           string    `json:"trace_id"           gorm:"type:varchar(64)"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for Generation.
func (Generation) TableName() string { return "generations" }

// WorkflowRun captures the full conversational state of a single workflow
// stage: the prompt it was seeded with, the accumulated message log, and the
// final answer once the stage completes.
type WorkflowRun struct {
	ID          string    `json:"id"           gorm:"type:varchar(128);primaryKey"`
	OwnerID     string    `json:"owner_id"     gorm:"type:varchar(64);not null;index"`
	PromptUsed  string    `json:"prompt_used"  gorm:"type:text;not null"`
	Status      string    `json:"status"       gorm:"type:varchar(16);not null"`
	FinalAnswer string    `json:"final_answer,omitempty" gorm:"type:text"`
	TraceID     string    `json:"trace_id"     gorm:"type:varchar(64)"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Messages is the ordered, append-only message log of this run.
	Messages []WorkflowMessage `json:"messages" gorm:"foreignKey:RunID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for WorkflowRun.
func (WorkflowRun) TableName() string { return "workflow_runs" }

// WorkflowMessage is one role-tagged turn in a run's message log. Position
// preserves insertion order so the log can be replayed deterministically as
// LLM input.
type WorkflowMessage struct {
	ID        string    `json:"id"       gorm:"type:char(36);primaryKey"`
	RunID     string    `json:"run_id"   gorm:"type:varchar(128);not null;index:idx_run_msgs,priority:1"`
	Role      string    `json:"role"     gorm:"type:varchar(16);not null;check:role IN ('user','assistant','system')"`
	Content   string    `json:"content"  gorm:"type:text;not null"`
	Position  int       `json:"position" gorm:"not null;index:idx_run_msgs,priority:2"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for WorkflowMessage.
func (WorkflowMessage) TableName() string { return "workflow_messages" }

// Artifact stores the final answer of a completed run, keyed by run id. A
// chained stage reads its predecessor's artifact from here; downstream
// services may also discover readiness by observing this table.
type Artifact struct {
	ID        string    `json:"id"       gorm:"type:varchar(128);primaryKey"`
	OwnerID   string    `json:"owner_id" gorm:"type:varchar(64);not null;index"`
	Answer    string    `json:"answer"   gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Artifact.
func (Artifact) TableName() string { return "artifacts" }

// RateLimitCounter is a quota counter document. Per-caller counters use the
// caller id as key with an empty window; the global daily counter uses the
// fixed key "global_daily" with the UTC date as window. A counter whose
// stored window differs from the requested one reads as zero even though the
// old row lingers.
type RateLimitCounter struct {
	Key           string    `json:"key"            gorm:"type:varchar(128);primaryKey;column:key"`
	Window        string    `json:"window"         gorm:"type:varchar(16);not null;default:''"`
	TotalRequests int64     `json:"total_requests" gorm:"not null;default:0"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for RateLimitCounter.
func (RateLimitCounter) TableName() string { return "rate_limit_counters" }
