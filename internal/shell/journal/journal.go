// Package journal records deployment runs and every per-artifact decision
// they make.
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Types
// =============================================================================

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is one invocation of the orchestrator.
type Run struct {
	ID          string
	NetworkID   string
	NetworkName string
	StartBlock  uint64
	Registry    string
	Status      RunStatus
	Error       string
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// NewRun creates a running run with a fresh ID.
func NewRun(networkID, networkName string, startBlock uint64) *Run {
	return &Run{
		ID:          uuid.NewString(),
		NetworkID:   networkID,
		NetworkName: networkName,
		StartBlock:  startBlock,
		Status:      RunRunning,
		StartedAt:   time.Now().UTC(),
	}
}

// Decision is one recorded action on one artifact.
type Decision struct {
	ID          int64
	RunID       string
	Stage       string
	Artifact    string
	Key         string
	Action      string
	Address     string
	ContentHash string
	Reason      string
	CreatedAt   time.Time
}

// =============================================================================
// Interfaces
// =============================================================================

// Recorder is the write side used by the orchestrator.
type Recorder interface {
	CreateRun(ctx context.Context, run *Run) error
	RecordDecision(ctx context.Context, decision *Decision) error
	// RecordDecisions writes decisions together: all of them or none.
	RecordDecisions(ctx context.Context, decisions ...*Decision) error
	FinishRun(ctx context.Context, id string, registry string, runErr error) error
}

// Journal is the full persistence interface.
type Journal interface {
	Recorder

	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, opts ListOptions) ([]Run, error)
	ListDecisions(ctx context.Context, runID string) ([]Decision, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Journal) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  20,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// =============================================================================
// No-Op Recorder
// =============================================================================

// NoOpRecorder discards everything (journal disabled).
type NoOpRecorder struct{}

// NewNoOpRecorder creates a no-op recorder.
func NewNoOpRecorder() *NoOpRecorder {
	return &NoOpRecorder{}
}

// CreateRun does nothing.
func (NoOpRecorder) CreateRun(context.Context, *Run) error { return nil }

// RecordDecision does nothing.
func (NoOpRecorder) RecordDecision(context.Context, *Decision) error { return nil }

// RecordDecisions does nothing.
func (NoOpRecorder) RecordDecisions(context.Context, ...*Decision) error { return nil }

// FinishRun does nothing.
func (NoOpRecorder) FinishRun(context.Context, string, string, error) error { return nil }
