package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := NewSQLiteJournal(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		j.Close()
	})
	return j
}

func createTestRun(t *testing.T, j Journal) *Run {
	t.Helper()
	run := NewRun("4", "rinkeby", 100)
	require.NoError(t, j.CreateRun(context.Background(), run))
	return run
}

// =============================================================================
// Run Tests
// =============================================================================

func TestCreateRun_AndGet(t *testing.T) {
	j := setupTestJournal(t)
	run := createTestRun(t, j)

	got, err := j.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "4", got.NetworkID)
	assert.Equal(t, "rinkeby", got.NetworkName)
	assert.Equal(t, uint64(100), got.StartBlock)
	assert.Equal(t, RunRunning, got.Status)
	assert.Nil(t, got.FinishedAt)
	assert.WithinDuration(t, run.StartedAt, got.StartedAt, time.Millisecond)
}

func TestCreateRun_Duplicate(t *testing.T) {
	j := setupTestJournal(t)
	run := createTestRun(t, j)

	err := j.CreateRun(context.Background(), run)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestGetRun_NotFound(t *testing.T) {
	j := setupTestJournal(t)

	_, err := j.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	var jErr *JournalError
	require.ErrorAs(t, err, &jErr)
	assert.Equal(t, "GetRun", jErr.Op)
}

func TestFinishRun(t *testing.T) {
	tests := []struct {
		name       string
		runErr     error
		wantStatus RunStatus
		wantError  string
	}{
		{name: "success", wantStatus: RunSucceeded},
		{name: "failure", runErr: errors.New("registry owner does not match sender"), wantStatus: RunFailed, wantError: "registry owner does not match sender"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := setupTestJournal(t)
			run := createTestRun(t, j)
			ctx := context.Background()

			require.NoError(t, j.FinishRun(ctx, run.ID, "0x01", tt.runErr))

			got, err := j.GetRun(ctx, run.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantError, got.Error)
			assert.Equal(t, "0x01", got.Registry)
			assert.NotNil(t, got.FinishedAt)
		})
	}
}

func TestFinishRun_NotFound(t *testing.T) {
	j := setupTestJournal(t)
	err := j.FinishRun(context.Background(), "missing", "", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRuns_NewestFirst(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		run := &Run{ID: id, NetworkID: "4", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, j.CreateRun(ctx, run))
	}

	runs, err := j.ListRuns(ctx, DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "a", runs[2].ID)

	runs, err = j.ListRuns(ctx, ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "b", runs[0].ID)
}

// =============================================================================
// Decision Tests
// =============================================================================

func TestRecordDecision_AndList(t *testing.T) {
	j := setupTestJournal(t)
	run := createTestRun(t, j)
	ctx := context.Background()

	first := &Decision{RunID: run.ID, Stage: "bulk", Artifact: "ShareToken", Key: "ShareToken", Action: "uploaded", Address: "0xaa", Reason: "fresh registry"}
	second := &Decision{RunID: run.ID, Stage: "bulk", Artifact: "ShareToken", Key: "ShareToken", Action: "registered", Address: "0xaa"}
	require.NoError(t, j.RecordDecision(ctx, first))
	require.NoError(t, j.RecordDecision(ctx, second))
	assert.NotZero(t, first.ID)

	decisions, err := j.ListDecisions(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, "uploaded", decisions[0].Action)
	assert.Equal(t, "fresh registry", decisions[0].Reason)
	assert.Equal(t, "registered", decisions[1].Action)
}

func TestRecordDecision_UnknownRun(t *testing.T) {
	j := setupTestJournal(t)
	err := j.RecordDecision(context.Background(), &Decision{RunID: "missing", Stage: "bulk", Artifact: "Map", Action: "uploaded"})
	assert.ErrorIs(t, err, ErrForeignKey)
}

func TestRecordDecision_Concurrent(t *testing.T) {
	j := setupTestJournal(t)
	run := createTestRun(t, j)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, j.RecordDecision(context.Background(), &Decision{RunID: run.ID, Stage: "bulk", Artifact: "Map", Action: "uploaded"}))
		}()
	}
	wg.Wait()

	decisions, err := j.ListDecisions(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Len(t, decisions, 20)
}

// =============================================================================
// Transaction Tests
// =============================================================================

func TestWithTx_Rollback(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := j.WithTx(ctx, func(tx Journal) error {
		require.NoError(t, tx.CreateRun(ctx, &Run{ID: "rolled-back"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = j.GetRun(ctx, "rolled-back")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithTx_Commit(t *testing.T) {
	j := setupTestJournal(t)
	ctx := context.Background()

	err := j.WithTx(ctx, func(tx Journal) error {
		if err := tx.CreateRun(ctx, &Run{ID: "committed"}); err != nil {
			return err
		}
		return tx.RecordDecision(ctx, &Decision{RunID: "committed", Stage: "registry", Artifact: "Controller", Action: "uploaded"})
	})
	require.NoError(t, err)

	decisions, err := j.ListDecisions(ctx, "committed")
	require.NoError(t, err)
	assert.Len(t, decisions, 1)
}

func TestRecordDecisions_AllOrNothing(t *testing.T) {
	j := setupTestJournal(t)
	run := createTestRun(t, j)
	ctx := context.Background()

	err := j.RecordDecisions(ctx,
		&Decision{RunID: run.ID, Stage: "bulk", Artifact: "ShareToken", Key: "ShareTokenTarget", Action: "uploaded"},
		&Decision{RunID: "missing", Stage: "bulk", Artifact: "ShareToken", Key: "ShareTokenTarget", Action: "registered"},
	)
	assert.ErrorIs(t, err, ErrForeignKey)

	decisions, err := j.ListDecisions(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, decisions)

	uploaded := &Decision{RunID: run.ID, Stage: "bulk", Artifact: "ShareToken", Key: "ShareTokenTarget", Action: "uploaded"}
	registered := &Decision{RunID: run.ID, Stage: "bulk", Artifact: "ShareToken", Key: "ShareTokenTarget", Action: "registered"}
	require.NoError(t, j.RecordDecisions(ctx, uploaded, registered))
	assert.NotZero(t, uploaded.ID)
	assert.Greater(t, registered.ID, uploaded.ID)

	decisions, err = j.ListDecisions(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, "uploaded", decisions[0].Action)
	assert.Equal(t, "registered", decisions[1].Action)
}

func TestNoOpRecorder(t *testing.T) {
	var r Recorder = NewNoOpRecorder()
	ctx := context.Background()
	assert.NoError(t, r.CreateRun(ctx, NewRun("4", "", 0)))
	assert.NoError(t, r.RecordDecision(ctx, &Decision{}))
	assert.NoError(t, r.RecordDecisions(ctx, &Decision{}, &Decision{}))
	assert.NoError(t, r.FinishRun(ctx, "x", "", errors.New("ignored")))
}
