package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteJournal
// =============================================================================

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db *sqlx.DB
}

// NewSQLiteJournal opens the journal at dsn and runs migrations.
func NewSQLiteJournal(dsn string) (*SQLiteJournal, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewJournalError("NewSQLiteJournal", "", "", "failed to open database", ErrConnectionFailed)
	}
	// One connection: an in-memory database is per connection, and the
	// orchestrator records decisions from many goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewJournalError("NewSQLiteJournal", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewJournalError("NewSQLiteJournal", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteJournal{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func (j *SQLiteJournal) CreateRun(ctx context.Context, run *Run) error {
	return createRun(ctx, j.db, run)
}

func (j *SQLiteJournal) GetRun(ctx context.Context, id string) (*Run, error) {
	return getRun(ctx, j.db, id)
}

func (j *SQLiteJournal) FinishRun(ctx context.Context, id, registry string, runErr error) error {
	return finishRun(ctx, j.db, id, registry, runErr)
}

func (j *SQLiteJournal) ListRuns(ctx context.Context, opts ListOptions) ([]Run, error) {
	return listRuns(ctx, j.db, opts)
}

func (j *SQLiteJournal) RecordDecision(ctx context.Context, decision *Decision) error {
	return recordDecision(ctx, j.db, decision)
}

// RecordDecisions writes decisions in one transaction.
func (j *SQLiteJournal) RecordDecisions(ctx context.Context, decisions ...*Decision) error {
	if len(decisions) == 1 {
		return recordDecision(ctx, j.db, decisions[0])
	}
	return j.WithTx(ctx, func(tx Journal) error {
		return tx.RecordDecisions(ctx, decisions...)
	})
}

func (j *SQLiteJournal) ListDecisions(ctx context.Context, runID string) ([]Decision, error) {
	return listDecisions(ctx, j.db, runID)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (j *SQLiteJournal) WithTx(ctx context.Context, fn func(Journal) error) error {
	tx, err := j.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewJournalError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txJ := &txSQLiteJournal{tx: tx}

	if err := fn(txJ); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewJournalError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewJournalError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// txSQLiteJournal implements Journal within a transaction.
type txSQLiteJournal struct {
	tx *sqlx.Tx
}

func (j *txSQLiteJournal) CreateRun(ctx context.Context, run *Run) error {
	return createRun(ctx, j.tx, run)
}

func (j *txSQLiteJournal) GetRun(ctx context.Context, id string) (*Run, error) {
	return getRun(ctx, j.tx, id)
}

func (j *txSQLiteJournal) FinishRun(ctx context.Context, id, registry string, runErr error) error {
	return finishRun(ctx, j.tx, id, registry, runErr)
}

func (j *txSQLiteJournal) ListRuns(ctx context.Context, opts ListOptions) ([]Run, error) {
	return listRuns(ctx, j.tx, opts)
}

func (j *txSQLiteJournal) RecordDecision(ctx context.Context, decision *Decision) error {
	return recordDecision(ctx, j.tx, decision)
}

func (j *txSQLiteJournal) RecordDecisions(ctx context.Context, decisions ...*Decision) error {
	for _, d := range decisions {
		if err := recordDecision(ctx, j.tx, d); err != nil {
			return err
		}
	}
	return nil
}

func (j *txSQLiteJournal) ListDecisions(ctx context.Context, runID string) ([]Decision, error) {
	return listDecisions(ctx, j.tx, runID)
}

func (j *txSQLiteJournal) WithTx(ctx context.Context, fn func(Journal) error) error {
	// Already in a transaction, just run the function
	return fn(j)
}

func (j *txSQLiteJournal) Close() error {
	// No-op for tx journal
	return nil
}

// =============================================================================
// Shared Implementation Functions
// =============================================================================

// runRow represents a run row in the database.
type runRow struct {
	ID          string  `db:"id"`
	NetworkID   string  `db:"network_id"`
	NetworkName string  `db:"network_name"`
	StartBlock  int64   `db:"start_block"`
	Registry    string  `db:"registry"`
	Status      string  `db:"status"`
	Error       string  `db:"error_message"`
	StartedAt   string  `db:"started_at"`
	FinishedAt  *string `db:"finished_at"`
}

// decisionRow represents a decision row in the database.
type decisionRow struct {
	ID          int64  `db:"id"`
	RunID       string `db:"run_id"`
	Stage       string `db:"stage"`
	Artifact    string `db:"artifact"`
	Key         string `db:"registry_key"`
	Action      string `db:"action"`
	Address     string `db:"address"`
	ContentHash string `db:"content_hash"`
	Reason      string `db:"reason"`
	CreatedAt   string `db:"created_at"`
}

func createRun(ctx context.Context, exec executor, run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}

	query := `
		INSERT INTO runs (
			id, network_id, network_name, start_block, registry,
			status, error_message, started_at
		) VALUES (
			:id, :network_id, :network_name, :start_block, :registry,
			:status, :error_message, :started_at
		)`

	row := map[string]any{
		"id":            run.ID,
		"network_id":    run.NetworkID,
		"network_name":  run.NetworkName,
		"start_block":   int64(run.StartBlock),
		"registry":      run.Registry,
		"status":        string(run.Status),
		"error_message": run.Error,
		"started_at":    run.StartedAt.Format(time.RFC3339Nano),
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: runs.id") {
			return NewJournalError("CreateRun", "run", run.ID, "run already exists", ErrDuplicateID)
		}
		return NewJournalError("CreateRun", "run", run.ID, err.Error(), err)
	}
	return nil
}

func getRun(ctx context.Context, exec executor, id string) (*Run, error) {
	var row runRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM runs WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewJournalError("GetRun", "run", id, "run not found", ErrNotFound)
		}
		return nil, NewJournalError("GetRun", "run", id, err.Error(), err)
	}
	return rowToRun(&row)
}

func finishRun(ctx context.Context, exec executor, id, registry string, runErr error) error {
	status := RunSucceeded
	message := ""
	if runErr != nil {
		status = RunFailed
		message = runErr.Error()
	}

	result, err := exec.ExecContext(ctx,
		`UPDATE runs SET status = ?, error_message = ?, registry = ?, finished_at = ? WHERE id = ?`,
		string(status), message, registry, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return NewJournalError("FinishRun", "run", id, err.Error(), err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return NewJournalError("FinishRun", "run", id, "run not found", ErrNotFound)
	}
	return nil
}

func listRuns(ctx context.Context, exec executor, opts ListOptions) ([]Run, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM runs ORDER BY started_at DESC, id LIMIT ? OFFSET ?`

	var rows []runRow
	if err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, NewJournalError("ListRuns", "run", "", err.Error(), err)
	}

	runs := make([]Run, 0, len(rows))
	for _, row := range rows {
		run, err := rowToRun(&row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

func recordDecision(ctx context.Context, exec executor, decision *Decision) error {
	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO decisions (
			run_id, stage, artifact, registry_key, action,
			address, content_hash, reason, created_at
		) VALUES (
			:run_id, :stage, :artifact, :registry_key, :action,
			:address, :content_hash, :reason, :created_at
		)`

	row := map[string]any{
		"run_id":       decision.RunID,
		"stage":        decision.Stage,
		"artifact":     decision.Artifact,
		"registry_key": decision.Key,
		"action":       decision.Action,
		"address":      decision.Address,
		"content_hash": decision.ContentHash,
		"reason":       decision.Reason,
		"created_at":   decision.CreatedAt.Format(time.RFC3339Nano),
	}

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewJournalError("RecordDecision", "decision", decision.RunID, "run does not exist", ErrForeignKey)
		}
		return NewJournalError("RecordDecision", "decision", decision.RunID, err.Error(), err)
	}
	if id, err := result.LastInsertId(); err == nil {
		decision.ID = id
	}
	return nil
}

func listDecisions(ctx context.Context, exec executor, runID string) ([]Decision, error) {
	var rows []decisionRow
	err := exec.SelectContext(ctx, &rows, `SELECT * FROM decisions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, NewJournalError("ListDecisions", "decision", runID, err.Error(), err)
	}

	decisions := make([]Decision, 0, len(rows))
	for _, row := range rows {
		createdAt, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
		if err != nil {
			return nil, NewJournalError("ListDecisions", "decision", runID, "invalid created_at", ErrInvalidData)
		}
		decisions = append(decisions, Decision{
			ID:          row.ID,
			RunID:       row.RunID,
			Stage:       row.Stage,
			Artifact:    row.Artifact,
			Key:         row.Key,
			Action:      row.Action,
			Address:     row.Address,
			ContentHash: row.ContentHash,
			Reason:      row.Reason,
			CreatedAt:   createdAt,
		})
	}
	return decisions, nil
}

func rowToRun(row *runRow) (*Run, error) {
	startedAt, err := time.Parse(time.RFC3339Nano, row.StartedAt)
	if err != nil {
		return nil, NewJournalError("rowToRun", "run", row.ID, "invalid started_at", ErrInvalidData)
	}

	run := &Run{
		ID:          row.ID,
		NetworkID:   row.NetworkID,
		NetworkName: row.NetworkName,
		StartBlock:  uint64(row.StartBlock),
		Registry:    row.Registry,
		Status:      RunStatus(row.Status),
		Error:       row.Error,
		StartedAt:   startedAt,
	}
	if row.FinishedAt != nil {
		finishedAt, err := time.Parse(time.RFC3339Nano, *row.FinishedAt)
		if err != nil {
			return nil, NewJournalError("rowToRun", "run", row.ID, "invalid finished_at", ErrInvalidData)
		}
		run.FinishedAt = &finishedAt
	}
	return run, nil
}
