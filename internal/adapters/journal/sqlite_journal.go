package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"transit-batch-planner/internal/domain"
	"transit-batch-planner/internal/ports"
)

// SQLite backed run journal. One file typically lives next to the output
// directory and records every run started from that working copy.
type SqliteRunJournal struct {
	DB *sql.DB
}

func NewSqliteRunJournal(db *sql.DB) *SqliteRunJournal {
	return &SqliteRunJournal{DB: db}
}

// Initialize the SQLite run-journal schema.
func InitSqliteSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("init journal schema: DB is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("init journal schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createRunsQuery := `
	CREATE TABLE IF NOT EXISTS runs (
        run_id TEXT PRIMARY KEY,
        mode TEXT NOT NULL,
        input_path TEXT NOT NULL,
        fingerprint TEXT NOT NULL,
        created_at TEXT NOT NULL
    );
	`

	createCheckpointsQuery := `
	CREATE TABLE IF NOT EXISTS checkpoints (
        run_id TEXT PRIMARY KEY REFERENCES runs(run_id),
        last_row INTEGER NOT NULL,
        od_bytes INTEGER NOT NULL,
        result_bytes INTEGER NOT NULL,
        committed_at TEXT NOT NULL
    );
	`

	createRowStatusQuery := `
	CREATE TABLE IF NOT EXISTS row_status (
        run_id TEXT NOT NULL REFERENCES runs(run_id),
        row_num INTEGER NOT NULL,
        status TEXT NOT NULL,
        error TEXT NOT NULL DEFAULT '',
        PRIMARY KEY (run_id, row_num)
    );
	`

	statements := []string{
		createRunsQuery,
		createCheckpointsQuery,
		createRowStatusQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("init journal schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init journal schema: commit tx: %w", err)
	}

	return nil
}

func (s *SqliteRunJournal) CreateRun(ctx context.Context, run ports.Run) error {
	if s.DB == nil {
		return errors.New("run journal: db is nil")
	}

	if run.ID == "" {
		return errors.New("create run: id must not be empty")
	}

	q := `
	INSERT INTO runs (run_id, mode, input_path, fingerprint, created_at)
    VALUES (?, ?, ?, ?, ?);
	`

	_, err := s.DB.ExecContext(ctx, q,
		run.ID, run.Mode, run.InputPath, run.Fingerprint,
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("create run %q: %w", run.ID, err)
	}

	return nil
}

func (s *SqliteRunJournal) GetRun(ctx context.Context, id string) (ports.Run, error) {
	if s.DB == nil {
		return ports.Run{}, errors.New("run journal: db is nil")
	}

	q := `
	SELECT mode, input_path, fingerprint, created_at
    FROM runs
    WHERE run_id = ?;
	`

	run := ports.Run{ID: id}
	var createdAt string
	err := s.DB.QueryRowContext(ctx, q, id).Scan(&run.Mode, &run.InputPath, &run.Fingerprint, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Run{}, fmt.Errorf("get run %q: %w", id, ports.ErrRunNotFound)
	}
	if err != nil {
		return ports.Run{}, fmt.Errorf("get run %q: query runs table: %w", id, err)
	}

	run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return ports.Run{}, fmt.Errorf("get run %q: parse created_at: %w", id, err)
	}

	return run, nil
}

func (s *SqliteRunJournal) Cursor(ctx context.Context, runID string) (ports.Checkpoint, bool, error) {
	if s.DB == nil {
		return ports.Checkpoint{}, false, errors.New("run journal: db is nil")
	}

	q := `
	SELECT last_row, od_bytes, result_bytes, committed_at
    FROM checkpoints
    WHERE run_id = ?;
	`

	var cp ports.Checkpoint
	var committedAt string
	err := s.DB.QueryRowContext(ctx, q, runID).Scan(&cp.LastRow, &cp.ODBytes, &cp.ResultBytes, &committedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Checkpoint{}, false, nil
	}
	if err != nil {
		return ports.Checkpoint{}, false, fmt.Errorf("get cursor run=%q: %w", runID, err)
	}

	cp.CommittedAt, err = time.Parse(time.RFC3339Nano, committedAt)
	if err != nil {
		return ports.Checkpoint{}, false, fmt.Errorf("get cursor run=%q: parse committed_at: %w", runID, err)
	}

	return cp, true, nil
}

func (s *SqliteRunJournal) CompletedRows(ctx context.Context, runID string) (map[int]domain.RowStatus, error) {
	if s.DB == nil {
		return nil, errors.New("run journal: db is nil")
	}

	q := `
	SELECT row_num, status
    FROM row_status
    WHERE run_id = ?;
	`

	rows, err := s.DB.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("completed rows run=%q: query row_status table: %w", runID, err)
	}
	defer rows.Close()

	out := make(map[int]domain.RowStatus)
	for rows.Next() {
		var num int
		var status string
		if err := rows.Scan(&num, &status); err != nil {
			return nil, fmt.Errorf("completed rows run=%q: scan rows: %w", runID, err)
		}
		out[num] = domain.RowStatus(status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("completed rows run=%q: row iteration: %w", runID, err)
	}

	return out, nil
}

// Commit records the cursor and the batch's row statuses in one transaction,
// so a crash can never leave the journal half-updated.
func (s *SqliteRunJournal) Commit(ctx context.Context, runID string, cp ports.Checkpoint, rows []ports.RowRecord) error {
	if s.DB == nil {
		return errors.New("run journal: db is nil")
	}

	if runID == "" {
		return errors.New("commit checkpoint: run id must not be empty")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit checkpoint: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsertCursor := `
	INSERT OR REPLACE INTO checkpoints (run_id, last_row, od_bytes, result_bytes, committed_at)
    VALUES (?, ?, ?, ?, ?);
	`

	if _, err := tx.ExecContext(ctx, upsertCursor,
		runID, cp.LastRow, cp.ODBytes, cp.ResultBytes,
		cp.CommittedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("commit checkpoint: upsert cursor: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR REPLACE INTO row_status (run_id, row_num, status, error)
    VALUES (?, ?, ?, ?);
	`)
	if err != nil {
		return fmt.Errorf("commit checkpoint: db prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, runID, r.Row, string(r.Status), r.Err); err != nil {
			return fmt.Errorf("commit checkpoint row=%d: %w", r.Row, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: commit tx: %w", err)
	}

	return nil
}
