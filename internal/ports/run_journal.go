package ports

import (
	"context"
	"errors"
	"time"

	"transit-batch-planner/internal/domain"
)

// ErrRunNotFound reports a resume request for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run identifies one batch invocation in the journal.
type Run struct {
	ID          string
	Mode        string
	InputPath   string
	Fingerprint string
	CreatedAt   time.Time
}

// Checkpoint is the committed progress cursor of a run: the last completed
// row and the byte size of each output file after its flush. Resuming
// truncates the outputs back to these offsets before appending continues.
type Checkpoint struct {
	LastRow     int
	ODBytes     int64
	ResultBytes int64
	CommittedAt time.Time
}

// RowRecord is the journaled outcome of one processed row.
type RowRecord struct {
	Row    int
	Status domain.RowStatus
	Err    string
}

// Port: a boundary for persisting run progress so interrupted batches can
// resume without reprocessing completed rows.
type RunJournal interface {
	CreateRun(ctx context.Context, run Run) error
	// GetRun returns the stored run record for a resume request.
	GetRun(ctx context.Context, id string) (Run, error)
	// Cursor returns the latest committed checkpoint, if any.
	Cursor(ctx context.Context, runID string) (Checkpoint, bool, error)
	// CompletedRows returns the status of every committed row of the run.
	CompletedRows(ctx context.Context, runID string) (map[int]domain.RowStatus, error)
	// Commit atomically records the cursor and the batch's row statuses.
	Commit(ctx context.Context, runID string, cp Checkpoint, rows []RowRecord) error
}
