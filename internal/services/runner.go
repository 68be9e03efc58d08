package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"transit-batch-planner/internal/domain"
	"transit-batch-planner/internal/ports"
)

// Operating modes of the batch driver.
const (
	ModePlan   = "plan"
	ModeMatrix = "matrix"
)

// ODResultColumns are appended to the input header in the OD output table.
var ODResultColumns = []string{"best_total_duration", "best_option", "best_total_distance", "status", "error"}

// ItineraryHeader is the header of the plan-mode result table.
var ItineraryHeader = []string{"od_row", "from_id", "to_id", "option", "segment", "mode", "duration_seconds", "distance_meters", "total_duration_seconds", "total_distance_meters"}

// TravelTimeHeader is the header of the matrix-mode result table.
var TravelTimeHeader = []string{"od_row", "from_id", "to_id", "travel_time_seconds"}

// BatchParams carry the per-run routing parameters applied uniformly to
// every row.
type BatchParams struct {
	Mode               string
	DepartAt           time.Time
	Modes              []string
	EgressMode         string
	MaxWalkTime        time.Duration
	MaxTripDuration    time.Duration
	ShortestPathOnly   bool
	CheckpointInterval int
	StatusInterval     int
}

// Batch wires one run's collaborators together: the engine calls, the run
// journal, and the two output tables.
type Batch struct {
	Planner    ports.TripPlanner
	TravelTime ports.TravelTimeProvider
	Journal    ports.RunJournal
	ODOut      ports.ResultWriter
	ResultOut  ports.ResultWriter
	Params     BatchParams
	Log        *zap.Logger
}

// Summary tallies a run's rows. The status counters cover rows processed by
// this invocation; rows skipped on resume only show up in Skipped.
type Summary struct {
	Total       int
	Processed   int
	Skipped     int
	OK          int
	NoItinerary int
	NoOption    int
	Failed      int
}

func (s *Summary) count(status domain.RowStatus) {
	switch status {
	case domain.StatusOK:
		s.OK++
	case domain.StatusNoItinerary:
		s.NoItinerary++
	case domain.StatusNoOption:
		s.NoOption++
	case domain.StatusFailed:
		s.Failed++
	}
}

// Run processes the OD pairs strictly in order, one engine call at a time.
//
// Engine and decode failures are recorded per row and never abort the batch.
// A checkpoint (file flush + journal commit) happens every
// CheckpointInterval rows and once more at the end. Context cancellation
// stops the loop at a row boundary and still commits the completed rows, so
// the run can be resumed with its run id.
func (b *Batch) Run(ctx context.Context, runID string, pairs []domain.ODPair) (Summary, error) {
	var sum Summary
	sum.Total = len(pairs)

	if b.Log == nil {
		b.Log = zap.NewNop()
	}
	if err := b.validate(runID); err != nil {
		return sum, err
	}

	done, err := b.Journal.CompletedRows(ctx, runID)
	if err != nil {
		return sum, fmt.Errorf("run batch: load completed rows: %w", err)
	}
	if len(done) > 0 {
		b.Log.Info("skipping journaled rows", zap.String("run_id", runID), zap.Int("rows", len(done)))
	}

	pending := make([]ports.RowRecord, 0, max(b.Params.CheckpointInterval, 1))
	lastRow := 0

	flush := func(fctx context.Context) error {
		if len(pending) == 0 {
			return nil
		}
		odBytes, err := b.ODOut.Flush()
		if err != nil {
			return fmt.Errorf("run batch: flush od table: %w", err)
		}
		resultBytes, err := b.ResultOut.Flush()
		if err != nil {
			return fmt.Errorf("run batch: flush result table: %w", err)
		}
		cp := ports.Checkpoint{
			LastRow:     lastRow,
			ODBytes:     odBytes,
			ResultBytes: resultBytes,
			CommittedAt: time.Now().UTC(),
		}
		if err := b.Journal.Commit(fctx, runID, cp, pending); err != nil {
			return fmt.Errorf("run batch: %w", err)
		}
		b.Log.Debug("checkpoint committed",
			zap.Int("last_row", lastRow),
			zap.Int64("od_bytes", odBytes),
			zap.Int64("result_bytes", resultBytes))
		pending = pending[:0]
		return nil
	}

	interrupted := false
	sinceCheckpoint := 0

	for _, pair := range pairs {
		if _, ok := done[pair.Row]; ok {
			sum.Skipped++
			continue
		}
		if ctx.Err() != nil {
			interrupted = true
			break
		}

		rec, err := b.processRow(ctx, pair)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// The row never reached the output files; commit what did.
				interrupted = true
				break
			}
			// A writer failure may have left a partial row in the buffers.
			// Leave the journal at the previous checkpoint; a resume
			// truncates the partial bytes away and reprocesses from there.
			return sum, err
		}

		pending = append(pending, rec)
		lastRow = pair.Row
		sinceCheckpoint++
		sum.Processed++
		sum.count(rec.Status)

		if b.Params.CheckpointInterval > 0 && sinceCheckpoint >= b.Params.CheckpointInterval {
			if err := flush(ctx); err != nil {
				return sum, err
			}
			sinceCheckpoint = 0
		}

		seen := sum.Processed + sum.Skipped
		if b.Params.StatusInterval > 0 && seen%b.Params.StatusInterval == 0 {
			b.Log.Info("progress",
				zap.Int("rows", seen),
				zap.Int("total", sum.Total),
				zap.Int("ok", sum.OK),
				zap.Int("failed", sum.Failed))
		}
	}

	if err := flush(context.WithoutCancel(ctx)); err != nil {
		return sum, err
	}
	if interrupted {
		return sum, ctx.Err()
	}
	return sum, nil
}

func (b *Batch) validate(runID string) error {
	if runID == "" {
		return errors.New("run batch: run id is empty")
	}
	switch b.Params.Mode {
	case ModePlan:
		if b.Planner == nil {
			return errors.New("run batch: planner is nil")
		}
	case ModeMatrix:
		if b.TravelTime == nil {
			return errors.New("run batch: travel-time provider is nil")
		}
	default:
		return fmt.Errorf("run batch: unknown mode %q", b.Params.Mode)
	}
	if b.Journal == nil {
		return errors.New("run batch: journal is nil")
	}
	if b.ODOut == nil || b.ResultOut == nil {
		return errors.New("run batch: output writers are nil")
	}
	return nil
}

func (b *Batch) processRow(ctx context.Context, pair domain.ODPair) (ports.RowRecord, error) {
	if b.Params.Mode == ModeMatrix {
		return b.processMatrixRow(ctx, pair)
	}
	return b.processPlanRow(ctx, pair)
}

func (b *Batch) processPlanRow(ctx context.Context, pair domain.ODPair) (ports.RowRecord, error) {
	legs, err := b.Planner.PlanTrips(ctx, b.tripRequest(pair))
	if err != nil {
		return b.recordFailure(ctx, pair, err)
	}

	if len(legs) == 0 {
		return b.recordODRow(pair, nil, domain.StatusNoItinerary, "")
	}

	legs = FilterTopOptions(legs)
	for _, leg := range legs {
		if err := b.ResultOut.Append(legRecord(leg)); err != nil {
			return ports.RowRecord{}, fmt.Errorf("run batch: append itinerary row: %w", err)
		}
	}

	best := SelectBestOption(legs)
	if best == nil {
		return b.recordODRow(pair, nil, domain.StatusNoOption, "")
	}
	return b.recordODRow(pair, best, domain.StatusOK, "")
}

func (b *Batch) processMatrixRow(ctx context.Context, pair domain.ODPair) (ports.RowRecord, error) {
	tt, err := b.TravelTime.TravelTime(ctx, b.tripRequest(pair))
	if err != nil {
		return b.recordFailure(ctx, pair, err)
	}

	if err := b.ResultOut.Append(travelTimeRecord(pair, tt)); err != nil {
		return ports.RowRecord{}, fmt.Errorf("run batch: append travel-time row: %w", err)
	}

	status := domain.StatusOK
	if tt == nil {
		status = domain.StatusNoItinerary
	}
	return b.recordODRow(pair, nil, status, "")
}

// recordFailure journals an engine failure as a failed row unless the run
// itself is shutting down, in which case the context error is surfaced and
// the row stays unprocessed for the resume to retry.
func (b *Batch) recordFailure(ctx context.Context, pair domain.ODPair, cause error) (ports.RowRecord, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ports.RowRecord{}, ctxErr
	}

	b.Log.Warn("row failed",
		zap.Int("row", pair.Row),
		zap.String("from", pair.FromID),
		zap.String("to", pair.ToID),
		zap.Error(cause))

	return b.recordODRow(pair, nil, domain.StatusFailed, cause.Error())
}

func (b *Batch) recordODRow(pair domain.ODPair, best *domain.BestOption, status domain.RowStatus, errMsg string) (ports.RowRecord, error) {
	record := make([]string, 0, len(pair.Raw)+len(ODResultColumns))
	record = append(record, pair.Raw...)
	if best != nil {
		record = append(record,
			strconv.Itoa(best.TotalDurationSeconds),
			strconv.Itoa(best.Option),
			strconv.Itoa(best.TotalDistanceMeters),
		)
	} else {
		record = append(record, "", "", "")
	}
	record = append(record, string(status), errMsg)

	if err := b.ODOut.Append(record); err != nil {
		return ports.RowRecord{}, fmt.Errorf("run batch: append od row: %w", err)
	}
	return ports.RowRecord{Row: pair.Row, Status: status, Err: errMsg}, nil
}

func (b *Batch) tripRequest(pair domain.ODPair) ports.TripRequest {
	return ports.TripRequest{
		Row:              pair.Row,
		FromID:           pair.FromID,
		From:             pair.From,
		ToID:             pair.ToID,
		To:               pair.To,
		DepartAt:         b.Params.DepartAt,
		Modes:            b.Params.Modes,
		EgressMode:       b.Params.EgressMode,
		MaxWalkTime:      b.Params.MaxWalkTime,
		MaxTripDuration:  b.Params.MaxTripDuration,
		ShortestPathOnly: b.Params.ShortestPathOnly,
	}
}

func legRecord(leg domain.Leg) []string {
	return []string{
		strconv.Itoa(leg.ODRow),
		leg.FromID,
		leg.ToID,
		strconv.Itoa(leg.Option),
		strconv.Itoa(leg.Segment),
		leg.Mode,
		strconv.Itoa(leg.DurationSeconds),
		strconv.Itoa(leg.DistanceMeters),
		strconv.Itoa(leg.TotalDurationSeconds),
		strconv.Itoa(leg.TotalDistanceMeters),
	}
}

func travelTimeRecord(pair domain.ODPair, tt *domain.TravelTime) []string {
	seconds := ""
	if tt != nil {
		seconds = strconv.Itoa(tt.TravelTimeSeconds)
	}
	return []string{
		strconv.Itoa(pair.Row),
		pair.FromID,
		pair.ToID,
		seconds,
	}
}
