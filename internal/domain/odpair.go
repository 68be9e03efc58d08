package domain

// RowStatus records how a single OD row fared during a batch run.
type RowStatus string

const (
	// StatusOK: the row produced a result (and, in plan mode, a best option).
	StatusOK RowStatus = "ok"
	// StatusNoItinerary: the engine returned zero rows within the constraints.
	StatusNoItinerary RowStatus = "no_itinerary"
	// StatusNoOption: itineraries existed but none survived the
	// multi-segment filter (plan mode only).
	StatusNoOption RowStatus = "no_option"
	// StatusFailed: the per-row call errored; the batch continued.
	StatusFailed RowStatus = "failed"
)

// ODPair is one origin/destination row of the input table.
// Raw preserves the original record verbatim so output rows reproduce the
// input formatting byte for byte.
type ODPair struct {
	Row    int // 1-based position in the input table
	FromID string
	From   Coordinates
	ToID   string
	To     Coordinates
	Raw    []string
}

// BestOption holds the fields written back into the OD table for the
// selected itinerary option of a row.
type BestOption struct {
	Option               int
	TotalDurationSeconds int
	TotalDistanceMeters  int
}
