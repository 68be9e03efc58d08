package domain

// Leg is one segment of one ranked itinerary option for an OD row.
// Option and Segment are 1-based; the option's aggregate totals are repeated
// on every leg belonging to it, mirroring the engine's tabular output.
type Leg struct {
	ODRow                int
	FromID               string
	ToID                 string
	Option               int
	Segment              int
	Mode                 string
	DurationSeconds      int
	DistanceMeters       int
	TotalDurationSeconds int
	TotalDistanceMeters  int
}

// TravelTime is one travel-time-matrix result row.
type TravelTime struct {
	ODRow             int
	FromID            string
	ToID              string
	TravelTimeSeconds int
}
