package ports

import (
	"context"
	"time"

	"transit-batch-planner/internal/domain"
)

// TripRequest describes one per-row routing call. The same departure time,
// modes, and bounds apply to every row of a run; only the endpoints vary.
type TripRequest struct {
	Row              int
	FromID           string
	From             domain.Coordinates
	ToID             string
	To               domain.Coordinates
	DepartAt         time.Time
	Modes            []string
	EgressMode       string
	MaxWalkTime      time.Duration
	MaxTripDuration  time.Duration
	ShortestPathOnly bool
}

// Contract for requesting ranked itinerary options for one OD pair.
type TripPlanner interface {
	// Return the leg rows of all ranked options, empty when the destination
	// is unreachable within the request constraints.
	PlanTrips(ctx context.Context, req TripRequest) ([]domain.Leg, error)
}

// Contract for requesting a single bounded travel time for one OD pair.
type TravelTimeProvider interface {
	// Return the travel-time row, or nil when unreachable within constraints.
	TravelTime(ctx context.Context, req TripRequest) (*domain.TravelTime, error)
}
