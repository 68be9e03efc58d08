package engine

import (
	"context"

	"transit-batch-planner/internal/domain"
	"transit-batch-planner/internal/ports"
)

// MockTrip is one canned result for a from/to id pair. Legs feed PlanTrips;
// Seconds feeds TravelTime (negative marks the pair unreachable).
type MockTrip struct {
	From, To string
	Legs     []domain.Leg
	Seconds  int
}

// MockPlanner serves deterministic results keyed by "from|to". Pairs without
// an entry plan to an empty itinerary set, as an unreachable destination
// would.
type MockPlanner struct {
	trips map[string]MockTrip
	fail  map[string]error

	// Calls counts every PlanTrips and TravelTime invocation.
	Calls int
}

func NewMockPlanner(trips []MockTrip) *MockPlanner {
	m := make(map[string]MockTrip, len(trips))
	for _, tr := range trips {
		m[tr.From+"|"+tr.To] = tr
	}
	return &MockPlanner{trips: m, fail: make(map[string]error)}
}

// FailWith makes every call for the pair return err.
func (p *MockPlanner) FailWith(from, to string, err error) {
	p.fail[from+"|"+to] = err
}

func (p *MockPlanner) PlanTrips(ctx context.Context, req ports.TripRequest) ([]domain.Leg, error) {
	p.Calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := req.FromID + "|" + req.ToID
	if err, ok := p.fail[key]; ok {
		return nil, err
	}

	tr, ok := p.trips[key]
	if !ok {
		return nil, nil
	}

	legs := make([]domain.Leg, len(tr.Legs))
	copy(legs, tr.Legs)
	return stampLegs(legs, req), nil
}

func (p *MockPlanner) TravelTime(ctx context.Context, req ports.TripRequest) (*domain.TravelTime, error) {
	p.Calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := req.FromID + "|" + req.ToID
	if err, ok := p.fail[key]; ok {
		return nil, err
	}

	tr, ok := p.trips[key]
	if !ok || tr.Seconds < 0 {
		return nil, nil
	}
	return stampTravelTime(tr.Seconds, true, req), nil
}
