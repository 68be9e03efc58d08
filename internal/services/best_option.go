package services

import "transit-batch-planner/internal/domain"

// The engine ranks options best-first; everything past the third is ignored.
const maxOptionRank = 3

// An option must span at least two segments to be selectable. A
// single-segment option is a pure street route (walk or cycle the whole
// way), not a transit itinerary.
const minEligibleSegments = 2

// FilterTopOptions keeps the legs whose option rank is at most three,
// preserving engine order.
func FilterTopOptions(legs []domain.Leg) []domain.Leg {
	kept := make([]domain.Leg, 0, len(legs))
	for _, leg := range legs {
		if leg.Option <= maxOptionRank {
			kept = append(kept, leg)
		}
	}
	return kept
}

// SelectBestOption picks the eligible option with the lowest total duration
// for one row's legs. The totals are read from each option's first leg.
// Returns nil when no option is eligible, which includes every row whose
// options are all single-segment.
func SelectBestOption(legs []domain.Leg) *domain.BestOption {
	type optionFacts struct {
		maxSegment    int
		totalDuration int
		totalDistance int
	}

	order := make([]int, 0, 4)
	facts := make(map[int]*optionFacts, 4)

	for _, leg := range legs {
		f, ok := facts[leg.Option]
		if !ok {
			f = &optionFacts{
				totalDuration: leg.TotalDurationSeconds,
				totalDistance: leg.TotalDistanceMeters,
			}
			facts[leg.Option] = f
			order = append(order, leg.Option)
		}
		if leg.Segment > f.maxSegment {
			f.maxSegment = leg.Segment
		}
	}

	var best *domain.BestOption
	for _, opt := range order {
		f := facts[opt]
		if f.maxSegment < minEligibleSegments {
			continue
		}
		// Strictly-lower keeps the first occurrence on ties, matching the
		// engine's own ranking order.
		if best == nil || f.totalDuration < best.TotalDurationSeconds {
			best = &domain.BestOption{
				Option:               opt,
				TotalDurationSeconds: f.totalDuration,
				TotalDistanceMeters:  f.totalDistance,
			}
		}
	}

	return best
}
