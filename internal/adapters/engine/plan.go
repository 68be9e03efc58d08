package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"transit-batch-planner/internal/domain"
	"transit-batch-planner/internal/platform/obs"
	"transit-batch-planner/internal/ports"
)

// tripPayload is the body shared by the plan and travel-time endpoints.
type tripPayload struct {
	NetworkID        string    `json:"network_id"`
	From             []float64 `json:"from"`
	To               []float64 `json:"to"`
	DepartAt         string    `json:"depart_at"`
	Modes            []string  `json:"modes"`
	EgressMode       string    `json:"egress_mode,omitempty"`
	MaxWalkTimeS     int       `json:"max_walk_time_s,omitempty"`
	MaxTripDurationS int       `json:"max_trip_duration_s,omitempty"`
	ShortestPathOnly bool      `json:"shortest_path_only"`
}

type planLeg struct {
	Option         int     `json:"option"`
	Segment        int     `json:"segment"`
	Mode           string  `json:"mode"`
	DurationS      float64 `json:"duration_s"`
	DistanceM      float64 `json:"distance_m"`
	TotalDurationS float64 `json:"total_duration_s"`
	TotalDistanceM float64 `json:"total_distance_m"`
}

type planResponse struct {
	Legs []planLeg `json:"legs"`
}

// PlanTrips requests the ranked itinerary options for one OD pair. An empty
// slice means the destination is unreachable within the request bounds.
func (c *Client) PlanTrips(ctx context.Context, req ports.TripRequest) (_ []domain.Leg, err error) {
	defer obs.Time(c.log, "engine.PlanTrips")(&err)

	if c.networkID == "" {
		return nil, errors.New("plan trips: network not built")
	}

	key := c.cacheKey("plan", req)
	if payload, ok, err := c.cacheGet(ctx, key); err != nil {
		return nil, err
	} else if ok {
		legs, derr := decodePlanLegs(payload)
		if derr == nil {
			return stampLegs(legs, req), nil
		}
		c.log.Warn("dropping unreadable trip cache entry", zap.String("key", key), zap.Error(derr))
	}

	payload, err := json.Marshal(c.tripPayload(req))
	if err != nil {
		return nil, fmt.Errorf("marshal plan request: %w", err)
	}

	endpoint := c.baseURL + "/v1/plan"
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	})
	if err != nil {
		return nil, fmt.Errorf("plan request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read plan response: %w", err)
	}

	legs, err := decodePlanLegs(raw)
	if err != nil {
		return nil, fmt.Errorf("decode plan response: %w", err)
	}

	c.cachePut(ctx, key, raw)

	return stampLegs(legs, req), nil
}

func decodePlanLegs(payload []byte) ([]domain.Leg, error) {
	var pr planResponse
	if err := json.Unmarshal(payload, &pr); err != nil {
		return nil, err
	}

	legs := make([]domain.Leg, 0, len(pr.Legs))
	for _, l := range pr.Legs {
		// The engine reports float metrics; round to integers for domain
		// consistency.
		legs = append(legs, domain.Leg{
			Option:               l.Option,
			Segment:              l.Segment,
			Mode:                 l.Mode,
			DurationSeconds:      int(math.Round(l.DurationS)),
			DistanceMeters:       int(math.Round(l.DistanceM)),
			TotalDurationSeconds: int(math.Round(l.TotalDurationS)),
			TotalDistanceMeters:  int(math.Round(l.TotalDistanceM)),
		})
	}
	return legs, nil
}

// stampLegs attaches the row identity after decode so cache hits and fresh
// responses take the same path.
func stampLegs(legs []domain.Leg, req ports.TripRequest) []domain.Leg {
	for i := range legs {
		legs[i].ODRow = req.Row
		legs[i].FromID = req.FromID
		legs[i].ToID = req.ToID
	}
	return legs
}

func (c *Client) tripPayload(req ports.TripRequest) tripPayload {
	return tripPayload{
		NetworkID:        c.networkID,
		From:             req.From.CoordsToList(),
		To:               req.To.CoordsToList(),
		DepartAt:         req.DepartAt.Format(time.RFC3339),
		Modes:            req.Modes,
		EgressMode:       req.EgressMode,
		MaxWalkTimeS:     int(req.MaxWalkTime.Seconds()),
		MaxTripDurationS: int(req.MaxTripDuration.Seconds()),
		ShortestPathOnly: req.ShortestPathOnly,
	}
}

// cacheKey fingerprints a request without its row identity, so identical
// coordinate pairs share one entry across rows and runs.
func (c *Client) cacheKey(mode string, req ports.TripRequest) string {
	return strings.Join([]string{
		mode,
		formatCoord(req.From),
		formatCoord(req.To),
		strconv.FormatInt(req.DepartAt.Unix(), 10),
		strings.Join(req.Modes, ","),
		req.EgressMode,
		strconv.Itoa(int(req.MaxWalkTime.Seconds())),
		strconv.Itoa(int(req.MaxTripDuration.Seconds())),
		strconv.FormatBool(req.ShortestPathOnly),
	}, "|")
}

func formatCoord(c domain.Coordinates) string {
	return strconv.FormatFloat(c.Lon, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lat, 'f', -1, 64)
}

func (c *Client) cacheGet(ctx context.Context, key string) ([]byte, bool, error) {
	if c.cache == nil {
		return nil, false, nil
	}
	payload, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("trip cache read: %w", err)
	}
	return payload, ok, nil
}

// cachePut stores the payload on a best-effort basis. A failing cache must
// not fail the row.
func (c *Client) cachePut(ctx context.Context, key string, payload []byte) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Put(ctx, key, payload); err != nil {
		c.log.Warn("trip cache write failed", zap.Error(err))
	}
}
