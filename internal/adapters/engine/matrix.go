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

	"go.uber.org/zap"

	"transit-batch-planner/internal/domain"
	"transit-batch-planner/internal/platform/obs"
	"transit-batch-planner/internal/ports"
)

type travelTimeRow struct {
	TravelTimeS *float64 `json:"travel_time_s"`
}

type travelTimeResponse struct {
	Rows []travelTimeRow `json:"rows"`
}

// TravelTime requests the bounded door-to-door travel time for one OD pair.
// A nil result means the destination is unreachable within the bounds.
func (c *Client) TravelTime(ctx context.Context, req ports.TripRequest) (_ *domain.TravelTime, err error) {
	defer obs.Time(c.log, "engine.TravelTime")(&err)

	if c.networkID == "" {
		return nil, errors.New("travel time: network not built")
	}

	key := c.cacheKey("matrix", req)
	if payload, ok, err := c.cacheGet(ctx, key); err != nil {
		return nil, err
	} else if ok {
		seconds, reachable, derr := decodeTravelTime(payload)
		if derr == nil {
			return stampTravelTime(seconds, reachable, req), nil
		}
		c.log.Warn("dropping unreadable trip cache entry", zap.String("key", key), zap.Error(derr))
	}

	payload, err := json.Marshal(c.tripPayload(req))
	if err != nil {
		return nil, fmt.Errorf("marshal travel-time request: %w", err)
	}

	endpoint := c.baseURL + "/v1/travel_time"
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	})
	if err != nil {
		return nil, fmt.Errorf("travel-time request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read travel-time response: %w", err)
	}

	seconds, reachable, err := decodeTravelTime(raw)
	if err != nil {
		return nil, fmt.Errorf("decode travel-time response: %w", err)
	}

	c.cachePut(ctx, key, raw)

	return stampTravelTime(seconds, reachable, req), nil
}

func decodeTravelTime(payload []byte) (seconds int, reachable bool, err error) {
	var tr travelTimeResponse
	if err := json.Unmarshal(payload, &tr); err != nil {
		return 0, false, err
	}
	if len(tr.Rows) == 0 {
		return 0, false, nil
	}
	if len(tr.Rows) > 1 {
		return 0, false, fmt.Errorf("expected at most 1 travel-time row; got %d", len(tr.Rows))
	}

	secondsPtr := tr.Rows[0].TravelTimeS
	if secondsPtr == nil {
		return 0, false, nil
	}
	return int(math.Round(*secondsPtr)), true, nil
}

func stampTravelTime(seconds int, reachable bool, req ports.TripRequest) *domain.TravelTime {
	if !reachable {
		return nil
	}
	return &domain.TravelTime{
		ODRow:             req.Row,
		FromID:            req.FromID,
		ToID:              req.ToID,
		TravelTimeSeconds: seconds,
	}
}
