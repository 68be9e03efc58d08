package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-batch-planner/internal/domain"
	"transit-batch-planner/internal/ports"
)

type memCache struct {
	m map[string][]byte
}

func newMemCache() *memCache { return &memCache{m: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	p, ok := c.m[key]
	return p, ok, nil
}

func (c *memCache) Put(_ context.Context, key string, payload []byte) error {
	c.m[key] = payload
	return nil
}

func testRequest(row int) ports.TripRequest {
	return ports.TripRequest{
		Row:              row,
		FromID:           "origin-a",
		From:             domain.Coordinates{Lon: 2.1734, Lat: 41.3851},
		ToID:             "dest-b",
		To:               domain.Coordinates{Lon: 2.19, Lat: 41.4},
		DepartAt:         time.Date(2024, 5, 13, 8, 0, 0, 0, time.UTC),
		Modes:            []string{"WALK", "TRANSIT"},
		EgressMode:       "WALK",
		MaxWalkTime:      30 * time.Minute,
		MaxTripDuration:  3 * time.Hour,
		ShortestPathOnly: false,
	}
}

func newBuiltClient(t *testing.T, mux *http.ServeMux, cache ports.TripCache) *Client {
	t.Helper()

	mux.HandleFunc("POST /v1/networks", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"network_id":"net-1"}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, 5*time.Second, BuildOptions{DataDir: "testdata/network"}, cache, nil)
	require.NoError(t, err)
	require.NoError(t, c.Build(context.Background()))
	return c
}

func TestNewValidatesInputs(t *testing.T) {
	_, err := New("", time.Second, BuildOptions{DataDir: "d"}, nil, nil)
	require.Error(t, err)

	_, err = New("http://localhost:9000", time.Second, BuildOptions{}, nil, nil)
	require.Error(t, err)
}

func TestPlanTripsRequiresBuild(t *testing.T) {
	c, err := New("http://localhost:9000", time.Second, BuildOptions{DataDir: "d"}, nil, nil)
	require.NoError(t, err)

	_, err = c.PlanTrips(context.Background(), testRequest(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network not built")
}

func TestBuildAndClose(t *testing.T) {
	mux := http.NewServeMux()
	var released []string
	mux.HandleFunc("DELETE /v1/networks/{id}", func(w http.ResponseWriter, r *http.Request) {
		released = append(released, r.PathValue("id"))
	})

	c := newBuiltClient(t, mux, nil)

	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, []string{"net-1"}, released)
}

func TestPlanTripsDecodesAndStamps(t *testing.T) {
	mux := http.NewServeMux()
	var gotBody map[string]any
	mux.HandleFunc("POST /v1/plan", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"legs":[
			{"option":1,"segment":1,"mode":"WALK","duration_s":600.4,"distance_m":810.2,"total_duration_s":600.4,"total_distance_m":810.2},
			{"option":2,"segment":1,"mode":"WALK","duration_s":180,"distance_m":240,"total_duration_s":1500.6,"total_distance_m":9310.5},
			{"option":2,"segment":2,"mode":"BUS","duration_s":1320.6,"distance_m":9070.5,"total_duration_s":1500.6,"total_distance_m":9310.5}
		]}`)
	})

	c := newBuiltClient(t, mux, nil)
	legs, err := c.PlanTrips(context.Background(), testRequest(7))
	require.NoError(t, err)

	assert.Equal(t, "net-1", gotBody["network_id"])
	assert.Equal(t, []any{2.1734, 41.3851}, gotBody["from"])
	assert.Equal(t, []any{2.19, 41.4}, gotBody["to"])
	assert.Equal(t, "2024-05-13T08:00:00Z", gotBody["depart_at"])
	assert.Equal(t, []any{"WALK", "TRANSIT"}, gotBody["modes"])
	assert.Equal(t, "WALK", gotBody["egress_mode"])
	assert.Equal(t, float64(1800), gotBody["max_walk_time_s"])
	assert.Equal(t, float64(10800), gotBody["max_trip_duration_s"])

	require.Len(t, legs, 3)
	first := legs[0]
	assert.Equal(t, 7, first.ODRow)
	assert.Equal(t, "origin-a", first.FromID)
	assert.Equal(t, "dest-b", first.ToID)
	assert.Equal(t, 600, first.DurationSeconds)
	assert.Equal(t, 810, first.DistanceMeters)

	last := legs[2]
	assert.Equal(t, 2, last.Option)
	assert.Equal(t, 2, last.Segment)
	assert.Equal(t, "BUS", last.Mode)
	assert.Equal(t, 1321, last.DurationSeconds)
	assert.Equal(t, 1501, last.TotalDurationSeconds)
	assert.Equal(t, 9311, last.TotalDistanceMeters)
}

func TestPlanTripsEmptyResult(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/plan", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"legs":[]}`)
	})

	c := newBuiltClient(t, mux, nil)
	legs, err := c.PlanTrips(context.Background(), testRequest(1))
	require.NoError(t, err)
	assert.Empty(t, legs)
}

func TestPlanTripsRetriesServerErrors(t *testing.T) {
	mux := http.NewServeMux()
	attempts := 0
	mux.HandleFunc("POST /v1/plan", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "engine busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"legs":[]}`)
	})

	c := newBuiltClient(t, mux, nil)
	_, err := c.PlanTrips(context.Background(), testRequest(1))
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestPlanTripsDoesNotRetryClientErrors(t *testing.T) {
	mux := http.NewServeMux()
	attempts := 0
	mux.HandleFunc("POST /v1/plan", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "no such network", http.StatusNotFound)
	})

	c := newBuiltClient(t, mux, nil)
	_, err := c.PlanTrips(context.Background(), testRequest(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, 1, attempts)
}

func TestPlanTripsServesRepeatsFromCache(t *testing.T) {
	mux := http.NewServeMux()
	hits := 0
	mux.HandleFunc("POST /v1/plan", func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, `{"legs":[{"option":1,"segment":1,"mode":"WALK","duration_s":60,"distance_m":80,"total_duration_s":600,"total_distance_m":4080},
			{"option":1,"segment":2,"mode":"BUS","duration_s":540,"distance_m":4000,"total_duration_s":600,"total_distance_m":4080}]}`)
	})

	c := newBuiltClient(t, mux, newMemCache())

	first, err := c.PlanTrips(context.Background(), testRequest(1))
	require.NoError(t, err)

	// The same endpoints on a different row must not reach the engine
	// again, and must carry the new row identity.
	second, err := c.PlanTrips(context.Background(), testRequest(9))
	require.NoError(t, err)

	assert.Equal(t, 1, hits)
	require.Len(t, second, 2)
	assert.Equal(t, 1, first[0].ODRow)
	assert.Equal(t, 9, second[0].ODRow)
	assert.Equal(t, first[0].TotalDurationSeconds, second[0].TotalDurationSeconds)
}

func TestTravelTime(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantNil  bool
		wantSecs int
	}{
		{name: "reachable", body: `{"rows":[{"travel_time_s":1800.6}]}`, wantSecs: 1801},
		{name: "unreachable null", body: `{"rows":[{"travel_time_s":null}]}`, wantNil: true},
		{name: "unreachable empty", body: `{"rows":[]}`, wantNil: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /v1/travel_time", func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tc.body)
			})

			c := newBuiltClient(t, mux, nil)
			tt, err := c.TravelTime(context.Background(), testRequest(3))
			require.NoError(t, err)

			if tc.wantNil {
				assert.Nil(t, tt)
				return
			}
			require.NotNil(t, tt)
			assert.Equal(t, 3, tt.ODRow)
			assert.Equal(t, "origin-a", tt.FromID)
			assert.Equal(t, "dest-b", tt.ToID)
			assert.Equal(t, tc.wantSecs, tt.TravelTimeSeconds)
		})
	}
}

func TestMockPlannerStampsRows(t *testing.T) {
	mock := NewMockPlanner([]MockTrip{{
		From: "origin-a", To: "dest-b",
		Legs: []domain.Leg{
			{Option: 1, Segment: 1, Mode: "WALK", TotalDurationSeconds: 900},
			{Option: 1, Segment: 2, Mode: "RAIL", TotalDurationSeconds: 900},
		},
		Seconds: 900,
	}})

	legs, err := mock.PlanTrips(context.Background(), testRequest(4))
	require.NoError(t, err)
	require.Len(t, legs, 2)
	assert.Equal(t, 4, legs[0].ODRow)

	missing, err := mock.PlanTrips(context.Background(), ports.TripRequest{Row: 5, FromID: "x", ToID: "y"})
	require.NoError(t, err)
	assert.Empty(t, missing)

	tt, err := mock.TravelTime(context.Background(), testRequest(6))
	require.NoError(t, err)
	require.NotNil(t, tt)
	assert.Equal(t, 900, tt.TravelTimeSeconds)
	assert.Equal(t, 3, mock.Calls)
}
