package engine

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"transit-batch-planner/internal/ports"
)

// BuildOptions are passed to the engine when it assembles the routable
// network at the start of a run.
type BuildOptions struct {
	DataDir     string
	Verbose     bool
	Overwrite   bool
	Elevation   string
	MaxMemoryGB float64
}

// Client drives the external multimodal routing engine over HTTP.
//
// It coordinates:
//   - One-time network build and release per run
//   - Persistent response caching
//   - External API calls with retry/backoff
//
// The client is not safe for concurrent use; the batch loop issues one call
// at a time.
type Client struct {
	session   *http.Client
	baseURL   string
	build     BuildOptions
	networkID string
	cache     ports.TripCache
	log       *zap.Logger
}

// New returns a client for the engine at baseURL. tripCache may be nil to
// disable caching; log may be nil.
func New(baseURL string, timeout time.Duration, build BuildOptions, tripCache ports.TripCache, log *zap.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("engine base URL is empty")
	}
	if build.DataDir == "" {
		return nil, errors.New("engine network data dir is empty")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		session: &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		build:   build,
		cache:   tripCache,
		log:     log,
	}, nil
}
