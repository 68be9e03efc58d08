package ports

import "context"

// Port: a persistent cache of raw engine response payloads keyed by a
// request fingerprint, so repeated batches skip settled pairs.
type TripCache interface {
	// Get returns the cached payload and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Put stores or replaces the payload for key.
	Put(ctx context.Context, key string, payload []byte) error
}
