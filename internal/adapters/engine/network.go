package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

type buildNetworkRequest struct {
	DataDir     string  `json:"data_dir"`
	Verbose     bool    `json:"verbose"`
	Overwrite   bool    `json:"overwrite"`
	Elevation   string  `json:"elevation,omitempty"`
	MaxMemoryGB float64 `json:"max_memory_gb,omitempty"`
}

type buildNetworkResponse struct {
	NetworkID string `json:"network_id"`
}

// Build asks the engine to assemble the transport network from the
// configured data directory and retains the returned handle. It must
// succeed once before PlanTrips or TravelTime.
func (c *Client) Build(ctx context.Context) error {
	bodyObj := buildNetworkRequest{
		DataDir:     c.build.DataDir,
		Verbose:     c.build.Verbose,
		Overwrite:   c.build.Overwrite,
		Elevation:   c.build.Elevation,
		MaxMemoryGB: c.build.MaxMemoryGB,
	}

	payload, err := json.Marshal(bodyObj)
	if err != nil {
		return fmt.Errorf("marshal network build request: %w", err)
	}

	endpoint := c.baseURL + "/v1/networks"
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	})
	if err != nil {
		return fmt.Errorf("network build failed: %w", err)
	}
	defer resp.Body.Close()

	var br buildNetworkResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return fmt.Errorf("decode network build response: %w", err)
	}
	if br.NetworkID == "" {
		return errors.New("engine returned an empty network id")
	}

	c.networkID = br.NetworkID
	c.log.Info("engine network ready", zap.String("network_id", br.NetworkID))
	return nil
}

// Close releases the engine-side network handle. Calling it before a
// successful Build, or a second time, is a no-op.
func (c *Client) Close(ctx context.Context) error {
	if c.networkID == "" {
		return nil
	}
	id := c.networkID
	c.networkID = ""

	req, err := c.newRequest(ctx, http.MethodDelete, c.baseURL+"/v1/networks/"+id, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("network release failed: %w", err)
	}
	resp.Body.Close()

	c.log.Info("engine network released", zap.String("network_id", id))
	return nil
}
