package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Gate probes the hub once to decide whether live subscriptions are
// permitted in this deployment.
type Gate struct {
	HubURL string
	Client *http.Client
}

type capabilityResponse struct {
	Status string `json:"status"`
	Config struct {
		IsDev bool `json:"isDev"`
	} `json:"config"`
}

// Check issues the capability probe. Returns (true, nil) when live channels
// are supported, (false, nil) when the deployment legitimately runs without
// them, and (false, *AvailabilityError) when the probe itself failed.
func (g *Gate) Check(ctx context.Context) (bool, error) {
	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.HubURL+"/api/live/config", nil)
	if err != nil {
		return false, &AvailabilityError{Err: fmt.Errorf("build probe request: %w", err)}
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, &AvailabilityError{Err: fmt.Errorf("probe request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, &AvailabilityError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, &AvailabilityError{Err: fmt.Errorf("read probe response: %w", err)}
	}

	var capability capabilityResponse
	if err := json.Unmarshal(body, &capability); err != nil {
		return false, &AvailabilityError{Err: fmt.Errorf("parse probe response: %w", err)}
	}

	if capability.Status != "ok" || !capability.Config.IsDev {
		return false, nil
	}
	return true, nil
}
