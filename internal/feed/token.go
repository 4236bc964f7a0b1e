package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Token is an opaque channel credential. The engine never inspects it
// beyond handing it to the transport.
type Token struct {
	Value string `json:"token"`
}

// TokenProvider mints or refreshes the channel credential. A (nil, nil)
// return is the explicit no-credential condition: the hub answered but
// issued nothing.
type TokenProvider interface {
	RefreshToken(ctx context.Context) (*Token, error)
}

// HTTPTokenProvider mints tokens from the hub's token endpoint.
type HTTPTokenProvider struct {
	HubURL string
	Client *http.Client
}

func (p *HTTPTokenProvider) RefreshToken(ctx context.Context) (*Token, error) {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.HubURL+"/api/live/token", bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token request: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	// The hub answers `null` when no credential can be issued for this
	// deployment. That is a legitimate disabled mode, not an error.
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var token Token
	if err := json.Unmarshal(trimmed, &token); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}
	if token.Value == "" {
		return nil, nil
	}
	return &token, nil
}
