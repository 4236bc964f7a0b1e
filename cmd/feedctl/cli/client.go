package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flitsinc/go-taskfeed/internal/eventbus"
	"github.com/flitsinc/go-taskfeed/internal/feed"
	"github.com/flitsinc/go-taskfeed/internal/tasks"
)

// client talks to a running feedd daemon over HTTP.
type client struct {
	base string
	http *http.Client
}

func newClient() *client {
	return &client{
		base: strings.TrimRight(serverURL(), "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

type feedStatus struct {
	Feed      feed.SessionSnapshot `json:"feed"`
	StartedAt time.Time            `json:"started_at"`
	Uptime    string               `json:"uptime"`
}

func (c *client) listTasks(ctx context.Context, status string, limit int) ([]tasks.Task, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	var items []tasks.Task
	if err := c.getJSON(ctx, "/api/tasks?"+query.Encode(), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *client) getTask(ctx context.Context, id string) (tasks.Task, error) {
	var task tasks.Task
	if err := c.getJSON(ctx, "/api/tasks/"+url.PathEscape(id), &task); err != nil {
		return tasks.Task{}, err
	}
	return task, nil
}

func (c *client) listEvents(ctx context.Context, stream string, limit int) ([]eventbus.Event, error) {
	query := url.Values{}
	query.Set("stream", stream)
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	var items []eventbus.Event
	if err := c.getJSON(ctx, "/api/events?"+query.Encode(), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *client) getFeedStatus(ctx context.Context) (feedStatus, error) {
	var status feedStatus
	if err := c.getJSON(ctx, "/api/feed/status", &status); err != nil {
		return feedStatus{}, err
	}
	return status, nil
}

// wsURL converts the configured server base into the streaming endpoint.
func (c *client) wsURL(streams []string) string {
	out := c.base
	if strings.HasPrefix(out, "https://") {
		out = "wss://" + strings.TrimPrefix(out, "https://")
	} else if strings.HasPrefix(out, "http://") {
		out = "ws://" + strings.TrimPrefix(out, "http://")
	}
	out += "/api/streams/ws"
	if len(streams) > 0 {
		out += "?streams=" + url.QueryEscape(strings.Join(streams, ","))
	}
	return out
}

func (c *client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach feedd at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("unexpected response from feedd: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
