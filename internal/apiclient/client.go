// Package apiclient talks to a running town over its HTTP API. Reads are
// public; pause, resume, speed and snapshot need the admin key.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/mini-town/internal/agents"
	"github.com/talgya/mini-town/internal/engine"
	"github.com/talgya/mini-town/internal/memory"
	"github.com/talgya/mini-town/internal/world"
)

// ErrStatus is wrapped by every non-200 response.
var ErrStatus = goerr.New("unexpected response status")

// Status mirrors GET /api/v1/status.
type Status struct {
	Name       string    `json:"name"`
	Time       time.Time `json:"time"`
	SimTime    string    `json:"sim_time"`
	Season     string    `json:"season"`
	Daytime    bool      `json:"daytime"`
	Paused     bool      `json:"paused"`
	TimeScale  float64   `json:"time_scale"`
	Population int       `json:"population"`
	InFlight   int       `json:"in_flight"`
	Ticks      uint64    `json:"ticks"`
}

// AgentDetail mirrors GET /api/v1/agent/{id}.
type AgentDetail struct {
	Agent   agents.View `json:"agent"`
	Persona string      `json:"persona"`
	Idle    bool        `json:"idle"`
}

// LocationInfo mirrors items from GET /api/v1/locations.
type LocationInfo struct {
	world.Location
	Occupants []string       `json:"occupants"`
	Exits     map[string]int `json:"exits"`
}

// Jobs mirrors GET /api/v1/jobs.
type Jobs struct {
	Available map[string][]string `json:"available"`
	Assigned  []struct {
		AgentID  string `json:"agent_id"`
		Location string `json:"location"`
		Job      string `json:"job"`
	} `json:"assigned"`
}

// Client is a thin HTTP client for the town API.
type Client struct {
	BaseURL    string
	AdminKey   string
	HTTPClient *http.Client
}

// New creates a Client targeting baseURL.
func New(baseURL, adminKey string) *Client {
	return &Client{
		BaseURL:  baseURL,
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	var out Status
	return &out, c.get(ctx, "/api/v1/status", nil, &out)
}

func (c *Client) Stats(ctx context.Context) (*engine.SimStats, error) {
	var out engine.SimStats
	return &out, c.get(ctx, "/api/v1/stats", nil, &out)
}

// Agents lists residents, optionally only those at location.
func (c *Client) Agents(ctx context.Context, location string) ([]agents.View, error) {
	q := url.Values{}
	if location != "" {
		q.Set("location", location)
	}
	var out []agents.View
	return out, c.get(ctx, "/api/v1/agents", q, &out)
}

func (c *Client) Agent(ctx context.Context, id string) (*AgentDetail, error) {
	var out AgentDetail
	return &out, c.get(ctx, "/api/v1/agent/"+url.PathEscape(id), nil, &out)
}

// Memories lists an agent's newest memories.
func (c *Client) Memories(ctx context.Context, id string, limit int) ([]memory.Record, error) {
	var out []memory.Record
	return out, c.get(ctx, "/api/v1/agent/"+url.PathEscape(id)+"/memories", limitQuery(limit), &out)
}

// SearchMemories ranks an agent's memories against query.
func (c *Client) SearchMemories(ctx context.Context, id, query string, limit int) ([]memory.Scored, error) {
	q := limitQuery(limit)
	q.Set("q", query)
	var out []memory.Scored
	return out, c.get(ctx, "/api/v1/agent/"+url.PathEscape(id)+"/memories", q, &out)
}

// Events returns recent town events, oldest first. An empty category
// matches all.
func (c *Client) Events(ctx context.Context, category string, limit int) ([]engine.Entry, error) {
	q := limitQuery(limit)
	if category != "" {
		q.Set("category", category)
	}
	var out []engine.Entry
	return out, c.get(ctx, "/api/v1/events", q, &out)
}

func (c *Client) Locations(ctx context.Context) ([]LocationInfo, error) {
	var out []LocationInfo
	return out, c.get(ctx, "/api/v1/locations", nil, &out)
}

func (c *Client) Path(ctx context.Context, from, to string) (*world.Path, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	var out world.Path
	return &out, c.get(ctx, "/api/v1/path", q, &out)
}

func (c *Client) Jobs(ctx context.Context) (*Jobs, error) {
	var out Jobs
	return &out, c.get(ctx, "/api/v1/jobs", nil, &out)
}

func (c *Client) Pause(ctx context.Context) error {
	return c.post(ctx, "/api/v1/pause", nil, nil)
}

func (c *Client) Resume(ctx context.Context) error {
	return c.post(ctx, "/api/v1/resume", nil, nil)
}

// SetSpeed changes the time scale and returns the one in effect.
func (c *Client) SetSpeed(ctx context.Context, scale float64) (float64, error) {
	var out struct {
		TimeScale float64 `json:"time_scale"`
	}
	err := c.post(ctx, "/api/v1/speed", map[string]float64{"time_scale": scale}, &out)
	return out.TimeScale, err
}

// Snapshot asks the town to save now.
func (c *Client) Snapshot(ctx context.Context) error {
	return c.post(ctx, "/api/v1/snapshot", nil, nil)
}

// WaitReady polls the status endpoint with exponential backoff until it
// responds or ctx ends.
func (c *Client) WaitReady(ctx context.Context) error {
	backoff := 250 * time.Millisecond
	const maxBackoff = 5 * time.Second
	for {
		if _, err := c.Status(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return goerr.Wrap(ctx.Err(), "town API did not become ready", goerr.V("url", c.BaseURL))
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func limitQuery(limit int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

func (c *Client) get(ctx context.Context, path string, q url.Values, target any) error {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to create request", goerr.V("path", path))
	}
	return c.do(req, path, target)
}

func (c *Client) post(ctx context.Context, path string, body, target any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return goerr.Wrap(err, "failed to encode request", goerr.V("path", path))
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, r)
	if err != nil {
		return goerr.Wrap(err, "failed to create request", goerr.V("path", path))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.AdminKey)
	return c.do(req, path, target)
}

func (c *Client) do(req *http.Request, path string, target any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "request failed", goerr.V("method", req.Method), goerr.V("path", path))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return goerr.Wrap(ErrStatus, "town API returned an error",
			goerr.V("path", path), goerr.V("status", resp.StatusCode), goerr.V("body", string(bytes.TrimSpace(body))))
	}
	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return goerr.Wrap(err, "failed to decode response", goerr.V("path", path))
	}
	return nil
}
