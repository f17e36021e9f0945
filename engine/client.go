package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/swiss-ai-center/text2audio/service"
	"github.com/swiss-ai-center/text2audio/task"
)

// Client talks to an orchestration engine over its REST API. Unlike the
// inference call, engine calls carry a timeout; a dead engine must never
// wedge a worker or shutdown.
type Client struct {
	client *http.Client
}

func NewClient(client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{client: client}
}

// Announce registers the service with the engine at engineURL.
func (c *Client) Announce(ctx context.Context, engineURL string, info service.Info) error {
	return c.do(ctx, http.MethodPost, joinURL(engineURL, "services"), info)
}

// Withdraw removes the service from the engine's catalog.
func (c *Client) Withdraw(ctx context.Context, engineURL, slug string) error {
	return c.do(ctx, http.MethodDelete, joinURL(engineURL, "services", slug), nil)
}

type taskUpdate struct {
	Status    string `json:"status"`
	ResultKey string `json:"result_key,omitempty"`
	Error     string `json:"error,omitempty"`
}

// UpdateTask reports a terminal task state to the engine that submitted it.
func (c *Client) UpdateTask(ctx context.Context, baseURL string, t task.Task) error {
	return c.do(ctx, http.MethodPatch, joinURL(baseURL, "tasks", t.ID), taskUpdate{
		Status:    t.Status.String(),
		ResultKey: t.ResultKey,
		Error:     t.Error,
	})
}

func (c *Client) do(ctx context.Context, method, url string, payload interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("error marshalling payload: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("error creating request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("engine returned status %d: %s", resp.StatusCode, data)
	}
	return nil
}

func joinURL(base string, parts ...string) string {
	u := strings.TrimSuffix(base, "/")
	for _, p := range parts {
		u += "/" + p
	}
	return u
}
