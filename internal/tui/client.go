package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mvold/hazel/internal/models"
)

// Client talks to the daemon's HTTP API for the dashboard.
type Client struct {
	addr string
	http *http.Client
}

// NewClient creates an API client for the TUI.
func NewClient(addr string) *Client {
	return &Client{
		addr: addr,
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

// Status is the daemon status snapshot the dashboard renders.
type Status struct {
	Mode        models.ModeState        `json:"mode"`
	Transitions []models.ModeTransition `json:"transitions"`
	Jobs        int                     `json:"jobs"`
}

// GetStatus fetches the mode snapshot.
func (c *Client) GetStatus() (*Status, error) {
	var status Status
	if err := c.get("/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListTasks fetches recent tasks.
func (c *Client) ListTasks(limit int) ([]models.Task, error) {
	var tasks []models.Task
	if err := c.get(fmt.Sprintf("/tasks?limit=%d", limit), &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListJobs fetches scheduled jobs.
func (c *Client) ListJobs() ([]models.Job, error) {
	var jobs []models.Job
	if err := c.get("/jobs", &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Send posts an operator message and returns the reply. No timeout: a
// dispatched task blocks until the harness finishes.
func (c *Client) Send(text string) (string, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", err
	}

	client := &http.Client{}
	resp, err := client.Post(c.addr+"/message", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, string(raw))
	}

	var result map[string]string
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", err
	}
	return result["reply"], nil
}

func (c *Client) get(path string, out interface{}) error {
	resp, err := c.http.Get(c.addr + path)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(raw))
	}
	return json.Unmarshal(raw, out)
}
