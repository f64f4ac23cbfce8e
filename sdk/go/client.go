// Package tpmsdk is a small HTTP client for integrations that poll the TPM
// API, such as PLC gateways checking the run permissive.
package tpmsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal TPM HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client authenticating with an API key.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		APIKey:   apiKey,
		Timeout:  10 * time.Second,
	}
}

// Task is the API task view (partial).
type Task struct {
	ID              int64  `json:"id"`
	Name            string `json:"task_name"`
	IntervalType    string `json:"interval_type"`
	IntervalDays    int    `json:"interval_days"`
	AssignedShift   string `json:"assigned_shift,omitempty"`
	Category        string `json:"category,omitempty"`
	Priority        string `json:"priority"`
	Status          string `json:"status"`
	NextDue         string `json:"next_due"`
	HoursUntilDue   int    `json:"hours_until_due"`
	LastCompletedAt string `json:"last_completed_at,omitempty"`
	LastCompletedBy string `json:"last_completed_by,omitempty"`
}

// Completion is one recorded completion.
type Completion struct {
	ID          int64  `json:"id"`
	TaskID      int64  `json:"task_id"`
	CompletedBy string `json:"completed_by"`
	CompletedAt string `json:"completed_at"`
	Notes       string `json:"notes,omitempty"`
}

type ActiveShift struct {
	Shift     string `json:"shift"`
	Matched   bool   `json:"matched"`
	Note      string `json:"note,omitempty"`
	Timestamp string `json:"timestamp"`
}

type Permissive struct {
	Shift         string   `json:"shift"`
	RunPermissive bool     `json:"run_permissive"`
	Reason        string   `json:"reason,omitempty"`
	OverdueTasks  []string `json:"overdue_tasks,omitempty"`
	Timestamp     string   `json:"timestamp"`
}

// Event is an event log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Actor      string `json:"actor"`
	Payload    string `json:"payload_json"`
}

// TaskFilter narrows ListTasks. Empty fields are ignored.
type TaskFilter struct {
	Shift       string
	MyShiftOnly bool
	Status      string
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("tpm api: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("tpm api: %d: %s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a bearer token and keeps it on the client.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/login", map[string]string{"username": username, "password": password}, &out); err != nil {
		return err
	}
	c.BearerToken = out.AccessToken
	return nil
}

func (c *Client) ListTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	q := url.Values{}
	if f.Shift != "" {
		q.Set("shift", f.Shift)
	}
	if f.MyShiftOnly {
		q.Set("my_shift_only", "true")
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	endpoint := "tasks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var out []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &out)
	return out, err
}

func (c *Client) GetTask(ctx context.Context, id int64) (Task, error) {
	var out Task
	err := c.do(ctx, http.MethodGet, "tasks/"+strconv.FormatInt(id, 10), nil, &out)
	return out, err
}

func (c *Client) CompleteTask(ctx context.Context, id int64, notes string) (Completion, error) {
	var out Completion
	err := c.do(ctx, http.MethodPost, "tasks/"+strconv.FormatInt(id, 10)+"/complete", map[string]string{"notes": notes}, &out)
	return out, err
}

// UndoCompletion removes the latest completion of a task.
func (c *Client) UndoCompletion(ctx context.Context, id int64) (Completion, error) {
	var out Completion
	err := c.do(ctx, http.MethodPost, "tasks/"+strconv.FormatInt(id, 10)+"/incomplete", nil, &out)
	return out, err
}

func (c *Client) ActiveShift(ctx context.Context) (ActiveShift, error) {
	var out ActiveShift
	err := c.do(ctx, http.MethodGet, "shifts/active", nil, &out)
	return out, err
}

// RunPermissive asks whether production may run. An empty shift uses the
// server's default shift.
func (c *Client) RunPermissive(ctx context.Context, shift string) (Permissive, error) {
	endpoint := "integration/run-permissive"
	if shift != "" {
		endpoint += "?shift=" + url.QueryEscape(shift)
	}
	var out Permissive
	err := c.do(ctx, http.MethodGet, endpoint, nil, &out)
	return out, err
}

// Events returns up to limit events after the cursor.
func (c *Client) Events(ctx context.Context, after int64, limit int) ([]Event, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatInt(after, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []Event
	err := c.do(ctx, http.MethodGet, "events?"+q.Encode(), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base()+"/"+strings.TrimLeft(endpoint, "/"), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
