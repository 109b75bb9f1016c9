package inklinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Inkline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no bearer token is set; the server
	// accepts it only when legacy header auth is enabled.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// Project is the API project summary model.
type Project struct {
	ProjectID    string `json:"project_id"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	CurrentLayer int    `json:"current_layer"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// Job is the API job model.
type Job struct {
	JobID            string         `json:"job_id"`
	ProjectID        string         `json:"project_id"`
	Status           string         `json:"status"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
	StartedAt        string         `json:"started_at,omitempty"`
	FinishedAt       string         `json:"finished_at,omitempty"`
	Error            string         `json:"error,omitempty"`
	Progress         map[string]any `json:"progress,omitempty"`
	CancelRequested  bool           `json:"cancel_requested"`
	ResumedFromJobID string         `json:"resumed_from_job_id,omitempty"`
}

// Terminal reports whether the job has stopped running.
func (j Job) Terminal() bool {
	switch j.Status {
	case "queued", "running":
		return false
	}
	return true
}

// AgentExecution is the result of running a single agent.
type AgentExecution struct {
	AgentID     string         `json:"agent_id"`
	GatePassed  bool           `json:"gate_passed"`
	GateMessage string         `json:"gate_message"`
	Attempts    int            `json:"attempts"`
	Status      string         `json:"status"`
	Content     map[string]any `json:"content,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a manuscript project.
func (c *Client) CreateProject(ctx context.Context, title string, constraints map[string]any) (Project, error) {
	body := map[string]any{"title": title}
	if constraints != nil {
		body["constraints"] = constraints
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v1/projects", body, &resp)
	return resp, err
}

// ListProjects returns all projects.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "v1/projects", nil, &resp)
	return resp, err
}

// ProjectStatus returns the full per-layer status document.
func (c *Client) ProjectStatus(ctx context.Context, projectID string) (map[string]any, error) {
	var resp map[string]any
	endpoint := fmt.Sprintf("v1/projects/%s/status", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AvailableAgents returns agents ready to run for a project.
func (c *Client) AvailableAgents(ctx context.Context, projectID string) ([]string, error) {
	var resp struct {
		Agents []string `json:"agents"`
	}
	endpoint := fmt.Sprintf("v1/projects/%s/agents/available", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Agents, err
}

// ExecuteAgent runs one agent synchronously.
func (c *Client) ExecuteAgent(ctx context.Context, projectID, agentID string) (AgentExecution, error) {
	var resp AgentExecution
	endpoint := fmt.Sprintf("v1/projects/%s/agents/%s/execute", url.PathEscape(projectID), url.PathEscape(agentID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// StartJob starts a background pipeline run. A maxIterations of 0 uses the
// server default.
func (c *Client) StartJob(ctx context.Context, projectID string, maxIterations int) (Job, error) {
	body := map[string]any{}
	if maxIterations > 0 {
		body["max_iterations"] = maxIterations
	}
	var resp Job
	endpoint := fmt.Sprintf("v1/projects/%s/jobs", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// GetJob fetches a job by id.
func (c *Client) GetJob(ctx context.Context, jobID string) (Job, error) {
	var resp Job
	endpoint := fmt.Sprintf("v1/jobs/%s", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CancelJob requests cancellation; the job stops at the next step boundary.
func (c *Client) CancelJob(ctx context.Context, jobID string) (Job, error) {
	var resp Job
	endpoint := fmt.Sprintf("v1/jobs/%s/cancel", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// ResumeJob continues a stopped job as a new job.
func (c *Client) ResumeJob(ctx context.Context, jobID string, maxIterations int) (Job, error) {
	body := map[string]any{}
	if maxIterations > 0 {
		body["max_iterations"] = maxIterations
	}
	var resp Job
	endpoint := fmt.Sprintf("v1/jobs/%s/resume", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// WaitForJob polls until the job reaches a terminal status or the context is
// done.
func (c *Client) WaitForJob(ctx context.Context, jobID string, interval time.Duration) (Job, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	for {
		job, err := c.GetJob(ctx, jobID)
		if err != nil {
			return Job{}, err
		}
		if job.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Manuscript returns the assembled manuscript document.
func (c *Client) Manuscript(ctx context.Context, projectID string) (map[string]any, error) {
	var resp map[string]any
	endpoint := fmt.Sprintf("v1/projects/%s/manuscript", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
