package server

import (
	"inkline/internal/domain"
	"inkline/internal/registry"
)

// Request payloads

type CreateProjectRequest struct {
	Title       string         `json:"title"`
	Constraints map[string]any `json:"constraints,omitempty"`
}

type StartJobRequest struct {
	MaxIterations int `json:"max_iterations,omitempty" minimum:"0"`
}

// Response payloads

type ProjectSummaryResponse struct {
	ProjectID    string `json:"project_id"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	CurrentLayer int    `json:"current_layer"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

type AgentExecutionResponse struct {
	AgentID     string         `json:"agent_id"`
	GatePassed  bool           `json:"gate_passed"`
	GateMessage string         `json:"gate_message"`
	Attempts    int            `json:"attempts"`
	Status      string         `json:"status"`
	Content     map[string]any `json:"content,omitempty"`
}

type AgentResetResponse struct {
	AgentID string `json:"agent_id"`
	Status  string `json:"status"`
	Layer   int    `json:"layer"`
}

type AvailableAgentsResponse struct {
	ProjectID string   `json:"project_id"`
	Agents    []string `json:"agents"`
}

type RegistryResponse struct {
	Agents []registry.AgentDefinition `json:"agents"`
	Layers []LayerInfo                `json:"layers"`
}

type LayerInfo struct {
	Layer int    `json:"layer"`
	Name  string `json:"name"`
}

type JobResponse struct {
	JobID            string            `json:"job_id"`
	ProjectID        string            `json:"project_id"`
	Status           string            `json:"status"`
	CreatedAt        string            `json:"created_at" format:"date-time"`
	UpdatedAt        string            `json:"updated_at" format:"date-time"`
	StartedAt        string            `json:"started_at,omitempty" format:"date-time"`
	FinishedAt       string            `json:"finished_at,omitempty" format:"date-time"`
	Error            string            `json:"error,omitempty"`
	Progress         map[string]any    `json:"progress,omitempty"`
	Events           []domain.JobEvent `json:"events,omitempty"`
	CancelRequested  bool              `json:"cancel_requested"`
	ResumedFromJobID string            `json:"resumed_from_job_id,omitempty"`
}

func projectSummary(p *domain.Project) ProjectSummaryResponse {
	return ProjectSummaryResponse{
		ProjectID:    p.ProjectID,
		Title:        p.Title,
		Status:       p.Status,
		CurrentLayer: p.CurrentLayer,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func jobResponse(j *domain.JobRecord) JobResponse {
	return JobResponse{
		JobID:            j.JobID,
		ProjectID:        j.ProjectID,
		Status:           string(j.Status),
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
		StartedAt:        j.StartedAt,
		FinishedAt:       j.FinishedAt,
		Error:            j.Error,
		Progress:         j.Progress,
		Events:           j.Events,
		CancelRequested:  j.CancelRequested,
		ResumedFromJobID: j.ResumedFromJobID,
	}
}

func executionResponse(agentID string, state *domain.AgentState, output *domain.AgentOutput) AgentExecutionResponse {
	resp := AgentExecutionResponse{AgentID: agentID}
	if state != nil {
		resp.Attempts = state.Attempts
		resp.Status = string(state.Status)
	}
	if output != nil {
		resp.Content = output.Content
		if output.GateResult != nil {
			resp.GatePassed = output.GateResult.Passed
			resp.GateMessage = output.GateResult.Message
		}
	}
	return resp
}

func mapProjects(items []*domain.Project) []ProjectSummaryResponse {
	out := make([]ProjectSummaryResponse, 0, len(items))
	for _, p := range items {
		out = append(out, projectSummary(p))
	}
	return out
}

func mapJobs(items []*domain.JobRecord) []JobResponse {
	out := make([]JobResponse, 0, len(items))
	for _, j := range items {
		out = append(out, jobResponse(j))
	}
	return out
}
