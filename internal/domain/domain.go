package domain

// Agent and layer statuses are plain strings so they serialize naturally and
// survive the export/import round trip without enum mapping tables.

type AgentStatus string

const (
	AgentPending AgentStatus = "pending"
	AgentRunning AgentStatus = "running"
	AgentPassed  AgentStatus = "passed"
	AgentFailed  AgentStatus = "failed"
	AgentSkipped AgentStatus = "skipped"
)

type LayerStatus string

const (
	LayerLocked     LayerStatus = "locked"
	LayerAvailable  LayerStatus = "available"
	LayerInProgress LayerStatus = "in_progress"
	LayerCompleted  LayerStatus = "completed"
	LayerFailed     LayerStatus = "failed"
)

// Project-level statuses. CompletedWithFailures means every layer reached a
// terminal state but at least one agent failed permanently.
const (
	ProjectInitialized           = "initialized"
	ProjectBlocked               = "blocked"
	ProjectCompleted             = "completed"
	ProjectCompletedWithFailures = "completed_with_failures"
	ProjectFailed                = "failed"
)

// GateResult is produced fresh by every validation call and never mutated.
type GateResult struct {
	Passed    bool           `json:"passed"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp string         `json:"timestamp,omitempty" format:"date-time"`
}

// AgentOutput records one execution attempt. New attempts produce new values;
// an output is never modified after it is appended to the history.
type AgentOutput struct {
	AgentID    string         `json:"agent_id"`
	Content    map[string]any `json:"content"`
	GateResult *GateResult    `json:"gate_result,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  string         `json:"created_at" format:"date-time"`
	Version    int            `json:"version"`
}

type AgentState struct {
	AgentID       string        `json:"agent_id"`
	Name          string        `json:"name"`
	Layer         int           `json:"layer"`
	Status        AgentStatus   `json:"status" enum:"pending,running,passed,failed,skipped"`
	Attempts      int           `json:"attempts"`
	LastError     string        `json:"last_error,omitempty"`
	CurrentOutput *AgentOutput  `json:"current_output,omitempty"`
	Outputs       []AgentOutput `json:"outputs,omitempty"`
	Dependencies  []string      `json:"dependencies,omitempty"`
}

type LayerState struct {
	LayerID     int                    `json:"layer_id"`
	Name        string                 `json:"name"`
	Status      LayerStatus            `json:"status" enum:"locked,available,in_progress,completed,failed"`
	Agents      map[string]*AgentState `json:"agents"`
	StartedAt   string                 `json:"started_at,omitempty" format:"date-time"`
	CompletedAt string                 `json:"completed_at,omitempty" format:"date-time"`
}

// Project is the DAG instance. It is created once, owned by the orchestrator's
// in-memory table, mutated in place by agent executions and never deleted by
// the core.
type Project struct {
	ProjectID       string              `json:"project_id"`
	Title           string              `json:"title"`
	UserConstraints map[string]any      `json:"user_constraints,omitempty"`
	Layers          map[int]*LayerState `json:"layers"`
	CurrentLayer    int                 `json:"current_layer"`
	CurrentAgent    string              `json:"current_agent,omitempty"`
	Status          string              `json:"status"`
	Manuscript      map[string]any      `json:"manuscript,omitempty"`
	CreatedAt       string              `json:"created_at" format:"date-time"`
	UpdatedAt       string              `json:"updated_at" format:"date-time"`
}

// FindAgent locates an agent's state across all layers.
func (p *Project) FindAgent(agentID string) *AgentState {
	for _, layer := range p.Layers {
		if a, ok := layer.Agents[agentID]; ok {
			return a
		}
	}
	return nil
}

// LayerIDs returns the project's layer ids in ascending order.
func (p *Project) LayerIDs() []int {
	ids := make([]int, 0, len(p.Layers))
	for id := range p.Layers {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

type JobStatus string

const (
	JobQueued      JobStatus = "queued"
	JobRunning     JobStatus = "running"
	JobSucceeded   JobStatus = "succeeded"
	JobFailed      JobStatus = "failed"
	JobCancelled   JobStatus = "cancelled"
	JobInterrupted JobStatus = "interrupted"
	JobBlocked     JobStatus = "blocked"
)

// Active reports whether the status still owns the project's scheduling loop.
func (s JobStatus) Active() bool {
	return s == JobQueued || s == JobRunning
}

// Resumable reports whether a new job may be started from this record.
func (s JobStatus) Resumable() bool {
	switch s {
	case JobInterrupted, JobFailed, JobBlocked, JobCancelled:
		return true
	}
	return false
}

// JobEvent is one entry in a job's bounded event log.
type JobEvent struct {
	TS      string         `json:"ts" format:"date-time"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// JobRecord tracks one background pipeline run. Identity is immutable; the
// mutable fields are persisted after every state change.
type JobRecord struct {
	JobID            string         `json:"job_id"`
	ProjectID        string         `json:"project_id"`
	Status           JobStatus      `json:"status" enum:"queued,running,succeeded,failed,cancelled,interrupted,blocked"`
	CreatedAt        string         `json:"created_at" format:"date-time"`
	UpdatedAt        string         `json:"updated_at" format:"date-time"`
	StartedAt        string         `json:"started_at,omitempty" format:"date-time"`
	FinishedAt       string         `json:"finished_at,omitempty" format:"date-time"`
	Error            string         `json:"error,omitempty"`
	Progress         map[string]any `json:"progress,omitempty"`
	Events           []JobEvent     `json:"events,omitempty"`
	CancelRequested  bool           `json:"cancel_requested"`
	ResumedFromJobID string         `json:"resumed_from_job_id,omitempty"`
}
