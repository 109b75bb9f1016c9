// Package jobs runs pipeline executions in the background with persisted,
// resumable state. This is an in-process runner, not a distributed queue: a
// job lives on the instance that started it, and restarts surface as
// interrupted jobs that can be resumed.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"inkline/internal/domain"
	"inkline/internal/events"
	"inkline/internal/orchestrator"
	"inkline/internal/store"
)

var (
	ErrJobNotFound  = errors.New("jobs: job not found")
	ErrActiveJob    = errors.New("jobs: project already has an active job")
	ErrNotResumable = errors.New("jobs: job is not resumable")
)

const (
	defaultMaxIterations = 200
	slotAcquireTimeout   = 10 * time.Second
	listLimit            = 200
)

type Options struct {
	Orchestrator *orchestrator.Orchestrator
	JobStore     store.Store
	ProjectStore store.Store

	// MaxConcurrent caps simultaneously running jobs; values below 1 mean 1.
	MaxConcurrent int
	// AgentTimeout bounds a single agent execution; zero disables the bound.
	AgentTimeout time.Duration
	// HeartbeatInterval is how often a running job persists a liveness event.
	HeartbeatInterval time.Duration
	Logger            *log.Logger
}

type Manager struct {
	orc          *orchestrator.Orchestrator
	jobStore     store.Store
	projectStore store.Store
	agentTimeout time.Duration
	heartbeat    time.Duration
	logger       *log.Logger

	Now func() time.Time

	mu   sync.Mutex
	jobs map[string]*domain.JobRecord
	ew   events.Writer

	sem chan struct{}
	wg  sync.WaitGroup
}

func NewManager(opts Options) *Manager {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	m := &Manager{
		orc:          opts.Orchestrator,
		jobStore:     opts.JobStore,
		projectStore: opts.ProjectStore,
		agentTimeout: opts.AgentTimeout,
		heartbeat:    opts.HeartbeatInterval,
		logger:       opts.Logger,
		Now:          time.Now,
		jobs:         make(map[string]*domain.JobRecord),
		sem:          make(chan struct{}, opts.MaxConcurrent),
	}
	m.ew = events.Writer{Now: func() time.Time { return m.Now() }}
	return m
}

// Wait blocks until every background job goroutine has exited. For shutdown
// and tests.
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) nowRFC3339() string { return m.Now().UTC().Format(time.RFC3339) }

// Restore reloads persisted projects into the orchestrator and persisted
// jobs into the manager. Jobs that were running when the process died become
// interrupted.
func (m *Manager) Restore(ctx context.Context) error {
	if err := m.loadPersistedProjects(ctx); err != nil {
		return err
	}
	return m.LoadPersistedJobs(ctx)
}

func (m *Manager) loadPersistedProjects(ctx context.Context) error {
	ids, err := m.projectStore.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	for _, id := range ids {
		raw, err := m.projectStore.LoadRaw(ctx, id)
		if err != nil {
			m.logger.Printf("skipping project %s: %v", id, err)
			continue
		}
		if _, err := m.orc.ImportProject(raw); err != nil {
			m.logger.Printf("skipping project %s: %v", id, err)
		}
	}
	return nil
}

// LoadPersistedJobs loads the job table from the store. A job persisted as
// running belongs to a dead process and is reclassified as interrupted.
func (m *Manager) LoadPersistedJobs(ctx context.Context) error {
	ids, err := m.jobStore.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		raw, err := m.jobStore.LoadRaw(ctx, id)
		if err != nil {
			m.logger.Printf("skipping job %s: %v", id, err)
			continue
		}
		job, err := jobFromRaw(raw)
		if err != nil {
			m.logger.Printf("skipping job %s: %v", id, err)
			continue
		}
		if job.Status == domain.JobRunning || job.Status == domain.JobQueued {
			job.Status = domain.JobInterrupted
			job.Error = "Job was interrupted (process restart). Resume it to continue."
			job.FinishedAt = m.nowRFC3339()
			job.UpdatedAt = job.FinishedAt
			job.Events = m.ew.Append(job.Events, "interrupted", "Process restarted while job was running", nil)
		}
		m.jobs[job.JobID] = job
		m.persistLocked(ctx, job)
	}
	return nil
}

// CreateRunPipelineJob starts a background job that drives the project
// through its available agents until completion, blockage, or cancellation.
func (m *Manager) CreateRunPipelineJob(ctx context.Context, projectID string, maxIterations int) (*domain.JobRecord, error) {
	return m.startJob(ctx, projectID, maxIterations, "")
}

// Resume starts a new job for the project of a finished job. The project
// state is already persisted; the new run simply continues from it.
func (m *Manager) Resume(ctx context.Context, jobID string, maxIterations int) (*domain.JobRecord, error) {
	prior, err := m.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !prior.Status.Resumable() {
		return nil, fmt.Errorf("%w: job %s has status %s", ErrNotResumable, jobID, prior.Status)
	}
	return m.startJob(ctx, prior.ProjectID, maxIterations, prior.JobID)
}

func (m *Manager) startJob(ctx context.Context, projectID string, maxIterations int, resumedFrom string) (*domain.JobRecord, error) {
	if maxIterations < 1 {
		maxIterations = defaultMaxIterations
	}
	if _, ok := m.orc.Get(projectID); !ok {
		return nil, fmt.Errorf("jobs: %w", orchestrator.ErrProjectNotFound)
	}
	if active := m.FindActiveJobForProject(projectID); active != nil {
		return nil, fmt.Errorf("%w: %s", ErrActiveJob, active.JobID)
	}

	now := m.nowRFC3339()
	job := &domain.JobRecord{
		JobID:            uuid.NewString(),
		ProjectID:        projectID,
		Status:           domain.JobRunning,
		CreatedAt:        now,
		UpdatedAt:        now,
		StartedAt:        now,
		ResumedFromJobID: resumedFrom,
	}
	msg := "Job scheduled"
	if resumedFrom != "" {
		msg = "Job scheduled (resume)"
		job.Events = m.ew.Append(job.Events, "start", msg, map[string]any{"resumed_from": resumedFrom})
	} else {
		job.Events = m.ew.Append(job.Events, "start", msg, nil)
	}

	m.mu.Lock()
	m.jobs[job.JobID] = job
	m.persistLocked(ctx, job)
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runPipeline(job.JobID, maxIterations)
	return snapshot(job), nil
}

// Cancel flags a job for cancellation. The running loop observes the flag
// before its next step; the persisted flag also reaches loops reading the
// job from disk.
func (m *Manager) Cancel(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		raw, err := m.jobStore.LoadRaw(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		job, err = jobFromRaw(raw)
		if err != nil {
			return nil, err
		}
		m.jobs[jobID] = job
	}
	job.CancelRequested = true
	job.UpdatedAt = m.nowRFC3339()
	m.persistLocked(ctx, job)
	return snapshot(job), nil
}

// Get returns a job by id, consulting the store when the manager has no
// in-memory record.
func (m *Manager) Get(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	m.mu.Lock()
	if job, ok := m.jobs[jobID]; ok {
		defer m.mu.Unlock()
		return snapshot(job), nil
	}
	m.mu.Unlock()

	raw, err := m.jobStore.LoadRaw(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, err
	}
	job, err := jobFromRaw(raw)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.jobs[job.JobID] = job
	m.mu.Unlock()
	return snapshot(job), nil
}

// List returns known jobs, newest first, optionally filtered by project.
func (m *Manager) List(projectID string) []*domain.JobRecord {
	m.mu.Lock()
	var out []*domain.JobRecord
	for _, job := range m.jobs {
		if projectID != "" && job.ProjectID != projectID {
			continue
		}
		out = append(out, snapshot(job))
	}
	m.mu.Unlock()

	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt > out[j-1].CreatedAt; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	if len(out) > listLimit {
		out = out[:listLimit]
	}
	return out
}

// FindActiveJobForProject returns the queued or running job for a project,
// if any.
func (m *Manager) FindActiveJobForProject(projectID string) *domain.JobRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.ProjectID == projectID && job.Status.Active() {
			return snapshot(job)
		}
	}
	return nil
}

func (m *Manager) runPipeline(jobID string, maxIterations int) {
	defer m.wg.Done()
	ctx := context.Background()

	select {
	case m.sem <- struct{}{}:
	case <-time.After(slotAcquireTimeout):
		m.finish(ctx, jobID, domain.JobFailed, "Could not acquire job slot (max_concurrent_jobs limit). Try again later.")
		return
	}
	defer func() { <-m.sem }()

	iterations := 0
	for iterations < maxIterations {
		if m.cancelledPersisted(ctx, jobID) {
			m.mu.Lock()
			job := m.jobs[jobID]
			job.Status = domain.JobCancelled
			job.FinishedAt = m.nowRFC3339()
			job.UpdatedAt = job.FinishedAt
			job.Events = m.ew.Append(job.Events, "cancel", "Cancellation requested; stopping.", nil)
			m.persistLocked(ctx, job)
			m.mu.Unlock()
			return
		}

		project, ok := m.orc.Get(m.projectID(jobID))
		if !ok {
			m.finish(ctx, jobID, domain.JobFailed, "Project no longer present.")
			return
		}

		available := m.orc.AvailableAgents(project)
		if len(available) == 0 {
			m.orc.ClassifyFinalStatus(project)
			m.finishTerminal(ctx, jobID, project, iterations)
			return
		}

		agentID := available[0]
		m.mu.Lock()
		job := m.jobs[jobID]
		job.Events = m.ew.Append(job.Events, "step", fmt.Sprintf("Executing agent %s", agentID), map[string]any{"agent_id": agentID})
		m.persistLocked(ctx, job)
		m.mu.Unlock()

		output, err := m.executeWithHeartbeat(ctx, jobID, project, agentID)
		m.saveProject(ctx, project)

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				// The agent stays retryable up to its limit; the job itself
				// keeps going.
				m.mu.Lock()
				job := m.jobs[jobID]
				job.Events = m.ew.Append(job.Events, "timeout", fmt.Sprintf("Agent %s timed out after %s", agentID, m.agentTimeout), map[string]any{"agent_id": agentID})
				m.persistLocked(ctx, job)
				m.mu.Unlock()
			} else {
				m.finish(ctx, jobID, domain.JobFailed, fmt.Sprintf("Agent %s failed: %v", agentID, err))
				return
			}
		}

		iterations++
		status := m.orc.Status(project)
		m.mu.Lock()
		job = m.jobs[jobID]
		progress := map[string]any{
			"iterations":             iterations,
			"last_agent":             agentID,
			"project_status":         status.Status,
			"current_layer":          status.CurrentLayer,
			"current_agent":          status.CurrentAgent,
			"available_agents_count": len(status.AvailableAgents),
		}
		if output != nil && output.GateResult != nil {
			progress["last_gate_passed"] = output.GateResult.Passed
			progress["last_gate_message"] = output.GateResult.Message
		} else {
			progress["last_gate_passed"] = false
		}
		job.Progress = progress
		job.UpdatedAt = m.nowRFC3339()
		m.persistLocked(ctx, job)
		m.mu.Unlock()
	}

	m.finish(ctx, jobID, domain.JobFailed, fmt.Sprintf("Max iterations reached (%d).", maxIterations))
}

// executeWithHeartbeat runs one agent step, emitting heartbeat events while
// the step is in flight so observers can tell a long step from a dead job.
func (m *Manager) executeWithHeartbeat(ctx context.Context, jobID string, project *domain.Project, agentID string) (*domain.AgentOutput, error) {
	execCtx := ctx
	cancel := func() {}
	if m.agentTimeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, m.agentTimeout)
	}
	defer cancel()

	type result struct {
		output *domain.AgentOutput
		err    error
	}
	done := make(chan result, 1)
	go func() {
		out, err := m.orc.ExecuteAgent(execCtx, project, agentID, nil)
		done <- result{out, err}
	}()

	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case res := <-done:
			if res.err != nil && execCtx.Err() != nil {
				return res.output, context.DeadlineExceeded
			}
			return res.output, res.err
		case <-ticker.C:
			m.mu.Lock()
			job := m.jobs[jobID]
			job.Events = m.ew.Append(job.Events, "heartbeat", fmt.Sprintf("Agent %s still running", agentID), map[string]any{"agent_id": agentID})
			job.UpdatedAt = m.nowRFC3339()
			m.persistLocked(ctx, job)
			m.mu.Unlock()
		}
	}
}

func (m *Manager) finishTerminal(ctx context.Context, jobID string, project *domain.Project, iterations int) {
	m.saveProject(ctx, project)
	status := m.orc.Status(project)

	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[jobID]
	job.Progress = map[string]any{
		"iterations":     iterations,
		"project_status": status.Status,
		"current_layer":  status.CurrentLayer,
		"current_agent":  status.CurrentAgent,
	}
	switch status.Status {
	case domain.ProjectCompleted, domain.ProjectCompletedWithFailures:
		job.Status = domain.JobSucceeded
		job.Events = m.ew.Append(job.Events, "complete", "Project completed", nil)
	default:
		job.Status = domain.JobBlocked
		job.Error = "Project blocked (no available agents)."
		diag := m.orc.BlockedDiagnostics(project)
		job.Progress["diagnostics"] = diag
		job.Events = m.ew.Append(job.Events, "blocked", "Project blocked: no available agents", nil)
	}
	job.FinishedAt = m.nowRFC3339()
	job.UpdatedAt = job.FinishedAt
	m.persistLocked(ctx, job)
}

func (m *Manager) finish(ctx context.Context, jobID string, status domain.JobStatus, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[jobID]
	job.Status = status
	job.Error = errMsg
	job.FinishedAt = m.nowRFC3339()
	job.UpdatedAt = job.FinishedAt
	job.Events = m.ew.Append(job.Events, "error", errMsg, nil)
	m.persistLocked(ctx, job)
}

// cancelledPersisted reads the persisted cancel flag so a cancel issued
// against the store alone, from another process, still stops the loop.
func (m *Manager) cancelledPersisted(ctx context.Context, jobID string) bool {
	raw, err := m.jobStore.LoadRaw(ctx, jobID)
	if err == nil {
		if flag, _ := raw["cancel_requested"].(bool); flag {
			m.mu.Lock()
			if job, ok := m.jobs[jobID]; ok {
				job.CancelRequested = true
			}
			m.mu.Unlock()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	return ok && job.CancelRequested
}

func (m *Manager) projectID(jobID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok {
		return job.ProjectID
	}
	return ""
}

func (m *Manager) saveProject(ctx context.Context, project *domain.Project) {
	if err := m.projectStore.SaveRaw(ctx, project.ProjectID, m.orc.ExportProject(project)); err != nil {
		m.logger.Printf("persisting project %s: %v", project.ProjectID, err)
	}
}

// persistLocked writes the job to the store. Callers hold m.mu.
func (m *Manager) persistLocked(ctx context.Context, job *domain.JobRecord) {
	if err := m.jobStore.SaveRaw(ctx, job.JobID, jobToRaw(job)); err != nil {
		m.logger.Printf("persisting job %s: %v", job.JobID, err)
	}
}

func jobToRaw(job *domain.JobRecord) map[string]any {
	raw, err := json.Marshal(job)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func jobFromRaw(data map[string]any) (*domain.JobRecord, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var job domain.JobRecord
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job record: %w", err)
	}
	if job.JobID == "" {
		return nil, errors.New("job record has no job_id")
	}
	return &job, nil
}

func snapshot(job *domain.JobRecord) *domain.JobRecord {
	cp := *job
	cp.Events = append([]domain.JobEvent(nil), job.Events...)
	if job.Progress != nil {
		cp.Progress = make(map[string]any, len(job.Progress))
		for k, v := range job.Progress {
			cp.Progress[k] = v
		}
	}
	return &cp
}
