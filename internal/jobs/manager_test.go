package jobs

import (
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"inkline/internal/domain"
	"inkline/internal/orchestrator"
	"inkline/internal/registry"
	"inkline/internal/store"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]registry.AgentDefinition{
		{AgentID: "seed", Name: "Seed", Layer: 0, Type: registry.TypeCreative, Outputs: []string{"premise"}},
		{AgentID: "grow", Name: "Grow", Layer: 1, Type: registry.TypeCreative, Outputs: []string{"outline"}, Dependencies: []string{"seed"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func quietLogger() *log.Logger { return log.New(&strings.Builder{}, "", 0) }

type fixture struct {
	orc      *orchestrator.Orchestrator
	manager  *Manager
	projects store.Store
	jobsSt   store.Store
}

func newFixture(t *testing.T, reg *registry.Registry, opts func(*Options)) *fixture {
	t.Helper()
	projects, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	jobsSt, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	orc := orchestrator.New(reg, nil, quietLogger())
	o := Options{
		Orchestrator:      orc,
		JobStore:          jobsSt,
		ProjectStore:      projects,
		MaxConcurrent:     1,
		HeartbeatInterval: time.Second,
		Logger:            quietLogger(),
	}
	if opts != nil {
		opts(&o)
	}
	return &fixture{orc: orc, manager: NewManager(o), projects: projects, jobsSt: jobsSt}
}

func TestRunPipelineJobSucceeds(t *testing.T) {
	f := newFixture(t, testRegistry(t), nil)
	p := f.orc.CreateProject("Harbor Lights", nil)

	job, err := f.manager.CreateRunPipelineJob(context.Background(), p.ProjectID, 0)
	if err != nil {
		t.Fatalf("CreateRunPipelineJob: %v", err)
	}
	if job.Status != domain.JobRunning {
		t.Fatalf("initial status = %s", job.Status)
	}
	f.manager.Wait()

	got, err := f.manager.Get(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.JobSucceeded {
		t.Fatalf("status = %s, error = %q", got.Status, got.Error)
	}
	if got.Progress["project_status"] != domain.ProjectCompleted {
		t.Fatalf("progress = %v", got.Progress)
	}
	if got.FinishedAt == "" {
		t.Fatal("finished_at not set")
	}

	// Project snapshot must be on disk after the run.
	raw, err := f.projects.LoadRaw(context.Background(), p.ProjectID)
	if err != nil {
		t.Fatalf("project not persisted: %v", err)
	}
	if raw["status"] != domain.ProjectCompleted {
		t.Fatalf("persisted status = %v", raw["status"])
	}
}

func TestOneActiveJobPerProject(t *testing.T) {
	reg := testRegistry(t)
	f := newFixture(t, reg, nil)
	p := f.orc.CreateProject("Harbor Lights", nil)

	release := make(chan struct{})
	f.orc.RegisterExecutor("seed", func(ctx context.Context, ec orchestrator.ExecContext) (map[string]any, error) {
		<-release
		return orchestrator.PlaceholderExecutor(ctx, ec)
	})

	job, err := f.manager.CreateRunPipelineJob(context.Background(), p.ProjectID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.manager.CreateRunPipelineJob(context.Background(), p.ProjectID, 0); !errors.Is(err, ErrActiveJob) {
		t.Fatalf("want ErrActiveJob, got %v", err)
	}

	if _, err := f.manager.Cancel(context.Background(), job.JobID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(release)
	f.manager.Wait()

	got, _ := f.manager.Get(context.Background(), job.JobID)
	if got.Status != domain.JobCancelled {
		t.Fatalf("status = %s", got.Status)
	}
	var sawCancel bool
	for _, ev := range got.Events {
		if ev.Kind == "cancel" {
			sawCancel = true
		}
	}
	if !sawCancel {
		t.Fatalf("no cancel event in %v", got.Events)
	}
}

func TestHeartbeatDuringLongStep(t *testing.T) {
	reg := testRegistry(t)
	f := newFixture(t, reg, func(o *Options) { o.HeartbeatInterval = 10 * time.Millisecond })
	p := f.orc.CreateProject("Harbor Lights", nil)

	f.orc.RegisterExecutor("seed", func(ctx context.Context, ec orchestrator.ExecContext) (map[string]any, error) {
		time.Sleep(80 * time.Millisecond)
		return orchestrator.PlaceholderExecutor(ctx, ec)
	})

	job, err := f.manager.CreateRunPipelineJob(context.Background(), p.ProjectID, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.manager.Wait()

	got, _ := f.manager.Get(context.Background(), job.JobID)
	if got.Status != domain.JobSucceeded {
		t.Fatalf("status = %s, error = %q", got.Status, got.Error)
	}
	var beats int
	for _, ev := range got.Events {
		if ev.Kind == "heartbeat" {
			beats++
		}
	}
	if beats == 0 {
		t.Fatal("no heartbeat events recorded during slow step")
	}
}

func TestAgentTimeoutDoesNotKillJob(t *testing.T) {
	reg, err := registry.New([]registry.AgentDefinition{
		{AgentID: "stall", Name: "Stall", Layer: 0, Type: registry.TypeGeneration, Outputs: []string{"text"}, RetryLimit: 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, reg, func(o *Options) { o.AgentTimeout = 20 * time.Millisecond })
	p := f.orc.CreateProject("Harbor Lights", nil)

	f.orc.RegisterExecutor("stall", func(ctx context.Context, ec orchestrator.ExecContext) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	job, err := f.manager.CreateRunPipelineJob(context.Background(), p.ProjectID, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.manager.Wait()

	got, _ := f.manager.Get(context.Background(), job.JobID)
	if got.Status != domain.JobSucceeded {
		t.Fatalf("status = %s, error = %q; timeouts should exhaust retries, not fail the job", got.Status, got.Error)
	}
	if got.Progress["project_status"] != domain.ProjectCompletedWithFailures {
		t.Fatalf("project status = %v", got.Progress["project_status"])
	}
	var timeouts int
	for _, ev := range got.Events {
		if ev.Kind == "timeout" {
			timeouts++
		}
	}
	if timeouts != 2 {
		t.Fatalf("timeout events = %d, want one per attempt", timeouts)
	}

	proj, _ := f.orc.Get(p.ProjectID)
	state := proj.FindAgent("stall")
	if state.Status != domain.AgentFailed || state.Attempts != 2 {
		t.Fatalf("agent state = %s attempts %d", state.Status, state.Attempts)
	}
}

func TestExecutorErrorFailsJob(t *testing.T) {
	reg := testRegistry(t)
	f := newFixture(t, reg, nil)
	p := f.orc.CreateProject("Harbor Lights", nil)

	f.orc.RegisterExecutor("seed", func(ctx context.Context, ec orchestrator.ExecContext) (map[string]any, error) {
		return nil, errors.New("backend exploded")
	})

	job, err := f.manager.CreateRunPipelineJob(context.Background(), p.ProjectID, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.manager.Wait()

	got, _ := f.manager.Get(context.Background(), job.JobID)
	if got.Status != domain.JobFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if !strings.Contains(got.Error, "backend exploded") {
		t.Fatalf("error = %q", got.Error)
	}
}

func TestRestartMarksRunningJobsInterrupted(t *testing.T) {
	reg := testRegistry(t)
	f := newFixture(t, reg, nil)
	p := f.orc.CreateProject("Harbor Lights", nil)
	if err := f.projects.SaveRaw(context.Background(), p.ProjectID, f.orc.ExportProject(p)); err != nil {
		t.Fatal(err)
	}

	stale := map[string]any{
		"job_id":     "job-stale",
		"project_id": p.ProjectID,
		"status":     "running",
		"created_at": "2026-01-01T00:00:00Z",
		"updated_at": "2026-01-01T00:00:00Z",
	}
	if err := f.jobsSt.SaveRaw(context.Background(), "job-stale", stale); err != nil {
		t.Fatal(err)
	}

	// Fresh manager and orchestrator, as after a process restart.
	orc2 := orchestrator.New(reg, nil, quietLogger())
	m2 := NewManager(Options{
		Orchestrator: orc2, JobStore: f.jobsSt, ProjectStore: f.projects,
		HeartbeatInterval: time.Second, Logger: quietLogger(),
	})
	if err := m2.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got, err := m2.Get(context.Background(), "job-stale")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.JobInterrupted {
		t.Fatalf("status = %s", got.Status)
	}

	resumed, err := m2.Resume(context.Background(), "job-stale", 0)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.ResumedFromJobID != "job-stale" {
		t.Fatalf("resumed_from = %q", resumed.ResumedFromJobID)
	}
	m2.Wait()

	final, _ := m2.Get(context.Background(), resumed.JobID)
	if final.Status != domain.JobSucceeded {
		t.Fatalf("resumed job status = %s, error = %q", final.Status, final.Error)
	}
}

func TestResumeRejectsSucceededJob(t *testing.T) {
	f := newFixture(t, testRegistry(t), nil)
	p := f.orc.CreateProject("Harbor Lights", nil)

	job, err := f.manager.CreateRunPipelineJob(context.Background(), p.ProjectID, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.manager.Wait()

	if _, err := f.manager.Resume(context.Background(), job.JobID, 0); !errors.Is(err, ErrNotResumable) {
		t.Fatalf("want ErrNotResumable, got %v", err)
	}
	if _, err := f.manager.Resume(context.Background(), "nope", 0); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("want ErrJobNotFound, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	f := newFixture(t, testRegistry(t), nil)
	p1 := f.orc.CreateProject("One", nil)
	p2 := f.orc.CreateProject("Two", nil)

	j1, err := f.manager.CreateRunPipelineJob(context.Background(), p1.ProjectID, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.manager.Wait()
	f.manager.Now = func() time.Time { return time.Now().Add(time.Hour) }
	j2, err := f.manager.CreateRunPipelineJob(context.Background(), p2.ProjectID, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.manager.Wait()

	all := f.manager.List("")
	if len(all) != 2 || all[0].JobID != j2.JobID {
		t.Fatalf("List order wrong: %v", all)
	}
	only := f.manager.List(p1.ProjectID)
	if len(only) != 1 || only[0].JobID != j1.JobID {
		t.Fatalf("List filter wrong: %v", only)
	}
}
