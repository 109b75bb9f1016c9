package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"inkline/internal/jobs"
	"inkline/internal/orchestrator"
	"inkline/internal/store"
)

// Config for the HTTP API handler.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Jobs         *jobs.Manager
	ProjectStore store.Store
	BasePath     string
	Auth         AuthConfig

	// MaxIterations bounds a pipeline job when the request does not set one.
	MaxIterations int
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"project not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Inkline API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Orchestrator == nil || cfg.Jobs == nil || cfg.ProjectStore == nil {
		return nil, errors.New("server: orchestrator, jobs and project store are required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 200
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	auth := newAuthenticator(basePath, cfg.Auth)
	router.Use(auth.middleware)
	hcfg := huma.DefaultConfig("Inkline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerRegistry(group, cfg)
	registerProjects(group, cfg)
	registerAgents(group, cfg)
	registerJobs(group, cfg)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, orchestrator.ErrProjectNotFound),
		errors.Is(err, orchestrator.ErrAgentNotFound),
		errors.Is(err, orchestrator.ErrUnknownAgent),
		errors.Is(err, jobs.ErrJobNotFound),
		errors.Is(err, store.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, jobs.ErrActiveJob):
		return newAPIError(http.StatusConflict, "active_job", err.Error(), nil)
	case errors.Is(err, jobs.ErrNotResumable):
		return newAPIError(http.StatusConflict, "not_resumable", err.Error(), nil)
	case errors.Is(err, orchestrator.ErrNotFailed):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerRegistry(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "get-registry",
		Method:      http.MethodGet,
		Path:        "/registry",
		Summary:     "List agent definitions and layers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RegistryResponse `json:"body"`
	}, error) {
		reg := cfg.Orchestrator.Registry()
		resp := RegistryResponse{}
		for _, id := range reg.IDs() {
			def, _ := reg.Get(id)
			resp.Agents = append(resp.Agents, def)
		}
		for _, layer := range reg.Layers() {
			resp.Layers = append(resp.Layers, LayerInfo{Layer: layer, Name: reg.LayerName(layer)})
		}
		return &struct {
			Body RegistryResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerProjects(api huma.API, cfg Config) {
	o := cfg.Orchestrator

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectSummaryResponse `json:"body"`
	}, error) {
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p := o.CreateProject(input.Body.Title, input.Body.Constraints)
		if err := cfg.ProjectStore.SaveRaw(ctx, p.ProjectID, o.ExportProject(p)); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectSummaryResponse `json:"body"`
		}{Body: projectSummary(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectSummaryResponse `json:"body"`
	}, error) {
		return &struct {
			Body []ProjectSummaryResponse `json:"body"`
		}{Body: mapProjects(o.Projects())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project-status",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/status",
		Summary:     "Project status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body orchestrator.ProjectStatus `json:"body"`
	}, error) {
		p, ok := o.Get(input.ProjectID)
		if !ok {
			return nil, handleError(fmt.Errorf("%w: %s", orchestrator.ErrProjectNotFound, input.ProjectID))
		}
		return &struct {
			Body orchestrator.ProjectStatus `json:"body"`
		}{Body: o.Status(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project-diagnostics",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/diagnostics",
		Summary:     "Explain why a project is stuck",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body orchestrator.Diagnostics `json:"body"`
	}, error) {
		p, ok := o.Get(input.ProjectID)
		if !ok {
			return nil, handleError(fmt.Errorf("%w: %s", orchestrator.ErrProjectNotFound, input.ProjectID))
		}
		return &struct {
			Body orchestrator.Diagnostics `json:"body"`
		}{Body: o.BlockedDiagnostics(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/export",
		Summary:     "Export full project state",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		p, ok := o.Get(input.ProjectID)
		if !ok {
			return nil, handleError(fmt.Errorf("%w: %s", orchestrator.ErrProjectNotFound, input.ProjectID))
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: o.ExportProject(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "import-project",
		Method:        http.MethodPost,
		Path:          "/projects/import",
		Summary:       "Import a project from exported state",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body map[string]any `json:"body"`
	}) (*struct {
		Body ProjectSummaryResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := o.ImportProject(input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		if err := cfg.ProjectStore.SaveRaw(ctx, p.ProjectID, o.ExportProject(p)); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectSummaryResponse `json:"body"`
		}{Body: projectSummary(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-manuscript",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/manuscript",
		Summary:     "Export the manuscript",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		p, ok := o.Get(input.ProjectID)
		if !ok {
			return nil, handleError(fmt.Errorf("%w: %s", orchestrator.ErrProjectNotFound, input.ProjectID))
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: o.ExportManuscript(p)}, nil
	})
}

func registerAgents(api huma.API, cfg Config) {
	o := cfg.Orchestrator

	huma.Register(api, huma.Operation{
		OperationID: "list-available-agents",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/agents/available",
		Summary:     "List agents ready to run",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body AvailableAgentsResponse `json:"body"`
	}, error) {
		p, ok := o.Get(input.ProjectID)
		if !ok {
			return nil, handleError(fmt.Errorf("%w: %s", orchestrator.ErrProjectNotFound, input.ProjectID))
		}
		agents := o.AvailableAgents(p)
		if agents == nil {
			agents = []string{}
		}
		return &struct {
			Body AvailableAgentsResponse `json:"body"`
		}{Body: AvailableAgentsResponse{ProjectID: p.ProjectID, Agents: agents}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "execute-agent",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/agents/{agent_id}/execute",
		Summary:     "Execute one agent synchronously",
		Errors: []int{
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		AgentID   string `path:"agent_id"`
	}) (*struct {
		Body AgentExecutionResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, ok := o.Get(input.ProjectID)
		if !ok {
			return nil, handleError(fmt.Errorf("%w: %s", orchestrator.ErrProjectNotFound, input.ProjectID))
		}
		output, err := o.ExecuteAgent(ctx, p, input.AgentID, nil)
		if err != nil && (errors.Is(err, orchestrator.ErrUnknownAgent) || errors.Is(err, orchestrator.ErrAgentNotFound)) {
			return nil, handleError(err)
		}
		// Executor failures are part of the pipeline state, not HTTP errors:
		// the agent is marked failed and the response carries its status.
		if saveErr := cfg.ProjectStore.SaveRaw(ctx, p.ProjectID, o.ExportProject(p)); saveErr != nil {
			return nil, handleError(saveErr)
		}
		state := p.FindAgent(input.AgentID)
		return &struct {
			Body AgentExecutionResponse `json:"body"`
		}{Body: executionResponse(input.AgentID, state, output)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-agent",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/agents/{agent_id}/reset",
		Summary:     "Reset a failed agent for retry",
		Errors: []int{
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		AgentID   string `path:"agent_id"`
	}) (*struct {
		Body AgentResetResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, ok := o.Get(input.ProjectID)
		if !ok {
			return nil, handleError(fmt.Errorf("%w: %s", orchestrator.ErrProjectNotFound, input.ProjectID))
		}
		state, err := o.ResetAgent(p, input.AgentID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := cfg.ProjectStore.SaveRaw(ctx, p.ProjectID, o.ExportProject(p)); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AgentResetResponse `json:"body"`
		}{Body: AgentResetResponse{AgentID: state.AgentID, Status: string(state.Status), Layer: state.Layer}}, nil
	})
}

func registerJobs(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-pipeline-job",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/jobs",
		Summary:       "Start a background pipeline run",
		DefaultStatus: http.StatusAccepted,
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string          `path:"project_id"`
		Body      StartJobRequest `json:"body"`
	}) (*struct {
		Body JobResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		maxIterations := input.Body.MaxIterations
		if maxIterations < 1 {
			maxIterations = cfg.MaxIterations
		}
		job, err := cfg.Jobs.CreateRunPipelineJob(ctx, input.ProjectID, maxIterations)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JobResponse `json:"body"`
		}{Body: jobResponse(job)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List jobs",
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
	}) (*struct {
		Body []JobResponse `json:"body"`
	}, error) {
		return &struct {
			Body []JobResponse `json:"body"`
		}{Body: mapJobs(cfg.Jobs.List(input.ProjectID))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{job_id}",
		Summary:     "Get job",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JobID string `path:"job_id"`
	}) (*struct {
		Body JobResponse `json:"body"`
	}, error) {
		job, err := cfg.Jobs.Get(ctx, input.JobID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JobResponse `json:"body"`
		}{Body: jobResponse(job)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{job_id}/cancel",
		Summary:     "Request job cancellation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JobID string `path:"job_id"`
	}) (*struct {
		Body JobResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		job, err := cfg.Jobs.Cancel(ctx, input.JobID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JobResponse `json:"body"`
		}{Body: jobResponse(job)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "resume-job",
		Method:        http.MethodPost,
		Path:          "/jobs/{job_id}/resume",
		Summary:       "Resume a stopped job as a new job",
		DefaultStatus: http.StatusAccepted,
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		JobID string          `path:"job_id"`
		Body  StartJobRequest `json:"body"`
	}) (*struct {
		Body JobResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		maxIterations := input.Body.MaxIterations
		if maxIterations < 1 {
			maxIterations = cfg.MaxIterations
		}
		job, err := cfg.Jobs.Resume(ctx, input.JobID, maxIterations)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JobResponse `json:"body"`
		}{Body: jobResponse(job)}, nil
	})
}
