package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"inkline/internal/config"
	"inkline/internal/db"
	"inkline/internal/domain"
	"inkline/internal/executor"
	"inkline/internal/jobs"
	"inkline/internal/llm"
	"inkline/internal/migrate"
	"inkline/internal/orchestrator"
	"inkline/internal/registry"
	"inkline/internal/server"
	"inkline/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "ink",
	Short: "Inkline CLI",
	Long: `Inkline drives a book manuscript through a layered agent pipeline.
Core concepts:
- Workspace: the directory holding inkline.yml and the data store.
- Project: one manuscript with per-agent state across pipeline layers.
- Agents: pipeline stages (research, outlining, drafting, editing) that
  each produce structured output checked by a quality gate.
- Layers: agents unlock layer by layer; a layer opens when the previous
  one has no pending work left.
- Jobs: background pipeline runs with heartbeats, cancellation and
  resume after a process restart.
- Gates: every agent output is validated before its dependents may run;
  failures retry up to the agent's retry limit.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("INKLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("project", "", "project id (defaults to the only project when unambiguous)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(registryCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(manuscriptCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- app wiring ---

type app struct {
	cfg      *config.Config
	orc      *orchestrator.Orchestrator
	manager  *jobs.Manager
	projects store.Store
	jobStore store.Store
	closeFn  func() error
}

func buildApp() (*app, error) {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default("inkline")
	}
	logger := log.New(os.Stderr, "", log.LstdFlags)

	var client llm.Client
	if cfg.LLM.Provider == "anthropic" {
		apiKey := ""
		if cfg.LLM.APIKeyEnv != "" {
			apiKey = os.Getenv(cfg.LLM.APIKeyEnv)
		}
		c, err := llm.NewAnthropic(llm.Options{
			APIKey:    apiKey,
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		client = c
	}

	var projects, jobStore store.Store
	closeFn := func() error { return nil }
	switch cfg.Storage.Backend {
	case "sqlite":
		conn, err := db.Open(db.Config{Workspace: workspace})
		if err != nil {
			return nil, err
		}
		if err := migrate.Migrate(conn); err != nil {
			conn.Close()
			return nil, err
		}
		projects = store.NewSQLiteStore(conn, "projects")
		jobStore = store.NewSQLiteStore(conn, "jobs")
		closeFn = conn.Close
	default:
		dir := cfg.Storage.Dir
		if dir == "" {
			dir = "data"
		}
		base := filepath.Join(workspace, dir)
		projects, err = store.NewFileStore(filepath.Join(base, "projects"))
		if err != nil {
			return nil, err
		}
		jobStore, err = store.NewFileStore(filepath.Join(base, "jobs"))
		if err != nil {
			return nil, err
		}
	}

	orc := orchestrator.New(registry.Book(), client, logger)
	executor.RegisterAll(orc, client)
	manager := jobs.NewManager(jobs.Options{
		Orchestrator:      orc,
		JobStore:          jobStore,
		ProjectStore:      projects,
		MaxConcurrent:     cfg.Pipeline.MaxConcurrentJobs,
		AgentTimeout:      cfg.AgentTimeout(),
		HeartbeatInterval: cfg.HeartbeatInterval(),
		Logger:            logger,
	})
	return &app{cfg: cfg, orc: orc, manager: manager, projects: projects, jobStore: jobStore, closeFn: closeFn}, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app) error) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.closeFn()
	if err := a.manager.Restore(ctx); err != nil {
		return err
	}
	err = fn(ctx, a)
	a.manager.Wait()
	return err
}

func resolveProjectID(a *app, args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	if id := strings.TrimSpace(viper.GetString("project")); id != "" {
		return id, nil
	}
	items := a.orc.Projects()
	if len(items) == 1 {
		return items[0].ProjectID, nil
	}
	return "", fmt.Errorf("project not specified; pass an id or --project")
}

func getProject(a *app, args []string) (*domain.Project, error) {
	id, err := resolveProjectID(a, args)
	if err != nil {
		return nil, err
	}
	p, ok := a.orc.Get(id)
	if !ok {
		return nil, fmt.Errorf("project %s not found", id)
	}
	return p, nil
}

func saveProject(ctx context.Context, a *app, p *domain.Project) error {
	return a.projects.SaveRaw(ctx, p.ProjectID, a.orc.ExportProject(p))
}

// --- project ---

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectInitCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectDiagnosticsCmd())
	prj.AddCommand(projectExportCmd())
	prj.AddCommand(projectImportCmd())
	return prj
}

func projectInitCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default inkline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(id)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "my-book", "project id for the generated config")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var title, constraintsJSON string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			var constraints map[string]any
			if constraintsJSON != "" {
				if err := json.Unmarshal([]byte(constraintsJSON), &constraints); err != nil {
					return fmt.Errorf("invalid --constraints-json: %w", err)
				}
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				p := a.orc.CreateProject(title, constraints)
				if err := saveProject(ctx, a, p); err != nil {
					return err
				}
				return printJSONOrTable(a.orc.Status(p))
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "manuscript title")
	cmd.Flags().StringVar(&constraintsJSON, "constraints-json", "", "user constraints JSON (genre, target_word_count, ...)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				items := a.orc.Projects()
				if viper.GetBool("json") {
					out := make([]orchestrator.ProjectStatus, 0, len(items))
					for _, p := range items {
						out = append(out, a.orc.Status(p))
					}
					return printJSON(out)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Layer", "Updated"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ProjectID, p.Title, p.Status, p.CurrentLayer, p.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "show [id]",
		Aliases: []string{"status"},
		Short:   "Show project status",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				p, err := getProject(a, args)
				if err != nil {
					return err
				}
				return printJSONOrTable(a.orc.Status(p))
			})
		},
	}
	return cmd
}

func projectDiagnosticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnostics [id]",
		Short: "Explain why a project is stuck",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				p, err := getProject(a, args)
				if err != nil {
					return err
				}
				return printJSONOrTable(a.orc.BlockedDiagnostics(p))
			})
		},
	}
	return cmd
}

func projectExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export [id]",
		Short: "Export full project state as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				p, err := getProject(a, args)
				if err != nil {
					return err
				}
				return writeJSONOutput(a.orc.ExportProject(p), out)
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write to file instead of stdout")
	return cmd
}

func projectImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a project from exported JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			var raw map[string]any
			if err := json.Unmarshal(data, &raw); err != nil {
				return fmt.Errorf("invalid export file: %w", err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				p, err := a.orc.ImportProject(raw)
				if err != nil {
					return err
				}
				if err := saveProject(ctx, a, p); err != nil {
					return err
				}
				return printJSONOrTable(a.orc.Status(p))
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to exported project JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// --- registry ---

func registryCmd() *cobra.Command {
	reg := &cobra.Command{Use: "registry", Short: "Inspect the agent registry"}
	reg.AddCommand(registryListCmd())
	reg.AddCommand(registryOrderCmd())
	return reg
}

func registryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agent definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.Book()
			if viper.GetBool("json") {
				var defs []registry.AgentDefinition
				for _, id := range reg.IDs() {
					def, _ := reg.Get(id)
					defs = append(defs, def)
				}
				return printJSON(defs)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Agent", "Name", "Layer", "Type", "Deps", "Retries"})
			for _, id := range reg.IDs() {
				def, _ := reg.Get(id)
				tw.AppendRow(table.Row{def.AgentID, def.Name, def.Layer, def.Type, len(def.Dependencies), def.RetryLimit})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func registryOrderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Show dependency-respecting execution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.Book()
			order := reg.ExecutionOrder()
			if viper.GetBool("json") {
				return printJSON(order)
			}
			for i, id := range order {
				def, _ := reg.Get(id)
				fmt.Printf("%3d. %s (layer %d, %s)\n", i+1, id, def.Layer, reg.LayerName(def.Layer))
			}
			return nil
		},
	}
	return cmd
}

// --- run ---

func runCmd() *cobra.Command {
	var maxIterations int
	cmd := &cobra.Command{
		Use:   "run [project]",
		Short: "Run the pipeline to completion in the foreground",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				p, err := getProject(a, args)
				if err != nil {
					return err
				}
				n := maxIterations
				if n < 1 {
					n = a.cfg.Pipeline.MaxIterations
				}
				runErr := a.orc.RunToCompletion(ctx, p, n)
				if err := saveProject(ctx, a, p); err != nil {
					return err
				}
				if runErr != nil {
					return runErr
				}
				return printJSONOrTable(a.orc.Status(p))
			})
		},
	}
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "iteration cap (defaults to config)")
	return cmd
}

// --- agent ---

func agentCmd() *cobra.Command {
	agent := &cobra.Command{Use: "agent", Short: "Run or reset single agents"}
	agent.AddCommand(agentAvailableCmd())
	agent.AddCommand(agentExecuteCmd())
	agent.AddCommand(agentResetCmd())
	return agent
}

func agentAvailableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "available [project]",
		Short: "List agents ready to run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				p, err := getProject(a, args)
				if err != nil {
					return err
				}
				agents := a.orc.AvailableAgents(p)
				if agents == nil {
					agents = []string{}
				}
				return printJSONOrTable(map[string]any{"project_id": p.ProjectID, "agents": agents})
			})
		},
	}
	return cmd
}

func agentExecuteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execute <agent-id> [project]",
		Short: "Execute one agent and report its gate result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				p, err := getProject(a, args[1:])
				if err != nil {
					return err
				}
				output, execErr := a.orc.ExecuteAgent(ctx, p, agentID, nil)
				if execErr != nil && (errors.Is(execErr, orchestrator.ErrUnknownAgent) || errors.Is(execErr, orchestrator.ErrAgentNotFound)) {
					return execErr
				}
				if err := saveProject(ctx, a, p); err != nil {
					return err
				}
				out := map[string]any{"agent_id": agentID}
				if state := p.FindAgent(agentID); state != nil {
					out["status"] = state.Status
					out["attempts"] = state.Attempts
				}
				if output != nil && output.GateResult != nil {
					out["gate_passed"] = output.GateResult.Passed
					out["gate_message"] = output.GateResult.Message
				}
				if execErr != nil {
					out["error"] = execErr.Error()
				}
				return printJSONOrTable(out)
			})
		},
	}
	return cmd
}

func agentResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset <agent-id> [project]",
		Short: "Reset a failed agent for retry",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				p, err := getProject(a, args[1:])
				if err != nil {
					return err
				}
				state, err := a.orc.ResetAgent(p, agentID)
				if err != nil {
					return err
				}
				if err := saveProject(ctx, a, p); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"agent_id": state.AgentID,
					"status":   state.Status,
					"layer":    state.Layer,
				})
			})
		},
	}
	return cmd
}

// --- jobs ---

func jobCmd() *cobra.Command {
	job := &cobra.Command{
		Use:   "job",
		Short: "Manage pipeline jobs",
		Long:  "Jobs run the pipeline with progress events and heartbeats persisted after every step, so an interrupted run can be resumed.",
	}
	job.AddCommand(jobStartCmd())
	job.AddCommand(jobListCmd())
	job.AddCommand(jobShowCmd())
	job.AddCommand(jobCancelCmd())
	job.AddCommand(jobResumeCmd())
	return job
}

func jobStartCmd() *cobra.Command {
	var maxIterations int
	cmd := &cobra.Command{
		Use:   "start [project]",
		Short: "Start a pipeline job and wait for it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				id, err := resolveProjectID(a, args)
				if err != nil {
					return err
				}
				n := maxIterations
				if n < 1 {
					n = a.cfg.Pipeline.MaxIterations
				}
				job, err := a.manager.CreateRunPipelineJob(ctx, id, n)
				if err != nil {
					return err
				}
				a.manager.Wait()
				final, err := a.manager.Get(ctx, job.JobID)
				if err != nil {
					return err
				}
				return printJSONOrTable(final)
			})
		},
	}
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "iteration cap (defaults to config)")
	return cmd
}

func jobListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				items := a.manager.List(viper.GetString("project"))
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Job", "Project", "Status", "Created", "Finished", "Error"})
				for _, j := range items {
					tw.AppendRow(table.Row{j.JobID, j.ProjectID, j.Status, j.CreatedAt, j.FinishedAt, j.Error})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func jobShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a job with its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				job, err := a.manager.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(job)
			})
		},
	}
	return cmd
}

func jobCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Request job cancellation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				job, err := a.manager.Cancel(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(job)
			})
		},
	}
	return cmd
}

func jobResumeCmd() *cobra.Command {
	var maxIterations int
	cmd := &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a stopped job as a new job and wait for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				n := maxIterations
				if n < 1 {
					n = a.cfg.Pipeline.MaxIterations
				}
				job, err := a.manager.Resume(ctx, args[0], n)
				if err != nil {
					return err
				}
				a.manager.Wait()
				final, err := a.manager.Get(ctx, job.JobID)
				if err != nil {
					return err
				}
				return printJSONOrTable(final)
			})
		},
	}
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "iteration cap (defaults to config)")
	return cmd
}

// --- manuscript ---

func manuscriptCmd() *cobra.Command {
	ms := &cobra.Command{Use: "manuscript", Short: "Manuscript output"}
	ms.AddCommand(manuscriptExportCmd())
	return ms
}

func manuscriptExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export [project]",
		Short: "Export the assembled manuscript as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				p, err := getProject(a, args)
				if err != nil {
					return err
				}
				return writeJSONOutput(a.orc.ExportManuscript(p), out)
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write to file instead of stdout")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyActor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				authCfg := server.AuthConfig{
					JWTSecret:              os.Getenv("INKLINE_JWT_SECRET"),
					AllowLegacyActorHeader: allowLegacyActor,
				}
				if authCfg.JWTSecret == "" && !allowLegacyActor {
					return fmt.Errorf("INKLINE_JWT_SECRET is required for bearer auth (or pass --allow-legacy-actor-header)")
				}
				handler, err := server.New(server.Config{
					Orchestrator:  a.orc,
					Jobs:          a.manager,
					ProjectStore:  a.projects,
					BasePath:      basePath,
					Auth:          authCfg,
					MaxIterations: a.cfg.Pipeline.MaxIterations,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Inkline API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowLegacyActor, "allow-legacy-actor-header", false, "accept X-Actor-Id without a bearer token")
	return cmd
}

// --- helpers ---

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONOutput(v any, path string) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Println(string(b))
		return nil
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
