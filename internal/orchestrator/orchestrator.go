// Package orchestrator schedules the agent pipeline over a project's layer
// DAG: availability, input gathering, gated execution with retries, failure
// cascades and recovery.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"inkline/internal/domain"
	"inkline/internal/gate"
	"inkline/internal/llm"
	"inkline/internal/registry"
)

var (
	ErrUnknownAgent    = errors.New("unknown agent")
	ErrAgentNotFound   = errors.New("agent not found in project")
	ErrProjectNotFound = errors.New("project not found")
	ErrNotFailed       = errors.New("agent is not in failed status")
)

const (
	maxRepairRounds = 2
	// Outputs larger than this are never sent back for repair; the repair
	// reply could not reproduce them anyway.
	repairSizeLimit = 50_000

	cascadePrefix = "Cascade: dependency '"
)

// ExecContext is handed to executors.
type ExecContext struct {
	Project *domain.Project
	Def     registry.AgentDefinition
	Inputs  map[string]any
	Client  llm.Client
}

// Executor produces one agent's raw output content.
type Executor func(ctx context.Context, ec ExecContext) (map[string]any, error)

type indexEntry struct {
	layer int
	agent string
	value any
}

// Orchestrator owns the in-memory project table. Per-project mutation is not
// internally locked; callers serialize work on a single project (the job
// manager allows one active job per project).
type Orchestrator struct {
	reg    *registry.Registry
	client llm.Client // nil means placeholder mode
	logger *log.Logger

	Now func() time.Time

	mu        sync.RWMutex
	projects  map[string]*domain.Project
	outIndex  map[string]map[string]indexEntry
	executors map[string]Executor
}

func New(reg *registry.Registry, client llm.Client, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		reg:       reg,
		client:    client,
		logger:    logger,
		Now:       time.Now,
		projects:  make(map[string]*domain.Project),
		outIndex:  make(map[string]map[string]indexEntry),
		executors: make(map[string]Executor),
	}
}

func (o *Orchestrator) Registry() *registry.Registry { return o.reg }

func (o *Orchestrator) nowRFC3339() string {
	return o.Now().UTC().Format(time.RFC3339)
}

// RegisterExecutor installs a per-agent executor used when ExecuteAgent is
// called without an explicit one.
func (o *Orchestrator) RegisterExecutor(agentID string, fn Executor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.executors[agentID] = fn
}

// CreateProject builds a fresh project with every registry layer present,
// all agents pending, and only the first layer unlocked.
func (o *Orchestrator) CreateProject(title string, constraints map[string]any) *domain.Project {
	now := o.nowRFC3339()
	p := &domain.Project{
		ProjectID:       uuid.NewString(),
		Title:           title,
		UserConstraints: constraints,
		Layers:          make(map[int]*domain.LayerState),
		Status:          domain.ProjectInitialized,
		Manuscript:      map[string]any{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	layerIDs := o.reg.Layers()
	for _, layerID := range layerIDs {
		ls := &domain.LayerState{
			LayerID: layerID,
			Name:    o.reg.LayerName(layerID),
			Status:  domain.LayerLocked,
			Agents:  make(map[string]*domain.AgentState),
		}
		for _, def := range o.reg.AgentsByLayer(layerID) {
			ls.Agents[def.AgentID] = &domain.AgentState{
				AgentID:      def.AgentID,
				Name:         def.Name,
				Layer:        layerID,
				Status:       domain.AgentPending,
				Dependencies: def.Dependencies,
			}
		}
		p.Layers[layerID] = ls
	}
	if len(layerIDs) > 0 {
		p.Layers[layerIDs[0]].Status = domain.LayerAvailable
		p.CurrentLayer = layerIDs[0]
	}

	o.mu.Lock()
	o.projects[p.ProjectID] = p
	o.outIndex[p.ProjectID] = make(map[string]indexEntry)
	o.mu.Unlock()

	o.logger.Printf("created project %s (%s)", p.ProjectID, title)
	return p
}

// Get returns a project by id.
func (o *Orchestrator) Get(projectID string) (*domain.Project, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.projects[projectID]
	return p, ok
}

// Projects lists the registered projects.
func (o *Orchestrator) Projects() []*domain.Project {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*domain.Project, 0, len(o.projects))
	for _, p := range o.projects {
		out = append(out, p)
	}
	return out
}

// AvailableAgents lists agents ready to run: layer open, agent pending, all
// dependencies passed. The result follows layer order then registry
// declaration order, so repeated calls on the same state are identical.
func (o *Orchestrator) AvailableAgents(p *domain.Project) []string {
	var available []string
	for _, layerID := range p.LayerIDs() {
		layer := p.Layers[layerID]
		if layer.Status != domain.LayerAvailable && layer.Status != domain.LayerInProgress {
			continue
		}
		for _, def := range o.reg.AgentsByLayer(layerID) {
			state, ok := layer.Agents[def.AgentID]
			if !ok || state.Status != domain.AgentPending {
				continue
			}
			if o.depsMet(p, state) {
				available = append(available, def.AgentID)
			}
		}
	}
	return available
}

func (o *Orchestrator) depsMet(p *domain.Project, state *domain.AgentState) bool {
	for _, depID := range state.Dependencies {
		dep := p.FindAgent(depID)
		if dep == nil || dep.Status != domain.AgentPassed {
			return false
		}
	}
	return true
}

// GatherInputs collects everything an agent needs: the user constraints,
// each dependency's output keyed by agent id, then the agent's declared
// inputs resolved from constraints, upstream outputs and a few derived
// values. Within the key index the earliest producing layer wins.
func (o *Orchestrator) GatherInputs(p *domain.Project, agentID string) map[string]any {
	def, ok := o.reg.Get(agentID)
	if !ok {
		return map[string]any{}
	}

	inputs := map[string]any{
		"user_constraints": p.UserConstraints,
		"title":            p.Title,
	}

	for _, depID := range def.Dependencies {
		if dep := p.FindAgent(depID); dep != nil && dep.CurrentOutput != nil {
			inputs[depID] = dep.CurrentOutput.Content
		}
	}

	o.mu.RLock()
	index := o.outIndex[p.ProjectID]
	o.mu.RUnlock()

	for _, name := range def.Inputs {
		if v, ok := p.UserConstraints[name]; ok {
			inputs[name] = v
		}
		// An input named after an agent gets that agent's whole output.
		if o.reg.Has(name) {
			if upstream := p.FindAgent(name); upstream != nil && upstream.CurrentOutput != nil {
				inputs[name] = upstream.CurrentOutput.Content
			}
		}
		switch name {
		case "title":
			inputs["title"] = p.Title
		case "author_name":
			inputs["author_name"] = authorName(p.UserConstraints)
		case "character_names":
			if names := characterNames(p); len(names) > 0 {
				inputs["character_names"] = names
			}
		}
		if entry, ok := index[name]; ok {
			inputs[name] = entry.value
		}
	}
	return inputs
}

func authorName(constraints map[string]any) string {
	for _, k := range []string{"author_name", "pen_name"} {
		if s, _ := constraints[k].(string); s != "" {
			return s
		}
	}
	return "Author Name"
}

func characterNames(p *domain.Project) []string {
	ca := p.FindAgent("character_architecture")
	if ca == nil || ca.CurrentOutput == nil {
		return nil
	}
	content := ca.CurrentOutput.Content
	var names []string
	addName := func(v any) {
		profile, _ := v.(map[string]any)
		if name, _ := profile["name"].(string); name != "" {
			names = append(names, name)
		}
	}
	addName(content["protagonist_profile"])
	addName(content["antagonist_profile"])
	if cast, _ := content["supporting_cast"].([]any); cast != nil {
		for _, m := range cast {
			addName(m)
		}
	}
	seen := make(map[string]bool, len(names))
	deduped := names[:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			deduped = append(deduped, n)
		}
	}
	return deduped
}

// indexOutputs records a passed agent's output keys. An earlier layer keeps
// ownership of a key; the same agent re-passing refreshes its own values.
func (o *Orchestrator) indexOutputs(p *domain.Project, agentID string, layer int, content map[string]any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	index := o.outIndex[p.ProjectID]
	if index == nil {
		index = make(map[string]indexEntry)
		o.outIndex[p.ProjectID] = index
	}
	for k, v := range content {
		existing, ok := index[k]
		if !ok || existing.agent == agentID || existing.layer > layer {
			index[k] = indexEntry{layer: layer, agent: agentID, value: v}
		}
	}
}

// rebuildOutputIndex rebuilds the key index from scratch in layer order.
// Used after import and reset, where incremental bookkeeping would go stale.
func (o *Orchestrator) rebuildOutputIndex(p *domain.Project) {
	index := make(map[string]indexEntry)
	for _, layerID := range p.LayerIDs() {
		for _, def := range o.reg.AgentsByLayer(layerID) {
			state := p.Layers[layerID].Agents[def.AgentID]
			if state == nil || state.CurrentOutput == nil {
				continue
			}
			for k, v := range state.CurrentOutput.Content {
				if _, ok := index[k]; !ok {
					index[k] = indexEntry{layer: layerID, agent: def.AgentID, value: v}
				}
			}
		}
	}
	o.mu.Lock()
	o.outIndex[p.ProjectID] = index
	o.mu.Unlock()
}

// ExecuteAgent runs one agent through gathering, execution, the repair loop
// and its gate, then updates retry and layer state. The executor argument
// overrides any registered executor; with neither, placeholder output is
// produced so the pipeline can run offline.
func (o *Orchestrator) ExecuteAgent(ctx context.Context, p *domain.Project, agentID string, executor Executor) (*domain.AgentOutput, error) {
	def, ok := o.reg.Get(agentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	state := p.FindAgent(agentID)
	if state == nil {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}

	state.Status = domain.AgentRunning
	state.Attempts++
	p.CurrentAgent = agentID

	layer := p.Layers[def.Layer]
	if layer.Status == domain.LayerAvailable {
		layer.Status = domain.LayerInProgress
		layer.StartedAt = o.nowRFC3339()
	}

	inputs := o.GatherInputs(p, agentID)

	fn := executor
	if fn == nil {
		o.mu.RLock()
		fn = o.executors[agentID]
		o.mu.RUnlock()
	}
	if fn == nil {
		fn = PlaceholderExecutor
	}

	result, err := fn(ctx, ExecContext{Project: p, Def: def, Inputs: inputs, Client: o.client})
	if err != nil {
		state.LastError = err.Error()
		if state.Attempts >= def.RetryLimit {
			state.Status = domain.AgentFailed
			o.logger.Printf("agent %s failed terminally after %d attempts: %v", agentID, state.Attempts, err)
		} else {
			state.Status = domain.AgentPending
			o.logger.Printf("agent %s errored, will retry: %v", agentID, err)
		}
		o.checkLayerCompletion(p, def.Layer)
		p.UpdatedAt = o.nowRFC3339()
		return nil, fmt.Errorf("agent %s: %w", agentID, err)
	}

	res, normalized := gate.Validate(agentID, result, def.Outputs)
	repairRounds := 0
	tooLarge := serializedSize(result) > repairSizeLimit
	for !res.Passed && o.client != nil && result != nil && repairRounds < maxRepairRounds && !tooLarge {
		repaired := o.repairOutput(ctx, def, inputs, result, res)
		if repaired == nil {
			break
		}
		result = repaired
		repairRounds++
		res, normalized = gate.Validate(agentID, result, def.Outputs)
	}
	res.Timestamp = o.nowRFC3339()

	content := normalized
	if len(content) == 0 {
		content = result
	}
	output := &domain.AgentOutput{
		AgentID:    agentID,
		Content:    content,
		GateResult: &res,
		Metadata: map[string]any{
			"attempt":       state.Attempts,
			"inputs_used":   keysOf(inputs),
			"repair_rounds": repairRounds,
		},
		CreatedAt: o.nowRFC3339(),
		Version:   len(state.Outputs) + 1,
	}

	if res.Passed {
		state.Status = domain.AgentPassed
		state.CurrentOutput = output
		state.Outputs = append(state.Outputs, *output)
		state.LastError = ""
		o.indexOutputs(p, agentID, def.Layer, output.Content)
		o.logger.Printf("agent %s passed gate", agentID)
	} else if state.Attempts >= def.RetryLimit {
		state.Status = domain.AgentFailed
		state.LastError = res.Message
		o.logger.Printf("agent %s failed terminally after %d attempts: %s", agentID, state.Attempts, res.Message)
	} else {
		state.Status = domain.AgentPending
		o.logger.Printf("agent %s failed gate, will retry: %s", agentID, res.Message)
	}

	o.checkLayerCompletion(p, def.Layer)
	p.UpdatedAt = o.nowRFC3339()
	return output, nil
}

func serializedSize(content map[string]any) int {
	raw, err := json.Marshal(content)
	if err != nil {
		return 0
	}
	return len(raw)
}

func keysOf(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// repairOutput asks the backend to fix JSON that failed its gate. The prompt
// stays small: input keys and constraints only, never full upstream outputs.
func (o *Orchestrator) repairOutput(ctx context.Context, def registry.AgentDefinition, inputs, bad map[string]any, res domain.GateResult) map[string]any {
	details, _ := json.Marshal(res.Details)
	outputs, _ := json.Marshal(def.Outputs)
	inputKeys, _ := json.Marshal(keysOf(inputs))
	constraints, _ := json.Marshal(inputs["user_constraints"])
	badRaw, _ := json.Marshal(bad)

	prompt := fmt.Sprintf(`You are repairing the output of agent %q (%s).

The previous JSON output FAILED validation.

## Validation failure
Message: %s
Details: %s

## Required output keys
%s

## Available input keys (do not request more)
%s

## User constraints (if relevant)
%s

## Bad JSON output to repair
%s

Return ONLY corrected JSON (no markdown, no commentary).`,
		def.AgentID, def.Name, res.Message, details, outputs, inputKeys, constraints, badRaw)

	reply, err := o.client.Generate(ctx, llm.Request{
		Prompt:         prompt,
		ResponseFormat: "json",
		Temperature:    0.2,
		MaxTokens:      8000,
	})
	if err != nil {
		o.logger.Printf("repair attempt for %s failed: %v", def.AgentID, err)
		return nil
	}
	var repaired map[string]any
	if err := json.Unmarshal([]byte(llm.ExtractJSON(reply.Text)), &repaired); err != nil {
		o.logger.Printf("repair reply for %s not valid JSON: %v", def.AgentID, err)
		return nil
	}
	return repaired
}

// terminal reports whether an agent needs no further scheduling: passed, or
// failed with its retries exhausted.
func (o *Orchestrator) terminal(state *domain.AgentState) bool {
	switch state.Status {
	case domain.AgentPassed:
		return true
	case domain.AgentFailed:
		return state.Attempts >= o.reg.RetryLimit(state.AgentID)
	}
	return false
}

func (o *Orchestrator) checkLayerCompletion(p *domain.Project, layerID int) {
	layer := p.Layers[layerID]
	for _, state := range layer.Agents {
		if !o.terminal(state) {
			return
		}
	}

	layer.Status = domain.LayerCompleted
	layer.CompletedAt = o.nowRFC3339()
	p.CurrentLayer = layerID

	failed := make(map[string]bool)
	for _, state := range layer.Agents {
		if state.Status == domain.AgentFailed {
			failed[state.AgentID] = true
		}
	}
	if len(failed) > 0 {
		cascadeFailures(p, failed, o.logger)
	}

	ids := p.LayerIDs()
	for i, id := range ids {
		if id == layerID && i+1 < len(ids) {
			next := ids[i+1]
			p.Layers[next].Status = domain.LayerAvailable
			p.CurrentLayer = next
			o.logger.Printf("layer %d completed, unlocked layer %d", layerID, next)
			return
		}
	}
	o.logger.Printf("layer %d completed (final layer)", layerID)
}

// cascadeFailures marks pending agents failed when any dependency failed
// terminally, walking the graph until no more dependents change.
func cascadeFailures(p *domain.Project, failedIDs map[string]bool, logger *log.Logger) {
	changed := true
	for changed {
		changed = false
		for _, layer := range p.Layers {
			for _, state := range layer.Agents {
				if state.Status != domain.AgentPending {
					continue
				}
				for _, depID := range state.Dependencies {
					if failedIDs[depID] {
						state.Status = domain.AgentFailed
						state.LastError = fmt.Sprintf("%s%s' failed terminally", cascadePrefix, depID)
						failedIDs[state.AgentID] = true
						changed = true
						if logger != nil {
							logger.Printf("agent %s cascade-failed (dependency %s)", state.AgentID, depID)
						}
						break
					}
				}
			}
		}
	}
}

// RecomputeCascade re-derives cascade failures from current terminal
// failures. Applied after import so a state snapshot taken mid-cascade
// settles into the same shape a live run would have.
func (o *Orchestrator) RecomputeCascade(p *domain.Project) {
	failed := make(map[string]bool)
	for _, layer := range p.Layers {
		for _, state := range layer.Agents {
			if state.Status == domain.AgentFailed {
				failed[state.AgentID] = true
			}
		}
	}
	if len(failed) > 0 {
		cascadeFailures(p, failed, o.logger)
	}
}

// ResetAgent returns a terminally failed agent to pending, reopens its layer
// and reverses any cascade failures this agent caused.
func (o *Orchestrator) ResetAgent(p *domain.Project, agentID string) (*domain.AgentState, error) {
	state := p.FindAgent(agentID)
	if state == nil {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	if state.Status != domain.AgentFailed {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotFailed, agentID, state.Status)
	}
	def, ok := o.reg.Get(agentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}

	state.Status = domain.AgentPending
	state.Attempts = 0
	state.LastError = ""

	layer := p.Layers[def.Layer]
	if layer.Status == domain.LayerCompleted {
		layer.Status = domain.LayerInProgress
		layer.CompletedAt = ""
	}

	o.uncascadeFailures(p, agentID)
	o.rebuildOutputIndex(p)
	p.UpdatedAt = o.nowRFC3339()
	o.logger.Printf("agent %s reset to pending", agentID)
	return state, nil
}

func (o *Orchestrator) uncascadeFailures(p *domain.Project, resetID string) {
	resetIDs := map[string]bool{resetID: true}
	changed := true
	for changed {
		changed = false
		for _, layer := range p.Layers {
			for _, state := range layer.Agents {
				if state.Status != domain.AgentFailed || !strings.HasPrefix(state.LastError, cascadePrefix) {
					continue
				}
				for rid := range resetIDs {
					if !strings.Contains(state.LastError, "'"+rid+"'") {
						continue
					}
					state.Status = domain.AgentPending
					state.Attempts = 0
					state.LastError = ""
					resetIDs[state.AgentID] = true
					if lyr := p.Layers[state.Layer]; lyr != nil && lyr.Status == domain.LayerCompleted {
						lyr.Status = domain.LayerInProgress
						lyr.CompletedAt = ""
					}
					changed = true
					break
				}
			}
		}
	}
}

// RunToCompletion executes available agents one at a time until the project
// finishes, blocks, hits maxIterations, or ctx is cancelled.
func (o *Orchestrator) RunToCompletion(ctx context.Context, p *domain.Project, maxIterations int) error {
	for i := 0; i < maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		available := o.AvailableAgents(p)
		if len(available) == 0 {
			o.ClassifyFinalStatus(p)
			return nil
		}
		if _, err := o.ExecuteAgent(ctx, p, available[0], nil); err != nil {
			return err
		}
	}
	return nil
}

// ClassifyFinalStatus sets the project status once no agents are available:
// completed when every layer finished clean, completed_with_failures when
// layers finished but agents failed terminally, blocked otherwise.
func (o *Orchestrator) ClassifyFinalStatus(p *domain.Project) {
	allComplete := true
	anyFailed := false
	for _, layer := range p.Layers {
		if layer.Status != domain.LayerCompleted {
			allComplete = false
		}
		for _, state := range layer.Agents {
			if state.Status == domain.AgentFailed {
				anyFailed = true
			}
		}
	}
	switch {
	case allComplete && !anyFailed:
		p.Status = domain.ProjectCompleted
	case allComplete:
		p.Status = domain.ProjectCompletedWithFailures
	default:
		p.Status = domain.ProjectBlocked
	}
	p.UpdatedAt = o.nowRFC3339()
}

// PlaceholderExecutor produces deterministic offline output: one generated
// marker per declared output key.
func PlaceholderExecutor(_ context.Context, ec ExecContext) (map[string]any, error) {
	result := map[string]any{
		"_agent":   ec.Def.AgentID,
		"_status":  gate.StatusPlaceholder,
		"_message": "Awaiting generation backend",
	}
	for _, name := range ec.Def.Outputs {
		result[name] = fmt.Sprintf("[Generated %s]", name)
	}
	return result, nil
}
