package orchestrator

import (
	"strconv"

	"inkline/internal/domain"
)

const exportVersion = "1.0"

// AgentSummary, LayerSummary and ProjectStatus form the condensed status
// payload served to the API and CLI.
type AgentSummary struct {
	Status    domain.AgentStatus `json:"status"`
	Attempts  int                `json:"attempts"`
	HasOutput bool               `json:"has_output"`
	LastError string             `json:"last_error,omitempty"`
}

type LayerSummary struct {
	Name   string                  `json:"name"`
	Status domain.LayerStatus      `json:"status"`
	Agents map[string]AgentSummary `json:"agents"`
}

type ProjectStatus struct {
	ProjectID       string               `json:"project_id"`
	Title           string               `json:"title"`
	Status          string               `json:"status"`
	CurrentLayer    int                  `json:"current_layer"`
	CurrentAgent    string               `json:"current_agent,omitempty"`
	Layers          map[int]LayerSummary `json:"layers"`
	AvailableAgents []string             `json:"available_agents"`
	UpdatedAt       string               `json:"updated_at"`
}

// Status summarizes a project for display.
func (o *Orchestrator) Status(p *domain.Project) ProjectStatus {
	layers := make(map[int]LayerSummary, len(p.Layers))
	for id, layer := range p.Layers {
		agents := make(map[string]AgentSummary, len(layer.Agents))
		for aid, state := range layer.Agents {
			agents[aid] = AgentSummary{
				Status:    state.Status,
				Attempts:  state.Attempts,
				HasOutput: state.CurrentOutput != nil,
				LastError: state.LastError,
			}
		}
		layers[id] = LayerSummary{Name: layer.Name, Status: layer.Status, Agents: agents}
	}
	return ProjectStatus{
		ProjectID:       p.ProjectID,
		Title:           p.Title,
		Status:          p.Status,
		CurrentLayer:    p.CurrentLayer,
		CurrentAgent:    p.CurrentAgent,
		Layers:          layers,
		AvailableAgents: o.AvailableAgents(p),
		UpdatedAt:       p.UpdatedAt,
	}
}

// UnmetDependency names a dependency that keeps an agent from running.
type UnmetDependency struct {
	DepID     string `json:"dep_id"`
	DepStatus string `json:"dep_status"`
}

type BlockedAgent struct {
	AgentID           string            `json:"agent_id"`
	AgentName         string            `json:"agent_name"`
	Layer             int               `json:"layer"`
	LayerName         string            `json:"layer_name"`
	LayerStatus       string            `json:"layer_status"`
	UnmetDependencies []UnmetDependency `json:"unmet_dependencies"`
}

type AgentStatusRef struct {
	AgentID string `json:"agent_id"`
	Status  string `json:"status"`
}

type LockedLayerReason struct {
	LockedLayer         int              `json:"locked_layer"`
	LockedLayerName     string           `json:"locked_layer_name"`
	BlockingLayer       int              `json:"blocking_layer"`
	BlockingLayerName   string           `json:"blocking_layer_name"`
	BlockingLayerStatus string           `json:"blocking_layer_status"`
	AgentsNotYetPassed  []AgentStatusRef `json:"agents_not_yet_passed"`
}

// Diagnostics explains why a project is stuck.
type Diagnostics struct {
	ProjectID          string              `json:"project_id"`
	ProjectStatus      string              `json:"project_status"`
	BlockedCandidates  []BlockedAgent      `json:"blocked_candidates"`
	LockedLayerReasons []LockedLayerReason `json:"locked_layer_reasons"`
	AgentStatusCounts  map[string]int      `json:"agent_status_counts"`
	LayerStatusCounts  map[string]int      `json:"layer_status_counts"`
}

// BlockedDiagnostics reports every pending agent with unmet dependencies,
// why each locked layer has not unlocked, and status counts.
func (o *Orchestrator) BlockedDiagnostics(p *domain.Project) Diagnostics {
	diag := Diagnostics{
		ProjectID:         p.ProjectID,
		ProjectStatus:     p.Status,
		AgentStatusCounts: make(map[string]int),
		LayerStatusCounts: make(map[string]int),
	}

	layerIDs := p.LayerIDs()
	for _, layerID := range layerIDs {
		layer := p.Layers[layerID]
		diag.LayerStatusCounts[string(layer.Status)]++

		for _, def := range o.reg.AgentsByLayer(layerID) {
			state, ok := layer.Agents[def.AgentID]
			if !ok {
				continue
			}
			diag.AgentStatusCounts[string(state.Status)]++
			if state.Status != domain.AgentPending {
				continue
			}

			var unmet []UnmetDependency
			for _, depID := range state.Dependencies {
				dep := p.FindAgent(depID)
				switch {
				case dep == nil:
					unmet = append(unmet, UnmetDependency{DepID: depID, DepStatus: "missing"})
				case dep.Status != domain.AgentPassed:
					unmet = append(unmet, UnmetDependency{DepID: depID, DepStatus: string(dep.Status)})
				}
			}
			if len(unmet) > 0 {
				diag.BlockedCandidates = append(diag.BlockedCandidates, BlockedAgent{
					AgentID:           def.AgentID,
					AgentName:         state.Name,
					Layer:             layerID,
					LayerName:         layer.Name,
					LayerStatus:       string(layer.Status),
					UnmetDependencies: unmet,
				})
			}
		}
	}

	for i, layerID := range layerIDs {
		layer := p.Layers[layerID]
		if layer.Status != domain.LayerLocked || i == 0 {
			continue
		}
		prevID := layerIDs[i-1]
		prev := p.Layers[prevID]
		var notPassed []AgentStatusRef
		for _, def := range o.reg.AgentsByLayer(prevID) {
			if state, ok := prev.Agents[def.AgentID]; ok && state.Status != domain.AgentPassed {
				notPassed = append(notPassed, AgentStatusRef{AgentID: def.AgentID, Status: string(state.Status)})
			}
		}
		diag.LockedLayerReasons = append(diag.LockedLayerReasons, LockedLayerReason{
			LockedLayer:         layerID,
			LockedLayerName:     layer.Name,
			BlockingLayer:       prevID,
			BlockingLayerName:   prev.Name,
			BlockingLayerStatus: string(prev.Status),
			AgentsNotYetPassed:  notPassed,
		})
	}
	return diag
}

// ExportProject serializes the project to a plain nested map, the stable
// persistence and interchange format.
func (o *Orchestrator) ExportProject(p *domain.Project) map[string]any {
	layers := make(map[string]any, len(p.Layers))
	for layerID, layer := range p.Layers {
		agents := make(map[string]any, len(layer.Agents))
		for agentID, state := range layer.Agents {
			entry := map[string]any{
				"status":   string(state.Status),
				"attempts": state.Attempts,
				"output":   nil,
			}
			if state.LastError != "" {
				entry["last_error"] = state.LastError
			}
			if state.CurrentOutput != nil {
				out := map[string]any{"content": state.CurrentOutput.Content}
				if gr := state.CurrentOutput.GateResult; gr != nil {
					out["gate_passed"] = gr.Passed
					out["gate_message"] = gr.Message
				}
				entry["output"] = out
			}
			agents[agentID] = entry
		}
		layers[strconv.Itoa(layerID)] = map[string]any{
			"name":   layer.Name,
			"status": string(layer.Status),
			"agents": agents,
		}
	}
	return map[string]any{
		"version":          exportVersion,
		"project_id":       p.ProjectID,
		"title":            p.Title,
		"status":           p.Status,
		"current_layer":    p.CurrentLayer,
		"user_constraints": p.UserConstraints,
		"created_at":       p.CreatedAt,
		"updated_at":       p.UpdatedAt,
		"manuscript":       p.Manuscript,
		"layers":           layers,
	}
}

// ImportProject rebuilds a project from an exported map, registers it and
// re-derives cascade state and the output index.
func (o *Orchestrator) ImportProject(data map[string]any) (*domain.Project, error) {
	title, _ := data["title"].(string)
	if title == "" {
		title = "Untitled Project"
	}
	constraints, _ := data["user_constraints"].(map[string]any)
	if constraints == nil {
		constraints = map[string]any{}
	}

	p := o.CreateProject(title, constraints)
	freshID := p.ProjectID

	if id, _ := data["project_id"].(string); id != "" {
		p.ProjectID = id
	}
	if s, _ := data["status"].(string); s != "" {
		p.Status = s
	}
	if v, ok := toInt(data["current_layer"]); ok {
		p.CurrentLayer = v
	}
	if s, _ := data["created_at"].(string); s != "" {
		p.CreatedAt = s
	}
	if s, _ := data["updated_at"].(string); s != "" {
		p.UpdatedAt = s
	}
	if m, _ := data["manuscript"].(map[string]any); m != nil {
		p.Manuscript = m
	}

	layersData, _ := data["layers"].(map[string]any)
	for layerIDStr, raw := range layersData {
		layerID, err := strconv.Atoi(layerIDStr)
		if err != nil {
			continue
		}
		layer, ok := p.Layers[layerID]
		if !ok {
			continue
		}
		layerData, _ := raw.(map[string]any)
		if layerData == nil {
			continue
		}
		if s, _ := layerData["status"].(string); s != "" {
			layer.Status = domain.LayerStatus(s)
		}
		agentsData, _ := layerData["agents"].(map[string]any)
		for agentID, rawAgent := range agentsData {
			state, ok := layer.Agents[agentID]
			if !ok {
				continue
			}
			agentData, _ := rawAgent.(map[string]any)
			if agentData == nil {
				continue
			}
			if s, _ := agentData["status"].(string); s != "" {
				state.Status = domain.AgentStatus(s)
			}
			if v, ok := toInt(agentData["attempts"]); ok {
				state.Attempts = v
			}
			if s, _ := agentData["last_error"].(string); s != "" {
				state.LastError = s
			}
			outData, _ := agentData["output"].(map[string]any)
			if content, _ := outData["content"].(map[string]any); content != nil {
				out := &domain.AgentOutput{AgentID: agentID, Content: content, Version: 1}
				if passed, ok := outData["gate_passed"].(bool); ok {
					msg, _ := outData["gate_message"].(string)
					out.GateResult = &domain.GateResult{Passed: passed, Message: msg}
				}
				state.CurrentOutput = out
				state.Outputs = []domain.AgentOutput{*out}
			}
		}
	}

	o.mu.Lock()
	if p.ProjectID != freshID {
		delete(o.projects, freshID)
		delete(o.outIndex, freshID)
	}
	o.projects[p.ProjectID] = p
	o.mu.Unlock()

	o.RecomputeCascade(p)
	o.rebuildOutputIndex(p)
	return p, nil
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case float64:
		return int(t), true
	}
	return 0, false
}

// ExportManuscript assembles the readable manuscript: explicitly written
// chapters first, then line-edited, then revised, then the raw draft, with
// publishing metadata attached when present.
func (o *Orchestrator) ExportManuscript(p *domain.Project) map[string]any {
	manuscript := map[string]any{
		"title":        p.Title,
		"generated_at": o.nowRFC3339(),
		"chapters":     []any{},
		"metadata":     map[string]any{},
	}

	if chapters, _ := p.Manuscript["chapters"].([]any); len(chapters) > 0 {
		manuscript["chapters"] = chapters
	} else {
		for _, source := range []struct{ agent, key string }{
			{"line_edit", "edited_chapters"},
			{"structural_rewrite", "revised_chapters"},
			{"draft_generation", "chapters"},
		} {
			state := p.FindAgent(source.agent)
			if state == nil || state.CurrentOutput == nil {
				continue
			}
			if chapters, _ := state.CurrentOutput.Content[source.key].([]any); len(chapters) > 0 {
				manuscript["chapters"] = chapters
				break
			}
		}
	}

	if pub := p.FindAgent("publishing_package"); pub != nil && pub.CurrentOutput != nil {
		content := pub.CurrentOutput.Content
		manuscript["metadata"] = map[string]any{
			"blurb":    content["blurb"],
			"synopsis": content["synopsis"],
			"keywords": content["keywords"],
		}
	}
	return manuscript
}

// ChapterCount is a small convenience for progress displays.
func ChapterCount(manuscript map[string]any) int {
	chapters, _ := manuscript["chapters"].([]any)
	return len(chapters)
}
