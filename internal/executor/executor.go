// Package executor provides the executors that turn agent definitions into
// backend calls: a deterministic one for the pipeline-control agent and a
// generic definition-driven one for everything else.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"inkline/internal/llm"
	"inkline/internal/orchestrator"
	"inkline/internal/registry"
)

// Per-input serialization cap in the generic prompt. Upstream outputs can be
// entire manuscripts; the prompt carries a truncated view plus the key list.
const inputValueLimit = 8000

// RegisterAll installs executors for every registry agent: the control agent
// gets the deterministic initializer, the rest share the generic generator.
func RegisterAll(o *orchestrator.Orchestrator, client llm.Client) {
	for _, id := range o.Registry().IDs() {
		if id == "orchestrator" {
			o.RegisterExecutor(id, PipelineInit)
			continue
		}
		o.RegisterExecutor(id, Generic(client))
	}
}

// PipelineInit is the layer-0 control agent: it validates and defaults the
// user constraints and publishes the execution plan. No backend call.
func PipelineInit(_ context.Context, ec orchestrator.ExecContext) (map[string]any, error) {
	constraints := map[string]any{}
	if base, _ := ec.Inputs["user_constraints"].(map[string]any); base != nil {
		for k, v := range base {
			constraints[k] = v
		}
	}

	var missing []string
	for _, f := range []string{"genre", "target_word_count"} {
		if _, ok := constraints[f]; !ok {
			missing = append(missing, f)
		}
	}

	defaults := map[string]any{
		"genre":             "literary fiction",
		"target_word_count": 80000,
		"tone":              "engaging",
		"pov":               "third person limited",
		"target_audience":   "adult general",
		"setting_era":       "contemporary",
	}
	for k, v := range defaults {
		if _, ok := constraints[k]; !ok {
			constraints[k] = v
		}
	}
	if _, ok := constraints["num_chapters"]; !ok {
		wc := 80000
		switch t := constraints["target_word_count"].(type) {
		case int:
			wc = t
		case float64:
			wc = int(t)
		}
		n := wc / 3500
		if n < 10 {
			n = 10
		}
		if n > 40 {
			n = 40
		}
		constraints["num_chapters"] = n
	}

	stageOrder := stageOrderFrom(ec)

	keys := make([]string, 0, len(constraints))
	for k := range constraints {
		keys = append(keys, k)
	}

	return map[string]any{
		"agent_map":   keys,
		"stage_order": stageOrder,
		"state_json": map[string]any{
			"initialized":       true,
			"title":             ec.Project.Title,
			"constraints":       constraints,
			"validation_passed": len(missing) == 0,
		},
		"checkpoint_rules": map[string]any{
			"auto_save":             true,
			"save_after_each_layer": true,
			"max_checkpoints":       20,
		},
	}, nil
}

func stageOrderFrom(ec orchestrator.ExecContext) []string {
	// The project's own layer map carries every agent, which is all the plan
	// needs; the control agent excludes itself.
	var order []string
	for _, layerID := range ec.Project.LayerIDs() {
		ids := make(map[string]any, len(ec.Project.Layers[layerID].Agents))
		for id := range ec.Project.Layers[layerID].Agents {
			if id != ec.Def.AgentID {
				ids[id] = nil
			}
		}
		order = append(order, sortedKeys(ids)...)
	}
	return order
}

// Generic returns the definition-driven executor: it renders the agent's
// purpose, gate criteria and gathered inputs into one JSON-demanding prompt.
// With no backend it degrades to placeholder output.
func Generic(client llm.Client) orchestrator.Executor {
	return func(ctx context.Context, ec orchestrator.ExecContext) (map[string]any, error) {
		if client == nil {
			return orchestrator.PlaceholderExecutor(ctx, ec)
		}

		prompt := buildPrompt(ec.Def, ec.Inputs)
		reply, err := client.Generate(ctx, llm.Request{
			Prompt:         prompt,
			ResponseFormat: "json",
			Temperature:    0.7,
		})
		if err != nil {
			return nil, fmt.Errorf("executing %s: %w", ec.Def.AgentID, err)
		}

		var result map[string]any
		if err := json.Unmarshal([]byte(llm.ExtractJSON(reply.Text)), &result); err != nil {
			return nil, &llm.BackendError{Kind: llm.KindBadResponse, Msg: fmt.Sprintf("agent %s reply is not a JSON object", ec.Def.AgentID), Err: err}
		}
		return result, nil
	}
}

func buildPrompt(def registry.AgentDefinition, inputs map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %q agent in a book development pipeline.\n\n", def.Name)
	fmt.Fprintf(&b, "## Purpose\n%s\n\n", def.Purpose)
	if def.GateCriteria != "" {
		fmt.Fprintf(&b, "## Quality gate\nYour output passes only if: %s\nIt fails if: %s\n\n", def.GateCriteria, def.FailCondition)
	}

	outputs, _ := json.Marshal(def.Outputs)
	fmt.Fprintf(&b, "## Required output\nA single JSON object with exactly these top-level keys:\n%s\n\n", outputs)

	b.WriteString("## Inputs\n")
	for _, name := range sortedKeys(inputs) {
		raw, err := json.Marshal(inputs[name])
		if err != nil {
			continue
		}
		val := string(raw)
		if len(val) > inputValueLimit {
			val = val[:inputValueLimit] + `... (truncated)`
		}
		fmt.Fprintf(&b, "### %s\n%s\n\n", name, val)
	}

	b.WriteString("Respond with ONLY the JSON object. No markdown, no commentary.")
	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
