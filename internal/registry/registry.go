package registry

import (
	"fmt"
)

// DefaultRetryLimit applies when a definition does not set its own.
const DefaultRetryLimit = 3

// AgentType categorizes what kind of work an agent performs.
type AgentType string

const (
	TypeResearch   AgentType = "research"
	TypeCreative   AgentType = "creative"
	TypeStructural AgentType = "structural"
	TypeValidation AgentType = "validation"
	TypeGeneration AgentType = "generation"
	TypeEditing    AgentType = "editing"
	TypeLegal      AgentType = "legal"
)

// AgentDefinition is the immutable description of one pipeline agent.
type AgentDefinition struct {
	AgentID       string    `json:"agent_id" yaml:"agent_id"`
	Name          string    `json:"name" yaml:"name"`
	Layer         int       `json:"layer" yaml:"layer"`
	Type          AgentType `json:"type" yaml:"type"`
	Purpose       string    `json:"purpose,omitempty" yaml:"purpose,omitempty"`
	Inputs        []string  `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs       []string  `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Dependencies  []string  `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	GateCriteria  string    `json:"gate_criteria,omitempty" yaml:"gate_criteria,omitempty"`
	FailCondition string    `json:"fail_condition,omitempty" yaml:"fail_condition,omitempty"`
	RetryLimit    int       `json:"retry_limit" yaml:"retry_limit"`
}

// Registry holds agent definitions in declaration order. It is built once at
// process start and passed by reference; it is never mutated afterwards.
type Registry struct {
	order      []string
	defs       map[string]AgentDefinition
	layerNames map[int]string
}

// New validates the definitions and builds a registry. Validation failures are
// programming errors in the definition set, so New refuses to construct: a
// duplicate id, an unknown dependency, a dependency cycle or an agent placed
// on a layer below one of its dependencies all fail fast here rather than at
// scheduling time.
func New(defs []AgentDefinition) (*Registry, error) {
	r := &Registry{
		defs:       make(map[string]AgentDefinition, len(defs)),
		layerNames: make(map[int]string),
	}
	for _, def := range defs {
		if def.AgentID == "" {
			return nil, fmt.Errorf("registry: agent definition with empty id")
		}
		if _, dup := r.defs[def.AgentID]; dup {
			return nil, fmt.Errorf("registry: duplicate agent id %s", def.AgentID)
		}
		if def.RetryLimit <= 0 {
			def.RetryLimit = DefaultRetryLimit
		}
		r.defs[def.AgentID] = def
		r.order = append(r.order, def.AgentID)
		if _, ok := r.layerNames[def.Layer]; !ok {
			r.layerNames[def.Layer] = def.Name
		}
	}
	for _, id := range r.order {
		def := r.defs[id]
		for _, dep := range def.Dependencies {
			depDef, ok := r.defs[dep]
			if !ok {
				return nil, fmt.Errorf("registry: agent %s depends on unknown agent %s", id, dep)
			}
			if def.Layer < depDef.Layer {
				return nil, fmt.Errorf("registry: agent %s (layer %d) depends on %s from higher layer %d", id, def.Layer, dep, depDef.Layer)
			}
		}
	}
	if err := r.checkAcyclic(); err != nil {
		return nil, err
	}
	return r, nil
}

// MustNew panics on an invalid definition set. Intended for the built-in
// pipeline, where an invalid registry is a build defect.
func MustNew(defs []AgentDefinition) *Registry {
	r, err := New(defs)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) checkAcyclic() error {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(r.defs))
	var visit func(id string, trail []string) error
	visit = func(id string, trail []string) error {
		switch color[id] {
		case grey:
			return fmt.Errorf("registry: dependency cycle involving %s (path %v)", id, trail)
		case black:
			return nil
		}
		color[id] = grey
		for _, dep := range r.defs[id].Dependencies {
			if err := visit(dep, append(trail, id)); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}
	for _, id := range r.order {
		if err := visit(id, nil); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the definition for an agent id, if registered.
func (r *Registry) Get(agentID string) (AgentDefinition, bool) {
	def, ok := r.defs[agentID]
	return def, ok
}

// Has reports whether the id is registered.
func (r *Registry) Has(agentID string) bool {
	_, ok := r.defs[agentID]
	return ok
}

// Len returns the number of registered agents.
func (r *Registry) Len() int { return len(r.order) }

// IDs returns all agent ids in declaration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ExecutionOrder returns agent ids so that every dependency precedes its
// dependents. Ties are broken by declaration order, which makes the result
// stable across calls.
func (r *Registry) ExecutionOrder() []string {
	visited := make(map[string]bool, len(r.defs))
	order := make([]string, 0, len(r.defs))
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		def, ok := r.defs[id]
		if !ok {
			return
		}
		visited[id] = true
		for _, dep := range def.Dependencies {
			visit(dep)
		}
		order = append(order, id)
	}
	for _, id := range r.order {
		visit(id)
	}
	return order
}

// AgentsByLayer returns the definitions on a layer in declaration order.
func (r *Registry) AgentsByLayer(layer int) []AgentDefinition {
	var out []AgentDefinition
	for _, id := range r.order {
		if def := r.defs[id]; def.Layer == layer {
			out = append(out, def)
		}
	}
	return out
}

// Layers returns the distinct layer ids declared by the definitions, sorted
// ascending. Projects derive their layer set from this, so every declared
// layer exists even when the ids are sparse.
func (r *Registry) Layers() []int {
	seen := make(map[int]bool)
	var ids []int
	for _, id := range r.order {
		l := r.defs[id].Layer
		if !seen[l] {
			seen[l] = true
			ids = append(ids, l)
		}
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

// LayerName returns a display name for a layer id.
func (r *Registry) LayerName(layer int) string {
	if name, ok := bookLayerNames[layer]; ok {
		return name
	}
	if name, ok := r.layerNames[layer]; ok {
		return name
	}
	return fmt.Sprintf("Layer %d", layer)
}

// RetryLimit returns the retry limit for an agent, falling back to the
// default when the agent is unknown.
func (r *Registry) RetryLimit(agentID string) int {
	if def, ok := r.defs[agentID]; ok {
		return def.RetryLimit
	}
	return DefaultRetryLimit
}
