// Package gate decides whether an agent's output passes its quality gate.
// Checks run in a fixed short-circuit order: explicit failure markers,
// placeholder bypass, required output keys, typed schema validation, then
// per-agent semantic rules.
package gate

import (
	"encoding/json"
	"fmt"
	"strings"

	"inkline/internal/domain"
)

// Marker keys an executor may set to force a gate verdict.
const (
	MarkerFailed  = "_gate_failed"
	MarkerMessage = "_gate_message"
	MarkerDetails = "_gate_details"

	// StatusPlaceholder marks offline demo output, which bypasses strict
	// validation.
	StatusPlaceholder = "placeholder"
)

// Validate checks one agent output. It returns the verdict and the normalized
// content: schema-validated agents get their content re-encoded through the
// typed variant, everything else passes through unchanged. The input map is
// never mutated.
func Validate(agentID string, content map[string]any, expectedOutputs []string) (domain.GateResult, map[string]any) {
	if content == nil {
		return fail("Agent output must be a JSON object.", errDetails("not_a_dict")), map[string]any{}
	}

	if truthy(content[MarkerFailed]) {
		msg, _ := content[MarkerMessage].(string)
		if msg == "" {
			msg = "Agent reported gate failure."
		}
		details, _ := content[MarkerDetails].(map[string]any)
		return fail(msg, details), content
	}

	if s, _ := content["_status"].(string); s == StatusPlaceholder {
		return pass("Gate bypassed: placeholder output.", map[string]any{"placeholder": true}), content
	}

	var missing []string
	for _, k := range expectedOutputs {
		if _, ok := content[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fail(
			fmt.Sprintf("Missing required outputs: %s", strings.Join(missing, ", ")),
			map[string]any{"missing": missing},
		), content
	}

	normalized := content
	details := map[string]any{}
	if factory, ok := schemaVariants[agentID]; ok {
		variant := factory()
		if err := decodeInto(content, variant); err != nil {
			return fail("Output failed schema validation.", map[string]any{
				"schema":        fmt.Sprintf("%T", variant),
				"schema_errors": []any{map[string]any{"msg": err.Error()}},
			}), content
		}
		if err := variant.Validate(); err != nil {
			return fail("Output failed schema validation.", map[string]any{
				"schema":        fmt.Sprintf("%T", variant),
				"schema_errors": []any{map[string]any{"msg": err.Error()}},
			}), content
		}
		m, err := encodeToMap(variant)
		if err != nil {
			return fail("Output failed schema validation.", errDetails(err.Error())), content
		}
		// Keys outside the schema (e.g. extra context an executor attached)
		// survive normalization.
		for k, v := range content {
			if _, ok := m[k]; !ok {
				m[k] = v
			}
		}
		normalized = m
		details["schema"] = fmt.Sprintf("%T", variant)
	} else {
		// Copy so semantic checks that synthesize keys never touch the input.
		normalized = make(map[string]any, len(content))
		for k, v := range content {
			normalized[k] = v
		}
	}

	if res, bad := semanticCheck(agentID, normalized); bad {
		return res, normalized
	}

	return pass("Gate passed.", details), normalized
}

func pass(msg string, details map[string]any) domain.GateResult {
	return domain.GateResult{Passed: true, Message: msg, Details: details}
}

func fail(msg string, details map[string]any) domain.GateResult {
	return domain.GateResult{Passed: false, Message: msg, Details: details}
}

func errDetails(msgs ...string) map[string]any {
	errs := make([]any, 0, len(msgs))
	for _, m := range msgs {
		errs = append(errs, map[string]any{"msg": m})
	}
	return map[string]any{"errors": errs}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	}
	return false
}

func decodeInto(content map[string]any, target any) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

func encodeToMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// asInt reads an integer from a decoded JSON value. JSON numbers arrive as
// float64; integers from in-process maps arrive as int.
func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t == float64(int(t)) {
			return int(t), true
		}
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), true
		}
	}
	return 0, false
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}
