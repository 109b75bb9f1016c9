package executor

import (
	"context"
	"log"
	"strings"
	"testing"
	"time"

	"inkline/internal/llm"
	"inkline/internal/orchestrator"
	"inkline/internal/registry"
)

type scriptedClient struct {
	replies []string
	calls   int
	prompts []string
}

func (c *scriptedClient) Generate(_ context.Context, req llm.Request) (llm.Response, error) {
	c.prompts = append(c.prompts, req.Prompt)
	if c.calls >= len(c.replies) {
		return llm.Response{}, &llm.BackendError{Kind: llm.KindRequestFailed, Msg: "script exhausted"}
	}
	text := c.replies[c.calls]
	c.calls++
	return llm.Response{Text: text, StopReason: "end_turn"}, nil
}

func testOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	o := orchestrator.New(registry.Book(), nil, log.New(&strings.Builder{}, "", 0))
	o.Now = func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) }
	return o
}

func TestPipelineInitDefaultsConstraints(t *testing.T) {
	o := testOrchestrator(t)
	p := o.CreateProject("Harbor Lights", map[string]any{
		"genre":             "mystery",
		"target_word_count": 70000,
	})

	def, _ := o.Registry().Get("orchestrator")
	out, err := PipelineInit(context.Background(), orchestrator.ExecContext{
		Project: p,
		Def:     def,
		Inputs:  map[string]any{"user_constraints": p.UserConstraints, "title": p.Title},
	})
	if err != nil {
		t.Fatalf("PipelineInit: %v", err)
	}

	state, ok := out["state_json"].(map[string]any)
	if !ok {
		t.Fatalf("state_json missing: %v", out)
	}
	if state["validation_passed"] != true {
		t.Fatalf("validation_passed = %v", state["validation_passed"])
	}
	constraints := state["constraints"].(map[string]any)
	if constraints["genre"] != "mystery" {
		t.Fatalf("user genre overridden: %v", constraints["genre"])
	}
	if constraints["pov"] != "third person limited" {
		t.Fatalf("pov default missing: %v", constraints["pov"])
	}
	if constraints["num_chapters"] != 20 {
		t.Fatalf("num_chapters = %v, want 20 for 70000 words", constraints["num_chapters"])
	}

	order, ok := out["stage_order"].([]string)
	if !ok || len(order) != o.Registry().Len()-1 {
		t.Fatalf("stage_order has %d entries, want %d", len(order), o.Registry().Len()-1)
	}
	for _, id := range order {
		if id == "orchestrator" {
			t.Fatal("stage_order includes the control agent")
		}
	}
}

func TestPipelineInitNumChaptersClamped(t *testing.T) {
	o := testOrchestrator(t)
	p := o.CreateProject("Short One", map[string]any{"target_word_count": 12000})
	def, _ := o.Registry().Get("orchestrator")

	out, err := PipelineInit(context.Background(), orchestrator.ExecContext{
		Project: p,
		Def:     def,
		Inputs:  map[string]any{"user_constraints": p.UserConstraints},
	})
	if err != nil {
		t.Fatalf("PipelineInit: %v", err)
	}
	constraints := out["state_json"].(map[string]any)["constraints"].(map[string]any)
	if constraints["num_chapters"] != 10 {
		t.Fatalf("num_chapters = %v, want floor of 10", constraints["num_chapters"])
	}
	if out["state_json"].(map[string]any)["validation_passed"] != false {
		t.Fatal("validation_passed should be false when genre is absent")
	}
}

func TestGenericParsesFencedJSON(t *testing.T) {
	o := testOrchestrator(t)
	p := o.CreateProject("Harbor Lights", nil)
	def, _ := o.Registry().Get("market_intelligence")

	client := &scriptedClient{replies: []string{
		"```json\n{\"reader_avatar\": {\"age\": \"30-45\"}, \"market_gap\": \"quiet literary thriller\", \"positioning_angle\": \"slow burn\", \"comp_analysis\": [\"A\", \"B\"]}\n```",
	}}
	exec := Generic(client)
	out, err := exec(context.Background(), orchestrator.ExecContext{
		Project: p,
		Def:     def,
		Inputs:  map[string]any{"user_constraints": map[string]any{"genre": "thriller"}},
	})
	if err != nil {
		t.Fatalf("Generic: %v", err)
	}
	if out["market_gap"] != "quiet literary thriller" {
		t.Fatalf("unexpected output: %v", out)
	}

	prompt := client.prompts[0]
	for _, want := range []string{def.Name, "reader_avatar", "user_constraints", "JSON"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestGenericBadReplyIsBadResponse(t *testing.T) {
	o := testOrchestrator(t)
	p := o.CreateProject("Harbor Lights", nil)
	def, _ := o.Registry().Get("market_intelligence")

	client := &scriptedClient{replies: []string{"sorry, I cannot produce JSON today"}}
	_, err := Generic(client)(context.Background(), orchestrator.ExecContext{Project: p, Def: def, Inputs: map[string]any{}})
	if err == nil {
		t.Fatal("want error for non-JSON reply")
	}
	if !llm.IsBadResponse(err) {
		t.Fatalf("want bad_response, got %v", err)
	}
}

func TestGenericNilClientFallsBackToPlaceholder(t *testing.T) {
	o := testOrchestrator(t)
	p := o.CreateProject("Harbor Lights", nil)
	def, _ := o.Registry().Get("market_intelligence")

	out, err := Generic(nil)(context.Background(), orchestrator.ExecContext{Project: p, Def: def, Inputs: map[string]any{}})
	if err != nil {
		t.Fatalf("Generic with nil client: %v", err)
	}
	if out["_status"] != "placeholder" {
		t.Fatalf("want placeholder output, got %v", out)
	}
	for _, name := range def.Outputs {
		if _, ok := out[name]; !ok {
			t.Fatalf("placeholder missing output key %s", name)
		}
	}
}

func TestBuildPromptTruncatesLargeInputs(t *testing.T) {
	def := registry.AgentDefinition{AgentID: "x", Name: "X", Purpose: "test", Outputs: []string{"y"}}
	big := strings.Repeat("a", inputValueLimit*2)
	prompt := buildPrompt(def, map[string]any{"draft": big})
	if !strings.Contains(prompt, "(truncated)") {
		t.Fatal("large input not truncated")
	}
	if len(prompt) > inputValueLimit+2000 {
		t.Fatalf("prompt too large: %d bytes", len(prompt))
	}
}
