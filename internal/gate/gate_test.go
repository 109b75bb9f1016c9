package gate

import (
	"strings"
	"testing"
)

func blueprintChapter(num, wordTarget int, sceneTargets ...int) map[string]any {
	scenes := make([]any, 0, len(sceneTargets))
	for i, wt := range sceneTargets {
		scenes = append(scenes, map[string]any{
			"scene_number":   i + 1,
			"scene_question": "Will the plan survive contact?",
			"characters":     []any{"Mara"},
			"location":       "harbor",
			"conflict_type":  "interpersonal",
			"outcome":        "setback",
			"word_target":    wt,
		})
	}
	return map[string]any{
		"number":       num,
		"title":        "Chapter",
		"act":          1,
		"chapter_goal": "Move the story state",
		"pov":          "Mara",
		"opening_hook": "A knock at dawn",
		"closing_hook": "The letter is gone",
		"word_target":  wordTarget,
		"scenes":       scenes,
	}
}

func blueprintContent(chapters ...map[string]any) map[string]any {
	outline := make([]any, len(chapters))
	for i, c := range chapters {
		outline[i] = c
	}
	return map[string]any{
		"chapter_outline": outline,
		"hooks":           map[string]any{},
	}
}

func TestValidateRejectsNilContent(t *testing.T) {
	res, _ := Validate("orchestrator", nil, nil)
	if res.Passed {
		t.Fatal("nil content must fail")
	}
}

func TestExplicitFailureMarker(t *testing.T) {
	res, _ := Validate("orchestrator", map[string]any{
		MarkerFailed:  true,
		MarkerMessage: "backend said no",
	}, nil)
	if res.Passed {
		t.Fatal("marker must force failure")
	}
	if res.Message != "backend said no" {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestPlaceholderBypass(t *testing.T) {
	res, norm := Validate("chapter_blueprint", map[string]any{"_status": "placeholder"}, []string{"chapter_outline"})
	if !res.Passed {
		t.Fatalf("placeholder must bypass validation: %s", res.Message)
	}
	if v, _ := res.Details["placeholder"].(bool); !v {
		t.Fatal("details must record the bypass")
	}
	if norm["_status"] != "placeholder" {
		t.Fatal("placeholder content must pass through")
	}
}

func TestMissingExpectedOutputs(t *testing.T) {
	res, _ := Validate("orchestrator", map[string]any{"agent_map": map[string]any{}}, []string{"agent_map", "stage_order"})
	if res.Passed {
		t.Fatal("missing keys must fail")
	}
	if !strings.Contains(res.Message, "stage_order") {
		t.Fatalf("message should name the missing key: %q", res.Message)
	}
}

func TestChapterBlueprintPasses(t *testing.T) {
	content := blueprintContent(
		blueprintChapter(1, 3000, 1500, 1500),
		blueprintChapter(2, 3000, 1000, 2000),
		blueprintChapter(3, 3000, 3000),
	)
	res, norm := Validate("chapter_blueprint", content, nil)
	if !res.Passed {
		t.Fatalf("expected pass: %s %v", res.Message, res.Details)
	}
	if len(asSlice(norm["chapter_outline"])) != 3 {
		t.Fatal("normalized content must keep the outline")
	}
}

func TestChapterBlueprintDuplicateNumbers(t *testing.T) {
	content := blueprintContent(
		blueprintChapter(1, 3000, 3000),
		blueprintChapter(1, 3000, 3000),
		blueprintChapter(2, 3000, 3000),
	)
	res, _ := Validate("chapter_blueprint", content, nil)
	if res.Passed || !strings.Contains(res.Message, "Duplicate") {
		t.Fatalf("expected duplicate failure, got %v %q", res.Passed, res.Message)
	}
}

func TestChapterBlueprintNonContiguous(t *testing.T) {
	content := blueprintContent(
		blueprintChapter(1, 3000, 3000),
		blueprintChapter(2, 3000, 3000),
		blueprintChapter(4, 3000, 3000),
	)
	res, _ := Validate("chapter_blueprint", content, nil)
	if res.Passed || !strings.Contains(res.Message, "contiguous") {
		t.Fatalf("expected contiguity failure, got %v %q", res.Passed, res.Message)
	}
}

func TestChapterBlueprintSceneWordMismatch(t *testing.T) {
	content := blueprintContent(
		blueprintChapter(1, 3000, 500),
		blueprintChapter(2, 3000, 3000),
		blueprintChapter(3, 3000, 3000),
	)
	res, _ := Validate("chapter_blueprint", content, nil)
	if res.Passed || !strings.Contains(res.Message, "word targets") {
		t.Fatalf("expected word target failure, got %v %q", res.Passed, res.Message)
	}
}

func draftContent(score int) map[string]any {
	return map[string]any{
		"chapters": []any{
			map[string]any{"number": 1, "title": "One", "text": "Placeholder chapter text would be generated here.", "summary": "s", "word_count": 0},
		},
		"chapter_metadata":  []any{map[string]any{"number": 1, "title": "One", "scenes": 2, "pov": "Mara"}},
		"outline_adherence": map[string]any{"overall_score": score, "chapter_scores": map[string]any{"1": 55}},
		"deviations":        []any{},
		"fix_plan":          []any{},
	}
}

func TestDraftSynthesizesDeviationsAndFixPlan(t *testing.T) {
	res, norm := Validate("draft_generation", draftContent(70), nil)
	if !res.Passed {
		t.Fatalf("low score with chapter scores should pass after synthesis: %s %v", res.Message, res.Details)
	}
	devs := asSlice(norm["deviations"])
	if len(devs) == 0 {
		t.Fatal("deviations should be synthesized from chapter scores")
	}
	if len(asSlice(norm["fix_plan"])) == 0 {
		t.Fatal("fix_plan should be synthesized from deviations")
	}
}

func TestDraftRejectsBadOverallScore(t *testing.T) {
	res, _ := Validate("draft_generation", draftContent(140), nil)
	if res.Passed || !strings.Contains(res.Message, "overall_score") {
		t.Fatalf("expected score failure, got %v %q", res.Passed, res.Message)
	}
}

func TestDraftWordCountMismatch(t *testing.T) {
	content := draftContent(95)
	content["chapters"] = []any{
		map[string]any{"number": 1, "title": "One", "text": "only a few words here", "summary": "s", "word_count": 4000},
	}
	res, _ := Validate("draft_generation", content, nil)
	if res.Passed || !strings.Contains(res.Message, "word_count") {
		t.Fatalf("expected word count failure, got %v %q", res.Passed, res.Message)
	}
}

func voiceContent(passages []any) map[string]any {
	return map[string]any{
		"narrative_voice": map[string]any{"pov_type": "third limited", "distance": "close", "personality": "wry", "tone": "tense"},
		"pov_rules":       map[string]any{"perspective_character": "Mara", "knowledge_limits": "only what Mara sees", "rules": []any{"no head hopping"}},
		"tense_rules":     map[string]any{"primary_tense": "past"},
		"syntax_patterns": map[string]any{"avg_sentence_length": "medium", "complexity": "moderate", "rhythm": "varied"},
		"sensory_density": map[string]any{"visual": "high", "other_senses": "medium", "frequency": "every scene"},
		"dialogue_style":  map[string]any{"tag_approach": "said", "subtext_level": "high", "differentiation": "strong"},
		"style_guide": map[string]any{
			"dos":              []any{"short sentences in action"},
			"donts":            []any{"no adverb stacking"},
			"example_passages": passages,
		},
	}
}

func TestVoiceSpecificationRequiresExamplePassage(t *testing.T) {
	res, _ := Validate("voice_specification", voiceContent([]any{"   "}), nil)
	if res.Passed {
		t.Fatal("blank passages must fail")
	}
	res, _ = Validate("voice_specification", voiceContent([]any{"The harbor smelled of rope and rain."}), nil)
	if !res.Passed {
		t.Fatalf("expected pass: %s %v", res.Message, res.Details)
	}
}

func editorContent(approved bool, required []any) map[string]any {
	return map[string]any{
		"approved":             approved,
		"confidence":           88,
		"editorial_letter":     "Strong draft with a sagging middle act.",
		"required_changes":     required,
		"optional_suggestions": []any{},
	}
}

func TestHumanEditorReviewRules(t *testing.T) {
	if res, _ := Validate("human_editor_review", editorContent(false, []any{}), nil); res.Passed {
		t.Fatal("rejection without required changes must fail")
	}
	if res, _ := Validate("human_editor_review", editorContent(true, []any{"cut chapter 7"}), nil); res.Passed {
		t.Fatal("approval with required changes must fail")
	}
	if res, _ := Validate("human_editor_review", editorContent(true, []any{}), nil); !res.Passed {
		t.Fatalf("clean approval should pass: %s", res.Message)
	}
}

func proofContent(approved bool, critical int) map[string]any {
	return map[string]any{
		"approved":             approved,
		"overall_score":        90,
		"critical_issues":      critical,
		"per_chapter_issues":   []any{},
		"recommended_actions":  []any{},
		"consistency_findings": []any{},
	}
}

func TestFinalProofRules(t *testing.T) {
	if res, _ := Validate("final_proof", proofContent(false, 0), nil); res.Passed {
		t.Fatal("rejection without actionable output must fail")
	}
	if res, _ := Validate("final_proof", proofContent(true, 2), nil); res.Passed {
		t.Fatal("approval with critical issues must fail")
	}
	if res, _ := Validate("final_proof", proofContent(true, 0), nil); !res.Passed {
		t.Fatalf("clean proof should pass: %s", res.Message)
	}
}

func TestProductionReadinessNeedsBlockersWhenLow(t *testing.T) {
	content := map[string]any{
		"quality_score":    70,
		"release_blockers": []any{},
	}
	if res, _ := Validate("production_readiness", content, nil); res.Passed {
		t.Fatal("low score without blockers must fail")
	}
	content["release_blockers"] = []any{"cover art missing"}
	if res, _ := Validate("production_readiness", content, nil); !res.Passed {
		t.Fatal("low score with blockers listed should pass the gate shape check")
	}
}

func TestKDPReadinessRules(t *testing.T) {
	content := map[string]any{
		"kindle_ready":        true,
		"epub_report":         map[string]any{"generated": true, "valid": true},
		"docx_report":         map[string]any{"generated": true, "valid": false},
		"front_matter_report": map[string]any{},
	}
	if res, _ := Validate("kdp_readiness", content, nil); !res.Passed {
		t.Fatal("valid EPUB with failed DOCX should still pass")
	}
	content["kindle_ready"] = false
	if res, _ := Validate("kdp_readiness", content, nil); res.Passed {
		t.Fatal("kindle_ready=false must fail")
	}
}

func TestValidateDoesNotMutateInput(t *testing.T) {
	content := draftContent(70)
	Validate("draft_generation", content, nil)
	if len(asSlice(content["deviations"])) != 0 {
		t.Fatal("synthesis must happen on the normalized copy, not the input")
	}
}
