package gate

import (
	"fmt"
	"sort"
	"strings"

	"inkline/internal/domain"
)

// semanticCheck applies per-agent sanity rules on the normalized content.
// draft_generation may synthesize deviations and fix_plan entries in place
// instead of failing, to avoid a retry loop where the backend reports low
// adherence without itemizing it.
func semanticCheck(agentID string, content map[string]any) (domain.GateResult, bool) {
	switch agentID {
	case "chapter_blueprint":
		return checkChapterBlueprint(content)
	case "draft_generation":
		return checkDraftGeneration(content)
	case "production_readiness":
		return checkProductionReadiness(content)
	case "kdp_readiness":
		return checkKDPReadiness(content)
	case "final_proof":
		return checkFinalProof(content)
	case "human_editor_review":
		return checkHumanEditorReview(content)
	case "voice_specification":
		return checkVoiceSpecification(content)
	}
	return domain.GateResult{}, false
}

func checkChapterBlueprint(content map[string]any) (domain.GateResult, bool) {
	outline := asSlice(content["chapter_outline"])
	var nums []int
	for _, c := range outline {
		ch := asMap(c)
		if ch == nil {
			continue
		}
		if n, ok := asInt(ch["number"]); ok {
			nums = append(nums, n)
		}
	}
	if len(nums) == 0 {
		return fail("Chapter outline is empty.", errDetails("empty_chapter_outline")), true
	}

	seen := make(map[int]bool, len(nums))
	for _, n := range nums {
		if seen[n] {
			return fail("Duplicate chapter numbers found.", map[string]any{
				"errors": []any{map[string]any{"msg": "duplicate_chapter_numbers", "numbers": nums}},
			}), true
		}
		seen[n] = true
	}

	sorted := append([]int(nil), nums...)
	sort.Ints(sorted)
	for i, n := range sorted {
		if n != sorted[0]+i {
			return fail("Chapter numbers must be contiguous and increasing (e.g., 1..N).", map[string]any{
				"errors": []any{map[string]any{"msg": "non_contiguous_chapter_numbers", "found": sorted}},
			}), true
		}
	}

	// Scene word targets should sum roughly to the chapter target (±35%).
	var badChapters []any
	for _, c := range outline {
		ch := asMap(c)
		if ch == nil {
			continue
		}
		wt, _ := asInt(ch["word_target"])
		sum := 0
		for _, s := range asSlice(ch["scenes"]) {
			if sc := asMap(s); sc != nil {
				if v, ok := asInt(sc["word_target"]); ok {
					sum += v
				}
			}
		}
		if wt > 0 && sum > 0 && (sum < wt*65/100 || sum > wt*135/100) {
			num, _ := asInt(ch["number"])
			badChapters = append(badChapters, map[string]any{
				"chapter": num, "chapter_word_target": wt, "scenes_sum": sum,
			})
		}
	}
	if len(badChapters) > 0 {
		return fail("Some chapters have scene word targets that don't match the chapter target.", map[string]any{
			"errors": []any{map[string]any{"msg": "scene_word_targets_mismatch", "chapters": badChapters}},
		}), true
	}
	return domain.GateResult{}, false
}

func checkDraftGeneration(content map[string]any) (domain.GateResult, bool) {
	chapters := asSlice(content["chapters"])
	if len(chapters) == 0 {
		return fail("Draft must include at least one chapter.", errDetails("empty_chapters")), true
	}

	for _, k := range []string{"outline_adherence", "deviations", "fix_plan"} {
		if _, ok := content[k]; !ok {
			return fail("Draft must include outline_adherence, deviations, and fix_plan.",
				errDetails("missing_adherence_outputs")), true
		}
	}

	adherence := asMap(content["outline_adherence"])
	score, ok := asInt(adherence["overall_score"])
	if !ok || score < 0 || score > 100 {
		return fail("outline_adherence.overall_score must be an integer 0-100.", map[string]any{
			"errors": []any{map[string]any{"msg": "bad_overall_score", "value": adherence["overall_score"]}},
		}), true
	}

	deviations := asSlice(content["deviations"])
	if score < 80 && len(deviations) == 0 {
		var synth []any
		for chNum, raw := range asMap(adherence["chapter_scores"]) {
			chScore, ok := asInt(raw)
			if !ok || chScore >= 80 {
				continue
			}
			severity := "minor"
			if chScore < 60 {
				severity = "major"
			}
			synth = append(synth, map[string]any{
				"chapter":       chNum,
				"severity":      severity,
				"description":   fmt.Sprintf("Chapter %s scored %d/100 on outline adherence", chNum, chScore),
				"suggested_fix": fmt.Sprintf("Review chapter %s against its blueprint and revise deviating scenes", chNum),
			})
		}
		if len(synth) > 0 {
			deviations = synth
			content["deviations"] = synth
		}
		// With no per-chapter scores to draw from, let it through; the
		// rewrite agents downstream catch real problems.
	}

	if len(deviations) > 0 && len(asSlice(content["fix_plan"])) == 0 {
		var plan []any
		for _, d := range deviations {
			if len(plan) >= 12 {
				break
			}
			dev := asMap(d)
			if dev == nil {
				continue
			}
			fix, _ := dev["suggested_fix"].(string)
			if fix == "" {
				fix, _ = dev["description"].(string)
			}
			plan = append(plan, fmt.Sprintf("Chapter %v: %s", dev["chapter"], fix))
		}
		content["fix_plan"] = plan
	}

	// Sample-check the first chapters to catch obviously wrong metadata.
	var bad []any
	for i, c := range chapters {
		if i >= 5 {
			break
		}
		ch := asMap(c)
		if ch == nil {
			bad = append(bad, map[string]any{"msg": "non_object_chapter"})
			continue
		}
		text, _ := ch["text"].(string)
		wc, _ := asInt(ch["word_count"])
		if strings.Contains(text, "would be generated here") || wc == 0 {
			continue
		}
		approx := len(strings.Fields(text))
		if approx == 0 {
			continue
		}
		tolerance := wc / 4
		if tolerance < 200 {
			tolerance = 200
		}
		if diff := approx - wc; diff > tolerance || -diff > tolerance {
			num, _ := asInt(ch["number"])
			bad = append(bad, map[string]any{"chapter": num, "word_count": wc, "approx": approx})
		}
	}
	if len(bad) > 0 {
		return fail("Draft chapter word_count metadata appears inconsistent with text.", map[string]any{
			"errors": []any{map[string]any{"msg": "word_count_mismatch", "examples": bad}},
		}), true
	}
	return domain.GateResult{}, false
}

func checkProductionReadiness(content map[string]any) (domain.GateResult, bool) {
	score, ok := asInt(content["quality_score"])
	if ok && score < 85 && len(asSlice(content["release_blockers"])) == 0 {
		return fail("Production readiness score is below threshold but release_blockers is empty.", map[string]any{
			"errors": []any{map[string]any{"msg": "low_score_without_blockers", "quality_score": score}},
		}), true
	}
	return domain.GateResult{}, false
}

func checkKDPReadiness(content map[string]any) (domain.GateResult, bool) {
	var issues []string
	if ready, _ := content["kindle_ready"].(bool); !ready {
		issues = append(issues, "kindle_ready must be true to pass.")
	}
	epub := asMap(content["epub_report"])
	if valid, _ := epub["valid"].(bool); !valid {
		issues = append(issues, "EPUB report valid must be true.")
	}
	// A failed DOCX export alone is not fatal for KDP.
	if len(issues) > 0 {
		return fail("KDP readiness checks failed.", map[string]any{
			"errors": []any{map[string]any{"msg": "kdp_not_ready", "issues": issues}},
		}), true
	}
	return domain.GateResult{}, false
}

func checkFinalProof(content map[string]any) (domain.GateResult, bool) {
	approved, _ := content["approved"].(bool)
	if !approved {
		if len(asSlice(content["per_chapter_issues"])) == 0 && len(asSlice(content["recommended_actions"])) == 0 {
			return fail("If final_proof is not approved, it must include per_chapter_issues or recommended_actions.",
				errDetails("not_approved_without_actions")), true
		}
	}
	if critical, ok := asInt(content["critical_issues"]); ok && critical > 0 && approved {
		return fail("final_proof cannot be approved when critical_issues > 0.", map[string]any{
			"errors": []any{map[string]any{"msg": "approved_with_critical_issues", "critical_issues": critical}},
		}), true
	}
	return domain.GateResult{}, false
}

func checkHumanEditorReview(content map[string]any) (domain.GateResult, bool) {
	approved, isBool := content["approved"].(bool)
	required := asSlice(content["required_changes"])
	if isBool && !approved && len(required) == 0 {
		return fail("If approved=false, required_changes must be a non-empty list.",
			errDetails("not_approved_without_required_changes")), true
	}
	if isBool && approved && len(required) > 0 {
		return fail("If approved=true, required_changes must be empty.",
			errDetails("approved_with_required_changes")), true
	}
	return domain.GateResult{}, false
}

func checkVoiceSpecification(content map[string]any) (domain.GateResult, bool) {
	sg := asMap(content["style_guide"])
	for _, p := range asSlice(sg["example_passages"]) {
		if s, ok := p.(string); ok && strings.TrimSpace(s) != "" {
			return domain.GateResult{}, false
		}
	}
	return fail("Voice specification must include at least one non-empty example passage.",
		errDetails("missing_example_passages")), true
}
