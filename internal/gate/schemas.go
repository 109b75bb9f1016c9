package gate

import (
	"fmt"
)

// schemaVariant is a typed shape for one agent's output. Content decodes into
// the variant and re-encodes as the normalized map, so downstream consumers
// see a stable structure instead of whatever key soup the backend produced.
type schemaVariant interface {
	Validate() error
}

var schemaVariants = map[string]func() schemaVariant{
	"chapter_blueprint":    func() schemaVariant { return &ChapterBlueprintOutput{} },
	"voice_specification":  func() schemaVariant { return &VoiceSpecificationOutput{} },
	"draft_generation":     func() schemaVariant { return &DraftGenerationOutput{} },
	"human_editor_review":  func() schemaVariant { return &HumanEditorReviewOutput{} },
	"production_readiness": func() schemaVariant { return &ProductionReadinessOutput{} },
	"final_proof":          func() schemaVariant { return &FinalProofOutput{} },
	"kdp_readiness":        func() schemaVariant { return &KDPReadinessOutput{} },
}

func reqStr(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

func reqRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%s must be between %d and %d, got %d", field, lo, hi, v)
	}
	return nil
}

type BlueprintScene struct {
	SceneNumber   int      `json:"scene_number"`
	SceneQuestion string   `json:"scene_question"`
	Characters    []string `json:"characters"`
	Location      string   `json:"location"`
	ConflictType  string   `json:"conflict_type"`
	Outcome       string   `json:"outcome"`
	WordTarget    int      `json:"word_target"`
}

func (s *BlueprintScene) Validate() error {
	if s.SceneNumber < 1 {
		return fmt.Errorf("scene_number must be >= 1")
	}
	if err := reqStr("scene_question", s.SceneQuestion); err != nil {
		return err
	}
	if len(s.Characters) == 0 {
		return fmt.Errorf("scene %d has no characters", s.SceneNumber)
	}
	if s.WordTarget < 100 {
		return fmt.Errorf("scene %d word_target must be >= 100", s.SceneNumber)
	}
	return nil
}

type BlueprintChapter struct {
	Number      int              `json:"number"`
	Title       string           `json:"title"`
	Act         int              `json:"act"`
	ChapterGoal string           `json:"chapter_goal"`
	POV         string           `json:"pov"`
	OpeningHook string           `json:"opening_hook"`
	ClosingHook string           `json:"closing_hook"`
	WordTarget  int              `json:"word_target"`
	Scenes      []BlueprintScene `json:"scenes"`
}

func (c *BlueprintChapter) Validate() error {
	if c.Number < 1 {
		return fmt.Errorf("chapter number must be >= 1")
	}
	if err := reqStr("title", c.Title); err != nil {
		return fmt.Errorf("chapter %d: %w", c.Number, err)
	}
	if err := reqRange("act", c.Act, 1, 3); err != nil {
		return fmt.Errorf("chapter %d: %w", c.Number, err)
	}
	if err := reqStr("chapter_goal", c.ChapterGoal); err != nil {
		return fmt.Errorf("chapter %d: %w", c.Number, err)
	}
	if c.WordTarget < 300 {
		return fmt.Errorf("chapter %d word_target must be >= 300", c.Number)
	}
	if len(c.Scenes) == 0 {
		return fmt.Errorf("chapter %d has no scenes", c.Number)
	}
	for i := range c.Scenes {
		if err := c.Scenes[i].Validate(); err != nil {
			return fmt.Errorf("chapter %d: %w", c.Number, err)
		}
	}
	return nil
}

type BlueprintHooks struct {
	ChapterHooks []string `json:"chapter_hooks"`
	SceneHooks   []string `json:"scene_hooks"`
}

type ChapterBlueprintOutput struct {
	ChapterOutline []BlueprintChapter `json:"chapter_outline"`
	ChapterGoals   map[string]string  `json:"chapter_goals,omitempty"`
	SceneList      []string           `json:"scene_list,omitempty"`
	SceneQuestions map[string]string  `json:"scene_questions,omitempty"`
	Hooks          BlueprintHooks     `json:"hooks"`
	POVAssignments map[string]string  `json:"pov_assignments,omitempty"`
}

func (o *ChapterBlueprintOutput) Validate() error {
	if len(o.ChapterOutline) < 3 {
		return fmt.Errorf("chapter_outline must have at least 3 chapters, got %d", len(o.ChapterOutline))
	}
	for i := range o.ChapterOutline {
		if err := o.ChapterOutline[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

type NarrativeVoice struct {
	POVType     string `json:"pov_type"`
	Distance    string `json:"distance"`
	Personality string `json:"personality"`
	Tone        string `json:"tone"`
}

type POVRules struct {
	PerspectiveCharacter string   `json:"perspective_character"`
	KnowledgeLimits      string   `json:"knowledge_limits"`
	Rules                []string `json:"rules"`
}

type TenseRules struct {
	PrimaryTense string   `json:"primary_tense"`
	Exceptions   []string `json:"exceptions,omitempty"`
}

type SyntaxPatterns struct {
	AvgSentenceLength string `json:"avg_sentence_length"`
	Complexity        string `json:"complexity"`
	Rhythm            string `json:"rhythm"`
}

type SensoryDensity struct {
	Visual      string `json:"visual"`
	OtherSenses string `json:"other_senses"`
	Frequency   string `json:"frequency"`
}

type DialogueStyle struct {
	TagApproach     string `json:"tag_approach"`
	SubtextLevel    string `json:"subtext_level"`
	Differentiation string `json:"differentiation"`
}

type StyleGuide struct {
	Dos             []string `json:"dos"`
	Donts           []string `json:"donts"`
	ExamplePassages []string `json:"example_passages"`
}

type VoiceSpecificationOutput struct {
	NarrativeVoice NarrativeVoice `json:"narrative_voice"`
	POVRules       POVRules       `json:"pov_rules"`
	TenseRules     TenseRules     `json:"tense_rules"`
	SyntaxPatterns SyntaxPatterns `json:"syntax_patterns"`
	SensoryDensity SensoryDensity `json:"sensory_density"`
	DialogueStyle  DialogueStyle  `json:"dialogue_style"`
	StyleGuide     StyleGuide     `json:"style_guide"`
}

func (o *VoiceSpecificationOutput) Validate() error {
	if err := reqStr("narrative_voice.pov_type", o.NarrativeVoice.POVType); err != nil {
		return err
	}
	if err := reqStr("pov_rules.perspective_character", o.POVRules.PerspectiveCharacter); err != nil {
		return err
	}
	if err := reqStr("tense_rules.primary_tense", o.TenseRules.PrimaryTense); err != nil {
		return err
	}
	if len(o.StyleGuide.Dos) == 0 || len(o.StyleGuide.Donts) == 0 {
		return fmt.Errorf("style_guide must include dos and donts")
	}
	if len(o.StyleGuide.ExamplePassages) == 0 {
		return fmt.Errorf("style_guide.example_passages is required")
	}
	return nil
}

type ChapterText struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Summary   string `json:"summary"`
	WordCount int    `json:"word_count"`
}

type ChapterMetadataItem struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Scenes int    `json:"scenes"`
	POV    string `json:"pov"`
}

type DraftGenerationOutput struct {
	Chapters         []ChapterText         `json:"chapters"`
	ChapterMetadata  []ChapterMetadataItem `json:"chapter_metadata"`
	WordCounts       map[string]int        `json:"word_counts,omitempty"`
	SceneTags        map[string]any        `json:"scene_tags,omitempty"`
	OutlineAdherence map[string]any        `json:"outline_adherence"`
	ChapterScores    map[string]int        `json:"chapter_scores,omitempty"`
	Deviations       []map[string]any      `json:"deviations"`
	FixPlan          []string              `json:"fix_plan"`
}

func (o *DraftGenerationOutput) Validate() error {
	if len(o.Chapters) == 0 {
		return fmt.Errorf("chapters must not be empty")
	}
	if len(o.ChapterMetadata) == 0 {
		return fmt.Errorf("chapter_metadata must not be empty")
	}
	for i := range o.Chapters {
		ch := &o.Chapters[i]
		if ch.Number < 1 {
			return fmt.Errorf("chapter %d: number must be >= 1", i+1)
		}
		if ch.Text == "" {
			return fmt.Errorf("chapter %d has no text", ch.Number)
		}
		if ch.WordCount < 0 {
			return fmt.Errorf("chapter %d word_count must be >= 0", ch.Number)
		}
	}
	return nil
}

type HumanEditorReviewOutput struct {
	Approved            bool     `json:"approved"`
	Confidence          int      `json:"confidence"`
	EditorialLetter     string   `json:"editorial_letter"`
	RequiredChanges     []string `json:"required_changes"`
	OptionalSuggestions []string `json:"optional_suggestions,omitempty"`
}

func (o *HumanEditorReviewOutput) Validate() error {
	if err := reqRange("confidence", o.Confidence, 0, 100); err != nil {
		return err
	}
	if len(o.EditorialLetter) < 10 {
		return fmt.Errorf("editorial_letter must be a substantive letter")
	}
	return nil
}

type ProductionReadinessOutput struct {
	QualityScore       int      `json:"quality_score"`
	ReleaseBlockers    []string `json:"release_blockers"`
	MajorIssues        []string `json:"major_issues,omitempty"`
	MinorIssues        []string `json:"minor_issues,omitempty"`
	RecommendedActions []string `json:"recommended_actions,omitempty"`
}

func (o *ProductionReadinessOutput) Validate() error {
	return reqRange("quality_score", o.QualityScore, 0, 100)
}

type FinalProofOutput struct {
	Approved            bool     `json:"approved"`
	OverallScore        int      `json:"overall_score"`
	CriticalIssues      int      `json:"critical_issues"`
	MajorIssues         any      `json:"major_issues,omitempty"`
	MinorIssues         any      `json:"minor_issues,omitempty"`
	PerChapterIssues    []any    `json:"per_chapter_issues"`
	ConsistencyFindings []any    `json:"consistency_findings,omitempty"`
	RecommendedActions  []string `json:"recommended_actions"`
}

func (o *FinalProofOutput) Validate() error {
	if err := reqRange("overall_score", o.OverallScore, 0, 100); err != nil {
		return err
	}
	if o.CriticalIssues < 0 {
		return fmt.Errorf("critical_issues must be >= 0")
	}
	return nil
}

type ExportSubReport struct {
	Generated bool           `json:"generated"`
	Valid     bool           `json:"valid"`
	Issues    []string       `json:"issues,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

type FrontMatterReport struct {
	IncludedPages      []string `json:"included_pages,omitempty"`
	MissingRecommended []string `json:"missing_recommended,omitempty"`
}

type KDPReadinessOutput struct {
	KindleReady       bool              `json:"kindle_ready"`
	EPUBReport        ExportSubReport   `json:"epub_report"`
	DOCXReport        ExportSubReport   `json:"docx_report"`
	FrontMatterReport FrontMatterReport `json:"front_matter_report"`
	Recommendations   []string          `json:"recommendations,omitempty"`
}

func (o *KDPReadinessOutput) Validate() error {
	if !o.EPUBReport.Generated && o.EPUBReport.Valid {
		return fmt.Errorf("epub_report cannot be valid without being generated")
	}
	return nil
}
