package registry

// bookLayerNames gives display names for the built-in pipeline's layers.
var bookLayerNames = map[int]string{
	0:  "Orchestration & State Control",
	1:  "Market & Reader Intelligence",
	2:  "Core Concept Definition",
	3:  "Thematic Architecture",
	4:  "Central Story Question",
	5:  "World / Context Rules",
	6:  "Character Architecture",
	7:  "Relationship Dynamics",
	8:  "Macro Plot Structure",
	9:  "Pacing & Tension Design",
	10: "Chapter & Scene Blueprint",
	11: "Style & Voice Specification",
	12: "Draft Generation",
	13: "Continuity & Logic Audit",
	14: "Emotional Impact Validation",
	15: "Originality & Legal Safety",
	16: "Rewrite & Revalidation",
	17: "Line & Copy Edit",
	18: "Beta Reader Simulation",
	19: "Final Quality Validation",
	20: "Publishing Package",
	21: "Marketing & Commercial Optimization",
}

// Book returns the built-in book development pipeline: 33 agents across
// layers 0 to 21, from orchestration through marketing.
func Book() *Registry {
	return MustNew(bookDefs())
}

func bookDefs() []AgentDefinition {
	return []AgentDefinition{
		{
			AgentID:       "orchestrator",
			Name:          "Orchestration & State Control",
			Layer:         0,
			Type:          TypeStructural,
			Purpose:       "Control flow, manage dependencies, handle versioning and checkpoints",
			Inputs:        []string{"user_constraints"},
			Outputs:       []string{"agent_map", "stage_order", "state_json", "checkpoint_rules"},
			GateCriteria:  "All agents registered and dependencies valid",
			FailCondition: "Missing constraints or circular dependencies",
		},
		{
			AgentID:       "market_intelligence",
			Name:          "Market & Reader Intelligence",
			Layer:         1,
			Type:          TypeResearch,
			Purpose:       "Analyze market demand and define target reader",
			Inputs:        []string{"user_constraints", "genre", "comparable_titles"},
			Outputs:       []string{"reader_avatar", "market_gap", "positioning_angle", "comp_analysis"},
			Dependencies:  []string{"orchestrator"},
			GateCriteria:  "Clear market differentiation identified",
			FailCondition: "Commodity concept with no unique angle",
		},
		{
			AgentID:       "concept_definition",
			Name:          "Core Concept Definition",
			Layer:         2,
			Type:          TypeCreative,
			Purpose:       "Define the book's core promise and unique value",
			Inputs:        []string{"market_gap", "positioning_angle", "user_vision"},
			Outputs:       []string{"one_line_hook", "core_promise", "unique_engine", "elevator_pitch"},
			Dependencies:  []string{"market_intelligence"},
			GateCriteria:  "Hook is clear, memorable, and marketable",
			FailCondition: "Vague or generic premise",
		},
		{
			AgentID:       "thematic_architecture",
			Name:          "Thematic Architecture",
			Layer:         3,
			Type:          TypeCreative,
			Purpose:       "Establish the meaning layer and value conflicts",
			Inputs:        []string{"core_promise", "unique_engine"},
			Outputs:       []string{"primary_theme", "counter_theme", "value_conflict", "thematic_question"},
			Dependencies:  []string{"concept_definition"},
			GateCriteria:  "Theme actively drives story conflict",
			FailCondition: "Theme is decorative only, not structural",
		},
		{
			AgentID:       "story_question",
			Name:          "Central Story Question",
			Layer:         4,
			Type:          TypeCreative,
			Purpose:       "Define the narrative's central dramatic question",
			Inputs:        []string{"primary_theme", "value_conflict", "core_promise"},
			Outputs:       []string{"central_dramatic_question", "stakes_ladder", "binary_outcome", "reader_investment"},
			Dependencies:  []string{"thematic_architecture"},
			GateCriteria:  "Question has binary yes/no outcome with clear stakes",
			FailCondition: "No real loss if protagonist fails",
		},
		{
			AgentID:       "world_rules",
			Name:          "World / Context Rules",
			Layer:         5,
			Type:          TypeCreative,
			Purpose:       "Define the constraints and rules of the story world",
			Inputs:        []string{"central_dramatic_question", "genre", "user_constraints"},
			Outputs:       []string{"physical_rules", "social_rules", "power_rules", "world_bible", "constraint_list"},
			Dependencies:  []string{"story_question"},
			GateCriteria:  "Constraints actively enforce story tension",
			FailCondition: "Rules break plot or remove tension",
		},
		{
			AgentID:       "character_architecture",
			Name:          "Character Architecture",
			Layer:         6,
			Type:          TypeCreative,
			Purpose:       "Design characters as agents of thematic change",
			Inputs:        []string{"primary_theme", "central_dramatic_question", "world_rules"},
			Outputs: []string{
				"protagonist_profile", "protagonist_arc", "want_vs_need",
				"antagonist_profile", "antagonistic_force",
				"supporting_cast", "character_functions",
			},
			Dependencies:  []string{"world_rules"},
			GateCriteria:  "Every character pressures the theme",
			FailCondition: "Passive protagonist or purposeless characters",
		},
		{
			AgentID:       "relationship_dynamics",
			Name:          "Relationship Dynamics",
			Layer:         7,
			Type:          TypeCreative,
			Purpose:       "Map the emotional engine through character relationships",
			Inputs:        []string{"character_architecture", "primary_theme", "value_conflict"},
			Outputs:       []string{"conflict_web", "power_shifts", "dependency_arcs", "relationship_matrix"},
			Dependencies:  []string{"character_architecture"},
			GateCriteria:  "Relationships evolve meaningfully through story",
			FailCondition: "Static interactions that don't change",
		},
		{
			AgentID:       "story_bible",
			Name:          "Story Bible",
			Layer:         7,
			Type:          TypeCreative,
			Purpose:       "Create canonical reference document to ensure consistency across all chapters",
			Inputs:        []string{"character_architecture", "world_rules", "relationship_dynamics"},
			Outputs:       []string{"character_registry", "location_registry", "timeline", "relationship_map", "terminology", "backstory_facts", "consistency_rules"},
			Dependencies:  []string{"relationship_dynamics"},
			GateCriteria:  "All canonical facts locked in with no ambiguity",
			FailCondition: "Missing key character details or conflicting facts",
		},
		{
			AgentID: "plot_structure",
			Name:    "Macro Plot Structure",
			Layer:   8,
			Type:    TypeStructural,
			Purpose: "Design the story's momentum and major beats",
			Inputs:  []string{"central_dramatic_question", "protagonist_arc", "relationship_dynamics"},
			Outputs: []string{
				"act_structure", "major_beats", "reversals",
				"point_of_no_return", "climax_design", "resolution",
			},
			Dependencies:  []string{"relationship_dynamics"},
			GateCriteria:  "Clear escalation through all acts",
			FailCondition: "Flat middle or unearned climax",
		},
		{
			AgentID:       "pacing_design",
			Name:          "Pacing & Tension Design",
			Layer:         9,
			Type:          TypeStructural,
			Purpose:       "Control reader energy and engagement rhythm",
			Inputs:        []string{"plot_structure", "act_structure", "genre"},
			Outputs:       []string{"tension_curve", "scene_density_map", "breather_points", "acceleration_zones"},
			Dependencies:  []string{"plot_structure"},
			GateCriteria:  "No dead zones in tension",
			FailCondition: "Prolonged low tension or reader fatigue",
		},
		{
			AgentID: "chapter_blueprint",
			Name:    "Chapter & Scene Blueprint",
			Layer:   10,
			Type:    TypeStructural,
			Purpose: "Create detailed execution map for writing",
			Inputs:  []string{"plot_structure", "pacing_design", "character_architecture"},
			Outputs: []string{
				"chapter_outline", "chapter_goals", "scene_list",
				"scene_questions", "hooks", "pov_assignments",
			},
			Dependencies:  []string{"pacing_design"},
			GateCriteria:  "Each chapter changes story state",
			FailCondition: "Filler scenes with no purpose",
		},
		{
			AgentID: "voice_specification",
			Name:    "Style & Voice Specification",
			Layer:   11,
			Type:    TypeCreative,
			Purpose: "Define consistent narrative voice and style rules",
			Inputs:  []string{"genre", "reader_avatar", "protagonist_profile", "user_constraints"},
			Outputs: []string{
				"narrative_voice", "pov_rules", "tense_rules",
				"syntax_patterns", "sensory_density", "dialogue_style",
				"style_guide",
			},
			Dependencies:  []string{"chapter_blueprint"},
			GateCriteria:  "Style test passages pass consistency check",
			FailCondition: "Voice drift or inconsistent tone",
		},
		{
			AgentID: "draft_generation",
			Name:    "Draft Generation",
			Layer:   12,
			Type:    TypeGeneration,
			Purpose: "Produce the manuscript chapters",
			Inputs: []string{
				"chapter_blueprint", "voice_specification", "character_architecture",
				"world_rules", "style_guide",
			},
			Outputs: []string{
				"chapters", "chapter_metadata", "word_counts", "scene_tags",
				"outline_adherence", "chapter_scores", "deviations", "fix_plan",
			},
			Dependencies:  []string{"voice_specification"},
			GateCriteria:  "Draft follows outline and voice spec",
			FailCondition: "Off-outline drift or voice inconsistency",
		},
		{
			AgentID:       "continuity_audit",
			Name:          "Continuity & Logic Audit",
			Layer:         13,
			Type:          TypeValidation,
			Purpose:       "Verify canon integrity and internal consistency",
			Inputs:        []string{"chapters", "world_rules", "character_architecture", "chapter_blueprint"},
			Outputs:       []string{"timeline_check", "character_logic_check", "world_rule_check", "continuity_report"},
			Dependencies:  []string{"draft_generation"},
			GateCriteria:  "Zero contradictions in canon",
			FailCondition: "Canon breaks or timeline errors",
		},
		{
			AgentID:       "emotional_validation",
			Name:          "Emotional Impact Validation",
			Layer:         14,
			Type:          TypeValidation,
			Purpose:       "Verify reader payoff and emotional resonance",
			Inputs:        []string{"chapters", "protagonist_arc", "stakes_ladder", "tension_curve"},
			Outputs:       []string{"scene_resonance_scores", "arc_fulfillment_check", "emotional_peaks_map"},
			Dependencies:  []string{"continuity_audit"},
			GateCriteria:  "Emotional peaks land as designed",
			FailCondition: "Flat climax or unearned emotions",
		},
		{
			AgentID:       "originality_scan",
			Name:          "Creative Originality Scan",
			Layer:         15,
			Type:          TypeLegal,
			Purpose:       "Detect trope cloning and unintentional similarity",
			Inputs:        []string{"chapters", "plot_structure", "character_architecture"},
			Outputs:       []string{"structural_similarity_report", "phrase_recurrence_check", "originality_score"},
			Dependencies:  []string{"emotional_validation"},
			GateCriteria:  "Originality threshold met",
			FailCondition: "Pattern collision with known works",
		},
		{
			AgentID: "plagiarism_audit",
			Name:    "Legal Plagiarism & Copyright Audit",
			Layer:   15,
			Type:    TypeLegal,
			Purpose: "Assess legal risk from similarity to existing works",
			Inputs:  []string{"chapters", "originality_scan"},
			Outputs: []string{
				"substantial_similarity_check", "character_likeness_check",
				"scene_replication_check", "protected_expression_check", "legal_risk_score",
			},
			Dependencies:  []string{"originality_scan"},
			GateCriteria:  "Low legal risk score",
			FailCondition: "Infringement risk detected",
		},
		{
			AgentID:       "transformative_verification",
			Name:          "Transformative Use Verification",
			Layer:         15,
			Type:          TypeLegal,
			Purpose:       "Verify legal defensibility of creative choices",
			Inputs:        []string{"chapters", "plagiarism_audit"},
			Outputs:       []string{"independent_creation_proof", "market_confusion_check", "transformative_distance"},
			Dependencies:  []string{"plagiarism_audit"},
			GateCriteria:  "Sufficient transformative distance",
			FailCondition: "Derivative exposure risk",
		},
		{
			AgentID:       "structural_rewrite",
			Name:          "Structural & Prose Rewrite",
			Layer:         16,
			Type:          TypeEditing,
			Purpose:       "Improve clarity, force, and resolve flagged issues",
			Inputs:        []string{"chapters", "continuity_audit", "emotional_validation", "originality_scan", "plagiarism_audit", "transformative_verification"},
			Outputs:       []string{"revised_chapters", "revision_log", "resolved_flags"},
			Dependencies:  []string{"transformative_verification"},
			GateCriteria:  "All flagged issues resolved",
			FailCondition: "New inconsistencies introduced",
		},
		{
			AgentID:       "post_rewrite_scan",
			Name:          "Post-Rewrite Originality Re-Scan",
			Layer:         16,
			Type:          TypeLegal,
			Purpose:       "Catch rewrite-introduced similarity",
			Inputs:        []string{"revised_chapters"},
			Outputs:       []string{"rewrite_originality_check", "new_similarity_flags"},
			Dependencies:  []string{"structural_rewrite"},
			GateCriteria:  "Clean scan with no new flags",
			FailCondition: "Reintroduced similarity patterns",
		},
		{
			AgentID:       "line_edit",
			Name:          "Line & Copy Edit",
			Layer:         17,
			Type:          TypeEditing,
			Purpose:       "Polish prose for precision and rhythm",
			Inputs:        []string{"revised_chapters", "style_guide"},
			Outputs:       []string{"edited_chapters", "grammar_fixes", "rhythm_improvements", "edit_report"},
			Dependencies:  []string{"post_rewrite_scan"},
			GateCriteria:  "Editorial standards met",
			FailCondition: "Mechanical errors remain",
		},
		{
			AgentID:       "beta_simulation",
			Name:          "Beta Reader Simulation",
			Layer:         18,
			Type:          TypeValidation,
			Purpose:       "Simulate market reader response",
			Inputs:        []string{"edited_chapters", "reader_avatar", "genre"},
			Outputs:       []string{"dropoff_points", "confusion_zones", "engagement_scores", "feedback_summary"},
			Dependencies:  []string{"line_edit"},
			GateCriteria:  "Engagement sustained throughout",
			FailCondition: "Reader abandonment predicted",
		},
		{
			AgentID:       "final_validation",
			Name:          "Final Quality Validation",
			Layer:         19,
			Type:          TypeValidation,
			Purpose:       "Verify complete promise fulfillment",
			Inputs:        []string{"edited_chapters", "core_promise", "primary_theme", "central_dramatic_question"},
			Outputs:       []string{"concept_match_score", "theme_payoff_check", "promise_fulfillment", "release_recommendation"},
			Dependencies:  []string{"human_editor_review"},
			GateCriteria:  "Release approved",
			FailCondition: "Core promise not delivered",
		},
		{
			AgentID: "human_editor_review",
			Name:    "Human Editor Review (AI Simulation)",
			Layer:   19,
			Type:    TypeValidation,
			Purpose: "Simulate a professional human editor's review with required changes and an editorial letter",
			Inputs: []string{
				"edited_chapters", "voice_specification", "chapter_blueprint",
				"market_intelligence", "concept_definition", "thematic_architecture",
				"story_question", "user_constraints",
			},
			Outputs:       []string{"approved", "confidence", "editorial_letter", "required_changes", "optional_suggestions"},
			Dependencies:  []string{"beta_simulation"},
			GateCriteria:  "approved=true and required_changes empty",
			FailCondition: "Editor requests required changes before publication",
		},
		{
			AgentID:       "production_readiness",
			Name:          "Production Readiness Report",
			Layer:         19,
			Type:          TypeValidation,
			Purpose:       "Create a QA-style release checklist and blockers for publication",
			Inputs:        []string{"edited_chapters", "release_recommendation", "metadata", "user_constraints"},
			Outputs:       []string{"quality_score", "release_blockers", "major_issues", "minor_issues", "recommended_actions"},
			Dependencies:  []string{"final_validation"},
			GateCriteria:  "No release blockers and quality_score >= 85",
			FailCondition: "Release blockers present or quality score below threshold",
		},
		{
			AgentID:       "publishing_package",
			Name:          "Publishing Package",
			Layer:         20,
			Type:          TypeGeneration,
			Purpose:       "Create market-ready publishing materials",
			Inputs:        []string{"edited_chapters", "core_promise", "reader_avatar", "positioning_angle"},
			Outputs:       []string{"blurb", "synopsis", "metadata", "keywords", "series_hooks", "author_bio"},
			Dependencies:  []string{"final_validation", "production_readiness"},
			GateCriteria:  "Platform-ready package complete",
			FailCondition: "Weak positioning or missing elements",
		},
		{
			AgentID:       "kdp_readiness",
			Name:          "Kindle / KDP Readiness",
			Layer:         20,
			Type:          TypeValidation,
			Purpose:       "Validate EPUB/DOCX exports and ensure front/back matter readiness for Kindle publishing",
			Inputs:        []string{"edited_chapters", "publishing_package", "user_constraints", "title", "author_name"},
			Outputs:       []string{"kindle_ready", "epub_report", "docx_report", "front_matter_report", "recommendations"},
			Dependencies:  []string{"publishing_package", "final_proof"},
			GateCriteria:  "kindle_ready=true and no critical issues in export reports",
			FailCondition: "EPUB/DOCX export validation fails or front matter is missing",
		},
		{
			AgentID:       "final_proof",
			Name:          "Final Proof (Full Manuscript)",
			Layer:         20,
			Type:          TypeEditing,
			Purpose:       "Run a full-manuscript proof/copy check and consistency scan before Kindle release",
			Inputs:        []string{"edited_chapters", "style_guide", "voice_specification", "chapter_blueprint", "user_constraints"},
			Outputs:       []string{"approved", "overall_score", "critical_issues", "major_issues", "minor_issues", "per_chapter_issues", "consistency_findings", "recommended_actions"},
			Dependencies:  []string{"production_readiness"},
			GateCriteria:  "approved=true and critical_issues=0",
			FailCondition: "Critical proof issues remain",
		},
		{
			AgentID:       "ip_clearance",
			Name:          "IP, Title & Brand Clearance",
			Layer:         20,
			Type:          TypeLegal,
			Purpose:       "Verify naming safety for publication",
			Inputs:        []string{"title", "character_names", "series_name"},
			Outputs:       []string{"title_conflict_check", "series_naming_check", "character_naming_check", "clearance_status"},
			Dependencies:  []string{"kdp_readiness"},
			GateCriteria:  "All naming cleared",
			FailCondition: "Rename required",
		},
		{
			AgentID:       "blurb_generator",
			Name:          "Amazon Blurb Generator",
			Layer:         21,
			Type:          TypeGeneration,
			Purpose:       "Generate Amazon-optimized book descriptions and marketing copy",
			Inputs:        []string{"concept_definition", "character_architecture", "story_question", "user_constraints"},
			Outputs:       []string{"short_blurb", "full_blurb", "a_plus_content", "tagline", "comparison_pitch"},
			Dependencies:  []string{"publishing_package"},
			GateCriteria:  "Blurb follows Amazon best practices and hooks reader",
			FailCondition: "Generic blurb without emotional hooks",
		},
		{
			AgentID:       "keyword_optimizer",
			Name:          "KDP Keyword Optimizer",
			Layer:         21,
			Type:          TypeResearch,
			Purpose:       "Generate optimized KDP keywords and BISAC categories",
			Inputs:        []string{"user_constraints", "world_rules", "character_architecture", "thematic_architecture", "plot_structure"},
			Outputs:       []string{"primary_keywords", "backup_keywords", "bisac_categories", "amazon_categories", "search_volume_notes", "competition_notes"},
			Dependencies:  []string{"blurb_generator"},
			GateCriteria:  "7 high-quality keywords with proper categorization",
			FailCondition: "Keywords too generic or violate KDP rules",
		},
		{
			AgentID:       "series_bible",
			Name:          "Series Bible Generator",
			Layer:         21,
			Type:          TypeGeneration,
			Purpose:       "Create series continuity bible for multi-book planning",
			Inputs:        []string{"story_bible", "draft_generation", "character_architecture"},
			Outputs:       []string{"series_potential", "unresolved_threads", "character_futures", "world_expansion", "series_hooks", "spinoff_potential", "timeline_for_series", "recurring_elements", "series_title_suggestions"},
			Dependencies:  []string{"keyword_optimizer"},
			GateCriteria:  "Series bible captures all continuation potential",
			FailCondition: "Misses obvious sequel opportunities",
		},
		{
			AgentID:       "comp_analysis",
			Name:          "Comp Title Analysis",
			Layer:         21,
			Type:          TypeResearch,
			Purpose:       "Analyze comparable titles for market positioning",
			Inputs:        []string{"user_constraints", "publishing_package"},
			Outputs:       []string{"provided_comps", "positioning_recommendations", "price_positioning", "launch_strategy"},
			Dependencies:  []string{"series_bible"},
			GateCriteria:  "Clear positioning strategy with actionable recommendations",
			FailCondition: "No differentiation from comps",
		},
	}
}
