package schema

// AnswerKeyPattern is the fixed grammar for answer keys inside a step:
// "<section-index>-<question-index>". Stored documents depend on this exact
// format, so it must never change.
const AnswerKeyPattern = `^\d+-\d+$`

// primitiveAnswerTypes mirrors the allowed primitive answer values: string,
// non-negative integer, boolean or null.
func primitiveAnswerTypes() []any {
	return []any{
		map[string]any{"type": "string"},
		map[string]any{"type": "integer", "minimum": 0},
		map[string]any{"type": "boolean"},
		map[string]any{"type": "null"},
	}
}

func kindEnum(kinds map[Kind]struct{}) []any {
	// Stable order keeps composed documents byte-comparable.
	ordered := []Kind{KindText, KindTextarea, KindNumber, KindCheckbox, KindSelect, KindDate, KindFile, KindGrid}
	out := make([]any, 0, len(kinds))
	for _, k := range ordered {
		if _, ok := kinds[k]; ok {
			out = append(out, string(k))
		}
	}
	return out
}

func optionListDef(maxLength int) map[string]any {
	return map[string]any{
		"type":     "array",
		"items":    map[string]any{"type": "string", "maxLength": maxLength},
		"minItems": 1,
		"maxItems": MaxOptions,
	}
}

func gridColumnDef() map[string]any {
	return map[string]any{
		"type":                 "object",
		"title":                "Grid Column",
		"additionalProperties": false,
		"required":             []any{"label", "type"},
		"properties": map[string]any{
			"label":          map[string]any{"type": "string", "maxLength": 255},
			"type":           map[string]any{"enum": kindEnum(primitiveKinds)},
			"description":    map[string]any{"type": "string", "maxLength": 255},
			"select_options": optionListDef(50),
		},
	}
}

func questionDef() map[string]any {
	return map[string]any{
		"type":                 "object",
		"title":                "Question",
		"additionalProperties": false,
		"required":             []any{"label", "type"},
		"properties": map[string]any{
			"label":          map[string]any{"type": "string", "maxLength": 500},
			"type":           map[string]any{"enum": kindEnum(questionKinds)},
			"is_required":    map[string]any{"type": "boolean", "default": false},
			"description":    map[string]any{"type": "string", "maxLength": 1000},
			"select_options": optionListDef(100),
			"grid_columns": map[string]any{
				"type":     "array",
				"items":    map[string]any{"$ref": "#/$defs/grid_column"},
				"minItems": 1,
				"maxItems": MaxGridColumns,
			},
			"grid_max_rows": map[string]any{
				"type":    "integer",
				"minimum": MinGridRows,
				"maximum": MaxGridRows,
			},
		},
	}
}

func sectionDef() map[string]any {
	return map[string]any{
		"type":                 "object",
		"title":                "Section",
		"additionalProperties": false,
		"required":             []any{"title", "questions"},
		"properties": map[string]any{
			"title":       map[string]any{"type": "string", "maxLength": 100},
			"description": map[string]any{"type": "string", "maxLength": 3000},
			"questions": map[string]any{
				"type":     "array",
				"items":    map[string]any{"$ref": "#/$defs/question"},
				"minItems": 1,
			},
		},
	}
}

func stepDef() map[string]any {
	return map[string]any{
		"type":                 "object",
		"title":                "Step",
		"additionalProperties": false,
		"required":             []any{"title", "sections"},
		"properties": map[string]any{
			"title":       map[string]any{"type": "string", "maxLength": 100},
			"description": map[string]any{"type": "string", "maxLength": 100},
			"sections": map[string]any{
				"type":     "array",
				"items":    map[string]any{"$ref": "#/$defs/section"},
				"minItems": 1,
			},
		},
	}
}

func versionMarker(versionTag, description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"title":       "Schema version",
		"default":     versionTag,
		"readOnly":    true,
		"description": description,
	}
}

// Compose assembles the questionnaire document schema for the given step
// tree, pinned to versionTag. The step/section/question definitions live in a
// flat $defs table and are referenced by name, so a constraint change in one
// definition propagates everywhere it is used. Compose is pure: it allocates
// a fresh structure on every call and performs no I/O.
//
// An invalid constraint combination in the step tree (for example
// grid_columns on a non-grid question) is a definition-time error and is
// reported here, before any document validation can happen.
func Compose(steps []Step, versionTag string) (*Schema, error) {
	if err := CheckSteps(steps); err != nil {
		return nil, err
	}
	return QuestionnaireSchema(versionTag)
}

// QuestionnaireSchema returns the questionnaire document schema pinned to
// versionTag, independent of any particular step tree.
func QuestionnaireSchema(versionTag string) (*Schema, error) {
	root := map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"title":                "Questionnaire Schema",
		"description":          "Structural definition for a questionnaire with steps, sections, and questions.",
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"schema_version", "steps"},
		"properties": map[string]any{
			"schema_version": versionMarker(versionTag, "The version of the questionnaire schema."),
			"steps": map[string]any{
				"title":    "Steps",
				"type":     "array",
				"items":    map[string]any{"$ref": "#/$defs/step"},
				"minItems": 1,
			},
		},
		"$defs": map[string]any{
			"step":        stepDef(),
			"section":     sectionDef(),
			"question":    questionDef(),
			"grid_column": gridColumnDef(),
		},
	}
	s := &Schema{root: root, version: versionTag}
	if err := s.selfCheck(); err != nil {
		return nil, err
	}
	return s, nil
}

// AnswersSchema builds the schema an answer document is validated against,
// pinned to versionTag. Answer keys are the one open spot in an otherwise
// closed document: any key matching AnswerKeyPattern is accepted at the
// answers level, everything else is rejected.
func AnswersSchema(versionTag string) (*Schema, error) {
	root := map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"title":                "Application Answers Schema",
		"description":          "Structural definition for an application's answers to a questionnaire.",
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"schema_version", "active_step", "steps"},
		"properties": map[string]any{
			"schema_version": versionMarker(versionTag, "The version of the application answers schema."),
			"active_step": map[string]any{
				"type":    "integer",
				"title":   "Active step",
				"minimum": 0,
			},
			"steps": map[string]any{
				"title":    "Step States",
				"type":     "array",
				"items":    map[string]any{"$ref": "#/$defs/step_state"},
				"minItems": 1,
			},
		},
		"$defs": map[string]any{
			"step_state": map[string]any{
				"type":                 "object",
				"title":                "Step State",
				"additionalProperties": false,
				"required":             []any{"is_valid", "answers"},
				"properties": map[string]any{
					"is_valid": map[string]any{"type": []any{"boolean", "null"}, "default": nil},
					"answers":  map[string]any{"$ref": "#/$defs/answers"},
				},
			},
			"answers": map[string]any{
				"type":                 "object",
				"title":                "Answers",
				"additionalProperties": false,
				"properties":           map[string]any{},
				"patternProperties": map[string]any{
					AnswerKeyPattern: map[string]any{
						"oneOf": append(primitiveAnswerTypes(), map[string]any{"$ref": "#/$defs/grid_answer"}),
					},
				},
			},
			"grid_answer": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"additionalProperties": map[string]any{
						"oneOf": primitiveAnswerTypes(),
					},
				},
			},
		},
	}
	s := &Schema{root: root, version: versionTag}
	if err := s.selfCheck(); err != nil {
		return nil, err
	}
	return s, nil
}
