package schema

import "fmt"

// Kind enumerates the supported question input types.
type Kind string

const (
	KindText     Kind = "text"
	KindTextarea Kind = "textarea"
	KindNumber   Kind = "number"
	KindCheckbox Kind = "checkbox"
	KindSelect   Kind = "select"
	KindDate     Kind = "date"
	KindFile     Kind = "file"
	KindGrid     Kind = "grid"
)

// Grid layout limits enforced at definition time.
const (
	MaxGridColumns = 10
	MinGridRows    = 1
	MaxGridRows    = 20
	MaxOptions     = 50
)

// primitiveKinds are the kinds a grid column may carry. A column cannot
// nest another grid or a file upload.
var primitiveKinds = map[Kind]struct{}{
	KindText:     {},
	KindTextarea: {},
	KindNumber:   {},
	KindCheckbox: {},
	KindSelect:   {},
	KindDate:     {},
}

var questionKinds = map[Kind]struct{}{
	KindText:     {},
	KindTextarea: {},
	KindNumber:   {},
	KindCheckbox: {},
	KindSelect:   {},
	KindDate:     {},
	KindFile:     {},
	KindGrid:     {},
}

// GridColumn describes one column of a grid question.
type GridColumn struct {
	Label         string   `json:"label"`
	Kind          Kind     `json:"type"`
	Description   string   `json:"description,omitempty"`
	SelectOptions []string `json:"select_options,omitempty"`
}

// Question describes a single form question and its constraints.
type Question struct {
	Label         string       `json:"label"`
	Kind          Kind         `json:"type"`
	Required      bool         `json:"is_required"`
	Description   string       `json:"description,omitempty"`
	SelectOptions []string     `json:"select_options,omitempty"`
	GridColumns   []GridColumn `json:"grid_columns,omitempty"`
	GridMaxRows   int          `json:"grid_max_rows,omitempty"`
}

// Section groups an ordered, non-empty list of questions.
type Section struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions"`
}

// Step groups an ordered, non-empty list of sections.
type Step struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Sections    []Section `json:"sections"`
}

// checkColumn enforces the option-list invariant for grid columns.
func checkColumn(c GridColumn) error {
	if c.Label == "" {
		return fmt.Errorf("grid column label is required")
	}
	if _, ok := primitiveKinds[c.Kind]; !ok {
		return fmt.Errorf("grid column %q: invalid kind %q", c.Label, c.Kind)
	}
	if c.Kind != KindSelect && len(c.SelectOptions) > 0 {
		return fmt.Errorf("grid column %q: select_options only valid for select columns", c.Label)
	}
	if c.Kind == KindSelect && len(c.SelectOptions) == 0 {
		return fmt.Errorf("grid column %q: select columns need at least one option", c.Label)
	}
	if len(c.SelectOptions) > MaxOptions {
		return fmt.Errorf("grid column %q: at most %d options", c.Label, MaxOptions)
	}
	return nil
}

// checkQuestion enforces the per-kind constraint invariants. Violations are
// definition-time programming errors, surfaced before any document is ever
// validated against the composed schema.
func checkQuestion(q Question) error {
	if q.Label == "" {
		return fmt.Errorf("question label is required")
	}
	if _, ok := questionKinds[q.Kind]; !ok {
		return fmt.Errorf("question %q: invalid kind %q", q.Label, q.Kind)
	}
	if q.Kind != KindSelect && len(q.SelectOptions) > 0 {
		return fmt.Errorf("question %q: select_options only valid for select questions", q.Label)
	}
	if q.Kind == KindSelect && len(q.SelectOptions) == 0 {
		return fmt.Errorf("question %q: select questions need at least one option", q.Label)
	}
	if len(q.SelectOptions) > MaxOptions {
		return fmt.Errorf("question %q: at most %d options", q.Label, MaxOptions)
	}
	if q.Kind != KindGrid {
		if len(q.GridColumns) > 0 || q.GridMaxRows != 0 {
			return fmt.Errorf("question %q: grid constraints only valid for grid questions", q.Label)
		}
		return nil
	}
	if len(q.GridColumns) == 0 {
		return fmt.Errorf("question %q: grid questions need at least one column", q.Label)
	}
	if len(q.GridColumns) > MaxGridColumns {
		return fmt.Errorf("question %q: at most %d grid columns", q.Label, MaxGridColumns)
	}
	for _, c := range q.GridColumns {
		if err := checkColumn(c); err != nil {
			return fmt.Errorf("question %q: %w", q.Label, err)
		}
	}
	if q.GridMaxRows != 0 && (q.GridMaxRows < MinGridRows || q.GridMaxRows > MaxGridRows) {
		return fmt.Errorf("question %q: grid_max_rows must be between %d and %d", q.Label, MinGridRows, MaxGridRows)
	}
	return nil
}

// CheckSteps validates a whole step tree against the definition invariants.
func CheckSteps(steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for si, step := range steps {
		if step.Title == "" {
			return fmt.Errorf("step %d: title is required", si)
		}
		if len(step.Sections) == 0 {
			return fmt.Errorf("step %d: at least one section is required", si)
		}
		for ci, section := range step.Sections {
			if section.Title == "" {
				return fmt.Errorf("step %d section %d: title is required", si, ci)
			}
			if len(section.Questions) == 0 {
				return fmt.Errorf("step %d section %d: at least one question is required", si, ci)
			}
			for _, q := range section.Questions {
				if err := checkQuestion(q); err != nil {
					return fmt.Errorf("step %d section %d: %w", si, ci, err)
				}
			}
		}
	}
	return nil
}
