package models

import (
	"encoding/json"
	"time"
)

// Questionnaire is one immutable revision of a questionnaire definition.
// Edits never mutate a row: a new edit inserts a fresh row for the same slug
// with version = previous+1, so per slug the version is monotonically
// increasing and the max version is the one in force.
type Questionnaire struct {
	ID          string          `db:"id" json:"id"`
	Slug        string          `db:"slug" json:"slug"`
	Version     int             `db:"version" json:"version"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Document    json.RawMessage `db:"document" json:"document"`
	CreatedBy   string          `db:"created_by" json:"created_by"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// SchemaVersion extracts the schema_version marker from the stored document.
func (q *Questionnaire) SchemaVersion() (string, error) {
	var doc struct {
		SchemaVersion string `json:"schema_version"`
	}
	if err := json.Unmarshal(q.Document, &doc); err != nil {
		return "", err
	}
	return doc.SchemaVersion, nil
}

// StepCount returns how many steps the stored questionnaire document has.
func (q *Questionnaire) StepCount() (int, error) {
	var doc struct {
		Steps []json.RawMessage `json:"steps"`
	}
	if err := json.Unmarshal(q.Document, &doc); err != nil {
		return 0, err
	}
	return len(doc.Steps), nil
}

// QuestionnaireFilter narrows listing queries.
type QuestionnaireFilter struct {
	Slug       string
	LatestOnly bool
	Limit      int
	Offset     int
}
