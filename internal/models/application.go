package models

import (
	"encoding/json"
	"time"

	"github.com/ecoinfx/forms-api/internal/workflow"
)

// Application is one user's answer document against a questionnaire
// revision, gated by the workflow status. Key is the opaque identifier
// exposed to clients; the numeric questionnaire linkage stays internal.
type Application struct {
	ID              string          `db:"id" json:"-"`
	Key             string          `db:"key" json:"key"`
	OwnerID         string          `db:"owner_id" json:"-"`
	QuestionnaireID string          `db:"questionnaire_id" json:"-"`
	Status          workflow.Status `db:"status" json:"status"`
	Document        json.RawMessage `db:"document" json:"document"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
	SubmittedAt     *time.Time      `db:"submitted_at" json:"submitted_at,omitempty"`

	// Joined for listings; not columns of the applications table.
	QuestionnaireSlug    string `db:"questionnaire_slug" json:"questionnaire_slug"`
	QuestionnaireVersion int    `db:"questionnaire_version" json:"questionnaire_version"`
}

// SchemaVersion extracts the schema_version pinned on the answer document.
func (a *Application) SchemaVersion() (string, error) {
	var doc struct {
		SchemaVersion string `json:"schema_version"`
	}
	if err := json.Unmarshal(a.Document, &doc); err != nil {
		return "", err
	}
	return doc.SchemaVersion, nil
}

// NewAnswerDocument builds the initial empty answer document for an
// application, pinned to the questionnaire's schema version. One step state
// is pre-allocated per questionnaire step.
func NewAnswerDocument(schemaVersion string, stepCount int) ([]byte, error) {
	steps := make([]map[string]any, stepCount)
	for i := range steps {
		steps[i] = map[string]any{"is_valid": nil, "answers": map[string]any{}}
	}
	return json.Marshal(map[string]any{
		"schema_version": schemaVersion,
		"active_step":    0,
		"steps":          steps,
	})
}

// ApplicationFilter narrows application listing queries.
type ApplicationFilter struct {
	OwnerID string
	Status  workflow.Status
	Limit   int
	Offset  int
}
