package dto

import "encoding/json"

// CreateQuestionnaireRequest creates the first revision of a questionnaire
// or, when the slug already exists, the next one. The document is the full
// step/section/question tree and is validated against the questionnaire
// schema before anything is persisted.
type CreateQuestionnaireRequest struct {
	Slug        string          `json:"slug" validate:"required,max=20"`
	Name        string          `json:"name" validate:"required,max=100"`
	Description string          `json:"description" validate:"required,max=500"`
	Document    json.RawMessage `json:"document" validate:"required"`
}

// QuestionnaireQuery captures listing parameters.
type QuestionnaireQuery struct {
	Slug       string `form:"slug"`
	LatestOnly bool   `form:"latest_only"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}
