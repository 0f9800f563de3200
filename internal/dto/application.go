package dto

import "encoding/json"

// CreateApplicationRequest starts a new application against the latest
// revision of the referenced questionnaire.
type CreateApplicationRequest struct {
	QuestionnaireSlug string `json:"questionnaire_slug" validate:"required,max=20"`
}

// UpdateDocumentRequest replaces the answer document of a draft application.
// A single update targets either the document or the status, never both, so
// this payload carries only the document.
type UpdateDocumentRequest struct {
	Document json.RawMessage `json:"document" validate:"required"`
}

// TransitionRequest asks for a status change on an application.
type TransitionRequest struct {
	Status string `json:"status" validate:"required"`
}

// ApplicationQuery captures listing parameters.
type ApplicationQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}
