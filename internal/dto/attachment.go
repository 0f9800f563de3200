package dto

import "github.com/ecoinfx/forms-api/internal/models"

// UploadAttachmentRequest carries the multipart form fields accompanying an
// attachment upload. QuestionRef uses the fixed
// "<step>.<section>-<question>" format.
type UploadAttachmentRequest struct {
	QuestionRef string `form:"question_ref" json:"question_ref" validate:"required"`
}

// AttachmentDownloadResponse pairs attachment metadata with a short-lived
// signed download URL.
type AttachmentDownloadResponse struct {
	models.Attachment
	DownloadURL string `json:"download_url"`
}
