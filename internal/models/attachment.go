package models

import "time"

// Attachment is metadata for one uploaded file owned by an application.
// QuestionRef pins the file to a question using the fixed
// "<step>.<section>-<question>" format. Attachments are never hard-deleted;
// soft-deleted rows are excluded from all normal listings and downloads.
type Attachment struct {
	ID            string     `db:"id" json:"-"`
	Key           string     `db:"key" json:"key"`
	ApplicationID string     `db:"application_id" json:"-"`
	QuestionRef   string     `db:"question_ref" json:"question_ref"`
	FileName      string     `db:"file_name" json:"file_name"`
	FilePath      string     `db:"file_path" json:"-"`
	MimeType      string     `db:"mime_type" json:"mime_type"`
	SizeBytes     int64      `db:"size_bytes" json:"size_bytes"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	Deleted       bool       `db:"deleted" json:"-"`
	DeletedAt     *time.Time `db:"deleted_at" json:"-"`
}
