package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ecoinfx/forms-api/internal/models"
)

// AttachmentRepository handles attachment metadata persistence. Attachments
// are never hard-deleted; soft-deleted rows are invisible to every normal
// read path.
type AttachmentRepository struct {
	db *sqlx.DB
}

// NewAttachmentRepository constructs the repository.
func NewAttachmentRepository(db *sqlx.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

const attachmentColumns = `id, key, application_id, question_ref, file_name, file_path, mime_type, size_bytes, created_at, deleted, deleted_at`

// Create stores metadata for an uploaded file.
func (r *AttachmentRepository) Create(ctx context.Context, att *models.Attachment) error {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	if att.Key == "" {
		att.Key = uuid.NewString()
	}
	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attachments (id, key, application_id, question_ref, file_name, file_path, mime_type, size_bytes, created_at, deleted)
	VALUES (:id, :key, :application_id, :question_ref, :file_name, :file_path, :mime_type, :size_bytes, :created_at, false)`
	if _, err := r.db.NamedExecContext(ctx, query, att); err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	return nil
}

// GetByKey returns one live attachment scoped to its application.
func (r *AttachmentRepository) GetByKey(ctx context.Context, applicationID, key string) (*models.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE application_id = $1 AND key = $2 AND NOT deleted`
	var att models.Attachment
	if err := r.db.GetContext(ctx, &att, query, applicationID, key); err != nil {
		return nil, err
	}
	return &att, nil
}

// ListByApplication returns the live attachments of an application.
func (r *AttachmentRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE application_id = $1 AND NOT deleted ORDER BY created_at`
	var records []models.Attachment
	if err := r.db.SelectContext(ctx, &records, query, applicationID); err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return records, nil
}

// SoftDelete marks an attachment deleted. The deleted guard makes a repeat
// call a no-op: deleted_at keeps its first-set value and zero rows are
// affected, reported as sql.ErrNoRows for the caller to treat as idempotent
// success.
func (r *AttachmentRepository) SoftDelete(ctx context.Context, applicationID, key string, deletedAt time.Time) error {
	const query = `UPDATE attachments SET deleted = true, deleted_at = $3 WHERE application_id = $1 AND key = $2 AND NOT deleted`
	res, err := r.db.ExecContext(ctx, query, applicationID, key, deletedAt)
	if err != nil {
		return fmt.Errorf("soft delete attachment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check attachment delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ExistsAny reports whether the attachment key exists at all, deleted or
// not. Used to distinguish "already deleted" from "never existed".
func (r *AttachmentRepository) ExistsAny(ctx context.Context, applicationID, key string) (bool, error) {
	const query = `SELECT COUNT(*) FROM attachments WHERE application_id = $1 AND key = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, applicationID, key); err != nil {
		return false, fmt.Errorf("check attachment exists: %w", err)
	}
	return count > 0, nil
}
