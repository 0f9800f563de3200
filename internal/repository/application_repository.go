package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ecoinfx/forms-api/internal/models"
	"github.com/ecoinfx/forms-api/internal/workflow"
)

// ApplicationRepository handles application persistence. Status changes and
// document writes use compare-and-set guards so two concurrent requests can
// never both succeed past the mutation gate under a status that was
// simultaneously changing.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

const applicationColumns = `a.id, a.key, a.owner_id, a.questionnaire_id, a.status, a.document, a.created_at, a.updated_at, a.submitted_at,
	q.slug AS questionnaire_slug, q.version AS questionnaire_version`

const applicationJoin = ` FROM applications a JOIN questionnaires q ON q.id = a.questionnaire_id`

// Create inserts a new application row.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.Key == "" {
		app.Key = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	const query = `INSERT INTO applications (id, key, owner_id, questionnaire_id, status, document, created_at, updated_at)
	VALUES (:id, :key, :owner_id, :questionnaire_id, :status, :document, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// GetByKey returns one application by its opaque key.
func (r *ApplicationRepository) GetByKey(ctx context.Context, key string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + applicationJoin + ` WHERE a.key = $1`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, key); err != nil {
		return nil, err
	}
	return &app, nil
}

// List returns applications matching the filter, newest first.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + applicationColumns + applicationJoin)
	args := make([]interface{}, 0, 2)
	conditions := make([]string, 0, 2)

	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("a.owner_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY a.created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var records []models.Application
	if err := r.db.SelectContext(ctx, &records, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return records, nil
}

// UpdateDocument replaces the answer document, guarded on the record still
// being in the given status. Zero rows affected means the status moved under
// us and surfaces as sql.ErrNoRows.
func (r *ApplicationRepository) UpdateDocument(ctx context.Context, id string, document []byte, status workflow.Status, updatedAt time.Time) error {
	const query = `UPDATE applications SET document = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, document, updatedAt, status)
	if err != nil {
		return fmt.Errorf("update application document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check document update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus applies a status transition as a compare-and-set on the
// current status. submittedAt is recorded only on the submit edge.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, from, to workflow.Status, submittedAt *time.Time) error {
	const query = `UPDATE applications SET status = $2, submitted_at = COALESCE($3, submitted_at), updated_at = $4 WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, to, submittedAt, time.Now().UTC(), from)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check status update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
