package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ecoinfx/forms-api/internal/models"
)

// QuestionnaireRepository handles questionnaire revision persistence.
type QuestionnaireRepository struct {
	db *sqlx.DB
}

// NewQuestionnaireRepository constructs the repository.
func NewQuestionnaireRepository(db *sqlx.DB) *QuestionnaireRepository {
	return &QuestionnaireRepository{db: db}
}

const questionnaireColumns = `id, slug, version, name, description, document, created_by, created_at`

// Create inserts the next revision for a slug in a single statement. The
// version is computed inside the INSERT so two concurrent creates for the
// same slug cannot both claim the same version; the unique (slug, version)
// constraint backs this up.
func (r *QuestionnaireRepository) Create(ctx context.Context, q *models.Questionnaire) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO questionnaires (id, slug, version, name, description, document, created_by, created_at)
	VALUES ($1, $2, COALESCE((SELECT MAX(version) FROM questionnaires WHERE slug = $2), 0) + 1, $3, $4, $5, $6, $7)
	RETURNING version`
	if err := r.db.QueryRowxContext(ctx, query,
		q.ID, q.Slug, q.Name, q.Description, []byte(q.Document), q.CreatedBy, q.CreatedAt,
	).Scan(&q.Version); err != nil {
		return fmt.Errorf("create questionnaire: %w", err)
	}
	return nil
}

// GetLatest returns the revision in force for a slug. The query must run
// with snapshot-consistent reads so a concurrent version increment is never
// visible as two different "latest" rows.
func (r *QuestionnaireRepository) GetLatest(ctx context.Context, slug string) (*models.Questionnaire, error) {
	query := fmt.Sprintf(`SELECT %s FROM questionnaires WHERE slug = $1 ORDER BY version DESC LIMIT 1`, questionnaireColumns)
	var q models.Questionnaire
	if err := r.db.GetContext(ctx, &q, query, slug); err != nil {
		return nil, err
	}
	return &q, nil
}

// GetVersion returns one specific revision.
func (r *QuestionnaireRepository) GetVersion(ctx context.Context, slug string, version int) (*models.Questionnaire, error) {
	query := fmt.Sprintf(`SELECT %s FROM questionnaires WHERE slug = $1 AND version = $2`, questionnaireColumns)
	var q models.Questionnaire
	if err := r.db.GetContext(ctx, &q, query, slug, version); err != nil {
		return nil, err
	}
	return &q, nil
}

// GetByID returns a revision by row id.
func (r *QuestionnaireRepository) GetByID(ctx context.Context, id string) (*models.Questionnaire, error) {
	query := fmt.Sprintf(`SELECT %s FROM questionnaires WHERE id = $1`, questionnaireColumns)
	var q models.Questionnaire
	if err := r.db.GetContext(ctx, &q, query, id); err != nil {
		return nil, err
	}
	return &q, nil
}

// List returns questionnaire revisions, optionally restricted to one slug or
// collapsed to the latest revision per slug.
func (r *QuestionnaireRepository) List(ctx context.Context, filter models.QuestionnaireFilter) ([]models.Questionnaire, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 2)

	if filter.LatestOnly {
		builder.WriteString(fmt.Sprintf(`SELECT DISTINCT ON (slug) %s FROM questionnaires`, questionnaireColumns))
	} else {
		builder.WriteString(fmt.Sprintf(`SELECT %s FROM questionnaires`, questionnaireColumns))
	}
	if filter.Slug != "" {
		args = append(args, filter.Slug)
		builder.WriteString(fmt.Sprintf(" WHERE slug = $%d", len(args)))
	}
	if filter.LatestOnly {
		builder.WriteString(" ORDER BY slug, version DESC")
	} else {
		builder.WriteString(" ORDER BY slug, version")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var records []models.Questionnaire
	if err := r.db.SelectContext(ctx, &records, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list questionnaires: %w", err)
	}
	return records, nil
}
