package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ecoinfx/forms-api/internal/dto"
	"github.com/ecoinfx/forms-api/internal/models"
	"github.com/ecoinfx/forms-api/internal/schema"
	appErrors "github.com/ecoinfx/forms-api/pkg/errors"
)

type questionnaireStore interface {
	Create(ctx context.Context, q *models.Questionnaire) error
	GetLatest(ctx context.Context, slug string) (*models.Questionnaire, error)
	GetVersion(ctx context.Context, slug string, version int) (*models.Questionnaire, error)
	List(ctx context.Context, filter models.QuestionnaireFilter) ([]models.Questionnaire, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// QuestionnaireService manages questionnaire revisions. Publishing never
// mutates an existing revision: every create appends a new (slug, version)
// row, and the latest revision per slug is the one applications start from.
type QuestionnaireService struct {
	repo      questionnaireStore
	cache     *CacheService
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewQuestionnaireService constructs the service.
func NewQuestionnaireService(repo questionnaireStore, cache *CacheService, audit auditLogger, validate *validator.Validate, logger *zap.Logger, cacheTTL time.Duration) *QuestionnaireService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &QuestionnaireService{
		repo:      repo,
		cache:     cache,
		audit:     audit,
		validator: validate,
		logger:    logger,
		cacheTTL:  cacheTTL,
	}
}

func questionnaireCacheKey(slug string) string {
	return fmt.Sprintf("questionnaire:%s:latest", slug)
}

// Schema returns the questionnaire document schema currently in force.
func (s *QuestionnaireService) Schema() (map[string]any, error) {
	sch, err := schema.QuestionnaireSchema(schema.CurrentQuestionnaireVersion)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build questionnaire schema")
	}
	return sch.Document(), nil
}

// Create publishes a questionnaire revision. The submitted document is
// version-checked first, then structurally validated against the composed
// schema; only a document that passes both gates is persisted. The revision
// number is assigned by the store.
func (s *QuestionnaireService) Create(ctx context.Context, req dto.CreateQuestionnaireRequest, actor *models.JWTClaims) (*models.Questionnaire, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid questionnaire payload")
	}

	var doc map[string]any
	if err := json.Unmarshal(req.Document, &doc); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document is not valid JSON")
	}
	got, _ := schema.DocumentVersion(doc)
	if err := schema.CheckVersion(got, schema.CurrentQuestionnaireVersion, nil); err != nil {
		return nil, appErrors.Clone(appErrors.ErrVersionMismatch, err.Error())
	}

	var tree struct {
		Steps []schema.Step `json:"steps"`
	}
	if err := json.Unmarshal(req.Document, &tree); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document steps are malformed")
	}
	composed, err := schema.Compose(tree.Steps, schema.CurrentQuestionnaireVersion)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if failures := schema.Validate(doc, composed); len(failures) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, failures[0].Error()).WithDetails(failures)
	}

	q := &models.Questionnaire{
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		Document:    req.Document,
		CreatedBy:   actor.UserID,
	}
	if err := s.repo.Create(ctx, q); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create questionnaire")
	}

	if s.cache.Enabled() {
		if err := s.cache.Invalidate(ctx, questionnaireCacheKey(q.Slug)); err != nil {
			s.logger.Warn("failed to invalidate questionnaire cache", zap.String("slug", q.Slug), zap.Error(err))
		}
	}
	s.emitAudit(ctx, actor, models.AuditActionQuestionnaireCreate, q.ID, []byte(fmt.Sprintf(`{"slug":%q,"version":%d}`, q.Slug, q.Version)))
	return q, nil
}

// GetLatest returns the revision in force for a slug, served from cache when
// warm.
func (s *QuestionnaireService) GetLatest(ctx context.Context, slug string) (*models.Questionnaire, error) {
	key := questionnaireCacheKey(slug)
	if s.cache.Enabled() {
		var cached models.Questionnaire
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	q, err := s.repo.GetLatest(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "questionnaire not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questionnaire")
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, key, q, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache questionnaire", zap.String("slug", slug), zap.Error(err))
		}
	}
	return q, nil
}

// GetVersion returns one pinned revision. Old revisions stay retrievable
// forever so in-flight applications can always resolve the schema they were
// created against.
func (s *QuestionnaireService) GetVersion(ctx context.Context, slug string, version int) (*models.Questionnaire, error) {
	q, err := s.repo.GetVersion(ctx, slug, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "questionnaire revision not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questionnaire revision")
	}
	return q, nil
}

// List returns questionnaire revisions matching the query.
func (s *QuestionnaireService) List(ctx context.Context, query dto.QuestionnaireQuery) ([]models.Questionnaire, error) {
	items, err := s.repo.List(ctx, models.QuestionnaireFilter{
		Slug:       query.Slug,
		LatestOnly: query.LatestOnly,
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list questionnaires")
	}
	return items, nil
}

func (s *QuestionnaireService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, newValues []byte) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "questionnaire",
		ResourceID: &resourceID,
		NewValues:  newValues,
		IPAddress:  "system",
		UserAgent:  "questionnaire-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to create questionnaire audit", zap.Error(err))
	}
}
