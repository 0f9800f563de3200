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
	"github.com/ecoinfx/forms-api/internal/workflow"
	appErrors "github.com/ecoinfx/forms-api/pkg/errors"
)

type applicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	GetByKey(ctx context.Context, key string) (*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error)
	UpdateDocument(ctx context.Context, id string, document []byte, status workflow.Status, updatedAt time.Time) error
	UpdateStatus(ctx context.Context, id string, from, to workflow.Status, submittedAt *time.Time) error
}

type questionnaireResolver interface {
	GetLatest(ctx context.Context, slug string) (*models.Questionnaire, error)
	GetVersion(ctx context.Context, slug string, version int) (*models.Questionnaire, error)
}

// ApplicationService owns the answer-document lifecycle. Every mutation runs
// the same gauntlet: workflow gate, then schema version guard, then
// structural validation, and only then a guarded write. The database guard
// re-checks the status so a transition racing the mutation loses cleanly.
type ApplicationService struct {
	repo           applicationStore
	questionnaires questionnaireResolver
	audit          auditLogger
	validator      *validator.Validate
	logger         *zap.Logger
	answers        *schema.Schema
}

// NewApplicationService constructs the service. The answers schema is built
// once; a compose failure is a startup defect.
func NewApplicationService(repo applicationStore, questionnaires questionnaireResolver, audit auditLogger, validate *validator.Validate, logger *zap.Logger) (*ApplicationService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	answers, err := schema.AnswersSchema(schema.CurrentAnswersVersion)
	if err != nil {
		return nil, fmt.Errorf("build answers schema: %w", err)
	}
	return &ApplicationService{
		repo:           repo,
		questionnaires: questionnaires,
		audit:          audit,
		validator:      validate,
		logger:         logger,
		answers:        answers,
	}, nil
}

// AnswersSchemaDocument exposes the answers schema in force, for clients that
// want to validate before submitting.
func (s *ApplicationService) AnswersSchemaDocument() map[string]any {
	return s.answers.Document()
}

// Create starts a new application against the latest revision of the
// questionnaire, with a fresh empty answer document pinned to the answers
// schema version in force.
func (s *ApplicationService) Create(ctx context.Context, req dto.CreateApplicationRequest, actor *models.JWTClaims) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}

	q, err := s.questionnaires.GetLatest(ctx, req.QuestionnaireSlug)
	if err != nil {
		return nil, err
	}
	stepCount, err := q.StepCount()
	if err != nil || stepCount == 0 {
		return nil, appErrors.Clone(appErrors.ErrInternal, "questionnaire document is unreadable")
	}

	document, err := models.NewAnswerDocument(schema.CurrentAnswersVersion, stepCount)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build answer document")
	}

	app := &models.Application{
		OwnerID:         actor.UserID,
		QuestionnaireID: q.ID,
		Status:          workflow.StatusDraft,
		Document:        document,
	}
	if err := s.repo.Create(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}
	app.QuestionnaireSlug = q.Slug
	app.QuestionnaireVersion = q.Version

	s.emitAudit(ctx, actor, models.AuditActionApplicationCreate, app.Key, []byte(fmt.Sprintf(`{"questionnaire":%q}`, q.Slug)))
	return app, nil
}

// Get returns one application. Applicants only see their own; reviewers and
// admins see everything.
func (s *ApplicationService) Get(ctx context.Context, key string, actor *models.JWTClaims) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	app, err := s.repo.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if actor.Role == models.RoleApplicant && app.OwnerID != actor.UserID {
		// Keys are opaque; someone else's key is indistinguishable from a
		// missing one.
		return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}
	return app, nil
}

// List returns applications visible to the actor.
func (s *ApplicationService) List(ctx context.Context, query dto.ApplicationQuery, actor *models.JWTClaims) ([]models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.ApplicationFilter{
		Status: workflow.Status(query.Status),
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
	}
	if actor.Role == models.RoleApplicant {
		filter.OwnerID = actor.UserID
	}
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	return items, nil
}

// UpdateDocument replaces a draft's answer document. Gate first, version
// guard second, structural validation third; only then the guarded write.
func (s *ApplicationService) UpdateDocument(ctx context.Context, key string, req dto.UpdateDocumentRequest, actor *models.JWTClaims) (*models.Application, error) {
	app, err := s.Get(ctx, key, actor)
	if err != nil {
		return nil, err
	}
	if app.OwnerID != actor.UserID && actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document payload")
	}
	if !workflow.CanMutate(workflow.FieldDocument, app.Status) {
		return nil, appErrors.Clone(appErrors.ErrDocumentLocked, fmt.Sprintf("document is not editable in status %s", app.Status))
	}

	var doc map[string]any
	if err := json.Unmarshal(req.Document, &doc); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document is not valid JSON")
	}
	previous, err := app.SchemaVersion()
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "stored document is unreadable")
	}
	got, _ := schema.DocumentVersion(doc)
	if err := schema.CheckVersion(got, schema.CurrentAnswersVersion, &previous); err != nil {
		return nil, appErrors.Clone(appErrors.ErrVersionMismatch, err.Error())
	}
	if failures := schema.Validate(doc, s.answers); len(failures) > 0 {
		return nil, appErrors.Clone(appErrors.ErrAnswersInvalid, failures[0].Error()).WithDetails(failures)
	}
	if err := s.checkStepCount(ctx, app, doc); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateDocument(ctx, app.ID, req.Document, workflow.StatusDraft, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrDocumentLocked, "application status changed during the update")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application document")
	}
	app.Document = req.Document
	return app, nil
}

// Submit moves the applicant's draft to SUBMITTED and stamps submitted_at.
func (s *ApplicationService) Submit(ctx context.Context, key string, actor *models.JWTClaims) (*models.Application, error) {
	app, err := s.Get(ctx, key, actor)
	if err != nil {
		return nil, err
	}
	if app.OwnerID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	if err := workflow.CheckApplicantTransition(app.Status, workflow.StatusSubmitted); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, err.Error())
	}
	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, app.ID, app.Status, workflow.StatusSubmitted, &now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "application status changed during the submit")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit application")
	}
	app.Status = workflow.StatusSubmitted
	app.SubmittedAt = &now
	s.emitAudit(ctx, actor, models.AuditActionApplicationSubmit, app.Key, nil)
	return app, nil
}

// Transition applies a reviewer-side status change from the transition table.
func (s *ApplicationService) Transition(ctx context.Context, key string, req dto.TransitionRequest, actor *models.JWTClaims) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleReviewer && actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	target := workflow.Status(req.Status)
	if !target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", req.Status))
	}
	app, err := s.Get(ctx, key, actor)
	if err != nil {
		return nil, err
	}
	if err := workflow.CheckTransition(app.Status, target); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, err.Error())
	}
	if err := s.repo.UpdateStatus(ctx, app.ID, app.Status, target, nil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "application status changed during the transition")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transition application")
	}
	app.Status = target
	s.emitAudit(ctx, actor, models.AuditActionApplicationReview, app.Key, []byte(fmt.Sprintf(`{"status":%q}`, target)))
	return app, nil
}

// Discard moves the applicant's own draft to the absorbing DISCARDED state.
func (s *ApplicationService) Discard(ctx context.Context, key string, actor *models.JWTClaims) error {
	app, err := s.Get(ctx, key, actor)
	if err != nil {
		return err
	}
	if app.OwnerID != actor.UserID && actor.Role != models.RoleAdmin {
		return appErrors.ErrForbidden
	}
	if err := workflow.CheckTransition(app.Status, workflow.StatusDiscarded); err != nil {
		return appErrors.Clone(appErrors.ErrInvalidTransition, err.Error())
	}
	if err := s.repo.UpdateStatus(ctx, app.ID, app.Status, workflow.StatusDiscarded, nil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "application status changed during the discard")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to discard application")
	}
	s.emitAudit(ctx, actor, models.AuditActionApplicationDiscard, app.Key, nil)
	return nil
}

// checkStepCount pins the answers steps array to the questionnaire's step
// count. The answers schema alone only requires a non-empty array.
func (s *ApplicationService) checkStepCount(ctx context.Context, app *models.Application, doc map[string]any) error {
	steps, ok := doc["steps"].([]any)
	if !ok {
		failures := []schema.Failure{{Coordinate: "steps", Message: "expected an array"}}
		return appErrors.Clone(appErrors.ErrAnswersInvalid, failures[0].Error()).WithDetails(failures)
	}
	// The application stays pinned to the revision it was created against,
	// even after the questionnaire moves on.
	q, err := s.questionnaires.GetVersion(ctx, app.QuestionnaireSlug, app.QuestionnaireVersion)
	if err != nil {
		return err
	}
	want, err := q.StepCount()
	if err != nil {
		return appErrors.Clone(appErrors.ErrInternal, "questionnaire document is unreadable")
	}
	if len(steps) != want {
		failures := []schema.Failure{{Coordinate: "steps", Message: fmt.Sprintf("expected %d step states, got %d", want, len(steps))}}
		return appErrors.Clone(appErrors.ErrAnswersInvalid, failures[0].Error()).WithDetails(failures)
	}
	return nil
}

func (s *ApplicationService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, newValues []byte) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "application",
		ResourceID: &resourceID,
		NewValues:  newValues,
		IPAddress:  "system",
		UserAgent:  "application-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to create application audit", zap.Error(err))
	}
}
