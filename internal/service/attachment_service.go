package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ecoinfx/forms-api/internal/dto"
	"github.com/ecoinfx/forms-api/internal/models"
	"github.com/ecoinfx/forms-api/internal/workflow"
	appErrors "github.com/ecoinfx/forms-api/pkg/errors"
	"github.com/ecoinfx/forms-api/pkg/filesig"
)

type attachmentStore interface {
	Create(ctx context.Context, att *models.Attachment) error
	GetByKey(ctx context.Context, applicationID, key string) (*models.Attachment, error)
	ListByApplication(ctx context.Context, applicationID string) ([]models.Attachment, error)
	SoftDelete(ctx context.Context, applicationID, key string, deletedAt time.Time) error
	ExistsAny(ctx context.Context, applicationID, key string) (bool, error)
}

type applicationResolver interface {
	Get(ctx context.Context, key string, actor *models.JWTClaims) (*models.Application, error)
}

type attachmentFileStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type attachmentSignedURLSigner interface {
	Generate(key, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (key, relPath string, expiresAt time.Time, err error)
}

// questionRefPattern is the fixed "<step>.<section>-<question>" grammar an
// attachment is pinned to.
var questionRefPattern = regexp.MustCompile(`^\d+\.\d+-\d+$`)

// AttachmentUpload carries upload metadata and a rewindable content stream.
type AttachmentUpload struct {
	Filename string
	Size     int64
	Content  io.ReadSeeker
}

// AttachmentDownload bundles a file reader with metadata for streaming.
type AttachmentDownload struct {
	File      *os.File
	Filename  string
	MimeType  string
	SizeBytes int64
	ExpiresAt time.Time
}

// AttachmentServiceConfig holds upload validation parameters.
type AttachmentServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	APIPrefix    string
}

// AttachmentService manages file uploads pinned to application questions.
// Files are validated against their magic-byte signature before a single byte
// is stored, and deletion is a soft mark that never frees the blob.
type AttachmentService struct {
	repo         attachmentStore
	applications applicationResolver
	storage      attachmentFileStorage
	signer       attachmentSignedURLSigner
	audit        auditLogger
	logger       *zap.Logger
	cfg          AttachmentServiceConfig
	allow        map[string]struct{}
}

// NewAttachmentService constructs the service with defaults.
func NewAttachmentService(repo attachmentStore, applications applicationResolver, storage attachmentFileStorage, signer attachmentSignedURLSigner, audit auditLogger, logger *zap.Logger, cfg AttachmentServiceConfig) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{
			"application/pdf",
			"image/png",
			"image/jpeg",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			"application/zip",
		}
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &AttachmentService{
		repo:         repo,
		applications: applications,
		storage:      storage,
		signer:       signer,
		audit:        audit,
		logger:       logger,
		cfg:          cfg,
		allow:        filesig.AllowList(cfg.AllowedMIMEs),
	}
}

// Upload validates and stores one file for a question of a draft application.
func (s *AttachmentService) Upload(ctx context.Context, applicationKey string, meta dto.UploadAttachmentRequest, upload AttachmentUpload, actor *models.JWTClaims) (*models.Attachment, error) {
	app, err := s.applications.Get(ctx, applicationKey, actor)
	if err != nil {
		return nil, err
	}
	if app.OwnerID != actor.UserID && actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	if !workflow.CanMutate(workflow.FieldDocument, app.Status) {
		return nil, appErrors.Clone(appErrors.ErrDocumentLocked, fmt.Sprintf("attachments cannot change in status %s", app.Status))
	}
	if !questionRefPattern.MatchString(meta.QuestionRef) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "question_ref must use the <step>.<section>-<question> format")
	}
	if upload.Content == nil || upload.Size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}

	header, err := filesig.ReadHeader(upload.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect file")
	}
	if err := filesig.Validate(upload.Filename, upload.Size, header, s.allow, s.cfg.MaxFileSize); err != nil {
		var tooLarge *filesig.FileTooLarge
		if errors.As(err, &tooLarge) {
			return nil, appErrors.Clone(appErrors.ErrFileTooLarge, tooLarge.Error())
		}
		return nil, appErrors.Clone(appErrors.ErrUnsupportedFile, err.Error())
	}

	filename := storedName(app.ID, upload.Filename)
	path, err := s.storage.SaveStream(filename, upload.Content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist attachment file")
	}

	att := &models.Attachment{
		ApplicationID: app.ID,
		QuestionRef:   meta.QuestionRef,
		FileName:      upload.Filename,
		FilePath:      path,
		MimeType:      filesig.MIMEFor(upload.Filename),
		SizeBytes:     upload.Size,
	}
	if err := s.repo.Create(ctx, att); err != nil {
		_ = s.storage.Delete(path)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create attachment metadata")
	}
	s.emitAudit(ctx, actor, models.AuditActionAttachmentUpload, att.Key, []byte(fmt.Sprintf(`{"question_ref":%q,"file":%q}`, att.QuestionRef, att.FileName)))
	return att, nil
}

// List returns the live attachments of an application.
func (s *AttachmentService) List(ctx context.Context, applicationKey string, actor *models.JWTClaims) ([]models.Attachment, error) {
	app, err := s.applications.Get(ctx, applicationKey, actor)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListByApplication(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attachments")
	}
	return items, nil
}

// Get returns one live attachment's metadata.
func (s *AttachmentService) Get(ctx context.Context, applicationKey, key string, actor *models.JWTClaims) (*models.Attachment, error) {
	app, err := s.applications.Get(ctx, applicationKey, actor)
	if err != nil {
		return nil, err
	}
	att, err := s.repo.GetByKey(ctx, app.ID, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	}
	return att, nil
}

// GetDownloadURL generates a short-lived signed URL for the file.
func (s *AttachmentService) GetDownloadURL(ctx context.Context, applicationKey, key string, actor *models.JWTClaims) (string, error) {
	if s.signer == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	att, err := s.Get(ctx, applicationKey, key, actor)
	if err != nil {
		return "", err
	}
	token, _, err := s.signer.Generate(att.Key, att.FilePath)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate download token")
	}
	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	return fmt.Sprintf("%s/applications/%s/attachments/%s/download?token=%s", base, applicationKey, att.Key, token), nil
}

// Download validates the token and opens the stored file. Soft-deleted
// attachments are gone from this path even with a still-valid token.
func (s *AttachmentService) Download(ctx context.Context, applicationKey, key, token string, actor *models.JWTClaims) (*AttachmentDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	att, err := s.Get(ctx, applicationKey, key, actor)
	if err != nil {
		return nil, err
	}
	tokenKey, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	if tokenKey != att.Key || relPath != att.FilePath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open attachment file")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read attachment file")
	}
	return &AttachmentDownload{
		File:      file,
		Filename:  att.FileName,
		MimeType:  att.MimeType,
		SizeBytes: info.Size(),
		ExpiresAt: expiresAt,
	}, nil
}

// Delete soft-marks an attachment. Repeating the call for an already deleted
// attachment is success and does not move the original deletion timestamp.
func (s *AttachmentService) Delete(ctx context.Context, applicationKey, key string, actor *models.JWTClaims) error {
	app, err := s.applications.Get(ctx, applicationKey, actor)
	if err != nil {
		return err
	}
	if app.OwnerID != actor.UserID && actor.Role != models.RoleAdmin {
		return appErrors.ErrForbidden
	}
	if actor.Role != models.RoleAdmin && !workflow.CanMutate(workflow.FieldDocument, app.Status) {
		return appErrors.Clone(appErrors.ErrDocumentLocked, fmt.Sprintf("attachments cannot change in status %s", app.Status))
	}
	if err := s.repo.SoftDelete(ctx, app.ID, key, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			exists, existsErr := s.repo.ExistsAny(ctx, app.ID, key)
			if existsErr != nil {
				return appErrors.Wrap(existsErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check attachment")
			}
			if exists {
				// Already deleted; idempotent success.
				return nil
			}
			return appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attachment")
	}
	s.emitAudit(ctx, actor, models.AuditActionAttachmentDelete, key, nil)
	return nil
}

// storedName namespaces stored files per application and keeps the claimed
// extension so downloads carry a sensible name.
func storedName(applicationID, original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		name = "file"
	}
	return filepath.Join(applicationID, fmt.Sprintf("%s_%d%s", name, time.Now().UnixNano(), ext))
}

func (s *AttachmentService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, newValues []byte) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "attachment",
		ResourceID: &resourceID,
		NewValues:  newValues,
		IPAddress:  "system",
		UserAgent:  "attachment-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to create attachment audit", zap.Error(err))
	}
}
