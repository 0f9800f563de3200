package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ecoinfx/forms-api/internal/dto"
	"github.com/ecoinfx/forms-api/internal/models"
	"github.com/ecoinfx/forms-api/internal/service"
	appErrors "github.com/ecoinfx/forms-api/pkg/errors"
	"github.com/ecoinfx/forms-api/pkg/response"
)

type attachmentService interface {
	Upload(ctx context.Context, applicationKey string, meta dto.UploadAttachmentRequest, upload service.AttachmentUpload, actor *models.JWTClaims) (*models.Attachment, error)
	List(ctx context.Context, applicationKey string, actor *models.JWTClaims) ([]models.Attachment, error)
	Get(ctx context.Context, applicationKey, key string, actor *models.JWTClaims) (*models.Attachment, error)
	GetDownloadURL(ctx context.Context, applicationKey, key string, actor *models.JWTClaims) (string, error)
	Download(ctx context.Context, applicationKey, key, token string, actor *models.JWTClaims) (*service.AttachmentDownload, error)
	Delete(ctx context.Context, applicationKey, key string, actor *models.JWTClaims) error
}

// AttachmentHandler manages attachment HTTP endpoints under an application.
type AttachmentHandler struct {
	service attachmentService
}

// NewAttachmentHandler constructs the handler.
func NewAttachmentHandler(service attachmentService) *AttachmentHandler {
	return &AttachmentHandler{service: service}
}

// Upload godoc
// @Summary Upload an attachment for a question
// @Tags Attachments
// @Accept multipart/form-data
// @Produce json
// @Param key path string true "Application key"
// @Param question_ref formData string true "Question reference"
// @Param file formData file true "File"
// @Success 201 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Router /applications/{key}/attachments [post]
func (h *AttachmentHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var meta dto.UploadAttachmentRequest
	if err := c.ShouldBind(&meta); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid attachment payload"))
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	// Signature sniffing needs a rewindable stream.
	reader, ok := src.(io.ReadSeeker)
	if !ok {
		buf, readErr := io.ReadAll(src)
		if readErr != nil {
			response.Error(c, appErrors.Wrap(readErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to buffer file"))
			return
		}
		reader = bytes.NewReader(buf)
	}
	upload := service.AttachmentUpload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		Content:  reader,
	}
	att, err := h.service.Upload(c.Request.Context(), c.Param("key"), meta, upload, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, att, nil)
}

// List godoc
// @Summary List live attachments of an application
// @Tags Attachments
// @Produce json
// @Param key path string true "Application key"
// @Success 200 {object} response.Envelope
// @Router /applications/{key}/attachments [get]
func (h *AttachmentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	items, err := h.service.List(c.Request.Context(), c.Param("key"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get attachment metadata with a signed download URL
// @Tags Attachments
// @Produce json
// @Param key path string true "Application key"
// @Param attachmentKey path string true "Attachment key"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{key}/attachments/{attachmentKey} [get]
func (h *AttachmentHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	att, err := h.service.Get(c.Request.Context(), c.Param("key"), c.Param("attachmentKey"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	downloadURL, err := h.service.GetDownloadURL(c.Request.Context(), c.Param("key"), att.Key, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.AttachmentDownloadResponse{
		Attachment:  *att,
		DownloadURL: downloadURL,
	}, nil)
}

// Download godoc
// @Summary Download an attachment via signed token
// @Tags Attachments
// @Produce octet-stream
// @Param key path string true "Application key"
// @Param attachmentKey path string true "Attachment key"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /applications/{key}/attachments/{attachmentKey}/download [get]
func (h *AttachmentHandler) Download(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.service.Download(c.Request.Context(), c.Param("key"), c.Param("attachmentKey"), token, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, result.SizeBytes, result.MimeType, result.File, nil)
}

// Delete godoc
// @Summary Soft delete an attachment
// @Tags Attachments
// @Produce json
// @Param key path string true "Application key"
// @Param attachmentKey path string true "Attachment key"
// @Success 204
// @Router /applications/{key}/attachments/{attachmentKey} [delete]
func (h *AttachmentHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("key"), c.Param("attachmentKey"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
