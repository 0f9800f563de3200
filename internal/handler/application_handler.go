package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ecoinfx/forms-api/internal/dto"
	"github.com/ecoinfx/forms-api/internal/models"
	appErrors "github.com/ecoinfx/forms-api/pkg/errors"
	"github.com/ecoinfx/forms-api/pkg/response"
)

type applicationService interface {
	AnswersSchemaDocument() map[string]any
	Create(ctx context.Context, req dto.CreateApplicationRequest, actor *models.JWTClaims) (*models.Application, error)
	Get(ctx context.Context, key string, actor *models.JWTClaims) (*models.Application, error)
	List(ctx context.Context, query dto.ApplicationQuery, actor *models.JWTClaims) ([]models.Application, error)
	UpdateDocument(ctx context.Context, key string, req dto.UpdateDocumentRequest, actor *models.JWTClaims) (*models.Application, error)
	Submit(ctx context.Context, key string, actor *models.JWTClaims) (*models.Application, error)
	Transition(ctx context.Context, key string, req dto.TransitionRequest, actor *models.JWTClaims) (*models.Application, error)
	Discard(ctx context.Context, key string, actor *models.JWTClaims) error
}

// ApplicationHandler manages application HTTP endpoints.
type ApplicationHandler struct {
	service applicationService
}

// NewApplicationHandler constructs the handler.
func NewApplicationHandler(service applicationService) *ApplicationHandler {
	return &ApplicationHandler{service: service}
}

// AnswersSchema godoc
// @Summary Get the answers document schema
// @Tags Applications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /applications/schema [get]
func (h *ApplicationHandler) AnswersSchema(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.AnswersSchemaDocument(), nil)
}

// Create godoc
// @Summary Start a new application
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body dto.CreateApplicationRequest true "Target questionnaire"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid application payload"))
		return
	}
	app, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, app, nil)
}

// List godoc
// @Summary List applications visible to the caller
// @Tags Applications
// @Produce json
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var query dto.ApplicationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	items, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get one application
// @Tags Applications
// @Produce json
// @Param key path string true "Application key"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{key} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	app, err := h.service.Get(c.Request.Context(), c.Param("key"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// UpdateDocument godoc
// @Summary Replace a draft's answer document
// @Tags Applications
// @Accept json
// @Produce json
// @Param key path string true "Application key"
// @Param payload body dto.UpdateDocumentRequest true "Answer document"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /applications/{key}/document [put]
func (h *ApplicationHandler) UpdateDocument(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid document payload"))
		return
	}
	app, err := h.service.UpdateDocument(c.Request.Context(), c.Param("key"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Submit godoc
// @Summary Submit a draft application
// @Tags Applications
// @Produce json
// @Param key path string true "Application key"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{key}/submit [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	app, err := h.service.Submit(c.Request.Context(), c.Param("key"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Transition godoc
// @Summary Apply a review-side status transition
// @Tags Applications
// @Accept json
// @Produce json
// @Param key path string true "Application key"
// @Param payload body dto.TransitionRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{key}/status [post]
func (h *ApplicationHandler) Transition(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid transition payload"))
		return
	}
	app, err := h.service.Transition(c.Request.Context(), c.Param("key"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Discard godoc
// @Summary Discard a draft application
// @Tags Applications
// @Produce json
// @Param key path string true "Application key"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /applications/{key} [delete]
func (h *ApplicationHandler) Discard(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Discard(c.Request.Context(), c.Param("key"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
