package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ecoinfx/forms-api/internal/dto"
	"github.com/ecoinfx/forms-api/internal/models"
	appErrors "github.com/ecoinfx/forms-api/pkg/errors"
	"github.com/ecoinfx/forms-api/pkg/response"
)

type questionnaireService interface {
	Schema() (map[string]any, error)
	Create(ctx context.Context, req dto.CreateQuestionnaireRequest, actor *models.JWTClaims) (*models.Questionnaire, error)
	GetLatest(ctx context.Context, slug string) (*models.Questionnaire, error)
	GetVersion(ctx context.Context, slug string, version int) (*models.Questionnaire, error)
	List(ctx context.Context, query dto.QuestionnaireQuery) ([]models.Questionnaire, error)
}

// QuestionnaireHandler manages questionnaire HTTP endpoints.
type QuestionnaireHandler struct {
	service questionnaireService
}

// NewQuestionnaireHandler constructs the handler.
func NewQuestionnaireHandler(service questionnaireService) *QuestionnaireHandler {
	return &QuestionnaireHandler{service: service}
}

// Schema godoc
// @Summary Get the questionnaire document schema
// @Tags Questionnaires
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /questionnaires/schema [get]
func (h *QuestionnaireHandler) Schema(c *gin.Context) {
	doc, err := h.service.Schema()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Create godoc
// @Summary Publish a questionnaire revision
// @Tags Questionnaires
// @Accept json
// @Produce json
// @Param payload body dto.CreateQuestionnaireRequest true "Questionnaire definition"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /questionnaires [post]
func (h *QuestionnaireHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateQuestionnaireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid questionnaire payload"))
		return
	}
	q, err := h.service.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, q, nil)
}

// List godoc
// @Summary List questionnaire revisions
// @Tags Questionnaires
// @Produce json
// @Param slug query string false "Slug filter"
// @Param latest_only query bool false "Only the revision in force per slug"
// @Success 200 {object} response.Envelope
// @Router /questionnaires [get]
func (h *QuestionnaireHandler) List(c *gin.Context) {
	var query dto.QuestionnaireQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	items, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// GetLatest godoc
// @Summary Get the questionnaire revision in force
// @Tags Questionnaires
// @Produce json
// @Param slug path string true "Questionnaire slug"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /questionnaires/{slug} [get]
func (h *QuestionnaireHandler) GetLatest(c *gin.Context) {
	slug := strings.TrimSpace(c.Param("slug"))
	if slug == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "slug is required"))
		return
	}
	q, err := h.service.GetLatest(c.Request.Context(), slug)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, q, nil)
}

// GetVersion godoc
// @Summary Get one pinned questionnaire revision
// @Tags Questionnaires
// @Produce json
// @Param slug path string true "Questionnaire slug"
// @Param version path int true "Revision number"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /questionnaires/{slug}/versions/{version} [get]
func (h *QuestionnaireHandler) GetVersion(c *gin.Context) {
	slug := strings.TrimSpace(c.Param("slug"))
	version, err := strconv.Atoi(c.Param("version"))
	if slug == "" || err != nil || version < 1 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "slug and a positive version are required"))
		return
	}
	q, err := h.service.GetVersion(c.Request.Context(), slug, version)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, q, nil)
}
