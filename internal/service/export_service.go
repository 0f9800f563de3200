package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ecoinfx/forms-api/internal/models"
	"github.com/ecoinfx/forms-api/internal/schema"
	appErrors "github.com/ecoinfx/forms-api/pkg/errors"
	"github.com/ecoinfx/forms-api/pkg/export"
	"github.com/ecoinfx/forms-api/pkg/storage"
)

// ExportFormat selects the rendered output type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type exportFileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       ExportFormat
	ExpiresAt    time.Time
}

// ExportService renders an application's answers, labelled with the
// questionnaire's question text, into a downloadable tabular file.
type ExportService struct {
	applications   applicationResolver
	questionnaires questionnaireResolver
	storage        exportFileStorage
	csv            csvRenderer
	pdf            pdfRenderer
	signer         *storage.SignedURLSigner
	logger         *zap.Logger
	cfg            ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(applications applicationResolver, questionnaires questionnaireResolver, store exportFileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		applications:   applications,
		questionnaires: questionnaires,
		storage:        store,
		csv:            csv,
		pdf:            pdf,
		signer:         signer,
		logger:         logger,
		cfg:            cfg,
	}
}

// Generate renders the application's answers and stores the file, returning
// a signed download reference.
func (s *ExportService) Generate(ctx context.Context, applicationKey string, format ExportFormat, actor *models.JWTClaims) (*ExportResult, error) {
	app, err := s.applications.Get(ctx, applicationKey, actor)
	if err != nil {
		return nil, err
	}
	q, err := s.questionnaires.GetVersion(ctx, app.QuestionnaireSlug, app.QuestionnaireVersion)
	if err != nil {
		return nil, err
	}

	dataset, title, err := buildAnswerDataset(q, app)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assemble export dataset")
	}

	var payload []byte
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("%s_%s.%s", app.Key, time.Now().UTC().Format("20060102_150405"), format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(app.Key, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export download")
	}
	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	if base == "" {
		base = "/api/v1"
	}
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", base, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (applicationKey, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// answerStepState mirrors the persisted answer document's steps entries.
type answerStepState struct {
	IsValid *bool          `json:"is_valid"`
	Answers map[string]any `json:"answers"`
}

// buildAnswerDataset pairs every question with its recorded answer, in
// questionnaire order. Unanswered questions appear with an empty value.
func buildAnswerDataset(q *models.Questionnaire, app *models.Application) (export.Dataset, string, error) {
	var tree struct {
		Steps []schema.Step `json:"steps"`
	}
	if err := json.Unmarshal(q.Document, &tree); err != nil {
		return export.Dataset{}, "", fmt.Errorf("decode questionnaire document: %w", err)
	}
	var answers struct {
		Steps []answerStepState `json:"steps"`
	}
	if err := json.Unmarshal(app.Document, &answers); err != nil {
		return export.Dataset{}, "", fmt.Errorf("decode answer document: %w", err)
	}

	headers := []string{"Step", "Section", "Question", "Answer"}
	rows := make([]map[string]string, 0)
	for si, step := range tree.Steps {
		var state answerStepState
		if si < len(answers.Steps) {
			state = answers.Steps[si]
		}
		for ci, section := range step.Sections {
			for qi, question := range section.Questions {
				value := ""
				if state.Answers != nil {
					value = formatAnswer(state.Answers[fmt.Sprintf("%d-%d", ci, qi)], question)
				}
				rows = append(rows, map[string]string{
					"Step":     step.Title,
					"Section":  section.Title,
					"Question": question.Label,
					"Answer":   value,
				})
			}
		}
	}
	title := fmt.Sprintf("%s (v%d)", q.Name, q.Version)
	return export.Dataset{Headers: headers, Rows: rows}, title, nil
}

func formatAnswer(value any, question schema.Question) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		// Grid answer: one line per row, cells keyed by column label,
		// rendered in declared column order.
		lines := make([]string, 0, len(v))
		for _, raw := range v {
			row, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			cells := make([]string, 0, len(question.GridColumns))
			for _, col := range question.GridColumns {
				cells = append(cells, formatAnswer(row[col.Label], question))
			}
			lines = append(lines, strings.Join(cells, " / "))
		}
		return strings.Join(lines, "; ")
	default:
		return fmt.Sprintf("%v", v)
	}
}
