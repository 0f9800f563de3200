package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ecoinfx/forms-api/internal/models"
	"github.com/ecoinfx/forms-api/internal/schema"
	appErrors "github.com/ecoinfx/forms-api/pkg/errors"
	"github.com/ecoinfx/forms-api/pkg/storage"
)

type exportStorageStub struct {
	dir string
}

func newExportStorageStub(t *testing.T) *exportStorageStub {
	t.Helper()
	return &exportStorageStub{dir: t.TempDir()}
}

func (s *exportStorageStub) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(s.dir, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return filepath.Base(filename), nil
}

func (s *exportStorageStub) Open(filename string) (*os.File, error) {
	return os.Open(filepath.Join(s.dir, filepath.Base(filename)))
}

func (s *exportStorageStub) Delete(filename string) error {
	return os.Remove(filepath.Join(s.dir, filepath.Base(filename)))
}

func (s *exportStorageStub) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	return nil, nil
}

func exportFixture(t *testing.T) (*ExportService, *exportStorageStub) {
	t.Helper()
	q := testQuestionnaire(t)
	answers, err := json.Marshal(map[string]any{
		"schema_version": schema.CurrentAnswersVersion,
		"active_step":    0,
		"steps": []any{
			map[string]any{"is_valid": true, "answers": map[string]any{"0-0": "Jane Doe", "0-1": 30}},
		},
	})
	require.NoError(t, err)
	app := &models.Application{
		ID:                   "app-1",
		Key:                  "key-1",
		OwnerID:              "user-1",
		Document:             answers,
		QuestionnaireSlug:    q.Slug,
		QuestionnaireVersion: q.Version,
	}
	store := newExportStorageStub(t)
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	svc := NewExportService(
		&appResolverStub{app: app},
		&questionnaireResolverStub{questionnaire: q},
		store,
		signer,
		ExportConfig{APIPrefix: "/api/v1"},
		nil, nil, nil,
	)
	return svc, store
}

func TestExportServiceGenerateCSV(t *testing.T) {
	svc, store := exportFixture(t)

	res, err := svc.Generate(context.Background(), "key-1", ExportFormatCSV, applicantActor("user-1"))
	require.NoError(t, err)
	require.Equal(t, ExportFormatCSV, res.Format)
	require.NotEmpty(t, res.Token)
	require.True(t, strings.HasPrefix(res.URL, "/api/v1/exports/"))

	file, err := store.Open(res.RelativePath)
	require.NoError(t, err)
	defer file.Close()
	data, err := os.ReadFile(file.Name())
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "Full name")
	require.Contains(t, content, "Jane Doe")
	require.Contains(t, content, "Age")
	require.Contains(t, content, "30")
}

func TestExportServiceDatasetRendersGridAnswersByColumnLabel(t *testing.T) {
	doc, err := json.Marshal(map[string]any{
		"schema_version": schema.CurrentQuestionnaireVersion,
		"steps": []any{
			map[string]any{
				"title": "Team",
				"sections": []any{
					map[string]any{
						"title": "Members",
						"questions": []any{
							map[string]any{
								"label": "Team members",
								"type":  schema.KindGrid,
								"grid_columns": []any{
									map[string]any{"label": "Name", "type": schema.KindText},
									map[string]any{"label": "Role", "type": schema.KindText},
								},
								"grid_max_rows": 5,
							},
							map[string]any{"label": "Budget", "type": schema.KindNumber},
						},
					},
				},
			},
		},
	})
	require.NoError(t, err)
	q := &models.Questionnaire{Slug: "grants", Version: 3, Name: "Grant Application", Document: doc}

	answers, err := json.Marshal(map[string]any{
		"schema_version": schema.CurrentAnswersVersion,
		"active_step":    0,
		"steps": []any{
			map[string]any{"is_valid": true, "answers": map[string]any{
				"0-0": []any{
					map[string]any{"Name": "Ada", "Role": "lead"},
					map[string]any{"Name": "Bo", "Role": "dev"},
				},
				"0-1": 10.5,
			}},
		},
	})
	require.NoError(t, err)
	app := &models.Application{Key: "key-1", OwnerID: "user-1", Document: answers, QuestionnaireSlug: q.Slug, QuestionnaireVersion: q.Version}

	dataset, title, err := buildAnswerDataset(q, app)
	require.NoError(t, err)
	require.Equal(t, "Grant Application (v3)", title)
	require.Len(t, dataset.Rows, 2)
	require.Equal(t, "Ada / lead; Bo / dev", dataset.Rows[0]["Answer"])
	require.Equal(t, "10.5", dataset.Rows[1]["Answer"])
}

func TestExportServiceGeneratePDF(t *testing.T) {
	svc, store := exportFixture(t)

	res, err := svc.Generate(context.Background(), "key-1", ExportFormatPDF, applicantActor("user-1"))
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(res.RelativePath, ".pdf"))

	file, err := store.Open(res.RelativePath)
	require.NoError(t, err)
	defer file.Close()
	header := make([]byte, 5)
	_, err = file.Read(header)
	require.NoError(t, err)
	require.Equal(t, "%PDF-", string(header))
}

func TestExportServiceGenerateRejectsUnknownFormat(t *testing.T) {
	svc, _ := exportFixture(t)

	_, err := svc.Generate(context.Background(), "key-1", ExportFormat("xml"), applicantActor("user-1"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceHidesForeignApplications(t *testing.T) {
	svc, _ := exportFixture(t)

	_, err := svc.Generate(context.Background(), "key-1", ExportFormatCSV, applicantActor("user-2"))
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportServiceParseTokenRoundTrip(t *testing.T) {
	svc, _ := exportFixture(t)

	res, err := svc.Generate(context.Background(), "key-1", ExportFormatCSV, applicantActor("user-1"))
	require.NoError(t, err)

	key, relPath, expiresAt, err := svc.ParseToken(res.Token, false)
	require.NoError(t, err)
	require.Equal(t, "key-1", key)
	require.Equal(t, res.RelativePath, relPath)
	require.False(t, expiresAt.IsZero())

	_, _, _, err = svc.ParseToken(fmt.Sprintf("%s-tampered", res.Token), false)
	require.Error(t, err)
}
