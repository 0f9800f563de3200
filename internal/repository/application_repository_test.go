package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/ecoinfx/forms-api/internal/models"
	"github.com/ecoinfx/forms-api/internal/workflow"
)

func applicationRows(status workflow.Status) *sqlmock.Rows {
	doc := []byte(`{"schema_version":"2025.09-1","active_step":0,"steps":[{"is_valid":null,"answers":{}}]}`)
	return sqlmock.NewRows([]string{
		"id", "key", "owner_id", "questionnaire_id", "status", "document",
		"created_at", "updated_at", "submitted_at", "questionnaire_slug", "questionnaire_version",
	}).AddRow("app-1", "key-1", "user-1", "qn-1", status, doc, time.Now(), time.Now(), nil, "grants", 2)
}

func TestApplicationRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO applications")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	app := &models.Application{
		OwnerID:         "user-1",
		QuestionnaireID: "qn-1",
		Status:          workflow.StatusDraft,
		Document:        json.RawMessage(`{"schema_version":"2025.09-1","active_step":0,"steps":[]}`),
	}
	require.NoError(t, repo.Create(context.Background(), app))
	require.NotEmpty(t, app.Key)

	mock.ExpectQuery("SELECT .+ FROM applications a JOIN questionnaires q").
		WithArgs(app.Key).
		WillReturnRows(applicationRows(workflow.StatusDraft))

	found, err := repo.GetByKey(context.Background(), app.Key)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusDraft, found.Status)
	require.Equal(t, "grants", found.QuestionnaireSlug)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryUpdateDocumentGuarded(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET document")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateDocument(context.Background(), "app-1", []byte(`{}`), workflow.StatusDraft, time.Now())
	require.NoError(t, err)

	// Status moved between the gate check and the write: zero rows affected.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET document")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.UpdateDocument(context.Background(), "app-1", []byte(`{}`), workflow.StatusDraft, time.Now())
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryUpdateStatusCAS(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "app-1", workflow.StatusDraft, workflow.StatusSubmitted, &now))

	// A concurrent transition already changed the row.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "app-1", workflow.StatusDraft, workflow.StatusSubmitted, &now)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryListByOwnerAndStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectQuery("SELECT .+ FROM applications a JOIN questionnaires q").
		WithArgs("user-1", workflow.StatusSubmitted).
		WillReturnRows(applicationRows(workflow.StatusSubmitted))

	items, err := repo.List(context.Background(), models.ApplicationFilter{
		OwnerID: "user-1",
		Status:  workflow.StatusSubmitted,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, workflow.StatusSubmitted, items[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
