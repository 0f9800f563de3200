package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/ecoinfx/forms-api/internal/models"
)

func attachmentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "key", "application_id", "question_ref", "file_name", "file_path",
		"mime_type", "size_bytes", "created_at", "deleted", "deleted_at",
	}).AddRow("att-1", "akey-1", "app-1", "0.1-2", "report.pdf", "attachments/report.pdf",
		"application/pdf", 2048, time.Now(), false, nil)
}

func TestAttachmentRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttachmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attachments")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	att := &models.Attachment{
		ApplicationID: "app-1",
		QuestionRef:   "0.1-2",
		FileName:      "report.pdf",
		FilePath:      "attachments/report.pdf",
		MimeType:      "application/pdf",
		SizeBytes:     2048,
	}
	require.NoError(t, repo.Create(context.Background(), att))
	require.NotEmpty(t, att.Key)

	mock.ExpectQuery("SELECT .+ FROM attachments WHERE application_id = .+ AND key = .+ AND NOT deleted").
		WithArgs("app-1", att.Key).
		WillReturnRows(attachmentRows())

	found, err := repo.GetByKey(context.Background(), "app-1", att.Key)
	require.NoError(t, err)
	require.Equal(t, "report.pdf", found.FileName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachmentRepositoryListExcludesDeleted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttachmentRepository(db)
	mock.ExpectQuery("SELECT .+ FROM attachments WHERE application_id = .+ AND NOT deleted ORDER BY created_at").
		WithArgs("app-1").
		WillReturnRows(attachmentRows())

	items, err := repo.ListByApplication(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachmentRepositorySoftDeleteSecondCallNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttachmentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE attachments SET deleted = true")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SoftDelete(context.Background(), "app-1", "akey-1", time.Now()))

	// Second delete matches no live row, so deleted_at keeps its first value.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE attachments SET deleted = true")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SoftDelete(context.Background(), "app-1", "akey-1", time.Now())
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachmentRepositoryExistsAny(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAttachmentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attachments")).
		WithArgs("app-1", "akey-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := repo.ExistsAny(context.Background(), "app-1", "akey-1")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}
