package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoinfx/forms-api/internal/dto"
	"github.com/ecoinfx/forms-api/internal/models"
	"github.com/ecoinfx/forms-api/internal/service"
	appErrors "github.com/ecoinfx/forms-api/pkg/errors"
)

type attachmentServiceMock struct {
	att          *models.Attachment
	err          error
	listResp     []models.Attachment
	downloadURL  string
	download     *service.AttachmentDownload
	lastMeta     dto.UploadAttachmentRequest
	lastUpload   service.AttachmentUpload
	uploadCalled bool
	deleteCalled bool
}

func (m *attachmentServiceMock) Upload(ctx context.Context, applicationKey string, meta dto.UploadAttachmentRequest, upload service.AttachmentUpload, actor *models.JWTClaims) (*models.Attachment, error) {
	m.uploadCalled = true
	m.lastMeta = meta
	m.lastUpload = upload
	return m.att, m.err
}

func (m *attachmentServiceMock) List(ctx context.Context, applicationKey string, actor *models.JWTClaims) ([]models.Attachment, error) {
	return m.listResp, m.err
}

func (m *attachmentServiceMock) Get(ctx context.Context, applicationKey, key string, actor *models.JWTClaims) (*models.Attachment, error) {
	return m.att, m.err
}

func (m *attachmentServiceMock) GetDownloadURL(ctx context.Context, applicationKey, key string, actor *models.JWTClaims) (string, error) {
	return m.downloadURL, m.err
}

func (m *attachmentServiceMock) Download(ctx context.Context, applicationKey, key, token string, actor *models.JWTClaims) (*service.AttachmentDownload, error) {
	return m.download, m.err
}

func (m *attachmentServiceMock) Delete(ctx context.Context, applicationKey, key string, actor *models.JWTClaims) error {
	m.deleteCalled = true
	return m.err
}

func multipartUpload(t *testing.T, questionRef, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("question_ref", questionRef))
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestAttachmentHandlerUpload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &attachmentServiceMock{att: &models.Attachment{Key: "attkey-1", FileName: "report.pdf"}}
	handler := NewAttachmentHandler(mockSvc)

	body, contentType := multipartUpload(t, "0.1-2", "report.pdf", []byte("%PDF-1.7 test"))
	w := httptest.NewRecorder()
	c := applicantContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/applications/key-1/attachments", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req
	c.Params = gin.Params{{Key: "key", Value: "key-1"}}

	handler.Upload(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, mockSvc.uploadCalled)
	assert.Equal(t, "0.1-2", mockSvc.lastMeta.QuestionRef)
	assert.Equal(t, "report.pdf", mockSvc.lastUpload.Filename)

	// The service must receive a rewindable stream with the full content.
	require.NotNil(t, mockSvc.lastUpload.Content)
	data, err := io.ReadAll(mockSvc.lastUpload.Content)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 test", string(data))
}

func TestAttachmentHandlerUploadMissingFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAttachmentHandler(&attachmentServiceMock{})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("question_ref", "0.0-0"))
	require.NoError(t, writer.Close())

	w := httptest.NewRecorder()
	c := applicantContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/applications/key-1/attachments", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.Request = req
	c.Params = gin.Params{{Key: "key", Value: "key-1"}}

	handler.Upload(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttachmentHandlerUploadUnsupportedType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &attachmentServiceMock{err: appErrors.Clone(appErrors.ErrUnsupportedFile, "unsupported file type")}
	handler := NewAttachmentHandler(mockSvc)

	body, contentType := multipartUpload(t, "0.0-0", "evil.exe", []byte("MZ"))
	w := httptest.NewRecorder()
	c := applicantContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/applications/key-1/attachments", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req
	c.Params = gin.Params{{Key: "key", Value: "key-1"}}

	handler.Upload(c)
	require.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestAttachmentHandlerGetIncludesDownloadURL(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &attachmentServiceMock{
		att:         &models.Attachment{Key: "attkey-1", FileName: "report.pdf"},
		downloadURL: "/api/v1/applications/key-1/attachments/attkey-1/download?token=abc",
	}
	handler := NewAttachmentHandler(mockSvc)

	w := httptest.NewRecorder()
	c := applicantContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/applications/key-1/attachments/attkey-1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "key", Value: "key-1"}, {Key: "attachmentKey", Value: "attkey-1"}}

	handler.Get(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "download_url")
}

func TestAttachmentHandlerDownloadRequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAttachmentHandler(&attachmentServiceMock{})

	w := httptest.NewRecorder()
	c := applicantContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/applications/key-1/attachments/attkey-1/download", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "key", Value: "key-1"}, {Key: "attachmentKey", Value: "attkey-1"}}

	handler.Download(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttachmentHandlerDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &attachmentServiceMock{}
	handler := NewAttachmentHandler(mockSvc)

	w := httptest.NewRecorder()
	c := applicantContext(w)
	req, _ := http.NewRequest(http.MethodDelete, "/applications/key-1/attachments/attkey-1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "key", Value: "key-1"}, {Key: "attachmentKey", Value: "attkey-1"}}

	handler.Delete(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, mockSvc.deleteCalled)
}
