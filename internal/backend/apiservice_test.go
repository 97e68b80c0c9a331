package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jo-hoe/bannerforge/internal/banner"
	"github.com/jo-hoe/bannerforge/internal/common"
	"github.com/jo-hoe/bannerforge/internal/core"
	"github.com/jo-hoe/bannerforge/internal/email"
	"github.com/jo-hoe/bannerforge/internal/generation"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	generated   []banner.GenerationRequest
	generateErr error
	banners     []banner.BannerRecord
	listErr     error
	uploads     map[string][]byte
	uploadErr   error
	drafts      *email.Store
}

func newFakeService() *fakeService {
	return &fakeService{uploads: map[string][]byte{}, drafts: email.NewStore()}
}

func (f *fakeService) Generate(ctx context.Context, req banner.GenerationRequest) (*generation.Result, error) {
	f.generated = append(f.generated, req)
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return &generation.Result{URLs: []string{"https://cdn.test/" + req.UserID + "/generated_1_0_square.png"}}, nil
}

func (f *fakeService) ListOwnBanners(ctx context.Context, userID string) ([]banner.BannerRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var owned []banner.BannerRecord
	for _, record := range f.banners {
		if record.UserID == userID {
			owned = append(owned, record)
		}
	}
	return owned, nil
}

func (f *fakeService) UploadReference(ctx context.Context, userID, filename string, data []byte) (*core.UploadedImage, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploads[userID+"/"+filename] = data
	return &core.UploadedImage{Name: filename, URL: "https://cdn.test/product-images/" + userID + "/" + filename}, nil
}

func (f *fakeService) ListUploads(ctx context.Context, userID string) ([]banner.StoredObject, error) {
	return []banner.StoredObject{}, nil
}

func (f *fakeService) EmailBlocks(userID string) []email.Block { return f.drafts.Blocks(userID) }

func (f *fakeService) AddEmailBlock(userID string, blockType email.BlockType, content string) (email.Block, error) {
	if blockType == email.ImageBlock {
		return f.drafts.AddImage(userID, content)
	}
	return f.drafts.AddText(userID, content)
}

func (f *fakeService) MoveEmailBlock(userID, blockID string, direction email.Direction) error {
	return f.drafts.Move(userID, blockID, direction)
}

func (f *fakeService) RemoveEmailBlock(userID, blockID string) error {
	return f.drafts.Remove(userID, blockID)
}

func (f *fakeService) ExportEmail(userID string) string { return f.drafts.HTML(userID) }

func newTestServer(t *testing.T, svc core.Service, mutate func(*core.ServiceConfig)) *echo.Echo {
	t.Helper()
	config, err := core.ParseConfig([]byte("{}"))
	require.NoError(t, err)
	if mutate != nil {
		mutate(config)
	}

	e := echo.New()
	e.Validator = common.NewGenericEchoValidator()
	limiter := NewGenerationLimiter(config.Generation.RateLimit.Interval, config.Generation.RateLimit.Burst)
	NewAPIService(config, svc, limiter).SetRoutes(e)
	return e
}

func do(e *echo.Echo, method, target, userID, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	e := newTestServer(t, newFakeService(), nil)
	rec := do(e, http.MethodGet, HealthRoute, "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerate_Success(t *testing.T) {
	svc := newFakeService()
	e := newTestServer(t, svc, nil)

	body := `{"user_id":"u1","prompt_details":{"design_type":"sale banner"},"input_image_url":"https://store/u1/logo.png","aspect_ratio":"landscape"}`
	rec := do(e, http.MethodPost, "/api/generate", "", echo.MIMEApplicationJSON, []byte(body))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"urls":["https://cdn.test/u1/generated_1_0_square.png"]}`, rec.Body.String())
	require.Len(t, svc.generated, 1)
	assert.Equal(t, banner.GenerationRequest{
		UserID:        "u1",
		PromptDetails: banner.PromptDetails{"design_type": "sale banner"},
		InputImageURL: "https://store/u1/logo.png",
		AspectRatio:   banner.Landscape,
	}, svc.generated[0])
}

func TestGenerate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{
			name:   "invalid request",
			err:    banner.NewError(banner.InvalidRequest, "Missing required fields", nil),
			status: http.StatusBadRequest,
			body:   `{"error":"Missing required fields"}`,
		},
		{
			name:   "upstream",
			err:    banner.NewError(banner.UpstreamGenerationError, "OpenAI edit error: rate limited", nil),
			status: http.StatusInternalServerError,
			body:   `{"error":"OpenAI edit error: rate limited"}`,
		},
		{
			name:   "configuration",
			err:    banner.NewError(banner.ConfigurationError, "Server configuration error", nil),
			status: http.StatusInternalServerError,
			body:   `{"error":"Server configuration error"}`,
		},
		{
			name:   "unclassified",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			body:   `{"error":"boom"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			svc.generateErr = tt.err
			e := newTestServer(t, svc, nil)

			rec := do(e, http.MethodPost, "/api/generate", "", echo.MIMEApplicationJSON, []byte(`{"user_id":"u1"}`))

			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

func TestGenerate_MalformedBody(t *testing.T) {
	svc := newFakeService()
	e := newTestServer(t, svc, nil)

	rec := do(e, http.MethodPost, "/api/generate", "", echo.MIMEApplicationJSON, []byte(`{"user_id":`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid request body"}`, rec.Body.String())
	assert.Empty(t, svc.generated)
}

func TestGenerate_RateLimitedPerUser(t *testing.T) {
	svc := newFakeService()
	e := newTestServer(t, svc, func(c *core.ServiceConfig) {
		c.Generation.RateLimit = core.RateLimit{Interval: time.Hour, Burst: 1}
	})

	first := do(e, http.MethodPost, "/api/generate", "", echo.MIMEApplicationJSON, []byte(`{"user_id":"u1"}`))
	second := do(e, http.MethodPost, "/api/generate", "", echo.MIMEApplicationJSON, []byte(`{"user_id":"u1"}`))
	other := do(e, http.MethodPost, "/api/generate", "", echo.MIMEApplicationJSON, []byte(`{"user_id":"u2"}`))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.JSONEq(t, `{"error":"Too many generation requests"}`, second.Body.String())
	assert.Equal(t, http.StatusOK, other.Code)
	assert.Len(t, svc.generated, 2)
}

func TestListBanners(t *testing.T) {
	svc := newFakeService()
	svc.banners = []banner.BannerRecord{
		{ID: "b2", UserID: "u1", GeneratedURLs: []string{"https://cdn.test/2.png"}},
		{ID: "x", UserID: "u2", GeneratedURLs: []string{"https://cdn.test/x.png"}},
		{ID: "b1", UserID: "u1", GeneratedURLs: []string{"https://cdn.test/1.png"}},
	}
	e := newTestServer(t, svc, nil)

	rec := do(e, http.MethodGet, "/api/banners", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/api/banners", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body bannersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Banners, 2)
	assert.Equal(t, "b2", body.Banners[0].ID)
	assert.Equal(t, "b1", body.Banners[1].ID)

	rec = do(e, http.MethodGet, "/api/banners", "nobody", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"banners":[]}`, rec.Body.String())

	svc.listErr = errors.New("connection refused")
	rec = do(e, http.MethodGet, "/api/banners", "u1", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch banners"}`, rec.Body.String())
}

func multipartBody(t *testing.T, field, filename string, data []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return buf.Bytes(), writer.FormDataContentType()
}

func TestUpload(t *testing.T) {
	svc := newFakeService()
	e := newTestServer(t, svc, nil)

	body, contentType := multipartBody(t, "image", "logo.png", []byte("png-bytes"))
	rec := do(e, http.MethodPost, "/api/uploads", "u1", contentType, body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"name":"logo.png","url":"https://cdn.test/product-images/u1/logo.png"}`, rec.Body.String())
	assert.Equal(t, []byte("png-bytes"), svc.uploads["u1/logo.png"])
}

func TestUpload_Errors(t *testing.T) {
	svc := newFakeService()
	e := newTestServer(t, svc, nil)

	body, contentType := multipartBody(t, "file", "logo.png", []byte("png-bytes"))
	rec := do(e, http.MethodPost, "/api/uploads", "u1", contentType, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.uploadErr = banner.NewError(banner.InvalidRequest, "Invalid file type.", nil)
	body, contentType = multipartBody(t, "image", "notes.txt", []byte("hello"))
	rec = do(e, http.MethodPost, "/api/uploads", "u1", contentType, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid file type."}`, rec.Body.String())

	rec = do(e, http.MethodPost, "/api/uploads", "", contentType, body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListUploads(t *testing.T) {
	e := newTestServer(t, newFakeService(), nil)
	rec := do(e, http.MethodGet, "/api/uploads", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"uploads":[]}`, rec.Body.String())
}

func TestEmailBlocks(t *testing.T) {
	svc := newFakeService()
	e := newTestServer(t, svc, nil)

	rec := do(e, http.MethodPost, "/api/email/blocks", "u1", echo.MIMEApplicationJSON,
		[]byte(`{"type":"image","content":"https://cdn.test/a.png"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	imageID := decode(t, rec)["id"].(string)

	rec = do(e, http.MethodPost, "/api/email/blocks", "u1", echo.MIMEApplicationJSON,
		[]byte(`{"type":"text","content":"Summer sale"}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	textID := decode(t, rec)["id"].(string)

	rec = do(e, http.MethodPost, "/api/email/blocks", "u1", echo.MIMEApplicationJSON,
		[]byte(`{"type":"video","content":"x"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/email/blocks/"+textID+"/move?dir=up", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var moved blocksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &moved))
	require.Len(t, moved.Blocks, 2)
	assert.Equal(t, textID, moved.Blocks[0].ID)
	assert.Equal(t, imageID, moved.Blocks[1].ID)

	rec = do(e, http.MethodPost, "/api/email/blocks/"+textID+"/move?dir=sideways", "u1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/email/blocks/missing/move?dir=up", "u1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/api/email/export", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="email-template.html"`, rec.Header().Get(echo.HeaderContentDisposition))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "<!DOCTYPE html>"))
	assert.Less(t, strings.Index(rec.Body.String(), "<p>Summer sale</p>"), strings.Index(rec.Body.String(), "<img"))

	rec = do(e, http.MethodDelete, "/api/email/blocks/"+imageID, "u1", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(e, http.MethodDelete, "/api/email/blocks/"+imageID, "u1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/api/email/blocks", "u2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"blocks":[]}`, rec.Body.String())
}

func TestGenerationLimiter_Disabled(t *testing.T) {
	limiter := NewGenerationLimiter(0, 5)
	assert.Nil(t, limiter)
	for i := 0; i < 10; i++ {
		assert.True(t, limiter.Allow("u1"))
	}
}
