package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/jo-hoe/bannerforge/internal/banner"
	"github.com/shouni/go-http-kit/httpkit"
)

const (
	DefaultIdentityHeader = "X-User-Id"
	DefaultTimeout        = 5 * time.Minute
)

// Transport is the part of httpkit.HTTPClient the client uses.
type Transport interface {
	DoRequest(req *http.Request) ([]byte, error)
	PostJSONAndFetchBytes(ctx context.Context, url string, data any) ([]byte, error)
}

// GenerateResult is the success body of a generation.
type GenerateResult struct {
	URLs []string `json:"urls"`
}

// APIError carries the server's {error} message when the failure had one.
type APIError struct {
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Client calls the bannerforge JSON API.
type Client struct {
	Transport      Transport
	IdentityHeader string
	baseURL        string
}

// New returns a client whose requests are sent exactly once. Generation is
// not idempotent.
func New(baseURL string) *Client {
	return &Client{
		Transport:      httpkit.New(DefaultTimeout, httpkit.WithMaxRetries(0)),
		IdentityHeader: DefaultIdentityHeader,
		baseURL:        strings.TrimRight(baseURL, "/"),
	}
}

// Upload stores a reference image and returns its URL.
func (c *Client) Upload(ctx context.Context, userID, filename string, data []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finish multipart body: %w", err)
	}

	var uploaded struct {
		URL string `json:"url"`
	}
	err = c.do(ctx, http.MethodPost, "/api/uploads", userID, writer.FormDataContentType(), &body, &uploaded)
	if err != nil {
		return "", err
	}
	return uploaded.URL, nil
}

func (c *Client) Generate(ctx context.Context, req banner.GenerationRequest) (*GenerateResult, error) {
	data, err := c.Transport.PostJSONAndFetchBytes(ctx, c.baseURL+"/api/generate", req)
	if err != nil {
		return nil, apiError(err)
	}

	var result GenerateResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// ListOwnBanners returns the user's banners, newest first.
func (c *Client) ListOwnBanners(ctx context.Context, userID string) ([]banner.BannerRecord, error) {
	var listed struct {
		Banners []banner.BannerRecord `json:"banners"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/banners", userID, "", nil, &listed); err != nil {
		return nil, err
	}
	return listed.Banners, nil
}

// GenerateAndRefresh generates and then re-reads the gallery. Nothing is
// pushed by the server, so the listing is the only way to see the new record.
func (c *Client) GenerateAndRefresh(ctx context.Context, req banner.GenerationRequest) (*GenerateResult, []banner.BannerRecord, error) {
	result, err := c.Generate(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	banners, err := c.ListOwnBanners(ctx, req.UserID)
	if err != nil {
		return result, nil, fmt.Errorf("failed to refresh banners: %w", err)
	}
	return result, banners, nil
}

// FailureMessage formats err for people. Generation failures are never
// retried.
func FailureMessage(err error) string {
	message := "Unknown error"
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		message = apiErr.Message
	} else if err != nil {
		message = err.Error()
	}
	return fmt.Sprintf("Generation failed: %s. Please try again.", message)
}

func (c *Client) do(ctx context.Context, method, path, userID, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if userID != "" {
		req.Header.Set(c.IdentityHeader, userID)
	}

	data, err := c.Transport.DoRequest(req)
	if err != nil {
		return apiError(err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// apiError recovers the {error} document the server answered with. httpkit
// reports non-2xx answers as errors whose text carries the response body.
func apiError(err error) *APIError {
	text := err.Error()
	for i := strings.IndexByte(text, '{'); i >= 0; {
		var failure struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(strings.NewReader(text[i:])).Decode(&failure) == nil && failure.Error != "" {
			return &APIError{Message: failure.Error, Err: err}
		}
		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return &APIError{Message: text, Err: err}
}
