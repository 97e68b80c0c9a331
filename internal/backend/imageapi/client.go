package imageapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
)

const (
	DefaultEndpoint = "https://api.openai.com/v1/images/edits"
	DefaultModel    = "gpt-image-1"

	referenceFilename = "input_image.png"
	referenceMimeType = "image/png"
)

// EditRequest is one call to the image edit endpoint.
type EditRequest struct {
	Prompt    string
	Size      string
	Count     int
	Reference []byte
}

// EditResponse mirrors the service's success body.
type EditResponse struct {
	Data []GeneratedImage `json:"data"`
}

// GeneratedImage is one generation entry. B64JSON is empty when the service
// returned no payload for the entry.
type GeneratedImage struct {
	B64JSON string `json:"b64_json,omitempty"`
}

// Client talks to an OpenAI-compatible image edit endpoint.
type Client struct {
	HTTPClient *http.Client
	endpoint   string
	model      string
	apiKey     string
}

func NewClient(apiKey, endpoint, model string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		HTTPClient: &http.Client{},
		endpoint:   endpoint,
		model:      model,
		apiKey:     apiKey,
	}
}

func (c *Client) Model() string {
	return c.model
}

// Edit submits the reference image with the prompt as a multipart request.
// A non-2xx response is returned as *APIError.
func (c *Client) Edit(ctx context.Context, request EditRequest) (*EditResponse, error) {
	body, contentType, err := c.encodeForm(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create edit request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	slog.Debug("sending image edit request",
		"endpoint", c.endpoint,
		"model", c.model,
		"size", request.Size,
		"reference_size_bytes", len(request.Reference))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send edit request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Failure: decodeFailure(resp.StatusCode, raw)}
	}

	var out EditResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode edit response: %w", err)
	}
	return &out, nil
}

func (c *Client) encodeForm(request EditRequest) (io.Reader, string, error) {
	count := request.Count
	if count <= 0 {
		count = 1
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fields := []struct{ name, value string }{
		{"model", c.model},
		{"prompt", request.Prompt},
		{"n", strconv.Itoa(count)},
		{"size", request.Size},
	}
	for _, field := range fields {
		if err := writer.WriteField(field.name, field.value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", field.name, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, referenceFilename))
	header.Set("Content-Type", referenceMimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(request.Reference); err != nil {
		return nil, "", fmt.Errorf("failed to write image part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize form: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
