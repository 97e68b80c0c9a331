package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SupabaseStore talks to the Supabase Storage REST API with the service key.
type SupabaseStore struct {
	HTTPClient *http.Client
	baseURL    string
	serviceKey string
}

func NewSupabaseStore(baseURL, serviceKey string) *SupabaseStore {
	return &SupabaseStore{
		HTTPClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
	}
}

func (s *SupabaseStore) Bucket(name string) Bucket {
	return &supabaseBucket{store: s, name: name}
}

func (s *SupabaseStore) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)
	return s.HTTPClient.Do(req)
}

type supabaseBucket struct {
	store *SupabaseStore
	name  string
}

func (b *supabaseBucket) objectURL(kind, objectPath string) string {
	parts := []string{b.store.baseURL, "storage/v1/object"}
	if kind != "" {
		parts = append(parts, kind)
	}
	parts = append(parts, escapePath(b.name+"/"+strings.TrimLeft(objectPath, "/")))
	return strings.Join(parts, "/")
}

func (b *supabaseBucket) Upload(ctx context.Context, objectPath string, data []byte, opts UploadOptions) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.objectURL("", objectPath), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", strconv.FormatBool(opts.Upsert))

	resp, err := b.store.do(req)
	if err != nil {
		return fmt.Errorf("failed to send upload request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return storageError(resp)
	}
	return nil
}

func (b *supabaseBucket) PublicURL(ctx context.Context, objectPath string) (string, error) {
	if strings.Trim(objectPath, "/") == "" {
		return "", fmt.Errorf("empty object path")
	}
	return b.objectURL("public", objectPath), nil
}

type supabaseListRequest struct {
	Prefix string `json:"prefix"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	SortBy struct {
		Column string `json:"column"`
		Order  string `json:"order"`
	} `json:"sortBy"`
}

type supabaseObject struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Metadata  struct {
		Size int64 `json:"size"`
	} `json:"metadata"`
}

func (b *supabaseBucket) List(ctx context.Context, prefix string, opts ListOptions) ([]Object, error) {
	body := supabaseListRequest{Prefix: strings.Trim(prefix, "/"), Limit: opts.Limit, Offset: opts.Offset}
	if body.Limit <= 0 {
		body.Limit = 100
	}
	body.SortBy.Column = "created_at"
	body.SortBy.Order = "desc"

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal list request: %w", err)
	}
	listURL := b.store.baseURL + "/storage/v1/object/list/" + escapePath(b.name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, listURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create list request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.store.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send list request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, storageError(resp)
	}

	var entries []supabaseObject
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode list response: %w", err)
	}

	objects := make([]Object, 0, len(entries))
	for _, entry := range entries {
		// folders come back without an id
		if entry.ID == "" {
			continue
		}
		objects = append(objects, Object{Name: entry.Name, Size: entry.Metadata.Size, CreatedAt: entry.CreatedAt})
	}
	return objects, nil
}

// storageError surfaces the "message" of a Supabase error body, falling back
// to the raw body and then the status line.
func storageError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.Message != "" {
			return fmt.Errorf("%s", envelope.Message)
		}
		if envelope.Error != "" {
			return fmt.Errorf("%s", envelope.Error)
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return fmt.Errorf("%s", text)
	}
	return fmt.Errorf("%s", resp.Status)
}
