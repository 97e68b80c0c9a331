package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jo-hoe/bannerforge/internal/banner"
)

const bannersTable = "banners"

// SupabaseDatabase stores records in the banners table through PostgREST.
// The table itself is provisioned outside this service.
type SupabaseDatabase struct {
	HTTPClient *http.Client
	baseURL    string
	serviceKey string
}

func NewSupabaseDatabase(baseURL, serviceKey string) *SupabaseDatabase {
	return &SupabaseDatabase{
		HTTPClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
	}
}

func (s *SupabaseDatabase) CreateDatabase(ctx context.Context) error {
	return nil
}

func (s *SupabaseDatabase) DoesDatabaseExist() bool {
	return s.baseURL != "" && s.serviceKey != ""
}

func (s *SupabaseDatabase) Close() error {
	return nil
}

type supabaseInsert struct {
	UserID        string               `json:"user_id"`
	PromptDetails banner.PromptDetails `json:"prompt_details"`
	InputImageURL string               `json:"input_image_url"`
	GeneratedURLs []string             `json:"generated_urls"`
}

func (s *SupabaseDatabase) InsertBanner(ctx context.Context, record *banner.BannerRecord) error {
	payload, err := json.Marshal(supabaseInsert{
		UserID:        record.UserID,
		PromptDetails: record.PromptDetails,
		InputImageURL: record.InputImageURL,
		GeneratedURLs: record.GeneratedURLs,
	})
	if err != nil {
		return fmt.Errorf("failed to encode banner: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tableURL(nil), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create insert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	var inserted []banner.BannerRecord
	if err := s.do(req, &inserted); err != nil {
		return err
	}
	if len(inserted) > 0 {
		record.ID = inserted[0].ID
		record.CreatedAt = inserted[0].CreatedAt
	}
	return nil
}

func (s *SupabaseDatabase) ListBannersByUser(ctx context.Context, userID string) ([]banner.BannerRecord, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("user_id", "eq."+userID)
	query.Set("order", "created_at.desc")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.tableURL(query), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create list request: %w", err)
	}

	records := []banner.BannerRecord{}
	if err := s.do(req, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *SupabaseDatabase) tableURL(query url.Values) string {
	target := s.baseURL + "/rest/v1/" + bannersTable
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

func (s *SupabaseDatabase) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return restError(resp.Status, body)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// restError prefers the PostgREST "message" field over the raw body.
func restError(status string, body []byte) error {
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		return fmt.Errorf("%s", envelope.Message)
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return fmt.Errorf("%s", text)
	}
	return fmt.Errorf("%s", status)
}
