package banner

import "time"

// PromptDetails is the caller's free-form description of the banner. It is
// forwarded and stored verbatim and never inspected.
type PromptDetails map[string]any

// GenerationRequest is a single call to the generation pipeline.
type GenerationRequest struct {
	UserID        string        `json:"user_id" validate:"required"`
	PromptDetails PromptDetails `json:"prompt_details" validate:"required"`
	InputImageURL string        `json:"input_image_url" validate:"required"`
	AspectRatio   AspectRatio   `json:"aspect_ratio,omitempty" validate:"omitempty,oneof=square landscape portrait"`
}

// BannerRecord is the persisted metadata of one successful generation.
type BannerRecord struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	PromptDetails PromptDetails `json:"prompt_details"`
	InputImageURL string        `json:"input_image_url"`
	GeneratedURLs []string      `json:"generated_urls"`
	CreatedAt     time.Time     `json:"created_at"`
}

// StoredObject is an entry returned when listing a bucket prefix.
type StoredObject struct {
	Name      string    `json:"name"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
