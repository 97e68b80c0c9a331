package generation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jo-hoe/bannerforge/internal/backend/imageapi"
	"github.com/jo-hoe/bannerforge/internal/backend/objectstore"
	"github.com/jo-hoe/bannerforge/internal/banner"
)

const (
	// GeneratedBucket holds every generated banner.
	GeneratedBucket = "banner-images"

	generatedContentType = "image/png"
	imagesPerRequest     = 1
)

// Secrets are the credentials a pipeline needs. They are handed to each
// pipeline explicitly and never read from process state by this package.
type Secrets struct {
	ImageAPIKey string
	BackendURL  string
	BackendKey  string
}

func (s Secrets) complete() bool {
	return s.ImageAPIKey != "" && s.BackendURL != "" && s.BackendKey != ""
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Editor interface {
	Edit(ctx context.Context, request imageapi.EditRequest) (*imageapi.EditResponse, error)
}

type RecordStore interface {
	InsertBanner(ctx context.Context, record *banner.BannerRecord) error
}

// Dependencies are the collaborators of one pipeline run.
type Dependencies struct {
	Fetcher Fetcher
	Editor  Editor
	Bucket  objectstore.Bucket
	Records RecordStore
	Now     func() time.Time
	// NewRunID names one run. It keeps object paths of runs that start in the
	// same millisecond apart.
	NewRunID func() string
}

type Result struct {
	URLs []string `json:"urls"`
}

// Pipeline turns one generation request into stored banners and a record.
// Construct one per request.
type Pipeline struct {
	secrets Secrets
	deps    Dependencies
}

func New(secrets Secrets, deps Dependencies) *Pipeline {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewRunID == nil {
		deps.NewRunID = uuid.NewString
	}
	return &Pipeline{secrets: secrets, deps: deps}
}

// Generate runs the request through validation, reference fetch, the edit
// call, per-image upload and the metadata insert, strictly in that order.
// Every failure is a *banner.Error.
func (p *Pipeline) Generate(ctx context.Context, req banner.GenerationRequest) (*Result, error) {
	req, err := validateRequest(req)
	if err != nil {
		return nil, err
	}
	if !p.secrets.complete() {
		slog.Error("generation: missing api key or backend credentials")
		return nil, banner.NewError(banner.ConfigurationError, "Server configuration error", nil)
	}

	// prompt details must serialise before any outbound call
	prompt, err := BuildPrompt(req.PromptDetails, req.AspectRatio)
	if err != nil {
		return nil, banner.NewError(banner.InvalidRequest, "Invalid prompt details", err)
	}

	runID := p.deps.NewRunID()
	log := slog.With("user_id", req.UserID, "aspect_ratio", string(req.AspectRatio), "run_id", runID)

	reference, err := p.deps.Fetcher.Fetch(ctx, req.InputImageURL)
	if err != nil {
		log.Error("generation: failed to fetch reference image", "url", req.InputImageURL, "error", err)
		return nil, banner.NewError(banner.UpstreamFetchError, "Failed to fetch input image: "+err.Error(), err)
	}

	start := time.Now()
	response, err := p.deps.Editor.Edit(ctx, imageapi.EditRequest{
		Prompt:    prompt,
		Size:      req.AspectRatio.Size(),
		Count:     imagesPerRequest,
		Reference: reference,
	})
	if err != nil {
		log.Error("generation: image edit failed", "error", err)
		return nil, banner.NewError(banner.UpstreamGenerationError, "OpenAI edit error: "+editFailureMessage(err), err)
	}
	log.Info("generation: image edit completed",
		"entries", len(response.Data),
		"duration_ms", time.Since(start).Milliseconds())

	urls, err := p.storeImages(ctx, log, req, runID, response.Data)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		log.Error("generation: no entry carried an image payload")
		return nil, banner.NewError(banner.GenerationProducedNoResults, "Banner generation failed to produce results.", nil)
	}

	record := &banner.BannerRecord{
		UserID:        req.UserID,
		PromptDetails: req.PromptDetails,
		InputImageURL: req.InputImageURL,
		GeneratedURLs: urls,
	}
	if err := p.deps.Records.InsertBanner(ctx, record); err != nil {
		log.Error("generation: failed to insert banner record", "stored_objects", len(urls), "error", err)
		return nil, banner.NewError(banner.MetadataPersistError, "Failed to save banner metadata: "+err.Error(), err)
	}

	log.Info("generation: banner stored", "banner_id", record.ID, "images", len(urls))
	return &Result{URLs: record.GeneratedURLs}, nil
}

// storeImages uploads each entry with a payload and resolves its public URL.
// The first failing entry aborts the run.
func (p *Pipeline) storeImages(ctx context.Context, log *slog.Logger, req banner.GenerationRequest, runID string, entries []imageapi.GeneratedImage) ([]string, error) {
	urls := make([]string, 0, len(entries))
	for i, entry := range entries {
		if entry.B64JSON == "" {
			log.Warn("generation: entry without image payload", "index", i)
			continue
		}

		data, err := base64.StdEncoding.DecodeString(entry.B64JSON)
		if err != nil {
			log.Error("generation: undecodable image payload", "index", i, "error", err)
			return nil, banner.NewError(banner.UpstreamGenerationError,
				fmt.Sprintf("OpenAI edit error: invalid image payload at index %d", i), err)
		}

		objectPath := generatedObjectPath(req.UserID, p.deps.Now(), runID, i, req.AspectRatio)
		err = p.deps.Bucket.Upload(ctx, objectPath, data, objectstore.UploadOptions{
			ContentType: generatedContentType,
			Upsert:      true,
		})
		if err != nil {
			log.Error("generation: upload failed", "path", objectPath, "error", err)
			return nil, banner.NewError(banner.StorageUploadError, "Failed to upload generated image: "+err.Error(), err)
		}

		publicURL, err := p.deps.Bucket.PublicURL(ctx, objectPath)
		if err != nil || publicURL == "" {
			log.Error("generation: no public url", "path", objectPath, "error", err)
			return nil, banner.NewError(banner.StorageURLError, "Failed to get public URL for generated image", err)
		}
		urls = append(urls, publicURL)
	}
	return urls, nil
}

func generatedObjectPath(userID string, at time.Time, runID string, index int, aspect banner.AspectRatio) string {
	return fmt.Sprintf("%s/generated_%d_%s_%d_%s.png", userID, at.UnixMilli(), runID, index, aspect)
}

func editFailureMessage(err error) string {
	var apiErr *imageapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Failure.Message()
	}
	return err.Error()
}
