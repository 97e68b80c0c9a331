package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/jo-hoe/bannerforge/internal/backend/cache"
	"github.com/jo-hoe/bannerforge/internal/backend/database"
	"github.com/jo-hoe/bannerforge/internal/backend/fetch"
	"github.com/jo-hoe/bannerforge/internal/backend/imageapi"
	"github.com/jo-hoe/bannerforge/internal/backend/imageprocessing"
	"github.com/jo-hoe/bannerforge/internal/backend/objectstore"
	"github.com/jo-hoe/bannerforge/internal/banner"
	"github.com/jo-hoe/bannerforge/internal/email"
	"github.com/jo-hoe/bannerforge/internal/generation"
)

const (
	uploadListLimit   = 100
	uploadContentType = "image/png"
)

// UploadedImage is a stored reference image.
type UploadedImage struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type CoreService struct {
	config          *ServiceConfig
	objectStore     objectstore.Store
	databaseService database.DatabaseService
	cache           cache.Cache
	fetcher         *fetch.Fetcher
	normalizer      *imageprocessing.CommandInvoker
	drafts          *email.Store

	// newEditor builds the image service client for one request.
	newEditor func(secrets Secrets) generation.Editor
	now       func() time.Time
}

func NewCoreService(ctx context.Context, config *ServiceConfig) (*CoreService, error) {
	normalizer, err := imageprocessing.NewUploadNormalizer(config.Uploads.MaxDimension, config.Uploads.SvgFallbackSize)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload normalizer: %w", err)
	}

	objectStore, err := objectstore.NewStore(objectstore.Settings{
		Type:            config.ObjectStore.Type,
		Root:            config.ObjectStore.Root,
		PublicBaseURL:   config.ObjectStore.PublicBaseURL,
		Region:          config.ObjectStore.Region,
		Endpoint:        config.ObjectStore.Endpoint,
		BackendURL:      config.Secrets.BackendURL,
		BackendKey:      config.Secrets.BackendKey,
		AccessKeyID:     config.Secrets.AWSAccessKeyID,
		SecretAccessKey: config.Secrets.AWSSecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	databaseService, err := getDatabaseService(ctx, config)
	if err != nil {
		return nil, err
	}

	listingCache, err := cache.NewCache(cache.Settings{
		Type:         config.Cache.Type,
		TTL:          config.Cache.TTL,
		RedisAddress: config.Cache.RedisAddress,
	})
	if err != nil {
		_ = databaseService.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	return &CoreService{
		config:          config,
		objectStore:     objectStore,
		databaseService: database.NewCachedDatabase(databaseService, listingCache),
		cache:           listingCache,
		fetcher:         fetch.NewFetcher(fetch.NewHTTPClient(config.Fetch.Timeout), config.Fetch.MaxBytes, config.Fetch.BlockPrivateNetworks),
		normalizer:      normalizer,
		drafts:          email.NewStore(),
		newEditor: func(secrets Secrets) generation.Editor {
			return imageapi.NewClient(secrets.ImageAPIKey, config.Generation.Endpoint, config.Generation.Model)
		},
		now: time.Now,
	}, nil
}

func getDatabaseService(ctx context.Context, config *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(ctx, database.Settings{
		Type:             config.Database.Type,
		ConnectionString: config.Database.ConnectionString,
		BackendURL:       config.Secrets.BackendURL,
		BackendKey:       config.Secrets.BackendKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)
	return databaseService, nil
}

func (service *CoreService) Config() *ServiceConfig {
	return service.config
}

// ObjectRoot returns the directory behind the filesystem object store.
func (service *CoreService) ObjectRoot() (string, bool) {
	fs, ok := service.objectStore.(*objectstore.FilesystemStore)
	if !ok {
		return "", false
	}
	return fs.Root(), true
}

// Generate runs one banner generation with a pipeline built for this request.
func (service *CoreService) Generate(ctx context.Context, req banner.GenerationRequest) (*generation.Result, error) {
	secrets := service.config.Secrets
	pipeline := generation.New(secrets.pipelineSecrets(), generation.Dependencies{
		Fetcher: service.fetcher,
		Editor:  service.newEditor(secrets),
		Bucket:  service.objectStore.Bucket(service.config.ObjectStore.GeneratedBucket),
		Records: service.databaseService,
		Now:     service.now,
	})
	return pipeline.Generate(ctx, req)
}

func (service *CoreService) ListOwnBanners(ctx context.Context, userID string) ([]banner.BannerRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id must not be empty")
	}
	return service.databaseService.ListBannersByUser(ctx, userID)
}

// UploadReference validates, normalises and stores a reference image for
// userID. Rejected input is reported as an InvalidRequest *banner.Error.
func (service *CoreService) UploadReference(ctx context.Context, userID, filename string, data []byte) (*UploadedImage, error) {
	limit := service.config.Uploads.MaxBytes
	if int64(len(data)) > limit {
		return nil, banner.NewError(banner.InvalidRequest,
			fmt.Sprintf("File size exceeds %s limit.", formatLimit(limit)), nil)
	}
	if _, err := imageprocessing.DetectFormat(data); err != nil {
		return nil, banner.NewError(banner.InvalidRequest, "Invalid file type.", err)
	}

	normalized, err := service.normalizer.Execute(data)
	if err != nil {
		return nil, banner.NewError(banner.InvalidRequest, "Invalid file type.", err)
	}

	name := fmt.Sprintf("%d_%s.png", service.now().UnixMilli(), uploadBaseName(filename))
	objectPath := userID + "/" + name
	bucket := service.objectStore.Bucket(service.config.ObjectStore.UploadBucket)

	err = bucket.Upload(ctx, objectPath, normalized, objectstore.UploadOptions{ContentType: uploadContentType})
	if err != nil {
		slog.Error("failed to store reference upload", "user_id", userID, "path", objectPath, "error", err)
		return nil, banner.NewError(banner.StorageUploadError, "Upload failed: "+err.Error(), err)
	}
	url, err := bucket.PublicURL(ctx, objectPath)
	if err != nil || url == "" {
		return nil, banner.NewError(banner.StorageURLError, "Failed to get public URL for uploaded image", err)
	}

	slog.Info("reference image uploaded", "user_id", userID, "path", objectPath, "bytes", len(normalized))
	return &UploadedImage{Name: name, URL: url}, nil
}

// ListUploads returns the user's previous reference uploads, newest first.
func (service *CoreService) ListUploads(ctx context.Context, userID string) ([]banner.StoredObject, error) {
	bucket := service.objectStore.Bucket(service.config.ObjectStore.UploadBucket)
	objects, err := bucket.List(ctx, userID, objectstore.ListOptions{Limit: uploadListLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}

	uploads := make([]banner.StoredObject, 0, len(objects))
	for _, object := range objects {
		if object.Name == objectstore.PlaceholderName {
			continue
		}
		url, err := bucket.PublicURL(ctx, userID+"/"+object.Name)
		if err != nil || url == "" {
			slog.Warn("skipping upload without public url", "user_id", userID, "name", object.Name, "error", err)
			continue
		}
		uploads = append(uploads, banner.StoredObject{Name: object.Name, URL: url, CreatedAt: object.CreatedAt})
	}
	return uploads, nil
}

func (service *CoreService) EmailBlocks(userID string) []email.Block {
	return service.drafts.Blocks(userID)
}

func (service *CoreService) AddEmailBlock(userID string, blockType email.BlockType, content string) (email.Block, error) {
	switch blockType {
	case email.ImageBlock:
		return service.drafts.AddImage(userID, content)
	case email.TextBlock:
		return service.drafts.AddText(userID, content)
	}
	return email.Block{}, fmt.Errorf("unsupported block type %q", blockType)
}

func (service *CoreService) MoveEmailBlock(userID, blockID string, direction email.Direction) error {
	return service.drafts.Move(userID, blockID, direction)
}

func (service *CoreService) RemoveEmailBlock(userID, blockID string) error {
	return service.drafts.Remove(userID, blockID)
}

func (service *CoreService) ExportEmail(userID string) string {
	return service.drafts.HTML(userID)
}

func (service *CoreService) Close() error {
	var errs []error
	if err := service.databaseService.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	if service.cache != nil {
		if err := service.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close cache: %w", err))
		}
	}
	return errors.Join(errs...)
}

// uploadBaseName strips the extension and any character that is not safe in
// an object path.
func uploadBaseName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "._")
	if name == "" {
		return "upload"
	}
	return name
}

func formatLimit(limit int64) string {
	if limit%(1<<20) == 0 {
		return fmt.Sprintf("%dMB", limit>>20)
	}
	return fmt.Sprintf("%d bytes", limit)
}
