package objectstore

import (
	"fmt"
	"log/slog"
)

type Settings struct {
	Type            string
	Root            string
	PublicBaseURL   string
	Region          string
	Endpoint        string
	BackendURL      string
	BackendKey      string
	AccessKeyID     string
	SecretAccessKey string
}

// NewStore builds the backend named by settings.Type.
func NewStore(settings Settings) (store Store, err error) {
	switch settings.Type {
	case "filesystem":
		store, err = NewFilesystemStore(settings.Root, settings.PublicBaseURL)
	case "supabase":
		if settings.BackendURL == "" || settings.BackendKey == "" {
			return nil, fmt.Errorf("supabase object store requires backend url and key")
		}
		store = NewSupabaseStore(settings.BackendURL, settings.BackendKey)
	case "s3":
		store, err = NewS3Store(S3Config{
			Region:          settings.Region,
			Endpoint:        settings.Endpoint,
			AccessKeyID:     settings.AccessKeyID,
			SecretAccessKey: settings.SecretAccessKey,
			PublicBaseURL:   settings.PublicBaseURL,
		})
	default:
		return nil, fmt.Errorf("unsupported object store type: %s", settings.Type)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("object store initialized", "type", settings.Type)
	return store, nil
}
