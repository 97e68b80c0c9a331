package objectstore

import (
	"context"
	"errors"
	"time"
)

// PlaceholderName is the marker object some stores create for empty folders.
const PlaceholderName = ".emptyFolderPlaceholder"

// ErrAlreadyExists is returned by Upload when upsert is off and the path is taken.
var ErrAlreadyExists = errors.New("the resource already exists")

type UploadOptions struct {
	ContentType string
	Upsert      bool
}

// ListOptions pages through a folder. Results are always newest first.
type ListOptions struct {
	Limit  int
	Offset int
}

type Object struct {
	Name      string
	Size      int64
	CreatedAt time.Time
}

// Bucket is a named container of objects addressed by slash separated paths.
type Bucket interface {
	Upload(ctx context.Context, path string, data []byte, opts UploadOptions) error
	// PublicURL returns a durable URL resolving to the object at path.
	PublicURL(ctx context.Context, path string) (string, error)
	// List returns the objects directly inside the folder prefix.
	List(ctx context.Context, prefix string, opts ListOptions) ([]Object, error)
}

type Store interface {
	Bucket(name string) Bucket
}

func applyPage(objects []Object, opts ListOptions) []Object {
	if opts.Offset > 0 {
		if opts.Offset >= len(objects) {
			return []Object{}
		}
		objects = objects[opts.Offset:]
	}
	if opts.Limit > 0 && len(objects) > opts.Limit {
		objects = objects[:opts.Limit]
	}
	return objects
}
