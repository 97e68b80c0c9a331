package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// FilesystemStore keeps objects under root/<bucket>/<path>. The HTTP server
// exposes root under publicBaseURL.
type FilesystemStore struct {
	root          string
	publicBaseURL string
}

func NewFilesystemStore(root, publicBaseURL string) (*FilesystemStore, error) {
	if root == "" {
		return nil, fmt.Errorf("filesystem object store requires a root directory")
	}
	if publicBaseURL == "" {
		return nil, fmt.Errorf("filesystem object store requires a public base url")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create object root %s: %w", root, err)
	}
	return &FilesystemStore{
		root:          root,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

func (s *FilesystemStore) Root() string {
	return s.root
}

func (s *FilesystemStore) Bucket(name string) Bucket {
	return &filesystemBucket{store: s, name: name}
}

type filesystemBucket struct {
	store *FilesystemStore
	name  string
}

func (b *filesystemBucket) resolve(objectPath string) (string, error) {
	clean := path.Clean("/" + objectPath)
	if clean == "/" || strings.Contains(objectPath, "..") {
		return "", fmt.Errorf("invalid object path %q", objectPath)
	}
	return filepath.Join(b.store.root, b.name, filepath.FromSlash(clean)), nil
}

func (b *filesystemBucket) Upload(ctx context.Context, objectPath string, data []byte, opts UploadOptions) error {
	target, err := b.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !opts.Upsert {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	file, err := os.OpenFile(target, flags, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to open object: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write object: %w", err)
	}
	return file.Close()
}

func (b *filesystemBucket) PublicURL(ctx context.Context, objectPath string) (string, error) {
	target, err := b.resolve(objectPath)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(target); err != nil {
		return "", fmt.Errorf("object %s not available: %w", objectPath, err)
	}
	return b.store.publicBaseURL + "/" + escapePath(b.name+"/"+strings.TrimLeft(objectPath, "/")), nil
}

func (b *filesystemBucket) List(ctx context.Context, prefix string, opts ListOptions) ([]Object, error) {
	dir := filepath.Join(b.store.root, b.name, filepath.FromSlash(path.Clean("/"+prefix)))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Object{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	objects := make([]Object, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		objects = append(objects, Object{Name: entry.Name(), Size: info.Size(), CreatedAt: info.ModTime()})
	}
	sort.SliceStable(objects, func(i, j int) bool {
		if objects[i].CreatedAt.Equal(objects[j].CreatedAt) {
			return objects[i].Name > objects[j].Name
		}
		return objects[i].CreatedAt.After(objects[j].CreatedAt)
	})
	return applyPage(objects, opts), nil
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
