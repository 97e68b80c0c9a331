package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shouni/go-http-kit/httpkit"
)

// DefaultMaxBytes caps reference downloads at the same size accepted for uploads.
const DefaultMaxBytes = 20 << 20

const DefaultTimeout = 30 * time.Second

// ByteFetcher is the slice of httpkit.HTTPClient used for downloads.
type ByteFetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// Fetcher downloads reference images.
type Fetcher struct {
	client               ByteFetcher
	MaxBytes             int64
	BlockPrivateNetworks bool
}

// NewHTTPClient returns the shared outbound client. Reference fetches are
// attempted exactly once.
func NewHTTPClient(timeout time.Duration) httpkit.HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return httpkit.New(timeout, httpkit.WithMaxRetries(0))
}

func NewFetcher(client ByteFetcher, maxBytes int64, blockPrivateNetworks bool) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Fetcher{
		client:               client,
		MaxBytes:             maxBytes,
		BlockPrivateNetworks: blockPrivateNetworks,
	}
}

// Fetch performs a single GET of rawURL. Non-2xx answers, transport failures
// and oversized bodies are errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if f.BlockPrivateNetworks {
		if err := checkPublicURL(rawURL); err != nil {
			return nil, err
		}
	}

	data, err := f.client.FetchBytes(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", f.MaxBytes)
	}

	slog.Debug("reference image fetched",
		"url", rawURL,
		"content_type", http.DetectContentType(data),
		"size_bytes", len(data))
	return data, nil
}
