package database

import (
	"context"

	"github.com/jo-hoe/bannerforge/internal/banner"
)

// DatabaseService persists banner records. Records are append only.
type DatabaseService interface {
	CreateDatabase(ctx context.Context) error
	DoesDatabaseExist() bool
	Close() error

	// InsertBanner stores record and fills in the ID and CreatedAt the store
	// assigned to it.
	InsertBanner(ctx context.Context, record *banner.BannerRecord) error
	// ListBannersByUser returns the records owned by userID, newest first.
	ListBannersByUser(ctx context.Context, userID string) ([]banner.BannerRecord, error)
}
