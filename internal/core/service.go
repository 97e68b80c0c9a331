package core

import (
	"context"

	"github.com/jo-hoe/bannerforge/internal/banner"
	"github.com/jo-hoe/bannerforge/internal/email"
	"github.com/jo-hoe/bannerforge/internal/generation"
)

// Service is the set of user-facing operations the HTTP layers call.
type Service interface {
	Generate(ctx context.Context, req banner.GenerationRequest) (*generation.Result, error)
	ListOwnBanners(ctx context.Context, userID string) ([]banner.BannerRecord, error)

	UploadReference(ctx context.Context, userID, filename string, data []byte) (*UploadedImage, error)
	ListUploads(ctx context.Context, userID string) ([]banner.StoredObject, error)

	EmailBlocks(userID string) []email.Block
	AddEmailBlock(userID string, blockType email.BlockType, content string) (email.Block, error)
	MoveEmailBlock(userID, blockID string, direction email.Direction) error
	RemoveEmailBlock(userID, blockID string) error
	ExportEmail(userID string) string
}

var _ Service = (*CoreService)(nil)
