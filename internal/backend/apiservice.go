package backend

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jo-hoe/bannerforge/internal/banner"
	"github.com/jo-hoe/bannerforge/internal/common"
	"github.com/jo-hoe/bannerforge/internal/core"
	"github.com/jo-hoe/bannerforge/internal/email"
	"github.com/labstack/echo/v4"
)

const HealthRoute = "/health"

type errorResponse struct {
	Error string `json:"error"`
}

type bannersResponse struct {
	Banners []banner.BannerRecord `json:"banners"`
}

type uploadsResponse struct {
	Uploads []banner.StoredObject `json:"uploads"`
}

type blocksResponse struct {
	Blocks []email.Block `json:"blocks"`
}

type addBlockRequest struct {
	Type    string `json:"type" form:"type" validate:"required,oneof=image text"`
	Content string `json:"content" form:"content" validate:"required"`
}

// APIService serves the JSON API.
type APIService struct {
	coreService core.Service
	config      *core.ServiceConfig
	limiter     *GenerationLimiter
}

// NewAPIService serves the API. limiter may be nil and should be shared with
// every other route that starts a generation.
func NewAPIService(config *core.ServiceConfig, coreService core.Service, limiter *GenerationLimiter) *APIService {
	return &APIService{
		coreService: coreService,
		config:      config,
		limiter:     limiter,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.GET(HealthRoute, func(c echo.Context) error {
		return c.String(http.StatusOK, "API Service is running")
	})

	api := e.Group("/api", common.Identity(s.config.Identity.Header, s.config.Identity.Cookie))
	api.POST("/generate", s.generateHandler)

	api.GET("/banners", s.listBannersHandler, common.RequireUser)
	api.POST("/uploads", s.uploadHandler, common.RequireUser)
	api.GET("/uploads", s.listUploadsHandler, common.RequireUser)
	api.GET("/email/blocks", s.listBlocksHandler, common.RequireUser)
	api.POST("/email/blocks", s.addBlockHandler, common.RequireUser)
	api.POST("/email/blocks/:id/move", s.moveBlockHandler, common.RequireUser)
	api.DELETE("/email/blocks/:id", s.removeBlockHandler, common.RequireUser)
	api.GET("/email/export", s.exportHandler, common.RequireUser)
}

// generateHandler is the pipeline invocation. The owner comes from the body,
// as it does for every caller of the pipeline.
func (s *APIService) generateHandler(ctx echo.Context) error {
	var req banner.GenerationRequest
	if err := (&echo.DefaultBinder{}).BindBody(ctx, &req); err != nil {
		slog.Warn("generateHandler: malformed request body", "status", http.StatusBadRequest, "error", err)
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
	}

	if req.UserID != "" && !s.limiter.Allow(req.UserID) {
		slog.Warn("generateHandler: rate limited", "status", http.StatusTooManyRequests, "user_id", req.UserID)
		return ctx.JSON(http.StatusTooManyRequests, errorResponse{Error: "Too many generation requests"})
	}

	result, err := s.coreService.Generate(ctx.Request().Context(), req)
	if err != nil {
		return writeError(ctx, "generateHandler", err)
	}
	return ctx.JSON(http.StatusOK, result)
}

func (s *APIService) listBannersHandler(ctx echo.Context) error {
	userID := common.UserID(ctx)
	banners, err := s.coreService.ListOwnBanners(ctx.Request().Context(), userID)
	if err != nil {
		slog.Error("listBannersHandler: failed to list banners",
			"status", http.StatusInternalServerError, "user_id", userID, "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to fetch banners"})
	}
	if banners == nil {
		banners = []banner.BannerRecord{}
	}
	return ctx.JSON(http.StatusOK, bannersResponse{Banners: banners})
}

func (s *APIService) uploadHandler(ctx echo.Context) error {
	userID := common.UserID(ctx)
	filename, data, err := ReadUpload(ctx, s.config.Uploads.MaxBytes)
	if err != nil {
		slog.Warn("uploadHandler: failed to read uploaded file",
			"status", http.StatusBadRequest, "user_id", userID, "error", err)
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Failed to get uploaded file"})
	}

	uploaded, err := s.coreService.UploadReference(ctx.Request().Context(), userID, filename, data)
	if err != nil {
		return writeError(ctx, "uploadHandler", err)
	}
	return ctx.JSON(http.StatusOK, uploaded)
}

func (s *APIService) listUploadsHandler(ctx echo.Context) error {
	userID := common.UserID(ctx)
	uploads, err := s.coreService.ListUploads(ctx.Request().Context(), userID)
	if err != nil {
		slog.Error("listUploadsHandler: failed to list uploads",
			"status", http.StatusInternalServerError, "user_id", userID, "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to load previous uploads"})
	}
	return ctx.JSON(http.StatusOK, uploadsResponse{Uploads: uploads})
}

func (s *APIService) listBlocksHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, blocksResponse{Blocks: s.coreService.EmailBlocks(common.UserID(ctx))})
}

func (s *APIService) addBlockHandler(ctx echo.Context) error {
	var req addBlockRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
	}
	if err := ctx.Validate(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Block type must be image or text and content must not be empty"})
	}

	block, err := s.coreService.AddEmailBlock(common.UserID(ctx), email.BlockType(req.Type), req.Content)
	if err != nil {
		return writeBlockError(ctx, err)
	}
	return ctx.JSON(http.StatusCreated, block)
}

func (s *APIService) moveBlockHandler(ctx echo.Context) error {
	direction, err := email.ParseDirection(ctx.QueryParam("dir"))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid parameters"})
	}

	userID := common.UserID(ctx)
	if err := s.coreService.MoveEmailBlock(userID, ctx.Param("id"), direction); err != nil {
		return writeBlockError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, blocksResponse{Blocks: s.coreService.EmailBlocks(userID)})
}

func (s *APIService) removeBlockHandler(ctx echo.Context) error {
	if err := s.coreService.RemoveEmailBlock(common.UserID(ctx), ctx.Param("id")); err != nil {
		return writeBlockError(ctx, err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *APIService) exportHandler(ctx echo.Context) error {
	document := s.coreService.ExportEmail(common.UserID(ctx))
	SetAttachment(ctx, email.ExportFilename)
	return ctx.HTMLBlob(http.StatusOK, []byte(document))
}

// SetAttachment marks the response as a file download.
func SetAttachment(ctx echo.Context, filename string) {
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
}

// ReadUpload reads the multipart "image" field. Reading stops one byte past
// maxBytes so oversized files are still recognised as such.
func ReadUpload(ctx echo.Context, maxBytes int64) (string, []byte, error) {
	file, err := ctx.FormFile("image")
	if err != nil {
		return "", nil, fmt.Errorf("missing image field: %w", err)
	}
	src, err := file.Open()
	if err != nil {
		return "", nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(src, maxBytes+1))
	if err != nil {
		return "", nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	return file.Filename, data, nil
}

// writeError answers with the pipeline's status and message. Anything that is
// not a *banner.Error is a 500 carrying its message.
func writeError(ctx echo.Context, handler string, err error) error {
	var bErr *banner.Error
	if errors.As(err, &bErr) {
		slog.Error(handler+": request failed",
			"status", bErr.Status(), "kind", string(bErr.Kind), "error", err)
		return ctx.JSON(bErr.Status(), errorResponse{Error: bErr.Message})
	}
	slog.Error(handler+": request failed", "status", http.StatusInternalServerError, "error", err)
	return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func writeBlockError(ctx echo.Context, err error) error {
	switch {
	case errors.Is(err, email.ErrBlockNotFound):
		return ctx.JSON(http.StatusNotFound, errorResponse{Error: "Block not found"})
	case errors.Is(err, email.ErrEmptyContent):
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "Block content must not be empty"})
	}
	return writeError(ctx, "emailBlocks", err)
}
