package frontend

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jo-hoe/bannerforge/internal/backend"
	"github.com/jo-hoe/bannerforge/internal/banner"
	"github.com/jo-hoe/bannerforge/internal/common"
	"github.com/jo-hoe/bannerforge/internal/core"
	"github.com/jo-hoe/bannerforge/internal/email"
	"github.com/labstack/echo/v4"
)

const (
	MainPageName = "index.html"
	mimeSVG      = "image/svg+xml"
)

const defaultPromptDetails = `{
  "design_type": "Seasonal sale promotional banner for e-commerce",
  "aesthetics": "Bold, modern, attention-grabbing with high contrast and a strong hierarchy.",
  "primary_colors": ["deep red", "white", "black", "light gray"],
  "additional_details": "Bold condensed all caps headline, smaller supporting text, pill-shaped call-to-action button."
}`

type indexData struct {
	UserID               string
	MaxUploadMB          int64
	DefaultPromptDetails string
	AspectRatios         []banner.AspectRatio
}

type FrontendService struct {
	coreService core.Service
	config      *core.ServiceConfig
	limiter     *backend.GenerationLimiter
}

func NewFrontendService(config *core.ServiceConfig, coreService core.Service, limiter *backend.GenerationLimiter) *FrontendService {
	return &FrontendService{
		coreService: coreService,
		config:      config,
		limiter:     limiter,
	}
}

// rootRedirectHandler redirects root path to index.html
func (service *FrontendService) rootRedirectHandler(ctx echo.Context) error {
	return ctx.Redirect(http.StatusMovedPermanently, "/"+MainPageName)
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.Renderer = newTemplate()

	identity := common.Identity(service.config.Identity.Header, service.config.Identity.Cookie)

	e.GET("/", service.rootRedirectHandler)
	e.GET("/"+MainPageName, service.indexHandler, identity)
	e.GET("/icon.svg", service.iconHandler)

	htmx := e.Group("/htmx", identity, common.RequireUser)
	htmx.POST("/uploadImage", service.htmxUploadImageHandler)
	htmx.GET("/uploads", service.htmxListUploadsHandler)
	htmx.POST("/generate", service.htmxGenerateHandler)
	htmx.GET("/banners", service.htmxListBannersHandler)
	htmx.GET("/email", service.htmxEmailHandler)
	htmx.POST("/email/blocks", service.htmxAddBlockHandler)
	htmx.POST("/email/blocks/:id/move", service.htmxMoveBlockHandler)
	htmx.DELETE("/email/blocks/:id", service.htmxDeleteBlockHandler)

	e.GET("/email/export", service.exportHandler, identity, common.RequireUser)
}

func (service *FrontendService) indexHandler(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, MainPageName, indexData{
		UserID:               common.UserID(ctx),
		MaxUploadMB:          service.config.Uploads.MaxBytes >> 20,
		DefaultPromptDetails: defaultPromptDetails,
		AspectRatios:         banner.AspectRatios,
	})
}

func (service *FrontendService) htmxUploadImageHandler(ctx echo.Context) error {
	userID := common.UserID(ctx)
	filename, data, err := backend.ReadUpload(ctx, service.config.Uploads.MaxBytes)
	if err != nil {
		slog.Error("htmxUploadImageHandler: failed to get uploaded file",
			"status", http.StatusBadRequest, "user_id", userID, "error", err)
		return ctx.HTML(http.StatusOK, uploadResult("Failed to get uploaded file", true))
	}

	uploaded, err := service.coreService.UploadReference(ctx.Request().Context(), userID, filename, data)
	if err != nil {
		slog.Error("htmxUploadImageHandler: failed to store uploaded image",
			"user_id", userID, "error", err, "filename", filename)
		return ctx.HTML(http.StatusOK, uploadResult(userMessage(err), true))
	}

	result := uploadResult(fmt.Sprintf(`Uploaded %s. %s`,
		html.EscapeString(uploaded.Name), selectButton(uploaded.URL, "Use this image")), false)

	// refresh the previous uploads list out of band
	listHTML, listErr := service.buildUploadListHTML(ctx, userID)
	if listErr != nil {
		slog.Error("htmxUploadImageHandler: failed to list uploads for OOB update", "error", listErr)
		return ctx.HTML(http.StatusOK, result)
	}
	return ctx.HTML(http.StatusOK, result+fmt.Sprintf(`<div id="upload-list" hx-swap-oob="true">%s</div>`, listHTML))
}

func (service *FrontendService) htmxListUploadsHandler(ctx echo.Context) error {
	listHTML, err := service.buildUploadListHTML(ctx, common.UserID(ctx))
	if err != nil {
		slog.Error("htmxListUploadsHandler: failed to list uploads",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.HTML(http.StatusOK, `<p class="error">Failed to load previous uploads</p>`)
	}
	service.setNoCache(ctx)
	return ctx.HTML(http.StatusOK, listHTML)
}

// htmxGenerateHandler runs a generation for the signed-in user and then
// re-reads the gallery.
func (service *FrontendService) htmxGenerateHandler(ctx echo.Context) error {
	userID := common.UserID(ctx)

	inputImageURL := strings.TrimSpace(ctx.FormValue("input_image_url"))
	if inputImageURL == "" {
		return ctx.HTML(http.StatusOK, generateResult("Please upload or select an image first.", true))
	}
	var details banner.PromptDetails
	if err := json.Unmarshal([]byte(ctx.FormValue("prompt_details")), &details); err != nil {
		return ctx.HTML(http.StatusOK, generateResult("Invalid JSON format in prompt details.", true))
	}
	if !service.limiter.Allow(userID) {
		slog.Warn("htmxGenerateHandler: rate limited", "status", http.StatusTooManyRequests, "user_id", userID)
		return ctx.HTML(http.StatusOK, generateResult("Too many generation requests. Please wait a moment and try again.", true))
	}

	result, err := service.coreService.Generate(ctx.Request().Context(), banner.GenerationRequest{
		UserID:        userID,
		PromptDetails: details,
		InputImageURL: inputImageURL,
		AspectRatio:   banner.AspectRatio(ctx.FormValue("aspect_ratio")),
	})
	if err != nil {
		slog.Error("htmxGenerateHandler: generation failed", "user_id", userID, "error", err)
		return ctx.HTML(http.StatusOK, generateResult(
			fmt.Sprintf("Generation failed: %s. Please try again.", html.EscapeString(userMessage(err))), true))
	}

	message := generateResult(fmt.Sprintf("Generated %d banner(s).", len(result.URLs)), false)
	galleryHTML, err := service.buildBannerGalleryHTML(ctx, userID)
	if err != nil {
		slog.Error("htmxGenerateHandler: failed to refresh gallery", "user_id", userID, "error", err)
		return ctx.HTML(http.StatusOK, message)
	}
	return ctx.HTML(http.StatusOK, message+fmt.Sprintf(`<div id="banner-gallery" hx-swap-oob="true">%s</div>`, galleryHTML))
}

func (service *FrontendService) htmxListBannersHandler(ctx echo.Context) error {
	galleryHTML, err := service.buildBannerGalleryHTML(ctx, common.UserID(ctx))
	if err != nil {
		slog.Error("htmxListBannersHandler: failed to list banners",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.HTML(http.StatusOK, `<p class="error">Failed to fetch banners</p>`)
	}
	service.setNoCache(ctx)
	return ctx.HTML(http.StatusOK, galleryHTML)
}

func (service *FrontendService) htmxEmailHandler(ctx echo.Context) error {
	return service.renderEmail(ctx)
}

func (service *FrontendService) htmxAddBlockHandler(ctx echo.Context) error {
	blockType := email.BlockType(ctx.FormValue("type"))
	if _, err := service.coreService.AddEmailBlock(common.UserID(ctx), blockType, ctx.FormValue("content")); err != nil {
		slog.Warn("htmxAddBlockHandler: failed to add block", "type", string(blockType), "error", err)
		return ctx.String(http.StatusBadRequest, "Failed to add block")
	}
	return service.renderEmail(ctx)
}

func (service *FrontendService) htmxMoveBlockHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	direction, err := email.ParseDirection(ctx.QueryParam("dir"))
	if id == "" || err != nil {
		slog.Warn("htmxMoveBlockHandler: invalid params", "id", id, "dir", ctx.QueryParam("dir"))
		return ctx.String(http.StatusBadRequest, "Invalid parameters")
	}

	if err := service.coreService.MoveEmailBlock(common.UserID(ctx), id, direction); err != nil {
		return service.blockError(ctx, "htmxMoveBlockHandler", id, err)
	}
	return service.renderEmail(ctx)
}

func (service *FrontendService) htmxDeleteBlockHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := service.coreService.RemoveEmailBlock(common.UserID(ctx), id); err != nil {
		return service.blockError(ctx, "htmxDeleteBlockHandler", id, err)
	}
	return service.renderEmail(ctx)
}

func (service *FrontendService) exportHandler(ctx echo.Context) error {
	document := service.coreService.ExportEmail(common.UserID(ctx))
	backend.SetAttachment(ctx, email.ExportFilename)
	return ctx.HTMLBlob(http.StatusOK, []byte(document))
}

func (service *FrontendService) blockError(ctx echo.Context, handler, id string, err error) error {
	if errors.Is(err, email.ErrBlockNotFound) {
		slog.Warn(handler+": block not found", "status", http.StatusNotFound, "block_id", id)
		return ctx.String(http.StatusNotFound, "Block not found")
	}
	slog.Error(handler+": block update failed", "status", http.StatusInternalServerError, "block_id", id, "error", err)
	return ctx.String(http.StatusInternalServerError, "Failed to update email")
}

func (service *FrontendService) renderEmail(ctx echo.Context) error {
	service.setNoCache(ctx)
	return ctx.HTML(http.StatusOK, service.buildEmailHTML(common.UserID(ctx)))
}

func (service *FrontendService) setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}

func (service *FrontendService) buildUploadListHTML(ctx echo.Context, userID string) (string, error) {
	uploads, err := service.coreService.ListUploads(ctx.Request().Context(), userID)
	if err != nil {
		return "", err
	}
	if len(uploads) == 0 {
		return `<p>No previous uploads found.</p>`, nil
	}

	var b strings.Builder
	b.WriteString(`<div class="thumb-grid">`)
	for _, upload := range uploads {
		url := html.EscapeString(upload.URL)
		name := html.EscapeString(upload.Name)
		b.WriteString(fmt.Sprintf(`<button type="button" class="outline" data-reference-url="%s" title="Use %s"><img src="%s" alt="%s"></button>`,
			url, name, url, name))
	}
	b.WriteString(`</div>`)
	return b.String(), nil
}

func (service *FrontendService) buildBannerGalleryHTML(ctx echo.Context, userID string) (string, error) {
	banners, err := service.coreService.ListOwnBanners(ctx.Request().Context(), userID)
	if err != nil {
		return "", err
	}
	if len(banners) == 0 {
		return `<p>No banners generated yet.</p>`, nil
	}

	var b strings.Builder
	b.WriteString(`<div class="gallery">`)
	for _, record := range banners {
		for _, generated := range record.GeneratedURLs {
			url := html.EscapeString(generated)
			b.WriteString(fmt.Sprintf(`<article>
	<img src="%s" alt="Generated banner" loading="lazy">
	<footer style="display:flex;gap:0.5rem;align-items:center;flex-wrap:wrap">
		<small>%s</small>
		<form hx-post="/htmx/email/blocks" hx-target="#email-editor" hx-swap="innerHTML">
			<input type="hidden" name="type" value="image">
			<input type="hidden" name="content" value="%s">
			<button type="submit" class="secondary">Add to email</button>
		</form>
	</footer>
</article>`, url, formatCreated(record.CreatedAt), url))
		}
	}
	b.WriteString(`</div>`)
	return b.String(), nil
}

func (service *FrontendService) buildEmailHTML(userID string) string {
	blocks := service.coreService.EmailBlocks(userID)
	if len(blocks) == 0 {
		return `<p>Your email is empty. Add banners from the gallery or a text block.</p>`
	}

	var b strings.Builder
	b.WriteString(`<div class="vertical-list" id="email-block-list">`)
	for i, block := range blocks {
		// Up disabled for first, Down disabled for last
		disableUp := ""
		disableDown := ""
		if i == 0 {
			disableUp = " disabled"
		}
		if i == len(blocks)-1 {
			disableDown = " disabled"
		}

		content := fmt.Sprintf(`<p>%s</p>`, html.EscapeString(block.Content))
		if block.Type == email.ImageBlock {
			content = fmt.Sprintf(`<img src="%s" alt="Banner Image">`, html.EscapeString(block.Content))
		}

		id := html.EscapeString(block.ID)
		b.WriteString(fmt.Sprintf(`<div class="email-block" data-id="%s" style="margin-bottom:1rem"><article>
	%s
	<footer style="display:flex;gap:0.5rem">
		<button hx-post="/htmx/email/blocks/%s/move?dir=up" hx-target="#email-editor" hx-swap="innerHTML"%s aria-label="Move up" title="Move up">
			<svg xmlns="http://www.w3.org/2000/svg" width="16" height="16" viewBox="0 0 24 24" aria-hidden="true">
				<polygon points="12,5 19,18 5,18" />
			</svg>
		</button>
		<button hx-post="/htmx/email/blocks/%s/move?dir=down" hx-target="#email-editor" hx-swap="innerHTML"%s aria-label="Move down" title="Move down">
			<svg xmlns="http://www.w3.org/2000/svg" width="16" height="16" viewBox="0 0 24 24" aria-hidden="true">
				<polygon points="5,6 19,6 12,19" />
			</svg>
		</button>
		<button hx-delete="/htmx/email/blocks/%s" hx-target="#email-editor" hx-swap="innerHTML" class="secondary">Remove</button>
	</footer>
</article></div>`, id, content, id, disableUp, id, disableDown, id))
	}
	b.WriteString(`</div>`)
	return b.String()
}

func (service *FrontendService) iconHandler(ctx echo.Context) error {
	data, err := assetsFS.ReadFile("views/icon.svg")
	if err != nil {
		slog.Error("iconHandler: failed to read icon.svg", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load icon")
	}
	// Cache for 7 days
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, mimeSVG, data)
}

func uploadResult(message string, failed bool) string {
	class := ""
	if failed {
		class = ` class="error"`
		message = html.EscapeString(message)
	}
	return fmt.Sprintf(`<div id="upload-result"%s>%s</div>`, class, message)
}

func generateResult(message string, failed bool) string {
	class := ""
	if failed {
		class = ` class="error"`
	}
	return fmt.Sprintf(`<div id="generate-result"%s>%s</div>`, class, message)
}

func selectButton(url, label string) string {
	return fmt.Sprintf(`<button type="button" class="secondary" data-reference-url="%s">%s</button>`,
		html.EscapeString(url), html.EscapeString(label))
}

// userMessage is the text shown for err: the pipeline message when there is
// one, a generic message otherwise.
func userMessage(err error) string {
	var bErr *banner.Error
	if errors.As(err, &bErr) {
		return bErr.Message
	}
	return "Unknown error"
}

func formatCreated(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format("2006-01-02 15:04")
}
