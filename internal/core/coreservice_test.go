package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jo-hoe/bannerforge/internal/backend/fetch"
	"github.com/jo-hoe/bannerforge/internal/backend/imageapi"
	"github.com/jo-hoe/bannerforge/internal/banner"
	"github.com/jo-hoe/bannerforge/internal/email"
	"github.com/jo-hoe/bannerforge/internal/generation"
)

var fixedNow = time.UnixMilli(1700000000000)

type stubEditor struct {
	requests []imageapi.EditRequest
	payload  []byte
}

func (e *stubEditor) Edit(ctx context.Context, request imageapi.EditRequest) (*imageapi.EditResponse, error) {
	e.requests = append(e.requests, request)
	return &imageapi.EditResponse{Data: []imageapi.GeneratedImage{
		{B64JSON: base64.StdEncoding.EncodeToString(e.payload)},
	}}, nil
}

type referenceFetcher struct {
	data []byte
	urls []string
}

func (f *referenceFetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	f.urls = append(f.urls, url)
	return f.data, nil
}

func newTestCoreService(t *testing.T, secrets Secrets) (*CoreService, *stubEditor) {
	t.Helper()
	cfg, err := ParseConfig([]byte(`database:
  type: sqlite
  connectionString: ":memory:"
cache:
  type: memory
uploads:
  maxDimension: 64
`))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	cfg.ObjectStore.Root = t.TempDir()
	cfg.ObjectStore.PublicBaseURL = "http://objects.test"
	cfg.Secrets = secrets

	svc, err := NewCoreService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewCoreService failed: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	editor := &stubEditor{payload: []byte("generated-png")}
	svc.newEditor = func(Secrets) generation.Editor { return editor }
	svc.now = func() time.Time { return fixedNow }
	return svc, editor
}

func completeSecrets() Secrets {
	return Secrets{ImageAPIKey: "sk-test", BackendURL: "https://backend.test", BackendKey: "service"}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func TestGenerate_StoresBannerAndRecord(t *testing.T) {
	svc, editor := newTestCoreService(t, completeSecrets())

	reference := pngBytes(t, 8, 8)
	references := &referenceFetcher{data: reference}
	svc.fetcher = fetch.NewFetcher(references, 0, false)

	result, err := svc.Generate(context.Background(), banner.GenerationRequest{
		UserID:        "u1",
		PromptDetails: banner.PromptDetails{"design_type": "sale banner"},
		InputImageURL: "https://cdn.test/u1/logo.png",
		AspectRatio:   banner.Landscape,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	const publicPrefix = "http://objects.test/banner-images/"
	if len(result.URLs) != 1 {
		t.Fatalf("Expected one url, got %v", result.URLs)
	}
	want := result.URLs[0]
	if !strings.HasPrefix(want, publicPrefix+"u1/generated_1700000000000_") || !strings.HasSuffix(want, "_0_landscape.png") {
		t.Fatalf("Unexpected url %s", want)
	}
	if len(references.urls) != 1 || references.urls[0] != "https://cdn.test/u1/logo.png" {
		t.Fatalf("Expected one reference fetch, got %v", references.urls)
	}
	if len(editor.requests) != 1 || !bytes.Equal(editor.requests[0].Reference, reference) {
		t.Fatalf("Editor did not receive the fetched reference")
	}

	stored := filepath.Join(svc.config.ObjectStore.Root, "banner-images", filepath.FromSlash(strings.TrimPrefix(want, publicPrefix)))
	data, err := os.ReadFile(stored)
	if err != nil {
		t.Fatalf("Generated object not stored: %v", err)
	}
	if string(data) != "generated-png" {
		t.Errorf("Unexpected stored payload %q", data)
	}

	banners, err := svc.ListOwnBanners(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListOwnBanners failed: %v", err)
	}
	if len(banners) != 1 {
		t.Fatalf("Expected 1 banner, got %d", len(banners))
	}
	if banners[0].GeneratedURLs[0] != want {
		t.Errorf("Record URLs %v do not match result", banners[0].GeneratedURLs)
	}

	others, err := svc.ListOwnBanners(context.Background(), "u2")
	if err != nil {
		t.Fatalf("ListOwnBanners failed: %v", err)
	}
	if len(others) != 0 {
		t.Errorf("Expected no banners for another user, got %d", len(others))
	}
}

func TestGenerate_SameMillisecondKeepsBothBanners(t *testing.T) {
	svc, editor := newTestCoreService(t, completeSecrets())
	svc.fetcher = fetch.NewFetcher(&referenceFetcher{data: pngBytes(t, 8, 8)}, 0, false)

	req := banner.GenerationRequest{
		UserID:        "u1",
		PromptDetails: banner.PromptDetails{},
		InputImageURL: "https://cdn.test/u1/logo.png",
		AspectRatio:   banner.Landscape,
	}
	editor.payload = []byte("first")
	first, err := svc.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	editor.payload = []byte("second")
	second, err := svc.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if first.URLs[0] == second.URLs[0] {
		t.Fatalf("Both runs wrote %s", first.URLs[0])
	}
	for url, want := range map[string]string{first.URLs[0]: "first", second.URLs[0]: "second"} {
		stored := filepath.Join(svc.config.ObjectStore.Root, "banner-images",
			filepath.FromSlash(strings.TrimPrefix(url, "http://objects.test/banner-images/")))
		data, err := os.ReadFile(stored)
		if err != nil {
			t.Fatalf("Object for %s missing: %v", url, err)
		}
		if string(data) != want {
			t.Errorf("Object %s holds %q, expected %q", url, data, want)
		}
	}
}

func TestGenerate_MissingSecrets(t *testing.T) {
	svc, editor := newTestCoreService(t, Secrets{})

	_, err := svc.Generate(context.Background(), banner.GenerationRequest{
		UserID:        "u1",
		PromptDetails: banner.PromptDetails{},
		InputImageURL: "http://127.0.0.1:1/never-fetched.png",
	})
	if banner.KindOf(err) != banner.ConfigurationError {
		t.Fatalf("Expected ConfigurationError, got %v", err)
	}
	if len(editor.requests) != 0 {
		t.Errorf("Editor must not be called without secrets")
	}
}

func TestListOwnBanners_RequiresUser(t *testing.T) {
	svc, _ := newTestCoreService(t, completeSecrets())

	if _, err := svc.ListOwnBanners(context.Background(), ""); err == nil {
		t.Fatal("Expected error for empty user id")
	}
}

func TestUploadReference(t *testing.T) {
	svc, _ := newTestCoreService(t, completeSecrets())

	uploaded, err := svc.UploadReference(context.Background(), "u1", "My Logo.jpeg", pngBytes(t, 256, 32))
	if err != nil {
		t.Fatalf("UploadReference failed: %v", err)
	}

	if uploaded.Name != "1700000000000_My_Logo.png" {
		t.Errorf("Unexpected object name %s", uploaded.Name)
	}
	if uploaded.URL != "http://objects.test/product-images/u1/1700000000000_My_Logo.png" {
		t.Errorf("Unexpected url %s", uploaded.URL)
	}

	data, err := os.ReadFile(filepath.Join(svc.config.ObjectStore.Root, "product-images", "u1", uploaded.Name))
	if err != nil {
		t.Fatalf("Upload not stored: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Stored upload is not an image: %v", err)
	}
	if format != "png" {
		t.Errorf("Expected png, got %s", format)
	}
	if cfg.Width != 64 || cfg.Height != 8 {
		t.Errorf("Expected upload scaled to 64x8, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestUploadReference_Rejected(t *testing.T) {
	svc, _ := newTestCoreService(t, completeSecrets())
	svc.config.Uploads.MaxBytes = 1 << 20

	tests := []struct {
		name    string
		data    []byte
		message string
	}{
		{name: "not an image", data: []byte("%PDF-1.7 not an image"), message: "Invalid file type."},
		{name: "too large", data: bytes.Repeat([]byte{0}, 1<<20+1), message: "File size exceeds 1MB limit."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UploadReference(context.Background(), "u1", "file.png", tt.data)
			var bErr *banner.Error
			if !errors.As(err, &bErr) {
				t.Fatalf("Expected *banner.Error, got %v", err)
			}
			if bErr.Kind != banner.InvalidRequest || bErr.Message != tt.message {
				t.Errorf("Expected InvalidRequest %q, got %s %q", tt.message, bErr.Kind, bErr.Message)
			}
		})
	}
}

func TestListUploads_SkipsPlaceholder(t *testing.T) {
	svc, _ := newTestCoreService(t, completeSecrets())

	folder := filepath.Join(svc.config.ObjectStore.Root, "product-images", "u1")
	if err := os.MkdirAll(folder, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(folder, ".emptyFolderPlaceholder"), nil, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := svc.UploadReference(context.Background(), "u1", "logo.png", pngBytes(t, 4, 4)); err != nil {
		t.Fatalf("UploadReference failed: %v", err)
	}

	uploads, err := svc.ListUploads(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListUploads failed: %v", err)
	}
	if len(uploads) != 1 {
		t.Fatalf("Expected 1 upload, got %d: %+v", len(uploads), uploads)
	}
	if uploads[0].Name != "1700000000000_logo.png" || !strings.HasSuffix(uploads[0].URL, "/product-images/u1/1700000000000_logo.png") {
		t.Errorf("Unexpected upload %+v", uploads[0])
	}

	empty, err := svc.ListUploads(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ListUploads failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Expected no uploads, got %d", len(empty))
	}
}

func TestEmailDraftOperations(t *testing.T) {
	svc, _ := newTestCoreService(t, completeSecrets())

	imageBlock, err := svc.AddEmailBlock("u1", email.ImageBlock, "https://cdn.test/a.png")
	if err != nil {
		t.Fatalf("AddEmailBlock image failed: %v", err)
	}
	textBlock, err := svc.AddEmailBlock("u1", email.TextBlock, "Summer sale")
	if err != nil {
		t.Fatalf("AddEmailBlock text failed: %v", err)
	}
	if _, err := svc.AddEmailBlock("u1", "video", "x"); err == nil {
		t.Fatal("Expected error for unsupported block type")
	}

	if err := svc.MoveEmailBlock("u1", textBlock.ID, email.Up); err != nil {
		t.Fatalf("MoveEmailBlock failed: %v", err)
	}
	blocks := svc.EmailBlocks("u1")
	if len(blocks) != 2 || blocks[0].ID != textBlock.ID || blocks[1].ID != imageBlock.ID {
		t.Fatalf("Unexpected order after move: %+v", blocks)
	}

	if err := svc.RemoveEmailBlock("u1", imageBlock.ID); err != nil {
		t.Fatalf("RemoveEmailBlock failed: %v", err)
	}
	html := svc.ExportEmail("u1")
	if !strings.Contains(html, "<p>Summer sale</p>") || strings.Contains(html, "<img") {
		t.Errorf("Unexpected export %s", html)
	}
	if len(svc.EmailBlocks("u2")) != 0 {
		t.Errorf("Drafts must be per user")
	}
}

func TestUploadBaseName(t *testing.T) {
	tests := map[string]string{
		"logo.png":             "logo",
		"My Logo.final.JPG":    "My_Logo.final",
		`C:\Users\me\pic.webp`: "pic",
		"../../etc/passwd":     "passwd",
		".png":                 "upload",
		"":                     "upload",
	}
	for input, want := range tests {
		if got := uploadBaseName(input); got != want {
			t.Errorf("uploadBaseName(%q) = %q, want %q", input, got, want)
		}
	}
}
