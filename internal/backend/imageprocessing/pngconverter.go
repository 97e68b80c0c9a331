package imageprocessing

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	PngConverterCommandName = "PngConverter"
	FormatSVG               = "svg"

	defaultSvgFallbackSize = 1024
	sniffWindow            = 4096
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// acceptedFormats are the image.DecodeConfig format names plus svg.
var acceptedFormats = map[string]bool{
	"png": true, "jpeg": true, "gif": true, "webp": true, "bmp": true, "tiff": true, FormatSVG: true,
}

// DetectFormat sniffs data and returns its format name, or an error when the
// content is not an accepted image.
func DetectFormat(data []byte) (string, error) {
	if isSVGData(data) {
		return FormatSVG, nil
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("unrecognised image data: %w", err)
	}
	if !acceptedFormats[format] {
		return "", fmt.Errorf("unsupported image format %s", format)
	}
	return format, nil
}

func hasPngSignature(data []byte) bool {
	return len(data) >= len(pngSignature) && bytes.Equal(data[:len(pngSignature)], pngSignature)
}

// PngConverterCommand turns any accepted upload into PNG bytes. SVG documents
// without an explicit pixel size are rendered with their longest edge at
// svgFallbackSize.
type PngConverterCommand struct {
	svgFallbackSize int
}

func NewPngConverterCommand(params map[string]any) (Command, error) {
	size := getIntParam(params, "svgFallbackSize", defaultSvgFallbackSize)
	if size <= 0 {
		return nil, fmt.Errorf("svgFallbackSize must be positive, got %d", size)
	}
	return &PngConverterCommand{svgFallbackSize: size}, nil
}

func (c *PngConverterCommand) Name() string {
	return PngConverterCommandName
}

func (c *PngConverterCommand) Execute(imageData []byte) ([]byte, error) {
	if hasPngSignature(imageData) {
		return imageData, nil
	}
	if isSVGData(imageData) {
		w, h := c.svgRenderSize(imageData)
		slog.Debug("rendering svg upload", "width", w, "height", h)
		return renderSVGToPNG(imageData, w, h)
	}

	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	slog.Debug("converting raster upload to png",
		"format", format,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy())

	return encodePNG(img)
}

func (c *PngConverterCommand) svgRenderSize(data []byte) (int, int) {
	tag := svgStartTag(data)
	if w, h, ok := explicitSvgSize(tag); ok {
		return w, h
	}
	if vw, vh, ok := svgViewBox(tag); ok {
		if vw >= vh {
			return c.svgFallbackSize, max(1, int(float64(c.svgFallbackSize)*vh/vw+0.5))
		}
		return max(1, int(float64(c.svgFallbackSize)*vw/vh+0.5)), c.svgFallbackSize
	}
	return c.svgFallbackSize, c.svgFallbackSize
}

var (
	svgDimensionAttr = regexp.MustCompile(`(?:^|\s)(width|height)\s*=\s*["']\s*([0-9]+(?:\.[0-9]+)?)\s*(px)?\s*["']`)
	svgViewBoxAttr   = regexp.MustCompile(`(?:^|\s)viewbox\s*=\s*["']\s*([-0-9.eE]+)[\s,]+([-0-9.eE]+)[\s,]+([0-9.eE]+)[\s,]+([0-9.eE]+)\s*["']`)
)

// svgStartTag returns the lower-cased <svg ...> start tag, or "".
func svgStartTag(data []byte) string {
	s := strings.ToLower(string(data[:min(len(data), 8192)]))
	i := strings.Index(s, "<svg")
	if i < 0 {
		return ""
	}
	if j := strings.Index(s[i:], ">"); j >= 0 {
		return s[i : i+j]
	}
	return s[i:]
}

// explicitSvgSize reads width and height given in pixels. Other units do not
// count as explicit.
func explicitSvgSize(tag string) (int, int, bool) {
	var w, h float64
	for _, m := range svgDimensionAttr.FindAllStringSubmatch(tag, -1) {
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil || v <= 0 {
			continue
		}
		if m[1] == "width" {
			w = v
		} else {
			h = v
		}
	}
	if w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return int(w + 0.5), int(h + 0.5), true
}

func svgViewBox(tag string) (float64, float64, bool) {
	m := svgViewBoxAttr.FindStringSubmatch(tag)
	if m == nil {
		return 0, 0, false
	}
	w, errW := strconv.ParseFloat(m[3], 64)
	h, errH := strconv.ParseFloat(m[4], 64)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

func isSVGData(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	header := bytes.ToLower(bytes.TrimSpace(data[:min(len(data), sniffWindow)]))
	if !bytes.HasPrefix(header, []byte("<")) {
		return false
	}
	return bytes.Contains(header, []byte("<svg"))
}

func renderSVGToPNG(svgData []byte, targetW, targetH int) ([]byte, error) {
	if targetW <= 0 || targetH <= 0 {
		return nil, fmt.Errorf("invalid target dimensions for SVG rendering: %dx%d", targetW, targetH)
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(targetW), float64(targetH))

	// transparent areas render on white
	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(targetW, targetH, dst, dst.Bounds())
	dasher := rasterx.NewDasher(targetW, targetH, scanner)
	icon.Draw(dasher, 1.0)

	return encodePNG(dst)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image to PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func init() {
	if err := DefaultRegistry.Register(PngConverterCommandName, NewPngConverterCommand); err != nil {
		panic(fmt.Sprintf("failed to register %s: %v", PngConverterCommandName, err))
	}
}
