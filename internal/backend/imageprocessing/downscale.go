package imageprocessing

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

const (
	DownscaleCommandName = "Downscale"

	defaultMaxDimension = 2048
)

// DownscaleCommand shrinks a PNG so that neither edge exceeds maxDimension,
// keeping the aspect ratio. Smaller images pass through untouched.
type DownscaleCommand struct {
	maxDimension int
}

func NewDownscaleCommand(params map[string]any) (Command, error) {
	maxDimension := getIntParam(params, "maxDimension", defaultMaxDimension)
	if maxDimension <= 0 {
		return nil, fmt.Errorf("maxDimension must be positive, got %d", maxDimension)
	}
	return &DownscaleCommand{maxDimension: maxDimension}, nil
}

func (c *DownscaleCommand) Name() string {
	return DownscaleCommandName
}

func (c *DownscaleCommand) Execute(imageData []byte) ([]byte, error) {
	config, err := png.DecodeConfig(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to read PNG header: %w", err)
	}
	if config.Width <= c.maxDimension && config.Height <= c.maxDimension {
		return imageData, nil
	}

	src, err := png.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode PNG image: %w", err)
	}

	width, height := fitWithin(config.Width, config.Height, c.maxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	return encodePNG(dst)
}

// fitWithin scales w x h down so the longer edge equals limit.
func fitWithin(w, h, limit int) (int, int) {
	if w >= h {
		return limit, max(1, int(float64(h)*float64(limit)/float64(w)+0.5))
	}
	return max(1, int(float64(w)*float64(limit)/float64(h)+0.5)), limit
}

func init() {
	if err := DefaultRegistry.Register(DownscaleCommandName, NewDownscaleCommand); err != nil {
		panic(fmt.Sprintf("failed to register %s: %v", DownscaleCommandName, err))
	}
}
