package banner

import "fmt"

// AspectRatio is the framing requested for a generated banner.
type AspectRatio string

const (
	Square    AspectRatio = "square"
	Landscape AspectRatio = "landscape"
	Portrait  AspectRatio = "portrait"
)

// AspectRatios lists every supported value in a stable order.
var AspectRatios = []AspectRatio{Square, Landscape, Portrait}

type framing struct {
	width  int
	height int
	words  string
}

var framings = map[AspectRatio]framing{
	Square:    {width: 1024, height: 1024, words: "square format (1:1 aspect ratio)"},
	Landscape: {width: 1792, height: 1024, words: "landscape format (16:9 aspect ratio)"},
	Portrait:  {width: 1024, height: 1792, words: "portrait format (9:16 aspect ratio)"},
}

// ParseAspectRatio maps the wire value to an AspectRatio. The empty string is square.
func ParseAspectRatio(value string) (AspectRatio, error) {
	if value == "" {
		return Square, nil
	}
	ratio := AspectRatio(value)
	if !ratio.Valid() {
		return "", fmt.Errorf("unsupported aspect ratio %q", value)
	}
	return ratio, nil
}

// Valid reports whether the ratio is one of the supported values.
func (a AspectRatio) Valid() bool {
	_, ok := framings[a]
	return ok
}

// OrDefault returns square for the zero value.
func (a AspectRatio) OrDefault() AspectRatio {
	if a == "" {
		return Square
	}
	return a
}

// Dimensions returns the pixel size sent to the image service.
func (a AspectRatio) Dimensions() (width, height int) {
	f := framings[a.OrDefault()]
	return f.width, f.height
}

// Size is the "WxH" form expected by the image service.
func (a AspectRatio) Size() string {
	w, h := a.Dimensions()
	return fmt.Sprintf("%dx%d", w, h)
}

// Framing describes the ratio in words for the generation prompt.
func (a AspectRatio) Framing() string {
	return framings[a.OrDefault()].words
}
