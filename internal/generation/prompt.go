package generation

import (
	"encoding/json"
	"fmt"

	"github.com/jo-hoe/bannerforge/internal/banner"
)

const promptTemplate = "Create a promotional banner based on the following user request: %s. " +
	"Use the provided image as a primary reference for style, colors, branding elements (like logos if present), and overall theme. " +
	"Ensure the generated banner is %s and incorporates the essence of the reference image."

// BuildPrompt embeds the serialised prompt details and the framing of the
// aspect ratio into the instruction sent with the reference image.
func BuildPrompt(details banner.PromptDetails, aspect banner.AspectRatio) (string, error) {
	serialised, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("failed to serialise prompt details: %w", err)
	}
	return fmt.Sprintf(promptTemplate, serialised, aspect.OrDefault().Framing()), nil
}
