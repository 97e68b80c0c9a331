package generation

import (
	"github.com/jo-hoe/bannerforge/internal/banner"
	"github.com/jo-hoe/bannerforge/internal/common"
)

const (
	msgMissingFields      = "Missing required fields"
	msgInvalidAspectRatio = "Invalid aspect ratio provided"
)

// validateRequest reports missing fields before a bad aspect ratio, and
// returns the request with its aspect ratio defaulted.
func validateRequest(req banner.GenerationRequest) (banner.GenerationRequest, error) {
	err := common.Validator().Struct(req)
	if err == nil {
		req.AspectRatio = req.AspectRatio.OrDefault()
		return req, nil
	}

	tags := common.FailedTags(err)
	if len(tags) == 0 {
		return req, banner.NewError(banner.InvalidRequest, msgMissingFields, err)
	}
	for field, tag := range tags {
		if tag == "required" && field != "AspectRatio" {
			return req, banner.NewError(banner.InvalidRequest, msgMissingFields, err)
		}
	}
	return req, banner.NewError(banner.InvalidRequest, msgInvalidAspectRatio, err)
}
