package domain

// Aspect ratio identifiers understood by the generation API. Video and
// image endpoints use distinct vocabularies.
const (
	VideoAspectLandscape = "VIDEO_ASPECT_RATIO_LANDSCAPE"
	VideoAspectPortrait  = "VIDEO_ASPECT_RATIO_PORTRAIT"

	ImageAspectLandscape = "IMAGE_ASPECT_RATIO_LANDSCAPE"
	ImageAspectPortrait  = "IMAGE_ASPECT_RATIO_PORTRAIT"
	ImageAspectSquare    = "IMAGE_ASPECT_RATIO_SQUARE"
)

// ImageAspectForVideo maps a video aspect ratio to the image aspect ratio
// used when generating a seed frame of the same orientation.
func ImageAspectForVideo(videoAspect string) string {
	if videoAspect == VideoAspectPortrait {
		return ImageAspectPortrait
	}
	return ImageAspectLandscape
}
