package engine

import (
	"fmt"
	"image"
	"os"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// validateSeedFrame confirms that path points to a decodable image before it
// is handed to the video stage as a start frame. A zero-byte or truncated
// file from an interrupted download would otherwise fail deep inside the
// generation request.
func validateSeedFrame(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed frame: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("decode seed frame %s: %w", path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("seed frame %s has invalid dimensions (%s)", path, format)
	}
	return nil
}
