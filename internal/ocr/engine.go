// Package ocr models the external OCR engine as a single capability: given
// page images and a resolution, produce a searchable PDF or fail with a
// diagnostic. The production implementation shells out to a configurable
// command; tests substitute stubs.
package ocr

import "context"

// Engine converts page images into a searchable PDF.
type Engine interface {
	// Convert runs OCR over the page images at the given resolution and
	// writes a searchable PDF to outPath. On failure the returned error
	// carries the tool's diagnostic output verbatim.
	Convert(ctx context.Context, images []string, dpi int, outPath string) error
}
