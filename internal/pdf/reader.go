// Package pdf provides the PDF introspection the analyzer and converter
// need: page counts, page dimensions, per-page content regions, and page
// image export. The production implementation sits on pdfcpu; everything
// downstream depends only on the interfaces so tests can substitute stubs.
package pdf

import (
	"context"

	"github.com/batchocr/batchocr/internal/classify"
)

// Document is an open PDF ready for page-by-page analysis.
type Document interface {
	// PageCount returns the number of pages in the document.
	PageCount() int
	// Page extracts the regions of the 1-based page number.
	Page(ctx context.Context, number int) (classify.Page, error)
	// Close releases any resources held for the document.
	Close() error
}

// Reader opens PDF documents for analysis.
type Reader interface {
	Open(ctx context.Context, path string) (Document, error)
}

// ImageExporter exports a document's page images for the OCR engine.
type ImageExporter interface {
	// ExportImages writes the document's page images into destDir and
	// returns their paths in page order.
	ExportImages(ctx context.Context, path, destDir string) ([]string, error)
}
