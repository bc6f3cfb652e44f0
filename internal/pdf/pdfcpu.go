package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/batchocr/batchocr/internal/classify"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/sirupsen/logrus"
)

// CPUReader reads PDFs with pdfcpu. It implements Reader and ImageExporter.
type CPUReader struct {
	conf   *model.Configuration
	logger *logrus.Logger
}

// NewCPUReader returns a pdfcpu-backed reader. Validation is relaxed so
// that slightly malformed scans still analyze.
func NewCPUReader(logger *logrus.Logger) *CPUReader {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &CPUReader{conf: conf, logger: logger}
}

// Open reads the document's structure and page dimensions. Page content is
// extracted lazily, one page at a time.
func (r *CPUReader) Open(ctx context.Context, path string) (Document, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	dims, err := pdfCtx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("failed to read page dimensions of %s: %w", path, err)
	}

	r.logger.WithFields(logrus.Fields{
		"path":  path,
		"pages": pdfCtx.PageCount,
	}).Debug("Opened PDF")

	return &cpuDocument{
		path:   path,
		pages:  pdfCtx.PageCount,
		dims:   dims,
		conf:   r.conf,
		logger: r.logger,
	}, nil
}

// ExportImages extracts the document's embedded page images into destDir and
// returns them sorted by filename, which pdfcpu derives from the page number.
func (r *CPUReader) ExportImages(ctx context.Context, path, destDir string) ([]string, error) {
	if err := api.ExtractImagesFile(path, destDir, nil, r.conf); err != nil {
		return nil, fmt.Errorf("failed to extract images from %s: %w", path, err)
	}

	entries, err := os.ReadDir(destDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list extracted images: %w", err)
	}

	var images []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".tif", ".tiff", ".bmp":
			images = append(images, filepath.Join(destDir, entry.Name()))
		}
	}
	sort.Strings(images)

	r.logger.WithFields(logrus.Fields{
		"path":   path,
		"images": len(images),
	}).Debug("Extracted page images")

	return images, nil
}

type cpuDocument struct {
	path   string
	pages  int
	dims   []types.Dim
	conf   *model.Configuration
	logger *logrus.Logger
}

func (d *cpuDocument) PageCount() int { return d.pages }

func (d *cpuDocument) Close() error { return nil }

// Page extracts one page's content stream and scans it into regions.
func (d *cpuDocument) Page(ctx context.Context, number int) (classify.Page, error) {
	if number < 1 || number > d.pages {
		return classify.Page{}, fmt.Errorf("page %d out of range (document has %d pages)", number, d.pages)
	}
	if err := ctx.Err(); err != nil {
		return classify.Page{}, err
	}

	var width, height float64
	if number-1 < len(d.dims) {
		width = d.dims[number-1].Width
		height = d.dims[number-1].Height
	}

	content, err := d.pageContent(number)
	if err != nil {
		return classify.Page{}, err
	}

	regions := scanContent(content, width, height)

	d.logger.WithFields(logrus.Fields{
		"path":    d.path,
		"page":    number,
		"regions": len(regions),
	}).Debug("Scanned page content")

	return classify.Page{
		Number:  number,
		Width:   width,
		Height:  height,
		Regions: regions,
	}, nil
}

// pageContent extracts the raw content stream of a single page via a
// temporary directory, the way pdfcpu's extraction API works.
func (d *cpuDocument) pageContent(number int) (string, error) {
	tempDir, err := os.MkdirTemp("", "batchocr_content_*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			d.logger.WithError(err).Warn("Failed to clean up temp directory")
		}
	}()

	selection := []string{strconv.Itoa(number)}
	if err := api.ExtractContentFile(d.path, tempDir, selection, d.conf); err != nil {
		return "", fmt.Errorf("failed to extract content of page %d: %w", number, err)
	}

	baseName := strings.TrimSuffix(filepath.Base(d.path), filepath.Ext(d.path))
	contentFile := filepath.Join(tempDir, fmt.Sprintf("%s_Content_page_%d.txt", baseName, number))

	data, err := os.ReadFile(contentFile)
	if os.IsNotExist(err) {
		// Pages without a content stream extract to nothing: a blank page.
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read extracted content of page %d: %w", number, err)
	}
	return string(data), nil
}
