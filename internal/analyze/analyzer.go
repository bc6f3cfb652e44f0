// Package analyze reduces per-page classifications to a document-level
// searchability verdict.
package analyze

import (
	"context"
	"iter"

	"github.com/sirupsen/logrus"

	"github.com/batchocr/batchocr/internal/classify"
	"github.com/batchocr/batchocr/internal/config"
	"github.com/batchocr/batchocr/internal/pdf"
)

// Verdict is the document-level decision.
type Verdict int

const (
	// VerdictSearchable means no conversion is needed.
	VerdictSearchable Verdict = iota
	// VerdictUnsearchable marks the document a conversion candidate.
	VerdictUnsearchable
)

func (v Verdict) String() string {
	if v == VerdictSearchable {
		return "Searchable"
	}
	return "Unsearchable"
}

// PageResult is one page's classification. Err is set when the page could
// not be read; such pages are excluded from the reduction and make the
// document a conversion candidate.
type PageResult struct {
	Number   int
	Class    classify.Classification
	Coverage classify.Coverage
	Err      error
}

// Result is a document's verdict with its per-page detail.
type Result struct {
	Path    string
	Pages   []PageResult
	Verdict Verdict
	// Err is set when the document itself could not be opened. The
	// document is then conservatively a conversion candidate.
	Err error
}

// Analyzer classifies the leading pages of documents.
type Analyzer struct {
	reader pdf.Reader
	cfg    config.Config
	logger *logrus.Logger
}

// New returns an Analyzer using the given reader.
func New(reader pdf.Reader, cfg config.Config, logger *logrus.Logger) *Analyzer {
	return &Analyzer{reader: reader, cfg: cfg, logger: logger}
}

// Pages returns a lazy sequence of per-page results over at most cfg.Pages
// leading pages. The sequence is finite and restartable: ranging over it
// again re-reads the pages.
func (a *Analyzer) Pages(ctx context.Context, doc pdf.Document) iter.Seq[PageResult] {
	limit := doc.PageCount()
	if a.cfg.Pages < limit {
		limit = a.cfg.Pages
	}
	return func(yield func(PageResult) bool) {
		for n := 1; n <= limit; n++ {
			page, err := doc.Page(ctx, n)
			if err != nil {
				if !yield(PageResult{Number: n, Err: err}) {
					return
				}
				continue
			}
			class, cov := classify.Classify(page, a.cfg)
			if !yield(PageResult{Number: n, Class: class, Coverage: cov}) {
				return
			}
		}
	}
}

// AnalyzeDocument opens the document at path and reduces its leading pages
// to a verdict. The document is Searchable only when every analyzed page is
// Searchable or Blank; unreadable pages and unsearchable pages beyond the
// configured tolerance (default zero) make it a conversion candidate, as
// does a document with analyzed pages but not one searchable or blank
// among them.
func (a *Analyzer) AnalyzeDocument(ctx context.Context, path string) Result {
	doc, err := a.reader.Open(ctx, path)
	if err != nil {
		a.logger.WithError(err).WithField("path", path).Warn("Failed to open document, treating as conversion candidate")
		return Result{Path: path, Verdict: VerdictUnsearchable, Err: err}
	}
	defer func() {
		if err := doc.Close(); err != nil {
			a.logger.WithError(err).WithField("path", path).Warn("Failed to close document")
		}
	}()

	res := Result{Path: path, Verdict: VerdictSearchable}
	unsearchable := 0
	failed := 0
	searchableOrBlank := 0
	for pr := range a.Pages(ctx, doc) {
		res.Pages = append(res.Pages, pr)
		switch {
		case pr.Err != nil:
			failed++
			a.logger.WithError(pr.Err).WithFields(logrus.Fields{
				"path": path,
				"page": pr.Number,
			}).Warn("Page analysis failed")
		case pr.Class == classify.Unsearchable:
			unsearchable++
		default:
			searchableOrBlank++
		}
	}

	// A document within the unsearchable tolerance still needs conversion
	// when not a single analyzed page was searchable or blank.
	if failed > 0 || unsearchable > a.cfg.MaxUnsearchable ||
		(len(res.Pages) > 0 && searchableOrBlank == 0) {
		res.Verdict = VerdictUnsearchable
	}

	a.logger.WithFields(logrus.Fields{
		"path":         path,
		"analyzed":     len(res.Pages),
		"unsearchable": unsearchable,
		"failed":       failed,
		"verdict":      res.Verdict.String(),
	}).Debug("Document analyzed")

	return res
}
