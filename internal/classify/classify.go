// Package classify decides whether a PDF page already carries machine
// readable text. The verdict is a deliberately approximate heuristic over
// the page's text, image, and drawing regions.
package classify

import (
	"github.com/batchocr/batchocr/internal/config"
	"github.com/batchocr/batchocr/internal/geometry"
)

// Classification is the per-page verdict.
type Classification int

const (
	// Blank means the page has no regions of any kind.
	Blank Classification = iota
	// Unsearchable means the page needs OCR.
	Unsearchable
	// Searchable means the page already carries enough real text.
	Searchable
)

func (c Classification) String() string {
	switch c {
	case Blank:
		return "Blank"
	case Unsearchable:
		return "Unsearchable"
	case Searchable:
		return "Searchable"
	default:
		return "Invalid"
	}
}

// Page is one page's extracted content. Pages are built fresh per analysis
// pass and never mutated afterwards.
type Page struct {
	Number  int // 1-based
	Width   float64
	Height  float64
	Regions []geometry.Region
}

// Area returns the page area.
func (p Page) Area() float64 {
	return p.Width * p.Height
}

// Coverage holds the fractions the classifier derived, for reporting.
type Coverage struct {
	TextPercent  float64
	ImagePercent float64
}

// Classify applies the searchability heuristic to a single page.
//
// A page with no regions at all is Blank. Otherwise the page is Unsearchable
// when its qualifying text coverage does not exceed cfg.TextPercent, or its
// image coverage exceeds cfg.ImagePercent. The comparisons are exactly
// <= for text and > for image, so a page sitting on the text threshold is
// Unsearchable while one sitting on the image threshold is not disqualified.
// Drawing regions keep a page from being Blank but count toward neither
// fraction.
func Classify(page Page, cfg config.Config) (Classification, Coverage) {
	if len(page.Regions) == 0 {
		return Blank, Coverage{}
	}

	area := page.Area()
	cov := Coverage{
		TextPercent:  geometry.CoverageFraction(page.Regions, geometry.KindText, cfg.Words, area) * 100,
		ImagePercent: geometry.CoverageFraction(page.Regions, geometry.KindImage, 0, area) * 100,
	}

	if cov.TextPercent <= cfg.TextPercent || cov.ImagePercent > cfg.ImagePercent {
		return Unsearchable, cov
	}
	return Searchable, cov
}
