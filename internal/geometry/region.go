// Package geometry computes area coverage of rectangular page regions.
// Coverage is the exact union area of the selected rectangles divided by the
// page area, so overlapping regions are never double counted.
package geometry

// Kind identifies what a region was extracted as.
type Kind int

const (
	KindText Kind = iota
	KindImage
	KindDrawing
)

// String returns the lower-case name used in logs and reports.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindDrawing:
		return "drawing"
	default:
		return "unknown"
	}
}

// Rect is an axis-aligned rectangle in page coordinates.
// Callers must ensure X1 >= X0 and Y1 >= Y0; a degenerate rectangle
// contributes no area.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// Area returns the rectangle's area, or 0 for a degenerate rectangle.
func (r Rect) Area() float64 {
	w := r.X1 - r.X0
	h := r.Y1 - r.Y0
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Empty reports whether the rectangle covers no area.
func (r Rect) Empty() bool {
	return r.X1 <= r.X0 || r.Y1 <= r.Y0
}

// Region is a rectangle tagged with the kind of content it holds.
// For text regions, Words is the total word count of the block and LongWords
// counts the qualifying words (5 or more characters) used by the
// searchability heuristic.
type Region struct {
	Rect      Rect
	Kind      Kind
	Words     int
	LongWords int
}
