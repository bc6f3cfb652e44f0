package geometry

import "sort"

// UnionArea returns the exact area of the union of the given rectangles.
// Degenerate rectangles are ignored. The result does not depend on the
// order of the input.
//
// The union is computed with a sweep over the x axis: the distinct x edges
// partition the plane into vertical slabs, and within each slab the covered
// y extent is the length of the merged y intervals of the rectangles that
// span the slab.
func UnionArea(rects []Rect) float64 {
	active := make([]Rect, 0, len(rects))
	for _, r := range rects {
		if !r.Empty() {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		return 0
	}

	xs := make([]float64, 0, 2*len(active))
	for _, r := range active {
		xs = append(xs, r.X0, r.X1)
	}
	sort.Float64s(xs)

	total := 0.0
	for i := 0; i+1 < len(xs); i++ {
		x0, x1 := xs[i], xs[i+1]
		if x1 <= x0 {
			continue
		}
		total += (x1 - x0) * coveredY(active, x0, x1)
	}
	return total
}

// coveredY returns the total y extent covered by rectangles spanning the
// whole slab [x0, x1).
func coveredY(rects []Rect, x0, x1 float64) float64 {
	type interval struct{ lo, hi float64 }
	var spans []interval
	for _, r := range rects {
		if r.X0 <= x0 && r.X1 >= x1 {
			spans = append(spans, interval{r.Y0, r.Y1})
		}
	}
	if len(spans) == 0 {
		return 0
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].lo < spans[j].lo })

	covered := 0.0
	cur := spans[0]
	for _, s := range spans[1:] {
		if s.lo > cur.hi {
			covered += cur.hi - cur.lo
			cur = s
			continue
		}
		if s.hi > cur.hi {
			cur.hi = s.hi
		}
	}
	covered += cur.hi - cur.lo
	return covered
}

// CoverageFraction returns the union area of the regions of the given kind as
// a fraction of pageArea, in [0, 1] for sane inputs.
//
// Text regions only count when their qualifying word count reaches minWords;
// a text block below the threshold is excluded entirely, never partially
// weighted. An empty selection or a non-positive page area yields 0.
func CoverageFraction(regions []Region, kind Kind, minWords int, pageArea float64) float64 {
	if pageArea <= 0 {
		return 0
	}
	var selected []Rect
	for _, reg := range regions {
		if reg.Kind != kind {
			continue
		}
		if kind == KindText && reg.LongWords < minWords {
			continue
		}
		selected = append(selected, reg.Rect)
	}
	if len(selected) == 0 {
		return 0
	}
	return UnionArea(selected) / pageArea
}
