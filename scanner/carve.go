package scanner

import "unravel/result"

// carves returns every maximal run of size bytes not covered by claims that
// is at least minimum bytes long. Claims must be sorted by offset and must
// not overlap.
func carves(size int64, claims []result.Claim, minimum int64) []result.Extent {
	if minimum < 1 {
		minimum = 1
	}
	var out []result.Extent
	pos := int64(0)
	emit := func(end int64) {
		if end-pos >= minimum {
			out = append(out, result.Extent{Offset: pos, Size: end - pos})
		}
	}
	for _, c := range claims {
		if c.Offset > pos {
			emit(c.Offset)
		}
		if end := c.Offset + c.Size; end > pos {
			pos = end
		}
	}
	if size > pos {
		emit(size)
	}
	return out
}
