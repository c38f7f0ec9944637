package model

// Lens is a named ranking view over a window's snapshots.
type Lens string

// Supported lenses.
const (
	LensTrending Lens = "trending"
	LensToday    Lens = "today"
	LensForSale  Lens = "for_sale"
	LensHot      Lens = "hot"
	LensNew      Lens = "new"
)

// DefaultLens is used when a caller supplies no or an unknown lens.
const DefaultLens = LensTrending

// Lenses returns all supported lenses.
func Lenses() []Lens {
	return []Lens{LensTrending, LensToday, LensForSale, LensHot, LensNew}
}

// ParseLens returns the lens named by s and whether it was recognized.
func ParseLens(s string) (Lens, bool) {
	for _, l := range Lenses() {
		if string(l) == s {
			return l, true
		}
	}
	return DefaultLens, false
}

// NeedsStatus reports whether the lens filter depends on listing status.
func (l Lens) NeedsStatus() bool {
	switch l {
	case LensToday, LensForSale, LensNew:
		return true
	}
	return false
}
