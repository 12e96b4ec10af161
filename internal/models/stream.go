package models

import (
	"math"
	"math/bits"
	"slices"
	"time"
)

// SegmentIndex describes segments of one stream found
// in the data directory. It is built at once by a scan
// and never modified afterwards.
type SegmentIndex struct {
	// IdentifierMtimes holds mtime of the first file
	// seen for every identifier.
	IdentifierMtimes map[int64]time.Time
	// LiveEdge is the most recently written identifier.
	LiveEdge      int64
	LiveEdgeMtime time.Time
	// NumberToIdentifier maps sequence numbers to identifiers
	// not greater than LiveEdge.
	NumberToIdentifier map[int64]int64
	Age                time.Duration
	StartTime          time.Time

	currentNumber int64
}

// NewSegmentIndex builds index from identifier mtimes.
// Returns nil if mtimes is empty.
//
// segmentLength is a segment duration in timescale units.
func NewSegmentIndex(
	mtimes map[int64]time.Time,
	segmentLength int64,
	timescale int64,
	segmentDuration time.Duration,
	now time.Time,
) *SegmentIndex {
	if len(mtimes) == 0 {
		return nil
	}

	idx := &SegmentIndex{
		IdentifierMtimes:   mtimes,
		NumberToIdentifier: make(map[int64]int64, len(mtimes)),
	}

	first := true
	for ident, mtime := range mtimes {
		// Equal mtimes are resolved to the highest
		// identifier, map order must not matter.
		if first ||
			mtime.After(idx.LiveEdgeMtime) ||
			mtime.Equal(idx.LiveEdgeMtime) && ident > idx.LiveEdge {
			idx.LiveEdge = ident
			idx.LiveEdgeMtime = mtime
			first = false
		}
	}

	idents := make([]int64, 0, len(mtimes))
	for ident := range mtimes {
		if ident > idx.LiveEdge {
			// orphaned segment
			continue
		}
		idents = append(idents, ident)
	}
	slices.Sort(idents)

	idx.currentNumber = -1
	for _, ident := range idents {
		number := ident / segmentLength
		idx.NumberToIdentifier[number] = ident
		if number > idx.currentNumber {
			idx.currentNumber = number
		}
	}

	idx.Age = IdentifierToDuration(idx.LiveEdge, timescale)
	idx.StartTime = now.Add(-idx.Age).Add(segmentDuration)

	return idx
}

// CurrentNumber returns the highest sequence number.
// Returns false if index is empty.
func (i *SegmentIndex) CurrentNumber() (int64, bool) {
	if i == nil || len(i.NumberToIdentifier) == 0 {
		return 0, false
	}
	return i.currentNumber, true
}

// NumberToTime returns identifier of segment with given number.
func (i *SegmentIndex) NumberToTime(number int64) (int64, bool) {
	if i == nil {
		return 0, false
	}
	ident, ok := i.NumberToIdentifier[number]
	return ident, ok
}

// Same reports whether both indexes were built
// from the same directory state.
func (i *SegmentIndex) Same(other *SegmentIndex) bool {
	if i == nil || other == nil {
		return i == other
	}
	return i.LiveEdge == other.LiveEdge &&
		i.LiveEdgeMtime.Equal(other.LiveEdgeMtime) &&
		len(i.IdentifierMtimes) == len(other.IdentifierMtimes) &&
		len(i.NumberToIdentifier) == len(other.NumberToIdentifier)
}

// IdentifierToDuration converts non-negative identifier in
// timescale units to duration. Result saturates at the
// maximal duration.
func IdentifierToDuration(ident, timescale int64) time.Duration {
	sec := ident / timescale
	if sec > math.MaxInt64/int64(time.Second) {
		return time.Duration(math.MaxInt64)
	}

	// rem < timescale, so the quotient fits
	rem := ident % timescale
	hi, lo := bits.Mul64(uint64(rem), uint64(time.Second))
	frac, _ := bits.Div64(hi, lo, uint64(timescale))

	whole := time.Duration(sec) * time.Second
	if time.Duration(frac) > time.Duration(math.MaxInt64)-whole {
		return time.Duration(math.MaxInt64)
	}

	return whole + time.Duration(frac)
}
