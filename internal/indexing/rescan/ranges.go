package rescan

import (
	"fmt"
	"sort"

	redisclient "github.com/vietddude/boatwatch/internal/infra/redis"
)

// Range is an inclusive block range queued for re-ingestion.
type Range struct {
	Start uint64
	End   uint64
}

// NewRange validates and builds a range.
func NewRange(start, end uint64) (Range, error) {
	if start > end {
		return Range{}, fmt.Errorf("start %d after end %d", start, end)
	}
	return Range{Start: start, End: end}, nil
}

// String returns the range in "start-end" format.
func (r Range) String() string {
	return redisclient.FormatRange(r.Start, r.End)
}

// Size returns the number of blocks in the range.
func (r Range) Size() uint64 {
	return r.End - r.Start + 1
}

// Split cuts the range into chunks of at most maxSize blocks.
func (r Range) Split(maxSize uint64) []Range {
	if maxSize == 0 {
		maxSize = 1
	}
	if r.Size() <= maxSize {
		return []Range{r}
	}

	var chunks []Range
	current := r.Start
	for current <= r.End {
		chunkEnd := min(current+maxSize-1, r.End)
		chunks = append(chunks, Range{Start: current, End: chunkEnd})
		if chunkEnd == r.End {
			break
		}
		current = chunkEnd + 1
	}
	return chunks
}

// From returns the tail of the range starting at block, or false when block is past End.
func (r Range) From(block uint64) (Range, bool) {
	if block > r.End {
		return Range{}, false
	}
	return Range{Start: max(block, r.Start), End: r.End}, true
}

// Overlaps reports whether two ranges overlap or touch.
func (r Range) Overlaps(other Range) bool {
	return r.Start <= other.End+1 && other.Start <= r.End+1
}

// Merge returns the smallest range covering both.
func (r Range) Merge(other Range) Range {
	return Range{Start: min(r.Start, other.Start), End: max(r.End, other.End)}
}

// MergeRanges collapses overlapping and adjacent ranges.
func MergeRanges(ranges []Range) []Range {
	if len(ranges) <= 1 {
		return ranges
	}

	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	merged := []Range{sorted[0]}
	for _, current := range sorted[1:] {
		last := &merged[len(merged)-1]
		if last.Overlaps(current) {
			*last = last.Merge(current)
		} else {
			merged = append(merged, current)
		}
	}
	return merged
}

// ParseRange parses a "start-end" string into a Range.
func ParseRange(s string) (Range, error) {
	start, end, err := redisclient.ParseRangeString(s)
	if err != nil {
		return Range{}, err
	}
	return NewRange(start, end)
}

// RangesFromStrings parses queued range members.
func RangesFromStrings(strs []string) ([]Range, error) {
	ranges := make([]Range, 0, len(strs))
	for _, s := range strs {
		r, err := ParseRange(s)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}
