package segment

import "fmt"

// OverflowPolicy decides what happens to a segment longer than the
// assembler capacity.
type OverflowPolicy string

const (
	// OverflowSplit emits the segment as consecutive parts that each fit.
	OverflowSplit OverflowPolicy = "split"

	// OverflowTruncate keeps the longest prefix of whole frames that fits.
	OverflowTruncate OverflowPolicy = "truncate"

	// OverflowDrop discards the segment.
	OverflowDrop OverflowPolicy = "drop"
)

// IsValid reports whether p is a known policy.
func (p OverflowPolicy) IsValid() bool {
	switch p {
	case OverflowSplit, OverflowTruncate, OverflowDrop:
		return true
	}
	return false
}

// ParseOverflowPolicy maps a config string to a policy. The empty string
// selects [OverflowSplit].
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	if s == "" {
		return OverflowSplit, nil
	}
	p := OverflowPolicy(s)
	if !p.IsValid() {
		return "", fmt.Errorf("segment: unknown overflow policy %q (want split, truncate or drop)", s)
	}
	return p, nil
}
