// Package cue defines mouth cues and merges per-segment results into one
// time-ordered sequence.
package cue

import (
	"cmp"
	"math"
	"slices"
	"time"
)

// Rhubarb mouth shapes. A-F are the basic shapes, G, H and X are extended.
const (
	ShapeA = "A" // Closed mouth: P, B, M.
	ShapeB = "B" // Slightly open, clenched teeth: most consonants.
	ShapeC = "C" // Open mouth: EH, AE.
	ShapeD = "D" // Wide open: AA.
	ShapeE = "E" // Slightly rounded: AO, ER.
	ShapeF = "F" // Puckered: UW, OW, W.
	ShapeG = "G" // Teeth on lower lip: F, V.
	ShapeH = "H" // Tongue raised: long L.
	ShapeX = "X" // Idle, at rest.
)

// MouthCue is one viseme over a time interval, in seconds.
type MouthCue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Value string  `json:"value"`
}

// Shift returns c moved later by offset seconds, rounded to milliseconds.
func (c MouthCue) Shift(offset float64) MouthCue {
	return MouthCue{
		Start: roundMillis(c.Start + offset),
		End:   roundMillis(c.End + offset),
		Value: c.Value,
	}
}

// Duration returns the cue length in seconds.
func (c MouthCue) Duration() float64 {
	return c.End - c.Start
}

// SegmentCues holds the cues an analyzer produced for one segment, in
// segment-local time, tagged with the segment position in the source.
type SegmentCues struct {
	Index  int
	Offset time.Duration
	Cues   []MouthCue
}

// Merge rebases every segment's cues to absolute time and returns them in
// one sequence ordered by start. The sort is stable: cues with equal start
// keep segment order, then analyzer order. The result is never nil.
func Merge(results []SegmentCues) []MouthCue {
	ordered := slices.Clone(results)
	slices.SortStableFunc(ordered, func(a, b SegmentCues) int {
		return cmp.Compare(a.Index, b.Index)
	})

	n := 0
	for _, r := range ordered {
		n += len(r.Cues)
	}

	merged := make([]MouthCue, 0, n)
	for _, r := range ordered {
		offset := r.Offset.Seconds()
		for _, c := range r.Cues {
			merged = append(merged, c.Shift(offset))
		}
	}

	slices.SortStableFunc(merged, func(a, b MouthCue) int {
		return cmp.Compare(a.Start, b.Start)
	})
	return merged
}

// Sorted reports whether cues are in non-decreasing start order.
func Sorted(cues []MouthCue) bool {
	return slices.IsSortedFunc(cues, func(a, b MouthCue) int {
		return cmp.Compare(a.Start, b.Start)
	})
}

func roundMillis(v float64) float64 {
	return math.Round(v*1000) / 1000
}
