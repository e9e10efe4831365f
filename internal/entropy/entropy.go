// Package entropy computes Shannon entropy of byte buffers.
package entropy

import "math"

// DefaultThreshold flags payloads that look encrypted or compressed.
const DefaultThreshold = 7.0

// Shannon returns the entropy of data in bits per byte, in [0, 8].
// The result never exceeds log2(len(data)).
func Shannon(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}

	var counts [256]int
	for _, b := range data {
		counts[b]++
	}

	n := float64(len(data))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// Detector flags high-entropy payloads.
type Detector struct {
	Threshold float64
	MinSize   int // payloads shorter than this are never flagged
}

// Check returns the entropy of data and whether it crosses the threshold.
func (d Detector) Check(data []byte) (float64, bool) {
	if len(data) == 0 || len(data) < d.MinSize {
		return 0, false
	}
	h := Shannon(data)
	return h, h >= d.Threshold
}
