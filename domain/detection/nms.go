package detection

import (
	"slices"
	"sort"
)

// ClassThresholds is the per-class IoU suppression table. Classes without an
// entry use Default.
type ClassThresholds struct {
	Default  float64
	PerClass map[int]float64
}

// For returns the suppression threshold for classID.
func (t ClassThresholds) For(classID int) float64 {
	if v, ok := t.PerClass[classID]; ok {
		return v
	}
	return t.Default
}

// ThresholdsByName resolves a name-keyed table against the label list.
// Unknown names are ignored.
func ThresholdsByName(names []string, byName map[string]float64, def float64) ClassThresholds {
	out := ClassThresholds{Default: def, PerClass: make(map[int]float64, len(byName))}
	for i, n := range names {
		if v, ok := byName[n]; ok {
			out.PerClass[i] = v
		}
	}
	return out
}

// NMS performs class-aware greedy non-max suppression. Within each class the
// highest-confidence box is kept and any remaining box whose IoU with a kept
// box exceeds that class's threshold is dropped. The result is grouped by
// ascending class id, each group in descending confidence.
func NMS(dets []Detection, thresholds ClassThresholds) []Detection {
	if len(dets) == 0 {
		return nil
	}
	groups := make(map[int][]Detection)
	for _, d := range dets {
		groups[d.ClassID] = append(groups[d.ClassID], d)
	}
	classes := make([]int, 0, len(groups))
	for c := range groups {
		classes = append(classes, c)
	}
	slices.Sort(classes)

	out := make([]Detection, 0, len(dets))
	for _, c := range classes {
		group := groups[c]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Confidence > group[j].Confidence })
		limit := thresholds.For(c)
		kept := make([]Detection, 0, len(group))
	candidates:
		for _, d := range group {
			for _, k := range kept {
				if IoU(d.Box, k.Box) > limit {
					continue candidates
				}
			}
			kept = append(kept, d)
		}
		out = append(out, kept...)
	}
	return out
}
