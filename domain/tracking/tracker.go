package tracking

import "github.com/soocke/pixel-censor-go/domain/detection"

// Track is one temporally persistent identity.
type Track struct {
	ID        int
	Detection detection.Detection
	// Age counts updates since the track was last matched.
	Age int
}

// Tracked is the read-only per-update result for one track.
type Tracked struct {
	ID        int
	Detection detection.Detection
	Age       int
}

// Tracker associates detections with short-lived tracks by greedy IoU
// matching. It is not safe for concurrent use; each pipeline owns one.
type Tracker struct {
	tracks       []*Track
	nextID       int
	iouThreshold float64
	maxAge       int
}

// NewTracker returns a tracker. Non-positive arguments fall back to an IoU
// threshold of 0.3 and a max age of 5.
func NewTracker(iouThreshold float64, maxAge int) *Tracker {
	if iouThreshold <= 0 {
		iouThreshold = 0.3
	}
	if maxAge < 0 {
		maxAge = 5
	}
	return &Tracker{nextID: 1, iouThreshold: iouThreshold, maxAge: maxAge}
}

// Update ages every track, matches each detection in input order against the
// best still-unmatched track, creates tracks for the rest and drops tracks
// older than maxAge. It returns one entry per detection.
func (t *Tracker) Update(dets []detection.Detection) []Tracked {
	for _, tr := range t.tracks {
		tr.Age++
	}
	matched := make(map[*Track]bool, len(t.tracks))
	out := make([]Tracked, 0, len(dets))
	for _, d := range dets {
		var best *Track
		bestIoU := t.iouThreshold
		for _, tr := range t.tracks {
			if matched[tr] {
				continue
			}
			if iou := detection.IoU(d.Box, tr.Detection.Box); iou > bestIoU {
				best, bestIoU = tr, iou
			}
		}
		if best == nil {
			best = &Track{ID: t.nextID}
			t.nextID++
			t.tracks = append(t.tracks, best)
		}
		best.Detection = d
		best.Age = 0
		matched[best] = true
		out = append(out, Tracked{ID: best.ID, Detection: d})
	}
	kept := t.tracks[:0]
	for _, tr := range t.tracks {
		if tr.Age <= t.maxAge {
			kept = append(kept, tr)
		}
	}
	clear(t.tracks[len(kept):])
	t.tracks = kept
	return out
}

// Active returns every live track, including ones not matched this update.
func (t *Tracker) Active() []Tracked {
	out := make([]Tracked, len(t.tracks))
	for i, tr := range t.tracks {
		out[i] = Tracked{ID: tr.ID, Detection: tr.Detection, Age: tr.Age}
	}
	return out
}

// Len returns the number of live tracks.
func (t *Tracker) Len() int { return len(t.tracks) }

// Reset drops all tracks. Identities keep increasing and are never reused.
func (t *Tracker) Reset() {
	clear(t.tracks)
	t.tracks = t.tracks[:0]
}
