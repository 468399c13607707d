package monitor

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// Region is one display in virtual-desktop coordinates.
type Region struct {
	Index   int
	Bounds  image.Rectangle
	Enabled bool
}

// Local returns the region's bounds relative to origin, typically the
// top-left corner of a captured virtual-desktop frame.
func (r Region) Local(origin image.Point) image.Rectangle { return r.Bounds.Sub(origin) }

// Enumerate lists active displays. When enabled is non-empty only the listed
// indices start enabled; otherwise every display does.
func Enumerate(enabled []int) ([]Region, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return nil, fmt.Errorf("monitor: no active displays")
	}
	want := make(map[int]bool, len(enabled))
	for _, i := range enabled {
		want[i] = true
	}
	out := make([]Region, 0, n)
	for i := 0; i < n; i++ {
		b := screenshot.GetDisplayBounds(i)
		if b.Empty() {
			continue
		}
		out = append(out, Region{Index: i, Bounds: b, Enabled: len(want) == 0 || want[i]})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("monitor: all %d displays report empty bounds", n)
	}
	return out, nil
}

// VirtualBounds returns the union of all region bounds. The origin may be
// negative when a display sits left of or above the primary one.
func VirtualBounds(regions []Region) image.Rectangle {
	var u image.Rectangle
	for i, r := range regions {
		if i == 0 {
			u = r.Bounds
			continue
		}
		u = u.Union(r.Bounds)
	}
	return u
}
