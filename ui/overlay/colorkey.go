package overlay

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorKey is the reserved colour the window manager renders as see-through.
type ColorKey struct {
	R, G, B uint8
}

// DefaultColorKey is full-saturation magenta.
var DefaultColorKey = ColorKey{R: 0xFF, G: 0x00, B: 0xFF}

// ParseColorKey parses a "#rrggbb" hex colour. Near-black keys are rejected
// because they would collide with the sentinel range.
func ParseColorKey(hex string) (ColorKey, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return ColorKey{}, fmt.Errorf("overlay: transparency key %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	if int(r)+int(g)+int(b) < 64 {
		return ColorKey{}, fmt.Errorf("overlay: transparency key %q too dark", hex)
	}
	return ColorKey{R: r, G: g, B: b}, nil
}

// COLORREF returns the key in Win32 0x00BBGGRR layout.
func (k ColorKey) COLORREF() uint32 {
	return uint32(k.R) | uint32(k.G)<<8 | uint32(k.B)<<16
}

func (k ColorKey) String() string { return fmt.Sprintf("#%02x%02x%02x", k.R, k.G, k.B) }

// matches reports whether a BGRA pixel equals the key.
func (k ColorKey) matches(b, g, r byte) bool { return b == k.B && g == k.G && r == k.R }
