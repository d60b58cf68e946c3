// Package screenshotsrc implements capture.Source on top of
// kbinani/screenshot, treating every active display as one
// capturable window.
package screenshotsrc

import (
	"fmt"
	"image"
	"time"

	"github.com/kbinani/screenshot"

	"github.com/m4n5ter/lindows-go/internal/capture"
)

// Source captures whole-display frames. True per-application window
// capture is platform-native and out of scope here; each display
// stands in for one "window" so the rest of the pipeline's
// window-selection contract (capture.FindByAppID) still applies.
type Source struct{}

// New returns a ready-to-use Source.
func New() *Source {
	return &Source{}
}

// Enumerate lists every active display as a Window.
func (s *Source) Enumerate() ([]capture.Window, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, fmt.Errorf("no active displays found")
	}

	windows := make([]capture.Window, 0, n)
	for i := range n {
		bounds := screenshot.GetDisplayBounds(i)
		windows = append(windows, capture.Window{
			ID:     fmt.Sprintf("display-%d", i),
			Title:  fmt.Sprintf("Display %d", i),
			AppID:  fmt.Sprintf("display-%d", i),
			Bounds: bounds,
		})
	}
	return windows, nil
}

// CaptureFrame grabs the current contents of w.Bounds and converts
// them to BGRA, the pixel order the encode package expects.
func (s *Source) CaptureFrame(w capture.Window) (capture.Frame, error) {
	img, err := screenshot.CaptureRect(w.Bounds)
	if err != nil {
		return capture.Frame{}, fmt.Errorf("capture display: %w", err)
	}

	return capture.Frame{
		Width:      img.Bounds().Dx(),
		Height:     img.Bounds().Dy(),
		Pix:        rgbaToBGRA(img),
		CapturedAt: time.Now(),
	}, nil
}

// Permission is the capture.Permission for the screenshot backend. The
// underlying kbinani/screenshot library has no explicit consent API on
// any of its supported platforms, so access is always reported as
// already granted; Request is a no-op. This still satisfies the
// probe-before-capture step other backends need a real prompt for.
type Permission struct{}

// NewPermission returns a Permission for the screenshot backend.
func NewPermission() Permission {
	return Permission{}
}

// Test always reports access as granted.
func (Permission) Test() bool { return true }

// Request is a no-op; there is nothing to prompt for.
func (Permission) Request() error { return nil }

// rgbaToBGRA copies a standard library *image.RGBA buffer into a new
// BGRA slice with the R and B channels swapped; screenshot
// returns RGBA, the VP8 conversion stage wants BGRA to match the
// capture format the original pipeline assumed.
func rgbaToBGRA(img *image.RGBA) []byte {
	src := img.Pix
	out := make([]byte, len(src))
	for i := 0; i+3 < len(src); i += 4 {
		out[i+0] = src[i+2]
		out[i+1] = src[i+1]
		out[i+2] = src[i+0]
		out[i+3] = src[i+3]
	}
	return out
}
