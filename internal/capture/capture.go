// Package capture enumerates capturable windows and pulls raw BGRA
// frames from whichever one a caller selects.
package capture

import (
	"fmt"
	"image"
	"strings"
	"time"
)

// Window describes one capturable surface. AppID is matched
// case-insensitively against a configured substring to select which
// window to stream; Title must be non-empty for a window to be
// selectable at all, since an empty title usually means a hidden or
// tool window rather than something worth presenting to a viewer.
type Window struct {
	ID     string
	Title  string
	AppID  string
	Bounds image.Rectangle
}

// Frame is one captured image, BGRA8 pixel order, row-major, no
// padding between rows.
type Frame struct {
	Width      int
	Height     int
	Pix        []byte
	CapturedAt time.Time
}

// Source enumerates capturable windows and captures frames from them.
type Source interface {
	Enumerate() ([]Window, error)
	CaptureFrame(w Window) (Frame, error)
}

// Permission gates access to the capture API on platforms that
// require explicit user consent. Test reports whether access is
// already granted; Request prompts for it.
type Permission interface {
	Test() bool
	Request() error
}

// FindByAppID returns the first window whose AppID contains substr
// (case-insensitive) and whose Title is non-empty. An empty substr
// matches the first selectable window.
func FindByAppID(windows []Window, substr string) (Window, bool) {
	needle := strings.ToLower(substr)
	for _, w := range windows {
		if w.Title == "" {
			continue
		}
		if needle == "" || strings.Contains(strings.ToLower(w.AppID), needle) {
			return w, true
		}
	}
	return Window{}, false
}

// ErrNoMatchingWindow is returned by callers that wrap FindByAppID
// when no window satisfies the selection predicate.
var ErrNoMatchingWindow = fmt.Errorf("no capturable window matched the configured application id")
