// Package input decodes the binary records carried over the key,
// mouse, and common data channels and dispatches them to a Sink.
package input

import (
	"encoding/binary"
	"fmt"
)

// Event codes. The numeric values are this package's own catalog, not
// the Win32 input constants; only membership in this set matters to
// callers on this side of the wire, since nothing here performs OS
// input injection.
const (
	EventMouseMove    uint8 = 1
	EventMouseDown    uint8 = 2
	EventMouseUp      uint8 = 3
	EventMouseWheel   uint8 = 4
	EventKey          uint8 = 10
	EventClipboardSet uint8 = 20
)

// frameMinLen is event(1) + p1,p2,p3 (4 each).
const frameMinLen = 1 + 4*3

// Event is a decoded input record. P3 doubles as the key up/down flag
// for EventKey frames (0 = down, 1 = up). P4 holds any bytes past the
// fixed fields, whatever the code; for EventClipboardSet that is the
// pasted text.
type Event struct {
	Code uint8
	P1   int32
	P2   int32
	P3   int32
	P4   string
}

// Sink receives decoded events. Implementations outside this module
// translate an Event into whatever host-side effect is appropriate;
// this package only parses the wire format.
type Sink interface {
	HandleInput(Event)
}

// Decode parses a single data-channel message. Any trailing bytes
// past the fixed fields are taken verbatim as P4 — the data channel
// already frames one message per call, so no separate length prefix
// is needed for the trailing string.
func Decode(data []byte) (Event, error) {
	if len(data) < frameMinLen {
		return Event{}, fmt.Errorf("input frame too short: %d bytes", len(data))
	}

	ev := Event{
		Code: data[0],
		P1:   int32(binary.LittleEndian.Uint32(data[1:5])),
		P2:   int32(binary.LittleEndian.Uint32(data[5:9])),
		P3:   int32(binary.LittleEndian.Uint32(data[9:13])),
	}
	if len(data) > frameMinLen {
		ev.P4 = string(data[frameMinLen:])
	}
	return ev, nil
}

// Dispatch decodes data and forwards the result to sink. A malformed
// frame is dropped and reported through err without touching sink, so
// one bad message never tears down the channel it arrived on.
func Dispatch(data []byte, sink Sink) error {
	ev, err := Decode(data)
	if err != nil {
		return err
	}
	sink.HandleInput(ev)
	return nil
}
