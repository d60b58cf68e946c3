// Package encode wraps a single VP8 encoder instance per capture
// session. The original recording code this is ported from built a
// brand new encoder for every captured frame; this package exists to
// make that a one-time cost instead.
package encode

import (
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/pion/mediadevices/pkg/codec"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/mediadevices/pkg/prop"
)

// Quality mirrors the coarse quality presets the original encoder
// exposed. Balanced is the default used when nothing more specific is
// configured.
type Quality int

const (
	QualityRealtime Quality = iota
	QualityBalanced
	QualityBest
)

// bitrateFor maps a coarse quality preset to a concrete VP8 target
// bitrate when the caller didn't supply one explicitly.
func bitrateFor(q Quality) int {
	switch q {
	case QualityRealtime:
		return 600_000
	case QualityBest:
		return 2_500_000
	default:
		return 1_200_000
	}
}

// Frame is one encoded VP8 access unit ready for BroadcastTrack.
// PresentationMs is monotonic from the start of the session;
// Duration is the wall-clock gap since the previous frame was
// captured, used directly as the sample's playout duration.
type Frame struct {
	Data           []byte
	PresentationMs int64
	Duration       time.Duration
}

// frameSource adapts this package's push-style frame delivery to the
// pull-style video.Reader the codec builder expects: Push hands a
// converted image to whichever goroutine is blocked in Read.
type frameSource struct {
	frames chan image.Image
}

func newFrameSource() *frameSource {
	return &frameSource{frames: make(chan image.Image, 1)}
}

func (f *frameSource) Read() (image.Image, func(), error) {
	img, ok := <-f.frames
	if !ok {
		return nil, func() {}, io.EOF
	}
	return img, func() {}, nil
}

func (f *frameSource) push(img image.Image) {
	f.frames <- img
}

func (f *frameSource) close() {
	close(f.frames)
}

// Session is the single encoder instance for one capture session's
// lifetime. Build one with New and reuse it across every frame;
// never construct a new Session per frame.
type Session struct {
	mu sync.Mutex

	conv   *converter
	source *frameSource
	reader codec.ReadCloser

	startedAt time.Time
	lastFrame time.Time
	first     bool
}

// New builds the single VP8 encoder for a capture session sized
// width x height, targeting bitrate bits/sec (or Quality's default
// bitrate when bitrate <= 0).
func New(width, height int, quality Quality, bitrate int) (*Session, error) {
	params, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("new vp8 params: %w", err)
	}
	if bitrate <= 0 {
		bitrate = bitrateFor(quality)
	}
	params.BitRate = bitrate
	params.KeyFrameInterval = 0

	source := newFrameSource()

	reader, err := params.BuildVideoEncoder(source, prop.Media{
		Video: prop.Video{
			Width:  width,
			Height: height,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build vp8 encoder: %w", err)
	}

	return &Session{
		conv:      newConverter(width, height),
		source:    source,
		reader:    reader,
		startedAt: time.Now(),
		first:     true,
	}, nil
}

// Encode converts bgra and runs it through the one encoder instance
// this Session owns, returning the resulting VP8 frame. Calls must be
// serialized by the caller's pipeline; Encode itself serializes via
// an internal mutex as a last line of defense, not as its primary
// concurrency contract.
func (s *Session) Encode(bgra []byte) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var gap time.Duration
	if s.first {
		gap = 0
		s.first = false
	} else {
		gap = now.Sub(s.lastFrame)
	}
	s.lastFrame = now

	img, err := s.conv.toI420(bgra)
	if err != nil {
		return Frame{}, fmt.Errorf("convert frame: %w", err)
	}

	s.source.push(img)

	data, _, err := s.reader.Read()
	if err != nil {
		return Frame{}, fmt.Errorf("vp8 encode: %w", err)
	}

	encoded := make([]byte, len(data))
	copy(encoded, data)

	return Frame{
		Data:           encoded,
		PresentationMs: now.Sub(s.startedAt).Milliseconds(),
		Duration:       gap,
	}, nil
}

// Close releases the encoder and its conversion buffers. Call once
// when the capture session ends.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.source.close()
	s.conv.close()
	if err := s.reader.Close(); err != nil {
		return fmt.Errorf("close vp8 encoder: %w", err)
	}
	return nil
}
