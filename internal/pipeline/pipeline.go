// Package pipeline drives one capture session end to end: pull a
// frame, encode it with the session's single VP8 encoder, and fan it
// out onto the broadcast track every connected peer subscribes to.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/m4n5ter/lindows-go/internal/capture"
	"github.com/m4n5ter/lindows-go/internal/encode"
)

// maxQueuedFrames bounds the hand-off between the capture loop and
// the broadcast writer. The queue drops the oldest frame rather than
// blocking capture, trading a skipped frame for bounded memory and an
// unblocked capture thread.
const maxQueuedFrames = 4

// maxConsecutiveCaptureFailures stops the pipeline once the capture
// source has failed this many times in a row, on the assumption the
// window has closed or capture access was revoked.
const maxConsecutiveCaptureFailures = 2

// encoderSession is the subset of *encode.Session a pipeline depends
// on, narrowed to an interface so the orchestration logic here can be
// exercised without a real libvpx-backed encoder underneath it.
type encoderSession interface {
	Encode(bgra []byte) (encode.Frame, error)
	Close() error
}

// Pipeline owns one capture session from start to graceful shutdown.
type Pipeline struct {
	source capture.Source
	window capture.Window
	enc    encoderSession
	track  *webrtc.TrackLocalStaticSample
	fps    int
	log    *slog.Logger

	queue chan encode.Frame

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a pipeline over an already-selected window and an
// already-constructed encoder session; both must outlive the
// pipeline's own lifetime management of them (Stop closes enc).
func New(source capture.Source, window capture.Window, enc encoderSession, track *webrtc.TrackLocalStaticSample, fps int, log *slog.Logger) *Pipeline {
	return &Pipeline{
		source: source,
		window: window,
		enc:    enc,
		track:  track,
		fps:    fps,
		log:    log,
		queue:  make(chan encode.Frame, maxQueuedFrames),
	}
}

// Start launches the capture loop and the broadcast writer loop. It
// returns immediately; errors during capture are logged, not
// returned, since the pipeline keeps running until Stop is called or
// it self-stops after repeated capture failures.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(2)
	go p.captureLoop(ctx)
	go p.broadcastLoop(ctx)
}

func (p *Pipeline) captureLoop(ctx context.Context) {
	defer p.wg.Done()

	interval := time.Second / time.Duration(max(p.fps, 1))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := p.source.CaptureFrame(p.window)
			if err != nil {
				consecutiveFailures++
				p.log.Warn("capture frame failed", "window", p.window.ID, "error", err, "consecutive_failures", consecutiveFailures)
				if consecutiveFailures >= maxConsecutiveCaptureFailures {
					p.log.Error("stopping pipeline after repeated capture failures", "window", p.window.ID)
					p.cancel()
					return
				}
				continue
			}
			consecutiveFailures = 0

			encoded, err := p.enc.Encode(frame.Pix)
			if err != nil {
				p.log.Warn("vp8 encode failed, dropping frame", "window", p.window.ID, "error", err)
				continue
			}

			p.enqueue(encoded)
		}
	}
}

// enqueue drops the oldest queued frame when the queue is full rather
// than blocking the capture loop, so a slow broadcast writer never
// back-pressures capture.
func (p *Pipeline) enqueue(f encode.Frame) {
	select {
	case p.queue <- f:
		return
	default:
	}

	select {
	case <-p.queue:
	default:
	}

	select {
	case p.queue <- f:
	default:
	}
}

func (p *Pipeline) broadcastLoop(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case f, ok := <-p.queue:
			if !ok {
				return
			}
			if err := p.track.WriteSample(media.Sample{Data: f.Data, Duration: f.Duration}); err != nil {
				p.log.Warn("write sample failed", "window", p.window.ID, "error", err)
			}
		}
	}
}

// drain flushes any frames still queued after cancellation so a
// graceful shutdown delivers what it already encoded instead of
// discarding it silently.
func (p *Pipeline) drain() {
	for {
		select {
		case f := <-p.queue:
			if err := p.track.WriteSample(media.Sample{Data: f.Data, Duration: f.Duration}); err != nil {
				p.log.Warn("write sample failed during drain", "window", p.window.ID, "error", err)
			}
		default:
			return
		}
	}
}

// Stop cancels the capture loop, waits for the broadcast loop to
// drain the queue and exit, then closes the encoder. Call it exactly
// once: a second call returns from wg.Wait at once and closes the
// encoder again, and *encode.Session.Close does not tolerate being
// called twice.
func (p *Pipeline) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	if err := p.enc.Close(); err != nil {
		return fmt.Errorf("pipeline stop: %w", err)
	}
	return nil
}
