// Package session owns a single peer's WebRTC lifecycle — pending ICE
// candidate buffering, data-channel wiring, and idempotent teardown —
// plus the registry that tracks every live session.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"weak"

	"github.com/pion/webrtc/v4"

	"github.com/m4n5ter/lindows-go/internal/input"
	"github.com/m4n5ter/lindows-go/internal/rtcapi"
	"github.com/m4n5ter/lindows-go/internal/signaling"
	"github.com/m4n5ter/lindows-go/internal/wsconn"
)

// maxPendingCandidates bounds the pre-answer candidate buffer so a
// misbehaving or malicious peer cannot grow it without limit.
const maxPendingCandidates = 4096

// NegotiationMode selects when a Session attaches the shared broadcast
// track and which side originates the offer.
type NegotiationMode int

const (
	// NegotiationCallee attaches the broadcast track immediately, so it
	// is already present in the answer this session sends back to an
	// incoming offer. This is the default for a signaling endpoint that
	// waits for the peer to call first.
	NegotiationCallee NegotiationMode = iota
	// NegotiationCaller defers attaching the broadcast track until the
	// connection reaches Connected, then creates and sends the offer
	// itself.
	NegotiationCaller
)

// Session represents one connected peer: its signaling socket, its
// peer connection, and the ICE candidates that arrived before a
// remote description was set.
type Session struct {
	ID uint64

	pc  *webrtc.PeerConnection
	ws  *wsconn.Conn
	log *slog.Logger

	broadcast    *webrtc.TrackLocalStaticSample
	api          *rtcapi.API
	mode         NegotiationMode
	addTrackOnce sync.Once

	candMu         sync.Mutex
	candQueue      []webrtc.ICECandidateInit // inbound candidates, held until remote description is set
	localCandQueue []webrtc.ICECandidateInit // outbound candidates, held until remote description is set
	remoteSet      bool

	keyDC    *webrtc.DataChannel
	mouseDC  *webrtc.DataChannel
	commonDC *webrtc.DataChannel

	sink input.Sink

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a session bound to an already-upgraded socket and peer
// connection, and wires the ICE-candidate and connection-state
// callbacks. The callbacks close over the session only through a weak
// pointer: a session that has already been removed and closed must
// not be kept alive purely because the peer connection it owned is
// still gathering late candidates.
//
// mode controls when the broadcast track is attached: NegotiationCallee
// attaches it here, before any offer/answer round trip; NegotiationCaller
// defers attaching it until the connection reaches Connected, at which
// point this session creates and sends its own offer.
func New(id uint64, pc *webrtc.PeerConnection, ws *wsconn.Conn, broadcast *webrtc.TrackLocalStaticSample, api *rtcapi.API, sink input.Sink, log *slog.Logger, mode NegotiationMode) (*Session, error) {
	s := &Session{
		ID:        id,
		pc:        pc,
		ws:        ws,
		sink:      sink,
		log:       log,
		broadcast: broadcast,
		api:       api,
		mode:      mode,
		closed:    make(chan struct{}),
	}

	if mode == NegotiationCallee {
		if err := s.addTrack(); err != nil {
			return nil, err
		}
	}

	weakSelf := weak.Make(s)

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		sess := weakSelf.Value()
		if sess == nil {
			return
		}
		sess.handleLocalCandidate(c.ToJSON())
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		sess := weakSelf.Value()
		if sess == nil {
			return
		}
		sess.log.Info("ice connection state changed", "session_id", sess.ID, "state", state.String())
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		sess := weakSelf.Value()
		if sess == nil {
			return
		}
		sess.log.Info("peer connection state changed", "session_id", sess.ID, "state", state.String())
		if state == webrtc.PeerConnectionStateConnected && sess.mode == NegotiationCaller {
			sess.beginCallerNegotiation()
		}
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			sess.Close()
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		sess := weakSelf.Value()
		if sess == nil {
			return
		}
		sess.wireDataChannel(dc)
	})

	return s, nil
}

// addTrack attaches the shared broadcast track exactly once, however
// many times it's called across the two negotiation modes.
func (s *Session) addTrack() error {
	var err error
	s.addTrackOnce.Do(func() {
		err = s.api.AddBroadcastTrack(s.pc, s.broadcast)
	})
	if err != nil {
		return fmt.Errorf("session %d: %w", s.ID, err)
	}
	return nil
}

// beginCallerNegotiation runs once a NegotiationCaller session reaches
// Connected: it attaches the broadcast track, creates the offer this
// session originates, sends it over the signaling socket, THEN sets
// the local description — the same send-before-SetLocalDescription
// ordering HandleOffer uses for its answer, applied here to an offer.
func (s *Session) beginCallerNegotiation() {
	if err := s.addTrack(); err != nil {
		s.log.Warn("failed to attach broadcast track for caller-initiated negotiation", "session_id", s.ID, "error", err)
		return
	}

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		s.log.Warn("failed to create caller-initiated offer", "session_id", s.ID, "error", err)
		return
	}

	offerJSON, err := signaling.MarshalSessionDescription(offer)
	if err != nil {
		s.log.Warn("failed to marshal caller-initiated offer", "session_id", s.ID, "error", err)
		return
	}
	frame, err := signaling.Encode(signaling.EventOffer, offerJSON)
	if err != nil {
		s.log.Warn("failed to encode caller-initiated offer", "session_id", s.ID, "error", err)
		return
	}
	s.ws.Send(frame)

	if err := s.pc.SetLocalDescription(offer); err != nil {
		s.log.Warn("failed to set local description for caller-initiated offer", "session_id", s.ID, "error", err)
	}
}

func (s *Session) wireDataChannel(dc *webrtc.DataChannel) {
	switch dc.Label() {
	case "key":
		s.keyDC = dc
	case "mouse":
		s.mouseDC = dc
	case "common":
		s.commonDC = dc
	default:
		s.log.Warn("unknown data channel label", "session_id", s.ID, "label", dc.Label())
		return
	}

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if s.sink == nil {
			return
		}
		if err := input.Dispatch(msg.Data, s.sink); err != nil {
			s.log.Warn("dropping malformed input frame", "session_id", s.ID, "channel", dc.Label(), "error", err)
		}
	})
}

// HandleOffer sets the remote description from an incoming offer,
// replies with an answer over the signaling socket, THEN sets the
// local description — in that order. The answer is delivered before
// SetLocalDescription completes so a fast-trickling peer's earliest
// candidates never race the answer across the wire.
func (s *Session) HandleOffer(payload string) error {
	offer, err := signaling.ParseSessionDescription(payload, webrtc.SDPTypeOffer)
	if err != nil {
		return fmt.Errorf("session %d: parse offer: %w", s.ID, err)
	}
	if err := s.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("session %d: set remote description: %w", s.ID, err)
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("session %d: create answer: %w", s.ID, err)
	}

	answerJSON, err := signaling.MarshalSessionDescription(answer)
	if err != nil {
		return fmt.Errorf("session %d: marshal answer: %w", s.ID, err)
	}
	frame, err := signaling.Encode(signaling.EventAnswer, answerJSON)
	if err != nil {
		return fmt.Errorf("session %d: encode answer: %w", s.ID, err)
	}
	s.ws.Send(frame)

	s.drainPendingCandidates()

	if err := s.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("session %d: set local description: %w", s.ID, err)
	}

	return nil
}

// HandleAnswer applies a caller-initiated offer's matching answer.
func (s *Session) HandleAnswer(payload string) error {
	answer, err := signaling.ParseSessionDescription(payload, webrtc.SDPTypeAnswer)
	if err != nil {
		return fmt.Errorf("session %d: parse answer: %w", s.ID, err)
	}
	if err := s.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("session %d: set remote description: %w", s.ID, err)
	}
	s.drainPendingCandidates()
	return nil
}

// HandleCandidate either applies an incoming ICE candidate
// immediately, or buffers it if the remote description has not been
// set yet. Buffered candidates are applied in arrival order once a
// remote description lands.
func (s *Session) HandleCandidate(payload string) error {
	ice := signaling.ParseCandidate(payload)

	s.candMu.Lock()
	if !s.remoteSet || s.pc.RemoteDescription() == nil {
		if len(s.candQueue) < maxPendingCandidates {
			s.candQueue = append(s.candQueue, ice)
		}
		s.candMu.Unlock()
		return nil
	}
	s.candMu.Unlock()

	if err := s.pc.AddICECandidate(ice); err != nil {
		return fmt.Errorf("session %d: add ice candidate: %w", s.ID, err)
	}
	return nil
}

// HandlePing replies with a pong over the signaling socket.
func (s *Session) HandlePing() error {
	frame, err := signaling.Encode(signaling.EventPong, "")
	if err != nil {
		return fmt.Errorf("session %d: encode pong: %w", s.ID, err)
	}
	s.ws.Send(frame)
	return nil
}

func (s *Session) drainPendingCandidates() {
	s.candMu.Lock()
	s.remoteSet = true
	pendingInbound := s.candQueue
	s.candQueue = nil
	pendingOutbound := s.localCandQueue
	s.localCandQueue = nil
	s.candMu.Unlock()

	for _, c := range pendingInbound {
		if err := s.pc.AddICECandidate(c); err != nil {
			s.log.Warn("failed to apply buffered ice candidate", "session_id", s.ID, "error", err)
		}
	}
	for _, c := range pendingOutbound {
		s.sendCandidate(c)
	}
}

// handleLocalCandidate defers a locally-gathered ICE candidate until
// the remote description has been set, then sends it over the
// signaling socket in the order it was gathered. A peer that has not
// yet sent its offer/answer has nowhere to apply a candidate, so
// sending early would just be discarded on arrival.
func (s *Session) handleLocalCandidate(c webrtc.ICECandidateInit) {
	s.candMu.Lock()
	if !s.remoteSet {
		if len(s.localCandQueue) < maxPendingCandidates {
			s.localCandQueue = append(s.localCandQueue, c)
		}
		s.candMu.Unlock()
		return
	}
	s.candMu.Unlock()

	s.sendCandidate(c)
}

func (s *Session) sendCandidate(c webrtc.ICECandidateInit) {
	frame, err := signaling.Encode(signaling.EventCandidate, c.Candidate)
	if err != nil {
		s.log.Warn("failed to encode outgoing candidate", "session_id", s.ID, "error", err)
		return
	}
	s.ws.Send(frame)
}

// Closed reports whether Close has run.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

// Close tears the session down exactly once: closes the peer
// connection and the signaling socket. Safe to call from any of the
// callbacks above or from the session manager's removal path.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if err := s.pc.Close(); err != nil {
			s.log.Warn("error closing peer connection", "session_id", s.ID, "error", err)
		}
		s.ws.Close()
	})
}
