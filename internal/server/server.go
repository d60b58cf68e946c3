// Package server wires the signaling endpoint to the session manager:
// it upgrades incoming connections, creates a Session per connection,
// and runs that session's read loop until the peer disconnects.
package server

import (
	"log/slog"
	"net/http"

	"github.com/pion/webrtc/v4"

	"github.com/m4n5ter/lindows-go/internal/input"
	"github.com/m4n5ter/lindows-go/internal/rtcapi"
	"github.com/m4n5ter/lindows-go/internal/session"
	"github.com/m4n5ter/lindows-go/internal/signaling"
	"github.com/m4n5ter/lindows-go/internal/wsconn"
)

// Server owns the pieces needed to turn a new WebSocket connection
// into a registered Session.
type Server struct {
	api       *rtcapi.API
	manager   *session.Manager
	broadcast *webrtc.TrackLocalStaticSample
	sink      input.Sink
	log       *slog.Logger
}

// New builds a Server. sink receives every decoded input-channel event
// from every session it registers.
func New(api *rtcapi.API, manager *session.Manager, broadcast *webrtc.TrackLocalStaticSample, sink input.Sink, log *slog.Logger) *Server {
	return &Server{api: api, manager: manager, broadcast: broadcast, sink: sink, log: log}
}

// HandleWebSocket upgrades the request, builds a peer connection and
// Session, registers it, and blocks running the session's read loop
// until the connection closes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := wsconn.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	ws := wsconn.New(raw, s.log)

	pc, err := s.api.NewPeerConnection()
	if err != nil {
		s.log.Warn("failed to create peer connection", "error", err)
		ws.Close()
		return
	}

	id := s.manager.NextID()
	sess, err := session.New(id, pc, ws, s.broadcast, s.api, s.sink, s.log, session.NegotiationCallee)
	if err != nil {
		s.log.Warn("failed to create session", "error", err)
		pc.Close()
		ws.Close()
		return
	}

	s.manager.Register(sess)
	s.log.Info("session connected", "session_id", id)

	s.readLoop(sess, ws)

	s.manager.Remove(id)
	s.log.Info("session disconnected", "session_id", id)
}

func (s *Server) readLoop(sess *session.Session, ws *wsconn.Conn) {
	for {
		raw, err := ws.ReadMessage()
		if err != nil {
			return
		}

		msg, err := signaling.Decode(raw)
		if err != nil {
			s.log.Warn("dropping malformed signaling frame", "session_id", sess.ID, "error", err)
			continue
		}

		if err := s.dispatch(sess, msg); err != nil {
			s.log.Warn("signaling handler error", "session_id", sess.ID, "event", msg.Event, "error", err)
		}
	}
}

func (s *Server) dispatch(sess *session.Session, msg signaling.Message) error {
	switch msg.Event {
	case signaling.EventOffer:
		return sess.HandleOffer(msg.Payload)
	case signaling.EventAnswer:
		return sess.HandleAnswer(msg.Payload)
	case signaling.EventCandidate:
		return sess.HandleCandidate(msg.Payload)
	case signaling.EventPing:
		return sess.HandlePing()
	default:
		s.log.Warn("unknown signaling event", "session_id", sess.ID, "event", msg.Event)
		return nil
	}
}
