// Package signaling decodes the JSON event/payload protocol carried
// over the WebSocket control channel and renders outgoing frames in
// the same shape.
package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/tidwall/gjson"
)

// Event names carried in the "event" field of every signaling frame.
const (
	EventOffer     = "offer"
	EventAnswer    = "answer"
	EventCandidate = "candidate"
	EventPing      = "ping"
	EventPong      = "pong"
)

// Message is the wire envelope: {"event": "...", "payload": "..."}.
// Payload is carried as a raw string so offer/answer/candidate/ping
// can each interpret it differently.
type Message struct {
	Event   string `json:"event"`
	Payload string `json:"payload"`
}

// Decode unmarshals a single incoming frame.
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decode signaling message: %w", err)
	}
	return msg, nil
}

// Encode renders an outgoing frame.
func Encode(event, payload string) ([]byte, error) {
	b, err := json.Marshal(Message{Event: event, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode signaling message: %w", err)
	}
	return b, nil
}

// ParseSessionDescription accepts either a JSON-serialized
// webrtc.SessionDescription or a bare SDP string as payload, and
// returns a SessionDescription of the given type either way. Peers
// disagree on which form they send, so both are accepted rather than
// rejecting one as malformed.
func ParseSessionDescription(payload string, typ webrtc.SDPType) (webrtc.SessionDescription, error) {
	trimmed := gjson.Parse(payload)
	if trimmed.IsObject() {
		var desc webrtc.SessionDescription
		if err := json.Unmarshal([]byte(payload), &desc); err == nil && desc.SDP != "" {
			desc.Type = typ
			return desc, nil
		}
	}

	// Not a well-formed SessionDescription object: treat the whole
	// payload as the raw SDP body.
	return webrtc.SessionDescription{Type: typ, SDP: payload}, nil
}

// ParseCandidate turns a payload string into an ICE candidate init.
// Candidates on this protocol are carried as the bare candidate
// string with no sdpMid/sdpMLineIndex, matching the simplified wire
// format this endpoint uses.
func ParseCandidate(payload string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: payload}
}

// MarshalSessionDescription renders a SessionDescription as the JSON
// form ParseSessionDescription accepts back.
func MarshalSessionDescription(desc webrtc.SessionDescription) (string, error) {
	b, err := json.Marshal(desc)
	if err != nil {
		return "", fmt.Errorf("marshal session description: %w", err)
	}
	return string(b), nil
}
