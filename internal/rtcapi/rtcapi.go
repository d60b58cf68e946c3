// Package rtcapi builds pion/webrtc peer connections and owns the
// single process-wide broadcast video track every peer subscribes to.
package rtcapi

import (
	"fmt"
	"log/slog"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// videoRTCPFeedback is the feedback set every broadcast track
// advertises: receiver-estimated maximum bitrate (REMB), full intra
// refresh on request, and both generic and picture-loss NACKs.
var videoRTCPFeedback = []webrtc.RTCPFeedback{
	{Type: "goog-remb", Parameter: ""},
	{Type: "ccm", Parameter: "fir"},
	{Type: "nack", Parameter: ""},
	{Type: "nack", Parameter: "pli"},
}

// API wraps a pion webrtc.API configured with the default media
// engine and interceptor registry, plus the single STUN server this
// deployment uses.
type API struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
	log        *slog.Logger
}

// New builds an API bound to stunServer.
func New(stunServer string, log *slog.Logger) (*API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register default codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("register default interceptors: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(registry))

	return &API{
		api:        api,
		iceServers: []webrtc.ICEServer{{URLs: []string{stunServer}}},
		log:        log,
	}, nil
}

// NewPeerConnection creates a peer connection configured with this
// API's media engine, interceptors, and ICE server.
func (a *API) NewPeerConnection() (*webrtc.PeerConnection, error) {
	pc, err := a.api.NewPeerConnection(webrtc.Configuration{ICEServers: a.iceServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return pc, nil
}

// NewBroadcastTrack creates the single VP8 track every peer
// connection receives a sender for.
func NewBroadcastTrack() (*webrtc.TrackLocalStaticSample, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:     webrtc.MimeTypeVP8,
			ClockRate:    90000,
			RTCPFeedback: videoRTCPFeedback,
		},
		"video",
		"stream",
	)
	if err != nil {
		return nil, fmt.Errorf("new broadcast track: %w", err)
	}
	return track, nil
}

// AddBroadcastTrack adds track to pc as a new RTP sender and spawns a
// goroutine that drains the sender's incoming RTCP stream for as long
// as the sender exists. pion requires something to read a sender's
// RTCP feed or its internal buffers grow unbounded; this loop exists
// purely to keep that drain running, nothing it reads is acted on.
func (a *API) AddBroadcastTrack(pc *webrtc.PeerConnection, track *webrtc.TrackLocalStaticSample) error {
	sender, err := pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add broadcast track: %w", err)
	}

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	return nil
}
