package session

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/m4n5ter/lindows-go/internal/rtcapi"
	"github.com/m4n5ter/lindows-go/internal/signaling"
	"github.com/m4n5ter/lindows-go/internal/wsconn"
)

// newTestSocketPair spins up a real loopback WebSocket connection and
// wraps the server side in a *wsconn.Conn, returning the raw client
// side for assertions on what the session sent.
func newTestSocketPair(t *testing.T) (*wsconn.Conn, *websocket.Conn) {
	t.Helper()

	var serverConn *wsconn.Conn
	ready := make(chan struct{})

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConn = wsconn.New(raw, slog.Default())
		close(ready)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + srv.URL[len("http"):]
	clientConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	<-ready
	return serverConn, clientConn
}

func newTestAPI(t *testing.T) *rtcapi.API {
	t.Helper()
	api, err := rtcapi.New("stun:stun.syncthing.net:3478", slog.Default())
	require.NoError(t, err)
	return api
}

func TestHandleCandidateBeforeOfferIsBuffered(t *testing.T) {
	api := newTestAPI(t)
	pc, err := api.NewPeerConnection()
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	broadcast, err := rtcapi.NewBroadcastTrack()
	require.NoError(t, err)

	serverWS, clientWS := newTestSocketPair(t)
	defer clientWS.Close()

	s, err := New(1, pc, serverWS, broadcast, api, nil, slog.Default(), NegotiationCallee)
	require.NoError(t, err)

	require.NoError(t, s.HandleCandidate("candidate:1 1 udp 1 127.0.0.1 9 typ host"))

	s.candMu.Lock()
	buffered := len(s.candQueue)
	remoteSet := s.remoteSet
	s.candMu.Unlock()

	require.False(t, remoteSet)
	require.Equal(t, 1, buffered, "a candidate arriving before any remote description must be queued, not applied")
}

func TestLocalCandidateBeforeRemoteDescriptionIsBuffered(t *testing.T) {
	api := newTestAPI(t)
	pc, err := api.NewPeerConnection()
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	broadcast, err := rtcapi.NewBroadcastTrack()
	require.NoError(t, err)

	serverWS, clientWS := newTestSocketPair(t)
	defer clientWS.Close()

	s, err := New(4, pc, serverWS, broadcast, api, nil, slog.Default(), NegotiationCallee)
	require.NoError(t, err)

	s.handleLocalCandidate(webrtc.ICECandidateInit{Candidate: "candidate:9 1 udp 1 127.0.0.1 9 typ host"})

	s.candMu.Lock()
	buffered := len(s.localCandQueue)
	s.candMu.Unlock()

	require.Equal(t, 1, buffered, "a locally-gathered candidate generated before the remote description is set must be queued, not sent")
}

func TestLocalCandidateIsDrainedAfterRemoteDescriptionSet(t *testing.T) {
	remotePC, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { remotePC.Close() })
	_, err = remotePC.CreateDataChannel("probe", nil)
	require.NoError(t, err)

	offer, err := remotePC.CreateOffer(nil)
	require.NoError(t, err)
	gatherComplete := webrtc.GatheringCompletePromise(remotePC)
	require.NoError(t, remotePC.SetLocalDescription(offer))
	<-gatherComplete

	api := newTestAPI(t)
	pc, err := api.NewPeerConnection()
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	broadcast, err := rtcapi.NewBroadcastTrack()
	require.NoError(t, err)

	serverWS, clientWS := newTestSocketPair(t)
	defer clientWS.Close()

	s, err := New(5, pc, serverWS, broadcast, api, nil, slog.Default(), NegotiationCallee)
	require.NoError(t, err)

	s.handleLocalCandidate(webrtc.ICECandidateInit{Candidate: "candidate:9 1 udp 1 127.0.0.1 9 typ host"})

	offerJSON, err := signaling.MarshalSessionDescription(*remotePC.LocalDescription())
	require.NoError(t, err)
	require.NoError(t, s.HandleOffer(offerJSON))

	require.NoError(t, clientWS.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := clientWS.ReadMessage()
	require.NoError(t, err)
	msg, err := signaling.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, signaling.EventAnswer, msg.Event)

	_, raw, err = clientWS.ReadMessage()
	require.NoError(t, err)
	msg, err = signaling.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, signaling.EventCandidate, msg.Event, "a buffered outbound candidate must be flushed once the remote description lands")
}

func TestBeginCallerNegotiationSendsOwnOffer(t *testing.T) {
	api := newTestAPI(t)
	pc, err := api.NewPeerConnection()
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	broadcast, err := rtcapi.NewBroadcastTrack()
	require.NoError(t, err)

	serverWS, clientWS := newTestSocketPair(t)
	defer clientWS.Close()

	s, err := New(6, pc, serverWS, broadcast, api, nil, slog.Default(), NegotiationCaller)
	require.NoError(t, err)

	s.beginCallerNegotiation()

	require.NoError(t, clientWS.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := clientWS.ReadMessage()
	require.NoError(t, err)
	msg, err := signaling.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, signaling.EventOffer, msg.Event, "a caller-initiated session must send its own offer once negotiation begins")

	require.NotNil(t, pc.LocalDescription(), "SetLocalDescription must have run for the caller-initiated offer")
}

func TestAnswerIsSentBeforeLocalDescriptionOnDisk(t *testing.T) {
	remotePC, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { remotePC.Close() })
	_, err = remotePC.CreateDataChannel("probe", nil)
	require.NoError(t, err)

	offer, err := remotePC.CreateOffer(nil)
	require.NoError(t, err)
	gatherComplete := webrtc.GatheringCompletePromise(remotePC)
	require.NoError(t, remotePC.SetLocalDescription(offer))
	<-gatherComplete

	api := newTestAPI(t)
	pc, err := api.NewPeerConnection()
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	broadcast, err := rtcapi.NewBroadcastTrack()
	require.NoError(t, err)

	serverWS, clientWS := newTestSocketPair(t)
	defer clientWS.Close()

	s, err := New(2, pc, serverWS, broadcast, api, nil, slog.Default(), NegotiationCallee)
	require.NoError(t, err)

	offerJSON, err := signaling.MarshalSessionDescription(*remotePC.LocalDescription())
	require.NoError(t, err)

	require.NoError(t, s.HandleOffer(offerJSON))

	require.NoError(t, clientWS.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := clientWS.ReadMessage()
	require.NoError(t, err)

	msg, err := signaling.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, signaling.EventAnswer, msg.Event)

	require.NotNil(t, pc.LocalDescription(), "SetLocalDescription must still have run after the answer was sent")
}

func TestCloseIsIdempotent(t *testing.T) {
	api := newTestAPI(t)
	pc, err := api.NewPeerConnection()
	require.NoError(t, err)

	broadcast, err := rtcapi.NewBroadcastTrack()
	require.NoError(t, err)

	serverWS, clientWS := newTestSocketPair(t)
	defer clientWS.Close()

	s, err := New(3, pc, serverWS, broadcast, api, nil, slog.Default(), NegotiationCallee)
	require.NoError(t, err)

	s.Close()
	s.Close()
	s.Close()

	select {
	case <-s.Closed():
	default:
		t.Fatal("session should report closed after Close()")
	}
}
