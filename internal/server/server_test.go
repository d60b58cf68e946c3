package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/m4n5ter/lindows-go/internal/input"
	"github.com/m4n5ter/lindows-go/internal/rtcapi"
	"github.com/m4n5ter/lindows-go/internal/session"
	"github.com/m4n5ter/lindows-go/internal/signaling"
)

func newTestServer(t *testing.T) (*httptest.Server, *websocket.Conn) {
	t.Helper()

	api, err := rtcapi.New("stun:stun.syncthing.net:3478", slog.Default())
	require.NoError(t, err)

	broadcast, err := rtcapi.NewBroadcastTrack()
	require.NoError(t, err)

	manager := session.NewManager(slog.Default())
	sink := input.NewLoggingSink(slog.Default())
	s := New(api, manager, broadcast, sink, slog.Default())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	url := "ws" + srv.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return srv, conn
}

func TestServerRespondsToPing(t *testing.T) {
	_, conn := newTestServer(t)

	frame, err := signaling.Encode(signaling.EventPing, "")
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	msg, err := signaling.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, signaling.EventPong, msg.Event)
}

func TestServerIgnoresMalformedFrameAndKeepsConnectionOpen(t *testing.T) {
	_, conn := newTestServer(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	frame, err := signaling.Encode(signaling.EventPing, "")
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	msg, err := signaling.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, signaling.EventPong, msg.Event, "a malformed frame must not close the connection")
}
