package signaling

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	raw, err := Encode(EventPing, "")
	require.NoError(t, err)

	msg, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, EventPing, msg.Event)
	assert.Empty(t, msg.Payload)
}

func TestParseSessionDescriptionAcceptsJSONWrappedForm(t *testing.T) {
	wrapped, err := MarshalSessionDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n",
	})
	require.NoError(t, err)

	desc, err := ParseSessionDescription(wrapped, webrtc.SDPTypeOffer)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, desc.Type)
	assert.Contains(t, desc.SDP, "v=0")
}

func TestParseSessionDescriptionAcceptsBareSDPForm(t *testing.T) {
	bareSDP := "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"

	desc, err := ParseSessionDescription(bareSDP, webrtc.SDPTypeAnswer)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, desc.Type)
	assert.Equal(t, bareSDP, desc.SDP)
}

func TestParseCandidateCarriesRawString(t *testing.T) {
	ice := ParseCandidate("candidate:1 1 udp 1 127.0.0.1 9 typ host")
	assert.Equal(t, "candidate:1 1 udp 1 127.0.0.1 9 typ host", ice.Candidate)
}
