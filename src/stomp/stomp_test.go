package stomp

import (
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeSend(t *testing.T) {
	data, err := Encode(Send("/app/chat/1", []byte(`{"content":"hi"}`)))
	require.NoError(t, err)

	f, err := Decode(data)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, frame.SEND, f.Command)
	assert.Equal(t, "/app/chat/1", f.Header.Get(frame.Destination))
	assert.Equal(t, ContentTypeJSON, f.Header.Get(frame.ContentType))
	assert.JSONEq(t, `{"content":"hi"}`, string(f.Body))
}

func TestHeartBeat(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "\n", string(data))

	f, err := Decode(data)
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = Decode(nil)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestDecodeSkipsLeadingHeartBeats(t *testing.T) {
	data, err := Encode(Receipt("r-1"))
	require.NoError(t, err)

	f, err := Decode(append([]byte("\n\n"), data...))
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "r-1", f.Header.Get(frame.ReceiptId))
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte("SEND\nno-colon-header\n\n\x00"))
	assert.Error(t, err)
}

func TestConnectSkipsEmptyHeaders(t *testing.T) {
	f := Connect("localhost", 10*time.Second, frame.Login, "u1", frame.Passcode, "")
	assert.Equal(t, Version, f.Header.Get(frame.AcceptVersion))
	assert.Equal(t, "10000,0", f.Header.Get(frame.HeartBeat))
	assert.Equal(t, "u1", f.Header.Get(frame.Login))
	_, ok := f.Header.Contains(frame.Passcode)
	assert.False(t, ok)
}

func TestMessageHeaders(t *testing.T) {
	f := Message("sub-1", "m-1", "/topic/chat/1", "", []byte("x"), "sender", "42")
	assert.Equal(t, "sub-1", f.Header.Get(frame.Subscription))
	assert.Equal(t, "m-1", f.Header.Get(frame.MessageId))
	assert.Equal(t, "42", f.Header.Get("sender"))
	_, ok := f.Header.Contains(frame.ContentType)
	assert.False(t, ok)
}

func TestErrorFrame(t *testing.T) {
	f := Error("authentication failed", "token expired")
	assert.Equal(t, frame.ERROR, f.Command)
	assert.Equal(t, "authentication failed", f.Header.Get(frame.Message))
	assert.Equal(t, "token expired", string(f.Body))
}

func TestParseHeartBeat(t *testing.T) {
	cx, cy, err := ParseHeartBeat("10000, 5000")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cx)
	assert.Equal(t, 5*time.Second, cy)

	for _, bad := range []string{"", "10", "a,b", "-1,0", "1,2,3"} {
		_, _, err := ParseHeartBeat(bad)
		assert.ErrorIs(t, err, ErrInvalidHeartBeat, bad)
	}
}

func TestNegotiateHeartBeat(t *testing.T) {
	assert.Zero(t, NegotiateHeartBeat(0, time.Second))
	assert.Zero(t, NegotiateHeartBeat(time.Second, 0))
	assert.Equal(t, 5*time.Second, NegotiateHeartBeat(time.Second, 5*time.Second))
	assert.Equal(t, 10*time.Second, NegotiateHeartBeat(10*time.Second, 5*time.Second))

	f := Connected("s1", "test", 3*time.Second)
	assert.Equal(t, "0,3000", f.Header.Get(frame.HeartBeat))
}
