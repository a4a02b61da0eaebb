package hub

import (
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gudfood/realtime/src/auth"
	"github.com/gudfood/realtime/src/stomp"
	"github.com/gudfood/realtime/src/transport"
	"github.com/gudfood/realtime/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestHub creates a hub and starts its event loop in a goroutine.
func newTestHub(t *testing.T, authenticator auth.Authenticator) *Hub {
	t.Helper()
	h := New(DefaultOptions(), authenticator, zerolog.Nop())
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

// peer is the client end of a session served by the hub.
type peer struct {
	t      *testing.T
	id     string
	conn   types.FrameConn
	frames chan *frame.Frame
}

func openSession(t *testing.T, h *Hub, id string) *peer {
	t.Helper()
	local, remote := transport.Pipe()
	go h.Serve(id, remote)
	t.Cleanup(func() { _ = local.Close() })

	p := &peer{t: t, id: id, conn: local, frames: make(chan *frame.Frame, 256)}
	go func() {
		defer close(p.frames)
		for {
			f, err := local.ReadFrame()
			if err != nil {
				return
			}
			if f != nil {
				p.frames <- f
			}
		}
	}()
	return p
}

// connect opens a session and completes CONNECT as login.
func connect(t *testing.T, h *Hub, id, login string) *peer {
	t.Helper()
	p := openSession(t, h, id)
	p.send(frame.New(frame.CONNECT, frame.AcceptVersion, "1.1,1.2", frame.Login, login))
	f := p.expect(frame.CONNECTED)
	assert.Equal(t, id, f.Header.Get(frame.Session))
	assert.Equal(t, stomp.Version, f.Header.Get(frame.Version))
	return p
}

func (p *peer) send(f *frame.Frame) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteFrame(f))
}

// next returns the next frame, or nil on timeout or close.
func (p *peer) next(timeout time.Duration) *frame.Frame {
	select {
	case f := <-p.frames:
		return f
	case <-time.After(timeout):
		return nil
	}
}

func (p *peer) expect(command string) *frame.Frame {
	p.t.Helper()
	f := p.next(time.Second)
	require.NotNil(p.t, f, "expected %s", command)
	require.Equal(p.t, command, f.Command, "body: %s", f.Body)
	return f
}

func (p *peer) expectNothing() {
	p.t.Helper()
	assert.Nil(p.t, p.next(50*time.Millisecond))
}

func (p *peer) subscribe(id, dest string) {
	p.t.Helper()
	f := stomp.Subscribe(id, dest)
	f.Header.Set(frame.Receipt, "sub-"+id)
	p.send(f)
	r := p.expect(frame.RECEIPT)
	require.Equal(p.t, "sub-"+id, r.Header.Get(frame.ReceiptId))
}

// closed reports whether the hub closed the session, draining any frames
// still queued.
func (p *peer) closed() bool {
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-p.frames:
			if !ok {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

func TestHubRegisterAndUnregister(t *testing.T) {
	h := newTestHub(t, auth.AnonymousAuthenticator{})

	connect(t, h, "s1", "u1")
	p2 := connect(t, h, "s2", "u2")
	require.Eventually(t, func() bool { return h.SessionCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"s1", "s2"}, h.SessionIDs())

	require.NoError(t, p2.conn.Close())
	require.Eventually(t, func() bool { return h.SessionCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Nil(t, h.SessionInfo("s2"))
	assert.NotNil(t, h.SessionInfo("s1"))
}

func TestFrameBeforeConnect(t *testing.T) {
	h := newTestHub(t, auth.AnonymousAuthenticator{})
	p := openSession(t, h, "s1")

	p.send(stomp.Subscribe("a", "/topic/x"))
	f := p.expect(frame.ERROR)
	assert.Equal(t, "not connected", f.Header.Get(frame.Message))
	assert.True(t, p.closed())
}

func TestConnectRejectsUnsupportedVersion(t *testing.T) {
	h := newTestHub(t, auth.AnonymousAuthenticator{})
	p := openSession(t, h, "s1")

	p.send(frame.New(frame.CONNECT, frame.AcceptVersion, "1.0"))
	f := p.expect(frame.ERROR)
	assert.Equal(t, "unsupported protocol version", f.Header.Get(frame.Message))
}

func TestConnectTwice(t *testing.T) {
	h := newTestHub(t, auth.AnonymousAuthenticator{})
	p := connect(t, h, "s1", "u1")

	p.send(frame.New(frame.STOMP, frame.AcceptVersion, "1.2"))
	f := p.expect(frame.ERROR)
	assert.Equal(t, "already connected", f.Header.Get(frame.Message))
}

func TestConnectAuthentication(t *testing.T) {
	h := newTestHub(t, auth.New("s3cret"))

	bad := openSession(t, h, "bad")
	bad.send(frame.New(frame.CONNECT, frame.AcceptVersion, "1.2", frame.Passcode, "garbage"))
	f := bad.expect(frame.ERROR)
	assert.Equal(t, "authentication failed", f.Header.Get(frame.Message))
	assert.True(t, bad.closed())

	token, err := auth.GenerateToken("s3cret", "7", "buyer", time.Minute)
	require.NoError(t, err)
	good := openSession(t, h, "good")
	good.send(frame.New(frame.CONNECT, frame.AcceptVersion, "1.2", "Authorization", "Bearer "+token))
	good.expect(frame.CONNECTED)

	info := h.SessionInfo("good")
	require.NotNil(t, info)
	assert.Equal(t, "7", info.UserID)
	assert.Equal(t, "buyer", info.Role)
}

func TestHubSubscribeAndUnsubscribe(t *testing.T) {
	h := newTestHub(t, auth.AnonymousAuthenticator{})
	p := connect(t, h, "s1", "u1")

	p.subscribe("a", "/topic/chat/1")
	assert.Equal(t, 1, h.Destinations()["/topic/chat/1"])

	p.send(stomp.Subscribe("a", "/topic/chat/2"))
	f := p.expect(frame.ERROR)
	assert.Equal(t, "duplicate subscription", f.Header.Get(frame.Message))
}

func TestUnsubscribeRemovesDestination(t *testing.T) {
	h := newTestHub(t, auth.AnonymousAuthenticator{})
	p := connect(t, h, "s1", "u1")
	p.subscribe("a", "/topic/chat/1")

	u := stomp.Unsubscribe("a")
	u.Header.Set(frame.Receipt, "r1")
	p.send(u)
	p.expect(frame.RECEIPT)

	_, ok := h.Destinations()["/topic/chat/1"]
	assert.False(t, ok)
	info := h.SessionInfo("s1")
	require.NotNil(t, info)
	assert.Empty(t, info.Subscriptions)
}

func TestSendRoutesApplicationPrefix(t *testing.T) {
	h := newTestHub(t, auth.AnonymousAuthenticator{})
	sender := connect(t, h, "s1", "buyer")
	receiver := connect(t, h, "s2", "distributor")
	receiver.subscribe("r", "/topic/chat/5")

	sender.send(stomp.Send("/app/chat/5", []byte(`{"content":"hi"}`)))

	m := receiver.expect(frame.MESSAGE)
	assert.Equal(t, "r", m.Header.Get(frame.Subscription))
	assert.Equal(t, "/topic/chat/5", m.Header.Get(frame.Destination))
	assert.Equal(t, stomp.ContentTypeJSON, m.Header.Get(frame.ContentType))
	assert.Equal(t, "buyer", m.Header.Get("sender"))
	assert.NotEmpty(t, m.Header.Get(frame.MessageId))
	assert.JSONEq(t, `{"content":"hi"}`, string(m.Body))
	sender.expectNothing()
}

func TestPublishDoesNotReachUnsubscribed(t *testing.T) {
	h := newTestHub(t, auth.AnonymousAuthenticator{})
	p1 := connect(t, h, "s1", "u1")
	p2 := connect(t, h, "s2", "u2")
	p1.subscribe("a", "/topic/private")

	h.Publish(types.Message{Destination: "/topic/private", Body: []byte(`1`)})
	p1.expect(frame.MESSAGE)
	p2.expectNothing()
}

func TestPublishToUser(t *testing.T) {
	h := newTestHub(t, auth.AnonymousAuthenticator{})
	alice := connect(t, h, "s1", "alice")
	bob := connect(t, h, "s2", "bob")
	alice.subscribe("n", "/user/queue/notifications")
	bob.subscribe("n", "/user/queue/notifications")
	assert.Equal(t, 1, h.Destinations()["/user/alice/queue/notifications"])

	h.PublishToUser("alice", types.Message{Destination: "/user/queue/notifications", Body: []byte(`{"id":1}`)})

	m := alice.expect(frame.MESSAGE)
	assert.Equal(t, "/user/queue/notifications", m.Header.Get(frame.Destination))
	bob.expectNothing()
}

func TestSendToUserDestinationRejected(t *testing.T) {
	h := newTestHub(t, auth.AnonymousAuthenticator{})
	victim := connect(t, h, "s1", "victim")
	attacker := connect(t, h, "s2", "attacker")
	victim.subscribe("n", "/user/queue/notifications")

	attacker.send(stomp.Send("/user/victim/queue/notifications", []byte(`{"id":1,"message":"spoofed"}`)))
	f := attacker.expect(frame.ERROR)
	assert.Equal(t, "forbidden destination", f.Header.Get(frame.Message))
	assert.True(t, attacker.closed())
	victim.expectNothing()

	other := connect(t, h, "s3", "victim")
	other.send(stomp.Send("/user/queue/notifications", []byte(`{"id":2,"message":"self"}`)))
	other.expect(frame.ERROR)
	victim.expectNothing()
}

func TestDisconnectWithReceipt(t *testing.T) {
	h := newTestHub(t, auth.AnonymousAuthenticator{})
	p := connect(t, h, "s1", "u1")
	p.subscribe("a", "/topic/chat/1")

	p.send(stomp.Disconnect("bye"))
	r := p.expect(frame.RECEIPT)
	assert.Equal(t, "bye", r.Header.Get(frame.ReceiptId))
	assert.True(t, p.closed())

	require.Eventually(t, func() bool { return h.SessionCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, h.Destinations())
}

func TestUnsupportedCommand(t *testing.T) {
	h := newTestHub(t, auth.AnonymousAuthenticator{})
	p := connect(t, h, "s1", "u1")

	p.send(frame.New(frame.BEGIN, frame.Transaction, "tx1"))
	f := p.expect(frame.ERROR)
	assert.Equal(t, "unsupported frame", f.Header.Get(frame.Message))
}

func TestHeartBeatsIgnored(t *testing.T) {
	h := newTestHub(t, auth.AnonymousAuthenticator{})
	p := connect(t, h, "s1", "u1")

	p.send(nil)
	p.expectNothing()
	assert.Equal(t, 1, h.SessionCount())
}

type fakeBridge struct {
	published chan types.Message
}

func (b *fakeBridge) Publish(msg types.Message) error {
	b.published <- msg
	return nil
}

func (b *fakeBridge) Available() bool { return true }

func TestBridgeReceivesLocalSends(t *testing.T) {
	h := newTestHub(t, auth.AnonymousAuthenticator{})
	b := &fakeBridge{published: make(chan types.Message, 4)}
	h.SetBridge(b)

	p := connect(t, h, "s1", "u1")
	p.send(stomp.Send("/app/chat/3", []byte(`"x"`)))

	select {
	case msg := <-b.published:
		assert.Equal(t, "/topic/chat/3", msg.Destination)
		assert.Equal(t, "u1", msg.Headers["sender"])
	case <-time.After(time.Second):
		t.Fatal("bridge did not receive message")
	}
}

func TestBroadcastToLocalSkipsBridge(t *testing.T) {
	h := newTestHub(t, auth.AnonymousAuthenticator{})
	b := &fakeBridge{published: make(chan types.Message, 4)}
	h.SetBridge(b)

	p := connect(t, h, "s1", "u1")
	p.subscribe("a", "/topic/chat/3")

	h.BroadcastToLocal(types.Message{Destination: "/topic/chat/3", ID: "remote-1", Body: []byte(`"r"`)})
	m := p.expect(frame.MESSAGE)
	assert.Equal(t, "remote-1", m.Header.Get(frame.MessageId))
	assert.Empty(t, b.published)
}

func TestPublishBurstKeepsSession(t *testing.T) {
	opts := DefaultOptions()
	opts.SendBuffer = 1
	h := New(opts, auth.AnonymousAuthenticator{}, zerolog.Nop())
	go h.Run()
	t.Cleanup(h.Stop)

	p := connect(t, h, "s1", "u1")
	p.subscribe("a", "/topic/flood")

	for range 200 {
		h.Publish(types.Message{Destination: "/topic/flood", Body: []byte(`0`)})
	}
	// The hub keeps serving other work while the reader is stalled.
	require.Eventually(t, func() bool { return h.SessionCount() == 1 }, time.Second, 5*time.Millisecond)
	p.expect(frame.MESSAGE)
}

func TestUserDestination(t *testing.T) {
	assert.Equal(t, "/user/42/queue/notifications", UserDestination("/user", "42", "/queue/notifications"))
}
