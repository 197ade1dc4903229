package host

import (
	"bufio"
	"context"
	"net"
	apperrors "scriptls/internal/core/errors"
	"scriptls/internal/engine/loop"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerEvents struct {
	opened   chan string
	closed   chan string
	messages chan Message
}

func newHandlerEvents() *handlerEvents {
	return &handlerEvents{
		opened:   make(chan string, 8),
		closed:   make(chan string, 8),
		messages: make(chan Message, 8),
	}
}

func (h *handlerEvents) ConnectionOpened(session string)          { h.opened <- session }
func (h *handlerEvents) ConnectionClosed(session string, _ error) { h.closed <- session }
func (h *handlerEvents) HandleMessage(msg Message)                { h.messages <- msg }

type clientFixture struct {
	ctx      context.Context
	loop     *loop.Loop
	listener net.Listener
	events   *handlerEvents
	client   *Client
}

func newClientFixture(t *testing.T) *clientFixture {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	l := loop.New()
	go func() { _ = l.Run(ctx) }()

	f := &clientFixture{ctx: ctx, loop: l, listener: ln, events: newHandlerEvents()}
	f.client = NewClient(Config{
		Address:          ln.Addr().String(),
		RequestDelay:     20 * time.Millisecond,
		ReconnectBackoff: 50 * time.Millisecond,
		DialTimeout:      time.Second,
	}, l, f.events)
	require.NoError(t, l.Call(ctx, func() { f.client.Start(ctx) }))
	t.Cleanup(func() { _ = l.Call(ctx, f.client.Close) })
	return f
}

func (f *clientFixture) accept(t *testing.T) (net.Conn, *bufio.Reader) {
	t.Helper()
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := f.listener.Accept()
		ch <- result{conn, err}
	}()
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		t.Cleanup(func() { _ = r.conn.Close() })
		_ = r.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		return r.conn, bufio.NewReader(r.conn)
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
		return nil, nil
	}
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		var zero T
		return zero
	}
}

func TestClient_RequestsTypesAndDeliversMessages(t *testing.T) {
	f := newClientFixture(t)
	conn, r := f.accept(t)
	session := waitFor(t, f.events.opened)
	assert.NotEmpty(t, session)

	msg, err := ReadMessage(r)
	require.NoError(t, err)
	assert.Equal(t, MsgRequestDebugDatabase, msg.Type)

	_, err = conn.Write(EncodeMessage(MsgDebugDatabase, []byte(`{"AActor":{}}`)))
	require.NoError(t, err)
	got := waitFor(t, f.events.messages)
	assert.Equal(t, MsgDebugDatabase, got.Type)
	assert.Equal(t, `{"AActor":{}}`, string(got.Body))
}

func TestClient_ReconnectsAfterHostCloses(t *testing.T) {
	f := newClientFixture(t)
	conn, _ := f.accept(t)
	first := waitFor(t, f.events.opened)
	require.NoError(t, conn.Close())

	assert.Equal(t, first, waitFor(t, f.events.closed))
	f.accept(t)
	second := waitFor(t, f.events.opened)
	assert.NotEqual(t, first, second)
}

func TestClient_ReconnectSendsDisconnect(t *testing.T) {
	f := newClientFixture(t)
	_, r := f.accept(t)
	waitFor(t, f.events.opened)

	require.NoError(t, f.loop.Call(f.ctx, f.client.Reconnect))
	for {
		msg, err := ReadMessage(r)
		require.NoError(t, err)
		if msg.Type == MsgDisconnect {
			break
		}
		assert.Equal(t, MsgRequestDebugDatabase, msg.Type)
	}
	f.accept(t)
	waitFor(t, f.events.opened)
}

func TestClient_SendWithoutConnection(t *testing.T) {
	l := loop.New()
	c := NewClient(Config{Address: "127.0.0.1:1"}, l, newHandlerEvents())
	err := c.Send(EncodeMessage(MsgFindAssets, nil))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnavailable))
	assert.False(t, c.Connected())
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{StallTimeout: 3 * time.Second}.withDefaults()
	assert.Equal(t, 3*time.Second, cfg.StallTimeout)
	assert.Equal(t, DefaultConfig().Address, cfg.Address)
	assert.Equal(t, DefaultConfig().ConnectTimeout, cfg.ConnectTimeout)
}
