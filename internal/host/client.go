package host

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	apperrors "scriptls/internal/core/errors"
	"scriptls/internal/engine/loop"
	"scriptls/internal/shared/observability"
	"scriptls/internal/shared/util"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	Address          string
	RequestDelay     time.Duration
	StallTimeout     time.Duration
	ConnectTimeout   time.Duration
	ReconnectBackoff time.Duration
	DialTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Address:          "127.0.0.1:27099",
		RequestDelay:     time.Second,
		StallTimeout:     time.Second,
		ConnectTimeout:   20 * time.Second,
		ReconnectBackoff: 5 * time.Second,
		DialTimeout:      2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.RequestDelay <= 0 {
		c.RequestDelay = d.RequestDelay
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = d.StallTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = d.ReconnectBackoff
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	return c
}

// Handler receives connection events and messages on the loop goroutine.
type Handler interface {
	ConnectionOpened(session string)
	ConnectionClosed(session string, err error)
	HandleMessage(msg Message)
}

const writeTimeout = time.Second

// Client keeps a connection to the host open, reconnecting after failures.
// Its state is owned by the loop; socket reads and dials happen on their own
// goroutines and post results back.
type Client struct {
	l       *loop.Loop
	cfg     Config
	handler Handler
	warn    *util.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	conn      net.Conn
	session   string
	request   *loop.Timer
	reconnect *loop.Timer
	closed    bool
}

func NewClient(cfg Config, l *loop.Loop, handler Handler) *Client {
	return &Client{
		l:       l,
		cfg:     cfg.withDefaults(),
		handler: handler,
		warn:    util.NewLimiter(1.0/30.0, 1),
	}
}

// Start begins connecting. It must be called on the loop goroutine.
func (c *Client) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.connect()
}

// Reconnect drops the current connection, telling the host first, and dials
// again immediately.
func (c *Client) Reconnect() {
	c.connect()
}

func (c *Client) Connected() bool {
	return c.conn != nil
}

func (c *Client) Session() string {
	return c.session
}

func (c *Client) connect() {
	if c.closed || c.ctx == nil {
		return
	}
	c.reconnect.Stop()
	c.reconnect = nil
	if c.conn != nil {
		c.sendDisconnect()
		c.teardown(nil)
	}

	session := uuid.NewString()
	c.session = session
	ctx := c.ctx
	go func() {
		dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
		c.l.Post(func() { c.dialed(session, conn, err) })
	}()
}

func (c *Client) dialed(session string, conn net.Conn, err error) {
	if session != c.session || c.closed {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.warnf("host connection failed", "address", c.cfg.Address, "error", err)
		c.scheduleReconnect()
		return
	}

	c.conn = conn
	observability.HostReconnectsTotal.Inc()
	c.handler.ConnectionOpened(session)
	go c.readLoop(session, conn)

	c.request = c.l.AfterFunc(c.cfg.RequestDelay, func() {
		if c.session != session || c.conn != conn {
			return
		}
		if err := c.Send(EncodeMessage(MsgRequestDebugDatabase, nil)); err != nil {
			slog.Debug("type database request failed", "error", err)
		}
	})
}

func (c *Client) readLoop(session string, conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		msg, err := ReadMessage(r)
		if err != nil {
			if apperrors.IsCode(err, apperrors.CodeProtocol) {
				slog.Warn("skipping malformed host frame", "session", session, "error", err)
				continue
			}
			c.l.Post(func() { c.fail(session, err) })
			return
		}
		c.l.Post(func() { c.deliver(session, msg) })
	}
}

func (c *Client) deliver(session string, msg Message) {
	if session != c.session || c.conn == nil {
		return
	}
	c.handler.HandleMessage(msg)
}

func (c *Client) fail(session string, err error) {
	if session != c.session || c.conn == nil {
		return
	}
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	if err != nil {
		c.warnf("host connection lost", "address", c.cfg.Address, "error", err)
	}
	c.teardown(err)
	c.scheduleReconnect()
}

func (c *Client) teardown(err error) {
	c.request.Stop()
	c.request = nil
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	c.handler.ConnectionClosed(c.session, err)
}

func (c *Client) scheduleReconnect() {
	if c.closed || c.reconnect.Active() {
		return
	}
	c.reconnect = c.l.AfterFunc(c.cfg.ReconnectBackoff, c.connect)
}

// Send writes an encoded frame to the host.
func (c *Client) Send(frame []byte) error {
	if c.conn == nil {
		return apperrors.New(apperrors.CodeUnavailable, "not connected to host")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.conn.Write(frame); err != nil {
		session := c.session
		c.fail(session, err)
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "write to host")
	}
	return nil
}

func (c *Client) sendDisconnect() {
	if c.conn == nil {
		return
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, _ = c.conn.Write(EncodeMessage(MsgDisconnect, nil))
}

// Close says goodbye to the host and stops reconnecting.
func (c *Client) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.reconnect.Stop()
	if c.conn != nil {
		c.sendDisconnect()
		c.teardown(nil)
	}
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Client) warnf(msg string, args ...any) {
	if c.warn.Allow() {
		if n := c.warn.TakeDropped(); n > 0 {
			args = append(args, "suppressed", n)
		}
		slog.Warn(msg, args...)
		return
	}
	slog.Debug(msg, args...)
}
