// Package websocket connects the upstream session to the game server over a
// gorilla websocket.
package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/emitter/internal/core/observability/log"
	"github.com/zeusync/emitter/internal/core/protocol/command"
	"github.com/zeusync/emitter/internal/core/protocol/upstream"
)

var (
	_ upstream.Dialer = (*Dialer)(nil)
	_ upstream.Link   = (*Link)(nil)
)

var ErrLinkClosed = errors.New("websocket link is closed")

type Config struct {
	URL                string
	Origin             string
	Header             http.Header
	DialTimeout        time.Duration
	WriteTimeout       time.Duration
	PingInterval       time.Duration
	MaxFrameSize       int64
	InsecureSkipVerify bool
}

func DefaultConfig() Config {
	return Config{
		DialTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		PingInterval: 30 * time.Second,
		MaxFrameSize: 4 << 20,
	}
}

type Dialer struct {
	config Config
	dialer *websocket.Dialer
	logger log.Log
}

func NewDialer(config Config, logger log.Log) *Dialer {
	if logger == nil {
		logger = log.Provide()
	}
	d := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: config.DialTimeout,
		ReadBufferSize:   4096,
		WriteBufferSize:  1024,
	}
	if config.InsecureSkipVerify {
		d.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Dialer{
		config: config,
		dialer: d,
		logger: logger.With(log.String("component", "websocket")),
	}
}

func (d *Dialer) Dial(ctx context.Context) (upstream.Link, error) {
	header := d.config.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if d.config.Origin != "" {
		header.Set("Origin", d.config.Origin)
	}

	conn, resp, err := d.dialer.DialContext(ctx, d.config.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", d.config.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", d.config.URL, err)
	}
	d.logger.Debug("dialed", log.String("url", d.config.URL), log.String("remote_addr", conn.RemoteAddr().String()))

	return newLink(conn, d.config, d.logger), nil
}

// Link is a client websocket connection. Frames arrive as text or binary
// messages and commands are written as text messages.
type Link struct {
	conn   *websocket.Conn
	config Config
	logger log.Log

	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}

	pongs atomic.Uint64
}

func newLink(conn *websocket.Conn, config Config, logger log.Log) *Link {
	if config.MaxFrameSize > 0 {
		conn.SetReadLimit(config.MaxFrameSize)
	}
	l := &Link{
		conn:   conn,
		config: config,
		logger: logger,
		done:   make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		l.pongs.Add(1)
		return nil
	})
	if config.PingInterval > 0 {
		go l.keepAlive()
	}
	return l
}

func (l *Link) keepAlive() {
	ticker := time.NewTicker(l.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := l.conn.WriteControl(websocket.PingMessage, nil, l.controlDeadline()); err != nil {
				l.logger.Warn("ping failed", log.Error(err))
				return
			}
		case <-l.done:
			return
		}
	}
}

// ReadFrame blocks for the next data message. Cancelling ctx closes the
// link, as gorilla reads cannot be interrupted otherwise.
func (l *Link) ReadFrame(ctx context.Context) ([]byte, error) {
	if l.closed.Load() {
		return nil, ErrLinkClosed
	}
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	for {
		kind, data, err := l.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (l *Link) WriteCommand(ctx context.Context, cmd command.Command) error {
	if l.closed.Load() {
		return ErrLinkClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	deadline := time.Time{}
	if l.config.WriteTimeout > 0 {
		deadline = time.Now().Add(l.config.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = l.conn.SetWriteDeadline(deadline)

	return l.conn.WriteMessage(websocket.TextMessage, []byte(cmd))
}

func (l *Link) controlDeadline() time.Time {
	if l.config.WriteTimeout > 0 {
		return time.Now().Add(l.config.WriteTimeout)
	}
	return time.Now().Add(10 * time.Second)
}

// Pongs returns the number of pong replies received.
func (l *Link) Pongs() uint64 {
	return l.pongs.Load()
}

func (l *Link) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(l.done)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

	return l.conn.Close()
}
