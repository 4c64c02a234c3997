// Package quic carries the upstream session over a single bidirectional
// QUIC stream. Both directions use length-prefixed frames.
package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zeusync/emitter/internal/core/observability/log"
	"github.com/zeusync/emitter/internal/core/protocol/command"
	"github.com/zeusync/emitter/internal/core/protocol/upstream"
)

// ALPN is the application protocol negotiated by both ends.
const ALPN = "emitter-quic"

const (
	DefaultIdleTimeout  = 30 * time.Second
	DefaultKeepAlive    = 15 * time.Second
	DefaultMaxFrameSize = 4 << 20
)

var (
	_ upstream.Dialer = (*Dialer)(nil)
	_ upstream.Link   = (*Link)(nil)
)

var ErrLinkClosed = errors.New("quic link is closed")

type Config struct {
	Addr         string
	TLSConfig    *tls.Config
	IdleTimeout  time.Duration
	KeepAlive    time.Duration
	WriteTimeout time.Duration
	MaxFrameSize int64
}

func DefaultConfig() Config {
	return Config{
		IdleTimeout:  DefaultIdleTimeout,
		KeepAlive:    DefaultKeepAlive,
		WriteTimeout: 5 * time.Second,
		MaxFrameSize: DefaultMaxFrameSize,
	}
}

func (c Config) quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  c.IdleTimeout,
		KeepAlivePeriod: c.KeepAlive,
	}
}

// clientTLS fills in ALPN and server name.
func (c Config) clientTLS() *tls.Config {
	var cfg *tls.Config
	if c.TLSConfig != nil {
		cfg = c.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS13}
	}
	if len(cfg.NextProtos) == 0 {
		cfg.NextProtos = []string{ALPN}
	}
	if cfg.ServerName == "" {
		host, _, err := net.SplitHostPort(c.Addr)
		if err != nil {
			host = c.Addr
		}
		cfg.ServerName = host
	}
	return cfg
}

type Dialer struct {
	config Config
	logger log.Log
}

func NewDialer(config Config, logger log.Log) *Dialer {
	if logger == nil {
		logger = log.Provide()
	}
	return &Dialer{
		config: config,
		logger: logger.With(log.String("component", "quic")),
	}
}

func (d *Dialer) Dial(ctx context.Context) (upstream.Link, error) {
	conn, err := quic.DialAddr(ctx, d.config.Addr, d.config.clientTLS(), d.config.quicConfig())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.config.Addr, err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "open stream failed")
		return nil, fmt.Errorf("open stream: %w", err)
	}

	link := newLink(conn, stream, d.config, d.logger)
	// the peer only sees the stream once something was written on it
	if err := link.writeFrame(ctx, nil); err != nil {
		_ = link.Close()
		return nil, fmt.Errorf("announce stream: %w", err)
	}

	d.logger.Debug("dialed",
		log.String("addr", d.config.Addr),
		log.String("remote_addr", conn.RemoteAddr().String()),
	)
	return link, nil
}

// Link is one QUIC connection with its single stream.
type Link struct {
	conn   *quic.Conn
	stream *quic.Stream
	config Config
	logger log.Log

	writeMu sync.Mutex
	closed  atomic.Bool
}

func newLink(conn *quic.Conn, stream *quic.Stream, config Config, logger log.Log) *Link {
	return &Link{
		conn:   conn,
		stream: stream,
		config: config,
		logger: logger,
	}
}

// ReadFrame returns the next inbound frame. Cancelling ctx closes the link.
func (l *Link) ReadFrame(ctx context.Context) ([]byte, error) {
	if l.closed.Load() {
		return nil, ErrLinkClosed
	}
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	frame, err := readFrame(l.stream, l.config.MaxFrameSize)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return frame, nil
}

func (l *Link) WriteCommand(ctx context.Context, cmd command.Command) error {
	return l.writeFrame(ctx, []byte(cmd))
}

// WriteFrame pushes a raw frame to the peer. The serving side uses it to
// deliver diffs.
func (l *Link) WriteFrame(ctx context.Context, frame []byte) error {
	return l.writeFrame(ctx, frame)
}

func (l *Link) writeFrame(ctx context.Context, p []byte) error {
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
	_ = l.stream.SetWriteDeadline(deadline)

	return writeFrame(l.stream, p)
}

func (l *Link) RemoteAddr() net.Addr {
	return l.conn.RemoteAddr()
}

func (l *Link) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = l.stream.Close()
	return l.conn.CloseWithError(0, "closed")
}
