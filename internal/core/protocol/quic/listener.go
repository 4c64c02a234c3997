package quic

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zeusync/emitter/internal/core/observability/log"
)

// Listener accepts QUIC links. Only local test servers listen; the session
// always dials.
type Listener struct {
	listener *quic.Listener
	config   Config
	logger   log.Log
}

func Listen(addr string, tlsConfig *tls.Config, config Config, logger log.Log) (*Listener, error) {
	if logger == nil {
		logger = log.Provide()
	}
	if tlsConfig == nil {
		return nil, fmt.Errorf("listen %s: tls config is required", addr)
	}
	tlsConfig = tlsConfig.Clone()
	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig.NextProtos = []string{ALPN}
	}

	ln, err := quic.ListenAddr(addr, tlsConfig, config.quicConfig())
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Listener{
		listener: ln,
		config:   config,
		logger:   logger.With(log.String("component", "quic_listener")),
	}, nil
}

// Accept waits for a peer and its stream.
func (l *Listener) Accept(ctx context.Context) (*Link, error) {
	conn, err := l.listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "no stream")
		return nil, fmt.Errorf("accept stream: %w", err)
	}
	l.logger.Debug("peer connected", log.String("remote_addr", conn.RemoteAddr().String()))
	return newLink(conn, stream, l.config, l.logger), nil
}

func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

func (l *Listener) Close() error {
	return l.listener.Close()
}

// SelfSignedTLS returns a server config with a fresh self-signed certificate
// for localhost.
func SelfSignedTLS() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"emitter"}},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:              []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}, nil
}
