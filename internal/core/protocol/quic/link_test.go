package quic

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/emitter/internal/core/observability/log"
	"github.com/zeusync/emitter/internal/core/protocol/command"
)

func TestFrameCodec(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, nil))
	require.NoError(t, writeFrame(&buf, []byte(`{"t":"a"}`)))
	require.NoError(t, writeFrame(&buf, []byte("clan&a=members")))

	frame, err := readFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, `{"t":"a"}`, string(frame), "keep-alive frames are skipped")

	frame, err = readFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "clan&a=members", string(frame))

	_, err = readFrame(&buf, 0)
	require.ErrorIs(t, err, io.EOF)
}

func TestFrameLimits(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, bytes.Repeat([]byte("x"), 64)))
	_, err := readFrame(&buf, 16)
	require.ErrorIs(t, err, ErrFrameTooLarge)

	buf.Reset()
	require.NoError(t, writeFrame(&buf, []byte("truncated")))
	_, err = readFrame(bytes.NewReader(buf.Bytes()[:8]), 0)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func clientTLSFor(t *testing.T, server *tls.Config) *tls.Config {
	t.Helper()
	cert, err := x509.ParseCertificate(server.Certificates[0].Certificate[0])
	require.NoError(t, err)
	pool := x509.NewCertPool()
	pool.AddCert(cert)
	return &tls.Config{RootCAs: pool, ServerName: "localhost", MinVersion: tls.VersionTLS13}
}

func TestLinkRoundTrip(t *testing.T) {
	serverTLS, err := SelfSignedTLS()
	require.NoError(t, err)

	ln, err := Listen("127.0.0.1:0", serverTLS, DefaultConfig(), log.NewNop())
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan *Link, 1)
	go func() {
		link, err := ln.Accept(ctx)
		if err != nil {
			t.Error(err)
			close(accepted)
			return
		}
		accepted <- link
	}()

	cfg := DefaultConfig()
	cfg.Addr = ln.Addr().String()
	cfg.TLSConfig = clientTLSFor(t, serverTLS)
	client, err := NewDialer(cfg, log.NewNop()).Dial(ctx)
	require.NoError(t, err)
	defer client.Close()

	server, ok := <-accepted
	require.True(t, ok)
	defer server.Close()

	require.NoError(t, server.WriteFrame(ctx, []byte(`{"w":"hi"}`)))
	frame, err := client.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"w":"hi"}`, string(frame))

	require.NoError(t, client.WriteCommand(ctx, command.ClanMembers))
	got, err := server.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, "clan&a=members", string(got))

	require.NoError(t, client.Close())
	require.ErrorIs(t, client.WriteCommand(ctx, command.FriendsShow), ErrLinkClosed)
}

func TestListenRequiresTLS(t *testing.T) {
	_, err := Listen("127.0.0.1:0", nil, DefaultConfig(), log.NewNop())
	require.Error(t, err)
}
