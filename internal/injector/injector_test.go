package injector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/emitter/internal/config"
	"github.com/zeusync/emitter/internal/core/protocol/quic"
	ws "github.com/zeusync/emitter/internal/core/protocol/websocket"
	"github.com/zeusync/emitter/internal/relay"
)

var replies = map[string]string{
	"friends&a=show": `{"friends":["12","Ann","/o.gif","40","38","m","Ithan","10","11","online","0"]}`,
	"clan&a=members": `{"members":[]}`,
}

// fakeGame answers the bootstrap commands and records everything it gets.
func fakeGame(t *testing.T) (string, chan string) {
	t.Helper()
	commands := make(chan string, 16)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"w":"Pakiet odrzucony (1)"}`))
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			cmd := string(data)
			commands <- cmd
			for prefix, reply := range replies {
				if strings.HasPrefix(cmd, prefix) {
					_ = conn.WriteMessage(websocket.TextMessage, []byte(reply))
				}
			}
		}
	}))
	t.Cleanup(s.Close)
	return "ws" + strings.TrimPrefix(s.URL, "http"), commands
}

func testConfig(url string) config.Config {
	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.Upstream.URL = url
	cfg.Upstream.PingInterval = 0
	cfg.Upstream.ReconnectAttempts = 0
	cfg.Relay.Enabled = false
	cfg.Rendezvous.RequestTimeout = 2 * time.Second
	return cfg
}

func TestInitializeRunsBootstrap(t *testing.T) {
	url, commands := fakeGame(t)
	cfg := testConfig(url)
	cfg.Upstream.FetchPeers = true

	app, cleanup, err := Initialize(cfg)
	require.NoError(t, err)
	defer cleanup()
	assert.Nil(t, app.Relay)
	assert.Nil(t, app.Recorder)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		return app.Pipeline.Metrics().Resolved >= 2
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, "friends&a=show", <-commands)
	assert.Equal(t, "clan&a=members", <-commands)

	assert.GreaterOrEqual(t, app.Pipeline.Metrics().Reencoded, uint64(1))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestInitializeWiresRelayAndRecorder(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1/")
	cfg.Relay.Enabled = true
	cfg.Replay.Enabled = true
	cfg.Replay.Dir = t.TempDir()

	app, cleanup, err := Initialize(cfg)
	require.NoError(t, err)
	require.NotNil(t, app.Relay)
	require.NotNil(t, app.Recorder)

	s := httptest.NewServer(app.Relay.Handler())
	defer s.Close()

	resp, err := http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cleanup()
	_, err = os.Stat(filepath.Join(app.Recorder.Directory(), "frames.jsonl.sz"))
	require.NoError(t, err)
}

func TestInitializeRejectsBadLevel(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1/")
	cfg.Log.Level = "loud"

	_, _, err := Initialize(cfg)
	require.Error(t, err)
}

func TestProvideDialer(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1/")

	d, err := ProvideDialer(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &ws.Dialer{}, d)

	cfg.Upstream.Transport = config.TransportQUIC
	cfg.Upstream.Addr = "127.0.0.1:4433"
	d, err = ProvideDialer(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &quic.Dialer{}, d)

	cfg.Upstream.Transport = "carrier-pigeon"
	_, err = ProvideDialer(cfg, nil)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestProvideConsumer(t *testing.T) {
	assert.Nil(t, ProvideConsumer(nil, nil))

	r := relay.New(relay.DefaultConfig(), nil, nil)
	assert.Same(t, r, ProvideConsumer(r, nil))
}
