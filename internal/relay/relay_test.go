package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/emitter/internal/core/observability/log"
	"github.com/zeusync/emitter/internal/core/protocol/command"
)

type sentCommands struct {
	mu   sync.Mutex
	cmds []command.Command
}

func (s *sentCommands) Send(_ context.Context, cmd command.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, cmd)
	return nil
}

func (s *sentCommands) all() []command.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]command.Command(nil), s.cmds...)
}

func startRelay(t *testing.T, cfg Config) (*Relay, *httptest.Server, *sentCommands) {
	t.Helper()
	sent := &sentCommands{}
	r := New(cfg, sent, log.NewNop())
	s := httptest.NewServer(r.Handler())
	t.Cleanup(func() {
		_ = r.Close()
		s.Close()
	})
	return r, s, sent
}

func dial(t *testing.T, s *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	return string(data)
}

func TestBroadcastToClients(t *testing.T) {
	r, s, _ := startRelay(t, DefaultConfig())

	a := dial(t, s, "")
	b := dial(t, s, "")
	require.Eventually(t, func() bool { return r.Clients() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, r.Consume(context.Background(), []byte(`{"t":"x"}`)))
	assert.Equal(t, `{"t":"x"}`, readText(t, a))
	assert.Equal(t, `{"t":"x"}`, readText(t, b))
}

func TestClientCommandsRelayedUpstream(t *testing.T) {
	_, s, sent := startRelay(t, DefaultConfig())
	conn := dial(t, s, "")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("party&a=inv&id=9")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("ignored")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("friends&a=show")))

	require.Eventually(t, func() bool { return len(sent.all()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []command.Command{"party&a=inv&id=9", "friends&a=show"}, sent.all())
}

func TestTokenRequired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Token = "sekret"
	_, s, _ := startRelay(t, cfg)

	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(u+"?token=wrong", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	dial(t, s, "?token=sekret")
}

func TestOriginAllowList(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"https://game.example"}
	_, s, _ := startRelay(t, cfg)

	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	_, _, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": {"https://game.example"}})
	require.NoError(t, err)
	_ = conn.Close()
}

func TestHistoryReplayedOnConnect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.History = 2
	r, s, _ := startRelay(t, cfg)

	for _, f := range []string{`{"t":"1"}`, `{"t":"2"}`, `{"t":"3"}`} {
		require.NoError(t, r.Consume(context.Background(), []byte(f)))
	}

	conn := dial(t, s, "")
	assert.Equal(t, `{"t":"2"}`, readText(t, conn))
	assert.Equal(t, `{"t":"3"}`, readText(t, conn))
}

func TestSlowClientDropped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClientBuffer = 1
	r, s, _ := startRelay(t, cfg)

	// never reads, so its buffer fills up
	dial(t, s, "")
	require.Eventually(t, func() bool { return r.Clients() == 1 }, time.Second, 5*time.Millisecond)

	big := []byte(`{"t":"` + strings.Repeat("x", 1<<20) + `"}`)
	require.Eventually(t, func() bool {
		_ = r.Consume(context.Background(), big)
		return r.Clients() == 0
	}, 5*time.Second, time.Millisecond)
	assert.Positive(t, r.dropped.Load())
}

func TestHealthAndMetrics(t *testing.T) {
	r, s, _ := startRelay(t, DefaultConfig())
	r.AddStats("dispatch", func() any { return map[string]int{"frames": 3} })
	require.NoError(t, r.Consume(context.Background(), []byte(`{}`)))

	resp, err := http.Get(s.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var metrics map[string]map[string]float64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&metrics))
	assert.Equal(t, float64(3), metrics["dispatch"]["frames"])
	assert.Equal(t, float64(1), metrics["relay"]["broadcast"])

	require.NoError(t, r.Close())
	require.ErrorIs(t, r.Consume(context.Background(), []byte(`{}`)), ErrRelayClosed)

	resp, err = http.Get(s.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCommandRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CommandRate = 2
	cfg.CommandWindow = time.Hour
	r, s, sent := startRelay(t, cfg)
	conn := dial(t, s, "")

	for _, c := range []string{"emo&a=kiss&id=1", "emo&a=kiss&id=2", "emo&a=kiss&id=3"} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(c)))
	}

	require.Eventually(t, func() bool { return r.throttled.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []command.Command{"emo&a=kiss&id=1", "emo&a=kiss&id=2"}, sent.all())
}

func TestCommandLimitWindow(t *testing.T) {
	l := newCommandLimit(1, time.Second)
	now := time.Unix(100, 0)

	assert.True(t, l.allow(now))
	assert.False(t, l.allow(now.Add(500*time.Millisecond)))
	assert.True(t, l.allow(now.Add(time.Second)))

	var unlimited *commandLimit
	assert.True(t, unlimited.allow(now))
	assert.True(t, newCommandLimit(0, time.Second).allow(now))
}
