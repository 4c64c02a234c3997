package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/emitter/internal/core/events/dispatch"
	"github.com/zeusync/emitter/internal/core/events/registry"
	"github.com/zeusync/emitter/internal/core/events/rendezvous"
	"github.com/zeusync/emitter/internal/core/observability/log"
	"github.com/zeusync/emitter/internal/core/protocol/command"
	"github.com/zeusync/emitter/internal/core/protocol/upstream"
	"github.com/zeusync/emitter/internal/core/wire"
)

// gameServer upgrades every request, pushes frames and records the commands
// it receives.
type gameServer struct {
	origins  chan string
	commands chan string
	push     chan []byte
}

func newGameServer(t *testing.T) (*gameServer, string) {
	t.Helper()
	gs := &gameServer{
		origins:  make(chan string, 4),
		commands: make(chan string, 16),
		push:     make(chan []byte, 16),
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			gs.origins <- r.Header.Get("Origin")
			return true
		},
	}

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			for frame := range gs.push {
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			}
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			gs.commands <- string(data)
		}
	}))
	t.Cleanup(s.Close)

	return gs, "ws" + strings.TrimPrefix(s.URL, "http")
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.Origin = "https://game.example"
	cfg.PingInterval = 0
	return cfg
}

func TestLinkReadsFramesAndWritesCommands(t *testing.T) {
	gs, url := newGameServer(t)

	link, err := NewDialer(testConfig(url), log.NewNop()).Dial(context.Background())
	require.NoError(t, err)
	defer link.Close()

	assert.Equal(t, "https://game.example", <-gs.origins)

	gs.push <- []byte(`{"t":"hello"}`)
	frame, err := link.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"t":"hello"}`, string(frame))

	require.NoError(t, link.WriteCommand(context.Background(), command.PartyInvite(42)))
	select {
	case got := <-gs.commands:
		assert.Equal(t, "party&a=inv&id=42", got)
	case <-time.After(2 * time.Second):
		t.Fatal("command not received")
	}
}

func TestLinkReadHonoursContext(t *testing.T) {
	_, url := newGameServer(t)

	link, err := NewDialer(testConfig(url), log.NewNop()).Dial(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = link.ReadFrame(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.ErrorIs(t, link.WriteCommand(context.Background(), command.FriendsShow), ErrLinkClosed)
	require.NoError(t, link.Close())
}

func TestDialFailure(t *testing.T) {
	s := httptest.NewServer(http.NotFoundHandler())
	defer s.Close()

	_, err := NewDialer(testConfig("ws"+strings.TrimPrefix(s.URL, "http")), log.NewNop()).Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestSessionOverWebsocket(t *testing.T) {
	gs, url := newGameServer(t)

	var forwarded []string
	frames := make(chan struct{}, 8)
	consumer := dispatch.ConsumerFunc(func(_ context.Context, frame []byte) error {
		forwarded = append(forwarded, string(frame))
		frames <- struct{}{}
		return nil
	})
	reg := registry.New()
	table := rendezvous.New()
	pipeline := dispatch.New(reg, table, consumer, dispatch.WithLogger(log.NewNop()))
	_, err := dispatch.RegisterDefaults(reg, nil)
	require.NoError(t, err)

	cfg := upstream.DefaultConfig()
	cfg.ReconnectAttempts = 0
	session := upstream.New(NewDialer(testConfig(url), log.NewNop()), pipeline, cfg, log.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = session.Run(ctx) }()

	requester := command.NewRequester(reg, table, session, 2*time.Second, log.NewNop())
	result := make(chan []wire.Friend, 1)
	go func() {
		friends, err := requester.Friends(ctx)
		if err != nil {
			t.Error(err)
		}
		result <- friends
	}()

	select {
	case got := <-gs.commands:
		require.Equal(t, "friends&a=show", got)
	case <-time.After(2 * time.Second):
		t.Fatal("request not sent upstream")
	}
	gs.push <- []byte(`{"friends":["12","Ann","/o.gif","40","38","m","Ithan","10","11","online","0"],"w":"Pakiet odrzucony"}`)

	select {
	case friends := <-result:
		require.Len(t, friends, 1)
		assert.Equal(t, "Ann", friends[0].Nick)
	case <-time.After(3 * time.Second):
		t.Fatal("request not answered")
	}

	<-frames
	assert.Equal(t, []string{`{}`}, forwarded)
}
