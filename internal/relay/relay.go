// Package relay exposes forwarded frames to local websocket clients and
// passes their text commands upstream.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zeusync/emitter/internal/core/events/dispatch"
	"github.com/zeusync/emitter/internal/core/observability/log"
	"github.com/zeusync/emitter/internal/core/protocol/command"
)

var _ dispatch.Consumer = (*Relay)(nil)

type Config struct {
	Path           string
	ClientBuffer   int
	WriteTimeout   time.Duration
	AllowedOrigins []string
	Token          string
	// History is the number of recent frames replayed to a client when it
	// connects.
	History int
	// CommandRate commands per CommandWindow are relayed for each client;
	// the rest are dropped. Zero means unlimited.
	CommandRate   int
	CommandWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		Path:          "/ws",
		ClientBuffer:  256,
		WriteTimeout:  5 * time.Second,
		CommandWindow: time.Second,
	}
}

// StatsFunc produces a JSON-encodable value for the /metrics endpoint.
type StatsFunc func() any

// Relay is the downstream consumer of the dispatch pipeline. Every frame is
// fanned out to the connected clients; a client that cannot keep up is
// disconnected.
type Relay struct {
	config   Config
	sender   command.Sender
	logger   log.Log
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	history [][]byte
	closed  bool

	statsMu sync.RWMutex
	stats   map[string]StatsFunc

	broadcast atomic.Uint64
	dropped   atomic.Uint64
	commands  atomic.Uint64
	throttled atomic.Uint64
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	closed sync.Once
	limit  *commandLimit
}

func New(config Config, sender command.Sender, logger log.Log) *Relay {
	if config.ClientBuffer <= 0 {
		config.ClientBuffer = DefaultConfig().ClientBuffer
	}
	if config.Path == "" {
		config.Path = DefaultConfig().Path
	}
	if logger == nil {
		logger = log.Provide()
	}

	r := &Relay{
		config:  config,
		sender:  sender,
		logger:  logger.With(log.String("component", "relay")),
		clients: make(map[string]*client),
		stats:   make(map[string]StatsFunc),
	}
	r.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     r.checkOrigin,
	}
	return r
}

// SetSender sets where client commands go. It is meant to be called once
// during wiring.
func (r *Relay) SetSender(sender command.Sender) {
	r.mu.Lock()
	r.sender = sender
	r.mu.Unlock()
}

// AddStats publishes fn under name on /metrics.
func (r *Relay) AddStats(name string, fn StatsFunc) {
	r.statsMu.Lock()
	r.stats[name] = fn
	r.statsMu.Unlock()
}

func (r *Relay) Clients() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Consume broadcasts frame to every client. It never blocks on a client.
func (r *Relay) Consume(_ context.Context, frame []byte) error {
	msg := append([]byte(nil), frame...)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRelayClosed
	}
	if r.config.History > 0 {
		r.history = append(r.history, msg)
		if over := len(r.history) - r.config.History; over > 0 {
			r.history = r.history[over:]
		}
	}
	var slow []*client
	for _, c := range r.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	r.mu.Unlock()

	r.broadcast.Add(1)
	for _, c := range slow {
		r.dropped.Add(1)
		r.logger.Warn("dropping slow client", log.String("client_id", c.id), log.Error(ErrSlowClient))
		r.disconnect(c)
	}
	return nil
}

func (r *Relay) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	if err := r.authorize(req); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Debug("upgrade failed", log.Error(err))
		return
	}

	c := &client{
		id:    uuid.NewString(),
		conn:  conn,
		send:  make(chan []byte, r.config.ClientBuffer),
		done:  make(chan struct{}),
		limit: newCommandLimit(r.config.CommandRate, r.config.CommandWindow),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = conn.Close()
		return
	}
	for _, frame := range r.history {
		select {
		case c.send <- frame:
		default:
		}
	}
	r.clients[c.id] = c
	r.mu.Unlock()

	r.logger.Info("client connected", log.String("client_id", c.id), log.String("remote_addr", conn.RemoteAddr().String()))

	go r.writePump(c)
	r.readPump(req.Context(), c)
}

func (r *Relay) writePump(c *client) {
	defer r.disconnect(c)

	for {
		select {
		case msg := <-c.send:
			if r.config.WriteTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(r.config.WriteTimeout))
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				r.logger.Debug("write failed", log.String("client_id", c.id), log.Error(err))
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump relays every text message as a command until the client goes
// away.
func (r *Relay) readPump(ctx context.Context, c *client) {
	defer r.disconnect(c)

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.logger.Debug("client read failed", log.String("client_id", c.id), log.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage || len(data) == 0 {
			continue
		}

		r.mu.RLock()
		sender := r.sender
		r.mu.RUnlock()
		if sender == nil {
			continue
		}

		cmd := command.Command(data)
		if !c.limit.allow(time.Now()) {
			r.throttled.Add(1)
			r.logger.Warn("command rate limit exceeded",
				log.String("client_id", c.id),
				log.String("command", cmd.String()),
				log.Int("limit", r.config.CommandRate),
			)
			continue
		}
		if err := sender.Send(ctx, cmd); err != nil {
			r.logger.Warn("command not relayed",
				log.String("client_id", c.id),
				log.String("command", cmd.String()),
				log.Error(err),
			)
			continue
		}
		r.commands.Add(1)
	}
}

func (r *Relay) disconnect(c *client) {
	c.closed.Do(func() {
		r.mu.Lock()
		delete(r.clients, c.id)
		r.mu.Unlock()

		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.conn.Close()
		r.logger.Info("client disconnected", log.String("client_id", c.id))
	})
}

// Close disconnects every client and rejects further frames.
func (r *Relay) Close() error {
	r.mu.Lock()
	r.closed = true
	clients := make([]*client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.Unlock()

	for _, c := range clients {
		r.disconnect(c)
	}
	return nil
}

// Handler serves the websocket endpoint, /healthz and /metrics.
func (r *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(r.config.Path, r.handleWebSocket)
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/metrics", r.handleMetrics)
	return mux
}

func (r *Relay) handleHealth(w http.ResponseWriter, _ *http.Request) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()

	if closed {
		http.Error(w, ErrRelayClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (r *Relay) handleMetrics(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := map[string]any{
		"relay": map[string]uint64{
			"clients":   uint64(r.Clients()),
			"broadcast": r.broadcast.Load(),
			"dropped":   r.dropped.Load(),
			"commands":  r.commands.Load(),
		},
	}
	r.statsMu.RLock()
	for name, fn := range r.stats {
		body[name] = fn()
	}
	r.statsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		r.logger.Error("encoding metrics failed", log.Error(err))
	}
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (r *Relay) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("relay listening", log.String("addr", addr), log.String("path", r.config.Path))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = r.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
