package upstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/emitter/internal/core/events/dispatch"
	"github.com/zeusync/emitter/internal/core/observability/log"
	"github.com/zeusync/emitter/internal/core/protocol/command"
)

var (
	_ command.Sender = (*Session)(nil)
	_ Stager         = (*dispatch.Pipeline)(nil)
)

type Config struct {
	SendQueueSize int
	// ReconnectAttempts is the number of consecutive failed dials tolerated
	// before Run gives up. Zero disables reconnection.
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

func DefaultConfig() Config {
	return Config{
		SendQueueSize:     64,
		ReconnectAttempts: 5,
		ReconnectDelay:    2 * time.Second,
	}
}

// Stats is a snapshot of session counters.
type Stats struct {
	ID           string `json:"id"`
	Connected    bool   `json:"connected"`
	FramesRead   uint64 `json:"frames_read"`
	FrameErrors  uint64 `json:"frame_errors"`
	CommandsSent uint64 `json:"commands_sent"`
	Reconnects   uint64 `json:"reconnects"`

	// CyclesInFlight counts staged cycles whose callbacks are still running.
	CyclesInFlight int64 `json:"cycles_in_flight"`
}

// Session keeps a link to the game server open, feeds every inbound frame to
// the processor in arrival order and writes queued commands. With a Stager
// only the intercept and forward phases run in arrival order; handlers of
// consecutive frames may overlap.
type Session struct {
	id        string
	dialer    Dialer
	processor Processor
	config    Config
	logger    log.Log

	hooksMu sync.RWMutex
	hooks   []FrameHook

	queue chan command.Command

	running   atomic.Bool
	connected atomic.Bool
	done      chan struct{}
	closeOnce sync.Once

	framesRead   atomic.Uint64
	frameErrors  atomic.Uint64
	commandsSent atomic.Uint64
	reconnects   atomic.Uint64

	cycles   sync.WaitGroup
	inFlight atomic.Int64
}

func New(dialer Dialer, processor Processor, config Config, logger log.Log) *Session {
	if config.SendQueueSize <= 0 {
		config.SendQueueSize = DefaultConfig().SendQueueSize
	}
	if logger == nil {
		logger = log.Provide()
	}

	id := uuid.NewString()
	return &Session{
		id:        id,
		dialer:    dialer,
		processor: processor,
		config:    config,
		logger:    logger.With(log.String("component", "upstream"), log.String("session_id", id)),
		queue:     make(chan command.Command, config.SendQueueSize),
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Connected() bool {
	return s.connected.Load()
}

// AddHook registers h for every frame read after the call.
func (s *Session) AddHook(h FrameHook) {
	if h == nil {
		return
	}
	s.hooksMu.Lock()
	s.hooks = append(s.hooks, h)
	s.hooksMu.Unlock()
}

func (s *Session) Stats() Stats {
	return Stats{
		ID:           s.id,
		Connected:    s.connected.Load(),
		FramesRead:   s.framesRead.Load(),
		FrameErrors:  s.frameErrors.Load(),
		CommandsSent: s.commandsSent.Load(),
		Reconnects:   s.reconnects.Load(),

		CyclesInFlight: s.inFlight.Load(),
	}
}

// Send queues cmd for the writer. It blocks while the queue is full and
// commands queued while disconnected go out after the next dial.
func (s *Session) Send(ctx context.Context, cmd command.Command) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.queue <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

// Close stops Run and rejects further commands.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Run dials and serves links until ctx is done, Close is called or
// reconnection gives up. It returns nil after Close. Staged cycles outlive
// a lost link; Run cancels their context and waits for them on return.
func (s *Session) Run(ctx context.Context) error {
	if s.closed() {
		return ErrSessionClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)
	defer s.cycles.Wait()

	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	failures := 0
	for {
		link, err := s.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if failures > s.config.ReconnectAttempts {
				s.logger.Error("giving up on upstream", log.Int("attempts", failures), log.Error(err))
				return fmt.Errorf("%w after %d attempts: %w", ErrReconnectFailed, failures, err)
			}
			s.logger.Warn("dial failed", log.Int("attempt", failures), log.Error(err))
			if !s.sleep(ctx) {
				return s.exitErr(ctx)
			}
			continue
		}

		failures = 0
		s.logger.Info("upstream connected")
		err = s.serve(ctx, cycleCtx, link)
		if s.closed() || ctx.Err() != nil {
			return s.exitErr(ctx)
		}
		if s.config.ReconnectAttempts == 0 {
			return err
		}

		s.reconnects.Add(1)
		s.logger.Warn("upstream link lost", log.Error(err))
		if !s.sleep(ctx) {
			return s.exitErr(ctx)
		}
	}
}

func (s *Session) exitErr(ctx context.Context) error {
	if s.closed() {
		return nil
	}
	return ctx.Err()
}

func (s *Session) sleep(ctx context.Context) bool {
	if s.config.ReconnectDelay <= 0 {
		return true
	}
	timer := time.NewTimer(s.config.ReconnectDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	}
}

func (s *Session) serve(ctx, cycleCtx context.Context, link Link) error {
	s.connected.Store(true)
	defer s.connected.Store(false)

	group, groupCtx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(groupCtx, func() { _ = link.Close() })
	defer stop()

	group.Go(func() error {
		select {
		case <-groupCtx.Done():
			return nil
		case <-s.done:
			return ErrSessionClosed
		}
	})
	group.Go(func() error { return s.readLoop(groupCtx, cycleCtx, link) })
	group.Go(func() error { return s.writeLoop(groupCtx, link) })

	err := group.Wait()
	_ = link.Close()
	return err
}

func (s *Session) readLoop(ctx, cycleCtx context.Context, link Link) error {
	stager, staged := s.processor.(Stager)
	for {
		frame, err := link.ReadFrame(ctx)
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		s.framesRead.Add(1)

		s.hooksMu.RLock()
		for _, h := range s.hooks {
			h(frame)
		}
		s.hooksMu.RUnlock()

		// the pipeline logs decode failures itself
		if !staged {
			if _, err := s.processor.Process(ctx, frame); err != nil {
				s.frameErrors.Add(1)
			}
			continue
		}
		cycle, err := stager.Begin(cycleCtx, frame)
		if err != nil {
			s.frameErrors.Add(1)
			continue
		}
		s.finish(cycle)
	}
}

func (s *Session) finish(cycle *dispatch.Cycle) {
	s.cycles.Add(1)
	s.inFlight.Add(1)
	go func() {
		defer s.cycles.Done()
		defer s.inFlight.Add(-1)
		cycle.Finish()
	}()
}

func (s *Session) writeLoop(ctx context.Context, link Link) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return ErrSessionClosed
		case cmd := <-s.queue:
			if err := link.WriteCommand(ctx, cmd); err != nil {
				s.logger.Warn("command dropped", log.String("command", cmd.String()), log.Error(err))
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return fmt.Errorf("write command: %w", err)
			}
			s.commandsSent.Add(1)
		}
	}
}
