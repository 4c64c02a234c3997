package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zeusync/emitter/internal/core/events/registry"
	"github.com/zeusync/emitter/internal/core/events/rendezvous"
	"github.com/zeusync/emitter/internal/core/observability/log"
	"github.com/zeusync/emitter/internal/core/wire"
	"github.com/zeusync/emitter/pkg/concurrent"
)

const tracerName = "github.com/zeusync/emitter/internal/core/events/dispatch"

// Pipeline runs the dispatch cycle for every incoming frame: decode,
// intercept, forward, handle, handle-after and rendezvous resolution.
// Process and Begin are meant to be called by one reader at a time; the
// Cycles Begin returns may be finished on other goroutines.
type Pipeline struct {
	registry *registry.Registry
	table    *rendezvous.Table
	consumer Consumer
	state    *wire.State

	logger       log.Log
	tracer       trace.Tracer
	handlerLimit int

	obsMu     sync.RWMutex
	observers map[Observer]struct{}

	counters counters
}

type counters struct {
	frames          atomic.Uint64
	decodeErrors    atomic.Uint64
	forwarded       atomic.Uint64
	reencoded       atomic.Uint64
	forwardErrors   atomic.Uint64
	interceptorsRun atomic.Uint64
	handlersRun     atomic.Uint64
	callbackErrors  atomic.Uint64
	suppressed      atomic.Uint64
	resolved        atomic.Uint64
}

type Option func(*Pipeline)

func WithLogger(logger log.Log) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// WithState makes the pipeline fold every decoded frame into state before
// interceptors run.
func WithState(state *wire.State) Option {
	return func(p *Pipeline) {
		p.state = state
	}
}

// WithHandlerLimit caps the number of handlers of one category running at
// the same time. Zero means no cap.
func WithHandlerLimit(n int) Option {
	return func(p *Pipeline) {
		p.handlerLimit = n
	}
}

func WithObserver(obs Observer) Option {
	return func(p *Pipeline) {
		p.AddObserver(obs)
	}
}

func New(reg *registry.Registry, table *rendezvous.Table, consumer Consumer, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:  reg,
		table:     table,
		consumer:  consumer,
		logger:    log.Provide(),
		tracer:    otel.Tracer(tracerName),
		observers: make(map[Observer]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(log.String("component", "dispatch"))
	return p
}

func (p *Pipeline) Registry() *registry.Registry {
	return p.registry
}

func (p *Pipeline) Rendezvous() *rendezvous.Table {
	return p.table
}

func (p *Pipeline) State() *wire.State {
	return p.state
}

// SetConsumer replaces the downstream consumer. It must not be called while
// Process runs.
func (p *Pipeline) SetConsumer(c Consumer) {
	p.consumer = c
}

func (p *Pipeline) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	p.obsMu.Lock()
	p.observers[obs] = struct{}{}
	p.obsMu.Unlock()
}

func (p *Pipeline) RemoveObserver(obs Observer) {
	p.obsMu.Lock()
	delete(p.observers, obs)
	p.obsMu.Unlock()
}

func (p *Pipeline) Metrics() Metrics {
	return Metrics{
		Frames:          p.counters.frames.Load(),
		DecodeErrors:    p.counters.decodeErrors.Load(),
		Forwarded:       p.counters.forwarded.Load(),
		Reencoded:       p.counters.reencoded.Load(),
		ForwardErrors:   p.counters.forwardErrors.Load(),
		InterceptorsRun: p.counters.interceptorsRun.Load(),
		HandlersRun:     p.counters.handlersRun.Load(),
		CallbackErrors:  p.counters.callbackErrors.Load(),
		Suppressed:      p.counters.suppressed.Load(),
		Resolved:        p.counters.resolved.Load(),
	}
}

// Process runs one full dispatch cycle. Only a decode failure is returned:
// the frame is then dropped and no phase runs. Callback failures and
// forwarding failures are logged and reported in the Result. Every phase
// runs even if ctx is cancelled midway; callbacks receive ctx and own their
// timeouts.
func (p *Pipeline) Process(ctx context.Context, frame []byte) (Result, error) {
	c, err := p.Begin(ctx, frame)
	if err != nil {
		return c.Result(), err
	}
	return c.Finish(), nil
}

// Begin decodes frame, runs the intercept phase and forwards the result.
// It also claims the handlers and after-handlers the frame will run, so
// Once and Bounded entries are consumed in frame order even when cycles
// finish out of order. The returned Cycle must be finished.
// On a decode failure the Cycle carries only the frame id.
func (p *Pipeline) Begin(ctx context.Context, frame []byte) (*Cycle, error) {
	c := &Cycle{p: p, res: Result{FrameID: uuid.NewString()}}
	p.counters.frames.Add(1)

	c.ctx, c.span = p.tracer.Start(ctx, "dispatch.process",
		trace.WithAttributes(
			attribute.String("frame.id", c.res.FrameID),
			attribute.Int("frame.size", len(frame)),
		),
	)

	d, err := wire.Decode(frame)
	if err != nil {
		p.counters.decodeErrors.Add(1)
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, "decode failed")
		c.span.End()
		p.logger.Error("dropping undecodable frame",
			log.String("frame_id", c.res.FrameID),
			log.Int("size", len(frame)),
			log.Error(err),
		)
		p.notifyFrame(c.res.FrameID, nil, err)
		return c, err
	}
	c.diff = d

	if p.state != nil {
		p.state.Apply(d)
	}

	c.res.Present = d.Present()
	p.notifyFrame(c.res.FrameID, c.res.Present, nil)

	c.qualifying = p.classify(d)
	c.span.SetAttributes(attribute.Int("dispatch.qualifying", len(c.qualifying)))

	c.res.Intercepted = p.intercept(c.ctx, d, c.qualifying)
	for _, cat := range c.res.Present {
		if !d.Has(cat) {
			c.res.Suppressed = append(c.res.Suppressed, cat)
		}
	}
	p.counters.suppressed.Add(uint64(len(c.res.Suppressed)))

	p.forward(c.ctx, d, &c.res)

	c.handlers = p.claim(d, c.qualifying, registry.RoleHandle)
	c.after = p.claim(d, c.qualifying, registry.RoleHandleAfter)
	return c, nil
}

// Cycle is a frame that went through Begin. Finish runs the handle and
// handle-after phases and resolves the rendezvous for the interceptors that
// ran. Cycles of different frames may be finished concurrently.
type Cycle struct {
	p    *Pipeline
	ctx  context.Context
	span trace.Span

	diff       *wire.Diff
	qualifying []wire.Category
	handlers   [][]*registry.Invocation
	after      [][]*registry.Invocation

	once sync.Once
	res  Result
}

// Result is what the cycle has produced so far. It must not be called while
// Finish runs.
func (c *Cycle) Result() Result {
	return c.res
}

// Finish runs the remaining phases and returns the complete Result. Later
// calls return the same Result without running anything.
func (c *Cycle) Finish() Result {
	c.once.Do(func() {
		if c.diff == nil {
			return
		}
		defer c.span.End()
		p := c.p

		c.res.Handled = p.handle(c.ctx, c.diff, c.handlers, registry.RoleHandle)
		c.res.HandledAfter = p.handle(c.ctx, c.diff, c.after, registry.RoleHandleAfter)

		for _, cat := range c.qualifying {
			if ids := c.res.Intercepted[cat]; len(ids) > 0 {
				c.res.Resolved += p.table.Resolve(cat, ids)
			}
		}
		p.counters.resolved.Add(uint64(c.res.Resolved))
	})
	return c.res
}

// classify keeps the present categories that have at least one callback.
func (p *Pipeline) classify(d *wire.Diff) []wire.Category {
	var out []wire.Category
	for _, c := range d.Present() {
		if p.registry.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (p *Pipeline) intercept(ctx context.Context, d *wire.Diff, qualifying []wire.Category) map[wire.Category][]registry.CallbackID {
	ctx, span := p.tracer.Start(ctx, "dispatch.intercept")
	defer span.End()

	executed := make(map[wire.Category][]registry.CallbackID)
	for _, c := range qualifying {
		// an earlier interceptor may have removed the category
		if !d.Has(c) {
			continue
		}
		for _, inv := range p.registry.Snapshot(c, registry.RoleIntercept) {
			if !inv.Claim() {
				continue
			}
			start := time.Now()
			err := inv.Intercept(ctx, d)
			executed[c] = append(executed[c], inv.ID())
			p.counters.interceptorsRun.Add(1)
			p.callbackDone(inv, err, start)
		}
	}
	return executed
}

func (p *Pipeline) forward(ctx context.Context, d *wire.Diff, res *Result) {
	ctx, span := p.tracer.Start(ctx, "dispatch.forward")
	defer span.End()

	modified := len(res.Intercepted) > 0
	out, err := wire.Forwardable(d, modified)
	if err != nil {
		res.ForwardErr = err
		p.counters.forwardErrors.Add(1)
		span.RecordError(err)
		p.logger.Error("re-encoding frame failed",
			log.String("frame_id", res.FrameID),
			log.Error(err),
		)
		p.notifyForward(res.FrameID, modified, err)
		return
	}
	res.Forwarded = out
	res.Reencoded = modified
	if modified {
		p.counters.reencoded.Add(1)
	}

	if p.consumer != nil {
		if err := p.consumer.Consume(ctx, out); err != nil {
			res.ForwardErr = err
			p.counters.forwardErrors.Add(1)
			span.RecordError(err)
			p.logger.Warn("consumer rejected frame",
				log.String("frame_id", res.FrameID),
				log.Error(err),
			)
		}
	}
	p.counters.forwarded.Add(1)
	p.notifyForward(res.FrameID, modified, res.ForwardErr)
}

// claim takes the handlers of the given role for each qualifying category
// that survived interception, one batch per category.
func (p *Pipeline) claim(d *wire.Diff, qualifying []wire.Category, role registry.Role) [][]*registry.Invocation {
	var out [][]*registry.Invocation
	for _, c := range qualifying {
		if !d.Has(c) {
			continue
		}
		if invs := p.registry.Claim(c, role); len(invs) > 0 {
			out = append(out, invs)
		}
	}
	return out
}

// handle runs claimed handlers. Handlers of one category run concurrently
// and are joined before the next category starts.
func (p *Pipeline) handle(ctx context.Context, d *wire.Diff, batches [][]*registry.Invocation, role registry.Role) int {
	ctx, span := p.tracer.Start(ctx, "dispatch."+role.String())
	defer span.End()

	ran := 0
	for _, invs := range batches {
		concurrent.Gather(ctx, p.handlerLimit, invs, func(ctx context.Context, inv *registry.Invocation) error {
			start := time.Now()
			err := inv.Handle(ctx, d)
			p.callbackDone(inv, err, start)
			return err
		})
		ran += len(invs)
	}
	p.counters.handlersRun.Add(uint64(ran))
	return ran
}

func (p *Pipeline) callbackDone(inv *registry.Invocation, err error, start time.Time) {
	if err != nil {
		p.counters.callbackErrors.Add(1)
		p.logger.Error("callback failed",
			log.Stringer("category", inv.Category()),
			log.Stringer("role", inv.Role()),
			log.Uint64("callback_id", uint64(inv.ID())),
			log.Error(err),
		)
	}

	p.obsMu.RLock()
	defer p.obsMu.RUnlock()
	if len(p.observers) == 0 {
		return
	}
	dur := time.Since(start).Microseconds()
	for obs := range p.observers {
		obs.OnCallback(inv.Category(), inv.Role(), inv.ID(), err, dur)
	}
}

func (p *Pipeline) notifyFrame(frameID string, present []wire.Category, err error) {
	p.obsMu.RLock()
	defer p.obsMu.RUnlock()
	for obs := range p.observers {
		obs.OnFrame(frameID, present, err)
	}
}

func (p *Pipeline) notifyForward(frameID string, reencoded bool, err error) {
	p.obsMu.RLock()
	defer p.obsMu.RUnlock()
	for obs := range p.observers {
		obs.OnForward(frameID, reencoded, err)
	}
}
