package rendezvous

import (
	"context"
	"sync"

	"github.com/zeusync/emitter/internal/core/events/registry"
	"github.com/zeusync/emitter/internal/core/wire"
)

type key struct {
	cat wire.Category
	id  registry.CallbackID
}

// Table lets callers wait until a given interceptor has run during a
// dispatch cycle. Each waiting entry fires at most once.
type Table struct {
	mu      sync.Mutex
	waiting map[key][]*Waiter
}

// New returns a table with no waiters.
func New() *Table {
	return &Table{
		waiting: make(map[key][]*Waiter),
	}
}

// Waiter is a single-use notification for one (category, id) pair.
type Waiter struct {
	table *Table
	key   key
	done  chan struct{}
	once  sync.Once
}

// Expect registers interest in the interceptor id of cat. Call it before the
// event that may run the interceptor so the resolution cannot be missed.
func (t *Table) Expect(cat wire.Category, id registry.CallbackID) *Waiter {
	w := &Waiter{
		table: t,
		key:   key{cat: cat, id: id},
		done:  make(chan struct{}),
	}

	t.mu.Lock()
	t.waiting[w.key] = append(t.waiting[w.key], w)
	t.mu.Unlock()

	return w
}

// Await is Expect followed by Wait.
func (t *Table) Await(ctx context.Context, cat wire.Category, id registry.CallbackID) error {
	return t.Expect(cat, id).Wait(ctx)
}

// Resolve fires and drops every waiter of cat whose id is in ids. It returns
// the number of waiters woken.
func (t *Table) Resolve(cat wire.Category, ids []registry.CallbackID) int {
	if len(ids) == 0 {
		return 0
	}

	var fired []*Waiter
	t.mu.Lock()
	for _, id := range ids {
		k := key{cat: cat, id: id}
		if ws, ok := t.waiting[k]; ok {
			fired = append(fired, ws...)
			delete(t.waiting, k)
		}
	}
	t.mu.Unlock()

	for _, w := range fired {
		w.fire()
	}
	return len(fired)
}

// Pending returns the number of waiters that have not fired or been
// cancelled.
func (t *Table) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, ws := range t.waiting {
		n += len(ws)
	}
	return n
}

func (t *Table) remove(w *Waiter) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ws := t.waiting[w.key]
	for i, candidate := range ws {
		if candidate != w {
			continue
		}
		ws = append(ws[:i], ws[i+1:]...)
		break
	}
	if len(ws) == 0 {
		delete(t.waiting, w.key)
		return
	}
	t.waiting[w.key] = ws
}

func (w *Waiter) fire() {
	w.once.Do(func() { close(w.done) })
}

// Done is closed once the interceptor ran.
func (w *Waiter) Done() <-chan struct{} {
	return w.done
}

func (w *Waiter) Category() wire.Category {
	return w.key.cat
}

func (w *Waiter) ID() registry.CallbackID {
	return w.key.id
}

// Wait blocks until the interceptor ran or ctx is done. On ctx expiry the
// entry is dropped and ctx.Err() returned.
func (w *Waiter) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	default:
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.Cancel()
		select {
		case <-w.done:
			return nil
		default:
		}
		return ctx.Err()
	}
}

// Cancel abandons the entry. It is a no-op after the waiter fired.
func (w *Waiter) Cancel() {
	w.table.remove(w)
}
