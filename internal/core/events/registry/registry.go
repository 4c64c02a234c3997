package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/zeusync/emitter/internal/core/wire"
)

// CallbackID identifies one registration. Ids grow monotonically and are
// never reused.
type CallbackID uint64

// Interceptor may rewrite or remove parts of the diff before it is forwarded.
type Interceptor func(ctx context.Context, d *wire.Diff) error

// Handler observes the final diff.
type Handler func(ctx context.Context, v wire.View) error

type key struct {
	cat  wire.Category
	role Role
}

// entry is a registration. remaining is -1 for Forever; removed is the
// tombstone checked by snapshots taken before the entry went away.
type entry struct {
	id        CallbackID
	remaining int
	removed   bool
	intercept Interceptor
	handle    Handler
}

// Registry keeps, per category and role, the callbacks in registration
// order. It is safe for concurrent use and callbacks may register or
// unregister other callbacks while a phase iterates over a snapshot.
type Registry struct {
	mu      sync.Mutex
	entries map[key][]*entry
	nextID  CallbackID
}

// New returns an empty registry. Ids start at 1 and are never reused.
func New() *Registry {
	return &Registry{
		entries: make(map[key][]*entry),
	}
}

// Register appends cb to the list of cat and role. cb must be an Interceptor
// for RoleIntercept and a Handler otherwise.
func (r *Registry) Register(cat wire.Category, role Role, lifetime Lifetime, cb any) (CallbackID, error) {
	if !cat.Valid() {
		return 0, fmt.Errorf("%w: %s", wire.ErrUnknownCategory, cat)
	}
	if !role.valid() {
		return 0, ErrInvalidRole
	}
	if lifetime.runs == 0 || lifetime.runs < unbounded {
		return 0, ErrInvalidLifetime
	}

	e := &entry{remaining: lifetime.runs}
	switch fn := cb.(type) {
	case Interceptor:
		if role != RoleIntercept {
			return 0, fmt.Errorf("%w: interceptor registered as %s", ErrRoleMismatch, role)
		}
		if fn == nil {
			return 0, ErrNilCallback
		}
		e.intercept = fn
	case func(context.Context, *wire.Diff) error:
		return r.Register(cat, role, lifetime, Interceptor(fn))
	case Handler:
		if role == RoleIntercept {
			return 0, fmt.Errorf("%w: handler registered as %s", ErrRoleMismatch, role)
		}
		if fn == nil {
			return 0, ErrNilCallback
		}
		e.handle = fn
	case func(context.Context, wire.View) error:
		return r.Register(cat, role, lifetime, Handler(fn))
	case nil:
		return 0, ErrNilCallback
	default:
		return 0, fmt.Errorf("%w: unsupported callback %T", ErrRoleMismatch, cb)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	e.id = r.nextID
	k := key{cat: cat, role: role}
	r.entries[k] = append(r.entries[k], e)
	return e.id, nil
}

// Intercept registers fn to run in the intercept phase of cat.
func (r *Registry) Intercept(cat wire.Category, lifetime Lifetime, fn Interceptor) (CallbackID, error) {
	return r.Register(cat, RoleIntercept, lifetime, fn)
}

// Handle registers fn to run in the handle phase of cat.
func (r *Registry) Handle(cat wire.Category, lifetime Lifetime, fn Handler) (CallbackID, error) {
	return r.Register(cat, RoleHandle, lifetime, fn)
}

// HandleAfter registers fn to run once the frame carrying cat has been
// forwarded.
func (r *Registry) HandleAfter(cat wire.Category, lifetime Lifetime, fn Handler) (CallbackID, error) {
	return r.Register(cat, RoleHandleAfter, lifetime, fn)
}

// Unregister removes the entry and reports whether it was registered.
func (r *Registry) Unregister(cat wire.Category, role Role, id CallbackID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{cat: cat, role: role}
	list := r.entries[k]
	i := slices.IndexFunc(list, func(e *entry) bool { return e.id == id })
	if i < 0 {
		return false
	}
	r.evict(k, i)
	return true
}

// evict tombstones list[i] and removes it. Callers hold mu.
func (r *Registry) evict(k key, i int) {
	list := r.entries[k]
	list[i].removed = true
	list = slices.Delete(list, i, i+1)
	if len(list) == 0 {
		delete(r.entries, k)
		return
	}
	r.entries[k] = list
}

// Has reports whether cat has at least one callback of any role.
func (r *Registry) Has(cat wire.Category) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, role := range []Role{RoleIntercept, RoleHandle, RoleHandleAfter} {
		if len(r.entries[key{cat: cat, role: role}]) > 0 {
			return true
		}
	}
	return false
}

// Len returns the number of live callbacks for cat and role.
func (r *Registry) Len(cat wire.Category, role Role) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries[key{cat: cat, role: role}])
}

// Snapshot returns the callbacks registered right now, unclaimed. Entries
// added later are not part of it; entries removed later are skipped by
// Claim.
func (r *Registry) Snapshot(cat wire.Category, role Role) []*Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.entries[key{cat: cat, role: role}]
	out := make([]*Invocation, len(list))
	for i, e := range list {
		out[i] = &Invocation{reg: r, key: key{cat: cat, role: role}, e: e}
	}
	return out
}

// Claim snapshots and claims in one step. Only successfully claimed
// invocations are returned.
func (r *Registry) Claim(cat wire.Category, role Role) []*Invocation {
	snapshot := r.Snapshot(cat, role)
	claimed := snapshot[:0]
	for _, inv := range snapshot {
		if inv.Claim() {
			claimed = append(claimed, inv)
		}
	}
	return claimed
}

// claim consumes one run of e. A bounded entry reaching zero is evicted
// before claim returns.
func (r *Registry) claim(k key, e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.removed {
		return false
	}
	if e.remaining == unbounded {
		return true
	}
	e.remaining--
	if e.remaining == 0 {
		if i := slices.Index(r.entries[k], e); i >= 0 {
			r.evict(k, i)
		}
		e.removed = true
	}
	return true
}

// Invocation is one callback taken from a snapshot.
type Invocation struct {
	reg     *Registry
	key     key
	e       *entry
	claimed bool
}

func (inv *Invocation) ID() CallbackID {
	return inv.e.id
}

func (inv *Invocation) Category() wire.Category {
	return inv.key.cat
}

func (inv *Invocation) Role() Role {
	return inv.key.role
}

// Claim takes one run from the entry's lifetime. It returns false if the
// entry was removed after the snapshot was taken or already claimed through
// this invocation.
func (inv *Invocation) Claim() bool {
	if inv.claimed {
		return false
	}
	if !inv.reg.claim(inv.key, inv.e) {
		return false
	}
	inv.claimed = true
	return true
}

// Intercept runs a claimed interceptor. Panics are returned as errors.
func (inv *Invocation) Intercept(ctx context.Context, d *wire.Diff) (err error) {
	if inv.e.intercept == nil {
		return fmt.Errorf("%w: %s callback %d is not an interceptor", ErrRoleMismatch, inv.key.role, inv.e.id)
	}
	defer recoverInto(&err)
	return inv.e.intercept(ctx, d)
}

// Handle runs a claimed handler. Panics are returned as errors.
func (inv *Invocation) Handle(ctx context.Context, v wire.View) (err error) {
	if inv.e.handle == nil {
		return fmt.Errorf("%w: %s callback %d is not a handler", ErrRoleMismatch, inv.key.role, inv.e.id)
	}
	defer recoverInto(&err)
	return inv.e.handle(ctx, v)
}

func recoverInto(err *error) {
	if p := recover(); p != nil {
		*err = fmt.Errorf("%w: %v", ErrCallbackPanic, p)
	}
}
