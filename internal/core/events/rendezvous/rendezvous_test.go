package rendezvous

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/emitter/internal/core/events/registry"
	"github.com/zeusync/emitter/internal/core/wire"
)

func TestResolveFiresExactlyOnce(t *testing.T) {
	table := New()
	w := table.Expect(wire.CategoryMembers, 7)

	require.Equal(t, 1, table.Resolve(wire.CategoryMembers, []registry.CallbackID{7}))
	require.NoError(t, w.Wait(context.Background()))

	require.Equal(t, 0, table.Resolve(wire.CategoryMembers, []registry.CallbackID{7}))
	require.Equal(t, 0, table.Pending())

	select {
	case <-w.Done():
	default:
		t.Fatal("done channel must stay closed")
	}
}

func TestResolveMatchesCategoryAndID(t *testing.T) {
	table := New()
	wanted := table.Expect(wire.CategoryFriends, 3)
	otherCat := table.Expect(wire.CategoryMembers, 3)
	otherID := table.Expect(wire.CategoryFriends, 4)

	require.Equal(t, 1, table.Resolve(wire.CategoryFriends, []registry.CallbackID{3, 99}))

	assert.NoError(t, wanted.Wait(context.Background()))
	assert.Equal(t, 2, table.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, otherCat.Wait(ctx), context.DeadlineExceeded)
	assert.ErrorIs(t, otherID.Wait(ctx), context.DeadlineExceeded)
	assert.Equal(t, 0, table.Pending(), "abandoned waiters are dropped")
}

func TestAwaitFromAnotherGoroutine(t *testing.T) {
	table := New()
	w := table.Expect(wire.CategoryAsk, 11)

	result := make(chan error, 1)
	go func() {
		result <- w.Wait(context.Background())
	}()

	time.Sleep(5 * time.Millisecond)
	table.Resolve(wire.CategoryAsk, []registry.CallbackID{11})

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestAwaitTimesOut(t *testing.T) {
	table := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := table.Await(ctx, wire.CategoryLoot, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 0, table.Pending())
}

func TestCancelThenResolve(t *testing.T) {
	table := New()
	w := table.Expect(wire.CategoryHero, 5)
	w.Cancel()

	assert.Equal(t, 0, table.Resolve(wire.CategoryHero, []registry.CallbackID{5}))
	assert.Equal(t, wire.CategoryHero, w.Category())
	assert.Equal(t, registry.CallbackID(5), w.ID())
}

func TestConcurrentWaitersDoNotInterfere(t *testing.T) {
	table := New()
	const n = 32

	waiters := make([]*Waiter, n)
	for i := range waiters {
		waiters[i] = table.Expect(wire.CategoryItem, registry.CallbackID(i+1))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, w := range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			errs[i] = w.Wait(ctx)
		}()
	}

	for i := 0; i < n; i += 2 {
		table.Resolve(wire.CategoryItem, []registry.CallbackID{registry.CallbackID(i + 1)})
	}
	for i := 1; i < n; i += 2 {
		table.Resolve(wire.CategoryItem, []registry.CallbackID{registry.CallbackID(i + 1)})
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "waiter %d", i)
	}
}
