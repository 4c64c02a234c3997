package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Gather runs action for every item on its own goroutine, at most limit at a
// time (limit <= 0 means no limit), and waits for all of them. A failing
// action never cancels its siblings. The returned slice holds the error of
// each item at the item's index.
func Gather[T any](ctx context.Context, limit int, items []T, action func(context.Context, T) error) []error {
	errs := make([]error, len(items))
	if len(items) == 0 {
		return errs
	}

	var group errgroup.Group
	if limit > 0 {
		group.SetLimit(limit)
	}
	for i, item := range items {
		group.Go(func() error {
			errs[i] = action(ctx, item)
			return nil
		})
	}
	_ = group.Wait()
	return errs
}

// Concurrent runs action for every item concurrently and returns the first
// error. The context passed to action is cancelled once an action fails.
func Concurrent[T any](ctx context.Context, items []T, action func(context.Context, T) error) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, item := range items {
		group.Go(func() error {
			return action(groupCtx, item)
		})
	}
	return group.Wait()
}
