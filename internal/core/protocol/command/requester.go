package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeusync/emitter/internal/core/events/registry"
	"github.com/zeusync/emitter/internal/core/events/rendezvous"
	"github.com/zeusync/emitter/internal/core/observability/log"
	"github.com/zeusync/emitter/internal/core/wire"
)

// Requester turns a one-way command into a request/response exchange: the
// answer is whatever diff next carries the expected category.
type Requester struct {
	registry *registry.Registry
	table    *rendezvous.Table
	sender   Sender
	timeout  time.Duration
	logger   log.Log
}

func NewRequester(reg *registry.Registry, table *rendezvous.Table, sender Sender, timeout time.Duration, logger log.Log) *Requester {
	if logger == nil {
		logger = log.Provide()
	}
	return &Requester{
		registry: reg,
		table:    table,
		sender:   sender,
		timeout:  timeout,
		logger:   logger.With(log.String("component", "requester")),
	}
}

// Request registers fn as a one-shot interceptor of cat, sends cmd and
// blocks until fn ran in a dispatch cycle. The wait is bounded by ctx and by
// the requester's default timeout. On failure the interceptor is removed
// unless it already ran.
func (r *Requester) Request(ctx context.Context, cat wire.Category, cmd Command, fn registry.Interceptor) error {
	if r.sender == nil {
		return ErrNoSender
	}

	id, err := r.registry.Intercept(cat, registry.Once(), fn)
	if err != nil {
		return fmt.Errorf("request %s: %w", cmd, err)
	}
	waiter := r.table.Expect(cat, id)

	if err := r.sender.Send(ctx, cmd); err != nil {
		waiter.Cancel()
		r.registry.Unregister(cat, registry.RoleIntercept, id)
		return fmt.Errorf("request %s: send: %w", cmd, err)
	}

	waitCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := waiter.Wait(waitCtx); err != nil {
		removed := r.registry.Unregister(cat, registry.RoleIntercept, id)
		r.logger.Debug("request abandoned",
			log.String("command", cmd.String()),
			log.Stringer("category", cat),
			log.Uint64("callback_id", uint64(id)),
			log.Bool("interceptor_removed", removed),
			log.Error(err),
		)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("request %s: %w", cmd, errors.Join(ErrRequestTimeout, err))
		}
		return fmt.Errorf("request %s: %w", cmd, err)
	}
	return nil
}

// Suppress requests cmd and drops the answering category from the frame so
// the downstream consumer never sees it. The diff is passed to fn first when
// fn is not nil.
func (r *Requester) Suppress(ctx context.Context, cat wire.Category, cmd Command, fn func(wire.View)) error {
	return r.Request(ctx, cat, cmd, func(_ context.Context, d *wire.Diff) error {
		if fn != nil {
			fn(d)
		}
		d.Remove(cat)
		return nil
	})
}

// Members fetches the clan member list without showing it downstream.
func (r *Requester) Members(ctx context.Context) ([]wire.ClanMember, error) {
	var members []wire.ClanMember
	err := r.Suppress(ctx, wire.CategoryMembers, ClanMembers, func(v wire.View) {
		members, _ = v.Members()
	})
	return members, err
}

// Friends fetches the friend list without showing it downstream.
func (r *Requester) Friends(ctx context.Context) ([]wire.Friend, error) {
	var friends []wire.Friend
	err := r.Suppress(ctx, wire.CategoryFriends, FriendsShow, func(v wire.View) {
		friends, _ = v.Friends()
	})
	return friends, err
}

// EnableSetting switches setting id on and waits for the settings update.
func (r *Requester) EnableSetting(ctx context.Context, id int) error {
	cmd, err := EnableSetting(id)
	if err != nil {
		return err
	}
	return r.Request(ctx, wire.CategorySettings, cmd, func(context.Context, *wire.Diff) error { return nil })
}
