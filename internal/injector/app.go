package injector

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/emitter/internal/config"
	"github.com/zeusync/emitter/internal/core/events/dispatch"
	"github.com/zeusync/emitter/internal/core/observability/log"
	"github.com/zeusync/emitter/internal/core/protocol/command"
	"github.com/zeusync/emitter/internal/core/protocol/upstream"
	"github.com/zeusync/emitter/internal/core/wire"
	"github.com/zeusync/emitter/internal/relay"
	"github.com/zeusync/emitter/internal/replay"
)

// App is the assembled emitter. Relay and Recorder are nil when disabled.
type App struct {
	Config    config.Config
	Logger    *log.Logger
	Pipeline  *dispatch.Pipeline
	Session   *upstream.Session
	Requester *command.Requester
	Relay     *relay.Relay
	Recorder  *replay.Recorder
}

// Run serves the upstream session and the relay until ctx is done or one
// of them fails. A cancelled ctx is a clean stop.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Session.Run(ctx)
	})
	if a.Relay != nil {
		g.Go(func() error {
			return a.Relay.Serve(ctx, a.Config.Relay.Listen)
		})
	}
	if a.Config.Upstream.FetchPeers || a.Config.Upstream.LoginNotifications {
		g.Go(func() error {
			a.bootstrap(ctx)
			return nil
		})
	}

	err := g.Wait()
	_ = a.Session.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// bootstrap issues the startup requests. Failures are logged only; the
// session keeps running without them.
func (a *App) bootstrap(ctx context.Context) {
	logger := a.Logger.With(log.String("component", "bootstrap"))

	if a.Config.Upstream.LoginNotifications {
		for _, id := range []int{wire.SettingFriendLoginNotif, wire.SettingClanLoginNotif} {
			if err := a.Requester.EnableSetting(ctx, id); err != nil {
				logger.Warn("enabling setting failed", log.Int("setting", id), log.Error(err))
			}
		}
	}

	if a.Config.Upstream.FetchPeers {
		friends, err := a.Requester.Friends(ctx)
		if err != nil {
			logger.Warn("fetching friends failed", log.Error(err))
		} else {
			logger.Info("friends fetched", log.Int("count", len(friends)))
		}

		members, err := a.Requester.Members(ctx)
		if err != nil {
			logger.Warn("fetching clan members failed", log.Error(err))
		} else {
			logger.Info("clan members fetched", log.Int("count", len(members)))
		}
	}
}
