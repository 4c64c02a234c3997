package injector

import (
	"crypto/tls"
	"net/http"

	gwire "github.com/google/wire"

	"github.com/zeusync/emitter/internal/config"
	"github.com/zeusync/emitter/internal/core/events/dispatch"
	"github.com/zeusync/emitter/internal/core/events/registry"
	"github.com/zeusync/emitter/internal/core/events/rendezvous"
	"github.com/zeusync/emitter/internal/core/observability/log"
	"github.com/zeusync/emitter/internal/core/protocol/command"
	"github.com/zeusync/emitter/internal/core/protocol/quic"
	"github.com/zeusync/emitter/internal/core/protocol/upstream"
	"github.com/zeusync/emitter/internal/core/protocol/websocket"
	"github.com/zeusync/emitter/internal/core/wire"
	"github.com/zeusync/emitter/internal/relay"
	"github.com/zeusync/emitter/internal/replay"
)

// ProviderSet builds the whole emitter graph from a config.Config.
var ProviderSet = gwire.NewSet(
	ProvideLogger,
	gwire.Bind(new(log.Log), new(*log.Logger)),
	registry.New,
	rendezvous.New,
	ProvideState,
	ProvideRelay,
	ProvideRecorder,
	ProvideConsumer,
	ProvidePipeline,
	ProvideDialer,
	ProvideSession,
	ProvideRequester,
	NewApp,
)

func ProvideLogger(cfg config.Config) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return log.New(level), nil
}

// ProvideState returns nil when state tracking is off.
func ProvideState(cfg config.Config) *wire.State {
	if !cfg.Dispatch.TrackState {
		return nil
	}
	return wire.NewState()
}

// ProvideRelay returns nil when the relay is disabled. The sender is set
// later by NewApp because the session depends on the relay.
func ProvideRelay(cfg config.Config, logger log.Log) *relay.Relay {
	if !cfg.Relay.Enabled {
		return nil
	}
	return relay.New(relay.Config{
		Path:           cfg.Relay.Path,
		ClientBuffer:   cfg.Relay.ClientBuffer,
		WriteTimeout:   cfg.Relay.WriteTimeout,
		AllowedOrigins: cfg.Relay.AllowedOrigins,
		Token:          cfg.Relay.Token,
		History:        cfg.Relay.History,
		CommandRate:    cfg.Relay.CommandRate,
		CommandWindow:  cfg.Relay.CommandWindow,
	}, nil, logger)
}

// ProvideRecorder returns a nil recorder when replay recording is disabled.
func ProvideRecorder(cfg config.Config, logger log.Log) (*replay.Recorder, func(), error) {
	if !cfg.Replay.Enabled {
		return nil, func() {}, nil
	}
	rec, _, err := replay.NewRecorder(cfg.Replay.Dir, "", nil, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := rec.Close(); err != nil {
			logger.Warn("closing replay recorder failed", log.Error(err))
		}
	}
	return rec, cleanup, nil
}

// ProvideConsumer chains the recorder in front of the relay. Either may be
// nil.
func ProvideConsumer(r *relay.Relay, rec *replay.Recorder) dispatch.Consumer {
	var next dispatch.Consumer
	if r != nil {
		next = r
	}
	if rec != nil {
		return rec.Wrap(next)
	}
	return next
}

func ProvidePipeline(cfg config.Config, reg *registry.Registry, table *rendezvous.Table, consumer dispatch.Consumer, state *wire.State, logger log.Log) (*dispatch.Pipeline, error) {
	if _, err := dispatch.RegisterDefaults(reg, cfg.Dispatch.WarnFilter); err != nil {
		return nil, err
	}
	return dispatch.New(reg, table, consumer,
		dispatch.WithLogger(logger),
		dispatch.WithState(state),
		dispatch.WithHandlerLimit(cfg.Dispatch.HandlerConcurrency),
	), nil
}

func ProvideDialer(cfg config.Config, logger log.Log) (upstream.Dialer, error) {
	up := cfg.Upstream
	switch up.Transport {
	case config.TransportQUIC:
		qc := quic.DefaultConfig()
		qc.Addr = up.Addr
		qc.WriteTimeout = up.WriteTimeout
		qc.MaxFrameSize = up.MaxFrameSize
		if up.PingInterval > 0 {
			qc.KeepAlive = up.PingInterval
		}
		if up.InsecureSkipVerify {
			qc.TLSConfig = &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS13}
		}
		return quic.NewDialer(qc, logger), nil
	case config.TransportWebSocket:
		wc := websocket.DefaultConfig()
		wc.URL = up.URL
		wc.Origin = up.Origin
		wc.DialTimeout = up.DialTimeout
		wc.WriteTimeout = up.WriteTimeout
		wc.PingInterval = up.PingInterval
		wc.MaxFrameSize = up.MaxFrameSize
		wc.InsecureSkipVerify = up.InsecureSkipVerify
		if len(up.Header) > 0 {
			wc.Header = http.Header{}
			for k, v := range up.Header {
				wc.Header.Set(k, v)
			}
		}
		return websocket.NewDialer(wc, logger), nil
	default:
		return nil, config.ErrInvalidConfig
	}
}

func ProvideSession(cfg config.Config, dialer upstream.Dialer, pipeline *dispatch.Pipeline, rec *replay.Recorder, logger log.Log) *upstream.Session {
	s := upstream.New(dialer, pipeline, upstream.Config{
		SendQueueSize:     cfg.Upstream.SendQueueSize,
		ReconnectAttempts: cfg.Upstream.ReconnectAttempts,
		ReconnectDelay:    cfg.Upstream.ReconnectDelay,
	}, logger)
	if rec != nil {
		s.AddHook(rec.RecordFrame)
	}
	return s
}

func ProvideRequester(cfg config.Config, reg *registry.Registry, table *rendezvous.Table, session *upstream.Session, logger log.Log) *command.Requester {
	return command.NewRequester(reg, table, session, cfg.Rendezvous.RequestTimeout, logger)
}

// NewApp finishes the wiring that needs the session: relayed commands and
// the /metrics sources.
func NewApp(cfg config.Config, logger *log.Logger, pipeline *dispatch.Pipeline, session *upstream.Session, requester *command.Requester, r *relay.Relay, rec *replay.Recorder) *App {
	if r != nil {
		r.SetSender(session)
		r.AddStats("dispatch", func() any { return pipeline.Metrics() })
		r.AddStats("session", func() any { return session.Stats() })
		r.AddStats("rendezvous", func() any {
			return map[string]int{"pending": pipeline.Rendezvous().Pending()}
		})
		if rec != nil {
			r.AddStats("replay", func() any {
				return map[string]any{"dir": rec.Directory(), "failures": rec.Failures()}
			})
		}
	}
	return &App{
		Config:    cfg,
		Logger:    logger,
		Pipeline:  pipeline,
		Session:   session,
		Requester: requester,
		Relay:     r,
		Recorder:  rec,
	}
}
