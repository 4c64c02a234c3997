package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/emitter/internal/core/observability/log"
)

const (
	TransportWebSocket = "websocket"
	TransportQUIC      = "quic"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the whole runtime configuration of the emitter binary. Values
// come from Default, then the yaml file, then EMITTER_* environment
// variables.
type Config struct {
	Log        LogConfig        `yaml:"log" envPrefix:"LOG_"`
	Upstream   UpstreamConfig   `yaml:"upstream" envPrefix:"UPSTREAM_"`
	Relay      RelayConfig      `yaml:"relay" envPrefix:"RELAY_"`
	Dispatch   DispatchConfig   `yaml:"dispatch" envPrefix:"DISPATCH_"`
	Rendezvous RendezvousConfig `yaml:"rendezvous" envPrefix:"RENDEZVOUS_"`
	Replay     ReplayConfig     `yaml:"replay" envPrefix:"REPLAY_"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
}

// UpstreamConfig describes the game server connection.
type UpstreamConfig struct {
	Transport string `yaml:"transport" env:"TRANSPORT"`
	// URL is the websocket endpoint, Addr the QUIC host:port.
	URL    string            `yaml:"url" env:"URL"`
	Addr   string            `yaml:"addr" env:"ADDR"`
	Origin string            `yaml:"origin" env:"ORIGIN"`
	Header map[string]string `yaml:"header" env:"HEADER"`

	DialTimeout   time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	WriteTimeout  time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	PingInterval  time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`
	MaxFrameSize  int64         `yaml:"max_frame_size" env:"MAX_FRAME_SIZE"`
	SendQueueSize int           `yaml:"send_queue_size" env:"SEND_QUEUE_SIZE"`

	ReconnectAttempts int           `yaml:"reconnect_attempts" env:"RECONNECT_ATTEMPTS"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay" env:"RECONNECT_DELAY"`

	InsecureSkipVerify bool `yaml:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`

	// FetchPeers asks for the friend and clan lists once the session runs.
	// LoginNotifications turns on the friend and clan login settings.
	FetchPeers         bool `yaml:"fetch_peers" env:"FETCH_PEERS"`
	LoginNotifications bool `yaml:"login_notifications" env:"LOGIN_NOTIFICATIONS"`
}

// RelayConfig is the local websocket endpoint forwarded frames go to.
type RelayConfig struct {
	Enabled        bool          `yaml:"enabled" env:"ENABLED"`
	Listen         string        `yaml:"listen" env:"LISTEN"`
	Path           string        `yaml:"path" env:"PATH"`
	ClientBuffer   int           `yaml:"client_buffer" env:"CLIENT_BUFFER"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	Token          string        `yaml:"token" env:"TOKEN"`
	History        int           `yaml:"history" env:"HISTORY"`
	CommandRate    int           `yaml:"command_rate" env:"COMMAND_RATE"`
	CommandWindow  time.Duration `yaml:"command_window" env:"COMMAND_WINDOW"`
}

type DispatchConfig struct {
	// HandlerConcurrency caps concurrently running handlers of one
	// category; zero means no cap.
	HandlerConcurrency int `yaml:"handler_concurrency" env:"HANDLER_CONCURRENCY"`
	// WarnFilter lists warning prefixes dropped before forwarding. Nil
	// keeps the built-in list.
	WarnFilter []string `yaml:"warn_filter" env:"WARN_FILTER"`
	TrackState bool     `yaml:"track_state" env:"TRACK_STATE"`
}

type RendezvousConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
}

type ReplayConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Dir     string `yaml:"dir" env:"DIR"`
}

func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Upstream: UpstreamConfig{
			Transport:         TransportWebSocket,
			DialTimeout:       10 * time.Second,
			WriteTimeout:      5 * time.Second,
			PingInterval:      30 * time.Second,
			MaxFrameSize:      4 << 20,
			SendQueueSize:     64,
			ReconnectAttempts: 5,
			ReconnectDelay:    2 * time.Second,
		},
		Relay: RelayConfig{
			Enabled:       true,
			Listen:        "127.0.0.1:8765",
			Path:          "/ws",
			ClientBuffer:  256,
			WriteTimeout:  5 * time.Second,
			CommandWindow: time.Second,
		},
		Dispatch: DispatchConfig{
			TrackState: true,
		},
		Rendezvous: RendezvousConfig{
			RequestTimeout: 10 * time.Second,
		},
		Replay: ReplayConfig{
			Dir: "replay",
		},
	}
}

// Load reads path (skipped when empty) over the defaults and applies the
// environment on top.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "EMITTER_"}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	switch c.Upstream.Transport {
	case TransportWebSocket:
		if c.Upstream.URL != "" {
			u, err := url.Parse(c.Upstream.URL)
			if err != nil {
				errs = append(errs, fmt.Errorf("upstream url: %w", err))
			} else if u.Scheme != "ws" && u.Scheme != "wss" {
				errs = append(errs, fmt.Errorf("upstream url scheme %q, want ws or wss", u.Scheme))
			}
		}
	case TransportQUIC:
		if c.Upstream.Addr == "" {
			errs = append(errs, errors.New("upstream addr is required for quic"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown upstream transport %q", c.Upstream.Transport))
	}
	if c.Upstream.MaxFrameSize <= 0 {
		errs = append(errs, errors.New("upstream max_frame_size must be positive"))
	}
	if c.Upstream.SendQueueSize <= 0 {
		errs = append(errs, errors.New("upstream send_queue_size must be positive"))
	}
	if c.Upstream.ReconnectAttempts < 0 {
		errs = append(errs, errors.New("upstream reconnect_attempts must not be negative"))
	}

	if c.Relay.Enabled {
		if c.Relay.Listen == "" {
			errs = append(errs, errors.New("relay listen address is required"))
		}
		if c.Relay.ClientBuffer <= 0 {
			errs = append(errs, errors.New("relay client_buffer must be positive"))
		}
		if c.Relay.History < 0 {
			errs = append(errs, errors.New("relay history must not be negative"))
		}
	}

	if c.Dispatch.HandlerConcurrency < 0 {
		errs = append(errs, errors.New("dispatch handler_concurrency must not be negative"))
	}
	if c.Rendezvous.RequestTimeout <= 0 {
		errs = append(errs, errors.New("rendezvous request_timeout must be positive"))
	}
	if c.Replay.Enabled && c.Replay.Dir == "" {
		errs = append(errs, errors.New("replay dir is required when replay is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
