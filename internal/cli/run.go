package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zeusync/emitter/internal/core/observability/log"
	"github.com/zeusync/emitter/internal/injector"
)

type RunOptions struct {
	*RootOptions
	URL        string
	FetchPeers bool
	Record     bool
}

func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect upstream and serve the local relay",
		Example: `  emitter run -c emitter.yaml
  emitter run --url wss://game.example/ws --fetch-peers`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "upstream websocket url, overrides the config")
	cmd.Flags().BoolVar(&opts.FetchPeers, "fetch-peers", false, "request friends and clan members after connecting")
	cmd.Flags().BoolVar(&opts.Record, "record", false, "record frames to the replay directory")

	return cmd
}

func runRun(ctx context.Context, opts *RunOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.URL != "" {
		cfg.Upstream.URL = opts.URL
	}
	if opts.FetchPeers {
		cfg.Upstream.FetchPeers = true
	}
	if opts.Record {
		cfg.Replay.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := injector.Initialize(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	defer func() { _ = app.Logger.Sync() }()

	app.Logger.Info("emitter starting",
		log.String("transport", cfg.Upstream.Transport),
		log.String("session_id", app.Session.ID()),
		log.Bool("relay", app.Relay != nil),
	)
	return app.Run(ctx)
}
