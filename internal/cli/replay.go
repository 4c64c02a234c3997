package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zeusync/emitter/internal/core/events/dispatch"
	"github.com/zeusync/emitter/internal/core/events/registry"
	"github.com/zeusync/emitter/internal/core/events/rendezvous"
	"github.com/zeusync/emitter/internal/core/observability/log"
	"github.com/zeusync/emitter/internal/core/wire"
	"github.com/zeusync/emitter/internal/replay"
)

type ReplayOptions struct {
	*RootOptions
	Speed   float64
	Forward bool
}

func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <dir>",
		Short: "Play a recorded session through the dispatch pipeline",
		Long: `Play the inbound frames of a recording made with "run --record" through a
fresh pipeline with the default interceptors and report what happened.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().Float64Var(&opts.Speed, "speed", 0, "playback speed relative to the recording, 0 for as fast as possible")
	cmd.Flags().BoolVar(&opts.Forward, "forward", false, "print every forwarded frame")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, dir string, out io.Writer) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := log.New(level)
	defer func() { _ = logger.Sync() }()

	reg := registry.New()
	if _, err := dispatch.RegisterDefaults(reg, cfg.Dispatch.WarnFilter); err != nil {
		return err
	}

	var consumer dispatch.Consumer
	if opts.Forward && opts.Format == "text" {
		consumer = dispatch.ConsumerFunc(func(_ context.Context, frame []byte) error {
			_, err := fmt.Fprintf(out, "%s\n", frame)
			return err
		})
	}

	pipeline := dispatch.New(reg, rendezvous.New(), consumer,
		dispatch.WithLogger(logger),
		dispatch.WithState(wire.NewState()),
		dispatch.WithHandlerLimit(cfg.Dispatch.HandlerConcurrency),
	)

	player := replay.NewPlayer(pipeline, logger)
	player.Speed = opts.Speed
	if ctx == nil {
		ctx = context.Background()
	}
	sum, err := player.Play(ctx, dir)
	if err != nil {
		return fmt.Errorf("replay %s: %w", dir, err)
	}

	if opts.Format == "json" {
		return writeJSON(out, struct {
			replay.Summary
			Items    int              `json:"items"`
			Pipeline dispatch.Metrics `json:"pipeline"`
		}{sum, pipeline.State().Items.Len(), pipeline.Metrics()})
	}
	_, err = fmt.Fprintf(out, "frames: %d\ndecode errors: %d\nre-encoded: %d\nintercepted: %d\nitems tracked: %d\n",
		sum.Frames, sum.DecodeErrors, sum.Reencoded, sum.Intercepted, pipeline.State().Items.Len())
	return err
}
