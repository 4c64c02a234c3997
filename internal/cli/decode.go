package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zeusync/emitter/internal/core/wire"
)

type DecodeOptions struct {
	*RootOptions
	Drop []string
}

func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode <file|->",
		Short: "Decode one frame and list its categories",
		Example: `  emitter decode frame.json
  echo '{"w":"hi","ev":1}' | emitter decode - --drop warn`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(opts, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringSliceVar(&opts.Drop, "drop", nil, "categories to remove before re-encoding (name or wire key)")

	return cmd
}

type decodeResult struct {
	Present   []string `json:"present"`
	Forwarded string   `json:"forwarded"`
	Reencoded bool     `json:"reencoded"`
}

func runDecode(opts *DecodeOptions, path string, stdin io.Reader, out io.Writer) error {
	var (
		frame []byte
		err   error
	)
	if path == "-" {
		frame, err = io.ReadAll(stdin)
	} else {
		frame, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}

	d, err := wire.Decode([]byte(strings.TrimSpace(string(frame))))
	if err != nil {
		return err
	}

	res := decodeResult{Present: []string{}}
	for _, c := range d.Present() {
		res.Present = append(res.Present, c.String())
	}
	for _, name := range opts.Drop {
		c, err := wire.ParseCategory(name)
		if err != nil {
			return err
		}
		d.Remove(c)
	}
	res.Reencoded = len(opts.Drop) > 0
	forwarded, err := wire.Forwardable(d, res.Reencoded)
	if err != nil {
		return err
	}
	res.Forwarded = string(forwarded)

	if opts.Format == "json" {
		return writeJSON(out, res)
	}
	for _, name := range res.Present {
		if _, err := fmt.Fprintln(out, name); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(out, "forwarded: %s\n", res.Forwarded)
	return err
}
