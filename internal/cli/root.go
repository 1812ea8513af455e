// Package cli wires configuration, logging, the model and the servers into
// the llmsock command tree.
package cli

import (
	"context"
	"io"
	"net"
	"os"

	"github.com/spf13/cobra"

	"llmsock/internal/model"
	_ "llmsock/internal/model/llama"
)

// Version is set at build time with -ldflags "-X llmsock/internal/cli.Version=...".
var Version = "dev"

// app carries the process dependencies a command needs.
type app struct {
	stdout  io.Writer
	stderr  io.Writer
	environ []string
	load    func(context.Context, model.LoadParams, model.Progress) (model.Model, error)
	// ready, when set, receives the line protocol address once bound.
	ready func(net.Addr)
}

func newApp() *app {
	return &app{
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		environ: os.Environ(),
		load:    model.Load,
	}
}

// Execute runs the command line in args until ctx is done.
func Execute(ctx context.Context, args []string) error {
	cmd := newRootCmd(newApp())
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	fv := &flagValues{}
	root := &cobra.Command{
		Use:   "llmsock",
		Short: "Serve a local language model over a line-based TCP protocol",
		Long: "llmsock loads a model once and answers every line received on a TCP\n" +
			"connection with a streamed completion followed by a timing footer.",
		Example:       "  llmsock -m ./models/tinyllama.gguf -T ./prompt.txt -p 3000",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Flags(), fv, a.environ)
			if err != nil {
				return err
			}
			return a.serve(cmd.Context(), cfg)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	addServeFlags(root.Flags(), fv)
	root.AddCommand(newInspectCmd(a), newVersionCmd(a))
	return root
}
