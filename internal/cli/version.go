package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"llmsock/internal/model"
	"llmsock/internal/model/llama"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "llmsock %s (%s, llama runtime built: %t, backends: %v)\n",
				Version, runtime.Version(), llama.Built, model.Backends())
			return nil
		},
	}
}
