package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"llmsock/internal/common/fsutil"
	"llmsock/internal/gguf"
	"llmsock/internal/progress"
)

func newInspectCmd(a *app) *cobra.Command {
	var tensors bool
	cmd := &cobra.Command{
		Use:     "inspect <model.gguf>",
		Short:   "Print GGUF metadata",
		Example: "  llmsock inspect ./models/tinyllama.gguf",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspect(cmd.OutOrStdout(), args[0], tensors)
		},
	}
	cmd.Flags().BoolVar(&tensors, "tensors", false, "also list tensors")
	return cmd
}

func inspect(w io.Writer, path string, withTensors bool) error {
	abs, size, err := fsutil.RegularFile(path)
	if err != nil {
		return err
	}
	f, err := gguf.Open(abs)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", path, err)
	}

	summary := [][]string{
		{"path", abs},
		{"size", progress.HumanBytes(size)},
		{"architecture", f.Architecture()},
		{"gguf version", strconv.FormatUint(uint64(f.Version), 10)},
		{"tensors", strconv.Itoa(len(f.Tensors))},
		{"parameters", strconv.FormatUint(f.ParameterCount(), 10)},
		{"context length", strconv.FormatUint(f.ContextLength(), 10)},
	}
	render(w, nil, summary)
	fmt.Fprintln(w)

	var kvs [][]string
	for _, k := range f.KV.Keys() {
		kvs = append(kvs, []string{k, gguf.Format(f.KV[k])})
	}
	render(w, []string{"key", "value"}, kvs)

	if withTensors {
		fmt.Fprintln(w)
		var rows [][]string
		for _, t := range f.Tensors {
			rows = append(rows, []string{t.Name, fmt.Sprint(t.Shape), strconv.FormatUint(uint64(t.Kind), 10)})
		}
		render(w, []string{"tensor", "shape", "type"}, rows)
	}
	return nil
}

func render(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("  ")
	if header != nil {
		table.SetHeader(header)
		table.SetAutoFormatHeaders(false)
	}
	table.AppendBulk(rows)
	table.Render()
}
