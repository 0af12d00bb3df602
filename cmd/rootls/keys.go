package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/danmuck/rootio/internal/protocol"
	"github.com/danmuck/rootio/internal/rootfile"
	"github.com/spf13/cobra"
)

func newKeysCmd(a *app) *cobra.Command {
	var read bool
	cmd := &cobra.Command{
		Use:   "keys <file> [dir]",
		Short: "List the keys of a directory",
		Long: `List the keys of the top directory, or of a slash-separated
subdirectory path.

Example:
  rootls keys run.root
  rootls keys run.root calib/2024 --read`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			file, stack, err := a.open(ctx, args[0])
			if err != nil {
				return err
			}
			defer stack.Close()

			dir := ""
			if len(args) == 2 {
				dir = args[1]
			}
			keys, err := listKeys(cmd, file, dir)
			if err != nil {
				return err
			}
			var results []rootfile.Result
			if read {
				results = rootfile.ReadAll(ctx, file.Reader(), keys.Keys, a.cfg.Parallelism)
			}
			return printKeys(a.out, keys, results)
		},
	}
	cmd.Flags().BoolVar(&read, "read", false, "decode every object and report its status")
	return cmd
}

func listKeys(cmd *cobra.Command, file *rootfile.File, dir string) (*rootfile.KeyList, error) {
	ctx := cmd.Context()
	if dir == "" {
		return file.Keys(ctx)
	}
	d, err := file.Dir(ctx, dir)
	if err != nil {
		return nil, err
	}
	return d.Keys(ctx, file.Reader())
}

func printKeys(out io.Writer, keys *rootfile.KeyList, results []rootfile.Result) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	header := "NAME\tCYCLE\tCLASS\tNBYTES\tOBJLEN\tCOMPRESSED\tWRITTEN"
	if results != nil {
		header += "\tSTATUS"
	}
	fmt.Fprintln(w, header)
	for i, k := range keys.Keys {
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%d\t%t\t%s", k.Name, k.Cycle, k.ClassName, k.Nbytes, k.Objlen, k.IsCompressed(), k.Datime)
		if results != nil {
			status := "ok"
			if err := results[i].Err; err != nil {
				status = protocol.KindOf(err)
			}
			fmt.Fprintf(w, "\t%s", status)
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}
