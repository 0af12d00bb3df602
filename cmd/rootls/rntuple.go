package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/danmuck/rootio/internal/protocol/compression"
	"github.com/danmuck/rootio/internal/rntuple"
	"github.com/spf13/cobra"
)

func newRNTupleCmd(a *app) *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "rntuple <file> <path>",
		Short: "Show the schema and page layout of an RNTuple",
		Long: `Resolve the RNTuple anchor stored under path and print its header,
schema, clusters and pages.

Example:
  rootls rntuple run.root Events
  rootls rntuple run.root calib/Events --verify`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			file, stack, err := a.open(ctx, args[0])
			if err != nil {
				return err
			}
			defer stack.Close()

			nt, err := rntuple.FromFile(ctx, file, args[1], rntuple.Options{Parallelism: a.cfg.Parallelism})
			if err != nil {
				return err
			}
			pages, err := nt.Pages()
			if err != nil {
				return err
			}
			if verify {
				codecs := compression.DefaultCodecs()
				for _, p := range pages {
					if _, err := rntuple.ReadPage(ctx, stack, codecs, p); err != nil {
						return fmt.Errorf("column %d cluster %d page %d: %w", p.Column, p.Cluster, p.Index, err)
					}
				}
			}
			return printRNTuple(a.out, nt, pages, verify)
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "fetch and decompress every page")
	return cmd
}

func printRNTuple(out io.Writer, nt *rntuple.RNTuple, pages []rntuple.Page, verified bool) error {
	h := nt.Header.Payload
	fmt.Fprintf(out, "name:        %s\n", h.Name)
	fmt.Fprintf(out, "description: %s\n", h.Description)
	fmt.Fprintf(out, "library:     %s\n", h.Library)
	fmt.Fprintf(out, "version:     %s\n", nt.Anchor.Version())
	fmt.Fprintf(out, "entries:     %d\n", nt.Entries())

	schema := nt.Schema()
	fmt.Fprintf(out, "\nfields (%d):\n", len(schema.Fields))
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tTYPE\tPARENT\tCOLUMNS")
	for i, f := range schema.Fields {
		cols := make([]string, 0)
		for _, c := range schema.ColumnsOf(uint32(i)) {
			cols = append(cols, strconv.Itoa(c))
		}
		fmt.Fprintf(w, "  %d\t%s\t%s\t%d\t%s\n", i, f.FieldName, f.TypeName, f.ParentFieldID, strings.Join(cols, ","))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\ncolumns (%d):\n", len(schema.Columns))
	w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tTYPE\tBITS\tFIELD")
	for i, c := range schema.Columns {
		fmt.Fprintf(w, "  %d\t%s\t%d\t%d\n", i, c.Type, c.BitsOnStorage, c.FieldID)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\ncluster groups (%d):\n", nt.Footer.Payload.ClusterGroups.Len())
	for i, g := range nt.Footer.Payload.ClusterGroups.Items {
		fmt.Fprintf(out, "  %d: entries [%d, %d) clusters=%d page_list=%s\n", i, g.MinEntry, g.MinEntry+g.EntrySpan, g.NClusters, g.PageList.Locator)
	}

	fmt.Fprintf(out, "\npages (%d):\n", len(pages))
	w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  CLUSTER\tCOLUMN\tELEMENTS\tOFFSET\tSIZE\tUNCOMPRESSED\tCHECKSUM")
	for _, p := range pages {
		fmt.Fprintf(w, "  %d\t%d\t%d\t%d\t%d\t%d\t%t\n", p.Cluster, p.Column, p.Elements(), p.Locator.Offset, p.Locator.Size, p.UncompressedSize, p.HasChecksum())
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if verified {
		fmt.Fprintf(out, "\nverified %d pages\n", len(pages))
	}
	return nil
}
