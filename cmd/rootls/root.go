package main

import (
	"context"
	"io"

	"github.com/danmuck/rootio/internal/rootfile"
	"github.com/danmuck/rootio/internal/source"
	"github.com/spf13/cobra"
)

type app struct {
	out         io.Writer
	configPath  string
	parallelism int
	cfg         cliConfig
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "rootls",
		Short: "Inspect ROOT files and the RNTuples they hold",
		Long: `rootls reads ROOT files from local disk or S3-compatible storage
and lists their keys, RNTuple schemas and page layout.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			a.cfg = defaultCLIConfig()
			if a.configPath != "" {
				cfg, err := loadCLIConfig(a.configPath)
				if err != nil {
					return err
				}
				a.cfg = cfg
			}
			if cmd.Flags().Changed("parallelism") {
				a.cfg.Parallelism = a.parallelism
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "cli-config", "", "rootls config file (TOML)")
	root.PersistentFlags().IntVarP(&a.parallelism, "parallelism", "p", 0, "concurrent object reads")

	root.AddCommand(newKeysCmd(a), newRNTupleCmd(a), newServeCmd(), newConfigCmd())
	return root
}

// open resolves target through the configured source and opens it as a
// ROOT file. The returned stack must be closed by the caller.
func (a *app) open(ctx context.Context, target string) (*rootfile.File, *source.Stack, error) {
	src, err := a.cfg.sourceFor(target)
	if err != nil {
		return nil, nil, err
	}
	stack, err := source.Open(ctx, src, a.cfg.Cache)
	if err != nil {
		return nil, nil, err
	}
	file, err := rootfile.Open(ctx, rootfile.NewReader(stack))
	if err != nil {
		_ = stack.Close()
		return nil, nil, err
	}
	return file, stack, nil
}
