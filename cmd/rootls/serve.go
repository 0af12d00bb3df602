package main

import (
	"github.com/danmuck/rootio/internal/auth"
	"github.com/danmuck/rootio/internal/config"
	"github.com/danmuck/rootio/internal/observability"
	"github.com/danmuck/rootio/internal/rntuple"
	"github.com/danmuck/rootio/internal/rootfile"
	"github.com/danmuck/rootio/internal/server"
	"github.com/danmuck/rootio/internal/source"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the inspection API for one file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServiceConfig(path)
			if err != nil {
				return err
			}
			observability.InitLogger(cfg.Name)
			ctx := cmd.Context()

			stack, err := source.Open(ctx, cfg.Source, cfg.Cache)
			if err != nil {
				return err
			}
			defer stack.Close()
			file, err := rootfile.Open(ctx, rootfile.NewReader(stack))
			if err != nil {
				return err
			}
			log.Info().
				Str("file", file.Top.Name).
				Str("version", file.Header.Version.String()).
				Msg("file opened")

			router := server.NewRouter(cfg.Name, cfg.CorsOrigins)
			srv := server.Attach(cfg.Name, router, cfg.BasePath, file, rntuple.Options{Parallelism: cfg.Parallelism})
			srv.Addr = cfg.Addr
			if cfg.AuthToken != "" {
				srv.Auth = auth.StaticToken{Token: cfg.AuthToken}
			}
			return srv.Serve()
		},
	}
	cmd.Flags().StringVar(&path, "config", "cmd/rootls/config.toml", "service config file (TOML)")
	return cmd
}
