package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/malbeclabs/sensorlake/pkg/server"
)

type ServeCmd struct{}

func NewServeCmd() *ServeCmd {
	return &ServeCmd{}
}

func (c *ServeCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen-addr") {
				if cfg.ListenAddr, err = cmd.Flags().GetString("listen-addr"); err != nil {
					return fmt.Errorf("failed to get listen-addr flag: %w", err)
				}
			}
			origins, err := cmd.Flags().GetStringSlice("allowed-origins")
			if err != nil {
				return fmt.Errorf("failed to get allowed-origins flag: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			st, err := newStack(ctx, log, cfg)
			if err != nil {
				return err
			}
			if cfg.MetricsAddr != "" {
				if err := serveMetrics(ctx, log, cfg.MetricsAddr); err != nil {
					return err
				}
			}

			srv, err := server.New(&server.Config{
				Logger:         log,
				Assistant:      st.assist,
				ListenAddr:     cfg.ListenAddr,
				AllowedOrigins: origins,
			})
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}
			return srv.Run(ctx)
		},
	}

	cmd.Flags().String("listen-addr", "", "address for the HTTP API (default from config)")
	cmd.Flags().StringSlice("allowed-origins", nil, "CORS origins allowed to call the API")

	return cmd
}
