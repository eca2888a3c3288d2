package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/malbeclabs/sensorlake/pkg/mcpserver"
)

type MCPCmd struct {
	info BuildInfo
}

func NewMCPCmd(info BuildInfo) *MCPCmd {
	return &MCPCmd{info: info}
}

func (c *MCPCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the assistant as MCP tools over streamable HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen-addr") {
				if cfg.MCPListenAddr, err = cmd.Flags().GetString("listen-addr"); err != nil {
					return fmt.Errorf("failed to get listen-addr flag: %w", err)
				}
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

			srv, err := mcpserver.New(&mcpserver.Config{
				Logger:     log,
				Assistant:  st.assist,
				Version:    c.info.Version,
				ListenAddr: cfg.MCPListenAddr,
			})
			if err != nil {
				return fmt.Errorf("failed to create mcp server: %w", err)
			}
			return srv.Run(ctx)
		},
	}

	cmd.Flags().String("listen-addr", "", "address for the MCP endpoint (default from config)")

	return cmd
}
