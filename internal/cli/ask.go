package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/malbeclabs/sensorlake/pkg/assistant"
	"github.com/malbeclabs/sensorlake/pkg/router"
)

type AskCmd struct{}

func NewAskCmd() *AskCmd {
	return &AskCmd{}
}

func (c *AskCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <instruction>",
		Short: "Answer one instruction; charts are written as PNG",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			st, err := newStack(ctx, log, cfg)
			if err != nil {
				return err
			}
			res, err := st.assist.Handle(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res, out)
		},
	}

	cmd.Flags().StringP("out", "o", "chart.png", "path for the chart image")

	return cmd
}

func printResult(w io.Writer, res *assistant.Result, out string) error {
	resp := res.Response
	if resp.Kind == router.KindAnalysis {
		fmt.Fprintln(w, resp.Answer)
		return nil
	}

	fmt.Fprintln(w, resp.Explanation)
	if res.RenderError != nil {
		fmt.Fprintf(w, "The chart could not be rendered: %s\n\n%s\n", res.RenderError.Message, res.RenderError.Code)
		return nil
	}
	if err := os.WriteFile(out, res.PNG, 0o644); err != nil {
		return fmt.Errorf("failed to write chart: %w", err)
	}
	fmt.Fprintf(w, "Chart written to %s\n", out)
	return nil
}
