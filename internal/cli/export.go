package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/malbeclabs/sensorlake/pkg/dataset"
)

type ExportCmd struct{}

func NewExportCmd() *ExportCmd {
	return &ExportCmd{}
}

func (c *ExportCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "export <path | s3://bucket/key>",
		Short: "Write the cleaned dataset as CSV; a .gz suffix compresses it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, cfg, err := setup(cmd)
			if err != nil {
				return err
			}

			st, err := newSource(cmd.Context(), log, cfg)
			if err != nil {
				return err
			}
			ds, err := st.source.Load(cmd.Context())
			if err != nil {
				return err
			}

			exporter := &dataset.Exporter{S3: st.s3}
			if err := exporter.Export(cmd.Context(), ds, args[0]); err != nil {
				return err
			}
			log.Info("export: wrote dataset", "destination", args[0], "rows", ds.Len())
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rows to %s\n", ds.Len(), args[0])
			return nil
		},
	}
}
