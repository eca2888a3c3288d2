package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/malbeclabs/sensorlake/pkg/dataset"
)

type ShowCmd struct{}

func NewShowCmd() *ShowCmd {
	return &ShowCmd{}
}

func (c *ShowCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the cleaned dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return fmt.Errorf("failed to get limit flag: %w", err)
			}

			st, err := newSource(cmd.Context(), log, cfg)
			if err != nil {
				return err
			}
			ds, err := st.source.Load(cmd.Context())
			if err != nil {
				return err
			}
			printDataset(cmd.OutOrStdout(), ds, limit)
			return nil
		},
	}

	cmd.Flags().IntP("limit", "n", 20, "print only the last N rows (0 prints all)")

	return cmd
}

func printDataset(w io.Writer, ds *dataset.Dataset, limit int) {
	records := ds.Records()
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}

	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetHeader([]string{"#", dataset.ColumnFecha, dataset.ColumnTemperatura, dataset.ColumnHumedad})
	for _, r := range records {
		table.Append([]string{
			strconv.Itoa(r.Index),
			r.Fecha.Format(dataset.TimeLayout),
			strconv.FormatFloat(r.Temperatura, 'f', 2, 64),
			strconv.FormatFloat(r.Humedad, 'f', 2, 64),
		})
	}
	table.Render()

	fmt.Fprintln(w, ds.Summary().String())
}
