package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/sensorlake/pkg/assistant"
	"github.com/malbeclabs/sensorlake/pkg/chart"
	"github.com/malbeclabs/sensorlake/pkg/config"
	"github.com/malbeclabs/sensorlake/pkg/dataset"
	"github.com/malbeclabs/sensorlake/pkg/router"
)

func TestCLI_RootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCmd(BuildInfo{Version: "v1.2.3", Commit: "abc", Date: "today"})
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "mcp", "ask", "show", "export"})
	assert.Contains(t, root.Version, "v1.2.3")
}

func TestCLI_Setup_FlagsOverrideEnvAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensorlake.yaml")
	require.NoError(t, os.WriteFile(path, []byte("table: FromFile\nmax_rounds: 4\n"), 0o644))
	t.Setenv(config.EnvTable, "")
	t.Setenv(config.EnvModel, "model-from-env")
	t.Setenv(config.EnvAWSRegion, "")

	var got *config.Config
	root := NewRootCmd(BuildInfo{})
	root.AddCommand(&cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := setup(cmd)
			got = cfg
			return err
		},
	})
	root.SetArgs([]string{"probe", "--config", path, "--region", "eu-west-1"})
	root.SetOut(&bytes.Buffer{})
	require.NoError(t, root.Execute())

	require.NotNil(t, got)
	assert.Equal(t, "FromFile", got.Table)
	assert.Equal(t, 4, got.MaxRounds)
	assert.Equal(t, "model-from-env", got.Model)
	assert.Equal(t, "eu-west-1", got.AWSRegion)
}

func TestCLI_PrintResult(t *testing.T) {
	t.Parallel()

	t.Run("analysis prints the answer", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		err := printResult(&buf, &assistant.Result{Response: &router.Response{Kind: router.KindAnalysis, Answer: "21.3 °C"}}, "")
		require.NoError(t, err)
		assert.Equal(t, "21.3 °C\n", buf.String())
	})

	t.Run("chart is written to out", func(t *testing.T) {
		t.Parallel()

		out := filepath.Join(t.TempDir(), "chart.png")
		var buf bytes.Buffer
		err := printResult(&buf, &assistant.Result{
			Response: &router.Response{Kind: router.KindChart, Explanation: "Chart generated"},
			PNG:      []byte("png"),
		}, out)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "Chart written to "+out)

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, []byte("png"), data)
	})

	t.Run("render error prints the code", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		err := printResult(&buf, &assistant.Result{
			Response:    &router.Response{Kind: router.KindChart, Explanation: "Chart generated"},
			RenderError: &chart.RenderError{Message: "invalid chart spec", Code: "plt.show()"},
		}, "unused.png")
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "invalid chart spec")
		assert.Contains(t, buf.String(), "plt.show()")
	})
}

func TestCLI_PrintDataset(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ds := dataset.New([]dataset.Record{
		{Index: 0, Fecha: base, Temperatura: 20, Humedad: 50},
		{Index: 1, Fecha: base.Add(time.Hour), Temperatura: 21, Humedad: 52},
		{Index: 2, Fecha: base.Add(2 * time.Hour), Temperatura: 22, Humedad: 54},
	})

	var buf bytes.Buffer
	printDataset(&buf, ds, 2)
	out := buf.String()
	assert.NotContains(t, out, "| 0 |")
	assert.Contains(t, out, "| 1 |")
	assert.Contains(t, out, "2024-01-01 01:00:00")
	assert.Contains(t, out, "2024-01-01 02:00:00")
	assert.Contains(t, out, "22.00")
	assert.Contains(t, out, "Rows: 3")
}
