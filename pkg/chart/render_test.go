package chart_test

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/sensorlake/pkg/chart"
	"github.com/malbeclabs/sensorlake/pkg/dataset"
	"github.com/malbeclabs/sensorlake/pkg/logger"
)

func testDataset(n int) *dataset.Dataset {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]dataset.Record, n)
	for i := range records {
		records[i] = dataset.Record{
			Index:       i,
			Fecha:       base.Add(time.Duration(i) * 30 * time.Minute),
			Temperatura: 20 + float64(i%5)*0.3,
			Humedad:     50 + float64(i%4),
		}
	}
	return dataset.New(records)
}

func newTestRenderer(t *testing.T, cfg *chart.Config) *chart.Renderer {
	t.Helper()
	if cfg == nil {
		cfg = &chart.Config{}
	}
	cfg.Logger = logger.Discard()
	cfg.Width = 400
	cfg.PanelHeight = 200
	r, err := chart.NewRenderer(cfg)
	require.NoError(t, err)
	return r
}

func TestChart_Config_Validate(t *testing.T) {
	t.Parallel()

	require.EqualError(t, (&chart.Config{}).Validate(), "logger is required")
	require.EqualError(t, (&chart.Config{Logger: logger.Discard(), MaxPoints: 1}).Validate(), "max points must be at least 2")
	require.EqualError(t, (&chart.Config{Logger: logger.Discard(), Width: 10}).Validate(), "width and panel height must be at least 100 pixels")

	cfg := &chart.Config{Logger: logger.Discard()}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 2000, cfg.MaxPoints)
}

func TestChart_Render_InvalidCodeIsRenderError(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t, nil)
	code := "fig,ax=plt.subplots(\nax.plot(df['fecha']"

	called := false
	err := r.Render(context.Background(), code, testDataset(10), func(*chart.Figure) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)

	var renderErr *chart.RenderError
	require.True(t, errors.As(err, &renderErr))
	assert.Equal(t, code, renderErr.Code)
	assert.Contains(t, renderErr.Message, "invalid chart spec")
}

func TestChart_Render_StackedPanels(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t, nil)
	code := `{"title": "Temperatura y humedad", "panels": [{"column": "temperatura"}, {"column": "humedad"}]}`

	var got []byte
	var fig *chart.Figure
	err := r.Render(context.Background(), code, testDataset(48), func(f *chart.Figure) error {
		fig = f
		got = append([]byte(nil), f.PNG()...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 400, fig.Width)
	assert.Equal(t, 400, fig.Height)
	assert.Equal(t, 48, fig.Points)

	img, err := png.Decode(bytes.NewReader(got))
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 400, img.Bounds().Dy())

	// The figure's buffer is released after the callback.
	assert.Nil(t, fig.PNG())
}

func TestChart_Render_KindsAndAggregates(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t, nil)
	for _, code := range []string{
		`{"kind": "line", "layout": "single", "panels": [{"column": "temperatura"}, {"column": "humedad"}]}`,
		`{"kind": "scatter", "panels": [{"column": "humedad"}]}`,
		`{"kind": "bar", "aggregate": "hourly", "panels": [{"column": "temperatura"}]}`,
		`{"kind": "line", "aggregate": "daily", "panels": [{"column": "temperatura"}]}`,
	} {
		err := r.Render(context.Background(), code, testDataset(100), func(f *chart.Figure) error {
			var buf bytes.Buffer
			_, err := f.WriteTo(&buf)
			if err != nil {
				return err
			}
			_, err = png.Decode(&buf)
			return err
		})
		require.NoError(t, err, code)
	}
}

func TestChart_Render_DateRange(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t, nil)
	ds := testDataset(48)

	var points int
	err := r.Render(context.Background(),
		`{"from": "2024-01-01 01:00:00", "to": "2024-01-01 02:00:00", "panels": [{"column": "temperatura"}]}`,
		ds, func(f *chart.Figure) error {
			points = f.Points
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, points)

	// The renderer works on a copy of the dataset.
	assert.Equal(t, 48, ds.Len())
}

func TestChart_Render_UnparseableBoundSelectsNothing(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t, nil)
	ds := testDataset(48)

	tests := []struct {
		name  string
		code  string
		bound string
	}{
		{name: "from", code: `{"from": "yesterday", "panels": [{"column": "temperatura"}]}`, bound: "from"},
		{name: "to iso format", code: `{"to": "2024-01-01T02:00:00Z", "panels": [{"column": "humedad"}]}`, bound: "to"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			called := false
			err := r.Render(context.Background(), tt.code, ds, func(*chart.Figure) error {
				called = true
				return nil
			})

			var renderErr *chart.RenderError
			require.True(t, errors.As(err, &renderErr))
			assert.Contains(t, renderErr.Message, tt.bound+" bound")
			assert.Equal(t, tt.code, renderErr.Code)
			assert.False(t, called)
		})
	}
}

func TestChart_Render_EmptySelection(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t, nil)
	code := `{"from": "2030-01-01 00:00:00", "panels": [{"column": "humedad"}]}`
	err := r.Render(context.Background(), code, testDataset(10), nil)

	var renderErr *chart.RenderError
	require.True(t, errors.As(err, &renderErr))
	assert.Contains(t, renderErr.Message, "no readings")
}

func TestChart_Render_SinglePoint(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t, nil)
	err := r.Render(context.Background(), `{"panels": [{"column": "temperatura"}]}`, testDataset(1), nil)
	require.NoError(t, err)
}

func TestChart_Render_Downsamples(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t, &chart.Config{MaxPoints: 10})
	var points int
	err := r.Render(context.Background(), `{"panels": [{"column": "temperatura"}]}`, testDataset(1000), func(f *chart.Figure) error {
		points = f.Points
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 10, points)
}

func TestChart_Render_Timeout(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t, &chart.Config{Timeout: time.Nanosecond})
	err := r.Render(context.Background(), `{"panels": [{"column": "temperatura"}]}`, testDataset(2000), nil)

	var renderErr *chart.RenderError
	require.True(t, errors.As(err, &renderErr))
}

func TestChart_Render_CallbackErrorPassesThrough(t *testing.T) {
	t.Parallel()

	r := newTestRenderer(t, nil)
	cause := errors.New("client went away")
	err := r.Render(context.Background(), `{"panels": [{"column": "temperatura"}]}`, testDataset(5), func(*chart.Figure) error {
		return cause
	})
	require.ErrorIs(t, err, cause)

	var renderErr *chart.RenderError
	assert.False(t, errors.As(err, &renderErr))
}
