package chart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/malbeclabs/sensorlake/pkg/dataset"
	"github.com/malbeclabs/sensorlake/pkg/metrics"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxPoints   = 2000
	defaultWidth       = 1024
	defaultPanelHeight = 400

	maxBars = 60
)

type Config struct {
	Logger *slog.Logger
	// Timeout bounds one Render call.
	Timeout time.Duration
	// MaxPoints caps the points drawn per series; larger selections are
	// downsampled evenly, keeping both ends.
	MaxPoints   int
	Width       int
	PanelHeight int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxPoints == 0 {
		cfg.MaxPoints = defaultMaxPoints
	}
	if cfg.Width == 0 {
		cfg.Width = defaultWidth
	}
	if cfg.PanelHeight == 0 {
		cfg.PanelHeight = defaultPanelHeight
	}
	if cfg.Timeout < 0 {
		return errors.New("timeout must be greater than 0")
	}
	if cfg.MaxPoints < 2 {
		return errors.New("max points must be at least 2")
	}
	if cfg.Width < 100 || cfg.PanelHeight < 100 {
		return errors.New("width and panel height must be at least 100 pixels")
	}
	return nil
}

// Figure is a rendered chart. It is only valid inside the Render callback;
// its buffer is recycled once the callback returns.
type Figure struct {
	Spec   *Spec
	Width  int
	Height int
	// Points is the number of points drawn per series.
	Points int

	buf *bytes.Buffer
}

// PNG returns the encoded image. The slice must not be retained after the
// callback returns.
func (f *Figure) PNG() []byte {
	if f.buf == nil {
		return nil
	}
	return f.buf.Bytes()
}

func (f *Figure) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.PNG())
	return int64(n), err
}

// Renderer draws chart specs against a private copy of a dataset.
type Renderer struct {
	log     *slog.Logger
	cfg     *Config
	buffers sync.Pool
}

func NewRenderer(cfg *Config) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Renderer{
		log: cfg.Logger,
		cfg: cfg,
		buffers: sync.Pool{
			New: func() any { return new(bytes.Buffer) },
		},
	}, nil
}

// Render parses code as a Spec, draws it and hands the figure to fn. The
// figure is released when fn returns. Every failure to produce a figure,
// including panics and timeouts, is a *RenderError carrying code; an error
// returned by fn is passed through wrapped.
func (r *Renderer) Render(ctx context.Context, code string, ds *dataset.Dataset, fn func(*Figure) error) error {
	start := time.Now()
	defer func() {
		metrics.RenderDuration.Observe(time.Since(start).Seconds())
	}()

	fail := func(msg string) error {
		metrics.RenderErrorsTotal.Inc()
		r.log.Warn("chart: render failed", "error", msg)
		return &RenderError{Message: msg, Code: code}
	}
	if ds == nil {
		return fail("no dataset")
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	type result struct {
		fig *Figure
		err error
	}
	done := make(chan result, 1)
	records := ds.Records()

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("renderer panic: %v", p)}
			}
		}()
		fig, err := r.draw(ctx, code, records)
		done <- result{fig: fig, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fail(fmt.Sprintf("timed out after %s", r.cfg.Timeout))
		}
		return fail("canceled")
	}
	if res.err != nil {
		return fail(res.err.Error())
	}
	defer r.release(res.fig)

	if fn == nil {
		return nil
	}
	if err := fn(res.fig); err != nil {
		return fmt.Errorf("chart callback failed: %w", err)
	}
	return nil
}

func (r *Renderer) release(fig *Figure) {
	if fig == nil || fig.buf == nil {
		return
	}
	buf := fig.buf
	fig.buf = nil
	buf.Reset()
	r.buffers.Put(buf)
}

type points struct {
	times  []time.Time
	values map[string][]float64
}

func (r *Renderer) draw(ctx context.Context, code string, records []dataset.Record) (*Figure, error) {
	spec, err := Parse(code)
	if err != nil {
		return nil, err
	}

	records, err = r.selectRange(spec, records)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("no readings in the selected range")
	}

	pts := aggregate(records, spec.Aggregate)
	limit := r.cfg.MaxPoints
	if spec.Kind == KindBar && limit > maxBars {
		limit = maxBars
	}
	pts = downsample(pts, limit)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var groups [][]Panel
	if spec.Layout == LayoutStacked {
		for _, p := range spec.Panels {
			groups = append(groups, []Panel{p})
		}
	} else {
		groups = [][]Panel{spec.Panels}
	}

	width := r.cfg.Width
	height := r.cfg.PanelHeight * len(groups)
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, group := range groups {
		title := group[0].Label
		if i == 0 && spec.Title != "" {
			title = spec.Title
		}
		img, err := r.drawPanel(spec.Kind, title, group, pts)
		if err != nil {
			return nil, fmt.Errorf("panel %d: %w", i, err)
		}
		offset := image.Pt(0, i*r.cfg.PanelHeight)
		draw.Draw(canvas, img.Bounds().Add(offset), img, img.Bounds().Min, draw.Src)

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	buf := r.buffers.Get().(*bytes.Buffer)
	buf.Reset()
	if err := png.Encode(buf, canvas); err != nil {
		r.buffers.Put(buf)
		return nil, fmt.Errorf("failed to encode figure: %w", err)
	}

	return &Figure{
		Spec:   spec,
		Width:  width,
		Height: height,
		Points: len(pts.times),
		buf:    buf,
	}, nil
}

// selectRange keeps records inside the spec's inclusive bounds. Bounds are
// always parsed with dataset.TimeLayout. A bound that does not parse is
// not-a-time, which no record satisfies, so it fails the selection.
func (r *Renderer) selectRange(spec *Spec, records []dataset.Record) ([]dataset.Record, error) {
	from, hasFrom, err := parseBound("from", spec.From)
	if err != nil {
		return nil, err
	}
	to, hasTo, err := parseBound("to", spec.To)
	if err != nil {
		return nil, err
	}
	if !hasFrom && !hasTo {
		return records, nil
	}

	out := records[:0]
	for _, rec := range records {
		if hasFrom && rec.Fecha.Before(from) {
			continue
		}
		if hasTo && rec.Fecha.After(to) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseBound(name, s string) (time.Time, bool, error) {
	if s == "" {
		return time.Time{}, false, nil
	}
	t, ok := dataset.ParseTime(s)
	if !ok {
		return time.Time{}, false, fmt.Errorf("%s bound %q is not in the %s format, no readings match it", name, s, dataset.TimeLayout)
	}
	return t, true, nil
}

func aggregate(records []dataset.Record, agg Aggregate) points {
	pts := points{values: map[string][]float64{}}
	if agg == AggregateNone {
		for _, rec := range records {
			pts.times = append(pts.times, rec.Fecha)
			pts.values[dataset.ColumnTemperatura] = append(pts.values[dataset.ColumnTemperatura], rec.Temperatura)
			pts.values[dataset.ColumnHumedad] = append(pts.values[dataset.ColumnHumedad], rec.Humedad)
		}
		return pts
	}

	bucketOf := func(t time.Time) time.Time { return t.Truncate(time.Hour) }
	if agg == AggregateDaily {
		bucketOf = func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		}
	}

	// Records are sorted by fecha, so buckets arrive in order.
	var sumT, sumH float64
	var n int
	flush := func() {
		if n == 0 {
			return
		}
		pts.values[dataset.ColumnTemperatura] = append(pts.values[dataset.ColumnTemperatura], sumT/float64(n))
		pts.values[dataset.ColumnHumedad] = append(pts.values[dataset.ColumnHumedad], sumH/float64(n))
		sumT, sumH, n = 0, 0, 0
	}
	for _, rec := range records {
		b := bucketOf(rec.Fecha)
		if len(pts.times) == 0 || !pts.times[len(pts.times)-1].Equal(b) {
			flush()
			pts.times = append(pts.times, b)
		}
		sumT += rec.Temperatura
		sumH += rec.Humedad
		n++
	}
	flush()
	return pts
}

// downsample picks limit evenly spaced points, always including the first
// and the last.
func downsample(pts points, limit int) points {
	n := len(pts.times)
	if n <= limit {
		return pts
	}
	out := points{values: map[string][]float64{}}
	for i := 0; i < limit; i++ {
		idx := i * (n - 1) / (limit - 1)
		out.times = append(out.times, pts.times[idx])
		for col, vals := range pts.values {
			out.values[col] = append(out.values[col], vals[idx])
		}
	}
	return out
}

func columnColor(column string) drawing.Color {
	if column == dataset.ColumnHumedad {
		return chart.ColorBlue
	}
	return chart.ColorRed
}

func seriesStyle(kind Kind, col drawing.Color) chart.Style {
	if kind == KindScatter {
		return chart.Style{
			StrokeWidth: chart.Disabled,
			DotWidth:    3,
			DotColor:    col,
		}
	}
	return chart.Style{
		StrokeColor: col,
		StrokeWidth: 2,
	}
}

func (r *Renderer) drawPanel(kind Kind, title string, panels []Panel, pts points) (image.Image, error) {
	var buf bytes.Buffer
	width, height := r.cfg.Width, r.cfg.PanelHeight

	if kind == KindBar {
		p := panels[0]
		vals := pts.values[p.Column]
		bars := make([]chart.Value, len(vals))
		for i, v := range vals {
			bars[i] = chart.Value{Label: pts.times[i].Format("01-02 15:04"), Value: v}
		}
		barWidth := min(80, max(2, (width-120)/len(bars)-4))
		bc := chart.BarChart{
			Title:      title,
			Width:      width,
			Height:     height,
			BarWidth:   barWidth,
			BarSpacing: 4,
			Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
			YAxis:      chart.YAxis{Name: p.Label, Range: valueRange(vals)},
			Bars:       bars,
		}
		if err := bc.Render(chart.PNG, &buf); err != nil {
			return nil, err
		}
		return png.Decode(&buf)
	}

	times := pts.times
	if len(times) == 1 {
		// go-chart needs a non-zero x range.
		times = []time.Time{times[0], times[0].Add(time.Minute)}
	}

	ch := chart.Chart{
		Title:      title,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:           dataset.ColumnFecha,
			ValueFormatter: chart.TimeValueFormatterWithFormat("01-02 15:04"),
		},
	}
	for i, p := range panels {
		vals := pts.values[p.Column]
		if len(vals) == 1 {
			vals = []float64{vals[0], vals[0]}
		}
		series := chart.TimeSeries{
			Name:    p.Label,
			XValues: times,
			YValues: vals,
			Style:   seriesStyle(kind, columnColor(p.Column)),
		}
		if i == 0 {
			ch.YAxis = chart.YAxis{Name: p.Label, Range: valueRange(vals)}
		} else {
			series.YAxis = chart.YAxisSecondary
			ch.YAxisSecondary = chart.YAxis{Name: p.Label, Range: valueRange(vals)}
		}
		ch.Series = append(ch.Series, series)
	}
	if len(panels) > 1 {
		ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	}

	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return png.Decode(&buf)
}

// valueRange pads the data range so flat series still have a drawable axis.
func valueRange(vals []float64) *chart.ContinuousRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	pad := math.Max(0.5, (hi-lo)*0.05)
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}
