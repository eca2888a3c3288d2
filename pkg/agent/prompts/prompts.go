// Package prompts renders the model prompts from embedded templates.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/malbeclabs/sensorlake/pkg/dataset"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var templateFuncs = template.FuncMap{
	// Models know the strftime spelling of dataset.TimeLayout better.
	"timeLayout": func() string { return "%Y-%m-%d %H:%M:%S" },
}

var templates = template.Must(template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.tmpl"))

// RouterData fills router.tmpl.
type RouterData struct {
	Summary dataset.Summary
}

// AnalyzeData fills analyze.tmpl.
type AnalyzeData struct {
	Summary dataset.Summary
	Table   string
}

// ChartData fills chart.tmpl.
type ChartData struct {
	Request string
	Summary dataset.Summary
	// Stacked asks for one panel per measure.
	Stacked bool
}

func Router(data RouterData) (string, error) {
	return render("router.tmpl", data)
}

func Analyze(data AnalyzeData) (string, error) {
	return render("analyze.tmpl", data)
}

func Chart(data ChartData) (string, error) {
	return render("chart.tmpl", data)
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
