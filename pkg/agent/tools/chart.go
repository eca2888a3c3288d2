package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/malbeclabs/sensorlake/pkg/agent/prompts"
	"github.com/malbeclabs/sensorlake/pkg/agent/react"
	"github.com/malbeclabs/sensorlake/pkg/dataset"
	"github.com/malbeclabs/sensorlake/pkg/sentinel"
)

const ChartToolName = "chart_data"

const chartSystemPrompt = "You write chart specs as strict JSON. Output the JSON object only."

type ChartInput struct {
	Request string `json:"request" jsonschema:"What to plot, in the user's words, including any date range"`
}

// ChartTool asks the generation capability for a chart spec and returns it
// wrapped in sentinel markers.
type ChartTool struct {
	log       *slog.Logger
	completer react.Completer
	summary   dataset.Summary
}

func NewChartTool(log *slog.Logger, completer react.Completer, summary dataset.Summary) *ChartTool {
	return &ChartTool{log: log, completer: completer, summary: summary}
}

func (t *ChartTool) ListTools(ctx context.Context) ([]react.Tool, error) {
	schema, err := inputSchema[ChartInput]()
	if err != nil {
		return nil, err
	}
	return []react.Tool{
		{
			Name:        ChartToolName,
			Description: "Use this ONLY when the user explicitly asks for a chart, graph, plot, visualization or visual comparison.",
			InputSchema: schema,
		},
	}, nil
}

func (t *ChartTool) CallToolText(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	if name != ChartToolName {
		return "", true, fmt.Errorf("unknown tool: %s", name)
	}
	request, err := stringArg(args, "request")
	if err != nil {
		return "", true, err
	}

	prompt, err := prompts.Chart(prompts.ChartData{
		Request: request,
		Summary: t.summary,
		Stacked: MentionsBothMeasures(request),
	})
	if err != nil {
		return "", true, err
	}

	out, err := t.completer.Complete(ctx, chartSystemPrompt, prompt)
	if err != nil {
		t.log.Warn("tools: chart generation failed", "error", err)
		return fmt.Sprintf("Error generating chart: %v", err), true, nil
	}

	code := sentinel.StripFences(out)
	t.log.Debug("tools: generated chart spec", "code", code)
	return sentinel.Wrap(code), false, nil
}

var (
	temperatureWords = []string{"temperatur", "temp"}
	humidityWords    = []string{"humed", "humid"}
)

// MentionsBothMeasures reports whether a request names both temperature and
// humidity, in Spanish or English.
func MentionsBothMeasures(request string) bool {
	s := strings.ToLower(request)
	return containsAny(s, temperatureWords) && containsAny(s, humidityWords)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
