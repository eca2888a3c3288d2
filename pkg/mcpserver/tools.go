package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/malbeclabs/sensorlake/pkg/dataset"
	"github.com/malbeclabs/sensorlake/pkg/metrics"
)

const (
	RespondToolName        = "respond"
	DatasetSummaryToolName = "dataset_summary"
)

type RespondInput struct {
	Instruction string `json:"instruction" jsonschema:"A question about the sensor data or a request for a chart, in natural language"`
}

type RespondOutput struct {
	Kind        string `json:"kind"`
	Input       string `json:"input"`
	Answer      string `json:"answer,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	Code        string `json:"code,omitempty"`
	Degraded    string `json:"degraded,omitempty"`
	RenderError string `json:"render_error,omitempty"`
}

type DatasetSummaryInput struct{}

type DatasetSummaryOutput struct {
	Rows        int                 `json:"rows"`
	From        string              `json:"from,omitempty"`
	To          string              `json:"to,omitempty"`
	Temperatura dataset.ColumnStats `json:"temperatura"`
	Humedad     dataset.ColumnStats `json:"humedad"`
}

func RegisterRespondTool(log *slog.Logger, server *mcp.Server, a Assistant) error {
	in, err := jsonschema.For[RespondInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create respond input schema: %w", err)
	}
	out, err := jsonschema.For[RespondOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create respond output schema: %w", err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name: RespondToolName,
		Description: "Answer a statistical question about the temperature and humidity sensor dataset, " +
			"or draw a chart when one is explicitly requested. Charts are returned as a PNG image.",
		InputSchema:  in,
		OutputSchema: out,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, req RespondInput) (*mcp.CallToolResult, RespondOutput, error) {
		start := time.Now()
		log.Debug("mcpserver: handling respond", "instruction", req.Instruction)

		res, err := a.Handle(ctx, req.Instruction)
		observe(RespondToolName, start, err)
		if err != nil {
			return nil, RespondOutput{}, err
		}

		output := RespondOutput{
			Kind:        string(res.Response.Kind),
			Input:       res.Response.Input,
			Answer:      res.Response.Answer,
			Explanation: res.Response.Explanation,
			Code:        res.Response.Code,
			Degraded:    res.Response.Degraded,
		}
		if res.RenderError != nil {
			output.RenderError = res.RenderError.Message
		}

		text := output.Answer
		if text == "" {
			text = output.Explanation
		}
		if output.RenderError != "" {
			text = fmt.Sprintf("%s\nThe chart could not be rendered: %s", text, output.RenderError)
		}
		result := &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}
		if res.PNG != nil {
			result.Content = append(result.Content, &mcp.ImageContent{Data: res.PNG, MIMEType: "image/png"})
		}
		return result, output, nil
	})
	return nil
}

func RegisterDatasetSummaryTool(log *slog.Logger, server *mcp.Server, a Assistant) error {
	in, err := jsonschema.For[DatasetSummaryInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create dataset summary input schema: %w", err)
	}
	out, err := jsonschema.For[DatasetSummaryOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create dataset summary output schema: %w", err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:         DatasetSummaryToolName,
		Description:  "Summarize the cleaned sensor dataset: row count, time range, and min, max and mean of temperatura and humedad.",
		InputSchema:  in,
		OutputSchema: out,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ DatasetSummaryInput) (*mcp.CallToolResult, DatasetSummaryOutput, error) {
		start := time.Now()
		ds, err := a.Dataset(ctx)
		observe(DatasetSummaryToolName, start, err)
		if err != nil {
			return nil, DatasetSummaryOutput{}, err
		}

		summary := ds.Summary()
		output := DatasetSummaryOutput{
			Rows:        summary.Rows,
			Temperatura: summary.Temperatura,
			Humedad:     summary.Humedad,
		}
		if summary.Rows > 0 {
			output.From = summary.From.Format(dataset.TimeLayout)
			output.To = summary.To.Format(dataset.TimeLayout)
		}
		log.Debug("mcpserver: dataset summary", "rows", output.Rows)
		return nil, output, nil
	})
	return nil
}

func observe(tool string, start time.Time, err error) {
	name := "mcp_" + tool
	metrics.ToolCallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ToolCallsTotal.WithLabelValues(name, status).Inc()
}
