package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/sensorlake/pkg/agent/react"
)

const AnalyzeToolName = "analyze_data"

type AnalyzeInput struct {
	Question string `json:"question" jsonschema:"The statistical question to answer about the sensor data, in the user's words"`
}

// Analyst answers a question about the dataset in natural language.
type Analyst interface {
	Analyze(ctx context.Context, question string) (string, error)
}

// AnalyzeTool exposes an Analyst as the analyze_data tool. The analyst's
// answer is returned verbatim.
type AnalyzeTool struct {
	log     *slog.Logger
	analyst Analyst
}

func NewAnalyzeTool(log *slog.Logger, analyst Analyst) *AnalyzeTool {
	return &AnalyzeTool{log: log, analyst: analyst}
}

func (t *AnalyzeTool) ListTools(ctx context.Context) ([]react.Tool, error) {
	schema, err := inputSchema[AnalyzeInput]()
	if err != nil {
		return nil, err
	}
	return []react.Tool{
		{
			Name:        AnalyzeToolName,
			Description: "Use this to answer statistical questions, calculations, means, sums, counts and similar questions about the data.",
			InputSchema: schema,
		},
	}, nil
}

func (t *AnalyzeTool) CallToolText(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	if name != AnalyzeToolName {
		return "", true, fmt.Errorf("unknown tool: %s", name)
	}
	question, err := stringArg(args, "question")
	if err != nil {
		return "", true, err
	}

	answer, err := t.analyst.Analyze(ctx, question)
	if err != nil {
		t.log.Warn("tools: analysis failed", "error", err)
		return fmt.Sprintf("Error analyzing data: %v", err), true, nil
	}
	return answer, false, nil
}

type ReactAnalystConfig struct {
	Logger *slog.Logger
	// LLM must already carry the analyst system prompt.
	LLM       react.LLMClient
	Tools     react.ToolClient
	MaxRounds int
}

func (cfg *ReactAnalystConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.LLM == nil {
		return errors.New("LLM is required")
	}
	if cfg.Tools == nil {
		return errors.New("tools are required")
	}
	return nil
}

// ReactAnalyst answers questions with its own ReAct loop, typically over a
// QueryTool.
type ReactAnalyst struct {
	cfg *ReactAnalystConfig
}

func NewReactAnalyst(cfg *ReactAnalystConfig) (*ReactAnalyst, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ReactAnalyst{cfg: cfg}, nil
}

func (a *ReactAnalyst) Analyze(ctx context.Context, question string) (string, error) {
	agent, err := react.NewAgent(&react.Config{
		Logger:     a.cfg.Logger,
		LLM:        a.cfg.LLM,
		ToolClient: a.cfg.Tools,
		MaxRounds:  a.cfg.MaxRounds,
	})
	if err != nil {
		return "", err
	}

	result, err := agent.Run(ctx, []react.Message{a.cfg.LLM.CreateUserMessage(question)}, nil)
	if err != nil {
		return "", err
	}
	if result.FinalText == "" {
		return "", errors.New("analyst returned no answer")
	}
	return result.FinalText, nil
}
