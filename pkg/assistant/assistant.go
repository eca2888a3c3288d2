// Package assistant wires one instruction end to end: load the cleaned
// dataset, route the instruction, and render the chart when one comes back.
package assistant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/sensorlake/pkg/agent/prompts"
	"github.com/malbeclabs/sensorlake/pkg/agent/react"
	"github.com/malbeclabs/sensorlake/pkg/agent/tools"
	"github.com/malbeclabs/sensorlake/pkg/chart"
	"github.com/malbeclabs/sensorlake/pkg/dataset"
	"github.com/malbeclabs/sensorlake/pkg/duck"
	"github.com/malbeclabs/sensorlake/pkg/router"
)

// LLMFactory returns a tool-calling model client bound to a system prompt.
type LLMFactory func(systemPrompt string) (react.LLMClient, error)

type Config struct {
	Logger    *slog.Logger
	Clock     clockwork.Clock
	Source    dataset.Source
	NewLLM    LLMFactory
	Completer react.Completer
	Renderer  *chart.Renderer

	MaxRounds    int
	QueryMaxRows int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Source == nil {
		return errors.New("source is required")
	}
	if cfg.NewLLM == nil {
		return errors.New("LLM factory is required")
	}
	if cfg.Completer == nil {
		return errors.New("completer is required")
	}
	if cfg.Renderer == nil {
		return errors.New("renderer is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Result is the outcome of Handle. PNG is set when a chart rendered;
// RenderError when the chart spec could not be drawn.
type Result struct {
	Response    *router.Response
	PNG         []byte
	RenderError *chart.RenderError
	Duration    time.Duration
}

type Assistant struct {
	log *slog.Logger
	cfg *Config
}

func New(cfg *Config) (*Assistant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Assistant{log: cfg.Logger, cfg: cfg}, nil
}

// Dataset returns the current cleaned dataset.
func (a *Assistant) Dataset(ctx context.Context) (*dataset.Dataset, error) {
	return a.cfg.Source.Load(ctx)
}

// Handle processes one instruction start to finish. Every collaborator that
// holds request state is built here and dropped on return.
func (a *Assistant) Handle(ctx context.Context, instruction string) (*Result, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, router.ErrEmptyInstruction
	}
	start := a.cfg.Clock.Now()

	ds, err := a.cfg.Source.Load(ctx)
	if err != nil {
		return nil, err
	}

	db, err := duck.Open(ctx, &duck.Config{Logger: a.log, Dataset: ds, MaxRows: a.cfg.QueryMaxRows})
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rt, err := a.newRouter(ctx, ds, db)
	if err != nil {
		return nil, err
	}

	resp, err := rt.Respond(ctx, instruction)
	if err != nil {
		return nil, err
	}

	result := &Result{Response: resp}
	if resp.Kind == router.KindChart {
		err := a.cfg.Renderer.Render(ctx, resp.Code, ds, func(fig *chart.Figure) error {
			result.PNG = bytes.Clone(fig.PNG())
			return nil
		})
		var renderErr *chart.RenderError
		switch {
		case errors.As(err, &renderErr):
			a.log.Warn("assistant: chart could not be rendered", "error", renderErr.Message)
			result.RenderError = renderErr
		case err != nil:
			return nil, err
		}
	}

	result.Duration = a.cfg.Clock.Since(start)
	a.log.Info("assistant: handled instruction", "kind", resp.Kind, "duration", result.Duration, "rendered", result.PNG != nil)
	return result, nil
}

func (a *Assistant) newRouter(ctx context.Context, ds *dataset.Dataset, db *duck.DB) (*router.Router, error) {
	summary := ds.Summary()

	analyzePrompt, err := prompts.Analyze(prompts.AnalyzeData{Summary: summary, Table: db.Describe()})
	if err != nil {
		return nil, err
	}
	analystLLM, err := a.cfg.NewLLM(analyzePrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyst model: %w", err)
	}
	analyst, err := tools.NewReactAnalyst(&tools.ReactAnalystConfig{
		Logger:    a.log,
		LLM:       analystLLM,
		Tools:     tools.NewQueryTool(a.log, db),
		MaxRounds: a.cfg.MaxRounds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create analyst: %w", err)
	}

	toolClient, err := tools.NewMultiToolClient(ctx,
		tools.NewAnalyzeTool(a.log, analyst),
		tools.NewChartTool(a.log, a.cfg.Completer, summary),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tools: %w", err)
	}

	routerPrompt, err := prompts.Router(prompts.RouterData{Summary: summary})
	if err != nil {
		return nil, err
	}
	routerLLM, err := a.cfg.NewLLM(routerPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to create router model: %w", err)
	}
	return router.New(&router.Config{
		Logger:    a.log,
		LLM:       routerLLM,
		Tools:     toolClient,
		MaxRounds: a.cfg.MaxRounds,
	})
}
