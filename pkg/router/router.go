// Package router turns a free-text instruction into either a chart or an
// analysis response by running a tool-calling loop and inspecting its trace.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/malbeclabs/sensorlake/pkg/agent/react"
	"github.com/malbeclabs/sensorlake/pkg/metrics"
	"github.com/malbeclabs/sensorlake/pkg/sentinel"
)

const (
	DefaultExplanation = "Chart generated"

	extractionFailedAnswer = "Sorry, the chart could not be prepared because its code came back incomplete. Please try rephrasing the request."
	reasoningFailedAnswer  = "Sorry, the request could not be completed: %v"
	exhaustedAnswer        = "Sorry, no answer was reached within the allowed number of steps. Please try a more specific request."
)

var ErrEmptyInstruction = errors.New("instruction is empty")

type Kind string

const (
	KindChart    Kind = "chart"
	KindAnalysis Kind = "analysis"
)

// Degradation causes, also used as metric labels.
const (
	CauseExtraction = "extraction"
	CauseReasoning  = "reasoning"
	CauseTimeout    = "timeout"
	CauseParse      = "parse"
	CauseExhausted  = "exhausted"
)

// Response is the outcome of one instruction. Code and Explanation are set
// for charts, Answer for analyses.
type Response struct {
	Kind        Kind   `json:"kind"`
	Input       string `json:"input"`
	Code        string `json:"code,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	Answer      string `json:"answer,omitempty"`
	// Degraded names the failure that turned the response into an analysis.
	Degraded  string       `json:"degraded,omitempty"`
	Steps     []react.Step `json:"-"`
	ToolsUsed []string     `json:"tools_used,omitempty"`
}

type Config struct {
	Logger *slog.Logger
	// LLM must already carry the router system prompt.
	LLM       react.LLMClient
	Tools     react.ToolClient
	MaxRounds int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.LLM == nil {
		return errors.New("LLM is required")
	}
	if cfg.Tools == nil {
		return errors.New("tools are required")
	}
	if cfg.MaxRounds < 0 {
		return errors.New("max rounds must not be negative")
	}
	return nil
}

// Router holds no per-instruction state; Respond may be called concurrently.
type Router struct {
	log *slog.Logger
	cfg *Config
}

func New(cfg *Config) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Router{log: cfg.Logger, cfg: cfg}, nil
}

// Respond runs the instruction through the tool-calling loop. Model and
// extraction failures degrade to an analysis response; the returned error
// is reserved for empty instructions, cancellation, and broken wiring.
func (r *Router) Respond(ctx context.Context, instruction string) (*Response, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, ErrEmptyInstruction
	}

	agent, err := react.NewAgent(&react.Config{
		Logger:     r.log,
		LLM:        r.cfg.LLM,
		ToolClient: r.cfg.Tools,
		MaxRounds:  r.cfg.MaxRounds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	r.log.Debug("router: responding", "instruction", instruction)

	result, err := agent.Run(ctx, []react.Message{r.cfg.LLM.CreateUserMessage(instruction)}, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return r.degradeOnError(instruction, err)
	}

	resp := r.classify(instruction, result)
	metrics.ResponsesTotal.WithLabelValues(string(resp.Kind)).Inc()
	r.log.Info("router: responded", "kind", resp.Kind, "tools", result.ToolsUsed, "steps", len(result.Steps), "degraded", resp.Degraded)
	return resp, nil
}

func (r *Router) classify(instruction string, result *react.RunResult) *Response {
	for _, step := range result.Steps {
		if !sentinel.Contains(step.Observation) {
			continue
		}
		code, ok, err := sentinel.Extract(step.Observation)
		if err != nil {
			r.log.Warn("router: chart code could not be extracted", "tool", step.Action.Name, "error", err)
			return r.degraded(instruction, result, CauseExtraction, extractionFailedAnswer)
		}
		if !ok {
			continue
		}
		explanation := strings.TrimSpace(result.FinalText)
		if explanation == "" {
			explanation = DefaultExplanation
		}
		return &Response{
			Kind:        KindChart,
			Input:       instruction,
			Code:        code,
			Explanation: explanation,
			Steps:       result.Steps,
			ToolsUsed:   result.ToolsUsed,
		}
	}

	if result.Exhausted {
		return r.degraded(instruction, result, CauseExhausted, exhaustedAnswer)
	}

	return &Response{
		Kind:      KindAnalysis,
		Input:     instruction,
		Answer:    strings.TrimSpace(result.FinalText),
		Steps:     result.Steps,
		ToolsUsed: result.ToolsUsed,
	}
}

func (r *Router) degraded(instruction string, result *react.RunResult, cause, answer string) *Response {
	metrics.DegradedResponsesTotal.WithLabelValues(cause).Inc()
	resp := &Response{
		Kind:     KindAnalysis,
		Input:    instruction,
		Answer:   answer,
		Degraded: cause,
	}
	if result != nil {
		resp.Steps = result.Steps
		resp.ToolsUsed = result.ToolsUsed
	}
	return resp
}

// degradeOnError maps loop failures to analysis responses. Errors that are
// not model failures are returned as-is.
func (r *Router) degradeOnError(instruction string, err error) (*Response, error) {
	var (
		cause     string
		parseErr  *react.ParseError
		reasonErr *react.ReasoningError
	)
	switch {
	case errors.Is(err, react.ErrReasoningTimeout):
		cause = CauseTimeout
	case errors.As(err, &parseErr):
		cause = CauseParse
	case errors.As(err, &reasonErr):
		cause = CauseReasoning
	default:
		return nil, err
	}

	r.log.Warn("router: degrading to analysis", "cause", cause, "error", err)
	resp := r.degraded(instruction, nil, cause, fmt.Sprintf(reasoningFailedAnswer, err))
	metrics.ResponsesTotal.WithLabelValues(string(resp.Kind)).Inc()
	return resp, nil
}
