package react

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/malbeclabs/sensorlake/pkg/metrics"
)

const (
	defaultMaxRounds      = 6
	defaultMaxConcurrency = 4

	maxToolErrorRetries = 1
	maxParseRetries     = 1

	defaultFinalizationPrompt = "This is the last round. Give your final answer now based on what you have; do not call any more tools."
	toolErrorRetryPrompt      = "The previous tool call returned an error. Please fix the input and call the tool again before answering."
)

// Config is the configuration for the Agent.
type Config struct {
	Logger     *slog.Logger
	LLM        LLMClient
	ToolClient ToolClient
	MaxRounds  int
	// MaxConcurrency bounds how many tool calls of one round run at once.
	MaxConcurrency int
	// FinalizationPrompt is injected before the last round.
	FinalizationPrompt string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.LLM == nil {
		return errors.New("LLM is required")
	}
	if cfg.ToolClient == nil {
		return errors.New("tool client is required")
	}
	if cfg.MaxRounds == 0 {
		cfg.MaxRounds = defaultMaxRounds
	}
	if cfg.MaxRounds <= 0 {
		return errors.New("max rounds must be greater than 0")
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.MaxConcurrency <= 0 {
		return errors.New("max concurrency must be greater than 0")
	}
	if cfg.FinalizationPrompt == "" {
		cfg.FinalizationPrompt = defaultFinalizationPrompt
	}
	return nil
}

// Agent is a ReAct agent that can use tools to interact with an LLM.
type Agent struct {
	log *slog.Logger
	cfg *Config
}

// NewAgent creates a new ReAct agent.
func NewAgent(cfg *Config) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Agent{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Run executes the ReAct tool-calling loop. Every tool call and its
// observation is recorded in RunResult.Steps.
func (a *Agent) Run(ctx context.Context, initialMessages []Message, output io.Writer) (*RunResult, error) {
	msgs := make([]Message, len(initialMessages))
	copy(msgs, initialMessages)

	fullConversation := make([]Message, len(initialMessages))
	copy(fullConversation, initialMessages)

	var steps []Step
	toolsUsedSet := make(map[string]struct{})

	tools, err := a.cfg.ToolClient.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	var lastToolHadError bool
	var toolErrorRetries, parseRetries int

	for round := 0; round < a.cfg.MaxRounds; round++ {
		roundNum := round + 1
		a.log.Debug("react: starting round", "round", roundNum, "max_rounds", a.cfg.MaxRounds)

		isLastRound := round == a.cfg.MaxRounds-1
		if isLastRound && a.cfg.MaxRounds > 1 {
			a.log.Debug("react: injecting finalization prompt on last round", "round", roundNum)
			finalizationMsg := a.cfg.LLM.CreateUserMessage(a.cfg.FinalizationPrompt)
			msgs = append(msgs, finalizationMsg)
			fullConversation = append(fullConversation, finalizationMsg)
		}

		response, err := a.cfg.LLM.Call(ctx, msgs, tools)
		if err != nil {
			return nil, fmt.Errorf("failed to get response: %w", err)
		}

		toolUses, parseErr := a.extractToolUses(response.Content())
		if parseErr != nil {
			if parseRetries >= maxParseRetries || isLastRound {
				a.log.Error("react: tool arguments could not be parsed, giving up", "round", roundNum, "error", parseErr)
				return nil, parseErr
			}
			parseRetries++
			a.log.Warn("react: tool arguments could not be parsed, retrying round", "round", roundNum, "error", parseErr)

			// The malformed assistant turn is dropped so no tool results are
			// owed for it.
			correction := a.cfg.LLM.CreateUserMessage(fmt.Sprintf(
				"Your previous tool call could not be used: %v. Call the tool again with a valid JSON object as its input.", parseErr))
			msgs = append(msgs, correction)
			fullConversation = append(fullConversation, response.ToMessage(), correction)
			continue
		}

		assistantMsg := response.ToMessage()
		msgs = append(msgs, assistantMsg)
		fullConversation = append(fullConversation, assistantMsg)

		finalText := collectText(response.Content())

		if len(toolUses) == 0 {
			if lastToolHadError && toolErrorRetries < maxToolErrorRetries && !isLastRound {
				toolErrorRetries++
				a.log.Info("react: no tool calls after error, injecting retry prompt", "round", roundNum, "retry", toolErrorRetries)
				retryPrompt := a.cfg.LLM.CreateUserMessage(toolErrorRetryPrompt)
				msgs = append(msgs, retryPrompt)
				fullConversation = append(fullConversation, retryPrompt)
				lastToolHadError = false
				continue
			}

			a.log.Debug("react: no tool calls, returning final response", "round", roundNum)
			if output != nil && finalText != "" {
				fmt.Fprintln(output, finalText)
			}
			return &RunResult{
				FinalText:        finalText,
				Steps:            steps,
				FullConversation: fullConversation,
				ToolsUsed:        setToSlice(toolsUsedSet),
			}, nil
		}

		for _, tu := range toolUses {
			toolsUsedSet[tu.Name] = struct{}{}
		}

		if len(toolUses) > 1 {
			a.log.Debug("react: executing tool calls in parallel", "round", roundNum, "count", len(toolUses))
		} else {
			a.log.Debug("react: executing tool call", "round", roundNum, "name", toolUses[0].Name)
		}

		toolResults, err := a.executeTools(ctx, toolUses)
		if err != nil {
			return nil, fmt.Errorf("failed to execute tools: %w", err)
		}

		lastToolHadError = false
		for i, tr := range toolResults {
			steps = append(steps, Step{Action: toolUses[i], Observation: tr.Content, IsError: tr.IsError})
			if tr.IsError {
				lastToolHadError = true
			}
		}

		if isLastRound {
			a.log.Warn("react: last round reached while still calling tools", "round", roundNum, "tool_calls", len(toolUses))
			return &RunResult{
				FinalText:        finalText,
				Steps:            steps,
				FullConversation: fullConversation,
				ToolsUsed:        setToSlice(toolsUsedSet),
				Exhausted:        true,
			}, nil
		}

		toolResultMsgs, err := a.cfg.LLM.ConvertToolResults(toolUses, toolResults)
		if err != nil {
			return nil, fmt.Errorf("failed to convert tool results: %w", err)
		}
		msgs = append(msgs, toolResultMsgs...)
		fullConversation = append(fullConversation, toolResultMsgs...)
	}

	return nil, fmt.Errorf("exceeded maximum rounds (%d)", a.cfg.MaxRounds)
}

// extractToolUses extracts tool use requests from response content blocks.
// Arguments that are not a JSON object fail the whole response.
func (a *Agent) extractToolUses(content []ContentBlock) ([]ToolUse, *ParseError) {
	var toolUses []ToolUse
	for _, blk := range content {
		id, name, inputBytes, ok := blk.AsToolUse()
		if !ok || id == "" || name == "" {
			continue
		}
		var input map[string]any
		if len(inputBytes) > 0 {
			if err := json.Unmarshal(inputBytes, &input); err != nil {
				return nil, &ParseError{Tool: name, Input: string(inputBytes), Err: err}
			}
		}
		if input == nil {
			input = map[string]any{}
		}
		toolUses = append(toolUses, ToolUse{
			ID:    id,
			Name:  name,
			Input: input,
		})
	}
	return toolUses, nil
}

// executeTools runs the round's tool calls on a bounded pool. Results are in
// call order; tool failures become error observations.
func (a *Agent) executeTools(ctx context.Context, toolUses []ToolUse) ([]ToolResult, error) {
	pool := pond.NewResultPool[ToolResult](a.cfg.MaxConcurrency)
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	for _, tu := range toolUses {
		group.SubmitErr(func() (ToolResult, error) {
			return a.callTool(ctx, tu), nil
		})
	}

	results, err := group.Wait()
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (a *Agent) callTool(ctx context.Context, tu ToolUse) ToolResult {
	start := time.Now()
	out, isErr, err := a.cfg.ToolClient.CallToolText(ctx, tu.Name, tu.Input)
	metrics.ToolCallDuration.WithLabelValues(tu.Name).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		metrics.ToolCallsTotal.WithLabelValues(tu.Name, "error").Inc()
		a.log.Error("react: tool execution error", "tool", tu.Name, "tool_id", tu.ID, "error", err)
		return ToolResult{ID: tu.ID, Content: fmt.Sprintf("Error: %v", err), IsError: true}
	case isErr:
		metrics.ToolCallsTotal.WithLabelValues(tu.Name, "error").Inc()
		return ToolResult{ID: tu.ID, Content: fmt.Sprintf("Error: %s", out), IsError: true}
	default:
		metrics.ToolCallsTotal.WithLabelValues(tu.Name, "ok").Inc()
		return ToolResult{ID: tu.ID, Content: out}
	}
}

func collectText(content []ContentBlock) string {
	var sb strings.Builder
	for _, blk := range content {
		if text, ok := blk.AsText(); ok && text != "" {
			sb.WriteString(text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func setToSlice(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	result := make([]string, 0, len(set))
	for k := range set {
		result = append(result, k)
	}
	slices.Sort(result)
	return result
}
