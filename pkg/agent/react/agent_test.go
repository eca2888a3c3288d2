package react

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/sensorlake/pkg/logger"
)

// mockLLMClient is a mock LLM client for testing.
type mockLLMClient struct {
	mu        sync.Mutex
	responses []mockResponse
	callIndex int
	seen      [][]Message
	err       error
}

type mockResponse struct {
	text      string
	toolCalls []mockToolCall
}

type mockToolCall struct {
	id    string
	name  string
	input map[string]any
	raw   []byte
}

func (m *mockLLMClient) Call(ctx context.Context, messages []Message, tools []Tool) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, append([]Message(nil), messages...))
	if m.err != nil {
		return nil, m.err
	}
	if m.callIndex >= len(m.responses) {
		return &mockLLMResponse{}, nil
	}
	resp := m.responses[m.callIndex]
	m.callIndex++
	return &mockLLMResponse{text: resp.text, toolCalls: resp.toolCalls}, nil
}

func (m *mockLLMClient) ConvertToolResults(toolUses []ToolUse, results []ToolResult) ([]Message, error) {
	var msgs []Message
	for i, tu := range toolUses {
		msgs = append(msgs, GenericMessage{Role: "tool", Content: "Tool " + tu.Name + ": " + results[i].Content})
	}
	return msgs, nil
}

func (m *mockLLMClient) CreateUserMessage(content string) Message {
	return GenericMessage{Role: "user", Content: content}
}

type mockLLMResponse struct {
	text      string
	toolCalls []mockToolCall
}

func (r *mockLLMResponse) Content() []ContentBlock {
	var blocks []ContentBlock
	if r.text != "" {
		blocks = append(blocks, &mockTextBlock{text: r.text})
	}
	for _, tc := range r.toolCalls {
		blocks = append(blocks, &mockToolUseBlock{id: tc.id, name: tc.name, input: tc.input, raw: tc.raw})
	}
	return blocks
}

func (r *mockLLMResponse) ToMessage() Message {
	return GenericMessage{Role: "assistant", Content: r.text}
}

type mockTextBlock struct {
	text string
}

func (b *mockTextBlock) AsText() (string, bool) {
	return b.text, true
}

func (b *mockTextBlock) AsToolUse() (string, string, []byte, bool) {
	return "", "", nil, false
}

type mockToolUseBlock struct {
	id    string
	name  string
	input map[string]any
	raw   []byte
}

func (b *mockToolUseBlock) AsText() (string, bool) {
	return "", false
}

func (b *mockToolUseBlock) AsToolUse() (string, string, []byte, bool) {
	if b.raw != nil {
		return b.id, b.name, b.raw, true
	}
	inputBytes, _ := json.Marshal(b.input)
	return b.id, b.name, inputBytes, true
}

// mockToolClient is a mock tool client for testing.
type mockToolClient struct {
	tools    []Tool
	callFunc func(ctx context.Context, name string, args map[string]any) (string, bool, error)
}

func (m *mockToolClient) ListTools(ctx context.Context) ([]Tool, error) {
	return m.tools, nil
}

func (m *mockToolClient) CallToolText(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	if m.callFunc != nil {
		return m.callFunc(ctx, name, args)
	}
	return "no result", false, nil
}

var testTools = []Tool{
	{Name: "analyze_data", Description: "Answer a statistical question", InputSchema: map[string]any{}},
	{Name: "chart_data", Description: "Build a chart", InputSchema: map[string]any{}},
}

func newTestAgent(t *testing.T, llm LLMClient, tools ToolClient, maxRounds int) *Agent {
	t.Helper()
	agent, err := NewAgent(&Config{
		Logger:     logger.Discard(),
		LLM:        llm,
		ToolClient: tools,
		MaxRounds:  maxRounds,
	})
	require.NoError(t, err)
	return agent
}

func userMessage(content string) []Message {
	return []Message{GenericMessage{Role: "user", Content: content}}
}

func TestAgent_Config_Validate(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{}
	tools := &mockToolClient{}

	require.EqualError(t, (&Config{LLM: llm, ToolClient: tools}).Validate(), "logger is required")
	require.EqualError(t, (&Config{Logger: logger.Discard(), ToolClient: tools}).Validate(), "LLM is required")
	require.EqualError(t, (&Config{Logger: logger.Discard(), LLM: llm}).Validate(), "tool client is required")
	require.EqualError(t, (&Config{Logger: logger.Discard(), LLM: llm, ToolClient: tools, MaxRounds: -1}).Validate(), "max rounds must be greater than 0")

	cfg := &Config{Logger: logger.Discard(), LLM: llm, ToolClient: tools}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, defaultMaxRounds, cfg.MaxRounds)
	assert.Equal(t, defaultMaxConcurrency, cfg.MaxConcurrency)
	assert.Equal(t, defaultFinalizationPrompt, cfg.FinalizationPrompt)
}

func TestAgent_Run_NoToolCalls(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{responses: []mockResponse{{text: "  The average is 21.3  "}}}
	agent := newTestAgent(t, llm, &mockToolClient{tools: testTools}, 5)

	var out strings.Builder
	result, err := agent.Run(context.Background(), userMessage("what is the average temperature"), &out)
	require.NoError(t, err)
	assert.Equal(t, "The average is 21.3", result.FinalText)
	assert.Empty(t, result.Steps)
	assert.Nil(t, result.ToolsUsed)
	assert.False(t, result.Exhausted)
	assert.Equal(t, "The average is 21.3\n", out.String())
}

func TestAgent_Run_RecordsStepsInCallOrder(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{responses: []mockResponse{
		{
			text: "Let me look.",
			toolCalls: []mockToolCall{
				{id: "1", name: "analyze_data", input: map[string]any{"question": "mean"}},
				{id: "2", name: "chart_data", input: map[string]any{"request": "plot"}},
			},
		},
		{text: "Done."},
	}}
	tools := &mockToolClient{
		tools: testTools,
		callFunc: func(ctx context.Context, name string, args map[string]any) (string, bool, error) {
			// Slow down the first call so out-of-order completion is likely.
			if name == "analyze_data" {
				time.Sleep(20 * time.Millisecond)
			}
			return "result of " + name, false, nil
		},
	}
	agent := newTestAgent(t, llm, tools, 5)

	result, err := agent.Run(context.Background(), userMessage("both"), nil)
	require.NoError(t, err)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, "analyze_data", result.Steps[0].Action.Name)
	assert.Equal(t, "result of analyze_data", result.Steps[0].Observation)
	assert.Equal(t, "chart_data", result.Steps[1].Action.Name)
	assert.Equal(t, map[string]any{"request": "plot"}, result.Steps[1].Action.Input)
	assert.Equal(t, []string{"analyze_data", "chart_data"}, result.ToolsUsed)
	assert.Equal(t, "Done.", result.FinalText)
}

func TestAgent_Run_ToolErrorsBecomeObservations(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{responses: []mockResponse{
		{toolCalls: []mockToolCall{{id: "1", name: "analyze_data", input: map[string]any{}}}},
		{toolCalls: []mockToolCall{{id: "2", name: "analyze_data", input: map[string]any{"question": "q"}}}},
		{text: "Answer."},
	}}
	calls := 0
	tools := &mockToolClient{
		tools: testTools,
		callFunc: func(ctx context.Context, name string, args map[string]any) (string, bool, error) {
			calls++
			if calls == 1 {
				return "", false, errors.New("boom")
			}
			return "ok", false, nil
		},
	}
	agent := newTestAgent(t, llm, tools, 5)

	result, err := agent.Run(context.Background(), userMessage("q"), nil)
	require.NoError(t, err)
	require.Len(t, result.Steps, 2)
	assert.True(t, result.Steps[0].IsError)
	assert.Equal(t, "Error: boom", result.Steps[0].Observation)
	assert.False(t, result.Steps[1].IsError)
}

func TestAgent_Run_NoRetryWhenToolContentContainsErrorWord(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{responses: []mockResponse{
		{toolCalls: []mockToolCall{{id: "1", name: "analyze_data", input: map[string]any{"question": "errors?"}}}},
		{text: "The sensor reported 3 read errors."},
	}}
	tools := &mockToolClient{
		tools: testTools,
		callFunc: func(ctx context.Context, name string, args map[string]any) (string, bool, error) {
			return "read_errors\n3", false, nil
		},
	}
	agent := newTestAgent(t, llm, tools, 5)

	result, err := agent.Run(context.Background(), userMessage("errors?"), nil)
	require.NoError(t, err)
	assert.Contains(t, result.FinalText, "3 read errors")
	assert.Equal(t, 2, llm.callIndex)
}

func TestAgent_Run_RetryWhenToolReturnsExplicitError(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{responses: []mockResponse{
		{toolCalls: []mockToolCall{{id: "1", name: "analyze_data", input: map[string]any{"question": "bad"}}}},
		{text: "I couldn't get the data."},
		{toolCalls: []mockToolCall{{id: "2", name: "analyze_data", input: map[string]any{"question": "good"}}}},
		{text: "Mean temperature is 21."},
	}}
	calls := 0
	tools := &mockToolClient{
		tools: testTools,
		callFunc: func(ctx context.Context, name string, args map[string]any) (string, bool, error) {
			calls++
			if calls == 1 {
				return "column does not exist", true, nil
			}
			return "21", false, nil
		},
	}
	agent := newTestAgent(t, llm, tools, 10)

	result, err := agent.Run(context.Background(), userMessage("mean"), nil)
	require.NoError(t, err)
	assert.Equal(t, "Mean temperature is 21.", result.FinalText)
	assert.Equal(t, 4, llm.callIndex)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, "Error: column does not exist", result.Steps[0].Observation)
}

func TestAgent_Run_ParseErrorRetriedOnce(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{responses: []mockResponse{
		{toolCalls: []mockToolCall{{id: "1", name: "chart_data", raw: []byte(`{"request": `)}}},
		{toolCalls: []mockToolCall{{id: "2", name: "chart_data", input: map[string]any{"request": "plot"}}}},
		{text: "Here is the chart."},
	}}
	agent := newTestAgent(t, llm, &mockToolClient{tools: testTools}, 5)

	result, err := agent.Run(context.Background(), userMessage("plot"), nil)
	require.NoError(t, err)
	assert.Equal(t, "Here is the chart.", result.FinalText)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "2", result.Steps[0].Action.ID)

	// The corrective round sees the user's message and the correction only.
	second := llm.seen[1]
	require.Len(t, second, 2)
	assert.Contains(t, second[1].(GenericMessage).Content, "could not be used")
}

func TestAgent_Run_SecondParseErrorAborts(t *testing.T) {
	t.Parallel()

	llm := &mockLLMClient{responses: []mockResponse{
		{toolCalls: []mockToolCall{{id: "1", name: "chart_data", raw: []byte(`not json`)}}},
		{toolCalls: []mockToolCall{{id: "2", name: "chart_data", raw: []byte(`[1, 2]`)}}},
	}}
	agent := newTestAgent(t, llm, &mockToolClient{tools: testTools}, 5)

	_, err := agent.Run(context.Background(), userMessage("plot"), nil)
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "chart_data", parseErr.Tool)
	assert.Equal(t, "[1, 2]", parseErr.Input)
}

func TestAgent_Run_LastRoundExecutesToolsAndStops(t *testing.T) {
	t.Parallel()

	call := mockResponse{toolCalls: []mockToolCall{{id: "x", name: "analyze_data", input: map[string]any{"question": "q"}}}}
	llm := &mockLLMClient{responses: []mockResponse{call, call}}
	agent := newTestAgent(t, llm, &mockToolClient{tools: testTools}, 2)

	result, err := agent.Run(context.Background(), userMessage("q"), nil)
	require.NoError(t, err)
	assert.True(t, result.Exhausted)
	assert.Len(t, result.Steps, 2)

	// The finalization prompt precedes the last call.
	last := llm.seen[1]
	assert.Equal(t, defaultFinalizationPrompt, last[len(last)-1].(GenericMessage).Content)
}

func TestAgent_Run_LLMErrorIsWrapped(t *testing.T) {
	t.Parallel()

	cause := &ReasoningError{Err: errors.New("overloaded")}
	llm := &mockLLMClient{err: cause}
	agent := newTestAgent(t, llm, &mockToolClient{tools: testTools}, 3)

	_, err := agent.Run(context.Background(), userMessage("q"), nil)
	var reasoningErr *ReasoningError
	require.True(t, errors.As(err, &reasoningErr))
	assert.ErrorContains(t, err, "overloaded")
}
