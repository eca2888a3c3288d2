package tools

import (
	"context"

	"github.com/malbeclabs/sensorlake/pkg/agent/react"
)

// mockToolClient is a mock tool client for testing.
type mockToolClient struct {
	tools    []react.Tool
	callFunc func(ctx context.Context, name string, args map[string]any) (string, bool, error)
}

func (m *mockToolClient) ListTools(ctx context.Context) ([]react.Tool, error) {
	return m.tools, nil
}

func (m *mockToolClient) CallToolText(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	if m.callFunc != nil {
		return m.callFunc(ctx, name, args)
	}
	return "no result", false, nil
}

type mockAnalyst struct {
	answer string
	err    error
	seen   []string
}

func (m *mockAnalyst) Analyze(ctx context.Context, question string) (string, error) {
	m.seen = append(m.seen, question)
	return m.answer, m.err
}

type mockCompleter struct {
	out    string
	err    error
	system string
	user   string
}

func (m *mockCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.system, m.user = systemPrompt, userPrompt
	return m.out, m.err
}
