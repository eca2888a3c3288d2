package tools

import (
	"context"
	"fmt"

	"github.com/malbeclabs/sensorlake/pkg/agent/react"
)

// MultiToolClient aggregates multiple ToolClient implementations and routes
// tool calls to the appropriate client based on tool name.
type MultiToolClient struct {
	tools     []react.Tool
	toolIndex map[string]react.ToolClient
}

// NewMultiToolClient indexes the tools of every client. A tool name offered
// by more than one client is an error.
func NewMultiToolClient(ctx context.Context, clients ...react.ToolClient) (*MultiToolClient, error) {
	m := &MultiToolClient{
		toolIndex: make(map[string]react.ToolClient),
	}

	for _, client := range clients {
		tools, err := client.ListTools(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tools from client: %w", err)
		}
		for _, tool := range tools {
			if _, ok := m.toolIndex[tool.Name]; ok {
				return nil, fmt.Errorf("duplicate tool name %q: tool exists in multiple clients", tool.Name)
			}
			m.toolIndex[tool.Name] = client
			m.tools = append(m.tools, tool)
		}
	}

	return m, nil
}

// ListTools returns the combined list of tools from all clients.
func (m *MultiToolClient) ListTools(_ context.Context) ([]react.Tool, error) {
	return m.tools, nil
}

// CallToolText routes the tool call to the client that owns the tool.
func (m *MultiToolClient) CallToolText(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	client, ok := m.toolIndex[name]
	if !ok {
		return "", true, fmt.Errorf("unknown tool: %s", name)
	}
	return client.CallToolText(ctx, name, args)
}
