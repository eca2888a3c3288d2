package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/sensorlake/pkg/agent/react"
	"github.com/malbeclabs/sensorlake/pkg/duck"
)

const QueryToolName = "query"

type QueryInput struct {
	SQL string `json:"sql" jsonschema:"A single read-only DuckDB SQL statement"`
}

// QueryTool implements react.ToolClient over the in-memory dataset table.
type QueryTool struct {
	log *slog.Logger
	db  *duck.DB
}

func NewQueryTool(log *slog.Logger, db *duck.DB) *QueryTool {
	return &QueryTool{log: log, db: db}
}

func (q *QueryTool) ListTools(ctx context.Context) ([]react.Tool, error) {
	schema, err := inputSchema[QueryInput]()
	if err != nil {
		return nil, err
	}
	return []react.Tool{
		{
			Name:        QueryToolName,
			Description: fmt.Sprintf("Execute a read-only SQL query against the %s table. Returns results as JSON with columns and rows.", duck.Table),
			InputSchema: schema,
		},
	}, nil
}

func (q *QueryTool) CallToolText(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	if name != QueryToolName {
		return "", true, fmt.Errorf("unknown tool: %s", name)
	}
	sql, err := stringArg(args, "sql")
	if err != nil {
		return "", true, err
	}

	q.log.Debug("tools: executing query", "sql", sql)

	resp, err := q.db.Query(ctx, sql)
	if err != nil {
		return fmt.Sprintf("Error executing query: %v", err), true, nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Sprintf("Error formatting result: %v", err), true, nil
	}
	return string(data), false, nil
}
