package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/malbeclabs/sensorlake/pkg/assistant"
	"github.com/malbeclabs/sensorlake/pkg/dataset"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
)

// Assistant is the part of *assistant.Assistant the MCP tools need.
type Assistant interface {
	Handle(ctx context.Context, instruction string) (*assistant.Result, error)
	Dataset(ctx context.Context) (*dataset.Dataset, error)
}

type Config struct {
	Logger    *slog.Logger
	Assistant Assistant

	Version           string
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Assistant == nil {
		return fmt.Errorf("assistant is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}
