package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/malbeclabs/sensorlake/pkg/agent/react"
	"github.com/malbeclabs/sensorlake/pkg/assistant"
	"github.com/malbeclabs/sensorlake/pkg/chart"
	"github.com/malbeclabs/sensorlake/pkg/config"
	"github.com/malbeclabs/sensorlake/pkg/dataset"
)

// stack holds the long-lived collaborators of one process.
type stack struct {
	source *dataset.CachedLoader
	s3     *s3.Client
	assist *assistant.Assistant
}

func newSource(ctx context.Context, log *slog.Logger, cfg *config.Config) (*stack, error) {
	// The loader owns retries; one SDK attempt per scan page.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
		awsconfig.WithRetryMaxAttempts(1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	store, err := dataset.NewDynamoStore(&dataset.DynamoStoreConfig{
		Logger: log,
		Client: dynamodb.NewFromConfig(awsCfg),
		Table:  cfg.Table,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	loader, err := dataset.NewLoader(&dataset.LoaderConfig{Logger: log, Store: store, ScanTimeout: cfg.ScanTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create loader: %w", err)
	}
	source, err := dataset.NewCachedLoader(&dataset.CachedLoaderConfig{Source: loader, TTL: cfg.DatasetCacheTTL})
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset cache: %w", err)
	}

	return &stack{source: source, s3: s3.NewFromConfig(awsCfg)}, nil
}

func newStack(ctx context.Context, log *slog.Logger, cfg *config.Config) (*stack, error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}
	st, err := newSource(ctx, log, cfg)
	if err != nil {
		return nil, err
	}

	retryCfg := &react.RetryConfig{Logger: log, Timeout: cfg.LLMTimeout}
	client := react.NewAnthropicSDKClient(cfg.AnthropicAPIKey)
	model := anthropic.Model(cfg.Model)

	completer, err := react.NewRetryingCompleter(
		react.NewAnthropicCompleter(client, model, cfg.MaxOutputTokens, cfg.Temperature), retryCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create completer: %w", err)
	}
	newLLM := func(system string) (react.LLMClient, error) {
		return react.NewRetryingLLM(react.NewAnthropicAgent(client, model, cfg.MaxOutputTokens, cfg.Temperature, system), retryCfg)
	}

	renderer, err := chart.NewRenderer(&chart.Config{Logger: log, Timeout: cfg.RenderTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	st.assist, err = assistant.New(&assistant.Config{
		Logger:    log,
		Source:    st.source,
		NewLLM:    newLLM,
		Completer: completer,
		Renderer:  renderer,
		MaxRounds: cfg.MaxRounds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create assistant: %w", err)
	}
	return st, nil
}

// serveMetrics exposes Prometheus metrics on addr until ctx is done.
func serveMetrics(ctx context.Context, log *slog.Logger, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start prometheus metrics server listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	go func() {
		log.Info("prometheus metrics server listening", "address", listener.Addr().String())
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("prometheus metrics server failed", "error", err)
		}
	}()
	return nil
}
