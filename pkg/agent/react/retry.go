package react

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/malbeclabs/sensorlake/pkg/metrics"
)

const (
	defaultCallTimeout  = 60 * time.Second
	defaultCallMaxTries = 2
)

// RetryConfig bounds every model call: each attempt gets its own timeout and
// a failed attempt is retried at most MaxTries-1 times.
type RetryConfig struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	MaxTries uint
	// NewBackOff returns the delay policy for one call. Defaults to
	// exponential backoff.
	NewBackOff func() backoff.BackOff
}

func (cfg *RetryConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultCallTimeout
	}
	if cfg.Timeout < 0 {
		return errors.New("timeout must be greater than 0")
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = defaultCallMaxTries
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	return nil
}

// RetryingLLM wraps an LLMClient with per-call timeouts and bounded retries.
// Failures surface as ErrReasoningTimeout or *ReasoningError.
type RetryingLLM struct {
	LLMClient
	cfg *RetryConfig
}

func NewRetryingLLM(llm LLMClient, cfg *RetryConfig) (*RetryingLLM, error) {
	if llm == nil {
		return nil, errors.New("LLM is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RetryingLLM{LLMClient: llm, cfg: cfg}, nil
}

func (r *RetryingLLM) Call(ctx context.Context, messages []Message, tools []Tool) (Response, error) {
	return retryCall(ctx, r.cfg, func(ctx context.Context) (Response, error) {
		return r.LLMClient.Call(ctx, messages, tools)
	})
}

// RetryingCompleter wraps a Completer with per-call timeouts and bounded
// retries.
type RetryingCompleter struct {
	completer Completer
	cfg       *RetryConfig
}

func NewRetryingCompleter(completer Completer, cfg *RetryConfig) (*RetryingCompleter, error) {
	if completer == nil {
		return nil, errors.New("completer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RetryingCompleter{completer: completer, cfg: cfg}, nil
}

func (r *RetryingCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return retryCall(ctx, r.cfg, func(ctx context.Context) (string, error) {
		return r.completer.Complete(ctx, systemPrompt, userPrompt)
	})
}

func retryCall[T any](ctx context.Context, cfg *RetryConfig, call func(context.Context) (T, error)) (T, error) {
	var timedOut bool
	attempt := 0

	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		start := time.Now()
		res, err := call(callCtx)
		metrics.LLMCallDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.LLMCallsTotal.WithLabelValues("ok").Inc()
			return res, nil
		}

		if ctx.Err() != nil {
			metrics.LLMCallsTotal.WithLabelValues("canceled").Inc()
			return res, backoff.Permanent(err)
		}
		timedOut = errors.Is(callCtx.Err(), context.DeadlineExceeded)
		if timedOut {
			metrics.LLMCallsTotal.WithLabelValues("timeout").Inc()
		} else {
			metrics.LLMCallsTotal.WithLabelValues("error").Inc()
		}
		cfg.Logger.Warn("react: model call failed", "attempt", attempt, "max_tries", cfg.MaxTries, "timed_out", timedOut, "error", err)
		return res, err
	}, backoff.WithBackOff(cfg.NewBackOff()), backoff.WithMaxTries(cfg.MaxTries))
	if err == nil {
		return res, nil
	}

	var zero T
	if timedOut && ctx.Err() == nil {
		return zero, fmt.Errorf("%w after %d attempts of %s", ErrReasoningTimeout, attempt, cfg.Timeout)
	}
	return zero, &ReasoningError{Err: err}
}
