package dataset

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
	defaultScanMaxTries = 2
	defaultScanTimeout  = 30 * time.Second
)

// Store is the raw record store. Scan returns every reading; there is no
// filtering or pagination contract.
type Store interface {
	Scan(ctx context.Context) ([]Reading, error)
}

// Source produces a cleaned dataset. Loader and CachedLoader implement it.
type Source interface {
	Load(ctx context.Context) (*Dataset, error)
}

type LoaderConfig struct {
	Logger *slog.Logger
	Store  Store

	// ScanTimeout bounds each store scan attempt.
	ScanTimeout time.Duration
	// ScanMaxTries bounds store scan attempts, including the first one.
	ScanMaxTries uint
	// NewScanBackOff returns the delay policy between scan attempts. Called
	// once per Load. Defaults to exponential backoff.
	NewScanBackOff func() backoff.BackOff
}

func (cfg *LoaderConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.ScanTimeout == 0 {
		cfg.ScanTimeout = defaultScanTimeout
	}
	if cfg.ScanTimeout < 0 {
		return errors.New("scan timeout must be greater than 0")
	}
	if cfg.ScanMaxTries == 0 {
		cfg.ScanMaxTries = defaultScanMaxTries
	}
	if cfg.NewScanBackOff == nil {
		cfg.NewScanBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	return nil
}

// Loader fetches raw readings and cleans them.
type Loader struct {
	log *slog.Logger
	cfg *LoaderConfig
}

func NewLoader(cfg *LoaderConfig) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loader{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Load scans the store and returns the cleaned dataset. Every failure is a
// *LoadError.
func (l *Loader) Load(ctx context.Context) (*Dataset, error) {
	readings, err := l.scan(ctx)
	if err != nil {
		metrics.DatasetLoadErrorsTotal.Inc()
		return nil, &LoadError{Err: fmt.Errorf("failed to scan store: %w", err)}
	}

	records, stats, err := Clean(readings)
	if err != nil {
		metrics.DatasetLoadErrorsTotal.Inc()
		l.log.Error("dataset: malformed reading aborts load", "error", err)
		return nil, err
	}

	metrics.DatasetRowsLoaded.Set(float64(stats.Kept))
	metrics.DatasetRowsDropped.WithLabelValues("invalid_time").Add(float64(stats.InvalidTime))
	metrics.DatasetRowsDropped.WithLabelValues("temperature_outlier").Add(float64(stats.TemperatureOutliers))
	metrics.DatasetRowsDropped.WithLabelValues("humidity_outlier").Add(float64(stats.HumidityOutliers))

	l.log.Info("dataset: loaded",
		"raw", stats.Raw,
		"kept", stats.Kept,
		"invalid_time", stats.InvalidTime,
		"temperature_outliers", stats.TemperatureOutliers,
		"humidity_outliers", stats.HumidityOutliers)

	return New(records), nil
}

func (l *Loader) scan(ctx context.Context) ([]Reading, error) {
	attempt := 0
	return backoff.Retry(ctx, func() ([]Reading, error) {
		attempt++
		if attempt > 1 {
			l.log.Warn("dataset: retrying store scan", "attempt", attempt)
		}

		scanCtx, cancel := context.WithTimeout(ctx, l.cfg.ScanTimeout)
		defer cancel()

		readings, err := l.cfg.Store.Scan(scanCtx)
		if err == nil {
			return readings, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		if errors.Is(scanCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("store scan timed out after %s: %w", l.cfg.ScanTimeout, err)
		}
		return nil, err
	}, backoff.WithBackOff(l.cfg.NewScanBackOff()), backoff.WithMaxTries(l.cfg.ScanMaxTries))
}
