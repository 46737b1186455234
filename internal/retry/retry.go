package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Config describes one strategy's backoff behavior. Schedule entries are
// indexed by 1-based retry number; retries past the end fall back to
// BaseDelay * BackoffFactor^(n-1).
type Config struct {
	MaxRetries    int
	BaseDelay     time.Duration
	BackoffFactor float64
	Jitter        bool
	Schedule      []time.Duration
}

// Delay computes the backoff before the given retry, with ±20% jitter to
// break up synchronized retry storms across concurrently failing items.
func (c Config) Delay(retryNumber int, jitter func() float64) time.Duration {
	var delay time.Duration
	if retryNumber >= 1 && retryNumber <= len(c.Schedule) {
		delay = c.Schedule[retryNumber-1]
	} else {
		delay = time.Duration(float64(c.BaseDelay) * math.Pow(c.BackoffFactor, float64(retryNumber-1)))
	}

	if c.Jitter && jitter != nil {
		delay = time.Duration(float64(delay) * (0.8 + 0.4*jitter()))
	}
	return delay
}

// extendedSchedule is shared by all strategies. The early steps stay short
// so transient blips recover fast; the tail stretches to five minutes so a
// long remote outage does not burn the attempt budget in seconds.
var extendedSchedule = []time.Duration{
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	180 * time.Second,
	300 * time.Second,
}

func defaultStrategy() Config {
	return Config{
		MaxRetries:    7,
		BaseDelay:     5 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
		Schedule:      extendedSchedule,
	}
}

var strategies = map[string]Config{
	StrategyRecaptcha:       defaultStrategy(),
	StrategyServerError:     defaultStrategy(),
	StrategyConnectionError: defaultStrategy(),
	StrategyDefault:         defaultStrategy(),
}

// StrategyConfig returns the backoff config for a named strategy.
func StrategyConfig(name string) Config {
	if cfg, ok := strategies[name]; ok {
		return cfg
	}
	return strategies[StrategyDefault]
}

// OnRetry is invoked before each backoff sleep so callers can surface
// progress (retry number, computed delay, error text).
type OnRetry func(retryNumber int, delay time.Duration, errMsg string)

// Handler executes operations under the strategy-driven retry policy. The
// strategy is re-selected from each observed error, so an operation that
// first hits a connection error and then a 500 backs off per whichever
// failure it last saw.
type Handler struct {
	logger *zap.SugaredLogger
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// Option customizes a Handler.
type Option func(*Handler)

// WithSleep replaces the backoff sleep. Used by callers that need virtual
// time, such as tests and dry runs.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(h *Handler) { h.sleep = sleep }
}

// WithJitterSource replaces the jitter source.
func WithJitterSource(jitter func() float64) Option {
	return func(h *Handler) { h.jitter = jitter }
}

func New(logger *zap.SugaredLogger, opts ...Option) *Handler {
	h := &Handler{
		logger: logger,
		sleep:  sleepContext,
		jitter: rand.Float64,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Do runs fn until it succeeds or the current strategy's retry budget is
// exhausted, returning the last observed error. A first-attempt success
// incurs no sleep and no callback.
func (h *Handler) Do(ctx context.Context, fn func() error, onRetry OnRetry) error {
	retryNumber := 0

	for {
		err := fn()
		if err == nil {
			return nil
		}

		strategy := Strategy(err.Error())
		cfg := StrategyConfig(strategy)

		retryNumber++
		if retryNumber > cfg.MaxRetries {
			return err
		}

		delay := cfg.Delay(retryNumber, h.jitter)
		if onRetry != nil {
			onRetry(retryNumber, delay, err.Error())
		}
		if h.logger != nil {
			h.logger.Warnw("retrying after error",
				"strategy", strategy,
				"retry", retryNumber,
				"max_retries", cfg.MaxRetries,
				"delay", delay,
				"error", truncate(err.Error(), 200),
			)
		}

		if sleepErr := h.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
