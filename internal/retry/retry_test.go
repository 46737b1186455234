package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHandler(slept *[]time.Duration) *Handler {
	return New(
		zap.NewNop().Sugar(),
		WithSleep(func(_ context.Context, d time.Duration) error {
			if slept != nil {
				*slept = append(*slept, d)
			}
			return nil
		}),
		WithJitterSource(func() float64 { return 0.5 }), // jitter factor 1.0
	)
}

func TestDoFirstAttemptSucceeds(t *testing.T) {
	h := newTestHandler(nil)

	callbacks := 0
	err := h.Do(context.Background(), func() error { return nil },
		func(int, time.Duration, string) { callbacks++ })

	require.NoError(t, err)
	assert.Zero(t, callbacks, "no retry callback on first-attempt success")
}

func TestDoExhaustsRetries(t *testing.T) {
	var slept []time.Duration
	h := newTestHandler(&slept)

	attempts := 0
	var retries []int
	err := h.Do(context.Background(),
		func() error {
			attempts++
			return errors.New("HTTP 500 server error")
		},
		func(n int, _ time.Duration, msg string) {
			retries = append(retries, n)
			assert.Contains(t, msg, "500")
		})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, retries, "exactly maxRetries callbacks")
	assert.Equal(t, 8, attempts, "initial attempt plus 7 retries")

	// With jitter pinned at 1.0 the delays follow the schedule exactly.
	want := []time.Duration{
		5 * time.Second, 15 * time.Second, 30 * time.Second, 60 * time.Second,
		120 * time.Second, 180 * time.Second, 300 * time.Second,
	}
	assert.Equal(t, want, slept)
}

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	h := newTestHandler(nil)

	attempts := 0
	callbacks := 0
	err := h.Do(context.Background(),
		func() error {
			attempts++
			if attempts < 3 {
				return errors.New("connection reset by peer")
			}
			return nil
		},
		func(int, time.Duration, string) { callbacks++ })

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, callbacks)
}

func TestDoReclassifiesBetweenAttempts(t *testing.T) {
	var slept []time.Duration
	h := newTestHandler(&slept)

	msgs := []string{"request timeout", "HTTP 502 bad gateway", ""}
	attempts := 0
	err := h.Do(context.Background(), func() error {
		defer func() { attempts++ }()
		if msgs[attempts] == "" {
			return nil
		}
		return errors.New(msgs[attempts])
	}, nil)

	require.NoError(t, err)
	// Both failures draw from the shared extended schedule regardless of
	// which strategy matched, so the delays are positional.
	assert.Equal(t, []time.Duration{5 * time.Second, 15 * time.Second}, slept)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	h := New(zap.NewNop().Sugar(), WithSleep(sleepContext))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.Do(ctx, func() error { return errors.New("network error") }, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDelayFallsBackToExponential(t *testing.T) {
	cfg := Config{
		MaxRetries:    10,
		BaseDelay:     2 * time.Second,
		BackoffFactor: 2.0,
		Schedule:      []time.Duration{time.Second},
	}

	assert.Equal(t, time.Second, cfg.Delay(1, nil))
	// Retry 3 is past the schedule: 2s * 2^(3-1) = 8s.
	assert.Equal(t, 8*time.Second, cfg.Delay(3, nil))
}

func TestDelayJitterBounds(t *testing.T) {
	cfg := StrategyConfig(StrategyServerError)

	low := cfg.Delay(1, func() float64 { return 0 })
	high := cfg.Delay(1, func() float64 { return 1 })

	assert.Equal(t, 4*time.Second, low)
	assert.Equal(t, 6*time.Second, high)
}
