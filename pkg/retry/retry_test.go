package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "albumgrab/pkg/errors"
)

// recordingSleep captures requested delays without sleeping
type recordingSleep struct {
	delays []time.Duration
}

func (rs *recordingSleep) sleep(ctx context.Context, delay time.Duration) error {
	rs.delays = append(rs.delays, delay)
	return nil
}

func testConfig(maxAttempts int, sleep SleepFunc) *Config {
	return &Config{
		MaxAttempts: maxAttempts,
		Backoff:     &ConstantBackoff{Delay: time.Second},
		RetryIf:     DefaultRetryIf,
		Sleep:       sleep,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	rs := &recordingSleep{}
	calls := 0

	err := Do(context.Background(), func() error {
		calls++
		return nil
	}, testConfig(3, rs.sleep))

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rs.delays, "no sleep on first-attempt success")
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	rs := &recordingSleep{}
	calls := 0

	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &errs.Error{Type: errs.TypeTransport, Message: "timeout"}
		}
		return nil
	}, testConfig(3, rs.sleep))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, rs.delays)
}

func TestDoReturnsFinalAttemptError(t *testing.T) {
	rs := &recordingSleep{}
	calls := 0
	var lastErr error

	err := Do(context.Background(), func() error {
		calls++
		lastErr = &errs.Error{Type: errs.TypeTransport, Message: fmt.Sprintf("timeout on attempt %d", calls)}
		return lastErr
	}, testConfig(3, rs.sleep))

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	// Only the final attempt's failure is reported, unwrapped
	assert.Same(t, lastErr.(*errs.Error), err)
	// No sleep after the final attempt
	assert.Len(t, rs.delays, 2)
}

func TestDoDoesNotRetryParseErrors(t *testing.T) {
	rs := &recordingSleep{}
	calls := 0
	parseErr := &errs.Error{Type: errs.TypeParse, Message: "unexpected markup"}

	err := Do(context.Background(), func() error {
		calls++
		return parseErr
	}, testConfig(3, rs.sleep))

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Same(t, parseErr, err)
}

func TestDoStopsOnCancelledSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Do(ctx, func() error {
		calls++
		cancel()
		return &errs.Error{Type: errs.TypeTransport, Message: "timeout"}
	}, testConfig(3, Wait))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDefaultRetryIf(t *testing.T) {
	assert.False(t, DefaultRetryIf(nil))
	assert.True(t, DefaultRetryIf(&errs.Error{Type: errs.TypeTransport}), "network error without a response")
	assert.True(t, DefaultRetryIf(&errs.Error{Type: errs.TypeFilesystem}))
	assert.False(t, DefaultRetryIf(&errs.Error{Type: errs.TypeParse}))
	assert.False(t, DefaultRetryIf(context.Canceled))
	assert.False(t, DefaultRetryIf(context.DeadlineExceeded))
	assert.True(t, DefaultRetryIf(errors.New("some unknown error")))

	// Transport errors with an HTTP status are judged by the status
	assert.True(t, DefaultRetryIf(&errs.Error{Type: errs.TypeTransport, Code: 429}))
	assert.True(t, DefaultRetryIf(&errs.Error{Type: errs.TypeTransport, Code: 503}))
	assert.False(t, DefaultRetryIf(&errs.Error{Type: errs.TypeTransport, Code: 403}))
	assert.False(t, DefaultRetryIf(&errs.Error{Type: errs.TypeTransport, Code: 404}))
}

func TestDoDoesNotRetryClientErrorStatus(t *testing.T) {
	rs := &recordingSleep{}
	calls := 0
	notFound := &errs.Error{Type: errs.TypeTransport, Message: "not found", Code: 404}

	err := Do(context.Background(), func() error {
		calls++
		return notFound
	}, testConfig(3, rs.sleep))

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Same(t, notFound, err)
	assert.Empty(t, rs.delays)
}

func TestConstantBackoff(t *testing.T) {
	cb := &ConstantBackoff{Delay: 2 * time.Second}
	assert.Equal(t, time.Duration(0), cb.NextDelay(0))
	assert.Equal(t, 2*time.Second, cb.NextDelay(1))
	assert.Equal(t, 2*time.Second, cb.NextDelay(5))
}

func TestExponentialBackoffGrowsAndCaps(t *testing.T) {
	eb := &ExponentialBackoff{
		BaseDelay:  time.Second,
		MaxDelay:   4 * time.Second,
		Multiplier: 2.0,
	}

	assert.Equal(t, time.Second, eb.NextDelay(1))
	assert.Equal(t, 2*time.Second, eb.NextDelay(2))
	assert.Equal(t, 4*time.Second, eb.NextDelay(3))
	assert.Equal(t, 4*time.Second, eb.NextDelay(10), "capped at max delay")
}

func TestWaitRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Wait(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)

	assert.NoError(t, Wait(context.Background(), 0))
}
