package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy(maxAttempts int) retryPolicy {
	return retryPolicy{
		maxAttempts: maxAttempts,
		classify:    classifyHFError,
		delay: func(class errorClass) time.Duration {
			if class == classColdStart {
				return coldStartDelay
			}
			return transientDelay
		},
		sleep: func(ctx context.Context, d time.Duration) error { return nil },
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	p := testPolicy(3)
	calls := 0

	out, err := p.do(context.Background(), func() (string, error) {
		calls++
		return "hello", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, 1, calls)
}

func TestRetry_ColdStartThenSuccess(t *testing.T) {
	p := testPolicy(3)
	var slept []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	calls := 0
	out, err := p.do(context.Background(), func() (string, error) {
		calls++
		if calls == 1 {
			return "", &coldStartError{estimatedTime: 20}
		}
		return "warmed up", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "warmed up", out)
	assert.Equal(t, 2, calls)
	require.Len(t, slept, 1)
	assert.Equal(t, coldStartDelay, slept[0], "cold start should wait the long delay")
}

func TestRetry_ExhaustsAttemptsOnTransient(t *testing.T) {
	p := testPolicy(3)
	var slept []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	calls := 0
	boom := &statusError{code: 500, body: "boom"}
	_, err := p.do(context.Background(), func() (string, error) {
		calls++
		return "", boom
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "exactly maxAttempts calls")
	assert.Len(t, slept, 2, "no sleep after the final attempt")
	assert.Equal(t, transientDelay, slept[0])

	var se *statusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 500, se.code)
}

func TestRetry_ColdStartConsumesAttemptBudget(t *testing.T) {
	p := testPolicy(3)

	calls := 0
	_, err := p.do(context.Background(), func() (string, error) {
		calls++
		return "", &coldStartError{}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "cold starts share the same attempt budget")
}

func TestRetry_FatalErrorStopsImmediately(t *testing.T) {
	p := testPolicy(3)

	calls := 0
	_, err := p.do(context.Background(), func() (string, error) {
		calls++
		return "", &formatError{snippet: "<html>"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "format errors must not be retried")

	var fe *formatError
	assert.ErrorAs(t, err, &fe)
}

func TestRetry_OnRetryHook(t *testing.T) {
	p := testPolicy(2)
	var classes []errorClass
	p.onRetry = func(c errorClass) { classes = append(classes, c) }

	calls := 0
	_, _ = p.do(context.Background(), func() (string, error) {
		calls++
		return "", &coldStartError{}
	})

	assert.Equal(t, []errorClass{classColdStart}, classes)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, classColdStart, classifyHFError(&coldStartError{}))
	assert.Equal(t, classFatal, classifyHFError(&formatError{}))
	assert.Equal(t, classFatal, classifyHFError(context.Canceled))
	assert.Equal(t, classTransient, classifyHFError(&statusError{code: 502}))
	assert.Equal(t, classTransient, classifyHFError(errors.New("connection refused")))
}

func TestSleepCtx_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sleepCtx(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
