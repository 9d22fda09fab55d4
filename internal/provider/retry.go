package provider

import (
	"context"
	"fmt"
	"time"
)

// errorClass buckets upstream failures for retry purposes.
type errorClass int

const (
	// classFatal errors are never retried: malformed responses, context
	// cancellation.
	classFatal errorClass = iota
	// classColdStart means the upstream model is still loading and wants
	// a longer pause before the next poll.
	classColdStart
	// classTransient covers everything else worth a short-delay retry.
	classTransient
)

// retryPolicy is a bounded retry driver with per-class delays. A cold-start
// failure waits longer than a generic one but consumes the same attempt
// budget.
type retryPolicy struct {
	maxAttempts int
	classify    func(error) errorClass
	delay       func(errorClass) time.Duration
	sleep       func(context.Context, time.Duration) error
	onRetry     func(errorClass)
}

// do runs op until it succeeds, fails fatally, or exhausts maxAttempts.
// The final attempt's error is propagated unchanged.
func (p retryPolicy) do(ctx context.Context, op func() (string, error)) (string, error) {
	for attempt := 1; ; attempt++ {
		out, err := op()
		if err == nil {
			return out, nil
		}

		class := p.classify(err)
		if class == classFatal || attempt >= p.maxAttempts {
			return "", err
		}

		if p.onRetry != nil {
			p.onRetry(class)
		}
		if serr := p.sleep(ctx, p.delay(class)); serr != nil {
			return "", serr
		}
	}
}

// sleepCtx waits d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// coldStartError signals the upstream model is loading (HTTP 503 from the
// inference endpoint).
type coldStartError struct {
	estimatedTime float64
}

func (e *coldStartError) Error() string {
	if e.estimatedTime > 0 {
		return fmt.Sprintf("model is loading (estimated %.0fs)", e.estimatedTime)
	}
	return "model is loading"
}

// statusError is a non-2xx upstream response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.code, e.body)
}

// formatError is a 2xx response whose body matched none of the known
// shapes. Retrying cannot help, so it is fatal.
type formatError struct {
	snippet string
}

func (e *formatError) Error() string {
	return fmt.Sprintf("unexpected response format: %s", e.snippet)
}
