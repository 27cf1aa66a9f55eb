package repeat

import (
	"context"
	"github.com/cenkalti/backoff/v4"
	"time"
)

// Repeat calls f up to attempts times with a fixed delay between calls.
func Repeat(f func() error, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1))
	return backoff.Retry(f, b)
}

// Policy bounds an exponential backoff loop.
type Policy struct {
	Attempts    int
	InitialWait time.Duration
	MaxWait     time.Duration
}

// Hinted is implemented by errors that carry a server supplied wait, such as Retry-After.
type Hinted interface {
	RetryAfter() time.Duration
}

// Notify is called before every wait with the error that caused it.
type Notify func(err error, wait time.Duration)

// Do calls f until it succeeds, returns an error retryable rejects, ctx ends or the
// policy runs out of attempts. The last error is returned unwrapped.
func Do(ctx context.Context, p Policy, retryable func(error) bool, f func(context.Context) error, notify Notify) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialWait
	exp.MaxInterval = p.MaxWait
	exp.MaxElapsedTime = 0
	exp.Reset()

	h := &hinted{BackOff: exp}
	var b backoff.BackOff = backoff.WithMaxRetries(h, uint64(p.Attempts-1))
	b = backoff.WithContext(b, ctx)

	op := func() error {
		err := f(ctx)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		if w, ok := err.(Hinted); ok {
			h.hint = w.RetryAfter()
		}
		return err
	}

	return backoff.RetryNotify(op, b, backoff.Notify(notify))
}

// hinted stretches the next interval up to the wait requested by the last error.
type hinted struct {
	backoff.BackOff
	hint time.Duration
}

func (h *hinted) NextBackOff() time.Duration {
	next := h.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if h.hint > next {
		next = h.hint
	}
	h.hint = 0
	return next
}
