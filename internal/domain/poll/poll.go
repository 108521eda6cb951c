// Package poll runs bounded wait loops against remote state.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned when every attempt ran without reaching done.
var ErrExhausted = errors.New("poll attempts exhausted")

// Check reports whether the awaited state was reached.
type Check func(ctx context.Context) (done bool, err error)

// Until runs check at most attempts times, sleeping interval between
// attempts. It returns nil once check reports done, the first check error,
// ErrExhausted after the last attempt, or ctx.Err() if ctx ends first.
func Until(ctx context.Context, attempts int, interval time.Duration, check Check) error {
	if attempts < 1 {
		attempts = 1
	}
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if timer == nil {
			timer = time.NewTimer(interval)
		} else {
			timer.Reset(interval)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return ErrExhausted
}
