package providers

import (
	"context"
	"time"
)

type offloadResult struct {
	text string
	err  error
}

// Offload runs a blocking provider call on its own goroutine, bounded by
// timeout. The caller gets control back as soon as the call finishes or the
// context is done, whichever comes first. A non-positive timeout means
// DefaultTimeout.
func Offload(ctx context.Context, timeout time.Duration, call func(ctx context.Context) (string, error)) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so the goroutine can always deliver and exit, even after we stopped waiting
	done := make(chan offloadResult, 1)
	go func() {
		text, err := call(ctx)
		done <- offloadResult{text: text, err: err}
	}()

	select {
	case res := <-done:
		return res.text, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
