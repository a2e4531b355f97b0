package scanning

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
)

// Retrying retries failed recognitions of the wrapped Scanner
type Retrying struct {
	scanner  Scanner
	attempts uint
	delay    time.Duration
}

// NewRetrying wraps scanner so transient OCR failures are retried.
// Attempts below 1 are treated as 1.
func NewRetrying(scanner Scanner, attempts uint, delay time.Duration) *Retrying {
	if attempts == 0 {
		attempts = 1
	}
	return &Retrying{
		scanner:  scanner,
		attempts: attempts,
		delay:    delay,
	}
}

// Recognize calls the wrapped scanner until it succeeds, the attempts run
// out or the context ends
func (r *Retrying) Recognize(ctx context.Context, imageData []byte, contentType string) (*Recognition, error) {
	return retry.DoWithData(
		func() (*Recognition, error) {
			return r.scanner.Recognize(ctx, imageData, contentType)
		},
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.Delay(r.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrImageConversion) &&
				!errors.Is(err, context.Canceled)
		}),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Retrying OCR", "attempt", n+1, "error", err)
		}),
	)
}

// Close closes the wrapped scanner
func (r *Retrying) Close() error {
	return r.scanner.Close()
}
