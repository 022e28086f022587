package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/services"
)

// Outcome classifies a failed attempt.
type Outcome int

const (
	Retryable Outcome = iota
	Fatal
)

func (o Outcome) String() string {
	if o == Fatal {
		return "fatal"
	}
	return "retryable"
}

// Classifier maps an attempt error to an Outcome.
type Classifier func(error) Outcome

// DefaultClassifier treats the fatal taxonomy markers and context
// cancellation as fatal and everything else as retryable.
func DefaultClassifier(err error) Outcome {
	if services.IsFatal(err) {
		return Fatal
	}
	return Retryable
}

// Attempt describes one finished try, reported to Policy.OnAttempt.
type Attempt struct {
	Number    int
	Err       error
	Outcome   Outcome
	WillRetry bool
	Delay     time.Duration
}

// Policy bounds how a unit of work is retried.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     bool
	MaxDelay    time.Duration
	Classify    Classifier
	Sleep       func(context.Context, time.Duration) error
	OnAttempt   func(Attempt)
}

// FromConfig converts a stage retry section into a Policy.
func FromConfig(rs config.RetryStage) Policy {
	return Policy{
		MaxAttempts: rs.MaxAttempts,
		Delay:       seconds(rs.DelaySeconds),
		Backoff:     rs.Backoff,
		MaxDelay:    seconds(rs.MaxDelaySeconds),
	}
}

// Once is a policy that runs the work a single time.
func Once() Policy {
	return Policy{MaxAttempts: 1}
}

// Do runs fn until it succeeds, fails fatally, or attempts run out. It
// returns the number of attempts made and the final error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	classify := p.Classify
	if classify == nil {
		classify = DefaultClassifier
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, cancelled(err, lastErr)
		}
		err := fn(ctx, attempt)
		if err == nil {
			p.report(Attempt{Number: attempt})
			return attempt, nil
		}
		lastErr = err

		outcome := classify(err)
		willRetry := outcome == Retryable && attempt < attempts
		var delay time.Duration
		if willRetry {
			delay = p.DelayFor(attempt)
		}
		p.report(Attempt{Number: attempt, Err: err, Outcome: outcome, WillRetry: willRetry, Delay: delay})

		if outcome == Fatal {
			return attempt, err
		}
		if !willRetry {
			break
		}
		if err := p.sleep(ctx, delay); err != nil {
			return attempt, cancelled(err, lastErr)
		}
	}
	if attempts == 1 {
		return 1, lastErr
	}
	return attempts, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// DelayFor returns the wait before the attempt following attempt. With
// Backoff the delay doubles per attempt, capped at MaxDelay.
func (p Policy) DelayFor(attempt int) time.Duration {
	if p.Delay <= 0 {
		return 0
	}
	if !p.Backoff {
		return p.Delay
	}
	if attempt < 1 {
		attempt = 1
	}
	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := p.Delay
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && delay > p.MaxDelay/2 {
			return p.MaxDelay
		}
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func (p Policy) report(a Attempt) {
	if p.OnAttempt != nil {
		p.OnAttempt(a)
	}
}

func (p Policy) sleep(ctx context.Context, delay time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, delay)
	}
	return Sleep(ctx, delay)
}

// Sleep waits for delay or until ctx is done.
func Sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func cancelled(ctxErr, lastErr error) error {
	if lastErr != nil {
		return fmt.Errorf("%w: %w (last error: %v)", services.ErrCancelled, ctxErr, lastErr)
	}
	return fmt.Errorf("%w: %w", services.ErrCancelled, ctxErr)
}

// IsCancelled reports whether err came from a cancelled retry loop.
func IsCancelled(err error) bool {
	return errors.Is(err, services.ErrCancelled) || errors.Is(err, context.Canceled)
}

func seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
