package breaker

import "context"

// Do executes a unit of work through the breaker.
//
// When the trip policy denies the attempt the unit of work is never invoked
// and the fallback result is returned instead (or ErrOpen when no fallback
// is supplied). When the attempt is permitted the work runs WITHOUT the
// breaker's lock held, its outcome is classified by the failure predicate
// and recorded, and its own value/error is propagated to the caller
// unchanged. Do never retries; a timeout applied by the caller's context
// surfaces as an error and counts as a failure under the default predicate.
func Do[T any](ctx context.Context, b *Breaker, work func(context.Context) (T, error), fallback func(context.Context, error) (T, error)) (T, error) {
	if err := b.Allow(); err != nil {
		if fallback != nil {
			return fallback(ctx, err)
		}
		var zero T
		return zero, err
	}

	v, err := work(ctx)
	if b.isFailure(err) {
		b.RecordFailure()
	} else {
		b.RecordSuccess()
	}
	return v, err
}
