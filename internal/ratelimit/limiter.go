// Package ratelimit provides the token buckets shared by the metadata
// resolvers. Tokens refill continuously at N per window and the bucket
// holds a single token, so no rolling window ever sees more than N calls.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

type Limiter struct {
	name string
	lim  *rate.Limiter
}

// New returns a limiter allowing n calls per window. n <= 0 or window <= 0
// yields an unlimited limiter.
func New(name string, n int, window time.Duration) *Limiter {
	if n <= 0 || window <= 0 {
		return &Limiter{name: name, lim: rate.NewLimiter(rate.Inf, 0)}
	}
	every := window / time.Duration(n)
	return &Limiter{name: name, lim: rate.NewLimiter(rate.Every(every), 1)}
}

func (l *Limiter) Name() string { return l.name }

// Acquire blocks until a token is available. It only fails when ctx is
// done first.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.lim.Wait(ctx)
}
