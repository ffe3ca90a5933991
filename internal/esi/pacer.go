// Package esi wraps outbound calls to the EVE Swagger Interface: bearer
// injection, proactive and 401-driven token refresh, provider rate-limit
// backoff, and a single global dispatch gate that paces every request.
package esi

import (
	"context"

	"golang.org/x/time/rate"
)

// Pacer is the one concurrency-control point for outbound requests. It
// admits callers one at a time and releases them at a bounded rate with a
// short-burst allowance, so arbitrarily many concurrent logical requests
// collapse into an ordered, paced stream.
type Pacer struct {
	sem chan struct{}
	lim *rate.Limiter
}

// NewPacer creates a pacer releasing at most perSecond requests per second
// sustained, with the given burst allowance.
func NewPacer(perSecond, burst int) *Pacer {
	return &Pacer{
		sem: make(chan struct{}, 1),
		lim: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Admit blocks until the caller may dispatch. Admission is serialized
// through a single slot, so waiters queue and the limiter hands out
// releases in admission order.
func (p *Pacer) Admit(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.sem }()

	return p.lim.Wait(ctx)
}
