package modelclient

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy controls how often a failed upload is retried. Only errors
// carrying an HTTP status are retried.
type RetryPolicy struct {
	MaxAttempts         int
	InitialInterval     time.Duration
	Multiplier          float64
	MaxInterval         time.Duration
	RandomizationFactor float64
}

// DefaultRetryPolicy allows 3 attempts with randomized exponential waits,
// doubling from 2s and never longer than 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         3,
		InitialInterval:     2 * time.Second,
		Multiplier:          2,
		MaxInterval:         30 * time.Second,
		RandomizationFactor: 1,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	if p.RandomizationFactor < 0 || p.RandomizationFactor > 1 {
		p.RandomizationFactor = d.RandomizationFactor
	}
	return p
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxInterval
	b.RandomizationFactor = p.RandomizationFactor
	b.Reset()
	return &cappedBackOff{BackOff: b, max: p.MaxInterval}
}

// cappedBackOff keeps randomized intervals below max.
type cappedBackOff struct {
	backoff.BackOff
	max time.Duration
}

func (b *cappedBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next != backoff.Stop && next > b.max {
		return b.max
	}
	return next
}
