package jira

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// FetchPolicy controls timeouts, retries, and adaptive batch sizing.
type FetchPolicy struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration // per-attempt base; attempt N waits N*ReadTimeout
	MaxRetries     int           // attempts per request, including the first
	RetryDelay     time.Duration
	BatchSize      int
	MinBatchSize   int
	GrowStep       int
}

// DefaultFetchPolicy returns the production defaults.
func DefaultFetchPolicy() FetchPolicy {
	return FetchPolicy{
		ConnectTimeout: 15 * time.Second,
		ReadTimeout:    60 * time.Second,
		MaxRetries:     3,
		RetryDelay:     2 * time.Second,
		BatchSize:      200,
		MinBatchSize:   50,
		GrowStep:       25,
	}
}

func (p FetchPolicy) withDefaults() FetchPolicy {
	d := DefaultFetchPolicy()
	if p.ConnectTimeout <= 0 {
		p.ConnectTimeout = d.ConnectTimeout
	}
	if p.ReadTimeout <= 0 {
		p.ReadTimeout = d.ReadTimeout
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = d.MaxRetries
	}
	if p.RetryDelay < 0 {
		p.RetryDelay = 0
	}
	if p.BatchSize <= 0 {
		p.BatchSize = d.BatchSize
	}
	if p.MinBatchSize <= 0 {
		p.MinBatchSize = d.MinBatchSize
	}
	if p.MinBatchSize > p.BatchSize {
		p.MinBatchSize = p.BatchSize
	}
	if p.GrowStep <= 0 {
		p.GrowStep = d.GrowStep
	}
	return p
}

// attemptBackOff switches between two delay schedules depending on the last
// failure: exponential with jitter after a timeout, linear otherwise.
type attemptBackOff struct {
	exp         *backoff.ExponentialBackOff
	delay       time.Duration
	linearStep  int
	lastTimeout bool
}

func newAttemptBackOff(delay time.Duration) *attemptBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = delay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0.25
	exp.MaxInterval = 8 * delay
	exp.MaxElapsedTime = 0 // bounded by the retry ceiling instead
	exp.Reset()
	return &attemptBackOff{exp: exp, delay: delay}
}

func (b *attemptBackOff) observe(err error) {
	b.lastTimeout = IsTimeout(err)
}

func (b *attemptBackOff) NextBackOff() time.Duration {
	if b.lastTimeout {
		return b.exp.NextBackOff()
	}
	b.linearStep++
	return b.delay * time.Duration(b.linearStep)
}

func (b *attemptBackOff) Reset() {
	b.exp.Reset()
	b.linearStep = 0
	b.lastTimeout = false
}

// retry runs fn up to MaxRetries times. Each attempt gets its own deadline of
// attempt*ReadTimeout. Remote rejections and caller cancellation stop immediately.
func (c *Client) retry(ctx context.Context, what string, fn func(ctx context.Context) error) error {
	policy := newAttemptBackOff(c.policy.RetryDelay)
	attempt := 0

	op := func() error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, c.policy.ReadTimeout*time.Duration(attempt))
		defer cancel()

		err := fn(actx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if IsRemoteError(err) {
			return backoff.Permanent(err)
		}
		policy.observe(err)
		c.metrics.attemptFailed(ctx, IsTimeout(err))
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("jira request failed, retrying",
			"request", what,
			"attempt", attempt,
			"max_attempts", c.policy.MaxRetries,
			"timeout", IsTimeout(err),
			"wait", wait,
			"err", err)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.policy.MaxRetries-1)), ctx)
	return backoff.RetryNotifyWithTimer(op, bo, notify, c.newTimer())
}

// pageAction is what the pager decided after a page exhausted its retries on timeouts.
type pageAction int

const (
	actionRetry  pageAction = iota // same offset, same batch
	actionShrink                   // same offset, halved batch
	actionSkip                     // slice abandoned, offset advanced by the floor
)

func (a pageAction) String() string {
	switch a {
	case actionShrink:
		return "shrink"
	case actionSkip:
		return "skip"
	}
	return "retry"
}

// pager tracks offset and adaptive batch size for one paginated fetch.
type pager struct {
	position            int
	batchSize           int
	defaultSize         int
	floor               int
	growStep            int
	consecutiveTimeouts int
}

func newPager(p FetchPolicy) *pager {
	return &pager{
		batchSize:   p.BatchSize,
		defaultSize: p.BatchSize,
		floor:       p.MinBatchSize,
		growStep:    p.GrowStep,
	}
}

// requestSize is the page size for the next request given how many results remain wanted.
func (p *pager) requestSize(remaining int) int {
	return min(p.batchSize, remaining)
}

// advance records a successful page of n issues.
// Returns true when the batch size grew.
func (p *pager) advance(n int) bool {
	p.consecutiveTimeouts = 0
	p.position += n
	if p.batchSize < p.defaultSize {
		p.batchSize = min(p.defaultSize, p.batchSize+p.growStep)
		return true
	}
	return false
}

// timedOut records a page whose attempts all timed out and decides what to do next.
func (p *pager) timedOut() pageAction {
	p.consecutiveTimeouts++
	if p.batchSize <= p.floor {
		p.position += p.floor
		p.consecutiveTimeouts = 0
		return actionSkip
	}
	if p.consecutiveTimeouts >= 2 {
		p.batchSize = max(p.floor, p.batchSize/2)
		p.consecutiveTimeouts = 0
		return actionShrink
	}
	return actionRetry
}
