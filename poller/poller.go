package poller

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Retry policy: 1s doubling to a 30s ceiling, 20 fetches without progress
// before giving up with a terminal, user-surfaceable error.
const (
	DefaultInitialInterval = 1000 * time.Millisecond
	DefaultMaxInterval     = 30000 * time.Millisecond
	DefaultMaxAttempts     = 20
)

// ErrStillProcessing is returned when the retry budget is exhausted while jobs
// are still outstanding. Callers should surface a "still processing, check back
// later" state rather than waiting further.
var ErrStillProcessing = errors.New("poller: jobs still processing after retry budget exhausted")

// JobState is one entry of the owner's job list as the status endpoint returns it.
type JobState struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	OutputImageURL string `json:"output_image_url"`
}

// JobLister fetches the owner's current job list. One call per poll round.
type JobLister interface {
	ListJobs(ctx context.Context) ([]JobState, error)
}

// Poller watches a set of submitted jobs until every one of them carries an
// output reference. Read-only against the server; safe to run several
// concurrently for the same owner.
type Poller struct {
	client          JobLister
	initialInterval time.Duration
	maxInterval     time.Duration
	maxAttempts     int
	notify          func(resolved []JobState)
	sleep           func(ctx context.Context, d time.Duration) error
}

type Option func(*Poller)

// WithNotify registers a callback invoked each time part of the working set
// resolves, so the caller can re-render incrementally.
func WithNotify(fn func(resolved []JobState)) Option {
	return func(p *Poller) { p.notify = fn }
}

// WithIntervals overrides the backoff bounds. Tests shrink these.
func WithIntervals(initial, max time.Duration) Option {
	return func(p *Poller) {
		p.initialInterval = initial
		p.maxInterval = max
	}
}

// WithMaxAttempts overrides the retry budget.
func WithMaxAttempts(n int) Option {
	return func(p *Poller) { p.maxAttempts = n }
}

func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) { p.sleep = fn }
}

func New(client JobLister, opts ...Option) *Poller {
	p := &Poller{
		client:          client,
		initialInterval: DefaultInitialInterval,
		maxInterval:     DefaultMaxInterval,
		maxAttempts:     DefaultMaxAttempts,
		sleep:           sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Await blocks until every job id has an output reference, the retry budget
// runs out (ErrStillProcessing), or ctx is cancelled. Progress resets both the
// backoff and the attempt counter.
func (p *Poller) Await(ctx context.Context, jobIDs []string) error {
	outstanding := make(map[string]struct{}, len(jobIDs))
	for _, id := range jobIDs {
		outstanding[id] = struct{}{}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialInterval
	b.MaxInterval = p.maxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()

	attempts := 0
	for len(outstanding) > 0 {
		if attempts >= p.maxAttempts {
			return ErrStillProcessing
		}
		attempts++

		states, err := p.client.ListJobs(ctx)
		if err != nil || len(states) == 0 {
			if err := p.sleep(ctx, b.NextBackOff()); err != nil {
				return err
			}
			continue
		}

		byID := make(map[string]JobState, len(states))
		for _, state := range states {
			byID[state.JobID] = state
		}

		resolved := make([]JobState, 0, len(outstanding))
		for id := range outstanding {
			state, ok := byID[id]
			if ok && state.OutputImageURL != "" {
				resolved = append(resolved, state)
			}
		}

		if len(resolved) > 0 {
			for _, state := range resolved {
				delete(outstanding, state.JobID)
			}
			// Progress: restart the budget so slow siblings get a full window.
			b.Reset()
			attempts = 0

			if p.notify != nil {
				p.notify(resolved)
			}
		}

		if len(outstanding) == 0 {
			return nil
		}

		if err := p.sleep(ctx, b.NextBackOff()); err != nil {
			return err
		}
	}

	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
