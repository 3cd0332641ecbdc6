// Package batch validates many submissions concurrently without proving.
package batch

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MJE43/score-attest/internal/score"
)

var ErrTooLarge = errors.New("batch too large")

// MaxBatchSize bounds a single Run
const MaxBatchSize = 10000

// Item is the result for the submission at Index. Result is nil when the
// batch stopped before the item was processed.
type Item struct {
	Index  int           `json:"index"`
	Result *score.Result `json:"result,omitempty"`
}

// Summary contains aggregate counts
type Summary struct {
	Total    int  `json:"total"`
	Verified int  `json:"verified"`
	Rejected int  `json:"rejected"`
	Skipped  int  `json:"skipped"`
	TimedOut bool `json:"timed_out,omitempty"`
}

// Verifier runs the score program over a batch on a worker pool
type Verifier struct {
	workerCount int
	timeout     time.Duration
}

// NewVerifier creates a verifier with one worker per available CPU.
// A zero timeout means the caller's context alone bounds Run.
func NewVerifier(timeout time.Duration) *Verifier {
	return &Verifier{
		workerCount: runtime.GOMAXPROCS(0),
		timeout:     timeout,
	}
}

// Run validates subs under policy. Items are returned in input order.
func (v *Verifier) Run(ctx context.Context, policy score.Policy, subs []score.ScoreSubmission) ([]Item, Summary, error) {
	if len(subs) > MaxBatchSize {
		return nil, Summary{}, ErrTooLarge
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	items := make([]Item, len(subs))
	jobs := make(chan int, v.workerCount*2)

	var verified, processed int64
	var wg sync.WaitGroup

	workers := v.workerCount
	if workers > len(subs) {
		workers = len(subs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case idx, ok := <-jobs:
					if !ok {
						return
					}
					res := policy.Execute(subs[idx])
					// each index is written by exactly one worker
					items[idx].Result = &res
					atomic.AddInt64(&processed, 1)
					if res.Outcome.Verified {
						atomic.AddInt64(&verified, 1)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range subs {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()

	for i := range items {
		items[i].Index = i
	}

	done := int(atomic.LoadInt64(&processed))
	ok := int(atomic.LoadInt64(&verified))
	summary := Summary{
		Total:    len(subs),
		Verified: ok,
		Rejected: done - ok,
		Skipped:  len(subs) - done,
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
	}
	return items, summary, nil
}
