// Package worker provides a generic bounded worker pool. Results are paired
// with their requests by index, regardless of completion order.
package worker

import (
	"context"
	"sync"
)

// DefaultWidth is the pool width used when none is configured.
const DefaultWidth = 4

// Pool fans a slice of requests out over a fixed number of goroutines.
type Pool[Req, Res any] struct {
	width int
}

// NewPool creates a pool of the given width. A non-positive width falls back
// to DefaultWidth.
func NewPool[Req, Res any](width int) *Pool[Req, Res] {
	if width <= 0 {
		width = DefaultWidth
	}
	return &Pool[Req, Res]{width: width}
}

// Width returns the configured concurrency bound.
func (p *Pool[Req, Res]) Width() int { return p.width }

// Run applies fn to every request and returns the results in request order.
// fn is responsible for converting its own failures into a Res value; the
// pool never drops or reorders work. Every request is processed even when
// ctx is cancelled mid-batch; fn is expected to observe ctx itself.
func (p *Pool[Req, Res]) Run(ctx context.Context, reqs []Req, fn func(context.Context, Req) Res) []Res {
	results := make([]Res, len(reqs))
	if len(reqs) == 0 {
		return results
	}

	width := p.width
	if width > len(reqs) {
		width = len(reqs)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(width)
	for w := 0; w < width; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = fn(ctx, reqs[i])
			}
		}()
	}

	for i := range reqs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}
