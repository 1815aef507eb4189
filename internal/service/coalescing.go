package service

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// inFlightRequest is one shared upstream cycle that several callers wait on.
type inFlightRequest struct {
	done   chan struct{}
	result models.Report
	err    error
}

// requestCoalescer collapses concurrent cache misses for the same city into one
// upstream cycle.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRequest
	timeout  time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*inFlightRequest),
		timeout:  timeout,
	}
}

// GetOrDo joins the in-flight cycle for key or starts one. The shared cycle runs on a
// context detached from any single caller and bounded by the coalescer timeout, so a
// caller that gives up does not fail the others. Each caller stops waiting when its
// own ctx is done. The bool reports whether the caller joined an existing cycle.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func(context.Context) (models.Report, error)) (models.Report, bool, error) {
	rc.mu.Lock()
	req, joined := rc.inFlight[key]
	if !joined {
		req = &inFlightRequest{done: make(chan struct{})}
		rc.inFlight[key] = req
		go rc.run(context.WithoutCancel(ctx), key, req, fn)
	}
	rc.mu.Unlock()

	select {
	case <-req.done:
		return req.result, joined, req.err
	case <-ctx.Done():
		return models.Report{}, joined, ctx.Err()
	}
}

func (rc *requestCoalescer) run(ctx context.Context, key string, req *inFlightRequest, fn func(context.Context) (models.Report, error)) {
	ctx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()

	req.result, req.err = fn(ctx)

	rc.mu.Lock()
	delete(rc.inFlight, key)
	rc.mu.Unlock()
	close(req.done)
}
