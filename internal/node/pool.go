package node

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent RPC dispatch to a fixed worker count (default 1),
// matching spec §5's "worker pool of fixed size" requirement: request
// dispatch is FIFO, and responses are re-associated with requests by the
// caller-assigned id rather than relied upon for ordering.
type Pool struct {
	client *Client
	sem    *semaphore.Weighted
}

// NewPool wraps client with a bounded-concurrency dispatcher. size <= 1
// degenerates to fully sequential dispatch, the core's default.
func NewPool(client *Client, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{client: client, sem: semaphore.NewWeighted(int64(size))}
}

// Do runs fn with at most Pool's configured concurrency. Callers issue
// requests in FIFO order by calling Do in that order; the semaphore
// guarantees no more than `size` are in flight concurrently.
func (p *Pool) Do(ctx context.Context, fn func(*Client) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn(p.client)
}

// Client returns the underlying Client for direct sequential use when no
// concurrency is needed (the default path for a size-1 pool).
func (p *Pool) Client() *Client {
	return p.client
}
