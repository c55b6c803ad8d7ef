package execution

import (
	"context"
	"sync"
)

type commitKey struct{}

type commitQueue struct {
	mu  sync.Mutex
	fns []func(context.Context)
}

func withCommitQueue(ctx context.Context) (context.Context, *commitQueue) {
	q := &commitQueue{}
	return context.WithValue(ctx, commitKey{}, q), q
}

// AfterCommit schedules fn to run once the mutation field being resolved
// has committed. The callbacks of a field that fails are dropped. Outside
// a mutation fn runs immediately.
func AfterCommit(ctx context.Context, fn func(context.Context)) {
	q, ok := ctx.Value(commitKey{}).(*commitQueue)
	if !ok {
		fn(ctx)
		return
	}
	q.mu.Lock()
	q.fns = append(q.fns, fn)
	q.mu.Unlock()
}

func (q *commitQueue) flush(ctx context.Context) {
	q.mu.Lock()
	fns := q.fns
	q.fns = nil
	q.mu.Unlock()
	for _, fn := range fns {
		fn(ctx)
	}
}
