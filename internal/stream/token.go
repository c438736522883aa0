package stream

import (
	"context"
	"sync/atomic"
)

// Token identifies one started stream and carries its cancellation state.
// Handlers compare tokens and check IsCancelled before writing shared state.
type Token interface {
	IsCancelled() bool
	Done() <-chan struct{}
	// Finished is closed once the stream goroutine has returned.
	Finished() <-chan struct{}
}

type cancelToken struct {
	ctx      context.Context
	cancel   context.CancelFunc
	aborted  atomic.Bool
	finished chan struct{}
}

func newToken(parent context.Context) *cancelToken {
	ctx, cancel := context.WithCancel(parent)
	return &cancelToken{ctx: ctx, cancel: cancel, finished: make(chan struct{})}
}

// abort flags the token before releasing the request so that any callback
// racing with the cancellation already observes IsCancelled() == true.
func (t *cancelToken) abort() {
	t.aborted.Store(true)
	t.cancel()
}

func (t *cancelToken) IsCancelled() bool {
	return t.aborted.Load()
}

func (t *cancelToken) Done() <-chan struct{} {
	return t.ctx.Done()
}

func (t *cancelToken) Finished() <-chan struct{} {
	return t.finished
}
