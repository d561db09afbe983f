package broker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Luismorlan/campusfeed/model"
)

// Subscription is one viewer's live view of the feed. Its pump goroutine is
// the only writer of both channels and closes them exactly once when the
// subscription ends.
type Subscription struct {
	Id       string
	ViewerId string

	snapshots chan *model.Snapshot
	errs      chan error

	ctx    context.Context
	cancel context.CancelFunc
	// closed once teardown completed.
	done      chan struct{}
	cancelled int32

	// Serializes Cancel against the start of a SubscribeFunc callback.
	callbackMu sync.Mutex
}

// Snapshots delivers full ordered views of the feed, closed when the
// subscription ends.
func (s *Subscription) Snapshots() <-chan *model.Snapshot {
	return s.snapshots
}

// Errors delivers model.ErrStreamError wrapped errors. The broker recovers
// from them on its own, they are informational. Closed when the subscription
// ends.
func (s *Subscription) Errors() <-chan error {
	return s.errs
}

// Done is closed once the subscription is torn down.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Cancel ends the subscription and blocks until it is torn down. Safe to call
// any number of times from any goroutine, including from a SubscribeFunc
// callback.
func (s *Subscription) Cancel() {
	s.callbackMu.Lock()
	atomic.StoreInt32(&s.cancelled, 1)
	s.callbackMu.Unlock()

	s.cancel()
	<-s.done
}

// beginCallback reports whether a callback may start. Once Cancel has set the
// flag no callback starts, one already running is not waited for so that
// Cancel can be called from inside a callback.
func (s *Subscription) beginCallback() bool {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	return !s.IsCancelled()
}

// IsCancelled reports whether Cancel was called or the parent context ended.
func (s *Subscription) IsCancelled() bool {
	return atomic.LoadInt32(&s.cancelled) == 1 || s.ctx.Err() != nil
}
