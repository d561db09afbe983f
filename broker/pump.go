package broker

import (
	"context"
	"time"

	"github.com/Luismorlan/campusfeed/model"
	"github.com/Luismorlan/campusfeed/store"
	"github.com/pkg/errors"
)

var errStreamClosed = errors.New("change stream closed")

// pump runs live query attempts one after another until the subscription
// ends. A failed attempt is reported as a stream error and retried with
// exponential backoff.
func (b *Broker) pump(sub *Subscription) {
	defer b.teardown(sub)

	var (
		prev    *model.Snapshot
		backoff = b.config.InitialBackoff
	)
	for {
		delivered, err := b.attempt(sub, &prev)
		if sub.ctx.Err() != nil {
			return
		}
		if delivered {
			backoff = b.config.InitialBackoff
		}

		streamErr := errors.Wrapf(model.ErrStreamError, "subscription %s: %s", sub.Id, err)
		b.logger(sub).Warnf("live query failed, resubscribing in %s: %s", backoff, err)
		select {
		case sub.errs <- streamErr:
		default:
			// The previous error is still unread, one is enough.
		}

		select {
		case <-time.After(backoff):
		case <-sub.ctx.Done():
			return
		}
		backoff *= 2
		if backoff > b.config.MaxBackoff {
			backoff = b.config.MaxBackoff
		}
	}
}

// attempt opens a change stream, delivers the current feed and then a fresh
// snapshot per batch of changes. It only returns on failure or when the
// subscription ends.
func (b *Broker) attempt(sub *Subscription, prev **model.Snapshot) (delivered bool, err error) {
	ctx, cancel := context.WithCancel(sub.ctx)
	defer cancel()

	// Watch before the first read so no change between the two is missed.
	changes, err := b.store.Watch(ctx)
	if err != nil {
		return false, err
	}

	sent, err := b.refresh(ctx, sub, prev)
	if err != nil {
		return delivered, err
	}
	delivered = delivered || sent

	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return delivered, errStreamClosed
			}
			// Coalesce whatever else is pending, one read covers them all.
			closed := false
		drain:
			for {
				select {
				case _, ok := <-changes:
					if !ok {
						closed = true
						break drain
					}
				default:
					break drain
				}
			}

			sent, err := b.refresh(ctx, sub, prev)
			if err != nil {
				return delivered, err
			}
			delivered = delivered || sent
			if closed {
				return delivered, errStreamClosed
			}
		}
	}
}

// refresh reads the top of the feed and delivers it unless nothing changed
// since the previous snapshot.
func (b *Broker) refresh(ctx context.Context, sub *Subscription, prev **model.Snapshot) (bool, error) {
	posts, err := b.store.ListPosts(ctx, store.ListQuery{Limit: b.config.PageSize})
	if err != nil {
		return false, errors.Wrap(err, "fail to read feed")
	}

	next := model.NextSnapshot(*prev, posts)
	if *prev != nil && next.Diff.IsEmpty() {
		return false, nil
	}

	select {
	case sub.snapshots <- next:
		*prev = next
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// teardown runs exactly once per subscription, when its pump exits.
func (b *Broker) teardown(sub *Subscription) {
	b.remove(sub)

	// Buffered snapshots were produced before the cancel and must not be
	// delivered after it.
	for {
		select {
		case <-sub.snapshots:
			continue
		default:
		}
		break
	}
	close(sub.snapshots)
	close(sub.errs)
	close(sub.done)

	b.logger(sub).Debug("subscription torn down")
}
