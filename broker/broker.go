package broker

import (
	"context"
	"sync"
	"time"

	"github.com/Luismorlan/campusfeed/model"
	"github.com/Luismorlan/campusfeed/store"
	Logger "github.com/Luismorlan/campusfeed/utils/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// Number of posts from the top of the feed carried by every snapshot.
	PageSize int
	// Snapshots buffered per subscription. A full buffer blocks that
	// subscription's pump, snapshots are never dropped.
	SnapshotBuffer int
	// Resubscribe backoff after a stream error, doubled on every consecutive
	// failure and reset once a snapshot is delivered.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultConfig() Config {
	return Config{
		PageSize:       50,
		SnapshotBuffer: 4,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// Broker turns store changes into ordered feed snapshots for every active
// subscription. All internal state should not be handled directly by hand but
// managed by its public receivers.
type Broker struct {
	store  store.Store
	config Config

	// connectionMap maps from viewer id to the viewer's active subscriptions,
	// keyed by subscription id so that removal is O(1). A viewer entry is
	// deleted once all of its subscriptions are gone.
	connectionMap map[string]map[string]*Subscription

	// Adding/Removing a subscription must grab the write lock, counting grabs
	// the read lock.
	mu sync.RWMutex
}

func NewBroker(s store.Store, config Config) *Broker {
	d := DefaultConfig()
	if config.PageSize <= 0 {
		config.PageSize = d.PageSize
	}
	if config.SnapshotBuffer <= 0 {
		config.SnapshotBuffer = d.SnapshotBuffer
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = d.InitialBackoff
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = config.InitialBackoff
	}
	return &Broker{
		store:         s,
		config:        config,
		connectionMap: make(map[string]map[string]*Subscription),
	}
}

// Subscribe starts a live view of the feed for viewerId. The first snapshot is
// the current feed, a new one follows every committed change that alters it.
// The subscription ends when ctx is done or Cancel is called.
func (b *Broker) Subscribe(ctx context.Context, viewerId string) (*Subscription, error) {
	if err := model.ValidateId(viewerId); err != nil {
		return nil, errors.Wrap(err, "viewerId")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		Id:        "subscription_" + uuid.New().String(),
		ViewerId:  viewerId,
		snapshots: make(chan *model.Snapshot, b.config.SnapshotBuffer),
		errs:      make(chan error, 1),
		ctx:       subCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	b.mu.Lock()
	if _, ok := b.connectionMap[viewerId]; !ok {
		b.connectionMap[viewerId] = make(map[string]*Subscription)
	}
	b.connectionMap[viewerId][sub.Id] = sub
	b.mu.Unlock()

	go b.pump(sub)

	return sub, nil
}

// SubscribeFunc is Subscribe with callbacks. onError may be nil. Callbacks run
// on one goroutine, in delivery order. After Cancel returns no callback is
// started, one already running may still complete.
func (b *Broker) SubscribeFunc(ctx context.Context, viewerId string, onSnapshot func(*model.Snapshot), onError func(error)) (*Subscription, error) {
	sub, err := b.Subscribe(ctx, viewerId)
	if err != nil {
		return nil, err
	}

	go func() {
		snapshots, errs := sub.snapshots, sub.errs
		for snapshots != nil || errs != nil {
			select {
			case snapshot, ok := <-snapshots:
				if !ok {
					snapshots = nil
					continue
				}
				if !sub.beginCallback() {
					continue
				}
				onSnapshot(snapshot)
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				if onError != nil && sub.beginCallback() {
					onError(err)
				}
			}
		}
	}()

	return sub, nil
}

// ActiveSubscriptionsCount is thread-safe.
func (b *Broker) ActiveSubscriptionsCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, mp := range b.connectionMap {
		count += len(mp)
	}
	return count
}

// ViewerSubscriptionsCount is thread-safe.
func (b *Broker) ViewerSubscriptionsCount(viewerId string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.connectionMap[viewerId])
}

// Shutdown cancels every active subscription and waits for them to finish.
func (b *Broker) Shutdown() {
	b.mu.RLock()
	subs := []*Subscription{}
	for _, mp := range b.connectionMap {
		for _, sub := range mp {
			subs = append(subs, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

// remove a single subscription. If a viewer's all subscriptions are gone,
// clean up the viewer's top-level entry as well.
func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.connectionMap[sub.ViewerId], sub.Id)
	if len(b.connectionMap[sub.ViewerId]) == 0 {
		delete(b.connectionMap, sub.ViewerId)
	}
}

func (b *Broker) logger(sub *Subscription) *logrus.Entry {
	return Logger.Log.WithFields(logrus.Fields{"subscription_id": sub.Id, "viewer_id": sub.ViewerId})
}
