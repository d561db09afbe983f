package changefeed

import (
	"context"
	"encoding/json"

	"github.com/Luismorlan/campusfeed/model"
	"github.com/pkg/errors"
)

const (
	// Topic on the in-process event bus carrying committed post changes.
	TopicPostChanged = "topic.post_changed"
	// Redis channel carrying committed post changes across api servers.
	RedisChannelPostChanged = "campusfeed:post_changed"

	subscriberBuffer = 100
)

// Notifier fans committed post changes out to every interested subscriber.
//
// Changes are hints, not a log: they name a post and a subscriber is expected
// to re-read the store. Delivery order between two changes is not guaranteed.
//
// The channel returned by Subscribe closes when ctx is done. If it closes while
// ctx is still alive the stream has failed and the caller should subscribe
// again.
type Notifier interface {
	Publish(ctx context.Context, change *model.PostChange) error
	Subscribe(ctx context.Context) (<-chan *model.PostChange, error)
	Close() error
}

func encodeChange(change *model.PostChange) ([]byte, error) {
	if change == nil {
		return nil, errors.Wrap(model.ErrInvalidArgument, "nil post change")
	}
	return json.Marshal(change)
}

func decodeChange(payload []byte) (*model.PostChange, error) {
	change := &model.PostChange{}
	if err := json.Unmarshal(payload, change); err != nil {
		return nil, errors.Wrap(err, "malformed post change payload")
	}
	return change, nil
}
