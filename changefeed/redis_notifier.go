package changefeed

import (
	"context"

	"github.com/Luismorlan/campusfeed/model"
	Logger "github.com/Luismorlan/campusfeed/utils/log"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// RedisNotifier publishes post changes on a redis channel so that every api
// server sees writes accepted by its peers.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client, channel: RedisChannelPostChanged}
}

func (n *RedisNotifier) Publish(ctx context.Context, change *model.PostChange) error {
	payload, err := encodeChange(change)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.channel, payload).Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context) (<-chan *model.PostChange, error) {
	pubsub := n.client.Subscribe(ctx, n.channel)
	// Wait for the subscription confirmation, otherwise changes published right
	// after Subscribe returns could be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, errors.Wrap(err, "fail to subscribe to "+n.channel)
	}

	messages := pubsub.Channel()
	out := make(chan *model.PostChange, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				change, err := decodeChange([]byte(msg.Payload))
				if err != nil {
					Logger.Log.Errorf("drop post change from %s: %s", msg.Channel, err)
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the redis client, which also ends every subscription.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
