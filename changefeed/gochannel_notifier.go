package changefeed

import (
	"context"

	"github.com/Luismorlan/campusfeed/model"
	Logger "github.com/Luismorlan/campusfeed/utils/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// NewDefaultEventBus creates the in-process event bus. For now we use a golang
// channel implementation, a single api server needs nothing more.
func NewDefaultEventBus() *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            subscriberBuffer,
			BlockPublishUntilSubscriberAck: false,
		},
		watermill.NewStdLogger(false, false),
	)
}

// GoChannelNotifier publishes post changes on a watermill gochannel bus.
type GoChannelNotifier struct {
	EventBus *gochannel.GoChannel
}

func NewGoChannelNotifier(e *gochannel.GoChannel) *GoChannelNotifier {
	return &GoChannelNotifier{EventBus: e}
}

func (n *GoChannelNotifier) Publish(ctx context.Context, change *model.PostChange) error {
	payload, err := encodeChange(change)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return n.EventBus.Publish(TopicPostChanged, msg)
}

func (n *GoChannelNotifier) Subscribe(ctx context.Context) (<-chan *model.PostChange, error) {
	messages, err := n.EventBus.Subscribe(ctx, TopicPostChanged)
	if err != nil {
		return nil, err
	}

	out := make(chan *model.PostChange, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range messages {
			msg.Ack()

			change, err := decodeChange(msg.Payload)
			if err != nil {
				Logger.Log.Errorf("drop post change %s: %s", msg.UUID, err)
				continue
			}

			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (n *GoChannelNotifier) Close() error {
	return n.EventBus.Close()
}
