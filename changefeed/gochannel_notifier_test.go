package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/Luismorlan/campusfeed/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan *model.PostChange) *model.PostChange {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "channel closed")
		return c
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timeout waiting for post change")
	}
	return nil
}

func TestGoChannelNotifierFanOut(t *testing.T) {
	n := NewGoChannelNotifier(NewDefaultEventBus())
	defer n.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := n.Subscribe(ctx)
	require.NoError(t, err)
	second, err := n.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, n.Publish(ctx, model.NewPostChange(model.ChangeTypeCreated, "post_1")))

	for _, ch := range []<-chan *model.PostChange{first, second} {
		c := receive(t, ch)
		assert.Equal(t, model.ChangeTypeCreated, c.Type)
		assert.Equal(t, "post_1", c.PostId)
	}
}

func TestGoChannelNotifierClosesOnContextDone(t *testing.T) {
	n := NewGoChannelNotifier(NewDefaultEventBus())
	defer n.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := n.Subscribe(ctx)
	require.NoError(t, err)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGoChannelNotifierCloseEndsStream(t *testing.T) {
	n := NewGoChannelNotifier(NewDefaultEventBus())

	ch, err := n.Subscribe(context.Background())
	require.NoError(t, err)

	require.NoError(t, n.Close())
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	assert.Error(t, n.Publish(context.Background(), model.NewPostChange(model.ChangeTypeDeleted, "post_1")))
}

func TestPublishRejectsNilChange(t *testing.T) {
	n := NewGoChannelNotifier(NewDefaultEventBus())
	defer n.Close()
	assert.ErrorIs(t, n.Publish(context.Background(), nil), model.ErrInvalidArgument)
}
