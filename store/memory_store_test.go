package store

import (
	"context"
	"testing"
	"time"

	"github.com/Luismorlan/campusfeed/changefeed"
	"github.com/Luismorlan/campusfeed/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryStore(t *testing.T) Store {
	s := NewMemoryStore(changefeed.NewGoChannelNotifier(changefeed.NewDefaultEventBus()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMemoryStoreContract(t *testing.T) {
	testStoreContract(t, newTestMemoryStore)
}

func TestMemoryStoreClockIsStrictlyIncreasing(t *testing.T) {
	frozen := time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStoreWithClock(nil, func() time.Time { return frozen })
	ctx := context.Background()

	a, err := s.CreatePost(ctx, &model.Post{AuthorId: "user_a", Body: "A"})
	require.NoError(t, err)
	b, err := s.CreatePost(ctx, &model.Post{AuthorId: "user_a", Body: "B"})
	require.NoError(t, err)

	assert.True(t, b.CreatedAt.After(a.CreatedAt))
	posts, err := s.ListPosts(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{b.Id, a.Id}, ids(posts))
}

func TestMemoryStoreHandsOutCopies(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	p, err := s.CreatePost(ctx, &model.Post{AuthorId: "user_a", Body: "A"})
	require.NoError(t, err)
	p.LikedBy = append(p.LikedBy, "intruder")
	p.LikeCount = 42

	got, err := s.GetPost(ctx, p.Id)
	require.NoError(t, err)
	assert.Empty(t, got.LikedBy)
	assert.Equal(t, 0, got.LikeCount)
}

func TestMemoryStoreWatchWithoutNotifier(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.Watch(context.Background())
	assert.Error(t, err)
	assert.NoError(t, s.Close())
}
