package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Luismorlan/campusfeed/model"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory returns a fresh, empty store for a single test.
type storeFactory func(t *testing.T) Store

// testStoreContract runs the behaviour every Store implementation shares.
func testStoreContract(t *testing.T, newStore storeFactory) {
	t.Run("CreateAssignsServerFields", func(t *testing.T) { testCreateAssignsServerFields(t, newStore(t)) })
	t.Run("CreateValidatesDraft", func(t *testing.T) { testCreateValidatesDraft(t, newStore(t)) })
	t.Run("ToggleTwiceRestoresState", func(t *testing.T) { testToggleTwiceRestoresState(t, newStore(t)) })
	t.Run("ConcurrentTogglesKeepCountInSync", func(t *testing.T) { testConcurrentToggles(t, newStore(t)) })
	t.Run("ReadsNeverTearCountFromMembers", func(t *testing.T) { testReadsDuringToggles(t, newStore(t)) })
	t.Run("Edit", func(t *testing.T) { testEdit(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("ListOrderAndPagination", func(t *testing.T) { testListOrderAndPagination(t, newStore(t)) })
	t.Run("PinnedPostsNewestFirst", func(t *testing.T) { testPinnedPostsNewestFirst(t, newStore(t)) })
	t.Run("SharesAndTotals", func(t *testing.T) { testSharesAndTotals(t, newStore(t)) })
	t.Run("Watch", func(t *testing.T) { testWatch(t, newStore(t)) })
}

func createPost(t *testing.T, s Store, authorId, body string) *model.Post {
	t.Helper()
	p, err := s.CreatePost(context.Background(), &model.Post{
		AuthorId:   authorId,
		AuthorName: "name of " + authorId,
		Body:       body,
	})
	require.NoError(t, err)
	// Some stores only keep millisecond timestamps.
	time.Sleep(2 * time.Millisecond)
	return p
}

func ids(posts []*model.Post) []string {
	res := []string{}
	for _, p := range posts {
		res = append(res, p.Id)
	}
	return res
}

func testCreateAssignsServerFields(t *testing.T, s Store) {
	ctx := context.Background()
	before := time.Now().Add(-time.Minute)
	p := createPost(t, s, "user_a", "hello campus")

	assert.NotEmpty(t, p.Id)
	assert.Equal(t, "user_a", p.AuthorId)
	assert.Equal(t, "hello campus", p.Body)
	assert.True(t, p.CreatedAt.After(before))
	assert.Nil(t, p.EditedAt)
	assert.False(t, p.Pinned)
	assert.Equal(t, int64(1), p.Version)
	assert.Empty(t, p.LikedBy)
	assert.Empty(t, p.RepostedBy)
	assert.NoError(t, p.Validate())

	got, err := s.GetPost(ctx, p.Id)
	require.NoError(t, err)
	assert.True(t, model.SamePost(p, got), cmp.Diff(p, got))
}

func testCreateValidatesDraft(t *testing.T, s Store) {
	ctx := context.Background()
	_, err := s.CreatePost(ctx, &model.Post{AuthorId: "user_a", Body: "   "})
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = s.CreatePost(ctx, &model.Post{AuthorId: "", Body: "hi"})
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	parent := createPost(t, s, "user_a", "parent")
	quote, err := s.CreatePost(ctx, &model.Post{AuthorId: "user_b", ParentPostId: &parent.Id})
	require.NoError(t, err)
	require.NotNil(t, quote.ParentPostId)
	assert.Equal(t, parent.Id, *quote.ParentPostId)
	assert.Equal(t, "", quote.Body)
}

func testToggleTwiceRestoresState(t *testing.T, s Store) {
	ctx := context.Background()
	p := createPost(t, s, "user_a", "like me")

	for _, e := range []model.Engagement{model.EngagementLike, model.EngagementRepost} {
		res, err := s.ToggleMembership(ctx, p.Id, e, "user_x")
		require.NoError(t, err)
		assert.True(t, res.Member)
		assert.Equal(t, 1, res.Count)

		res, err = s.ToggleMembership(ctx, p.Id, e, "user_x")
		require.NoError(t, err)
		assert.False(t, res.Member)
		assert.Equal(t, 0, res.Count)
	}

	got, err := s.GetPost(ctx, p.Id)
	require.NoError(t, err)
	assert.True(t, model.SamePost(p, got), cmp.Diff(p, got))

	_, err = s.ToggleMembership(ctx, "missing_post", model.EngagementLike, "user_x")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.ToggleMembership(ctx, p.Id, model.EngagementLike, "")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
	_, err = s.ToggleMembership(ctx, p.Id, model.Engagement("BOOKMARK"), "user_x")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func testConcurrentToggles(t *testing.T, s Store) {
	ctx := context.Background()
	p := createPost(t, s, "user_a", "popular")

	const users = 20
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.ToggleMembership(ctx, p.Id, model.EngagementLike, fmt.Sprintf("user_%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.GetPost(ctx, p.Id)
	require.NoError(t, err)
	assert.Equal(t, users, got.LikeCount)
	assert.Len(t, got.LikedBy, users)
	assert.NoError(t, got.Validate())
}

// Readers racing toggles must see every counter together with its own
// membership set.
func testReadsDuringToggles(t *testing.T, s Store) {
	ctx := context.Background()
	p := createPost(t, s, "user_a", "contested")
	q := createPost(t, s, "user_b", "also contested")

	const (
		users  = 8
		rounds = 10
	)
	done := make(chan struct{})
	var writers sync.WaitGroup
	for i := 0; i < users; i++ {
		writers.Add(1)
		go func(i int) {
			defer writers.Done()
			for r := 0; r < rounds; r++ {
				for _, id := range []string{p.Id, q.Id} {
					_, err := s.ToggleMembership(ctx, id, model.EngagementLike, fmt.Sprintf("user_%d", i))
					assert.NoError(t, err)
					_, err = s.ToggleMembership(ctx, id, model.EngagementRepost, fmt.Sprintf("user_%d", i))
					assert.NoError(t, err)
				}
			}
		}(i)
	}
	go func() {
		writers.Wait()
		close(done)
	}()

	check := func(post *model.Post) {
		assert.Equal(t, post.LikeCount, len(post.LikedBy), "post %s likes", post.Id)
		assert.Equal(t, post.RepostCount, len(post.RepostedBy), "post %s reposts", post.Id)
	}
	for reading := true; reading; {
		select {
		case <-done:
			reading = false
		default:
		}
		posts, err := s.ListPosts(ctx, ListQuery{})
		require.NoError(t, err)
		for _, post := range posts {
			check(post)
		}
		got, err := s.GetPost(ctx, p.Id)
		require.NoError(t, err)
		check(got)
	}
}

func testEdit(t *testing.T, s Store) {
	ctx := context.Background()
	p := createPost(t, s, "user_a", "first draft")

	_, err := s.EditPost(ctx, EditRequest{PostId: p.Id, AuthorId: "user_b", Body: "hijack"})
	assert.ErrorIs(t, err, model.ErrForbidden)

	edited, err := s.EditPost(ctx, EditRequest{PostId: p.Id, AuthorId: "user_a", Body: "second draft", IfVersion: 1})
	require.NoError(t, err)
	assert.Equal(t, "second draft", edited.Body)
	assert.Equal(t, int64(2), edited.Version)
	require.NotNil(t, edited.EditedAt)
	assert.False(t, edited.EditedAt.Before(p.CreatedAt))
	assert.True(t, edited.CreatedAt.Equal(p.CreatedAt))

	_, err = s.EditPost(ctx, EditRequest{PostId: p.Id, AuthorId: "user_a", Body: "stale", IfVersion: 1})
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = s.EditPost(ctx, EditRequest{PostId: p.Id, AuthorId: "user_a", Body: ""})
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = s.EditPost(ctx, EditRequest{PostId: "missing_post", AuthorId: "user_a", Body: "x"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func testDelete(t *testing.T, s Store) {
	ctx := context.Background()
	p := createPost(t, s, "user_a", "short lived")
	_, err := s.ToggleMembership(ctx, p.Id, model.EngagementLike, "user_x")
	require.NoError(t, err)

	require.NoError(t, s.DeletePost(ctx, p.Id))

	_, err = s.GetPost(ctx, p.Id)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, s.DeletePost(ctx, p.Id), model.ErrNotFound)

	// Edit racing a delete loses with NotFound.
	_, err = s.EditPost(ctx, EditRequest{PostId: p.Id, AuthorId: "user_a", Body: "too late"})
	assert.ErrorIs(t, err, model.ErrNotFound)

	totals, err := s.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, &model.CommunityStats{}, totals)
}

func testListOrderAndPagination(t *testing.T, s Store) {
	ctx := context.Background()
	a := createPost(t, s, "user_a", "A")
	b := createPost(t, s, "user_a", "B")
	c := createPost(t, s, "user_a", "C")

	posts, err := s.ListPosts(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{c.Id, b.Id, a.Id}, ids(posts))

	_, err = s.SetPinned(ctx, a.Id, true)
	require.NoError(t, err)
	d := createPost(t, s, "user_a", "D")

	posts, err = s.ListPosts(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{a.Id, d.Id, c.Id, b.Id}, ids(posts))

	// Walk the feed two posts at a time.
	var (
		walked []string
		after  *model.FeedCursor
	)
	for i := 0; i < 5; i++ {
		page, err := s.ListPosts(ctx, ListQuery{Limit: 2, After: after})
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		walked = append(walked, ids(page)...)
		after = model.CursorOf(page[len(page)-1])
	}
	assert.Equal(t, []string{a.Id, d.Id, c.Id, b.Id}, walked)

	unpinned, err := s.SetPinned(ctx, a.Id, false)
	require.NoError(t, err)
	assert.False(t, unpinned.Pinned)
	assert.Equal(t, int64(3), unpinned.Version)

	posts, err = s.ListPosts(ctx, ListQuery{})
	require.NoError(t, err)
	if diff := cmp.Diff([]string{d.Id, c.Id, b.Id, a.Id}, ids(posts), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("unexpected order (-want +got):\n%s", diff)
	}
}

func testPinnedPostsNewestFirst(t *testing.T, s Store) {
	ctx := context.Background()
	older := createPost(t, s, "user_a", "older pinned")
	a := createPost(t, s, "user_a", "A")
	newer := createPost(t, s, "user_a", "newer pinned")
	b := createPost(t, s, "user_a", "B")

	// Pin order must not matter, only createdAt does.
	_, err := s.SetPinned(ctx, newer.Id, true)
	require.NoError(t, err)
	_, err = s.SetPinned(ctx, older.Id, true)
	require.NoError(t, err)

	expected := []string{newer.Id, older.Id, b.Id, a.Id}
	posts, err := s.ListPosts(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, expected, ids(posts))

	// One post per page crosses the pinned/pinned and pinned/unpinned
	// boundaries with a cursor.
	var (
		walked []string
		after  *model.FeedCursor
	)
	for i := 0; i < 6; i++ {
		page, err := s.ListPosts(ctx, ListQuery{Limit: 1, After: after})
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		walked = append(walked, ids(page)...)
		after = model.CursorOf(page[0])
	}
	assert.Equal(t, expected, walked)
}

func testSharesAndTotals(t *testing.T, s Store) {
	ctx := context.Background()
	p := createPost(t, s, "user_a", "share me")
	q := createPost(t, s, "user_b", "me too")

	for i := 1; i <= 3; i++ {
		got, err := s.IncrementShares(ctx, p.Id)
		require.NoError(t, err)
		assert.Equal(t, i, got.ShareCount)
	}
	_, err := s.IncrementShares(ctx, "missing_post")
	assert.ErrorIs(t, err, model.ErrNotFound)

	for _, u := range []string{"u1", "u2"} {
		_, err := s.ToggleMembership(ctx, q.Id, model.EngagementLike, u)
		require.NoError(t, err)
	}
	_, err = s.ToggleMembership(ctx, p.Id, model.EngagementRepost, "u1")
	require.NoError(t, err)

	totals, err := s.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, &model.CommunityStats{
		TotalPosts:   2,
		TotalLikes:   2,
		TotalReposts: 1,
		TotalShares:  3,
	}, totals)
}

func testWatch(t *testing.T, s Store) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := s.Watch(ctx)
	require.NoError(t, err)

	p := createPost(t, s, "user_a", "watched")
	_, err = s.ToggleMembership(ctx, p.Id, model.EngagementLike, "user_x")
	require.NoError(t, err)
	require.NoError(t, s.DeletePost(ctx, p.Id))

	seen := map[model.ChangeType]bool{}
	timeout := time.After(5 * time.Second)
	for len(seen) < 3 {
		select {
		case c, ok := <-changes:
			require.True(t, ok, "watch channel closed")
			assert.Equal(t, p.Id, c.PostId)
			seen[c.Type] = true
		case <-timeout:
			require.FailNow(t, "timeout waiting for changes", "seen %v", seen)
		}
	}
}
