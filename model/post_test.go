package model

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2021, 9, 1, 12, 0, 0, 0, time.UTC)

func post(id string, minutes int, pinned bool) *Post {
	return &Post{
		Id:         id,
		AuthorId:   "alice",
		Body:       "body of " + id,
		CreatedAt:  t0.Add(time.Duration(minutes) * time.Minute),
		Pinned:     pinned,
		LikedBy:    []string{},
		RepostedBy: []string{},
		Version:    1,
	}
}

func postIds(posts []*Post) []string {
	res := []string{}
	for _, p := range posts {
		res = append(res, p.Id)
	}
	return res
}

func TestSortPostsNewestFirst(t *testing.T) {
	posts := []*Post{post("a", 0, false), post("b", 1, false), post("c", 2, false)}
	SortPosts(posts)
	assert.Equal(t, []string{"c", "b", "a"}, postIds(posts))
}

func TestSortPostsPinnedFirst(t *testing.T) {
	posts := []*Post{post("a", 0, true), post("b", 1, false), post("c", 2, false)}
	SortPosts(posts)
	assert.Equal(t, []string{"a", "c", "b"}, postIds(posts))
}

func TestSortPostsPinnedAmongThemselvesNewestFirst(t *testing.T) {
	posts := []*Post{
		post("old_pin", 0, true),
		post("a", 1, false),
		post("new_pin", 2, true),
		post("b", 3, false),
	}
	SortPosts(posts)
	assert.Equal(t, []string{"new_pin", "old_pin", "b", "a"}, postIds(posts))
}

func TestSortPostsTieBreaksOnId(t *testing.T) {
	posts := []*Post{post("y", 0, false), post("x", 0, false), post("z", 0, false)}
	SortPosts(posts)
	assert.Equal(t, []string{"x", "y", "z"}, postIds(posts))
}

func TestFeedCursorRoundTrip(t *testing.T) {
	p := post("post-1", 3, true)
	p.CreatedAt = p.CreatedAt.Add(123456789 * time.Nanosecond)
	token := CursorOf(p).Encode()

	c, err := DecodeFeedCursor(token)
	require.NoError(t, err)
	assert.True(t, c.Pinned)
	assert.True(t, c.CreatedAt.Equal(p.CreatedAt))
	assert.Equal(t, "post-1", c.Id)

	assert.False(t, c.Precedes(p))
	assert.True(t, c.Precedes(post("older", 2, true)))
	assert.True(t, c.Precedes(post("unpinned", 10, false)))
	assert.False(t, c.Precedes(post("newer", 4, true)))
}

func TestDecodeFeedCursor(t *testing.T) {
	c, err := DecodeFeedCursor("")
	assert.NoError(t, err)
	assert.Nil(t, c)

	for _, token := range []string{
		"!!!",
		"bm90LWEtY3Vyc29y",
		CursorOf(&Post{Id: "$bad", CreatedAt: t0}).Encode(),
	} {
		_, err := DecodeFeedCursor(token)
		assert.Equal(t, ErrorKindInvalidArgument, KindOf(err), token)
	}
}

func TestValidateId(t *testing.T) {
	assert.NoError(t, ValidateId("user_1"))
	assert.NoError(t, ValidateId("8c0e4f5e-5a64-4f7a-9a5d-1a2b3c4d5e6f"))

	for _, id := range []string{"", "$where", "has space", "tab\t", strings.Repeat("x", MaxIdLength+1)} {
		assert.Error(t, ValidateId(id), id)
	}
}

func TestValidateBody(t *testing.T) {
	assert.NoError(t, ValidateBody("hi", false))
	assert.Error(t, ValidateBody("  \n ", false))
	assert.NoError(t, ValidateBody("", true))
	assert.NoError(t, ValidateBody(strings.Repeat("é", MaxBodyLength), false))
	assert.Error(t, ValidateBody(strings.Repeat("é", MaxBodyLength+1), false))
}

func TestValidateStoredPost(t *testing.T) {
	p := post("a", 0, false)
	p.SetMembers(EngagementLike, []string{"bob", "carol"})
	assert.NoError(t, p.Validate())

	drifted := p.Clone()
	drifted.LikeCount = 5
	assert.Error(t, drifted.Validate())

	duplicated := p.Clone()
	duplicated.RepostedBy = []string{"bob", "bob"}
	duplicated.RepostCount = 2
	assert.Error(t, duplicated.Validate())

	noTime := p.Clone()
	noTime.CreatedAt = time.Time{}
	assert.Error(t, noTime.Validate())
}

func TestCloneIsDeep(t *testing.T) {
	p := post("a", 0, false)
	p.SetMembers(EngagementLike, []string{"bob"})
	parent := "root"
	p.ParentPostId = &parent

	c := p.Clone()
	c.LikedBy[0] = "mallory"
	*c.ParentPostId = "other"
	assert.Equal(t, []string{"bob"}, p.LikedBy)
	assert.Equal(t, "root", *p.ParentPostId)
	assert.True(t, p.HasLiked("bob"))
	assert.False(t, p.HasReposted("bob"))
}

func TestSamePostComparesSets(t *testing.T) {
	a := post("a", 0, false)
	a.SetMembers(EngagementLike, []string{"bob", "carol"})
	b := a.Clone()
	b.SetMembers(EngagementLike, []string{"carol", "bob"})
	assert.True(t, SamePost(a, b))

	b.ShareCount++
	assert.False(t, SamePost(a, b))
	assert.True(t, SamePost(nil, nil))
	assert.False(t, SamePost(a, nil))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, ErrorKindNotFound, KindOf(errors.Wrap(ErrNotFound, "post x")))
	assert.Equal(t, ErrorKindConflict, KindOf(errors.Wrap(errors.Wrap(ErrConflict, "inner"), "outer")))
	assert.Equal(t, ErrorKindInternal, KindOf(errors.New("boom")))
}

func TestDiffPosts(t *testing.T) {
	a, b, c := post("a", 0, false), post("b", 1, false), post("c", 2, false)
	bLiked := b.Clone()
	bLiked.SetMembers(EngagementLike, []string{"bob"})

	diff := DiffPosts([]*Post{a, b}, []*Post{c, bLiked})
	expected := SnapshotDiff{Added: []string{"c"}, Updated: []string{"b"}, Removed: []string{"a"}}
	if d := cmp.Diff(expected, diff); d != "" {
		t.Errorf("unexpected diff (-want +got):\n%s", d)
	}

	assert.True(t, DiffPosts([]*Post{a, b}, []*Post{a.Clone(), b.Clone()}).IsEmpty())
}

func TestNextSnapshot(t *testing.T) {
	a, b := post("a", 0, false), post("b", 1, false)

	first := NextSnapshot(nil, []*Post{a})
	assert.Equal(t, int64(1), first.Version)
	assert.Equal(t, []string{"a"}, first.Diff.Added)

	second := NextSnapshot(first, []*Post{b, a})
	assert.Equal(t, int64(2), second.Version)
	assert.Equal(t, []string{"b"}, second.Diff.Added)
	assert.Empty(t, second.Diff.Updated)
	assert.Empty(t, second.Diff.Removed)
}

func TestRoles(t *testing.T) {
	assert.Equal(t, RoleAdmin, ParseRole("admin"))
	assert.Equal(t, RoleModerator, ParseRole("MODERATOR"))
	assert.Equal(t, RoleMember, ParseRole(""))
	assert.Equal(t, RoleMember, ParseRole("superuser"))

	assert.True(t, (&Identity{UserId: "a", Role: RoleAdmin}).IsPrivileged())
	assert.True(t, (&Identity{UserId: "m", Role: RoleModerator}).IsPrivileged())
	assert.False(t, (&Identity{UserId: "u", Role: RoleMember}).IsPrivileged())
	var nobody *Identity
	assert.False(t, nobody.IsPrivileged())
}
