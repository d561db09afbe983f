package feed

import (
	"context"

	"github.com/Luismorlan/campusfeed/model"
	"github.com/Luismorlan/campusfeed/store"
	Logger "github.com/Luismorlan/campusfeed/utils/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// Used when List is called with limit 0.
	DefaultPageSize int
	MaxPageSize     int
}

// Feed owns the lifecycle of posts: authoring, editing, pinning, deleting and
// listing in feed order. Engagement lives in the ledger package.
type Feed struct {
	store  store.Store
	config Config
}

// Page is one page of the feed. NextCursor is empty on the last page.
type Page struct {
	Posts      []*model.Post `json:"posts"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

func NewFeed(s store.Store, config Config) *Feed {
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = 20
	}
	if config.MaxPageSize < config.DefaultPageSize {
		config.MaxPageSize = config.DefaultPageSize
	}
	return &Feed{store: s, config: config}
}

func requireCaller(caller *model.Identity) error {
	if caller == nil {
		return errors.Wrap(model.ErrUnauthorized, "posting requires a signed in user")
	}
	return errors.Wrap(model.ValidateId(caller.UserId), "caller id")
}

func draftOf(caller *model.Identity, body string) *model.Post {
	return &model.Post{
		AuthorId:        caller.UserId,
		AuthorName:      caller.DisplayName,
		AuthorAvatarUrl: caller.AvatarUrl,
		Body:            body,
	}
}

// Create publishes a root post. The author fields are a snapshot of the
// caller identity at this moment.
func (f *Feed) Create(ctx context.Context, caller *model.Identity, body string) (*model.Post, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	post, err := f.store.CreatePost(ctx, draftOf(caller, body))
	if err != nil {
		return nil, err
	}
	Logger.Log.WithFields(logrus.Fields{"post_id": post.Id, "author_id": post.AuthorId}).Info("post created")
	return post, nil
}

// Quote publishes a post pointing at parentId. The body may be empty, the post
// then acts as a plain repost stub.
func (f *Feed) Quote(ctx context.Context, caller *model.Identity, parentId string, body string) (*model.Post, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if _, err := f.store.GetPost(ctx, parentId); err != nil {
		return nil, errors.Wrap(err, "quoted post")
	}
	draft := draftOf(caller, body)
	draft.ParentPostId = &parentId
	post, err := f.store.CreatePost(ctx, draft)
	if err != nil {
		return nil, err
	}
	Logger.Log.WithFields(logrus.Fields{"post_id": post.Id, "parent_post_id": parentId}).Info("post quoted")
	return post, nil
}

func (f *Feed) Get(ctx context.Context, postId string) (*model.Post, error) {
	return f.store.GetPost(ctx, postId)
}

// Edit replaces the body of the caller's own post. ifVersion, when non zero,
// must match the current version of the post.
func (f *Feed) Edit(ctx context.Context, caller *model.Identity, postId string, body string, ifVersion int64) (*model.Post, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if ifVersion < 0 {
		return nil, errors.Wrapf(model.ErrInvalidArgument, "negative version %d", ifVersion)
	}
	return f.store.EditPost(ctx, store.EditRequest{
		PostId:    postId,
		AuthorId:  caller.UserId,
		Body:      body,
		IfVersion: ifVersion,
	})
}

// Delete removes a post and all of its engagement. Only the author or a
// privileged caller may delete.
func (f *Feed) Delete(ctx context.Context, caller *model.Identity, postId string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	post, err := f.store.GetPost(ctx, postId)
	if err != nil {
		return err
	}
	// Authorship never changes, so the check stays valid until the delete.
	if post.AuthorId != caller.UserId && !caller.IsPrivileged() {
		return errors.Wrapf(model.ErrForbidden, "%s cannot delete post %s", caller.UserId, postId)
	}
	if err := f.store.DeletePost(ctx, postId); err != nil {
		return err
	}
	Logger.Log.WithFields(logrus.Fields{"post_id": postId, "deleted_by": caller.UserId}).Info("post deleted")
	return nil
}

func (f *Feed) SetPinned(ctx context.Context, caller *model.Identity, postId string, pinned bool) (*model.Post, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !caller.IsPrivileged() {
		return nil, errors.Wrapf(model.ErrForbidden, "%s cannot pin posts", caller.UserId)
	}
	return f.store.SetPinned(ctx, postId, pinned)
}

// List returns up to limit posts in feed order, starting after cursor. An
// empty cursor starts from the top, limit 0 uses the default page size.
func (f *Feed) List(ctx context.Context, limit int, cursor string) (*Page, error) {
	if limit < 0 || limit > f.config.MaxPageSize {
		return nil, errors.Wrapf(model.ErrInvalidArgument, "limit must be within [0, %d]", f.config.MaxPageSize)
	}
	if limit == 0 {
		limit = f.config.DefaultPageSize
	}
	after, err := model.DecodeFeedCursor(cursor)
	if err != nil {
		return nil, err
	}

	// One extra post tells whether another page exists.
	posts, err := f.store.ListPosts(ctx, store.ListQuery{Limit: limit + 1, After: after})
	if err != nil {
		return nil, err
	}
	page := &Page{Posts: posts}
	if len(posts) > limit {
		page.Posts = posts[:limit]
		page.NextCursor = model.CursorOf(page.Posts[limit-1]).Encode()
	}
	return page, nil
}
