package store

import (
	"context"

	"github.com/Luismorlan/campusfeed/model"
	"github.com/pkg/errors"
)

// Store is the durable document store holding posts and their engagement
// state. Every mutation is atomic per post and emits a model.PostChange once
// committed. Implementations assign ids and timestamps, callers never do.
type Store interface {
	// CreatePost stores a new post built from the author and body fields of
	// draft. Everything else is assigned by the store.
	CreatePost(ctx context.Context, draft *model.Post) (*model.Post, error)
	GetPost(ctx context.Context, postId string) (*model.Post, error)
	// EditPost replaces the body of a post owned by req.AuthorId.
	EditPost(ctx context.Context, req EditRequest) (*model.Post, error)
	SetPinned(ctx context.Context, postId string, pinned bool) (*model.Post, error)
	// DeletePost removes the post together with its membership sets.
	DeletePost(ctx context.Context, postId string) error
	// ListPosts returns posts in feed order starting right after q.After.
	ListPosts(ctx context.Context, q ListQuery) ([]*model.Post, error)
	// ToggleMembership adds userId to the engagement set when absent and
	// removes it when present, and recomputes the counter in the same write.
	ToggleMembership(ctx context.Context, postId string, e model.Engagement, userId string) (*MembershipResult, error)
	IncrementShares(ctx context.Context, postId string) (*model.Post, error)
	// Totals aggregates engagement over every stored post.
	Totals(ctx context.Context) (*model.CommunityStats, error)
	// Watch streams committed changes, see changefeed.Notifier for the
	// channel semantics.
	Watch(ctx context.Context) (<-chan *model.PostChange, error)
	Close() error
}

type ListQuery struct {
	// Limit <= 0 means no limit.
	Limit int
	After *model.FeedCursor
}

type EditRequest struct {
	PostId   string
	AuthorId string
	Body     string
	// IfVersion is the version the caller last read, 0 skips the check.
	IfVersion int64
}

type MembershipResult struct {
	// Member reports whether the user is in the set after the toggle.
	Member bool
	Count  int
}

func notFound(postId string) error {
	return errors.Wrapf(model.ErrNotFound, "post %s", postId)
}

func validateIds(ids ...string) error {
	for _, id := range ids {
		if err := model.ValidateId(id); err != nil {
			return err
		}
	}
	return nil
}
