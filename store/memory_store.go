package store

import (
	"context"
	"sync"
	"time"

	"github.com/Luismorlan/campusfeed/changefeed"
	"github.com/Luismorlan/campusfeed/model"
	Logger "github.com/Luismorlan/campusfeed/utils/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MemoryStore keeps posts in a map. It backs tests and local development and
// follows the same contract as the durable stores.
type MemoryStore struct {
	// Mutations grab the write lock, reads grab the read lock. Notifications
	// are published after the lock is released.
	mu    sync.RWMutex
	posts map[string]*model.Post

	clock func() time.Time
	// last assigned server timestamp, timestamps are strictly increasing.
	last time.Time

	notifier changefeed.Notifier
}

func NewMemoryStore(notifier changefeed.Notifier) *MemoryStore {
	return NewMemoryStoreWithClock(notifier, time.Now)
}

func NewMemoryStoreWithClock(notifier changefeed.Notifier, clock func() time.Time) *MemoryStore {
	return &MemoryStore{
		posts:    make(map[string]*model.Post),
		clock:    clock,
		notifier: notifier,
	}
}

// now must be called with the write lock held.
func (s *MemoryStore) now() time.Time {
	t := s.clock().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func (s *MemoryStore) publish(ctx context.Context, t model.ChangeType, postId string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, model.NewPostChange(t, postId)); err != nil {
		Logger.Log.Errorf("fail to publish %s change of post %s: %s", t, postId, err)
	}
}

func (s *MemoryStore) CreatePost(ctx context.Context, draft *model.Post) (*model.Post, error) {
	if draft == nil {
		return nil, errors.Wrap(model.ErrInvalidArgument, "nil post")
	}
	if err := draft.ValidateDraft(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	post := &model.Post{
		Id:              uuid.New().String(),
		AuthorId:        draft.AuthorId,
		AuthorName:      draft.AuthorName,
		AuthorAvatarUrl: draft.AuthorAvatarUrl,
		Body:            draft.Body,
		CreatedAt:       s.now(),
		LikedBy:         []string{},
		RepostedBy:      []string{},
		ParentPostId:    draft.Clone().ParentPostId,
		Version:         1,
	}
	s.posts[post.Id] = post
	res := post.Clone()
	s.mu.Unlock()

	s.publish(ctx, model.ChangeTypeCreated, res.Id)
	return res, nil
}

func (s *MemoryStore) GetPost(ctx context.Context, postId string) (*model.Post, error) {
	if err := validateIds(postId); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[postId]
	if !ok {
		return nil, notFound(postId)
	}
	return post.Clone(), nil
}

func (s *MemoryStore) EditPost(ctx context.Context, req EditRequest) (*model.Post, error) {
	if err := validateIds(req.PostId, req.AuthorId); err != nil {
		return nil, err
	}

	s.mu.Lock()
	post, ok := s.posts[req.PostId]
	if !ok {
		s.mu.Unlock()
		return nil, notFound(req.PostId)
	}
	if post.AuthorId != req.AuthorId {
		s.mu.Unlock()
		return nil, errors.Wrapf(model.ErrForbidden, "%s is not the author of post %s", req.AuthorId, req.PostId)
	}
	if err := model.ValidateBody(req.Body, post.ParentPostId != nil); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if req.IfVersion != 0 && req.IfVersion != post.Version {
		s.mu.Unlock()
		return nil, errors.Wrapf(model.ErrConflict, "post %s is at version %d, not %d", req.PostId, post.Version, req.IfVersion)
	}
	now := s.now()
	post.Body = req.Body
	post.EditedAt = &now
	post.Version++
	res := post.Clone()
	s.mu.Unlock()

	s.publish(ctx, model.ChangeTypeUpdated, res.Id)
	return res, nil
}

func (s *MemoryStore) SetPinned(ctx context.Context, postId string, pinned bool) (*model.Post, error) {
	if err := validateIds(postId); err != nil {
		return nil, err
	}

	s.mu.Lock()
	post, ok := s.posts[postId]
	if !ok {
		s.mu.Unlock()
		return nil, notFound(postId)
	}
	changed := post.Pinned != pinned
	if changed {
		post.Pinned = pinned
		post.Version++
	}
	res := post.Clone()
	s.mu.Unlock()

	if changed {
		s.publish(ctx, model.ChangeTypeUpdated, postId)
	}
	return res, nil
}

func (s *MemoryStore) DeletePost(ctx context.Context, postId string) error {
	if err := validateIds(postId); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.posts[postId]; !ok {
		s.mu.Unlock()
		return notFound(postId)
	}
	delete(s.posts, postId)
	s.mu.Unlock()

	s.publish(ctx, model.ChangeTypeDeleted, postId)
	return nil
}

func (s *MemoryStore) ListPosts(ctx context.Context, q ListQuery) ([]*model.Post, error) {
	s.mu.RLock()
	posts := make([]*model.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if q.After != nil && !q.After.Precedes(p) {
			continue
		}
		posts = append(posts, p.Clone())
	}
	s.mu.RUnlock()

	model.SortPosts(posts)
	if q.Limit > 0 && len(posts) > q.Limit {
		posts = posts[:q.Limit]
	}
	return posts, nil
}

func (s *MemoryStore) ToggleMembership(ctx context.Context, postId string, e model.Engagement, userId string) (*MembershipResult, error) {
	if err := validateIds(postId, userId); err != nil {
		return nil, err
	}
	if !e.IsValid() {
		return nil, errors.Wrapf(model.ErrInvalidArgument, "unknown engagement %s", e)
	}

	s.mu.Lock()
	post, ok := s.posts[postId]
	if !ok {
		s.mu.Unlock()
		return nil, notFound(postId)
	}
	members := post.Members(e)
	next := make([]string, 0, len(members)+1)
	member := true
	for _, id := range members {
		if id == userId {
			member = false
			continue
		}
		next = append(next, id)
	}
	if member {
		next = append(next, userId)
	}
	post.SetMembers(e, next)
	res := &MembershipResult{Member: member, Count: post.Count(e)}
	s.mu.Unlock()

	s.publish(ctx, model.ChangeTypeUpdated, postId)
	return res, nil
}

func (s *MemoryStore) IncrementShares(ctx context.Context, postId string) (*model.Post, error) {
	if err := validateIds(postId); err != nil {
		return nil, err
	}

	s.mu.Lock()
	post, ok := s.posts[postId]
	if !ok {
		s.mu.Unlock()
		return nil, notFound(postId)
	}
	post.ShareCount++
	res := post.Clone()
	s.mu.Unlock()

	s.publish(ctx, model.ChangeTypeUpdated, postId)
	return res, nil
}

func (s *MemoryStore) Totals(ctx context.Context) (*model.CommunityStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &model.CommunityStats{TotalPosts: len(s.posts)}
	for _, p := range s.posts {
		stats.TotalLikes += p.LikeCount
		stats.TotalReposts += p.RepostCount
		stats.TotalShares += p.ShareCount
	}
	return stats, nil
}

func (s *MemoryStore) Watch(ctx context.Context) (<-chan *model.PostChange, error) {
	if s.notifier == nil {
		return nil, errors.New("memory store has no notifier")
	}
	return s.notifier.Subscribe(ctx)
}

func (s *MemoryStore) Close() error {
	if s.notifier == nil {
		return nil
	}
	return s.notifier.Close()
}
