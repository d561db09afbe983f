package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/Luismorlan/campusfeed/changefeed"
	"github.com/Luismorlan/campusfeed/model"
	Logger "github.com/Luismorlan/campusfeed/utils/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	feedOrder = "pinned DESC, created_at DESC, id ASC"
	// Keyset predicates for posts strictly after a cursor in feed order.
	afterPinnedCursor   = "(pinned = true AND (created_at < ? OR (created_at = ? AND id > ?))) OR pinned = false"
	afterUnpinnedCursor = "pinned = false AND (created_at < ? OR (created_at = ? AND id > ?))"
)

// GormStore keeps posts in postgres. Membership sets live in the post_likes and
// post_reposts tables, the counters on posts are recomputed from them inside
// the transaction that changes them.
type GormStore struct {
	db       *gorm.DB
	notifier changefeed.Notifier
}

func NewGormStore(db *gorm.DB, notifier changefeed.Notifier) *GormStore {
	return &GormStore{db: db, notifier: notifier}
}

type membershipTable struct {
	name        string
	countColumn string
	row         func(postId, userId string, at time.Time) interface{}
}

var membershipTables = map[model.Engagement]membershipTable{
	model.EngagementLike: {
		name:        "post_likes",
		countColumn: "like_count",
		row: func(postId, userId string, at time.Time) interface{} {
			return &model.PostLike{PostID: postId, UserID: userId, CreatedAt: at}
		},
	},
	model.EngagementRepost: {
		name:        "post_reposts",
		countColumn: "repost_count",
		row: func(postId, userId string, at time.Time) interface{} {
			return &model.PostRepost{PostID: postId, UserID: userId, CreatedAt: at}
		},
	},
}

// serverNow reads the database clock, so timestamps don't depend on which api
// server accepted the write.
func serverNow(tx *gorm.DB) (time.Time, error) {
	var now time.Time
	if err := tx.Raw("SELECT clock_timestamp()").Row().Scan(&now); err != nil {
		return now, errors.Wrap(err, "fail to read database clock")
	}
	return now.UTC(), nil
}

// lockPost loads a post row with SELECT ... FOR UPDATE.
func lockPost(tx *gorm.DB, postId string) (*model.Post, error) {
	var post model.Post
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", postId).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(postId)
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// loadMembers fills the membership sets of posts with two queries.
func loadMembers(tx *gorm.DB, posts []*model.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]string, 0, len(posts))
	byId := make(map[string]*model.Post, len(posts))
	for _, p := range posts {
		ids = append(ids, p.Id)
		byId[p.Id] = p
		p.LikedBy = []string{}
		p.RepostedBy = []string{}
	}

	var likes []model.PostLike
	if err := tx.Where("post_id IN ?", ids).Order("created_at ASC").Find(&likes).Error; err != nil {
		return err
	}
	for _, l := range likes {
		byId[l.PostID].LikedBy = append(byId[l.PostID].LikedBy, l.UserID)
	}

	var reposts []model.PostRepost
	if err := tx.Where("post_id IN ?", ids).Order("created_at ASC").Find(&reposts).Error; err != nil {
		return err
	}
	for _, r := range reposts {
		byId[r.PostID].RepostedBy = append(byId[r.PostID].RepostedBy, r.UserID)
	}
	return nil
}

// readTx runs fn in one read only snapshot, so post rows and their membership
// rows always agree on the counters.
func (s *GormStore) readTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
}

func (s *GormStore) publish(ctx context.Context, t model.ChangeType, postId string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, model.NewPostChange(t, postId)); err != nil {
		Logger.Log.Errorf("fail to publish %s change of post %s: %s", t, postId, err)
	}
}

func (s *GormStore) CreatePost(ctx context.Context, draft *model.Post) (*model.Post, error) {
	if draft == nil {
		return nil, errors.Wrap(model.ErrInvalidArgument, "nil post")
	}
	if err := draft.ValidateDraft(); err != nil {
		return nil, err
	}

	c := draft.Clone()
	post := &model.Post{
		Id:              uuid.New().String(),
		AuthorId:        c.AuthorId,
		AuthorName:      c.AuthorName,
		AuthorAvatarUrl: c.AuthorAvatarUrl,
		Body:            c.Body,
		ParentPostId:    c.ParentPostId,
		LikedBy:         []string{},
		RepostedBy:      []string{},
		Version:         1,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now, err := serverNow(tx)
		if err != nil {
			return err
		}
		post.CreatedAt = now
		return tx.Create(post).Error
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.ChangeTypeCreated, post.Id)
	return post, nil
}

func (s *GormStore) GetPost(ctx context.Context, postId string) (*model.Post, error) {
	if err := validateIds(postId); err != nil {
		return nil, err
	}

	var post model.Post
	err := s.readTx(ctx, func(tx *gorm.DB) error {
		err := tx.Where("id = ?", postId).First(&post).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(postId)
		}
		if err != nil {
			return err
		}
		return loadMembers(tx, []*model.Post{&post})
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *GormStore) EditPost(ctx context.Context, req EditRequest) (*model.Post, error) {
	if err := validateIds(req.PostId, req.AuthorId); err != nil {
		return nil, err
	}

	var post *model.Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		post, err = lockPost(tx, req.PostId)
		if err != nil {
			return err
		}
		if post.AuthorId != req.AuthorId {
			return errors.Wrapf(model.ErrForbidden, "%s is not the author of post %s", req.AuthorId, req.PostId)
		}
		if err := model.ValidateBody(req.Body, post.ParentPostId != nil); err != nil {
			return err
		}
		if req.IfVersion != 0 && req.IfVersion != post.Version {
			return errors.Wrapf(model.ErrConflict, "post %s is at version %d, not %d", req.PostId, post.Version, req.IfVersion)
		}
		now, err := serverNow(tx)
		if err != nil {
			return err
		}
		post.Body = req.Body
		post.EditedAt = &now
		post.Version++
		err = tx.Model(&model.Post{}).Where("id = ?", req.PostId).Updates(map[string]interface{}{
			"body":      post.Body,
			"edited_at": now,
			"version":   post.Version,
		}).Error
		if err != nil {
			return err
		}
		return loadMembers(tx, []*model.Post{post})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.ChangeTypeUpdated, post.Id)
	return post, nil
}

func (s *GormStore) SetPinned(ctx context.Context, postId string, pinned bool) (*model.Post, error) {
	if err := validateIds(postId); err != nil {
		return nil, err
	}

	var (
		post    *model.Post
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		post, err = lockPost(tx, postId)
		if err != nil {
			return err
		}
		if post.Pinned != pinned {
			changed = true
			post.Pinned = pinned
			post.Version++
			err = tx.Model(&model.Post{}).Where("id = ?", postId).Updates(map[string]interface{}{
				"pinned":  pinned,
				"version": post.Version,
			}).Error
			if err != nil {
				return err
			}
		}
		return loadMembers(tx, []*model.Post{post})
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.publish(ctx, model.ChangeTypeUpdated, postId)
	}
	return post, nil
}

func (s *GormStore) DeletePost(ctx context.Context, postId string) error {
	if err := validateIds(postId); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockPost(tx, postId); err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", postId).Delete(&model.PostLike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", postId).Delete(&model.PostRepost{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", postId).Delete(&model.Post{}).Error
	})
	if err != nil {
		return err
	}

	s.publish(ctx, model.ChangeTypeDeleted, postId)
	return nil
}

func (s *GormStore) ListPosts(ctx context.Context, q ListQuery) ([]*model.Post, error) {
	var posts []*model.Post
	err := s.readTx(ctx, func(tx *gorm.DB) error {
		query := tx.Model(&model.Post{}).Order(feedOrder)
		if q.After != nil {
			if q.After.Pinned {
				query = query.Where(afterPinnedCursor, q.After.CreatedAt, q.After.CreatedAt, q.After.Id)
			} else {
				query = query.Where(afterUnpinnedCursor, q.After.CreatedAt, q.After.CreatedAt, q.After.Id)
			}
		}
		if q.Limit > 0 {
			query = query.Limit(q.Limit)
		}
		if err := query.Find(&posts).Error; err != nil {
			return err
		}
		return loadMembers(tx, posts)
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *GormStore) ToggleMembership(ctx context.Context, postId string, e model.Engagement, userId string) (*MembershipResult, error) {
	if err := validateIds(postId, userId); err != nil {
		return nil, err
	}
	table, ok := membershipTables[e]
	if !ok {
		return nil, errors.Wrapf(model.ErrInvalidArgument, "unknown engagement %s", e)
	}

	res := &MembershipResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockPost(tx, postId); err != nil {
			return err
		}
		removed := tx.Exec("DELETE FROM "+table.name+" WHERE post_id = ? AND user_id = ?", postId, userId)
		if removed.Error != nil {
			return removed.Error
		}
		if removed.RowsAffected == 0 {
			now, err := serverNow(tx)
			if err != nil {
				return err
			}
			if err := tx.Create(table.row(postId, userId, now)).Error; err != nil {
				return err
			}
			res.Member = true
		}

		var count int64
		if err := tx.Table(table.name).Where("post_id = ?", postId).Count(&count).Error; err != nil {
			return err
		}
		res.Count = int(count)
		return tx.Model(&model.Post{}).Where("id = ?", postId).Update(table.countColumn, count).Error
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.ChangeTypeUpdated, postId)
	return res, nil
}

func (s *GormStore) IncrementShares(ctx context.Context, postId string) (*model.Post, error) {
	if err := validateIds(postId); err != nil {
		return nil, err
	}

	var post *model.Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		post, err = lockPost(tx, postId)
		if err != nil {
			return err
		}
		post.ShareCount++
		err = tx.Model(&model.Post{}).Where("id = ?", postId).
			UpdateColumn("share_count", gorm.Expr("share_count + 1")).Error
		if err != nil {
			return err
		}
		return loadMembers(tx, []*model.Post{post})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.ChangeTypeUpdated, postId)
	return post, nil
}

func (s *GormStore) Totals(ctx context.Context) (*model.CommunityStats, error) {
	stats := &model.CommunityStats{}
	row := s.db.WithContext(ctx).Raw(
		"SELECT COUNT(*), COALESCE(SUM(like_count), 0)::bigint, COALESCE(SUM(repost_count), 0)::bigint, COALESCE(SUM(share_count), 0)::bigint FROM posts",
	).Row()
	if err := row.Scan(&stats.TotalPosts, &stats.TotalLikes, &stats.TotalReposts, &stats.TotalShares); err != nil {
		return nil, errors.Wrap(err, "fail to aggregate post totals")
	}
	return stats, nil
}

func (s *GormStore) Watch(ctx context.Context) (<-chan *model.PostChange, error) {
	if s.notifier == nil {
		return nil, errors.New("gorm store has no notifier")
	}
	return s.notifier.Subscribe(ctx)
}

// Close releases the notifier and the connection pool.
func (s *GormStore) Close() error {
	if s.notifier != nil {
		if err := s.notifier.Close(); err != nil {
			Logger.Log.Errorf("fail to close notifier: %s", err)
		}
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
