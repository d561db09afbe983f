package server

import (
	"time"

	"github.com/Luismorlan/campusfeed/model"
	"github.com/jinzhu/copier"
)

// PostView is a post as seen by one viewer. Membership sets are replaced by
// the viewer's own engagement.
type PostView struct {
	Id              string     `json:"id"`
	AuthorId        string     `json:"authorId"`
	AuthorName      string     `json:"authorName"`
	AuthorAvatarUrl string     `json:"authorAvatarUrl"`
	Body            string     `json:"body"`
	CreatedAt       time.Time  `json:"createdAt"`
	EditedAt        *time.Time `json:"editedAt,omitempty"`
	Pinned          bool       `json:"pinned"`
	LikeCount       int        `json:"likeCount"`
	RepostCount     int        `json:"repostCount"`
	ShareCount      int        `json:"shareCount"`
	CommentCount    int        `json:"commentCount"`
	ParentPostId    *string    `json:"parentPostId,omitempty"`
	Version         int64      `json:"version"`
	LikedByMe       bool       `json:"likedByMe"`
	RepostedByMe    bool       `json:"repostedByMe"`
}

type SnapshotView struct {
	Version int64              `json:"version"`
	Posts   []*PostView        `json:"posts"`
	Diff    model.SnapshotDiff `json:"diff"`
	At      time.Time          `json:"at"`
}

type PageView struct {
	Posts      []*PostView `json:"posts"`
	NextCursor string      `json:"nextCursor,omitempty"`
}

func NewPostView(p *model.Post, viewerId string) (*PostView, error) {
	view := &PostView{}
	if err := copier.Copy(view, p); err != nil {
		return nil, err
	}
	view.LikedByMe = p.HasLiked(viewerId)
	view.RepostedByMe = p.HasReposted(viewerId)
	return view, nil
}

func NewPostViews(posts []*model.Post, viewerId string) ([]*PostView, error) {
	views := make([]*PostView, 0, len(posts))
	for _, p := range posts {
		view, err := NewPostView(p, viewerId)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func NewSnapshotView(s *model.Snapshot, viewerId string) (*SnapshotView, error) {
	posts, err := NewPostViews(s.Posts, viewerId)
	if err != nil {
		return nil, err
	}
	return &SnapshotView{Version: s.Version, Posts: posts, Diff: s.Diff, At: s.At}, nil
}
